package media

import (
	"bytes"
	"testing"
)

var (
	h264SPS = []byte{0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0x00, 0x1E}
	h264PPS = []byte{0x00, 0x00, 0x00, 0x01, 0x68, 0xCE, 0x3C, 0x80}
	h264IDR = []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0x88, 0x84, 0x00}
	h264SEI = []byte{0x00, 0x00, 0x00, 0x01, 0x06, 0x05, 0x01, 0x00}
	h264P   = []byte{0x00, 0x00, 0x01, 0x41, 0x9A, 0x02}
)

func TestNewFrameDefaults(t *testing.T) {
	t.Parallel()

	f := NewFrame(CodecH264, h264IDR, 4, 100, NoTimestamp)
	if f.PTS() != 100 {
		t.Errorf("pts: got %d, want 100", f.PTS())
	}
	if f.Storage() != Owned {
		t.Errorf("storage: got %s, want owned", f.Storage())
	}
	if f.TrackIndex() != TrackIndexVideo {
		t.Errorf("track index: got %d, want %d", f.TrackIndex(), TrackIndexVideo)
	}
	if !bytes.Equal(f.Payload(), h264IDR[4:]) {
		t.Errorf("payload: got %x, want %x", f.Payload(), h264IDR[4:])
	}

	a := NewFrame(CodecAAC, []byte{0x21, 0x10}, 0, 0, 0)
	if a.TrackIndex() != TrackIndexAudio {
		t.Errorf("audio track index: got %d, want %d", a.TrackIndex(), TrackIndexAudio)
	}
	if a.TrackType() != TrackAudio {
		t.Errorf("audio track type: got %s, want audio", a.TrackType())
	}
}

func TestNewFramePrefixOutOfRange(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("expected panic for prefix larger than data")
		}
	}()
	NewFrame(CodecH264, []byte{0x65}, 4, 0, 0)
}

func TestFramePredicates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		codec     CodecID
		data      []byte
		prefix    int
		key       bool
		config    bool
		droppable bool
		decodable bool
	}{
		{"h264 sps", CodecH264, h264SPS, 4, false, true, false, false},
		{"h264 pps", CodecH264, h264PPS, 4, false, true, false, false},
		{"h264 idr", CodecH264, h264IDR, 4, true, false, false, true},
		{"h264 sei", CodecH264, h264SEI, 4, false, false, true, false},
		{"h264 p slice 3-byte prefix", CodecH264, h264P, 3, false, false, false, true},
		{"h264 idr continuation slice", CodecH264, []byte{0x65, 0x08, 0x84}, 0, false, false, false, false},
		{"h265 vps", CodecH265, []byte{0x40, 0x01, 0x0C}, 0, false, true, false, false},
		{"h265 idr", CodecH265, []byte{0x26, 0x01, 0xAF}, 0, true, false, false, true},
		{"h265 cra", CodecH265, []byte{0x2A, 0x01, 0x80}, 0, true, false, false, true},
		{"h265 trail", CodecH265, []byte{0x02, 0x01, 0xD0}, 0, false, false, false, true},
		{"h265 aud", CodecH265, []byte{0x46, 0x01, 0x50}, 0, false, false, true, false},
		{"aac", CodecAAC, []byte{0x21, 0x10, 0x04}, 0, true, false, false, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := NewFrame(tt.codec, tt.data, tt.prefix, 0, 0)
			if got := f.KeyFrame(); got != tt.key {
				t.Errorf("KeyFrame: got %v, want %v", got, tt.key)
			}
			if got := f.ConfigFrame(); got != tt.config {
				t.Errorf("ConfigFrame: got %v, want %v", got, tt.config)
			}
			if got := f.Droppable(); got != tt.droppable {
				t.Errorf("Droppable: got %v, want %v", got, tt.droppable)
			}
			if got := f.Decodable(); got != tt.decodable {
				t.Errorf("Decodable: got %v, want %v", got, tt.decodable)
			}
		})
	}
}

func TestToOwned(t *testing.T) {
	t.Parallel()

	buf := append([]byte(nil), h264IDR...)
	borrowed := NewBorrowedFrame(CodecH264, buf, 4, 10, 20)
	owned := borrowed.ToOwned()

	if owned == borrowed {
		t.Fatal("ToOwned returned the borrowed frame")
	}
	if owned.Storage() != Owned {
		t.Errorf("storage: got %s, want owned", owned.Storage())
	}

	buf[4] = 0xFF
	if owned.Data()[4] != 0x65 {
		t.Errorf("owned frame aliases the receive buffer: got %#x", owned.Data()[4])
	}
	if owned.DTS() != 10 || owned.PTS() != 20 {
		t.Errorf("timestamps: got %d/%d, want 10/20", owned.DTS(), owned.PTS())
	}
	if owned.ToOwned() != owned {
		t.Error("ToOwned on an owned frame should return the same frame")
	}
}

func TestWithCopies(t *testing.T) {
	t.Parallel()

	f := NewFrame(CodecAAC, []byte{0x01}, 0, 5, 5)
	g := f.WithTrackIndex(TrackIndexSynthetic)
	h := f.WithTimestamps(7, NoTimestamp)

	if f.TrackIndex() != TrackIndexAudio {
		t.Errorf("original track index changed: got %d", f.TrackIndex())
	}
	if g.TrackIndex() != TrackIndexSynthetic {
		t.Errorf("copy track index: got %d, want %d", g.TrackIndex(), TrackIndexSynthetic)
	}
	if f.DTS() != 5 {
		t.Errorf("original dts changed: got %d", f.DTS())
	}
	if h.DTS() != 7 || h.PTS() != 7 {
		t.Errorf("copy timestamps: got %d/%d, want 7/7", h.DTS(), h.PTS())
	}
}

func TestCodecRegistry(t *testing.T) {
	t.Parallel()

	if CodecH265.String() != "H265" {
		t.Errorf("name: got %q, want H265", CodecH265.String())
	}
	id, ok := CodecByName("mpeg4-generic")
	if !ok || id != CodecAAC {
		t.Errorf("CodecByName: got %v/%v, want %v/true", id, ok, CodecAAC)
	}
	if CodecID(99).TrackType() != TrackInvalid {
		t.Error("unregistered codec should have an invalid track type")
	}
	f := NewFrame(CodecID(99), []byte{0x65, 0x88}, 0, 0, 0)
	if f.KeyFrame() || f.Decodable() {
		t.Error("unregistered codec should not classify frames")
	}
}
