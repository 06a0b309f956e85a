package rtpcodec

import (
	"errors"
	"testing"

	"github.com/zsiec/rtpmedia/media"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	var out frameLog
	var log packetLog
	factory := newTestFactory(90000)

	tests := []struct {
		codec   media.CodecID
		wantErr bool
	}{
		{media.CodecH264, false},
		{media.CodecH265, false},
		{media.CodecAAC, false},
		{media.CodecOpus, true},
		{media.CodecG711A, true},
	}
	for _, tt := range tests {
		d, err := NewDepacketizer(tt.codec, &out, DefaultConfig())
		if tt.wantErr {
			if !errors.Is(err, ErrUnsupportedCodec) {
				t.Errorf("%v: depacketizer error = %v, want ErrUnsupportedCodec", tt.codec, err)
			}
			continue
		}
		if err != nil || d == nil {
			t.Fatalf("%v: NewDepacketizer: %v", tt.codec, err)
		}
		if d.State() != StateIdle {
			t.Errorf("%v: new depacketizer state = %v", tt.codec, d.State())
		}
		p, err := NewPacketizer(tt.codec, factory, log.sink, DefaultConfig())
		if err != nil || p == nil {
			t.Fatalf("%v: NewPacketizer: %v", tt.codec, err)
		}
	}
}

func TestRegistryMissingConstructor(t *testing.T) {
	t.Parallel()

	Register(media.CodecL16, Codec{})
	if _, err := NewDepacketizer(media.CodecL16, &frameLog{}, Config{}); !errors.Is(err, ErrUnsupportedCodec) {
		t.Errorf("got %v, want ErrUnsupportedCodec", err)
	}
	if _, err := NewPacketizer(media.CodecL16, newTestFactory(8000), (&packetLog{}).sink, Config{}); !errors.Is(err, ErrUnsupportedCodec) {
		t.Errorf("got %v, want ErrUnsupportedCodec", err)
	}
}

func TestFactoryMakeRTP(t *testing.T) {
	t.Parallel()

	f := NewPacketFactory(7, 97, 48000, nil)
	src := []byte{1, 2, 3}
	pkt := f.MakeRTP(media.TrackAudio, src, 5, true, 20)
	src[0] = 9

	if pkt.Version != 2 || pkt.SSRC != 7 || pkt.PayloadType != 97 || !pkt.Marker {
		t.Errorf("unexpected header %+v", pkt.Header)
	}
	if pkt.Timestamp != 960 {
		t.Errorf("timestamp = %d, want 960", pkt.Timestamp)
	}
	if want := []byte{1, 2, 3, 0, 0}; string(pkt.Payload) != string(want) {
		t.Errorf("payload = %v, want %v", pkt.Payload, want)
	}
	next := f.MakeRTP(media.TrackAudio, nil, 0, false, 40)
	if next.SequenceNumber != pkt.SequenceNumber+1 {
		t.Errorf("sequence %d does not follow %d", next.SequenceNumber, pkt.SequenceNumber)
	}
}

func TestSeqTracker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		seqs     []uint16
		wantLost int
		wantGap  bool
	}{
		{"first packet", []uint16{500}, 0, false},
		{"in order", []uint16{1, 2}, 0, false},
		{"wrap", []uint16{65535, 0}, 0, false},
		{"two lost", []uint16{10, 13}, 2, true},
		{"lost across wrap", []uint16{65534, 1}, 2, true},
		{"duplicate", []uint16{10, 10}, 65535, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var s seqTracker
			var lost int
			var gap bool
			for _, seq := range tt.seqs {
				lost, gap = s.observe(seq)
			}
			if lost != tt.wantLost || gap != tt.wantGap {
				t.Errorf("got (%d, %v), want (%d, %v)", lost, gap, tt.wantLost, tt.wantGap)
			}
		})
	}
}
