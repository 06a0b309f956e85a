package h264

import (
	"bytes"
	"errors"
	"testing"
)

func TestSplitAnnexB(t *testing.T) {
	t.Parallel()
	data := []byte{
		0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0xE0, 0x1E,
		0x00, 0x00, 0x00, 0x01, 0x68, 0xCE, 0x38, 0x80,
		0x00, 0x00, 0x00, 0x01, 0x65, 0x88, 0x84, 0x00, 0xFF, 0xFE,
	}

	nalus := SplitAnnexB(data)
	if len(nalus) != 3 {
		t.Fatalf("expected 3 NAL units, got %d", len(nalus))
	}

	wantTypes := []byte{NALTypeSPS, NALTypePPS, NALTypeIDR}
	for i, want := range wantTypes {
		if nalus[i].Type != want {
			t.Errorf("NALU[%d]: got type %d, want %d", i, nalus[i].Type, want)
		}
		if nalus[i].PrefixSize() != 4 {
			t.Errorf("NALU[%d]: prefix got %d, want 4", i, nalus[i].PrefixSize())
		}
	}

	if !IsConfig(nalus[0].Data) || !IsConfig(nalus[1].Data) {
		t.Error("SPS/PPS should be config NALs")
	}
	if !IsKeyFrame(nalus[2].Data) {
		t.Error("IsKeyFrame returned false for IDR")
	}
}

func TestSplitAnnexBTrailingZeroAbsorbedByStartCode(t *testing.T) {
	t.Parallel()
	data := []byte{
		0x00, 0x00, 0x00, 0x01, 0x06, 0xAA, 0xBB, 0x00,
		0x00, 0x00, 0x01, 0x41, 0x9A,
	}

	nalus := SplitAnnexB(data)
	if len(nalus) != 2 {
		t.Fatalf("expected 2 NAL units, got %d", len(nalus))
	}
	if nalus[0].Type != NALTypeSEI {
		t.Errorf("expected SEI (6), got %d", nalus[0].Type)
	}
	if len(nalus[0].Data) != 3 {
		t.Errorf("SEI data length: got %d, want 3", len(nalus[0].Data))
	}
	if nalus[1].Type != NALTypeSlice {
		t.Errorf("expected Slice (1), got %d", nalus[1].Type)
	}
}

func TestSplitAnnexBEmpty(t *testing.T) {
	t.Parallel()
	if nalus := SplitAnnexB(nil); len(nalus) != 0 {
		t.Errorf("expected no units for empty input, got %d", len(nalus))
	}
	if nalus := SplitAnnexB([]byte{0x00, 0x01}); len(nalus) != 0 {
		t.Errorf("expected no units for too-short input, got %d", len(nalus))
	}
}

func TestNALPredicates(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		nal       []byte
		key       bool
		config    bool
		droppable bool
		decodable bool
	}{
		{"IDR first slice", []byte{0x65, 0x88}, true, false, false, true},
		{"IDR second slice", []byte{0x65, 0x08}, false, false, false, false},
		{"P slice", []byte{0x41, 0x9A}, false, false, false, true},
		{"SPS", []byte{0x67, 0x42}, false, true, false, false},
		{"PPS", []byte{0x68, 0xCE}, false, true, false, false},
		{"SEI", []byte{0x06, 0x05}, false, false, true, false},
		{"AUD", []byte{0x09, 0xF0}, false, false, true, false},
		{"empty", nil, false, false, false, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsKeyFrame(tt.nal); got != tt.key {
				t.Errorf("IsKeyFrame: got %v, want %v", got, tt.key)
			}
			if got := IsConfig(tt.nal); got != tt.config {
				t.Errorf("IsConfig: got %v, want %v", got, tt.config)
			}
			if got := IsDroppable(tt.nal); got != tt.droppable {
				t.Errorf("IsDroppable: got %v, want %v", got, tt.droppable)
			}
			if got := IsDecodable(tt.nal); got != tt.decodable {
				t.Errorf("IsDecodable: got %v, want %v", got, tt.decodable)
			}
		})
	}
}

func TestParseSPS720p(t *testing.T) {
	t.Parallel()
	sps := []byte{
		0x67, 0x64, 0x00, 0x1f, 0xac, 0xd9, 0x40, 0x50,
		0x05, 0xbb, 0xff, 0x00, 0x03, 0x00, 0x04, 0x6a,
		0x02, 0x02, 0x02, 0x80, 0x00, 0x01, 0xf4, 0x80,
		0x00, 0x5d, 0xc0, 0x07, 0x8c, 0x18, 0xcb,
	}

	info, err := ParseSPS(sps)
	if err != nil {
		t.Fatalf("ParseSPS error: %v", err)
	}
	if info.Width != 1280 {
		t.Errorf("width: got %d, want 1280", info.Width)
	}
	if info.Height != 720 {
		t.Errorf("height: got %d, want 720", info.Height)
	}
	if got := info.ProfileLevelID(); got != "64001F" {
		t.Errorf("ProfileLevelID: got %q, want %q", got, "64001F")
	}
	if got := info.CodecString(); got != "avc1.64001F" {
		t.Errorf("CodecString: got %q, want %q", got, "avc1.64001F")
	}
}

func TestParseSPS256x192(t *testing.T) {
	t.Parallel()
	sps := []byte{
		0x67, 0x4d, 0x40, 0x1f, 0xb9, 0x08, 0x08, 0x0c,
		0xd8, 0x0b, 0x50, 0x10, 0x10, 0x14, 0x00, 0x00,
		0x0f, 0xa4, 0x00, 0x02, 0xee, 0x03, 0x81, 0x80,
		0x04, 0x93, 0xc0, 0x02, 0x49, 0xe8, 0xa0, 0xc0,
		0x3a, 0x8e, 0x18, 0xc9,
	}

	info, err := ParseSPS(sps)
	if err != nil {
		t.Fatalf("ParseSPS error: %v", err)
	}
	if info.Width != 256 {
		t.Errorf("width: got %d, want 256", info.Width)
	}
	if info.Height != 192 {
		t.Errorf("height: got %d, want 192", info.Height)
	}
}

func TestParseSPSTooShort(t *testing.T) {
	t.Parallel()
	if _, err := ParseSPS([]byte{0x67, 0x64, 0x00}); err == nil {
		t.Error("expected error for too-short SPS")
	}
	if _, err := ParseSPS(nil); err == nil {
		t.Error("expected error for nil input")
	}
}

func TestParseSPSVUITimingParams(t *testing.T) {
	t.Parallel()
	sps := []byte{
		0x67, 0x64, 0x00, 0x1f, 0xac, 0xd9, 0x40, 0x50,
		0x05, 0xbb, 0x01, 0x6a, 0x04, 0x04, 0x0a, 0x80,
		0x00, 0x00, 0x03, 0x00, 0x80, 0x00, 0x00, 0x1e,
		0x30, 0x20, 0x00, 0x16, 0xe3, 0x60, 0x00, 0x2d,
		0xc6, 0xd2, 0x49, 0x80, 0x7c, 0x60, 0xc6, 0x58,
	}

	info, err := ParseSPS(sps)
	if err != nil {
		t.Fatalf("ParseSPS error: %v", err)
	}
	if info.Width != 1280 || info.Height != 720 {
		t.Errorf("resolution: got %dx%d, want 1280x720", info.Width, info.Height)
	}
	if !info.PicStructPresent {
		t.Error("expected PicStructPresent=true")
	}
	if !info.HRDPresent {
		t.Error("expected HRDPresent=true")
	}
	if info.CpbRemovalDelayLen != 10 {
		t.Errorf("CpbRemovalDelayLen: got %d, want 10", info.CpbRemovalDelayLen)
	}
	if info.DpbOutputDelayLen != 7 {
		t.Errorf("DpbOutputDelayLen: got %d, want 7", info.DpbOutputDelayLen)
	}
}

func TestParsePicTimingSEI(t *testing.T) {
	t.Parallel()
	sps := SPSInfo{
		PicStructPresent:   true,
		HRDPresent:         true,
		CpbRemovalDelayLen: 10,
		DpbOutputDelayLen:  7,
	}

	tests := []struct {
		name string
		nal  []byte
		sps  SPSInfo
		want Timecode
		ok   bool
	}{
		{
			name: "TC 01:00:00:00 with emulation prevention",
			nal:  []byte{0x06, 0x01, 0x08, 0x00, 0x02, 0x04, 0x12, 0x00, 0x00, 0x03, 0x00, 0x40, 0x80},
			sps:  sps,
			want: Timecode{Hours: 1},
			ok:   true,
		},
		{
			name: "TC 01:00:00:01",
			nal:  []byte{0x06, 0x01, 0x08, 0x00, 0x85, 0x04, 0x12, 0x00, 0x80, 0x00, 0x40, 0x80},
			sps:  sps,
			want: Timecode{Hours: 1, Frames: 1},
			ok:   true,
		},
		{
			name: "no clock_timestamp",
			nal:  []byte{0x06, 0x01, 0x03, 0x00, 0x02, 0x02, 0x80},
			sps:  sps,
			ok:   false,
		},
		{
			name: "no HRD in SPS",
			nal:  []byte{0x06, 0x01, 0x08, 0x00, 0x02, 0x04, 0x12, 0x00, 0x00, 0x03, 0x00, 0x40, 0x80},
			sps:  SPSInfo{PicStructPresent: true},
			ok:   false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParsePicTimingSEI(tt.nal, tt.sps)
			if ok != tt.ok {
				t.Fatalf("ok: got %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("timecode: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimecodeString(t *testing.T) {
	t.Parallel()
	tc := Timecode{Hours: 1, Minutes: 2, Seconds: 3, Frames: 4}
	if got := tc.String(); got != "01:02:03:04" {
		t.Errorf("String(): got %q, want %q", got, "01:02:03:04")
	}
}

func TestDecoderConfigRoundTrip(t *testing.T) {
	t.Parallel()
	sps := []byte{0x67, 0x42, 0xE0, 0x1E, 0x8C, 0x68}
	pps := []byte{0x68, 0xCE, 0x38, 0x80}

	rec := BuildDecoderConfig(sps, pps)
	if rec == nil {
		t.Fatal("BuildDecoderConfig returned nil")
	}
	if rec[1] != 0x42 || rec[2] != 0xE0 || rec[3] != 0x1E {
		t.Errorf("profile bytes: got %x, want 42e01e", rec[1:4])
	}

	gotSPS, gotPPS, err := ParseDecoderConfig(rec)
	if err != nil {
		t.Fatalf("ParseDecoderConfig: %v", err)
	}
	if !bytes.Equal(gotSPS, sps) {
		t.Errorf("sps: got %x, want %x", gotSPS, sps)
	}
	if !bytes.Equal(gotPPS, pps) {
		t.Errorf("pps: got %x, want %x", gotPPS, pps)
	}
}

func TestParseDecoderConfigTruncated(t *testing.T) {
	t.Parallel()
	rec := BuildDecoderConfig([]byte{0x67, 0x42, 0xE0, 0x1E}, []byte{0x68, 0xCE})
	_, _, err := ParseDecoderConfig(rec[:len(rec)-1])
	if !errors.Is(err, ErrInvalidDecoderConfig) {
		t.Fatalf("expected ErrInvalidDecoderConfig, got %v", err)
	}
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if pe.Field != "pictureParameterSet" {
		t.Errorf("field: got %q, want %q", pe.Field, "pictureParameterSet")
	}
}
