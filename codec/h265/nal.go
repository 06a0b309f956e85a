// Package h265 implements the H.265/HEVC bitstream helpers used by the RTP
// and track layers.
package h265

import "github.com/zsiec/rtpmedia/internal/annexb"

// H.265/HEVC NAL unit type constants as defined in ITU-T H.265 Table 7-1.
const (
	NALTypeTrailN       = 0
	NALTypeTrailR       = 1
	NALTypeBLAWLP       = 16
	NALTypeIDRWRadl     = 19
	NALTypeIDRNLP       = 20
	NALTypeCRA          = 21
	NALTypeRsvIRAPVCL23 = 23
	NALTypeVPS          = 32
	NALTypeSPS          = 33
	NALTypePPS          = 34
	NALTypeAUD          = 35
	NALTypeFillerData   = 38
	NALTypeSEIPrefix    = 39
	NALTypeSEISuffix    = 40

	// RTP payload structures (RFC 7798).
	NALTypeAP   = 48
	NALTypeFU   = 49
	NALTypePACI = 50
)

// NALType extracts the NAL unit type from the first byte of an HEVC
// 2-byte NAL header: forbidden(1) | type(6) | layerID_high(1).
func NALType(firstByte byte) byte {
	return (firstByte >> 1) & 0x3F
}

// NALUnit represents one NAL unit located in an Annex B stream.
type NALUnit struct {
	Type byte   // 6-bit NAL type
	Data []byte // NAL data including the 2-byte header, without start code
	Raw  []byte // NAL data including its start code
}

// PrefixSize returns the length of the start code in Raw.
func (n NALUnit) PrefixSize() int { return len(n.Raw) - len(n.Data) }

// SplitAnnexB parses an Annex B byte stream into NAL units using the HEVC
// 2-byte NAL header for type extraction.
func SplitAnnexB(data []byte) []NALUnit {
	units := annexb.Split(data, 2)
	out := make([]NALUnit, 0, len(units))
	for _, u := range units {
		out = append(out, NALUnit{
			Type: NALType(data[u.Data]),
			Data: data[u.Data:u.End],
			Raw:  data[u.Start:u.End],
		})
	}
	return out
}

// IsIRAP reports whether the NAL type is a random access point (BLA, IDR,
// CRA or a reserved IRAP type).
func IsIRAP(nalType byte) bool {
	return nalType >= NALTypeBLAWLP && nalType <= NALTypeRsvIRAPVCL23
}

// IsKeyFrame reports whether nal is the first slice segment of an IRAP
// picture.
func IsKeyFrame(nal []byte) bool {
	return len(nal) > 0 && IsIRAP(NALType(nal[0])) && IsDecodable(nal)
}

// IsConfig reports whether nal is a VPS, SPS or PPS.
func IsConfig(nal []byte) bool {
	if len(nal) == 0 {
		return false
	}
	switch NALType(nal[0]) {
	case NALTypeVPS, NALTypeSPS, NALTypePPS:
		return true
	}
	return false
}

// IsDroppable reports whether nal carries no picture data (AUD or SEI).
func IsDroppable(nal []byte) bool {
	if len(nal) == 0 {
		return false
	}
	switch NALType(nal[0]) {
	case NALTypeAUD, NALTypeSEIPrefix, NALTypeSEISuffix:
		return true
	}
	return false
}

// IsDecodable reports whether nal is a VCL slice segment that starts a new
// picture (first_slice_segment_in_pic_flag set).
func IsDecodable(nal []byte) bool {
	if len(nal) < 3 {
		return false
	}
	t := NALType(nal[0])
	return t <= NALTypeRsvIRAPVCL23 && nal[2]&0x80 != 0
}
