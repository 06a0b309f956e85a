// Package h264 implements the H.264 bitstream helpers used by the RTP
// and track layers: NAL classification, Annex B splitting, SPS parsing
// and AVC decoder configuration records.
package h264

import "github.com/zsiec/rtpmedia/internal/annexb"

// H.264 NAL unit type constants as defined in ITU-T H.264 Table 7-1.
const (
	NALTypeSlice      = 1
	NALTypeIDR        = 5
	NALTypeSEI        = 6
	NALTypeSPS        = 7
	NALTypePPS        = 8
	NALTypeAUD        = 9
	NALTypeFillerData = 12

	// RTP payload structures (RFC 6184).
	NALTypeSTAPA = 24
	NALTypeFUA   = 28
)

// StartCode is the 4-byte Annex B start code.
var StartCode = []byte{0x00, 0x00, 0x00, 0x01}

// NALType extracts the 5-bit NAL unit type from a NAL header byte.
func NALType(header byte) byte {
	return header & 0x1F
}

// NALUnit represents one NAL unit located in an Annex B stream.
type NALUnit struct {
	Type byte   // 5-bit NAL type
	Data []byte // NAL data including the header byte, without start code
	Raw  []byte // NAL data including its start code
}

// PrefixSize returns the length of the start code in Raw.
func (n NALUnit) PrefixSize() int { return len(n.Raw) - len(n.Data) }

// SplitAnnexB parses an Annex B byte stream into individual NAL units. It
// recognizes both 3-byte (0x000001) and 4-byte (0x00000001) start codes.
func SplitAnnexB(data []byte) []NALUnit {
	units := annexb.Split(data, 1)
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

// PrefixSize returns the Annex B start-code length at the head of data.
func PrefixSize(data []byte) int {
	return annexb.PrefixSize(data)
}

// IsKeyFrame reports whether nal (header byte first) is the first slice of
// an IDR picture.
func IsKeyFrame(nal []byte) bool {
	return len(nal) > 0 && NALType(nal[0]) == NALTypeIDR && IsDecodable(nal)
}

// IsConfig reports whether nal is an SPS or PPS.
func IsConfig(nal []byte) bool {
	if len(nal) == 0 {
		return false
	}
	switch NALType(nal[0]) {
	case NALTypeSPS, NALTypePPS:
		return true
	}
	return false
}

// IsDroppable reports whether nal carries no picture data (SEI or AUD).
func IsDroppable(nal []byte) bool {
	if len(nal) == 0 {
		return false
	}
	switch NALType(nal[0]) {
	case NALTypeSEI, NALTypeAUD:
		return true
	}
	return false
}

// IsDecodable reports whether nal is a slice that starts a new picture
// (first_mb_in_slice == 0).
func IsDecodable(nal []byte) bool {
	if len(nal) < 2 {
		return false
	}
	t := NALType(nal[0])
	return t >= NALTypeSlice && t <= NALTypeIDR && nal[1]&0x80 != 0
}
