package h265

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrInvalidDecoderConfig is returned when an HEVCDecoderConfigurationRecord
// cannot be parsed.
var ErrInvalidDecoderConfig = errors.New("h265: invalid decoder configuration record")

// ParseError indicates a failure to parse a decoder configuration record
// field.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("h265: parse %s: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

const hvcCHeaderSize = 23

// BuildDecoderConfig builds an HEVCDecoderConfigurationRecord
// (ISO 14496-15 §8.3.3.1.2) from raw VPS, SPS and PPS NAL data without
// start codes. It returns nil if the SPS cannot be parsed.
func BuildDecoderConfig(vps, sps, pps []byte) []byte {
	if len(sps) < 4 || len(pps) == 0 || len(vps) == 0 {
		return nil
	}

	info, err := ParseSPS(sps)
	if err != nil {
		return nil
	}

	buf := make([]byte, 0, hvcCHeaderSize+5+len(vps)+5+len(sps)+5+len(pps))

	buf = append(buf, 1) // configurationVersion

	// general_profile_space(2) + general_tier_flag(1) + general_profile_idc(5)
	buf = append(buf, info.TierFlag<<5|info.ProfileIDC)

	var pcf [4]byte
	binary.BigEndian.PutUint32(pcf[:], info.ProfileCompatibilityFlags)
	buf = append(buf, pcf[:]...)

	// general_constraint_indicator_flags (6 bytes)
	for i := 5; i >= 0; i-- {
		buf = append(buf, byte(info.ConstraintIndicatorFlags>>(i*8)))
	}

	buf = append(buf, info.LevelIDC)

	// min_spatial_segmentation_idc (12 bits) with 4 reserved bits
	buf = append(buf, 0xF0, 0x00)
	// parallelismType (2 bits) with 6 reserved bits
	buf = append(buf, 0xFC)
	buf = append(buf, 0xFC|info.ChromaFormatIdc&0x03)
	buf = append(buf, 0xF8|info.BitDepthLumaMinus8&0x07)
	buf = append(buf, 0xF8|info.BitDepthChromaMinus8&0x07)
	// avgFrameRate
	buf = append(buf, 0x00, 0x00)
	// constantFrameRate(2) numTemporalLayers(3) temporalIdNested(1) lengthSizeMinusOne(2)
	buf = append(buf, 0x0F)

	buf = append(buf, 3) // numOfArrays
	for _, nal := range [][]byte{vps, sps, pps} {
		buf = append(buf, NALType(nal[0])&0x3F) // array_completeness(0) | NAL_unit_type
		buf = append(buf, 0x00, 0x01)           // numNalus
		buf = append(buf, byte(len(nal)>>8), byte(len(nal)))
		buf = append(buf, nal...)
	}

	return buf
}

// ParseDecoderConfig extracts the first VPS, SPS and PPS from an
// HEVCDecoderConfigurationRecord. The returned slices alias rec.
func ParseDecoderConfig(rec []byte) (vps, sps, pps []byte, err error) {
	if len(rec) < hvcCHeaderSize {
		return nil, nil, nil, &ParseError{Field: "header", Err: ErrInvalidDecoderConfig}
	}
	if rec[0] != 1 {
		return nil, nil, nil, &ParseError{Field: "configurationVersion", Err: ErrInvalidDecoderConfig}
	}

	pos := hvcCHeaderSize - 1
	numArrays := int(rec[pos])
	pos++
	for a := 0; a < numArrays; a++ {
		if pos+3 > len(rec) {
			return nil, nil, nil, &ParseError{Field: "array", Err: ErrInvalidDecoderConfig}
		}
		nalType := rec[pos] & 0x3F
		numNalus := int(binary.BigEndian.Uint16(rec[pos+1:]))
		pos += 3
		for i := 0; i < numNalus; i++ {
			if pos+2 > len(rec) {
				return nil, nil, nil, &ParseError{Field: "nalUnitLength", Err: ErrInvalidDecoderConfig}
			}
			n := int(binary.BigEndian.Uint16(rec[pos:]))
			pos += 2
			if n == 0 || pos+n > len(rec) {
				return nil, nil, nil, &ParseError{Field: "nalUnit", Err: ErrInvalidDecoderConfig}
			}
			nal := rec[pos : pos+n]
			pos += n
			switch {
			case nalType == NALTypeVPS && vps == nil:
				vps = nal
			case nalType == NALTypeSPS && sps == nil:
				sps = nal
			case nalType == NALTypePPS && pps == nil:
				pps = nal
			}
		}
	}

	if vps == nil || sps == nil || pps == nil {
		return nil, nil, nil, &ParseError{Field: "parameterSets", Err: ErrInvalidDecoderConfig}
	}
	return vps, sps, pps, nil
}
