package h264

import (
	"errors"
	"fmt"
)

// ErrInvalidDecoderConfig is returned when an AVCDecoderConfigurationRecord
// cannot be parsed.
var ErrInvalidDecoderConfig = errors.New("h264: invalid decoder configuration record")

// ParseError indicates a failure to parse a decoder configuration record
// field. It records which field was being read.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("h264: parse %s: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// BuildDecoderConfig builds an AVCDecoderConfigurationRecord
// (ISO 14496-15 §5.2.4.1.1) from raw SPS and PPS NAL data without start
// codes. It returns nil if the SPS is too short to carry a profile.
func BuildDecoderConfig(sps, pps []byte) []byte {
	if len(sps) < 4 || len(pps) == 0 {
		return nil
	}

	buf := make([]byte, 0, 11+len(sps)+len(pps))
	buf = append(buf, 1)      // configurationVersion
	buf = append(buf, sps[1]) // AVCProfileIndication
	buf = append(buf, sps[2]) // profile_compatibility
	buf = append(buf, sps[3]) // AVCLevelIndication
	buf = append(buf, 0xFF)   // lengthSizeMinusOne = 3 | reserved 0xFC
	buf = append(buf, 0xE1)   // numOfSequenceParameterSets = 1 | reserved 0xE0

	buf = append(buf, byte(len(sps)>>8), byte(len(sps)))
	buf = append(buf, sps...)

	buf = append(buf, 1) // numOfPictureParameterSets
	buf = append(buf, byte(len(pps)>>8), byte(len(pps)))
	buf = append(buf, pps...)

	return buf
}

// ParseDecoderConfig extracts the first SPS and PPS from an
// AVCDecoderConfigurationRecord. The returned slices alias rec.
func ParseDecoderConfig(rec []byte) (sps, pps []byte, err error) {
	if len(rec) < 7 {
		return nil, nil, &ParseError{Field: "header", Err: ErrInvalidDecoderConfig}
	}
	if rec[0] != 1 {
		return nil, nil, &ParseError{Field: "configurationVersion", Err: ErrInvalidDecoderConfig}
	}

	pos := 5
	numSPS := int(rec[pos] & 0x1F)
	pos++
	for i := 0; i < numSPS; i++ {
		nal, next, err := readLengthPrefixed(rec, pos, "sequenceParameterSet")
		if err != nil {
			return nil, nil, err
		}
		if sps == nil {
			sps = nal
		}
		pos = next
	}

	if pos >= len(rec) {
		return nil, nil, &ParseError{Field: "numOfPictureParameterSets", Err: ErrInvalidDecoderConfig}
	}
	numPPS := int(rec[pos])
	pos++
	for i := 0; i < numPPS; i++ {
		nal, next, err := readLengthPrefixed(rec, pos, "pictureParameterSet")
		if err != nil {
			return nil, nil, err
		}
		if pps == nil {
			pps = nal
		}
		pos = next
	}

	if sps == nil || pps == nil {
		return nil, nil, &ParseError{Field: "parameterSets", Err: ErrInvalidDecoderConfig}
	}
	return sps, pps, nil
}

func readLengthPrefixed(rec []byte, pos int, field string) ([]byte, int, error) {
	if pos+2 > len(rec) {
		return nil, 0, &ParseError{Field: field + "Length", Err: ErrInvalidDecoderConfig}
	}
	n := int(rec[pos])<<8 | int(rec[pos+1])
	pos += 2
	if n == 0 || pos+n > len(rec) {
		return nil, 0, &ParseError{Field: field, Err: ErrInvalidDecoderConfig}
	}
	return rec[pos : pos+n], pos + n, nil
}
