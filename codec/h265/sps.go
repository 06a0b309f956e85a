package h265

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/zsiec/rtpmedia/internal/bitio"
)

var errSPSTooShort = errors.New("h265: SPS data too short")

// SPSInfo holds parameters extracted from an HEVC SPS NAL unit.
type SPSInfo struct {
	Width      int
	Height     int
	ProfileIDC byte
	TierFlag   byte
	LevelIDC   byte

	ProfileCompatibilityFlags uint32
	ConstraintIndicatorFlags  uint64

	ChromaFormatIdc      byte
	BitDepthLumaMinus8   byte
	BitDepthChromaMinus8 byte
}

// CodecString returns the RFC 6381 codec parameter string (e.g.
// "hev1.1.6.L93.B0").
func (s SPSInfo) CodecString() string {
	tier := "L"
	if s.TierFlag == 1 {
		tier = "H"
	}

	reversed := bits.Reverse32(s.ProfileCompatibilityFlags)

	// 6 constraint bytes from the 48-bit field, trailing zeros trimmed
	var constraintBytes [6]byte
	for i := 0; i < 6; i++ {
		constraintBytes[i] = byte((s.ConstraintIndicatorFlags >> uint((5-i)*8)) & 0xFF)
	}
	lastNonZero := -1
	for i := 5; i >= 0; i-- {
		if constraintBytes[i] != 0 {
			lastNonZero = i
			break
		}
	}

	codec := fmt.Sprintf("hev1.%d.%X.%s%d", s.ProfileIDC, reversed, tier, s.LevelIDC)
	for i := 0; i <= lastNonZero; i++ {
		codec += fmt.Sprintf(".%X", constraintBytes[i])
	}
	return codec
}

// ParseSPS parses an HEVC SPS NAL unit to extract resolution and
// profile/tier/level. The input is the raw NAL data including the 2-byte
// NAL header.
func ParseSPS(nalu []byte) (SPSInfo, error) {
	if len(nalu) < 4 {
		return SPSInfo{}, errSPSTooShort
	}

	br := bitio.NewReader(bitio.RemoveEmulationPrevention(nalu[2:]))

	// sps_video_parameter_set_id
	if err := br.Skip(4); err != nil {
		return SPSInfo{}, err
	}
	maxSubLayersMinus1, err := br.ReadBits(3)
	if err != nil {
		return SPSInfo{}, err
	}
	// sps_temporal_id_nesting_flag
	if err := br.Skip(1); err != nil {
		return SPSInfo{}, err
	}

	info := SPSInfo{}
	if err := parseProfileTierLevel(br, &info, maxSubLayersMinus1); err != nil {
		return SPSInfo{}, err
	}

	// sps_seq_parameter_set_id
	if _, err := br.ReadUE(); err != nil {
		return SPSInfo{}, err
	}

	chromaFormatIdc, err := br.ReadUE()
	if err != nil {
		return SPSInfo{}, err
	}
	info.ChromaFormatIdc = byte(chromaFormatIdc)
	if chromaFormatIdc == 3 {
		// separate_colour_plane_flag
		if err := br.Skip(1); err != nil {
			return SPSInfo{}, err
		}
	}

	width, err := br.ReadUE()
	if err != nil {
		return SPSInfo{}, err
	}
	height, err := br.ReadUE()
	if err != nil {
		return SPSInfo{}, err
	}
	info.Width = int(width)
	info.Height = int(height)

	confWindowFlag, err := br.ReadBits(1)
	if err != nil {
		return info, nil
	}
	if confWindowFlag == 1 {
		var win [4]uint
		for i := range win {
			if win[i], err = br.ReadUE(); err != nil {
				return info, nil
			}
		}

		var subWidthC, subHeightC uint
		switch chromaFormatIdc {
		case 1:
			subWidthC, subHeightC = 2, 2
		case 2:
			subWidthC, subHeightC = 2, 1
		default:
			subWidthC, subHeightC = 1, 1
		}
		info.Width -= int((win[0] + win[1]) * subWidthC)
		info.Height -= int((win[2] + win[3]) * subHeightC)
	}

	bdl, err := br.ReadUE()
	if err != nil {
		return info, nil
	}
	info.BitDepthLumaMinus8 = byte(bdl)

	bdc, err := br.ReadUE()
	if err != nil {
		return info, nil
	}
	info.BitDepthChromaMinus8 = byte(bdc)

	return info, nil
}

func parseProfileTierLevel(br *bitio.Reader, info *SPSInfo, maxSubLayersMinus1 uint) error {
	// general_profile_space
	if err := br.Skip(2); err != nil {
		return err
	}

	tierFlag, err := br.ReadBits(1)
	if err != nil {
		return err
	}
	info.TierFlag = byte(tierFlag)

	profileIDC, err := br.ReadBits(5)
	if err != nil {
		return err
	}
	info.ProfileIDC = byte(profileIDC)

	pcf, err := br.ReadBits(32)
	if err != nil {
		return err
	}
	info.ProfileCompatibilityFlags = uint32(pcf)

	cif, err := br.ReadBits(48)
	if err != nil {
		return err
	}
	info.ConstraintIndicatorFlags = uint64(cif)

	levelIDC, err := br.ReadBits(8)
	if err != nil {
		return err
	}
	info.LevelIDC = byte(levelIDC)

	if maxSubLayersMinus1 == 0 {
		return nil
	}

	var subLayerProfilePresent, subLayerLevelPresent [8]bool
	for i := uint(0); i < maxSubLayersMinus1; i++ {
		pp, err := br.ReadBits(1)
		if err != nil {
			return err
		}
		subLayerProfilePresent[i] = pp == 1
		lp, err := br.ReadBits(1)
		if err != nil {
			return err
		}
		subLayerLevelPresent[i] = lp == 1
	}
	for i := maxSubLayersMinus1; i < 8; i++ {
		if err := br.Skip(2); err != nil {
			return err
		}
	}
	for i := uint(0); i < maxSubLayersMinus1; i++ {
		if subLayerProfilePresent[i] {
			// sub_layer profile: 2+1+5+32+48 = 88 bits
			if err := br.Skip(88); err != nil {
				return err
			}
		}
		if subLayerLevelPresent[i] {
			if err := br.Skip(8); err != nil {
				return err
			}
		}
	}
	return nil
}
