package h264

import (
	"errors"
	"fmt"

	"github.com/zsiec/rtpmedia/internal/bitio"
)

var errSPSTooShort = errors.New("h264: SPS data too short")

// SPSInfo holds parameters extracted from an H.264 Sequence Parameter Set,
// including resolution, profile/level identifiers, frame rate and the HRD
// timing fields needed for pic_timing SEI parsing.
type SPSInfo struct {
	Width              int
	Height             int
	ProfileIDC         byte
	ConstraintFlags    byte
	LevelIDC           byte
	FPS                float64
	PicStructPresent   bool
	HRDPresent         bool
	CpbRemovalDelayLen int
	DpbOutputDelayLen  int
	TimeOffsetLen      int
}

// CodecString returns the RFC 6381 codec parameter string (e.g. "avc1.42E01E").
func (s SPSInfo) CodecString() string {
	return "avc1." + s.ProfileLevelID()
}

// ProfileLevelID returns the SDP profile-level-id value (e.g. "42E01E").
func (s SPSInfo) ProfileLevelID() string {
	return fmt.Sprintf("%02X%02X%02X", s.ProfileIDC, s.ConstraintFlags, s.LevelIDC)
}

// ParseSPS parses an H.264 SPS NAL unit to extract resolution, profile/level,
// frame rate and VUI/HRD timing parameters. The input is the raw NAL data
// including the NAL header byte but without the start code.
func ParseSPS(nalu []byte) (SPSInfo, error) {
	if len(nalu) < 4 {
		return SPSInfo{}, errSPSTooShort
	}

	br := bitio.NewReader(bitio.RemoveEmulationPrevention(nalu[1:]))

	profileIdc, err := br.ReadBits(8)
	if err != nil {
		return SPSInfo{}, err
	}
	constraintFlags, err := br.ReadBits(8)
	if err != nil {
		return SPSInfo{}, err
	}
	levelIdc, err := br.ReadBits(8)
	if err != nil {
		return SPSInfo{}, err
	}
	if _, err := br.ReadUE(); err != nil {
		return SPSInfo{}, err
	}

	chromaFormatIdc := uint(1)
	separateColourPlane := false

	switch profileIdc {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134:
		chromaFormatIdc, err = br.ReadUE()
		if err != nil {
			return SPSInfo{}, err
		}
		if chromaFormatIdc == 3 {
			val, err := br.ReadBits(1)
			if err != nil {
				return SPSInfo{}, err
			}
			separateColourPlane = val == 1
		}
		// bit_depth_luma_minus8, bit_depth_chroma_minus8
		if _, err := br.ReadUE(); err != nil {
			return SPSInfo{}, err
		}
		if _, err := br.ReadUE(); err != nil {
			return SPSInfo{}, err
		}
		// qpprime_y_zero_transform_bypass_flag
		if err := br.Skip(1); err != nil {
			return SPSInfo{}, err
		}

		seqScalingMatrixPresent, err := br.ReadBits(1)
		if err != nil {
			return SPSInfo{}, err
		}
		if seqScalingMatrixPresent == 1 {
			limit := 8
			if chromaFormatIdc == 3 {
				limit = 12
			}
			for i := 0; i < limit; i++ {
				flag, err := br.ReadBits(1)
				if err != nil {
					return SPSInfo{}, err
				}
				if flag == 1 {
					size := 16
					if i >= 6 {
						size = 64
					}
					if err := br.SkipScalingList(size); err != nil {
						return SPSInfo{}, err
					}
				}
			}
		}
	}

	// log2_max_frame_num_minus4
	if _, err := br.ReadUE(); err != nil {
		return SPSInfo{}, err
	}

	picOrderCntType, err := br.ReadUE()
	if err != nil {
		return SPSInfo{}, err
	}

	switch picOrderCntType {
	case 0:
		if _, err := br.ReadUE(); err != nil {
			return SPSInfo{}, err
		}
	case 1:
		if err := br.Skip(1); err != nil {
			return SPSInfo{}, err
		}
		if _, err := br.ReadSE(); err != nil {
			return SPSInfo{}, err
		}
		if _, err := br.ReadSE(); err != nil {
			return SPSInfo{}, err
		}
		numRefFrames, err := br.ReadUE()
		if err != nil {
			return SPSInfo{}, err
		}
		for i := uint(0); i < numRefFrames; i++ {
			if _, err := br.ReadSE(); err != nil {
				return SPSInfo{}, err
			}
		}
	}

	// max_num_ref_frames, gaps_in_frame_num_value_allowed_flag
	if _, err := br.ReadUE(); err != nil {
		return SPSInfo{}, err
	}
	if err := br.Skip(1); err != nil {
		return SPSInfo{}, err
	}

	picWidthMbs, err := br.ReadUE()
	if err != nil {
		return SPSInfo{}, err
	}
	picHeightMapUnits, err := br.ReadUE()
	if err != nil {
		return SPSInfo{}, err
	}

	frameMbsOnly, err := br.ReadBits(1)
	if err != nil {
		return SPSInfo{}, err
	}
	if frameMbsOnly == 0 {
		if err := br.Skip(1); err != nil {
			return SPSInfo{}, err
		}
	}

	// direct_8x8_inference_flag
	if err := br.Skip(1); err != nil {
		return SPSInfo{}, err
	}

	cropLeft, cropRight, cropTop, cropBottom := uint(0), uint(0), uint(0), uint(0)
	frameCroppingFlag, err := br.ReadBits(1)
	if err != nil {
		return SPSInfo{}, err
	}
	if frameCroppingFlag == 1 {
		for _, v := range []*uint{&cropLeft, &cropRight, &cropTop, &cropBottom} {
			if *v, err = br.ReadUE(); err != nil {
				return SPSInfo{}, err
			}
		}
	}

	chromaArrayType := chromaFormatIdc
	if separateColourPlane {
		chromaArrayType = 0
	}
	var subWidthC, subHeightC uint
	switch chromaArrayType {
	case 0, 3:
		subWidthC, subHeightC = 1, 1
	case 2:
		subWidthC, subHeightC = 2, 1
	default:
		subWidthC, subHeightC = 2, 2
	}

	cropUnitX := subWidthC
	cropUnitY := subHeightC * (2 - frameMbsOnly)

	info := SPSInfo{
		Width:           int((picWidthMbs+1)*16 - cropUnitX*(cropLeft+cropRight)),
		Height:          int((picHeightMapUnits+1)*16*(2-frameMbsOnly) - cropUnitY*(cropTop+cropBottom)),
		ProfileIDC:      byte(profileIdc),
		ConstraintFlags: byte(constraintFlags),
		LevelIDC:        byte(levelIdc),
	}

	vuiPresent, err := br.ReadBits(1)
	if err != nil || vuiPresent == 0 {
		return info, nil
	}
	parseVUI(br, &info)
	return info, nil
}

// parseVUI reads the VUI fields after the SPS core. A truncated VUI leaves
// the remaining fields at their zero values.
func parseVUI(br *bitio.Reader, info *SPSInfo) {
	arPresent, _ := br.ReadBits(1)
	if arPresent == 1 {
		arIdc, _ := br.ReadBits(8)
		if arIdc == 255 {
			br.Skip(32)
		}
	}

	overscan, _ := br.ReadBits(1)
	if overscan == 1 {
		br.Skip(1)
	}

	videoSignal, _ := br.ReadBits(1)
	if videoSignal == 1 {
		br.Skip(4) // video_format + video_full_range
		colourDesc, _ := br.ReadBits(1)
		if colourDesc == 1 {
			br.Skip(24)
		}
	}

	chromaLoc, _ := br.ReadBits(1)
	if chromaLoc == 1 {
		br.ReadUE()
		br.ReadUE()
	}

	timingPresent, _ := br.ReadBits(1)
	if timingPresent == 1 {
		numUnitsInTick, _ := br.ReadBits(32)
		timeScale, err := br.ReadBits(32)
		br.Skip(1) // fixed_frame_rate_flag
		if err == nil && numUnitsInTick > 0 {
			info.FPS = float64(timeScale) / float64(2*numUnitsInTick)
		}
	}

	parseHRD := func() {
		cpbCnt, _ := br.ReadUE()
		br.Skip(8) // bit_rate_scale + cpb_size_scale
		for i := uint(0); i <= cpbCnt; i++ {
			br.ReadUE()
			br.ReadUE()
			br.Skip(1)
		}
		br.Skip(5) // initial_cpb_removal_delay_length_minus1
		cpbRdLen, _ := br.ReadBits(5)
		dpbOdLen, _ := br.ReadBits(5)
		toLen, _ := br.ReadBits(5)
		info.CpbRemovalDelayLen = int(cpbRdLen) + 1
		info.DpbOutputDelayLen = int(dpbOdLen) + 1
		info.TimeOffsetLen = int(toLen)
		info.HRDPresent = true
	}

	nalHRD, _ := br.ReadBits(1)
	if nalHRD == 1 {
		parseHRD()
	}
	vclHRD, _ := br.ReadBits(1)
	if vclHRD == 1 && !info.HRDPresent {
		parseHRD()
	}
	if nalHRD == 1 || vclHRD == 1 {
		br.Skip(1) // low_delay_hrd_flag
	}

	picStructPresent, _ := br.ReadBits(1)
	info.PicStructPresent = picStructPresent == 1
}
