package h264

import (
	"fmt"

	"github.com/zsiec/rtpmedia/internal/bitio"
)

// Timecode represents a SMPTE 12M timecode extracted from an H.264
// pic_timing SEI message.
type Timecode struct {
	Hours   int
	Minutes int
	Seconds int
	Frames  int
}

// String formats the timecode as HH:MM:SS:FF.
func (tc Timecode) String() string {
	return fmt.Sprintf("%02d:%02d:%02d:%02d", tc.Hours, tc.Minutes, tc.Seconds, tc.Frames)
}

// ParsePicTimingSEI extracts a SMPTE 12M timecode from an H.264 pic_timing
// SEI message. It requires the HRD parameters of the active SPS and
// returns false when the SEI carries no clock timestamp.
func ParsePicTimingSEI(seiNALU []byte, sps SPSInfo) (Timecode, bool) {
	if len(seiNALU) < 2 {
		return Timecode{}, false
	}
	if !sps.PicStructPresent || !sps.HRDPresent {
		return Timecode{}, false
	}

	rbsp := bitio.RemoveEmulationPrevention(seiNALU[1:])
	i := 0
	for i < len(rbsp) {
		if rbsp[i] == 0x80 {
			break
		}

		payloadType := 0
		for i < len(rbsp) && rbsp[i] == 0xFF {
			payloadType += 255
			i++
		}
		if i >= len(rbsp) {
			break
		}
		payloadType += int(rbsp[i])
		i++

		payloadSize := 0
		for i < len(rbsp) && rbsp[i] == 0xFF {
			payloadSize += 255
			i++
		}
		if i >= len(rbsp) {
			break
		}
		payloadSize += int(rbsp[i])
		i++

		if i+payloadSize > len(rbsp) {
			break
		}

		if payloadType == 1 {
			if tc, ok := parsePicTimingPayload(rbsp[i:i+payloadSize], sps); ok {
				return tc, true
			}
		}
		i += payloadSize
	}

	return Timecode{}, false
}

func parsePicTimingPayload(payload []byte, sps SPSInfo) (Timecode, bool) {
	br := bitio.NewReader(payload)

	br.Skip(sps.CpbRemovalDelayLen)
	br.Skip(sps.DpbOutputDelayLen)

	picStruct, err := br.ReadBits(4)
	if err != nil {
		return Timecode{}, false
	}

	numClockTS := 1
	switch picStruct {
	case 3, 4:
		numClockTS = 2
	case 5, 6, 7, 8:
		numClockTS = 3
	}

	for c := 0; c < numClockTS; c++ {
		clockTSFlag, err := br.ReadBits(1)
		if err != nil {
			return Timecode{}, false
		}
		if clockTSFlag == 0 {
			continue
		}

		br.Skip(2) // ct_type
		br.Skip(1) // nuit_field_based_flag
		br.Skip(5) // counting_type
		fullTSFlag, _ := br.ReadBits(1)
		br.Skip(1) // discontinuity_flag
		br.Skip(1) // cnt_dropped_flag
		nFrames, _ := br.ReadBits(8)

		var secs, mins, hours uint
		if fullTSFlag == 1 {
			secs, _ = br.ReadBits(6)
			mins, _ = br.ReadBits(6)
			hours, _ = br.ReadBits(5)
		} else if secFlag, _ := br.ReadBits(1); secFlag == 1 {
			secs, _ = br.ReadBits(6)
			if minFlag, _ := br.ReadBits(1); minFlag == 1 {
				mins, _ = br.ReadBits(6)
				if hrFlag, _ := br.ReadBits(1); hrFlag == 1 {
					hours, _ = br.ReadBits(5)
				}
			}
		}

		if sps.TimeOffsetLen > 0 {
			br.Skip(sps.TimeOffsetLen)
		}

		return Timecode{
			Hours:   int(hours),
			Minutes: int(mins),
			Seconds: int(secs),
			Frames:  int(nFrames),
		}, true
	}

	return Timecode{}, false
}
