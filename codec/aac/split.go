package aac

import "fmt"

// Frame is a single AAC frame located in an ADTS byte stream.
type Frame struct {
	Data       []byte // complete ADTS frame (header + payload)
	HeaderSize int
	SampleRate int
	Channels   int
}

// Payload returns the raw AAC data following the header.
func (f Frame) Payload() []byte { return f.Data[f.HeaderSize:] }

// SplitADTS splits an ADTS byte stream into individual frames. Bytes before
// a sync word are skipped; a truncated trailing frame ends the scan.
func SplitADTS(data []byte) ([]Frame, error) {
	var frames []Frame
	offset := 0

	for len(data)-offset >= ADTSHeaderSize {
		if !HasSyncWord(data[offset:]) {
			offset++
			continue
		}

		h, err := ParseADTSHeader(data[offset:])
		if err != nil {
			return frames, err
		}
		if h.SampleRate() == 0 {
			return frames, fmt.Errorf("%w: index %d", ErrInvalidSampleRate, h.SamplingIndex)
		}
		if h.FrameLength < h.HeaderSize() || offset+h.FrameLength > len(data) {
			break
		}

		frames = append(frames, Frame{
			Data:       data[offset : offset+h.FrameLength],
			HeaderSize: h.HeaderSize(),
			SampleRate: h.SampleRate(),
			Channels:   h.Channels(),
		})
		offset += h.FrameLength
	}

	return frames, nil
}
