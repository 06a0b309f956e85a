package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/zsiec/rtpmedia/codec/aac"
	"github.com/zsiec/rtpmedia/internal/annexb"
	"github.com/zsiec/rtpmedia/media"
)

const samplesPerAACFrame = 1024

// parseCodec resolves a codec flag. Common aliases and the registered
// encoding names are accepted in any case.
func parseCodec(name string) (media.CodecID, error) {
	switch strings.ToLower(name) {
	case "h264", "avc", "264":
		return media.CodecH264, nil
	case "h265", "hevc", "265":
		return media.CodecH265, nil
	case "aac", "mpeg4-generic", "adts":
		return media.CodecAAC, nil
	}
	return media.CodecInvalid, fmt.Errorf("unknown codec %q", name)
}

// codecFromPath guesses the codec of an elementary stream file by its
// extension.
func codecFromPath(path string) (media.CodecID, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return media.CodecInvalid, fmt.Errorf("cannot guess codec of %s, use --codec", path)
	}
	return parseCodec(ext)
}

// fileExt is the extension extract writes for codec.
func fileExt(codec media.CodecID) string {
	switch codec {
	case media.CodecH264:
		return ".h264"
	case media.CodecH265:
		return ".h265"
	case media.CodecAAC:
		return ".aac"
	}
	return ".bin"
}

// readES splits an elementary stream into timestamped frames: one frame
// per NAL unit for video, one per ADTS frame for AAC. Video pictures are
// spaced by 1000/fps ms; a new picture starts at the first slice after
// other slices or at a non-VCL unit following slices.
func readES(data []byte, codec media.CodecID, fps float64) ([]*media.Frame, error) {
	switch codec {
	case media.CodecAAC:
		return readADTS(data)
	case media.CodecH264, media.CodecH265:
	default:
		return nil, fmt.Errorf("no elementary stream reader for %s", codec)
	}
	if fps <= 0 {
		return nil, fmt.Errorf("invalid frame rate %v", fps)
	}

	units := annexb.Split(data, 1)
	if len(units) == 0 {
		return nil, fmt.Errorf("%w: no Annex B start code found", media.ErrMalformedInput)
	}
	frames := make([]*media.Frame, 0, len(units))
	pic, inPicture := 0, false
	for _, u := range units {
		f := media.NewFrame(codec, data[u.Start:u.End], u.Prefix(), 0, 0)
		vcl := !f.Droppable() && !f.ConfigFrame()
		if inPicture && (!vcl || f.Decodable()) {
			pic++
			inPicture = false
		}
		if vcl {
			inPicture = true
		}
		ms := int64(float64(pic) * 1000 / fps)
		frames = append(frames, f.WithTimestamps(ms, ms))
	}
	return frames, nil
}

func readADTS(data []byte) ([]*media.Frame, error) {
	adts, err := aac.SplitADTS(data)
	if err != nil && len(adts) == 0 {
		return nil, err
	}
	if len(adts) == 0 {
		return nil, fmt.Errorf("%w: no ADTS frame found", media.ErrMalformedInput)
	}
	frames := make([]*media.Frame, 0, len(adts))
	for i, af := range adts {
		ms := int64(i) * samplesPerAACFrame * 1000 / int64(af.SampleRate)
		frames = append(frames, media.NewFrame(media.CodecAAC, af.Data, af.HeaderSize, ms, ms))
	}
	return frames, nil
}
