package track

import (
	"encoding/base64"
	"fmt"

	"github.com/pion/sdp/v3"

	"github.com/zsiec/rtpmedia/codec/h264"
	"github.com/zsiec/rtpmedia/media"
)

// H264Track tracks SPS and PPS of an H.264 stream.
type H264Track struct {
	nalTrack
}

var _ VideoTrack = (*H264Track)(nil)

// NewH264 creates a track seeded with sps and pps (raw NAL data, with or
// without a start code). Empty arguments leave the slot unconfigured.
func NewH264(sps, pps []byte) *H264Track {
	t := &H264Track{nalTrack: newNALTrack(&h264Params, "h264-track")}
	for slot, nal := range [][]byte{sps, pps} {
		nal = nal[h264.PrefixSize(nal):]
		if len(nal) > 0 {
			t.setParam(slot, nal)
		}
	}
	return t
}

// SPS returns the stored SPS without start code.
func (t *H264Track) SPS() []byte { return t.params[0] }

// PPS returns the stored PPS without start code.
func (t *H264Track) PPS() []byte { return t.params[1] }

// Clone implements Track.
func (t *H264Track) Clone() Track {
	return &H264Track{nalTrack: t.cloneNAL()}
}

// ExtraData returns an AVCDecoderConfigurationRecord.
func (t *H264Track) ExtraData() ([]byte, error) {
	if !t.Ready() {
		return nil, t.notReady()
	}
	rec := h264.BuildDecoderConfig(t.SPS(), t.PPS())
	if rec == nil {
		return nil, fmt.Errorf("%w: SPS too short for avcC", media.ErrMalformedInput)
	}
	return rec, nil
}

// SetExtraData loads SPS and PPS from an AVCDecoderConfigurationRecord.
// The track is unchanged on error.
func (t *H264Track) SetExtraData(b []byte) error {
	sps, pps, err := h264.ParseDecoderConfig(b)
	if err != nil {
		return fmt.Errorf("%w: %w", media.ErrMalformedInput, err)
	}
	t.setParam(0, sps)
	t.setParam(1, pps)
	return nil
}

// SDP implements Track.
func (t *H264Track) SDP(pt uint8) (*sdp.MediaDescription, error) {
	if !t.Ready() {
		return nil, t.notReady()
	}
	sps := t.SPS()
	var profile uint32
	if len(sps) >= 4 {
		profile = uint32(sps[1])<<16 | uint32(sps[2])<<8 | uint32(sps[3])
	}
	fmtp := fmt.Sprintf("packetization-mode=1; profile-level-id=%06X; sprop-parameter-sets=%s,%s",
		profile,
		base64.StdEncoding.EncodeToString(sps),
		base64.StdEncoding.EncodeToString(t.PPS()))
	return t.mediaDescription("video", pt, "H264", 90000, 0, fmtp), nil
}
