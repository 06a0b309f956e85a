package track

import (
	"encoding/base64"
	"fmt"

	"github.com/pion/sdp/v3"

	"github.com/zsiec/rtpmedia/codec/h265"
	"github.com/zsiec/rtpmedia/internal/annexb"
	"github.com/zsiec/rtpmedia/media"
)

// H265Track tracks VPS, SPS and PPS of an H.265 stream.
type H265Track struct {
	nalTrack
}

var _ VideoTrack = (*H265Track)(nil)

// NewH265 creates a track seeded with the given parameter sets. Empty
// arguments leave the slot unconfigured.
func NewH265(vps, sps, pps []byte) *H265Track {
	t := &H265Track{nalTrack: newNALTrack(&h265Params, "h265-track")}
	for slot, nal := range [][]byte{vps, sps, pps} {
		nal = nal[annexb.PrefixSize(nal):]
		if len(nal) > 0 {
			t.setParam(slot, nal)
		}
	}
	return t
}

func (t *H265Track) VPS() []byte { return t.params[0] }
func (t *H265Track) SPS() []byte { return t.params[1] }
func (t *H265Track) PPS() []byte { return t.params[2] }

// Clone implements Track.
func (t *H265Track) Clone() Track {
	return &H265Track{nalTrack: t.cloneNAL()}
}

// ExtraData returns an HEVCDecoderConfigurationRecord.
func (t *H265Track) ExtraData() ([]byte, error) {
	if !t.Ready() {
		return nil, t.notReady()
	}
	rec := h265.BuildDecoderConfig(t.VPS(), t.SPS(), t.PPS())
	if rec == nil {
		return nil, fmt.Errorf("%w: SPS unusable for hvcC", media.ErrMalformedInput)
	}
	return rec, nil
}

// SetExtraData loads the parameter sets from an
// HEVCDecoderConfigurationRecord. The track is unchanged on error.
func (t *H265Track) SetExtraData(b []byte) error {
	vps, sps, pps, err := h265.ParseDecoderConfig(b)
	if err != nil {
		return fmt.Errorf("%w: %w", media.ErrMalformedInput, err)
	}
	t.setParam(0, vps)
	t.setParam(1, sps)
	t.setParam(2, pps)
	return nil
}

// SDP implements Track.
func (t *H265Track) SDP(pt uint8) (*sdp.MediaDescription, error) {
	if !t.Ready() {
		return nil, t.notReady()
	}
	enc := base64.StdEncoding
	fmtp := fmt.Sprintf("sprop-vps=%s; sprop-sps=%s; sprop-pps=%s",
		enc.EncodeToString(t.VPS()), enc.EncodeToString(t.SPS()), enc.EncodeToString(t.PPS()))
	return t.mediaDescription("video", pt, "H265", 90000, 0, fmtp), nil
}
