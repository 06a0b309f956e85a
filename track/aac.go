package track

import (
	"github.com/pion/sdp/v3"

	"github.com/zsiec/rtpmedia/codec/aac"
	"github.com/zsiec/rtpmedia/media"
)

// samplesPerFrame is the AAC-LC access unit length.
const samplesPerFrame = 1024

// AACTrack tracks the AudioSpecificConfig of an AAC stream.
type AACTrack struct {
	base
	config []byte
	header aac.ADTSHeader
}

var _ AudioTrack = (*AACTrack)(nil)

// NewAAC creates a track seeded with an AudioSpecificConfig. An empty cfg
// gives an unconfigured track that learns its config from the first ADTS
// header.
func NewAAC(cfg []byte) (*AACTrack, error) {
	t := &AACTrack{base: newBase(media.CodecAAC, "aac-track")}
	if len(cfg) == 0 {
		return t, nil
	}
	if err := t.SetExtraData(cfg); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *AACTrack) State() State {
	if t.config == nil {
		return Unconfigured
	}
	return Ready
}

func (t *AACTrack) Ready() bool     { return t.config != nil }
func (t *AACTrack) SampleRate() int { return t.header.SampleRate() }
func (t *AACTrack) Channels() int   { return t.header.Channels() }
func (t *AACTrack) SampleBits() int { return 16 }

// Clone implements Track.
func (t *AACTrack) Clone() Track {
	cp := &AACTrack{base: t.cloneBase(), header: t.header}
	if t.config != nil {
		cp.config = append([]byte(nil), t.config...)
	}
	return cp
}

// Reset implements Track.
func (t *AACTrack) Reset() {
	t.config = nil
	t.header = aac.ADTSHeader{}
}

// ExtraData returns the AudioSpecificConfig.
func (t *AACTrack) ExtraData() ([]byte, error) {
	if !t.Ready() {
		return nil, t.notReady()
	}
	return append([]byte(nil), t.config...), nil
}

// SetExtraData validates and stores an AudioSpecificConfig of at least two
// bytes. The track is unchanged on error.
func (t *AACTrack) SetExtraData(b []byte) error {
	h, err := aac.ParseConfig(b)
	if err != nil {
		return err
	}
	t.config = append([]byte(nil), b...)
	t.header = h
	return nil
}

// ConfigFrames returns nil; AAC carries no in-band parameter sets.
func (t *AACTrack) ConfigFrames() []*media.Frame { return nil }

// SDP implements Track.
func (t *AACTrack) SDP(pt uint8) (*sdp.MediaDescription, error) {
	if !t.Ready() {
		return nil, t.notReady()
	}
	fmtp := "streamtype=5;profile-level-id=1;mode=AAC-hbr;sizelength=13;indexlength=3;indexdeltalength=3;config=" +
		aac.DumpConfig(t.config)
	return t.mediaDescription("audio", pt, "mpeg4-generic", uint32(t.SampleRate()), uint16(t.Channels()), fmtp), nil
}

// InputFrame implements Track. Raw access units get an ADTS header when
// the config is known; ADTS input holding several frames is split and
// their timestamps advanced by one frame duration each.
func (t *AACTrack) InputFrame(f *media.Frame) bool {
	if f.PrefixSize() == 0 {
		if !t.Ready() {
			t.log.Debug("dropping raw AAC frame before config")
			return false
		}
		hdr, err := aac.WriteADTS(t.header, f.Size())
		if err != nil {
			t.log.Warn("cannot add ADTS header", "error", err)
			return false
		}
		buf := make([]byte, 0, aac.ADTSHeaderSize+f.Size())
		buf = append(buf, hdr[:]...)
		buf = append(buf, f.Data()...)
		return t.inputADTS(media.NewFrame(media.CodecAAC, buf, aac.ADTSHeaderSize, f.DTS(), f.PTS()))
	}

	frames, err := aac.SplitADTS(f.Data())
	if err != nil && len(frames) == 0 {
		t.log.Warn("invalid ADTS frame", "error", err)
		return false
	}
	if len(frames) == 1 && len(frames[0].Data) == f.Size() {
		return t.inputADTS(f)
	}

	accepted := false
	dts, pts := f.DTS(), f.PTS()
	for _, af := range frames {
		var sub *media.Frame
		if f.Storage() == media.Owned {
			sub = media.NewFrame(media.CodecAAC, af.Data, af.HeaderSize, dts, pts)
		} else {
			sub = media.NewBorrowedFrame(media.CodecAAC, af.Data, af.HeaderSize, dts, pts)
		}
		if t.inputADTS(sub) {
			accepted = true
		}
		step := int64(samplesPerFrame * 1000 / af.SampleRate)
		dts += step
		pts += step
	}
	return accepted
}

func (t *AACTrack) inputADTS(f *media.Frame) bool {
	if !t.Ready() {
		cfg, err := aac.ConfigFromADTS(f.Data())
		if err != nil {
			t.log.Warn("cannot derive AAC config from ADTS header", "error", err)
			return false
		}
		if err := t.SetExtraData(cfg[:]); err != nil {
			t.log.Warn("invalid AAC config in ADTS header", "error", err)
			return false
		}
		t.log.Info("AAC config from ADTS header", "config", aac.DumpConfig(cfg[:]), "sample_rate", t.SampleRate(), "channels", t.Channels())
	}
	if len(f.Payload()) == 0 {
		return false
	}
	return t.deliver(f)
}
