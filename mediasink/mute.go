package mediasink

import (
	"github.com/zsiec/rtpmedia/codec/aac"
	"github.com/zsiec/rtpmedia/media"
	"github.com/zsiec/rtpmedia/stamp"
	"github.com/zsiec/rtpmedia/track"
)

// silentADTS is one AAC-LC frame of silence, 8 kHz mono, with its ADTS
// header.
var silentADTS = []byte{
	0xff, 0xf1, 0x6c, 0x40, 0x2d, 0x3f, 0xfc, 0x00, 0xe0, 0x34, 0x20, 0xad,
	0xf2, 0x3f, 0xb5, 0xdd, 0x73, 0xac, 0xbd, 0xca, 0xd7, 0x7d, 0x4a, 0x13,
	0x2d, 0x2e, 0xa2, 0x62, 0x02, 0x70, 0x3c, 0x1c, 0xc5, 0x63, 0x55, 0x69,
	0x94, 0xb5, 0x8d, 0x70, 0xd7, 0x24, 0x6a, 0x9e, 0x2e, 0x86, 0x24, 0xea,
	0x4f, 0xd4, 0xf8, 0x10, 0x53, 0xa5, 0x4a, 0xb2, 0x9a, 0xf0, 0xa1, 0x4f,
	0x2f, 0x66, 0xf9, 0xd3, 0x8c, 0xa6, 0x97, 0xd5, 0x84, 0xac, 0x09, 0x25,
	0x98, 0x0b, 0x1d, 0x77, 0x04, 0xb8, 0x55, 0x49, 0x85, 0x27, 0x06, 0x23,
	0x58, 0xcb, 0x22, 0xc3, 0x20, 0x3a, 0x12, 0x09, 0x48, 0x24, 0x86, 0x76,
	0x95, 0xe3, 0x45, 0x61, 0x43, 0x06, 0x6b, 0x4a, 0x61, 0x14, 0x24, 0xa9,
	0x16, 0xe0, 0x97, 0x34, 0xb6, 0x58, 0xa4, 0x38, 0x34, 0x90, 0x19, 0x5d,
	0x00, 0x19, 0x4a, 0xc2, 0x80, 0x4b, 0xdc, 0xb7, 0x00, 0x18, 0x12, 0x3d,
	0xd9, 0x93, 0xee, 0x74, 0x13, 0x95, 0xad, 0x0b, 0x59, 0x51, 0x0e, 0x99,
	0xdf, 0x49, 0x98, 0xde, 0xa9, 0x48, 0x4b, 0xa5, 0xfb, 0xe8, 0x79, 0xc9,
	0xe2, 0xd9, 0x60, 0xa5, 0xbe, 0x74, 0xa6, 0x6b, 0x72, 0x0e, 0xe3, 0x7b,
	0x28, 0xb3, 0x0e, 0x52, 0xcc, 0xf6, 0x3d, 0x39, 0xb7, 0x7e, 0xbb, 0xf0,
	0xc8, 0xce, 0x5c, 0x72, 0xb2, 0x89, 0x60, 0x33, 0x7b, 0xc5, 0xda, 0x49,
	0x1a, 0xda, 0x33, 0xba, 0x97, 0x9e, 0xa8, 0x1b, 0x6d, 0x5a, 0x77, 0xb6,
	0xf1, 0x69, 0x5a, 0xd1, 0xbd, 0x84, 0xd5, 0x4e, 0x58, 0xa8, 0x5e, 0x8a,
	0xa0, 0xc2, 0xc9, 0x22, 0xd9, 0xa5, 0x53, 0x11, 0x18, 0xc8, 0x3a, 0x39,
	0xcf, 0x3f, 0x57, 0xb6, 0x45, 0x19, 0x1e, 0x8a, 0x71, 0xa4, 0x46, 0x27,
	0x9e, 0xe9, 0xa4, 0x86, 0xdd, 0x14, 0xd9, 0x4d, 0xe3, 0x71, 0xe3, 0x26,
	0xda, 0xaa, 0x17, 0xb4, 0xac, 0xe1, 0x09, 0xc1, 0x0d, 0x75, 0xba, 0x53,
	0x0a, 0x37, 0x8b, 0xac, 0x37, 0x39, 0x41, 0x27, 0x6a, 0xf0, 0xe9, 0xb4,
	0xc2, 0xac, 0xb0, 0x39, 0x73, 0x17, 0x64, 0x95, 0xf4, 0xdc, 0x33, 0xbb,
	0x84, 0x94, 0x3e, 0xf8, 0x65, 0x71, 0x60, 0x7b, 0xd4, 0x5f, 0x27, 0x79,
	0x95, 0x6a, 0xba, 0x76, 0xa6, 0xa5, 0x9a, 0xec, 0xae, 0x55, 0x3a, 0x27,
	0x48, 0x23, 0xcf, 0x5c, 0x4d, 0xbc, 0x0b, 0x35, 0x5c, 0xa7, 0x17, 0xcf,
	0x34, 0x57, 0xc9, 0x58, 0xc5, 0x20, 0x09, 0xee, 0xa5, 0xf2, 0x9c, 0x6c,
	0x39, 0x1a, 0x77, 0x92, 0x9b, 0xff, 0xc6, 0xae, 0xf8, 0x36, 0xba, 0xa8,
	0xaa, 0x6b, 0x1e, 0x8c, 0xc5, 0x97, 0x39, 0x6a, 0xb8, 0xa2, 0x55, 0xa8,
	0xf8,
}

// muteAudio generates silent AAC frames following the dts of video frames,
// one per audio frame duration.
type muteAudio struct {
	track   *track.AACTrack
	frameMS int64
	lastIdx int64
	started bool
}

func newMuteAudio() (*muteAudio, error) {
	cfg, err := aac.ConfigFromADTS(silentADTS)
	if err != nil {
		return nil, err
	}
	t, err := track.NewAAC(cfg[:])
	if err != nil {
		return nil, err
	}
	t.SetIndex(media.TrackIndexSynthetic)
	return &muteAudio{
		track:   t,
		frameMS: int64(1024 * 1000 / t.SampleRate()),
	}, nil
}

// inputFrame emits a silent frame whenever the video dts enters a new
// audio frame interval.
func (m *muteAudio) inputFrame(video *media.Frame) bool {
	idx := video.DTS() / m.frameMS
	if m.started && idx == m.lastIdx {
		return false
	}
	m.started = true
	m.lastIdx = idx
	ts := idx * m.frameMS
	return m.track.InputFrame(media.NewFrame(media.CodecAAC, silentADTS, aac.ADTSHeaderSize, ts, ts))
}

// addMuteAudio adds a ready, synthetic AAC track when the sink has no
// audio of its own.
func (s *Sink) addMuteAudio() {
	if !s.cfg.EnableAudio {
		return
	}
	if _, ok := s.tracks[media.TrackAudio]; ok {
		return
	}
	mute, err := newMuteAudio()
	if err != nil {
		s.log.Error("cannot create mute audio track", "error", err)
		return
	}
	st := &sinkTrack{track: mute.track, gotFrame: true, announced: true}
	if s.cfg.CorrectTimestamps {
		st.corrector = stamp.NewCorrector(s.clock)
	}
	mute.track.AddConsumer(func(f *media.Frame) bool {
		return s.emit(st, f)
	})
	s.tracks[media.TrackAudio] = st
	s.mute = mute
	s.trackReady(mute.track)
	s.log.Debug("mute audio track added")
}
