// Package mediasink coordinates the tracks of one stream and decides when
// all of them are ready for a downstream muxer.
//
// Frames of tracks that become ready early are held back until every track
// is ready (or a deadline passes), then replayed in order. A Sink is driven
// by one goroutine, like the tracks it owns.
package mediasink

import (
	"log/slog"
	"time"

	"github.com/zsiec/rtpmedia/media"
	"github.com/zsiec/rtpmedia/stamp"
	"github.com/zsiec/rtpmedia/track"
)

// MaxTrackSize is the number of tracks (one video, one audio) after which
// adding is considered complete.
const MaxTrackSize = 2

// Config controls the readiness policy of a Sink.
type Config struct {
	// WaitTrackReady is how long after the last AddTrack unready tracks
	// are waited for before they are dropped.
	WaitTrackReady time.Duration
	// WaitAddTrack is how long a single track waits for a second one.
	WaitAddTrack time.Duration
	// MaxUnreadyFrames bounds the frames cached per track before all
	// tracks are ready. The oldest frames are discarded first.
	MaxUnreadyFrames int

	EnableAudio  bool
	AddMuteAudio bool
	// CorrectTimestamps runs every emitted frame through a per-track
	// stamp.Corrector; audio is synced to video.
	CorrectTimestamps bool

	Clock  stamp.Clock
	Logger *slog.Logger
}

// DefaultConfig returns the default readiness policy.
func DefaultConfig() Config {
	return Config{
		WaitTrackReady:   10 * time.Second,
		WaitAddTrack:     3 * time.Second,
		MaxUnreadyFrames: 100,
		EnableAudio:      true,
		AddMuteAudio:     true,
	}
}

type sinkTrack struct {
	track     track.Track
	gotFrame  bool
	announced bool
	corrector *stamp.Corrector
	unread    []*media.Frame
}

// Sink holds at most one track per track type.
type Sink struct {
	cfg   Config
	clock stamp.Clock
	log   *slog.Logger

	tracks    map[media.TrackType]*sinkTrack
	maxTracks int
	allReady  bool
	since     time.Time
	mute      *muteAudio

	onAllReady   func()
	onTrackReady func(track.Track) bool
	onFrame      func(*media.Frame) bool
}

// New creates a Sink. Zero durations and limits in cfg fall back to
// DefaultConfig values.
func New(cfg Config) *Sink {
	def := DefaultConfig()
	if cfg.WaitTrackReady <= 0 {
		cfg.WaitTrackReady = def.WaitTrackReady
	}
	if cfg.WaitAddTrack <= 0 {
		cfg.WaitAddTrack = def.WaitAddTrack
	}
	if cfg.MaxUnreadyFrames <= 0 {
		cfg.MaxUnreadyFrames = def.MaxUnreadyFrames
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Sink{
		cfg:   cfg,
		clock: clock,
		log:   log.With("component", "media-sink"),
	}
	s.ResetTracks()
	return s
}

// OnAllTrackReady sets the callback fired once when the sink goes ready.
func (s *Sink) OnAllTrackReady(fn func()) { s.onAllReady = fn }

// OnTrackReady sets the callback fired once per track when it has received
// a frame and its configuration is complete.
func (s *Sink) OnTrackReady(fn func(track.Track) bool) { s.onTrackReady = fn }

// OnTrackFrame sets the receiver of frames after the sink is ready.
func (s *Sink) OnTrackFrame(fn func(*media.Frame) bool) { s.onFrame = fn }

// AllTrackReady reports whether the sink has gone ready.
func (s *Sink) AllTrackReady() bool { return s.allReady }

// AddTrack stores a clone of t and subscribes to its output. It fails
// once the sink is ready, and for audio tracks when audio is disabled.
func (s *Sink) AddTrack(t track.Track) bool {
	if !s.cfg.EnableAudio {
		s.maxTracks = 1
		if t.TrackType() == media.TrackAudio {
			return false
		}
	}
	if s.allReady {
		s.log.Warn("track added after all tracks were ready", "codec", t.Codec())
		return false
	}

	cp := t.Clone()
	typ := cp.TrackType()
	st := &sinkTrack{track: cp}
	if s.cfg.CorrectTimestamps {
		st.corrector = stamp.NewCorrector(s.clock)
	}
	s.tracks[typ] = st
	s.since = s.clock()

	cp.AddConsumer(func(f *media.Frame) bool {
		if s.allReady {
			return s.emit(st, f)
		}
		if len(st.unread) >= s.cfg.MaxUnreadyFrames {
			s.log.Warn("too many frames cached for unready track, dropping oldest", "codec", cp.Codec())
			st.unread[0] = nil
			st.unread = st.unread[1:]
		}
		st.unread = append(st.unread, f.ToOwned())
		return true
	})
	return true
}

// AddTrackCompleted declares that no more tracks will be added.
func (s *Sink) AddTrackCompleted() {
	s.maxTracks = len(s.tracks)
	s.checkReady()
}

// ResetTracks drops every track and cached frame.
func (s *Sink) ResetTracks() {
	s.allReady = false
	s.tracks = make(map[media.TrackType]*sinkTrack)
	s.maxTracks = MaxTrackSize
	s.since = s.clock()
	s.mute = nil
}

// InputFrame feeds f to the track of its type. It reports whether the
// track accepted the frame.
func (s *Sink) InputFrame(f *media.Frame) bool {
	st, ok := s.tracks[f.TrackType()]
	if !ok {
		return false
	}
	st.gotFrame = true
	accepted := st.track.InputFrame(f)
	if s.mute != nil && f.TrackType() == media.TrackVideo {
		s.mute.inputFrame(f)
	}
	s.checkReady()
	return accepted
}

// Tracks returns the tracks of the sink, video first. With ready set only
// ready tracks are returned.
func (s *Sink) Tracks(ready bool) []track.Track {
	var out []track.Track
	for _, typ := range []media.TrackType{media.TrackVideo, media.TrackAudio} {
		st, ok := s.tracks[typ]
		if !ok || (ready && !st.track.Ready()) {
			continue
		}
		out = append(out, st.track)
	}
	return out
}

func (s *Sink) checkReady() {
	if s.allReady {
		return
	}
	pending := 0
	for _, typ := range []media.TrackType{media.TrackVideo, media.TrackAudio} {
		st, ok := s.tracks[typ]
		if !ok || st.announced {
			continue
		}
		if st.gotFrame && st.track.Ready() {
			st.announced = true
			s.trackReady(st.track)
			continue
		}
		pending++
	}

	elapsed := s.clock().Sub(s.since)
	switch {
	case elapsed > s.cfg.WaitTrackReady:
		s.emitAllReady()
	case pending > 0:
		// keep waiting for unready tracks
	case len(s.tracks) == s.maxTracks:
		s.emitAllReady()
	case len(s.tracks) == 1 && elapsed > s.cfg.WaitAddTrack:
		s.emitAllReady()
	}
}

func (s *Sink) trackReady(t track.Track) {
	s.log.Debug("track ready", "codec", t.Codec(), "index", t.Index())
	if s.onTrackReady != nil {
		s.onTrackReady(t)
	}
}

func (s *Sink) emitAllReady() {
	if s.allReady {
		return
	}
	s.log.Debug("all tracks ready", "elapsed", s.clock().Sub(s.since))

	for typ, st := range s.tracks {
		if !st.announced {
			s.log.Warn("track not ready in time, ignored", "codec", st.track.Codec())
			delete(s.tracks, typ)
		}
	}
	if len(s.tracks) == 0 {
		return
	}

	if s.cfg.AddMuteAudio {
		s.addMuteAudio()
	}
	if s.cfg.CorrectTimestamps {
		v, hasVideo := s.tracks[media.TrackVideo]
		a, hasAudio := s.tracks[media.TrackAudio]
		if hasVideo && hasAudio {
			a.corrector.SyncTo(v.corrector)
		}
	}
	if s.onAllReady != nil {
		s.onAllReady()
	}
	s.allReady = true

	for _, typ := range []media.TrackType{media.TrackVideo, media.TrackAudio} {
		st, ok := s.tracks[typ]
		if !ok {
			continue
		}
		unread := st.unread
		st.unread = nil
		for _, f := range unread {
			s.emit(st, f)
		}
	}
}

func (s *Sink) emit(st *sinkTrack, f *media.Frame) bool {
	if st.corrector != nil {
		f = f.WithTimestamps(st.corrector.Revise(f.DTS(), f.PTS()))
	}
	if s.onFrame == nil {
		return false
	}
	return s.onFrame(f)
}
