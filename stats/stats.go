// Package stats collects per-stream RTP and frame telemetry. All methods
// are safe for concurrent use: the depacketizer goroutine records while
// readers take snapshots.
package stats

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// rateWindow is the span over which fps and bitrate are averaged.
const rateWindow = 2 * time.Second

// Snapshot is a point-in-time copy of the counters of one stream.
type Snapshot struct {
	Codec    string `json:"codec"`
	UptimeMs int64  `json:"uptimeMs"`

	Packets      int64 `json:"packets"`
	Bytes        int64 `json:"bytes"`
	SequenceGaps int64 `json:"sequenceGaps"`
	LostPackets  int64 `json:"lostPackets"`
	GOPDrops     int64 `json:"gopDrops"`
	Malformed    int64 `json:"malformed"`

	Frames        int64   `json:"frames"`
	KeyFrames     int64   `json:"keyFrames"`
	DeltaFrames   int64   `json:"deltaFrames"`
	CurrentGOPLen int64   `json:"currentGopLen"`
	LastGOPLen    int64   `json:"lastGopLen"`
	DTSErrors     int64   `json:"dtsErrors"`
	FPS           float64 `json:"fps"`
	BitrateKbps   float64 `json:"bitrateKbps"`

	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Timecode string `json:"timecode,omitempty"`

	Captions CaptionStats `json:"captions"`
}

// CaptionStats counts decoded captions.
type CaptionStats struct {
	TotalFrames    int64 `json:"totalFrames"`
	ActiveChannels []int `json:"activeChannels"`
}

type frameSample struct {
	at    time.Time
	bytes int
}

// StreamStats implements rtpcodec.StatsRecorder and caption.Recorder.
type StreamStats struct {
	now     func() time.Time
	started time.Time

	packets   atomic.Int64
	bytes     atomic.Int64
	gaps      atomic.Int64
	lost      atomic.Int64
	gopDrops  atomic.Int64
	malformed atomic.Int64
	frames    atomic.Int64
	keyFrames atomic.Int64
	dtsErrors atomic.Int64
	captions  atomic.Int64

	mu         sync.Mutex
	codec      string
	gopLen     int64
	lastGOPLen int64
	lastDTS    int64
	hasDTS     bool
	window     []frameSample
	width      int
	height     int
	timecode   string
	channels   map[int]struct{}
}

// New creates StreamStats for a stream of the given codec. A nil now uses
// time.Now.
func New(codec string, now func() time.Time) *StreamStats {
	if now == nil {
		now = time.Now
	}
	return &StreamStats{
		now:      now,
		started:  now(),
		codec:    codec,
		channels: make(map[int]struct{}),
	}
}

func (s *StreamStats) RecordPacket(bytes int) {
	s.packets.Add(1)
	s.bytes.Add(int64(bytes))
}

func (s *StreamStats) RecordSequenceGap(lost int) {
	s.gaps.Add(1)
	s.lost.Add(int64(lost))
}

func (s *StreamStats) RecordGOPDrop()   { s.gopDrops.Add(1) }
func (s *StreamStats) RecordMalformed() { s.malformed.Add(1) }

// RecordFrame counts one assembled frame. A dts that goes backwards is
// counted as a dts error.
func (s *StreamStats) RecordFrame(bytes int, key bool, dts int64) {
	s.frames.Add(1)
	if key {
		s.keyFrames.Add(1)
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if key {
		if s.gopLen > 0 {
			s.lastGOPLen = s.gopLen
		}
		s.gopLen = 0
	}
	s.gopLen++
	if s.hasDTS && dts < s.lastDTS {
		s.dtsErrors.Add(1)
	}
	s.lastDTS = dts
	s.hasDTS = true
	s.window = append(s.window, frameSample{at: now, bytes: bytes})
	s.trimLocked(now)
}

// RecordCaption implements caption.Recorder.
func (s *StreamStats) RecordCaption(channel int) {
	s.captions.Add(1)
	s.mu.Lock()
	s.channels[channel] = struct{}{}
	s.mu.Unlock()
}

func (s *StreamStats) RecordResolution(width, height int) {
	s.mu.Lock()
	s.width, s.height = width, height
	s.mu.Unlock()
}

func (s *StreamStats) RecordTimecode(tc string) {
	s.mu.Lock()
	s.timecode = tc
	s.mu.Unlock()
}

func (s *StreamStats) trimLocked(now time.Time) {
	cut := 0
	for cut < len(s.window) && now.Sub(s.window[cut].at) > rateWindow {
		cut++
	}
	if cut > 0 {
		s.window = append(s.window[:0], s.window[cut:]...)
	}
}

// Snapshot returns the current counters.
func (s *StreamStats) Snapshot() Snapshot {
	now := s.now()
	snap := Snapshot{
		UptimeMs:     now.Sub(s.started).Milliseconds(),
		Packets:      s.packets.Load(),
		Bytes:        s.bytes.Load(),
		SequenceGaps: s.gaps.Load(),
		LostPackets:  s.lost.Load(),
		GOPDrops:     s.gopDrops.Load(),
		Malformed:    s.malformed.Load(),
		Frames:       s.frames.Load(),
		KeyFrames:    s.keyFrames.Load(),
		DTSErrors:    s.dtsErrors.Load(),
	}
	snap.DeltaFrames = snap.Frames - snap.KeyFrames
	snap.Captions.TotalFrames = s.captions.Load()

	s.mu.Lock()
	defer s.mu.Unlock()
	snap.Codec = s.codec
	snap.CurrentGOPLen = s.gopLen
	snap.LastGOPLen = s.lastGOPLen
	snap.Width, snap.Height = s.width, s.height
	snap.Timecode = s.timecode

	s.trimLocked(now)
	var total int
	for _, f := range s.window {
		total += f.bytes
	}
	secs := rateWindow.Seconds()
	snap.FPS = float64(len(s.window)) / secs
	snap.BitrateKbps = float64(total) * 8 / secs / 1000

	snap.Captions.ActiveChannels = make([]int, 0, len(s.channels))
	for ch := range s.channels {
		snap.Captions.ActiveChannels = append(snap.Captions.ActiveChannels, ch)
	}
	slices.Sort(snap.Captions.ActiveChannels)
	return snap
}
