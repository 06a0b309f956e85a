// Package stream tracks the lifecycle of active RTP streams, providing
// create/get/remove/list operations keyed by a stream key.
package stream

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/zsiec/rtpmedia/media"
)

// Stream represents one inbound RTP stream.
type Stream struct {
	Key       string
	SSRC      uint32
	Codec     media.CodecID
	StartedAt time.Time
	done      chan struct{}
}

// Done is closed when the stream is removed from its manager.
func (s *Stream) Done() <-chan struct{} { return s.done }

// KeyForSSRC returns the conventional key of the stream with the given
// SSRC.
func KeyForSSRC(ssrc uint32) string {
	return fmt.Sprintf("ssrc-%08x", ssrc)
}

// Manager manages the lifecycle of active streams.
type Manager struct {
	log     *slog.Logger
	mu      sync.RWMutex
	streams map[string]*Stream
}

// NewManager creates a new stream manager. If log is nil, slog.Default() is used.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:     log.With("component", "stream-manager"),
		streams: make(map[string]*Stream),
	}
}

// Create registers a new stream. Returns the stream and true if created,
// or nil and false if a stream with this key already exists.
func (m *Manager) Create(key string, ssrc uint32, codec media.CodecID) (*Stream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.streams[key]; ok {
		m.log.Warn("stream already exists, rejecting duplicate", "key", key)
		return nil, false
	}

	s := &Stream{
		Key:       key,
		SSRC:      ssrc,
		Codec:     codec,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}

	m.streams[key] = s
	m.log.Info("stream created", "key", key, "ssrc", ssrc, "codec", codec)
	return s, true
}

// Get returns the stream registered under key.
func (m *Manager) Get(key string) (*Stream, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.streams[key]
	return s, ok
}

// Remove removes a stream from the manager and closes its Done channel.
func (m *Manager) Remove(key string) {
	m.mu.Lock()
	s, ok := m.streams[key]
	if ok {
		delete(m.streams, key)
	}
	m.mu.Unlock()

	if ok {
		close(s.done)
		m.log.Info("stream removed", "key", key, "duration", time.Since(s.StartedAt).Round(time.Millisecond))
	}
}

// List returns all active streams ordered by key.
func (m *Manager) List() []*Stream {
	m.mu.RLock()
	streams := make([]*Stream, 0, len(m.streams))
	for _, s := range m.streams {
		streams = append(streams, s)
	}
	m.mu.RUnlock()

	slices.SortFunc(streams, func(a, b *Stream) int { return strings.Compare(a.Key, b.Key) })
	return streams
}
