// Package track holds per-stream codec configuration, decides when a
// stream is ready for delivery and forwards frames to consumers.
//
// A track is driven by one goroutine. Only its consumer list may be
// modified concurrently.
package track

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/pion/sdp/v3"

	"github.com/zsiec/rtpmedia/media"
)

// Default RTP payload types used when building SDP.
const (
	PayloadTypeVideo = 96
	PayloadTypeAAC   = 98
)

// ErrUnsupportedCodec is returned by New for codecs without a track type.
var ErrUnsupportedCodec = errors.New("track: unsupported codec")

// State is the configuration readiness of a track.
type State int

const (
	Unconfigured State = iota
	PartiallyConfigured
	Ready
)

func (s State) String() string {
	switch s {
	case PartiallyConfigured:
		return "partially-configured"
	case Ready:
		return "ready"
	}
	return "unconfigured"
}

// Track is the common interface of all codec tracks.
type Track interface {
	Codec() media.CodecID
	TrackType() media.TrackType
	State() State
	Ready() bool

	// InputFrame extracts in-band configuration from f and forwards it to
	// consumers. It reports whether any consumer accepted a frame.
	InputFrame(f *media.Frame) bool
	// Clone copies the configuration. Consumers are not copied.
	Clone() Track
	// Reset clears all configuration and keyframe state.
	Reset()

	ExtraData() ([]byte, error)
	SetExtraData(b []byte) error
	SDP(payloadType uint8) (*sdp.MediaDescription, error)
	// ConfigFrames returns the stored parameter sets as frames, in the
	// order they are sent ahead of a keyframe.
	ConfigFrames() []*media.Frame

	AddConsumer(fn func(*media.Frame) bool) media.ConsumerHandle
	RemoveConsumer(h media.ConsumerHandle)
	Subscribe(buffer int) (<-chan *media.Frame, func())

	Index() int
	SetIndex(idx int)
	// BitRate is in bits per second; zero means unknown.
	BitRate() int
	SetBitRate(bps int)
}

// VideoTrack is a Track with picture parameters.
type VideoTrack interface {
	Track
	Width() int
	Height() int
	FPS() float64
}

// AudioTrack is a Track with sample parameters.
type AudioTrack interface {
	Track
	SampleRate() int
	Channels() int
	SampleBits() int
}

// base holds what every track shares: identity, consumers and SDP extras.
type base struct {
	codec   media.CodecID
	index   int
	bitRate int
	log     *slog.Logger

	consumers *media.Dispatcher
}

func newBase(codec media.CodecID, component string) base {
	idx := media.TrackIndexVideo
	if codec.TrackType() == media.TrackAudio {
		idx = media.TrackIndexAudio
	}
	return base{
		codec:     codec,
		index:     idx,
		log:       slog.Default().With("component", component),
		consumers: &media.Dispatcher{},
	}
}

// cloneBase copies identity but gives the clone its own consumer list.
func (b *base) cloneBase() base {
	cp := *b
	cp.consumers = &media.Dispatcher{}
	return cp
}

func (b *base) Codec() media.CodecID       { return b.codec }
func (b *base) TrackType() media.TrackType { return b.codec.TrackType() }
func (b *base) Index() int                 { return b.index }
func (b *base) SetIndex(idx int)           { b.index = idx }
func (b *base) BitRate() int               { return b.bitRate }
func (b *base) SetBitRate(bps int)         { b.bitRate = bps }

func (b *base) AddConsumer(fn func(*media.Frame) bool) media.ConsumerHandle {
	return b.consumers.AddConsumer(fn)
}

func (b *base) RemoveConsumer(h media.ConsumerHandle) {
	b.consumers.RemoveConsumer(h)
}

// Subscribe returns a channel of owned frames; see media.Dispatcher.
func (b *base) Subscribe(buffer int) (<-chan *media.Frame, func()) {
	return b.consumers.Subscribe(buffer)
}

func (b *base) deliver(f *media.Frame) bool {
	if f.TrackIndex() != b.index {
		f = f.WithTrackIndex(b.index)
	}
	return b.consumers.Dispatch(f)
}

func (b *base) notReady() error {
	return fmt.Errorf("%w: %s track not ready", media.ErrConfigurationInsufficient, b.codec)
}

// mediaDescription starts an m= section with the rtpmap and fmtp of one
// payload type, the bandwidth when known and the track control URL.
func (b *base) mediaDescription(kind string, pt uint8, name string, clockRate uint32, channels uint16, fmtp string) *sdp.MediaDescription {
	md := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:  kind,
			Port:   sdp.RangedPort{Value: 0},
			Protos: []string{"RTP", "AVP"},
		},
	}
	if b.bitRate > 0 {
		md.Bandwidth = append(md.Bandwidth, sdp.Bandwidth{Type: "AS", Bandwidth: uint64(b.bitRate / 1024)})
	}
	return md.
		WithCodec(pt, name, clockRate, channels, fmtp).
		WithValueAttribute("control", fmt.Sprintf("trackID=%d", b.index))
}
