package rtpcodec

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zsiec/rtpmedia/media"
)

// ErrUnsupportedCodec is returned for codecs without a registered RTP
// payload format.
var ErrUnsupportedCodec = errors.New("rtpcodec: unsupported codec")

// Codec holds the constructors of one RTP payload format.
type Codec struct {
	NewDepacketizer func(out media.FrameWriter, cfg Config) Depacketizer
	NewPacketizer   func(factory PacketFactory, sink PacketSink, cfg Config) Packetizer
}

var (
	registryMu sync.RWMutex
	registry   = map[media.CodecID]Codec{}
)

// Register adds or replaces the payload format for a codec.
func Register(id media.CodecID, c Codec) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[id] = c
}

func lookup(id media.CodecID) (Codec, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	c, ok := registry[id]
	if !ok {
		return Codec{}, fmt.Errorf("%w: %s", ErrUnsupportedCodec, id)
	}
	return c, nil
}

// NewDepacketizer creates a depacketizer for id that writes frames to out.
func NewDepacketizer(id media.CodecID, out media.FrameWriter, cfg Config) (Depacketizer, error) {
	c, err := lookup(id)
	if err != nil {
		return nil, err
	}
	if c.NewDepacketizer == nil {
		return nil, fmt.Errorf("%w: %s has no depacketizer", ErrUnsupportedCodec, id)
	}
	return c.NewDepacketizer(out, cfg), nil
}

// NewPacketizer creates a packetizer for id that emits packets to sink.
func NewPacketizer(id media.CodecID, factory PacketFactory, sink PacketSink, cfg Config) (Packetizer, error) {
	c, err := lookup(id)
	if err != nil {
		return nil, err
	}
	if c.NewPacketizer == nil {
		return nil, fmt.Errorf("%w: %s has no packetizer", ErrUnsupportedCodec, id)
	}
	return c.NewPacketizer(factory, sink, cfg), nil
}

func init() {
	Register(media.CodecH264, Codec{
		NewDepacketizer: func(out media.FrameWriter, cfg Config) Depacketizer {
			return NewH264Depacketizer(out, cfg)
		},
		NewPacketizer: func(f PacketFactory, sink PacketSink, cfg Config) Packetizer {
			return NewH264Packetizer(f, sink, cfg)
		},
	})
	Register(media.CodecH265, Codec{
		NewDepacketizer: func(out media.FrameWriter, cfg Config) Depacketizer {
			return NewH265Depacketizer(out, cfg)
		},
		NewPacketizer: func(f PacketFactory, sink PacketSink, cfg Config) Packetizer {
			return NewH265Packetizer(f, sink, cfg)
		},
	})
	Register(media.CodecAAC, Codec{
		NewDepacketizer: func(out media.FrameWriter, cfg Config) Depacketizer {
			return NewAACDepacketizer(out, cfg)
		},
		NewPacketizer: func(f PacketFactory, sink PacketSink, cfg Config) Packetizer {
			return NewAACPacketizer(f, sink, cfg)
		},
	})
}
