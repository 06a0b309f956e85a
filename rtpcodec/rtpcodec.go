// Package rtpcodec converts between RTP packets and elementary stream
// frames for H.264 (RFC 6184), H.265 (RFC 7798) and AAC (RFC 3640,
// AAC-hbr mode).
//
// Depacketizers and packetizers hold per-SSRC state and must be driven
// from a single goroutine.
package rtpcodec

import (
	"log/slog"

	"github.com/pion/rtp"

	"github.com/zsiec/rtpmedia/media"
	"github.com/zsiec/rtpmedia/stamp"
)

// DefaultMTU is the default maximum RTP payload size in bytes.
const DefaultMTU = 1400

// Packet is an RTP packet together with its timestamp converted to
// milliseconds by the transport layer.
type Packet struct {
	rtp.Packet
	StampMS int64
}

// PacketFactory allocates outbound packets. A nil payload asks for a zeroed
// payload of payloadLen bytes that the caller fills in.
type PacketFactory interface {
	MakeRTP(trackType media.TrackType, payload []byte, payloadLen int, marker bool, stampMS int64) *Packet
}

// PacketSink receives packetizer output. keyHint marks the first packet of
// a keyframe group (config units followed by the keyframe).
type PacketSink func(pkt *Packet, keyHint bool)

// Factory is the default PacketFactory. It stamps packets with a fixed
// SSRC and payload type, converts milliseconds to clock ticks and numbers
// packets with a pion sequencer.
type Factory struct {
	ssrc        uint32
	payloadType uint8
	clockRate   uint32
	seq         rtp.Sequencer
}

// NewPacketFactory creates a Factory. A nil sequencer starts at a random
// sequence number.
func NewPacketFactory(ssrc uint32, payloadType uint8, clockRate uint32, seq rtp.Sequencer) *Factory {
	if seq == nil {
		seq = rtp.NewRandomSequencer()
	}
	return &Factory{ssrc: ssrc, payloadType: payloadType, clockRate: clockRate, seq: seq}
}

// MakeRTP implements PacketFactory.
func (f *Factory) MakeRTP(_ media.TrackType, payload []byte, payloadLen int, marker bool, stampMS int64) *Packet {
	buf := make([]byte, payloadLen)
	copy(buf, payload)
	return &Packet{
		Packet: rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         marker,
				PayloadType:    f.payloadType,
				SequenceNumber: f.seq.NextSequenceNumber(),
				Timestamp:      stamp.Ticks(stampMS, f.clockRate),
				SSRC:           f.ssrc,
			},
			Payload: buf,
		},
		StampMS: stampMS,
	}
}

// DepacketizerState is the loss-recovery state of a video depacketizer.
//
//	Idle         -> CollectingFU  FU start fragment
//	CollectingFU -> Idle          FU end fragment, or inner gap (fragment discarded)
//	any          -> GOPDropped    sequence gap, malformed aggregate, unsupported type
//	GOPDropped   -> Idle          keyframe assembled (H.265: or VPS)
type DepacketizerState int

const (
	StateIdle DepacketizerState = iota
	StateCollectingFU
	StateGOPDropped
)

func (s DepacketizerState) String() string {
	switch s {
	case StateCollectingFU:
		return "collecting-fu"
	case StateGOPDropped:
		return "gop-dropped"
	}
	return "idle"
}

// Depacketizer turns RTP packets into frames.
type Depacketizer interface {
	// InputRTP consumes one packet in sequence order and reports whether it
	// carried (the start of) a keyframe.
	InputRTP(pkt *Packet) bool
	State() DepacketizerState
	Reset()
}

// Packetizer turns frames into RTP packets.
type Packetizer interface {
	InputFrame(f *media.Frame) bool
	// Flush emits any frame held back for marker-bit decisions.
	Flush()
}

// StatsRecorder receives depacketizer telemetry. Implementations must be
// safe for concurrent use.
type StatsRecorder interface {
	RecordPacket(bytes int)
	RecordSequenceGap(lost int)
	RecordGOPDrop()
	RecordMalformed()
	RecordFrame(bytes int, key bool, dts int64)
}

type nopStats struct{}

func (nopStats) RecordPacket(int)             {}
func (nopStats) RecordSequenceGap(int)        {}
func (nopStats) RecordGOPDrop()               {}
func (nopStats) RecordMalformed()             {}
func (nopStats) RecordFrame(int, bool, int64) {}

// Config holds the options shared by all codecs.
type Config struct {
	// MTU is the maximum RTP payload size produced by packetizers.
	MTU int
	// LowLatency sends every frame on input instead of holding the latest
	// one to decide its marker bit.
	LowLatency bool
	// UseSTAPA aggregates the parameter sets sent before a keyframe into
	// one STAP-A (H.264) or AP (H.265) packet when they fit.
	UseSTAPA bool
	// UsingDONL signals that H.265 AP and FU packets carry DON fields
	// (sprop-max-don-diff > 0).
	UsingDONL bool
	// AACConfig is the AudioSpecificConfig used to synthesize ADTS headers
	// for depacketized AAC units.
	AACConfig []byte

	Logger *slog.Logger
	Stats  StatsRecorder
}

// DefaultConfig returns a Config with DefaultMTU and batched delivery.
func DefaultConfig() Config {
	return Config{MTU: DefaultMTU}
}

func (c Config) mtu() int {
	if c.MTU <= 0 {
		return DefaultMTU
	}
	return c.MTU
}

func (c Config) logger(component string) *slog.Logger {
	log := c.Logger
	if log == nil {
		log = slog.Default()
	}
	return log.With("component", component)
}

func (c Config) stats() StatsRecorder {
	if c.Stats == nil {
		return nopStats{}
	}
	return c.Stats
}
