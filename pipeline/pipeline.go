// Package pipeline drives the receive path of a single RTP stream: packets
// are converted to the millisecond timeline, depacketized into frames and
// handed to a track whose consumers see the configured elementary stream.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/zsiec/ccx"

	"github.com/zsiec/rtpmedia/caption"
	"github.com/zsiec/rtpmedia/codec/h264"
	"github.com/zsiec/rtpmedia/codec/h265"
	"github.com/zsiec/rtpmedia/media"
	"github.com/zsiec/rtpmedia/rtpcodec"
	"github.com/zsiec/rtpmedia/stamp"
	"github.com/zsiec/rtpmedia/stats"
	"github.com/zsiec/rtpmedia/track"
)

// Config tunes a Pipeline. The zero value is usable for video codecs.
type Config struct {
	// ClockRate is the RTP clock rate. Zero means 90000 for video and the
	// sample rate of the AAC config for audio.
	ClockRate uint32
	// AACConfig is the AudioSpecificConfig of an AAC stream, usually the
	// fmtp config parameter. Ignored when Track is already configured.
	AACConfig []byte
	// Track is an optional pre-seeded track, e.g. from SDP.
	Track track.Track

	LowLatency bool
	UsingDONL  bool
	// Captions enables CEA-608/708 extraction on video streams.
	Captions bool

	Logger *slog.Logger
}

// DebugStats holds low-level forwarding counters.
type DebugStats struct {
	PacketsIn         int64  `json:"packetsIn"`
	FramesIn          int64  `json:"framesIn"`
	FramesOut         int64  `json:"framesOut"`
	LastDTS           int64  `json:"lastDts"`
	ClockWraps        int64  `json:"clockWraps"`
	DepacketizerState string `json:"depacketizerState"`
	TrackState        string `json:"trackState"`
}

// Pipeline bridges one RTP stream to a track.
type Pipeline struct {
	log       *slog.Logger
	key       string
	codec     media.CodecID
	track     track.Track
	depack    rtpcodec.Depacketizer
	clock     *stamp.RTPClock
	stats     *stats.StreamStats
	captions  *caption.Extractor
	lastSPS   []byte
	h264SPS   h264.SPSInfo
	hasH264SP bool

	packetsIn   atomic.Int64
	framesIn    atomic.Int64
	framesOut   atomic.Int64
	lastDTS     atomic.Int64
	clockWraps  atomic.Int64
	depackState atomic.Int32
	trackState  atomic.Int32
}

// New creates a Pipeline for a stream of the given codec.
func New(key string, codec media.CodecID, cfg Config) (*Pipeline, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	p := &Pipeline{
		log:   log.With("stream", key),
		key:   key,
		codec: codec,
		stats: stats.New(codec.String(), nil),
	}
	p.lastDTS.Store(media.NoTimestamp)

	tr, err := p.newTrack(cfg)
	if err != nil {
		return nil, err
	}
	p.track = tr

	rcfg := rtpcodec.DefaultConfig()
	rcfg.LowLatency = cfg.LowLatency
	rcfg.UsingDONL = cfg.UsingDONL
	rcfg.Logger = p.log
	rcfg.Stats = p.stats

	clockRate := cfg.ClockRate
	if codec == media.CodecAAC {
		at, ok := tr.(track.AudioTrack)
		if !ok || !tr.Ready() {
			return nil, fmt.Errorf("%w: AAC stream %s needs a config", media.ErrConfigurationInsufficient, key)
		}
		if rcfg.AACConfig, err = tr.ExtraData(); err != nil {
			return nil, err
		}
		if clockRate == 0 {
			clockRate = uint32(at.SampleRate())
		}
	}
	p.clock = stamp.NewRTPClock(clockRate)

	p.depack, err = rtpcodec.NewDepacketizer(codec, media.FrameWriterFunc(p.inputFrame), rcfg)
	if err != nil {
		return nil, err
	}

	tr.AddConsumer(p.observe)
	if cfg.Captions && codec.TrackType() == media.TrackVideo {
		p.captions = caption.NewExtractor(p.stats, p.log)
		tr.AddConsumer(p.captions.InputFrame)
	}
	p.storeStates()
	return p, nil
}

func (p *Pipeline) newTrack(cfg Config) (track.Track, error) {
	if cfg.Track != nil {
		if cfg.Track.Codec() != p.codec {
			return nil, fmt.Errorf("pipeline: track codec %s does not match stream codec %s", cfg.Track.Codec(), p.codec)
		}
		if p.codec == media.CodecAAC && !cfg.Track.Ready() && len(cfg.AACConfig) > 0 {
			if err := cfg.Track.SetExtraData(cfg.AACConfig); err != nil {
				return nil, err
			}
		}
		return cfg.Track, nil
	}
	if p.codec == media.CodecAAC && len(cfg.AACConfig) > 0 {
		t, err := track.NewAAC(cfg.AACConfig)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	return track.New(p.codec)
}

// Track returns the track frames are delivered to. Consumers should be
// added before Run.
func (p *Pipeline) Track() track.Track { return p.track }

// Stats returns the stream telemetry.
func (p *Pipeline) Stats() *stats.StreamStats { return p.stats }

// Captions returns decoded captions, or nil when caption extraction is
// disabled. The channel is closed when Run returns.
func (p *Pipeline) Captions() <-chan *ccx.CaptionFrame {
	if p.captions == nil {
		return nil
	}
	return p.captions.Captions()
}

// Debug returns the forwarding counters.
func (p *Pipeline) Debug() DebugStats {
	return DebugStats{
		PacketsIn:         p.packetsIn.Load(),
		FramesIn:          p.framesIn.Load(),
		FramesOut:         p.framesOut.Load(),
		LastDTS:           p.lastDTS.Load(),
		ClockWraps:        p.clockWraps.Load(),
		DepacketizerState: rtpcodec.DepacketizerState(p.depackState.Load()).String(),
		TrackState:        track.State(p.trackState.Load()).String(),
	}
}

// Run reads packets until ctx is done or packets is closed.
func (p *Pipeline) Run(ctx context.Context, packets <-chan *rtp.Packet) error {
	if p.captions != nil {
		defer p.captions.Close()
	}
	p.log.Info("pipeline started", "codec", p.codec, "clockRate", p.clock.ClockRate())

	for {
		select {
		case <-ctx.Done():
			p.log.Info("pipeline stopped", "packets", p.packetsIn.Load())
			return nil
		case pkt, ok := <-packets:
			if !ok {
				p.log.Info("packet channel closed", "packets", p.packetsIn.Load(), "frames", p.framesOut.Load())
				return nil
			}
			p.InputRTP(pkt)
		}
	}
}

// InputRTP feeds one packet. It must not be called concurrently with Run.
func (p *Pipeline) InputRTP(pkt *rtp.Packet) bool {
	p.packetsIn.Add(1)
	ms := p.clock.Millis(pkt.Timestamp)
	ok := p.depack.InputRTP(&rtpcodec.Packet{Packet: *pkt, StampMS: ms})
	p.clockWraps.Store(p.clock.Wraps())
	p.storeStates()
	return ok
}

func (p *Pipeline) storeStates() {
	p.depackState.Store(int32(p.depack.State()))
	p.trackState.Store(int32(p.track.State()))
}

func (p *Pipeline) inputFrame(f *media.Frame) bool {
	p.framesIn.Add(1)
	return p.track.InputFrame(f)
}

// observe watches track output for parameter sets and timing SEI. It
// never claims a frame.
func (p *Pipeline) observe(f *media.Frame) bool {
	p.framesOut.Add(1)
	p.lastDTS.Store(f.DTS())

	nal := f.Payload()
	if len(nal) == 0 {
		return false
	}
	switch p.codec {
	case media.CodecH264:
		switch h264.NALType(nal[0]) {
		case h264.NALTypeSPS:
			if bytes.Equal(nal, p.lastSPS) {
				return false
			}
			info, err := h264.ParseSPS(nal)
			if err != nil {
				p.log.Debug("bad SPS", "error", err)
				return false
			}
			p.lastSPS = append(p.lastSPS[:0], nal...)
			p.h264SPS, p.hasH264SP = info, true
			p.stats.RecordResolution(info.Width, info.Height)
		case h264.NALTypeSEI:
			if !p.hasH264SP {
				return false
			}
			if tc, ok := h264.ParsePicTimingSEI(nal, p.h264SPS); ok {
				p.stats.RecordTimecode(tc.String())
			}
		}
	case media.CodecH265:
		if h265.NALType(nal[0]) != h265.NALTypeSPS || bytes.Equal(nal, p.lastSPS) {
			return false
		}
		info, err := h265.ParseSPS(nal)
		if err != nil {
			p.log.Debug("bad SPS", "error", err)
			return false
		}
		p.lastSPS = append(p.lastSPS[:0], nal...)
		p.stats.RecordResolution(info.Width, info.Height)
	}
	return false
}
