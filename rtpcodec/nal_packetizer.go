package rtpcodec

import (
	"encoding/binary"
	"log/slog"

	"github.com/zsiec/rtpmedia/media"
)

// minMTU keeps room for FU headers plus a useful amount of data.
const minMTU = 16

// nalFormat describes the codec-specific parts of NAL unit packetization.
type nalFormat struct {
	nalHeaderSize int
	fuHeaderSize  int
	configSlots   int

	// configSlot returns the parameter-set slot of nal, or -1.
	configSlot func(nal []byte) int
	// writeFUHeader fills dst[:fuHeaderSize] for a fragment of nal.
	writeFUHeader func(dst, nal []byte, start, end bool)
	// aggregationHeader returns the STAP-A/AP payload header for nals.
	aggregationHeader func(nals [][]byte) []byte
}

// nalPacketizer implements the H.264 and H.265 packetizers.
type nalPacketizer struct {
	format     nalFormat
	factory    PacketFactory
	sink       PacketSink
	mtu        int
	lowLatency bool
	aggregate  bool
	log        *slog.Logger

	configs []*media.Frame
	last    *media.Frame
}

func newNALPacketizer(format nalFormat, factory PacketFactory, sink PacketSink, cfg Config, component string) nalPacketizer {
	mtu := cfg.mtu()
	if mtu < minMTU {
		mtu = minMTU
	}
	return nalPacketizer{
		format:     format,
		factory:    factory,
		sink:       sink,
		mtu:        mtu,
		lowLatency: cfg.LowLatency,
		aggregate:  cfg.UseSTAPA,
		log:        cfg.logger(component),
		configs:    make([]*media.Frame, format.configSlots),
	}
}

// InputFrame packetizes one NAL unit frame. Parameter sets are cached and
// re-sent ahead of every keyframe instead of being forwarded directly.
func (p *nalPacketizer) InputFrame(f *media.Frame) bool {
	nal := f.Payload()
	if len(nal) < p.format.nalHeaderSize {
		p.log.Debug("dropping short NAL unit", "size", len(nal))
		return false
	}
	if slot := p.format.configSlot(nal); slot >= 0 {
		p.configs[slot] = f.ToOwned()
		return true
	}

	if p.lowLatency {
		p.send(f, !f.Droppable())
		return true
	}

	// the marker bit of the held frame depends on whether f starts a new
	// presentation instant
	if p.last != nil {
		p.send(p.last, p.last.PTS() != f.PTS())
	}
	p.last = f.ToOwned()
	return true
}

// Flush sends the held frame as the end of its presentation instant.
func (p *nalPacketizer) Flush() {
	if p.last == nil {
		return
	}
	p.send(p.last, true)
	p.last = nil
}

func (p *nalPacketizer) send(f *media.Frame, marker bool) {
	keyHint := f.KeyFrame()
	if keyHint && p.sendConfigs(f.PTS()) {
		keyHint = false
	}
	p.packNAL(f.Payload(), f.PTS(), marker, keyHint)
}

// sendConfigs emits the cached parameter sets with the keyframe's pts.
// The first config packet carries the key hint. It reports whether
// anything was sent; an incomplete set is not sent.
func (p *nalPacketizer) sendConfigs(pts int64) bool {
	nals := make([][]byte, 0, len(p.configs))
	for _, c := range p.configs {
		if c == nil {
			return false
		}
		nals = append(nals, c.Payload())
	}
	if len(nals) == 0 {
		return false
	}

	if p.aggregate && len(nals) > 1 {
		hdr := p.format.aggregationHeader(nals)
		size := len(hdr)
		for _, nal := range nals {
			size += 2 + len(nal)
		}
		if size <= p.mtu {
			payload := make([]byte, 0, size)
			payload = append(payload, hdr...)
			for _, nal := range nals {
				payload = binary.BigEndian.AppendUint16(payload, uint16(len(nal)))
				payload = append(payload, nal...)
			}
			p.emit(payload, pts, false, true)
			return true
		}
	}

	for i, nal := range nals {
		p.packNAL(nal, pts, false, i == 0)
	}
	return true
}

// packNAL sends nal as a single NAL unit packet, or as fragmentation units
// when it exceeds the MTU. Only the last fragment carries the marker.
func (p *nalPacketizer) packNAL(nal []byte, pts int64, marker, keyHint bool) {
	if len(nal) <= p.mtu {
		p.emit(nal, pts, marker, keyHint)
		return
	}

	hs := p.format.fuHeaderSize
	maxFragment := p.mtu - hs
	data := nal[p.format.nalHeaderSize:]
	for off := 0; off < len(data); {
		n := min(maxFragment, len(data)-off)
		start, end := off == 0, off+n == len(data)

		pkt := p.factory.MakeRTP(media.TrackVideo, nil, hs+n, end && marker, pts)
		p.format.writeFUHeader(pkt.Payload, nal, start, end)
		copy(pkt.Payload[hs:], data[off:off+n])
		p.sink(pkt, start && keyHint)

		off += n
	}
}

func (p *nalPacketizer) emit(payload []byte, pts int64, marker, keyHint bool) {
	p.sink(p.factory.MakeRTP(media.TrackVideo, payload, len(payload), marker, pts), keyHint)
}

func fuFlags(start, end bool) byte {
	var b byte
	if start {
		b |= 0x80
	}
	if end {
		b |= 0x40
	}
	return b
}
