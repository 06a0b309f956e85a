package rtpcodec

import (
	"encoding/binary"
	"log/slog"

	"github.com/zsiec/rtpmedia/codec/aac"
	"github.com/zsiec/rtpmedia/media"
)

const (
	auHeaderSectionSize = 4
	maxAUSize           = 0x1FFF
	// maxAUIncrement bounds the interpolated spacing of units sharing one
	// RTP timestamp.
	maxAUIncrement = 100
)

// AACPacketizer emits RFC 3640 AAC-hbr payloads with one AU header per
// packet. Frames larger than the MTU are fragmented; every fragment
// carries the size of the whole access unit.
type AACPacketizer struct {
	factory PacketFactory
	sink    PacketSink
	mtu     int
	log     *slog.Logger
}

var _ Packetizer = (*AACPacketizer)(nil)

// NewAACPacketizer creates a packetizer emitting to sink.
func NewAACPacketizer(factory PacketFactory, sink PacketSink, cfg Config) *AACPacketizer {
	return &AACPacketizer{
		factory: factory,
		sink:    sink,
		mtu:     max(cfg.mtu(), minMTU),
		log:     cfg.logger("aac-packetizer"),
	}
}

// InputFrame strips the ADTS header and packetizes the raw access unit
// stamped with the frame dts.
func (p *AACPacketizer) InputFrame(f *media.Frame) bool {
	data := f.Payload()
	if len(data) == 0 {
		return false
	}
	if len(data) > maxAUSize {
		p.log.Warn("access unit exceeds 13-bit AU size", "size", len(data))
		return false
	}

	size := len(data)
	maxFragment := p.mtu - auHeaderSectionSize
	for off := 0; off < size; {
		n := min(maxFragment, size-off)
		last := off+n == size

		pkt := p.factory.MakeRTP(media.TrackAudio, nil, auHeaderSectionSize+n, last, f.DTS())
		b := pkt.Payload
		b[0] = 0x00
		b[1] = 0x10 // 16 bits of AU headers
		b[2] = byte(size >> 5)
		b[3] = byte(size&0x1F) << 3
		copy(b[auHeaderSectionSize:], data[off:off+n])
		p.sink(pkt, false)

		off += n
	}
	return true
}

// Flush is a no-op; AAC frames are never held back.
func (p *AACPacketizer) Flush() {}

// AACDepacketizer parses RFC 3640 AAC-hbr payloads (13-bit size, 3-bit
// index) into ADTS framed access units.
type AACDepacketizer struct {
	out   media.FrameWriter
	log   *slog.Logger
	stats StatsRecorder

	config    aac.ADTSHeader
	hasConfig bool

	seq       seqTracker
	lastStamp int64
	hasStamp  bool
	// after a gap, a fragment cannot start before a packet with the
	// marker bit ends the broken access unit
	waitMarker bool

	// fragmented access unit in progress
	auBuf  []byte
	auSize int
	auDTS  int64
}

var _ Depacketizer = (*AACDepacketizer)(nil)

// NewAACDepacketizer creates a depacketizer writing frames to out. When
// cfg.AACConfig is valid, units without an ADTS header get one prepended.
func NewAACDepacketizer(out media.FrameWriter, cfg Config) *AACDepacketizer {
	d := &AACDepacketizer{
		out:   out,
		log:   cfg.logger("aac-depacketizer"),
		stats: cfg.stats(),
	}
	if len(cfg.AACConfig) > 0 {
		if err := d.SetConfig(cfg.AACConfig); err != nil {
			d.log.Warn("ignoring invalid AAC config", "error", err)
		}
	}
	return d
}

// SetConfig sets the AudioSpecificConfig used to synthesize ADTS headers.
func (d *AACDepacketizer) SetConfig(cfg []byte) error {
	h, err := aac.ParseConfig(cfg)
	if err != nil {
		return err
	}
	d.config = h
	d.hasConfig = true
	return nil
}

// State reports StateCollectingFU while a fragmented access unit is being
// reassembled.
func (d *AACDepacketizer) State() DepacketizerState {
	if d.auBuf != nil {
		return StateCollectingFU
	}
	return StateIdle
}

// Reset forgets sequence, timestamp and fragment state. The config is kept.
func (d *AACDepacketizer) Reset() {
	d.seq.reset()
	d.hasStamp = false
	d.lastStamp = 0
	d.waitMarker = false
	d.auBuf = nil
}

// InputRTP implements Depacketizer. AAC has no keyframes, so it always
// returns false.
func (d *AACDepacketizer) InputRTP(pkt *Packet) bool {
	d.stats.RecordPacket(len(pkt.Payload))
	lost, gap := d.seq.observe(pkt.SequenceNumber)
	if gap {
		d.stats.RecordSequenceGap(lost)
		d.waitMarker = true
		if d.auBuf != nil {
			d.log.Debug("discarding fragmented AU after packet loss", "lost", lost)
			d.auBuf = nil
		}
	}

	d.decode(pkt)
	if pkt.Marker {
		d.waitMarker = false
	}
	return false
}

func (d *AACDepacketizer) decode(pkt *Packet) {
	payload := pkt.Payload
	if len(payload) < 2 {
		d.malformed(pkt, "missing AU-headers-length")
		return
	}
	count := int(binary.BigEndian.Uint16(payload) >> 4)
	if count == 0 {
		d.malformed(pkt, "AU header count is zero")
		return
	}
	headers := payload[2:]
	if len(headers) < count*2 {
		d.malformed(pkt, "AU headers truncated")
		return
	}
	data := headers[count*2:]

	stampMS := pkt.StampMS
	if !d.hasStamp {
		d.hasStamp = true
		d.lastStamp = stampMS
	}
	// units are stamped from the previous packet's timestamp, spaced by
	// the packet interval divided evenly
	base := d.lastStamp
	inc := (stampMS - base) / int64(count)
	if inc < 0 || inc > maxAUIncrement {
		inc = 0
	}
	d.lastStamp = stampMS

	if d.auBuf != nil {
		size := int(binary.BigEndian.Uint16(headers) >> 3)
		if count == 1 && size == d.auSize {
			d.auBuf = append(d.auBuf, data...)
			if len(d.auBuf) >= d.auSize {
				unit := d.auBuf[:d.auSize]
				d.auBuf = nil
				d.emit(unit, d.auDTS)
			}
			return
		}
		d.log.Debug("discarding incomplete fragmented AU", "want", d.auSize, "have", len(d.auBuf))
		d.auBuf = nil
	}

	for i := 0; i < count; i++ {
		size := int(binary.BigEndian.Uint16(headers[i*2:]) >> 3)
		if size == 0 {
			continue
		}
		dts := base + int64(i)*inc
		if size > len(data) {
			if i != count-1 {
				d.malformed(pkt, "AU overruns payload")
				return
			}
			if d.waitMarker {
				d.log.Debug("skipping AU fragment after packet loss", "seq", pkt.SequenceNumber)
				return
			}
			// first fragment of an access unit spanning packets
			d.auBuf = append(make([]byte, 0, size), data...)
			d.auSize = size
			d.auDTS = dts
			return
		}
		d.emit(append([]byte(nil), data[:size]...), dts)
		data = data[size:]
	}
}

// emit frames an owned access unit. Units that already start with an ADTS
// header keep it; otherwise one is synthesized from the config if known.
func (d *AACDepacketizer) emit(unit []byte, dts int64) {
	buf, prefix := unit, 0
	switch {
	case aac.HasSyncWord(unit) && len(unit) > aac.ADTSHeaderSize:
		prefix = aac.ADTSHeaderSize
	case d.hasConfig:
		hdr, err := aac.WriteADTS(d.config, len(unit))
		if err != nil {
			d.log.Warn("cannot synthesize ADTS header", "error", err)
			break
		}
		buf = make([]byte, 0, aac.ADTSHeaderSize+len(unit))
		buf = append(buf, hdr[:]...)
		buf = append(buf, unit...)
		prefix = aac.ADTSHeaderSize
	}

	d.stats.RecordFrame(len(buf), true, dts)
	d.out.InputFrame(media.NewFrame(media.CodecAAC, buf, prefix, dts, dts))
}

func (d *AACDepacketizer) malformed(pkt *Packet, reason string) {
	d.stats.RecordMalformed()
	d.log.Warn("malformed AAC RTP payload", "reason", reason, "seq", pkt.SequenceNumber, "size", len(pkt.Payload))
}
