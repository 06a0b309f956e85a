package rtpcodec

import (
	"encoding/binary"

	"github.com/zsiec/rtpmedia/codec/h265"
	"github.com/zsiec/rtpmedia/media"
)

// H265Depacketizer reassembles H.265 NAL units from RFC 7798 payloads
// (single NAL unit, AP and FU). PACI packets are not supported.
type H265Depacketizer struct {
	nalDepacketizer
	usingDONL bool
}

var _ Depacketizer = (*H265Depacketizer)(nil)

// NewH265Depacketizer creates a depacketizer writing Annex B frames to out.
func NewH265Depacketizer(out media.FrameWriter, cfg Config) *H265Depacketizer {
	return &H265Depacketizer{
		nalDepacketizer: newNALDepacketizer(media.CodecH265, out, cfg, "h265-depacketizer", h265Resync),
		usingDONL:       cfg.UsingDONL,
	}
}

// A GOP may also restart at a VPS, which precedes the IRAP picture.
func h265Resync(f *media.Frame) bool {
	p := f.Payload()
	return f.KeyFrame() || (len(p) > 0 && h265.NALType(p[0]) == h265.NALTypeVPS)
}

// InputRTP implements Depacketizer.
func (d *H265Depacketizer) InputRTP(pkt *Packet) bool {
	contiguous := d.begin(pkt)
	payload := pkt.Payload
	if len(payload) < 2 {
		d.malformed(pkt, "shorter than payload header")
		return false
	}

	t := h265.NALType(payload[0])
	if t != h265.NALTypeFU && d.fuActive {
		d.log.Debug("FU interrupted", "type", t)
		d.fuAbort()
	}

	switch {
	case t < h265.NALTypeAP:
		return d.emitNAL(payload, pkt.StampMS)
	case t == h265.NALTypeAP:
		return d.unpackAP(pkt)
	case t == h265.NALTypeFU:
		return d.mergeFU(pkt, contiguous)
	}

	d.dropGOP("unsupported payload type", "type", t, "seq", pkt.SequenceNumber)
	return false
}

func (d *H265Depacketizer) unpackAP(pkt *Packet) bool {
	found := false
	data := pkt.Payload[2:]
	for len(data) > 0 {
		if d.usingDONL {
			data = data[min(2, len(data)):]
		}
		if len(data) < 2 {
			d.malformed(pkt, "AP unit header truncated")
			d.dropGOP("malformed AP", "seq", pkt.SequenceNumber)
			break
		}
		size := int(binary.BigEndian.Uint16(data))
		data = data[2:]
		if size == 0 || size > len(data) {
			d.malformed(pkt, "AP unit overruns payload")
			d.dropGOP("malformed AP", "seq", pkt.SequenceNumber)
			break
		}
		nal := data[:size]
		if d.emitNAL(nal, pkt.StampMS) || h265.IsConfig(nal) {
			found = true
		}
		data = data[size:]
	}
	return found
}

func (d *H265Depacketizer) mergeFU(pkt *Packet, contiguous bool) bool {
	p := pkt.Payload
	if len(p) < 3 {
		d.malformed(pkt, "FU shorter than its header")
		d.fuAbort()
		return false
	}
	start, end := p[2]&0x80 != 0, p[2]&0x40 != 0
	data := p[3:]
	if start && d.usingDONL {
		if len(data) < 2 {
			d.malformed(pkt, "FU DONL truncated")
			d.fuAbort()
			return false
		}
		data = data[2:]
	}
	if start {
		// F and LayerId come from the payload header, the type from the FU header
		d.fuStart([]byte{p[0]&0x81 | (p[2]&0x3F)<<1, p[1]}, pkt.StampMS)
	}
	return d.fuAppend(data, start, end, contiguous)
}

var h265Format = nalFormat{
	nalHeaderSize: 2,
	fuHeaderSize:  3,
	configSlots:   3,
	configSlot: func(nal []byte) int {
		switch h265.NALType(nal[0]) {
		case h265.NALTypeVPS:
			return 0
		case h265.NALTypeSPS:
			return 1
		case h265.NALTypePPS:
			return 2
		}
		return -1
	},
	writeFUHeader: func(dst, nal []byte, start, end bool) {
		dst[0] = nal[0]&0x81 | h265.NALTypeFU<<1
		dst[1] = nal[1]
		dst[2] = fuFlags(start, end) | h265.NALType(nal[0])
	},
	aggregationHeader: func(nals [][]byte) []byte {
		var f byte
		layer, tid := byte(0x3F), byte(0x07)
		for _, nal := range nals {
			f |= nal[0] & 0x80
			layer = min(layer, (nal[0]&0x01)<<5|nal[1]>>3)
			tid = min(tid, nal[1]&0x07)
		}
		return []byte{f | h265.NALTypeAP<<1 | layer>>5, (layer&0x1F)<<3 | tid}
	},
}

// H265Packetizer splits H.265 NAL unit frames into RFC 7798 payloads.
// It never emits DON fields.
type H265Packetizer struct {
	nalPacketizer
}

var _ Packetizer = (*H265Packetizer)(nil)

// NewH265Packetizer creates a packetizer emitting to sink.
func NewH265Packetizer(factory PacketFactory, sink PacketSink, cfg Config) *H265Packetizer {
	return &H265Packetizer{nalPacketizer: newNALPacketizer(h265Format, factory, sink, cfg, "h265-packetizer")}
}
