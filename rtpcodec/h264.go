package rtpcodec

import (
	"encoding/binary"

	"github.com/zsiec/rtpmedia/codec/h264"
	"github.com/zsiec/rtpmedia/media"
)

// H264Depacketizer reassembles H.264 NAL units from RFC 6184 payloads
// (single NAL unit, STAP-A and FU-A) in non-interleaved mode.
type H264Depacketizer struct {
	nalDepacketizer
}

var _ Depacketizer = (*H264Depacketizer)(nil)

// NewH264Depacketizer creates a depacketizer writing Annex B frames to out.
func NewH264Depacketizer(out media.FrameWriter, cfg Config) *H264Depacketizer {
	return &H264Depacketizer{
		nalDepacketizer: newNALDepacketizer(media.CodecH264, out, cfg, "h264-depacketizer",
			func(f *media.Frame) bool { return f.KeyFrame() }),
	}
}

// InputRTP implements Depacketizer.
func (d *H264Depacketizer) InputRTP(pkt *Packet) bool {
	contiguous := d.begin(pkt)
	payload := pkt.Payload
	if len(payload) == 0 {
		d.malformed(pkt, "empty payload")
		return false
	}

	t := h264.NALType(payload[0])
	if t != h264.NALTypeFUA && d.fuActive {
		d.log.Debug("FU-A interrupted", "type", t)
		d.fuAbort()
	}

	switch {
	case t >= 1 && t < h264.NALTypeSTAPA:
		return d.emitNAL(payload, pkt.StampMS)
	case t == h264.NALTypeSTAPA:
		return d.unpackSTAPA(pkt)
	case t == h264.NALTypeFUA:
		return d.mergeFU(pkt, contiguous)
	}

	d.dropGOP("unsupported payload type", "type", t, "seq", pkt.SequenceNumber)
	return false
}

func (d *H264Depacketizer) unpackSTAPA(pkt *Packet) bool {
	found := false
	data := pkt.Payload[1:]
	for len(data) > 2 {
		size := int(binary.BigEndian.Uint16(data))
		data = data[2:]
		if size == 0 || size > len(data) {
			d.malformed(pkt, "STAP-A unit overruns payload")
			d.dropGOP("malformed STAP-A", "seq", pkt.SequenceNumber)
			break
		}
		nal := data[:size]
		if d.emitNAL(nal, pkt.StampMS) || h264.IsConfig(nal) {
			found = true
		}
		data = data[size:]
	}
	return found
}

func (d *H264Depacketizer) mergeFU(pkt *Packet, contiguous bool) bool {
	p := pkt.Payload
	if len(p) < 2 {
		d.malformed(pkt, "FU-A shorter than its header")
		d.fuAbort()
		return false
	}
	start, end := p[1]&0x80 != 0, p[1]&0x40 != 0
	if start {
		d.fuStart([]byte{p[0]&0xE0 | p[1]&0x1F}, pkt.StampMS)
	}
	return d.fuAppend(p[2:], start, end, contiguous)
}

var h264Format = nalFormat{
	nalHeaderSize: 1,
	fuHeaderSize:  2,
	configSlots:   2,
	configSlot: func(nal []byte) int {
		switch h264.NALType(nal[0]) {
		case h264.NALTypeSPS:
			return 0
		case h264.NALTypePPS:
			return 1
		}
		return -1
	},
	writeFUHeader: func(dst, nal []byte, start, end bool) {
		dst[0] = nal[0]&0xE0 | h264.NALTypeFUA
		dst[1] = fuFlags(start, end) | h264.NALType(nal[0])
	},
	aggregationHeader: func(nals [][]byte) []byte {
		var f, nri byte
		for _, nal := range nals {
			f |= nal[0] & 0x80
			nri = max(nri, nal[0]&0x60)
		}
		return []byte{f | nri | h264.NALTypeSTAPA}
	},
}

// H264Packetizer splits H.264 NAL unit frames into RFC 6184 payloads.
type H264Packetizer struct {
	nalPacketizer
}

var _ Packetizer = (*H264Packetizer)(nil)

// NewH264Packetizer creates a packetizer emitting to sink.
func NewH264Packetizer(factory PacketFactory, sink PacketSink, cfg Config) *H264Packetizer {
	return &H264Packetizer{nalPacketizer: newNALPacketizer(h264Format, factory, sink, cfg, "h264-packetizer")}
}
