package rtpcodec

import (
	"github.com/pion/rtp"

	"github.com/zsiec/rtpmedia/media"
)

type sentPacket struct {
	pkt     *Packet
	keyHint bool
}

type packetLog struct {
	sent []sentPacket
}

func (l *packetLog) sink(pkt *Packet, keyHint bool) {
	l.sent = append(l.sent, sentPacket{pkt: pkt, keyHint: keyHint})
}

func (l *packetLog) packets() []*Packet {
	out := make([]*Packet, len(l.sent))
	for i, s := range l.sent {
		out[i] = s.pkt
	}
	return out
}

func (l *packetLog) markers() []bool {
	out := make([]bool, len(l.sent))
	for i, s := range l.sent {
		out[i] = s.pkt.Marker
	}
	return out
}

func (l *packetLog) keyHints() []bool {
	out := make([]bool, len(l.sent))
	for i, s := range l.sent {
		out[i] = s.keyHint
	}
	return out
}

type frameLog struct {
	frames []*media.Frame
}

func (l *frameLog) InputFrame(f *media.Frame) bool {
	l.frames = append(l.frames, f)
	return true
}

type countingStats struct {
	packets   int
	gaps      int
	lost      int
	gopDrops  int
	malformed int
	frames    int
	keyFrames int
}

func (s *countingStats) RecordPacket(int) { s.packets++ }

func (s *countingStats) RecordSequenceGap(lost int) {
	s.gaps++
	s.lost += lost
}

func (s *countingStats) RecordGOPDrop()   { s.gopDrops++ }
func (s *countingStats) RecordMalformed() { s.malformed++ }

func (s *countingStats) RecordFrame(_ int, key bool, _ int64) {
	s.frames++
	if key {
		s.keyFrames++
	}
}

func newTestFactory(clockRate uint32) *Factory {
	return NewPacketFactory(1234, 96, clockRate, rtp.NewFixedSequencer(100))
}

// nalOfSize returns header followed by a deterministic body so that the
// NAL unit is n bytes long.
func nalOfSize(n int, header ...byte) []byte {
	nal := make([]byte, n)
	copy(nal, header)
	for i := len(header); i < n; i++ {
		nal[i] = byte(i*7 + 3)
	}
	return nal
}

func annexB(nal []byte) []byte {
	return append([]byte{0, 0, 0, 1}, nal...)
}

func nalFrame(codec media.CodecID, nal []byte, pts int64) *media.Frame {
	return media.NewFrame(codec, annexB(nal), 4, pts, pts)
}

func rawPacket(seq uint16, stampMS int64, marker bool, payload ...byte) *Packet {
	return &Packet{
		Packet: rtp.Packet{
			Header:  rtp.Header{Version: 2, SequenceNumber: seq, Marker: marker},
			Payload: payload,
		},
		StampMS: stampMS,
	}
}

func feed(d Depacketizer, pkts []*Packet) []bool {
	keys := make([]bool, len(pkts))
	for i, p := range pkts {
		keys[i] = d.InputRTP(p)
	}
	return keys
}
