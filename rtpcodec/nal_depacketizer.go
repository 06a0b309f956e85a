package rtpcodec

import (
	"log/slog"

	"github.com/zsiec/rtpmedia/media"
	"github.com/zsiec/rtpmedia/stamp"
)

const startCodeSize = 4

// nalDepacketizer holds the loss-recovery and reassembly state shared by
// the H.264 and H.265 depacketizers.
type nalDepacketizer struct {
	codec  media.CodecID
	out    media.FrameWriter
	log    *slog.Logger
	stats  StatsRecorder
	resync func(f *media.Frame) bool

	seq        seqTracker
	gopDropped bool
	dts        stamp.DTSGenerator

	fuActive bool
	fuBuf    []byte
	fuPTS    int64
}

func newNALDepacketizer(codec media.CodecID, out media.FrameWriter, cfg Config, component string, resync func(*media.Frame) bool) nalDepacketizer {
	return nalDepacketizer{
		codec:  codec,
		out:    out,
		log:    cfg.logger(component),
		stats:  cfg.stats(),
		resync: resync,
	}
}

// State returns the current recovery state.
func (d *nalDepacketizer) State() DepacketizerState {
	switch {
	case d.gopDropped:
		return StateGOPDropped
	case d.fuActive:
		return StateCollectingFU
	}
	return StateIdle
}

// Reset forgets sequence, fragment and timestamp state.
func (d *nalDepacketizer) Reset() {
	d.seq.reset()
	d.gopDropped = false
	d.dts = stamp.DTSGenerator{}
	d.fuActive = false
	d.fuBuf = nil
}

// begin accounts for pkt and evaluates its sequence number before the
// payload is decoded. It reports whether pkt directly follows the previous
// packet.
func (d *nalDepacketizer) begin(pkt *Packet) bool {
	d.stats.RecordPacket(len(pkt.Payload))
	lost, gap := d.seq.observe(pkt.SequenceNumber)
	if !gap {
		return true
	}
	d.stats.RecordSequenceGap(lost)
	d.dropGOP("sequence gap", "seq", pkt.SequenceNumber, "lost", lost)
	return false
}

func (d *nalDepacketizer) dropGOP(reason string, args ...any) {
	if d.gopDropped {
		return
	}
	d.gopDropped = true
	d.stats.RecordGOPDrop()
	d.log.Warn("dropping GOP: "+reason, args...)
}

func (d *nalDepacketizer) malformed(pkt *Packet, reason string) {
	d.stats.RecordMalformed()
	d.log.Warn("malformed RTP payload", "reason", reason, "seq", pkt.SequenceNumber, "size", len(pkt.Payload))
}

// emitNAL copies nal behind a start code and emits it.
func (d *nalDepacketizer) emitNAL(nal []byte, pts int64) bool {
	buf := make([]byte, 0, startCodeSize+len(nal))
	buf = append(buf, 0, 0, 0, 1)
	buf = append(buf, nal...)
	return d.emit(buf, pts)
}

// emit forwards an owned Annex B NAL unit and reports whether it was a
// keyframe. Frames are assembled and timestamped while a GOP is being
// dropped but only forwarded once a resync point arrives.
func (d *nalDepacketizer) emit(buf []byte, pts int64) bool {
	f := media.NewFrame(d.codec, buf, startCodeSize, pts, pts)
	if !f.Droppable() {
		if dts, _ := d.dts.Generate(pts); dts != pts {
			f = f.WithTimestamps(dts, pts)
		}
	}

	key := f.KeyFrame()
	if d.gopDropped && d.resync(f) {
		d.gopDropped = false
		d.log.Info("new GOP received", "pts", pts)
	}
	if d.gopDropped {
		return key
	}

	d.stats.RecordFrame(len(buf), key, f.DTS())
	d.out.InputFrame(f)
	return key
}

// fuStart begins reassembly of a fragmented NAL with the rebuilt header.
func (d *nalDepacketizer) fuStart(header []byte, pts int64) {
	if d.fuActive {
		d.log.Debug("FU restarted before end fragment")
	}
	d.fuActive = true
	d.fuPTS = pts
	d.fuBuf = make([]byte, 0, 4096)
	d.fuBuf = append(d.fuBuf, 0, 0, 0, 1)
	d.fuBuf = append(d.fuBuf, header...)
}

// fuAppend adds one fragment. start/end are the FU S and E bits and
// contiguous reports whether the packet followed its predecessor. It
// returns whether the fragment started a keyframe.
func (d *nalDepacketizer) fuAppend(data []byte, start, end, contiguous bool) bool {
	if !d.fuActive {
		// waiting for a start fragment
		return false
	}
	if !start && !contiguous {
		d.log.Debug("discarding FU after packet loss")
		d.fuAbort()
		return false
	}

	d.fuBuf = append(d.fuBuf, data...)
	if !end {
		if start {
			f := media.NewBorrowedFrame(d.codec, d.fuBuf, startCodeSize, d.fuPTS, d.fuPTS)
			return f.KeyFrame()
		}
		return false
	}

	buf := d.fuBuf
	d.fuActive = false
	d.fuBuf = nil
	key := d.emit(buf, d.fuPTS)
	return start && key
}

func (d *nalDepacketizer) fuAbort() {
	d.fuActive = false
	d.fuBuf = nil
}
