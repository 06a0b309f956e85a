// Package caption decodes CEA-608 and CEA-708 closed captions carried in
// A/53 SEI messages of H.264 and H.265 video tracks.
package caption

import (
	"log/slog"
	"sync"

	"github.com/zsiec/ccx"

	"github.com/zsiec/rtpmedia/codec/h264"
	"github.com/zsiec/rtpmedia/codec/h265"
	"github.com/zsiec/rtpmedia/media"
)

// Recorder receives a count for every caption emitted.
type Recorder interface {
	RecordCaption(channel int)
}

// Extractor turns SEI frames into caption frames. Channels 1-4 are CEA-608
// CC1..CC4; channels 7-12 are CEA-708 services 1..6.
//
// InputFrame never blocks: when the caption channel is full the caption
// is dropped.
type Extractor struct {
	log   *slog.Logger
	stats Recorder
	out   chan *ccx.CaptionFrame

	cea608 map[int]*ccx.CEA608Decoder
	cea708 map[int]*ccx.CEA708Service
	dtvcc  []byte

	pictures      int64
	lastCtrl      [2][2]byte
	lastWasCtrl   [2]bool
	lastCtrlFrame [2]int64

	closeOnce sync.Once
}

// NewExtractor creates an extractor. stats may be nil.
func NewExtractor(stats Recorder, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	e := &Extractor{
		log:    log.With("component", "captions"),
		stats:  stats,
		out:    make(chan *ccx.CaptionFrame, media.CaptionBufferSize),
		cea608: make(map[int]*ccx.CEA608Decoder, 4),
		cea708: make(map[int]*ccx.CEA708Service, 6),
	}
	for ch := 1; ch <= 4; ch++ {
		e.cea608[ch] = ccx.NewCEA608Decoder()
	}
	for svc := 1; svc <= 6; svc++ {
		e.cea708[svc] = ccx.NewCEA708Service()
	}
	return e
}

// Captions returns the channel of decoded captions. PTS is in
// milliseconds.
func (e *Extractor) Captions() <-chan *ccx.CaptionFrame { return e.out }

// Close closes the caption channel. InputFrame must not be called after
// Close.
func (e *Extractor) Close() {
	e.closeOnce.Do(func() { close(e.out) })
}

// InputFrame consumes one NAL unit frame of a video track. Only SEI units
// are decoded; the first slice of each picture advances the picture count
// used to drop doubled 608 control codes. It reports whether f carried
// caption data.
func (e *Extractor) InputFrame(f *media.Frame) bool {
	nal := f.Payload()
	if len(nal) == 0 || f.TrackType() != media.TrackVideo {
		return false
	}
	if f.Decodable() {
		e.pictures++
		return false
	}

	switch f.Codec() {
	case media.CodecH264:
		if h264.NALType(nal[0]) != h264.NALTypeSEI {
			return false
		}
	case media.CodecH265:
		if len(nal) <= 2 || h265.NALType(nal[0]) != h265.NALTypeSEIPrefix {
			return false
		}
	default:
		return false
	}
	return e.decodeSEI(nal, f.PTS())
}

func (e *Extractor) decodeSEI(sei []byte, pts int64) bool {
	cd := ccx.ExtractCaptions(sei)
	if cd == nil {
		return false
	}

	for _, pair := range cd.CC608Pairs {
		cc1, cc2 := pair.Data[0], pair.Data[1]
		if e.skipRepeatedControl(int(pair.Field), cc1, cc2) {
			continue
		}
		dec := e.cea608[pair.Channel]
		if dec == nil {
			continue
		}
		if text := dec.Decode(cc1, cc2); text != "" {
			frame := &ccx.CaptionFrame{PTS: pts, Text: text, Channel: pair.Channel}
			frame.Regions = dec.StyledRegions()
			e.emit(frame)
		}
	}

	for _, t := range cd.DTVCC {
		if t.Start {
			e.drainDTVCC(pts)
			e.dtvcc = e.dtvcc[:0]
		}
		e.dtvcc = append(e.dtvcc, t.Data[0], t.Data[1])
	}
	return true
}

// skipRepeatedControl reports whether a 608 control code is the
// transmitted duplicate of the previous one on the same field. Senders
// double every control code; the copy arrives within two pictures.
func (e *Extractor) skipRepeatedControl(field int, cc1, cc2 byte) bool {
	if field < 0 || field > 1 {
		return false
	}
	if c := cc1 & 0x7F; c < 0x10 || c > 0x1F {
		e.lastWasCtrl[field] = false
		return false
	}
	cp := [2]byte{cc1, cc2}
	gap := e.pictures - e.lastCtrlFrame[field]
	if e.lastWasCtrl[field] && e.lastCtrl[field] == cp && gap <= 2 {
		e.lastWasCtrl[field] = false
		return true
	}
	e.lastCtrl[field] = cp
	e.lastWasCtrl[field] = true
	e.lastCtrlFrame[field] = e.pictures
	return false
}

func (e *Extractor) drainDTVCC(pts int64) {
	if len(e.dtvcc) < 1 {
		return
	}
	size := ccx.DTVCCPacketSize(e.dtvcc[0])
	if len(e.dtvcc) < size {
		return
	}

	for _, block := range ccx.ParseDTVCCPacket(e.dtvcc[:size]) {
		svc := e.cea708[block.ServiceNum]
		if svc == nil || !svc.ProcessBlock(block.Data) {
			continue
		}
		if text := svc.DisplayText(); text != "" {
			channel := block.ServiceNum + 6
			frame := &ccx.CaptionFrame{PTS: pts, Text: text, Channel: channel}
			frame.Regions = svc.StyledRegions()
			e.emit(frame)
		}
	}
	e.dtvcc = e.dtvcc[size:]
}

func (e *Extractor) emit(frame *ccx.CaptionFrame) {
	if e.stats != nil {
		e.stats.RecordCaption(frame.Channel)
	}
	select {
	case e.out <- frame:
	default:
		e.log.Debug("caption channel full, dropping caption", "channel", frame.Channel)
	}
}
