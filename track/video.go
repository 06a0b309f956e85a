package track

import (
	"github.com/zsiec/rtpmedia/codec/h264"
	"github.com/zsiec/rtpmedia/codec/h265"
	"github.com/zsiec/rtpmedia/internal/annexb"
	"github.com/zsiec/rtpmedia/media"
)

var startCode = []byte{0, 0, 0, 1}

// paramFormat describes the parameter sets of one video codec.
type paramFormat struct {
	codec     media.CodecID
	nalHeader int
	slots     int
	// slot returns the parameter-set index of nal, or -1.
	slot func(nal []byte) int
	// vcl reports whether nal carries slice data.
	vcl func(nal []byte) bool
	// spsSlot holds the parameter set read by parseSPS.
	spsSlot int
	parseSPS func(sps []byte) (picture, error)
}

type picture struct {
	width  int
	height int
	fps    float64
}

var h264Params = paramFormat{
	codec:     media.CodecH264,
	nalHeader: 1,
	slots:     2,
	slot: func(nal []byte) int {
		switch h264.NALType(nal[0]) {
		case h264.NALTypeSPS:
			return 0
		case h264.NALTypePPS:
			return 1
		}
		return -1
	},
	vcl: func(nal []byte) bool {
		t := h264.NALType(nal[0])
		return t >= h264.NALTypeSlice && t <= h264.NALTypeIDR
	},
	spsSlot: 0,
	parseSPS: func(sps []byte) (picture, error) {
		info, err := h264.ParseSPS(sps)
		return picture{width: info.Width, height: info.Height, fps: info.FPS}, err
	},
}

var h265Params = paramFormat{
	codec:     media.CodecH265,
	nalHeader: 2,
	slots:     3,
	slot: func(nal []byte) int {
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
	vcl: func(nal []byte) bool {
		return h265.NALType(nal[0]) <= h265.NALTypeRsvIRAPVCL23
	},
	spsSlot: 1,
	parseSPS: func(sps []byte) (picture, error) {
		info, err := h265.ParseSPS(sps)
		return picture{width: info.Width, height: info.Height}, err
	},
}

// nalTrack implements parameter-set tracking and config insertion for
// H.264 and H.265.
type nalTrack struct {
	base
	format *paramFormat
	params [][]byte
	pic    picture

	// configSent is set when the last delivered non-droppable frame was a
	// parameter set or a keyframe; the next keyframe then goes out without
	// inserted config.
	configSent bool
}

func newNALTrack(format *paramFormat, component string) nalTrack {
	return nalTrack{
		base:   newBase(format.codec, component),
		format: format,
		params: make([][]byte, format.slots),
	}
}

func (t *nalTrack) cloneNAL() nalTrack {
	cp := nalTrack{
		base:       t.cloneBase(),
		format:     t.format,
		params:     make([][]byte, len(t.params)),
		pic:        t.pic,
		configSent: t.configSent,
	}
	for i, p := range t.params {
		if p != nil {
			cp.params[i] = append([]byte(nil), p...)
		}
	}
	return cp
}

// State implements Track.
func (t *nalTrack) State() State {
	n := 0
	for _, p := range t.params {
		if len(p) > 0 {
			n++
		}
	}
	switch n {
	case 0:
		return Unconfigured
	case len(t.params):
		return Ready
	}
	return PartiallyConfigured
}

func (t *nalTrack) Ready() bool { return t.State() == Ready }

func (t *nalTrack) Width() int   { return t.pic.width }
func (t *nalTrack) Height() int  { return t.pic.height }
func (t *nalTrack) FPS() float64 { return t.pic.fps }

// Reset implements Track.
func (t *nalTrack) Reset() {
	clear(t.params)
	t.pic = picture{}
	t.configSent = false
}

// setParam stores a parameter set without its start code.
func (t *nalTrack) setParam(slot int, nal []byte) {
	t.params[slot] = append([]byte(nil), nal...)
	if slot != t.format.spsSlot {
		return
	}
	pic, err := t.format.parseSPS(t.params[slot])
	if err != nil {
		t.log.Debug("cannot parse SPS", "error", err)
		return
	}
	t.pic = pic
}

// InputFrame implements Track. A single slice is handled directly once
// the track is ready; anything else is split on start codes first, since
// senders often glue parameter sets and slices together.
func (t *nalTrack) InputFrame(f *media.Frame) bool {
	payload := f.Payload()
	if len(payload) < t.format.nalHeader {
		return false
	}
	if f.PrefixSize() == 0 || (t.Ready() && t.format.vcl(payload)) {
		return t.inputNAL(f)
	}

	data := f.Data()
	units := annexb.Split(data, t.format.nalHeader)
	if len(units) == 1 && units[0].Start == 0 && units[0].End == len(data) {
		return t.inputNAL(f)
	}
	accepted := false
	for _, u := range units {
		raw := data[u.Start:u.End]
		var sub *media.Frame
		if f.Storage() == media.Owned {
			sub = media.NewFrame(t.codec, raw, u.Prefix(), f.DTS(), f.PTS())
		} else {
			sub = media.NewBorrowedFrame(t.codec, raw, u.Prefix(), f.DTS(), f.PTS())
		}
		if t.inputNAL(sub.WithTrackIndex(f.TrackIndex())) {
			accepted = true
		}
	}
	return accepted
}

func (t *nalTrack) inputNAL(f *media.Frame) bool {
	nal := f.Payload()
	if len(nal) < t.format.nalHeader {
		return false
	}
	if slot := t.format.slot(nal); slot >= 0 {
		t.setParam(slot, nal)
		t.configSent = true
		return t.deliver(f)
	}

	key := f.KeyFrame()
	if key && !t.configSent {
		t.insertConfig(f)
	}
	if !f.Droppable() {
		t.configSent = key
	}
	return t.deliver(f)
}

func (t *nalTrack) insertConfig(key *media.Frame) {
	for _, cf := range t.ConfigFrames() {
		t.deliver(cf.WithTimestamps(key.DTS(), key.PTS()))
	}
}

// ConfigFrames implements Track. Missing parameter sets are skipped.
func (t *nalTrack) ConfigFrames() []*media.Frame {
	var out []*media.Frame
	for _, p := range t.params {
		if len(p) == 0 {
			continue
		}
		buf := make([]byte, 0, len(startCode)+len(p))
		buf = append(buf, startCode...)
		buf = append(buf, p...)
		out = append(out, media.NewFrame(t.codec, buf, len(startCode), 0, 0).WithTrackIndex(t.index))
	}
	return out
}
