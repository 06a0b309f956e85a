package media

import "encoding/binary"

// MergeMode selects how a FrameMerger joins the frames of one picture.
type MergeMode int

const (
	// MergePassThrough concatenates frame data unchanged.
	MergePassThrough MergeMode = iota
	// MergeAnnexB emits an Annex B stream, adding a 4-byte start code to
	// frames that lack one.
	MergeAnnexB
	// MergeLengthPrefixed emits 4-byte big-endian NAL lengths, as stored in
	// MP4 samples.
	MergeLengthPrefixed
)

func (m MergeMode) String() string {
	switch m {
	case MergeAnnexB:
		return "annexb"
	case MergeLengthPrefixed:
		return "length-prefixed"
	}
	return "passthrough"
}

// MaxFrameCacheSize bounds the frames a merger holds before forcing a flush.
const MaxFrameCacheSize = 100

// MergeFunc receives one merged access unit. dts and pts are those of the
// first frame in the batch. buf is only valid for the duration of the call.
type MergeFunc func(dts, pts int64, buf []byte, hasKeyFrame bool)

// FrameMerger groups consecutive frames that belong to the same picture
// into a single buffer.
type FrameMerger struct {
	mode      MergeMode
	cache     []*Frame
	decodable bool
	key       bool
	buf       []byte
}

// NewFrameMerger creates a merger for the given mode.
func NewFrameMerger(mode MergeMode) *FrameMerger {
	return &FrameMerger{mode: mode}
}

// Mode returns the merge mode.
func (m *FrameMerger) Mode() MergeMode { return m.mode }

// Pending returns the number of frames waiting for a flush.
func (m *FrameMerger) Pending() int { return len(m.cache) }

// Input queues f, first flushing the pending batch through cb when f starts
// a new picture. A nil frame flushes whatever is pending. The return value
// reports whether a flush happened.
func (m *FrameMerger) Input(f *Frame, cb MergeFunc) bool {
	flushed := false
	if f == nil || m.willFlush(f) {
		flushed = m.flush(cb)
	}
	if f == nil {
		return flushed
	}

	if f.Decodable() {
		m.decodable = true
	}
	if f.KeyFrame() {
		m.key = true
	}
	m.cache = append(m.cache, f.ToOwned())
	return flushed
}

// Flush emits the pending batch, if any.
func (m *FrameMerger) Flush(cb MergeFunc) bool {
	return m.flush(cb)
}

// Clear drops the pending batch.
func (m *FrameMerger) Clear() {
	clear(m.cache)
	m.cache = m.cache[:0]
	m.decodable = false
	m.key = false
}

func (m *FrameMerger) willFlush(next *Frame) bool {
	if len(m.cache) == 0 {
		return false
	}
	if len(m.cache) > MaxFrameCacheSize {
		return true
	}
	last := m.cache[len(m.cache)-1]

	switch m.mode {
	case MergePassThrough:
		if last.DTS() != next.DTS() {
			return true
		}
		switch next.Codec() {
		case CodecH264, CodecH265:
			return next.PrefixSize() > 0
		}
		return false
	default:
		if !m.decodable {
			// no picture started yet: keep gathering SEI/AUD/config
			return false
		}
		return last.DTS() != next.DTS() || next.Decodable() || next.ConfigFrame()
	}
}

func (m *FrameMerger) flush(cb MergeFunc) bool {
	if len(m.cache) == 0 {
		return false
	}
	first := m.cache[0]

	m.buf = m.buf[:0]
	for _, f := range m.cache {
		switch m.mode {
		case MergeAnnexB:
			if f.PrefixSize() == 0 {
				m.buf = append(m.buf, 0, 0, 0, 1)
			}
			m.buf = append(m.buf, f.Data()...)
		case MergeLengthPrefixed:
			p := f.Payload()
			m.buf = binary.BigEndian.AppendUint32(m.buf, uint32(len(p)))
			m.buf = append(m.buf, p...)
		default:
			m.buf = append(m.buf, f.Data()...)
		}
	}

	key := m.key
	m.Clear()
	if cb != nil {
		cb(first.DTS(), first.PTS(), m.buf, key)
	}
	return true
}
