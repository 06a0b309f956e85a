// Package media defines the frame model that flows between the RTP codecs,
// the tracks and their consumers, together with the frame merger and the
// consumer dispatcher.
package media

import "fmt"

// Channel buffer sizes for frame subscribers. Sized to absorb jitter without
// excessive memory: ~2 seconds of video, ~2.5s of audio.
const (
	VideoBufferSize   = 60
	AudioBufferSize   = 120
	CaptionBufferSize = 30
)

// NoTimestamp marks an absent pts (defaults to dts) or dts (synthesized by
// the timestamp corrector).
const NoTimestamp int64 = -1

// Track index conventions.
const (
	TrackIndexVideo     = 0
	TrackIndexAudio     = 1
	TrackIndexSynthetic = -1
)

// Storage describes who owns a frame's bytes.
type Storage int

const (
	// Owned frames hold their own copy and may be retained.
	Owned Storage = iota
	// Borrowed frames reference a caller buffer that is only valid for
	// the duration of the call that delivered the frame.
	Borrowed
)

func (s Storage) String() string {
	if s == Borrowed {
		return "borrowed"
	}
	return "owned"
}

// Frame is one unit of an elementary stream: a NAL unit with its optional
// start code, or one AAC access unit with an optional ADTS header. Frames
// are immutable once built; the With* methods return modified copies.
type Frame struct {
	codec      CodecID
	data       []byte
	prefix     int
	dts        int64
	pts        int64
	trackIndex int
	storage    Storage
}

// NewFrame builds an owned frame. The data slice is retained as-is; the
// caller hands over ownership. A pts of NoTimestamp defaults to dts.
func NewFrame(codec CodecID, data []byte, prefix int, dts, pts int64) *Frame {
	return newFrame(codec, data, prefix, dts, pts, Owned)
}

// NewBorrowedFrame builds a frame that references a receive buffer.
// Consumers that retain it must call ToOwned.
func NewBorrowedFrame(codec CodecID, data []byte, prefix int, dts, pts int64) *Frame {
	return newFrame(codec, data, prefix, dts, pts, Borrowed)
}

func newFrame(codec CodecID, data []byte, prefix int, dts, pts int64, st Storage) *Frame {
	if prefix < 0 || prefix > len(data) {
		panic(fmt.Sprintf("media: prefix size %d out of range for %d bytes", prefix, len(data)))
	}
	if pts == NoTimestamp {
		pts = dts
	}
	idx := TrackIndexVideo
	if codec.TrackType() == TrackAudio {
		idx = TrackIndexAudio
	}
	return &Frame{
		codec:      codec,
		data:       data,
		prefix:     prefix,
		dts:        dts,
		pts:        pts,
		trackIndex: idx,
		storage:    st,
	}
}

func (f *Frame) Codec() CodecID         { return f.codec }
func (f *Frame) TrackType() TrackType   { return f.codec.TrackType() }
func (f *Frame) Data() []byte           { return f.data }
func (f *Frame) Payload() []byte        { return f.data[f.prefix:] }
func (f *Frame) PrefixSize() int        { return f.prefix }
func (f *Frame) DTS() int64             { return f.dts }
func (f *Frame) PTS() int64             { return f.pts }
func (f *Frame) TrackIndex() int        { return f.trackIndex }
func (f *Frame) Storage() Storage       { return f.storage }
func (f *Frame) Size() int              { return len(f.data) }
func (f *Frame) CompositionTime() int64 { return f.pts - f.dts }

func (f *Frame) classifier() FrameClassifier {
	if info, ok := LookupCodec(f.codec); ok && info.Classifier != nil {
		return info.Classifier
	}
	return nil
}

// KeyFrame reports whether the frame is a random access point.
func (f *Frame) KeyFrame() bool {
	c := f.classifier()
	return c != nil && c.KeyFrame(f.Payload())
}

// ConfigFrame reports whether the frame carries a parameter set.
func (f *Frame) ConfigFrame() bool {
	c := f.classifier()
	return c != nil && c.ConfigFrame(f.Payload())
}

// Droppable reports whether the frame carries no picture data.
func (f *Frame) Droppable() bool {
	c := f.classifier()
	return c != nil && c.Droppable(f.Payload())
}

// Decodable reports whether the frame starts a new picture.
func (f *Frame) Decodable() bool {
	c := f.classifier()
	return c != nil && c.Decodable(f.Payload())
}

// ToOwned returns f when it already owns its bytes, otherwise a deep copy.
func (f *Frame) ToOwned() *Frame {
	if f.storage == Owned {
		return f
	}
	cp := *f
	cp.data = append([]byte(nil), f.data...)
	cp.storage = Owned
	return &cp
}

// WithTrackIndex returns a shallow copy with a different track index.
func (f *Frame) WithTrackIndex(idx int) *Frame {
	cp := *f
	cp.trackIndex = idx
	return &cp
}

// WithTimestamps returns a shallow copy with replaced timestamps. A pts of
// NoTimestamp defaults to dts.
func (f *Frame) WithTimestamps(dts, pts int64) *Frame {
	if pts == NoTimestamp {
		pts = dts
	}
	cp := *f
	cp.dts = dts
	cp.pts = pts
	return &cp
}

func (f *Frame) String() string {
	return fmt.Sprintf("%s frame dts=%d pts=%d size=%d prefix=%d key=%t",
		f.codec, f.dts, f.pts, len(f.data), f.prefix, f.KeyFrame())
}

// FrameWriter accepts frames. The return value reports whether the frame
// was consumed.
type FrameWriter interface {
	InputFrame(f *Frame) bool
}

// FrameWriterFunc adapts a function to FrameWriter.
type FrameWriterFunc func(f *Frame) bool

func (fn FrameWriterFunc) InputFrame(f *Frame) bool { return fn(f) }
