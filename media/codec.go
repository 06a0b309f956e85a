package media

import (
	"fmt"
	"sync"

	"github.com/zsiec/rtpmedia/codec/h264"
	"github.com/zsiec/rtpmedia/codec/h265"
)

// CodecID identifies an elementary stream codec.
type CodecID int

// Known codecs. Only H.264, H.265 and AAC have classifiers and RTP support;
// the rest exist so tracks and SDP can name them.
const (
	CodecInvalid CodecID = iota
	CodecH264
	CodecH265
	CodecAAC
	CodecG711A
	CodecG711U
	CodecOpus
	CodecL16
)

// TrackType is the media kind carried by a track.
type TrackType int

const (
	TrackInvalid TrackType = iota - 1
	TrackVideo
	TrackAudio
	TrackTitle
	TrackApplication
)

func (t TrackType) String() string {
	switch t {
	case TrackVideo:
		return "video"
	case TrackAudio:
		return "audio"
	case TrackTitle:
		return "title"
	case TrackApplication:
		return "application"
	}
	return "invalid"
}

// FrameClassifier evaluates codec predicates on frame payloads. The payload
// passed in is the frame data with its start code or length prefix removed.
type FrameClassifier interface {
	KeyFrame(payload []byte) bool
	ConfigFrame(payload []byte) bool
	Droppable(payload []byte) bool
	Decodable(payload []byte) bool
}

// CodecInfo describes a registered codec.
type CodecInfo struct {
	ID         CodecID
	Name       string
	TrackType  TrackType
	Classifier FrameClassifier
}

var (
	codecMu  sync.RWMutex
	codecTab = map[CodecID]CodecInfo{}
)

// RegisterCodec adds or replaces a codec entry.
func RegisterCodec(info CodecInfo) {
	codecMu.Lock()
	defer codecMu.Unlock()
	codecTab[info.ID] = info
}

// LookupCodec returns the registered entry for id.
func LookupCodec(id CodecID) (CodecInfo, bool) {
	codecMu.RLock()
	defer codecMu.RUnlock()
	info, ok := codecTab[id]
	return info, ok
}

// CodecByName finds a codec by its registered name (case sensitive).
func CodecByName(name string) (CodecID, bool) {
	codecMu.RLock()
	defer codecMu.RUnlock()
	for id, info := range codecTab {
		if info.Name == name {
			return id, true
		}
	}
	return CodecInvalid, false
}

func (c CodecID) String() string {
	if info, ok := LookupCodec(c); ok {
		return info.Name
	}
	return fmt.Sprintf("codec(%d)", int(c))
}

// TrackType returns the registered track type, or TrackInvalid.
func (c CodecID) TrackType() TrackType {
	if info, ok := LookupCodec(c); ok {
		return info.TrackType
	}
	return TrackInvalid
}

type h264Classifier struct{}

func (h264Classifier) KeyFrame(p []byte) bool    { return h264.IsKeyFrame(p) }
func (h264Classifier) ConfigFrame(p []byte) bool { return h264.IsConfig(p) }
func (h264Classifier) Droppable(p []byte) bool   { return h264.IsDroppable(p) }
func (h264Classifier) Decodable(p []byte) bool   { return h264.IsDecodable(p) }

type h265Classifier struct{}

func (h265Classifier) KeyFrame(p []byte) bool    { return h265.IsKeyFrame(p) }
func (h265Classifier) ConfigFrame(p []byte) bool { return h265.IsConfig(p) }
func (h265Classifier) Droppable(p []byte) bool   { return h265.IsDroppable(p) }
func (h265Classifier) Decodable(p []byte) bool   { return h265.IsDecodable(p) }

// audioClassifier treats every audio frame as an independently decodable
// random access point.
type audioClassifier struct{}

func (audioClassifier) KeyFrame([]byte) bool    { return true }
func (audioClassifier) ConfigFrame([]byte) bool { return false }
func (audioClassifier) Droppable([]byte) bool   { return false }
func (audioClassifier) Decodable([]byte) bool   { return true }

func init() {
	RegisterCodec(CodecInfo{ID: CodecH264, Name: "H264", TrackType: TrackVideo, Classifier: h264Classifier{}})
	RegisterCodec(CodecInfo{ID: CodecH265, Name: "H265", TrackType: TrackVideo, Classifier: h265Classifier{}})
	RegisterCodec(CodecInfo{ID: CodecAAC, Name: "mpeg4-generic", TrackType: TrackAudio, Classifier: audioClassifier{}})
	RegisterCodec(CodecInfo{ID: CodecG711A, Name: "PCMA", TrackType: TrackAudio, Classifier: audioClassifier{}})
	RegisterCodec(CodecInfo{ID: CodecG711U, Name: "PCMU", TrackType: TrackAudio, Classifier: audioClassifier{}})
	RegisterCodec(CodecInfo{ID: CodecOpus, Name: "opus", TrackType: TrackAudio, Classifier: audioClassifier{}})
	RegisterCodec(CodecInfo{ID: CodecL16, Name: "L16", TrackType: TrackAudio, Classifier: audioClassifier{}})
}
