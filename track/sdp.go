package track

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"

	"github.com/zsiec/rtpmedia/codec/aac"
	"github.com/zsiec/rtpmedia/media"
)

// New creates an unconfigured track for codec.
func New(codec media.CodecID) (Track, error) {
	switch codec {
	case media.CodecH264:
		return NewH264(nil, nil), nil
	case media.CodecH265:
		return NewH265(nil, nil, nil), nil
	case media.CodecAAC:
		t, _ := NewAAC(nil)
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, codec)
}

// NewFromSDP creates a track seeded from fmtp parameters
// (sprop-parameter-sets, sprop-vps/sps/pps or config). Video tracks
// without parameter sets are returned unconfigured since they may still
// arrive in band; an AAC track requires config.
func NewFromSDP(codec media.CodecID, fmtp map[string]string) (Track, error) {
	switch codec {
	case media.CodecH264:
		sets := strings.Split(fmtp["sprop-parameter-sets"], ",")
		var sps, pps []byte
		if len(sets) >= 2 {
			var err error
			if sps, err = decodeSprop("sprop-parameter-sets", sets[0]); err != nil {
				return nil, err
			}
			if pps, err = decodeSprop("sprop-parameter-sets", sets[1]); err != nil {
				return nil, err
			}
		}
		if len(sps) == 0 || len(pps) == 0 {
			return NewH264(nil, nil), nil
		}
		return NewH264(sps, pps), nil

	case media.CodecH265:
		var sets [3][]byte
		for i, key := range []string{"sprop-vps", "sprop-sps", "sprop-pps"} {
			var err error
			if sets[i], err = decodeSprop(key, fmtp[key]); err != nil {
				return nil, err
			}
		}
		return NewH265(sets[0], sets[1], sets[2]), nil

	case media.CodecAAC:
		hex, ok := fmtp["config"]
		if !ok || hex == "" {
			return nil, fmt.Errorf("%w: fmtp has no AAC config", media.ErrConfigurationInsufficient)
		}
		cfg, err := aac.ParseConfigHex(hex)
		if err != nil {
			return nil, err
		}
		t, err := NewAAC(cfg)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, codec)
}

// decodeSprop decodes one base64 parameter set, rejecting partial decodes.
func decodeSprop(key, value string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", media.ErrMalformedInput, key, err)
	}
	return b, nil
}

// ParseFmtp splits an fmtp attribute value into its parameters. A leading
// payload type ("96 key=value;...") is skipped. Keys are lower-cased.
func ParseFmtp(value string) map[string]string {
	value = strings.TrimSpace(value)
	if pt, rest, ok := strings.Cut(value, " "); ok {
		if _, err := strconv.Atoi(pt); err == nil {
			value = rest
		}
	}
	params := make(map[string]string)
	for _, kv := range strings.Split(value, ";") {
		k, v, _ := strings.Cut(strings.TrimSpace(kv), "=")
		if k == "" {
			continue
		}
		params[strings.ToLower(k)] = strings.TrimSpace(v)
	}
	return params
}

// FromMediaDescription creates a track for the first payload type of md
// using its rtpmap and fmtp attributes. The track index is the position
// of md in its session, taken from idx.
func FromMediaDescription(md *sdp.MediaDescription, idx int) (Track, error) {
	if len(md.MediaName.Formats) == 0 {
		return nil, fmt.Errorf("%w: media section has no formats", media.ErrMalformedInput)
	}
	pt := md.MediaName.Formats[0]

	var name string
	fmtp := map[string]string{}
	for _, a := range md.Attributes {
		switch a.Key {
		case "rtpmap":
			p, enc, ok := strings.Cut(a.Value, " ")
			if ok && p == pt {
				name, _, _ = strings.Cut(enc, "/")
			}
		case "fmtp":
			if p, _, ok := strings.Cut(a.Value, " "); ok && p == pt {
				fmtp = ParseFmtp(a.Value)
			}
		}
	}
	if name == "" {
		return nil, fmt.Errorf("%w: no rtpmap for payload type %s", media.ErrMalformedInput, pt)
	}

	codec, ok := codecByEncodingName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, name)
	}
	t, err := NewFromSDP(codec, fmtp)
	if err != nil {
		return nil, err
	}
	t.SetIndex(idx)
	for _, bw := range md.Bandwidth {
		if strings.EqualFold(bw.Type, "AS") {
			t.SetBitRate(int(bw.Bandwidth) * 1024)
		}
	}
	return t, nil
}

// codecByEncodingName matches rtpmap encoding names case-insensitively.
func codecByEncodingName(name string) (media.CodecID, bool) {
	for _, id := range []media.CodecID{media.CodecH264, media.CodecH265, media.CodecAAC} {
		if strings.EqualFold(id.String(), name) {
			return id, true
		}
	}
	return media.CodecByName(name)
}

// PayloadType returns the default RTP payload type for t.
func PayloadType(t Track) uint8 {
	if t.TrackType() == media.TrackAudio {
		return PayloadTypeAAC
	}
	return PayloadTypeVideo
}

// NewSession builds a session description announcing tracks with their
// default payload types. Every track must be ready.
func NewSession(name string, tracks ...Track) (*sdp.SessionDescription, error) {
	sd := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      0,
			SessionVersion: 0,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "127.0.0.1",
		},
		SessionName: sdp.SessionName(name),
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: "0.0.0.0"},
		},
		TimeDescriptions: []sdp.TimeDescription{{Timing: sdp.Timing{}}},
	}
	for _, t := range tracks {
		md, err := t.SDP(PayloadType(t))
		if err != nil {
			return nil, err
		}
		sd.WithMedia(md)
	}
	return sd, nil
}
