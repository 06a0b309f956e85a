// Package aac converts between the 2-byte MPEG-4 AudioSpecificConfig and
// the 7-byte ADTS frame header, and splits ADTS byte streams.
package aac

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/zsiec/rtpmedia/media"
)

// ADTSHeaderSize is the size of an ADTS header without CRC.
const ADTSHeaderSize = 7

const maxFrameLength = 0x1FFF

// Errors returned by the header codec. Each wraps a media error kind so
// callers can classify failures with errors.Is.
var (
	ErrMalformedConfig   = fmt.Errorf("%w: aac: malformed AudioSpecificConfig", media.ErrMalformedInput)
	ErrInvalidSyncWord   = fmt.Errorf("%w: aac: invalid ADTS sync word", media.ErrMalformedInput)
	ErrInvalidProfile    = fmt.Errorf("%w: aac: unsupported audio object type", media.ErrMalformedInput)
	ErrInvalidSampleRate = fmt.Errorf("%w: aac: reserved sampling frequency index", media.ErrMalformedInput)
	ErrPayloadTooLarge   = fmt.Errorf("%w: aac: ADTS frame length exceeds 13 bits", media.ErrCapacityExceeded)
)

// errShortHeader is wrapped when fewer than 7 header bytes are available.
var errShortHeader = errors.New("aac: ADTS header too short")

// SampleRates maps the 4-bit sampling frequency index to Hz (ISO 14496-3).
// Indexes 13..15 are reserved.
var SampleRates = [16]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350, 0, 0, 0,
}

// SampleRate returns the rate for a sampling index, or 0 if reserved.
func SampleRate(index byte) int {
	return SampleRates[index&0x0F]
}

// SamplingIndex returns the index of rate in SampleRates.
func SamplingIndex(rate int) (byte, bool) {
	for i, r := range SampleRates {
		if r != 0 && r == rate {
			return byte(i), true
		}
	}
	return 0, false
}

// ADTSHeader holds the fields of an ADTS fixed and variable header.
type ADTSHeader struct {
	ObjectType       byte // MPEG-4 audio object type (profile + 1)
	SamplingIndex    byte
	ChannelConfig    byte
	ProtectionAbsent bool
	FrameLength      int // header plus payload
	BufferFullness   uint16
	RawBlocks        byte
}

// SampleRate returns the sampling rate in Hz.
func (h ADTSHeader) SampleRate() int { return SampleRate(h.SamplingIndex) }

// Channels returns the channel count implied by the channel configuration.
func (h ADTSHeader) Channels() int {
	if h.ChannelConfig == 7 {
		return 8
	}
	return int(h.ChannelConfig)
}

// HeaderSize returns 7, or 9 when a CRC follows the header.
func (h ADTSHeader) HeaderSize() int {
	if h.ProtectionAbsent {
		return ADTSHeaderSize
	}
	return ADTSHeaderSize + 2
}

// ParseConfig extracts the object type, sampling index and channel
// configuration from an AudioSpecificConfig.
func ParseConfig(cfg []byte) (ADTSHeader, error) {
	if len(cfg) < 2 {
		return ADTSHeader{}, fmt.Errorf("%w: %d bytes", ErrMalformedConfig, len(cfg))
	}
	h := ADTSHeader{
		ObjectType:       cfg[0] >> 3,
		SamplingIndex:    (cfg[0]&0x07)<<1 | cfg[1]>>7,
		ChannelConfig:    (cfg[1] & 0x7F) >> 3,
		ProtectionAbsent: true,
		BufferFullness:   0x7FF,
	}
	if SampleRate(h.SamplingIndex) == 0 {
		return ADTSHeader{}, fmt.Errorf("%w: index %d", ErrInvalidSampleRate, h.SamplingIndex)
	}
	return h, nil
}

// WriteADTS packs an ADTS header for a payload of payloadLen bytes.
// MPEG version, layer and raw block count are always 0, protection is
// absent and buffer fullness is 0x7FF (variable bitrate).
func WriteADTS(h ADTSHeader, payloadLen int) ([ADTSHeaderSize]byte, error) {
	var out [ADTSHeaderSize]byte
	if h.ObjectType < 1 || h.ObjectType > 4 {
		return out, fmt.Errorf("%w: object type %d", ErrInvalidProfile, h.ObjectType)
	}
	frameLen := ADTSHeaderSize + payloadLen
	if payloadLen < 0 || frameLen > maxFrameLength {
		return out, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, frameLen)
	}

	profile := h.ObjectType - 1
	const fullness = 0x7FF

	out[0] = 0xFF
	out[1] = 0xF1 // sync low nibble, id=0, layer=0, protection_absent=1
	out[2] = profile<<6 | (h.SamplingIndex&0x0F)<<2 | (h.ChannelConfig>>2)&0x01
	out[3] = (h.ChannelConfig&0x03)<<6 | byte(frameLen>>11)&0x03
	out[4] = byte(frameLen >> 3)
	out[5] = byte(frameLen&0x07)<<5 | byte(fullness>>6)&0x1F
	out[6] = byte(fullness&0x3F) << 2
	return out, nil
}

// ParseADTSHeader decodes the ADTS header at the start of b.
func ParseADTSHeader(b []byte) (ADTSHeader, error) {
	if len(b) < ADTSHeaderSize {
		return ADTSHeader{}, fmt.Errorf("%w: %w", media.ErrMalformedInput, errShortHeader)
	}
	if !HasSyncWord(b) {
		return ADTSHeader{}, ErrInvalidSyncWord
	}
	h := ADTSHeader{
		ObjectType:       b[2]>>6 + 1,
		SamplingIndex:    (b[2] >> 2) & 0x0F,
		ChannelConfig:    (b[2]&0x01)<<2 | b[3]>>6,
		ProtectionAbsent: b[1]&0x01 == 1,
		FrameLength:      int(b[3]&0x03)<<11 | int(b[4])<<3 | int(b[5]>>5),
		BufferFullness:   uint16(b[5]&0x1F)<<6 | uint16(b[6]>>2),
		RawBlocks:        b[6] & 0x03,
	}
	return h, nil
}

// HasSyncWord reports whether b starts with the 12-bit ADTS sync word.
func HasSyncWord(b []byte) bool {
	return len(b) >= 2 && b[0] == 0xFF && b[1]&0xF0 == 0xF0
}

// ConfigFromADTS derives the 2-byte AudioSpecificConfig from an ADTS header.
func ConfigFromADTS(hdr []byte) ([2]byte, error) {
	var cfg [2]byte
	h, err := ParseADTSHeader(hdr)
	if err != nil {
		return cfg, err
	}
	if h.ObjectType-1 == 3 {
		return cfg, fmt.Errorf("%w: ADTS profile 3", ErrInvalidProfile)
	}
	if h.SampleRate() == 0 {
		return cfg, fmt.Errorf("%w: index %d", ErrInvalidSampleRate, h.SamplingIndex)
	}
	cfg[0] = h.ObjectType<<3 | h.SamplingIndex>>1
	cfg[1] = (h.SamplingIndex&0x01)<<7 | h.ChannelConfig<<3
	return cfg, nil
}

// DumpConfig renders a config as the upper-case hex used by SDP fmtp lines.
func DumpConfig(cfg []byte) string {
	return strings.ToUpper(hex.EncodeToString(cfg))
}

// ParseConfigHex decodes the fmtp config= value and validates it.
func ParseConfigHex(s string) ([]byte, error) {
	cfg, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedConfig, err)
	}
	if _, err := ParseConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
