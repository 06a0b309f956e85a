package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/rtpmedia/media"
	"github.com/zsiec/rtpmedia/rtpcodec"
	"github.com/zsiec/rtpmedia/track"
)

var (
	// 1280x720 baseline profile
	sps720, _ = base64.StdEncoding.DecodeString("Z0LAH9oBQBboQAAAAwBAAAAPI8YMqA==")
	pps720, _ = base64.StdEncoding.DecodeString("aM48gA==")

	avcIDR = []byte{0x65, 0x88, 0x84, 0x21}
	avcP   = []byte{0x41, 0x9A, 0x02}
)

func nalFrame(codec media.CodecID, nal []byte, ms int64) *media.Frame {
	return media.NewFrame(codec, append([]byte{0, 0, 0, 1}, nal...), 4, ms, ms)
}

// packetize runs frames through the registered packetizer and returns the
// packets on a closed channel.
func packetize(t *testing.T, codec media.CodecID, clockRate uint32, frames ...*media.Frame) (<-chan *rtp.Packet, int) {
	t.Helper()

	var pkts []*rtp.Packet
	sink := func(pkt *rtpcodec.Packet, _ bool) { pkts = append(pkts, &pkt.Packet) }
	factory := rtpcodec.NewPacketFactory(0x1234, 96, clockRate, rtp.NewFixedSequencer(100))
	pk, err := rtpcodec.NewPacketizer(codec, factory, sink, rtpcodec.DefaultConfig())
	require.NoError(t, err)
	for _, f := range frames {
		require.True(t, pk.InputFrame(f))
	}
	pk.Flush()

	ch := make(chan *rtp.Packet, len(pkts))
	for _, pkt := range pkts {
		ch <- pkt
	}
	close(ch)
	return ch, len(pkts)
}

func collect(tr track.Track) *[]*media.Frame {
	var out []*media.Frame
	tr.AddConsumer(func(f *media.Frame) bool {
		out = append(out, f.ToOwned())
		return true
	})
	return &out
}

func TestPipelineH264(t *testing.T) {
	t.Parallel()

	p, err := New("cam1", media.CodecH264, Config{})
	require.NoError(t, err)
	assert.Equal(t, "unconfigured", p.Debug().TrackState)
	assert.Nil(t, p.Captions())

	frames := collect(p.Track())
	ch, n := packetize(t, media.CodecH264, 90000,
		nalFrame(media.CodecH264, sps720, 0),
		nalFrame(media.CodecH264, pps720, 0),
		nalFrame(media.CodecH264, avcIDR, 0),
		nalFrame(media.CodecH264, avcP, 40),
	)
	require.NoError(t, p.Run(context.Background(), ch))

	require.True(t, p.Track().Ready())
	require.Len(t, *frames, 4)
	assert.True(t, (*frames)[2].KeyFrame())
	assert.Equal(t, avcP, (*frames)[3].Payload())
	assert.Equal(t, int64(40), (*frames)[3].PTS())

	snap := p.Stats().Snapshot()
	assert.Equal(t, int64(n), snap.Packets)
	assert.Equal(t, int64(1), snap.KeyFrames)
	assert.Equal(t, 1280, snap.Width)
	assert.Equal(t, 720, snap.Height)
	assert.Equal(t, "H264", snap.Codec)

	dbg := p.Debug()
	assert.Equal(t, int64(n), dbg.PacketsIn)
	assert.Equal(t, int64(4), dbg.FramesIn)
	assert.Equal(t, int64(4), dbg.FramesOut)
	assert.Equal(t, "idle", dbg.DepacketizerState)
	assert.Equal(t, "ready", dbg.TrackState)
}

func TestPipelineAAC(t *testing.T) {
	t.Parallel()

	p, err := New("mic", media.CodecAAC, Config{AACConfig: []byte{0x12, 0x10}})
	require.NoError(t, err)
	require.True(t, p.Track().Ready())

	frames := collect(p.Track())
	ch, _ := packetize(t, media.CodecAAC, 44100,
		media.NewFrame(media.CodecAAC, []byte{0x21, 0x10, 0x05, 0x00}, 0, 0, 0),
		media.NewFrame(media.CodecAAC, []byte{0x21, 0x10, 0x05, 0x01}, 0, 23, 23),
	)
	require.NoError(t, p.Run(context.Background(), ch))

	require.Len(t, *frames, 2)
	for _, f := range *frames {
		assert.Equal(t, 7, f.PrefixSize(), "depacketized units carry an ADTS header")
		assert.Equal(t, byte(0xFF), f.Data()[0])
	}
	assert.Equal(t, int64(2), p.Debug().FramesOut)
}

func TestPipelineAACNeedsConfig(t *testing.T) {
	t.Parallel()

	_, err := New("mic", media.CodecAAC, Config{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, media.ErrConfigurationInsufficient), "got %v", err)

	unconfigured, err := track.NewAAC(nil)
	require.NoError(t, err)
	p, err := New("mic", media.CodecAAC, Config{Track: unconfigured, AACConfig: []byte{0x11, 0x90}})
	require.NoError(t, err)
	assert.Same(t, unconfigured, p.Track())
	assert.True(t, unconfigured.Ready())
}

func TestPipelineRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		codec media.CodecID
		cfg   Config
	}{
		{"unsupported codec", media.CodecOpus, Config{}},
		{"track codec mismatch", media.CodecH265, Config{Track: track.NewH264(nil, nil)}},
		{"bad aac config", media.CodecAAC, Config{AACConfig: []byte{0x12}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New("x", tt.codec, tt.cfg); err == nil {
				t.Errorf("New(%s): got nil error, want error", tt.codec)
			}
		})
	}
}

func TestPipelineContextCancel(t *testing.T) {
	t.Parallel()

	p, err := New("cam2", media.CodecH265, Config{Captions: true})
	require.NoError(t, err)
	require.NotNil(t, p.Captions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx, make(chan *rtp.Packet)))

	_, ok := <-p.Captions()
	assert.False(t, ok, "caption channel is closed when Run returns")
	assert.Equal(t, int64(media.NoTimestamp), p.Debug().LastDTS)
}
