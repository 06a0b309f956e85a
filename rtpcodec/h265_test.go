package rtpcodec

import (
	"testing"

	"github.com/pion/rtp/codecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/rtpmedia/media"
)

var (
	testVPS     = []byte{0x40, 0x01, 0x0C, 0x01, 0xFF, 0xFF}
	testH265SPS = []byte{0x42, 0x01, 0x01, 0x01, 0x60}
	testH265PPS = []byte{0x44, 0x01, 0xC1, 0x72}
)

func TestH265PacketizeRoundTrip(t *testing.T) {
	t.Parallel()

	idr := nalOfSize(3003, 0x26, 0x01, 0xAF)
	trail := nalOfSize(53, 0x02, 0x01, 0xD0)
	in := []*media.Frame{
		nalFrame(media.CodecH265, testVPS, 0),
		nalFrame(media.CodecH265, testH265SPS, 0),
		nalFrame(media.CodecH265, testH265PPS, 0),
		nalFrame(media.CodecH265, idr, 0),
		nalFrame(media.CodecH265, trail, 40),
	}

	var log packetLog
	pk := NewH265Packetizer(newTestFactory(90000), log.sink, Config{MTU: 1200})
	for _, f := range in {
		pk.InputFrame(f)
	}
	pk.Flush()

	require.Len(t, log.sent, 7)
	assert.Equal(t, []bool{false, false, false, false, false, true, true}, log.markers())
	assert.Equal(t, []bool{true, false, false, false, false, false, false}, log.keyHints())

	pkts := log.packets()
	assert.Equal(t, []byte{0x62, 0x01, 0x93}, pkts[3].Payload[:3], "FU start")
	assert.Equal(t, []byte{0x62, 0x01, 0x13}, pkts[4].Payload[:3], "FU middle")
	assert.Equal(t, []byte{0x62, 0x01, 0x53}, pkts[5].Payload[:3], "FU end")

	var out frameLog
	d := NewH265Depacketizer(&out, Config{})
	keys := feed(d, pkts)
	assert.Equal(t, []bool{false, false, false, true, false, false, false}, keys)

	require.Len(t, out.frames, len(in))
	for i, f := range out.frames {
		assert.Equal(t, in[i].Data(), f.Data(), "frame %d", i)
		assert.Equal(t, in[i].PTS(), f.PTS())
	}
	assert.True(t, out.frames[3].KeyFrame())
}

func TestH265FUKeepsLayerBits(t *testing.T) {
	t.Parallel()

	// IDR_W_RADL, nuh_layer_id 33, TemporalId 1
	nal := nalOfSize(2000, 0x27, 0x09, 0x80)
	var log packetLog
	pk := NewH265Packetizer(newTestFactory(90000), log.sink, Config{MTU: 800, LowLatency: true})
	pk.InputFrame(nalFrame(media.CodecH265, nal, 0))
	require.Greater(t, len(log.sent), 1)

	for i, s := range log.sent {
		var fu codecs.H265FragmentationUnitPacket
		_, err := fu.Unmarshal(s.pkt.Payload)
		require.NoError(t, err, "packet %d", i)
		assert.Equal(t, uint8(19), fu.FuHeader().FuType())
		assert.Equal(t, uint8(33), fu.PayloadHeader().LayerID())
		assert.Equal(t, uint8(1), fu.PayloadHeader().TID())
		assert.Equal(t, i == 0, fu.FuHeader().S())
		assert.Equal(t, i == len(log.sent)-1, fu.FuHeader().E())
	}

	var out frameLog
	d := NewH265Depacketizer(&out, Config{})
	feed(d, log.packets())
	require.Len(t, out.frames, 1)
	assert.Equal(t, annexB(nal), out.frames[0].Data())
}

func TestH265APConfig(t *testing.T) {
	t.Parallel()

	var log packetLog
	pk := NewH265Packetizer(newTestFactory(90000), log.sink, Config{LowLatency: true, UseSTAPA: true})
	for _, nal := range [][]byte{testVPS, testH265SPS, testH265PPS, {0x26, 0x01, 0xAF, 0x10}} {
		pk.InputFrame(nalFrame(media.CodecH265, nal, 0))
	}
	require.Len(t, log.sent, 2)
	assert.Equal(t, []bool{true, false}, log.keyHints())

	var ap codecs.H265AggregationPacket
	_, err := ap.Unmarshal(log.sent[0].pkt.Payload)
	require.NoError(t, err)
	assert.Equal(t, testVPS, ap.FirstUnit().NalUnit())
	require.Len(t, ap.OtherUnits(), 2)
	assert.Equal(t, testH265SPS, ap.OtherUnits()[0].NalUnit())
	assert.Equal(t, testH265PPS, ap.OtherUnits()[1].NalUnit())

	var out frameLog
	d := NewH265Depacketizer(&out, Config{})
	assert.True(t, d.InputRTP(log.sent[0].pkt))
	require.Len(t, out.frames, 3)
	assert.Equal(t, annexB(testH265PPS), out.frames[2].Data())
}

func TestH265DONL(t *testing.T) {
	t.Parallel()

	t.Run("aggregation", func(t *testing.T) {
		t.Parallel()
		payload := []byte{0x60, 0x01, 0x00, 0x00, 0x00, byte(len(testVPS))}
		payload = append(payload, testVPS...)
		payload = append(payload, 0x00, 0x01, 0x00, byte(len(testH265SPS)))
		payload = append(payload, testH265SPS...)

		var out frameLog
		d := NewH265Depacketizer(&out, Config{UsingDONL: true})
		d.InputRTP(rawPacket(1, 0, true, payload...))
		require.Len(t, out.frames, 2)
		assert.Equal(t, annexB(testVPS), out.frames[0].Data())
		assert.Equal(t, annexB(testH265SPS), out.frames[1].Data())
	})

	t.Run("fragmentation", func(t *testing.T) {
		t.Parallel()
		var out frameLog
		d := NewH265Depacketizer(&out, Config{UsingDONL: true})
		d.InputRTP(rawPacket(1, 0, false, 0x62, 0x01, 0x93, 0x00, 0x07, 0xAF, 0x10))
		d.InputRTP(rawPacket(2, 0, true, 0x62, 0x01, 0x53, 0x20, 0x30))
		require.Len(t, out.frames, 1)
		assert.Equal(t, annexB([]byte{0x26, 0x01, 0xAF, 0x10, 0x20, 0x30}), out.frames[0].Data())
	})
}

func TestH265VPSResync(t *testing.T) {
	t.Parallel()

	trail := []byte{0x02, 0x01, 0xD0, 0x11}
	var out frameLog
	d := NewH265Depacketizer(&out, Config{})

	d.InputRTP(rawPacket(0, 0, true, trail...))
	d.InputRTP(rawPacket(2, 40, true, trail...))
	assert.Equal(t, StateGOPDropped, d.State())
	d.InputRTP(rawPacket(3, 80, false, testVPS...))
	assert.Equal(t, StateIdle, d.State())
	d.InputRTP(rawPacket(4, 80, true, trail...))

	require.Len(t, out.frames, 3)
	assert.Equal(t, annexB(testVPS), out.frames[1].Data())
}

func TestH265MalformedAndUnsupported(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		payload   []byte
		state     DepacketizerState
		malformed int
	}{
		{"empty", nil, StateIdle, 1},
		{"one byte", []byte{0x26}, StateIdle, 1},
		{"short FU", []byte{0x62, 0x01}, StateIdle, 1},
		{"AP overrun", []byte{0x60, 0x01, 0x00, 0x20, 0x40}, StateGOPDropped, 1},
		{"AP truncated size", []byte{0x60, 0x01, 0x00}, StateGOPDropped, 1},
		{"PACI", []byte{0x64, 0x01, 0x00, 0x00}, StateGOPDropped, 0},
		{"reserved type", []byte{0x7E, 0x01, 0x00}, StateGOPDropped, 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var out frameLog
			var stats countingStats
			d := NewH265Depacketizer(&out, Config{Stats: &stats})
			d.InputRTP(rawPacket(7, 0, true, tt.payload...))
			if got := d.State(); got != tt.state {
				t.Errorf("state = %v, want %v", got, tt.state)
			}
			if stats.malformed != tt.malformed {
				t.Errorf("malformed = %d, want %d", stats.malformed, tt.malformed)
			}
			if len(out.frames) != 0 {
				t.Errorf("emitted %d frames, want none", len(out.frames))
			}
		})
	}
}
