package stamp

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/rtpmedia/media"
)

type revision struct {
	dts, pts         int64
	wantDTS, wantPTS int64
}

func TestCorrectorRevise(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		steps []revision
	}{
		{
			name: "zero based",
			steps: []revision{
				{1000, 1000, 0, 0},
				{1040, 1040, 40, 40},
				{1080, 1080, 80, 80},
			},
		},
		{
			name: "forward jump contributes nothing",
			steps: []revision{
				{1000, 1000, 0, 0},
				{1040, 1040, 40, 40},
				{10000, 10000, 40, 40},
				{10040, 10040, 80, 80},
			},
		},
		{
			name: "small backward step is held at the watermark",
			steps: []revision{
				{1000, 1000, 0, 0},
				{1040, 1040, 40, 40},
				{1020, 1020, 40, 40},
				{1060, 1060, 60, 60},
			},
		},
		{
			name: "large backward step is ignored",
			steps: []revision{
				{90000, 90000, 0, 0},
				{90040, 90040, 40, 40},
				{10, 10, 40, 40},
				{50, 50, 80, 80},
			},
		},
		{
			name: "composition offset kept within bound",
			steps: []revision{
				{0, 80, 0, 80},
				{40, 40, 40, 40},
				{80, 980, 80, 80},
			},
		},
		{
			name: "same dts repeats output",
			steps: []revision{
				{500, 500, 0, 0},
				{540, 540, 40, 40},
				{540, 560, 40, 60},
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewCorrector(nil)
			for i, s := range tt.steps {
				dts, pts := c.Revise(s.dts, s.pts)
				if dts != s.wantDTS || pts != s.wantPTS {
					t.Errorf("step %d: got %d/%d, want %d/%d", i, dts, pts, s.wantDTS, s.wantPTS)
				}
			}
		})
	}
}

func TestCorrectorMonotonicUnderNoise(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	c := NewCorrector(nil)

	var in, last int64
	in = 1 << 31
	for i := 0; i < 5000; i++ {
		switch rng.Intn(10) {
		case 0:
			in -= int64(rng.Intn(1000))
		case 1:
			in += int64(rng.Intn(100000))
		case 2:
			// 32-bit RTP wrap expressed in ms at 90kHz
			in = int64(rng.Intn(100))
		default:
			in += 40
		}
		dts, pts := c.Revise(in, in)
		require.GreaterOrEqual(t, dts, last, "step %d", i)
		require.GreaterOrEqual(t, pts, int64(0), "step %d", i)
		last = dts
	}
}

func TestCorrectorSynthesizesMissingDTS(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	c := NewCorrector(func() time.Time { return now })

	now = now.Add(33 * time.Millisecond)
	dts, pts := c.Revise(media.NoTimestamp, media.NoTimestamp)
	assert.Equal(t, int64(33), dts)
	assert.Equal(t, int64(33), pts)

	now = now.Add(20 * time.Millisecond)
	dts, _ = c.Revise(media.NoTimestamp, media.NoTimestamp)
	assert.Equal(t, int64(53), dts)
}

func TestCorrectorSyncTo(t *testing.T) {
	t.Parallel()

	video := NewCorrector(nil)
	video.Revise(5000, 5000)
	video.Revise(5040, 5040)

	audio := NewCorrector(nil)
	audio.SyncTo(video)
	dts, _ := audio.Revise(5020, 5020)
	assert.Equal(t, int64(0), dts, "first output precedes alignment")
	assert.Equal(t, int64(20), audio.RelativeStamp())

	dts, _ = audio.Revise(5043, 5043)
	assert.Equal(t, int64(43), dts)
}

func TestCorrectorSyncToOutOfWindow(t *testing.T) {
	t.Parallel()

	video := NewCorrector(nil)
	video.Revise(5000, 5000)

	audio := NewCorrector(nil)
	audio.SyncTo(video)
	audio.Revise(20000, 20000)
	audio.Revise(20020, 20020)
	assert.Equal(t, int64(20), audio.RelativeStamp())
}

func TestCorrectorPlayback(t *testing.T) {
	t.Parallel()

	c := NewCorrector(nil)
	c.SetPlayBack(true)

	dts, pts := c.Revise(1000, 1040)
	assert.Equal(t, int64(1000), dts)
	assert.Equal(t, int64(1040), pts)

	dts, _ = c.Revise(500, 500)
	assert.Equal(t, int64(500), dts, "playback allows seeking backwards")
}

func TestCorrectorSetRelativeStamp(t *testing.T) {
	t.Parallel()

	c := NewCorrector(nil)
	c.Revise(100, 100)
	c.SetRelativeStamp(1000)
	dts, _ := c.Revise(140, 140)
	assert.Equal(t, int64(1040), dts)
}
