// Package stamp turns the raw timestamps of a live stream into a smooth,
// zero-based, non-decreasing timeline.
package stamp

import (
	"time"

	"github.com/zsiec/rtpmedia/media"
)

const (
	// MaxDeltaStamp is the largest forward jump (ms) accepted as real time.
	MaxDeltaStamp = 3000
	// MaxCTS is the largest |pts-dts| (ms) accepted as composition offset,
	// and the largest backward step tolerated as jitter.
	MaxCTS = 500
	// SyncWindow is the maximum input drift (ms) for which SyncTo aligns a
	// slave to its master.
	SyncWindow = 5000
)

// Clock returns the current time. Tests substitute a fake clock.
type Clock func() time.Time

// deltaStamp computes the filtered increment between consecutive inputs.
type deltaStamp struct {
	last    int64
	started bool
}

func (d *deltaStamp) next(stamp int64) int64 {
	if !d.started {
		d.started = true
		d.last = stamp
		return 0
	}
	delta := stamp - d.last
	d.last = stamp
	if delta >= 0 {
		if delta < MaxDeltaStamp {
			return delta
		}
		return 0
	}
	if -delta < MaxCTS {
		return delta
	}
	return 0
}

// Corrector revises per-track timestamps. Forward jumps larger than
// MaxDeltaStamp and backward steps larger than MaxCTS contribute nothing,
// so the output advances only by plausible increments and never goes
// backwards. A Corrector is not safe for concurrent use.
type Corrector struct {
	clock    Clock
	start    time.Time
	playback bool
	master   *Corrector

	delta     deltaStamp
	relative  int64
	lastDTSIn int64
	hasIn     bool

	lastDTSOut int64
	lastPTSOut int64
}

// NewCorrector creates a corrector. A nil clock uses time.Now; the clock is
// only consulted for frames without a dts.
func NewCorrector(clock Clock) *Corrector {
	if clock == nil {
		clock = time.Now
	}
	return &Corrector{clock: clock, start: clock()}
}

// SetPlayBack switches to playback mode, where input timestamps are passed
// through unchanged and may go backwards (seeking).
func (c *Corrector) SetPlayBack(playback bool) { c.playback = playback }

// SyncTo aligns this corrector to master once, on the next revised frame,
// provided both inputs are within SyncWindow of each other.
func (c *Corrector) SyncTo(master *Corrector) { c.master = master }

// SetRelativeStamp moves the output timeline to ms.
func (c *Corrector) SetRelativeStamp(ms int64) { c.relative = ms }

// RelativeStamp returns the current output position.
func (c *Corrector) RelativeStamp() int64 { return c.relative }

// Revise maps an input dts/pts pair (ms) to output timestamps. A dts of
// media.NoTimestamp is synthesized from the elapsed time since creation;
// a pts of media.NoTimestamp defaults to dts.
func (c *Corrector) Revise(dts, pts int64) (int64, int64) {
	synthesized := dts == media.NoTimestamp
	outDTS, outPTS := c.revise(dts, pts, synthesized)

	if c.master != nil && !synthesized && !c.playback {
		if c.master.hasIn {
			drift := c.lastDTSIn - c.master.lastDTSIn
			if abs(drift) < SyncWindow {
				c.relative = c.master.relative + drift
			}
			c.master = nil
		}
	}

	if c.playback {
		return outDTS, outPTS
	}
	if outDTS < c.lastDTSOut {
		return c.lastDTSOut, c.lastPTSOut
	}
	c.lastDTSOut = outDTS
	c.lastPTSOut = outPTS
	return outDTS, outPTS
}

func (c *Corrector) revise(dts, pts int64, synthesized bool) (int64, int64) {
	if pts == media.NoTimestamp {
		pts = dts
	}

	if c.playback {
		c.relative = dts
		c.lastDTSIn = dts
		c.hasIn = true
		return dts, pts
	}

	var cts int64
	if synthesized {
		c.relative = c.clock().Sub(c.start).Milliseconds()
	} else {
		cts = pts - dts
		if !c.hasIn || c.lastDTSIn != dts {
			c.relative += c.delta.next(dts)
			c.lastDTSIn = dts
			c.hasIn = true
		}
	}

	if abs(cts) > MaxCTS {
		cts = 0
	}
	return c.relative, c.relative + cts
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
