package stamp

// RTPClock converts the 32-bit RTP timestamps of one stream to unwrapped
// milliseconds. Reordered packets within half the counter range map
// backwards without disturbing the unwrap state.
type RTPClock struct {
	rate    int64
	started bool
	last    uint32
	ext     int64
	wraps   int64
}

// NewRTPClock creates a clock for the given RTP clock rate (Hz).
func NewRTPClock(clockRate uint32) *RTPClock {
	if clockRate == 0 {
		clockRate = 90000
	}
	return &RTPClock{rate: int64(clockRate)}
}

// ClockRate returns the RTP clock rate in Hz.
func (c *RTPClock) ClockRate() uint32 { return uint32(c.rate) }

// Millis returns ts as milliseconds on the unwrapped timeline.
func (c *RTPClock) Millis(ts uint32) int64 {
	return c.Extend(ts) * 1000 / c.rate
}

// Extend returns ts extended to 64 bits.
func (c *RTPClock) Extend(ts uint32) int64 {
	if !c.started {
		c.started = true
		c.last = ts
		c.ext = int64(ts)
		return c.ext
	}

	delta := int64(int32(ts - c.last))
	ext := c.ext + delta
	if delta > 0 {
		if ts < c.last {
			c.wraps++
		}
		c.last = ts
		c.ext = ext
	}
	return ext
}

// Wraps returns the number of 32-bit wraparounds observed.
func (c *RTPClock) Wraps() int64 { return c.wraps }

// Ticks converts ms to RTP clock ticks, truncated to 32 bits.
func Ticks(ms int64, clockRate uint32) uint32 {
	return uint32(ms * int64(clockRate) / 1000)
}
