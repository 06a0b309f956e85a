package rtpcodec

// seqTracker detects discontinuities in 16-bit RTP sequence numbers.
type seqTracker struct {
	last    uint16
	started bool
}

// observe records seq and returns the number of packets missing before it.
// The first packet never counts as a gap; a duplicate or reordered packet
// reports a gap of the wrapped distance.
func (s *seqTracker) observe(seq uint16) (lost int, gap bool) {
	if !s.started {
		s.started = true
		s.last = seq
		return 0, false
	}
	expected := s.last + 1
	s.last = seq
	if seq == expected {
		return 0, false
	}
	return int(seq - expected), true
}

func (s *seqTracker) reset() { *s = seqTracker{} }
