package stamp

import "slices"

// DTSGenerator derives decode timestamps from presentation timestamps for
// streams that may contain B-frames. It learns the reorder depth from the
// first few non-B pictures, then sorts a window of that many pts values:
// the smallest pending pts plus half a P-frame interval is the dts.
type DTSGenerator struct {
	lastPTS    int64
	hasLastPTS bool
	lastDTS    int64
	hasLastDTS bool

	sorterMaxSize      int
	countSorterMaxSize int
	framesSinceMaxPTS  int
	lastMaxPTS         int64
	dtsPTSOffset       int64
	sorter             []int64
}

// Generate returns the dts for pts. While the reorder depth is still
// unknown it returns pts and ok=false. Repeated pts values (several NAL
// units of one picture) return the previous dts.
func (g *DTSGenerator) Generate(pts int64) (dts int64, ok bool) {
	if g.hasLastPTS && pts == g.lastPTS {
		if g.hasLastDTS {
			dts, ok = g.lastDTS, true
		}
	} else {
		dts, ok = g.generate(pts)
		if ok {
			g.lastDTS = dts
			g.hasLastDTS = true
		}
	}
	if !ok {
		dts = pts
	}
	g.lastPTS = pts
	g.hasLastPTS = true
	return dts, ok
}

// ReorderDepth returns the learned pts window size, or 0 when unknown.
func (g *DTSGenerator) ReorderDepth() int { return g.sorterMaxSize }

func (g *DTSGenerator) generate(pts int64) (int64, bool) {
	if g.sorterMaxSize == 1 {
		// no B-frames
		return pts, true
	}

	if g.sorterMaxSize == 0 {
		if pts > g.lastMaxPTS {
			// a P or I picture: the frames since the last one were B-frames
			if g.framesSinceMaxPTS > 0 {
				if g.countSorterMaxSize > 0 {
					g.sorterMaxSize = g.framesSinceMaxPTS
					g.dtsPTSOffset = (pts - g.lastMaxPTS) / 2
				}
				g.countSorterMaxSize++
			}
			g.framesSinceMaxPTS = 0
			g.lastMaxPTS = pts
		}
		g.framesSinceMaxPTS++
	}

	if i, found := slices.BinarySearch(g.sorter, pts); !found {
		g.sorter = slices.Insert(g.sorter, i, pts)
	}

	if g.sorterMaxSize > 0 && len(g.sorter) > g.sorterMaxSize {
		dts := g.sorter[0] + g.dtsPTSOffset
		if dts > pts {
			dts = pts
		}
		g.sorter = g.sorter[1:]
		return dts, true
	}
	return 0, false
}
