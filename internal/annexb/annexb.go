// Package annexb locates start codes in H.264/H.265 Annex B byte streams.
package annexb

// Unit is the position of one NAL unit inside an Annex B buffer.
type Unit struct {
	Start int // index of the first start-code byte
	Data  int // index of the first NAL header byte
	End   int // index one past the last NAL byte
}

// Prefix returns the start-code length of the unit.
func (u Unit) Prefix() int { return u.Data - u.Start }

// Split scans data for 3-byte (0x000001) and 4-byte (0x00000001) start
// codes and returns the NAL unit positions. Units shorter than minNALBytes
// are skipped.
func Split(data []byte, minNALBytes int) []Unit {
	n := len(data)
	if n < 4 {
		return nil
	}

	type scPos struct {
		scStart   int
		dataStart int
	}

	var positions []scPos
	i := 0
	for i < n-2 {
		if data[i] == 0 && data[i+1] == 0 {
			if i < n-3 && data[i+2] == 0 && data[i+3] == 1 {
				positions = append(positions, scPos{scStart: i, dataStart: i + 4})
				i += 4
				continue
			}
			if data[i+2] == 1 {
				positions = append(positions, scPos{scStart: i, dataStart: i + 3})
				i += 3
				continue
			}
		}
		i++
	}

	units := make([]Unit, 0, len(positions))
	for idx, pos := range positions {
		if pos.dataStart >= n {
			continue
		}
		end := n
		if idx+1 < len(positions) {
			end = positions[idx+1].scStart
		}
		if end-pos.dataStart < minNALBytes {
			continue
		}
		units = append(units, Unit{Start: pos.scStart, Data: pos.dataStart, End: end})
	}
	return units
}

// PrefixSize returns the length of the start code at the beginning of data,
// or 0 if data does not begin with one.
func PrefixSize(data []byte) int {
	if len(data) >= 4 && data[0] == 0 && data[1] == 0 && data[2] == 0 && data[3] == 1 {
		return 4
	}
	if len(data) >= 3 && data[0] == 0 && data[1] == 0 && data[2] == 1 {
		return 3
	}
	return 0
}
