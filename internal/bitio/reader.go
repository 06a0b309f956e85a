// Package bitio provides MSB-first bit reading over H.264/H.265 RBSP data
// together with emulation-prevention removal.
package bitio

import "errors"

// ErrShort is returned when a read runs past the end of the data.
var ErrShort = errors.New("bitio: data too short")

// Reader reads bits MSB-first from a byte slice.
type Reader struct {
	data []byte
	pos  int
	bit  int
}

// NewReader returns a Reader positioned at the first bit of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// ReadBit reads a single bit.
func (r *Reader) ReadBit() (uint, error) {
	if r.pos >= len(r.data) {
		return 0, ErrShort
	}
	val := uint((r.data[r.pos] >> (7 - r.bit)) & 1)
	r.bit++
	if r.bit == 8 {
		r.bit = 0
		r.pos++
	}
	return val, nil
}

// ReadBits reads n bits (n <= 64) as an unsigned value.
func (r *Reader) ReadBits(n int) (uint, error) {
	var val uint
	for i := 0; i < n; i++ {
		b, err := r.ReadBit()
		if err != nil {
			return 0, err
		}
		val = (val << 1) | b
	}
	return val, nil
}

// Skip discards n bits.
func (r *Reader) Skip(n int) error {
	_, err := r.ReadBits(n)
	return err
}

// ReadUE reads an unsigned Exp-Golomb code.
func (r *Reader) ReadUE() (uint, error) {
	zeros := 0
	for {
		b, err := r.ReadBit()
		if err != nil {
			return 0, err
		}
		if b == 1 {
			break
		}
		zeros++
		if zeros > 31 {
			return 0, ErrShort
		}
	}
	if zeros == 0 {
		return 0, nil
	}
	suffix, err := r.ReadBits(zeros)
	if err != nil {
		return 0, err
	}
	return (1 << zeros) - 1 + suffix, nil
}

// ReadSE reads a signed Exp-Golomb code.
func (r *Reader) ReadSE() (int, error) {
	val, err := r.ReadUE()
	if err != nil {
		return 0, err
	}
	if val%2 == 0 {
		return -int(val / 2), nil
	}
	return int((val + 1) / 2), nil
}

// SkipScalingList skips an H.264 scaling_list() of the given size.
func (r *Reader) SkipScalingList(size int) error {
	lastScale := 8
	nextScale := 8
	for j := 0; j < size; j++ {
		if nextScale != 0 {
			delta, err := r.ReadSE()
			if err != nil {
				return err
			}
			nextScale = (lastScale + delta + 256) % 256
		}
		if nextScale != 0 {
			lastScale = nextScale
		}
	}
	return nil
}

// RemoveEmulationPrevention strips the 0x03 emulation-prevention bytes
// from NAL payload data, producing the RBSP.
func RemoveEmulationPrevention(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if i+2 < len(data) && data[i] == 0 && data[i+1] == 0 && data[i+2] == 3 &&
			(i+3 >= len(data) || data[i+3] <= 3) {
			out = append(out, 0, 0)
			i += 2
		} else {
			out = append(out, data[i])
		}
	}
	return out
}
