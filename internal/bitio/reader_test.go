package bitio

import (
	"bytes"
	"testing"
)

func TestReadBits(t *testing.T) {
	t.Parallel()
	r := NewReader([]byte{0b10110010, 0xFF})

	b, err := r.ReadBit()
	if err != nil || b != 1 {
		t.Fatalf("ReadBit: got %d, %v", b, err)
	}
	v, err := r.ReadBits(3)
	if err != nil || v != 0b011 {
		t.Fatalf("ReadBits(3): got %b, %v", v, err)
	}
	v, err = r.ReadBits(8)
	if err != nil || v != 0b00101111 {
		t.Fatalf("ReadBits(8): got %b, %v", v, err)
	}
	if _, err := r.ReadBits(8); err != ErrShort {
		t.Errorf("expected ErrShort, got %v", err)
	}
}

func TestReadExpGolomb(t *testing.T) {
	t.Parallel()
	// ue: 1 -> 0, 010 -> 1, 011 -> 2, 00100 -> 3
	r := NewReader([]byte{0b10100110, 0b01000000})
	want := []uint{0, 1, 2, 3}
	for i, w := range want {
		got, err := r.ReadUE()
		if err != nil {
			t.Fatalf("ReadUE[%d]: %v", i, err)
		}
		if got != w {
			t.Errorf("ReadUE[%d]: got %d, want %d", i, got, w)
		}
	}

	// se: 010 -> 1, 011 -> -1
	r = NewReader([]byte{0b01001100})
	if v, _ := r.ReadSE(); v != 1 {
		t.Errorf("ReadSE: got %d, want 1", v)
	}
	if v, _ := r.ReadSE(); v != -1 {
		t.Errorf("ReadSE: got %d, want -1", v)
	}
}

func TestRemoveEmulationPrevention(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"no escape", []byte{0x01, 0x02, 0x03}, []byte{0x01, 0x02, 0x03}},
		{"escape", []byte{0x00, 0x00, 0x03, 0x01}, []byte{0x00, 0x00, 0x01}},
		{"trailing escape", []byte{0x00, 0x00, 0x03}, []byte{0x00, 0x00}},
		{"not an escape", []byte{0x00, 0x00, 0x03, 0x04}, []byte{0x00, 0x00, 0x03, 0x04}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := RemoveEmulationPrevention(tt.in)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("got %x, want %x", got, tt.want)
			}
		})
	}
}
