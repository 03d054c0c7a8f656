package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCeilDiv(t *testing.T) {
	tests := []struct {
		name string
		n, d uint32
		want uint32
	}{
		{"exact", 64, 8, 8},
		{"remainder", 65, 8, 9},
		{"smaller than divisor", 3, 64, 1},
		{"zero extent", 0, 8, 0},
		{"zero divisor", 64, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CeilDiv(tt.n, tt.d))
		})
	}
}

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uint64(256), AlignUp(1, 256))
	assert.Equal(t, uint64(256), AlignUp(256, 256))
	assert.Equal(t, uint64(1024), AlignUp(1000, 256))
	assert.Equal(t, uint64(7), AlignUp(7, 0))
}

func TestSliceToBytes(t *testing.T) {
	assert.Nil(t, SliceToBytes([]float32{}))
	b := SliceToBytes([]uint32{1, 2})
	assert.Len(t, b, 8)

	type color struct{ R, G, B, A float32 }
	c := color{1, 0, 0, 1}
	assert.Len(t, StructToBytes(&c), 16)
}

func TestCoalesce(t *testing.T) {
	assert.Equal(t, "main", Coalesce("", "main", "other"))
	assert.Equal(t, 0, Coalesce(0, 0))
}
