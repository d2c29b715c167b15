package tiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlocksCoverExtentExactly(t *testing.T) {
	tests := []struct {
		width, height, edge int
	}{
		{1, 1, 1},
		{10, 10, 10},
		{10, 10, 3},
		{1000, 17, 64},
		{17, 1000, 64},
		{4096, 4096, 1024},
		{4097, 4095, 1024},
		{5, 7, 100},
	}

	for _, tt := range tests {
		blocks, err := Blocks(tt.width, tt.height, tt.edge)
		require.NoError(t, err)

		covered := make([]int, tt.width*tt.height)
		area := 0
		for _, b := range blocks {
			assert.Positive(t, b.Width)
			assert.Positive(t, b.Height)
			assert.LessOrEqual(t, b.Width, tt.edge)
			assert.LessOrEqual(t, b.Height, tt.edge)
			area += b.Area()
			for y := b.Y; y < b.Y+b.Height; y++ {
				for x := b.X; x < b.X+b.Width; x++ {
					covered[y*tt.width+x]++
				}
			}
		}
		assert.Equal(t, tt.width*tt.height, area, "%+v", tt)
		for i, c := range covered {
			if !assert.Equal(t, 1, c, "pixel %d of %+v", i, tt) {
				break
			}
		}
	}
}

func TestBlocksOrder(t *testing.T) {
	blocks, err := Blocks(5, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, []Block{
		{0, 0, 2, 2}, {2, 0, 2, 2}, {4, 0, 1, 2},
		{0, 2, 2, 1}, {2, 2, 2, 1}, {4, 2, 1, 1},
	}, blocks)
	assert.True(t, blocks[2].Contains(4, 1))
	assert.False(t, blocks[2].Contains(3, 1))
}

func TestBlocksRejectsBadInput(t *testing.T) {
	_, err := Blocks(10, 10, 0)
	assert.Error(t, err)
	_, err = Blocks(10, 10, -4)
	assert.Error(t, err)
	_, err = Blocks(0, 10, 4)
	assert.Error(t, err)
}

func TestChunkCount(t *testing.T) {
	assert.Equal(t, 512, ChunkCount(4096, 4, 128))
	assert.Equal(t, 100, ChunkCount(100, 4, 128))
	assert.Equal(t, 1, ChunkCount(0, 4, 128))
	assert.Equal(t, 1, ChunkCount(10, 0, 128))
}

func TestChunksPartitionRows(t *testing.T) {
	for _, tc := range []struct{ height, n int }{{10, 3}, {7, 7}, {5, 9}, {1, 1}, {100, 1}} {
		rows := Chunks(tc.height, tc.n)
		require.NotEmpty(t, rows)
		assert.Equal(t, 0, rows[0].Start)
		assert.Equal(t, tc.height, rows[len(rows)-1].End)
		for i := 1; i < len(rows); i++ {
			assert.Equal(t, rows[i-1].End, rows[i].Start)
			assert.Positive(t, rows[i].Len())
		}
	}
}
