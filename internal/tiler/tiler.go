// Package tiler partitions a raster extent into processing blocks and
// splits blocks into row chunks for the parallel statistics pass.
package tiler

import (
	"github.com/rotisserie/eris"
)

// Block is a rectangular sub-extent of the full raster, in pixels.
type Block struct {
	X, Y          int
	Width, Height int
}

// Area returns the number of pixels covered by the block.
func (b Block) Area() int {
	return b.Width * b.Height
}

// Contains reports whether pixel (x, y) falls inside the block.
func (b Block) Contains(x, y int) bool {
	return x >= b.X && x < b.X+b.Width && y >= b.Y && y < b.Y+b.Height
}

// Rows is a half-open row range [Start, End) relative to a block.
type Rows struct {
	Start, End int
}

// Len returns the number of rows in the range.
func (r Rows) Len() int {
	return r.End - r.Start
}

// Blocks covers a width x height extent with edge x edge blocks, left to right
// then top to bottom. The last block of each row and column is clipped.
func Blocks(width, height, edge int) ([]Block, error) {
	if edge <= 0 {
		return nil, eris.Errorf("tiler: block edge must be positive, got %d", edge)
	}
	if width <= 0 || height <= 0 {
		return nil, eris.Errorf("tiler: empty extent %dx%d", width, height)
	}

	blocks := make([]Block, 0, ((width+edge-1)/edge)*((height+edge-1)/edge))
	for y := 0; y < height; y += edge {
		for x := 0; x < width; x += edge {
			blocks = append(blocks, Block{
				X:      x,
				Y:      y,
				Width:  min(edge, width-x),
				Height: min(edge, height-y),
			})
		}
	}
	return blocks, nil
}

// ChunkCount is the number of row chunks for a block:
// min(blockHeight, threads*multiplier), at least 1.
func ChunkCount(blockHeight, threads, multiplier int) int {
	return max(1, min(blockHeight, threads*multiplier))
}

// Chunks splits height rows into n contiguous ranges of near equal size.
func Chunks(height, n int) []Rows {
	n = max(1, min(n, height))
	rows := make([]Rows, n)
	for i := range n {
		rows[i] = Rows{Start: i * height / n, End: (i + 1) * height / n}
	}
	return rows
}
