// Package stats reduces a stack of co-registered backscatter scenes to four
// per-pixel temporal statistics: mean, max increase, min and max.
package stats

import (
	"context"
	"sync"

	"github.com/forest-guardian/ricemap/internal/tiler"
	"github.com/gammazero/workerpool"
	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// StackReader loads the time series of a block from the scene stack.
type StackReader interface {
	// Depth is the number of scenes in the stack.
	Depth() int
	// ReadBlock fills cube, already shaped to the block, with the block samples.
	ReadBlock(ctx context.Context, block tiler.Block, cube *Cube) error
}

// Engine drives the block-parallel reduction.
type Engine struct {
	Params          Params
	Threads         int
	ChunkMultiplier int
	// Times holds the acquisition day of each scene, in stack order.
	Times []float64
	// Progress draws a progress bar over the blocks on stderr.
	Progress bool
}

// Run reduces the stack over blocks covering a width x height extent.
// Blocks are read one at a time and each block is split into row chunks
// reduced by at most Threads concurrent workers. A cancelled context stops
// the run between chunks and returns ctx.Err().
func (e *Engine) Run(ctx context.Context, stack StackReader, width, height int, blocks []tiler.Block) (*Rasters, error) {
	if len(e.Times) != stack.Depth() {
		return nil, eris.Errorf("stats: %d acquisition times for a stack of %d scenes", len(e.Times), stack.Depth())
	}
	if len(blocks) == 0 {
		return nil, eris.New("stats: no block to process")
	}
	threads := max(1, e.Threads)
	log := zap.L().With(zap.String("component", "stats"))

	var bar *progressbar.ProgressBar
	if e.Progress {
		bar = progressbar.Default(int64(len(blocks)), "Computing temporal statistics")
	} else {
		bar = progressbar.DefaultSilent(int64(len(blocks)))
	}
	defer bar.Finish()

	out := NewRasters(width, height)
	cube := NewCube(blocks[0].Width, blocks[0].Height, stack.Depth())

	wp := workerpool.New(threads)
	defer wp.Stop()

	for i, block := range blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cube.Reshape(block.Width, block.Height)
		if err := stack.ReadBlock(ctx, block, cube); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, eris.Wrapf(err, "stats: read block %d at (%d,%d)", i, block.X, block.Y)
		}

		chunks := tiler.Chunks(block.Height, tiler.ChunkCount(block.Height, threads, e.ChunkMultiplier))
		var wg sync.WaitGroup
		for _, rows := range chunks {
			wg.Add(1)
			wp.Submit(func() {
				defer wg.Done()
				if ctx.Err() != nil {
					return
				}
				ReduceRows(cube, e.Times, e.Params, block, rows, out)
			})
		}
		wg.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_ = bar.Add(1)
		log.Debug("block reduced",
			zap.Int("block", i),
			zap.Int("x", block.X), zap.Int("y", block.Y),
			zap.Int("width", block.Width), zap.Int("height", block.Height),
			zap.Int("chunks", len(chunks)),
		)
	}
	return out, nil
}
