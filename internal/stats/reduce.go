package stats

import (
	"math"

	"github.com/forest-guardian/ricemap/internal/tiler"
)

// Params tune the per-pixel temporal reduction.
type Params struct {
	// NoiseFloor is the linear backscatter value a sample must exceed to count.
	NoiseFloor float64
	// MinGapDays is the minimum delay between the early minimum and the late maximum.
	MinGapDays float64
}

// Pixel holds the four temporal statistics of one pixel.
type Pixel struct {
	Mean     float32
	Increase float32
	Min      float32
	Max      float32
}

var (
	posInf = float32(math.Inf(1))
	negInf = float32(math.Inf(-1))
)

// NoDataPixel is emitted for series without a single valid sample.
var NoDataPixel = Pixel{Mean: 0, Increase: 0, Min: posInf, Max: negInf}

// scratch keeps the filtered series of one worker between pixels.
type scratch struct {
	values []float32
	times  []float64
}

func newScratch(depth int) *scratch {
	return &scratch{values: make([]float32, 0, depth), times: make([]float64, 0, depth)}
}

// ReducePixel computes mean, max increase, min and max of a time series.
// Samples at or below the noise floor, NaN and Inf are discarded first.
func ReducePixel(series []float32, times []float64, p Params) Pixel {
	return reducePixel(series, times, p, newScratch(len(series)))
}

func reducePixel(series []float32, times []float64, p Params, buf *scratch) Pixel {
	values, ts := buf.values[:0], buf.times[:0]
	floor := float32(p.NoiseFloor)
	for t, v := range series {
		// NaN fails the comparison
		if !(v > floor) || math.IsInf(float64(v), 0) {
			continue
		}
		values = append(values, v)
		ts = append(ts, times[t])
	}
	buf.values, buf.times = values, ts

	n := len(values)
	if n == 0 {
		return NoDataPixel
	}

	var sum float64
	lo, hi := values[0], values[0]
	for _, v := range values {
		sum += float64(v)
		lo = min(lo, v)
		hi = max(hi, v)
	}
	px := Pixel{Mean: float32(sum / float64(n)), Min: lo, Max: hi}

	if n > 1 {
		// the minimum is searched in the first half of the season only
		iMin := 0
		for i, v := range values[:n/2] {
			if v < values[iMin] {
				iMin = i
			}
		}
		// the maximum is located at least MinGapDays after the minimum
		after := ts[iMin] + p.MinGapDays
		found := false
		var late float32
		for i, v := range values {
			if ts[i] >= after && (!found || v > late) {
				late, found = v, true
			}
		}
		if found {
			// a huge late sample over a floor-level minimum overflows float32
			px.Increase = float32(min(float64(late)/float64(values[iMin]), math.MaxFloat32))
		}
	}
	return px
}

// ReduceRows reduces a row range of a block cube and stores the statistics
// at the block's position in the full extent accumulators. Distinct row
// ranges write distinct accumulator cells.
func ReduceRows(cube *Cube, times []float64, p Params, block tiler.Block, rows tiler.Rows, out *Rasters) {
	buf := newScratch(cube.Depth)
	for y := rows.Start; y < rows.End; y++ {
		base := (block.Y+y)*out.Width + block.X
		for x := 0; x < block.Width; x++ {
			px := reducePixel(cube.Series(x, y), times, p, buf)
			i := base + x
			out.Mean[i] = px.Mean
			out.Increase[i] = px.Increase
			out.Min[i] = px.Min
			out.Max[i] = px.Max
		}
	}
}
