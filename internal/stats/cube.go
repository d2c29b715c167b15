package stats

import (
	"math"

	"github.com/rotisserie/eris"
)

// ErrReduction flags statistics that violate the reduction contract.
var ErrReduction = eris.New("stats: invalid reduction output")

// Cube holds the time series of every pixel of one block, pixel major:
// sample t of pixel (x, y) lives at ((y*Width)+x)*Depth + t.
type Cube struct {
	Width, Height, Depth int
	Values               []float32
	backing              []float32
}

// NewCube allocates a cube able to hold width x height x depth samples.
func NewCube(width, height, depth int) *Cube {
	c := &Cube{Depth: depth, backing: make([]float32, width*height*depth)}
	c.Reshape(width, height)
	return c
}

// Reshape resizes the cube to a smaller block, reusing its allocation.
func (c *Cube) Reshape(width, height int) {
	n := width * height * c.Depth
	if n > len(c.backing) {
		c.backing = make([]float32, n)
	}
	c.Width, c.Height = width, height
	c.Values = c.backing[:n]
}

// Series returns the samples of pixel (x, y), sharing the cube storage.
func (c *Cube) Series(x, y int) []float32 {
	i := (y*c.Width + x) * c.Depth
	return c.Values[i : i+c.Depth : i+c.Depth]
}

// Set stores sample t of pixel (x, y).
func (c *Cube) Set(x, y, t int, v float32) {
	c.Values[(y*c.Width+x)*c.Depth+t] = v
}

// Rasters are the four full extent statistic accumulators, row major.
type Rasters struct {
	Width, Height int
	Mean          []float32
	Increase      []float32
	Min           []float32
	Max           []float32
}

// NewRasters allocates accumulators for a width x height extent.
func NewRasters(width, height int) *Rasters {
	n := width * height
	return &Rasters{
		Width:    width,
		Height:   height,
		Mean:     make([]float32, n),
		Increase: make([]float32, n),
		Min:      make([]float32, n),
		Max:      make([]float32, n),
	}
}

// At returns the statistics of pixel (x, y).
func (r *Rasters) At(x, y int) Pixel {
	i := y*r.Width + x
	return Pixel{Mean: r.Mean[i], Increase: r.Increase[i], Min: r.Min[i], Max: r.Max[i]}
}

// Validate checks the reduction contract over every pixel: mean and increase
// are finite, min and max are finite unless they carry the no-data sentinel,
// and sentinel pixels have zero mean and increase.
func (r *Rasters) Validate() error {
	n := r.Width * r.Height
	if len(r.Mean) != n || len(r.Increase) != n || len(r.Min) != n || len(r.Max) != n {
		return eris.Wrapf(ErrReduction, "accumulator size mismatch for %dx%d", r.Width, r.Height)
	}
	for i := range n {
		mean, inc := float64(r.Mean[i]), float64(r.Increase[i])
		lo, hi := float64(r.Min[i]), float64(r.Max[i])
		if !finite(mean) || !finite(inc) {
			return eris.Wrapf(ErrReduction, "pixel %d: non-finite mean %v or increase %v", i, mean, inc)
		}
		if math.IsNaN(lo) || math.IsNaN(hi) {
			return eris.Wrapf(ErrReduction, "pixel %d: NaN extreme", i)
		}
		sentinel := math.IsInf(lo, 1) && math.IsInf(hi, -1)
		switch {
		case sentinel && (mean != 0 || inc != 0):
			return eris.Wrapf(ErrReduction, "pixel %d: no-data pixel with mean %v increase %v", i, mean, inc)
		case !sentinel && (!finite(lo) || !finite(hi)):
			return eris.Wrapf(ErrReduction, "pixel %d: partial sentinel min %v max %v", i, lo, hi)
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
