package classify

import (
	"context"
	"testing"

	"github.com/forest-guardian/ricemap/internal/properties"
	"github.com/forest-guardian/ricemap/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultParams = Params{RiceDB: 5, UrbanDB: -18, WaterDB: -18, MinObjectSize: 20, MaxHoleSize: 20}

var statsParams = stats.Params{NoiseFloor: 0.0013, MinGapDays: 20}

// field builds rasters whose pixels reduce the series returned by at.
func field(w, h int, times []float64, at func(x, y int) []float32) *stats.Rasters {
	r := stats.NewRasters(w, h)
	for y := range h {
		for x := range w {
			px := stats.ReducePixel(at(x, y), times, statsParams)
			i := y*w + x
			r.Mean[i], r.Increase[i], r.Min[i], r.Max[i] = px.Mean, px.Increase, px.Min, px.Max
		}
	}
	return r
}

func uniform(series ...float32) func(int, int) []float32 {
	return func(int, int) []float32 { return series }
}

func onlyClass(t *testing.T, classes []uint8, want properties.Class) {
	t.Helper()
	h := Histogram(classes)
	assert.Equal(t, len(classes), h[want], "histogram %v", h)
}

func classifyAll(t *testing.T, r *stats.Rasters) []uint8 {
	t.Helper()
	classes, err := Classify(context.Background(), r, defaultParams)
	require.NoError(t, err)
	return classes
}

func TestClassifyRiceScenario(t *testing.T) {
	r := field(8, 8, []float64{0, 25, 40}, uniform(0.002, 0.1, 0.002))
	onlyClass(t, classifyAll(t, r), properties.ClassRice)
}

func TestClassifyWaterOverridesRice(t *testing.T) {
	r := field(8, 8, []float64{0, 10, 30}, uniform(0.0014, 0.0015, 0.01))
	px := r.At(0, 0)
	require.Greater(t, float64(px.Increase), Linear(5))
	require.Less(t, float64(px.Max), Linear(-18))
	onlyClass(t, classifyAll(t, r), properties.ClassWater)
}

func TestClassifyUrbanAndOther(t *testing.T) {
	r := field(8, 8, []float64{0, 30}, uniform(0.05, 0.06))
	onlyClass(t, classifyAll(t, r), properties.ClassUrbanTree)

	// min below the urban threshold, max above the water one
	r = field(8, 8, []float64{0, 30}, uniform(0.01, 0.02))
	onlyClass(t, classifyAll(t, r), properties.ClassOther)
}

func TestClassifyNoDataSentinelsStayUnclassified(t *testing.T) {
	r := field(8, 8, []float64{0, 30}, uniform(0, 0.001))
	onlyClass(t, classifyAll(t, r), properties.ClassNoData)
}

func TestClassifyRemovesSpecklesAndFillsHoles(t *testing.T) {
	times := []float64{0, 25, 40}
	rice := []float32{0.002, 0.1, 0.002}
	flat := []float32{0.01, 0.02, 0.015}

	// a 2x2 rice patch inside other is too small to survive
	r := field(10, 10, times, func(x, y int) []float32 {
		if x >= 4 && x < 6 && y >= 4 && y < 6 {
			return rice
		}
		return flat
	})
	onlyClass(t, classifyAll(t, r), properties.ClassOther)

	// a single flat pixel inside rice is filled
	r = field(10, 10, times, func(x, y int) []float32 {
		if x == 5 && y == 5 {
			return flat
		}
		return rice
	})
	onlyClass(t, classifyAll(t, r), properties.ClassRice)
}

func TestMaskAndHistogram(t *testing.T) {
	classes := []uint8{0, 1, 1, 3, 4, 1}
	assert.Equal(t, []uint8{0, 1, 1, 0, 0, 1}, Mask(classes, properties.ClassRice))
	assert.Equal(t, []uint8{1, 0, 0, 0, 0, 0}, Mask(classes, properties.ClassNoData))

	h := Histogram(classes)
	assert.Equal(t, 3, h[properties.ClassRice])
	assert.Equal(t, 0, h[properties.ClassUrbanTree])
	assert.Len(t, h, len(properties.Classes))
}

func TestLinear(t *testing.T) {
	assert.InDelta(t, 3.1623, Linear(5), 1e-4)
	assert.InDelta(t, 0.015849, Linear(-18), 1e-6)
}

func TestClassifyStopsOnCancel(t *testing.T) {
	r := field(8, 8, []float64{0, 25, 40}, uniform(0.002, 0.1, 0.002))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	classes, err := Classify(ctx, r, defaultParams)
	assert.Nil(t, classes)
	assert.ErrorIs(t, err, context.Canceled)
}
