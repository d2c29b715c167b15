// Package classify turns temporal statistics into land-cover classes.
package classify

import (
	"context"
	"math"

	"github.com/forest-guardian/ricemap/internal/properties"
	"github.com/forest-guardian/ricemap/internal/stats"
)

// Params hold the cascade thresholds in decibels and the cleanup sizes.
type Params struct {
	RiceDB  float64
	UrbanDB float64
	WaterDB float64
	// MinObjectSize removes 8-connected objects with fewer pixels.
	MinObjectSize int
	// MaxHoleSize fills 4-connected holes with fewer pixels.
	MaxHoleSize int
}

// Linear converts decibels to linear power.
func Linear(db float64) float64 {
	return math.Pow(10, db/10)
}

type rule struct {
	class properties.Class
	test  func(px stats.Pixel) bool
}

// Classify applies the threshold cascade. Each rule mask is cleaned before
// being applied and later rules overwrite earlier ones, so the order
// other, rice, urban/tree, water decides conflicts. ctx is checked before
// every rule.
func Classify(ctx context.Context, r *stats.Rasters, p Params) ([]uint8, error) {
	rice, urban, water := Linear(p.RiceDB), Linear(p.UrbanDB), Linear(p.WaterDB)
	rules := []rule{
		{properties.ClassOther, func(px stats.Pixel) bool {
			return px.Mean > 0
		}},
		{properties.ClassRice, func(px stats.Pixel) bool {
			return float64(px.Increase) > rice
		}},
		{properties.ClassUrbanTree, func(px stats.Pixel) bool {
			lo := float64(px.Min)
			return !math.IsInf(lo, 0) && lo > urban
		}},
		{properties.ClassWater, func(px stats.Pixel) bool {
			hi := float64(px.Max)
			return !math.IsInf(hi, 0) && hi < water
		}},
	}

	n := r.Width * r.Height
	classes := make([]uint8, n)
	mask := make([]bool, n)
	for _, rl := range rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range n {
			mask[i] = rl.test(stats.Pixel{Mean: r.Mean[i], Increase: r.Increase[i], Min: r.Min[i], Max: r.Max[i]})
		}
		RemoveSmallObjects(mask, r.Width, r.Height, p.MinObjectSize)
		RemoveSmallHoles(mask, r.Width, r.Height, p.MaxHoleSize)
		for i, set := range mask {
			if set {
				classes[i] = uint8(rl.class)
			}
		}
	}
	return classes, nil
}

// Mask returns 1 where classes equal class and 0 elsewhere.
func Mask(classes []uint8, class properties.Class) []uint8 {
	out := make([]uint8, len(classes))
	for i, c := range classes {
		if properties.Class(c) == class {
			out[i] = 1
		}
	}
	return out
}

// Histogram counts the pixels of every class, including empty ones.
func Histogram(classes []uint8) map[properties.Class]int {
	h := make(map[properties.Class]int, len(properties.Classes))
	for _, c := range properties.Classes {
		h[c] = 0
	}
	for _, c := range classes {
		h[properties.Class(c)]++
	}
	return h
}
