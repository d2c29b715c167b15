package raster

import (
	"context"
	"math"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/ricemap/internal/stats"
	"github.com/forest-guardian/ricemap/internal/tiler"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

type scene struct {
	path      string
	ds        *godal.Dataset
	nodata    float32
	hasNoData bool
	buf       []float32
}

// Stack reads block windows out of an ordered set of scenes sharing the
// reference extent. Scene no-data values are read as NaN.
type Stack struct {
	scenes  []*scene
	threads int
}

// OpenStack opens every scene, in order, and checks it matches meta.
func OpenStack(paths []string, meta Metadata, threads int) (*Stack, error) {
	s := &Stack{threads: max(1, threads)}
	for _, path := range paths {
		ds, err := open(path)
		if err != nil {
			s.Close()
			return nil, eris.Wrapf(ErrMetadata, "open %s: %v", path, err)
		}
		sc := &scene{path: path, ds: ds}
		s.scenes = append(s.scenes, sc)

		st := ds.Structure()
		if st.SizeX != meta.Width || st.SizeY != meta.Height || st.NBands < 1 {
			s.Close()
			return nil, eris.Wrapf(ErrMetadata, "%s is %dx%d, reference is %dx%d",
				path, st.SizeX, st.SizeY, meta.Width, meta.Height)
		}
		nd, ok := ds.Bands()[0].NoData()
		sc.nodata, sc.hasNoData = float32(nd), ok
	}
	return s, nil
}

// Depth returns the number of scenes.
func (s *Stack) Depth() int {
	return len(s.scenes)
}

// ReadBlock reads the block window of every scene concurrently, at most
// threads at a time, into cube.
func (s *Stack) ReadBlock(ctx context.Context, block tiler.Block, cube *stats.Cube) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.threads)
	n := block.Area()
	for t, sc := range s.scenes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if cap(sc.buf) < n {
				sc.buf = make([]float32, n)
			}
			buf := sc.buf[:n]
			if err := sc.ds.Bands()[0].Read(block.X, block.Y, buf, block.Width, block.Height,
				godal.ErrLogger(warnings(sc.path))); err != nil {
				return eris.Wrapf(err, "raster: read %s window (%d,%d) %dx%d",
					sc.path, block.X, block.Y, block.Width, block.Height)
			}
			nan := float32(math.NaN())
			for i, v := range buf {
				if sc.hasNoData && v == sc.nodata {
					v = nan
				}
				cube.Set(i%block.Width, i/block.Width, t, v)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close releases every scene dataset.
func (s *Stack) Close() error {
	var first error
	for _, sc := range s.scenes {
		if err := sc.ds.Close(); err != nil && first == nil {
			first = eris.Wrapf(err, "raster: close %s", sc.path)
		}
	}
	s.scenes = nil
	return first
}

var _ stats.StackReader = (*Stack)(nil)
