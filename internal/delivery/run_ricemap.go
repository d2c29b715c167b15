package delivery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/forest-guardian/ricemap/internal/catalog"
	"github.com/forest-guardian/ricemap/internal/classify"
	"github.com/forest-guardian/ricemap/internal/config"
	"github.com/forest-guardian/ricemap/internal/manifest"
	"github.com/forest-guardian/ricemap/internal/monitor"
	"github.com/forest-guardian/ricemap/internal/notification"
	"github.com/forest-guardian/ricemap/internal/properties"
	"github.com/forest-guardian/ricemap/internal/raster"
	"github.com/forest-guardian/ricemap/internal/stats"
	"github.com/forest-guardian/ricemap/internal/tiler"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Request names the inputs of one classification run.
type Request struct {
	DataDir   string
	OutputDir string
	Orbit     string
	Direction string
	// Start and End are inclusive YYYYMMDD bounds.
	Start string
	End   string
}

// Result summarises a finished run.
type Result struct {
	Scenes       []catalog.Scene
	Products     []manifest.Product
	Histogram    map[properties.Class]int
	ManifestPath string
	Elapsed      time.Duration
	PeakMemory   uint64
	PeakGiB      float64
}

// Intermediate product kinds.
const (
	KindRicemap     = "ricemap"
	KindMean        = "temporalMean"
	KindMaxIncrease = "temporalMaxIncrease"
	KindMin         = "temporalMin"
	KindMax         = "temporalMax"
)

// MaskKind returns the product kind of a class mask, e.g. mask_rice.
func MaskKind(c properties.Class) string {
	return "mask_" + c.String()
}

// RunRicemap classifies the scenes of req and writes the products under
// <OutputDir>/<subdir>. cfg is used by value and never modified. A cancelled
// ctx stops the run with context.Canceled and leaves no product behind.
func RunRicemap(ctx context.Context, req Request, cfg config.Config) (res *Result, err error) {
	started := time.Now()
	log := zap.L().With(zap.String("component", "delivery"))
	discord := notification.NewDiscord(cfg.Notification.DiscordSuccessURL, cfg.Notification.DiscordErrorURL)
	defer func() {
		if err != nil && !errors.Is(err, context.Canceled) {
			if nerr := discord.SendError(context.WithoutCancel(ctx), err.Error()); nerr != nil {
				log.Warn("error notification failed", zap.Error(nerr))
			}
		}
	}()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	filter, err := buildFilter(req)
	if err != nil {
		return nil, err
	}

	mon := monitor.New(int32(os.Getpid()), cfg.Monitor.Interval, nil)
	mon.Start(ctx)
	defer mon.Stop()

	scenes, err := catalog.Discover(req.DataDir, filter, catalog.Options{
		Polarization:    cfg.Catalog.Polarization,
		SatellitePrefix: cfg.Catalog.SatellitePrefix,
		Extension:       cfg.Catalog.Extension,
		FinalizedMarker: cfg.Catalog.FinalizedMarker,
		Selection:       catalog.Selection(strings.ToLower(cfg.Catalog.Selection)),
	})
	if err != nil {
		return nil, err
	}
	times := catalog.TimeAxis(scenes)
	log.Info("scenes selected",
		zap.Int("count", len(scenes)),
		zap.String("first", scenes[0].File),
		zap.String("last", scenes[len(scenes)-1].File),
		zap.Float64s("days", relative(times)),
	)

	meta, err := raster.Probe(scenes[0].Path)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(scenes))
	for i, s := range scenes {
		paths[i] = s.Path
	}
	stack, err := raster.OpenStack(paths, meta, cfg.Processing.Threads)
	if err != nil {
		return nil, err
	}
	defer stack.Close()

	blocks, err := tiler.Blocks(meta.Width, meta.Height, cfg.Processing.BlockSize)
	if err != nil {
		return nil, eris.Wrap(err, "delivery: plan blocks")
	}
	log.Info("computing temporal statistics",
		zap.Int("width", meta.Width), zap.Int("height", meta.Height),
		zap.Int("blocks", len(blocks)),
		zap.Int("threads", cfg.Processing.Threads),
		zap.Int("chunk_multiplier", cfg.Processing.ChunkMultiplier),
	)

	engine := &stats.Engine{
		Params:          stats.Params{NoiseFloor: cfg.Processing.NoiseFloor, MinGapDays: cfg.Processing.MinGapDays},
		Threads:         cfg.Processing.Threads,
		ChunkMultiplier: cfg.Processing.ChunkMultiplier,
		Times:           times,
		Progress:        cfg.Log.Progress,
	}
	rasters, err := engine.Run(ctx, stack, meta.Width, meta.Height, blocks)
	if err != nil {
		return nil, err
	}
	if err := rasters.Validate(); err != nil {
		return nil, err
	}

	classes, err := classify.Classify(ctx, rasters, classify.Params{
		RiceDB:        cfg.Thresholds.RiceDB,
		UrbanDB:       cfg.Thresholds.UrbanDB,
		WaterDB:       cfg.Thresholds.WaterDB,
		MinObjectSize: cfg.Morphology.MinObjectSize,
		MaxHoleSize:   cfg.Morphology.MaxHoleSize,
	})
	if err != nil {
		return nil, err
	}
	histogram := classify.Histogram(classes)

	outDir := filepath.Join(req.OutputDir, cfg.Output.Subdir)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, &raster.WriteError{Path: outDir, Err: eris.Wrap(err, "delivery: create output directory")}
	}
	suffix := catalog.OutputSuffix(scenes[0], req.Start, req.End)
	writer := raster.NewWriter(meta, raster.Options{
		Compression:  cfg.Compression(),
		TileSize:     cfg.Processing.TileSize,
		ReprojectSRS: cfg.Output.ReprojectSRS,
		Threads:      runtime.NumCPU(),
	})

	jobs := []product{{KindRicemap, func(p string) error { return writer.WriteClasses(p, classes) }}}
	if cfg.Output.Intermediate {
		nodata := meta.FloatNoData()
		for _, it := range []struct {
			kind string
			data []float32
		}{
			{KindMean, rasters.Mean},
			{KindMaxIncrease, rasters.Increase},
			{KindMin, rasters.Min},
			{KindMax, rasters.Max},
		} {
			data := it.data
			jobs = append(jobs, product{it.kind, func(p string) error { return writer.WriteFloat32(p, data, nodata) }})
		}
	}
	if cfg.Output.Masks {
		for _, c := range properties.Classes {
			mask := classify.Mask(classes, c)
			jobs = append(jobs, product{MaskKind(c), func(p string) error { return writer.WriteMask(p, mask) }})
		}
	}

	products, err := writeProducts(ctx, outDir, suffix, jobs)
	if err != nil {
		return nil, err
	}

	res = &Result{
		Scenes:    scenes,
		Products:  products,
		Histogram: histogram,
	}

	if cfg.Output.Manifest {
		res.ManifestPath = filepath.Join(outDir, "manifest"+strings.TrimSuffix(suffix, ".tif")+".json")
		m := buildManifest(req, cfg, scenes, products, histogram, meta)
		if err := manifest.Write(res.ManifestPath, m); err != nil {
			return nil, err
		}
	}

	mon.Stop()
	res.Elapsed = time.Since(started)
	res.PeakMemory = mon.Peak()
	res.PeakGiB = mon.PeakGiB()

	fields := []zap.Field{
		zap.Duration("elapsed", res.Elapsed),
		zap.Float64("peak_memory_gib", res.PeakGiB),
		zap.Int("products", len(products)),
	}
	for _, c := range properties.Classes {
		fields = append(fields, zap.Int(c.String(), histogram[c]))
	}
	log.Info("ricemap finished", fields...)

	if err := discord.SendSuccess(ctx, fmt.Sprintf("Ricemap written to %s\nScenes: %d\nRice pixels: %d",
		products[0].Path, len(scenes), histogram[properties.ClassRice])); err != nil {
		log.Warn("success notification failed", zap.Error(err))
	}
	return res, nil
}

type product struct {
	kind  string
	write func(path string) error
}

// writeProducts writes every product in order. On failure or cancellation
// the products already written by this call are removed.
func writeProducts(ctx context.Context, dir, suffix string, jobs []product) ([]manifest.Product, error) {
	var written []manifest.Product
	cleanup := func() {
		for _, p := range written {
			if err := os.Remove(p.Path); err != nil && !os.IsNotExist(err) {
				zap.L().Warn("could not remove partial product", zap.String("path", p.Path), zap.Error(err))
			}
		}
	}
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			cleanup()
			return nil, err
		}
		path := filepath.Join(dir, job.kind+suffix)
		if err := job.write(path); err != nil {
			cleanup()
			os.Remove(path)
			return nil, err
		}
		zap.L().Info("product written", zap.String("kind", job.kind), zap.String("path", path))
		written = append(written, manifest.Product{Kind: job.kind, Path: path})
	}
	return written, nil
}

func buildFilter(req Request) (catalog.Filter, error) {
	start, err := catalog.ParseDate(req.Start)
	if err != nil {
		return catalog.Filter{}, eris.Wrapf(config.ErrInvalid, "start date: %v", err)
	}
	end, err := catalog.ParseDate(req.End)
	if err != nil {
		return catalog.Filter{}, eris.Wrapf(config.ErrInvalid, "end date: %v", err)
	}
	if end.Before(start) {
		return catalog.Filter{}, eris.Wrapf(config.ErrInvalid, "end date %s precedes start date %s", req.End, req.Start)
	}
	if req.Orbit == "" {
		return catalog.Filter{}, eris.Wrap(config.ErrInvalid, "orbit is required")
	}
	dir := strings.ToUpper(req.Direction)
	if dir != "ASC" && dir != "DES" {
		return catalog.Filter{}, eris.Wrapf(config.ErrInvalid, "direction must be ASC or DES, got %q", req.Direction)
	}
	return catalog.Filter{Orbit: req.Orbit, Direction: dir, Start: start, End: end}, nil
}

func buildManifest(req Request, cfg config.Config, scenes []catalog.Scene, products []manifest.Product,
	histogram map[properties.Class]int, meta raster.Metadata) manifest.Manifest {
	m := manifest.Manifest{
		Tile:      scenes[0].Tile,
		Direction: scenes[0].Direction,
		Orbit:     scenes[0].Orbit,
		Start:     req.Start,
		End:       req.End,
		Width:     meta.Width,
		Height:    meta.Height,
		Thresholds: manifest.Thresholds{
			RiceDB:  cfg.Thresholds.RiceDB,
			UrbanDB: cfg.Thresholds.UrbanDB,
			WaterDB: cfg.Thresholds.WaterDB,
		},
		SRS:       cfg.Output.ReprojectSRS,
		Products:  products,
		Histogram: make(map[string]int, len(histogram)),
	}
	for _, s := range scenes {
		m.Scenes = append(m.Scenes, manifest.Scene{File: s.File, Date: s.Date.Format("20060102"), Finalized: s.Finalized})
	}
	for c, n := range histogram {
		m.Histogram[c.String()] = n
	}
	if meta.HasGeoTransform {
		m.SetFootprint(meta.GeoTransform, meta.Width, meta.Height)
	}
	return m
}

// relative returns the acquisition days counted from the first scene.
func relative(times []float64) []float64 {
	out := make([]float64, len(times))
	for i, t := range times {
		out[i] = t - times[0]
	}
	return out
}
