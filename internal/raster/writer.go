package raster

import (
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/ricemap/internal/properties"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var (
	// ErrWrite matches every WriteError.
	ErrWrite = eris.New("raster: write failed")
	// ErrCompression is returned for codecs other than deflate, lzw and none.
	ErrCompression = eris.New("raster: unsupported compression")
	// ErrReprojectUpdate is returned when updating a window of a reprojected product.
	ErrReprojectUpdate = eris.New("raster: window update is unavailable while reprojecting")
)

// WriteError carries the path of the product that could not be written.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return "raster: write " + e.Path + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool { return target == ErrWrite }

func writeErr(path string, err error) error {
	return &WriteError{Path: path, Err: err}
}

// Options control the product encoding.
type Options struct {
	// Compression is deflate, lzw or none.
	Compression string
	// TileSize is the GeoTIFF tile edge; below 16 products are stripped.
	TileSize int
	// ReprojectSRS warps products to this SRS when set, e.g. EPSG:4326.
	ReprojectSRS string
	// Threads bounds NUM_THREADS, itself capped at 4.
	Threads int
}

// Writer writes single band products on the reference grid.
type Writer struct {
	meta Metadata
	opts Options
}

// NewWriter returns a writer for products matching meta.
func NewWriter(meta Metadata, opts Options) *Writer {
	return &Writer{meta: meta, opts: opts}
}

type encoding int

const (
	floatEncoding encoding = iota
	byteEncoding
	bitEncoding
)

func codec(name string) (string, error) {
	switch strings.ToLower(name) {
	case "deflate", "":
		return "DEFLATE", nil
	case "lzw":
		return "LZW", nil
	case "none":
		return "NONE", nil
	}
	return "", eris.Wrapf(ErrCompression, "%q", name)
}

func (w *Writer) creationOptions(enc encoding) ([]string, error) {
	compress, err := codec(w.opts.Compression)
	if err != nil {
		return nil, err
	}
	var opts []string
	if w.opts.TileSize >= 16 {
		size := strconv.Itoa(w.opts.TileSize)
		opts = append(opts, "TILED=YES", "BLOCKXSIZE="+size, "BLOCKYSIZE="+size)
	} else {
		opts = append(opts, "TILED=NO")
	}
	opts = append(opts, "COMPRESS="+compress)
	switch {
	case enc == bitEncoding:
		opts = append(opts, "NBITS=1")
	case compress == "NONE":
	case enc == floatEncoding:
		opts = append(opts, "PREDICTOR=3")
	default:
		opts = append(opts, "PREDICTOR=2")
	}
	opts = append(opts, "NUM_THREADS="+strconv.Itoa(max(1, min(4, w.opts.Threads))))
	return opts, nil
}

// WriteFloat32 writes a float product with the given no-data value.
func (w *Writer) WriteFloat32(path string, data []float32, nodata float64) error {
	return w.write(path, floatEncoding, godal.Float32, data, func(b godal.Band) error {
		return b.SetNoData(nodata)
	})
}

// WriteClasses writes the classification raster with its colour table.
// Class 0 is no-data.
func (w *Writer) WriteClasses(path string, data []uint8) error {
	return w.write(path, byteEncoding, godal.Byte, data, func(b godal.Band) error {
		if err := b.SetNoData(float64(properties.ClassNoData)); err != nil {
			return err
		}
		return b.SetColorTable(classColorTable())
	})
}

// WriteMask writes a 1-bit mask with no-data 0.
func (w *Writer) WriteMask(path string, data []uint8) error {
	return w.write(path, bitEncoding, godal.Byte, data, func(b godal.Band) error {
		return b.SetNoData(0)
	})
}

func classColorTable() godal.ColorTable {
	entries := make([][4]int16, len(properties.Classes))
	for i, c := range properties.Classes {
		col := properties.ColorMap[c]
		alpha := int16(255)
		if c == properties.ClassNoData {
			alpha = 0
		}
		entries[i] = [4]int16{int16(col.R), int16(col.G), int16(col.B), alpha}
	}
	return godal.ColorTable{PaletteInterp: godal.RGBPalette, Entries: entries}
}

func (w *Writer) write(path string, enc encoding, dtype godal.DataType, data interface{}, band func(godal.Band) error) error {
	n := w.meta.Width * w.meta.Height
	if l := length(data); l != n {
		return writeErr(path, eris.Errorf("raster: %d values for a %dx%d grid", l, w.meta.Width, w.meta.Height))
	}
	opts, err := w.creationOptions(enc)
	if err != nil {
		return writeErr(path, err)
	}

	if w.opts.ReprojectSRS == "" {
		ds, err := godal.Create(godal.GTiff, path, 1, dtype, w.meta.Width, w.meta.Height,
			godal.CreationOption(opts...), godal.ErrLogger(warnings(path)))
		if err != nil {
			return writeErr(path, eris.Wrap(err, "raster: create"))
		}
		if err := w.fill(ds, data, band); err != nil {
			ds.Close()
			return writeErr(path, err)
		}
		if err := ds.Close(); err != nil {
			return writeErr(path, eris.Wrap(err, "raster: close"))
		}
		zap.L().Debug("product written", zap.String("path", path), zap.Strings("options", opts))
		return nil
	}

	mem, err := godal.Create(godal.Memory, "", 1, dtype, w.meta.Width, w.meta.Height)
	if err != nil {
		return writeErr(path, eris.Wrap(err, "raster: create in-memory dataset"))
	}
	defer mem.Close()
	if err := w.fill(mem, data, band); err != nil {
		return writeErr(path, err)
	}

	switches := []string{"-t_srs", w.opts.ReprojectSRS, "-of", "GTiff"}
	for _, o := range opts {
		switches = append(switches, "-co", o)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return writeErr(path, eris.Wrap(err, "raster: remove previous product"))
	}
	out, err := mem.Warp(path, switches, godal.ErrLogger(warnings(path)))
	if err != nil {
		return writeErr(path, eris.Wrapf(err, "raster: warp to %s", w.opts.ReprojectSRS))
	}
	if err := out.Close(); err != nil {
		return writeErr(path, eris.Wrap(err, "raster: close"))
	}
	zap.L().Debug("product written", zap.String("path", path), zap.String("srs", w.opts.ReprojectSRS))
	return nil
}

// fill copies the reference georeferencing and writes the band values.
func (w *Writer) fill(ds *godal.Dataset, data interface{}, band func(godal.Band) error) error {
	if w.meta.Projection != "" {
		if err := ds.SetProjection(w.meta.Projection); err != nil {
			return eris.Wrap(err, "raster: set projection")
		}
	}
	if w.meta.HasGeoTransform {
		if err := ds.SetGeoTransform(w.meta.GeoTransform); err != nil {
			return eris.Wrap(err, "raster: set geotransform")
		}
	}
	if err := writeGCPs(ds, w.meta); err != nil {
		return eris.Wrap(err, "raster: set gcps")
	}
	b := ds.Bands()[0]
	if err := band(b); err != nil {
		return eris.Wrap(err, "raster: band properties")
	}
	if err := b.Write(0, 0, data, w.meta.Width, w.meta.Height); err != nil {
		return eris.Wrap(err, "raster: write band")
	}
	return nil
}

// UpdateWindow overwrites a window of an existing float product.
func (w *Writer) UpdateWindow(path string, x, y, width, height int, data []float32) error {
	if w.opts.ReprojectSRS != "" {
		return writeErr(path, ErrReprojectUpdate)
	}
	if len(data) != width*height {
		return writeErr(path, eris.Errorf("raster: %d values for a %dx%d window", len(data), width, height))
	}
	ds, err := open(path, godal.Update())
	if err != nil {
		return writeErr(path, eris.Wrap(err, "raster: open for update"))
	}
	if err := ds.Bands()[0].Write(x, y, data, width, height); err != nil {
		ds.Close()
		return writeErr(path, eris.Wrapf(err, "raster: write window (%d,%d) %dx%d", x, y, width, height))
	}
	if err := ds.Close(); err != nil {
		return writeErr(path, eris.Wrap(err, "raster: close"))
	}
	return nil
}

func length(data interface{}) int {
	switch d := data.(type) {
	case []float32:
		return len(d)
	case []uint8:
		return len(d)
	}
	return -1
}

// FloatNoData returns the reference no-data value, or -Inf when the reference
// has none.
func (m Metadata) FloatNoData() float64 {
	if m.HasNoData {
		return m.NoData
	}
	return math.Inf(-1)
}
