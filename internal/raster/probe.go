// Package raster wraps GDAL access for the classifier: reading the
// reference metadata and the scene stack, and writing GeoTIFF products.
package raster

import (
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrMetadata is returned when a scene cannot be opened or disagrees with
// the reference scene.
var ErrMetadata = eris.New("raster: unreadable scene metadata")

// Metadata describes the reference scene. Products replicate it verbatim
// unless they are reprojected.
type Metadata struct {
	Width, Height   int
	NoData          float64
	HasNoData       bool
	Projection      string
	GeoTransform    [6]float64
	HasGeoTransform bool
	GCPs            []godal.GCP
	GCPProjection   string
	BlockWidth      int
	BlockHeight     int
	Compression     string
	DataType        string
}

// warnings logs GDAL warnings and turns failures into errors.
func warnings(path string) func(godal.ErrorCategory, int, string) error {
	return func(ec godal.ErrorCategory, code int, msg string) error {
		switch ec {
		case godal.CE_Warning:
			zap.L().Warn("gdal warning", zap.String("path", path), zap.Int("code", code), zap.String("msg", msg))
			return nil
		case godal.CE_Failure, godal.CE_Fatal:
			return eris.Errorf("gdal: %s (code %d)", msg, code)
		}
		return nil
	}
}

func open(path string, opts ...godal.OpenOption) (*godal.Dataset, error) {
	opts = append([]godal.OpenOption{godal.ErrLogger(warnings(path))}, opts...)
	return godal.Open(path, opts...)
}

// Probe opens the scene at path once and captures its metadata.
func Probe(path string) (Metadata, error) {
	ds, err := open(path)
	if err != nil {
		return Metadata{}, eris.Wrapf(ErrMetadata, "open %s: %v", path, err)
	}
	defer ds.Close()

	st := ds.Structure()
	if st.NBands < 1 {
		return Metadata{}, eris.Wrapf(ErrMetadata, "%s has no band", path)
	}
	meta := Metadata{
		Width:       st.SizeX,
		Height:      st.SizeY,
		Projection:  ds.Projection(),
		BlockWidth:  st.BlockSizeX,
		BlockHeight: st.BlockSizeY,
		Compression: ds.Metadata("COMPRESSION", godal.Domain("IMAGE_STRUCTURE")),
		DataType:    fmt.Sprint(st.DataType),
	}
	meta.NoData, meta.HasNoData = ds.Bands()[0].NoData()
	if gt, err := ds.GeoTransform(); err == nil {
		meta.GeoTransform, meta.HasGeoTransform = gt, true
	}
	meta.GCPs, meta.GCPProjection = readGCPs(ds)

	zap.L().Info("probed reference scene",
		zap.String("path", path),
		zap.Int("width", meta.Width), zap.Int("height", meta.Height),
		zap.Bool("nodata", meta.HasNoData), zap.Float64("nodata_value", meta.NoData),
		zap.Int("gcps", len(meta.GCPs)),
		zap.String("compression", meta.Compression),
	)
	return meta, nil
}

// readGCPs and writeGCPs keep GCP handling in one place.
func readGCPs(ds *godal.Dataset) ([]godal.GCP, string) {
	gcps := ds.GCPs()
	if len(gcps) == 0 {
		return nil, ""
	}
	return gcps, ds.GCPProjection()
}

func writeGCPs(ds *godal.Dataset, meta Metadata) error {
	if len(meta.GCPs) == 0 {
		return nil
	}
	return ds.SetGCPs(meta.GCPs, godal.GCPProjection(meta.GCPProjection))
}
