// Package manifest records what a run produced next to its products.
package manifest

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
)

// ErrChecksum is returned when a manifest does not match its checksum.
var ErrChecksum = eris.New("manifest: checksum mismatch")

type Thresholds struct {
	RiceDB  float64 `json:"rice_db"`
	UrbanDB float64 `json:"urban_db"`
	WaterDB float64 `json:"water_db"`
}

type Scene struct {
	File      string `json:"file"`
	Date      string `json:"date"`
	Finalized bool   `json:"finalized"`
}

type Product struct {
	Kind string `json:"kind"`
	Path string `json:"path"`
}

// Manifest describes one classification run.
type Manifest struct {
	Tile       string         `json:"tile"`
	Direction  string         `json:"direction"`
	Orbit      string         `json:"orbit"`
	Start      string         `json:"start"`
	End        string         `json:"end"`
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	Thresholds Thresholds     `json:"thresholds"`
	SRS        string         `json:"srs,omitempty"`
	Scenes     []Scene        `json:"scenes"`
	Products   []Product      `json:"products"`
	Histogram  map[string]int `json:"histogram"`
	// Footprint is the grid outline in the reference grid coordinates.
	Footprint *geojson.Geometry `json:"footprint,omitempty"`
	BBox      []float64         `json:"bbox,omitempty"`
}

type entry struct {
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	Checksum  string          `json:"checksum"`
}

// Footprint returns the outline of a width x height grid under an affine
// geotransform.
func Footprint(gt [6]float64, width, height int) orb.Polygon {
	at := func(px, py float64) orb.Point {
		return orb.Point{gt[0] + px*gt[1] + py*gt[2], gt[3] + px*gt[4] + py*gt[5]}
	}
	w, h := float64(width), float64(height)
	ring := orb.Ring{at(0, 0), at(w, 0), at(w, h), at(0, h), at(0, 0)}
	return orb.Polygon{ring}
}

// SetFootprint stores the grid outline and its bounding box.
func (m *Manifest) SetFootprint(gt [6]float64, width, height int) {
	poly := Footprint(gt, width, height)
	m.Footprint = geojson.NewGeometry(poly)
	b := poly.Bound()
	m.BBox = []float64{b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y()}
}

func checksum(data []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return "", err
	}
	sum := md5.Sum(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

// Write stores m at path through a temporary file and a rename.
func Write(path string, m Manifest) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return eris.Wrap(err, "manifest: create directory")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "manifest: marshal")
	}
	sum, err := checksum(data)
	if err != nil {
		return eris.Wrap(err, "manifest: checksum")
	}
	out, err := json.MarshalIndent(entry{Data: data, CreatedAt: time.Now().UTC(), Checksum: sum}, "", "  ")
	if err != nil {
		return eris.Wrap(err, "manifest: marshal entry")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0644); err != nil {
		return eris.Wrap(err, "manifest: write temp file")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return eris.Wrap(err, "manifest: rename temp file")
	}
	return nil
}

// Read loads the manifest at path and verifies its checksum.
func Read(path string) (Manifest, time.Time, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, time.Time{}, eris.Wrap(err, "manifest: read")
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Manifest{}, time.Time{}, eris.Wrap(err, "manifest: unmarshal entry")
	}
	sum, err := checksum(e.Data)
	if err != nil {
		return Manifest{}, time.Time{}, eris.Wrap(err, "manifest: checksum")
	}
	if sum != e.Checksum {
		return Manifest{}, time.Time{}, eris.Wrapf(ErrChecksum, "%s", path)
	}
	var m Manifest
	if err := json.Unmarshal(e.Data, &m); err != nil {
		return Manifest{}, time.Time{}, eris.Wrap(err, "manifest: unmarshal")
	}
	return m, e.CreatedAt, nil
}
