package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() Manifest {
	m := Manifest{
		Tile: "T48PWS", Direction: "DES", Orbit: "018", Start: "20190101", End: "20191231",
		Width: 4, Height: 2,
		Thresholds: Thresholds{RiceDB: 5, UrbanDB: -18, WaterDB: -18},
		Scenes:     []Scene{{File: "S1A_T48PWS_VH_DES_018_20190312.tif", Date: "20190312"}},
		Products:   []Product{{Kind: "ricemap", Path: "ricemaps/ricemap_T48PWS_DES_018_20190101_20191231.tif"}},
		Histogram:  map[string]int{"rice": 5, "water": 3},
	}
	m.SetFootprint([6]float64{100, 10, 0, 200, 0, -10}, 4, 2)
	return m
}

func TestFootprint(t *testing.T) {
	poly := Footprint([6]float64{100, 10, 0, 200, 0, -10}, 4, 2)
	require.Len(t, poly, 1)
	assert.Equal(t, orb.Ring{{100, 200}, {140, 200}, {140, 180}, {100, 180}, {100, 200}}, poly[0])

	m := sample()
	assert.Equal(t, []float64{100, 180, 140, 200}, m.BBox)
	assert.Equal(t, "Polygon", m.Footprint.Type)
}

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ricemaps", "manifest.json")
	before := time.Now().Add(-time.Second)
	require.NoError(t, Write(path, sample()))

	m, created, err := Read(path)
	require.NoError(t, err)
	assert.True(t, created.After(before))
	assert.Equal(t, "T48PWS", m.Tile)
	assert.Equal(t, 5, m.Histogram["rice"])
	assert.Equal(t, sample().BBox, m.BBox)
	require.NotNil(t, m.Footprint)
	assert.Equal(t, sample().Footprint.Geometry(), m.Footprint.Geometry())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestReadRejectsTamperedManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, Write(path, sample()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(raw), `"rice": 5`, `"rice": 6`, 1)
	require.NotEqual(t, string(raw), tampered)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0644))

	_, _, err = Read(path)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrChecksum))
}

func TestReadMissing(t *testing.T) {
	_, _, err := Read(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
