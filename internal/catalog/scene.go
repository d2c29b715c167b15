package catalog

import (
	"io"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rotisserie/eris"
)

const dateLayout = "20060102"

// daysToUnixEpoch is the number of days from 0001-01-01 to 1970-01-01.
const daysToUnixEpoch = 719162

// Name holds the metadata encoded in a scene file name:
// <satellite>_<tile>_<polarization>_<direction>_<orbit>_<YYYYMMDD...>
type Name struct {
	Satellite    string
	Tile         string
	Polarization string
	Direction    string
	Orbit        string
	Date         time.Time
	Finalized    bool
}

// Scene is one catalogued single-band observation. It is never mutated after discovery.
type Scene struct {
	Name
	Path    string
	File    string
	ModTime time.Time
}

// ParseName extracts scene metadata from a file name. Names that do not follow
// the expected field order are rejected.
func ParseName(file string, opts Options) (Name, bool) {
	if !strings.HasPrefix(file, opts.SatellitePrefix) || !strings.HasSuffix(file, opts.Extension) {
		return Name{}, false
	}
	fields := strings.Split(file, "_")
	if len(fields) < 6 || len(fields[5]) < 8 {
		return Name{}, false
	}
	date, err := time.Parse(dateLayout, fields[5][:8])
	if err != nil {
		return Name{}, false
	}
	return Name{
		Satellite:    fields[0],
		Tile:         fields[1],
		Polarization: strings.ToLower(fields[2]),
		Direction:    strings.ToUpper(fields[3]),
		Orbit:        fields[4],
		Date:         date,
		Finalized:    opts.FinalizedMarker != "" && strings.Contains(file, opts.FinalizedMarker),
	}, true
}

// ParseDate parses an inclusive YYYYMMDD bound.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "catalog: parse date %q", s)
	}
	return d, nil
}

// TimeAxis returns one day count per scene, counted from 0001-01-01.
func TimeAxis(scenes []Scene) []float64 {
	axis := make([]float64, len(scenes))
	for i, s := range scenes {
		axis[i] = float64(s.Date.Unix()/86400 + daysToUnixEpoch)
	}
	return axis
}

// OutputSuffix builds the deterministic product name suffix from the earliest scene.
func OutputSuffix(first Scene, start, end string) string {
	return "_" + first.Tile + "_" + first.Direction + "_" + first.Orbit + "_" + start + "_" + end + ".tif"
}

type sceneRow struct {
	Date         string `csv:"date"`
	Satellite    string `csv:"satellite"`
	Tile         string `csv:"tile"`
	Polarization string `csv:"polarization"`
	Direction    string `csv:"direction"`
	Orbit        string `csv:"orbit"`
	Finalized    bool   `csv:"finalized"`
	ModTime      string `csv:"modified"`
	File         string `csv:"file"`
}

// WriteCSV writes the scene listing as CSV.
func WriteCSV(w io.Writer, scenes []Scene) error {
	rows := make([]*sceneRow, 0, len(scenes))
	for _, s := range scenes {
		rows = append(rows, &sceneRow{
			Date:         s.Date.Format(dateLayout),
			Satellite:    s.Satellite,
			Tile:         s.Tile,
			Polarization: s.Polarization,
			Direction:    s.Direction,
			Orbit:        s.Orbit,
			Finalized:    s.Finalized,
			ModTime:      s.ModTime.UTC().Format(time.RFC3339),
			File:         s.File,
		})
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return eris.Wrap(err, "catalog: write csv")
	}
	return nil
}
