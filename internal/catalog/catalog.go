package catalog

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var (
	// ErrEmptyCatalog is returned when the source directory is unreadable or holds no files.
	ErrEmptyCatalog = eris.New("catalog: source directory is empty or unreadable")
	// ErrNoMatch is returned when no scene survives filtering.
	ErrNoMatch = eris.New("catalog: no scene fits the selected period, orbit and direction")
)

// IsCatalogError reports whether err belongs to the catalog failure family.
func IsCatalogError(err error) bool {
	return eris.Is(err, ErrEmptyCatalog) || eris.Is(err, ErrNoMatch)
}

// Selection restricts the candidate files by finalized marker.
type Selection string

const (
	SelectAll         Selection = "all"
	SelectFinalized   Selection = "finalized"
	SelectUnfinalized Selection = "unfinalized"
)

// Options describe how file names are recognised.
type Options struct {
	Polarization    string
	SatellitePrefix string
	Extension       string
	FinalizedMarker string
	Selection       Selection
}

// Filter selects scenes for one run. Start and End are inclusive.
type Filter struct {
	Orbit     string
	Direction string
	Start     time.Time
	End       time.Time
}

func (f Filter) accepts(n Name, opts Options) bool {
	if n.Orbit != f.Orbit || n.Direction != strings.ToUpper(f.Direction) {
		return false
	}
	if n.Polarization != strings.ToLower(opts.Polarization) {
		return false
	}
	if n.Date.Before(f.Start) || n.Date.After(f.End) {
		return false
	}
	switch opts.Selection {
	case SelectFinalized:
		return n.Finalized
	case SelectUnfinalized:
		return !n.Finalized
	}
	return true
}

// Discover scans dir once and returns the matching scenes sorted by date,
// keeping a single scene per acquisition date.
func Discover(dir string, filter Filter, opts Options) ([]Scene, error) {
	log := zap.L().With(zap.String("component", "catalog"), zap.String("dir", dir))
	if opts.Selection == "" {
		opts.Selection = SelectAll
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(ErrEmptyCatalog, "read %s: %v", dir, err)
	}

	files := 0
	byDate := make(map[time.Time]int)
	var scenes []Scene
	for _, entry := range entries {
		// os.Stat follows symlinks to staged scenes.
		info, err := os.Stat(filepath.Join(dir, entry.Name()))
		if err != nil {
			log.Warn("skipping unreadable entry", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		files++

		name, ok := ParseName(entry.Name(), opts)
		if !ok || !filter.accepts(name, opts) {
			continue
		}
		candidate := Scene{
			Name:    name,
			Path:    filepath.Join(dir, entry.Name()),
			File:    entry.Name(),
			ModTime: info.ModTime(),
		}

		idx, dup := byDate[name.Date]
		if !dup {
			byDate[name.Date] = len(scenes)
			scenes = append(scenes, candidate)
			continue
		}
		current := scenes[idx]
		if prefer(candidate, current, opts.Selection) {
			scenes[idx] = candidate
		}
		log.Debug("duplicate acquisition date",
			zap.String("date", name.Date.Format(dateLayout)),
			zap.String("kept", scenes[idx].File),
			zap.Strings("candidates", []string{current.File, candidate.File}),
		)
	}

	if files == 0 {
		return nil, eris.Wrapf(ErrEmptyCatalog, "no files in %s", dir)
	}
	if len(scenes) == 0 {
		return nil, eris.Wrapf(ErrNoMatch, "orbit %s, direction %s, %s to %s",
			filter.Orbit, filter.Direction, filter.Start.Format(dateLayout), filter.End.Format(dateLayout))
	}

	sort.Slice(scenes, func(i, j int) bool {
		return scenes[i].Date.Before(scenes[j].Date)
	})
	return scenes, nil
}

// prefer reports whether candidate should replace current for the same date:
// finalized wins first (unless the selection already fixed the marker), then
// the latest modification time.
func prefer(candidate, current Scene, sel Selection) bool {
	if sel == SelectAll && candidate.Finalized != current.Finalized {
		return candidate.Finalized
	}
	return candidate.ModTime.After(current.ModTime)
}
