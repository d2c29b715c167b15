package classify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func parseMask(rows ...string) ([]bool, int, int) {
	w, h := len(rows[0]), len(rows)
	m := make([]bool, 0, w*h)
	for _, row := range rows {
		for _, c := range row {
			m = append(m, c == '#')
		}
	}
	return m, w, h
}

func formatMask(m []bool, w int) string {
	var b strings.Builder
	for i, v := range m {
		if i > 0 && i%w == 0 {
			b.WriteByte('\n')
		}
		if v {
			b.WriteByte('#')
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}

func TestRemoveSmallObjectsUsesDiagonals(t *testing.T) {
	m, w, h := parseMask(
		"#....",
		".#...",
		"..#..",
		"....#",
	)
	RemoveSmallObjects(m, w, h, 3)
	assert.Equal(t, "#....\n.#...\n..#..\n.....", formatMask(m, w))

	RemoveSmallObjects(m, w, h, 4)
	assert.Equal(t, ".....\n.....\n.....\n.....", formatMask(m, w))
}

func TestRemoveSmallHolesIgnoresDiagonals(t *testing.T) {
	m, w, h := parseMask(
		"#####",
		"#.###",
		"##.##",
		"#####",
	)
	// each diagonal hole is its own single-pixel component
	RemoveSmallHoles(m, w, h, 2)
	assert.Equal(t, "#####\n#####\n#####\n#####", formatMask(m, w))

	m, w, h = parseMask(
		"#####",
		"#..##",
		"#####",
	)
	RemoveSmallHoles(m, w, h, 2)
	assert.Equal(t, "#####\n#..##\n#####", formatMask(m, w))
}

func TestRemoveSmallHolesFillsBorderComponents(t *testing.T) {
	m, w, h := parseMask(
		".####",
		"#####",
	)
	RemoveSmallHoles(m, w, h, 2)
	assert.Equal(t, "#####\n#####", formatMask(m, w))
}

func TestMorphologySizeOneIsNoop(t *testing.T) {
	m, w, h := parseMask("#.#", "...")
	RemoveSmallObjects(m, w, h, 1)
	RemoveSmallHoles(m, w, h, 0)
	assert.Equal(t, "#.#\n...", formatMask(m, w))
}
