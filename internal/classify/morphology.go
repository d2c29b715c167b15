package classify

var (
	neighbours4 = [][2]int{{0, -1}, {-1, 0}, {1, 0}, {0, 1}}
	neighbours8 = [][2]int{{-1, -1}, {0, -1}, {1, -1}, {-1, 0}, {1, 0}, {-1, 1}, {0, 1}, {1, 1}}
)

// RemoveSmallObjects clears 8-connected true components of fewer than
// minSize pixels.
func RemoveSmallObjects(mask []bool, width, height, minSize int) {
	flipSmall(mask, width, height, minSize, true, neighbours8)
}

// RemoveSmallHoles sets 4-connected false components of fewer than maxSize
// pixels, including components touching the border.
func RemoveSmallHoles(mask []bool, width, height, maxSize int) {
	flipSmall(mask, width, height, maxSize, false, neighbours4)
}

// flipSmall inverts every component of value-pixels smaller than size.
func flipSmall(mask []bool, width, height, size int, value bool, nb [][2]int) {
	if size <= 1 {
		return
	}
	seen := make([]bool, len(mask))
	var component, queue []int
	for start := range mask {
		if seen[start] || mask[start] != value {
			continue
		}
		component = component[:0]
		queue = append(queue[:0], start)
		seen[start] = true
		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			component = append(component, i)
			x, y := i%width, i/width
			for _, d := range nb {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || ny < 0 || nx >= width || ny >= height {
					continue
				}
				j := ny*width + nx
				if !seen[j] && mask[j] == value {
					seen[j] = true
					queue = append(queue, j)
				}
			}
		}
		if len(component) < size {
			for _, i := range component {
				mask[i] = !value
			}
		}
	}
}
