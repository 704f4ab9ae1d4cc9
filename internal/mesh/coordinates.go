package mesh

import "math"

// Coordinates is a planar position in metres.
type Coordinates struct {
	X float64
	Y float64
}

func (c Coordinates) DistanceTo(other Coordinates) float64 {
	return math.Hypot(c.X-other.X, c.Y-other.Y)
}

func (c Coordinates) Equals(other Coordinates) bool {
	return c.X == other.X && c.Y == other.Y
}

func CreateCoordinates(x float64, y float64) Coordinates {
	return Coordinates{X: x, Y: y}
}

// LinePosition places the i-th node on the x axis, spacing metres apart.
func LinePosition(i int, spacing float64) Coordinates {
	return Coordinates{X: float64(i) * spacing}
}

// GridPosition places the i-th of count nodes on a square grid with the
// given spacing, row by row.
func GridPosition(i, count int, spacing float64) Coordinates {
	cols := int(math.Ceil(math.Sqrt(float64(count))))
	if cols == 0 {
		cols = 1
	}
	return Coordinates{X: float64(i%cols) * spacing, Y: float64(i/cols) * spacing}
}
