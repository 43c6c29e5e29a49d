package localize

import (
	"fmt"
	"math"
)

// DefaultLimFrac is the default threshold fraction for Barycenter.
const DefaultLimFrac = 0.2

// Point is a sub-pixel image position.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Barycenter locates a particle as the mean of two weighted centroids: one
// over the bright region connected to the brightest pixel and one over the
// dark region connected to the darkest pixel.
//
// limFrac moves the thresholds from the window mean (0) towards the extreme
// values (1). Flat windows produce NaN coordinates.
func Barycenter(img Image, window Window, limFrac float64) (Point, error) {
	if err := img.Validate(); err != nil {
		return Point{}, err
	}
	if img.Empty() {
		return Point{}, fmt.Errorf("%w: empty image", ErrWindowOutOfBounds)
	}
	if limFrac < 0 || limFrac > 1 || math.IsNaN(limFrac) {
		return Point{}, fmt.Errorf("limit fraction %v must be within [0, 1]", limFrac)
	}

	b, err := window.clip(img)
	if err != nil {
		return Point{}, err
	}
	if b.width() < 2 || b.height() < 2 {
		return Point{}, fmt.Errorf("%w: %dx%d pixels", ErrWindowTooSmall, b.width(), b.height())
	}

	var sum float64
	minX, minY, maxX, maxY := b.x1, b.y1, b.x1, b.y1
	lo, hi := img.At(b.x1, b.y1), img.At(b.x1, b.y1)
	for y := b.y1; y <= b.y2; y++ {
		for x := b.x1; x <= b.x2; x++ {
			v := img.At(x, y)
			sum += v
			if v > hi {
				hi, maxX, maxY = v, x, y
			}
			if v < lo {
				lo, minX, minY = v, x, y
			}
		}
	}

	if hi == lo {
		return Point{X: math.NaN(), Y: math.NaN()}, nil
	}

	mean := sum / float64(b.width()*b.height())
	sup := (1-limFrac)*mean + limFrac*hi
	inf := (1-limFrac)*mean + limFrac*lo

	light := regionCentroid(img, b, maxX, maxY, func(v float64) float64 { return v - sup })
	dark := regionCentroid(img, b, minX, minY, func(v float64) float64 { return inf - v })

	return Point{X: (light.X + dark.X) / 2, Y: (light.Y + dark.Y) / 2}, nil
}

// regionCentroid flood fills the 4-connected region around (sx, sy) where
// weight is positive and returns its weighted centroid.
func regionCentroid(img Image, b bounds, sx, sy int, weight func(float64) float64) Point {
	w := b.width()
	visited := make([]bool, w*b.height())
	stack := [][2]int{{sx, sy}}
	visited[(sy-b.y1)*w+sx-b.x1] = true

	var mass, mx, my float64
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		wt := weight(img.At(p[0], p[1]))
		if wt <= 0 {
			continue
		}
		mass += wt
		mx += wt * float64(p[0])
		my += wt * float64(p[1])

		for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := p[0]+d[0], p[1]+d[1]
			if nx < b.x1 || nx > b.x2 || ny < b.y1 || ny > b.y2 {
				continue
			}
			idx := (ny-b.y1)*w + nx - b.x1
			if visited[idx] {
				continue
			}
			visited[idx] = true
			stack = append(stack, [2]int{nx, ny})
		}
	}

	if mass == 0 {
		return Point{X: float64(sx), Y: float64(sy)}
	}
	return Point{X: mx / mass, Y: my / mass}
}
