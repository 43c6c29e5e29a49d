// Package localize finds particle positions in grayscale images.
//
// All coordinates are zero based pixel coordinates: the centre of the top
// left pixel is (0, 0), x grows to the right and y grows downwards.
package localize

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidImage is returned for images whose pixel count does not match
	// their dimensions.
	ErrInvalidImage = errors.New("invalid image")
	// ErrWindowOutOfBounds is returned when a window does not overlap the image.
	ErrWindowOutOfBounds = errors.New("window is outside the image")
	// ErrWindowTooSmall is returned when a window has too few pixels to fit.
	ErrWindowTooSmall = errors.New("window is too small")
)

// Image is a row-major grayscale image.
type Image struct {
	Width  int       `json:"width"  yaml:"width"`
	Height int       `json:"height" yaml:"height"`
	Pix    []float64 `json:"pix"    yaml:"pix"`
}

// NewImage checks that pix holds width*height values.
func NewImage(width, height int, pix []float64) (Image, error) {
	img := Image{Width: width, Height: height, Pix: pix}
	if err := img.Validate(); err != nil {
		return Image{}, err
	}
	return img, nil
}

// Validate reports whether the dimensions and pixel slice agree.
func (im Image) Validate() error {
	if im.Width < 0 || im.Height < 0 || len(im.Pix) != im.Width*im.Height {
		return fmt.Errorf("%w: %dx%d with %d pixels", ErrInvalidImage, im.Width, im.Height, len(im.Pix))
	}
	return nil
}

// Empty reports whether the image has no pixels.
func (im Image) Empty() bool {
	return im.Width == 0 || im.Height == 0 || len(im.Pix) == 0
}

// At returns the pixel value at column x, row y.
func (im Image) At(x, y int) float64 {
	return im.Pix[y*im.Width+x]
}

// Window is a sub-region [X, Y, W, H] of an image. X and Y locate the top
// left pixel. A zero window selects the whole image.
type Window struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	W float64 `json:"w" yaml:"w"`
	H float64 `json:"h" yaml:"h"`
}

// WindowFromSlice builds a window from an [x, y, w, h] list.
func WindowFromSlice(v []float64) (Window, error) {
	if len(v) != 4 {
		return Window{}, fmt.Errorf("window needs 4 values [x y w h], got %d", len(v))
	}
	return Window{X: v[0], Y: v[1], W: v[2], H: v[3]}, nil
}

// IsZero reports whether the window selects the whole image.
func (w Window) IsZero() bool {
	return w == Window{}
}

// bounds is an inclusive pixel rectangle.
type bounds struct {
	x1, x2, y1, y2 int
}

func (b bounds) width() int  { return b.x2 - b.x1 + 1 }
func (b bounds) height() int { return b.y2 - b.y1 + 1 }

func clampInt(v float64, hi int) int {
	return int(math.Max(0, math.Min(float64(hi), v)))
}

// clip converts the window to inclusive pixel bounds inside img.
func (w Window) clip(img Image) (bounds, error) {
	if w.IsZero() {
		return bounds{x1: 0, x2: img.Width - 1, y1: 0, y2: img.Height - 1}, nil
	}

	if math.IsNaN(w.X) || math.IsNaN(w.Y) || math.IsNaN(w.W) || math.IsNaN(w.H) ||
		w.X+w.W <= 0 || w.Y+w.H <= 0 ||
		w.X >= float64(img.Width) || w.Y >= float64(img.Height) {
		return bounds{}, fmt.Errorf("%w: %+v in %dx%d", ErrWindowOutOfBounds, w, img.Width, img.Height)
	}

	return bounds{
		x1: clampInt(math.Floor(w.X), img.Width-1),
		x2: clampInt(math.Ceil(w.X+w.W-1), img.Width-1),
		y1: clampInt(math.Floor(w.Y), img.Height-1),
		y2: clampInt(math.Ceil(w.Y+w.H-1), img.Height-1),
	}, nil
}
