package localize

import (
	"fmt"
	"math"
	"strings"
)

// DefaultGradientPower is the exponent applied to gradient magnitudes when
// weighting the radial fit.
const DefaultGradientPower = 5.0

// COMMethod selects how RadialCenter estimates the initial centroid.
type COMMethod int

const (
	// COMMeanAbs weights pixels by their absolute deviation from the window mean.
	COMMeanAbs COMMethod = iota
	// COMGradMag weights gradient grid points by the gradient magnitude.
	COMGradMag
	// COMNormal weights pixels by their intensity.
	COMNormal
)

func (m COMMethod) String() string {
	switch m {
	case COMMeanAbs:
		return "meanabs"
	case COMGradMag:
		return "gradmag"
	case COMNormal:
		return "normal"
	default:
		return fmt.Sprintf("COMMethod(%d)", int(m))
	}
}

// ParseCOMMethod accepts meanabs, gradmag or normal in any case.
func ParseCOMMethod(s string) (COMMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "meanabs":
		return COMMeanAbs, nil
	case "gradmag":
		return COMGradMag, nil
	case "normal":
		return COMNormal, nil
	default:
		return 0, fmt.Errorf("unknown centroid method %q", s)
	}
}

// RadialOptions tune RadialCenter.
type RadialOptions struct {
	COM COMMethod
	// GradientPower is the exponent of the gradient magnitude weight. Zero
	// disables magnitude weighting.
	GradientPower float64
	// DistanceFactor controls the fall off of the distance weight around the
	// initial centroid. Zero disables distance weighting, +Inf with a positive
	// RadiusFilter is a hard cut off.
	DistanceFactor float64
	// RadiusFilter is the distance from the initial centroid at which the
	// weight drops. NaN disables it.
	RadiusFilter float64
	// Center replaces the computed initial centroid.
	Center *Point
}

// DefaultRadialOptions returns the options used when nothing is configured.
func DefaultRadialOptions() RadialOptions {
	return RadialOptions{
		COM:            COMMeanAbs,
		GradientPower:  DefaultGradientPower,
		DistanceFactor: math.Inf(1),
		RadiusFilter:   math.NaN(),
	}
}

// RadialResult is the outcome of a radial symmetry fit.
type RadialResult struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	// VarX and VarY are the variance estimates of the fitted center.
	VarX float64 `json:"var_x"`
	VarY float64 `json:"var_y"`
	// Residual is the weighted residual normalised by the effective sample count.
	Residual float64 `json:"residual"`
}

func nanRadial() RadialResult {
	n := math.NaN()
	return RadialResult{X: n, Y: n, VarX: n, VarY: n, Residual: n}
}

// RadialCenter finds the point that best fits the lines through every
// gradient in the window, following Parthasarathy's radial symmetry method.
// Gradients are taken on the half pixel grid along both diagonals and
// smoothed with a 3x3 mean before fitting.
//
// A window with no usable gradient gives NaN values and no error.
func RadialCenter(img Image, window Window, opts RadialOptions) (RadialResult, error) {
	if err := img.Validate(); err != nil {
		return RadialResult{}, err
	}
	if img.Empty() {
		return RadialResult{}, fmt.Errorf("%w: empty image", ErrWindowOutOfBounds)
	}

	if window.IsZero() && opts.Center != nil && opts.RadiusFilter > 0 && !math.IsInf(opts.RadiusFilter, 1) {
		r := math.Ceil(opts.RadiusFilter)
		window = Window{X: opts.Center.X - r, Y: opts.Center.Y - r, W: 2*r + 1, H: 2*r + 1}
	}

	b, err := window.clip(img)
	if err != nil {
		return RadialResult{}, err
	}

	// gradient grid size
	nx, ny := b.x2-b.x1, b.y2-b.y1
	if nx < 2 || ny < 2 {
		return RadialResult{}, fmt.Errorf("%w: %dx%d pixels", ErrWindowTooSmall, b.width(), b.height())
	}

	du := make([]float64, nx*ny)
	dv := make([]float64, nx*ny)
	for yi := range ny {
		for xi := range nx {
			x, y := b.x1+xi, b.y1+yi
			du[yi*nx+xi] = img.At(x+1, y+1) - img.At(x, y)
			dv[yi*nx+xi] = img.At(x, y+1) - img.At(x+1, y)
		}
	}
	du = mean3x3(du, nx, ny)
	dv = mean3x3(dv, nx, ny)

	mag := make([]float64, nx*ny)
	for i := range mag {
		mag[i] = math.Hypot(du[i], dv[i])
	}

	comX, comY, ok := initialCentroid(img, b, mag, nx, ny, opts.COM)

	df, rf := opts.DistanceFactor, opts.RadiusFilter
	if opts.Center != nil {
		comX, comY, ok = opts.Center.X-float64(b.x1), opts.Center.Y-float64(b.y1), true
		if math.IsNaN(rf) || math.IsInf(rf, 0) {
			rf = 0
		}
	}
	if rf == 0 && (math.IsNaN(df) || math.IsInf(df, 0)) {
		df = 1
	}
	if !ok {
		return nanRadial(), nil
	}

	var a, bb, d, xwy1, xwy2, sw, sw2 float64
	rows := make([]fitRow, 0, nx*ny)
	for yi := range ny {
		for xi := range nx {
			i := yi*nx + xi
			if mag[i] == 0 {
				continue
			}

			xk, yk := float64(xi)+0.5, float64(yi)+0.5
			w := math.Pow(mag[i], opts.GradientPower)
			w *= distanceWeight(math.Hypot(xk-comX, yk-comY), df, rf)
			if w == 0 || math.IsNaN(w) || math.IsInf(w, 0) {
				continue
			}

			s := math.Sqrt(w) / mag[i]
			r := fitRow{u: (du[i] + dv[i]) * s, v: (dv[i] - du[i]) * s}
			r.y = xk*r.u + yk*r.v

			a += r.u * r.u
			bb += r.u * r.v
			d += r.v * r.v
			xwy1 += r.u * r.y
			xwy2 += r.v * r.y
			sw += w
			sw2 += w * w
			rows = append(rows, r)
		}
	}

	det := a*d - bb*bb
	if len(rows) < 2 || det == 0 || math.IsNaN(det) {
		return nanRadial(), nil
	}

	x := (d*xwy1 - bb*xwy2) / det
	y := (a*xwy2 - bb*xwy1) / det

	var rwr float64
	for _, r := range rows {
		e := r.u*x + r.v*y - r.y
		rwr += e * e
	}

	denom := sw - 2*sw2/sw
	res := RadialResult{
		X:        x + float64(b.x1),
		Y:        y + float64(b.y1),
		VarX:     d / det * rwr / denom,
		VarY:     a / det * rwr / denom,
		Residual: rwr / denom,
	}
	return res, nil
}

type fitRow struct {
	u, v, y float64
}

// distanceWeight scales a gradient weight by its distance r from the initial centroid.
func distanceWeight(r, df, rf float64) float64 {
	switch {
	case df == 0 || math.IsNaN(rf):
		return 1
	case rf == 0:
		return math.Pow(r, -df)
	case !math.IsInf(df, 0) && !math.IsNaN(df):
		return 1 / (1 + math.Exp(df*(r-rf)))
	case r > rf:
		return 0
	default:
		return 1
	}
}

// initialCentroid returns the centroid estimate in gradient grid coordinates.
func initialCentroid(img Image, b bounds, mag []float64, nx, ny int, method COMMethod) (float64, float64, bool) {
	var mass, mx, my float64

	switch method {
	case COMGradMag:
		for yi := range ny {
			for xi := range nx {
				m := mag[yi*nx+xi]
				mass += m
				mx += m * (float64(xi) + 0.5)
				my += m * (float64(yi) + 0.5)
			}
		}
	case COMNormal, COMMeanAbs:
		var mean float64
		if method == COMMeanAbs {
			for y := b.y1; y <= b.y2; y++ {
				for x := b.x1; x <= b.x2; x++ {
					mean += img.At(x, y)
				}
			}
			mean /= float64(b.width() * b.height())
		}
		for y := b.y1; y <= b.y2; y++ {
			for x := b.x1; x <= b.x2; x++ {
				v := img.At(x, y)
				if method == COMMeanAbs {
					v = math.Abs(v - mean)
				}
				mass += v
				mx += v * float64(x-b.x1)
				my += v * float64(y-b.y1)
			}
		}
	default:
		return 0, 0, false
	}

	if mass == 0 || math.IsNaN(mass) {
		return 0, 0, false
	}
	return mx / mass, my / mass, true
}

// mean3x3 smooths a row-major nx*ny grid with a 3x3 box filter. Edge cells
// average over the neighbours that exist.
func mean3x3(src []float64, nx, ny int) []float64 {
	rows := make([]float64, len(src))
	for y := range ny {
		for x := range nx {
			var s float64
			var n int
			for dx := -1; dx <= 1; dx++ {
				if xx := x + dx; xx >= 0 && xx < nx {
					s += src[y*nx+xx]
					n++
				}
			}
			rows[y*nx+x] = s / float64(n)
		}
	}

	out := make([]float64, len(src))
	for y := range ny {
		for x := range nx {
			var s float64
			var n int
			for dy := -1; dy <= 1; dy++ {
				if yy := y + dy; yy >= 0 && yy < ny {
					s += rows[yy*nx+x]
					n++
				}
			}
			out[y*nx+x] = s / float64(n)
		}
	}
	return out
}
