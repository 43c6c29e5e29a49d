package roitracker

import (
	"math"
	"slices"
	"strings"

	"github.com/pitabwire/tracker/localize"
	"github.com/pitabwire/tracker/settings"
)

// Localization methods accepted for XYMethod.
const (
	MethodRadialCenter = "radialcenter"
	MethodBarycenter   = "barycenter"
)

// Roi is one region of interest tracked in every frame.
type Roi struct {
	// ID is echoed back in results so callers can match them to their ROIs.
	ID string `json:"id,omitempty" toml:"id" yaml:"id,omitempty"`
	// Window is [x, y, w, h] in pixels. The zero window is the whole frame.
	Window [4]float64 `json:"window" toml:"window" yaml:"window"`
	// XYc is an optional initial center for the radial fit.
	XYc *[2]float64 `json:"xyc,omitempty" toml:"xyc" yaml:"xyc,omitempty"`
	// GP overrides the gradient power of the radial fit.
	GP *float64 `json:"gp,omitempty" toml:"gp" yaml:"gp,omitempty"`
	// RadiusFilter limits the radial fit to gradients near the initial center.
	RadiusFilter *float64 `json:"radius_filter,omitempty" toml:"radius_filter" yaml:"radius_filter,omitempty"`
}

func (r Roi) window() localize.Window {
	return localize.Window{X: r.Window[0], Y: r.Window[1], W: r.Window[2], H: r.Window[3]}
}

func (r Roi) clone() Roi {
	c := r
	if r.XYc != nil {
		xyc := *r.XYc
		c.XYc = &xyc
	}
	if r.GP != nil {
		gp := *r.GP
		c.GP = &gp
	}
	if r.RadiusFilter != nil {
		rf := *r.RadiusFilter
		c.RadiusFilter = &rf
	}
	return c
}

// Parameters are the tracker settings captured by every pushed frame.
type Parameters struct {
	XYMethod       string  `json:"xy_method"       toml:"xy_method"       yaml:"xy_method"`
	COMMethod      string  `json:"com_method"      toml:"com_method"      yaml:"com_method"`
	DistanceFactor float64 `json:"distance_factor" toml:"distance_factor" yaml:"distance_factor"`
	LimFrac        float64 `json:"lim_frac"        toml:"lim_frac"        yaml:"lim_frac"`
	Rois           []Roi   `json:"rois"            toml:"rois"            yaml:"rois"`
}

// DefaultParameters returns the parameters a new tracker starts with.
func DefaultParameters() Parameters {
	return Parameters{
		XYMethod:       MethodRadialCenter,
		COMMethod:      localize.COMMeanAbs.String(),
		DistanceFactor: math.Inf(1),
		LimFrac:        localize.DefaultLimFrac,
	}
}

// Clone returns a deep copy; snapshots must never share ROI storage.
func (p Parameters) Clone() Parameters {
	c := p
	if p.Rois != nil {
		c.Rois = make([]Roi, len(p.Rois))
		for i, r := range p.Rois {
			c.Rois[i] = r.clone()
		}
	}
	return c
}

// Validate checks every field and reports the first problem as a
// *settings.ConfigurationError.
func (p Parameters) Validate() error {
	if !slices.Contains([]string{MethodRadialCenter, MethodBarycenter}, strings.ToLower(p.XYMethod)) {
		return settings.NewConfigurationError("xyMethod", "unknown method %q", p.XYMethod)
	}
	if _, err := localize.ParseCOMMethod(p.COMMethod); err != nil {
		return settings.NewConfigurationError("COMmethod", "%v", err)
	}
	if math.IsNaN(p.DistanceFactor) || p.DistanceFactor < 0 {
		return settings.NewConfigurationError("DistanceFactor", "must be a non negative number, got %v", p.DistanceFactor)
	}
	if math.IsNaN(p.LimFrac) || p.LimFrac < 0 || p.LimFrac > 1 {
		return settings.NewConfigurationError("LimFrac", "must be within [0, 1], got %v", p.LimFrac)
	}

	for i, r := range p.Rois {
		for _, v := range r.Window {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return settings.NewConfigurationError("roiList", "roi %d: window values must be finite", i)
			}
		}
		if r.Window[2] < 0 || r.Window[3] < 0 {
			return settings.NewConfigurationError("roiList", "roi %d: window size must not be negative", i)
		}
		if r.GP != nil && (math.IsNaN(*r.GP) || math.IsInf(*r.GP, 0) || *r.GP < 0) {
			return settings.NewConfigurationError("roiList", "roi %d: GP must be a finite non negative number", i)
		}
		if r.RadiusFilter != nil && (math.IsNaN(*r.RadiusFilter) || *r.RadiusFilter < 0) {
			return settings.NewConfigurationError("roiList", "roi %d: RadiusFilter must not be negative", i)
		}
		if r.XYc != nil && (math.IsNaN(r.XYc[0]) || math.IsNaN(r.XYc[1])) {
			return settings.NewConfigurationError("roiList", "roi %d: XYc must be a point", i)
		}
	}
	return nil
}

func (p Parameters) radialOptions(r Roi) localize.RadialOptions {
	opts := localize.DefaultRadialOptions()
	opts.COM, _ = localize.ParseCOMMethod(p.COMMethod)
	opts.DistanceFactor = p.DistanceFactor
	if r.GP != nil {
		opts.GradientPower = *r.GP
	}
	if r.RadiusFilter != nil {
		opts.RadiusFilter = *r.RadiusFilter
	}
	if r.XYc != nil {
		opts.Center = &localize.Point{X: r.XYc[0], Y: r.XYc[1]}
	}
	return opts
}
