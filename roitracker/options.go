package roitracker

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/pitabwire/tracker/settings"
)

// Option names understood by ApplyOptions. Matching ignores case.
const (
	OptionXYMethod       = "xyMethod"
	OptionCOMMethod      = "COMmethod"
	OptionDistanceFactor = "DistanceFactor"
	OptionLimFrac        = "LimFrac"
	OptionRoiList        = "roiList"
)

// Options maps option names to values. Values may be Go types ([]Roi,
// float64, string) or the generic maps and slices produced by YAML, TOML or
// JSON decoders.
type Options map[string]any

// OptionsFromYAML decodes an option document such as
//
//	xyMethod: barycenter
//	roiList:
//	  - Window: [10, 10, 20, 20]
func OptionsFromYAML(data []byte) (Options, error) {
	opts := Options{}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return nil, settings.NewConfigurationError("", "decode yaml options: %v", err)
	}
	return opts, nil
}

// OptionsFromTOML decodes an option document in TOML.
func OptionsFromTOML(data []byte) (Options, error) {
	opts := Options{}
	if _, err := toml.Decode(string(data), &opts); err != nil {
		return nil, settings.NewConfigurationError("", "decode toml options: %v", err)
	}
	return opts, nil
}

// OptionsFromJSON decodes an option document in JSON.
func OptionsFromJSON(data []byte) (Options, error) {
	opts := Options{}
	if err := json.Unmarshal(data, &opts); err != nil {
		return nil, settings.NewConfigurationError("", "decode json options: %v", err)
	}
	return opts, nil
}

// OptionsFromFile reads an option document, picking the decoder from the
// file extension. Files that are neither .toml nor .json are read as YAML.
func OptionsFromFile(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return OptionsFromTOML(data)
	case ".json":
		return OptionsFromJSON(data)
	default:
		return OptionsFromYAML(data)
	}
}

// ApplyOptions returns a copy of p with opts applied. Either every option is
// applied and the result validates, or p is returned with the error.
func ApplyOptions(p Parameters, opts Options) (Parameters, error) {
	next := p.Clone()

	for name, value := range opts {
		var err error
		switch strings.ToLower(name) {
		case strings.ToLower(OptionXYMethod):
			next.XYMethod, err = toString(value)
			next.XYMethod = strings.ToLower(next.XYMethod)
		case strings.ToLower(OptionCOMMethod):
			next.COMMethod, err = toString(value)
			next.COMMethod = strings.ToLower(next.COMMethod)
		case strings.ToLower(OptionDistanceFactor):
			next.DistanceFactor, err = toFloat(value)
		case strings.ToLower(OptionLimFrac):
			next.LimFrac, err = toFloat(value)
		case strings.ToLower(OptionRoiList):
			next.Rois, err = toRois(value)
		default:
			return p, settings.NewConfigurationError(name, "unknown option")
		}
		if err != nil {
			return p, settings.NewConfigurationError(name, "%v", err)
		}
	}

	if err := next.Validate(); err != nil {
		return p, err
	}
	return next, nil
}

func toString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected a string, got %T", v)
	}
	return s, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case string:
		switch strings.ToLower(n) {
		case "inf", "+inf", "infinity":
			return math.Inf(1), nil
		}
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}

func toFloats(v any, want int) ([]float64, error) {
	var items []any
	switch s := v.(type) {
	case []float64:
		items = make([]any, len(s))
		for i, f := range s {
			items[i] = f
		}
	case []any:
		items = s
	default:
		return nil, fmt.Errorf("expected a list of %d numbers, got %T", want, v)
	}

	if len(items) != want {
		return nil, fmt.Errorf("expected %d numbers, got %d", want, len(items))
	}

	out := make([]float64, want)
	for i, item := range items {
		f, err := toFloat(item)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

func toRois(v any) ([]Roi, error) {
	switch list := v.(type) {
	case nil:
		return nil, nil
	case []Roi:
		out := make([]Roi, len(list))
		for i, r := range list {
			out[i] = r.clone()
		}
		return out, nil
	case []map[string]any:
		out := make([]Roi, 0, len(list))
		for i, m := range list {
			r, err := roiFromMap(m)
			if err != nil {
				return nil, fmt.Errorf("roi %d: %w", i, err)
			}
			out = append(out, r)
		}
		return out, nil
	case []any:
		out := make([]Roi, 0, len(list))
		for i, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("roi %d: expected a table, got %T", i, item)
			}
			r, err := roiFromMap(m)
			if err != nil {
				return nil, fmt.Errorf("roi %d: %w", i, err)
			}
			out = append(out, r)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of rois, got %T", v)
	}
}

func roiFromMap(m map[string]any) (Roi, error) {
	var r Roi
	for key, value := range m {
		switch strings.ToLower(key) {
		case "id", "uuid":
			s, err := toString(value)
			if err != nil {
				return r, err
			}
			r.ID = s
		case "window":
			w, err := toFloats(value, 4)
			if err != nil {
				return r, fmt.Errorf("window: %w", err)
			}
			copy(r.Window[:], w)
		case "xyc":
			if empty, ok := value.([]any); ok && len(empty) == 0 {
				continue
			}
			c, err := toFloats(value, 2)
			if err != nil {
				return r, fmt.Errorf("xyc: %w", err)
			}
			r.XYc = &[2]float64{c[0], c[1]}
		case "gp":
			f, err := toFloat(value)
			if err != nil {
				return r, fmt.Errorf("gp: %w", err)
			}
			r.GP = &f
		case "radiusfilter", "radius_filter":
			f, err := toFloat(value)
			if err != nil {
				return r, fmt.Errorf("radius filter: %w", err)
			}
			r.RadiusFilter = &f
		default:
			return r, fmt.Errorf("unknown roi field %q", key)
		}
	}
	return r, nil
}
