package roitracker

import (
	"encoding/json"
	"math"
)

// roiResultWire mirrors RoiResult with nullable numbers since json has no NaN.
type roiResultWire struct {
	RoiID           string   `json:"roi_id,omitempty"`
	X               *float64 `json:"x"`
	Y               *float64 `json:"y"`
	VarX            *float64 `json:"var_x"`
	VarY            *float64 `json:"var_y"`
	Residual        *float64 `json:"residual"`
	Method          string   `json:"method"`
	Time            float64  `json:"time"`
	SettingsVersion uint64   `json:"settings_version"`
}

func nullable(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func fromNullable(f *float64) float64 {
	if f == nil {
		return math.NaN()
	}
	return *f
}

// MarshalJSON writes NaN and infinite values as null.
func (r RoiResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(roiResultWire{
		RoiID:           r.RoiID,
		X:               nullable(r.X),
		Y:               nullable(r.Y),
		VarX:            nullable(r.VarX),
		VarY:            nullable(r.VarY),
		Residual:        nullable(r.Residual),
		Method:          r.Method,
		Time:            r.Time,
		SettingsVersion: r.SettingsVersion,
	})
}

// UnmarshalJSON reads null numbers back as NaN.
func (r *RoiResult) UnmarshalJSON(data []byte) error {
	var w roiResultWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = RoiResult{
		RoiID:           w.RoiID,
		X:               fromNullable(w.X),
		Y:               fromNullable(w.Y),
		VarX:            fromNullable(w.VarX),
		VarY:            fromNullable(w.VarY),
		Residual:        fromNullable(w.Residual),
		Method:          w.Method,
		Time:            w.Time,
		SettingsVersion: w.SettingsVersion,
	}
	return nil
}
