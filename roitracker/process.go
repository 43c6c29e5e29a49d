package roitracker

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/pitabwire/util"

	"github.com/pitabwire/tracker/localize"
	"github.com/pitabwire/tracker/settings"
)

// Frame is one image pushed for tracking.
type Frame struct {
	Image localize.Image `json:"image"`
	// Time is the acquisition time, copied to every result of the frame.
	Time float64 `json:"time"`
}

// RoiResult is the localization of one ROI in one frame.
type RoiResult struct {
	RoiID    string  `json:"roi_id,omitempty"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	VarX     float64 `json:"var_x"`
	VarY     float64 `json:"var_y"`
	Residual float64 `json:"residual"`
	Method   string  `json:"method"`
	Time     float64 `json:"time"`
	// SettingsVersion identifies the parameters the frame was processed with.
	SettingsVersion uint64 `json:"settings_version"`
}

// Valid reports whether the ROI produced a position.
func (r RoiResult) Valid() bool {
	return !math.IsNaN(r.X) && !math.IsNaN(r.Y)
}

func isEmptyFrame(f Frame) bool {
	return f.Image.Empty()
}

func isEmptyResult(r []RoiResult) bool {
	return len(r) == 0
}

// Process localizes every configured ROI in frame. ROIs whose window lies
// outside the frame yield NaN positions; malformed images and windows too
// small to fit are faults.
func Process(ctx context.Context, frame Frame, snap *settings.Snapshot[Parameters]) ([]RoiResult, error) {
	params := snap.Value()
	if len(params.Rois) == 0 {
		return nil, nil
	}

	if err := frame.Image.Validate(); err != nil {
		return nil, err
	}

	results := make([]RoiResult, 0, len(params.Rois))
	for i, roi := range params.Rois {
		res, err := locate(frame.Image, params, roi)
		if errors.Is(err, localize.ErrWindowOutOfBounds) {
			util.Log(ctx).WithError(err).WithField("roi", i).Debug("roi outside frame")
			res = RoiResult{X: math.NaN(), Y: math.NaN(), VarX: math.NaN(), VarY: math.NaN(), Residual: math.NaN()}
		} else if err != nil {
			return nil, fmt.Errorf("roi %d: %w", i, err)
		}

		res.RoiID = roi.ID
		res.Method = params.XYMethod
		res.Time = frame.Time
		res.SettingsVersion = snap.Version()
		results = append(results, res)
	}
	return results, nil
}

func locate(img localize.Image, params Parameters, roi Roi) (RoiResult, error) {
	if params.XYMethod == MethodBarycenter {
		p, err := localize.Barycenter(img, roi.window(), params.LimFrac)
		if err != nil {
			return RoiResult{}, err
		}
		return RoiResult{X: p.X, Y: p.Y, VarX: math.NaN(), VarY: math.NaN(), Residual: math.NaN()}, nil
	}

	rc, err := localize.RadialCenter(img, roi.window(), params.radialOptions(roi))
	if err != nil {
		return RoiResult{}, err
	}
	return RoiResult{X: rc.X, Y: rc.Y, VarX: rc.VarX, VarY: rc.VarY, Residual: rc.Residual}, nil
}
