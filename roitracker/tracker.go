// Package roitracker tracks particles inside regions of interest of a stream
// of frames. Frames are processed asynchronously by an engine.Engine; every
// frame is localized with the parameters that were current when it was pushed.
package roitracker

import (
	"context"

	"github.com/pitabwire/util"

	"github.com/pitabwire/tracker/config"
	"github.com/pitabwire/tracker/engine"
	"github.com/pitabwire/tracker/sink"
)

// Engine is the engine type a Tracker runs on.
type Engine = engine.Engine[Frame, Parameters, []RoiResult]

// Tracker is a ROI tracker. All engine operations (Push, PopResult, Pause,
// Close...) are available on it directly.
type Tracker struct {
	*Engine
}

// New creates a tracker with default parameters. When cfg also carries sink
// settings with a url, every result is forwarded to that sink.
func New(ctx context.Context, cfg config.ConfigurationEngine, opts ...engine.Option) (*Tracker, error) {
	base := []engine.Option{
		engine.WithValidator[Parameters](Parameters.Validate),
		engine.WithClone(Parameters.Clone),
		engine.WithEmptyPayload(isEmptyFrame),
		engine.WithEmptyResult(isEmptyResult),
	}

	var resultSink *sink.Buffered[[]RoiResult]
	if sinkCfg, ok := cfg.(config.ConfigurationSink); ok {
		var err error
		resultSink, err = sink.NewFromConfig[[]RoiResult](ctx, sinkCfg)
		if err != nil {
			return nil, err
		}
		if resultSink != nil {
			base = append(base, engine.WithSink[[]RoiResult](resultSink))
		}
	}

	eng, err := engine.NewFromConfig[Frame, Parameters, []RoiResult](ctx, cfg, Process, DefaultParameters(), append(base, opts...)...)
	if err != nil {
		if resultSink != nil {
			_ = resultSink.Close(ctx)
		}
		return nil, err
	}

	return &Tracker{Engine: eng}, nil
}

// Parameters returns a copy of the current parameters.
func (t *Tracker) Parameters() Parameters {
	return t.Settings().Value()
}

// SetParameters applies opts on top of the current parameters. Frames that
// are already queued keep the parameters they were pushed with.
func (t *Tracker) SetParameters(ctx context.Context, opts Options) error {
	err := t.UpdateSettings(func(current Parameters) (Parameters, error) {
		return ApplyOptions(current, opts)
	})
	if err != nil {
		return err
	}

	util.Log(ctx).WithField("engine", t.Name()).
		WithField("settings_version", t.Settings().Version()).
		Debug("tracker parameters updated")
	return nil
}

// ClearParameters restores the default parameters.
func (t *Tracker) ClearParameters() {
	t.ResetSettings()
}
