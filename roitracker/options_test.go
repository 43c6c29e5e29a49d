package roitracker_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/pitabwire/tracker/roitracker"
	"github.com/pitabwire/tracker/settings"
)

type OptionsSuite struct {
	suite.Suite
}

func TestOptionsSuite(t *testing.T) {
	suite.Run(t, new(OptionsSuite))
}

func (s *OptionsSuite) TestDefaults() {
	p := roitracker.DefaultParameters()
	s.Equal(roitracker.MethodRadialCenter, p.XYMethod)
	s.Equal("meanabs", p.COMMethod)
	s.True(math.IsInf(p.DistanceFactor, 1))
	s.InDelta(0.2, p.LimFrac, 1e-12)
	s.Empty(p.Rois)
	s.NoError(p.Validate())
}

func (s *OptionsSuite) TestApplyOptions() {
	gp := 2.0

	testCases := []struct {
		name    string
		opts    roitracker.Options
		wantErr bool
		check   func(p roitracker.Parameters)
	}{
		{
			name: "names ignore case",
			opts: roitracker.Options{"XYMETHOD": "Barycenter", "limfrac": 0.5, "commethod": "GradMag"},
			check: func(p roitracker.Parameters) {
				s.Equal(roitracker.MethodBarycenter, p.XYMethod)
				s.Equal("gradmag", p.COMMethod)
				s.InDelta(0.5, p.LimFrac, 1e-12)
			},
		},
		{
			name: "integer distance factor",
			opts: roitracker.Options{"DistanceFactor": 3},
			check: func(p roitracker.Parameters) {
				s.InDelta(3.0, p.DistanceFactor, 1e-12)
			},
		},
		{
			name: "typed roi list",
			opts: roitracker.Options{"roiList": []roitracker.Roi{{ID: "a", Window: [4]float64{1, 2, 10, 10}, GP: &gp}}},
			check: func(p roitracker.Parameters) {
				s.Require().Len(p.Rois, 1)
				s.Equal("a", p.Rois[0].ID)
				s.InDelta(2.0, *p.Rois[0].GP, 1e-12)
			},
		},
		{
			name: "generic roi list",
			opts: roitracker.Options{"roiList": []any{
				map[string]any{"Window": []any{0, 0, 5.5, 5}, "XYc": []any{2, 3}, "RadiusFilter": 4},
				map[string]any{"window": []any{5, 5, 5, 5}, "XYc": []any{}},
			}},
			check: func(p roitracker.Parameters) {
				s.Require().Len(p.Rois, 2)
				s.Equal([4]float64{0, 0, 5.5, 5}, p.Rois[0].Window)
				s.Equal(&[2]float64{2, 3}, p.Rois[0].XYc)
				s.InDelta(4.0, *p.Rois[0].RadiusFilter, 1e-12)
				s.Nil(p.Rois[1].XYc)
			},
		},
		{name: "unknown option", opts: roitracker.Options{"speed": 1}, wantErr: true},
		{name: "unknown method", opts: roitracker.Options{"xyMethod": "gaussfit"}, wantErr: true},
		{name: "wrong type", opts: roitracker.Options{"LimFrac": "high"}, wantErr: true},
		{name: "out of range", opts: roitracker.Options{"LimFrac": 1.5}, wantErr: true},
		{name: "negative distance factor", opts: roitracker.Options{"DistanceFactor": -1.0}, wantErr: true},
		{name: "short window", opts: roitracker.Options{"roiList": []any{map[string]any{"Window": []any{1, 2}}}}, wantErr: true},
		{name: "unknown roi field", opts: roitracker.Options{"roiList": []any{map[string]any{"Size": 3}}}, wantErr: true},
		{
			name:    "valid option with invalid one is rejected whole",
			opts:    roitracker.Options{"xyMethod": "barycenter", "LimFrac": -0.1},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			base := roitracker.DefaultParameters()
			got, err := roitracker.ApplyOptions(base, tc.opts)
			if tc.wantErr {
				s.Require().Error(err)
				s.ErrorIs(err, settings.ErrInvalidConfiguration)
				var cfgErr *settings.ConfigurationError
				s.ErrorAs(err, &cfgErr)
				s.Equal(roitracker.DefaultParameters().XYMethod, got.XYMethod)
				s.InDelta(roitracker.DefaultParameters().LimFrac, got.LimFrac, 1e-12)
				return
			}
			s.Require().NoError(err)
			tc.check(got)
		})
	}
}

func (s *OptionsSuite) TestApplyOptionsDoesNotShareRois() {
	base := roitracker.DefaultParameters()
	rois := []roitracker.Roi{{Window: [4]float64{1, 1, 4, 4}}}

	next, err := roitracker.ApplyOptions(base, roitracker.Options{"roiList": rois})
	s.Require().NoError(err)

	rois[0].Window[0] = 99
	s.InDelta(1.0, next.Rois[0].Window[0], 1e-12)

	clone := next.Clone()
	clone.Rois[0].Window[1] = 42
	s.InDelta(1.0, next.Rois[0].Window[1], 1e-12)
}

func (s *OptionsSuite) TestOptionsFromYAML() {
	doc := []byte(`
xyMethod: radialcenter
COMmethod: normal
DistanceFactor: .inf
LimFrac: 0.3
roiList:
  - id: left
    Window: [0, 0, 12, 12]
    GP: 3
  - id: right
    Window: [12, 0, 12, 12]
    XYc: [18, 6]
    RadiusFilter: 5
`)

	opts, err := roitracker.OptionsFromYAML(doc)
	s.Require().NoError(err)

	p, err := roitracker.ApplyOptions(roitracker.DefaultParameters(), opts)
	s.Require().NoError(err)
	s.Equal("normal", p.COMMethod)
	s.True(math.IsInf(p.DistanceFactor, 1))
	s.InDelta(0.3, p.LimFrac, 1e-12)
	s.Require().Len(p.Rois, 2)
	s.Equal("left", p.Rois[0].ID)
	s.InDelta(3.0, *p.Rois[0].GP, 1e-12)
	s.Equal(&[2]float64{18, 6}, p.Rois[1].XYc)

	_, err = roitracker.OptionsFromYAML([]byte("xyMethod: [unterminated"))
	s.ErrorIs(err, settings.ErrInvalidConfiguration)
}

func (s *OptionsSuite) TestOptionsFromTOML() {
	doc := []byte(`
xyMethod = "barycenter"
LimFrac = 0.25

[[roiList]]
id = "a"
Window = [0, 0, 10, 10]

[[roiList]]
id = "b"
Window = [10, 0, 10, 10]
GP = 4
`)

	opts, err := roitracker.OptionsFromTOML(doc)
	s.Require().NoError(err)

	p, err := roitracker.ApplyOptions(roitracker.DefaultParameters(), opts)
	s.Require().NoError(err)
	s.Equal(roitracker.MethodBarycenter, p.XYMethod)
	s.InDelta(0.25, p.LimFrac, 1e-12)
	s.Require().Len(p.Rois, 2)
	s.Equal([4]float64{10, 0, 10, 10}, p.Rois[1].Window)
	s.InDelta(4.0, *p.Rois[1].GP, 1e-12)

	_, err = roitracker.OptionsFromTOML([]byte("xyMethod = "))
	s.ErrorIs(err, settings.ErrInvalidConfiguration)
}

func (s *OptionsSuite) TestOptionsFromFile() {
	dir := s.T().TempDir()

	files := map[string]string{
		"params.yaml": "xyMethod: barycenter\n",
		"params.toml": "xyMethod = \"barycenter\"\n",
		"params.json": `{"xyMethod": "barycenter", "roiList": [{"Window": [1, 2, 3, 4]}]}`,
	}

	for name, body := range files {
		s.Run(name, func() {
			path := filepath.Join(dir, name)
			s.Require().NoError(os.WriteFile(path, []byte(body), 0o600))

			opts, err := roitracker.OptionsFromFile(path)
			s.Require().NoError(err)

			p, err := roitracker.ApplyOptions(roitracker.DefaultParameters(), opts)
			s.Require().NoError(err)
			s.Equal(roitracker.MethodBarycenter, p.XYMethod)
		})
	}

	_, err := roitracker.OptionsFromFile(filepath.Join(dir, "missing.yaml"))
	s.Error(err)
}
