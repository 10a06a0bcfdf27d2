package render

import (
	"image/color"

	"github.com/ayusman/posetrace/internal/config"
	"gocv.io/x/gocv"
)

// Style controls overlay appearance.
type Style struct {
	SkeletonColor     color.RGBA
	SkeletonThickness int
	LandmarkColor     color.RGBA
	LandmarkRadius    int

	Font          gocv.HersheyFont
	TextColor     color.RGBA
	TextScale     float64
	TextThickness int

	AngleColor     color.RGBA
	AngleArcs      bool
	AngleArcRadius int
	AngleBoxAlpha  float64

	InfoBoxAlpha float64
}

// DefaultStyle mirrors config.Default().Visualization.
func DefaultStyle() Style {
	return Style{
		SkeletonColor:     color.RGBA{R: 0, G: 255, B: 0, A: 255},
		SkeletonThickness: 2,
		LandmarkColor:     color.RGBA{R: 255, G: 0, B: 0, A: 255},
		LandmarkRadius:    5,
		Font:              gocv.FontHersheySimplex,
		TextColor:         color.RGBA{R: 255, G: 255, B: 255, A: 255},
		TextScale:         0.5,
		TextThickness:     1,
		AngleColor:        color.RGBA{R: 0, G: 255, B: 255, A: 255},
		AngleArcRadius:    30,
		AngleBoxAlpha:     0.6,
		InfoBoxAlpha:      0.7,
	}
}

// StyleFromConfig builds a Style from the visualization section.
func StyleFromConfig(c config.VisualizationConfig) (Style, error) {
	s := DefaultStyle()

	var err error
	if s.SkeletonColor, err = config.ParseColor(c.SkeletonColor); err != nil {
		return Style{}, err
	}
	if s.LandmarkColor, err = config.ParseColor(c.LandmarkColor); err != nil {
		return Style{}, err
	}
	if s.TextColor, err = config.ParseColor(c.TextColor); err != nil {
		return Style{}, err
	}
	if s.AngleColor, err = config.ParseColor(c.AngleColor); err != nil {
		return Style{}, err
	}

	s.SkeletonThickness = c.SkeletonThickness
	s.LandmarkRadius = c.LandmarkRadius
	s.TextScale = c.TextScale
	s.TextThickness = c.TextThickness
	s.AngleArcs = c.AngleArcs
	s.AngleArcRadius = c.AngleArcRadius
	s.AngleBoxAlpha = c.AngleBoxAlpha
	s.InfoBoxAlpha = c.InfoBoxAlpha

	return s, nil
}
