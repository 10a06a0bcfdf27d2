// Package render draws the skeleton overlay, joint angle labels and the
// information panel onto video frames.
//
// Every drawing operation takes the frame by value and returns a new Mat that
// the caller owns and must Close. The input frame is never written, so a
// caller can always fall back to the untouched original.
package render

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/ayusman/posetrace/internal/geometry"
	"github.com/ayusman/posetrace/internal/landmark"
	"github.com/ayusman/posetrace/internal/logger"
	"gocv.io/x/gocv"
)

// Layout constants.
var (
	// LabelOffset shifts angle labels away from the joint marker.
	LabelOffset = image.Pt(15, -15)
	// InfoPanelRect is the area covered by the information panel.
	InfoPanelRect = image.Rect(10, 10, 300, 90)
)

const (
	infoTextX      = 20
	infoTextY      = 30
	infoLineHeight = 20
	labelPadding   = 2
)

// ErrEmptyFrame is returned when asked to annotate an empty Mat.
var ErrEmptyFrame = errors.New("empty frame")

// FrameStats is the per-frame information shown in the panel.
type FrameStats struct {
	FrameNum    int
	TotalFrames int
	FPS         float64
}

// AngleReading is one computed joint angle ready to be labelled.
type AngleReading struct {
	Spec    landmark.AngleSpec
	Degrees float64
	Anchor  image.Point
}

// Renderer draws overlays with a fixed Style.
type Renderer struct {
	style Style
}

// New creates a Renderer.
func New(style Style) *Renderer {
	return &Renderer{style: style}
}

// Style returns the renderer's style.
func (r *Renderer) Style() Style {
	return r.style
}

// VisibleConnections returns the skeleton edges whose endpoints are both in set.
func VisibleConnections(set landmark.Set) []landmark.Connection {
	var visible []landmark.Connection
	for _, c := range landmark.Connections() {
		if set.Has(c.A, c.B) {
			visible = append(visible, c)
		}
	}
	return visible
}

// Angles computes every AngleSpec whose points and anchor are all in set.
// Specs with a missing landmark or a degenerate geometry are skipped.
func Angles(set landmark.Set) []AngleReading {
	var readings []AngleReading

	for _, spec := range landmark.AngleSpecs() {
		if !set.Has(spec.Required()...) {
			continue
		}

		deg, err := geometry.Angle(set[spec.Points[0]], set[spec.Points[1]], set[spec.Points[2]])
		if err != nil {
			logger.WithComponent("render").Debug().
				Str("angle", spec.Name).
				Err(err).
				Msg("skipping angle")
			continue
		}

		readings = append(readings, AngleReading{
			Spec:    spec,
			Degrees: deg,
			Anchor:  set[spec.Anchor],
		})
	}

	return readings
}

// FormatAngle renders an angle label, e.g. "92.4°".
func FormatAngle(deg float64) string {
	return fmt.Sprintf("%.1f°", deg)
}

// ProgressPercent returns frameNum/totalFrames as a percentage. An unknown
// length (totalFrames <= 0) reads as 0.
func ProgressPercent(frameNum, totalFrames int) float64 {
	if totalFrames <= 0 {
		return 0
	}
	return float64(frameNum) / float64(totalFrames) * 100
}

// InfoLines returns the text lines of the information panel.
func InfoLines(stats FrameStats) []string {
	return []string{
		fmt.Sprintf("Frame: %d/%d", stats.FrameNum, stats.TotalFrames),
		fmt.Sprintf("FPS: %.1f", stats.FPS),
		fmt.Sprintf("Progress: %.1f%%", ProgressPercent(stats.FrameNum, stats.TotalFrames)),
	}
}

// DrawSkeleton draws every visible connection, then a filled marker on every
// landmark so joints sit on top of the edges.
func (r *Renderer) DrawSkeleton(frame gocv.Mat, set landmark.Set) gocv.Mat {
	out := frame.Clone()

	for _, c := range VisibleConnections(set) {
		gocv.Line(&out, set[c.A], set[c.B], r.style.SkeletonColor, r.style.SkeletonThickness)
	}

	for _, name := range landmark.All() {
		if p, ok := set[name]; ok {
			gocv.Circle(&out, p, r.style.LandmarkRadius, r.style.LandmarkColor, -1)
		}
	}

	return out
}

// DrawAngles labels each computable joint angle near its anchor.
func (r *Renderer) DrawAngles(frame gocv.Mat, set landmark.Set) gocv.Mat {
	out := frame.Clone()

	for _, reading := range Angles(set) {
		if r.style.AngleArcs {
			r.drawArc(&out, set, reading)
		}
		r.drawLabel(&out, FormatAngle(reading.Degrees), reading.Anchor.Add(LabelOffset))
	}

	return out
}

// DrawInfoPanel draws the translucent panel with frame counter, FPS and progress.
func (r *Renderer) DrawInfoPanel(frame gocv.Mat, stats FrameStats) gocv.Mat {
	out := frame.Clone()

	blendBox(&out, InfoPanelRect, r.style.InfoBoxAlpha)

	y := infoTextY
	for _, line := range InfoLines(stats) {
		gocv.PutText(&out, line, image.Pt(infoTextX, y), r.style.Font, r.style.TextScale, r.style.TextColor, r.style.TextThickness)
		y += infoLineHeight
	}

	return out
}

// Visualize runs the full overlay for one frame: skeleton and angles when a
// body was detected, and the information panel always.
func (r *Renderer) Visualize(frame gocv.Mat, raw landmark.Raw, stats FrameStats) (gocv.Mat, error) {
	if frame.Empty() {
		return gocv.NewMat(), ErrEmptyFrame
	}

	set := landmark.Project(raw, frame.Cols(), frame.Rows())

	if len(set) == 0 {
		return r.DrawInfoPanel(frame, stats), nil
	}

	skeleton := r.DrawSkeleton(frame, set)
	defer skeleton.Close()

	angles := r.DrawAngles(skeleton, set)
	defer angles.Close()

	return r.DrawInfoPanel(angles, stats), nil
}

// drawLabel draws text over a translucent box. Hershey fonts have no degree
// glyph, so a trailing ° is drawn as a small ring.
func (r *Renderer) drawLabel(img *gocv.Mat, label string, at image.Point) {
	text := strings.TrimSuffix(label, "°")
	degree := text != label

	size := gocv.GetTextSize(text, r.style.Font, r.style.TextScale, r.style.TextThickness)

	ring := 0
	if degree {
		ring = max(2, size.Y/4)
	}

	box := image.Rect(
		at.X-labelPadding,
		at.Y-size.Y-labelPadding,
		at.X+size.X+2*ring+labelPadding,
		at.Y+labelPadding,
	)
	blendBox(img, box, r.style.AngleBoxAlpha)

	gocv.PutText(img, text, at, r.style.Font, r.style.TextScale, r.style.AngleColor, r.style.TextThickness)

	if degree {
		center := image.Pt(at.X+size.X+ring+1, at.Y-size.Y+ring)
		gocv.Circle(img, center, ring, r.style.AngleColor, 1)
	}
}

// drawArc draws the interior arc of an angle around its vertex.
func (r *Renderer) drawArc(img *gocv.Mat, set landmark.Set, reading AngleReading) {
	vertex := set[reading.Spec.Vertex()]
	v1 := set[reading.Spec.Points[0]].Sub(vertex)
	v2 := set[reading.Spec.Points[2]].Sub(vertex)

	start := math.Atan2(float64(v1.Y), float64(v1.X)) * 180 / math.Pi
	end := math.Atan2(float64(v2.Y), float64(v2.X)) * 180 / math.Pi

	delta := math.Mod(end-start+540, 360) - 180
	axes := image.Pt(r.style.AngleArcRadius, r.style.AngleArcRadius)

	gocv.Ellipse(img, vertex, axes, 0, start, start+delta, r.style.AngleColor, 2)
}

// blendBox darkens rect in place: alpha black over (1-alpha) frame. The
// rectangle is clipped to the image; a fully off-canvas box is a no-op.
func blendBox(img *gocv.Mat, rect image.Rectangle, alpha float64) {
	rect = rect.Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))
	if rect.Empty() {
		return
	}

	roi := img.Region(rect)
	defer roi.Close()

	black := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), roi.Rows(), roi.Cols(), roi.Type())
	defer black.Close()

	gocv.AddWeighted(black, alpha, roi, 1-alpha, 0, &roi)
}
