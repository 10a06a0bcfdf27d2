// Package geometry computes joint angles and distances between landmarks.
package geometry

import (
	"errors"
	"image"
	"math"
)

// ErrDegenerate is returned when an angle is requested for a vertex that
// coincides with one of its endpoints.
var ErrDegenerate = errors.New("degenerate angle: zero-length vector")

// Vec2 is a point or vector with sub-pixel precision.
type Vec2 struct {
	X, Y float64
}

// FromPoint converts a pixel point.
func FromPoint(p image.Point) Vec2 {
	return Vec2{X: float64(p.X), Y: float64(p.Y)}
}

// Sub returns v - o.
func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2{X: v.X - o.X, Y: v.Y - o.Y}
}

// Dot returns the dot product.
func (v Vec2) Dot(o Vec2) float64 {
	return v.X*o.X + v.Y*o.Y
}

// Norm returns the Euclidean length.
func (v Vec2) Norm() float64 {
	return math.Hypot(v.X, v.Y)
}

// AngleF returns the angle at vertex between p1 and p3 in degrees, in [0,180].
// If vertex coincides with p1 or p3 it returns NaN and ErrDegenerate.
func AngleF(p1, vertex, p3 Vec2) (float64, error) {
	v1 := p1.Sub(vertex)
	v2 := p3.Sub(vertex)

	n1, n2 := v1.Norm(), v2.Norm()
	if n1 == 0 || n2 == 0 {
		return math.NaN(), ErrDegenerate
	}

	cos := v1.Dot(v2) / (n1 * n2)
	// Collinear vectors can overshoot [-1,1] by an ulp.
	cos = math.Max(-1, math.Min(1, cos))

	return math.Acos(cos) * 180 / math.Pi, nil
}

// Angle is AngleF for pixel points.
func Angle(p1, vertex, p3 image.Point) (float64, error) {
	return AngleF(FromPoint(p1), FromPoint(vertex), FromPoint(p3))
}

// DistanceF returns the Euclidean distance between a and b.
func DistanceF(a, b Vec2) float64 {
	return a.Sub(b).Norm()
}

// Distance is DistanceF for pixel points.
func Distance(a, b image.Point) float64 {
	return DistanceF(FromPoint(a), FromPoint(b))
}
