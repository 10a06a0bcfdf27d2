package detector

import (
	"maps"

	"github.com/ayusman/posetrace/internal/landmark"
	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	result landmark.Raw
	err    error
	calls  int
	closed bool
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetResult sets the landmarks that will be returned by Detect.
func (m *MockDetector) SetResult(raw landmark.Raw) {
	m.result = raw
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.err = err
}

// Calls returns how many times Detect has been called.
func (m *MockDetector) Calls() int {
	return m.calls
}

// Closed reports whether Close has been called.
func (m *MockDetector) Closed() bool {
	return m.closed
}

// Detect returns the pre-configured result or error.
func (m *MockDetector) Detect(frame gocv.Mat) (landmark.Raw, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return maps.Clone(m.result), nil
}

// Close marks the detector closed.
func (m *MockDetector) Close() error {
	m.closed = true
	return nil
}

// Step is one scripted detector response.
type Step struct {
	Raw   landmark.Raw
	Err   error
	Panic any
}

// ScriptedDetector answers each call from a per-call script. Calls are
// numbered from 1; calls without an entry get Default.
type ScriptedDetector struct {
	Steps   map[int]Step
	Default Step

	calls int
}

// NewScriptedDetector returns a detector that reports def on every call
// except those listed in steps.
func NewScriptedDetector(def Step, steps map[int]Step) *ScriptedDetector {
	if steps == nil {
		steps = make(map[int]Step)
	}
	return &ScriptedDetector{Steps: steps, Default: def}
}

// FailAt returns a detector that reports pose on every call except the
// listed ones, which fail with err.
func FailAt(pose landmark.Raw, err error, calls ...int) *ScriptedDetector {
	steps := make(map[int]Step, len(calls))
	for _, c := range calls {
		steps[c] = Step{Err: err}
	}
	return NewScriptedDetector(Step{Raw: pose}, steps)
}

// Calls returns how many times Detect has been called.
func (s *ScriptedDetector) Calls() int {
	return s.calls
}

// Detect plays the next step of the script.
func (s *ScriptedDetector) Detect(frame gocv.Mat) (landmark.Raw, error) {
	s.calls++

	step, ok := s.Steps[s.calls]
	if !ok {
		step = s.Default
	}

	if step.Panic != nil {
		panic(step.Panic)
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return maps.Clone(step.Raw), nil
}

// Close is a no-op for the scripted detector.
func (s *ScriptedDetector) Close() error {
	return nil
}

// StandingPose returns a preset Raw of a person standing upright, facing the
// camera, arms slightly bent. Every landmark is fully visible.
func StandingPose() landmark.Raw {
	pts := map[landmark.Name][2]float64{
		landmark.Nose:           {0.50, 0.12},
		landmark.LeftEyeInner:   {0.51, 0.10},
		landmark.LeftEye:        {0.52, 0.10},
		landmark.LeftEyeOuter:   {0.53, 0.10},
		landmark.RightEyeInner:  {0.49, 0.10},
		landmark.RightEye:       {0.48, 0.10},
		landmark.RightEyeOuter:  {0.47, 0.10},
		landmark.LeftEar:        {0.55, 0.11},
		landmark.RightEar:       {0.45, 0.11},
		landmark.MouthLeft:      {0.52, 0.15},
		landmark.MouthRight:     {0.48, 0.15},
		landmark.LeftShoulder:   {0.60, 0.25},
		landmark.RightShoulder:  {0.40, 0.25},
		landmark.LeftElbow:      {0.65, 0.40},
		landmark.RightElbow:     {0.35, 0.40},
		landmark.LeftWrist:      {0.63, 0.55},
		landmark.RightWrist:     {0.37, 0.55},
		landmark.LeftPinky:      {0.64, 0.58},
		landmark.RightPinky:     {0.36, 0.58},
		landmark.LeftIndex:      {0.63, 0.59},
		landmark.RightIndex:     {0.37, 0.59},
		landmark.LeftThumb:      {0.62, 0.57},
		landmark.RightThumb:     {0.38, 0.57},
		landmark.LeftHip:        {0.56, 0.55},
		landmark.RightHip:       {0.44, 0.55},
		landmark.LeftKnee:       {0.57, 0.73},
		landmark.RightKnee:      {0.43, 0.73},
		landmark.LeftAnkle:      {0.57, 0.90},
		landmark.RightAnkle:     {0.43, 0.90},
		landmark.LeftHeel:       {0.56, 0.92},
		landmark.RightHeel:      {0.44, 0.92},
		landmark.LeftFootIndex:  {0.59, 0.94},
		landmark.RightFootIndex: {0.41, 0.94},
	}

	raw := make(landmark.Raw, len(pts))
	for name, p := range pts {
		raw[name] = landmark.Normalized{X: p[0], Y: p[1], Visibility: 0.99}
	}
	return raw
}

// OccludedLegsPose returns StandingPose with the legs below the hips
// reported at low visibility, as when the lower body is out of frame.
func OccludedLegsPose() landmark.Raw {
	raw := StandingPose()
	for _, name := range []landmark.Name{
		landmark.LeftKnee, landmark.RightKnee,
		landmark.LeftAnkle, landmark.RightAnkle,
		landmark.LeftHeel, landmark.RightHeel,
		landmark.LeftFootIndex, landmark.RightFootIndex,
	} {
		lm := raw[name]
		lm.Y += 0.2
		lm.Visibility = 0.1
		raw[name] = lm
	}
	return raw
}
