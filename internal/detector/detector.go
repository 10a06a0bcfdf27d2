// Package detector provides the pose detection boundary: given one BGR frame,
// report the normalized body landmarks or that no body was found.
package detector

import (
	"time"

	"github.com/ayusman/posetrace/internal/config"
	"github.com/ayusman/posetrace/internal/landmark"
	"gocv.io/x/gocv"
)

// Detector defines the interface for pose detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns the detected landmarks.
	// A nil result with a nil error means no body was detected.
	// Implementations must not modify frame.
	Detect(frame gocv.Mat) (landmark.Raw, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for pose detection.
type Config struct {
	// ModelComplexity selects the pose model (0, 1 or 2).
	ModelComplexity int

	// SmoothLandmarks enables temporal smoothing across frames.
	SmoothLandmarks bool

	// MinDetectionConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinDetectionConfidence float64

	// MinTrackingConfidence is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConfidence float64

	// Script overrides the location of pose_service.py.
	Script string

	// Python overrides the interpreter used to run the script.
	Python string

	// IdleTimeout stops the subprocess after this long without a request.
	IdleTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		ModelComplexity:        2,
		SmoothLandmarks:        true,
		MinDetectionConfidence: 0.5,
		MinTrackingConfidence:  0.5,
		IdleTimeout:            30 * time.Second,
	}
}

// ConfigFrom converts the detector section of the application config.
func ConfigFrom(c config.DetectorConfig) Config {
	cfg := DefaultConfig()
	cfg.ModelComplexity = c.ModelComplexity
	cfg.SmoothLandmarks = c.SmoothLandmarks
	cfg.MinDetectionConfidence = c.MinDetectionConfidence
	cfg.MinTrackingConfidence = c.MinTrackingConfidence
	cfg.Script = c.Script
	cfg.Python = c.Python
	return cfg
}
