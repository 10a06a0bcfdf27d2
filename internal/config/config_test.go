package config

import (
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(NewViper(), "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Detector.ModelComplexity != 2 {
		t.Errorf("ModelComplexity = %d, want 2", cfg.Detector.ModelComplexity)
	}
	if cfg.Detector.MinDetectionConfidence != 0.5 {
		t.Errorf("MinDetectionConfidence = %f, want 0.5", cfg.Detector.MinDetectionConfidence)
	}
	if cfg.Video.Codec != "mp4v" {
		t.Errorf("Codec = %q, want mp4v", cfg.Video.Codec)
	}
	if cfg.Video.OutputFPS != 0 {
		t.Errorf("OutputFPS = %f, want 0 (use source rate)", cfg.Video.OutputFPS)
	}
	if cfg.Visualization.InfoBoxAlpha != 0.7 {
		t.Errorf("InfoBoxAlpha = %f, want 0.7", cfg.Visualization.InfoBoxAlpha)
	}
}

func TestLoad_File(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "posetrace.yaml")

	content := `
video:
  codec: XVID
  output_fps: 24
detector:
  model_complexity: 1
visualization:
  skeleton_color: "#112233"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(NewViper(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Video.Codec != "XVID" {
		t.Errorf("Codec = %q, want XVID", cfg.Video.Codec)
	}
	if cfg.Video.OutputFPS != 24 {
		t.Errorf("OutputFPS = %f, want 24", cfg.Video.OutputFPS)
	}
	if cfg.Detector.ModelComplexity != 1 {
		t.Errorf("ModelComplexity = %d, want 1", cfg.Detector.ModelComplexity)
	}
	if cfg.Visualization.SkeletonColor != "#112233" {
		t.Errorf("SkeletonColor = %q, want #112233", cfg.Visualization.SkeletonColor)
	}
	// Untouched keys keep their defaults.
	if cfg.Visualization.LandmarkRadius != 5 {
		t.Errorf("LandmarkRadius = %d, want 5", cfg.Visualization.LandmarkRadius)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("POSETRACE_VIDEO_CODEC", "MJPG")

	cfg, err := Load(NewViper(), "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Video.Codec != "MJPG" {
		t.Errorf("Codec = %q, want MJPG from env", cfg.Video.Codec)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"complexity too high", func(c *Config) { c.Detector.ModelComplexity = 3 }},
		{"complexity negative", func(c *Config) { c.Detector.ModelComplexity = -1 }},
		{"confidence above one", func(c *Config) { c.Detector.MinDetectionConfidence = 1.5 }},
		{"tracking below zero", func(c *Config) { c.Detector.MinTrackingConfidence = -0.1 }},
		{"info alpha", func(c *Config) { c.Visualization.InfoBoxAlpha = 2 }},
		{"angle alpha", func(c *Config) { c.Visualization.AngleBoxAlpha = -1 }},
		{"negative fps", func(c *Config) { c.Video.OutputFPS = -30 }},
		{"bad codec", func(c *Config) { c.Video.Codec = "h264x" }},
		{"bad color", func(c *Config) { c.Visualization.AngleColor = "cyan" }},
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.RGBA
		wantErr bool
	}{
		{"#00ff00", color.RGBA{0, 255, 0, 255}, false},
		{"FF0000", color.RGBA{255, 0, 0, 255}, false},
		{" #0a0b0c ", color.RGBA{10, 11, 12, 255}, false},
		{"#fff", color.RGBA{}, true},
		{"#gggggg", color.RGBA{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseColor(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseColor(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseColor(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Video.Codec = "avc1"
	cfg.Paths.OutputDir = "/tmp/out"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(NewViper(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Video.Codec != "avc1" {
		t.Errorf("Codec = %q, want avc1", loaded.Video.Codec)
	}
	if loaded.Paths.OutputDir != "/tmp/out" {
		t.Errorf("OutputDir = %q, want /tmp/out", loaded.Paths.OutputDir)
	}
}
