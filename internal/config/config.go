// Package config loads posetrace settings from defaults, a YAML file,
// POSETRACE_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. POSETRACE_VIDEO_CODEC.
const EnvPrefix = "POSETRACE"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete application configuration.
type Config struct {
	LogLevel      string              `mapstructure:"log_level" yaml:"log_level"`
	LogPretty     bool                `mapstructure:"log_pretty" yaml:"log_pretty"`
	Paths         PathsConfig         `mapstructure:"paths" yaml:"paths"`
	Detector      DetectorConfig      `mapstructure:"detector" yaml:"detector"`
	Visualization VisualizationConfig `mapstructure:"visualization" yaml:"visualization"`
	Video         VideoConfig         `mapstructure:"video" yaml:"video"`
	Preview       PreviewConfig       `mapstructure:"preview" yaml:"preview"`
}

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	InputDir  string `mapstructure:"input_dir" yaml:"input_dir"`
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
	// History is the run history database. Empty disables history.
	History string `mapstructure:"history" yaml:"history"`
}

// DetectorConfig is forwarded to the pose detector.
type DetectorConfig struct {
	ModelComplexity        int     `mapstructure:"model_complexity" yaml:"model_complexity"`
	SmoothLandmarks        bool    `mapstructure:"smooth_landmarks" yaml:"smooth_landmarks"`
	MinDetectionConfidence float64 `mapstructure:"min_detection_confidence" yaml:"min_detection_confidence"`
	MinTrackingConfidence  float64 `mapstructure:"min_tracking_confidence" yaml:"min_tracking_confidence"`
	Script                 string  `mapstructure:"script" yaml:"script"`
	Python                 string  `mapstructure:"python" yaml:"python"`
}

// VisualizationConfig controls overlay appearance. Colors are "#rrggbb".
type VisualizationConfig struct {
	SkeletonColor     string  `mapstructure:"skeleton_color" yaml:"skeleton_color"`
	SkeletonThickness int     `mapstructure:"skeleton_thickness" yaml:"skeleton_thickness"`
	LandmarkColor     string  `mapstructure:"landmark_color" yaml:"landmark_color"`
	LandmarkRadius    int     `mapstructure:"landmark_radius" yaml:"landmark_radius"`
	TextColor         string  `mapstructure:"text_color" yaml:"text_color"`
	TextScale         float64 `mapstructure:"text_scale" yaml:"text_scale"`
	TextThickness     int     `mapstructure:"text_thickness" yaml:"text_thickness"`
	AngleColor        string  `mapstructure:"angle_color" yaml:"angle_color"`
	AngleArcs         bool    `mapstructure:"angle_arcs" yaml:"angle_arcs"`
	AngleArcRadius    int     `mapstructure:"angle_arc_radius" yaml:"angle_arc_radius"`
	AngleBoxAlpha     float64 `mapstructure:"angle_box_alpha" yaml:"angle_box_alpha"`
	InfoBoxAlpha      float64 `mapstructure:"info_box_alpha" yaml:"info_box_alpha"`
}

// VideoConfig controls the output encoder.
type VideoConfig struct {
	// OutputFPS of 0 keeps the source frame rate.
	OutputFPS    float64 `mapstructure:"output_fps" yaml:"output_fps"`
	Codec        string  `mapstructure:"codec" yaml:"codec"`
	ShowProgress bool    `mapstructure:"show_progress" yaml:"show_progress"`
}

// PreviewConfig controls the optional preview server. Empty Addr disables it.
type PreviewConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Paths: PathsConfig{
			InputDir:  "input",
			OutputDir: "output",
			History:   DefaultHistoryPath(),
		},
		Detector: DetectorConfig{
			ModelComplexity:        2,
			SmoothLandmarks:        true,
			MinDetectionConfidence: 0.5,
			MinTrackingConfidence:  0.5,
		},
		Visualization: VisualizationConfig{
			SkeletonColor:     "#00ff00",
			SkeletonThickness: 2,
			LandmarkColor:     "#ff0000",
			LandmarkRadius:    5,
			TextColor:         "#ffffff",
			TextScale:         0.5,
			TextThickness:     1,
			AngleColor:        "#00ffff",
			AngleArcRadius:    30,
			AngleBoxAlpha:     0.6,
			InfoBoxAlpha:      0.7,
		},
		Video: VideoConfig{
			Codec:        "mp4v",
			ShowProgress: true,
		},
	}
}

// DefaultHistoryPath is ~/.posetrace/history.db, or empty when the home
// directory cannot be determined.
func DefaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".posetrace", "history.db")
}

// DefaultConfigDir is ~/.config/posetrace.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "posetrace")
}

// NewViper returns a viper instance preloaded with defaults and env bindings.
// Callers bind their flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	d := Default()

	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_pretty", d.LogPretty)

	v.SetDefault("paths.input_dir", d.Paths.InputDir)
	v.SetDefault("paths.output_dir", d.Paths.OutputDir)
	v.SetDefault("paths.history", d.Paths.History)

	v.SetDefault("detector.model_complexity", d.Detector.ModelComplexity)
	v.SetDefault("detector.smooth_landmarks", d.Detector.SmoothLandmarks)
	v.SetDefault("detector.min_detection_confidence", d.Detector.MinDetectionConfidence)
	v.SetDefault("detector.min_tracking_confidence", d.Detector.MinTrackingConfidence)
	v.SetDefault("detector.script", d.Detector.Script)
	v.SetDefault("detector.python", d.Detector.Python)

	v.SetDefault("visualization.skeleton_color", d.Visualization.SkeletonColor)
	v.SetDefault("visualization.skeleton_thickness", d.Visualization.SkeletonThickness)
	v.SetDefault("visualization.landmark_color", d.Visualization.LandmarkColor)
	v.SetDefault("visualization.landmark_radius", d.Visualization.LandmarkRadius)
	v.SetDefault("visualization.text_color", d.Visualization.TextColor)
	v.SetDefault("visualization.text_scale", d.Visualization.TextScale)
	v.SetDefault("visualization.text_thickness", d.Visualization.TextThickness)
	v.SetDefault("visualization.angle_color", d.Visualization.AngleColor)
	v.SetDefault("visualization.angle_arcs", d.Visualization.AngleArcs)
	v.SetDefault("visualization.angle_arc_radius", d.Visualization.AngleArcRadius)
	v.SetDefault("visualization.angle_box_alpha", d.Visualization.AngleBoxAlpha)
	v.SetDefault("visualization.info_box_alpha", d.Visualization.InfoBoxAlpha)

	v.SetDefault("video.output_fps", d.Video.OutputFPS)
	v.SetDefault("video.codec", d.Video.Codec)
	v.SetDefault("video.show_progress", d.Video.ShowProgress)

	v.SetDefault("preview.addr", d.Preview.Addr)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the config file (if any) into v, then decodes and validates.
// An explicit file must exist; without one the default location is tried
// and silently skipped when absent.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	} else if dir := DefaultConfigDir(); dir != "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Detector.ModelComplexity < 0 || c.Detector.ModelComplexity > 2 {
		return fmt.Errorf("%w: model complexity must be 0, 1 or 2, got %d", ErrInvalid, c.Detector.ModelComplexity)
	}
	if !unit(c.Detector.MinDetectionConfidence) {
		return fmt.Errorf("%w: min detection confidence %.2f outside [0,1]", ErrInvalid, c.Detector.MinDetectionConfidence)
	}
	if !unit(c.Detector.MinTrackingConfidence) {
		return fmt.Errorf("%w: min tracking confidence %.2f outside [0,1]", ErrInvalid, c.Detector.MinTrackingConfidence)
	}
	if !unit(c.Visualization.InfoBoxAlpha) {
		return fmt.Errorf("%w: info box alpha %.2f outside [0,1]", ErrInvalid, c.Visualization.InfoBoxAlpha)
	}
	if !unit(c.Visualization.AngleBoxAlpha) {
		return fmt.Errorf("%w: angle box alpha %.2f outside [0,1]", ErrInvalid, c.Visualization.AngleBoxAlpha)
	}
	if c.Video.OutputFPS < 0 {
		return fmt.Errorf("%w: output fps must not be negative", ErrInvalid)
	}
	if len(c.Video.Codec) != 4 {
		return fmt.Errorf("%w: codec %q is not a fourcc", ErrInvalid, c.Video.Codec)
	}

	colors := map[string]string{
		"skeleton_color": c.Visualization.SkeletonColor,
		"landmark_color": c.Visualization.LandmarkColor,
		"text_color":     c.Visualization.TextColor,
		"angle_color":    c.Visualization.AngleColor,
	}
	for key, value := range colors {
		if _, err := ParseColor(value); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
		}
	}

	return nil
}

func unit(f float64) bool {
	return f >= 0 && f <= 1
}

// ParseColor parses "#rrggbb" (the leading # is optional).
func ParseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("color %q is not #rrggbb", s)
	}

	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("color %q is not #rrggbb", s)
	}

	return color.RGBA{
		R: uint8(n >> 16),
		G: uint8(n >> 8),
		B: uint8(n),
		A: 255,
	}, nil
}

// Save writes cfg as YAML, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
