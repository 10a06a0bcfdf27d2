package detector

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/ayusman/posetrace/internal/config"
	"github.com/ayusman/posetrace/internal/landmark"
	"gocv.io/x/gocv"
)

func TestMockDetector(t *testing.T) {
	var frame gocv.Mat

	t.Run("returns nil by default", func(t *testing.T) {
		mock := NewMockDetector()

		raw, err := mock.Detect(frame)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if raw != nil {
			t.Errorf("expected nil landmarks, got %v", raw)
		}
	})

	t.Run("returns configured result", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetResult(StandingPose())

		raw, err := mock.Detect(frame)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if len(raw) != landmark.NumLandmarks {
			t.Errorf("expected %d landmarks, got %d", landmark.NumLandmarks, len(raw))
		}
	})

	t.Run("result is a copy", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetResult(StandingPose())

		raw, _ := mock.Detect(frame)
		delete(raw, landmark.Nose)

		again, _ := mock.Detect(frame)
		if _, ok := again[landmark.Nose]; !ok {
			t.Error("mutating a result changed later results")
		}
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockDetector()

		expectedErr := errors.New("detection failed")
		mock.SetError(expectedErr)

		raw, err := mock.Detect(frame)

		if err != expectedErr {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if raw != nil {
			t.Errorf("expected nil landmarks when error is set, got %v", raw)
		}
	})

	t.Run("counts calls and close", func(t *testing.T) {
		mock := NewMockDetector()
		mock.Detect(frame)
		mock.Detect(frame)

		if mock.Calls() != 2 {
			t.Errorf("expected 2 calls, got %d", mock.Calls())
		}
		if err := mock.Close(); err != nil {
			t.Errorf("expected Close to return nil, got %v", err)
		}
		if !mock.Closed() {
			t.Error("expected Closed() after Close")
		}
	})

	t.Run("implements Detector interface", func(t *testing.T) {
		var _ Detector = (*MockDetector)(nil)
		var _ Detector = (*ScriptedDetector)(nil)
		var _ Detector = (*MediaPipeDetector)(nil)
	})
}

func TestScriptedDetector(t *testing.T) {
	var frame gocv.Mat
	boom := errors.New("boom")

	t.Run("fails only at listed calls", func(t *testing.T) {
		d := FailAt(StandingPose(), boom, 2, 4)

		var failed []int
		for call := 1; call <= 5; call++ {
			raw, err := d.Detect(frame)
			if err != nil {
				if !errors.Is(err, boom) {
					t.Fatalf("call %d: unexpected error %v", call, err)
				}
				failed = append(failed, call)
				continue
			}
			if len(raw) != landmark.NumLandmarks {
				t.Errorf("call %d: got %d landmarks", call, len(raw))
			}
		}

		if !slices.Equal(failed, []int{2, 4}) {
			t.Errorf("failed calls = %v, want [2 4]", failed)
		}
		if d.Calls() != 5 {
			t.Errorf("Calls() = %d, want 5", d.Calls())
		}
	})

	t.Run("no body and panic steps", func(t *testing.T) {
		d := NewScriptedDetector(Step{Raw: StandingPose()}, map[int]Step{
			1: {},
			2: {Panic: "detector exploded"},
		})

		raw, err := d.Detect(frame)
		if raw != nil || err != nil {
			t.Errorf("call 1 = (%v, %v), want no body", raw, err)
		}

		defer func() {
			if r := recover(); r != "detector exploded" {
				t.Errorf("recover() = %v, want scripted panic", r)
			}
		}()
		d.Detect(frame)
		t.Error("call 2 should have panicked")
	})
}

func TestPresetPoses(t *testing.T) {
	t.Run("standing pose is fully visible and in frame", func(t *testing.T) {
		raw := StandingPose()
		for _, name := range landmark.All() {
			lm, ok := raw[name]
			if !ok {
				t.Errorf("missing %v", name)
				continue
			}
			if lm.Visibility < landmark.VisibilityThreshold {
				t.Errorf("%v visibility %f below threshold", name, lm.Visibility)
			}
			if lm.X < 0 || lm.X > 1 || lm.Y < 0 || lm.Y > 1 {
				t.Errorf("%v at (%f,%f) outside unit square", name, lm.X, lm.Y)
			}
		}
	})

	t.Run("head above hips above ankles", func(t *testing.T) {
		raw := StandingPose()
		if raw[landmark.Nose].Y >= raw[landmark.LeftHip].Y {
			t.Error("nose should be above the hips (lower Y value)")
		}
		if raw[landmark.LeftHip].Y >= raw[landmark.LeftAnkle].Y {
			t.Error("hips should be above the ankles (lower Y value)")
		}
	})

	t.Run("occluded legs project to upper body only", func(t *testing.T) {
		set := landmark.Project(OccludedLegsPose(), 640, 480)
		if set.Has(landmark.LeftKnee) || set.Has(landmark.RightAnkle) {
			t.Error("occluded legs should be dropped by projection")
		}
		if !set.Has(landmark.LeftHip, landmark.RightShoulder) {
			t.Error("upper body should remain visible")
		}
	})
}

func TestParseResponse(t *testing.T) {
	t.Run("full detection", func(t *testing.T) {
		line := []byte(`{"landmarks":[` +
			`{"x":0.5,"y":0.1,"z":-0.2,"visibility":0.98},` +
			`{"x":0.51,"y":0.09,"z":-0.2,"visibility":0.4}` +
			"]}\n")

		raw, err := parseResponse(line)
		if err != nil {
			t.Fatalf("parseResponse() error = %v", err)
		}
		if len(raw) != 2 {
			t.Fatalf("got %d landmarks, want 2", len(raw))
		}

		nose := raw[landmark.Nose]
		if nose.X != 0.5 || nose.Y != 0.1 || nose.Z != -0.2 || nose.Visibility != 0.98 {
			t.Errorf("nose = %+v", nose)
		}
		if raw[landmark.LeftEyeInner].Visibility != 0.4 {
			t.Errorf("second entry should map to LEFT_EYE_INNER, got %+v", raw[landmark.LeftEyeInner])
		}
	})

	t.Run("null landmarks means no body", func(t *testing.T) {
		raw, err := parseResponse([]byte(`{"landmarks":null}`))
		if err != nil {
			t.Fatalf("parseResponse() error = %v", err)
		}
		if raw != nil {
			t.Errorf("expected nil, got %v", raw)
		}
	})

	t.Run("extra landmarks are ignored", func(t *testing.T) {
		line := []byte(`{"landmarks":[`)
		for i := 0; i < landmark.NumLandmarks+2; i++ {
			if i > 0 {
				line = append(line, ',')
			}
			line = append(line, `{"x":0,"y":0,"z":0,"visibility":1}`...)
		}
		line = append(line, "]}"...)

		raw, err := parseResponse(line)
		if err != nil {
			t.Fatalf("parseResponse() error = %v", err)
		}
		if len(raw) != landmark.NumLandmarks {
			t.Errorf("got %d landmarks, want %d", len(raw), landmark.NumLandmarks)
		}
	})

	t.Run("service error", func(t *testing.T) {
		if _, err := parseResponse([]byte(`{"landmarks":null,"error":"bad jpeg"}`)); err == nil {
			t.Error("expected error from service error field")
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		if _, err := parseResponse([]byte("not json\n")); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestMediaPipeDetector_Args(t *testing.T) {
	script := filepath.Join(t.TempDir(), scriptName)
	if err := os.WriteFile(script, []byte("# stub\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Script = script
	cfg.Python = "/usr/bin/python3"
	cfg.ModelComplexity = 1
	cfg.MinDetectionConfidence = 0.7
	cfg.MinTrackingConfidence = 0.25
	cfg.SmoothLandmarks = false

	d, err := NewMediaPipeDetector(cfg)
	if err != nil {
		t.Fatalf("NewMediaPipeDetector() error = %v", err)
	}
	defer d.Close()

	want := []string{
		script,
		"--model-complexity", "1",
		"--min-detection-confidence", "0.7",
		"--min-tracking-confidence", "0.25",
		"--no-smooth-landmarks",
	}
	if got := d.args(); !slices.Equal(got, want) {
		t.Errorf("args() = %v, want %v", got, want)
	}
	if d.python != "/usr/bin/python3" {
		t.Errorf("python = %q", d.python)
	}
}

func TestNewMediaPipeDetector_MissingScript(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Script = filepath.Join(t.TempDir(), "nope.py")

	_, err := NewMediaPipeDetector(cfg)
	if !errors.Is(err, ErrScriptNotFound) {
		t.Errorf("error = %v, want ErrScriptNotFound", err)
	}
}

func TestConfigFrom(t *testing.T) {
	c := config.Default().Detector
	c.ModelComplexity = 0
	c.MinDetectionConfidence = 0.8
	c.Script = "/opt/pose_service.py"

	got := ConfigFrom(c)
	if got.ModelComplexity != 0 || got.MinDetectionConfidence != 0.8 || got.Script != "/opt/pose_service.py" {
		t.Errorf("ConfigFrom() = %+v", got)
	}
	if got.IdleTimeout != DefaultConfig().IdleTimeout {
		t.Errorf("IdleTimeout = %v, want default", got.IdleTimeout)
	}
}

func TestMediaPipeDetector_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test that requires Python and MediaPipe")
	}
	if findPoseScript() == "" {
		t.Skip("pose_service.py not found")
	}

	d, err := NewMediaPipeDetector(DefaultConfig())
	if err != nil {
		t.Fatalf("NewMediaPipeDetector() error = %v", err)
	}
	defer d.Close()

	frame := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()

	raw, err := d.Detect(frame)
	if err != nil {
		t.Skipf("pose service unavailable: %v", err)
	}
	if raw != nil {
		t.Errorf("expected no body in a blank frame, got %d landmarks", len(raw))
	}
}
