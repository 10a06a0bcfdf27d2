package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ayusman/posetrace/internal/detector"
	"github.com/ayusman/posetrace/internal/render"
	"github.com/ayusman/posetrace/internal/store"
	"github.com/ayusman/posetrace/internal/video"
	"gocv.io/x/gocv"
)

// makeFrames returns n distinct solid frames; frame i has every channel set to 20*i.
func makeFrames(t *testing.T, n int) []gocv.Mat {
	t.Helper()
	frames := make([]gocv.Mat, n)
	for i := range frames {
		v := float64(20 * i)
		frames[i] = gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), 120, 160, gocv.MatTypeCV8UC3)
	}
	t.Cleanup(func() {
		for i := range frames {
			frames[i].Close()
		}
	})
	return frames
}

// touch creates an empty file so the input existence check passes.
func touch(t *testing.T, path string) string {
	t.Helper()
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

type fakeTap struct {
	mu        sync.Mutex
	published int
	events    []Progress
	onEvent   func(Progress)
}

func (f *fakeTap) Publish(frame gocv.Mat) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published++
}

func (f *fakeTap) Progress(p Progress) {
	f.mu.Lock()
	f.events = append(f.events, p)
	fn := f.onEvent
	f.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

func newProcessor(d detector.Detector, o video.Opener) *Processor {
	return &Processor{
		Detector: d,
		Renderer: render.New(render.DefaultStyle()),
		Opener:   o,
		Config:   Config{Codec: "mp4v"},
	}
}

func TestResolveFPS(t *testing.T) {
	tests := []struct {
		name               string
		configured, source float64
		want               float64
	}{
		{"configured wins", 15, 29.97, 15},
		{"source fallback", 0, 29.97, 29.97},
		{"default fallback", 0, 0, DefaultFPS},
		{"negative configured ignored", -1, 25, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveFPS(tt.configured, tt.source); got != tt.want {
				t.Errorf("ResolveFPS(%v, %v) = %v, want %v", tt.configured, tt.source, got, tt.want)
			}
		})
	}
}

func TestProcessVideo_InputNotFound(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.mp4")
	opener := video.NewMockOpener(video.NewMockSource(video.Info{}, nil), video.NewMemorySink())
	p := newProcessor(detector.NewMockDetector(), opener)

	report, err := p.ProcessVideo(context.Background(), filepath.Join(dir, "missing.mp4"), output)

	if !errors.Is(err, ErrInputNotFound) {
		t.Fatalf("error = %v, want ErrInputNotFound", err)
	}
	if report == nil || report.Total != 0 {
		t.Errorf("report = %+v, want empty report", report)
	}
	if n := len(opener.SourcesOpened()); n != 0 {
		t.Errorf("sources opened = %d, want 0", n)
	}
	if n := len(opener.SinksOpened()); n != 0 {
		t.Errorf("sinks opened = %d, want 0", n)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Error("output file should not exist")
	}
}

func TestProcessVideo_OpenInputFails(t *testing.T) {
	dir := t.TempDir()
	input := touch(t, filepath.Join(dir, "corrupt.mp4"))

	opener := &video.MockOpener{
		SourceFunc: func(string) (video.Source, error) { return nil, errors.New("moov atom not found") },
	}
	p := newProcessor(detector.NewMockDetector(), opener)

	_, err := p.ProcessVideo(context.Background(), input, filepath.Join(dir, "out.mp4"))

	if !errors.Is(err, ErrOpenInput) {
		t.Fatalf("error = %v, want ErrOpenInput", err)
	}
	if n := len(opener.SinksOpened()); n != 0 {
		t.Errorf("sinks opened = %d, want 0", n)
	}
}

func TestProcessVideo_OpenOutputFails(t *testing.T) {
	dir := t.TempDir()
	input := touch(t, filepath.Join(dir, "in.mp4"))
	output := filepath.Join(dir, "out.mp4")

	src := video.NewMockSource(video.Info{Width: 160, Height: 120, FPS: 25}, nil)
	opener := &video.MockOpener{
		SourceFunc: func(string) (video.Source, error) { return src, nil },
		SinkFunc: func(path string, _ video.SinkConfig) (video.Sink, error) {
			// Simulate an encoder that creates the file before failing.
			os.WriteFile(path, []byte("partial"), 0o644)
			return nil, errors.New("codec not supported")
		},
	}
	p := newProcessor(detector.NewMockDetector(), opener)

	_, err := p.ProcessVideo(context.Background(), input, output)

	if !errors.Is(err, ErrOpenOutput) {
		t.Fatalf("error = %v, want ErrOpenOutput", err)
	}
	if !src.Closed() {
		t.Error("source should be released when the sink cannot be created")
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Error("partial output file should be removed")
	}
}

func TestProcessVideo_OpenOutputFailsKeepsExistingFile(t *testing.T) {
	dir := t.TempDir()
	input := touch(t, filepath.Join(dir, "in.mp4"))
	output := filepath.Join(dir, "out.mp4")
	if err := os.WriteFile(output, []byte("previous run"), 0o644); err != nil {
		t.Fatal(err)
	}

	opener := &video.MockOpener{
		SourceFunc: func(string) (video.Source, error) {
			return video.NewMockSource(video.Info{Width: 8, Height: 8}, nil), nil
		},
		SinkFunc: func(string, video.SinkConfig) (video.Sink, error) {
			return nil, errors.New("permission denied")
		},
	}
	p := newProcessor(detector.NewMockDetector(), opener)

	if _, err := p.ProcessVideo(context.Background(), input, output); !errors.Is(err, ErrOpenOutput) {
		t.Fatalf("error = %v, want ErrOpenOutput", err)
	}
	if _, err := os.Stat(output); err != nil {
		t.Error("a file that existed before the run should not be removed")
	}
}

func TestProcessVideo_SinkConfig(t *testing.T) {
	dir := t.TempDir()
	input := touch(t, filepath.Join(dir, "in.mp4"))

	tests := []struct {
		name      string
		outputFPS float64
		sourceFPS float64
		wantFPS   float64
	}{
		{"source rate", 0, 24, 24},
		{"configured rate", 12, 24, 12},
		{"unknown rate", 0, 0, DefaultFPS},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := video.NewMockSource(video.Info{Width: 640, Height: 360, FPS: tt.sourceFPS}, nil)
			opener := video.NewMockOpener(src, video.NewMemorySink())
			p := newProcessor(detector.NewMockDetector(), opener)
			p.Config.OutputFPS = tt.outputFPS
			p.Config.Codec = "avc1"

			if _, err := p.ProcessVideo(context.Background(), input, filepath.Join(dir, "out.mp4")); err != nil {
				t.Fatalf("ProcessVideo() error = %v", err)
			}

			want := video.SinkConfig{Codec: "avc1", FPS: tt.wantFPS, Width: 640, Height: 360}
			if got := opener.SinkConfigs(); len(got) != 1 || got[0] != want {
				t.Errorf("sink config = %+v, want %+v", got, want)
			}
		})
	}
}

func TestProcessVideo_FrameFailureWritesOriginal(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	dir := t.TempDir()
	input := touch(t, filepath.Join(dir, "dance.mp4"))

	frames := makeFrames(t, 10)
	src := video.NewMockSource(video.Info{FPS: 25, FrameCount: 10}, frames)
	sink := video.NewMemorySink()
	defer sink.Release()

	det := detector.FailAt(detector.StandingPose(), errors.New("inference failed"), 5)
	tap := &fakeTap{}
	p := newProcessor(det, video.NewMockOpener(src, sink))
	p.Tap = tap

	report, err := p.ProcessVideo(context.Background(), input, filepath.Join(dir, "dance_pose.mp4"))
	if err != nil {
		t.Fatalf("ProcessVideo() error = %v", err)
	}

	if report.Success != 9 || report.Failed != 1 || report.Total != 10 {
		t.Errorf("report = %+v, want success=9 failed=1 total=10", report)
	}
	if report.Interrupted {
		t.Error("report should not be interrupted")
	}

	written := sink.Frames()
	if len(written) != 10 {
		t.Fatalf("sink received %d frames, want 10", len(written))
	}

	for i, out := range written {
		identical := bytes.Equal(out.ToBytes(), frames[i].ToBytes())
		if i == 4 && !identical {
			t.Error("failed frame 5 should be written bit-identical to the input")
		}
		if i != 4 && identical {
			t.Errorf("frame %d should carry the overlay", i+1)
		}
	}

	if !sink.Closed() || !src.Closed() {
		t.Error("both handles should be closed")
	}
	if tap.published != 9 {
		t.Errorf("published frames = %d, want 9", tap.published)
	}
	last := tap.events[len(tap.events)-1]
	if !last.Done || last.Frame != 10 || last.Percent != 100 {
		t.Errorf("final progress = %+v", last)
	}
}

func TestProcessVideo_PanicAndNoBody(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	dir := t.TempDir()
	input := touch(t, filepath.Join(dir, "in.mp4"))

	frames := makeFrames(t, 4)
	src := video.NewMockSource(video.Info{FPS: 30}, frames)
	sink := video.NewMemorySink()
	defer sink.Release()

	det := detector.NewScriptedDetector(detector.Step{Raw: detector.StandingPose()}, map[int]detector.Step{
		2: {Panic: "index out of range"},
		3: {}, // no body
	})
	p := newProcessor(det, video.NewMockOpener(src, sink))

	report, err := p.ProcessVideo(context.Background(), input, filepath.Join(dir, "out.mp4"))
	if err != nil {
		t.Fatalf("ProcessVideo() error = %v", err)
	}

	if report.Success != 3 || report.Failed != 1 {
		t.Errorf("report = %+v, want success=3 failed=1", report)
	}

	// A frame with no body still gets the info panel.
	if bytes.Equal(sink.Frames()[2].ToBytes(), frames[2].ToBytes()) {
		t.Error("no-body frame should carry the info panel")
	}
	if !bytes.Equal(sink.Frames()[1].ToBytes(), frames[1].ToBytes()) {
		t.Error("panicking frame should be written unchanged")
	}
}

func TestAnnotate_RecoversPanic(t *testing.T) {
	det := detector.NewScriptedDetector(detector.Step{Panic: "boom"}, nil)
	p := newProcessor(det, nil)

	var frame gocv.Mat
	res := p.Annotate(frame, render.FrameStats{FrameNum: 7})

	var pe *PanicError
	if !errors.As(res.Err, &pe) {
		t.Fatalf("Err = %v, want *PanicError", res.Err)
	}
	if pe.Value != "boom" || len(pe.Stack) == 0 {
		t.Errorf("PanicError = %+v", pe)
	}
	if res.Index != 7 {
		t.Errorf("Index = %d, want 7", res.Index)
	}
}

func TestProcessVideo_Cancellation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	dir := t.TempDir()
	input := touch(t, filepath.Join(dir, "in.mp4"))

	frames := makeFrames(t, 10)
	src := video.NewMockSource(video.Info{FPS: 30, FrameCount: 10}, frames)
	sink := video.NewMemorySink()
	defer sink.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tap := &fakeTap{onEvent: func(p Progress) {
		if p.Frame == 3 {
			cancel()
		}
	}}
	p := newProcessor(detector.NewMockDetector(), video.NewMockOpener(src, sink))
	p.Tap = tap

	report, err := p.ProcessVideo(ctx, input, filepath.Join(dir, "out.mp4"))

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if !report.Interrupted {
		t.Error("report should be marked interrupted")
	}
	if src.Reads() != 3 {
		t.Errorf("source reads = %d, want 3", src.Reads())
	}
	if len(sink.Frames()) != 3 || report.Total != 3 {
		t.Errorf("frames written = %d (report %d), want 3", len(sink.Frames()), report.Total)
	}
	if !sink.Closed() || !src.Closed() {
		t.Error("handles should be closed after interrupt")
	}
}

func TestProcessVideo_WriteErrorIsFatal(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	dir := t.TempDir()
	input := touch(t, filepath.Join(dir, "in.mp4"))

	frames := makeFrames(t, 5)
	src := video.NewMockSource(video.Info{FPS: 30}, frames)
	sink := video.NewMemorySink()
	defer sink.Release()
	sink.FailWriteAt(2, errors.New("no space left on device"))

	p := newProcessor(detector.NewMockDetector(), video.NewMockOpener(src, sink))

	_, err := p.ProcessVideo(context.Background(), input, filepath.Join(dir, "out.mp4"))

	if !errors.Is(err, ErrWriteFrame) {
		t.Fatalf("error = %v, want ErrWriteFrame", err)
	}
	if src.Reads() != 2 {
		t.Errorf("source reads = %d, want 2", src.Reads())
	}
	if !sink.Closed() || !src.Closed() {
		t.Error("handles should be closed after a write error")
	}
}

func TestProcessVideo_ReadError(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	dir := t.TempDir()
	input := touch(t, filepath.Join(dir, "in.mp4"))

	frames := makeFrames(t, 5)
	src := video.NewMockSource(video.Info{FPS: 30}, frames)
	src.FailReadAt(3, errors.New("corrupt packet"))
	sink := video.NewMemorySink()
	defer sink.Release()

	p := newProcessor(detector.NewMockDetector(), video.NewMockOpener(src, sink))

	report, err := p.ProcessVideo(context.Background(), input, filepath.Join(dir, "out.mp4"))

	if !errors.Is(err, ErrReadFrame) {
		t.Fatalf("error = %v, want ErrReadFrame", err)
	}
	if report.Success != 2 {
		t.Errorf("success = %d, want 2", report.Success)
	}
	if !sink.Closed() || !src.Closed() {
		t.Error("handles should be closed after a read error")
	}
}

func TestProcessVideo_RecordsHistory(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	dir := t.TempDir()
	input := touch(t, filepath.Join(dir, "in.mp4"))

	s, err := store.New(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	frames := makeFrames(t, 6)
	src := video.NewMockSource(video.Info{FPS: 30, FrameCount: 6}, frames)
	sink := video.NewMemorySink()
	defer sink.Release()

	det := detector.FailAt(detector.StandingPose(), errors.New("timeout"), 2, 6)
	p := newProcessor(det, video.NewMockOpener(src, sink))
	p.Recorder = s.Runs()

	report, err := p.ProcessVideo(context.Background(), input, filepath.Join(dir, "out.mp4"))
	if err != nil {
		t.Fatalf("ProcessVideo() error = %v", err)
	}
	if report.RunID == "" {
		t.Fatal("report should carry the run ID")
	}

	run, err := s.Runs().Get(report.RunID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if run.Status != store.StatusCompleted || run.Success != 4 || run.Failed != 2 || run.Total != 6 {
		t.Errorf("run = %+v", run)
	}

	failures, err := s.Runs().Failures(report.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(failures) != 2 || failures[0].Frame != 2 || failures[1].Frame != 6 {
		t.Errorf("failures = %+v, want frames 2 and 6", failures)
	}
}

func TestProcessVideo_RecordsFailedOpen(t *testing.T) {
	dir := t.TempDir()
	input := touch(t, filepath.Join(dir, "in.mp4"))

	s, err := store.New(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	opener := &video.MockOpener{
		SourceFunc: func(string) (video.Source, error) { return nil, errors.New("unsupported") },
	}
	p := newProcessor(detector.NewMockDetector(), opener)
	p.Recorder = s.Runs()

	report, _ := p.ProcessVideo(context.Background(), input, filepath.Join(dir, "out.mp4"))

	run, err := s.Runs().Get(report.RunID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if run.Status != store.StatusFailed || run.Error == "" {
		t.Errorf("run = %+v, want failed with error", run)
	}
}
