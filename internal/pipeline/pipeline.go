// Package pipeline runs the per-video annotation loop: read a frame, detect
// the pose, draw the overlay, write the frame. A frame that fails is written
// unannotated and the loop moves on; only open, read and write failures end
// a session early.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ayusman/posetrace/internal/config"
	"github.com/ayusman/posetrace/internal/detector"
	"github.com/ayusman/posetrace/internal/logger"
	"github.com/ayusman/posetrace/internal/render"
	"github.com/ayusman/posetrace/internal/store"
	"github.com/ayusman/posetrace/internal/video"
	"gocv.io/x/gocv"
)

// DefaultFPS is used when neither the configuration nor the source
// provides a frame rate.
const DefaultFPS = 30.0

var (
	// ErrInputNotFound is returned when the input path does not exist.
	ErrInputNotFound = errors.New("input video not found")
	// ErrOpenInput is returned when the input cannot be opened for decoding.
	ErrOpenInput = errors.New("cannot open input video")
	// ErrOpenOutput is returned when the output sink cannot be created.
	ErrOpenOutput = errors.New("cannot create output video")
	// ErrReadFrame is returned when decoding fails before end of stream.
	ErrReadFrame = errors.New("cannot read frame")
	// ErrWriteFrame is returned when the sink rejects a frame.
	ErrWriteFrame = errors.New("cannot write frame")
)

// Config controls the output encoder and progress reporting.
type Config struct {
	// OutputFPS overrides the source frame rate when > 0.
	OutputFPS float64
	// Codec is the output fourcc, e.g. "mp4v".
	Codec string
	// ShowProgress draws a progress bar, or logs every 10% when there is no
	// terminal.
	ShowProgress bool
	// ProgressWriter receives the bar. Nil means stderr when it is a terminal.
	ProgressWriter io.Writer
}

// ConfigFrom converts the video section of the application config.
func ConfigFrom(c config.VideoConfig) Config {
	return Config{
		OutputFPS:    c.OutputFPS,
		Codec:        c.Codec,
		ShowProgress: c.ShowProgress,
	}
}

// Recorder persists run history. *store.RunRepository implements it.
type Recorder interface {
	Start(input, output string) (*store.Run, error)
	RecordFailure(runID string, frame int, reason string) error
	Finish(runID string, o store.Outcome) error
}

// Progress is a snapshot of a running session.
type Progress struct {
	RunID   string  `json:"run_id,omitempty"`
	Input   string  `json:"input"`
	Output  string  `json:"output"`
	Frame   int     `json:"frame"`
	Total   int     `json:"total"`
	Success int     `json:"success"`
	Failed  int     `json:"failed"`
	Percent float64 `json:"percent"`
	Done    bool    `json:"done"`
}

// Tap observes a session, e.g. for a live preview. Implementations must not
// block and must not retain frame after returning.
type Tap interface {
	Publish(frame gocv.Mat)
	Progress(p Progress)
}

// Report summarizes one ProcessVideo call.
type Report struct {
	RunID       string        `json:"run_id,omitempty"`
	Input       string        `json:"input"`
	Output      string        `json:"output"`
	Success     int           `json:"success"`
	Failed      int           `json:"failed"`
	Total       int           `json:"total"`
	Interrupted bool          `json:"interrupted"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Processor annotates videos. Detector, Renderer and Opener are required;
// Recorder and Tap are optional.
type Processor struct {
	Detector detector.Detector
	Renderer *render.Renderer
	Opener   video.Opener
	Recorder Recorder
	Tap      Tap
	Config   Config
}

// Session owns the handles and counters of one ProcessVideo call.
type Session struct {
	Input  string
	Output string
	RunID  string
	Info   video.Info
	// FPS is the resolved output frame rate.
	FPS float64

	Success int
	Failed  int

	source video.Source
	sink   video.Sink
}

// Frames returns the number of frames written so far.
func (s *Session) Frames() int {
	return s.Success + s.Failed
}

// close releases both handles. The sink is closed first so the container
// trailer is written even if releasing the source fails.
func (s *Session) close() error {
	var errs []error
	if s.sink != nil {
		if err := s.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output: %w", err))
		}
		s.sink = nil
	}
	if s.source != nil {
		if err := s.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close input: %w", err))
		}
		s.source = nil
	}
	return errors.Join(errs...)
}

// ResolveFPS picks the output frame rate: the configured value, else the
// source rate, else DefaultFPS.
func ResolveFPS(configured, source float64) float64 {
	switch {
	case configured > 0:
		return configured
	case source > 0:
		return source
	default:
		return DefaultFPS
	}
}

// ProcessVideo annotates input into output. Per-frame failures do not fail
// the call; they are counted in the report. On cancellation the sink is
// finalized, the report is marked interrupted and the error wraps ctx.Err().
func (p *Processor) ProcessVideo(ctx context.Context, input, output string) (*Report, error) {
	log := logger.WithComponent("pipeline")
	started := time.Now()
	report := &Report{Input: input, Output: output}

	if _, err := os.Stat(input); err != nil {
		return report, fmt.Errorf("%w: %s", ErrInputNotFound, input)
	}

	sess := &Session{Input: input, Output: output}
	sess.RunID = p.startRun(input, output)
	report.RunID = sess.RunID

	if err := p.open(sess); err != nil {
		p.finishRun(sess, store.StatusFailed, err)
		return report, err
	}

	log.Info().
		Str("input", input).
		Int("width", sess.Info.Width).
		Int("height", sess.Info.Height).
		Float64("fps", sess.Info.FPS).
		Int("frames", sess.Info.FrameCount).
		Float64("duration_s", sess.Info.Duration()).
		Msg("video opened")

	streamErr := p.stream(ctx, sess)
	closeErr := sess.close()

	report.Success = sess.Success
	report.Failed = sess.Failed
	report.Total = sess.Frames()
	report.Elapsed = time.Since(started)

	err := streamErr
	if err == nil && closeErr != nil {
		err = fmt.Errorf("%w: %v", ErrWriteFrame, closeErr)
	}

	status := store.StatusCompleted
	switch {
	case err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()):
		status = store.StatusInterrupted
		report.Interrupted = true
	case err != nil:
		status = store.StatusFailed
	}
	p.finishRun(sess, status, err)

	p.progress(sess, true)

	event := log.Info()
	if err != nil && !report.Interrupted {
		event = log.Error().Err(err)
	}
	event.
		Str("output", output).
		Int("success", report.Success).
		Int("failed", report.Failed).
		Bool("interrupted", report.Interrupted).
		Dur("elapsed", report.Elapsed).
		Msg("video finished")

	return report, err
}

// open acquires the source and then the sink. If the sink fails the source is
// released and any file the failed open left behind is removed.
func (p *Processor) open(sess *Session) error {
	src, err := p.Opener.OpenSource(sess.Input)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrOpenInput, sess.Input, err)
	}

	sess.Info = src.Info()
	sess.FPS = ResolveFPS(p.Config.OutputFPS, sess.Info.FPS)

	_, statErr := os.Stat(sess.Output)
	existed := statErr == nil

	sink, err := p.Opener.OpenSink(sess.Output, video.SinkConfig{
		Codec:  p.Config.Codec,
		FPS:    sess.FPS,
		Width:  sess.Info.Width,
		Height: sess.Info.Height,
	})
	if err != nil {
		src.Close()
		if !existed {
			os.Remove(sess.Output)
		}
		return fmt.Errorf("%w: %s: %v", ErrOpenOutput, sess.Output, err)
	}

	sess.source = src
	sess.sink = sink
	return nil
}

// stream runs the frame loop until end of stream, cancellation, or a read
// or write error.
func (p *Processor) stream(ctx context.Context, sess *Session) error {
	log := logger.WithComponent("pipeline")
	total := sess.Info.FrameCount

	bar := p.newMeter(sess.Input, total)
	defer bar.finish()

	for frameNum := 1; ; frameNum++ {
		if err := ctx.Err(); err != nil {
			log.Warn().Int("frame", frameNum).Msg("interrupted")
			return fmt.Errorf("interrupted at frame %d: %w", frameNum, err)
		}

		frame, err := sess.source.ReadFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w %d: %v", ErrReadFrame, frameNum, err)
		}

		stats := render.FrameStats{FrameNum: frameNum, TotalFrames: total, FPS: sess.Info.FPS}
		res := p.Annotate(*frame, stats)

		out := *frame
		if res.OK() {
			out = res.Frame
		}

		writeErr := sess.sink.WriteFrame(out)

		if res.OK() {
			sess.Success++
			if p.Tap != nil {
				p.Tap.Publish(res.Frame)
			}
		} else {
			sess.Failed++
			log.Warn().Int("frame", frameNum).Err(res.Err).Msg("frame failed, writing original")
			p.recordFailure(sess, frameNum, res.Err)
		}

		res.Close()
		frame.Close()

		if writeErr != nil {
			return fmt.Errorf("%w %d: %v", ErrWriteFrame, frameNum, writeErr)
		}

		p.progress(sess, false)

		bar.frame(frameNum)
	}
}

func (p *Processor) progress(sess *Session, done bool) {
	if p.Tap == nil {
		return
	}
	p.Tap.Progress(Progress{
		RunID:   sess.RunID,
		Input:   sess.Input,
		Output:  sess.Output,
		Frame:   sess.Frames(),
		Total:   sess.Info.FrameCount,
		Success: sess.Success,
		Failed:  sess.Failed,
		Percent: render.ProgressPercent(sess.Frames(), sess.Info.FrameCount),
		Done:    done,
	})
}

// Run history is a side channel: failures to record are logged, never fatal.

func (p *Processor) startRun(input, output string) string {
	if p.Recorder == nil {
		return ""
	}
	run, err := p.Recorder.Start(input, output)
	if err != nil {
		logger.WithComponent("pipeline").Warn().Err(err).Msg("run history unavailable")
		return ""
	}
	return run.ID
}

func (p *Processor) recordFailure(sess *Session, frame int, cause error) {
	if p.Recorder == nil || sess.RunID == "" {
		return
	}
	if err := p.Recorder.RecordFailure(sess.RunID, frame, cause.Error()); err != nil {
		logger.WithComponent("pipeline").Warn().Err(err).Msg("record frame failure")
	}
}

func (p *Processor) finishRun(sess *Session, status store.Status, cause error) {
	if p.Recorder == nil || sess.RunID == "" {
		return
	}
	o := store.Outcome{
		Status:  status,
		Success: sess.Success,
		Failed:  sess.Failed,
		Total:   sess.Frames(),
	}
	if cause != nil {
		o.Error = cause.Error()
	}
	if err := p.Recorder.Finish(sess.RunID, o); err != nil {
		logger.WithComponent("pipeline").Warn().Err(err).Msg("finish run")
	}
}
