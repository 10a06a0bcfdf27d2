package pipeline

import (
	"fmt"
	"runtime/debug"

	"github.com/ayusman/posetrace/internal/render"
	"gocv.io/x/gocv"
)

// FrameResult is the outcome of annotating one frame. Exactly one of Frame
// and Err is meaningful: on success Frame holds a new annotated Mat owned by
// the result; on failure Err says why and Frame is empty.
type FrameResult struct {
	// Index is the 1-based frame number.
	Index int
	Frame gocv.Mat
	Err   error
}

// OK reports whether the frame was annotated.
func (r FrameResult) OK() bool {
	return r.Err == nil
}

// Close releases the annotated frame, if any.
func (r *FrameResult) Close() {
	if r.Err == nil {
		r.Frame.Close()
	}
}

// PanicError wraps a panic recovered while annotating a frame.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Annotate runs detection and rendering for one frame. It never panics and
// never modifies frame: detector errors, render errors and panics all come
// back as FrameResult.Err.
func (p *Processor) Annotate(frame gocv.Mat, stats render.FrameStats) (res FrameResult) {
	res.Index = stats.FrameNum

	defer func() {
		if r := recover(); r != nil {
			res.Err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	raw, err := p.Detector.Detect(frame)
	if err != nil {
		res.Err = fmt.Errorf("detect: %w", err)
		return res
	}

	out, err := p.Renderer.Visualize(frame, raw, stats)
	if err != nil {
		out.Close()
		res.Err = fmt.Errorf("render: %w", err)
		return res
	}

	res.Frame = out
	return res
}
