package video

import (
	"errors"
	"io"
	"sync"

	"gocv.io/x/gocv"
)

// MockSource plays back in-memory frames for testing.
type MockSource struct {
	frames []gocv.Mat
	info   Info
	index  int
	errAt  map[int]error
	closed bool
	mu     sync.Mutex
}

// NewMockSource returns a source over frames. Info width and height default
// to the first frame's size. The frames remain owned by the caller.
func NewMockSource(info Info, frames []gocv.Mat) *MockSource {
	if len(frames) > 0 {
		if info.Width == 0 {
			info.Width = frames[0].Cols()
		}
		if info.Height == 0 {
			info.Height = frames[0].Rows()
		}
	}
	return &MockSource{frames: frames, info: info, errAt: make(map[int]error)}
}

// FailReadAt makes the n-th read (from 1) return err instead of a frame.
func (s *MockSource) FailReadAt(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errAt[n] = err
}

func (s *MockSource) Info() Info {
	return s.info
}

// ReadFrame returns a clone of the next frame so the original isn't modified.
func (s *MockSource) ReadFrame() (*gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSourceClosed
	}

	if err, ok := s.errAt[s.index+1]; ok {
		s.index++
		return nil, err
	}

	if s.index >= len(s.frames) {
		return nil, io.EOF
	}

	frame := s.frames[s.index].Clone()
	s.index++

	return &frame, nil
}

// Reads returns how many reads have been attempted that produced a frame or error.
func (s *MockSource) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

func (s *MockSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (s *MockSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// MemorySink records clones of every written frame.
type MemorySink struct {
	frames  []gocv.Mat
	failAt  int
	failErr error
	closed  bool
	mu      sync.Mutex
}

// NewMemorySink returns an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// FailWriteAt makes the n-th write (from 1) fail with err.
func (s *MemorySink) FailWriteAt(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAt = n
	s.failErr = err
}

func (s *MemorySink) WriteFrame(frame gocv.Mat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	if s.failAt > 0 && len(s.frames)+1 == s.failAt {
		return s.failErr
	}

	s.frames = append(s.frames, frame.Clone())
	return nil
}

func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (s *MemorySink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Frames returns the written frames. They stay owned by the sink.
func (s *MemorySink) Frames() []gocv.Mat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gocv.Mat(nil), s.frames...)
}

// Release frees the recorded frames.
func (s *MemorySink) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.frames {
		s.frames[i].Close()
	}
	s.frames = nil
}

// MockOpener hands out sources and sinks from functions, recording every
// open for assertions.
type MockOpener struct {
	SourceFunc func(path string) (Source, error)
	SinkFunc   func(path string, cfg SinkConfig) (Sink, error)

	mu          sync.Mutex
	sources     []string
	sinks       []string
	sinkConfigs []SinkConfig
}

// NewMockOpener returns an opener that always yields src and sink.
func NewMockOpener(src Source, sink Sink) *MockOpener {
	return &MockOpener{
		SourceFunc: func(string) (Source, error) { return src, nil },
		SinkFunc:   func(string, SinkConfig) (Sink, error) { return sink, nil },
	}
}

func (o *MockOpener) OpenSource(path string) (Source, error) {
	o.mu.Lock()
	o.sources = append(o.sources, path)
	fn := o.SourceFunc
	o.mu.Unlock()

	if fn == nil {
		return nil, errors.New("no source configured")
	}
	return fn(path)
}

func (o *MockOpener) OpenSink(path string, cfg SinkConfig) (Sink, error) {
	o.mu.Lock()
	o.sinks = append(o.sinks, path)
	o.sinkConfigs = append(o.sinkConfigs, cfg)
	fn := o.SinkFunc
	o.mu.Unlock()

	if fn == nil {
		return nil, errors.New("no sink configured")
	}
	return fn(path, cfg)
}

// SourcesOpened returns the paths passed to OpenSource.
func (o *MockOpener) SourcesOpened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.sources...)
}

// SinksOpened returns the paths passed to OpenSink.
func (o *MockOpener) SinksOpened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.sinks...)
}

// SinkConfigs returns the configs passed to OpenSink.
func (o *MockOpener) SinkConfigs() []SinkConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]SinkConfig(nil), o.sinkConfigs...)
}
