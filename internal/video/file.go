package video

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"gocv.io/x/gocv"
)

// FileOpener opens video files through OpenCV.
type FileOpener struct{}

// OpenSource opens a video file for decoding.
func (FileOpener) OpenSource(path string) (Source, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, err
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("cannot decode %s", path)
	}

	info := Info{
		Width:      int(capture.Get(gocv.VideoCaptureFrameWidth)),
		Height:     int(capture.Get(gocv.VideoCaptureFrameHeight)),
		FPS:        capture.Get(gocv.VideoCaptureFPS),
		FrameCount: int(capture.Get(gocv.VideoCaptureFrameCount)),
		Codec:      FourCCString(capture.Get(gocv.VideoCaptureFOURCC)),
	}
	if info.FrameCount < 0 {
		info.FrameCount = 0
	}

	return &fileSource{capture: capture, info: info}, nil
}

// OpenSink creates a video file encoded with cfg.
func (FileOpener) OpenSink(path string, cfg SinkConfig) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	writer, err := gocv.VideoWriterFile(path, cfg.Codec, cfg.FPS, cfg.Width, cfg.Height, true)
	if err != nil {
		return nil, err
	}
	if !writer.IsOpened() {
		writer.Close()
		return nil, fmt.Errorf("cannot create %s with codec %s", path, cfg.Codec)
	}

	return &fileSink{writer: writer}, nil
}

// Probe reads the properties of a video file without decoding frames.
func Probe(opener Opener, path string) (Info, error) {
	src, err := opener.OpenSource(path)
	if err != nil {
		return Info{}, err
	}
	defer src.Close()
	return src.Info(), nil
}

// fileSource reads frames from a gocv.VideoCapture.
type fileSource struct {
	capture *gocv.VideoCapture
	info    Info
	mu      sync.Mutex
}

func (s *fileSource) Info() Info {
	return s.info
}

// ReadFrame reads a single frame from the file.
// The caller is responsible for closing the returned Mat.
func (s *fileSource) ReadFrame() (*gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return nil, ErrSourceClosed
	}

	mat := gocv.NewMat()
	if ok := s.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, io.EOF
	}

	return &mat, nil
}

// Close releases the capture. Closing twice is a no-op.
func (s *fileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return nil
	}

	err := s.capture.Close()
	s.capture = nil
	return err
}

// fileSink writes frames to a gocv.VideoWriter.
type fileSink struct {
	writer *gocv.VideoWriter
	mu     sync.Mutex
}

func (s *fileSink) WriteFrame(frame gocv.Mat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer == nil {
		return ErrSinkClosed
	}
	if frame.Empty() {
		return errors.New("cannot write empty frame")
	}
	return s.writer.Write(frame)
}

// Close finalizes the container. Closing twice is a no-op.
func (s *fileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer == nil {
		return nil
	}

	err := s.writer.Close()
	s.writer = nil
	return err
}
