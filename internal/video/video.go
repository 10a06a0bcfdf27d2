// Package video provides frame sources and sinks over OpenCV video files,
// plus in-memory implementations for tests.
package video

import (
	"errors"
	"fmt"
	"strings"

	"gocv.io/x/gocv"
)

var (
	// ErrSourceClosed is returned when reading from a closed source.
	ErrSourceClosed = errors.New("video source is closed")
	// ErrSinkClosed is returned when writing to a closed sink.
	ErrSinkClosed = errors.New("video sink is closed")
	// ErrInvalidCodec is returned for a codec that is not a four character code.
	ErrInvalidCodec = errors.New("codec must be a four character code")
)

// Info describes a video stream.
type Info struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps"`
	// FrameCount is the container's frame estimate; 0 when unknown.
	FrameCount int    `json:"frame_count"`
	Codec      string `json:"codec,omitempty"`
}

// Duration returns the stream length in seconds, or 0 if unknown.
func (i Info) Duration() float64 {
	if i.FPS <= 0 || i.FrameCount <= 0 {
		return 0
	}
	return float64(i.FrameCount) / i.FPS
}

// Source yields decoded frames in order.
type Source interface {
	// Info returns the stream properties read at open time.
	Info() Info
	// ReadFrame returns the next frame, or io.EOF at end of stream.
	// The caller is responsible for closing the returned Mat.
	ReadFrame() (*gocv.Mat, error)
	Close() error
}

// Sink encodes frames into an output container.
type Sink interface {
	// WriteFrame appends one frame. The sink does not take ownership.
	WriteFrame(frame gocv.Mat) error
	// Close flushes and finalizes the container.
	Close() error
}

// SinkConfig selects the encoder settings for a new sink.
type SinkConfig struct {
	Codec  string
	FPS    float64
	Width  int
	Height int
}

// Validate checks the sink settings.
func (c SinkConfig) Validate() error {
	if err := ValidateCodec(c.Codec); err != nil {
		return err
	}
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %v", c.FPS)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", c.Width, c.Height)
	}
	return nil
}

// Opener opens sources and sinks by path.
type Opener interface {
	OpenSource(path string) (Source, error)
	OpenSink(path string, cfg SinkConfig) (Sink, error)
}

// ValidateCodec checks that codec is a four character code such as "mp4v".
func ValidateCodec(codec string) error {
	if len(codec) != 4 || strings.TrimSpace(codec) == "" {
		return fmt.Errorf("%w: %q", ErrInvalidCodec, codec)
	}
	return nil
}

// FourCCString decodes a numeric fourcc as reported by OpenCV.
func FourCCString(v float64) string {
	code := uint32(v)
	if code == 0 {
		return ""
	}
	b := []byte{byte(code), byte(code >> 8), byte(code >> 16), byte(code >> 24)}
	return strings.TrimRight(string(b), "\x00")
}
