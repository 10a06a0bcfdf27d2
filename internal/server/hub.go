package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ayusman/posetrace/internal/logger"
	"github.com/ayusman/posetrace/internal/pipeline"
	"github.com/gorilla/websocket"
	"gocv.io/x/gocv"
)

// DefaultPreviewFPS caps how often Publish encodes a frame.
const DefaultPreviewFPS = 15

// clientBuffer is the number of progress messages queued per websocket
// client before new ones are dropped.
const clientBuffer = 16

// Hub is the bridge between the frame loop and HTTP clients. It implements
// pipeline.Tap: the loop publishes annotated frames and progress, and the
// preview and progress handlers read the latest state.
type Hub struct {
	interval time.Duration

	mu        sync.Mutex
	jpeg      []byte
	seq       uint64
	lastEnc   time.Time
	updated   chan struct{}
	progress  []byte
	clients   map[*websocket.Conn]chan []byte
	published int
}

// NewHub creates a hub that encodes at most maxFPS preview frames per
// second. maxFPS <= 0 uses DefaultPreviewFPS.
func NewHub(maxFPS int) *Hub {
	if maxFPS <= 0 {
		maxFPS = DefaultPreviewFPS
	}
	return &Hub{
		interval: time.Second / time.Duration(maxFPS),
		updated:  make(chan struct{}),
		clients:  make(map[*websocket.Conn]chan []byte),
	}
}

var _ pipeline.Tap = (*Hub)(nil)

// Publish stores a JPEG copy of frame as the latest preview. Frames arriving
// faster than the hub's rate are skipped.
func (h *Hub) Publish(frame gocv.Mat) {
	h.mu.Lock()
	if time.Since(h.lastEnc) < h.interval {
		h.mu.Unlock()
		return
	}
	h.lastEnc = time.Now()
	h.mu.Unlock()

	buf, err := gocv.IMEncode(".jpg", frame)
	if err != nil {
		logger.WithComponent("server").Debug().Err(err).Msg("encode preview frame")
		return
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	h.mu.Lock()
	h.jpeg = data
	h.seq++
	h.published++
	close(h.updated)
	h.updated = make(chan struct{})
	h.mu.Unlock()
}

// Latest returns the most recent preview JPEG and its sequence number.
// The sequence is 0 until the first frame is published.
func (h *Hub) Latest() ([]byte, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.jpeg, h.seq
}

// Next blocks until a frame newer than seq is published or ctx is done.
func (h *Hub) Next(ctx context.Context, seq uint64) ([]byte, uint64, error) {
	for {
		h.mu.Lock()
		if h.seq > seq {
			data, cur := h.jpeg, h.seq
			h.mu.Unlock()
			return data, cur, nil
		}
		wait := h.updated
		h.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, seq, ctx.Err()
		}
	}
}

// Progress fans p out to every websocket client without blocking. Slow
// clients miss messages rather than stall the frame loop.
func (h *Hub) Progress(p pipeline.Progress) {
	msg, err := json.Marshal(p)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.progress = msg
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

// LastProgress returns the most recent progress message, or nil.
func (h *Hub) LastProgress() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.progress
}

// Clients returns the number of connected websocket clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, clientBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.progress != nil {
		ch <- h.progress
	}
	h.clients[conn] = ch
	return ch
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
}

// Published returns how many preview frames have been encoded.
func (h *Hub) Published() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.published
}
