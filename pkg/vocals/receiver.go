package vocals

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// ReceiverStats counts what a Receiver has seen across all connections.
type ReceiverStats struct {
	Connections uint64
	Frames      uint64
	Missing     uint64
	OutOfOrder  uint64
	Malformed   uint64
	LastSeq     uint32
}

// Receiver is the listening end of a stream: an http.Handler that accepts
// WebSocket connections, decodes binary frames and hands them to registered
// FrameHandlers. Sequence tracking spans connections so frames resent after
// a reconnect are checked against what was already received. Call
// ResetSequence before a new session streams to the same Receiver.
type Receiver struct {
	channels  int
	frameSize int
	upgrader  websocket.Upgrader
	logger    *VocalsLogger

	mu       sync.Mutex
	handlers map[int]FrameHandler
	nextID   int
	stats    ReceiverStats
	lastSeen bool
}

// NewReceiver creates a Receiver for frames of cfg's shape. A zero FrameSize
// accepts frames of any length.
func NewReceiver(cfg AudioConfig, subprotocol string, logger *VocalsLogger) *Receiver {
	if logger == nil {
		logger = GetGlobalLogger()
	}
	r := &Receiver{
		channels:  cfg.Channels,
		frameSize: cfg.FrameSize,
		logger:    logger.WithComponent("receiver"),
		handlers:  make(map[int]FrameHandler),
	}
	r.upgrader = websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	if subprotocol != "" {
		r.upgrader.Subprotocols = []string{subprotocol}
	}
	return r
}

// OnFrame registers h and returns a func that removes it. Handlers run on
// the connection's read goroutine.
func (r *Receiver) OnFrame(h FrameHandler) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.handlers[id] = h
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.handlers, id)
		r.mu.Unlock()
	}
}

// Stats returns a snapshot of the counters.
func (r *Receiver) Stats() ReceiverStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// ResetSequence forgets the last sequence seen. Counters are kept.
func (r *Receiver) ResetSequence() {
	r.mu.Lock()
	r.lastSeen = false
	r.stats.LastSeq = 0
	r.mu.Unlock()
}

func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	r.mu.Lock()
	r.stats.Connections++
	r.mu.Unlock()

	log := r.logger.WithField("remote", req.RemoteAddr)
	log.Info("Stream connected")

	expected := 0
	if r.frameSize > 0 {
		expected = r.frameSize * r.channels
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Warn("Stream read failed")
			} else {
				log.Info("Stream closed")
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			r.countMalformed()
			continue
		}

		frame, err := DecodeFrame(data, expected)
		if err != nil {
			r.countMalformed()
			log.WithError(err).Debug("Dropping malformed frame")
			continue
		}
		r.deliver(frame)
	}
}

func (r *Receiver) countMalformed() {
	r.mu.Lock()
	r.stats.Malformed++
	r.mu.Unlock()
}

func (r *Receiver) deliver(frame Frame) {
	r.mu.Lock()
	r.stats.Frames++
	switch {
	case !r.lastSeen:
		r.stats.Missing += uint64(frame.Sequence)
		r.stats.LastSeq = frame.Sequence
	case frame.Sequence > r.stats.LastSeq:
		r.stats.Missing += uint64(frame.Sequence - r.stats.LastSeq - 1)
		r.stats.LastSeq = frame.Sequence
	default:
		r.stats.OutOfOrder++
	}
	r.lastSeen = true

	handlers := make([]FrameHandler, 0, len(r.handlers))
	for _, h := range r.handlers {
		handlers = append(handlers, h)
	}
	r.mu.Unlock()

	for _, h := range handlers {
		h(frame)
	}
}
