package vocals

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn is the subset of *websocket.Conn the transport uses.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	ReadMessage() (messageType int, p []byte, err error)
	SetWriteDeadline(t time.Time) error
	Close() error
}

type wsDialer interface {
	DialContext(ctx context.Context, urlStr string, header http.Header) (wsConn, *http.Response, error)
}

type gorillaDialer struct {
	dialer *websocket.Dialer
}

func (g gorillaDialer) DialContext(ctx context.Context, urlStr string, header http.Header) (wsConn, *http.Response, error) {
	conn, resp, err := g.dialer.DialContext(ctx, urlStr, header)
	if err != nil {
		return nil, resp, err
	}
	return conn, resp, nil
}

// link is one live connection plus the channel its reader closes on failure.
type link struct {
	conn   wsConn
	broken chan struct{}
}

// WebSocketTransport streams frames as binary WebSocket messages, one frame
// per message, and reconnects with exponential backoff when the link drops.
type WebSocketTransport struct {
	endpoint string
	config   *EngineConfig
	tokens   TokenSource
	dialer   wsDialer
	logger   *VocalsLogger
	metrics  *Metrics

	queue *sendQueue
	errCh chan error

	mu                 sync.Mutex
	state              ConnectionState
	conn               wsConn
	started            bool
	detached           bool
	connectionHandlers []ConnectionHandler

	sent       atomic.Uint64
	reconnects atomic.Uint64

	ctx        context.Context
	cancel     context.CancelFunc
	draining   chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
}

// NewWebSocketTransport creates a transport for endpoint. tokens may be nil.
func NewWebSocketTransport(endpoint string, config *EngineConfig, tokens TokenSource, logger *VocalsLogger, metrics *Metrics) *WebSocketTransport {
	if config == nil {
		config = DefaultEngineConfig()
	}
	if logger == nil {
		logger = GetGlobalLogger()
	}
	if metrics == nil {
		metrics = newDefaultMetrics()
	}
	ctx, cancel := context.WithCancel(context.Background())

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: config.HandshakeTimeout,
	}
	if config.Subprotocol != "" {
		dialer.Subprotocols = []string{config.Subprotocol}
	}

	return &WebSocketTransport{
		endpoint:   endpoint,
		config:     config,
		tokens:     tokens,
		dialer:     gorillaDialer{dialer: dialer},
		logger:     logger.WithComponent("transport").WithField("endpoint", endpoint),
		metrics:    metrics,
		queue:      newSendQueue(config.SendQueueSize),
		errCh:      make(chan error, 1),
		state:      Disconnected,
		ctx:        ctx,
		cancel:     cancel,
		draining:   make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

// Connect dials the endpoint once and starts the writer.
func (t *WebSocketTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.state != Disconnected || t.started {
		t.mu.Unlock()
		return NewConnectionError("transport already connected or closed")
	}
	t.setState(Connecting)
	t.mu.Unlock()

	l, err := t.dial(ctx)
	if err != nil {
		t.mu.Lock()
		t.setState(ErrorState)
		t.mu.Unlock()
		return wrapWithCode(err, ErrCodeConnectionFailed, fmt.Sprintf("connect to %s", t.endpoint))
	}

	t.mu.Lock()
	t.started = true
	t.setState(Connected)
	t.mu.Unlock()

	t.logger.LogConnectionEvent("connected", Connected, nil)
	go t.writeLoop(l)
	return nil
}

func (t *WebSocketTransport) dial(ctx context.Context) (*link, error) {
	header := make(http.Header)
	for k, v := range t.config.Headers {
		header.Set(k, v)
	}
	if t.tokens != nil {
		token, err := t.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get token: %w", err)
		}
		header.Set("Authorization", "Bearer "+token)
	}

	dctx := ctx
	if t.config.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, t.config.HandshakeTimeout)
		defer cancel()
	}

	conn, resp, err := t.dialer.DialContext(dctx, t.endpoint, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, wrapWithCode(err, ErrCodeAuthFailed, fmt.Sprintf("handshake rejected: %s", resp.Status))
		}
		return nil, err
	}

	t.mu.Lock()
	if t.detached {
		// Close already took the previous connection; this one must not outlive it.
		t.mu.Unlock()
		_ = conn.Close()
		return nil, NewConnectionError("transport closed")
	}
	t.conn = conn
	t.mu.Unlock()

	l := &link{conn: conn, broken: make(chan struct{})}
	go t.readLoop(l)
	return l, nil
}

// readLoop drains inbound messages so control frames are processed, and
// marks the link broken when the read side fails.
func (t *WebSocketTransport) readLoop(l *link) {
	defer close(l.broken)
	for {
		if _, _, err := l.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.logger.WithError(err).Debug("read error")
			}
			return
		}
	}
}

func (t *WebSocketTransport) writeLoop(l *link) {
	defer close(t.writerDone)

	backoff := NewBackoff(t.config)
	pingPeriod := t.config.PingPeriod
	if pingPeriod <= 0 {
		pingPeriod = time.Hour
	}
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		if l == nil {
			if t.isDraining() && t.queue.len() == 0 {
				return
			}
			if l = t.reconnect(backoff); l == nil {
				return
			}
		}

		item, ok := t.queue.peek()
		if !ok {
			if t.isDraining() {
				return
			}
			select {
			case <-t.ctx.Done():
				return
			case <-t.queue.notify:
			case <-t.draining:
			case <-l.broken:
				t.dropLink(l, fmt.Errorf("connection closed by peer"))
				l = nil
			case <-ping.C:
				if err := l.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.config.WriteTimeout)); err != nil {
					t.dropLink(l, err)
					l = nil
				}
			}
			continue
		}

		if err := t.write(l.conn, item.data); err != nil {
			t.dropLink(l, err)
			l = nil
			continue
		}
		t.queue.pop()
		t.sent.Add(1)
		t.metrics.FramesSent.Add(t.ctx, 1)
		if t.config.DebugWebsocket {
			t.logger.WithField("seq", item.seq).Debug("frame sent")
		}
	}
}

func (t *WebSocketTransport) write(conn wsConn, data []byte) error {
	if t.config.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout)); err != nil {
			return err
		}
	}
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

func (t *WebSocketTransport) dropLink(l *link, cause error) {
	t.mu.Lock()
	if t.conn == l.conn {
		t.conn = nil
	}
	t.mu.Unlock()
	_ = l.conn.Close()

	if t.ctx.Err() != nil {
		return
	}
	err := wrapWithCode(cause, ErrCodeTransportInterrupted, "connection lost")
	t.logger.WithError(err).WithField("queued", t.queue.len()).Warn("Stream connection interrupted")
}

// reconnect retries until a dial succeeds, ctx is cancelled, or the server
// rejects the credentials. It returns nil in the last two cases.
func (t *WebSocketTransport) reconnect(backoff *Backoff) *link {
	t.mu.Lock()
	t.setState(Reconnecting)
	t.mu.Unlock()

	for attempt := 1; ; attempt++ {
		delay := backoff.Next()
		timer := time.NewTimer(delay)
		select {
		case <-t.ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		l, err := t.dial(t.ctx)
		if err != nil {
			if t.ctx.Err() != nil {
				return nil
			}
			if ErrorCode(err) == ErrCodeAuthFailed {
				t.fail(err)
				return nil
			}
			if t.config.DebugWebsocket || attempt == 1 {
				t.logger.WithError(err).WithFields(map[string]interface{}{
					"attempt": attempt,
					"delay":   delay.String(),
				}).Info("Reconnect attempt failed")
			}
			continue
		}

		backoff.Reset()
		t.reconnects.Add(1)
		t.metrics.Reconnects.Add(t.ctx, 1)

		t.mu.Lock()
		t.setState(Connected)
		t.mu.Unlock()
		t.logger.LogConnectionEvent("reconnected", Connected, map[string]interface{}{
			"attempts": attempt,
			"queued":   t.queue.len(),
		})
		return l
	}
}

func (t *WebSocketTransport) fail(err error) {
	t.mu.Lock()
	t.setState(ErrorState)
	t.mu.Unlock()
	t.logger.WithError(err).Error("Stream connection failed permanently")
	select {
	case t.errCh <- err:
	default:
	}
}

func (t *WebSocketTransport) isDraining() bool {
	select {
	case <-t.draining:
		return true
	default:
		return false
	}
}

// Send implements StreamTransport.
func (t *WebSocketTransport) Send(frame Frame, data []byte) {
	if dropped := t.queue.push(queuedFrame{seq: frame.Sequence, data: data}); dropped {
		t.metrics.FramesLost.Add(t.ctx, 1)
		if lost := t.queue.lostCount(); lost == 1 || lost%100 == 0 {
			t.logger.WithFields(map[string]interface{}{
				"seq":  frame.Sequence,
				"lost": lost,
			}).Warn("Send queue full, dropping frame")
		}
	}
}

// Close implements StreamTransport.
func (t *WebSocketTransport) Close() error {
	var closeErr error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		started := t.started
		t.started = true
		t.setState(Closing)
		t.mu.Unlock()

		t.queue.close()
		close(t.draining)
		if started {
			grace := time.NewTimer(t.config.CloseGrace)
			select {
			case <-t.writerDone:
			case <-grace.C:
				t.logger.WithField("queued", t.queue.len()).Warn("Close grace period elapsed, discarding queued frames")
			}
			grace.Stop()
		}
		t.cancel()

		t.mu.Lock()
		conn := t.conn
		t.conn = nil
		t.detached = true
		t.mu.Unlock()
		if conn != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(t.config.WriteTimeout))
			closeErr = conn.Close()
		}
		if started {
			<-t.writerDone
		}

		t.mu.Lock()
		t.setState(Disconnected)
		t.mu.Unlock()
		t.logger.LogConnectionEvent("closed", Disconnected, map[string]interface{}{
			"sent": t.sent.Load(),
			"lost": t.queue.lostCount(),
		})
	})
	return closeErr
}

// Err implements StreamTransport.
func (t *WebSocketTransport) Err() <-chan error {
	return t.errCh
}

// Stats implements StreamTransport.
func (t *WebSocketTransport) Stats() TransportStats {
	return TransportStats{
		Sent:       t.sent.Load(),
		Lost:       t.queue.lostCount(),
		Reconnects: t.reconnects.Load(),
		Queued:     t.queue.len(),
	}
}

// setState must be called with mu held.
func (t *WebSocketTransport) setState(state ConnectionState) {
	if t.state != state {
		t.state = state
		for _, handler := range t.connectionHandlers {
			go handler(state)
		}
	}
}

func (t *WebSocketTransport) AddConnectionHandler(handler ConnectionHandler) {
	t.mu.Lock()
	t.connectionHandlers = append(t.connectionHandlers, handler)
	t.mu.Unlock()
}

func (t *WebSocketTransport) GetState() ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *WebSocketTransport) IsConnected() bool {
	return t.GetState() == Connected
}
