package vocals

import (
	"context"
)

// Streamer is the start/stop contract the host application depends on.
type Streamer interface {
	// Start begins a session for cfg. It fails with InvalidConfig,
	// DeviceUnavailable or ConnectionFailed and then returns no session.
	Start(ctx context.Context, cfg AudioConfig) (*Session, error)

	// Stop ends the session. It is idempotent and never fails; teardown
	// problems are logged.
	Stop(session *Session)
}

// Client creates sessions that share one EngineConfig, logger and metrics.
// It holds no reference to the sessions it creates.
type Client struct {
	config     *EngineConfig
	logger     *VocalsLogger
	metrics    *Metrics
	tokens     TokenSource
	capturer   Capturer
	transports TransportFactory

	connectionHandlers []ConnectionHandler
}

var _ Streamer = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithEngineConfig replaces the configuration loaded from the environment.
func WithEngineConfig(cfg *EngineConfig) Option {
	return func(c *Client) { c.config = cfg }
}

func WithLogger(logger *VocalsLogger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithMetrics(metrics *Metrics) Option {
	return func(c *Client) { c.metrics = metrics }
}

// WithTokenSource sets the credentials sent on the WebSocket handshake.
func WithTokenSource(tokens TokenSource) Option {
	return func(c *Client) { c.tokens = tokens }
}

// WithCapturer replaces the PortAudio capturer.
func WithCapturer(capturer Capturer) Option {
	return func(c *Client) { c.capturer = capturer }
}

// WithConnectionHandler observes connection state changes of every
// WebSocket transport the client creates. It has no effect together with
// WithTransportFactory.
func WithConnectionHandler(handler ConnectionHandler) Option {
	return func(c *Client) { c.connectionHandlers = append(c.connectionHandlers, handler) }
}

// WithTransportFactory replaces the WebSocket transport.
func WithTransportFactory(factory TransportFactory) Option {
	return func(c *Client) { c.transports = factory }
}

// NewClient builds a Client. Unset options fall back to NewEngineConfig, a
// logger at the configured DebugLevel, the global MeterProvider, the token
// source implied by the config, PortAudio capture and WebSocket transport.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{}
	for _, opt := range opts {
		opt(c)
	}

	if c.config == nil {
		c.config = NewEngineConfig()
	}
	if c.logger == nil {
		logConfig := DefaultLogConfig()
		logConfig.Level = ParseLogLevel(c.config.DebugLevel)
		c.logger = NewVocalsLogger(logConfig)
	}
	if c.metrics == nil {
		c.metrics = newDefaultMetrics()
	}
	if c.tokens == nil {
		tokens, err := TokenSourceFromConfig(c.config)
		if err != nil {
			return nil, err
		}
		c.tokens = tokens
	}
	if c.capturer == nil {
		c.capturer = NewCapturer(c.config, c.logger)
	}
	if c.transports == nil {
		c.transports = func(cfg AudioConfig) StreamTransport {
			t := NewWebSocketTransport(cfg.Endpoint, c.config, c.tokens, c.logger, c.metrics)
			for _, h := range c.connectionHandlers {
				t.AddConnectionHandler(h)
			}
			return t
		}
	}

	if issues := c.config.Validate(); len(issues) > 0 {
		for _, issue := range issues {
			c.logger.Warn(issue)
		}
	}
	return c, nil
}

// NewSession returns an Idle session bound to this client's collaborators.
func (c *Client) NewSession() *Session {
	return newSession(c.config, c.capturer, c.transports, c.logger, c.metrics)
}

// Start implements Streamer.
func (c *Client) Start(ctx context.Context, cfg AudioConfig) (*Session, error) {
	session := c.NewSession()
	if err := session.Start(ctx, cfg); err != nil {
		// Failed → Idle; partially acquired resources are already released.
		session.Stop()
		return nil, err
	}
	return session, nil
}

// Stop implements Streamer.
func (c *Client) Stop(session *Session) {
	if session == nil {
		return
	}
	session.Stop()
}

// Config returns the engine configuration in use.
func (c *Client) Config() *EngineConfig {
	return c.config
}

// Logger returns the client's logger.
func (c *Client) Logger() *VocalsLogger {
	return c.logger
}
