package vocals

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Session wires Capturer → FrameBuffer → FrameEncoder → StreamTransport for
// one stream. A Session can be restarted after Stop.
type Session struct {
	id         string
	config     *EngineConfig
	capturer   Capturer
	transports TransportFactory
	logger     *VocalsLogger
	metrics    *Metrics

	// lifecycle serializes Start and Stop.
	lifecycle sync.Mutex

	mu       sync.Mutex
	state    SessionState
	err      error
	audio    AudioConfig
	pipe     *pipeline
	last     Stats
	handlers map[int]StateHandler
	nextID   int
}

func newSession(config *EngineConfig, capturer Capturer, transports TransportFactory, logger *VocalsLogger, metrics *Metrics) *Session {
	id := uuid.NewString()
	return &Session{
		id:         id,
		config:     config,
		capturer:   capturer,
		transports: transports,
		logger:     logger.WithComponent("session").WithField("session_id", id),
		metrics:    metrics,
		state:      StateIdle,
		handlers:   make(map[int]StateHandler),
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure that moved the session to Failed, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// AudioConfig returns the configuration of the last Start.
func (s *Session) AudioConfig() AudioConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audio
}

// OnStateChange registers h for state transitions and returns a func that
// removes it. Handlers run synchronously on the goroutine making the
// transition and must not call Start or Stop.
func (s *Session) OnStateChange(h StateHandler) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.handlers[id] = h
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.handlers, id)
		s.mu.Unlock()
	}
}

// Stats returns counters of the running pipeline, or of the last one once
// it has been torn down.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	p := s.pipe
	last := s.last
	s.mu.Unlock()
	if p == nil {
		return last
	}
	return p.stats()
}

// Start validates cfg, connects the transport, then opens the device.
// An invalid cfg fails with InvalidConfig and leaves the session Idle. Any
// other failure releases what was acquired and leaves the session Failed.
func (s *Session) Start(ctx context.Context, cfg AudioConfig) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	switch s.State() {
	case StateStarting, StateActive:
		return ErrAlreadyActive
	case StateFailed:
		return ErrSessionFailed
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.audio = cfg
	s.err = nil
	s.mu.Unlock()
	s.transition(StateStarting, nil)

	log := s.logger.WithFields(map[string]interface{}{
		"endpoint":    cfg.Endpoint,
		"channels":    cfg.Channels,
		"sample_rate": cfg.SampleRate,
		"frame_size":  cfg.FrameSize,
	})
	log.Info("Starting session")

	transport := s.transports(cfg)
	if err := transport.Connect(ctx); err != nil {
		_ = transport.Close()
		return s.startFailed(WrapError(err, ErrCodeConnectionFailed))
	}

	buffer := NewFrameBuffer(bufferCeiling(cfg, s.config.BufferSeconds))
	device, err := s.capturer.Open(cfg, buffer)
	if err != nil {
		if cerr := transport.Close(); cerr != nil {
			log.WithError(cerr).Debug("Closing transport after device failure")
		}
		return s.startFailed(WrapError(err, ErrCodeDeviceUnavailable))
	}

	p := newPipeline(cfg, device, transport, buffer, s.metrics, s.config.DebugAudio, s.logger)

	s.mu.Lock()
	s.pipe = p
	s.mu.Unlock()
	s.metrics.ActiveSessions.Add(p.ctx, 1)
	s.transition(StateActive, nil)

	p.run()
	go s.watch(p)

	log.Info("Session active")
	return nil
}

func (s *Session) startFailed(err *VocalsError) error {
	s.logger.LogError(err)
	s.transition(StateFailed, err)
	return err
}

// watch turns an unrecoverable device, transport or encoder failure into
// the Failed state. It exits when the pipeline is shut down.
func (s *Session) watch(p *pipeline) {
	var err error
	select {
	case <-p.ctx.Done():
		return
	case err = <-p.device.Err():
	case err = <-p.transport.Err():
	case err = <-p.faults:
	}
	if err == nil {
		err = NewVocalsError("pipeline stopped unexpectedly", ErrCodeSessionFailed)
	}

	vErr := WrapError(err, ErrCodeSessionFailed)
	s.mu.Lock()
	current := s.pipe == p
	s.mu.Unlock()
	if !current || !s.transitionFrom(StateActive, StateFailed, vErr) {
		return
	}

	s.logger.LogError(vErr)
	p.shutdown()
	s.metrics.ActiveSessions.Add(context.Background(), -1)
}

// Stop tears the pipeline down: device first, then encoder, then transport.
// Stop on an Idle or Stopping session does nothing. A Failed session returns
// to Idle so it can be started again.
func (s *Session) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	state := s.state
	p := s.pipe
	s.mu.Unlock()

	switch state {
	case StateIdle, StateStopping:
		return
	case StateActive:
		if s.transitionFrom(StateActive, StateStopping, nil) {
			s.logger.Info("Stopping session")
			p.shutdown()
			s.metrics.ActiveSessions.Add(context.Background(), -1)
			break
		}
		// Failed concurrently; the watcher owns the teardown.
		fallthrough
	case StateFailed:
		// shutdown blocks until a teardown started by the watcher completes.
		if p != nil {
			p.shutdown()
		}
	}

	s.mu.Lock()
	if p != nil {
		s.last = p.stats()
	}
	s.pipe = nil
	s.mu.Unlock()

	s.logger.LogStats(s.Stats())
	s.transition(StateIdle, nil)
}

func (s *Session) transition(state SessionState, err error) {
	s.setState(func(SessionState) bool { return true }, state, err)
}

// transitionFrom moves to state only if the session is currently in from.
func (s *Session) transitionFrom(from, state SessionState, err error) bool {
	return s.setState(func(cur SessionState) bool { return cur == from }, state, err)
}

func (s *Session) setState(allowed func(SessionState) bool, state SessionState, err error) bool {
	s.mu.Lock()
	if s.state == state || !allowed(s.state) {
		s.mu.Unlock()
		return false
	}
	s.state = state
	if state == StateFailed {
		s.err = err
	}
	handlers := make([]StateHandler, 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	s.logger.WithField("state", string(state)).Debug("Session state changed")
	for _, h := range handlers {
		h(state, err)
	}
	return true
}

// bufferCeiling converts BufferSeconds into a sample count of at least four frames.
func bufferCeiling(cfg AudioConfig, seconds float64) int {
	ceiling := int(seconds * float64(cfg.SampleRate*cfg.Channels))
	if floor := 4 * cfg.FrameSamples(); ceiling < floor {
		ceiling = floor
	}
	return ceiling
}

// pipeline holds the resources of one Active period.
type pipeline struct {
	ctx       context.Context
	cancel    context.CancelFunc
	device    DeviceHandle
	transport StreamTransport
	buffer    *FrameBuffer
	encoder   *FrameEncoder
	metrics   *Metrics
	logger    *VocalsLogger
	debug     bool

	faults   chan error
	wg       sync.WaitGroup
	stopOnce sync.Once

	// reportedDrops is only touched by the encoder goroutine.
	reportedDrops uint64
}

func newPipeline(cfg AudioConfig, device DeviceHandle, transport StreamTransport, buffer *FrameBuffer, metrics *Metrics, debug bool, logger *VocalsLogger) *pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	return &pipeline{
		ctx:       ctx,
		cancel:    cancel,
		device:    device,
		transport: transport,
		buffer:    buffer,
		encoder:   NewFrameEncoder(cfg.Channels, cfg.FrameSize),
		metrics:   metrics,
		logger:    logger,
		debug:     debug,
		faults:    make(chan error, 1),
	}
}

func (p *pipeline) run() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.encoder.Run(p.ctx, p.buffer, p.emit); err != nil {
			p.faults <- err
		}
	}()
}

func (p *pipeline) emit(frame Frame, data []byte) {
	p.transport.Send(frame, data)
	p.metrics.FramesEncoded.Add(p.ctx, 1)

	if dropped := p.buffer.Dropped(); dropped > p.reportedDrops {
		p.metrics.SamplesDropped.Add(p.ctx, int64(dropped-p.reportedDrops))
		p.logger.WithFields(map[string]interface{}{
			"dropped_total": dropped,
			"seq":           frame.Sequence,
		}).Warn("Capture buffer overrun, oldest samples dropped")
		p.reportedDrops = dropped
	}
	if p.debug {
		p.logger.WithFields(map[string]interface{}{
			"seq":  frame.Sequence,
			"peak": Peak(frame.Samples),
		}).Trace("Frame encoded")
	}
}

// shutdown releases the device, stops the encoder, discards buffered samples
// and closes the transport. Concurrent callers block until it completes.
func (p *pipeline) shutdown() {
	p.stopOnce.Do(func() {
		if err := p.device.Close(); err != nil {
			p.logger.WithError(err).Warn("Closing capture device")
		}
		p.cancel()
		p.wg.Wait()
		p.buffer.Reset()
		if err := p.transport.Close(); err != nil {
			p.logger.WithError(err).Warn("Closing stream transport")
		}
	})
}

func (p *pipeline) stats() Stats {
	ts := p.transport.Stats()
	return Stats{
		FramesEncoded:   p.encoder.Encoded(),
		FramesSent:      ts.Sent,
		FramesLost:      ts.Lost,
		SamplesDropped:  p.buffer.Dropped(),
		Reconnects:      ts.Reconnects,
		BufferedSamples: p.buffer.Len(),
		QueuedFrames:    ts.Queued,
	}
}
