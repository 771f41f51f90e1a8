package vocals

import (
	"fmt"
	"net/url"
	"time"
)

const (
	// DefaultEndpoint is the listener address used when none is configured.
	DefaultEndpoint   = "ws://localhost:14520"
	DefaultChannels   = 1
	DefaultSampleRate = 16000
	DefaultFrameSize  = 320

	// sequenceBytes is the size of the sequence header on every wire frame.
	sequenceBytes = 4
	// sampleBytes is the size of one int16 PCM sample on the wire.
	sampleBytes = 2
)

// AudioConfig describes one capture session. It is a value type: a Session
// keeps its own copy, so mutating the caller's variable afterwards has no
// effect on a running stream.
type AudioConfig struct {
	Endpoint   string
	Channels   int
	SampleRate int
	FrameSize  int
}

// NewAudioConfig builds an AudioConfig. Use Validate before handing it to a
// Session.
func NewAudioConfig(endpoint string, channels, sampleRate, frameSize int) AudioConfig {
	return AudioConfig{
		Endpoint:   endpoint,
		Channels:   channels,
		SampleRate: sampleRate,
		FrameSize:  frameSize,
	}
}

// DefaultAudioConfig returns mono 16kHz with 20ms frames against the local listener.
func DefaultAudioConfig() AudioConfig {
	return NewAudioConfig(DefaultEndpoint, DefaultChannels, DefaultSampleRate, DefaultFrameSize)
}

// Validate reports an InvalidConfig error if any field is unset or out of range.
func (c AudioConfig) Validate() error {
	if c.Endpoint == "" {
		return NewConfigError("endpoint is required")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return WrapError(fmt.Errorf("parse endpoint %q: %w", c.Endpoint, err), ErrCodeInvalidConfig)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return NewConfigError(fmt.Sprintf("endpoint scheme must be ws or wss, got %q", u.Scheme))
	}
	if u.Host == "" {
		return NewConfigError("endpoint host is required")
	}
	if c.Channels <= 0 {
		return NewConfigError(fmt.Sprintf("channels must be positive, got %d", c.Channels))
	}
	if c.SampleRate <= 0 {
		return NewConfigError(fmt.Sprintf("sample rate must be positive, got %d", c.SampleRate))
	}
	if c.FrameSize <= 0 {
		return NewConfigError(fmt.Sprintf("frame size must be positive, got %d", c.FrameSize))
	}
	return nil
}

// FrameSamples is the number of interleaved samples in one frame.
func (c AudioConfig) FrameSamples() int {
	return c.FrameSize * c.Channels
}

// FrameBytes is the encoded size of one frame including its sequence header.
func (c AudioConfig) FrameBytes() int {
	return sequenceBytes + c.FrameSamples()*sampleBytes
}

// FrameDuration is the wall-clock length of audio carried by one frame.
func (c AudioConfig) FrameDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.FrameSize) * time.Second / time.Duration(c.SampleRate)
}

// Frame is a sequence-numbered block of interleaved int16 PCM.
type Frame struct {
	Sequence uint32
	Samples  []int16
}

// SessionState enum
type SessionState string

const (
	StateIdle     SessionState = "idle"
	StateStarting SessionState = "starting"
	StateActive   SessionState = "active"
	StateStopping SessionState = "stopping"
	StateFailed   SessionState = "failed"
)

// ConnectionState enum
type ConnectionState string

const (
	Disconnected ConnectionState = "disconnected"
	Connecting   ConnectionState = "connecting"
	Connected    ConnectionState = "connected"
	Reconnecting ConnectionState = "reconnecting"
	Closing      ConnectionState = "closing"
	ErrorState   ConnectionState = "error"
)

// Stats is a point-in-time snapshot of a session's counters.
type Stats struct {
	FramesEncoded   uint64
	FramesSent      uint64
	FramesLost      uint64
	SamplesDropped  uint64
	Reconnects      uint64
	BufferedSamples int
	QueuedFrames    int
}

// Handler types
type StateHandler func(state SessionState, err error)
type ConnectionHandler func(ConnectionState)
type ErrorHandler func(*VocalsError)
type FrameHandler func(Frame)
