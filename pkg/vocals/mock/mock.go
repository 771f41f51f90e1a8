// Package mock provides in-memory implementations of [vocals.Capturer],
// [vocals.DeviceHandle] and [vocals.StreamTransport] for tests.
//
// All mocks are safe for concurrent use. They count calls so tests can assert
// that every acquired device and connection was released, and they expose
// exported fields that control return values.
//
// Typical usage:
//
//	capturer := &mock.Capturer{}
//	transport := &mock.Transport{}
//	client, _ := vocals.NewClient(
//	    vocals.WithCapturer(capturer),
//	    vocals.WithTransportFactory(transport.Factory()),
//	)
//	session, _ := client.Start(ctx, vocals.DefaultAudioConfig())
//	capturer.LastDevice().Emit(make([]int16, 320))
package mock

import (
	"context"
	"sync"

	"github.com/rojolang/vocals-stream-go/pkg/vocals"
)

// ─── Capturer ────────────────────────────────────────────────────────────────

// Capturer is a mock [vocals.Capturer]. Each successful Open creates a new
// [Device] that tests drive with [Device.Emit].
type Capturer struct {
	mu sync.Mutex

	// OpenError, when set, is returned by Open and no device is created.
	OpenError error

	// CallCountOpen records how many times Open was called.
	CallCountOpen int

	// Configs holds the AudioConfig of every Open call, in order.
	Configs []vocals.AudioConfig

	devices []*Device
}

// Open implements [vocals.Capturer].
func (c *Capturer) Open(cfg vocals.AudioConfig, sink vocals.SampleSink) (vocals.DeviceHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountOpen++
	c.Configs = append(c.Configs, cfg)
	if c.OpenError != nil {
		return nil, c.OpenError
	}
	d := &Device{sink: sink, errCh: make(chan error, 1)}
	c.devices = append(c.devices, d)
	return d, nil
}

// LastDevice returns the most recently opened device, or nil.
func (c *Capturer) LastDevice() *Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.devices) == 0 {
		return nil
	}
	return c.devices[len(c.devices)-1]
}

// OpenDevices returns how many opened devices have not been closed.
func (c *Capturer) OpenDevices() int {
	c.mu.Lock()
	devices := append([]*Device(nil), c.devices...)
	c.mu.Unlock()

	n := 0
	for _, d := range devices {
		if d.IsOpen() {
			n++
		}
	}
	return n
}

// ─── Device ──────────────────────────────────────────────────────────────────

// Device is a mock [vocals.DeviceHandle] returned by [Capturer.Open].
type Device struct {
	mu     sync.Mutex
	sink   vocals.SampleSink
	closed bool
	errCh  chan error

	// CloseError is returned by Close.
	CloseError error

	// CallCountClose records how many times Close was called.
	CallCountClose int

	// Pushed counts samples delivered to the sink.
	Pushed int
}

// Emit simulates a driver callback. It reports false once the device is
// closed, in which case nothing reaches the sink.
func (d *Device) Emit(samples []int16) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.sink.Push(samples)
	d.Pushed += len(samples)
	return true
}

// Fail reports err on the Err channel, as a lost device would.
func (d *Device) Fail(err error) {
	select {
	case d.errCh <- err:
	default:
	}
}

// Close implements [vocals.DeviceHandle].
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountClose++
	d.closed = true
	return d.CloseError
}

// Err implements [vocals.DeviceHandle].
func (d *Device) Err() <-chan error {
	return d.errCh
}

// IsOpen reports whether Close has not been called yet.
func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closed
}

// ─── Transport ───────────────────────────────────────────────────────────────

// Transport is a mock [vocals.StreamTransport] that records every frame it
// is given. Sent frames are never lost.
type Transport struct {
	mu sync.Mutex

	// ConnectError, when set, is returned by Connect.
	ConnectError error

	// CloseError is returned by Close.
	CloseError error

	// CallCountConnect records how many times Connect was called.
	CallCountConnect int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	// Frames holds every frame passed to Send, in order.
	Frames []vocals.Frame

	connected bool
	errCh     chan error
	notify    chan struct{}
}

func (t *Transport) init() {
	if t.errCh == nil {
		t.errCh = make(chan error, 1)
		t.notify = make(chan struct{}, 1)
	}
}

// Factory returns a [vocals.TransportFactory] that always hands out t.
func (t *Transport) Factory() vocals.TransportFactory {
	return func(vocals.AudioConfig) vocals.StreamTransport { return t }
}

// Connect implements [vocals.StreamTransport].
func (t *Transport) Connect(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.init()
	t.CallCountConnect++
	if t.ConnectError != nil {
		return t.ConnectError
	}
	t.connected = true
	return nil
}

// Send implements [vocals.StreamTransport].
func (t *Transport) Send(frame vocals.Frame, _ []byte) {
	t.mu.Lock()
	t.init()
	t.Frames = append(t.Frames, frame)
	notify := t.notify
	t.mu.Unlock()

	select {
	case notify <- struct{}{}:
	default:
	}
}

// Close implements [vocals.StreamTransport].
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CallCountClose++
	t.connected = false
	return t.CloseError
}

// Err implements [vocals.StreamTransport].
func (t *Transport) Err() <-chan error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.init()
	return t.errCh
}

// Stats implements [vocals.StreamTransport].
func (t *Transport) Stats() vocals.TransportStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return vocals.TransportStats{Sent: uint64(len(t.Frames))}
}

// Fail reports err on the Err channel, as an unrecoverable transport would.
func (t *Transport) Fail(err error) {
	t.mu.Lock()
	t.init()
	ch := t.errCh
	t.mu.Unlock()

	select {
	case ch <- err:
	default:
	}
}

// IsConnected reports whether Connect succeeded and Close has not been called.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// SentFrames returns a copy of the frames received so far.
func (t *Transport) SentFrames() []vocals.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]vocals.Frame(nil), t.Frames...)
}

// WaitFrames blocks until at least n frames were sent or ctx is done.
func (t *Transport) WaitFrames(ctx context.Context, n int) ([]vocals.Frame, error) {
	for {
		t.mu.Lock()
		t.init()
		if len(t.Frames) >= n {
			frames := append([]vocals.Frame(nil), t.Frames...)
			t.mu.Unlock()
			return frames, nil
		}
		notify := t.notify
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-notify:
		}
	}
}
