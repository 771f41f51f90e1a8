//go:build cgo

package vocals

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
)

// listHostDevices enumerates devices through PortAudio.
func listHostDevices() ([]AudioDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	defer portaudio.Terminate()

	defaultInput, _ := portaudio.DefaultInputDevice()
	defaultOutput, _ := portaudio.DefaultOutputDevice()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}

	devices := make([]AudioDevice, 0, len(infos))
	for i, dev := range infos {
		hostAPIName := "Unknown"
		if dev.HostApi != nil {
			hostAPIName = dev.HostApi.Name
		}
		devices = append(devices, AudioDevice{
			ID:                i,
			Name:              dev.Name,
			MaxInputChannels:  dev.MaxInputChannels,
			MaxOutputChannels: dev.MaxOutputChannels,
			DefaultSampleRate: dev.DefaultSampleRate,
			IsDefault:         dev == defaultInput || dev == defaultOutput,
			IsInput:           dev.MaxInputChannels > 0,
			IsOutput:          dev.MaxOutputChannels > 0,
			HostAPI:           hostAPIName,
		})
	}
	return devices, nil
}

// PortAudioCapturer captures signed 16-bit PCM from a PortAudio input device.
type PortAudioCapturer struct {
	config *EngineConfig
	logger *VocalsLogger
}

// NewCapturer returns the PortAudio capturer.
func NewCapturer(config *EngineConfig, logger *VocalsLogger) Capturer {
	if config == nil {
		config = DefaultEngineConfig()
	}
	if logger == nil {
		logger = GetGlobalLogger()
	}
	return &PortAudioCapturer{config: config, logger: logger.WithComponent("capturer")}
}

// Open implements Capturer.
func (c *PortAudioCapturer) Open(cfg AudioConfig, sink SampleSink) (DeviceHandle, error) {
	devices := NewAudioDeviceManager(c.logger)
	if err := devices.RefreshDevices(); err != nil {
		return nil, err
	}
	device, err := devices.ResolveInput(c.config.AudioDeviceID)
	if err != nil {
		return nil, err
	}
	if err := devices.ValidateDevice(device.ID, cfg.Channels, float64(cfg.SampleRate)); err != nil {
		return nil, err
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, wrapWithCode(err, ErrCodeDeviceUnavailable, "initialize audio host")
	}

	infos, err := portaudio.Devices()
	if err != nil || device.ID >= len(infos) {
		portaudio.Terminate()
		return nil, wrapWithCode(err, ErrCodeDeviceUnavailable, "device list changed while opening")
	}

	params := portaudio.LowLatencyParameters(infos[device.ID], nil)
	params.Input.Channels = cfg.Channels
	params.Output.Channels = 0
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = cfg.FrameSize

	h := &portAudioHandle{
		sink:    sink,
		errCh:   make(chan error, 1),
		done:    make(chan struct{}),
		timeout: c.config.DeviceCloseTimeout,
		logger:  c.logger.WithField("device", device.Name),
	}
	h.lastCallback.Store(time.Now().UnixNano())

	stream, err := portaudio.OpenStream(params, h.deliver)
	if err != nil {
		portaudio.Terminate()
		return nil, wrapWithCode(err, ErrCodeDeviceUnavailable, "open input stream")
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, wrapWithCode(err, ErrCodeDeviceUnavailable, "start input stream")
	}
	h.stream = stream

	if c.config.DeviceStallTimeout > 0 {
		go h.watch(c.config.DeviceStallTimeout)
	}

	h.logger.LogAudioEvent("device_opened", map[string]interface{}{
		"device_id":   device.ID,
		"channels":    cfg.Channels,
		"sample_rate": cfg.SampleRate,
		"frame_size":  cfg.FrameSize,
	})
	return h, nil
}

type portAudioHandle struct {
	stream *portaudio.Stream
	sink   SampleSink

	// mu is held across a push so detach waits for an in-flight callback.
	mu     sync.Mutex
	closed bool

	lastCallback atomic.Int64
	errCh        chan error
	done         chan struct{}
	closeOnce    sync.Once
	timeout      time.Duration
	logger       *VocalsLogger
}

// deliver is the PortAudio callback.
func (h *portAudioHandle) deliver(in []int16) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.lastCallback.Store(time.Now().UnixNano())
	h.sink.Push(in)
}

// detach stops delivery. Once it returns the sink receives nothing more,
// even if the driver keeps calling back.
func (h *portAudioHandle) detach() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}

// watch reports the device as lost when callbacks stop arriving.
func (h *portAudioHandle) watch(stall time.Duration) {
	ticker := time.NewTicker(stall / 2)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case now := <-ticker.C:
			last := time.Unix(0, h.lastCallback.Load())
			if now.Sub(last) > stall {
				err := NewDeviceError("capture device stopped delivering audio").
					AddDetail("stalled_for", now.Sub(last).String())
				select {
				case h.errCh <- err:
				default:
				}
				return
			}
		}
	}
}

func (h *portAudioHandle) Err() <-chan error {
	return h.errCh
}

// Close stops the callback first, then releases the stream within the
// configured timeout. A driver that hangs is abandoned.
func (h *portAudioHandle) Close() error {
	var closeErr error
	h.closeOnce.Do(func() {
		h.detach()
		close(h.done)

		released := make(chan error, 1)
		go func() {
			err := h.stream.Abort()
			if cerr := h.stream.Close(); err == nil {
				err = cerr
			}
			portaudio.Terminate()
			released <- err
		}()

		timeout := h.timeout
		if timeout <= 0 {
			timeout = time.Second
		}
		select {
		case err := <-released:
			if err != nil {
				closeErr = wrapWithCode(err, ErrCodeDeviceUnavailable, "release input stream")
			}
		case <-time.After(timeout):
			closeErr = NewDeviceError("timed out releasing input stream")
		}
		h.logger.LogAudioEvent("device_closed", nil)
	})
	return closeErr
}
