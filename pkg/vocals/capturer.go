package vocals

// Capturer opens the capture device and pushes its samples into a sink.
type Capturer interface {
	// Open acquires the device for cfg. Samples are delivered to sink from the
	// device callback until the handle is closed. Failure is DeviceUnavailable.
	Open(cfg AudioConfig, sink SampleSink) (DeviceHandle, error)
}

// DeviceHandle is an open capture device.
type DeviceHandle interface {
	// Close stops delivery and releases the device. After Close returns no
	// further Push calls reach the sink.
	Close() error

	// Err delivers at most one failure detected while capturing.
	Err() <-chan error
}

// CapturerFunc adapts a function to the Capturer interface.
type CapturerFunc func(cfg AudioConfig, sink SampleSink) (DeviceHandle, error)

func (f CapturerFunc) Open(cfg AudioConfig, sink SampleSink) (DeviceHandle, error) {
	return f(cfg, sink)
}
