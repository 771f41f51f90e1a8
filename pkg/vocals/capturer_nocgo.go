//go:build !cgo

package vocals

// listHostDevices fails without cgo since PortAudio requires it.
func listHostDevices() ([]AudioDevice, error) {
	return nil, NewDeviceError("audio capture unavailable (built without cgo)")
}

type unavailableCapturer struct{}

// NewCapturer returns a capturer whose Open always fails with DeviceUnavailable
// when built without cgo. Inject a Capturer with WithCapturer instead.
func NewCapturer(config *EngineConfig, logger *VocalsLogger) Capturer {
	return unavailableCapturer{}
}

func (unavailableCapturer) Open(AudioConfig, SampleSink) (DeviceHandle, error) {
	return nil, NewDeviceError("audio capture unavailable (built without cgo)")
}
