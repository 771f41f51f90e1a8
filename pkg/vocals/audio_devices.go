package vocals

import (
	"fmt"
	"strings"
	"sync"
)

// AudioDevice describes one host audio device.
type AudioDevice struct {
	ID                int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	IsDefault         bool
	IsInput           bool
	IsOutput          bool
	HostAPI           string
}

// deviceLister enumerates the host devices. The cgo build backs it with
// PortAudio; without cgo it always fails.
type deviceLister func() ([]AudioDevice, error)

// AudioDeviceManager caches the device list and answers lookups against it.
type AudioDeviceManager struct {
	mu      sync.RWMutex
	devices []AudioDevice
	list    deviceLister
	logger  *VocalsLogger
}

// NewAudioDeviceManager creates a manager over the host audio API.
func NewAudioDeviceManager(logger *VocalsLogger) *AudioDeviceManager {
	return newAudioDeviceManager(listHostDevices, logger)
}

func newAudioDeviceManager(list deviceLister, logger *VocalsLogger) *AudioDeviceManager {
	if logger == nil {
		logger = GetGlobalLogger()
	}
	return &AudioDeviceManager{
		list:   list,
		logger: logger.WithComponent("AudioDeviceManager"),
	}
}

// RefreshDevices reloads the device list from the host.
func (adm *AudioDeviceManager) RefreshDevices() error {
	devices, err := adm.list()
	if err != nil {
		return wrapWithCode(err, ErrCodeDeviceUnavailable, "enumerate audio devices")
	}

	adm.mu.Lock()
	adm.devices = devices
	adm.mu.Unlock()

	adm.logger.WithField("device_count", len(devices)).Debug("Audio devices refreshed")
	return nil
}

// GetDevices returns a copy of the cached device list.
func (adm *AudioDeviceManager) GetDevices() []AudioDevice {
	adm.mu.RLock()
	defer adm.mu.RUnlock()

	devices := make([]AudioDevice, len(adm.devices))
	copy(devices, adm.devices)
	return devices
}

func (adm *AudioDeviceManager) GetInputDevices() []AudioDevice {
	adm.mu.RLock()
	defer adm.mu.RUnlock()

	inputDevices := make([]AudioDevice, 0)
	for _, device := range adm.devices {
		if device.IsInput {
			inputDevices = append(inputDevices, device)
		}
	}
	return inputDevices
}

func (adm *AudioDeviceManager) GetDefaultInputDevice() (*AudioDevice, error) {
	adm.mu.RLock()
	defer adm.mu.RUnlock()

	for _, device := range adm.devices {
		if device.IsDefault && device.IsInput {
			return &device, nil
		}
	}
	return nil, NewDeviceError("no default input device found")
}

func (adm *AudioDeviceManager) GetDeviceByID(id int) (*AudioDevice, error) {
	adm.mu.RLock()
	defer adm.mu.RUnlock()

	for _, device := range adm.devices {
		if device.ID == id {
			return &device, nil
		}
	}
	return nil, NewDeviceError(fmt.Sprintf("device with ID %d not found", id))
}

// ResolveInput picks the device named by id, or the default input when id is nil.
func (adm *AudioDeviceManager) ResolveInput(id *int) (*AudioDevice, error) {
	if id != nil {
		return adm.GetDeviceByID(*id)
	}
	return adm.GetDefaultInputDevice()
}

// ValidateDevice checks that the device can capture the requested format.
func (adm *AudioDeviceManager) ValidateDevice(deviceID int, channels int, sampleRate float64) error {
	device, err := adm.GetDeviceByID(deviceID)
	if err != nil {
		return err
	}

	if !device.IsInput {
		return NewDeviceError(fmt.Sprintf("device '%s' is not an input device", device.Name))
	}
	if device.MaxInputChannels < channels {
		return NewDeviceError(fmt.Sprintf("device '%s' supports max %d input channels, requested %d",
			device.Name, device.MaxInputChannels, channels))
	}

	if sampleRate > 0 && device.DefaultSampleRate > 0 {
		ratio := sampleRate / device.DefaultSampleRate
		if ratio < 0.5 || ratio > 2.0 {
			adm.logger.WithFields(map[string]interface{}{
				"device_name":           device.Name,
				"device_sample_rate":    device.DefaultSampleRate,
				"requested_sample_rate": sampleRate,
			}).Warn("Sample rate significantly different from device default")
		}
	}
	return nil
}

// FormatDevice renders a device the way `vocals devices list` prints it.
func FormatDevice(device AudioDevice) string {
	var sb strings.Builder
	marker := " "
	if device.IsDefault {
		marker = "*"
	}
	fmt.Fprintf(&sb, "%s [%d] %s\n", marker, device.ID, device.Name)
	fmt.Fprintf(&sb, "      Host API: %s\n", device.HostAPI)
	fmt.Fprintf(&sb, "      Channels: %d in / %d out\n", device.MaxInputChannels, device.MaxOutputChannels)
	fmt.Fprintf(&sb, "      Default Sample Rate: %.1f Hz\n", device.DefaultSampleRate)
	return sb.String()
}
