package vocals

import (
	"errors"
	"strings"
	"testing"
)

func testDevices() ([]AudioDevice, error) {
	return []AudioDevice{
		{ID: 0, Name: "Speakers", MaxOutputChannels: 2, DefaultSampleRate: 48000, IsOutput: true, IsDefault: true},
		{ID: 1, Name: "Built-in Mic", MaxInputChannels: 1, DefaultSampleRate: 16000, IsInput: true, IsDefault: true},
		{ID: 2, Name: "USB Interface", MaxInputChannels: 2, MaxOutputChannels: 2, DefaultSampleRate: 44100, IsInput: true, IsOutput: true},
	}, nil
}

func TestAudioDeviceManager_ResolveInput(t *testing.T) {
	adm := newAudioDeviceManager(testDevices, NewNopLogger())
	if err := adm.RefreshDevices(); err != nil {
		t.Fatalf("RefreshDevices: %v", err)
	}

	dev, err := adm.ResolveInput(nil)
	if err != nil || dev.ID != 1 {
		t.Fatalf("default input = %+v, %v; want device 1", dev, err)
	}

	id := 2
	dev, err = adm.ResolveInput(&id)
	if err != nil || dev.Name != "USB Interface" {
		t.Fatalf("ResolveInput(2) = %+v, %v", dev, err)
	}

	missing := 9
	if _, err := adm.ResolveInput(&missing); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("ResolveInput(9) error = %v, want DeviceUnavailable", err)
	}
	if n := len(adm.GetInputDevices()); n != 2 {
		t.Errorf("GetInputDevices() returned %d, want 2", n)
	}
}

func TestAudioDeviceManager_ValidateDevice(t *testing.T) {
	adm := newAudioDeviceManager(testDevices, NewNopLogger())
	if err := adm.RefreshDevices(); err != nil {
		t.Fatalf("RefreshDevices: %v", err)
	}

	tests := []struct {
		name     string
		id       int
		channels int
		wantErr  bool
	}{
		{"mono mic", 1, 1, false},
		{"stereo on mono mic", 1, 2, true},
		{"output only", 0, 1, true},
		{"stereo interface", 2, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := adm.ValidateDevice(tt.id, tt.channels, 16000)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateDevice = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrDeviceUnavailable) {
				t.Errorf("error = %v, want DeviceUnavailable", err)
			}
		})
	}
}

func TestAudioDeviceManager_ListFailure(t *testing.T) {
	adm := newAudioDeviceManager(func() ([]AudioDevice, error) {
		return nil, errors.New("host API missing")
	}, NewNopLogger())
	if err := adm.RefreshDevices(); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("RefreshDevices error = %v, want DeviceUnavailable", err)
	}
}

func TestFormatDevice(t *testing.T) {
	devices, _ := testDevices()
	out := FormatDevice(devices[1])
	for _, want := range []string{"* [1] Built-in Mic", "1 in / 0 out", "16000.0 Hz"} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatDevice output missing %q:\n%s", want, out)
		}
	}
}
