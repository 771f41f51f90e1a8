package vocals

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestNewEngineConfig_FromEnv(t *testing.T) {
	chdir(t, t.TempDir()) // keep a developer's .env out of the test
	t.Setenv("VOCALS_SEND_QUEUE_SIZE", "42")
	t.Setenv("VOCALS_BUFFER_SECONDS", "0.5")
	t.Setenv("VOCALS_RECONNECT_INITIAL_MS", "100")
	t.Setenv("VOCALS_RECONNECT_MAX_MS", "1000")
	t.Setenv("VOCALS_CLOSE_GRACE_MS", "250")
	t.Setenv("VOCALS_AUDIO_DEVICE_ID", "3")
	t.Setenv("VOCALS_DEBUG_LEVEL", "DEBUG")
	t.Setenv("VOCALS_DEBUG_WEBSOCKET", "true")

	cfg := NewEngineConfig()
	if cfg.SendQueueSize != 42 {
		t.Errorf("SendQueueSize = %d, want 42", cfg.SendQueueSize)
	}
	if cfg.BufferSeconds != 0.5 {
		t.Errorf("BufferSeconds = %v, want 0.5", cfg.BufferSeconds)
	}
	if cfg.InitialBackoff != 100*time.Millisecond || cfg.MaxBackoff != time.Second {
		t.Errorf("backoff = %v..%v, want 100ms..1s", cfg.InitialBackoff, cfg.MaxBackoff)
	}
	if cfg.CloseGrace != 250*time.Millisecond {
		t.Errorf("CloseGrace = %v, want 250ms", cfg.CloseGrace)
	}
	if cfg.AudioDeviceID == nil || *cfg.AudioDeviceID != 3 {
		t.Errorf("AudioDeviceID = %v, want 3", cfg.AudioDeviceID)
	}
	if cfg.DebugLevel != "DEBUG" || !cfg.DebugWebsocket || cfg.DebugAudio {
		t.Errorf("debug settings = %q/%t/%t", cfg.DebugLevel, cfg.DebugWebsocket, cfg.DebugAudio)
	}
	if issues := cfg.Validate(); len(issues) != 0 {
		t.Errorf("Validate() = %v, want none", issues)
	}
}

func TestNewEngineConfig_IgnoresGarbage(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("VOCALS_SEND_QUEUE_SIZE", "lots")

	cfg := NewEngineConfig()
	if cfg.SendQueueSize != DefaultEngineConfig().SendQueueSize {
		t.Errorf("SendQueueSize = %d, want default", cfg.SendQueueSize)
	}
}

func TestAudioConfigFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("VOCALS_WS_ENDPOINT", "wss://asr.example.com/stream")
	t.Setenv("VOCALS_CHANNELS", "2")
	t.Setenv("VOCALS_SAMPLE_RATE", "48000")
	t.Setenv("VOCALS_FRAME_SIZE", "960")

	want := NewAudioConfig("wss://asr.example.com/stream", 2, 48000, 960)
	if diff := cmp.Diff(want, AudioConfigFromEnv()); diff != "" {
		t.Errorf("AudioConfigFromEnv mismatch (-want +got):\n%s", diff)
	}
}

func TestEngineConfig_Validate(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.SendQueueSize = 0
	cfg.BackoffJitter = 1.5
	cfg.DebugLevel = "LOUD"

	if got := len(cfg.Validate()); got != 3 {
		t.Errorf("Validate() returned %d issues, want 3: %v", got, cfg.Validate())
	}
}

func TestAudioConfig_Derived(t *testing.T) {
	cfg := NewAudioConfig(DefaultEndpoint, 2, 16000, 320)
	if cfg.FrameSamples() != 640 {
		t.Errorf("FrameSamples() = %d, want 640", cfg.FrameSamples())
	}
	if cfg.FrameBytes() != 4+640*2 {
		t.Errorf("FrameBytes() = %d, want %d", cfg.FrameBytes(), 4+640*2)
	}
	if cfg.FrameDuration() != 20*time.Millisecond {
		t.Errorf("FrameDuration() = %v, want 20ms", cfg.FrameDuration())
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
