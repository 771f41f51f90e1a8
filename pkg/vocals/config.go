package vocals

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EngineConfig tunes the capture engine. It is shared by every session a
// Client starts; per-session parameters live in AudioConfig.
type EngineConfig struct {
	Headers     map[string]string
	Subprotocol string

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingPeriod       time.Duration

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	BackoffJitter  float64

	// SendQueueSize bounds the frames held while the connection is down.
	SendQueueSize int
	// BufferSeconds bounds the raw samples held between capture and encoder.
	BufferSeconds float64

	CloseGrace         time.Duration
	DeviceCloseTimeout time.Duration
	DeviceStallTimeout time.Duration
	AudioDeviceID      *int

	UseTokenAuth       bool
	TokenEndpoint      *string
	TokenRefreshBuffer time.Duration

	DebugLevel     string
	DebugWebsocket bool
	DebugAudio     bool
}

// NewEngineConfig returns defaults overlaid with .env and VOCALS_* variables.
func NewEngineConfig() *EngineConfig {
	c := DefaultEngineConfig()
	c.loadFromEnv()
	return c
}

// DefaultEngineConfig returns the built-in defaults without reading the environment.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Headers:            make(map[string]string),
		Subprotocol:        "binary",
		HandshakeTimeout:   10 * time.Second,
		WriteTimeout:       5 * time.Second,
		PingPeriod:         30 * time.Second,
		InitialBackoff:     200 * time.Millisecond,
		MaxBackoff:         5 * time.Second,
		BackoffFactor:      2.0,
		BackoffJitter:      0.2,
		SendQueueSize:      250,
		BufferSeconds:      2.0,
		CloseGrace:         2 * time.Second,
		DeviceCloseTimeout: time.Second,
		DeviceStallTimeout: 3 * time.Second,
		TokenRefreshBuffer: 60 * time.Second,
		DebugLevel:         "INFO",
	}
}

func (c *EngineConfig) loadFromEnv() {
	// Load .env if exists
	_ = godotenv.Load()

	if v, ok := envInt("VOCALS_SEND_QUEUE_SIZE"); ok {
		c.SendQueueSize = v
	}
	if v, ok := envFloat("VOCALS_BUFFER_SECONDS"); ok {
		c.BufferSeconds = v
	}
	if v, ok := envInt("VOCALS_RECONNECT_INITIAL_MS"); ok {
		c.InitialBackoff = time.Duration(v) * time.Millisecond
	}
	if v, ok := envInt("VOCALS_RECONNECT_MAX_MS"); ok {
		c.MaxBackoff = time.Duration(v) * time.Millisecond
	}
	if v, ok := envInt("VOCALS_CLOSE_GRACE_MS"); ok {
		c.CloseGrace = time.Duration(v) * time.Millisecond
	}
	if v, ok := envInt("VOCALS_AUDIO_DEVICE_ID"); ok {
		c.AudioDeviceID = &v
	}
	if endpoint := os.Getenv("VOCALS_TOKEN_ENDPOINT"); endpoint != "" {
		c.TokenEndpoint = &endpoint
	}

	c.UseTokenAuth = os.Getenv("VOCALS_USE_TOKEN_AUTH") == "true"

	if level := os.Getenv("VOCALS_DEBUG_LEVEL"); level != "" {
		c.DebugLevel = level
	}

	c.DebugWebsocket = os.Getenv("VOCALS_DEBUG_WEBSOCKET") == "true"
	c.DebugAudio = os.Getenv("VOCALS_DEBUG_AUDIO") == "true"
}

// AudioConfigFromEnv overlays VOCALS_WS_ENDPOINT, VOCALS_CHANNELS,
// VOCALS_SAMPLE_RATE and VOCALS_FRAME_SIZE on DefaultAudioConfig.
func AudioConfigFromEnv() AudioConfig {
	_ = godotenv.Load()

	cfg := DefaultAudioConfig()
	if endpoint := os.Getenv("VOCALS_WS_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if v, ok := envInt("VOCALS_CHANNELS"); ok {
		cfg.Channels = v
	}
	if v, ok := envInt("VOCALS_SAMPLE_RATE"); ok {
		cfg.SampleRate = v
	}
	if v, ok := envInt("VOCALS_FRAME_SIZE"); ok {
		cfg.FrameSize = v
	}
	return cfg
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envFloat(key string) (float64, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Validate returns list of issues
func (c *EngineConfig) Validate() []string {
	issues := []string{}

	if c.SendQueueSize <= 0 {
		issues = append(issues, fmt.Sprintf("Send queue size must be positive: %d", c.SendQueueSize))
	}
	if c.BufferSeconds <= 0 {
		issues = append(issues, fmt.Sprintf("Buffer seconds must be positive: %.2f", c.BufferSeconds))
	}
	if c.InitialBackoff <= 0 || c.MaxBackoff < c.InitialBackoff {
		issues = append(issues, fmt.Sprintf("Invalid backoff range: %v..%v", c.InitialBackoff, c.MaxBackoff))
	}
	if c.BackoffFactor < 1 {
		issues = append(issues, fmt.Sprintf("Backoff factor must be >= 1: %.2f", c.BackoffFactor))
	}
	if c.BackoffJitter < 0 || c.BackoffJitter >= 1 {
		issues = append(issues, fmt.Sprintf("Backoff jitter must be in [0,1): %.2f", c.BackoffJitter))
	}
	if c.CloseGrace <= 0 {
		issues = append(issues, "Close grace period must be positive")
	}
	if c.UseTokenAuth && c.TokenEndpoint == nil && os.Getenv("VOCALS_DEV_API_KEY") == "" {
		issues = append(issues, "Token auth enabled but neither VOCALS_TOKEN_ENDPOINT nor VOCALS_DEV_API_KEY is set")
	}

	validLevels := []string{"TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR"}
	found := false
	for _, level := range validLevels {
		if level == c.DebugLevel {
			found = true
			break
		}
	}
	if !found {
		issues = append(issues, fmt.Sprintf("Invalid debug level: %s", c.DebugLevel))
	}

	return issues
}

func (c *EngineConfig) PrintConfig() {
	fmt.Println("🎤 Vocals Stream Configuration")
	fmt.Println("==================================================")
	fmt.Printf("Subprotocol: %s\n", c.Subprotocol)
	fmt.Printf("Handshake Timeout: %v\n", c.HandshakeTimeout)
	fmt.Printf("Reconnect Backoff: %v..%v (x%.1f, jitter %.0f%%)\n", c.InitialBackoff, c.MaxBackoff, c.BackoffFactor, c.BackoffJitter*100)
	fmt.Printf("Send Queue Size: %d frames\n", c.SendQueueSize)
	fmt.Printf("Capture Buffer: %.1fs\n", c.BufferSeconds)
	fmt.Printf("Close Grace: %v\n", c.CloseGrace)
	fmt.Printf("Use Token Auth: %t\n", c.UseTokenAuth)
	if c.TokenEndpoint != nil {
		fmt.Printf("Token Endpoint: %s\n", *c.TokenEndpoint)
	}
	fmt.Printf("Debug Level: %s\n", c.DebugLevel)
	fmt.Printf("Debug WebSocket: %t\n", c.DebugWebsocket)
	fmt.Printf("Debug Audio: %t\n", c.DebugAudio)

	if c.AudioDeviceID != nil {
		fmt.Printf("Audio Device ID: %d\n", *c.AudioDeviceID)
	} else {
		fmt.Println("Audio Device: Default")
	}
}
