// Package vocals captures live microphone audio and streams it to a
// WebSocket endpoint as fixed-size, sequence-numbered PCM frames.
//
// # Overview
//
// A running Session wires four stages together:
//   - a Capturer opens the input device and pushes interleaved int16 samples
//   - a FrameBuffer holds those samples under a bounded ceiling
//   - a FrameEncoder cuts exact frames and prefixes each with its sequence
//   - a StreamTransport delivers frames in order, reconnecting on its own
//
// # Quick Start
//
//	client, err := vocals.NewClient()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	session, err := client.Start(ctx, vocals.AudioConfigFromEnv())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Stop(session)
//
// Start returns only after the transport is connected and the device is
// open. Stop is idempotent and returns only after the device callback has
// been detached and the connection released.
//
// # Wire Format
//
// Each frame travels as one binary WebSocket message:
//
//	offset 0   uint32 sequence, little-endian, starting at 0 per session
//	offset 4   FrameSize*Channels int16 samples, little-endian, interleaved
//
// Sequences increase by one per frame with no gaps. A frame that cannot be
// delivered before the send queue overflows is dropped and counted in
// Stats.FramesLost, so the receiver observes the gap. MarshalFrame and
// DecodeFrame expose the codec; Receiver is a ready-made endpoint.
//
// # Configuration
//
// AudioConfig is per session. EngineConfig tunes the engine and is read
// from .env and VOCALS_* variables by NewEngineConfig:
//
//	VOCALS_WS_ENDPOINT           endpoint for AudioConfigFromEnv
//	VOCALS_SAMPLE_RATE, VOCALS_CHANNELS, VOCALS_FRAME_SIZE
//	VOCALS_SEND_QUEUE_SIZE       frames held while disconnected
//	VOCALS_BUFFER_SECONDS        capture buffer ceiling
//	VOCALS_RECONNECT_INITIAL_MS, VOCALS_RECONNECT_MAX_MS
//	VOCALS_CLOSE_GRACE_MS        flush budget on Stop
//	VOCALS_AUDIO_DEVICE_ID       input device, default system input
//	VOCALS_USE_TOKEN_AUTH, VOCALS_TOKEN_ENDPOINT, VOCALS_DEV_API_KEY
//	VOCALS_DEBUG_LEVEL, VOCALS_DEBUG_WEBSOCKET, VOCALS_DEBUG_AUDIO
//
// # Session Lifecycle
//
//	Idle -> Starting -> Active -> Stopping -> Idle
//	           |           |
//	           +-> Failed <+      Stop moves Failed back to Idle
//
// Register an observer with Session.OnStateChange. A Failed session
// reports its cause from Session.Err:
//
//	session.OnStateChange(vocals.CreateFailureHandler(func(err error) {
//		log.Printf("stream failed: %v", err)
//	}))
//
// # Error Handling
//
// Every failure is a *VocalsError carrying one of the ErrCode* values.
// Match with errors.Is against the sentinels or compare ErrorCode:
//
//	if errors.Is(err, vocals.ErrDeviceUnavailable) {
//		// pick another device
//	}
//
// # Metrics
//
// Counters are recorded through the global OpenTelemetry MeterProvider.
// InitPrometheus installs one backed by a Prometheus registry and returns
// the scrape handler.
//
// # Testing
//
// The mock subpackage provides a scriptable Capturer and StreamTransport
// for exercising code built on Client without hardware or network.
//
// # Build Tags
//
// Device capture uses PortAudio through cgo. With CGO_ENABLED=0 the package
// still builds, and opening a device fails with ErrDeviceUnavailable.
package vocals
