package vocals_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/rojolang/vocals-stream-go/pkg/vocals"
	"github.com/rojolang/vocals-stream-go/pkg/vocals/mock"
)

func newTestClient(t *testing.T, capturer *mock.Capturer, transport *mock.Transport) *vocals.Client {
	t.Helper()
	client, err := vocals.NewClient(
		vocals.WithEngineConfig(vocals.DefaultEngineConfig()),
		vocals.WithLogger(vocals.NewNopLogger()),
		vocals.WithCapturer(capturer),
		vocals.WithTransportFactory(transport.Factory()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

// stateRecorder collects every transition of a session.
type stateRecorder struct {
	mu     sync.Mutex
	states []vocals.SessionState
}

func (r *stateRecorder) handle(state vocals.SessionState, _ error) {
	r.mu.Lock()
	r.states = append(r.states, state)
	r.mu.Unlock()
}

func (r *stateRecorder) get() []vocals.SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]vocals.SessionState(nil), r.states...)
}

func waitState(t *testing.T, s *vocals.Session, want vocals.SessionState) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for s.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s", s.State(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClient_StartStopReleasesEverything(t *testing.T) {
	configs := []vocals.AudioConfig{
		vocals.DefaultAudioConfig(),
		vocals.NewAudioConfig("wss://asr.example.com:443/stream", 2, 48000, 960),
		vocals.NewAudioConfig("ws://127.0.0.1:9000", 1, 8000, 1),
	}
	for _, cfg := range configs {
		capturer := &mock.Capturer{}
		transport := &mock.Transport{}
		client := newTestClient(t, capturer, transport)

		session, err := client.Start(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Start(%+v): %v", cfg, err)
		}
		if got := session.State(); got != vocals.StateActive {
			t.Fatalf("state after Start = %s, want %s", got, vocals.StateActive)
		}
		client.Stop(session)

		if n := capturer.OpenDevices(); n != 0 {
			t.Errorf("%+v: %d devices left open", cfg, n)
		}
		if transport.IsConnected() {
			t.Errorf("%+v: connection left open", cfg)
		}
		if got := session.State(); got != vocals.StateIdle {
			t.Errorf("state after Stop = %s, want %s", got, vocals.StateIdle)
		}
	}
}

func TestSession_StopIsIdempotent(t *testing.T) {
	capturer := &mock.Capturer{}
	transport := &mock.Transport{}
	client := newTestClient(t, capturer, transport)

	session, err := client.Start(context.Background(), vocals.DefaultAudioConfig())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	rec := &stateRecorder{}
	session.OnStateChange(rec.handle)

	session.Stop()
	first := rec.get()
	closes := transport.CallCountClose
	deviceCloses := capturer.LastDevice().CallCountClose

	session.Stop()
	client.Stop(session)

	if diff := cmp.Diff(first, rec.get()); diff != "" {
		t.Errorf("second Stop changed transitions (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]vocals.SessionState{vocals.StateStopping, vocals.StateIdle}, first); diff != "" {
		t.Errorf("transitions (-want +got):\n%s", diff)
	}
	if transport.CallCountClose != closes || capturer.LastDevice().CallCountClose != deviceCloses {
		t.Error("second Stop released resources again")
	}
}

func TestSession_DoubleStartRejected(t *testing.T) {
	capturer := &mock.Capturer{}
	transport := &mock.Transport{}
	client := newTestClient(t, capturer, transport)

	session, err := client.Start(context.Background(), vocals.DefaultAudioConfig())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer session.Stop()

	err = session.Start(context.Background(), vocals.DefaultAudioConfig())
	if !errors.Is(err, vocals.ErrAlreadyActive) {
		t.Fatalf("second Start error = %v, want ErrAlreadyActive", err)
	}
	if capturer.CallCountOpen != 1 || transport.CallCountConnect != 1 {
		t.Errorf("second Start acquired resources: opens=%d connects=%d", capturer.CallCountOpen, transport.CallCountConnect)
	}
}

func TestSession_InvalidConfigStaysIdle(t *testing.T) {
	tests := []struct {
		name string
		cfg  vocals.AudioConfig
	}{
		{"empty endpoint", vocals.NewAudioConfig("", 1, 16000, 320)},
		{"http scheme", vocals.NewAudioConfig("http://localhost:14520", 1, 16000, 320)},
		{"zero channels", vocals.NewAudioConfig(vocals.DefaultEndpoint, 0, 16000, 320)},
		{"negative rate", vocals.NewAudioConfig(vocals.DefaultEndpoint, 1, -1, 320)},
		{"zero frame", vocals.NewAudioConfig(vocals.DefaultEndpoint, 1, 16000, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capturer := &mock.Capturer{}
			transport := &mock.Transport{}
			client := newTestClient(t, capturer, transport)

			session := client.NewSession()
			err := session.Start(context.Background(), tt.cfg)
			if !errors.Is(err, vocals.ErrInvalidConfig) {
				t.Fatalf("Start error = %v, want InvalidConfig", err)
			}
			if session.State() != vocals.StateIdle {
				t.Errorf("state = %s, want %s", session.State(), vocals.StateIdle)
			}
			if capturer.CallCountOpen != 0 || transport.CallCountConnect != 0 {
				t.Error("invalid config touched resources")
			}
		})
	}
}

func TestSession_ConnectFailureOpensNoDevice(t *testing.T) {
	capturer := &mock.Capturer{}
	transport := &mock.Transport{ConnectError: vocals.NewConnectionError("refused")}
	client := newTestClient(t, capturer, transport)

	session := client.NewSession()
	err := session.Start(context.Background(), vocals.DefaultAudioConfig())
	if !errors.Is(err, vocals.ErrConnectionFailed) {
		t.Fatalf("Start error = %v, want ConnectionFailed", err)
	}
	if session.State() != vocals.StateFailed {
		t.Errorf("state = %s, want %s", session.State(), vocals.StateFailed)
	}
	if capturer.CallCountOpen != 0 {
		t.Errorf("device opened %d times after connect failure", capturer.CallCountOpen)
	}

	if err := session.Start(context.Background(), vocals.DefaultAudioConfig()); !errors.Is(err, vocals.ErrSessionFailed) {
		t.Errorf("Start while Failed = %v, want ErrSessionFailed", err)
	}

	session.Stop()
	if session.State() != vocals.StateIdle {
		t.Errorf("state after Stop = %s, want %s", session.State(), vocals.StateIdle)
	}
}

func TestSession_DeviceFailureClosesTransport(t *testing.T) {
	capturer := &mock.Capturer{OpenError: errors.New("no such device")}
	transport := &mock.Transport{}
	client := newTestClient(t, capturer, transport)

	session, err := client.Start(context.Background(), vocals.DefaultAudioConfig())
	if !errors.Is(err, vocals.ErrDeviceUnavailable) {
		t.Fatalf("Start error = %v, want DeviceUnavailable", err)
	}
	if session != nil {
		t.Error("failed Start returned a session")
	}
	if transport.IsConnected() {
		t.Error("transport left open after device failure")
	}
	if transport.CallCountClose != 1 {
		t.Errorf("transport closed %d times, want 1", transport.CallCountClose)
	}
}

func TestSession_RestartAfterStop(t *testing.T) {
	capturer := &mock.Capturer{}
	transport := &mock.Transport{}
	client := newTestClient(t, capturer, transport)

	session := client.NewSession()
	for i := 0; i < 2; i++ {
		if err := session.Start(context.Background(), vocals.DefaultAudioConfig()); err != nil {
			t.Fatalf("Start #%d: %v", i, err)
		}
		session.Stop()
	}
	if capturer.CallCountOpen != 2 || capturer.OpenDevices() != 0 {
		t.Errorf("opens=%d open=%d, want 2 opens and none left", capturer.CallCountOpen, capturer.OpenDevices())
	}
}

func TestSession_SequenceHasNoGaps(t *testing.T) {
	capturer := &mock.Capturer{}
	transport := &mock.Transport{}
	client := newTestClient(t, capturer, transport)

	cfg := vocals.DefaultAudioConfig()
	session, err := client.Start(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer session.Stop()

	device := capturer.LastDevice()
	blocks := []int{100, 500, 17, 1023, 320, 640, 1}
	total := 0
	for _, n := range blocks {
		device.Emit(make([]int16, n))
		total += n
	}
	want := total / cfg.FrameSamples()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	frames, err := transport.WaitFrames(ctx, want)
	if err != nil {
		t.Fatalf("waiting for %d frames: %v", want, err)
	}
	for i, f := range frames {
		if f.Sequence != uint32(i) {
			t.Fatalf("frame %d has sequence %d", i, f.Sequence)
		}
		if len(f.Samples) != cfg.FrameSamples() {
			t.Fatalf("frame %d has %d samples", i, len(f.Samples))
		}
	}
}

func TestSession_NoCallbacksAfterStop(t *testing.T) {
	capturer := &mock.Capturer{}
	transport := &mock.Transport{}
	client := newTestClient(t, capturer, transport)

	session, err := client.Start(context.Background(), vocals.DefaultAudioConfig())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	device := capturer.LastDevice()
	session.Stop()

	if device.Emit(make([]int16, 320)) {
		t.Error("device still delivering samples after Stop")
	}
	if s := session.Stats(); s.BufferedSamples != 0 {
		t.Errorf("BufferedSamples = %d after Stop, want 0", s.BufferedSamples)
	}
}

func TestSession_MidStreamFailures(t *testing.T) {
	tests := []struct {
		name     string
		fail     func(*mock.Device, *mock.Transport)
		wantCode string
	}{
		{
			name:     "device lost",
			fail:     func(d *mock.Device, _ *mock.Transport) { d.Fail(vocals.NewDeviceError("unplugged")) },
			wantCode: vocals.ErrCodeDeviceUnavailable,
		},
		{
			name: "transport rejected",
			fail: func(_ *mock.Device, tr *mock.Transport) {
				tr.Fail(vocals.NewVocalsError("handshake rejected", vocals.ErrCodeAuthFailed))
			},
			wantCode: vocals.ErrCodeAuthFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capturer := &mock.Capturer{}
			transport := &mock.Transport{}
			client := newTestClient(t, capturer, transport)

			session, err := client.Start(context.Background(), vocals.DefaultAudioConfig())
			if err != nil {
				t.Fatalf("Start: %v", err)
			}

			failed := make(chan error, 1)
			session.OnStateChange(vocals.CreateFailureHandler(func(err error) { failed <- err }))

			device := capturer.LastDevice()
			tt.fail(device, transport)

			select {
			case err := <-failed:
				if code := vocals.ErrorCode(err); code != tt.wantCode {
					t.Errorf("failure code = %q, want %q", code, tt.wantCode)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("session did not fail")
			}
			waitState(t, session, vocals.StateFailed)
			if vocals.ErrorCode(session.Err()) != tt.wantCode {
				t.Errorf("Err() = %v", session.Err())
			}

			session.Stop()
			if session.State() != vocals.StateIdle {
				t.Errorf("state after Stop = %s, want %s", session.State(), vocals.StateIdle)
			}
			if device.IsOpen() || transport.IsConnected() {
				t.Error("resources left open after failure and Stop")
			}
			if device.Emit(make([]int16, 320)) {
				t.Error("device still delivering samples")
			}
		})
	}
}

func TestClient_StopNilSession(t *testing.T) {
	client := newTestClient(t, &mock.Capturer{}, &mock.Transport{})
	client.Stop(nil)
}

func TestSession_StartTransitions(t *testing.T) {
	capturer := &mock.Capturer{}
	transport := &mock.Transport{}
	client := newTestClient(t, capturer, transport)

	session := client.NewSession()
	rec := &stateRecorder{}
	unregister := session.OnStateChange(rec.handle)

	if err := session.Start(context.Background(), vocals.DefaultAudioConfig()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	unregister()
	session.Stop()

	want := []vocals.SessionState{vocals.StateStarting, vocals.StateActive}
	if diff := cmp.Diff(want, rec.get()); diff != "" {
		t.Errorf("transitions (-want +got):\n%s", diff)
	}
	if session.ID() == "" {
		t.Error("empty session ID")
	}
}
