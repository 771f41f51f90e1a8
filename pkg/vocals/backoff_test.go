package vocals

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestBackoff_ExponentialWithCap(t *testing.T) {
	b := NewBackoff(DefaultEngineConfig())
	b.Jitter = 0

	var got []time.Duration
	for i := 0; i < 8; i++ {
		got = append(got, b.Next())
	}
	want := []time.Duration{
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		3200 * time.Millisecond,
		5 * time.Second,
		5 * time.Second,
		5 * time.Second,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("delays mismatch (-want +got):\n%s", diff)
	}

	b.Reset()
	if d := b.Next(); d != 200*time.Millisecond {
		t.Errorf("Next() after Reset = %v, want 200ms", d)
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	b := NewBackoff(DefaultEngineConfig())

	for _, r := range []float64{0, 1} {
		b.Reset()
		b.rand = func() float64 { return r }
		d := b.Next()
		lo := time.Duration(float64(200*time.Millisecond) * 0.8)
		hi := time.Duration(float64(200*time.Millisecond) * 1.2)
		if d < lo || d > hi {
			t.Errorf("rand=%v: delay %v outside [%v, %v]", r, d, lo, hi)
		}
	}
}

func TestBackoff_JitterNeverExceedsMax(t *testing.T) {
	b := NewBackoff(DefaultEngineConfig())
	b.rand = func() float64 { return 1 }
	for i := 0; i < 20; i++ {
		if d := b.Next(); d > b.Max {
			t.Fatalf("delay %v exceeds max %v", d, b.Max)
		}
	}
}

func TestNewBackoff_FallsBackOnInvalidSettings(t *testing.T) {
	tests := []struct {
		name    string
		initial time.Duration
		max     time.Duration
		factor  float64
		want    []time.Duration
	}{
		{"zero initial", 0, 5 * time.Second, 2, []time.Duration{200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}},
		{"zero max", 100 * time.Millisecond, 0, 2, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}},
		{"both zero", 0, 0, 2, []time.Duration{200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}},
		{"shrinking factor", 100 * time.Millisecond, time.Second, 0.5, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}},
		{"max below initial", time.Second, 100 * time.Millisecond, 2, []time.Duration{time.Second, time.Second, time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultEngineConfig()
			cfg.InitialBackoff = tt.initial
			cfg.MaxBackoff = tt.max
			cfg.BackoffFactor = tt.factor
			cfg.BackoffJitter = 0

			b := NewBackoff(cfg)
			var got []time.Duration
			for range tt.want {
				got = append(got, b.Next())
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("delays mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
