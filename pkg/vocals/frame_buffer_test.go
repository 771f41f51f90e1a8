package vocals

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func ramp(start, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(start + i)
	}
	return out
}

func TestFrameBuffer_ExactFramePops(t *testing.T) {
	fb := NewFrameBuffer(16000 * 2)
	in := ramp(0, 320)
	fb.Push(in)

	got, err := fb.Pop(320)
	if err != nil {
		t.Fatalf("Pop(320): %v", err)
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("popped samples mismatch (-want +got):\n%s", diff)
	}
	if n := fb.Len(); n != 0 {
		t.Errorf("Len() after pop = %d, want 0", n)
	}
}

func TestFrameBuffer_InsufficientDataLeavesBuffer(t *testing.T) {
	fb := NewFrameBuffer(16000 * 2)
	in := ramp(100, 319)
	fb.Push(in)

	if _, err := fb.Pop(320); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("Pop(320) error = %v, want ErrInsufficientData", err)
	}
	if n := fb.Len(); n != 319 {
		t.Fatalf("Len() = %d, want 319", n)
	}
	got, err := fb.Pop(319)
	if err != nil {
		t.Fatalf("Pop(319): %v", err)
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("retained samples changed (-want +got):\n%s", diff)
	}
}

func TestFrameBuffer_VariableBlocksKeepOrder(t *testing.T) {
	fb := NewFrameBuffer(10000)
	blocks := []int{7, 300, 1, 513, 99, 2048}
	total := 0
	for _, n := range blocks {
		fb.Push(ramp(total, n))
		total += n
	}

	var got []int16
	for {
		s, err := fb.Pop(320)
		if err != nil {
			break
		}
		got = append(got, s...)
	}
	want := ramp(0, len(got))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("samples out of order (-want +got):\n%s", diff)
	}
	if fb.Len() != total-len(got) {
		t.Errorf("Len() = %d, want %d", fb.Len(), total-len(got))
	}
}

func TestFrameBuffer_GrowsPastInitialCapacity(t *testing.T) {
	fb := NewFrameBuffer(8192)
	fb.Push(ramp(0, 5000))

	if fb.Dropped() != 0 {
		t.Fatalf("Dropped() = %d, want 0 below the ceiling", fb.Dropped())
	}
	got, err := fb.Pop(5000)
	if err != nil {
		t.Fatalf("Pop(5000): %v", err)
	}
	if diff := cmp.Diff(ramp(0, 5000), got); diff != "" {
		t.Errorf("mismatch after growth (-want +got):\n%s", diff)
	}
}

func TestFrameBuffer_OverrunDropsOldest(t *testing.T) {
	fb := NewFrameBuffer(1000)
	fb.Push(ramp(0, 800))
	fb.Push(ramp(800, 500))

	if got := fb.Dropped(); got != 300 {
		t.Errorf("Dropped() = %d, want 300", got)
	}
	if got := fb.Len(); got != 1000 {
		t.Errorf("Len() = %d, want 1000", got)
	}
	got, err := fb.Pop(1000)
	if err != nil {
		t.Fatalf("Pop(1000): %v", err)
	}
	if diff := cmp.Diff(ramp(300, 1000), got); diff != "" {
		t.Errorf("expected newest samples retained (-want +got):\n%s", diff)
	}
}

func TestFrameBuffer_PushLargerThanCeiling(t *testing.T) {
	fb := NewFrameBuffer(100)
	fb.Push(ramp(0, 250))

	if got := fb.Dropped(); got != 150 {
		t.Errorf("Dropped() = %d, want 150", got)
	}
	got, err := fb.Pop(100)
	if err != nil {
		t.Fatalf("Pop(100): %v", err)
	}
	if diff := cmp.Diff(ramp(150, 100), got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestFrameBuffer_WrapAround(t *testing.T) {
	fb := NewFrameBuffer(1024)
	next := 0
	popped := 0
	for i := 0; i < 20; i++ {
		fb.Push(ramp(next, 300))
		next += 300
		for {
			s, err := fb.Pop(320)
			if err != nil {
				break
			}
			if diff := cmp.Diff(ramp(popped, 320), s); diff != "" {
				t.Fatalf("frame %d mismatch (-want +got):\n%s", popped/320, diff)
			}
			popped += 320
		}
	}
	if fb.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", fb.Dropped())
	}
}

func TestFrameBuffer_NotifyCoalesces(t *testing.T) {
	fb := NewFrameBuffer(1024)
	fb.Push(ramp(0, 10))
	fb.Push(ramp(10, 10))

	select {
	case <-fb.Notify():
	default:
		t.Fatal("expected a pending notification")
	}
	select {
	case <-fb.Notify():
		t.Fatal("expected notifications to coalesce")
	default:
	}
}

func TestFrameBuffer_ResetKeepsDropCount(t *testing.T) {
	fb := NewFrameBuffer(10)
	fb.Push(ramp(0, 15))
	fb.Reset()

	if fb.Len() != 0 {
		t.Errorf("Len() = %d, want 0", fb.Len())
	}
	if fb.Dropped() != 5 {
		t.Errorf("Dropped() = %d, want 5", fb.Dropped())
	}
}
