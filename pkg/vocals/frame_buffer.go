package vocals

import "sync"

const minBufferCapacity = 1024

// SampleSink receives captured sample blocks. Implementations must not block.
type SampleSink interface {
	Push(samples []int16)
}

// FrameBuffer is a ring buffer of interleaved samples between the capture
// callback and the encoder. It grows up to a ceiling; beyond that the oldest
// unread samples are overwritten and counted as dropped.
type FrameBuffer struct {
	mu      sync.Mutex
	buf     []int16
	head    int
	count   int
	ceiling int
	dropped uint64
	notify  chan struct{}
}

// NewFrameBuffer creates a buffer that holds at most ceiling samples.
func NewFrameBuffer(ceiling int) *FrameBuffer {
	if ceiling < 1 {
		ceiling = 1
	}
	initial := minBufferCapacity
	if initial > ceiling {
		initial = ceiling
	}
	return &FrameBuffer{
		buf:     make([]int16, initial),
		ceiling: ceiling,
		notify:  make(chan struct{}, 1),
	}
}

// Push appends samples at the tail. It never blocks on readers.
func (fb *FrameBuffer) Push(samples []int16) {
	if len(samples) == 0 {
		return
	}

	fb.mu.Lock()
	if len(samples) > fb.ceiling {
		fb.dropped += uint64(len(samples) - fb.ceiling)
		samples = samples[len(samples)-fb.ceiling:]
	}
	need := fb.count + len(samples)
	if need > len(fb.buf) {
		fb.grow(need)
	}
	if over := fb.count + len(samples) - len(fb.buf); over > 0 {
		fb.head = (fb.head + over) % len(fb.buf)
		fb.count -= over
		fb.dropped += uint64(over)
	}
	tail := (fb.head + fb.count) % len(fb.buf)
	n := copy(fb.buf[tail:], samples)
	copy(fb.buf, samples[n:])
	fb.count += len(samples)
	fb.mu.Unlock()

	select {
	case fb.notify <- struct{}{}:
	default:
	}
}

// grow doubles storage until need fits or the ceiling is reached. Caller holds mu.
func (fb *FrameBuffer) grow(need int) {
	size := len(fb.buf)
	if size >= fb.ceiling {
		return
	}
	for size < need && size < fb.ceiling {
		size *= 2
	}
	if size > fb.ceiling {
		size = fb.ceiling
	}
	next := make([]int16, size)
	fb.copyOut(next, fb.count)
	fb.buf = next
	fb.head = 0
}

// copyOut copies the first n buffered samples into dst without consuming them.
func (fb *FrameBuffer) copyOut(dst []int16, n int) {
	first := len(fb.buf) - fb.head
	if first > n {
		first = n
	}
	copy(dst, fb.buf[fb.head:fb.head+first])
	copy(dst[first:n], fb.buf[:n-first])
}

// Pop removes and returns exactly n samples from the head. If fewer than n
// are buffered it returns ErrInsufficientData and leaves the buffer untouched.
func (fb *FrameBuffer) Pop(n int) ([]int16, error) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if n <= 0 || fb.count < n {
		return nil, ErrInsufficientData
	}
	out := make([]int16, n)
	fb.copyOut(out, n)
	fb.head = (fb.head + n) % len(fb.buf)
	fb.count -= n
	return out, nil
}

// Notify returns a channel that receives a value after pushes. It coalesces:
// several pushes between reads produce a single wake-up.
func (fb *FrameBuffer) Notify() <-chan struct{} {
	return fb.notify
}

// Len returns the number of buffered samples.
func (fb *FrameBuffer) Len() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.count
}

// Cap returns the ceiling in samples.
func (fb *FrameBuffer) Cap() int {
	return fb.ceiling
}

// Dropped returns the number of samples discarded on overrun.
func (fb *FrameBuffer) Dropped() uint64 {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.dropped
}

// Reset discards all buffered samples. The drop counter is kept.
func (fb *FrameBuffer) Reset() {
	fb.mu.Lock()
	fb.head = 0
	fb.count = 0
	fb.mu.Unlock()
}
