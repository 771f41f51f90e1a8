package vocals

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
)

// FrameEncoder slices buffered samples into fixed-size frames and serializes
// them as: uint32 sequence (little-endian) followed by int16 PCM (little-endian).
type FrameEncoder struct {
	frameSamples int

	mu        sync.Mutex
	next      uint32
	exhausted bool
	encoded   uint64
}

// NewFrameEncoder creates an encoder for frames of frameSize samples per channel.
func NewFrameEncoder(channels, frameSize int) *FrameEncoder {
	return &FrameEncoder{frameSamples: channels * frameSize}
}

// FrameSamples returns the interleaved sample count of one frame.
func (e *FrameEncoder) FrameSamples() int {
	return e.frameSamples
}

// Encoded returns the number of frames produced so far.
func (e *FrameEncoder) Encoded() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.encoded
}

// Encode assigns the next sequence number to samples and returns the frame
// with its wire bytes. Once sequence 2^32-1 has been used every further call
// fails with an EncodingFault.
func (e *FrameEncoder) Encode(samples []int16) (Frame, []byte, error) {
	if len(samples) != e.frameSamples {
		return Frame{}, nil, NewEncodingError(fmt.Sprintf("frame has %d samples, want %d", len(samples), e.frameSamples))
	}

	e.mu.Lock()
	if e.exhausted {
		e.mu.Unlock()
		return Frame{}, nil, NewEncodingError("sequence number space exhausted").AddDetail("frames", e.encoded)
	}
	seq := e.next
	if seq == math.MaxUint32 {
		e.exhausted = true
	} else {
		e.next++
	}
	e.encoded++
	e.mu.Unlock()

	frame := Frame{Sequence: seq, Samples: samples}
	return frame, MarshalFrame(frame), nil
}

// Next pops one frame worth of samples from buf and encodes it. It returns
// ErrInsufficientData unchanged when buf holds less than a frame.
func (e *FrameEncoder) Next(buf *FrameBuffer) (Frame, []byte, error) {
	samples, err := buf.Pop(e.frameSamples)
	if err != nil {
		return Frame{}, nil, err
	}
	return e.Encode(samples)
}

// Run drains buf until ctx is done, handing each frame to emit. It parks on
// the buffer's notify channel while less than a frame is available. The only
// error it returns is an EncodingFault. Samples still buffered when ctx is
// done are left in buf.
func (e *FrameEncoder) Run(ctx context.Context, buf *FrameBuffer, emit func(Frame, []byte)) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		frame, data, err := e.Next(buf)
		switch {
		case err == nil:
			emit(frame, data)
			continue
		case errors.Is(err, ErrInsufficientData):
		default:
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-buf.Notify():
		}
	}
}

// MarshalFrame serializes a frame to its wire layout.
func MarshalFrame(f Frame) []byte {
	out := make([]byte, sequenceBytes+len(f.Samples)*sampleBytes)
	binary.LittleEndian.PutUint32(out, f.Sequence)
	for i, s := range f.Samples {
		binary.LittleEndian.PutUint16(out[sequenceBytes+i*sampleBytes:], uint16(s))
	}
	return out
}

// DecodeFrame parses a wire frame. frameSamples, when positive, is the exact
// interleaved sample count expected; zero accepts any even payload.
func DecodeFrame(data []byte, frameSamples int) (Frame, error) {
	if len(data) < sequenceBytes {
		return Frame{}, fmt.Errorf("frame too short: %d bytes", len(data))
	}
	payload := data[sequenceBytes:]
	if len(payload)%sampleBytes != 0 {
		return Frame{}, fmt.Errorf("odd PCM payload length %d", len(payload))
	}
	n := len(payload) / sampleBytes
	if frameSamples > 0 && n != frameSamples {
		return Frame{}, fmt.Errorf("frame has %d samples, want %d", n, frameSamples)
	}

	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(payload[i*sampleBytes:]))
	}
	return Frame{
		Sequence: binary.LittleEndian.Uint32(data),
		Samples:  samples,
	}, nil
}
