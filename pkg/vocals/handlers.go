package vocals

import (
	"sync"
	"time"
)

// Factory functions for common handlers

// CreateStateLoggingHandler logs every session transition, and the failure
// that caused it when there is one.
func CreateStateLoggingHandler(logger *VocalsLogger) StateHandler {
	return func(state SessionState, err error) {
		entry := logger.WithField("state", string(state))
		if err != nil {
			entry.WithError(err).Error("Session state changed")
			return
		}
		entry.Info("Session state changed")
	}
}

// CreateFailureHandler calls callback once per transition into Failed.
func CreateFailureHandler(callback func(error)) StateHandler {
	return func(state SessionState, err error) {
		if state == StateFailed && callback != nil {
			callback(err)
		}
	}
}

func CreateErrorLoggingHandler(logger *VocalsLogger) ErrorHandler {
	return func(err *VocalsError) {
		if err != nil {
			logger.LogError(err)
		}
	}
}

func CreateConnectionStatusHandler(logger *VocalsLogger, callback func(ConnectionState)) ConnectionHandler {
	return func(state ConnectionState) {
		logger.LogConnectionEvent("state_changed", state, nil)
		if callback != nil {
			callback(state)
		}
	}
}

// CreateLevelMonitor reports RMS and peak for every received frame.
func CreateLevelMonitor(callback func(rms, peak float64)) FrameHandler {
	return func(frame Frame) {
		if len(frame.Samples) == 0 {
			return
		}
		callback(RMS(frame.Samples), Peak(frame.Samples))
	}
}

// CreateSilenceDetector calls callback once the RMS level has stayed below
// threshold for silenceDuration of audio. Duration is measured from frame
// content, not wall clock, so it works on replayed streams too.
func CreateSilenceDetector(threshold float64, sampleRate, channels int, silenceDuration time.Duration, callback func()) FrameHandler {
	var mu sync.Mutex
	var silent time.Duration

	return func(frame Frame) {
		mu.Lock()
		defer mu.Unlock()

		if len(frame.Samples) == 0 || sampleRate <= 0 || channels <= 0 {
			return
		}
		frameDuration := time.Duration(len(frame.Samples)/channels) * time.Second / time.Duration(sampleRate)

		if RMS(frame.Samples) >= threshold {
			silent = 0
			return
		}
		silent += frameDuration
		if silent >= silenceDuration {
			callback()
			silent = 0
		}
	}
}

// CreateGapDetector reports sequence discontinuities: missing is the number
// of frames skipped between last and frame.Sequence.
func CreateGapDetector(callback func(last, next uint32, missing uint32)) FrameHandler {
	var mu sync.Mutex
	var last uint32
	var seen bool

	return func(frame Frame) {
		mu.Lock()
		defer mu.Unlock()

		if seen && frame.Sequence != last+1 && frame.Sequence > last {
			callback(last, frame.Sequence, frame.Sequence-last-1)
		}
		if !seen || frame.Sequence > last {
			last = frame.Sequence
		}
		seen = true
	}
}

func ChainStateHandlers(handlers ...StateHandler) StateHandler {
	return func(state SessionState, err error) {
		for _, h := range handlers {
			h(state, err)
		}
	}
}

func ChainConnectionHandlers(handlers ...ConnectionHandler) ConnectionHandler {
	return func(state ConnectionState) {
		for _, h := range handlers {
			h(state)
		}
	}
}

func ChainFrameHandlers(handlers ...FrameHandler) FrameHandler {
	return func(frame Frame) {
		for _, h := range handlers {
			h(frame)
		}
	}
}
