package vocals

import (
	"errors"
	"strings"
	"time"
)

// Error codes as constants
const (
	ErrCodeInvalidConfig        = "INVALID_CONFIG"
	ErrCodeDeviceUnavailable    = "DEVICE_UNAVAILABLE"
	ErrCodeConnectionFailed     = "CONNECTION_FAILED"
	ErrCodeTransportInterrupted = "TRANSPORT_INTERRUPTED"
	ErrCodeEncodingFault        = "ENCODING_FAULT"
	ErrCodeAlreadyActive        = "ALREADY_ACTIVE"
	ErrCodeSessionFailed        = "SESSION_FAILED"
	ErrCodeAuthFailed           = "AUTH_FAILED"
)

// Sentinels for errors.Is. A *VocalsError matches any sentinel with the same code.
var (
	ErrInvalidConfig        = &VocalsError{Code: ErrCodeInvalidConfig, Message: "invalid config"}
	ErrDeviceUnavailable    = &VocalsError{Code: ErrCodeDeviceUnavailable, Message: "audio device unavailable"}
	ErrConnectionFailed     = &VocalsError{Code: ErrCodeConnectionFailed, Message: "connection failed"}
	ErrTransportInterrupted = &VocalsError{Code: ErrCodeTransportInterrupted, Message: "transport interrupted"}
	ErrEncodingFault        = &VocalsError{Code: ErrCodeEncodingFault, Message: "encoding fault"}
	ErrAlreadyActive        = &VocalsError{Code: ErrCodeAlreadyActive, Message: "session already active"}
	ErrSessionFailed        = &VocalsError{Code: ErrCodeSessionFailed, Message: "session failed; stop it before starting again"}
)

// ErrInsufficientData is returned by FrameBuffer.Pop when fewer samples than
// requested are buffered.
var ErrInsufficientData = errors.New("insufficient data")

// VocalsError carries a stable code alongside the human readable message.
type VocalsError struct {
	Message   string
	Code      string
	Timestamp time.Time
	Details   map[string]interface{}
	err       error
}

func NewVocalsError(message, code string) *VocalsError {
	return &VocalsError{
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

func (e *VocalsError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Code)
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.err != nil && e.err.Error() != e.Message {
		sb.WriteString(": ")
		sb.WriteString(e.err.Error())
	}
	return sb.String()
}

func (e *VocalsError) Unwrap() error {
	return e.err
}

// Is matches on code so callers can compare against the package sentinels.
func (e *VocalsError) Is(target error) bool {
	var t *VocalsError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// AddDetail attaches structured context that ends up in the error log line.
func (e *VocalsError) AddDetail(key string, value interface{}) *VocalsError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// GetDetail returns a detail previously attached with AddDetail.
func (e *VocalsError) GetDetail(key string) (interface{}, bool) {
	if e.Details == nil {
		return nil, false
	}
	value, exists := e.Details[key]
	return value, exists
}

// Specific error creators with common codes
func NewConfigError(message string) *VocalsError {
	return NewVocalsError(message, ErrCodeInvalidConfig)
}

func NewDeviceError(message string) *VocalsError {
	return NewVocalsError(message, ErrCodeDeviceUnavailable)
}

func NewConnectionError(message string) *VocalsError {
	return NewVocalsError(message, ErrCodeConnectionFailed)
}

func NewEncodingError(message string) *VocalsError {
	return NewVocalsError(message, ErrCodeEncodingFault)
}

// WrapError wraps err under code. An error that already is a *VocalsError is
// returned unchanged so the original code survives.
func WrapError(err error, code string) *VocalsError {
	if err == nil {
		return nil
	}
	var vErr *VocalsError
	if errors.As(err, &vErr) {
		return vErr
	}
	vErr = NewVocalsError(err.Error(), code)
	vErr.err = err
	return vErr
}

// ErrorCode extracts the code of err, or "" if err is not a *VocalsError.
func ErrorCode(err error) string {
	var vErr *VocalsError
	if errors.As(err, &vErr) {
		return vErr.Code
	}
	return ""
}

// IsRetryableError reports whether the condition is handled by reconnecting.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrTransportInterrupted)
}

// IsCriticalError reports whether err moves a session to Failed.
func IsCriticalError(err error) bool {
	switch ErrorCode(err) {
	case ErrCodeDeviceUnavailable, ErrCodeConnectionFailed, ErrCodeEncodingFault, ErrCodeAuthFailed:
		return true
	}
	return false
}

// wrapWithCode wraps err under code even if err already carries another code.
func wrapWithCode(err error, code, message string) *VocalsError {
	vErr := NewVocalsError(message, code)
	vErr.err = err
	return vErr
}
