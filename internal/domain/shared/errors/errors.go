// Package errors defines the bridge's RPC error taxonomy. Every failure a
// client can observe is one of these kinds, so "tool disabled", "tool
// missing", "host not ready" and "declined by user" stay distinguishable.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies a bridge error.
type ErrorKind int

const (
	// KindNotFound indicates a tool, resource or method that does not exist.
	KindNotFound ErrorKind = iota
	// KindInvalidInput indicates a malformed or incomplete call payload.
	KindInvalidInput
	// KindNotEnabled indicates a tool that exists but is outside the
	// session's enabled set.
	KindNotEnabled
	// KindNotReady indicates the runtime session/credential context has not
	// been initialized yet.
	KindNotReady
	// KindCancelled indicates the user declined a confirmation prompt.
	KindCancelled
	// KindInternal indicates a tool execution failure or other internal error.
	KindInternal
)

// BridgeError represents an error surfaced to clients through the RPC error
// object. Data carries auxiliary diagnostics (original error text, stack).
type BridgeError struct {
	Kind    ErrorKind
	Message string
	Data    interface{}
}

// Error returns the error message
func (e *BridgeError) Error() string {
	return e.Message
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, data interface{}) *BridgeError {
	return &BridgeError{Kind: KindNotFound, Message: message, Data: data}
}

// NewInvalidInputError creates a new invalid input error
func NewInvalidInputError(message string, data interface{}) *BridgeError {
	return &BridgeError{Kind: KindInvalidInput, Message: message, Data: data}
}

// NewNotEnabledError creates a new tool-not-enabled error
func NewNotEnabledError(message string, data interface{}) *BridgeError {
	return &BridgeError{Kind: KindNotEnabled, Message: message, Data: data}
}

// NewNotReadyError creates a new not-ready error
func NewNotReadyError(message string, data interface{}) *BridgeError {
	return &BridgeError{Kind: KindNotReady, Message: message, Data: data}
}

// NewCancelledError creates a new cancelled-by-user error
func NewCancelledError(message string, data interface{}) *BridgeError {
	return &BridgeError{Kind: KindCancelled, Message: message, Data: data}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, data interface{}) *BridgeError {
	return &BridgeError{Kind: KindInternal, Message: message, Data: data}
}

// Wrap wraps an error with additional context, preserving its kind when it
// already is a BridgeError.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	var bridgeErr *BridgeError
	if errors.As(err, &bridgeErr) {
		return &BridgeError{
			Kind:    bridgeErr.Kind,
			Message: fmt.Sprintf("%s: %s", message, bridgeErr.Message),
			Data:    bridgeErr.Data,
		}
	}

	return &BridgeError{
		Kind:    KindInternal,
		Message: fmt.Sprintf("%s: %v", message, err),
	}
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return kindOf(err) == KindNotFound
}

// IsInvalidInput checks if an error is an invalid input error
func IsInvalidInput(err error) bool {
	return kindOf(err) == KindInvalidInput
}

// IsNotEnabled checks if an error is a tool-not-enabled error
func IsNotEnabled(err error) bool {
	return kindOf(err) == KindNotEnabled
}

// IsNotReady checks if an error is a not-ready error
func IsNotReady(err error) bool {
	return kindOf(err) == KindNotReady
}

// IsCancelled checks if an error is a cancelled-by-user error
func IsCancelled(err error) bool {
	return kindOf(err) == KindCancelled
}

// IsInternal checks if an error is an internal error
func IsInternal(err error) bool {
	return kindOf(err) == KindInternal
}

func kindOf(err error) ErrorKind {
	var bridgeErr *BridgeError
	if errors.As(err, &bridgeErr) {
		return bridgeErr.Kind
	}
	return ErrorKind(-1)
}
