// Package errors classifies failures at the three boundaries of the client:
// local validation, remote transport, and per-frame decoding. Callers use the
// class to tell "rejected before sending" from "failed on the wire" from
// "skip this frame".
package errors

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ClassLocal marks input rejected before any network I/O
	ClassLocal ErrorClass = iota
	// ClassRemote marks transport or peer failures
	ClassRemote
	// ClassFrame marks a single undecodable telemetry frame
	ClassFrame
	// ClassUnknown is returned by Classify for unclassified errors
	ClassUnknown
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ClassLocal:
		return "local"
	case ClassRemote:
		return "remote"
	case ClassFrame:
		return "frame"
	default:
		return "unknown"
	}
}

// Standard error variables
var (
	// Validation
	ErrUnknownCommand  = errors.New("unknown command")
	ErrInvalidParams   = errors.New("invalid params")
	ErrInvalidEndpoint = errors.New("invalid endpoint")
	ErrInvalidConfig   = errors.New("invalid configuration")

	// Command channel
	ErrConnectFailed = errors.New("connect failed")
	ErrReplyTimeout  = errors.New("reply timeout")
	ErrChannelBroken = errors.New("command channel broken")
	ErrChannelClosed = errors.New("command channel closed")

	// Stream lifecycle
	ErrAlreadyStreaming = errors.New("stream already active")

	// Frame decoding
	ErrFrameTooShort  = errors.New("frame shorter than count header")
	ErrFrameTruncated = errors.New("frame shorter than declared sample count")
	ErrEmptyFrame     = errors.New("empty frame")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Component == "" {
		return ce.Err.Error()
	}
	return fmt.Sprintf("%s.%s: %v", ce.Component, ce.Operation, ce.Err)
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

func wrap(class ErrorClass, err error, component, operation string) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: class, Err: err, Component: component, Operation: operation}
}

// WrapLocal wraps an error as rejected before any I/O
func WrapLocal(err error, component, operation string) error {
	return wrap(ClassLocal, err, component, operation)
}

// WrapRemote wraps an error as a transport or peer failure
func WrapRemote(err error, component, operation string) error {
	return wrap(ClassRemote, err, component, operation)
}

// WrapFrame wraps an error as a per-frame decode failure
func WrapFrame(err error, component, operation string) error {
	return wrap(ClassFrame, err, component, operation)
}

// Classify returns the class of the outermost classified error in the chain
func Classify(err error) ErrorClass {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	return ClassUnknown
}

// IsLocal checks if an error was raised before any network I/O
func IsLocal(err error) bool {
	return err != nil && Classify(err) == ClassLocal
}

// IsRemote checks if an error came from the transport or the peer
func IsRemote(err error) bool {
	return err != nil && Classify(err) == ClassRemote
}

// IsFrame checks if an error concerns a single telemetry frame
func IsFrame(err error) bool {
	return err != nil && Classify(err) == ClassFrame
}

// Is and As re-export the standard helpers so callers need a single import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target interface{}) bool { return errors.As(err, target) }
