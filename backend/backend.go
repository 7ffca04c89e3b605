package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not registered.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrUnsupported is returned by RequestDevice when the descriptor asks for
	// a feature or limit the backend cannot provide.
	ErrUnsupported = errors.New("backend: unsupported device descriptor")

	// ErrDeviceLost is returned by device operations after the device was lost.
	ErrDeviceLost = errors.New("backend: device lost")

	// ErrOutOfMemory is returned when a device reports memory exhaustion
	// outside of an error scope.
	ErrOutOfMemory = errors.New("backend: out of memory")

	// ErrScopeUnderflow is returned by PopErrorScope when no scope is open.
	ErrScopeUnderflow = errors.New("backend: error scope stack is empty")

	// ErrClosed is returned when a closed backend is used.
	ErrClosed = errors.New("backend: closed")
)

// ErrorFilter selects which errors an error scope captures.
type ErrorFilter uint8

const (
	// FilterValidation captures validation errors.
	FilterValidation ErrorFilter = iota
	// FilterOutOfMemory captures allocation failures.
	FilterOutOfMemory
	// FilterInternal captures implementation errors.
	FilterInternal
)

func (f ErrorFilter) String() string {
	switch f {
	case FilterValidation:
		return "validation"
	case FilterOutOfMemory:
		return "out-of-memory"
	case FilterInternal:
		return "internal"
	default:
		return fmt.Sprintf("ErrorFilter(%d)", uint8(f))
	}
}

// GPUError is an error captured by an error scope.
type GPUError struct {
	Filter  ErrorFilter
	Message string
}

// Error implements the error interface.
func (e *GPUError) Error() string {
	return fmt.Sprintf("GPU %s error: %s", e.Filter, e.Message)
}

// LostReason tells why a device was lost.
type LostReason uint8

const (
	// LostReasonUnknown is a loss the application did not ask for.
	LostReasonUnknown LostReason = iota
	// LostReasonDestroyed is a loss caused by Device.Destroy.
	LostReasonDestroyed
)

func (r LostReason) String() string {
	switch r {
	case LostReasonUnknown:
		return "unknown"
	case LostReasonDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("LostReason(%d)", uint8(r))
	}
}

// LostInfo describes a device loss.
type LostInfo struct {
	Reason  LostReason
	Message string
}

func (i LostInfo) String() string {
	if i.Message == "" {
		return i.Reason.String()
	}
	return i.Reason.String() + ": " + i.Message
}

// Backend creates devices. A Backend is safe for concurrent use.
type Backend interface {
	// Name returns the backend identifier (e.g. "null", "wgpu").
	Name() string

	// RequestDevice creates a device satisfying desc. A nil desc asks for a
	// device with default features and limits. When desc cannot be satisfied
	// the error wraps ErrUnsupported.
	RequestDevice(ctx context.Context, desc *gputypes.DeviceDescriptor) (Device, error)

	// Close releases backend resources. Devices must be destroyed first.
	Close()
}

// Device is a live device as seen by the pool and by test bodies.
// The embedded DeviceProvider exposes native handles to test code.
type Device interface {
	gpucontext.DeviceProvider

	// Label returns the debug label the device was created with.
	Label() string

	// Features returns the features enabled on the device.
	Features() gputypes.Features

	// Limits returns the limits of the device.
	Limits() gputypes.Limits

	// PushErrorScope opens an error scope capturing errors of filter.
	PushErrorScope(filter ErrorFilter)

	// PopErrorScope closes the innermost scope and returns the first error
	// it captured, or nil. It fails with ErrScopeUnderflow when no scope
	// is open.
	PopErrorScope(ctx context.Context) (*GPUError, error)

	// Flush waits for submitted work to complete. It returns an error
	// wrapping ErrDeviceLost if the device was lost.
	Flush(ctx context.Context) error

	// Lost returns a channel that is closed when the device is lost.
	Lost() <-chan struct{}

	// LostInfo returns the loss details once Lost is closed.
	LostInfo() (LostInfo, bool)

	// Destroy releases the device. The device is lost with
	// LostReasonDestroyed. Destroy is idempotent.
	Destroy()
}
