// Package process attaches to a running process and moves typed values, strings
// and raw bytes in and out of its address space.
package process

import (
	"errors"
	"fmt"
)

var (
	// ErrAddressNotMapped is returned when a memory address is not found within any mapped region of a process.
	ErrAddressNotMapped = errors.New("address not mapped")

	// ErrProcessNotOpen is returned when an operation requiring an open process is attempted
	// before the process has been successfully opened or after it has been closed.
	ErrProcessNotOpen = errors.New("process not open")

	ErrNullAddress     = errors.New("null address")
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrEmptyPointerChain is returned by Resolve when no offsets are given.
	ErrEmptyPointerChain = fmt.Errorf("%w: pointer chain needs at least one offset", ErrInvalidArgument)

	// ErrShortTransfer marks a native transfer that moved fewer bytes than requested.
	ErrShortTransfer = errors.New("short transfer")

	ErrModuleUnavailable = errors.New("main module unavailable")
	ErrProcessExited     = errors.New("process has exited")
	ErrAllocFailed       = errors.New("couldn't allocate memory")
	ErrFreeFailed        = errors.New("couldn't free memory")
	ErrSignatureNotFound = errors.New("signature not found")
	ErrUnsupported       = errors.ErrUnsupported
)

// OpenError reports a process that could not be attached to
type OpenError struct {
	PID  ProcessID
	Name string
	Err  error
}

func (e *OpenError) Error() string {
	target := fmt.Sprintf("pid %d", e.PID)
	if e.Name != "" {
		target = fmt.Sprintf("%q", e.Name)
		if e.PID != 0 {
			target += fmt.Sprintf(" (pid %d)", e.PID)
		}
	}
	if e.Err == nil {
		return "couldn't open process " + target
	}
	return fmt.Sprintf("couldn't open process %s: %v", target, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// ReadError reports a read that did not return exactly Size bytes
type ReadError struct {
	Address ProcessMemoryAddress
	Size    ProcessMemorySize
	Err     error
}

func (e *ReadError) Error() string {
	msg := fmt.Sprintf("couldn't read %d bytes from 0x%X", uint(e.Size), uint64(e.Address))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError reports a write that did not transfer exactly Size bytes.
// Some bytes may have reached the target anyway.
type WriteError struct {
	Address ProcessMemoryAddress
	Size    ProcessMemorySize
	Err     error
}

func (e *WriteError) Error() string {
	msg := fmt.Sprintf("couldn't write %d bytes to 0x%X", uint(e.Size), uint64(e.Address))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *WriteError) Unwrap() error { return e.Err }

// OutOfRangeError reports a relative address beyond the main module
type OutOfRangeError struct {
	Address ProcessMemoryAddress
	Bound   ProcessMemorySize
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("relative address 0x%X greater than main module size 0x%X", uint64(e.Address), uint(e.Bound))
}
