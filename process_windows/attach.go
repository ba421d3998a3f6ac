//go:build windows

package process_windows

import (
	"errors"
	"os"

	"remotemem/process"
)

// Attach opens pid and wraps it for typed access
func Attach(pid process.ProcessID, opts ...process.Option) (*process.RemoteMemory, error) {
	p, err := NewWithPID(pid)
	if err != nil {
		return nil, err
	}

	m, err := process.NewRemoteMemory(p, opts...)
	if err != nil {
		p.Close()
		return nil, err
	}
	return m, nil
}

// AttachProcess attaches to a process started or found through the os package
func AttachProcess(proc *os.Process, opts ...process.Option) (*process.RemoteMemory, error) {
	if proc == nil || proc.Pid <= 0 {
		return nil, &process.OpenError{Err: process.ErrInvalidArgument}
	}
	return Attach(process.ProcessID(proc.Pid), opts...)
}

// AttachByName attaches to the index-th process, ordered by PID, named name
func AttachByName(name string, index int, opts ...process.Option) (*process.RemoteMemory, error) {
	procs, err := ListByName(name)
	if err != nil {
		return nil, &process.OpenError{Name: name, Err: err}
	}
	if index < 0 || index >= len(procs) {
		return nil, &process.OpenError{Name: name, Err: os.ErrNotExist}
	}

	m, err := Attach(procs[index].PID, opts...)
	if err != nil {
		var oe *process.OpenError
		if errors.As(err, &oe) {
			oe.Name = name
		}
		return nil, err
	}
	return m, nil
}
