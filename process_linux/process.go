//go:build linux

package process_linux

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"

	"remotemem/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/unix"
)

// LinuxProcess implements the process.Process interface for Linux systems
type LinuxProcess struct {
	pid    process.ProcessID
	handle *process.Handle
	pidfd  bool
	log    *logger.Logger
	allocs map[process.ProcessMemoryAddress]uint64
	site   uintptr // cached syscall instruction address, see syscallSite
	mu     sync.Mutex
}

var _ process.Process = (*LinuxProcess)(nil)

// New creates a new LinuxProcess instance
func New() *LinuxProcess {
	return &LinuxProcess{
		log:    logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open")),
		allocs: make(map[process.ProcessMemoryAddress]uint64),
	}
}

// NewWithPID creates a new LinuxProcess instance and opens it with the given PID
func NewWithPID(pid process.ProcessID) (*LinuxProcess, error) {
	p := New()
	if err := p.Open(pid); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *LinuxProcess) Open(pid process.ProcessID) error {
	if pid <= 0 {
		return &process.OpenError{PID: pid, Err: process.ErrInvalidArgument}
	}
	if !procExists(int(pid)) {
		return &process.OpenError{PID: pid, Err: os.ErrNotExist}
	}
	if state, err := readState(pid); err == nil && state.Exited() {
		return &process.OpenError{PID: pid, Err: process.ErrProcessExited}
	}

	handle, pidfd, err := openPidfd(pid)
	if err != nil {
		return &process.OpenError{PID: pid, Err: err}
	}

	p.mu.Lock()
	old := p.handle
	p.pid = pid
	p.handle = handle
	p.pidfd = pidfd
	p.allocs = make(map[process.ProcessMemoryAddress]uint64)
	p.site = 0
	p.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", pid)))
	p.mu.Unlock()

	old.Close()
	p.log.Infoln("Process opened")

	return nil
}

// openPidfd pins the target with a pidfd. Kernels before 5.3 have none, the
// pid itself then serves as the handle value and needs no release.
func openPidfd(pid process.ProcessID) (*process.Handle, bool, error) {
	fd, err := unix.PidfdOpen(int(pid), 0)
	if errors.Is(err, unix.ENOSYS) {
		return process.NewHandle(uintptr(pid), nil), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pidfd_open: %w", err)
	}
	return process.NewHandle(uintptr(fd), func(v uintptr) error {
		return unix.Close(int(v))
	}), true, nil
}

func (p *LinuxProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.handle.Valid() {
		return nil
	}

	p.log.Infoln("Closing process")
	err := p.handle.Close()

	p.log = logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open"))
	p.log.Infoln("Process closed")

	return err
}

// GetPID returns the process ID
func (p *LinuxProcess) GetPID() process.ProcessID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *LinuxProcess) Handle() *process.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle
}

// IsAlive reports whether the target still runs. With a pidfd the check is
// immune to pid reuse.
func (p *LinuxProcess) IsAlive() bool {
	p.mu.Lock()
	pid, h, pidfd := p.pid, p.handle, p.pidfd
	p.mu.Unlock()

	if !h.Valid() {
		return false
	}
	if pidfd {
		return unix.PidfdSendSignal(int(h.Value()), 0, nil, 0) == nil
	}
	state, err := readState(pid)
	return err == nil && !state.Exited()
}

// target returns the pid to operate on, or an error once the handle is gone
func (p *LinuxProcess) target() (process.ProcessID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.handle.Valid() {
		return 0, process.ErrProcessNotOpen
	}
	return p.pid, nil
}

// readState returns the state letter from /proc/[pid]/stat
func readState(pid process.ProcessID) (process.ProcessState, error) {
	raw, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return "", err
	}
	// comm may contain spaces and parentheses, the state follows the last ')'
	i := bytes.LastIndexByte(raw, ')')
	if i < 0 || i+2 >= len(raw) {
		return "", fmt.Errorf("malformed /proc/%d/stat", pid)
	}
	return process.ProcessState(raw[i+2 : i+3]), nil
}
