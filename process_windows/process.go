//go:build windows

package process_windows

import (
	"fmt"
	"sync"

	"remotemem/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/windows"
)

var (
	modkernel32        = windows.NewLazySystemDLL("kernel32.dll")
	procVirtualAllocEx = modkernel32.NewProc("VirtualAllocEx")
	procVirtualFreeEx  = modkernel32.NewProc("VirtualFreeEx")
)

const (
	PROCESS_ALL_ACCESS = 0x1F0FFF
	STILL_ACTIVE       = 259
)

// WindowsProcess implements the process.Process interface for Windows systems
type WindowsProcess struct {
	pid    process.ProcessID
	handle *process.Handle
	log    *logger.Logger
	mu     sync.Mutex
}

var _ process.Process = (*WindowsProcess)(nil)

// New creates a new WindowsProcess instance
func New() *WindowsProcess {
	return &WindowsProcess{
		log: logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open")),
	}
}

// NewWithPID creates a new WindowsProcess instance and opens it with the given PID
func NewWithPID(pid process.ProcessID) (*WindowsProcess, error) {
	p := New()
	if err := p.Open(pid); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *WindowsProcess) Open(pid process.ProcessID) error {
	if pid <= 0 {
		return &process.OpenError{PID: pid, Err: process.ErrInvalidArgument}
	}

	h, err := windows.OpenProcess(PROCESS_ALL_ACCESS, false, uint32(pid))
	if err != nil {
		return &process.OpenError{PID: pid, Err: fmt.Errorf("OpenProcess failed: %w", err)}
	}

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err == nil && code != STILL_ACTIVE {
		windows.CloseHandle(h)
		return &process.OpenError{PID: pid, Err: process.ErrProcessExited}
	}

	handle := process.NewHandle(uintptr(h), func(v uintptr) error {
		return windows.CloseHandle(windows.Handle(v))
	})

	p.mu.Lock()
	old := p.handle
	p.pid = pid
	p.handle = handle
	p.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", pid)))
	p.mu.Unlock()

	old.Close()
	p.log.Infoln("Process opened")
	return nil
}

func (p *WindowsProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.handle.Valid() {
		return nil
	}

	err := p.handle.Close()
	if err != nil {
		err = fmt.Errorf("CloseHandle failed: %w", err)
	}

	p.log = logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open"))
	p.log.Infoln("Process closed")

	return err
}

func (p *WindowsProcess) GetPID() process.ProcessID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *WindowsProcess) Handle() *process.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle
}

// IsAlive reports whether the target has not exited yet
func (p *WindowsProcess) IsAlive() bool {
	h, err := p.target()
	if err != nil {
		return false
	}
	var code uint32
	return windows.GetExitCodeProcess(h, &code) == nil && code == STILL_ACTIVE
}

// target returns the native handle, or an error once it is closed
func (p *WindowsProcess) target() (windows.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.handle.Valid() {
		return 0, process.ErrProcessNotOpen
	}
	return windows.Handle(p.handle.Value()), nil
}
