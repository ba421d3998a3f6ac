//go:build linux && amd64

package process_linux

import (
	"fmt"
	"runtime"
	"syscall"

	"remotemem/process"

	"golang.org/x/sys/unix"
)

// syscall
var syscallInsn = []byte{0x0f, 0x05}

// maxStepAttempts bounds how often a single step is retried when signals
// arrive before the syscall instruction runs
const maxStepAttempts = 16

func remoteMmap(pid process.ProcessID, site, length, prot uintptr) (uintptr, error) {
	return remoteSyscall(pid, site, unix.SYS_MMAP, 0, length, prot, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS, ^uintptr(0), 0)
}

func remoteMunmap(pid process.ProcessID, site, addr, length uintptr) error {
	_, err := remoteSyscall(pid, site, unix.SYS_MUNMAP, addr, length)
	return err
}

// remoteSyscall makes the target's main thread execute one system call by
// pointing it at the syscall instruction at site and single-stepping. Only
// that thread is stopped and the text is not modified. Registers are
// restored before detaching and signals that arrived meanwhile are re-sent.
func remoteSyscall(pid process.ProcessID, site, trap uintptr, args ...uintptr) (ret uintptr, err error) {
	// ptrace requests must come from the thread that attached
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	tid := int(pid)
	if err := unix.PtraceSeize(tid); err != nil {
		return 0, fmt.Errorf("ptrace seize: %w", err)
	}

	var pending []syscall.Signal
	defer func() {
		unix.PtraceDetach(tid)
		for _, sig := range pending {
			unix.Tgkill(int(pid), tid, sig)
		}
	}()

	if err := unix.PtraceInterrupt(tid); err != nil {
		return 0, fmt.Errorf("ptrace interrupt: %w", err)
	}
	// signal-delivery stops may come first; hold the signal and let the
	// thread run on to the interrupt stop
	for {
		ws, err := waitStopped(tid)
		if err != nil {
			return 0, err
		}
		if isEventStop(ws) {
			break
		}
		pending = append(pending, ws.StopSignal())
		if err := unix.PtraceCont(tid, 0); err != nil {
			return 0, fmt.Errorf("ptrace cont: %w", err)
		}
	}

	var saved unix.PtraceRegs
	if err := unix.PtraceGetRegs(tid, &saved); err != nil {
		return 0, fmt.Errorf("ptrace getregs: %w", err)
	}
	defer func() {
		if rerr := unix.PtraceSetRegs(tid, &saved); rerr != nil && err == nil {
			err = fmt.Errorf("ptrace setregs: %w", rerr)
		}
	}()

	var argv [6]uint64
	for i := 0; i < len(args) && i < len(argv); i++ {
		argv[i] = uint64(args[i])
	}

	regs := saved
	regs.Rip = uint64(site)
	regs.Rax = uint64(trap)
	regs.Rdi, regs.Rsi, regs.Rdx = argv[0], argv[1], argv[2]
	regs.R10, regs.R8, regs.R9 = argv[3], argv[4], argv[5]
	// keeps the kernel from restarting whatever call the thread was stopped in
	regs.Orig_rax = ^uint64(0)

	if err := unix.PtraceSetRegs(tid, &regs); err != nil {
		return 0, fmt.Errorf("ptrace setregs: %w", err)
	}

	stepped := false
	for attempt := 0; attempt < maxStepAttempts && !stepped; attempt++ {
		if err := unix.PtraceSingleStep(tid); err != nil {
			return 0, fmt.Errorf("ptrace singlestep: %w", err)
		}
		ws, err := waitStopped(tid)
		if err != nil {
			return 0, err
		}
		switch {
		case ws.StopSignal() == unix.SIGTRAP && ws.TrapCause() == 0:
			stepped = true
		case isEventStop(ws):
			// group stop or a late interrupt, step again
		default:
			pending = append(pending, ws.StopSignal())
		}
	}
	if !stepped {
		return 0, fmt.Errorf("thread %d did not complete the remote call after %d attempts", tid, maxStepAttempts)
	}

	if err := unix.PtraceGetRegs(tid, &regs); err != nil {
		return 0, fmt.Errorf("ptrace getregs: %w", err)
	}
	if regs.Rip != uint64(site)+uint64(len(syscallInsn)) {
		return 0, fmt.Errorf("thread %d stopped at 0x%x instead of after the syscall at 0x%x", tid, regs.Rip, site)
	}

	res := int64(regs.Rax)
	if res < 0 && res > -4096 {
		return 0, unix.Errno(-res)
	}
	return uintptr(res), nil
}

func waitStopped(tid int) (unix.WaitStatus, error) {
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(tid, &ws, unix.WALL, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return ws, fmt.Errorf("wait4: %w", err)
		}
		if wpid != tid {
			continue
		}
		if ws.Exited() || ws.Signaled() {
			return ws, fmt.Errorf("process %d exited during remote call: %w", tid, process.ErrProcessExited)
		}
		if ws.Stopped() {
			return ws, nil
		}
	}
}

// isEventStop matches the interrupt and group stops of a seized thread
func isEventStop(ws unix.WaitStatus) bool {
	return uint32(ws)>>16 == unix.PTRACE_EVENT_STOP
}
