//go:build linux

package process_linux

import (
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"
	"unsafe"

	"remotemem/process"
	"remotemem/process/memory_map"

	"golang.org/x/sys/unix"
)

// Initialized so they live in the executable's file-backed data segment
var (
	testCounter int32 = 1234
	testBuffer        = [32]byte{'s', 'e', 'e', 'd'}
	testChain         = [4]uint64{1, 2, 3, 4}
	testFloat         = 1.5
	testWide          = [2]int64{-7, 7}
)

// busyChildEnv makes the test binary run as a multithreaded target instead
const busyChildEnv = "REMOTEMEM_BUSY_CHILD"

func init() {
	if os.Getenv(busyChildEnv) == "1" {
		// main then runs on the thread whose tid is the pid
		runtime.LockOSThread()
	}
}

func TestMain(m *testing.M) {
	if os.Getenv(busyChildEnv) == "1" {
		runBusyChild()
	}
	os.Exit(m.Run())
}

// runBusyChild spins eight locked threads plus the main thread through short
// sleeps until killed
func runBusyChild() {
	sleep := func() {
		ts := unix.NsecToTimespec(50_000)
		for {
			unix.Nanosleep(&ts, nil)
		}
	}
	for i := 0; i < 8; i++ {
		go func() {
			runtime.LockOSThread()
			sleep()
		}()
	}
	sleep()
}

func addrOf[T any](p *T) process.ProcessMemoryAddress {
	return process.ProcessMemoryAddress(uintptr(unsafe.Pointer(p)))
}

func attachSelf(t *testing.T) *process.RemoteMemory {
	t.Helper()
	m, err := Attach(process.ProcessID(os.Getpid()))
	if err != nil {
		t.Fatalf("Attach(self) error = %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestAttachSelf(t *testing.T) {
	m := attachSelf(t)

	if m.PID() != process.ProcessID(os.Getpid()) {
		t.Errorf("PID() = %d, want %d", m.PID(), os.Getpid())
	}
	if want := strconv.IntSize == 64; m.Is64Bit() != want {
		t.Errorf("Is64Bit() = %v, want %v", m.Is64Bit(), want)
	}
	if lp, ok := m.Process().(*LinuxProcess); !ok || !lp.IsAlive() {
		t.Error("attached process is not reported alive")
	}
}

func TestReadWriteSelf(t *testing.T) {
	m := attachSelf(t)

	got, err := process.Read[int32](m, addrOf(&testCounter), false)
	if err != nil || got != 1234 {
		t.Fatalf("Read() = %d, %v, want 1234", got, err)
	}

	if err := process.Write(m, addrOf(&testCounter), int32(246234636), false); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if testCounter != 246234636 {
		t.Errorf("testCounter = %d after Write", testCounter)
	}

	if err := process.Write(m, addrOf(&testFloat), float64(-2.75), false); err != nil {
		t.Fatal(err)
	}
	if f, err := process.Read[float64](m, addrOf(&testFloat), false); err != nil || f != -2.75 {
		t.Errorf("Read[float64]() = %v, %v", f, err)
	}

	wide, err := process.ReadArray[int64](m, addrOf(&testWide), 2, false)
	if err != nil || wide[0] != -7 || wide[1] != 7 {
		t.Errorf("ReadArray() = %v, %v", wide, err)
	}
}

func TestStringsSelf(t *testing.T) {
	m := attachSelf(t)

	if err := m.WriteString(addrOf(&testBuffer), "remote", false); err != nil {
		t.Fatal(err)
	}
	got, err := m.ReadStringEncoded(addrOf(&testBuffer), nil, process.ProcessMemorySize(len(testBuffer)), false)
	if err != nil || got != "remote" {
		t.Errorf("ReadStringEncoded() = %q, %v", got, err)
	}
}

func TestMainModuleSelf(t *testing.T) {
	m := attachSelf(t)

	mod, err := m.MainModule()
	if err != nil {
		t.Fatalf("MainModule() error = %v", err)
	}
	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(mod.Path) != filepath.Base(exe) {
		t.Errorf("MainModule().Path = %q, want %q", mod.Path, exe)
	}

	addr := addrOf(&testCounter)
	if !mod.Contains(addr) {
		t.Skipf("data segment at %s lies outside %v", addr.ToString(), mod)
	}

	testCounter = 777
	got, err := process.Read[int32](m, addr-mod.Base, true)
	if err != nil || got != 777 {
		t.Errorf("relative Read() = %d, %v, want 777", got, err)
	}

	if _, err := m.ToAbsolute(process.ProcessMemoryAddress(mod.Size) + 1); err == nil {
		t.Error("ToAbsolute() accepted an address past the module")
	}
}

func TestResolveSelf(t *testing.T) {
	m := attachSelf(t)

	base := addrOf(&testChain[0])
	testChain[0] = uint64(base)

	got, err := m.Resolve(base, false, 0, 24)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != addrOf(&testChain[3]) {
		t.Errorf("Resolve() = %s, want %s", got.ToString(), addrOf(&testChain[3]).ToString())
	}

	v, err := process.ReadPath[uint64](m, base, false, 16)
	if err != nil || v != testChain[2] {
		t.Errorf("ReadPath() = %d, %v, want %d", v, err, testChain[2])
	}
}

func TestClosedSelf(t *testing.T) {
	m := attachSelf(t)
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}

	var re *process.ReadError
	if _, err := process.Read[int32](m, addrOf(&testCounter), false); !errors.As(err, &re) {
		t.Errorf("Read() after Close error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestAttachErrors(t *testing.T) {
	var oe *process.OpenError

	if _, err := Attach(-1); !errors.As(err, &oe) || !errors.Is(err, process.ErrInvalidArgument) {
		t.Errorf("Attach(-1) error = %v", err)
	}
	if _, err := Attach(1 << 30); !errors.As(err, &oe) || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Attach(missing) error = %v", err)
	}
	if _, err := AttachByName("no-such-process-name", 0); !errors.As(err, &oe) || oe.Name != "no-such-process-name" {
		t.Errorf("AttachByName(missing) error = %v", err)
	}
	if _, err := AttachProcess(nil); !errors.As(err, &oe) {
		t.Errorf("AttachProcess(nil) error = %v", err)
	}
}

func TestAttachExitedProcess(t *testing.T) {
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Skipf("cannot run true: %v", err)
	}

	var oe *process.OpenError
	if _, err := AttachProcess(cmd.Process); !errors.As(err, &oe) {
		t.Errorf("AttachProcess(exited) error = %v", err)
	}
}

func TestAttachByNameSelf(t *testing.T) {
	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	name := filepath.Base(exe)

	procs, err := ListByName(name)
	if err != nil {
		t.Fatal(err)
	}
	index := -1
	for i, p := range procs {
		if p.PID == process.ProcessID(os.Getpid()) {
			index = i
		}
		if i > 0 && procs[i-1].PID >= p.PID {
			t.Error("ListByName() not ordered by PID")
		}
	}
	if index < 0 {
		t.Fatalf("ListByName(%q) did not list this process", name)
	}

	m, err := AttachByName(name, index)
	if err != nil {
		t.Fatalf("AttachByName() error = %v", err)
	}
	defer m.Close()
	if m.PID() != process.ProcessID(os.Getpid()) {
		t.Errorf("AttachByName() attached pid %d", m.PID())
	}
}

func TestAllocFreeChild(t *testing.T) {
	if runtime.GOARCH != "amd64" {
		t.Skip("remote allocation needs amd64")
	}
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not found")
	}

	cmd := exec.Command(sleep, "30")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() {
		cmd.Process.Kill()
		cmd.Wait()
	}()

	m, err := AttachProcess(cmd.Process)
	if err != nil {
		t.Fatalf("AttachProcess() error = %v", err)
	}
	defer m.Close()

	addr, err := m.Alloc(100, process.ProtectReadWrite)
	if errors.Is(err, unix.EPERM) || errors.Is(err, process.ErrUnsupported) {
		t.Skipf("ptrace unavailable: %v", err)
	}
	if err != nil {
		t.Fatalf("Alloc() error = %v", err)
	}
	if addr%pageSize != 0 {
		t.Errorf("Alloc() = %s, want page aligned", addr.ToString())
	}

	if err := process.Write(m, addr, int64(-85418187), false); err != nil {
		t.Fatalf("Write() to allocation error = %v", err)
	}
	if v, err := process.Read[int64](m, addr, false); err != nil || v != -85418187 {
		t.Errorf("Read() from allocation = %d, %v", v, err)
	}

	if err := m.Free(addr); err != nil {
		t.Fatalf("Free() error = %v", err)
	}
	var re *process.ReadError
	if _, err := process.Read[int64](m, addr, false); !errors.As(err, &re) {
		t.Errorf("Read() after Free error = %v, want ReadError", err)
	}

	lp := m.Process().(*LinuxProcess)
	if !lp.IsAlive() {
		t.Error("child died during remote calls")
	}
}

func TestAllocFreeMultithreadedChild(t *testing.T) {
	if runtime.GOARCH != "amd64" {
		t.Skip("remote allocation needs amd64")
	}
	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}

	cmd := exec.Command(exe, "-test.run=^$")
	cmd.Env = append(os.Environ(), busyChildEnv+"=1")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() {
		cmd.Process.Kill()
		cmd.Wait()
	}()

	taskDir := fmt.Sprintf("/proc/%d/task", cmd.Process.Pid)
	for deadline := time.Now().Add(5 * time.Second); ; {
		tasks, _ := os.ReadDir(taskDir)
		if len(tasks) >= 9 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("child started only %d threads", len(tasks))
		}
		time.Sleep(10 * time.Millisecond)
	}

	m, err := AttachProcess(cmd.Process)
	if err != nil {
		t.Fatalf("AttachProcess() error = %v", err)
	}
	defer m.Close()

	for i := 0; i < 200; i++ {
		addr, err := m.Alloc(64, process.ProtectReadWrite)
		if i == 0 && (errors.Is(err, unix.EPERM) || errors.Is(err, process.ErrUnsupported)) {
			t.Skipf("ptrace unavailable: %v", err)
		}
		if err != nil {
			t.Fatalf("iteration %d: Alloc() error = %v", i, err)
		}
		if err := process.Write(m, addr, int64(i), false); err != nil {
			t.Fatalf("iteration %d: Write() error = %v", i, err)
		}
		if v, err := process.Read[int64](m, addr, false); err != nil || v != int64(i) {
			t.Fatalf("iteration %d: Read() = %d, %v", i, v, err)
		}
		if err := m.Free(addr); err != nil {
			t.Fatalf("iteration %d: Free() error = %v", i, err)
		}
	}

	lp := m.Process().(*LinuxProcess)
	if !lp.IsAlive() {
		t.Fatal("child died during remote calls")
	}
	if state, err := readState(lp.GetPID()); err != nil || state.Exited() {
		t.Errorf("child state = %q, %v", state, err)
	}
}

func TestFreeRefusesFileMappings(t *testing.T) {
	m := attachSelf(t)

	mod, err := m.MainModule()
	if err != nil {
		t.Fatal(err)
	}
	// refused before any remote call, so no ptrace is needed
	if err := m.Free(mod.Base); !errors.Is(err, process.ErrFreeFailed) || !errors.Is(err, process.ErrInvalidArgument) {
		t.Errorf("Free(main module) error = %v", err)
	}
	if _, err := process.Read[int32](m, addrOf(&testCounter), false); err != nil {
		t.Errorf("process memory unusable after refused Free: %v", err)
	}
}

func TestOversizedReadSelf(t *testing.T) {
	m := attachSelf(t)

	var re *process.ReadError
	_, err := m.ReadBytes(addrOf(&testCounter), process.ProcessMemorySize(math.MaxInt), false)
	if !errors.As(err, &re) || !errors.Is(err, process.ErrAddressNotMapped) {
		t.Errorf("ReadBytes(MaxInt) error = %v", err)
	}

	pid := process.ProcessID(os.Getpid())
	if _, err := process_vm_readv(pid, addrOf(&testCounter), ^process.ProcessMemorySize(0)); !errors.Is(err, process.ErrInvalidArgument) {
		t.Errorf("process_vm_readv(max size) error = %v", err)
	}
}

func TestSyscallCandidates(t *testing.T) {
	mm := []memory_map.MemoryMapItem{
		{Address: 0x1000, Size: 0x1000, Perms: "r-xp", Path: "/usr/bin/app"},
		{Address: 0x3000, Size: 0x1000, Perms: "rw-p", Path: "[heap]"},
		{Address: 0x5000, Size: 0x1000, Perms: "r-xp", Path: "/usr/lib/x86_64-linux-gnu/libc.so.6"},
		{Address: 0x7000, Size: 0x1000, Perms: "--xp", Path: "[vsyscall]"},
		{Address: 0x9000, Size: 0x1000, Perms: "r-xp", Path: "[vdso]"},
	}

	got := syscallCandidates(mm)
	want := []string{"[vdso]", "/usr/lib/x86_64-linux-gnu/libc.so.6", "/usr/bin/app"}
	if len(got) != len(want) {
		t.Fatalf("syscallCandidates() returned %d regions, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Path != want[i] {
			t.Errorf("candidate %d = %q, want %q", i, got[i].Path, want[i])
		}
	}
}

func TestReadState(t *testing.T) {
	state, err := readState(process.ProcessID(os.Getpid()))
	if err != nil {
		t.Fatal(err)
	}
	if state.Exited() {
		t.Errorf("readState(self) = %q", state)
	}
}
