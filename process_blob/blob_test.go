package process_blob

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"remotemem/process"
)

func TestBlobPartialTransfers(t *testing.T) {
	blob := NewProcessBlob(0x1000, []byte{1, 2, 3, 4}, true)

	data, err := blob.ReadMemory(0x1002, 4)
	if !errors.Is(err, process.ErrAddressNotMapped) || len(data) != 2 || data[0] != 3 {
		t.Errorf("ReadMemory() across end = %v, %v", data, err)
	}

	n, err := blob.WriteMemory(0x1003, []byte{9, 9})
	if err == nil || n != 1 || blob.Data()[3] != 9 {
		t.Errorf("WriteMemory() across end = %d, %v", n, err)
	}

	if _, err := blob.ReadMemory(0x1004, 1); !errors.Is(err, process.ErrAddressNotMapped) {
		t.Errorf("ReadMemory() at End() error = %v", err)
	}

	ro := NewProcessBlob(0x2000, []byte{0}, false)
	if n, err := ro.WriteMemory(0x2000, []byte{1}); err == nil || n != 0 {
		t.Errorf("WriteMemory() on read-only blob = %d, %v", n, err)
	}
}

func TestSimulatedAllocFree(t *testing.T) {
	p := NewSimulatedProcess(42, true)

	addr, err := p.AllocMemory(10, process.ProtectRead)
	if err != nil {
		t.Fatal(err)
	}
	if data, err := p.ReadMemory(addr, pageSize); err != nil || len(data) != pageSize {
		t.Errorf("allocation is not page sized: %d, %v", len(data), err)
	}
	if _, err := p.WriteMemory(addr, []byte{1}); err == nil {
		t.Error("write into read-only allocation succeeded")
	}

	if err := p.FreeMemory(addr); err != nil {
		t.Fatal(err)
	}
	if err := p.FreeMemory(addr); !errors.Is(err, process.ErrAddressNotMapped) {
		t.Errorf("double FreeMemory() error = %v", err)
	}

	st := p.Stats()
	if st.Allocs != 1 || st.Frees != 2 || st.Reads != 1 || st.Writes != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestSimulatedClosed(t *testing.T) {
	p := NewSimulatedProcess(42, false)
	p.Map(0x1000, make([]byte, 16), true)
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := p.ReadMemory(0x1000, 4); !errors.Is(err, process.ErrProcessNotOpen) {
		t.Errorf("ReadMemory() after Close error = %v", err)
	}
	if _, err := p.MainModule(); !errors.Is(err, process.ErrModuleUnavailable) {
		t.Errorf("MainModule() without module error = %v", err)
	}

	if err := p.Open(0); !errors.Is(err, process.ErrInvalidArgument) {
		t.Errorf("Open(0) error = %v", err)
	}
	if err := p.Open(7); err != nil || !p.Handle().Valid() || p.GetPID() != 7 {
		t.Errorf("reopen failed: %v", err)
	}
}

func TestLoadDumpErrors(t *testing.T) {
	if _, err := LoadDump(t.TempDir()); err == nil {
		t.Error("LoadDump() of empty directory succeeded")
	}

	dir := t.TempDir()
	meta := `{"pid": 5, "is64": true, "module_base": 4194304, "module_size": 16, "module_path": "/bin/x", "image_file": "image.bin"}`
	if err := os.WriteFile(filepath.Join(dir, process.DumpMetadataFile), []byte(meta), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "image.bin"), make([]byte, 8), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDump(dir); err == nil {
		t.Error("LoadDump() accepted an image shorter than its metadata")
	}

	if err := os.WriteFile(filepath.Join(dir, "image.bin"), make([]byte, 16), 0644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadDump(dir)
	if err != nil {
		t.Fatal(err)
	}
	mod, err := p.MainModule()
	if err != nil || mod.Base != 0x400000 || mod.Size != 16 || mod.Path != "/bin/x" {
		t.Errorf("MainModule() = %v, %v", mod, err)
	}

	bad := `{"image_file": "../escape.bin"}`
	if err := os.WriteFile(filepath.Join(dir, process.DumpMetadataFile), []byte(bad), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDump(dir); !errors.Is(err, process.ErrInvalidArgument) {
		t.Errorf("LoadDump() with escaping image name error = %v", err)
	}
}
