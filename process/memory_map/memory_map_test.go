package memory_map

import (
	"strings"
	"testing"
)

const sampleMaps = `55d4c7e02000-55d4c7e07000 r-xp 00002000 08:01 1311 /usr/bin/my game
55d4c7e00000-55d4c7e02000 r--p 00000000 08:01 1311 /usr/bin/my game
55d4c7e07000-55d4c7e09000 rw-p 00007000 08:01 1311 /usr/bin/my game
55d4c8000000-55d4c8021000 rw-p 00000000 00:00 0                          [heap]
7f1c00000000-7f1c00021000 rw-p 00000000 00:00 0
garbage line
7f1c10000000-7f1c10002000 r--p 00000000 08:01 2222 /usr/lib/libc.so.6
`

func TestParse(t *testing.T) {
	items, err := Parse(strings.NewReader(sampleMaps))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(items) != 6 {
		t.Fatalf("Parse() returned %d items, want 6", len(items))
	}

	for i := 1; i < len(items); i++ {
		if items[i-1].Address >= items[i].Address {
			t.Fatalf("items not sorted at %d", i)
		}
	}

	first := items[0]
	if first.Address != 0x55d4c7e00000 || first.Size != 0x2000 || first.Perms != "r--p" {
		t.Errorf("first item = %+v", first)
	}
	if first.Path != "/usr/bin/my game" {
		t.Errorf("first.Path = %q, want path with space preserved", first.Path)
	}
	if items[1].Offset != 0x2000 {
		t.Errorf("items[1].Offset = %#x, want 0x2000", items[1].Offset)
	}
	if items[3].Path != "[heap]" {
		t.Errorf("items[3].Path = %q, want [heap]", items[3].Path)
	}
	if items[4].Path != "" {
		t.Errorf("anonymous region path = %q, want empty", items[4].Path)
	}
	if !items[2].IsWritable() || items[1].IsWritable() || !items[1].IsExecutable() {
		t.Errorf("permission helpers disagree with perms")
	}
}

func TestFindRegion(t *testing.T) {
	items, err := Parse(strings.NewReader(sampleMaps))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		addr uint64
		want uint64
		ok   bool
	}{
		{0x55d4c7e00000, 0x55d4c7e00000, true},
		{0x55d4c7e01fff, 0x55d4c7e00000, true},
		{0x55d4c7e02000, 0x55d4c7e02000, true},
		{0x55d4c7e09000, 0, false},
		{0x1000, 0, false},
	}
	for _, tt := range tests {
		got := FindRegion(tt.addr, items)
		if (got != nil) != tt.ok {
			t.Errorf("FindRegion(%#x) found = %v, want %v", tt.addr, got != nil, tt.ok)
			continue
		}
		if got != nil && got.Address != tt.want {
			t.Errorf("FindRegion(%#x) = %#x, want %#x", tt.addr, got.Address, tt.want)
		}
	}
}

func TestModuleExtent(t *testing.T) {
	items, err := Parse(strings.NewReader(sampleMaps))
	if err != nil {
		t.Fatal(err)
	}

	start, end, ok := ModuleExtent("/usr/bin/my game", items)
	if !ok {
		t.Fatal("ModuleExtent() found nothing")
	}
	if start != 0x55d4c7e00000 || end != 0x55d4c7e09000 {
		t.Errorf("ModuleExtent() = %#x-%#x", start, end)
	}

	if _, _, ok := ModuleExtent("/usr/bin/other", items); ok {
		t.Error("ModuleExtent() matched an unmapped path")
	}
}

func TestModuleExtentDeleted(t *testing.T) {
	items, err := Parse(strings.NewReader("00400000-00401000 r-xp 00000000 08:01 7 /tmp/app (deleted)\n"))
	if err != nil {
		t.Fatal(err)
	}
	start, end, ok := ModuleExtent("/tmp/app", items)
	if !ok || start != 0x400000 || end != 0x401000 {
		t.Errorf("ModuleExtent() = %#x-%#x, %v", start, end, ok)
	}
}

func TestCovers(t *testing.T) {
	items, err := Parse(strings.NewReader(sampleMaps + "7f1c10002000-7f1c10003000 ---p 00000000 00:00 0\n"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		addr uint64
		size uint64
		want bool
	}{
		{"inside one region", 0x55d4c7e00100, 0x100, true},
		{"across adjacent regions", 0x55d4c7e01000, 0x7000, true},
		{"runs into a gap", 0x55d4c7e08000, 0x2000, false},
		{"runs into unreadable", 0x7f1c10001000, 0x2000, false},
		{"unmapped start", 0x1000, 0x10, false},
		{"wraps", 0x55d4c7e00000, ^uint64(0), false},
		{"huge", 0x55d4c7e00000, 1 << 62, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Covers(tt.addr, tt.size, items); got != tt.want {
				t.Errorf("Covers(%#x, %#x) = %v, want %v", tt.addr, tt.size, got, tt.want)
			}
		})
	}
}
