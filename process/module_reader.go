package process

import (
	"fmt"
	"io"
)

// moduleReaderAt serves ReadAt over the main module image, offsets relative
// to its base
type moduleReaderAt struct {
	m      *RemoteMemory
	module Module
}

func (r *moduleReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrInvalidArgument, off)
	}
	if off >= int64(r.module.Size) {
		return 0, io.EOF
	}

	n := len(p)
	if remaining := int64(r.module.Size) - off; int64(n) > remaining {
		n = int(remaining)
	}

	data, err := r.m.ReadBytes(r.module.Base.Add(off), ProcessMemorySize(n), false)
	if err != nil {
		return 0, err
	}
	copy(p, data)

	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// ModuleReader exposes the main module image as a seekable byte stream.
// Every read goes through ReadBytes.
func (m *RemoteMemory) ModuleReader() (*io.SectionReader, error) {
	mod, err := m.MainModule()
	if err != nil {
		return nil, err
	}
	return io.NewSectionReader(&moduleReaderAt{m: m, module: mod}, 0, int64(mod.Size)), nil
}
