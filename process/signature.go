package process

import "fmt"

// SignatureFinder locates a byte signature in a buffer
type SignatureFinder interface {
	// Find returns the index of the first match at or after start, or -1
	Find(data []byte, start int) int
}

// FindSignature scans the main module image and returns the absolute address
// of the first match
func (m *RemoteMemory) FindSignature(sig SignatureFinder) (ProcessMemoryAddress, error) {
	mod, data, err := m.readModule()
	if err != nil {
		return 0, err
	}
	return findIn(sig, mod, data)
}

// FindSignatureIn scans mod, which need not be the main module. mod.Base is
// absolute.
func (m *RemoteMemory) FindSignatureIn(sig SignatureFinder, mod Module) (ProcessMemoryAddress, error) {
	if mod.Base == 0 || mod.Size == 0 {
		return 0, fmt.Errorf("%w: empty module %v", ErrInvalidArgument, mod)
	}
	data, err := m.ReadBytes(mod.Base, mod.Size, false)
	if err != nil {
		return 0, err
	}
	return findIn(sig, mod, data)
}

func findIn(sig SignatureFinder, mod Module, data []byte) (ProcessMemoryAddress, error) {
	offset := sig.Find(data, 0)
	if offset < 0 {
		return 0, ErrSignatureNotFound
	}
	return mod.Base + ProcessMemoryAddress(offset), nil
}

// FindSignatureAll returns the address of every match in the main module
func (m *RemoteMemory) FindSignatureAll(sig SignatureFinder) ([]ProcessMemoryAddress, error) {
	mod, data, err := m.readModule()
	if err != nil {
		return nil, err
	}

	var results []ProcessMemoryAddress
	for start := 0; start < len(data); {
		offset := sig.Find(data, start)
		if offset < 0 {
			break
		}
		results = append(results, mod.Base+ProcessMemoryAddress(offset))
		start = offset + 1
	}

	m.log.Infoln("Signature scan complete, found", len(results), "matches")
	return results, nil
}

func (m *RemoteMemory) readModule() (Module, []byte, error) {
	mod, err := m.MainModule()
	if err != nil {
		return Module{}, nil, err
	}
	data, err := m.ReadBytes(mod.Base, mod.Size, false)
	if err != nil {
		return Module{}, nil, err
	}
	return mod, data, nil
}
