package process

// SetInspector64 overrides the inspector bit-width so width rules can be
// exercised from a single test binary.
func (m *RemoteMemory) SetInspector64(v bool) {
	m.self64 = v
	m.both64 = m.is64 && v
}
