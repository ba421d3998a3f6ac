package process

// ProcessID represents a unique identifier for a process
type ProcessID int

// ProcessInfo identifies a process found by name
type ProcessInfo struct {
	PID  ProcessID // Process ID
	Name string    // Process name as matched
	Exe  string    // Path to the executable, empty if unknown
}
