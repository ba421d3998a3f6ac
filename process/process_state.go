package process

// ProcessState represents the state of a process
type ProcessState string

const (
	ProcessRunning  ProcessState = "R" // Running
	ProcessSleeping ProcessState = "S" // Sleeping in an interruptible wait
	ProcessWaiting  ProcessState = "D" // Waiting in uninterruptible disk sleep
	ProcessZombie   ProcessState = "Z" // Zombie
	ProcessStopped  ProcessState = "T" // Stopped (on a signal)
	ProcessTracing  ProcessState = "t" // Tracing stop
	ProcessDead     ProcessState = "X" // Dead
)

// Exited reports whether the process has terminated and only its entry remains
func (s ProcessState) Exited() bool {
	return s == ProcessZombie || s == ProcessDead
}
