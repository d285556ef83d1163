package chrome

import "time"

// InstanceStatus represents the lifecycle status of a Chrome instance.
type InstanceStatus int

const (
	StatusIdle InstanceStatus = iota
	StatusRendering
	StatusRestarting
	StatusClosed
	StatusDead
)

// String returns the string representation of InstanceStatus
func (s InstanceStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRendering:
		return "rendering"
	case StatusRestarting:
		return "restarting"
	case StatusClosed:
		return "closed"
	case StatusDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Default viewport dimensions used by the allocator when no override is set.
const (
	DesktopWidth  = 1366
	DesktopHeight = 768
)

// InstanceConfig contains Chrome browser configuration shared by every
// instance in a pool.
type InstanceConfig struct {
	ExecutablePath string
	Headless       bool
	DisableGPU     bool
	NoSandbox      bool
	ViewportWidth  int
	ViewportHeight int

	// Pool / lifecycle policy, applied per-instance.
	PoolSize          int
	WarmupURL         string
	Timeout           time.Duration
	RestartAfterCount int
	RestartAfterTime  time.Duration
	ShutdownTimeout   time.Duration
}
