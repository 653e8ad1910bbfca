package recovery

import (
	"errors"
	"time"

	"github.com/kestrelops/mirrorcycle/internal/checkpoint"
	"github.com/kestrelops/mirrorcycle/internal/events"
	"github.com/kestrelops/mirrorcycle/internal/reflection"
	"github.com/kestrelops/mirrorcycle/internal/stability"
)

// #region errors

// ErrRestartLimit marks an exhausted restart budget. ShouldRestart
// signals it by returning false; hosts use this sentinel when they
// surface the condition as an error.
var ErrRestartLimit = errors.New("restart limit exceeded")

// #endregion errors

// #region phase

// Phase is the manager's position in the recovery state machine.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseError
	PhaseCooldownWait
	PhaseRecovering
	PhaseRestored
	PhaseRejected
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "INIT"
	case PhaseError:
		return "ERROR"
	case PhaseCooldownWait:
		return "COOLDOWN_WAIT"
	case PhaseRecovering:
		return "RECOVERING"
	case PhaseRestored:
		return "RESTORED"
	case PhaseRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// #endregion phase

// #region config

// Config holds the restart policy.
type Config struct {
	MaxRestarts int           // attempts beyond this are rejected
	Cooldown    time.Duration // minimum spacing after a checkpoint
	Cadence     int           // mirror cycles per reflection; 0 = directive value
}

// DefaultConfig returns the reference restart policy.
func DefaultConfig() Config {
	return Config{
		MaxRestarts: 3,
		Cooldown:    60 * time.Second,
	}
}

// #endregion config

// #region deps

// Deps are the manager's collaborators. Store and Emitter are
// optional; Sink defaults to a no-op; Performance may be nil.
type Deps struct {
	Store       *checkpoint.Store
	Emitter     *reflection.Emitter
	Sink        events.Sink
	Performance stability.PerformanceSource
	Monitor     stability.Config
	Clock       func() time.Time
}

// #endregion deps

// #region snapshot

// Snapshot is a read-only view of the manager's recovery state.
type Snapshot struct {
	Phase              Phase
	RestartCount       int
	LastError          string
	RecoveryMode       bool
	SectionProgress    map[string]float64
	RecursionStability float64
	LoopsEscaped       int
	HasCheckpoint      bool
}

// #endregion snapshot
