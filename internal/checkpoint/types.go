package checkpoint

import (
	"time"

	"github.com/kestrelops/mirrorcycle/internal/envelope"
)

// #region checkpoint

// Checkpoint is a persisted snapshot of process state plus the
// bookkeeping the recovery manager needs to resume from it. It is
// written whole and consumed whole; a checkpoint is never partially
// applied.
type Checkpoint struct {
	ID                 string
	State              envelope.Value
	CreatedAt          time.Time
	MirrorCycle        int // 1..cadence
	SectionProgress    map[string]float64
	RecursionStability float64
	Flags              FlagSnapshot
}

// #endregion checkpoint

// #region flag-snapshot

// FlagSnapshot freezes the bounded signal histories and section locks
// at checkpoint time.
type FlagSnapshot struct {
	Loops      []float64       `json:"loops"`
	Velocities []float64       `json:"velocities"`
	Symbols    []int           `json:"symbols"`
	Phrases    []string        `json:"phrases"`
	Locked     map[string]bool `json:"locked"`
}

// #endregion flag-snapshot
