// Package recovery orchestrates crash recovery: checkpointing, the
// bounded-restart policy with cooldown backoff, state restoration, and
// the periodic reflection snapshot. A Manager is owned by a single
// supervision loop; callers must serialize access.
package recovery

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelops/mirrorcycle/internal/checkpoint"
	"github.com/kestrelops/mirrorcycle/internal/directive"
	"github.com/kestrelops/mirrorcycle/internal/envelope"
	"github.com/kestrelops/mirrorcycle/internal/events"
	"github.com/kestrelops/mirrorcycle/internal/loopdetect"
	"github.com/kestrelops/mirrorcycle/internal/reflection"
	"github.com/kestrelops/mirrorcycle/internal/stability"
	"github.com/kestrelops/mirrorcycle/internal/tracker"
)

// #region manager

// Manager is the recovery coordinator.
type Manager struct {
	cfg     Config
	dir     directive.Directive
	cadence int

	track    *tracker.Tracker
	detector *loopdetect.Detector
	monitor  *stability.Monitor
	store    *checkpoint.Store
	emitter  *reflection.Emitter
	sink     events.Sink
	clock    func() time.Time

	phase        Phase
	restartCount int
	lastError    string
	recoveryMode bool
	last         *checkpoint.Checkpoint
	stabilityVal float64
}

// NewManager wires a Manager from a validated directive and its
// collaborators.
func NewManager(dir directive.Directive, cfg Config, deps Deps) *Manager {
	if cfg.MaxRestarts == 0 {
		cfg.MaxRestarts = DefaultConfig().MaxRestarts
	}
	cadence := cfg.Cadence
	if cadence == 0 {
		cadence = dir.CycleCadence
	}
	if cadence == 0 {
		cadence = directive.DefaultCadence
	}
	sink := deps.Sink
	if sink == nil {
		sink = events.Nop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	monCfg := deps.Monitor
	if monCfg.Clock == nil && monCfg.Rand == nil {
		monCfg = stability.DefaultConfig()
	}

	monitor := stability.NewMonitor(deps.Performance, monCfg)
	m := &Manager{
		cfg:      cfg,
		dir:      dir,
		cadence:  cadence,
		track:    tracker.New(dir.Sections, sink),
		detector: loopdetect.New(monitor, sink),
		monitor:  monitor,
		store:    deps.Store,
		emitter:  deps.Emitter,
		sink:     sink,
		clock:    clock,
		phase:    PhaseInit,
	}

	// A persisted checkpoint from a previous process survives as the
	// resume point.
	if m.store != nil {
		if cp, err := m.store.Latest(); err == nil {
			m.last = &cp
		}
	}
	return m
}

// #endregion manager

// #region create-checkpoint

// CreateCheckpoint snapshots the given state envelope together with
// section progress, stability, and flag histories. The in-memory
// checkpoint is always updated; a persistence failure is returned for
// the caller to log but does not invalidate the snapshot.
func (m *Manager) CreateCheckpoint(state envelope.Value) (checkpoint.Checkpoint, error) {
	flags := m.detector.Snapshot()
	flags.Locked = m.track.LockSnapshot()

	cp := checkpoint.Checkpoint{
		ID:                 uuid.New().String(),
		State:              state,
		CreatedAt:          m.clock().UTC(),
		MirrorCycle:        m.restartCount%m.cadence + 1,
		SectionProgress:    m.track.Snapshot(),
		RecursionStability: m.stabilityVal,
		Flags:              flags,
	}

	m.last = &cp
	m.phase = PhaseInit

	if m.store != nil {
		if err := m.store.Save(cp); err != nil {
			return cp, fmt.Errorf("persist checkpoint: %w", err)
		}
	}
	return cp, nil
}

// #endregion create-checkpoint

// #region should-restart

// ShouldRestart records the crash and decides whether the supervision
// loop may retry. It returns false once the restart budget is
// exhausted; that is fatal and the caller must stop. Otherwise, if a
// checkpoint exists inside the cooldown window, the call suspends for
// the remaining cooldown (abortable through ctx) before returning
// true. This is crash-path code: it never returns an error and never
// panics.
func (m *Manager) ShouldRestart(ctx context.Context, cause error) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	m.phase = PhaseError
	if cause != nil {
		m.lastError = cause.Error()
	} else {
		m.lastError = ""
	}
	m.restartCount++

	if m.restartCount > m.cfg.MaxRestarts {
		m.phase = PhaseRejected
		m.sink.Warn(events.KindRestartRejected,
			fmt.Sprintf("exceeded maximum restart attempts (%d)", m.cfg.MaxRestarts))
		return false
	}

	if m.last != nil {
		elapsed := m.clock().Sub(m.last.CreatedAt)
		if remaining := m.cfg.Cooldown - elapsed; remaining > 0 {
			m.phase = PhaseCooldownWait
			m.sink.Info(events.KindCooldownWait,
				fmt.Sprintf("in cooldown period, delaying restart %s", remaining.Round(time.Millisecond)))
			waitFor(ctx, remaining)
		}
	}
	return true
}

// waitFor suspends until d elapses or ctx is cancelled.
func waitFor(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// #endregion should-restart

// #region initiate-recovery

// InitiateRecovery restores state from the last checkpoint. It returns
// ok=false when no checkpoint exists; the caller cold-starts. When the
// checkpoint closes a mirror cycle, the reflection pair is emitted
// before state is restored; an emission failure is logged and does not
// abort the recovery.
func (m *Manager) InitiateRecovery() (envelope.Value, bool) {
	if m.last == nil {
		m.sink.Warn(events.KindRecoveryMissing, "no checkpoint available for recovery")
		return envelope.Null(), false
	}
	m.phase = PhaseRecovering
	cp := *m.last

	if cp.MirrorCycle == m.cadence {
		m.reflect(cp)
	}

	m.track.Restore(cp.SectionProgress, cp.Flags.Locked)
	m.detector.Restore(cp.Flags)
	m.stabilityVal = clamp01(cp.RecursionStability)
	m.recoveryMode = true
	m.phase = PhaseRestored

	m.sink.Info(events.KindRecoveryStarted,
		fmt.Sprintf("restored checkpoint %s from cycle %d", cp.ID, cp.MirrorCycle))
	return cp.State, true
}

// reflect emits the reflection pair for the completed mirror cycle.
func (m *Manager) reflect(cp checkpoint.Checkpoint) {
	if m.emitter == nil {
		return
	}
	_, err := m.emitter.Emit(reflection.Input{
		Directive:       m.dir,
		State:           cp.State,
		SectionProgress: cp.SectionProgress,
		Flags:           cp.Flags,
		Stability:       cp.RecursionStability,
		Drift:           successiveDrift(cp.Flags.Velocities),
		Cycle:           m.restartCount,
		Now:             m.clock().UTC(),
	})
	if err != nil {
		m.sink.Warn(events.KindArtifactFailure,
			fmt.Sprintf("failed to create reflection: %v", err))
	}
}

// successiveDrift is the mean absolute successive difference of the
// checkpointed velocity history; 0 with fewer than two samples.
func successiveDrift(vals []float64) float64 {
	if len(vals) < 2 {
		return 0.0
	}
	var sum float64
	for i := 1; i < len(vals); i++ {
		sum += math.Abs(vals[i] - vals[i-1])
	}
	return sum / float64(len(vals)-1)
}

// #endregion initiate-recovery

// #region stability

// UpdateRecursionStability stores the clamped stability score.
func (m *Manager) UpdateRecursionStability(v float64) {
	m.stabilityVal = clamp01(v)
}

// RecursionStability returns the current stability score.
func (m *Manager) RecursionStability() float64 { return m.stabilityVal }

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion stability

// #region delegation

// UpdateSectionProgress forwards a clamped progress write; locked
// sections silently reject it.
func (m *Manager) UpdateSectionProgress(section string, progress float64) {
	m.track.Update(section, progress)
}

// UnlockSection clears a section lock. This models an explicit
// external authorization; nothing triggers it automatically.
func (m *Manager) UnlockSection(section string) {
	m.track.Unlock(section)
}

// RecordRecursionLoop feeds a loop resolution to the detector.
func (m *Manager) RecordRecursionLoop(resolved bool) {
	m.detector.RecordRecursionLoop(resolved)
}

// RecordInsightVelocity feeds an insight-velocity sample.
func (m *Manager) RecordInsightVelocity(v float64) {
	m.detector.RecordInsightVelocity(v)
}

// RecordSymbolCount feeds a per-cycle symbol count.
func (m *Manager) RecordSymbolCount(n int) {
	m.detector.RecordSymbolCount(n)
}

// RecordSpokenPhrase feeds a phrase for duplicate detection.
func (m *Manager) RecordSpokenPhrase(p string) {
	m.detector.RecordSpokenPhrase(p)
}

// Monitor exposes the stability monitor for the supervision loop.
func (m *Manager) Monitor() *stability.Monitor { return m.monitor }

// Tracker exposes the section progress tracker.
func (m *Manager) Tracker() *tracker.Tracker { return m.track }

// Detector exposes the loop detector.
func (m *Manager) Detector() *loopdetect.Detector { return m.detector }

// Directive returns the immutable startup directive.
func (m *Manager) Directive() directive.Directive { return m.dir }

// #endregion delegation

// #region clear

// ClearRecoveryState forces the manager back to INIT: counters zeroed,
// histories emptied, progress reset, stability parameters reinitialized,
// and any persisted checkpoints dropped.
func (m *Manager) ClearRecoveryState() {
	m.restartCount = 0
	m.lastError = ""
	m.recoveryMode = false
	m.last = nil
	m.stabilityVal = 0.0
	m.phase = PhaseInit
	m.track.Reset()
	m.detector.Reset()
	m.monitor.Reset()
	if m.store != nil {
		if err := m.store.Clear(); err != nil {
			m.sink.Warn(events.KindArtifactFailure,
				fmt.Sprintf("failed to clear checkpoint store: %v", err))
		}
	}
}

// #endregion clear

// #region snapshot

// Phase returns the manager's state-machine position.
func (m *Manager) Phase() Phase { return m.phase }

// RestartCount returns the number of recorded crashes since the last
// reset.
func (m *Manager) RestartCount() int { return m.restartCount }

// LastError returns the most recent crash message.
func (m *Manager) LastError() string { return m.lastError }

// RecoveryMode reports whether the last resume came from a checkpoint.
func (m *Manager) RecoveryMode() bool { return m.recoveryMode }

// Snapshot returns a read-only view of the recovery state.
func (m *Manager) Snapshot() Snapshot {
	return Snapshot{
		Phase:              m.phase,
		RestartCount:       m.restartCount,
		LastError:          m.lastError,
		RecoveryMode:       m.recoveryMode,
		SectionProgress:    m.track.Snapshot(),
		RecursionStability: m.stabilityVal,
		LoopsEscaped:       m.detector.LoopsEscaped(),
		HasCheckpoint:      m.last != nil,
	}
}

// #endregion snapshot
