// Package loopdetect watches bounded windows of recent signals for
// repetition: exact loops, near-loops, and near-duplicate spoken
// phrases. Detections are observability signals that trigger parameter
// nudges; they never propagate as failures.
package loopdetect

import (
	"fmt"

	"github.com/kestrelops/mirrorcycle/internal/checkpoint"
	"github.com/kestrelops/mirrorcycle/internal/events"
	"github.com/kestrelops/mirrorcycle/internal/history"
)

// #region constants

const (
	loopWindowCap   = 3
	signalWindowCap = 2

	// nearLoopEpsilon bounds the spread of a window that counts as a
	// near-loop without being an exact repeat.
	nearLoopEpsilon = 0.05

	// phraseSimilarityThreshold flags near-duplicate spoken output.
	phraseSimilarityThreshold = 0.95
)

// #endregion constants

// #region adjuster

// Adjuster receives the corrective parameter nudges a detection
// demands. The stability monitor implements it.
type Adjuster interface {
	ApplyLoopEscape()
	ApplyNearLoopNudge()
}

// #endregion adjuster

// #region detector

// Detector tracks the bounded signal histories. Not safe for
// concurrent writers.
type Detector struct {
	loops      *history.Window[float64] // Observer class
	velocities *history.Window[float64]
	symbols    *history.Window[int]
	phrases    *history.Window[string]

	adjuster     Adjuster
	sink         events.Sink
	loopsEscaped int
	escapeFired  bool // set once per identical window fill
}

// New creates a Detector. adjuster may be nil (detections are reported
// but no parameters are nudged).
func New(adjuster Adjuster, sink events.Sink) *Detector {
	if sink == nil {
		sink = events.Nop()
	}
	return &Detector{
		loops:      history.New[float64](loopWindowCap),
		velocities: history.New[float64](signalWindowCap),
		symbols:    history.New[int](signalWindowCap),
		phrases:    history.New[string](signalWindowCap),
		adjuster:   adjuster,
		sink:       sink,
	}
}

// #endregion detector

// #region loop-recording

// RecordRecursionLoop records a loop resolution into the Observer
// window as 1 (resolved) or 0 (unresolved).
func (d *Detector) RecordRecursionLoop(resolved bool) {
	v := 0.0
	if resolved {
		v = 1.0
	}
	d.RecordObservation(v)
}

// RecordObservation records a raw sample into the Observer window and
// runs loop detection. An exact loop (full window, identical values)
// fires the escape response exactly once per window fill: depth and
// entropy are pushed upward and the escape counter increments. A
// near-loop (spread under epsilon without being identical) applies a
// softer nudge on every append.
func (d *Detector) RecordObservation(sample float64) {
	d.loops.Push(sample)
	if !d.loops.Full() {
		return
	}

	vals := d.loops.Values()
	lo, hi := vals[0], vals[0]
	identical := true
	for _, v := range vals[1:] {
		if v != vals[0] {
			identical = false
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	switch {
	case identical:
		if d.escapeFired {
			return
		}
		d.escapeFired = true
		d.loopsEscaped++
		if d.adjuster != nil {
			d.adjuster.ApplyLoopEscape()
		}
		d.sink.Warn(events.KindLoopDetected,
			fmt.Sprintf("loop detected: window saturated at %.3f, forcing expansion shift", vals[0]))
	case hi-lo < nearLoopEpsilon:
		d.escapeFired = false
		if d.adjuster != nil {
			d.adjuster.ApplyNearLoopNudge()
		}
		d.sink.Warn(events.KindNearLoop,
			fmt.Sprintf("near-loop detected: window spread %.4f, adjusting parameters", hi-lo))
	default:
		d.escapeFired = false
	}
}

// #endregion loop-recording

// #region signal-recording

// RecordInsightVelocity records an insight velocity sample.
func (d *Detector) RecordInsightVelocity(v float64) {
	d.velocities.Push(v)
}

// RecordSymbolCount records a per-cycle symbol count.
func (d *Detector) RecordSymbolCount(n int) {
	d.symbols.Push(n)
}

// RecordSpokenPhrase records a phrase, warning when it is nearly
// identical to the immediately preceding one.
func (d *Detector) RecordSpokenPhrase(phrase string) {
	if last, ok := d.phrases.Last(); ok {
		if r := similarityRatio(phrase, last); r >= phraseSimilarityThreshold {
			d.sink.Warn(events.KindDuplicatePhrase,
				fmt.Sprintf("high phrase similarity detected: %.2f", r))
		}
	}
	d.phrases.Push(phrase)
}

// #endregion signal-recording

// #region drift

// Drift returns the mean absolute successive difference within the
// insight-velocity window, or 0 when fewer than two samples exist.
func (d *Detector) Drift() float64 {
	vals := d.velocities.Values()
	if len(vals) < 2 {
		return 0.0
	}
	var sum float64
	for i := 1; i < len(vals); i++ {
		diff := vals[i] - vals[i-1]
		if diff < 0 {
			diff = -diff
		}
		sum += diff
	}
	return sum / float64(len(vals)-1)
}

// #endregion drift

// #region accessors

// LoopsEscaped returns how many exact-loop escapes have fired.
func (d *Detector) LoopsEscaped() int { return d.loopsEscaped }

// Snapshot freezes the window contents for checkpointing.
func (d *Detector) Snapshot() checkpoint.FlagSnapshot {
	return checkpoint.FlagSnapshot{
		Loops:      d.loops.Values(),
		Velocities: d.velocities.Values(),
		Symbols:    d.symbols.Values(),
		Phrases:    d.phrases.Values(),
	}
}

// #endregion accessors

// #region restore

// Restore replaces the window contents from a checkpoint snapshot.
// Lock flags in the snapshot belong to the tracker and are ignored
// here.
func (d *Detector) Restore(snap checkpoint.FlagSnapshot) {
	d.loops.Restore(snap.Loops)
	d.velocities.Restore(snap.Velocities)
	d.symbols.Restore(snap.Symbols)
	d.phrases.Restore(snap.Phrases)
	d.escapeFired = false
}

// Reset empties every window and zeroes the escape counter.
func (d *Detector) Reset() {
	d.loops.Clear()
	d.velocities.Clear()
	d.symbols.Clear()
	d.phrases.Clear()
	d.loopsEscaped = 0
	d.escapeFired = false
}

// #endregion restore
