// Package events carries the recovery subsystem's observability
// signals. Loop detections, rejected writes, and restart decisions are
// events, not errors: they are reported to a Sink and never propagate
// as failures.
package events

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// #region kinds

// Kind identifies an event class.
type Kind string

const (
	KindLoopDetected      Kind = "loop_detected"
	KindNearLoop          Kind = "near_loop"
	KindDuplicatePhrase   Kind = "duplicate_phrase"
	KindLockedWrite       Kind = "locked_write"
	KindSectionUnlocked   Kind = "section_unlocked"
	KindReflectionEmitted Kind = "reflection_emitted"
	KindRestartRejected   Kind = "restart_rejected"
	KindRecoveryMissing   Kind = "recovery_unavailable"
	KindCooldownWait      Kind = "cooldown_wait"
	KindRecoveryStarted   Kind = "recovery_started"
	KindArtifactFailure   Kind = "artifact_failure"
)

// #endregion kinds

// #region event

// Event is one emitted signal.
type Event struct {
	Kind      Kind
	Severity  string // "info" | "warn"
	Detail    string
	CreatedAt time.Time
}

// #endregion event

// #region sink

// Sink receives events. Implementations must not fail: the recovery
// path reports through a Sink while handling a crash.
type Sink interface {
	Warn(kind Kind, detail string)
	Info(kind Kind, detail string)
}

// #endregion sink

// #region zap-sink

// ZapSink forwards events to a zap logger.
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink wraps a zap logger as a Sink. A nil logger yields a
// no-op sink.
func NewZapSink(log *zap.Logger) *ZapSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapSink{log: log}
}

// Warn reports a warning-level event.
func (s *ZapSink) Warn(kind Kind, detail string) {
	s.log.Warn(detail, zap.String("event", string(kind)))
}

// Info reports an informational event.
func (s *ZapSink) Info(kind Kind, detail string) {
	s.log.Info(detail, zap.String("event", string(kind)))
}

// #endregion zap-sink

// #region nop-sink

// Nop returns a Sink that discards everything.
func Nop() Sink { return nopSink{} }

type nopSink struct{}

func (nopSink) Warn(Kind, string) {}
func (nopSink) Info(Kind, string) {}

// #endregion nop-sink

// #region multi-sink

// Multi fans events out to every given sink.
func Multi(sinks ...Sink) Sink { return multiSink(sinks) }

type multiSink []Sink

func (m multiSink) Warn(kind Kind, detail string) {
	for _, s := range m {
		s.Warn(kind, detail)
	}
}

func (m multiSink) Info(kind Kind, detail string) {
	for _, s := range m {
		s.Info(kind, detail)
	}
}

// #endregion multi-sink

// #region capture-sink

// Capture records events in memory for tests.
type Capture struct {
	mu     sync.Mutex
	events []Event
}

// NewCapture returns an empty capturing sink.
func NewCapture() *Capture { return &Capture{} }

// Warn records a warning event.
func (c *Capture) Warn(kind Kind, detail string) { c.record("warn", kind, detail) }

// Info records an info event.
func (c *Capture) Info(kind Kind, detail string) { c.record("info", kind, detail) }

func (c *Capture) record(severity string, kind Kind, detail string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, Event{
		Kind:      kind,
		Severity:  severity,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
}

// Events returns a copy of everything recorded so far.
func (c *Capture) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// CountKind returns how many events of the given kind were recorded.
func (c *Capture) CountKind(kind Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Reset discards recorded events.
func (c *Capture) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// #endregion capture-sink
