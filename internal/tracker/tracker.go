// Package tracker maintains per-section progress for the ordered
// sections a directive names. Progress is always clamped to [0,1] and
// a locked section rejects writes until it is explicitly unlocked.
package tracker

import (
	"fmt"
	"math"

	"github.com/kestrelops/mirrorcycle/internal/events"
)

// #region tracker

// Tracker holds clamped per-section progress and per-section locks.
// Not safe for concurrent writers; the owning supervision loop must
// serialize access.
type Tracker struct {
	order    []string
	progress map[string]float64
	locked   map[string]bool
	sink     events.Sink
}

// New creates a Tracker for the given ordered sections with all
// progress at zero. The final section starts locked; unlocking it
// models an explicit external authorization event.
func New(sections []string, sink events.Sink) *Tracker {
	if sink == nil {
		sink = events.Nop()
	}
	t := &Tracker{
		order:    append([]string(nil), sections...),
		progress: make(map[string]float64, len(sections)),
		locked:   make(map[string]bool, 1),
		sink:     sink,
	}
	for _, s := range sections {
		t.progress[s] = 0
	}
	if len(sections) > 0 {
		t.locked[sections[len(sections)-1]] = true
	}
	return t
}

// #endregion tracker

// #region update

// Update sets a section's progress, clamped to [0,1]. Writes to
// unknown sections are ignored; writes to locked sections are silently
// rejected and reported to the event sink.
func (t *Tracker) Update(section string, progress float64) {
	if _, ok := t.progress[section]; !ok {
		return
	}
	if t.locked[section] {
		t.sink.Warn(events.KindLockedWrite,
			fmt.Sprintf("rejected progress write to locked section %q", section))
		return
	}
	t.progress[section] = clamp01(progress)
}

// #endregion update

// #region locks

// Unlock clears a section's lock. It is the only way a locked section
// becomes writable again.
func (t *Tracker) Unlock(section string) {
	if !t.locked[section] {
		return
	}
	delete(t.locked, section)
	t.sink.Info(events.KindSectionUnlocked, fmt.Sprintf("section %q unlocked", section))
}

// Locked reports whether a section currently rejects writes.
func (t *Tracker) Locked(section string) bool {
	return t.locked[section]
}

// #endregion locks

// #region accessors

// Progress returns a section's stored progress.
func (t *Tracker) Progress(section string) float64 {
	return t.progress[section]
}

// Sections returns the directive's section order.
func (t *Tracker) Sections() []string {
	return append([]string(nil), t.order...)
}

// Mean returns the average progress across all sections, 0 when the
// tracker has none.
func (t *Tracker) Mean() float64 {
	if len(t.order) == 0 {
		return 0
	}
	var sum float64
	for _, s := range t.order {
		sum += t.progress[s]
	}
	return sum / float64(len(t.order))
}

// Snapshot returns a copy of the progress map.
func (t *Tracker) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(t.progress))
	for k, v := range t.progress {
		out[k] = v
	}
	return out
}

// LockSnapshot returns a copy of the lock map.
func (t *Tracker) LockSnapshot() map[string]bool {
	out := make(map[string]bool, len(t.locked))
	for k, v := range t.locked {
		out[k] = v
	}
	return out
}

// #endregion accessors

// #region restore

// Restore overwrites progress and locks from checkpoint snapshots.
// Values are clamped on the way in; sections the tracker does not know
// are dropped.
func (t *Tracker) Restore(progress map[string]float64, locked map[string]bool) {
	for _, s := range t.order {
		if v, ok := progress[s]; ok {
			t.progress[s] = clamp01(v)
		}
	}
	t.locked = make(map[string]bool, len(locked))
	for s, on := range locked {
		if _, ok := t.progress[s]; ok && on {
			t.locked[s] = true
		}
	}
}

// Reset zeroes all progress and relocks the final section.
func (t *Tracker) Reset() {
	for _, s := range t.order {
		t.progress[s] = 0
	}
	t.locked = make(map[string]bool, 1)
	if len(t.order) > 0 {
		t.locked[t.order[len(t.order)-1]] = true
	}
}

// #endregion restore

// #region helpers

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion helpers
