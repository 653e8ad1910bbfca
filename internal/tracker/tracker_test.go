package tracker

import (
	"math"
	"testing"

	"github.com/kestrelops/mirrorcycle/internal/events"
)

var sections = []string{"Observer Path", "Mirrors", "Symbols", "Spoken Words", "Final"}

func TestUpdateClampsProgress(t *testing.T) {
	tr := New(sections, nil)

	cases := []struct {
		in   float64
		want float64
	}{
		{0.5, 0.5},
		{-0.3, 0},
		{1.7, 1},
		{0, 0},
		{1, 1},
		{math.NaN(), 0},
	}
	for _, c := range cases {
		tr.Update("Observer Path", c.in)
		if got := tr.Progress("Observer Path"); got != c.want {
			t.Fatalf("Update(%v): expected %v, got %v", c.in, c.want, got)
		}
	}
}

func TestFinalSectionLockedByDefault(t *testing.T) {
	tr := New(sections, nil)
	if !tr.Locked("Final") {
		t.Fatal("expected final section locked by default")
	}

	tr.Update("Final", 0.9)
	if got := tr.Progress("Final"); got != 0 {
		t.Fatalf("locked write changed value: %v", got)
	}

	tr.Unlock("Final")
	tr.Update("Final", 0.9)
	if got := tr.Progress("Final"); got != 0.9 {
		t.Fatalf("expected 0.9 after unlock, got %v", got)
	}
}

func TestLockedWriteEmitsWarning(t *testing.T) {
	sink := events.NewCapture()
	tr := New(sections, sink)

	tr.Update("Final", 0.5)
	if got := sink.CountKind(events.KindLockedWrite); got != 1 {
		t.Fatalf("expected 1 locked_write event, got %d", got)
	}
}

func TestUnknownSectionIgnored(t *testing.T) {
	tr := New(sections, nil)
	tr.Update("Nonexistent", 0.8)
	if _, ok := tr.Snapshot()["Nonexistent"]; ok {
		t.Fatal("unknown section should not be tracked")
	}
}

func TestMean(t *testing.T) {
	tr := New([]string{"A", "B"}, nil)
	tr.Update("A", 0.4)
	// B is the final section and locked; mean over {0.4, 0}.
	if got := tr.Mean(); got != 0.2 {
		t.Fatalf("expected mean 0.2, got %v", got)
	}
}

func TestRestore(t *testing.T) {
	tr := New(sections, nil)
	tr.Unlock("Final")

	tr.Restore(
		map[string]float64{"Observer Path": 1.4, "Final": 0.6, "Ghost": 0.2},
		map[string]bool{"Final": true, "Ghost": true},
	)

	if got := tr.Progress("Observer Path"); got != 1 {
		t.Fatalf("expected clamped 1, got %v", got)
	}
	if got := tr.Progress("Final"); got != 0.6 {
		t.Fatalf("expected 0.6, got %v", got)
	}
	if !tr.Locked("Final") {
		t.Fatal("expected restored lock on Final")
	}
	if tr.Locked("Ghost") {
		t.Fatal("unknown section lock should be dropped")
	}
}

func TestReset(t *testing.T) {
	tr := New(sections, nil)
	tr.Update("Observer Path", 0.7)
	tr.Unlock("Final")
	tr.Update("Final", 0.5)

	tr.Reset()

	for _, s := range sections {
		if tr.Progress(s) != 0 {
			t.Fatalf("expected zero progress for %s", s)
		}
	}
	if !tr.Locked("Final") {
		t.Fatal("reset should relock the final section")
	}
}

func TestEmptySectionList(t *testing.T) {
	tr := New(nil, nil)
	if tr.Mean() != 0 {
		t.Fatal("expected zero mean for empty tracker")
	}
	tr.Update("anything", 0.5) // must not panic
	tr.Reset()
}
