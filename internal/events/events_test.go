package events

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func TestCaptureRecordsAndCounts(t *testing.T) {
	c := NewCapture()
	c.Warn(KindLoopDetected, "loop window saturated")
	c.Warn(KindLoopDetected, "loop window saturated")
	c.Info(KindRecoveryStarted, "resuming from checkpoint")

	if got := c.CountKind(KindLoopDetected); got != 2 {
		t.Fatalf("expected 2 loop events, got %d", got)
	}
	evs := c.Events()
	if len(evs) != 3 {
		t.Fatalf("expected 3 events, got %d", len(evs))
	}
	if evs[2].Severity != "info" {
		t.Fatalf("expected info severity, got %s", evs[2].Severity)
	}

	c.Reset()
	if len(c.Events()) != 0 {
		t.Fatal("expected empty capture after reset")
	}
}

func TestMultiFansOut(t *testing.T) {
	a := NewCapture()
	b := NewCapture()
	m := Multi(a, b)
	m.Warn(KindLockedWrite, "rejected write to locked section")

	if a.CountKind(KindLockedWrite) != 1 || b.CountKind(KindLockedWrite) != 1 {
		t.Fatal("expected event in both sinks")
	}
}

func TestNopSink(t *testing.T) {
	// Must not panic.
	Nop().Warn(KindNearLoop, "x")
	Nop().Info(KindNearLoop, "x")
}

func TestZapSinkNilLogger(t *testing.T) {
	s := NewZapSink(nil)
	s.Warn(KindDuplicatePhrase, "x")
	s.Info(KindDuplicatePhrase, "x")
}

func memLog(t *testing.T) *Log {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	l, err := NewLog(db)
	if err != nil {
		t.Fatalf("NewLog: %v", err)
	}
	return l
}

func TestLogAppendAndRecent(t *testing.T) {
	l := memLog(t)
	if err := l.Append("warn", KindLoopDetected, "first"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Append("info", KindReflectionEmitted, "second"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	evs, err := l.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	// Newest first.
	if evs[0].Kind != KindReflectionEmitted {
		t.Fatalf("expected newest first, got %s", evs[0].Kind)
	}

	n, err := l.CountKind(KindLoopDetected)
	if err != nil {
		t.Fatalf("CountKind: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1, got %d", n)
	}
}

func TestLogSinkPersists(t *testing.T) {
	l := memLog(t)
	s := l.Sink()
	s.Warn(KindLockedWrite, "rejected")
	s.Info(KindRecoveryStarted, "resumed")

	evs, err := l.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("expected 2 persisted events, got %d", len(evs))
	}
}
