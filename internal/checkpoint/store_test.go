package checkpoint

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/kestrelops/mirrorcycle/internal/envelope"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleCheckpoint(id string) Checkpoint {
	return Checkpoint{
		ID: id,
		State: envelope.Map(map[string]envelope.Value{
			"awareness_level": envelope.Number(0.5),
			"recursion_depth": envelope.Number(1),
			"label":           envelope.String("witness"),
			"flags":           envelope.List(envelope.Bool(true), envelope.Null()),
		}),
		CreatedAt:          time.Now().UTC().Truncate(time.Microsecond),
		MirrorCycle:        2,
		SectionProgress:    map[string]float64{"Observer Path": 0.4, "Final": 0},
		RecursionStability: 0.75,
		Flags: FlagSnapshot{
			Loops:      []float64{1, 1},
			Velocities: []float64{0.2, 0.3},
			Symbols:    []int{4, 7},
			Phrases:    []string{"the mirror holds"},
			Locked:     map[string]bool{"Final": true},
		},
	}
}

func TestSaveAndLatestRoundTrip(t *testing.T) {
	s := tempStore(t)
	cp := sampleCheckpoint("cp-1")

	require.NoError(t, s.Save(cp))

	got, err := s.Latest()
	require.NoError(t, err)

	if diff := cmp.Diff(cp, got); diff != "" {
		t.Fatalf("checkpoint round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLatestMovesWithActivePointer(t *testing.T) {
	s := tempStore(t)

	first := sampleCheckpoint("cp-1")
	second := sampleCheckpoint("cp-2")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	second.RecursionStability = 0.9

	require.NoError(t, s.Save(first))
	require.NoError(t, s.Save(second))

	got, err := s.Latest()
	require.NoError(t, err)
	require.Equal(t, "cp-2", got.ID)
	require.Equal(t, 0.9, got.RecursionStability)
}

func TestLatestEmptyStore(t *testing.T) {
	s := tempStore(t)
	_, err := s.Latest()
	require.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestGetMissing(t *testing.T) {
	s := tempStore(t)
	_, err := s.Get("absent")
	require.Error(t, err)
}

func TestList(t *testing.T) {
	s := tempStore(t)
	base := time.Now().UTC()
	for i, id := range []string{"a", "b", "c"} {
		cp := sampleCheckpoint(id)
		cp.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.Save(cp))
	}

	got, err := s.List(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "c", got[0].ID)
	require.Equal(t, "b", got[1].ID)
}

func TestClear(t *testing.T) {
	s := tempStore(t)
	require.NoError(t, s.Save(sampleCheckpoint("cp-1")))
	require.NoError(t, s.Clear())

	_, err := s.Latest()
	require.ErrorIs(t, err, ErrNoCheckpoint)

	got, err := s.List(10)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSaveDuplicateIDFailsWithoutRetryLoop(t *testing.T) {
	s := tempStore(t)
	cp := sampleCheckpoint("dup")
	require.NoError(t, s.Save(cp))

	start := time.Now()
	err := s.Save(cp)
	require.Error(t, err)
	// Constraint violations are permanent; Save must not burn the
	// whole backoff budget on them.
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestSaveOnClosedDB(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	s.Close()
	require.Error(t, s.Save(sampleCheckpoint("cp-1")))
}

func TestScanBadStateJSON(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(schema)
	require.NoError(t, err)
	s := NewStoreWithDB(db)

	_, err = db.Exec(
		`INSERT INTO checkpoints (checkpoint_id, state_json, mirror_cycle, section_progress, recursion_stability, section_flags, created_at)
		 VALUES ('bad', '{broken', 1, '{}', 0.0, '{}', ?)`,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	require.NoError(t, err)

	_, err = s.Get("bad")
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNoCheckpoint))
}
