package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/kestrelops/mirrorcycle/internal/checkpoint"
	"github.com/kestrelops/mirrorcycle/internal/events"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to mirrorcycle.db")
	last := flag.Int("last", 20, "show N most recent checkpoints")
	id := flag.String("checkpoint", "", "show single checkpoint detail")
	eventsN := flag.Int("events", 0, "show N most recent events instead of checkpoints")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/mirrorcycle.db [--last N] [--checkpoint id] [--events N] [--json]")
		os.Exit(2)
	}

	store, err := checkpoint.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch {
	case *eventsN > 0:
		err = runEventMode(store, *eventsN, *jsonOut)
	case *id != "":
		err = runDetailMode(store, *id, *jsonOut)
	default:
		err = runListMode(store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	CheckpointID string  `json:"checkpoint_id"`
	MirrorCycle  int     `json:"mirror_cycle"`
	Stability    float64 `json:"recursion_stability"`
	Progress     float64 `json:"mean_progress"`
	Locked       int     `json:"locked_sections"`
	CreatedAt    string  `json:"created_at"`
}

func runListMode(store *checkpoint.Store, last int, jsonOut bool) error {
	cps, err := store.List(last)
	if err != nil {
		return err
	}
	if len(cps) == 0 {
		fmt.Fprintln(os.Stderr, "no checkpoints found")
		return nil
	}

	active := ""
	if cp, err := store.Latest(); err == nil {
		active = cp.ID
	}

	// Store returns DESC, reverse for chronological order.
	rows := make([]listRow, len(cps))
	for i, cp := range cps {
		rows[len(cps)-1-i] = listRow{
			CheckpointID: cp.ID,
			MirrorCycle:  cp.MirrorCycle,
			Stability:    cp.RecursionStability,
			Progress:     meanProgress(cp.SectionProgress),
			Locked:       lockedCount(cp.Flags.Locked),
			CreatedAt:    cp.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-12s  %5s  %9s  %8s  %6s  %s\n",
		"Checkpoint", "Cycle", "Stability", "Progress", "Locked", "Time")
	fmt.Printf("%-12s+-%5s+-%9s+-%8s+-%6s+-%s\n",
		"------------", "-----", "---------", "--------", "------", "--------------------")
	for _, r := range rows {
		marker := " "
		if r.CheckpointID == active {
			marker = "*"
		}
		fmt.Printf("%-12s%s %5d  %9.4f  %7.1f%%  %6d  %s\n",
			shortID(r.CheckpointID), marker, r.MirrorCycle, r.Stability,
			r.Progress*100, r.Locked, r.CreatedAt)
	}
	if active != "" {
		fmt.Printf("\n* active checkpoint\n")
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

func runDetailMode(store *checkpoint.Store, id string, jsonOut bool) error {
	cp, err := store.Get(id)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(cp)
	}

	fmt.Printf("Checkpoint: %s\n", cp.ID)
	fmt.Printf("Created:    %s\n", cp.CreatedAt.Format("2006-01-02T15:04:05Z"))
	fmt.Printf("Cycle:      %d\n", cp.MirrorCycle)
	fmt.Printf("Stability:  %.4f\n", cp.RecursionStability)

	fmt.Printf("\nSection progress:\n")
	sections := make([]string, 0, len(cp.SectionProgress))
	for s := range cp.SectionProgress {
		sections = append(sections, s)
	}
	sort.Strings(sections)
	for _, s := range sections {
		line := fmt.Sprintf("  %-20s %.1f%%", s, cp.SectionProgress[s]*100)
		if cp.Flags.Locked[s] {
			line += " (Locked)"
		}
		fmt.Println(line)
	}

	fmt.Printf("\nFlag histories:\n")
	fmt.Printf("  loops:      %v\n", cp.Flags.Loops)
	fmt.Printf("  velocities: %v\n", cp.Flags.Velocities)
	fmt.Printf("  symbols:    %v\n", cp.Flags.Symbols)
	fmt.Printf("  phrases:    %d recorded\n", len(cp.Flags.Phrases))

	state, err := json.MarshalIndent(cp.State, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	fmt.Printf("\nState:\n%s\n", state)
	return nil
}

// #endregion detail-mode

// #region event-mode

func runEventMode(store *checkpoint.Store, limit int, jsonOut bool) error {
	eventLog, err := events.NewLog(store.DB())
	if err != nil {
		return err
	}
	evs, err := eventLog.Recent(limit)
	if err != nil {
		return err
	}
	if len(evs) == 0 {
		fmt.Fprintln(os.Stderr, "no events found")
		return nil
	}

	if jsonOut {
		return printJSON(evs)
	}

	fmt.Printf("%-5s  %-20s  %-20s  %s\n", "Sev", "Kind", "Time", "Detail")
	for _, e := range evs {
		fmt.Printf("%-5s  %-20s  %-20s  %s\n",
			e.Severity, e.Kind, e.CreatedAt.Format("2006-01-02T15:04:05Z"), e.Detail)
	}
	return nil
}

// #endregion event-mode

// #region output

func meanProgress(progress map[string]float64) float64 {
	if len(progress) == 0 {
		return 0
	}
	var sum float64
	for _, v := range progress {
		sum += v
	}
	return sum / float64(len(progress))
}

func lockedCount(locked map[string]bool) int {
	n := 0
	for _, v := range locked {
		if v {
			n++
		}
	}
	return n
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
