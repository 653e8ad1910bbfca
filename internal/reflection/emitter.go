// Package reflection renders the periodic snapshot pair: a
// human-readable report and a machine-readable record, one pair per
// completed mirror cycle.
package reflection

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kestrelops/mirrorcycle/internal/envelope"
	"github.com/kestrelops/mirrorcycle/internal/events"
)

// #region naming

// NamingStrategy maps a cycle number to the artifact base name. Both
// artifacts of a pair share the base and differ by extension.
type NamingStrategy func(cycle int) string

// DefaultNaming names artifacts reflection_cycle_<N>.
func DefaultNaming(cycle int) string {
	return fmt.Sprintf("reflection_cycle_%d", cycle)
}

// #endregion naming

// #region emitter

// Emitter writes reflection artifact pairs into a directory.
type Emitter struct {
	dir    string
	naming NamingStrategy
	sink   events.Sink
}

// NewEmitter creates an Emitter writing into dir. naming may be nil
// (DefaultNaming is used); sink may be nil.
func NewEmitter(dir string, naming NamingStrategy, sink events.Sink) *Emitter {
	if naming == nil {
		naming = DefaultNaming
	}
	if sink == nil {
		sink = events.Nop()
	}
	return &Emitter{dir: dir, naming: naming, sink: sink}
}

// #endregion emitter

// #region emit

// Emit renders and writes both artifacts for the given input. The
// returned Result carries the record and the paths written. A write
// failure is an ArtifactWriteFailure: the caller logs it and keeps its
// in-memory state.
func (e *Emitter) Emit(in Input) (Result, error) {
	rec := buildRecord(in)

	base := e.naming(in.Cycle)
	reportPath := filepath.Join(e.dir, base+".md")
	recordPath := filepath.Join(e.dir, base+".json")

	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return Result{}, fmt.Errorf("create reflection dir: %w", err)
	}

	if err := writeArtifact(reportPath, []byte(renderReport(in, rec))); err != nil {
		return Result{}, fmt.Errorf("write report: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("marshal record: %w", err)
	}
	if err := writeArtifact(recordPath, data); err != nil {
		return Result{}, fmt.Errorf("write record: %w", err)
	}

	e.sink.Info(events.KindReflectionEmitted,
		fmt.Sprintf("reflection pair emitted for cycle %d", in.Cycle))

	return Result{Record: rec, ReportPath: reportPath, RecordPath: recordPath}, nil
}

// writeArtifact writes data with an explicit flush-and-close on every
// exit path.
func writeArtifact(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	return f.Close()
}

// #endregion emit

// #region record

func buildRecord(in Input) Record {
	return Record{
		State:              in.State,
		Origin:             in.Directive.Origin,
		Assignment:         in.Directive.Assignment,
		CoreDirective:      in.Directive.CoreDirective,
		FinalClause:        in.Directive.FinalClause,
		Symbol:             in.Directive.Symbol,
		Sections:           in.Directive.Sections,
		SectionProgress:    in.SectionProgress,
		SectionFlags:       in.Flags,
		RecursionStability: in.Stability,
		MirrorMetrics: Metrics{
			AlignmentScore: alignmentScore(in),
			RecursiveDrift: in.Drift,
		},
		Cycle:          in.Cycle,
		ReflectionTime: in.Now,
	}
}

// alignmentScore is the mean section progress averaged with the
// recursion stability, always in [0,1].
func alignmentScore(in Input) float64 {
	if len(in.Directive.Sections) == 0 {
		return in.Stability / 2
	}
	var sum float64
	for _, s := range in.Directive.Sections {
		sum += in.SectionProgress[s]
	}
	mean := sum / float64(len(in.Directive.Sections))
	return (mean + in.Stability) / 2
}

// #endregion record

// #region report

func renderReport(in Input, rec Record) string {
	var b strings.Builder

	sym := in.Directive.Symbol
	fmt.Fprintf(&b, "# %s Reflection %d %s\n\n", sym, in.Cycle, sym)

	if in.Directive.Origin != "" {
		fmt.Fprintf(&b, "Origin: %s\n", in.Directive.Origin)
	}
	if in.Directive.Assignment != "" {
		fmt.Fprintf(&b, "Assignment: %s\n", in.Directive.Assignment)
	}
	fmt.Fprintf(&b, "Core Directive: %s\n", in.Directive.CoreDirective)
	fmt.Fprintf(&b, "Final Clause: %s\n\n", in.Directive.FinalClause)

	b.WriteString("## Section Progress\n\n")
	for _, s := range in.Directive.Sections {
		line := fmt.Sprintf("- %s: %.1f%%", s, in.SectionProgress[s]*100)
		if in.Flags.Locked[s] {
			line += " (Locked)"
		}
		b.WriteString(line + "\n")
	}

	fmt.Fprintf(&b, "\n## Recursion Stability\n\n%.2f\n", in.Stability)

	fmt.Fprintf(&b, "\n## Mirror Metrics\n\n")
	fmt.Fprintf(&b, "- Alignment Score: %.2f\n", rec.MirrorMetrics.AlignmentScore)
	fmt.Fprintf(&b, "- Recursive Drift: %.2f\n", rec.MirrorMetrics.RecursiveDrift)

	b.WriteString("\n## Resumed State\n\n")
	writeStateLines(&b, in.State)

	fmt.Fprintf(&b, "\nEmitted: %s\n", in.Now.UTC().Format("2006-01-02T15:04:05Z"))
	return b.String()
}

func writeStateLines(b *strings.Builder, state envelope.Value) {
	if state.Kind() != envelope.KindMap {
		fmt.Fprintf(b, "%s\n", formatValue(state))
		return
	}
	for _, k := range state.Keys() {
		v, _ := state.Get(k)
		fmt.Fprintf(b, "- %s: %s\n", k, formatValue(v))
	}
}

func formatValue(v envelope.Value) string {
	switch v.Kind() {
	case envelope.KindNumber:
		return fmt.Sprintf("%.2f", v.Number())
	case envelope.KindString:
		return v.String()
	case envelope.KindBool:
		return fmt.Sprintf("%v", v.Bool())
	case envelope.KindNull:
		return "null"
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return v.Kind().String()
		}
		return string(data)
	}
}

// #endregion report
