package reflection

import (
	"time"

	"github.com/kestrelops/mirrorcycle/internal/checkpoint"
	"github.com/kestrelops/mirrorcycle/internal/directive"
	"github.com/kestrelops/mirrorcycle/internal/envelope"
)

// #region input

// Input bundles everything one reflection needs.
type Input struct {
	Directive       directive.Directive
	State           envelope.Value
	SectionProgress map[string]float64
	Flags           checkpoint.FlagSnapshot
	Stability       float64
	Drift           float64
	Cycle           int
	Now             time.Time
}

// #endregion input

// #region metrics

// Metrics are the derived mirror metrics included in every record.
type Metrics struct {
	AlignmentScore float64 `json:"alignment_score"`
	RecursiveDrift float64 `json:"recursive_drift"`
}

// #endregion metrics

// #region record

// Record is the machine-readable reflection artifact. It is written
// once per cycle boundary and never mutated after emission.
type Record struct {
	State              envelope.Value          `json:"state"`
	Origin             string                  `json:"origin,omitempty"`
	Assignment         string                  `json:"assignment,omitempty"`
	CoreDirective      string                  `json:"core_directive"`
	FinalClause        string                  `json:"final_clause"`
	Symbol             string                  `json:"symbol"`
	Sections           []string                `json:"sections"`
	SectionProgress    map[string]float64      `json:"section_progress"`
	SectionFlags       checkpoint.FlagSnapshot `json:"section_flags"`
	RecursionStability float64                 `json:"recursion_stability"`
	MirrorMetrics      Metrics                 `json:"mirror_metrics"`
	Cycle              int                     `json:"cycle"`
	ReflectionTime     time.Time               `json:"reflection_time"`
}

// #endregion record

// #region result

// Result reports one completed emission.
type Result struct {
	Record     Record
	ReportPath string
	RecordPath string
}

// #endregion result
