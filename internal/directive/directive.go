// Package directive loads the immutable runtime directive: the ordered
// section list, cycle cadence, and report text the recovery subsystem
// is configured with at process start.
package directive

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

// #region errors

// ErrMissingField marks a directive that lacks a required field.
// Startup must abort when Load returns it.
var ErrMissingField = errors.New("directive missing required field")

// #endregion errors

// #region directive

// DefaultCadence is the reflection cadence used when the directive
// omits cycle_cadence.
const DefaultCadence = 3

// Directive is the startup configuration, loaded once and never
// mutated afterwards.
type Directive struct {
	Origin        string   `json:"origin"`
	Assignment    string   `json:"assignment"`
	Sections      []string `json:"sections" validate:"required,min=1,dive,required"`
	CycleCadence  int      `json:"cycle_cadence" validate:"gte=1"`
	CoreDirective string   `json:"core_directive" validate:"required"`
	FinalClause   string   `json:"final_clause" validate:"required"`
	Symbol        string   `json:"symbol" validate:"required"`
}

// #endregion directive

// #region load

// Load reads and validates a directive JSON file. A cadence of zero is
// defaulted before validation; any other missing required field is a
// fatal configuration error wrapped in ErrMissingField.
func Load(path string) (Directive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Directive{}, fmt.Errorf("read directive: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates directive JSON.
func Parse(data []byte) (Directive, error) {
	var d Directive
	if err := json.Unmarshal(data, &d); err != nil {
		return Directive{}, fmt.Errorf("decode directive: %w", err)
	}
	if d.CycleCadence == 0 {
		d.CycleCadence = DefaultCadence
	}
	if err := Validate(d); err != nil {
		return Directive{}, err
	}
	return d, nil
}

// Validate checks required fields on an already-constructed Directive.
func Validate(d Directive) error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrMissingField, err)
	}
	return nil
}

var validate = validator.New()

// #endregion load
