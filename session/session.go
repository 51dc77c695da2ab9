// Package session defines the document-signing session record and the
// step arithmetic the workflow engine runs on it.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/georgepadayatti/signflow/field"
)

// Common errors
var (
	ErrNoFields      = errors.New("session requires at least one field")
	ErrNoSignerField = errors.New("session requires at least one non-static field")
)

// Session is one instance of a document routed through its signer
// sequence. The pdf pointer is reassigned whenever a signature is
// burned in, since signing materializes a new document version.
type Session struct {
	PDF    string        `json:"pdf"`
	Fields []field.Field `json:"fields"`

	// CanvasWidth and CanvasHeight record the UI canvas the field
	// positions were captured on. Required for coordinate mapping.
	CanvasWidth  float64 `json:"canvas_w"`
	CanvasHeight float64 `json:"canvas_h"`

	// Message is a free-text note propagated signer to signer.
	Message string `json:"message,omitempty"`

	// Finalized is set once the terminal send has been dispatched and
	// guards against re-sending.
	Finalized bool `json:"finalized"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New builds a session over the given document and fields, applying
// per-kind defaults and renumbering steps densely in field-array order.
func New(pdf string, fields []field.Field, canvasW, canvasH float64, message string, now time.Time) (*Session, error) {
	if len(fields) == 0 {
		return nil, ErrNoFields
	}

	hasSigner := false
	for i := range fields {
		fields[i].ApplyDefaults()
		fields[i].Value = stripFillValue(fields[i])
		fields[i].Signed = false
		if err := fields[i].Validate(); err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		if !fields[i].Kind.Static() {
			hasSigner = true
		}
	}
	if !hasSigner {
		return nil, ErrNoSignerField
	}

	s := &Session{
		PDF:          pdf,
		Fields:       fields,
		CanvasWidth:  canvasW,
		CanvasHeight: canvasH,
		Message:      message,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.NormalizeSteps()
	return s, nil
}

// stripFillValue clears signer-submitted values at creation time while
// keeping preset static text.
func stripFillValue(f field.Field) string {
	if f.Kind.Static() {
		return f.Value
	}
	return ""
}

// NormalizeSteps renumbers signer steps to dense integers starting at
// zero, preserving the relative order the layout assigned. Static
// fields keep step zero; their step carries no meaning. Steps are never
// renumbered again after creation.
func (s *Session) NormalizeSteps() {
	seen := map[int]bool{}
	var order []int
	for _, f := range s.Fields {
		if f.Kind.Static() {
			continue
		}
		if !seen[f.Step] {
			seen[f.Step] = true
			order = append(order, f.Step)
		}
	}

	// Dense rank by ascending original step number.
	rank := map[int]int{}
	sorted := append([]int(nil), order...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	for i, step := range sorted {
		rank[step] = i
	}

	for i := range s.Fields {
		if s.Fields[i].Kind.Static() {
			s.Fields[i].Step = 0
			continue
		}
		s.Fields[i].Step = rank[s.Fields[i].Step]
	}
}

// CurrentStep returns the minimum step among unsigned non-static
// fields. ok is false when every signer field is signed.
func (s *Session) CurrentStep() (step int, ok bool) {
	found := false
	for _, f := range s.Fields {
		if f.Kind.Static() || f.Signed {
			continue
		}
		if !found || f.Step < step {
			step = f.Step
			found = true
		}
	}
	return step, found
}

// LastCompletedStep returns the maximum step among currently signed
// fields, or zero if nothing is signed yet. It is computed each time,
// never stored.
func (s *Session) LastCompletedStep() int {
	max := 0
	for _, f := range s.Fields {
		if f.Kind.Static() || !f.Signed {
			continue
		}
		if f.Step > max {
			max = f.Step
		}
	}
	return max
}

// StepComplete reports whether every non-static field at the given
// step is signed. A step represents one signer's full set of zones and
// completes as a unit.
func (s *Session) StepComplete(step int) bool {
	for _, f := range s.Fields {
		if f.Kind.Static() || f.Step != step {
			continue
		}
		if !f.Signed {
			return false
		}
	}
	return true
}

// Complete reports whether all signer fields are signed.
func (s *Session) Complete() bool {
	_, pending := s.CurrentStep()
	return !pending
}

/// StepEmail returns the recipient for a step: the first non-static
// field at that step carrying an email.
func (s *Session) StepEmail(step int) (string, bool) {
	for _, f := range s.Fields {
		if f.Kind.Static() || f.Step != step {
			continue
		}
		if f.Email != "" {
			return f.Email, true
		}
	}
	return "", false
}

// Participants returns the unique signer emails in order of first
// appearance in the field array.
func (s *Session) Participants() []string {
	seen := map[string]bool{}
	var out []string
	for _, f := range s.Fields {
		if f.Kind.Static() || f.Email == "" || seen[f.Email] {
			continue
		}
		seen[f.Email] = true
		out = append(out, f.Email)
	}
	return out
}

// StaticFields returns the static fields grouped by page index so they
// can be baked in one pass per page.
func (s *Session) StaticFields() map[int][]field.Field {
	out := map[int][]field.Field{}
	for _, f := range s.Fields {
		if !f.Kind.Static() {
			continue
		}
		out[f.Page] = append(out[f.Page], f)
	}
	return out
}
