package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/georgepadayatti/signflow/field"
)

// Template errors
var (
	ErrMissingStepEmail = errors.New("no email supplied for step")
)

// TemplateField is one zone of a reusable layout with the
// signer-identifying attributes stripped.
type TemplateField struct {
	Kind     field.Kind `json:"type"`
	Page     int        `json:"page"`
	X        float64    `json:"x"`
	Y        float64    `json:"y"`
	W        float64    `json:"w,omitempty"`
	H        float64    `json:"h,omitempty"`
	Step     int        `json:"step"`
	FontSize float64    `json:"font_size,omitempty"`

	// StaticValue carries the preset text of static zones; fill zones
	// leave it empty.
	StaticValue string `json:"value,omitempty"`
}

// Template is a named, reusable (document, layout) pair used only to
// seed new sessions. Immutable once saved.
type Template struct {
	PDF          string          `json:"pdf"`
	Fields       []TemplateField `json:"fields"`
	CanvasWidth  float64         `json:"canvas_w"`
	CanvasHeight float64         `json:"canvas_h"`
}

// NewTemplate strips signer attributes from a session-shaped layout.
func NewTemplate(pdf string, fields []field.Field, canvasW, canvasH float64) *Template {
	t := &Template{
		PDF:          pdf,
		CanvasWidth:  canvasW,
		CanvasHeight: canvasH,
	}
	for _, f := range fields {
		tf := TemplateField{
			Kind:     f.Kind,
			Page:     f.Page,
			X:        f.X,
			Y:        f.Y,
			W:        f.W,
			H:        f.H,
			Step:     f.Step,
			FontSize: f.FontSize,
		}
		if f.Kind.Static() {
			tf.StaticValue = f.Value
		}
		t.Fields = append(t.Fields, tf)
	}
	return t
}

// Instantiate seeds a new session from the template, binding one
// signer email per step. Every signer step must get an email.
func (t *Template) Instantiate(pdf string, emails map[int]string, message string, now time.Time) (*Session, error) {
	fields := make([]field.Field, 0, len(t.Fields))
	for i, tf := range t.Fields {
		f := field.Field{
			Kind:     tf.Kind,
			Page:     tf.Page,
			X:        tf.X,
			Y:        tf.Y,
			W:        tf.W,
			H:        tf.H,
			Step:     tf.Step,
			FontSize: tf.FontSize,
			Value:    tf.StaticValue,
		}
		if !tf.Kind.Static() {
			email, ok := emails[tf.Step]
			if !ok || email == "" {
				return nil, fmt.Errorf("%w: field %d step %d", ErrMissingStepEmail, i, tf.Step)
			}
			f.Email = email
		}
		fields = append(fields, f)
	}
	if pdf == "" {
		pdf = t.PDF
	}
	return New(pdf, fields, t.CanvasWidth, t.CanvasHeight, message, now)
}
