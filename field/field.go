// Package field defines the fillable and static zones placed on a
// document page.
package field

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Common errors
var (
	ErrUnknownKind  = errors.New("unknown field kind")
	ErrMissingEmail = errors.New("non-static field requires an email")
	ErrInvalidPage  = errors.New("page index must not be negative")
	ErrEmptyPayload = errors.New("empty signature payload")
	ErrBadBase64    = errors.New("signature payload is not valid base64")
)

// Kind identifies what a field renders and who fills it.
type Kind string

const (
	// Text is a single-line text zone filled by a signer.
	Text Kind = "text"
	// Checkbox is a boolean zone filled by a signer.
	Checkbox Kind = "checkbox"
	// Signature is an image zone filled by a signer with a drawn PNG.
	Signature Kind = "signature"
	// StaticText is a fixed label baked in at finalization; it carries
	// no signer.
	StaticText Kind = "static_text"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// ParseKind parses a string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Text, Checkbox, Signature, StaticText:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q (valid: text, checkbox, signature, static_text)", ErrUnknownKind, s)
	}
}

// Static reports whether the kind is baked in at finalization rather
// than filled by a signer.
func (k Kind) Static() bool {
	return k == StaticText
}

// Default box sizes in canvas pixels, applied when the layout omits them.
const (
	DefaultSignatureWidth  = 120
	DefaultSignatureHeight = 40
	DefaultCheckboxSide    = 15
	DefaultTextWidth       = 120
	DefaultTextHeight      = 40

	// DefaultFontSize is the text size used for text and static text
	// zones when none is configured.
	DefaultFontSize = 14
)

// Field is one zone on a page. Position and box size are in the unit
// space of the UI canvas that produced them (see geom.LayoutConfig).
type Field struct {
	Kind  Kind    `json:"type"`
	Page  int     `json:"page"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	W     float64 `json:"w,omitempty"`
	H     float64 `json:"h,omitempty"`
	Step  int     `json:"step"`
	Email string  `json:"email,omitempty"`

	// Value is the raw submitted string, or a base64 PNG payload for
	// signatures. For static text it is preset at session creation.
	Value  string `json:"value"`
	Signed bool   `json:"signed"`

	// FontSize applies to text and static text zones only.
	FontSize float64 `json:"font_size,omitempty"`
}

// ApplyDefaults fills in the per-kind default box size and font size.
func (f *Field) ApplyDefaults() {
	if f.W == 0 || f.H == 0 {
		switch f.Kind {
		case Checkbox:
			f.W, f.H = DefaultCheckboxSide, DefaultCheckboxSide
		case Signature:
			f.W, f.H = DefaultSignatureWidth, DefaultSignatureHeight
		default:
			f.W, f.H = DefaultTextWidth, DefaultTextHeight
		}
	}
	if f.FontSize == 0 && (f.Kind == Text || f.Kind == StaticText) {
		f.FontSize = DefaultFontSize
	}
}

// Validate checks structural invariants of a single field.
func (f *Field) Validate() error {
	if _, err := ParseKind(string(f.Kind)); err != nil {
		return err
	}
	if f.Page < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPage, f.Page)
	}
	if !f.Kind.Static() && strings.TrimSpace(f.Email) == "" {
		return fmt.Errorf("%w: field kind %s", ErrMissingEmail, f.Kind)
	}
	return nil
}

// CheckboxSide returns the square side for a checkbox field.
func (f *Field) CheckboxSide() float64 {
	if f.W > f.H {
		return f.W
	}
	return f.H
}

// Truthy reports whether a submitted checkbox value counts as checked.
// The accepted set is exactly {"true", "on", "1"}; everything else,
// including "false" and empty, is unchecked.
func Truthy(v string) bool {
	switch v {
	case "true", "on", "1":
		return true
	default:
		return false
	}
}

// DecodeSignaturePayload decodes a base64 PNG payload, tolerating an
// optional "data:image/...;base64," data-URL prefix. A malformed
// payload is a hard error; the caller must not fall back to skipping
// the render.
func DecodeSignaturePayload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, ErrEmptyPayload
	}
	if strings.HasPrefix(payload, "data:") {
		idx := strings.Index(payload, ",")
		if idx < 0 {
			return nil, fmt.Errorf("%w: data URL without comma", ErrBadBase64)
		}
		payload = payload[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadBase64, err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	return data, nil
}
