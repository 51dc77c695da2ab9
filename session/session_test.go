package session

import (
	"errors"
	"testing"
	"time"

	"github.com/georgepadayatti/signflow/field"
)

var testTime = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func twoStepFields() []field.Field {
	return []field.Field{
		{Kind: field.Text, Step: 0, Email: "a@x"},
		{Kind: field.Signature, Step: 1, Email: "b@x"},
	}
}

func TestNew(t *testing.T) {
	s, err := New("doc.pdf", twoStepFields(), 800, 1035, "please sign", testTime)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.PDF != "doc.pdf" {
		t.Errorf("expected pdf doc.pdf, got %s", s.PDF)
	}
	if s.Finalized {
		t.Error("new session should not be finalized")
	}
	for i, f := range s.Fields {
		if f.Signed {
			t.Errorf("field %d should start unsigned", i)
		}
		if f.W == 0 || f.H == 0 {
			t.Errorf("field %d should have default box size", i)
		}
	}
}

func TestNewRejectsEmptyFields(t *testing.T) {
	if _, err := New("doc.pdf", nil, 800, 1035, "", testTime); !errors.Is(err, ErrNoFields) {
		t.Errorf("expected ErrNoFields, got %v", err)
	}
}

func TestNewRejectsAllStatic(t *testing.T) {
	fields := []field.Field{{Kind: field.StaticText, Value: "Label"}}
	if _, err := New("doc.pdf", fields, 800, 1035, "", testTime); !errors.Is(err, ErrNoSignerField) {
		t.Errorf("expected ErrNoSignerField, got %v", err)
	}
}

func TestNewClearsSubmittedValues(t *testing.T) {
	fields := []field.Field{
		{Kind: field.Text, Step: 0, Email: "a@x", Value: "sneaky", Signed: true},
		{Kind: field.StaticText, Value: "Keep me"},
	}
	s, err := New("doc.pdf", fields, 800, 1035, "", testTime)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Fields[0].Value != "" || s.Fields[0].Signed {
		t.Error("signer field value/signed should be reset at creation")
	}
	if s.Fields[1].Value != "Keep me" {
		t.Error("static value should be preserved")
	}
}

func TestNormalizeSteps(t *testing.T) {
	fields := []field.Field{
		{Kind: field.Text, Step: 5, Email: "a@x"},
		{Kind: field.StaticText, Step: 99, Value: "Label"},
		{Kind: field.Text, Step: 2, Email: "b@x"},
		{Kind: field.Signature, Step: 5, Email: "a@x"},
	}
	s, err := New("doc.pdf", fields, 800, 1035, "", testTime)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Steps 2 and 5 collapse to 0 and 1 by ascending order; fields
	// sharing a step keep sharing it.
	if s.Fields[2].Step != 0 {
		t.Errorf("step 2 should normalize to 0, got %d", s.Fields[2].Step)
	}
	if s.Fields[0].Step != 1 || s.Fields[3].Step != 1 {
		t.Errorf("step 5 should normalize to 1, got %d and %d", s.Fields[0].Step, s.Fields[3].Step)
	}
	if s.Fields[1].Step != 0 {
		t.Errorf("static field step should be zeroed, got %d", s.Fields[1].Step)
	}
}

func TestCurrentStep(t *testing.T) {
	s, _ := New("doc.pdf", twoStepFields(), 800, 1035, "", testTime)

	step, ok := s.CurrentStep()
	if !ok || step != 0 {
		t.Errorf("expected step 0, got %d ok=%v", step, ok)
	}

	s.Fields[0].Signed = true
	step, ok = s.CurrentStep()
	if !ok || step != 1 {
		t.Errorf("expected step 1, got %d ok=%v", step, ok)
	}

	s.Fields[1].Signed = true
	if _, ok = s.CurrentStep(); ok {
		t.Error("expected no current step when all signed")
	}
}

func TestLastCompletedStep(t *testing.T) {
	s, _ := New("doc.pdf", twoStepFields(), 800, 1035, "", testTime)

	if got := s.LastCompletedStep(); got != 0 {
		t.Errorf("expected 0 with nothing signed, got %d", got)
	}

	s.Fields[1].Signed = true
	if got := s.LastCompletedStep(); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
}

func TestStepComplete(t *testing.T) {
	fields := []field.Field{
		{Kind: field.Text, Step: 0, Email: "a@x"},
		{Kind: field.Checkbox, Step: 0, Email: "a@x"},
		{Kind: field.Signature, Step: 1, Email: "b@x"},
	}
	s, _ := New("doc.pdf", fields, 800, 1035, "", testTime)

	if s.StepComplete(0) {
		t.Error("step 0 should be incomplete")
	}
	s.Fields[0].Signed = true
	if s.StepComplete(0) {
		t.Error("step 0 should still be incomplete with one of two signed")
	}
	s.Fields[1].Signed = true
	if !s.StepComplete(0) {
		t.Error("step 0 should be complete")
	}
}

func TestStepEmail(t *testing.T) {
	s, _ := New("doc.pdf", twoStepFields(), 800, 1035, "", testTime)

	email, ok := s.StepEmail(1)
	if !ok || email != "b@x" {
		t.Errorf("expected b@x, got %q ok=%v", email, ok)
	}
	if _, ok := s.StepEmail(7); ok {
		t.Error("expected no email for unknown step")
	}
}

func TestParticipants(t *testing.T) {
	fields := []field.Field{
		{Kind: field.Text, Step: 0, Email: "a@x"},
		{Kind: field.Checkbox, Step: 0, Email: "a@x"},
		{Kind: field.StaticText, Value: "Label"},
		{Kind: field.Signature, Step: 1, Email: "b@x"},
	}
	s, _ := New("doc.pdf", fields, 800, 1035, "", testTime)

	got := s.Participants()
	if len(got) != 2 || got[0] != "a@x" || got[1] != "b@x" {
		t.Errorf("expected [a@x b@x], got %v", got)
	}
}

func TestStaticFields(t *testing.T) {
	fields := []field.Field{
		{Kind: field.Text, Step: 0, Email: "a@x"},
		{Kind: field.StaticText, Page: 0, Value: "Header"},
		{Kind: field.StaticText, Page: 2, Value: "Footer"},
		{Kind: field.StaticText, Page: 0, Value: "Ref"},
	}
	s, _ := New("doc.pdf", fields, 800, 1035, "", testTime)

	byPage := s.StaticFields()
	if len(byPage[0]) != 2 || len(byPage[2]) != 1 {
		t.Errorf("unexpected grouping: %v", byPage)
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	fields := []field.Field{
		{Kind: field.Text, Step: 0, Email: "a@x", Value: "filled", Signed: true},
		{Kind: field.StaticText, Value: "Label"},
		{Kind: field.Signature, Step: 1, Email: "b@x"},
	}
	tpl := NewTemplate("doc.pdf", fields, 800, 1035)

	for i, tf := range tpl.Fields {
		if tf.Kind.Static() {
			continue
		}
		if tf.StaticValue != "" {
			t.Errorf("template field %d should not carry a value", i)
		}
	}

	s, err := tpl.Instantiate("", map[int]string{0: "c@y", 1: "d@y"}, "note", testTime)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.PDF != "doc.pdf" {
		t.Errorf("expected template pdf, got %s", s.PDF)
	}
	if s.Fields[0].Email != "c@y" || s.Fields[2].Email != "d@y" {
		t.Error("emails not bound per step")
	}
	if s.Fields[1].Value != "Label" {
		t.Error("static value lost through template")
	}
}

func TestTemplateInstantiateMissingEmail(t *testing.T) {
	tpl := NewTemplate("doc.pdf", twoStepFields(), 800, 1035)
	_, err := tpl.Instantiate("", map[int]string{0: "a@x"}, "", testTime)
	if !errors.Is(err, ErrMissingStepEmail) {
		t.Errorf("expected ErrMissingStepEmail, got %v", err)
	}
}
