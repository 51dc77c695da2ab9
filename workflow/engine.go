// Package workflow drives document-signing sessions through their
// signer sequence: creating sessions, accepting field fills exactly
// once, advancing the active step and finalizing completed documents.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/georgepadayatti/signflow/compositor"
	"github.com/georgepadayatti/signflow/docstore"
	"github.com/georgepadayatti/signflow/field"
	"github.com/georgepadayatti/signflow/locks"
	"github.com/georgepadayatti/signflow/notify"
	"github.com/georgepadayatti/signflow/session"
	"github.com/georgepadayatti/signflow/signlink"
	"github.com/georgepadayatti/signflow/store"
)

// Config carries the collaborators an Engine runs on.
type Config struct {
	Sessions  store.SessionStore
	Templates store.TemplateStore
	Docs      docstore.Store
	Comp      *compositor.Compositor
	Queue     notify.Queue
	Links     *signlink.Issuer

	// BaseURL is the externally reachable prefix signing links are
	// built on, without a trailing slash.
	BaseURL string

	// Clock defaults to the real clock when nil.
	Clock clockwork.Clock
}

// Engine is the signing workflow state machine. All session mutation
// goes through it, serialized per session.
type Engine struct {
	sessions  store.SessionStore
	templates store.TemplateStore
	docs      docstore.Store
	comp      *compositor.Compositor
	queue     notify.Queue
	links     *signlink.Issuer
	baseURL   string
	clock     clockwork.Clock

	mu *locks.KeyedMutex
}

// New creates an engine from its collaborators.
func New(conf Config) *Engine {
	clock := conf.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		sessions:  conf.Sessions,
		templates: conf.Templates,
		docs:      conf.Docs,
		comp:      conf.Comp,
		queue:     conf.Queue,
		links:     conf.Links,
		baseURL:   conf.BaseURL,
		clock:     clock,
		mu:        locks.NewKeyedMutex(),
	}
}

// CreateSession opens a new session over an uploaded document and
// notifies the first signer. It returns the new session identifier.
func (e *Engine) CreateSession(ctx context.Context, pdf string, fields []field.Field, canvasW, canvasH float64, message string) (string, *session.Session, error) {
	s, err := session.New(pdf, fields, canvasW, canvasH, message, e.clock.Now())
	if err != nil {
		return "", nil, err
	}

	id := uuid.NewString()
	if err := e.sessions.Create(ctx, id, s); err != nil {
		return "", nil, err
	}
	log.Printf("[INFO] workflow: session %s created over %s with %d fields", id, pdf, len(s.Fields))

	e.notifyCurrentSigner(ctx, id, s)
	return id, s, nil
}

// CreateFromTemplate instantiates a stored layout over a document,
// binding one signer email per step, and opens the session.
func (e *Engine) CreateFromTemplate(ctx context.Context, name, pdf string, emails map[int]string, message string) (string, *session.Session, error) {
	t, err := e.templates.LoadTemplate(ctx, name)
	if err != nil {
		return "", nil, err
	}
	s, err := t.Instantiate(pdf, emails, message, e.clock.Now())
	if err != nil {
		return "", nil, err
	}

	id := uuid.NewString()
	if err := e.sessions.Create(ctx, id, s); err != nil {
		return "", nil, err
	}
	log.Printf("[INFO] workflow: session %s created from template %q", id, name)

	e.notifyCurrentSigner(ctx, id, s)
	return id, s, nil
}

// SaveTemplate stores a reusable layout stripped of signer identities.
func (e *Engine) SaveTemplate(ctx context.Context, name, pdf string, fields []field.Field, canvasW, canvasH float64) error {
	for i := range fields {
		fields[i].ApplyDefaults()
		if err := fields[i].Validate(); err != nil && !errors.Is(err, field.ErrMissingEmail) {
			return fmt.Errorf("field %d: %w", i, err)
		}
	}
	return e.templates.SaveTemplate(ctx, name, session.NewTemplate(pdf, fields, canvasW, canvasH))
}

// Template loads one stored layout.
func (e *Engine) Template(ctx context.Context, name string) (*session.Template, error) {
	return e.templates.LoadTemplate(ctx, name)
}

// Templates lists the stored layout names.
func (e *Engine) Templates(ctx context.Context) ([]string, error) {
	return e.templates.ListTemplates(ctx)
}

// Session returns the current session record.
func (e *Engine) Session(ctx context.Context, id string) (*session.Session, error) {
	s, err := e.sessions.Load(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return s, nil
}

// SigningView resolves a signing link to its session and the step it
// grants access to.
func (e *Engine) SigningView(ctx context.Context, token string) (string, *session.Session, int, error) {
	link, err := e.links.Verify(token)
	if err != nil {
		return "", nil, 0, err
	}
	s, err := e.Session(ctx, link.SessionID)
	if err != nil {
		return "", nil, 0, err
	}
	return link.SessionID, s, link.Step, nil
}

// FillField burns one submitted value into the working document and
// marks the field signed, exactly once. The step must match both the
// field's own step and the session's currently active step. The
// document is rendered before any session state changes, so a render
// failure leaves the session untouched.
func (e *Engine) FillField(ctx context.Context, sessionID string, step, fieldIndex int, value string) error {
	e.mu.Lock(sessionID)
	defer e.mu.Unlock(sessionID)

	s, err := e.Session(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.Finalized {
		return ErrFinalized
	}
	if fieldIndex < 0 || fieldIndex >= len(s.Fields) {
		return ErrFieldNotFound
	}

	f := &s.Fields[fieldIndex]
	if f.Kind.Static() {
		return ErrStaticField
	}
	if f.Signed {
		return ErrAlreadySigned
	}
	if f.Step != step {
		return ErrWrongStep
	}
	if current, ok := s.CurrentStep(); !ok || current != step {
		return ErrNotYourTurn
	}

	staged, err := e.comp.Stage(ctx, s.PDF, *f, value, s.CanvasWidth, s.CanvasHeight)
	if err != nil {
		return err
	}

	// Signature fills land in a fresh artifact, safe to write before
	// the session record. In-place kinds are written only after a
	// successful save; otherwise a failed save followed by a retry
	// would stamp the same artifact twice.
	if f.Kind == field.Signature {
		if err := staged.Commit(); err != nil {
			return err
		}
	}

	f.Signed = true
	if f.Kind == field.Signature {
		// The image now lives in the document; the payload is not
		// kept on the record.
		f.Value = ""
	} else {
		f.Value = value
	}
	s.PDF = staged.DocID
	s.UpdatedAt = e.clock.Now()

	if err := e.sessions.Save(ctx, sessionID, s); err != nil {
		return err
	}
	if f.Kind != field.Signature {
		if err := staged.Commit(); err != nil {
			return err
		}
	}
	log.Printf("[INFO] workflow: session %s field %d signed, document %s", sessionID, fieldIndex, s.PDF)

	return e.advanceLocked(ctx, sessionID, s)
}

// Advance re-runs the post-fill progression for a session: finalize if
// every step is complete, re-send the active signer's link if the
// session sits at a step boundary, and do nothing mid-step. It is safe
// to invoke repeatedly; a finalized session is left alone.
func (e *Engine) Advance(ctx context.Context, sessionID string) error {
	e.mu.Lock(sessionID)
	defer e.mu.Unlock(sessionID)

	s, err := e.Session(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.Finalized {
		return nil
	}
	return e.advanceLocked(ctx, sessionID, s)
}

// advanceLocked decides what follows the current session state. The
// caller holds the session lock.
func (e *Engine) advanceLocked(ctx context.Context, sessionID string, s *session.Session) error {
	if s.Complete() {
		return e.finalizeLocked(ctx, sessionID, s)
	}
	// A step advances as a unit. While the most recently worked step
	// still has unsigned fields the session stays put, so an Advance
	// call mid-step sends no mail.
	if !s.StepComplete(s.LastCompletedStep()) {
		return nil
	}
	e.notifyCurrentSigner(ctx, sessionID, s)
	return nil
}

// finalizeLocked bakes static labels into the document, marks the
// session finalized and mails the finished document to every
// participant. The finalized flag is persisted before the send so a
// crash cannot cause a second terminal mailing.
func (e *Engine) finalizeLocked(ctx context.Context, sessionID string, s *session.Session) error {
	if s.Finalized {
		return nil
	}

	staged, err := e.comp.StageStatic(ctx, s.PDF, s.StaticFields(), s.CanvasWidth, s.CanvasHeight)
	if err != nil {
		return err
	}

	s.Finalized = true
	s.UpdatedAt = e.clock.Now()
	if err := e.sessions.Save(ctx, sessionID, s); err != nil {
		return err
	}
	// Static labels rewrite the artifact in place; writing only after
	// the finalized flag is persisted keeps a failed save from leaving
	// a session that would bake the labels twice on retry.
	if err := staged.Commit(); err != nil {
		return err
	}
	log.Printf("[INFO] workflow: session %s finalized, document %s", sessionID, s.PDF)

	data, err := e.docs.Read(s.PDF)
	if err != nil {
		log.Printf("[ERROR] workflow: session %s final document unreadable: %v", sessionID, err)
		return nil
	}
	for _, email := range s.Participants() {
		e.enqueue(ctx, notify.Message{
			To:      email,
			Subject: "Document completed",
			Body:    completedBody(s.Message),
			Attachment: &notify.Attachment{
				Name:        "signed.pdf",
				ContentType: "application/pdf",
				Data:        data,
			},
		})
	}
	return nil
}

// notifyCurrentSigner mails a signing link for the session's active
// step. Delivery is best-effort and never fails the calling operation.
func (e *Engine) notifyCurrentSigner(ctx context.Context, sessionID string, s *session.Session) {
	step, ok := s.CurrentStep()
	if !ok {
		return
	}
	email, ok := s.StepEmail(step)
	if !ok {
		log.Printf("[ERROR] workflow: session %s step %d has no recipient", sessionID, step)
		return
	}
	token, err := e.links.Issue(sessionID, step)
	if err != nil {
		log.Printf("[ERROR] workflow: session %s could not issue signing link: %v", sessionID, err)
		return
	}
	e.enqueue(ctx, notify.Message{
		To:      email,
		Subject: "Your turn to sign",
		Body:    inviteBody(s.Message, e.baseURL+"/sign/"+token),
	})
}

func (e *Engine) enqueue(ctx context.Context, m notify.Message) {
	if err := e.queue.Enqueue(ctx, m); err != nil {
		log.Printf("[ERROR] workflow: could not enqueue mail to %s: %v", m.To, err)
	}
}

func inviteBody(message, url string) string {
	body := "A document is waiting for your signature.\n\nSign here: " + url + "\n"
	if message != "" {
		body += "\nNote from the sender:\n" + message + "\n"
	}
	return body
}

func completedBody(message string) string {
	body := "All parties have signed. The completed document is attached.\n"
	if message != "" {
		body += "\nNote from the sender:\n" + message + "\n"
	}
	return body
}
