// Package web exposes the signing workflow over HTTP: document
// upload, session lifecycle, template management and the signer-facing
// link endpoints.
package web

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/georgepadayatti/signflow/docstore"
	"github.com/georgepadayatti/signflow/field"
	"github.com/georgepadayatti/signflow/overlay"
	"github.com/georgepadayatti/signflow/session"
	"github.com/georgepadayatti/signflow/signlink"
	"github.com/georgepadayatti/signflow/store"
	"github.com/georgepadayatti/signflow/workflow"
)

// maxUploadBytes bounds one uploaded document.
const maxUploadBytes = 32 << 20

// Server wires the workflow engine and document store into handlers.
type Server struct {
	engine *workflow.Engine
	docs   docstore.Store
}

// NewServer creates a server over its collaborators.
func NewServer(engine *workflow.Engine, docs docstore.Store) *Server {
	return &Server{engine: engine, docs: docs}
}

// Router builds the route table.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	r.Post("/upload", s.handleUpload)
	r.Get("/documents/{id}", s.handleDocument)

	r.Post("/sessions", s.handleCreateSession)
	r.Get("/sessions/{id}/status", s.handleSessionStatus)

	r.Get("/sign/{token}", s.handleSigningView)
	r.Post("/sign/{token}", s.handleSubmit)

	r.Post("/templates", s.handleSaveTemplate)
	r.Get("/templates", s.handleListTemplates)
	r.Get("/templates/{name}", s.handleGetTemplate)
	r.Post("/templates/{name}/sessions", s.handleTemplateSession)

	return r
}

// handleUpload stores a PDF and returns its document identifier. The
// body is either a raw application/pdf payload or a multipart form
// with a "file" part.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var data []byte
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		file, _, ferr := r.FormFile("file")
		if ferr != nil {
			WriteError(w, 400, "BAD_UPLOAD", "multipart form needs a 'file' part")
			return
		}
		defer file.Close()
		data, err = io.ReadAll(file)
	} else {
		data, err = io.ReadAll(r.Body)
	}
	if err != nil {
		WriteError(w, 400, "BAD_UPLOAD", "could not read upload body")
		return
	}
	if !strings.HasPrefix(string(data), "%PDF") {
		WriteError(w, 400, "NOT_A_PDF", "upload is not a PDF document")
		return
	}

	id := docstore.NewUploadID()
	if err := s.docs.Write(id, data); err != nil {
		log.Printf("[ERROR] web: storing upload failed: %v", err)
		WriteError(w, 500, "STORE_FAILED", "could not store document")
		return
	}
	WriteJSON(w, 201, map[string]any{
		"request_id":  NewRequestID(),
		"document_id": id,
	})
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	data, err := s.docs.Read(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, docstore.ErrBadDocID) {
			WriteError(w, 404, "NOT_FOUND", "document not found")
			return
		}
		WriteError(w, 500, "READ_FAILED", "could not read document")
		return
	}
	w.Header().Set("content-type", "application/pdf")
	w.WriteHeader(200)
	w.Write(data)
}

type createSessionRequest struct {
	PDF          string        `json:"pdf"`
	Fields       []field.Field `json:"fields"`
	CanvasWidth  float64       `json:"canvas_w"`
	CanvasHeight float64       `json:"canvas_h"`
	Message      string        `json:"message"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := ReadJSON(r, &req); err != nil {
		WriteError(w, 400, "BAD_JSON", err.Error())
		return
	}
	if req.PDF == "" {
		WriteError(w, 400, "BAD_REQUEST", "pdf is required")
		return
	}
	if _, err := s.docs.Read(req.PDF); err != nil {
		WriteError(w, 404, "NOT_FOUND", "document not found")
		return
	}

	id, sess, err := s.engine.CreateSession(r.Context(), req.PDF, req.Fields, req.CanvasWidth, req.CanvasHeight, req.Message)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	WriteJSON(w, 201, map[string]any{
		"request_id": NewRequestID(),
		"session_id": id,
		"status":     statusView(sess),
	})
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	WriteJSON(w, 200, map[string]any{
		"request_id": NewRequestID(),
		"status":     statusView(sess),
	})
}

// statusView summarizes progress without exposing submitted values.
func statusView(s *session.Session) map[string]any {
	fields := make([]map[string]any, 0, len(s.Fields))
	for i, f := range s.Fields {
		fields = append(fields, map[string]any{
			"index":  i,
			"type":   f.Kind.String(),
			"page":   f.Page,
			"step":   f.Step,
			"email":  f.Email,
			"signed": f.Signed,
		})
	}
	view := map[string]any{
		"pdf":          s.PDF,
		"finalized":    s.Finalized,
		"participants": s.Participants(),
		"fields":       fields,
		"updated_at":   s.UpdatedAt,
	}
	if step, ok := s.CurrentStep(); ok {
		view["current_step"] = step
		if email, ok := s.StepEmail(step); ok {
			view["waiting_on"] = email
		}
	}
	return view
}

func (s *Server) handleSigningView(w http.ResponseWriter, r *http.Request) {
	sessionID, sess, step, err := s.engine.SigningView(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	if sess.Finalized {
		WriteError(w, 409, "FINALIZED", "session is already finalized")
		return
	}

	// Only the link holder's own zones are presented.
	fields := make([]map[string]any, 0)
	for i, f := range sess.Fields {
		if f.Kind.Static() || f.Step != step {
			continue
		}
		fields = append(fields, map[string]any{
			"index":     i,
			"type":      f.Kind.String(),
			"page":      f.Page,
			"x":         f.X,
			"y":         f.Y,
			"w":         f.W,
			"h":         f.H,
			"signed":    f.Signed,
			"font_size": f.FontSize,
		})
	}
	WriteJSON(w, 200, map[string]any{
		"request_id": NewRequestID(),
		"session_id": sessionID,
		"step":       step,
		"pdf":        sess.PDF,
		"message":    sess.Message,
		"canvas_w":   sess.CanvasWidth,
		"canvas_h":   sess.CanvasHeight,
		"fields":     fields,
	})
}

type submitRequest struct {
	// Values maps field index to submitted value.
	Values map[string]string `json:"values"`
}

// handleSubmit fills every submitted field of the link's step. Fills
// are applied in ascending field order; the first failure stops the
// batch and is reported, with earlier fills already durable.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sessionID, _, step, err := s.engine.SigningView(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeWorkflowError(w, err)
		return
	}

	var req submitRequest
	if err := ReadJSON(r, &req); err != nil {
		WriteError(w, 400, "BAD_JSON", err.Error())
		return
	}
	if len(req.Values) == 0 {
		WriteError(w, 400, "BAD_REQUEST", "values is required")
		return
	}

	indexes := make([]int, 0, len(req.Values))
	for k := range req.Values {
		idx, err := strconv.Atoi(k)
		if err != nil {
			WriteError(w, 400, "BAD_REQUEST", "field indexes must be integers")
			return
		}
		indexes = append(indexes, idx)
	}
	for i := 1; i < len(indexes); i++ {
		for j := i; j > 0 && indexes[j] < indexes[j-1]; j-- {
			indexes[j], indexes[j-1] = indexes[j-1], indexes[j]
		}
	}

	filled := 0
	for _, idx := range indexes {
		if err := s.engine.FillField(r.Context(), sessionID, step, idx, req.Values[strconv.Itoa(idx)]); err != nil {
			writeWorkflowError(w, err)
			return
		}
		filled++
	}

	sess, err := s.engine.Session(r.Context(), sessionID)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	WriteJSON(w, 200, map[string]any{
		"request_id": NewRequestID(),
		"filled":     filled,
		"status":     statusView(sess),
	})
}

type saveTemplateRequest struct {
	Name         string        `json:"name"`
	PDF          string        `json:"pdf"`
	Fields       []field.Field `json:"fields"`
	CanvasWidth  float64       `json:"canvas_w"`
	CanvasHeight float64       `json:"canvas_h"`
}

func (s *Server) handleSaveTemplate(w http.ResponseWriter, r *http.Request) {
	var req saveTemplateRequest
	if err := ReadJSON(r, &req); err != nil {
		WriteError(w, 400, "BAD_JSON", err.Error())
		return
	}
	if req.Name == "" || len(req.Fields) == 0 {
		WriteError(w, 400, "BAD_REQUEST", "name and fields are required")
		return
	}
	if err := s.engine.SaveTemplate(r.Context(), req.Name, req.PDF, req.Fields, req.CanvasWidth, req.CanvasHeight); err != nil {
		writeWorkflowError(w, err)
		return
	}
	WriteJSON(w, 201, map[string]any{
		"request_id": NewRequestID(),
		"name":       req.Name,
	})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	names, err := s.engine.Templates(r.Context())
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	WriteJSON(w, 200, map[string]any{
		"request_id": NewRequestID(),
		"templates":  names,
	})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.engine.Template(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	WriteJSON(w, 200, map[string]any{
		"request_id": NewRequestID(),
		"template":   t,
	})
}

type templateSessionRequest struct {
	PDF     string            `json:"pdf"`
	Emails  map[string]string `json:"emails"`
	Message string            `json:"message"`
}

func (s *Server) handleTemplateSession(w http.ResponseWriter, r *http.Request) {
	var req templateSessionRequest
	if err := ReadJSON(r, &req); err != nil {
		WriteError(w, 400, "BAD_JSON", err.Error())
		return
	}

	emails := make(map[int]string, len(req.Emails))
	for k, v := range req.Emails {
		step, err := strconv.Atoi(k)
		if err != nil {
			WriteError(w, 400, "BAD_REQUEST", "email map keys must be step numbers")
			return
		}
		emails[step] = v
	}

	id, sess, err := s.engine.CreateFromTemplate(r.Context(), chi.URLParam(r, "name"), req.PDF, emails, req.Message)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	WriteJSON(w, 201, map[string]any{
		"request_id": NewRequestID(),
		"session_id": id,
		"status":     statusView(sess),
	})
}

// writeWorkflowError maps domain errors onto HTTP statuses.
func writeWorkflowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrSessionNotFound),
		errors.Is(err, workflow.ErrFieldNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrTemplateNotFound),
		errors.Is(err, docstore.ErrNotFound):
		WriteError(w, 404, "NOT_FOUND", err.Error())
	case errors.Is(err, workflow.ErrAlreadySigned),
		errors.Is(err, workflow.ErrNotYourTurn),
		errors.Is(err, workflow.ErrFinalized),
		errors.Is(err, store.ErrConflict):
		WriteError(w, 409, "CONFLICT", err.Error())
	case errors.Is(err, workflow.ErrWrongStep):
		WriteError(w, 403, "FORBIDDEN", err.Error())
	case errors.Is(err, signlink.ErrExpiredToken):
		WriteError(w, 410, "LINK_EXPIRED", err.Error())
	case errors.Is(err, signlink.ErrBadToken):
		WriteError(w, 401, "BAD_LINK", err.Error())
	case errors.Is(err, workflow.ErrStaticField),
		errors.Is(err, field.ErrUnknownKind),
		errors.Is(err, field.ErrMissingEmail),
		errors.Is(err, field.ErrInvalidPage),
		errors.Is(err, field.ErrBadBase64),
		errors.Is(err, field.ErrEmptyPayload),
		errors.Is(err, overlay.ErrBadImage),
		errors.Is(err, session.ErrNoFields),
		errors.Is(err, session.ErrNoSignerField),
		errors.Is(err, session.ErrMissingStepEmail):
		WriteError(w, 422, "UNPROCESSABLE", err.Error())
	default:
		log.Printf("[ERROR] web: %v", err)
		WriteError(w, 500, "INTERNAL", "internal error")
	}
}
