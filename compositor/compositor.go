// Package compositor merges rendered field overlays onto single pages
// of a working document and persists the result.
//
// Signature fields always produce a newly named artifact so that the
// session's document pointer forms an append-only chain of versions;
// text, checkbox and static text annotations rewrite the current
// artifact in place.
package compositor

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/georgepadayatti/gopdf/pdf/generic"
	"github.com/georgepadayatti/gopdf/pdf/reader"
	"github.com/georgepadayatti/gopdf/pdf/writer"

	"github.com/georgepadayatti/signflow/docstore"
	"github.com/georgepadayatti/signflow/field"
	"github.com/georgepadayatti/signflow/geom"
	"github.com/georgepadayatti/signflow/overlay"
)

// Common errors
var (
	ErrUnreadableDocument = errors.New("working document is not readable")
	ErrPageOutOfRange     = errors.New("page index out of range")
)

// Letter is the fallback page size when a page carries no MediaBox,
// matching the upstream reader's behavior.
var letterWidth, letterHeight = 612.0, 792.0

// Compositor merges overlays into documents held in a docstore.
type Compositor struct {
	docs docstore.Store
}

// New creates a compositor over the given document store.
func New(docs docstore.Store) *Compositor {
	return &Compositor{docs: docs}
}

// PageSize returns the physical size in points of one page.
func (c *Compositor) PageSize(ctx context.Context, docID string, page int) (width, height float64, err error) {
	data, err := c.docs.Read(docID)
	if err != nil {
		return 0, 0, err
	}
	r, err := reader.NewPdfFileReaderFromBytes(data)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}
	return pageSize(r, page)
}

func pageSize(r *reader.PdfFileReader, page int) (float64, float64, error) {
	if page < 0 || page >= r.GetPageCount() {
		return 0, 0, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, page, r.GetPageCount())
	}
	dict, err := r.GetPage(page)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}
	if arr, ok := dict.Get("MediaBox").(generic.ArrayObject); ok && len(arr) >= 4 {
		llx := toFloat(arr[0])
		lly := toFloat(arr[1])
		urx := toFloat(arr[2])
		ury := toFloat(arr[3])
		return urx - llx, ury - lly, nil
	}
	return letterWidth, letterHeight, nil
}

func toFloat(obj generic.PdfObject) float64 {
	switch v := obj.(type) {
	case generic.IntegerObject:
		return float64(v)
	case generic.RealObject:
		return float64(v)
	default:
		return 0
	}
}

// Staged is a rendered document version that has not been written to
// the store yet. DocID names the artifact Commit will produce.
type Staged struct {
	DocID string

	docs docstore.Store
	data []byte
}

// Commit writes the staged bytes under DocID. A Staged with nothing
// rendered commits as a no-op.
func (st *Staged) Commit() error {
	if st.docs == nil {
		return nil
	}
	return st.docs.Write(st.DocID, st.data)
}

// Stage renders one field's value onto its page and holds the result
// in memory. The staged DocID is a new artifact name for signature
// fields and the unchanged input identifier for everything else; the
// store is not touched until Commit. All other pages are preserved
// unmodified.
func (c *Compositor) Stage(ctx context.Context, docID string, f field.Field, value string, canvasW, canvasH float64) (*Staged, error) {
	data, err := c.docs.Read(docID)
	if err != nil {
		return nil, err
	}
	r, err := reader.NewPdfFileReaderFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}

	w := writer.NewIncrementalPdfFileWriter(r)
	if err := c.applyField(r, w, f, value, canvasW, canvasH); err != nil {
		return nil, err
	}

	out, err := produce(w)
	if err != nil {
		return nil, err
	}

	outID := docID
	if f.Kind == field.Signature {
		outID = c.docs.NewVersionID()
	}
	return &Staged{DocID: outID, docs: c.docs, data: out}, nil
}

// Merge renders one field's value, composites it onto its page and
// writes the result. The returned identifier is a new artifact for
// signature fields and the unchanged input identifier for everything
// else.
func (c *Compositor) Merge(ctx context.Context, docID string, f field.Field, value string, canvasW, canvasH float64) (string, error) {
	st, err := c.Stage(ctx, docID, f, value, canvasW, canvasH)
	if err != nil {
		return "", err
	}
	if err := st.Commit(); err != nil {
		return "", err
	}
	return st.DocID, nil
}

// StageStatic renders all static text fields, grouped per page, in one
// pass over the document, held in memory until Commit. With no static
// fields the returned Staged commits as a no-op.
func (c *Compositor) StageStatic(ctx context.Context, docID string, byPage map[int][]field.Field, canvasW, canvasH float64) (*Staged, error) {
	if len(byPage) == 0 {
		return &Staged{DocID: docID}, nil
	}

	data, err := c.docs.Read(docID)
	if err != nil {
		return nil, err
	}
	r, err := reader.NewPdfFileReaderFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}

	w := writer.NewIncrementalPdfFileWriter(r)
	for _, fields := range byPage {
		for _, f := range fields {
			if err := c.applyField(r, w, f, f.Value, canvasW, canvasH); err != nil {
				return nil, err
			}
		}
	}

	out, err := produce(w)
	if err != nil {
		return nil, err
	}
	return &Staged{DocID: docID, docs: c.docs, data: out}, nil
}

// BakeStatic stages and immediately writes all static text fields. It
// is called exactly once, at finalization.
func (c *Compositor) BakeStatic(ctx context.Context, docID string, byPage map[int][]field.Field, canvasW, canvasH float64) error {
	st, err := c.StageStatic(ctx, docID, byPage, canvasW, canvasH)
	if err != nil {
		return err
	}
	return st.Commit()
}

// applyField renders the overlay and appends its stamp to the target
// page, wrapping existing content in q/Q to isolate graphics state.
func (c *Compositor) applyField(r *reader.PdfFileReader, w *writer.IncrementalPdfFileWriter, f field.Field, value string, canvasW, canvasH float64) error {
	pw, ph, err := pageSize(r, f.Page)
	if err != nil {
		return err
	}

	cfg := geom.LayoutConfig{
		CanvasWidth:  canvasW,
		CanvasHeight: canvasH,
		PageWidth:    pw,
		PageHeight:   ph,
	}
	ov, err := overlay.Render(f, value, cfg)
	if err != nil {
		return err
	}
	return applyOverlay(w, ov)
}

// applyOverlay registers the overlay's appearance and image streams
// and paints the form XObject at the overlay's page position.
func applyOverlay(w *writer.IncrementalPdfFileWriter, ov *overlay.Overlay) error {
	appearance := ov.AppearanceStream()

	if ov.HasImage() {
		resources := appearance.Dictionary.GetDict("Resources")
		xobjects := resources.GetDict("XObject")

		imageStream := ov.ImageXObject()
		if alpha := ov.AlphaXObject(); alpha != nil {
			alphaRef := w.AddObject(alpha)
			imageStream.Dictionary.Set("SMask", alphaRef)
		}
		imageRef := w.AddObject(imageStream)
		xobjects.Set("Im1", imageRef)
	}

	stampRef := w.AddObject(appearance)

	randBytes := make([]byte, 8)
	rand.Read(randBytes)
	resourceName := "Fld" + hex.EncodeToString(randBytes)

	paint := fmt.Sprintf("q 1 0 0 1 %f %f cm /%s Do Q", ov.X, ov.Y, resourceName)
	wrapper := generic.NewStream(nil, []byte(paint))

	resources := generic.NewDictionary()
	xobjects := generic.NewDictionary()
	xobjects.Set(resourceName, stampRef)
	resources.Set("XObject", xobjects)

	// Isolate any dangling graphics state in the existing content.
	qRef := w.AddObject(generic.NewStream(nil, []byte("q")))
	if _, err := w.AddStreamToPage(ov.Page, qRef, nil, true); err != nil {
		return fmt.Errorf("failed to prepend state guard: %w", err)
	}
	bigQRef := w.AddObject(generic.NewStream(nil, []byte("Q")))
	if _, err := w.AddStreamToPage(ov.Page, bigQRef, nil, false); err != nil {
		return fmt.Errorf("failed to append state guard: %w", err)
	}

	wrapperRef := w.AddObject(wrapper)
	if _, err := w.AddStreamToPage(ov.Page, wrapperRef, resources, false); err != nil {
		return fmt.Errorf("failed to apply overlay: %w", err)
	}
	return nil
}

func produce(w *writer.IncrementalPdfFileWriter) ([]byte, error) {
	var buf bytes.Buffer
	if err := w.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write document: %w", err)
	}
	return buf.Bytes(), nil
}
