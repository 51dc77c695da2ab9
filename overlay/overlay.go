// Package overlay renders a single field's value into a one-page PDF
// drawing surface positioned through geom. Callers merge the result
// onto the working document; rendering itself has no side effects.
package overlay

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/georgepadayatti/gopdf/pdf/generic"
	"github.com/georgepadayatti/gopdf/pdf/images"

	"github.com/georgepadayatti/signflow/field"
	"github.com/georgepadayatti/signflow/geom"
)

// Common errors
var (
	ErrBadImage      = errors.New("signature image is not decodable")
	ErrStaticValue   = errors.New("static field has no preset value")
	ErrKindNotRender = errors.New("field kind cannot be rendered")
)

// FontName is the base font used for text and static text zones.
const FontName = "Helvetica"

// Overlay is a positioned, single-page drawing surface for one field.
// Content is expressed in form space with the origin at the box's
// bottom-left corner; X and Y place that corner on the page in points.
type Overlay struct {
	// Page is the 0-based target page index.
	Page int

	// X, Y are the PDF coordinates of the box's bottom-left corner.
	X, Y float64

	// Width, Height are the box dimensions in points.
	Width, Height float64

	content  []byte
	needFont bool

	image *images.PDFImage
	alpha *images.PDFImage
}

// Render produces the overlay for a field and its submitted value.
// For static text the value argument is ignored and the field's preset
// value is used. A malformed signature payload is a hard error; the
// fill request must fail rather than skip the render.
func Render(f field.Field, value string, cfg geom.LayoutConfig) (*Overlay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	w := cfg.MapBoxWidth(f.W)
	h := cfg.MapBoxHeight(f.H)

	switch f.Kind {
	case field.Text:
		return renderText(f, value, w, h, cfg)
	case field.StaticText:
		if f.Value == "" {
			return nil, ErrStaticValue
		}
		return renderText(f, f.Value, w, h, cfg)
	case field.Checkbox:
		side := cfg.MapBoxHeight(f.CheckboxSide())
		return renderCheckbox(f, value, side, cfg)
	case field.Signature:
		return renderSignature(f, value, w, h, cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrKindNotRender, f.Kind)
	}
}

func place(f field.Field, w, h float64, cfg geom.LayoutConfig) geom.Point {
	p := cfg.Map(geom.NewPoint(f.X, f.Y), h)
	return cfg.Clamp(p, w, h)
}

func renderText(f field.Field, value string, w, h float64, cfg geom.LayoutConfig) (*Overlay, error) {
	size := f.FontSize
	if size == 0 {
		size = field.DefaultFontSize
	}

	var buf bytes.Buffer
	buf.WriteString("q\n")
	buf.WriteString("0 0 0 rg\n")
	buf.WriteString("BT\n")
	fmt.Fprintf(&buf, "/F1 %f Tf\n", size)
	fmt.Fprintf(&buf, "0 %f Td\n", geom.TextBaseline(h, size))
	fmt.Fprintf(&buf, "(%s) Tj\n", escapeString(value))
	buf.WriteString("ET\n")
	buf.WriteString("Q\n")

	p := place(f, w, h, cfg)
	return &Overlay{
		Page:     f.Page,
		X:        p.X,
		Y:        p.Y,
		Width:    w,
		Height:   h,
		content:  buf.Bytes(),
		needFont: true,
	}, nil
}

func renderCheckbox(f field.Field, value string, side float64, cfg geom.LayoutConfig) (*Overlay, error) {
	var buf bytes.Buffer
	buf.WriteString("q\n")
	buf.WriteString("0 0 0 RG\n")
	buf.WriteString("1 w\n")
	fmt.Fprintf(&buf, "0 0 %f %f re S\n", side, side)

	if field.Truthy(value) {
		// X inscribed corner to corner.
		fmt.Fprintf(&buf, "0 0 m %f %f l S\n", side, side)
		fmt.Fprintf(&buf, "0 %f m %f 0 l S\n", side, side)
	}
	buf.WriteString("Q\n")

	p := place(f, side, side, cfg)
	return &Overlay{
		Page:    f.Page,
		X:       p.X,
		Y:       p.Y,
		Width:   side,
		Height:  side,
		content: buf.Bytes(),
	}, nil
}

func renderSignature(f field.Field, value string, w, h float64, cfg geom.LayoutConfig) (*Overlay, error) {
	data, err := field.DecodeSignaturePayload(value)
	if err != nil {
		return nil, err
	}

	img, err := images.NewPDFImageFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}

	o := &Overlay{
		Page:   f.Page,
		Width:  w,
		Height: h,
		image:  img,
	}
	if img.HasAlpha() {
		o.alpha = img.GetAlphaMask()
	}

	// Scale to fit the box preserving the source aspect ratio, centered.
	imgW := float64(img.Width)
	imgH := float64(img.Height)
	scale := w / imgW
	if s := h / imgH; s < scale {
		scale = s
	}
	dw := imgW * scale
	dh := imgH * scale
	dx := (w - dw) / 2
	dy := (h - dh) / 2

	var buf bytes.Buffer
	buf.WriteString("q\n")
	fmt.Fprintf(&buf, "%f 0 0 %f %f %f cm\n", dw, dh, dx, dy)
	buf.WriteString("/Im1 Do\n")
	buf.WriteString("Q\n")
	o.content = buf.Bytes()

	p := place(f, w, h, cfg)
	o.X = p.X
	o.Y = p.Y
	return o, nil
}

// Content returns the raw drawing operators in form space.
func (o *Overlay) Content() []byte {
	return o.content
}

// HasImage reports whether the overlay embeds an image XObject.
func (o *Overlay) HasImage() bool {
	return o.image != nil
}

// Image returns the embedded image, or nil.
func (o *Overlay) Image() *images.PDFImage {
	return o.image
}

// AlphaMask returns the image's soft mask, or nil when the source has
// no alpha channel.
func (o *Overlay) AlphaMask() *images.PDFImage {
	return o.alpha
}

// AppearanceStream builds the Form XObject for the overlay. The image
// XObject reference, if any, must be wired into the Resources/XObject
// dictionary under Im1 by the caller embedding the streams.
func (o *Overlay) AppearanceStream() *generic.StreamObject {
	dict := generic.NewDictionary()
	dict.Set("Type", generic.NameObject("XObject"))
	dict.Set("Subtype", generic.NameObject("Form"))
	dict.Set("FormType", generic.IntegerObject(1))
	dict.Set("BBox", generic.ArrayObject{
		generic.RealObject(0),
		generic.RealObject(0),
		generic.RealObject(o.Width),
		generic.RealObject(o.Height),
	})

	resources := generic.NewDictionary()
	if o.needFont {
		fonts := generic.NewDictionary()
		font := generic.NewDictionary()
		font.Set("Type", generic.NameObject("Font"))
		font.Set("Subtype", generic.NameObject("Type1"))
		font.Set("BaseFont", generic.NameObject(FontName))
		fonts.Set("F1", font)
		resources.Set("Font", fonts)
	}
	if o.image != nil {
		resources.Set("XObject", generic.NewDictionary())
	}
	dict.Set("Resources", resources)

	return generic.NewStream(dict, o.content)
}

// ImageXObject builds the image stream for embedding. The SMask
// reference is wired in by the caller when the image carries alpha.
func (o *Overlay) ImageXObject() *generic.StreamObject {
	if o.image == nil {
		return nil
	}
	return imageStream(o.image, string(o.image.ColorSpace), o.image.BitsPerComponent)
}

// AlphaXObject builds the soft-mask stream for embedding, or nil.
func (o *Overlay) AlphaXObject() *generic.StreamObject {
	if o.alpha == nil {
		return nil
	}
	return imageStream(o.alpha, "DeviceGray", 8)
}

func imageStream(img *images.PDFImage, colorSpace string, bits int) *generic.StreamObject {
	dict := generic.NewDictionary()
	dict.Set("Type", generic.NameObject("XObject"))
	dict.Set("Subtype", generic.NameObject("Image"))
	dict.Set("Width", generic.IntegerObject(img.Width))
	dict.Set("Height", generic.IntegerObject(img.Height))
	dict.Set("ColorSpace", generic.NameObject(colorSpace))
	dict.Set("BitsPerComponent", generic.IntegerObject(bits))
	if img.Filter != "" {
		dict.Set("Filter", generic.NameObject(img.Filter))
	}
	return generic.NewStream(dict, img.Data)
}

// escapeString escapes special characters for a PDF literal string.
func escapeString(s string) string {
	var buf bytes.Buffer
	for _, c := range []byte(s) {
		switch c {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			buf.WriteByte(c)
		}
	}
	return buf.String()
}
