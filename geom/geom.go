// Package geom converts UI canvas coordinates into PDF page coordinates.
//
// The layout UI reports field positions in a top-left-origin pixel space
// over a canvas of known size. PDF page space is bottom-left-origin in
// points. All scale factors are derived from the reported canvas
// dimensions; nothing here assumes a fixed canvas size.
package geom

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrZeroCanvas = errors.New("canvas dimensions must be positive")
	ErrZeroPage   = errors.New("page dimensions must be positive")
)

// Point is a 2D point. The coordinate space depends on context: UI
// points are top-left-origin pixels, PDF points are bottom-left-origin
// typographic points.
type Point struct {
	X, Y float64
}

// NewPoint creates a new point.
func NewPoint(x, y float64) Point {
	return Point{X: x, Y: y}
}

// LayoutConfig carries the dimensions needed to map between the UI
// canvas and a physical PDF page. Both pairs are required inputs and
// must come from the actual surfaces involved, never from constants.
type LayoutConfig struct {
	// CanvasWidth and CanvasHeight are the UI canvas size in pixels,
	// as reported by the surface that produced the field positions.
	CanvasWidth  float64
	CanvasHeight float64

	// PageWidth and PageHeight are the physical page size in points.
	PageWidth  float64
	PageHeight float64
}

// Validate checks that all dimensions are positive.
func (c LayoutConfig) Validate() error {
	if c.CanvasWidth <= 0 || c.CanvasHeight <= 0 {
		return fmt.Errorf("%w: %gx%g", ErrZeroCanvas, c.CanvasWidth, c.CanvasHeight)
	}
	if c.PageWidth <= 0 || c.PageHeight <= 0 {
		return fmt.Errorf("%w: %gx%g", ErrZeroPage, c.PageWidth, c.PageHeight)
	}
	return nil
}

// ScaleX returns the horizontal pixel-to-point scale factor.
func (c LayoutConfig) ScaleX() float64 {
	return c.PageWidth / c.CanvasWidth
}

// ScaleY returns the vertical pixel-to-point scale factor.
func (c LayoutConfig) ScaleY() float64 {
	return c.PageHeight / c.CanvasHeight
}

// Map converts a UI point to the PDF position of a box's bottom-left
// corner. The UI point addresses the box's visual top-left corner;
// inverting the Y axis turns that edge into the box's top in PDF space,
// so the box height is subtracted to land on the bottom edge.
func (c LayoutConfig) Map(ui Point, boxHeight float64) Point {
	return Point{
		X: ui.X * c.ScaleX(),
		Y: c.PageHeight - ui.Y*c.ScaleY() - boxHeight,
	}
}

// Unmap is the inverse of Map: it recovers the UI point from a PDF
// bottom-left corner and the box height.
func (c LayoutConfig) Unmap(pdf Point, boxHeight float64) Point {
	return Point{
		X: pdf.X / c.ScaleX(),
		Y: (c.PageHeight - pdf.Y - boxHeight) / c.ScaleY(),
	}
}

// MapBoxWidth converts a box width from canvas pixels to points.
func (c LayoutConfig) MapBoxWidth(w float64) float64 {
	return w * c.ScaleX()
}

// MapBoxHeight converts a box height from canvas pixels to points.
func (c LayoutConfig) MapBoxHeight(h float64) float64 {
	return h * c.ScaleY()
}

// TextBaseline returns the Y offset of a single text line's baseline
// inside a box of the given height, measured from the box bottom. The
// baseline sits at the top of the box minus the font size.
func TextBaseline(boxHeight, fontSize float64) float64 {
	return boxHeight - fontSize
}

// Clamp restricts a PDF point to the page area so out-of-range input
// cannot render off-page. The box size keeps the whole box visible.
func (c LayoutConfig) Clamp(p Point, boxWidth, boxHeight float64) Point {
	maxX := c.PageWidth - boxWidth
	maxY := c.PageHeight - boxHeight
	if maxX < 0 {
		maxX = 0
	}
	if maxY < 0 {
		maxY = 0
	}
	if p.X < 0 {
		p.X = 0
	} else if p.X > maxX {
		p.X = maxX
	}
	if p.Y < 0 {
		p.Y = 0
	} else if p.Y > maxY {
		p.Y = maxY
	}
	return p
}
