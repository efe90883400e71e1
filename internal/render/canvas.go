package render

import (
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/oshokin/heat-sentinel/internal/domain/sentinel"
)

const (
	// jpegQuality is used for annotated images.
	jpegQuality = 90
	// labelPadding surrounds label text with background.
	labelPadding = 2
)

// Canvas is the drawing capability used by the renderer.
type Canvas interface {
	// Rectangle outlines box with lines of the given width.
	Rectangle(box sentinel.AbsoluteBox, lineWidth int)
	// Label writes text with its top-left corner at (x, y).
	Label(x, y int, text string)
	// Encode writes the canvas as JPEG.
	Encode(w io.Writer) error
}

// CanvasFactory creates a canvas over a decoded capture.
type CanvasFactory func(img image.Image) Canvas

// ImageCanvas draws on an in-memory RGBA copy of the capture.
type ImageCanvas struct {
	// img is the surface being drawn on.
	img *image.RGBA
	// stroke paints boxes and label backgrounds.
	stroke image.Image
	// text paints label glyphs.
	text image.Image
	// face is the label font.
	face font.Face
}

// Magenta is the color of boxes and label backgrounds.
//
//nolint:gochecknoglobals // Palette constant.
var Magenta = color.RGBA{R: 255, G: 0, B: 255, A: 255}

// NewImageCanvas copies img into a drawable surface.
//
//nolint:ireturn // Returned as a CanvasFactory.
func NewImageCanvas(img image.Image) Canvas {
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)

	return &ImageCanvas{
		img:    rgba,
		stroke: image.NewUniform(Magenta),
		text:   image.White,
		face:   basicfont.Face7x13,
	}
}

// Rectangle draws the four edges of box, each centered on the box outline.
func (c *ImageCanvas) Rectangle(box sentinel.AbsoluteBox, lineWidth int) {
	var (
		left   = int(box.Left)
		top    = int(box.Top)
		right  = int(box.Right())
		bottom = int(box.Bottom())
		before = lineWidth / 2
		after  = lineWidth - before
	)

	edges := []image.Rectangle{
		image.Rect(left-before, top-before, right+after, top+after),
		image.Rect(left-before, bottom-before, right+after, bottom+after),
		image.Rect(left-before, top-before, left+after, bottom+after),
		image.Rect(right-before, top-before, right+after, bottom+after),
	}

	for _, edge := range edges {
		draw.Draw(c.img, edge.Intersect(c.img.Bounds()), c.stroke, image.Point{}, draw.Src)
	}
}

// Label writes text on a magenta background anchored at (x, y).
func (c *ImageCanvas) Label(x, y int, text string) {
	var (
		metrics = c.face.Metrics()
		ascent  = metrics.Ascent.Ceil()
		height  = ascent + metrics.Descent.Ceil()
		width   = font.MeasureString(c.face, text).Ceil()
	)

	background := image.Rect(x, y, x+width+2*labelPadding, y+height+2*labelPadding)
	draw.Draw(c.img, background.Intersect(c.img.Bounds()), c.stroke, image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  c.img,
		Src:  c.text,
		Face: c.face,
		Dot:  fixed.P(x+labelPadding, y+labelPadding+ascent),
	}
	drawer.DrawString(text)
}

// Encode writes the canvas as JPEG.
func (c *ImageCanvas) Encode(w io.Writer) error {
	return jpeg.Encode(w, c.img, &jpeg.Options{Quality: jpegQuality})
}
