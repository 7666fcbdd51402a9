package processing

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"math"
)

const (
	JPEGQuality = 95

	MinZoom       = 0.1
	MaxZoom       = 3.0
	MinBrightness = 0.5
	MaxBrightness = 2.0
	MinContrast   = 0.5
	MaxContrast   = 2.0

	// MaxPixels caps both decoded sources and rendered output
	MaxPixels = 50_000_000
)

var (
	ErrInvalidAdjustment = errors.New("invalid adjustment")
	ErrEmptyCrop         = errors.New("empty crop area")
	ErrTooLarge          = errors.New("image too large")
)

// Filter mirrors the CSS brightness() and contrast() filter functions
type Filter struct {
	Brightness float64
	Contrast   float64
}

func (f Filter) identity() bool {
	return f.Brightness == 1 && f.Contrast == 1
}

// Adjustment is what an approver stores per photo
type Adjustment struct {
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Zoom       float64 `json:"zoom"`
}

var DefaultAdjustment = Adjustment{Brightness: 1, Contrast: 1, Zoom: 1}

// Normalized replaces unset (zero) values with the defaults
func (a Adjustment) Normalized() Adjustment {
	if a.Brightness == 0 {
		a.Brightness = 1
	}
	if a.Contrast == 0 {
		a.Contrast = 1
	}
	if a.Zoom == 0 {
		a.Zoom = 1
	}
	return a
}

func (a Adjustment) Validate() error {
	switch {
	case a.Brightness < MinBrightness || a.Brightness > MaxBrightness:
		return fmt.Errorf("%w: brightness %.2f out of [%.1f, %.1f]", ErrInvalidAdjustment, a.Brightness, MinBrightness, MaxBrightness)
	case a.Contrast < MinContrast || a.Contrast > MaxContrast:
		return fmt.Errorf("%w: contrast %.2f out of [%.1f, %.1f]", ErrInvalidAdjustment, a.Contrast, MinContrast, MaxContrast)
	case a.Zoom < MinZoom || a.Zoom > MaxZoom:
		return fmt.Errorf("%w: zoom %.2f out of [%.1f, %.1f]", ErrInvalidAdjustment, a.Zoom, MinZoom, MaxZoom)
	}
	return nil
}

func (a Adjustment) Filter() Filter {
	return Filter{Brightness: a.Brightness, Contrast: a.Contrast}
}

// CheckPixels fails with ErrTooLarge when w x h is over MaxPixels
func CheckPixels(w, h int) error {
	if int64(w)*int64(h) > MaxPixels {
		return fmt.Errorf("%w: %dx%d", ErrTooLarge, w, h)
	}
	return nil
}

// Decode reads any registered image format (jpeg, png, gif).
// The header is checked against MaxPixels before any pixel is decoded.
func Decode(r io.Reader) (image.Image, string, error) {
	var head bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &head))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	if err = CheckPixels(cfg.Width, cfg.Height); err != nil {
		return nil, "", err
	}
	img, format, err := image.Decode(io.MultiReader(&head, r))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// Export renders the area starting at crop.Min with size crop.Size()/zoom
// through f and encodes it as JPEG. Pixels outside src come out black.
func Export(src image.Image, crop image.Rectangle, zoom float64, f Filter) ([]byte, error) {
	img, err := Render(src, crop, zoom, f)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Render is Export without the encoding step
func Render(src image.Image, crop image.Rectangle, zoom float64, f Filter) (*image.RGBA, error) {
	if zoom <= 0 {
		return nil, fmt.Errorf("%w: zoom %.2f", ErrInvalidAdjustment, zoom)
	}
	w := int(math.Round(float64(crop.Dx()) / zoom))
	h := int(math.Round(float64(crop.Dy()) / zoom))
	if w <= 0 || h <= 0 {
		return nil, ErrEmptyCrop
	}
	if err := CheckPixels(w, h); err != nil {
		return nil, err
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, crop.Min, draw.Over)
	if !f.identity() {
		applyFilter(dst, f)
	}
	return dst, nil
}

func applyFilter(img *image.RGBA, f Filter) {
	var lut [256]uint8
	for i := range lut {
		v := float64(i) / 255 * f.Brightness
		v = (v-0.5)*f.Contrast + 0.5
		lut[i] = uint8(math.Round(clamp01(v) * 255))
	}
	pix := img.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i] = lut[pix[i]]
		pix[i+1] = lut[pix[i+1]]
		pix[i+2] = lut[pix[i+2]]
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SquareCrop returns the zoom-1 rectangle for a square crop of the image.
// The side is the shorter image side. Its top-left corner is placed so that
// the window Export keeps (side/zoom) is centred on the image centre moved
// by offset.
func SquareCrop(bounds image.Rectangle, zoom float64, offset image.Point) image.Rectangle {
	side := bounds.Dx()
	if bounds.Dy() < side {
		side = bounds.Dy()
	}
	if zoom <= 0 {
		zoom = 1
	}
	center := image.Pt(bounds.Min.X+bounds.Dx()/2, bounds.Min.Y+bounds.Dy()/2).Add(offset)
	half := int(math.Round(float64(side) / zoom / 2))
	min := center.Sub(image.Pt(half, half))
	return image.Rectangle{Min: min, Max: min.Add(image.Pt(side, side))}
}
