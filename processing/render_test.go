package processing

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestExport_Size(t *testing.T) {
	src := solid(40, 20, color.Gray{Y: 128})
	tests := []struct {
		name  string
		crop  image.Rectangle
		zoom  float64
		wantW int
		wantH int
	}{
		{"defaults keep the whole image", src.Bounds(), 1, 40, 20},
		{"zoom 2 halves each side", src.Bounds(), 2, 20, 10},
		{"zoom 0.5 doubles each side", src.Bounds(), 0.5, 80, 40},
		{"square crop", image.Rect(10, 0, 30, 20), 1, 20, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Export(src, tt.crop, tt.zoom, Filter{Brightness: 1, Contrast: 1})
			if err != nil {
				t.Fatalf("Export: %v", err)
			}
			img, err := jpeg.Decode(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("output is not a jpeg: %v", err)
			}
			if got := img.Bounds().Size(); got.X != tt.wantW || got.Y != tt.wantH {
				t.Errorf("size = %v, want %dx%d", got, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestRender_OutsideIsBlack(t *testing.T) {
	src := solid(20, 20, color.White)
	img, err := Render(src, image.Rect(-10, -10, 10, 10), 1, Filter{Brightness: 1, Contrast: 1})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if r, g, b, _ := img.At(0, 0).RGBA(); r != 0 || g != 0 || b != 0 {
		t.Errorf("pixel outside the source should be black, got %d,%d,%d", r>>8, g>>8, b>>8)
	}
	if r, _, _, _ := img.At(15, 15).RGBA(); r>>8 != 255 {
		t.Errorf("pixel inside the source should be white, got %d", r>>8)
	}
}

func TestRender_Filter(t *testing.T) {
	src := solid(4, 4, color.RGBA{R: 128, G: 64, B: 200, A: 255})
	tests := []struct {
		name   string
		filter Filter
		want   color.RGBA
	}{
		{"identity", Filter{1, 1}, color.RGBA{128, 64, 200, 255}},
		{"brightness 2 saturates", Filter{2, 1}, color.RGBA{255, 128, 255, 255}},
		{"brightness 0.5", Filter{0.5, 1}, color.RGBA{64, 32, 100, 255}},
		{"contrast 2 spreads from mid grey", Filter{1, 2}, color.RGBA{129, 1, 255, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Render(src, src.Bounds(), 1, tt.filter)
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			got := img.RGBAAt(1, 1)
			if !near(got.R, tt.want.R) || !near(got.G, tt.want.G) || !near(got.B, tt.want.B) || got.A != 255 {
				t.Errorf("pixel = %v, want about %v", got, tt.want)
			}
		})
	}
}

func near(a, b uint8) bool {
	d := int(a) - int(b)
	return d >= -1 && d <= 1
}

func TestRender_TransparentBecomesBlack(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2)) // fully transparent
	img, err := Render(src, src.Bounds(), 1, Filter{1, 1})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := img.RGBAAt(0, 0); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("pixel = %v, want opaque black", got)
	}
}

func TestRender_Errors(t *testing.T) {
	src := solid(10, 10, color.White)
	if _, err := Render(src, src.Bounds(), 0, Filter{1, 1}); !errors.Is(err, ErrInvalidAdjustment) {
		t.Errorf("zoom 0: expected ErrInvalidAdjustment, got %v", err)
	}
	if _, err := Render(src, image.Rect(0, 0, 0, 10), 1, Filter{1, 1}); !errors.Is(err, ErrEmptyCrop) {
		t.Errorf("empty crop: expected ErrEmptyCrop, got %v", err)
	}
}

func TestRender_PixelLimit(t *testing.T) {
	src := solid(1200, 900, color.White)
	tests := []struct {
		name    string
		crop    image.Rectangle
		zoom    float64
		wantErr bool
	}{
		{"zoom 1", SquareCrop(src.Bounds(), 1, image.Point{}), 1, false},
		{"min zoom on a small crop", image.Rect(0, 0, 200, 200), MinZoom, false},
		{"min zoom on the full square", SquareCrop(src.Bounds(), MinZoom, image.Point{}), MinZoom, true},
		{"min zoom on the full image", src.Bounds(), MinZoom, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Render(src, tt.crop, tt.zoom, Filter{1, 1})
			if tt.wantErr {
				if !errors.Is(err, ErrTooLarge) {
					t.Fatalf("expected ErrTooLarge, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			if n := img.Bounds().Dx() * img.Bounds().Dy(); n > MaxPixels {
				t.Errorf("rendered %d pixels", n)
			}
		})
	}
}

// pngDeclaring returns a valid 1x1 PNG whose header claims w x h pixels
func pngDeclaring(t *testing.T, w, h uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(1, 1, color.White)); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	// signature(8) length(4) "IHDR"(4) width(4) height(4) ... crc
	binary.BigEndian.PutUint32(data[16:], w)
	binary.BigEndian.PutUint32(data[20:], h)
	binary.BigEndian.PutUint32(data[29:], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestDecode_PixelLimit(t *testing.T) {
	tests := []struct {
		name string
		w, h uint32
	}{
		{"square", 50000, 50000},
		{"just over", 10001, 5000},
		{"wide", 1 << 20, 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := pngDeclaring(t, tt.w, tt.h)
			if _, _, err := Decode(bytes.NewReader(data)); !errors.Is(err, ErrTooLarge) {
				t.Errorf("Decode: expected ErrTooLarge, got %v", err)
			}
			var out bytes.Buffer
			if _, err := CreateThumb(100, bytes.NewReader(data), &out); !errors.Is(err, ErrTooLarge) {
				t.Errorf("CreateThumb: expected ErrTooLarge, got %v", err)
			}
			if out.Len() != 0 {
				t.Errorf("CreateThumb wrote %d bytes", out.Len())
			}
		})
	}
}

func TestDecode_KeepsWholeStream(t *testing.T) {
	var src bytes.Buffer
	if err := png.Encode(&src, solid(300, 40, color.RGBA{10, 20, 30, 255})); err != nil {
		t.Fatal(err)
	}
	img, format, err := Decode(&src)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if format != "png" || img.Bounds().Dx() != 300 || img.Bounds().Dy() != 40 {
		t.Errorf("got %s %v", format, img.Bounds())
	}
	r, g, b, _ := img.At(299, 39).RGBA()
	if r>>8 != 10 || g>>8 != 20 || b>>8 != 30 {
		t.Errorf("last pixel = %d,%d,%d", r>>8, g>>8, b>>8)
	}
}

func TestSquareCrop(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 60)
	tests := []struct {
		name   string
		zoom   float64
		offset image.Point
		want   image.Rectangle
	}{
		{"centred", 1, image.Point{}, image.Rect(20, 0, 80, 60)},
		{"zoomed in stays centred", 2, image.Point{}, image.Rect(35, 15, 95, 75)},
		{"panned", 1, image.Pt(10, -5), image.Rect(30, -5, 90, 55)},
		{"zero zoom treated as 1", 0, image.Point{}, image.Rect(20, 0, 80, 60)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SquareCrop(bounds, tt.zoom, tt.offset)
			if got != tt.want {
				t.Errorf("SquareCrop() = %v, want %v", got, tt.want)
			}
			if got.Dx() != got.Dy() {
				t.Errorf("crop is not square: %v", got)
			}
		})
	}

	// the kept window is centred on the image centre
	crop := SquareCrop(bounds, 2, image.Point{})
	img, _ := Render(solid(100, 60, color.White), crop, 2, Filter{1, 1})
	if img.Bounds().Dx() != 30 || img.Bounds().Dy() != 30 {
		t.Errorf("zoomed square export = %v, want 30x30", img.Bounds())
	}
}

func TestAdjustment(t *testing.T) {
	if got := (Adjustment{}).Normalized(); got != DefaultAdjustment {
		t.Errorf("Normalized() = %+v, want defaults", got)
	}
	if got := (Adjustment{Brightness: 1.5}).Normalized(); got.Brightness != 1.5 || got.Contrast != 1 || got.Zoom != 1 {
		t.Errorf("Normalized() = %+v", got)
	}

	tests := []struct {
		name    string
		adj     Adjustment
		wantErr bool
	}{
		{"defaults", DefaultAdjustment, false},
		{"limits", Adjustment{Brightness: 0.5, Contrast: 2, Zoom: 3}, false},
		{"dark", Adjustment{Brightness: 0.4, Contrast: 1, Zoom: 1}, true},
		{"contrast", Adjustment{Brightness: 1, Contrast: 2.1, Zoom: 1}, true},
		{"zoom", Adjustment{Brightness: 1, Contrast: 1, Zoom: 0.05}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.adj.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidAdjustment) {
				t.Errorf("expected ErrInvalidAdjustment, got %v", err)
			}
		})
	}
}

func TestCreateThumb(t *testing.T) {
	var src bytes.Buffer
	if err := png.Encode(&src, solid(400, 200, color.White)); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	info, err := CreateThumb(100, &src, &out)
	if err != nil {
		t.Fatalf("CreateThumb: %v", err)
	}
	if info.Width != 100 || info.Height != 50 || info.SourceWidth != 400 || info.SourceHeight != 200 {
		t.Errorf("unexpected sizes: %+v", info)
	}
	if info.Bytes != int64(out.Len()) {
		t.Errorf("Bytes = %d, written %d", info.Bytes, out.Len())
	}
}
