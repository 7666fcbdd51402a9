package processing

import (
	"bytes"
	"image/jpeg"
	"io"

	"github.com/nfnt/resize"
)

const thumbQuality = 85

// Thumb describes a thumbnail written by CreateThumb
type Thumb struct {
	Bytes        int64
	Width        int
	Height       int
	SourceWidth  int
	SourceHeight int
}

// CreateThumb fits the image into size x size, keeping the aspect ratio,
// and writes it as JPEG. Images already small enough are only re-encoded.
func CreateThumb(size uint, reader io.Reader, writer io.Writer) (Thumb, error) {
	img, _, err := Decode(reader)
	if err != nil {
		return Thumb{}, err
	}
	src := img.Bounds().Size()
	thumb := resize.Thumbnail(size, size, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err = jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: thumbQuality}); err != nil {
		return Thumb{}, err
	}
	dst := thumb.Bounds().Size()
	n, err := io.Copy(writer, &buf)
	return Thumb{
		Bytes:        n,
		Width:        dst.X,
		Height:       dst.Y,
		SourceWidth:  src.X,
		SourceHeight: src.Y,
	}, err
}
