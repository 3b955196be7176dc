// Package imageio loads encoded images and turns them into model input
// tensors.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/nfnt/resize"
	"github.com/rubenfonseca/fastimage"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"classifyd/internal/common/fsutil"
	"classifyd/internal/pool"
)

// MaxPixels caps the decoded size of any image. Headers announcing more are
// rejected before decoding.
const MaxPixels = 40 << 20

var (
	ErrEmpty    = errors.New("empty image buffer")
	ErrTooLarge = errors.New("image exceeds pixel limit")
)

// Info is what can be learned from the image header alone.
type Info struct {
	Width  int
	Height int
}

// Sniff reads image dimensions from the header without decoding. ok is false
// for formats the header parser does not know; Decode may still accept them.
func Sniff(b []byte) (info Info, ok bool) {
	_, size, err := fastimage.DetectImageTypeFromReader(bytes.NewReader(b))
	if err != nil || size == nil {
		return Info{}, false
	}
	return Info{Width: int(size.Width), Height: int(size.Height)}, true
}

// dimensions sniffs the header and falls back to the registered decoders'
// DecodeConfig for formats fastimage does not parse.
func dimensions(b []byte) (Info, bool) {
	if info, ok := Sniff(b); ok {
		return info, true
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return Info{}, false
	}
	return Info{Width: cfg.Width, Height: cfg.Height}, true
}

// Decode decodes PNG, JPEG, GIF, BMP, TIFF or WebP data.
func Decode(b []byte) (image.Image, string, error) {
	if len(b) == 0 {
		return nil, "", ErrEmpty
	}
	if info, ok := dimensions(b); ok && info.Width*info.Height > MaxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d", ErrTooLarge, info.Width, info.Height)
	}
	img, format, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// TensorLen is the number of floats Tensor writes for a size x size input.
func TensorLen(size int) int { return 3 * size * size }

// Tensor resizes img to size x size and writes it to dst in CHW order with
// channels scaled to [0,1]. dst is reused when it is large enough.
func Tensor(img image.Image, size int, dst []float32) []float32 {
	n := size * size
	if cap(dst) < 3*n {
		dst = make([]float32, 3*n)
	}
	dst = dst[:3*n]
	resized := resize.Resize(uint(size), uint(size), img, resize.Bilinear)
	b := resized.Bounds()
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, bl, _ := resized.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := y*size + x
			dst[i] = float32(r) / 65535.0
			dst[n+i] = float32(g) / 65535.0
			dst[2*n+i] = float32(bl) / 65535.0
		}
	}
	return dst
}

// LoadFile reads an image file into an InputImage. The filename is the base
// name of path.
func LoadFile(path, label string) (pool.InputImage, error) {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return pool.InputImage{}, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return pool.InputImage{}, fmt.Errorf("read image: %w", err)
	}
	return pool.InputImage{Data: data, Filename: filepath.Base(p), Label: label}, nil
}
