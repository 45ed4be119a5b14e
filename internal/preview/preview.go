// Package preview turns captured frames into encoded still images.
package preview

import (
	"errors"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/smazurov/framegrab/internal/capture"
)

// ErrUnsupportedFormat is returned for frames whose pixel format has no decoder.
var ErrUnsupportedFormat = errors.New("unsupported pixel format")

// Default encoding parameters.
const (
	DefaultFormat  = "jpeg"
	DefaultQuality = 85
)

// Options control scaling and encoding.
type Options struct {
	Format    string // "jpeg" or "png"
	Quality   int    // JPEG quality, 1-100
	MaxWidth  int    // 0 keeps the frame width
	MaxHeight int    // 0 keeps the frame height
}

// ContentType returns the MIME type for an encoding format name.
func ContentType(format string) string {
	if f, err := parseFormat(format); err == nil && f == imaging.PNG {
		return "image/png"
	}
	return "image/jpeg"
}

// Image converts a frame to an image that owns its pixels.
func Image(f *capture.Frame) (image.Image, error) {
	if f == nil || f.Width <= 0 || f.Height <= 0 {
		return nil, errors.New("empty frame")
	}
	bpp := f.PixelFormat.BytesPerPixel()
	if bpp == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f.PixelFormat)
	}
	stride := f.Stride
	if stride == 0 {
		stride = f.Width * bpp
	}
	if stride < f.Width*bpp || len(f.Data) < stride*(f.Height-1)+f.Width*bpp {
		return nil, fmt.Errorf("frame data too short: %d bytes for %s %dx%d", len(f.Data), f.PixelFormat, f.Width, f.Height)
	}

	switch f.PixelFormat {
	case capture.PixelFormatRGB24:
		return packed(f, stride, 0, 2), nil
	case capture.PixelFormatBGR24:
		return packed(f, stride, 2, 0), nil
	case capture.PixelFormatYUYV:
		return yuyv(f, stride), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f.PixelFormat)
	}
}

// packed converts 24-bit RGB or BGR lines. r and b are the byte offsets of
// the red and blue samples inside a pixel.
func packed(f *capture.Frame, stride, r, b int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := range f.Height {
		src := f.Data[y*stride:]
		dst := img.Pix[y*img.Stride:]
		for x := range f.Width {
			s, d := x*3, x*4
			dst[d] = src[s+r]
			dst[d+1] = src[s+1]
			dst[d+2] = src[s+b]
			dst[d+3] = 0xff
		}
	}
	return img
}

func yuyv(f *capture.Frame, stride int) *image.YCbCr {
	img := image.NewYCbCr(image.Rect(0, 0, f.Width, f.Height), image.YCbCrSubsampleRatio422)
	for y := range f.Height {
		src := f.Data[y*stride:]
		for x := 0; x+1 < f.Width; x += 2 {
			s := x * 2
			img.Y[y*img.YStride+x] = src[s]
			img.Y[y*img.YStride+x+1] = src[s+2]
			c := y*img.CStride + x/2
			img.Cb[c] = src[s+1]
			img.Cr[c] = src[s+3]
		}
		if f.Width%2 == 1 {
			x := f.Width - 1
			img.Y[y*img.YStride+x] = src[x*2]
			c := y*img.CStride + x/2
			img.Cb[c] = src[x*2+1]
			img.Cr[c] = 0x80
		}
	}
	return img
}

// Encode scales img to fit the configured bounds and writes it to w.
func Encode(w io.Writer, img image.Image, opts Options) error {
	format, err := parseFormat(opts.Format)
	if err != nil {
		return err
	}

	bounds := img.Bounds()
	maxW, maxH := opts.MaxWidth, opts.MaxHeight
	if maxW <= 0 {
		maxW = bounds.Dx()
	}
	if maxH <= 0 {
		maxH = bounds.Dy()
	}
	if maxW < bounds.Dx() || maxH < bounds.Dy() {
		img = imaging.Fit(img, maxW, maxH, imaging.Lanczos)
	}

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	if err := imaging.Encode(w, img, format, imaging.JPEGQuality(quality)); err != nil {
		return fmt.Errorf("encode %s: %w", format, err)
	}
	return nil
}

// Frame converts and encodes f in one step.
func Frame(w io.Writer, f *capture.Frame, opts Options) error {
	img, err := Image(f)
	if err != nil {
		return err
	}
	return Encode(w, img, opts)
}

func parseFormat(name string) (imaging.Format, error) {
	if name == "" {
		name = DefaultFormat
	}
	f, err := imaging.FormatFromExtension(strings.ToLower(name))
	if err != nil {
		return 0, fmt.Errorf("image format %q: %w", name, err)
	}
	if f != imaging.JPEG && f != imaging.PNG {
		return 0, fmt.Errorf("image format %q: %w", name, imaging.ErrUnsupportedFormat)
	}
	return f, nil
}
