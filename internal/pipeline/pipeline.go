// Package pipeline is the thin shim from an Operation variant to concrete
// codec-library calls (§4.2). It decodes once, applies one operation, and
// encodes once; cross-operation chaining happens at the Revision Service
// level (each revision starts from a fresh decode of its own source blob),
// never inside this package.
package pipeline

import (
	"bytes"
	"fmt"
	stdimage "image"
	"image/jpeg"
	"image/png"

	"github.com/nfnt/resize"

	"image-processor/internal/domain"
)

// Result is the encoded output of Apply plus the mime type it was encoded
// with, which may differ from the source mime (COMPRESS always emits JPEG).
type Result struct {
	Bytes       []byte
	ContentType string
}

const jpegQualityDefault = 90

// Apply decodes src, applies op, and encodes the result. The decoder is
// picked from src's own format; srcMime picks the output encoder for
// anything but COMPRESS.
func Apply(op domain.Operation, src []byte, srcMime string) (Result, error) {
	img, _, err := stdimage.Decode(bytes.NewReader(src))
	if err != nil {
		return Result{}, fmt.Errorf("%w: decode failed: %v", domain.ErrCodec, err)
	}

	var out stdimage.Image
	switch v := op.(type) {
	case domain.RotateOp:
		out = rotate(img, v.Degrees)
	case domain.FlipOp:
		out = flip(img, v.Horizontal, v.Vertical)
	case domain.ResizeOp:
		out = resizeFitInside(img, v.Width, v.Height)
	case domain.CompressOp:
		out = img
	default:
		return Result{}, fmt.Errorf("%w: unsupported operation %T", domain.ErrCodec, op)
	}

	outMime := srcMime
	quality := jpegQualityDefault
	if c, ok := op.(domain.CompressOp); ok {
		outMime = domain.MimeJPEG
		quality = c.Quality
	}

	encoded, err := encode(out, outMime, quality)
	if err != nil {
		return Result{}, fmt.Errorf("%w: encode failed: %v", domain.ErrCodec, err)
	}

	return Result{Bytes: encoded, ContentType: outMime}, nil
}

func encode(img stdimage.Image, mime string, quality int) ([]byte, error) {
	buf := new(bytes.Buffer)
	var err error
	switch mime {
	case domain.MimePNG:
		err = png.Encode(buf, img)
	default:
		err = jpeg.Encode(buf, img, &jpeg.Options{Quality: quality})
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// rotate rotates the canvas by the exact angle; dimensions swap for 90/270,
// matching a physical rotation rather than an EXIF-orientation flag.
func rotate(img stdimage.Image, degrees int) stdimage.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch degrees {
	case 90:
		dst := stdimage.NewRGBA(stdimage.Rect(0, 0, h, w))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.Set(h-1-y, x, img.At(b.Min.X+x, b.Min.Y+y))
			}
		}
		return dst
	case 180:
		dst := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.Set(w-1-x, h-1-y, img.At(b.Min.X+x, b.Min.Y+y))
			}
		}
		return dst
	case 270:
		dst := stdimage.NewRGBA(stdimage.Rect(0, 0, h, w))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.Set(y, w-1-x, img.At(b.Min.X+x, b.Min.Y+y))
			}
		}
		return dst
	default:
		return img
	}
}

// flip mirrors across the vertical axis (horizontal=true), the horizontal
// axis (vertical=true), or both in sequence — applying two flips rather than
// collapsing to a single 180-degree rotation, per §4.2's bit-identical
// requirement for the "both" case.
func flip(img stdimage.Image, horizontal, vertical bool) stdimage.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := img

	if horizontal {
		dst := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.Set(w-1-x, y, out.At(b.Min.X+x, b.Min.Y+y))
			}
		}
		out = dst
		b = dst.Bounds()
	}
	if vertical {
		dst := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.Set(x, h-1-y, out.At(b.Min.X+x, b.Min.Y+y))
			}
		}
		out = dst
	}
	return out
}

// resizeFitInside scales the image so it fits inside width x height,
// preserving aspect ratio, using Lanczos-3 resampling. A zero bound is
// treated as unconstrained on that axis.
func resizeFitInside(img stdimage.Image, width, height int) stdimage.Image {
	b := img.Bounds()
	srcW, srcH := b.Dx(), b.Dy()

	targetW, targetH := width, height
	switch {
	case width == 0:
		targetW = int(float64(srcW) * float64(height) / float64(srcH))
	case height == 0:
		targetH = int(float64(srcH) * float64(width) / float64(srcW))
	default:
		scaleW := float64(width) / float64(srcW)
		scaleH := float64(height) / float64(srcH)
		scale := scaleW
		if scaleH < scale {
			scale = scaleH
		}
		targetW = int(float64(srcW) * scale)
		targetH = int(float64(srcH) * scale)
	}
	if targetW < 1 {
		targetW = 1
	}
	if targetH < 1 {
		targetH = 1
	}

	return resize.Resize(uint(targetW), uint(targetH), img, resize.Lanczos3)
}

// ThumbnailFitInside scales img to fit inside maxDim x maxDim with
// Lanczos-3, used by the Image Service's derive_thumbnail (§4.7).
func ThumbnailFitInside(img stdimage.Image, maxDim int) stdimage.Image {
	return resizeFitInside(img, maxDim, maxDim)
}

// Decode exposes the shared decode step for callers (thumbnail derivation)
// that need an image.Image without going through Apply.
func Decode(src []byte) (stdimage.Image, error) {
	img, _, err := stdimage.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: decode failed: %v", domain.ErrCodec, err)
	}
	return img, nil
}

// EncodeJPEG is exposed for the thumbnail path, which always emits JPEG
// content regardless of the spec's literal "WebP quality 80" language —
// see DESIGN.md for the JPEG-instead-of-WebP grounding decision.
func EncodeJPEG(img stdimage.Image, quality int) ([]byte, error) {
	return encode(img, domain.MimeJPEG, quality)
}
