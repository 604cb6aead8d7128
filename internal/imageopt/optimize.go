// Package imageopt re-encodes images until they fit an upload byte budget.
package imageopt

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultMaxBytes is Bluesky's per-image blob limit.
const DefaultMaxBytes = 1_000_000

var (
	ErrSizeLimitExceeded = errors.New("imageopt: image cannot be compressed under the size limit")
	ErrUnsupportedFormat = errors.New("imageopt: unsupported image format")
)

var decodable = map[string]bool{"jpeg": true, "png": true, "webp": true}

// Optimizer holds the knobs of the compression loop. The zero value is not
// usable; start from Default.
type Optimizer struct {
	MaxBytes      int
	StartQuality  int
	QualityStep   int
	QualityFloor  int
	ResetQuality  int     // quality after each downscale
	ScaleFactor   float64 // applied to both sides on downscale
	MaxIterations int
	MaxLongSide   int // initial cap on the longer side, 0 for none
	MinLongSide   int // no downscale below this
}

// Default returns the settings used for Bluesky uploads.
func Default() Optimizer {
	return Optimizer{
		MaxBytes:      DefaultMaxBytes,
		StartQuality:  85,
		QualityStep:   15,
		QualityFloor:  40,
		ResetQuality:  70,
		ScaleFactor:   0.9,
		MaxIterations: 8,
		MaxLongSide:   2000,
		MinLongSide:   320,
	}
}

// Result is the optimizer's output. When Compressed is false, Data is the
// caller's slice, untouched, and ContentType is empty.
type Result struct {
	Data         []byte
	ContentType  string
	Width        int
	Height       int
	Quality      int
	Iterations   int
	OriginalSize int
	Compressed   bool
}

// Optimize runs the default optimizer with the given budget; maxBytes <= 0
// means DefaultMaxBytes.
func Optimize(data []byte, maxBytes int) (*Result, error) {
	o := Default()
	if maxBytes > 0 {
		o.MaxBytes = maxBytes
	}
	return o.Optimize(data)
}

// Optimize returns data unchanged when it already fits MaxBytes. Otherwise
// it decodes the image, flattens it onto white and re-encodes it as JPEG,
// lowering quality by QualityStep down to QualityFloor, then shrinking by
// ScaleFactor and resetting quality, until the output fits or
// MaxIterations is spent. It never upscales and keeps the aspect ratio.
func (o Optimizer) Optimize(data []byte) (*Result, error) {
	if len(data) <= o.MaxBytes {
		res := &Result{Data: data, OriginalSize: len(data)}
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			res.Width, res.Height = cfg.Width, cfg.Height
		}
		return res, nil
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if !decodable[format] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	img := flatten(src, o.MaxLongSide)
	quality := o.StartQuality
	var buf bytes.Buffer
	for iter := 1; iter <= o.MaxIterations; iter++ {
		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("imageopt: encode jpeg: %w", err)
		}
		if buf.Len() <= o.MaxBytes {
			b := img.Bounds()
			return &Result{
				Data:         bytes.Clone(buf.Bytes()),
				ContentType:  "image/jpeg",
				Width:        b.Dx(),
				Height:       b.Dy(),
				Quality:      quality,
				Iterations:   iter,
				OriginalSize: len(data),
				Compressed:   true,
			}, nil
		}

		if quality > o.QualityFloor {
			quality = max(quality-o.QualityStep, o.QualityFloor)
			continue
		}
		w, h := scale(img.Bounds().Dx(), img.Bounds().Dy(), o.ScaleFactor)
		if max(w, h) < o.MinLongSide {
			break
		}
		img = resize(img, w, h)
		quality = o.ResetQuality
	}
	return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrSizeLimitExceeded, buf.Len(), o.MaxBytes)
}

// flatten draws src onto an opaque white canvas, shrinking it first when
// its longer side exceeds maxLong.
func flatten(src image.Image, maxLong int) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if long := max(w, h); maxLong > 0 && long > maxLong {
		w, h = scale(w, h, float64(maxLong)/float64(long))
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}
	return dst
}

func resize(src *image.RGBA, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func scale(w, h int, f float64) (int, int) {
	return max(1, int(math.Round(float64(w)*f))), max(1, int(math.Round(float64(h)*f)))
}
