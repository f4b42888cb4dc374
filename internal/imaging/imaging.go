// Package imaging normalizes uploaded photos: decode, downscale to a bounding
// box and re-encode.
package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	"image/png"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"shutter/internal/middleware"
	"shutter/internal/observability"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// Output formats.
const (
	FormatJPEG = "jpeg"
	FormatWebP = "webp"
)

const (
	defaultMaxDimension = 2048
	defaultQuality      = 95
	// maxDecodePixels bounds decoder memory; larger inputs are stored as-is.
	maxDecodePixels = 100_000_000
)

// Options configures a Processor.
type Options struct {
	MaxDimension int
	Quality      int
	Format       string
}

// Result is the normalized image, or the original bytes when the upload
// could not be decoded.
type Result struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
	// Processed is false when the original bytes were passed through.
	Processed bool
}

// Processor runs the decode/resize/encode pipeline.
type Processor struct {
	opts Options
}

// NewProcessor fills zero options with defaults.
func NewProcessor(opts Options) *Processor {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = defaultMaxDimension
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = defaultQuality
	}
	opts.Format = strings.ToLower(strings.TrimSpace(opts.Format))
	if opts.Format == "" {
		opts.Format = FormatJPEG
	}
	return &Processor{opts: opts}
}

// Extension is the object key extension for normalized output.
func (p *Processor) Extension() string {
	if p.opts.Format == FormatWebP {
		return "webp"
	}
	return "jpg"
}

// Normalize downsizes content so neither side exceeds MaxDimension and
// re-encodes it. Undecodable input is returned unchanged; only context
// cancellation is an error.
func (p *Processor) Normalize(ctx context.Context, content []byte, contentType string) (*Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := p.normalize(ctx, content)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		middleware.Logger.WarnContext(ctx, "image decode failed, storing original bytes",
			slog.Int("bytes", len(content)),
			slog.String("error", err.Error()),
		)
		observability.ImageProcessingLatency.WithLabelValues("passthrough").Observe(time.Since(start).Seconds())
		return passthrough(content, contentType), nil
	}

	observability.ImageProcessingLatency.WithLabelValues("processed").Observe(time.Since(start).Seconds())
	return result, nil
}

func (p *Processor) normalize(ctx context.Context, content []byte) (*Result, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Width*cfg.Height > maxDecodePixels {
		return nil, fmt.Errorf("image too large to decode: %dx%d", cfg.Width, cfg.Height)
	}

	decoded, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resized := resizeToFit(decoded, p.opts.MaxDimension, p.opts.MaxDimension)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		data        []byte
		contentType string
	)
	switch p.opts.Format {
	case FormatWebP:
		data, err = encodeWebP(resized, p.opts.Quality)
		contentType = "image/webp"
	default:
		data, err = encodeJPEG(resized, p.opts.Quality)
		contentType = "image/jpeg"
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", p.opts.Format, err)
	}

	b := resized.Bounds()
	return &Result{
		Data:        data,
		ContentType: contentType,
		Width:       b.Dx(),
		Height:      b.Dy(),
		Processed:   true,
	}, nil
}

func passthrough(content []byte, contentType string) *Result {
	ct := normalizeContentType(contentType)
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(content)
	}
	return &Result{Data: content, ContentType: ct}
}

// resizeToFit scales src down (never up) to fit within maxWidth x maxHeight,
// preserving aspect ratio.
func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 {
		return src
	}
	if w <= maxWidth && h <= maxHeight {
		return src
	}

	scale := min(float64(maxWidth)/float64(w), float64(maxHeight)/float64(h))
	newW := max(int(float64(w)*scale), 1)
	newH := max(int(float64(h)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// ErrCapability is returned by CheckCapabilities when the pipeline cannot
// round-trip an image in the configured format.
var ErrCapability = errors.New("image processing unavailable")

// CheckCapabilities encodes and decodes a small probe image in format so
// startup fails fast when a codec is missing.
func CheckCapabilities(format string) error {
	switch format {
	case "", FormatJPEG, FormatWebP:
	default:
		return fmt.Errorf("%w: unsupported output format %q", ErrCapability, format)
	}

	probe := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			probe.Set(x, y, color.RGBA{R: uint8(x * 32), G: uint8(y * 32), B: 128, A: 255})
		}
	}

	src := bytes.NewBuffer(nil)
	if err := png.Encode(src, probe); err != nil {
		return fmt.Errorf("%w: encode probe: %v", ErrCapability, err)
	}

	p := NewProcessor(Options{MaxDimension: 4, Format: format})
	result, err := p.normalize(context.Background(), src.Bytes())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCapability, err)
	}
	if result.Width != 4 || result.Height != 4 {
		return fmt.Errorf("%w: resize produced %dx%d", ErrCapability, result.Width, result.Height)
	}
	if _, _, err := image.Decode(bytes.NewReader(result.Data)); err != nil {
		return fmt.Errorf("%w: re-decode %s: %v", ErrCapability, format, err)
	}
	return nil
}
