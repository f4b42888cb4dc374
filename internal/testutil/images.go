package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"testing"

	"github.com/chai2010/webp"
)

var encoders = map[string]func(io.Writer, image.Image) error{
	"png":  png.Encode,
	"jpeg": func(w io.Writer, m image.Image) error { return jpeg.Encode(w, m, &jpeg.Options{Quality: 75}) },
	"gif":  func(w io.Writer, m image.Image) error { return gif.Encode(w, m, nil) },
	"webp": func(w io.Writer, m image.Image) error { return webp.Encode(w, m, &webp.Options{Quality: 75}) },
}

// Image returns a w x h gradient encoded as png, jpeg, gif or webp.
func Image(t testing.TB, format string, w, h int) []byte {
	t.Helper()
	encode, ok := encoders[format]
	if !ok {
		t.Fatalf("no test encoder for %q", format)
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y += 8 {
		for x := 0; x < w; x += 8 {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := encode(&buf, img); err != nil {
		t.Fatalf("encode %s: %v", format, err)
	}
	return buf.Bytes()
}

func TinyPNG(t testing.TB, w, h int) []byte { t.Helper(); return Image(t, "png", w, h) }

func SizedJPEG(t testing.TB, w, h int) []byte { t.Helper(); return Image(t, "jpeg", w, h) }
