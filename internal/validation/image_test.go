package validation

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"testing"
)

// encodeTestImage renders a small solid image in the given format.
func encodeTestImage(t *testing.T, format string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	var err error
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, img, nil)
	case "png":
		err = png.Encode(&buf, img)
	default:
		t.Fatalf("unknown format %q", format)
	}
	if err != nil {
		t.Fatalf("encode %s: %v", format, err)
	}
	return buf.Bytes()
}

func TestValidateImage_JPEG(t *testing.T) {
	data := encodeTestImage(t, "jpeg")
	ct, err := ValidateImage(data, 0)
	if err != nil {
		t.Fatalf("ValidateImage() error: %v", err)
	}
	if ct != "image/jpeg" {
		t.Errorf("content type = %q, want image/jpeg", ct)
	}
}

func TestValidateImage_PNG(t *testing.T) {
	data := encodeTestImage(t, "png")
	ct, err := ValidateImage(data, 0)
	if err != nil {
		t.Fatalf("ValidateImage() error: %v", err)
	}
	if ct != "image/png" {
		t.Errorf("content type = %q, want image/png", ct)
	}
}

func TestValidateImage_GIF(t *testing.T) {
	// GIF89a header plus minimal trailer; DetectContentType only needs the magic.
	data := []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")
	ct, err := ValidateImage(data, 0)
	if err != nil {
		t.Fatalf("ValidateImage() error: %v", err)
	}
	if ct != "image/gif" {
		t.Errorf("content type = %q, want image/gif", ct)
	}
}

func TestValidateImage_Empty(t *testing.T) {
	_, err := ValidateImage(nil, 0)
	if !errors.Is(err, ErrImageEmpty) {
		t.Errorf("error = %v, want ErrImageEmpty", err)
	}
}

func TestValidateImage_TooLarge(t *testing.T) {
	data := encodeTestImage(t, "jpeg")
	_, err := ValidateImage(data, 10) // 10 byte cap
	if !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("error = %v, want ErrImageTooLarge", err)
	}
}

func TestValidateImage_SniffsActualBytes(t *testing.T) {
	// A PDF renamed to .jpg must be rejected: the magic bytes decide.
	data := []byte("%PDF-1.4 definitely not an image")
	_, err := ValidateImage(data, 0)
	if !errors.Is(err, ErrUnsupportedImage) {
		t.Errorf("error = %v, want ErrUnsupportedImage", err)
	}
}

func TestValidateImage_WebPRejected(t *testing.T) {
	// WebP sniffs correctly but the thumbnail pipeline cannot decode it.
	data := append([]byte("RIFF\x24\x00\x00\x00WEBPVP8 "), bytes.Repeat([]byte{0}, 16)...)
	_, err := ValidateImage(data, 0)
	if !errors.Is(err, ErrUnsupportedImage) {
		t.Errorf("error = %v, want ErrUnsupportedImage", err)
	}
}

func TestValidateImage_DefaultCapApplies(t *testing.T) {
	// maxSize <= 0 falls back to the default cap rather than unlimited.
	data := encodeTestImage(t, "png")
	if _, err := ValidateImage(data, -1); err != nil {
		t.Errorf("ValidateImage() with default cap error: %v", err)
	}
}
