package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"net/http"
	"os"

	"github.com/disintegration/imaging"

	"sitesync/internal/config"
)

var (
	// ErrNotImage reports input that could not be decoded as a photo.
	ErrNotImage = errors.New("not a supported image")
	// ErrTooLarge reports a prepared payload above the configured limit.
	ErrTooLarge = errors.New("payload exceeds upload limit")
)

// PrepareOptions controls how photos are reduced before upload.
type PrepareOptions struct {
	// MaxDimension bounds the longer edge in pixels. Zero keeps the original size.
	MaxDimension int
	// JPEGQuality is used whenever the photo has to be re-encoded.
	JPEGQuality int
	// MaxBytes rejects prepared payloads above this size. Zero disables the check.
	MaxBytes int64
}

// OptionsFromConfig maps the capture section onto PrepareOptions.
func OptionsFromConfig(cfg config.Capture) PrepareOptions {
	return PrepareOptions{
		MaxDimension: cfg.MaxDimension,
		JPEGQuality:  cfg.JPEGQuality,
		MaxBytes:     cfg.MaxUploadBytes,
	}
}

// Prepare reads the photo at path and returns the bytes to enqueue.
func Prepare(path string, opts PrepareOptions) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}
	return PrepareBytes(data, opts)
}

// PrepareBytes decodes data and downsizes it to fit MaxDimension. JPEG input
// that already fits is returned untouched so its metadata survives; anything
// else is re-encoded as JPEG.
func PrepareBytes(data []byte, opts PrepareOptions) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}

	resize := needsResize(img.Bounds(), opts.MaxDimension)
	if !resize && http.DetectContentType(data) == "image/jpeg" {
		return checkSize(data, opts.MaxBytes)
	}

	if resize {
		img = imaging.Fit(img, opts.MaxDimension, opts.MaxDimension, imaging.Lanczos)
	}
	quality := opts.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode capture: %w", err)
	}
	return checkSize(buf.Bytes(), opts.MaxBytes)
}

func needsResize(bounds image.Rectangle, maxDim int) bool {
	if maxDim <= 0 {
		return false
	}
	return bounds.Dx() > maxDim || bounds.Dy() > maxDim
}

func checkSize(data []byte, limit int64) ([]byte, error) {
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %d bytes > %d", ErrTooLarge, len(data), limit)
	}
	return data, nil
}
