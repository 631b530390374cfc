package camera

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/draw"
)

// ErrCapture reports a failed capture or an unreadable photo.
var ErrCapture = errors.New("camera capture failed")

// Resolution is a width/height pair in pixels.
type Resolution struct {
	Width  int
	Height int
}

// Photo is a captured image on disk. Values are never mutated after capture.
type Photo struct {
	Path       string
	Resolution Resolution
	ISO        int
}

// Name returns the file name of the photo.
func (p Photo) Name() string {
	return filepath.Base(p.Path)
}

// PhotoName builds the capture file name for the given instant.
func PhotoName(t time.Time) string {
	return fmt.Sprintf("photo_%d.jpg", t.Unix())
}

const resizeDirPrefix = "smartbin-resize-"

// Resize writes a scaled copy of the photo, under the same file name, into a
// new temp directory and returns it.
// The source file is left untouched.
func (p Photo) Resize(ratio float64, quality int) (Photo, error) {
	if ratio <= 0 {
		return Photo{}, fmt.Errorf("resize ratio must be positive, got %v", ratio)
	}

	src, err := os.Open(p.Path)
	if err != nil {
		return Photo{}, fmt.Errorf("%w: %v", ErrCapture, err)
	}
	defer src.Close()

	img, _, err := image.Decode(src)
	if err != nil {
		return Photo{}, fmt.Errorf("%w: decode %s: %v", ErrCapture, p.Path, err)
	}

	bounds := img.Bounds()
	res := Resolution{
		Width:  max(1, int(float64(bounds.Dx())*ratio)),
		Height: max(1, int(float64(bounds.Dy())*ratio)),
	}
	dst := image.NewRGBA(image.Rect(0, 0, res.Width, res.Height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	dir, err := os.MkdirTemp("", resizeDirPrefix+"*")
	if err != nil {
		return Photo{}, err
	}
	out, err := os.Create(filepath.Join(dir, p.Name()))
	if err != nil {
		os.RemoveAll(dir)
		return Photo{}, err
	}
	if err := jpeg.Encode(out, dst, &jpeg.Options{Quality: quality}); err != nil {
		out.Close()
		os.RemoveAll(dir)
		return Photo{}, err
	}
	if err := out.Close(); err != nil {
		os.RemoveAll(dir)
		return Photo{}, err
	}

	return Photo{Path: out.Name(), Resolution: res, ISO: p.ISO}, nil
}

// RemoveResized deletes a copy made by Resize along with its temp directory.
// Photos that did not come from Resize are left alone.
func RemoveResized(p Photo) error {
	dir := filepath.Dir(p.Path)
	if !strings.HasPrefix(filepath.Base(dir), resizeDirPrefix) {
		return fmt.Errorf("%s is not a resized copy", p.Path)
	}
	return os.RemoveAll(dir)
}
