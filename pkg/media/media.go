// Package media re-encodes uploaded images into bounded JPEGs.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"strings"

	// decoders for image.Decode
	_ "image/gif"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	ErrNotImage = errors.New("not an image")
	ErrTooLarge = errors.New("image dimensions too large")
)

// DefaultMaxPixels bounds the decoded size of an image when
// Options.MaxPixels is not set.
const DefaultMaxPixels = 50_000_000

// Options bound the output of Transcode.
type Options struct {
	MaxWidth  int
	MaxHeight int
	// Quality is the JPEG quality, 1 to 100.
	Quality int
	// MaxPixels is the largest width x height accepted for decoding.
	MaxPixels int64
}

var DefaultOptions = Options{
	MaxWidth:  1280,
	MaxHeight: 720,
	Quality:   80,
	MaxPixels: DefaultMaxPixels,
}

// Fit returns the size of a w x h image scaled down to fit inside
// maxW x maxH with its aspect ratio kept. Images that already fit keep
// their size.
func Fit(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 || (w <= maxW && h <= maxH) {
		return w, h
	}
	// compare w/maxW with h/maxH without floats
	if w*maxH >= h*maxW {
		nh := h * maxW / w
		return maxW, max(nh, 1)
	}
	nw := w * maxH / h
	return max(nw, 1), maxH
}

// Sniff reports the detected MIME type of the content read from r and
// whether it is an image.
func Sniff(r io.Reader) (string, bool, error) {
	mtype, err := mimetype.DetectReader(r)
	if err != nil {
		return "", false, fmt.Errorf("detect type: %w", err)
	}
	for m := mtype; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") {
			return mtype.String(), true, nil
		}
	}
	return mtype.String(), false, nil
}

func decodeError(err error) error {
	if errors.Is(err, image.ErrFormat) {
		return ErrNotImage
	}
	return fmt.Errorf("decode: %w", err)
}

// Transcode decodes an image from r, scales it down to fit the bounds of
// opts and writes it to w as a JPEG. Images whose header declares more than
// opts.MaxPixels pixels are rejected with ErrTooLarge before decoding.
func Transcode(r io.Reader, w io.Writer, opts Options) error {
	maxPixels := opts.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	var header bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &header))
	if err != nil {
		return decodeError(err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width) > maxPixels/int64(cfg.Height) {
		return fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(io.MultiReader(&header, r))
	if err != nil {
		return decodeError(err)
	}

	b := src.Bounds()
	width, height := Fit(b.Dx(), b.Dy(), opts.MaxWidth, opts.MaxHeight)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	// JPEG has no alpha channel
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if width == b.Dx() && height == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}

	if err := jpeg.Encode(w, dst, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// CompressFile transcodes the image at path into path+".compressed" and
// renames the result over path. On failure both files are removed.
func CompressFile(path string, opts Options) (err error) {
	tmp := path + ".compressed"
	defer func() {
		if err != nil {
			os.Remove(tmp)
			os.Remove(path)
		}
	}()

	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := Transcode(in, out, opts); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
