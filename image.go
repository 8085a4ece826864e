package lbpcascade

import (
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/histogram"
	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"
	"golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Output formats supported by encodeImage.
const (
	FormatJPEG = "jpg"
	FormatPNG  = "png"
	FormatGIF  = "gif"
	FormatBMP  = "bmp"
	FormatWebP = "webp"
)

// decodeImage decodes an image applying the orientation stored in its EXIF metadata.
func decodeImage(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("could not decode the source image: %w", err)
	}
	return img, nil
}

// toGray converts any image to an 8-bit grayscale image with min-point at (0, 0).
func toGray(img image.Image) *image.Gray {
	src := imaging.Clone(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	return &image.Gray{
		Pix:    pigo.RgbToGrayscale(src),
		Stride: w,
		Rect:   image.Rect(0, 0, w, h),
	}
}

// equalizeHist spreads the intensity histogram of src over the full [0, 255] range,
// producing the same output as OpenCV's equalizeHist.
func equalizeHist(src *image.Gray) *image.Gray {
	dst := image.NewGray(src.Bounds())
	copy(dst.Pix, src.Pix)

	bins := histogram.NewRGBAHistogram(src).R.Bins
	total := src.Bounds().Dx() * src.Bounds().Dy()
	if total == 0 {
		return dst
	}

	i := 0
	for bins[i] == 0 {
		i++
	}
	// A constant image is left untouched.
	if bins[i] == total {
		return dst
	}

	var (
		lut   [256]uint8
		scale = float32(255) / float32(total-bins[i])
		sum   int
	)
	for i++; i < len(bins); i++ {
		sum += bins[i]
		v := math.RoundToEven(float64(float32(sum) * scale))
		lut[i] = uint8(math.Min(v, 255))
	}

	for k, p := range dst.Pix {
		dst.Pix[k] = lut[p]
	}
	return dst
}

// formatFromPath returns the output format matching the file extension of path.
func formatFromPath(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jpg", ".jpeg":
		return FormatJPEG, nil
	case ".png":
		return FormatPNG, nil
	case ".gif":
		return FormatGIF, nil
	case ".bmp":
		return FormatBMP, nil
	case ".webp":
		return FormatWebP, nil
	}
	return "", fmt.Errorf("unsupported image format: %q", ext)
}

// encodeImage encodes img into w using the requested format.
// The quality is used by the lossy JPEG and WebP encoders.
func encodeImage(w io.Writer, img image.Image, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "", FormatJPEG, "jpeg":
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case FormatPNG:
		return imaging.Encode(w, img, imaging.PNG)
	case FormatGIF:
		return imaging.Encode(w, img, imaging.GIF)
	case FormatBMP:
		return bmp.Encode(w, img)
	case FormatWebP:
		return webp.Encode(w, img, &webp.Options{Lossless: lossless, Quality: float32(quality)})
	}
	return errors.New("unsupported image format")
}
