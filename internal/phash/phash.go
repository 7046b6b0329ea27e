// Package phash fingerprints images so near-identical logos can be matched.
package phash

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	_ "image/gif"  // register GIF
	_ "image/jpeg" // register JPEG
	_ "image/png"  // register PNG
	"strings"

	_ "golang.org/x/image/bmp" // register BMP
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP
)

// Size is the side of the square the image is reduced to.
const Size = 32

// Bits is the length of a valid fingerprint.
const Bits = Size * Size

// MaxPixels caps the decoded area. Larger images hash to "".
const MaxPixels = 16 << 20

// ErrIncomparable is returned for fingerprints of different or zero length.
var ErrIncomparable = errors.New("fingerprints are not comparable")

// Hash decodes data and returns a Bits-long string of '0' and '1', one per
// pixel of the reduced grayscale image in raster order. A pixel is '1' when
// it is brighter than the mean. Undecodable input, and images over MaxPixels,
// yield "".
func Hash(data []byte) string {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return ""
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return ""
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return ""
	}

	gray := image.NewGray(image.Rect(0, 0, Size, Size))
	draw.Draw(gray, gray.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(gray, gray.Bounds(), img, bounds, draw.Over, nil)

	var sum int
	for _, v := range gray.Pix {
		sum += int(v)
	}
	mean := float64(sum) / float64(len(gray.Pix))

	var b strings.Builder
	b.Grow(Bits)
	for y := range Size {
		for x := range Size {
			if float64(gray.GrayAt(x, y).Y) > mean {
				b.WriteByte('1')
			} else {
				b.WriteByte('0')
			}
		}
	}
	return b.String()
}

// Distance is the Hamming distance between two fingerprints.
func Distance(a, b string) (int, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, ErrIncomparable
	}
	d := 0
	for i := range len(a) {
		if a[i] != b[i] {
			d++
		}
	}
	return d, nil
}
