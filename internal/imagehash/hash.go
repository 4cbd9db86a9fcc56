// Package imagehash computes perceptual fingerprints for images and matches
// them against a banned set within a Hamming-distance tolerance. The
// fingerprint combines two independent 64-bit hashes — a DCT perceptual
// hash and a gradient difference hash — compared separately with an
// OR-match policy, which keeps the match tolerant to resizing and
// recompression while staying deliberately coarse.
package imagehash

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"math/bits"
	"strconv"
	"strings"
)

const (
	phashSize = 32 // DCT input grid
	dhashW    = 9  // dhash grid width (8 comparisons per row)
	dhashH    = 8
)

// Fingerprint is the combined perceptual fingerprint of one image.
type Fingerprint struct {
	PHash uint64
	DHash uint64
}

// String encodes the fingerprint as two fixed-width hex words separated by
// a colon, the storage format used in configuration.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x:%016x", f.PHash, f.DHash)
}

// Parse decodes the storage format produced by String.
func Parse(s string) (Fingerprint, error) {
	p, d, ok := strings.Cut(s, ":")
	if !ok || len(p) != 16 || len(d) != 16 {
		return Fingerprint{}, fmt.Errorf("imagehash: malformed fingerprint %q", s)
	}
	ph, err := strconv.ParseUint(p, 16, 64)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("imagehash: parse phash: %w", err)
	}
	dh, err := strconv.ParseUint(d, 16, 64)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("imagehash: parse dhash: %w", err)
	}
	return Fingerprint{PHash: ph, DHash: dh}, nil
}

// Distance is the Hamming distance between two 64-bit hash words.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// FromImage computes the fingerprint of img. It is pure computation; the
// caller is responsible for decoding the image bytes.
func FromImage(img image.Image) Fingerprint {
	return Fingerprint{
		PHash: phash(img),
		DHash: dhash(img),
	}
}

// phash is a standard DCT perceptual hash: grayscale, shrink to 32x32,
// 2D DCT, take the 8x8 low-frequency block (skipping the DC term), set a
// bit for each coefficient above the median.
func phash(img image.Image) uint64 {
	gray := resizeGray(img, phashSize, phashSize)
	freq := dct2d(gray)

	// Collect the 8x8 low-frequency block, skipping freq[0][0].
	var coeffs [64]float64
	i := 0
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			coeffs[i] = freq[y][x]
			i++
		}
	}
	med := median(coeffs[1:]) // exclude the DC coefficient from the median

	var h uint64
	for i := 1; i < 64; i++ {
		h <<= 1
		if coeffs[i] > med {
			h |= 1
		}
	}
	// The DC position contributes a fixed zero bit, keeping the hash 64
	// bits wide and stable.
	h <<= 1
	return h
}

// dhash is a gradient hash: grayscale, shrink to 9x8, set a bit when the
// left pixel is brighter than its right neighbour.
func dhash(img image.Image) uint64 {
	gray := resizeGray(img, dhashW, dhashH)
	var h uint64
	for y := 0; y < dhashH; y++ {
		for x := 0; x < dhashW-1; x++ {
			h <<= 1
			if gray[y][x] > gray[y][x+1] {
				h |= 1
			}
		}
	}
	return h
}

// resizeGray shrinks img to w x h using box (area-average) sampling and
// converts to luma. Box sampling is what keeps the hash stable across
// moderate rescaling.
func resizeGray(img image.Image, w, h int) [][]float64 {
	b := img.Bounds()
	sw, sh := b.Dx(), b.Dy()
	out := make([][]float64, h)
	for y := range out {
		out[y] = make([]float64, w)
	}
	if sw == 0 || sh == 0 {
		return out
	}
	for y := 0; y < h; y++ {
		y0 := b.Min.Y + y*sh/h
		y1 := b.Min.Y + (y+1)*sh/h
		if y1 <= y0 {
			y1 = y0 + 1
		}
		for x := 0; x < w; x++ {
			x0 := b.Min.X + x*sw/w
			x1 := b.Min.X + (x+1)*sw/w
			if x1 <= x0 {
				x1 = x0 + 1
			}
			var sum float64
			for sy := y0; sy < y1; sy++ {
				for sx := x0; sx < x1; sx++ {
					sum += luma(img.At(sx, sy))
				}
			}
			out[y][x] = sum / float64((y1-y0)*(x1-x0))
		}
	}
	return out
}

func luma(c color.Color) float64 {
	r, g, b, _ := c.RGBA()
	return 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
}

// dct2d computes a 2D type-II DCT of a square grid. The input is small
// (32x32), so the direct O(n^3) separable form is fine.
func dct2d(in [][]float64) [][]float64 {
	n := len(in)
	tmp := make([][]float64, n)
	out := make([][]float64, n)
	for i := range tmp {
		tmp[i] = dct1d(in[i])
		out[i] = make([]float64, n)
	}
	col := make([]float64, n)
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			col[y] = tmp[y][x]
		}
		t := dct1d(col)
		for y := 0; y < n; y++ {
			out[y][x] = t[y]
		}
	}
	return out
}

func dct1d(in []float64) []float64 {
	n := len(in)
	out := make([]float64, n)
	for k := 0; k < n; k++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += in[i] * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(n)))
		}
		out[k] = sum
	}
	return out
}

func median(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
