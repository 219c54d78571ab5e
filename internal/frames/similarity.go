package frames

import (
	"bytes"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Similarity scores two luminance frames in [0,1] by the normalized
// cross-correlation of their edge maps. b is resampled to a's size when the
// dimensions differ.
func Similarity(a, b *image.Gray) float64 {
	if a == nil || b == nil {
		return 0
	}
	if a.Bounds().Size() != b.Bounds().Size() {
		b = resizeGray(b, a.Bounds().Dx(), a.Bounds().Dy())
	}
	w, h := a.Bounds().Dx(), a.Bounds().Dy()
	return edgeCorrelation(canny(packed(a), w, h), canny(packed(b), w, h))
}

func edgeCorrelation(ea, eb []uint8) float64 {
	if bytes.Equal(ea, eb) {
		return 1
	}
	n := float64(len(ea))
	if n == 0 {
		return 0
	}
	var sumA, sumB float64
	for i := range ea {
		sumA += float64(ea[i])
		sumB += float64(eb[i])
	}
	meanA, meanB := sumA/n, sumB/n

	var num, varA, varB float64
	for i := range ea {
		da := float64(ea[i]) - meanA
		db := float64(eb[i]) - meanB
		num += da * db
		varA += da * da
		varB += db * db
	}
	den := math.Sqrt(varA * varB)
	if den == 0 {
		return 0
	}
	score := num / den
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}

// packed returns the gray pixels without stride padding.
func packed(img *image.Gray) []uint8 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if img.Stride == w && b.Min == (image.Point{}) {
		return img.Pix[:w*h]
	}
	out := make([]uint8, 0, w*h)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		start := img.PixOffset(b.Min.X, y)
		out = append(out, img.Pix[start:start+w]...)
	}
	return out
}

// luminance downscales src by scale and converts it to 8-bit gray.
func luminance(src image.Image, scale float64) *image.Gray {
	b := src.Bounds()
	w := max(1, int(math.Round(float64(b.Dx())*scale)))
	h := max(1, int(math.Round(float64(b.Dy())*scale)))
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

func resizeGray(src *image.Gray, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
