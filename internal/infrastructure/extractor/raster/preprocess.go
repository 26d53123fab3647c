package raster

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

const (
	// Contrast stretch cutoffs: clip 0.5% at both ends of the histogram.
	stretchLowCut  = 0.005
	stretchHighCut = 0.995

	// Deskew searches within this bound only; a page rotated further than
	// that is not a scanning artifact.
	maxSkewDegrees  = 5.0
	skewStepDegrees = 0.5

	// Mild upscale improves recognition of small glyphs.
	upscalePercent = 110
)

// Preprocess runs the fixed page-image chain: grayscale, contrast stretch,
// bounded deskew, mild upscale. The chain is deterministic so repeated
// extraction of the same object produces identical page images.
func Preprocess(src image.Image) *image.NRGBA {
	gray := imaging.Grayscale(src)
	stretched := contrastStretch(gray)

	if angle := estimateSkew(stretched); angle != 0 {
		stretched = imaging.Rotate(stretched, angle, color.White)
	}

	width := stretched.Bounds().Dx() * upscalePercent / 100
	return imaging.Resize(stretched, width, 0, imaging.Lanczos)
}

// contrastStretch linearly remaps luminance so the darkest 0.5% of pixels
// become black and the brightest 0.5% become white. Input must already be
// grayscale (R=G=B).
func contrastStretch(img *image.NRGBA) *image.NRGBA {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return img
	}

	var hist [256]int
	for i := 0; i < len(img.Pix); i += 4 {
		hist[img.Pix[i]]++
	}

	lo := histogramCut(hist, total, stretchLowCut)
	hi := histogramCut(hist, total, stretchHighCut)
	if hi <= lo {
		return img
	}

	var lut [256]uint8
	scale := 255.0 / float64(hi-lo)
	for v := 0; v < 256; v++ {
		switch {
		case v <= lo:
			lut[v] = 0
		case v >= hi:
			lut[v] = 255
		default:
			lut[v] = uint8(math.Round(float64(v-lo) * scale))
		}
	}

	out := imaging.Clone(img)
	for i := 0; i < len(out.Pix); i += 4 {
		mapped := lut[out.Pix[i]]
		out.Pix[i] = mapped
		out.Pix[i+1] = mapped
		out.Pix[i+2] = mapped
	}
	return out
}

func histogramCut(hist [256]int, total int, fraction float64) int {
	target := int(fraction * float64(total))
	seen := 0
	for v := 0; v < 256; v++ {
		seen += hist[v]
		if seen >= target {
			return v
		}
	}
	return 255
}

// estimateSkew scores candidate angles by the variance of the horizontal
// projection profile of dark pixels: text lines aligned with the raster grid
// concentrate dark pixels into few rows, maximizing variance. Returns the
// best angle within ±maxSkewDegrees, or 0 when straightening does not beat
// the unrotated profile by a clear margin.
func estimateSkew(img *image.NRGBA) float64 {
	sample := img
	if img.Bounds().Dx() > 600 {
		sample = imaging.Resize(img, 600, 0, imaging.NearestNeighbor)
	}
	bounds := sample.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return 0
	}

	type point struct{ x, y int }
	dark := make([]point, 0, width*height/16)
	for y := 0; y < height; y++ {
		rowStart := y * sample.Stride
		for x := 0; x < width; x++ {
			if sample.Pix[rowStart+x*4] < 128 {
				dark = append(dark, point{x, y})
			}
		}
	}
	if len(dark) == 0 {
		return 0
	}

	baseline := 0.0
	bestAngle := 0.0
	bestScore := 0.0
	bins := make([]int, 2*height+1)

	for angle := -maxSkewDegrees; angle <= maxSkewDegrees+1e-9; angle += skewStepDegrees {
		rad := angle * math.Pi / 180
		sin, cos := math.Sin(rad), math.Cos(rad)

		for i := range bins {
			bins[i] = 0
		}
		for _, p := range dark {
			row := int(math.Round(float64(p.y)*cos-float64(p.x)*sin)) + height/2
			if row >= 0 && row < len(bins) {
				bins[row]++
			}
		}

		score := profileVariance(bins, len(dark))
		if angle == 0 {
			baseline = score
		}
		if score > bestScore {
			bestScore = score
			bestAngle = angle
		}
	}

	// Rotation blurs glyph edges; only correct a skew that clearly helps.
	if bestAngle == 0 || bestScore < baseline*1.05 {
		return 0
	}
	return bestAngle
}

func profileVariance(bins []int, total int) float64 {
	mean := float64(total) / float64(len(bins))
	variance := 0.0
	for _, count := range bins {
		diff := float64(count) - mean
		variance += diff * diff
	}
	return variance / float64(len(bins))
}
