package raster

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
)

func grayImage(width, height int, fill uint8) *image.NRGBA {
	img := imaging.New(width, height, color.NRGBA{fill, fill, fill, 255})
	return img
}

// Horizontal black stripes on white: already straight, so no deskew should
// trigger and dimensions only change by the upscale factor.
func stripedImage(width, height int) *image.NRGBA {
	img := grayImage(width, height, 255)
	for y := 0; y < height; y++ {
		if (y/4)%2 != 0 {
			continue
		}
		for x := 0; x < width; x++ {
			idx := y*img.Stride + x*4
			img.Pix[idx] = 0
			img.Pix[idx+1] = 0
			img.Pix[idx+2] = 0
		}
	}
	return img
}

func TestContrastStretchExpandsNarrowRange(t *testing.T) {
	img := grayImage(100, 100, 120)
	for x := 0; x < 100; x++ {
		idx := x * 4
		img.Pix[idx] = 180
		img.Pix[idx+1] = 180
		img.Pix[idx+2] = 180
	}

	out := contrastStretch(img)

	if out.Pix[0] != 255 {
		t.Fatalf("expected high value remapped to 255, got %d", out.Pix[0])
	}
	if out.Pix[out.Stride] != 0 {
		t.Fatalf("expected low value remapped to 0, got %d", out.Pix[out.Stride])
	}
}

func TestEstimateSkewZeroForStraightLines(t *testing.T) {
	img := stripedImage(200, 120)
	if angle := estimateSkew(img); angle != 0 {
		t.Fatalf("expected no skew for straight stripes, got %v", angle)
	}
}

func TestEstimateSkewStaysBounded(t *testing.T) {
	img := imaging.Rotate(stripedImage(200, 120), 3, color.White)
	angle := estimateSkew(imaging.Clone(img))
	if angle < -maxSkewDegrees || angle > maxSkewDegrees {
		t.Fatalf("skew estimate %v outside ±%v", angle, maxSkewDegrees)
	}
}

func TestPreprocessUpscalesStraightPage(t *testing.T) {
	img := stripedImage(200, 120)
	out := Preprocess(img)

	wantWidth := 200 * upscalePercent / 100
	if out.Bounds().Dx() != wantWidth {
		t.Fatalf("expected width %d after upscale, got %d", wantWidth, out.Bounds().Dx())
	}
}

func TestPreprocessIsDeterministic(t *testing.T) {
	img := stripedImage(160, 90)

	first := Preprocess(imaging.Clone(img))
	second := Preprocess(imaging.Clone(img))

	if !bytes.Equal(first.Pix, second.Pix) {
		t.Fatalf("preprocessing produced different pixels for identical input")
	}
}
