package raster

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// Recognizer turns one page image into text.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// Extractor renders each page of a paginated document to a raster image at a
// fixed DPI, runs the preprocessing chain and recognizes page by page. Page
// order is the document's page order; page texts are joined with a single
// newline, so repeated extraction of the same bytes yields the same output.
type Extractor struct {
	recognizer Recognizer
	dpi        float64
	onPages    func(int)
}

type Options struct {
	DPI float64

	// OnPages reports the rendered page count per document (metrics hook).
	OnPages func(int)
}

func New(recognizer Recognizer, options Options) *Extractor {
	dpi := options.DPI
	if dpi <= 0 {
		dpi = 300
	}
	return &Extractor{
		recognizer: recognizer,
		dpi:        dpi,
		onPages:    options.OnPages,
	}
}

func (e *Extractor) ExtractText(ctx context.Context, path string) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("open document for rasterization: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return "", fmt.Errorf("document has no pages: %s", filepath.Base(path))
	}

	scratchDir, err := os.MkdirTemp("", "dms_raster_*")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratchDir)

	pages := make([]string, 0, pageCount)
	for pageNum := 0; pageNum < pageCount; pageNum++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		img, err := doc.ImageDPI(pageNum, e.dpi)
		if err != nil {
			return "", fmt.Errorf("rasterize page %d: %w", pageNum+1, err)
		}

		processed := Preprocess(img)

		pagePath := filepath.Join(scratchDir, fmt.Sprintf("page_%04d.png", pageNum+1))
		if err := writePNG(pagePath, processed); err != nil {
			return "", fmt.Errorf("write page %d image: %w", pageNum+1, err)
		}

		text, err := e.recognizer.Recognize(ctx, pagePath)
		if err != nil {
			return "", fmt.Errorf("recognize page %d: %w", pageNum+1, err)
		}
		pages = append(pages, strings.TrimRight(text, " \t\n\f"))
	}

	if e.onPages != nil {
		e.onPages(pageCount)
	}
	return strings.Join(pages, "\n"), nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
