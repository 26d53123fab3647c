package tess

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Engine recognizes text on a single raster image via the Tesseract C API.
// A fresh client per call keeps the engine stateless; the worker processes
// one message at a time anyway.
type Engine struct {
	languages   []string
	tessdataDir string
}

func NewEngine(languages, tessdataDir string) *Engine {
	langs := strings.Split(languages, "+")
	if len(langs) == 0 || (len(langs) == 1 && langs[0] == "") {
		langs = []string{"eng"}
	}
	return &Engine{
		languages:   langs,
		tessdataDir: tessdataDir,
	}
}

func (e *Engine) Recognize(ctx context.Context, imagePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if e.tessdataDir != "" {
		if err := client.SetTessdataPrefix(e.tessdataDir); err != nil {
			return "", fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(e.languages...); err != nil {
		return "", fmt.Errorf("set ocr languages: %w", err)
	}
	if err := client.SetImage(imagePath); err != nil {
		return "", fmt.Errorf("set ocr image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize %s: %w", imagePath, err)
	}
	return text, nil
}
