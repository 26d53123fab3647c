package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Extractor shells out: ghostscript renders the document to per-page PNGs,
// then tesseract recognizes each page in page order. A non-zero exit of
// either process aborts the whole extraction with the process stderr
// attached.
type Extractor struct {
	ghostscriptBin string
	tesseractBin   string
	languages      string
	tessdataDir    string
	dpi            int
	onPages        func(int)
}

type Options struct {
	GhostscriptBin string
	TesseractBin   string
	Languages      string
	TessdataDir    string
	DPI            int
	OnPages        func(int)
}

func New(options Options) *Extractor {
	gs := options.GhostscriptBin
	if gs == "" {
		gs = "gs"
	}
	tess := options.TesseractBin
	if tess == "" {
		tess = "tesseract"
	}
	langs := options.Languages
	if langs == "" {
		langs = "eng"
	}
	dpi := options.DPI
	if dpi <= 0 {
		dpi = 300
	}
	return &Extractor{
		ghostscriptBin: gs,
		tesseractBin:   tess,
		languages:      langs,
		tessdataDir:    options.TessdataDir,
		dpi:            dpi,
		onPages:        options.OnPages,
	}
}

func (e *Extractor) ExtractText(ctx context.Context, path string) (string, error) {
	scratchDir, err := os.MkdirTemp("", "dms_cli_ocr_*")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratchDir)

	if err := e.rasterize(ctx, path, scratchDir); err != nil {
		return "", err
	}

	pageFiles, err := collectPageFiles(scratchDir)
	if err != nil {
		return "", err
	}
	if len(pageFiles) == 0 {
		return "", fmt.Errorf("ghostscript produced no pages for %s", filepath.Base(path))
	}

	pages := make([]string, 0, len(pageFiles))
	for _, pageFile := range pageFiles {
		text, err := e.recognize(ctx, pageFile)
		if err != nil {
			return "", err
		}
		pages = append(pages, strings.TrimRight(text, " \t\n\f"))
	}

	if e.onPages != nil {
		e.onPages(len(pageFiles))
	}
	return strings.Join(pages, "\n"), nil
}

func (e *Extractor) rasterize(ctx context.Context, path, scratchDir string) error {
	outPattern := filepath.Join(scratchDir, "page-%04d.png")
	cmd := exec.CommandContext(ctx, e.ghostscriptBin,
		"-q", "-dBATCH", "-dNOPAUSE",
		"-sDEVICE=png16m",
		fmt.Sprintf("-r%d", e.dpi),
		"-sOutputFile="+outPattern,
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ghostscript failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (e *Extractor) recognize(ctx context.Context, imagePath string) (string, error) {
	args := make([]string, 0, 6)
	if e.tessdataDir != "" {
		args = append(args, "--tessdata-dir", e.tessdataDir)
	}
	args = append(args, imagePath, "stdout", "-l", e.languages)

	cmd := exec.CommandContext(ctx, e.tesseractBin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract failed on %s: %w: %s",
			filepath.Base(imagePath), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// collectPageFiles returns the rendered pages in page order. Ghostscript
// numbers them page-0001.png, page-0002.png, ... so lexical order is page
// order.
func collectPageFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "page-*.png"))
	if err != nil {
		return nil, fmt.Errorf("list rendered pages: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}
