package direct

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/phennig/dms-pipeline/internal/core/domain"
)

// Recognizer turns one raster image into text.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// Extractor feeds the stored file straight into recognition, skipping
// rasterization. Only valid for inputs that are already raster images; a
// paginated format fails fast instead of silently degrading.
type Extractor struct {
	recognizer Recognizer
}

func New(recognizer Recognizer) *Extractor {
	return &Extractor{recognizer: recognizer}
}

func (e *Extractor) ExtractText(ctx context.Context, path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return "", domain.WrapError(domain.ErrInvalidInput, "direct recognition",
			fmt.Errorf("paginated format %s requires rasterization, use the raster or cli strategy", filepath.Base(path)))
	}

	text, err := e.recognizer.Recognize(ctx, path)
	if err != nil {
		return "", fmt.Errorf("recognize image: %w", err)
	}
	return strings.TrimRight(text, " \t\n\f"), nil
}
