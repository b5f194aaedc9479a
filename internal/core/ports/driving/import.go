package driving

import (
	"context"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
)

// ImportService turns raw exports and media into versioned chat records
type ImportService interface {
	// SubmitImport runs the full import pipeline on the caller's goroutine.
	// Failures are returned as *domain.ImportError.
	SubmitImport(ctx context.Context, userID string, req domain.ImportRequest) (*domain.ImportResult, error)

	// Detect reports which platform the content belongs to without importing it.
	Detect(content []byte, declared domain.Platform) domain.DetectionResult
}
