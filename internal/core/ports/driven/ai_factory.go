package driven

import (
	"github.com/custodia-labs/voxstitch/internal/core/domain"
)

// AIServiceFactory creates media collaborators based on configuration
type AIServiceFactory interface {
	// CreateTranscriber creates a speech-to-text service from settings
	// Returns nil, nil if settings are not configured
	CreateTranscriber(settings *domain.AIServiceSettings) (Transcriber, error)

	// CreateVisionService creates an image description service from settings
	// Returns nil, nil if settings are not configured
	CreateVisionService(settings *domain.AIServiceSettings) (VisionService, error)

	// CreateOCRService creates a text extraction service from settings
	// Returns nil, nil if settings are not configured
	CreateOCRService(settings *domain.AIServiceSettings) (OCRService, error)
}
