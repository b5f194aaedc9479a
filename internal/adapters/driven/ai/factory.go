package ai

import (
	"fmt"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
)

// Ensure Factory implements AIServiceFactory
var _ driven.AIServiceFactory = (*Factory)(nil)

type imageService interface {
	driven.VisionService
	driven.OCRService
}

// Factory creates media collaborators from settings
type Factory struct {
	maxRetries int
}

// NewFactory creates a new AI service factory. maxRetries is handed to
// each SDK client; zero keeps the SDK default.
func NewFactory(maxRetries int) *Factory {
	return &Factory{maxRetries: maxRetries}
}

// CreateTranscriber creates a speech-to-text collaborator.
// Returns nil, nil if settings are not configured.
func (f *Factory) CreateTranscriber(settings *domain.AIServiceSettings) (driven.Transcriber, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}
	if err := settings.Validate(domain.CapabilityTranscription); err != nil {
		return nil, fmt.Errorf("%w: %s cannot transcribe", err, settings.Provider)
	}
	svc, err := f.openAI(settings)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// CreateVisionService creates an image description collaborator.
// Returns nil, nil if settings are not configured.
func (f *Factory) CreateVisionService(settings *domain.AIServiceSettings) (driven.VisionService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}
	if err := settings.Validate(domain.CapabilityVision); err != nil {
		return nil, fmt.Errorf("%w: %s", err, settings.Provider)
	}

	return f.buildImageService(settings)
}

// CreateOCRService creates a text extraction collaborator.
// Returns nil, nil if settings are not configured.
func (f *Factory) CreateOCRService(settings *domain.AIServiceSettings) (driven.OCRService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}
	if err := settings.Validate(domain.CapabilityOCR); err != nil {
		return nil, fmt.Errorf("%w: %s", err, settings.Provider)
	}

	return f.buildImageService(settings)
}

// buildImageService builds a collaborator that serves both vision and OCR.
func (f *Factory) buildImageService(settings *domain.AIServiceSettings) (imageService, error) {
	switch settings.Provider {
	case domain.AIProviderOpenAI:
		svc, err := f.openAI(settings)
		if err != nil {
			return nil, err
		}
		return svc, nil
	case domain.AIProviderAnthropic:
		svc, err := f.anthropic(settings)
		if err != nil {
			return nil, err
		}
		return svc, nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidProvider, settings.Provider)
	}
}

func (f *Factory) openAI(settings *domain.AIServiceSettings) (*OpenAI, error) {
	return NewOpenAI(OpenAIConfig{
		APIKey:     settings.APIKey,
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		MaxRetries: f.maxRetries,
	})
}

func (f *Factory) anthropic(settings *domain.AIServiceSettings) (*Anthropic, error) {
	return NewAnthropic(AnthropicConfig{
		APIKey:     settings.APIKey,
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		MaxRetries: f.maxRetries,
	})
}
