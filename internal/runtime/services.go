package runtime

import (
	"fmt"
	"sync"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
	"github.com/custodia-labs/voxstitch/internal/media"
)

// Services holds the media collaborators chosen at startup.
// Any of them can be nil; the media processors skip the sub-steps they back.
// Thread-safe for concurrent access.
type Services struct {
	mu sync.RWMutex

	// Config tracks capability flags
	config *domain.RuntimeConfig

	transcriber driven.Transcriber
	vision      driven.VisionService
	ocr         driven.OCRService
	toolkit     driven.MediaToolkit
}

// NewServices creates a new Services registry
func NewServices(config *domain.RuntimeConfig) *Services {
	return &Services{
		config: config,
	}
}

// Config returns the runtime configuration
func (s *Services) Config() *domain.RuntimeConfig {
	return s.config
}

// Configure builds the AI collaborators from settings through the factory.
// Unconfigured settings leave the collaborator unset.
func (s *Services) Configure(factory driven.AIServiceFactory, settings domain.AISettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	transcriber, err := factory.CreateTranscriber(&settings.Transcription)
	if err != nil {
		return fmt.Errorf("create transcriber: %w", err)
	}
	vision, err := factory.CreateVisionService(&settings.Vision)
	if err != nil {
		return fmt.Errorf("create vision service: %w", err)
	}
	ocr, err := factory.CreateOCRService(&settings.OCR)
	if err != nil {
		return fmt.Errorf("create OCR service: %w", err)
	}

	s.SetTranscriber(transcriber)
	s.SetVisionService(vision)
	s.SetOCRService(ocr)
	return nil
}

// SetTranscriber updates the transcriber and its capability flag
func (s *Services) SetTranscriber(svc driven.Transcriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcriber = svc
	s.config.SetAvailable(domain.CapabilityTranscription, svc != nil)
}

// SetVisionService updates the vision service and its capability flag
func (s *Services) SetVisionService(svc driven.VisionService) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vision = svc
	s.config.SetAvailable(domain.CapabilityVision, svc != nil)
}

// SetOCRService updates the OCR service and its capability flag
func (s *Services) SetOCRService(svc driven.OCRService) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ocr = svc
	s.config.SetAvailable(domain.CapabilityOCR, svc != nil)
}

// SetToolkit updates the video demuxer and its flag
func (s *Services) SetToolkit(kit driven.MediaToolkit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolkit = kit
	s.config.SetToolkitAvailable(kit != nil)
}

// Collaborators returns the current set for building a media router
func (s *Services) Collaborators() media.Collaborators {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return media.Collaborators{
		Transcriber: s.transcriber,
		Vision:      s.vision,
		OCR:         s.ocr,
		Toolkit:     s.toolkit,
	}
}
