package runtime

import (
	"errors"
	"testing"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven/mocks"
)

// stubFactory hands back fixed collaborators for configured settings
type stubFactory struct {
	transcriber driven.Transcriber
	vision      driven.VisionService
	ocr         driven.OCRService
	err         error
}

func (f *stubFactory) CreateTranscriber(s *domain.AIServiceSettings) (driven.Transcriber, error) {
	if !s.IsConfigured() {
		return nil, nil
	}
	return f.transcriber, f.err
}

func (f *stubFactory) CreateVisionService(s *domain.AIServiceSettings) (driven.VisionService, error) {
	if !s.IsConfigured() {
		return nil, nil
	}
	return f.vision, nil
}

func (f *stubFactory) CreateOCRService(s *domain.AIServiceSettings) (driven.OCRService, error) {
	if !s.IsConfigured() {
		return nil, nil
	}
	return f.ocr, nil
}

func TestNewServices(t *testing.T) {
	config := domain.NewRuntimeConfig("sqlite", "memory")
	services := NewServices(config)

	if services.Config() != config {
		t.Error("expected same config")
	}
	c := services.Collaborators()
	if c.Transcriber != nil || c.Vision != nil || c.OCR != nil || c.Toolkit != nil {
		t.Error("expected no collaborators initially")
	}
}

func TestServices_SettersUpdateFlags(t *testing.T) {
	config := domain.NewRuntimeConfig("sqlite", "memory")
	services := NewServices(config)

	services.SetTranscriber(&mocks.MockTranscriber{})
	services.SetToolkit(&mocks.MockMediaToolkit{})
	if !config.Available(domain.CapabilityTranscription) {
		t.Error("expected transcription to be available")
	}
	if !config.ToolkitAvailable() {
		t.Error("expected toolkit to be available")
	}
	if !config.CanProcess(domain.MediaTypeVideo) {
		t.Error("expected video to be processable")
	}

	services.SetTranscriber(nil)
	if config.Available(domain.CapabilityTranscription) {
		t.Error("expected transcription to be unavailable after clearing")
	}
	if services.Collaborators().Transcriber != nil {
		t.Error("expected transcriber to be cleared")
	}
}

func TestServices_Configure(t *testing.T) {
	config := domain.NewRuntimeConfig("postgres", "redis")
	services := NewServices(config)

	factory := &stubFactory{
		transcriber: &mocks.MockTranscriber{},
		vision:      &mocks.MockVisionService{},
		ocr:         &mocks.MockOCRService{},
	}
	settings := domain.AISettings{
		Transcription: domain.AIServiceSettings{Provider: domain.AIProviderOpenAI, APIKey: "sk"},
		Vision:        domain.AIServiceSettings{Provider: domain.AIProviderAnthropic, APIKey: "sk-ant"},
	}

	if err := services.Configure(factory, settings); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := config.Snapshot()
	if !snap.Transcription || !snap.Vision {
		t.Errorf("expected transcription and vision, got %+v", snap)
	}
	if snap.OCR {
		t.Error("OCR was not configured")
	}
}

func TestServices_ConfigureRejectsInvalidProvider(t *testing.T) {
	services := NewServices(domain.NewRuntimeConfig("postgres", "redis"))

	settings := domain.AISettings{
		Transcription: domain.AIServiceSettings{Provider: domain.AIProviderAnthropic, APIKey: "k"},
	}
	err := services.Configure(&stubFactory{}, settings)
	if !errors.Is(err, domain.ErrInvalidProvider) {
		t.Errorf("expected ErrInvalidProvider, got %v", err)
	}
}

func TestServices_ConfigureFactoryError(t *testing.T) {
	services := NewServices(domain.NewRuntimeConfig("postgres", "redis"))

	settings := domain.AISettings{
		Transcription: domain.AIServiceSettings{Provider: domain.AIProviderOpenAI, APIKey: "k"},
	}
	err := services.Configure(&stubFactory{err: errors.New("boom")}, settings)
	if err == nil {
		t.Fatal("expected error")
	}
	if services.Config().Available(domain.CapabilityTranscription) {
		t.Error("failed configure should not mark transcription available")
	}
}
