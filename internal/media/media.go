// Package media turns audio, video, screenshots and transcript documents
// into structured ProcessedMedia. Processors degrade to partial results
// instead of failing: every failed sub-step is recorded on the result.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
)

// Processor turns one attachment into ProcessedMedia.
// Process never returns nil; failures are recorded on the result.
type Processor interface {
	Process(ctx context.Context, file domain.RawFile) *domain.ProcessedMedia
}

// Config holds media pipeline tuning
type Config struct {
	// PauseThreshold is the silence gap in seconds that starts a new segment
	PauseThreshold float64

	// FrameRate is the video sampling rate in frames per second
	FrameRate float64

	// SceneThreshold is the histogram delta in [0, 1] that marks a scene change
	SceneThreshold float64

	// MaxFrames caps the number of key frames sent to the vision service
	MaxFrames int

	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PauseThreshold: 1.5,
		FrameRate:      1,
		SceneThreshold: 0.3,
		MaxFrames:      24,
		Logger:         slog.Default(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PauseThreshold <= 0 {
		c.PauseThreshold = d.PauseThreshold
	}
	if c.FrameRate <= 0 {
		c.FrameRate = d.FrameRate
	}
	if c.SceneThreshold <= 0 || c.SceneThreshold > 1 {
		c.SceneThreshold = d.SceneThreshold
	}
	if c.MaxFrames <= 0 {
		c.MaxFrames = d.MaxFrames
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	return c
}

// Collaborators are the external services media processors call.
// Any of them may be nil; the affected sub-steps then fail as unavailable.
type Collaborators struct {
	Transcriber driven.Transcriber
	Vision      driven.VisionService
	OCR         driven.OCRService
	Toolkit     driven.MediaToolkit
}

// Router dispatches attachments to the processor for their media type
type Router struct {
	processors map[domain.MediaType]Processor
}

// NewRouter builds the four processors over shared collaborators.
func NewRouter(c Collaborators, cfg Config) *Router {
	cfg = cfg.withDefaults()
	audio := NewAudioProcessor(c.Transcriber, cfg)
	return &Router{
		processors: map[domain.MediaType]Processor{
			domain.MediaTypeAudio:    audio,
			domain.MediaTypeVideo:    NewVideoProcessor(c.Toolkit, audio, c.Vision, cfg),
			domain.MediaTypeImage:    NewScreenshotProcessor(c.OCR, c.Vision, cfg),
			domain.MediaTypeDocument: NewTranscriptProcessor(cfg),
		},
	}
}

// Classify determines the media type of an attachment. Declared MIME type
// and extension win; content sniffing settles files that look like documents.
func Classify(file domain.RawFile) domain.MediaType {
	t := domain.ClassifyMedia(file)
	if t != domain.MediaTypeDocument || len(file.Data) == 0 {
		return t
	}
	declared := strings.ToLower(strings.TrimSpace(file.MimeType))
	if declared != "" && declared != "application/octet-stream" {
		return t
	}

	sniffed := domain.ClassifyMedia(domain.RawFile{MimeType: mimetype.Detect(file.Data).String()})
	return sniffed
}

// Route returns the media type and processor for an attachment.
func (r *Router) Route(file domain.RawFile) (domain.MediaType, Processor) {
	t := Classify(file)
	return t, r.processors[t]
}

// Process classifies and processes one attachment.
func (r *Router) Process(ctx context.Context, file domain.RawFile) (domain.MediaType, *domain.ProcessedMedia) {
	t, p := r.Route(file)
	return t, p.Process(ctx, file)
}

// errorKind classifies a collaborator failure.
func errorKind(ctx context.Context, err error) domain.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrTimeout) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.KindTimeout
	}
	return domain.KindMediaProcessing
}

// errUnavailable is recorded when a collaborator is not configured.
func errUnavailable(what string) error {
	return fmt.Errorf("%w: %s not configured", domain.ErrServiceUnavailable, what)
}
