package services

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/worker"
)

// MediaRouter classifies and processes one attachment.
// media.Router satisfies it.
type MediaRouter interface {
	Process(ctx context.Context, file domain.RawFile) (domain.MediaType, *domain.ProcessedMedia)
}

// MediaCoordinator fans attachments out over a bounded worker pool and
// gathers their results. Each attachment owns its ProcessedMedia; a failed
// attachment never affects the others.
type MediaCoordinator struct {
	router MediaRouter
	pool   *worker.Pool
	logger *slog.Logger
}

// MediaCoordinatorConfig holds dependencies for MediaCoordinator.
type MediaCoordinatorConfig struct {
	Router MediaRouter

	// Pool must be started by the caller
	Pool   *worker.Pool
	Logger *slog.Logger
}

// NewMediaCoordinator creates a new media coordinator.
func NewMediaCoordinator(cfg MediaCoordinatorConfig) *MediaCoordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaCoordinator{
		router: cfg.Router,
		pool:   cfg.Pool,
		logger: logger.With("component", "media_coordinator"),
	}
}

type mediaResult struct {
	index     int
	mediaType domain.MediaType
	processed *domain.ProcessedMedia
}

// ProcessAll processes attachments concurrently and returns them in input
// order with their warnings. Attachments still pending when ctx is done are
// marked failed with kind timeout; their late results are discarded.
func (c *MediaCoordinator) ProcessAll(ctx context.Context, files []domain.RawFile) ([]domain.MediaAttachment, []domain.ImportWarning) {
	attachments := make([]domain.MediaAttachment, len(files))
	done := make([]bool, len(files))
	results := make(chan mediaResult, len(files))

	pending := 0
	for i, f := range files {
		attachments[i] = newAttachment(f)

		i, f := i, f
		job := worker.Job{
			Name: "media:" + attachments[i].ID,
			Run: func(jobCtx context.Context) {
				results <- c.processOne(jobCtx, i, f)
			},
		}
		if err := c.pool.Submit(ctx, job); err != nil {
			c.logger.Warn("failed to submit media job", "attachment", f.Name, "error", err)
			p := domain.NewProcessedMedia()
			p.Fail("submit", submitKind(ctx, err), err)
			attachments[i].Type = domain.ClassifyMedia(f)
			attachments[i].ProcessedContent = p
			done[i] = true
			continue
		}
		pending++
	}

gather:
	for pending > 0 {
		select {
		case r := <-results:
			attachments[r.index].Type = r.mediaType
			attachments[r.index].ProcessedContent = r.processed
			done[r.index] = true
			pending--
		case <-ctx.Done():
			break gather
		}
	}

	for i := range attachments {
		if done[i] {
			continue
		}
		c.logger.Warn("media processing abandoned at deadline", "attachment", attachments[i].Name)
		p := domain.NewProcessedMedia()
		p.Fail("deadline", domain.KindTimeout, fmt.Errorf("%w: import deadline elapsed", domain.ErrTimeout))
		attachments[i].Type = domain.ClassifyMedia(files[i])
		attachments[i].ProcessedContent = p
	}

	var warnings []domain.ImportWarning
	for _, a := range attachments {
		if w, ok := warningFor(a); ok {
			warnings = append(warnings, w)
		}
	}
	return attachments, warnings
}

func (c *MediaCoordinator) processOne(ctx context.Context, index int, f domain.RawFile) (res mediaResult) {
	res.index = index
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("media processor panicked", "attachment", f.Name, "panic", r)
			p := domain.NewProcessedMedia()
			p.Fail("process", domain.KindMediaProcessing, fmt.Errorf("%w: processor panic: %v", domain.ErrMediaProcessing, r))
			res.mediaType = domain.ClassifyMedia(f)
			res.processed = p
		}
	}()

	t, p := c.router.Process(ctx, f)
	c.logger.Debug("attachment processed", "attachment", f.Name, "type", t, "status", p.Status)
	res.mediaType = t
	res.processed = p
	return res
}

func newAttachment(f domain.RawFile) domain.MediaAttachment {
	id := uuid.NewString()
	ref := f.StorageRef
	if ref == "" {
		ref = path.Join("attachments", id, path.Base(f.Name))
	}
	return domain.MediaAttachment{
		ID:         id,
		Name:       f.Name,
		MimeType:   f.MimeType,
		StorageRef: ref,
	}
}

func submitKind(ctx context.Context, err error) domain.ErrorKind {
	if ctx.Err() != nil {
		return domain.KindTimeout
	}
	return domain.KindMediaProcessing
}

// warningFor surfaces a failed or partial attachment on the record.
func warningFor(a domain.MediaAttachment) (domain.ImportWarning, bool) {
	p := a.ProcessedContent
	if p == nil {
		return domain.ImportWarning{}, false
	}

	switch p.Status {
	case domain.MediaStatusFailed:
		kind := domain.KindMediaProcessing
		msg := "media processing failed"
		if len(p.Errors) > 0 {
			kind = p.Errors[0].Kind
			msg = p.Errors[0].Message
		}
		return domain.ImportWarning{AttachmentID: a.ID, Kind: kind, Message: msg}, true
	case domain.MediaStatusPartial:
		stages := make([]string, 0, len(p.Errors))
		for _, e := range p.Errors {
			stages = append(stages, e.Stage)
		}
		return domain.ImportWarning{
			AttachmentID: a.ID,
			Kind:         domain.KindMediaProcessing,
			Message:      "partial result, failed stages: " + strings.Join(stages, ", "),
		}, true
	}
	return domain.ImportWarning{}, false
}
