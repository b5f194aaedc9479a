package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.ImportService = (*Importer)(nil)

// DefaultImportDeadline bounds one import from admission to normalization,
// and abandons media still running when it elapses.
const DefaultImportDeadline = 10 * time.Minute

// Event subjects published after an import settles
const (
	SubjectImportCompleted = "import.completed"
	SubjectImportFailed    = "import.failed"
)

const tracerName = "github.com/custodia-labs/voxstitch/importer"

// FormatDetector routes content to a platform. detect.Detector satisfies it.
type FormatDetector interface {
	Resolve(content []byte, declared domain.Platform) domain.DetectionResult
}

// MessageNormaliser maps intermediate messages to canonical ones.
// normalisers.Normaliser satisfies it.
type MessageNormaliser interface {
	Normalise(platform domain.Platform, messages []domain.IntermediateMessage) ([]domain.CanonicalMessage, error)
}

// MediaProcessor processes an import's attachments.
// MediaCoordinator satisfies it.
type MediaProcessor interface {
	ProcessAll(ctx context.Context, files []domain.RawFile) ([]domain.MediaAttachment, []domain.ImportWarning)
}

// ImportEvent is the payload of import lifecycle events
type ImportEvent struct {
	UserID        string                 `json:"user_id"`
	Fingerprint   string                 `json:"fingerprint"`
	Platform      domain.Platform        `json:"platform,omitempty"`
	ChatRecordID  string                 `json:"chat_record_id,omitempty"`
	VersionNumber int                    `json:"version_number,omitempty"`
	MessageCount  int                    `json:"message_count,omitempty"`
	Warnings      []domain.ImportWarning `json:"warnings,omitempty"`
	Stage         domain.ImportState     `json:"stage,omitempty"`
	Kind          domain.ErrorKind       `json:"kind,omitempty"`
	Error         string                 `json:"error,omitempty"`
	At            time.Time              `json:"at"`
}

// Importer runs the import state machine on the caller's goroutine:
// received → detecting → parsing → normalizing → media_processing → assembling → done.
// Any stage may end in failed. Media failures are isolated to their attachment.
type Importer struct {
	detector   FormatDetector
	registry   driven.ParserRegistry
	normaliser MessageNormaliser
	media      MediaProcessor
	guard      *DedupGuard
	store      driven.ChatRecordStore
	events     driven.EventPublisher
	quota      driven.ImportQuota
	deadline   time.Duration
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// ImporterConfig holds dependencies for Importer.
type ImporterConfig struct {
	Detector   FormatDetector
	Registry   driven.ParserRegistry
	Normaliser MessageNormaliser
	Media      MediaProcessor // Optional: attachments fail as unavailable without it
	Guard      *DedupGuard
	Store      driven.ChatRecordStore
	Events     driven.EventPublisher // Optional
	Quota      driven.ImportQuota    // Optional
	Deadline   time.Duration
	Logger     *slog.Logger
}

// NewImporter creates a new import orchestrator.
func NewImporter(cfg ImporterConfig) *Importer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	deadline := cfg.Deadline
	if deadline <= 0 {
		deadline = DefaultImportDeadline
	}

	return &Importer{
		detector:   cfg.Detector,
		registry:   cfg.Registry,
		normaliser: cfg.Normaliser,
		media:      cfg.Media,
		guard:      cfg.Guard,
		store:      cfg.Store,
		events:     cfg.Events,
		quota:      cfg.Quota,
		deadline:   deadline,
		logger:     logger.With("component", "importer"),
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
	}
}

// Detect reports which platform the content belongs to without importing it.
func (i *Importer) Detect(content []byte, declared domain.Platform) domain.DetectionResult {
	return i.detector.Resolve(content, declared)
}

// SubmitImport runs the full import pipeline.
func (i *Importer) SubmitImport(ctx context.Context, userID string, req domain.ImportRequest) (result *domain.ImportResult, err error) {
	ctx, span := i.tracer.Start(ctx, "import", trace.WithAttributes(
		attribute.String("user_id", userID),
		attribute.String("declared_platform", req.DeclaredPlatform.String()),
		attribute.Int("attachments", len(req.Attachments)),
	))

	run := &importRun{
		userID:      userID,
		fingerprint: Fingerprint(req.RawContent, req.DeclaredPlatform),
		platform:    req.DeclaredPlatform,
	}
	run.logger = i.logger.With("user_id", userID, "fingerprint", short(run.fingerprint))
	span.SetAttributes(attribute.String("fingerprint", run.fingerprint))

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
		i.publish(run, result, err)
	}()

	var job *domain.ImportJob
	err = i.runStage(ctx, run, domain.StateReceived, func(ctx context.Context) error {
		if i.quota != nil {
			if err := i.quota.Allow(ctx, userID); err != nil {
				return run.fail(domain.KindQuotaExceeded, err)
			}
		}
		admission, claimed, err := i.guard.BeginImport(ctx, run.fingerprint)
		if err != nil {
			return run.fail(domain.KindStorage, err)
		}
		if admission == domain.AlreadyRunning {
			return run.fail(domain.KindAlreadyRunning, fmt.Errorf("fingerprint %s is being imported", short(run.fingerprint)))
		}
		job = claimed
		return nil
	})
	if job != nil {
		defer func() {
			state := domain.JobDone
			if err != nil {
				state = domain.JobFailed
			}
			_ = i.guard.CompleteImport(context.WithoutCancel(ctx), job, state)
		}()
	}
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, i.deadline)
	defer cancel()

	var parser driven.Parser
	err = i.runStage(ctx, run, domain.StateDetecting, func(ctx context.Context) error {
		detection := i.detector.Resolve(req.RawContent, req.DeclaredPlatform)
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.String("platform", detection.Platform.String()),
			attribute.String("method", string(detection.Method)),
			attribute.Float64("confidence", detection.Confidence),
		)
		if !detection.Matched() {
			cause := fmt.Errorf("no platform matched")
			if detection.Suggested != "" {
				cause = fmt.Errorf("no platform matched, closest is %s at %.2f", detection.Suggested, detection.SuggestedConfidence)
			}
			return run.fail(domain.KindUnsupportedPlatform, cause)
		}
		run.platform = detection.Platform

		p, err := i.registry.Resolve(detection.Platform)
		if err != nil {
			return run.fail(domain.KindUnsupportedPlatform, err)
		}
		parser = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	var intermediate []domain.IntermediateMessage
	err = i.runStage(ctx, run, domain.StateParsing, func(ctx context.Context) error {
		if !parser.Validate(req.RawContent) {
			return run.fail(domain.KindMalformedContent, fmt.Errorf("content is not a valid %s export", run.platform))
		}
		msgs, err := parser.Parse(req.RawContent)
		if err != nil {
			var pe *domain.ParseError
			if errors.As(err, &pe) {
				return run.fail(domain.KindValidation, err)
			}
			return run.fail(domain.KindMalformedContent, err)
		}
		intermediate = msgs
		return nil
	})
	if err != nil {
		return nil, err
	}

	var messages []domain.CanonicalMessage
	err = i.runStage(ctx, run, domain.StateNormalizing, func(ctx context.Context) error {
		msgs, err := i.normaliser.Normalise(run.platform, intermediate)
		if err != nil {
			return run.fail(domain.KindValidation, err)
		}
		messages = msgs
		return nil
	})
	if err != nil {
		return nil, err
	}

	var attachments []domain.MediaAttachment
	var warnings []domain.ImportWarning
	if len(req.Attachments) > 0 {
		_ = i.runStage(ctx, run, domain.StateMediaProcessing, func(ctx context.Context) error {
			attachments, warnings = i.processMedia(ctx, req.Attachments)
			trace.SpanFromContext(ctx).SetAttributes(attribute.Int("warnings", len(warnings)))
			return nil
		})
	}

	// The record is saved even when the deadline elapsed during media processing.
	saveCtx := context.WithoutCancel(ctx)
	var record *domain.ChatRecord
	err = i.runStage(saveCtx, run, domain.StateAssembling, func(ctx context.Context) error {
		id, version, err := i.guard.NextVersion(ctx, run.fingerprint)
		if err != nil {
			return run.fail(domain.KindStorage, err)
		}
		record = &domain.ChatRecord{
			ID:            id,
			UserID:        userID,
			Platform:      run.platform,
			Messages:      messages,
			Attachments:   attachments,
			Fingerprint:   run.fingerprint,
			VersionNumber: version,
			ImportedAt:    i.now().UTC(),
			Warnings:      warnings,
		}
		if err := i.store.Save(ctx, record); err != nil {
			return run.fail(domain.KindStorage, fmt.Errorf("save chat record: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	run.advance(domain.StateDone)
	run.logger.Info("import completed",
		"platform", run.platform,
		"chat_record_id", record.ID,
		"version", record.VersionNumber,
		"messages", len(record.Messages),
		"warnings", len(warnings),
	)

	return &domain.ImportResult{
		ChatRecordID:  record.ID,
		VersionNumber: record.VersionNumber,
		Record:        record,
		Warnings:      warnings,
	}, nil
}

// runStage advances the run, wraps fn in a span and enforces the deadline
// on every stage up to and including normalization.
func (i *Importer) runStage(ctx context.Context, run *importRun, state domain.ImportState, fn func(context.Context) error) error {
	run.advance(state)
	ctx, span := i.tracer.Start(ctx, "import."+string(state))
	defer span.End()

	start := time.Now()
	run.logger.Debug("import stage started", "stage", state)

	err := fn(ctx)
	if err == nil && stateRank[state] <= stateRank[domain.StateNormalizing] && ctx.Err() != nil {
		err = run.fail(domain.KindTimeout, fmt.Errorf("%w: %v", domain.ErrTimeout, ctx.Err()))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		run.logger.Warn("import failed", "stage", state, "platform", run.platform, "error", err)
		run.advance(domain.StateFailed)
		return err
	}

	span.SetStatus(codes.Ok, "")
	run.logger.Debug("import stage finished", "stage", state, "duration", time.Since(start))
	return nil
}

func (i *Importer) processMedia(ctx context.Context, files []domain.RawFile) ([]domain.MediaAttachment, []domain.ImportWarning) {
	if i.media != nil {
		return i.media.ProcessAll(ctx, files)
	}

	attachments := make([]domain.MediaAttachment, 0, len(files))
	var warnings []domain.ImportWarning
	for _, f := range files {
		a := newAttachment(f)
		a.Type = domain.ClassifyMedia(f)
		a.ProcessedContent = domain.NewProcessedMedia()
		a.ProcessedContent.Fail("route", domain.KindMediaProcessing, fmt.Errorf("%w: media processing not configured", domain.ErrServiceUnavailable))
		w, _ := warningFor(a)
		attachments = append(attachments, a)
		warnings = append(warnings, w)
	}
	return attachments, warnings
}

// publish emits the lifecycle event. Publish failures are logged only.
func (i *Importer) publish(run *importRun, result *domain.ImportResult, err error) {
	if i.events == nil {
		return
	}

	event := ImportEvent{
		UserID:      run.userID,
		Fingerprint: run.fingerprint,
		Platform:    run.platform,
		At:          i.now().UTC(),
	}
	subject := SubjectImportCompleted
	if err != nil {
		subject = SubjectImportFailed
		event.Error = err.Error()
		var ie *domain.ImportError
		if errors.As(err, &ie) {
			event.Stage = ie.Stage
			event.Kind = ie.Kind
		}
	} else if result != nil {
		event.ChatRecordID = result.ChatRecordID
		event.VersionNumber = result.VersionNumber
		event.MessageCount = len(result.Record.Messages)
		event.Warnings = result.Warnings
	}

	if perr := i.events.Publish(subject, event); perr != nil {
		run.logger.Warn("failed to publish import event", "subject", subject, "error", perr)
	}
}

var stateRank = map[domain.ImportState]int{
	domain.StateReceived:        1,
	domain.StateDetecting:       2,
	domain.StateParsing:         3,
	domain.StateNormalizing:     4,
	domain.StateMediaProcessing: 5,
	domain.StateAssembling:      6,
	domain.StateDone:            7,
	domain.StateFailed:          7,
}

// importRun is the state of one SubmitImport call
type importRun struct {
	userID      string
	fingerprint string
	platform    domain.Platform
	state       domain.ImportState
	logger      *slog.Logger
}

// advance moves the run to next. Backward or repeated transitions are bugs.
func (r *importRun) advance(next domain.ImportState) {
	if stateRank[next] <= stateRank[r.state] {
		panic(fmt.Sprintf("import: illegal transition %s -> %s", r.state, next))
	}
	r.logger.Info("import state changed", "from", r.state, "to", next)
	r.state = next
}

// fail builds the terminal error for the current stage.
func (r *importRun) fail(kind domain.ErrorKind, err error) error {
	return &domain.ImportError{
		Stage:    r.state,
		Kind:     kind,
		Platform: r.platform,
		Err:      err,
	}
}
