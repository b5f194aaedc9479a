package media

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
)

// framePrompt is sent with every key frame
const framePrompt = "Describe what is visible in this video frame in one or two sentences. " +
	"If it shows a chat interface, transcribe the visible messages with their senders."

// VideoProcessor runs the audio pipeline on the soundtrack and describes
// key frames, then merges both into one timeline
type VideoProcessor struct {
	toolkit   driven.MediaToolkit
	audio     *AudioProcessor
	vision    driven.VisionService
	frameRate float64
	scene     float64
	maxFrames int
	logger    *slog.Logger
}

// NewVideoProcessor creates a video processor.
func NewVideoProcessor(toolkit driven.MediaToolkit, audio *AudioProcessor, vision driven.VisionService, cfg Config) *VideoProcessor {
	cfg = cfg.withDefaults()
	if audio == nil {
		audio = NewAudioProcessor(nil, cfg)
	}
	return &VideoProcessor{
		toolkit:   toolkit,
		audio:     audio,
		vision:    vision,
		frameRate: cfg.FrameRate,
		scene:     cfg.SceneThreshold,
		maxFrames: cfg.MaxFrames,
		logger:    cfg.Logger.With("processor", "video"),
	}
}

// Process runs the audio and visual branches concurrently. Each branch
// writes to its own result; they are merged after both finish.
func (p *VideoProcessor) Process(ctx context.Context, file domain.RawFile) *domain.ProcessedMedia {
	if p.toolkit == nil {
		result := domain.NewProcessedMedia()
		result.Fail("demux", domain.KindMediaProcessing, errUnavailable("media toolkit"))
		return result
	}

	audioPart := domain.NewProcessedMedia()
	visualPart := domain.NewProcessedMedia()
	var audioOK, visualOK bool

	var g errgroup.Group
	g.Go(func() error {
		audioOK = p.audioBranch(ctx, file, audioPart)
		return nil
	})
	g.Go(func() error {
		visualOK = p.visualBranch(ctx, file, visualPart)
		return nil
	})
	_ = g.Wait()

	result := domain.NewProcessedMedia()
	result.TranscriptSegments = audioPart.TranscriptSegments
	result.Messages = audioPart.Messages
	result.VisualDescriptions = visualPart.VisualDescriptions
	result.Errors = append(append(result.Errors, audioPart.Errors...), visualPart.Errors...)
	result.Timeline = MergeTimeline(result.TranscriptSegments, result.VisualDescriptions)

	succeeded := 0
	if audioOK {
		succeeded++
	}
	if visualOK {
		succeeded++
	}
	result.Settle(succeeded, 2)
	return result
}

func (p *VideoProcessor) audioBranch(ctx context.Context, file domain.RawFile, out *domain.ProcessedMedia) bool {
	audio, err := p.toolkit.ExtractAudio(ctx, file.Data)
	if err != nil {
		p.logger.Warn("audio extraction failed", "file", file.Name, "error", err)
		out.AddError("extract_audio", errorKind(ctx, err), err)
		return false
	}
	return p.audio.transcribeInto(ctx, audio, file.Name+".wav", out)
}

// visualBranch succeeds when at least one key frame was described.
func (p *VideoProcessor) visualBranch(ctx context.Context, file domain.RawFile, out *domain.ProcessedMedia) bool {
	if p.vision == nil {
		out.AddError("describe_frames", domain.KindMediaProcessing, errUnavailable("vision service"))
		return false
	}

	frames, err := p.toolkit.ExtractFrames(ctx, file.Data, p.frameRate)
	if err != nil {
		p.logger.Warn("frame extraction failed", "file", file.Name, "error", err)
		out.AddError("extract_frames", errorKind(ctx, err), err)
		return false
	}

	keys, skipped := SelectKeyFrames(frames, p.scene, p.maxFrames)
	if skipped > 0 {
		out.AddError("decode_frames", domain.KindMediaProcessing, fmt.Errorf("%d frames could not be decoded", skipped))
	}
	if len(keys) == 0 {
		out.AddError("select_frames", domain.KindMediaProcessing, fmt.Errorf("no usable frames in %d extracted", len(frames)))
		return false
	}

	for _, f := range keys {
		if ctx.Err() != nil {
			out.AddError("describe_frames", domain.KindTimeout, ctx.Err())
			break
		}
		text, err := p.vision.Describe(ctx, f.Image, framePrompt)
		if err != nil {
			out.AddError(fmt.Sprintf("describe_frame@%.1fs", f.Timestamp), errorKind(ctx, err), err)
			continue
		}
		out.VisualDescriptions = append(out.VisualDescriptions, domain.VisualDescription{At: f.Timestamp, Text: text})
	}

	p.logger.Debug("frames described",
		"file", file.Name,
		"extracted", len(frames),
		"key_frames", len(keys),
		"described", len(out.VisualDescriptions),
	)
	return len(out.VisualDescriptions) > 0
}

// MergeTimeline interleaves transcript segments and frame descriptions by start
// time. Ties keep transcript entries first; within a kind input order is kept.
// A frame description lasts until the next described frame.
func MergeTimeline(segments []domain.TranscriptSegment, visuals []domain.VisualDescription) []domain.TimelineEntry {
	timeline := make([]domain.TimelineEntry, 0, len(segments)+len(visuals))

	for _, s := range segments {
		timeline = append(timeline, domain.TimelineEntry{
			Start:   s.Start,
			End:     s.End,
			Kind:    domain.TimelineTranscript,
			Text:    s.Text,
			Speaker: s.Speaker,
		})
	}
	for i, v := range visuals {
		end := v.At
		if i+1 < len(visuals) && visuals[i+1].At > v.At {
			end = visuals[i+1].At
		}
		timeline = append(timeline, domain.TimelineEntry{
			Start: v.At,
			End:   end,
			Kind:  domain.TimelineVisual,
			Text:  v.Text,
		})
	}

	sortTimeline(timeline)
	return timeline
}

func sortTimeline(timeline []domain.TimelineEntry) {
	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].Start < timeline[j].Start
	})
}
