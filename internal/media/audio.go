package media

import (
	"context"
	"log/slog"
	"strings"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
)

// AudioProcessor transcribes audio and splits the transcript into turns
type AudioProcessor struct {
	transcriber driven.Transcriber
	pause       float64
	logger      *slog.Logger
}

// NewAudioProcessor creates an audio processor. A nil transcriber makes
// every attachment fail as unavailable.
func NewAudioProcessor(transcriber driven.Transcriber, cfg Config) *AudioProcessor {
	cfg = cfg.withDefaults()
	return &AudioProcessor{
		transcriber: transcriber,
		pause:       cfg.PauseThreshold,
		logger:      cfg.Logger.With("processor", "audio"),
	}
}

// Process transcribes the audio. Transcription failure fails the attachment;
// a transcript with no turn boundaries yields one segment for the full duration.
func (p *AudioProcessor) Process(ctx context.Context, file domain.RawFile) *domain.ProcessedMedia {
	result := domain.NewProcessedMedia()
	if !p.transcribeInto(ctx, file.Data, file.Name, result) {
		return result
	}
	result.Settle(1, 1)
	return result
}

// transcribeInto runs transcription, segmentation and dialogue extraction,
// writing into result. Reports whether transcription succeeded.
func (p *AudioProcessor) transcribeInto(ctx context.Context, audio []byte, filename string, result *domain.ProcessedMedia) bool {
	if p.transcriber == nil {
		result.Fail("transcribe", domain.KindMediaProcessing, errUnavailable("transcriber"))
		return false
	}

	tr, err := p.transcriber.Transcribe(ctx, audio, filename)
	if err != nil {
		p.logger.Warn("transcription failed", "file", filename, "error", err)
		result.Fail("transcribe", errorKind(ctx, err), err)
		return false
	}
	if tr == nil {
		tr = &driven.Transcription{}
	}

	result.TranscriptSegments = Segment(tr, p.pause)
	result.Messages = DialogueMessages(transcriptText(tr))
	return true
}

// Segment splits a transcription into speaker turns. Diarization labels win;
// otherwise silences of at least pause seconds start a new segment.
// Without boundaries the result is one segment spanning the whole duration.
func Segment(tr *driven.Transcription, pause float64) []domain.TranscriptSegment {
	var segments []domain.TranscriptSegment
	if hasSpeakers(tr.Segments) {
		segments = mergeBy(tr.Segments, func(prev, next driven.TimedSegment) bool {
			return prev.Speaker == next.Speaker
		})
	} else {
		segments = mergeBy(tr.Segments, func(prev, next driven.TimedSegment) bool {
			return next.Start-prev.End < pause
		})
	}

	if len(segments) <= 1 {
		text := strings.TrimSpace(tr.Text)
		if text == "" && len(segments) == 1 {
			text = segments[0].Text
		}
		end := tr.Duration
		if len(segments) == 1 && segments[0].End > end {
			end = segments[0].End
		}
		speaker := ""
		if len(segments) == 1 {
			speaker = segments[0].Speaker
		}
		return []domain.TranscriptSegment{{Start: 0, End: end, Text: text, Speaker: speaker}}
	}

	domain.SortSegments(segments)
	return segments
}

// mergeBy joins consecutive timed segments while same reports true.
func mergeBy(in []driven.TimedSegment, same func(prev, next driven.TimedSegment) bool) []domain.TranscriptSegment {
	var out []domain.TranscriptSegment
	var prev driven.TimedSegment
	for i, s := range in {
		text := strings.TrimSpace(s.Text)
		if i > 0 && same(prev, s) {
			last := &out[len(out)-1]
			last.Text = strings.TrimSpace(last.Text + " " + text)
			if s.End > last.End {
				last.End = s.End
			}
		} else {
			out = append(out, domain.TranscriptSegment{Start: s.Start, End: s.End, Text: text, Speaker: s.Speaker})
		}
		prev = s
	}
	return out
}

func hasSpeakers(segments []driven.TimedSegment) bool {
	for _, s := range segments {
		if s.Speaker != "" {
			return true
		}
	}
	return false
}

func transcriptText(tr *driven.Transcription) string {
	if strings.TrimSpace(tr.Text) != "" {
		return tr.Text
	}
	parts := make([]string, 0, len(tr.Segments))
	for _, s := range tr.Segments {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}
