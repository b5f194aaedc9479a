package domain

import (
	"path/filepath"
	"sort"
	"strings"
)

// MediaType classifies an attachment for routing to a media processor
type MediaType string

const (
	MediaTypeAudio    MediaType = "audio"
	MediaTypeVideo    MediaType = "video"
	MediaTypeImage    MediaType = "image"
	MediaTypeDocument MediaType = "document"
)

// MediaStatus is the processing state of one attachment
type MediaStatus string

const (
	MediaStatusPending  MediaStatus = "pending"
	MediaStatusPartial  MediaStatus = "partial"
	MediaStatusComplete MediaStatus = "complete"
	MediaStatusFailed   MediaStatus = "failed"
)

// RawFile is an uploaded attachment as received with an import request
type RawFile struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"-"`

	// StorageRef points at the blob in external storage, if the caller already stored it
	StorageRef string `json:"storage_ref,omitempty"`
}

var extensionTypes = map[string]MediaType{
	".mp3":  MediaTypeAudio,
	".wav":  MediaTypeAudio,
	".m4a":  MediaTypeAudio,
	".ogg":  MediaTypeAudio,
	".flac": MediaTypeAudio,
	".mp4":  MediaTypeVideo,
	".mov":  MediaTypeVideo,
	".webm": MediaTypeVideo,
	".mkv":  MediaTypeVideo,
	".png":  MediaTypeImage,
	".jpg":  MediaTypeImage,
	".jpeg": MediaTypeImage,
	".gif":  MediaTypeImage,
	".webp": MediaTypeImage,
}

// ClassifyMedia determines the media type from the MIME type, falling back
// to the file extension. Anything unrecognised is treated as a document.
func ClassifyMedia(f RawFile) MediaType {
	mimeType := strings.ToLower(strings.TrimSpace(f.MimeType))
	if idx := strings.Index(mimeType, ";"); idx != -1 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		if t, ok := extensionTypes[strings.ToLower(filepath.Ext(f.Name))]; ok {
			return t
		}
	}

	switch {
	case strings.HasPrefix(mimeType, "audio/"):
		return MediaTypeAudio
	case strings.HasPrefix(mimeType, "video/"):
		return MediaTypeVideo
	case strings.HasPrefix(mimeType, "image/"):
		return MediaTypeImage
	default:
		return MediaTypeDocument
	}
}

// TranscriptSegment is a timed span of transcribed speech or text.
// Start and End are seconds from the beginning of the media.
type TranscriptSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// VisualDescription describes one sampled video frame or image
type VisualDescription struct {
	At   float64 `json:"at"`
	Text string  `json:"text"`
}

// TimelineKind tags the origin of a timeline entry
type TimelineKind string

const (
	TimelineTranscript TimelineKind = "transcript"
	TimelineVisual     TimelineKind = "visual"
)

// TimelineEntry is one element of the merged media timeline
type TimelineEntry struct {
	Start   float64      `json:"start"`
	End     float64      `json:"end"`
	Kind    TimelineKind `json:"kind"`
	Text    string       `json:"text"`
	Speaker string       `json:"speaker,omitempty"`
}

// MediaError records a failed sub-step of a media pipeline
type MediaError struct {
	Stage   string    `json:"stage"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// ProcessedMedia is the structured output of a media processor.
// It is owned by exactly one attachment.
type ProcessedMedia struct {
	TranscriptSegments []TranscriptSegment `json:"transcript_segments,omitempty"`
	VisualDescriptions []VisualDescription `json:"visual_descriptions,omitempty"`
	OCRText            *string             `json:"ocr_text,omitempty"`

	// Messages are chat turns reconstructed from the media (dialogue markers, screenshot layout)
	Messages []CanonicalMessage `json:"messages,omitempty"`

	// Timeline merges transcript segments and visual descriptions by start time
	Timeline []TimelineEntry `json:"timeline,omitempty"`

	Status MediaStatus  `json:"status"`
	Errors []MediaError `json:"errors,omitempty"`
}

// NewProcessedMedia returns an empty result in the pending state.
func NewProcessedMedia() *ProcessedMedia {
	return &ProcessedMedia{Status: MediaStatusPending}
}

// AddError records a failed sub-step.
func (p *ProcessedMedia) AddError(stage string, kind ErrorKind, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	p.Errors = append(p.Errors, MediaError{Stage: stage, Kind: kind, Message: msg})
}

// Settle derives the final status from how many sub-steps succeeded.
func (p *ProcessedMedia) Settle(succeeded, attempted int) {
	switch {
	case attempted == 0 || succeeded == 0:
		p.Status = MediaStatusFailed
	case succeeded < attempted || len(p.Errors) > 0:
		p.Status = MediaStatusPartial
	default:
		p.Status = MediaStatusComplete
	}
}

// Fail marks the whole result failed with the given reason.
func (p *ProcessedMedia) Fail(stage string, kind ErrorKind, err error) {
	p.AddError(stage, kind, err)
	p.Status = MediaStatusFailed
}

// SortSegments orders transcript segments by start time, keeping input order for ties.
func SortSegments(segments []TranscriptSegment) {
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})
}

// MediaAttachment is an attachment owned by a ChatRecord
type MediaAttachment struct {
	ID         string    `json:"id"`
	Type       MediaType `json:"type"`
	Name       string    `json:"name"`
	MimeType   string    `json:"mime_type,omitempty"`
	StorageRef string    `json:"storage_ref"`

	ProcessedContent *ProcessedMedia `json:"processed_content,omitempty"`
}
