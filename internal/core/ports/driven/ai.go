package driven

import (
	"context"
)

// Transcription is the output of a speech-to-text call
type Transcription struct {
	Text string

	// Duration in seconds; zero when the service does not report it
	Duration float64

	// Segments are timed spans when the service provides them.
	// Speaker is set only when diarization is available.
	Segments []TimedSegment
}

// TimedSegment is a span of transcribed speech
type TimedSegment struct {
	Start   float64
	End     float64
	Text    string
	Speaker string
}

// Transcriber converts audio into text.
// Retries, if any, are the collaborator's concern.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (*Transcription, error)
}

// VisionService describes an image following a prompt.
// Used for both frame description and screenshot layout analysis.
type VisionService interface {
	Describe(ctx context.Context, image []byte, prompt string) (string, error)
}

// OCRService extracts raw text from an image
type OCRService interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}

// Frame is a decoded video frame
type Frame struct {
	// Timestamp in seconds from the start of the video
	Timestamp float64

	// Image is an encoded still (PNG or JPEG)
	Image []byte
}

// MediaToolkit performs local demuxing of video files
type MediaToolkit interface {
	// ExtractAudio returns the audio track encoded as WAV
	ExtractAudio(ctx context.Context, video []byte) ([]byte, error)

	// ExtractFrames returns frames sampled at the given rate (frames per second)
	ExtractFrames(ctx context.Context, video []byte, fps float64) ([]Frame, error)
}
