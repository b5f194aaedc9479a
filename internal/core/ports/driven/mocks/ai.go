package mocks

import (
	"context"
	"sync/atomic"

	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
)

// MockTranscriber is a mock Transcriber.
// Returns Result unless TranscribeFn is set.
type MockTranscriber struct {
	Result       *driven.Transcription
	Err          error
	TranscribeFn func(ctx context.Context, audio []byte, filename string) (*driven.Transcription, error)

	calls atomic.Int32
}

func (m *MockTranscriber) Transcribe(ctx context.Context, audio []byte, filename string) (*driven.Transcription, error) {
	m.calls.Add(1)
	if m.TranscribeFn != nil {
		return m.TranscribeFn(ctx, audio, filename)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Result, nil
}

// Calls returns the number of Transcribe calls.
func (m *MockTranscriber) Calls() int {
	return int(m.calls.Load())
}

// MockVisionService is a mock VisionService
type MockVisionService struct {
	Description string
	Err         error
	DescribeFn  func(ctx context.Context, image []byte, prompt string) (string, error)

	calls atomic.Int32
}

func (m *MockVisionService) Describe(ctx context.Context, image []byte, prompt string) (string, error) {
	m.calls.Add(1)
	if m.DescribeFn != nil {
		return m.DescribeFn(ctx, image, prompt)
	}
	return m.Description, m.Err
}

// Calls returns the number of Describe calls.
func (m *MockVisionService) Calls() int {
	return int(m.calls.Load())
}

// MockOCRService is a mock OCRService
type MockOCRService struct {
	Text string
	Err  error
}

func (m *MockOCRService) ExtractText(ctx context.Context, image []byte) (string, error) {
	return m.Text, m.Err
}

// MockMediaToolkit is a mock MediaToolkit
type MockMediaToolkit struct {
	Audio     []byte
	AudioErr  error
	Frames    []driven.Frame
	FramesErr error
}

func (m *MockMediaToolkit) ExtractAudio(ctx context.Context, video []byte) ([]byte, error) {
	return m.Audio, m.AudioErr
}

func (m *MockMediaToolkit) ExtractFrames(ctx context.Context, video []byte, fps float64) ([]driven.Frame, error) {
	return m.Frames, m.FramesErr
}
