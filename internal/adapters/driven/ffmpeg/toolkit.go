// Package ffmpeg demuxes video attachments by shelling out to the ffmpeg binary.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
)

// Ensure Toolkit implements MediaToolkit
var _ driven.MediaToolkit = (*Toolkit)(nil)

// Config holds configuration for the ffmpeg toolkit
type Config struct {
	// Path to the ffmpeg binary; looked up on PATH when empty
	Path string

	// TempDir holds scratch files; os.TempDir when empty
	TempDir string

	Logger *slog.Logger
}

// Toolkit extracts audio tracks and still frames with ffmpeg
type Toolkit struct {
	path    string
	tempDir string
	logger  *slog.Logger
}

// New creates a toolkit. It fails with ErrServiceUnavailable when the
// binary cannot be found.
func New(cfg Config) (*Toolkit, error) {
	path := cfg.Path
	if path == "" {
		path = "ffmpeg"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found: %v", domain.ErrServiceUnavailable, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Toolkit{
		path:    resolved,
		tempDir: cfg.TempDir,
		logger:  logger.With("component", "ffmpeg"),
	}, nil
}

// ExtractAudio returns the audio track as 16kHz mono WAV.
func (t *Toolkit) ExtractAudio(ctx context.Context, video []byte) ([]byte, error) {
	dir, input, err := t.stage(video)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	out, err := t.run(ctx, "-i", input, "-vn", "-ac", "1", "-ar", "16000", "-f", "wav", "pipe:1")
	if err != nil {
		return nil, fmt.Errorf("extract audio: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("extract audio: %w: no audio track", domain.ErrMediaProcessing)
	}
	return out, nil
}

// ExtractFrames samples PNG stills at fps frames per second.
func (t *Toolkit) ExtractFrames(ctx context.Context, video []byte, fps float64) ([]driven.Frame, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("extract frames: %w: fps must be positive", domain.ErrInvalidInput)
	}
	dir, input, err := t.stage(video)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	pattern := filepath.Join(dir, "frame_%06d.png")
	rate := strconv.FormatFloat(fps, 'f', -1, 64)
	if _, err := t.run(ctx, "-i", input, "-vf", "fps="+rate, "-f", "image2", pattern); err != nil {
		return nil, fmt.Errorf("extract frames: %w", err)
	}

	names, err := filepath.Glob(filepath.Join(dir, "frame_*.png"))
	if err != nil {
		return nil, fmt.Errorf("extract frames: %w", err)
	}
	sort.Strings(names)

	frames := make([]driven.Frame, 0, len(names))
	for i, name := range names {
		img, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read frame %s: %w", filepath.Base(name), err)
		}
		frames = append(frames, driven.Frame{
			Timestamp: float64(i) / fps,
			Image:     img,
		})
	}

	t.logger.Debug("frames extracted", "count", len(frames), "fps", fps)
	return frames, nil
}

// stage writes the input to a private scratch directory.
func (t *Toolkit) stage(video []byte) (string, string, error) {
	if len(video) == 0 {
		return "", "", fmt.Errorf("%w: empty video", domain.ErrInvalidInput)
	}
	dir, err := os.MkdirTemp(t.tempDir, "voxstitch-ffmpeg-*")
	if err != nil {
		return "", "", fmt.Errorf("create scratch dir: %w", err)
	}
	input := filepath.Join(dir, "input")
	if err := os.WriteFile(input, video, 0o600); err != nil {
		os.RemoveAll(dir)
		return "", "", fmt.Errorf("write scratch input: %w", err)
	}
	return dir, input, nil
}

func (t *Toolkit) run(ctx context.Context, args ...string) ([]byte, error) {
	full := append([]string{"-hide_banner", "-loglevel", "error", "-nostdin", "-y"}, args...)
	cmd := exec.CommandContext(ctx, t.path, full...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: ffmpeg: %v", domain.ErrTimeout, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: ffmpeg exited %d: %s", domain.ErrMediaProcessing,
				exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("%w: ffmpeg: %v", domain.ErrServiceUnavailable, err)
	}
	return stdout.Bytes(), nil
}
