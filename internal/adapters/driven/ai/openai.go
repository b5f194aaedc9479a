package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/gabriel-vasile/mimetype"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
)

var (
	_ driven.Transcriber   = (*OpenAI)(nil)
	_ driven.VisionService = (*OpenAI)(nil)
	_ driven.OCRService    = (*OpenAI)(nil)
)

const (
	defaultWhisperModel = "whisper-1"
	defaultVisionModel  = "gpt-4o-mini"
	defaultMaxTokens    = 1024
	defaultTimeout      = 120 * time.Second
)

// OCRPrompt asks a vision model for a plain transcription of the text in an image
const OCRPrompt = "Transcribe all text visible in this image exactly as written, line by line. " +
	"Return only the text with no commentary. Return an empty answer if there is no text."

// OpenAIConfig holds configuration for the OpenAI collaborators
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string

	// MaxRetries is passed to the SDK; zero uses the SDK default
	MaxRetries int
	HTTPClient *http.Client
}

// OpenAI serves transcription, vision and OCR through the OpenAI API.
// OCR is a vision call with a transcription prompt.
type OpenAI struct {
	client    openai.Client
	model     string
	maxTokens int64
}

// NewOpenAI creates an OpenAI collaborator. The model defaults depend on
// which capability the caller uses it for.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai: api key required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	opts = append(opts, option.WithHTTPClient(httpClient))

	return &OpenAI{
		client:    openai.NewClient(opts...),
		model:     strings.TrimSpace(cfg.Model),
		maxTokens: defaultMaxTokens,
	}, nil
}

// Transcribe sends audio to the Whisper endpoint and returns timed segments.
func (o *OpenAI) Transcribe(ctx context.Context, audio []byte, filename string) (*driven.Transcription, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("openai transcribe: %w: empty audio", domain.ErrInvalidInput)
	}
	model := o.model
	if model == "" {
		model = defaultWhisperModel
	}

	var raw []byte
	_, err := o.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:           openai.File(bytes.NewReader(audio), filename, mimetype.Detect(audio).String()),
		Model:          openai.AudioModel(model),
		ResponseFormat: openai.AudioResponseFormatVerboseJSON,
	}, option.WithResponseBodyInto(&raw))
	if err != nil {
		return nil, wrapAPIError("openai transcribe", err)
	}

	return parseVerboseTranscription(raw)
}

// parseVerboseTranscription reads the verbose_json transcription payload.
func parseVerboseTranscription(raw []byte) (*driven.Transcription, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("openai transcribe: %w: invalid response body", domain.ErrMediaProcessing)
	}
	body := gjson.ParseBytes(raw)

	out := &driven.Transcription{
		Text:     strings.TrimSpace(body.Get("text").String()),
		Duration: body.Get("duration").Float(),
	}
	body.Get("segments").ForEach(func(_, seg gjson.Result) bool {
		text := strings.TrimSpace(seg.Get("text").String())
		if text == "" {
			return true
		}
		out.Segments = append(out.Segments, driven.TimedSegment{
			Start: seg.Get("start").Float(),
			End:   seg.Get("end").Float(),
			Text:  text,
		})
		return true
	})
	return out, nil
}

// Describe asks a vision model to describe an image following the prompt.
func (o *OpenAI) Describe(ctx context.Context, image []byte, prompt string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("openai vision: %w: empty image", domain.ErrInvalidInput)
	}
	model := o.model
	if model == "" {
		model = defaultVisionModel
	}

	dataURL := "data:" + imageMediaType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)
	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(model),
		MaxCompletionTokens: openai.Int(o.maxTokens),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
	})
	if err != nil {
		return "", wrapAPIError("openai vision", err)
	}
	if completion == nil || len(completion.Choices) == 0 {
		return "", fmt.Errorf("openai vision: %w: no choices returned", domain.ErrMediaProcessing)
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

// ExtractText runs OCR through the vision model.
func (o *OpenAI) ExtractText(ctx context.Context, image []byte) (string, error) {
	return o.Describe(ctx, image, OCRPrompt)
}

// imageMediaType sniffs the image format, defaulting to PNG.
func imageMediaType(image []byte) string {
	mt := mimetype.Detect(image)
	if strings.HasPrefix(mt.String(), "image/") {
		return mt.String()
	}
	return "image/png"
}

// wrapAPIError maps SDK failures onto domain sentinels.
func wrapAPIError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrTimeout, err)
	}
	switch status := statusCode(err); {
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return fmt.Errorf("%s: %w: status %d", op, domain.ErrTimeout, status)
	case status == http.StatusUnauthorized, status >= 500:
		return fmt.Errorf("%s: %w: status %d", op, domain.ErrServiceUnavailable, status)
	}
	return fmt.Errorf("%s: %w: %v", op, domain.ErrMediaProcessing, err)
}

// statusCode extracts the HTTP status from either SDK's error type.
func statusCode(err error) int {
	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return openaiErr.StatusCode
	}
	var anthropicErr *anthropicsdk.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode
	}
	return 0
}
