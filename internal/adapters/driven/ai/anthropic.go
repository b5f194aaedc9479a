package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
)

var (
	_ driven.VisionService = (*Anthropic)(nil)
	_ driven.OCRService    = (*Anthropic)(nil)
)

const defaultAnthropicModel = "claude-3-5-haiku-latest"

// AnthropicConfig holds configuration for the Anthropic collaborators
type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	MaxRetries int
	HTTPClient *http.Client
}

// Anthropic serves vision and OCR through the Messages API.
// It has no speech-to-text endpoint.
type Anthropic struct {
	msgs      *anthropicsdk.MessageService
	model     anthropicsdk.Model
	maxTokens int64
}

// NewAnthropic creates an Anthropic collaborator.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("anthropic: api key required")
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

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultAnthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	client := anthropicsdk.NewClient(opts...)
	return &Anthropic{
		msgs:      &client.Messages,
		model:     anthropicsdk.Model(model),
		maxTokens: int64(maxTokens),
	}, nil
}

// Describe sends the image and prompt as a single user turn.
func (a *Anthropic) Describe(ctx context.Context, image []byte, prompt string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("anthropic vision: %w: empty image", domain.ErrInvalidInput)
	}

	msg, err := a.msgs.New(ctx, anthropicsdk.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(
				anthropicsdk.NewImageBlockBase64(imageMediaType(image), base64.StdEncoding.EncodeToString(image)),
				anthropicsdk.NewTextBlock(prompt),
			),
		},
	})
	if err != nil {
		return "", wrapAPIError("anthropic vision", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// ExtractText runs OCR through the vision model.
func (a *Anthropic) ExtractText(ctx context.Context, image []byte) (string, error) {
	return a.Describe(ctx, image, OCRPrompt)
}
