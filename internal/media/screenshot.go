package media

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
	"github.com/custodia-labs/voxstitch/internal/normalisers"
)

// layoutPrompt asks the vision service for chat bubbles as JSON
const layoutPrompt = `This is a screenshot of a chat conversation. Return only JSON of the form ` +
	`{"messages":[{"sender":"...","role":"user|assistant|system","text":"...","timestamp":"..."}]} ` +
	`listing every chat bubble from top to bottom. Use an empty string for unknown fields.`

// probeLen is how many normalized characters of a bubble are searched for in OCR text
const probeLen = 40

// ScreenshotProcessor extracts chat turns from screenshots using OCR
// and vision layout analysis
type ScreenshotProcessor struct {
	ocr    driven.OCRService
	vision driven.VisionService
	logger *slog.Logger
}

// NewScreenshotProcessor creates a screenshot processor.
func NewScreenshotProcessor(ocr driven.OCRService, vision driven.VisionService, cfg Config) *ScreenshotProcessor {
	cfg = cfg.withDefaults()
	return &ScreenshotProcessor{
		ocr:    ocr,
		vision: vision,
		logger: cfg.Logger.With("processor", "screenshot"),
	}
}

// Bubble is one chat bubble reported by layout analysis
type Bubble struct {
	Sender    string
	Role      string
	Text      string
	Timestamp string
}

// Process runs OCR and layout analysis. Without layout, the OCR text becomes
// a single block; without OCR, bubbles keep layout order.
func (p *ScreenshotProcessor) Process(ctx context.Context, file domain.RawFile) *domain.ProcessedMedia {
	result := domain.NewProcessedMedia()
	succeeded := 0

	ocrText, ocrOK := p.runOCR(ctx, file, result)
	if ocrOK {
		succeeded++
		result.OCRText = &ocrText
	}

	bubbles, layoutOK := p.runLayout(ctx, file, result)
	if layoutOK {
		succeeded++
		if ocrOK {
			OrderByOCR(bubbles, ocrText)
		}
		result.Messages = bubbleMessages(bubbles)
	} else if ocrOK && strings.TrimSpace(ocrText) != "" {
		result.Messages = []domain.CanonicalMessage{{
			Role:    domain.RoleUser,
			Content: strings.TrimSpace(ocrText),
			SourceMetadata: map[string]any{
				"source": "ocr_block",
			},
		}}
	}

	result.Settle(succeeded, 2)
	return result
}

func (p *ScreenshotProcessor) runOCR(ctx context.Context, file domain.RawFile, result *domain.ProcessedMedia) (string, bool) {
	if p.ocr == nil {
		result.AddError("ocr", domain.KindMediaProcessing, errUnavailable("ocr service"))
		return "", false
	}
	text, err := p.ocr.ExtractText(ctx, file.Data)
	if err != nil {
		p.logger.Warn("ocr failed", "file", file.Name, "error", err)
		result.AddError("ocr", errorKind(ctx, err), err)
		return "", false
	}
	return text, true
}

func (p *ScreenshotProcessor) runLayout(ctx context.Context, file domain.RawFile, result *domain.ProcessedMedia) ([]Bubble, bool) {
	if p.vision == nil {
		result.AddError("layout", domain.KindMediaProcessing, errUnavailable("vision service"))
		return nil, false
	}
	raw, err := p.vision.Describe(ctx, file.Data, layoutPrompt)
	if err != nil {
		p.logger.Warn("layout analysis failed", "file", file.Name, "error", err)
		result.AddError("layout", errorKind(ctx, err), err)
		return nil, false
	}
	bubbles, err := ParseBubbles(raw)
	if err != nil {
		result.AddError("layout", domain.KindMediaProcessing, err)
		return nil, false
	}
	return bubbles, true
}

var errNoBubbles = errors.New("layout response contains no chat bubbles")

// ParseBubbles reads layout JSON from a vision response. The JSON may be
// wrapped in prose or code fences; it may be an array or an object with a
// "messages" or "bubbles" array.
func ParseBubbles(raw string) ([]Bubble, error) {
	doc, ok := extractJSON(raw)
	if !ok {
		return nil, errors.New("layout response is not JSON")
	}

	list := doc
	if doc.IsObject() {
		list = doc.Get("messages")
		if !list.IsArray() {
			list = doc.Get("bubbles")
		}
	}
	if !list.IsArray() {
		return nil, errNoBubbles
	}

	var bubbles []Bubble
	for _, item := range list.Array() {
		text := strings.TrimSpace(item.Get("text").String())
		if text == "" {
			continue
		}
		bubbles = append(bubbles, Bubble{
			Sender:    item.Get("sender").String(),
			Role:      item.Get("role").String(),
			Text:      text,
			Timestamp: item.Get("timestamp").String(),
		})
	}
	if len(bubbles) == 0 {
		return nil, errNoBubbles
	}
	return bubbles, nil
}

// extractJSON finds the outermost JSON object or array in s.
func extractJSON(s string) (gjson.Result, bool) {
	start := strings.IndexAny(s, "{[")
	if start == -1 {
		return gjson.Result{}, false
	}
	closer := "}"
	if s[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(s, closer)
	if end < start {
		return gjson.Result{}, false
	}
	candidate := s[start : end+1]
	if !gjson.Valid(candidate) {
		return gjson.Result{}, false
	}
	return gjson.Parse(candidate), true
}

// OrderByOCR reorders bubbles found in the OCR text by their position there.
// Bubbles not found keep their layout slot.
func OrderByOCR(bubbles []Bubble, ocrText string) {
	haystack := squash(ocrText)

	type located struct {
		pos    int
		bubble Bubble
	}
	var slots []int
	var found []located
	for i, b := range bubbles {
		probe := squash(b.Text)
		if len([]rune(probe)) > probeLen {
			probe = string([]rune(probe)[:probeLen])
		}
		if pos := strings.Index(haystack, probe); probe != "" && pos >= 0 {
			slots = append(slots, i)
			found = append(found, located{pos: pos, bubble: b})
		}
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].pos < found[j].pos })
	for i, slot := range slots {
		bubbles[slot] = found[i].bubble
	}
}

// squash lowercases and collapses whitespace for fuzzy matching.
func squash(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func bubbleMessages(bubbles []Bubble) []domain.CanonicalMessage {
	msgs := make([]domain.CanonicalMessage, 0, len(bubbles))
	for _, b := range bubbles {
		role := domain.Role(strings.ToLower(strings.TrimSpace(b.Role)))
		if !role.Valid() {
			role = SpeakerRole(b.Sender)
		}

		meta := map[string]any{"source": "layout"}
		if b.Sender != "" {
			meta["sender"] = b.Sender
		}

		msg := domain.CanonicalMessage{Role: role, Content: b.Text, SourceMetadata: meta}
		if b.Timestamp != "" {
			if ts, err := normalisers.ParseTimestamp(b.Timestamp); err == nil {
				msg.Timestamp = ts
			} else {
				meta["raw_timestamp"] = b.Timestamp
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs
}
