package parsers

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
)

var (
	_ driven.Parser        = (*GeminiParser)(nil)
	_ driven.Fingerprinter = (*GeminiParser)(nil)
)

// GeminiParser handles Gemini exports: {"contents":[{"role","parts":[{"text"}],"createTime"}]}.
// Text parts are joined with newlines.
type GeminiParser struct{}

func (p *GeminiParser) Validate(content []byte) bool {
	if !gjson.ValidBytes(content) {
		return false
	}
	doc := gjson.ParseBytes(content)
	contents := doc.Get("contents")
	if !doc.IsObject() || !contents.IsArray() {
		return false
	}
	first := contents.Get("0")
	return !first.Exists() || (first.Get("role").Exists() && first.Get("parts").IsArray())
}

func (p *GeminiParser) Fingerprint(content []byte) float64 {
	doc := gjson.ParseBytes(content)
	var s score

	contents := doc.Get("contents")
	s.add(contents.IsArray(), 0.3)
	s.add(contents.Get("0.parts").IsArray(), 0.3)
	s.add(contents.Get(`#(role=="model")`).Exists(), 0.1)
	s.add(contents.Get("0.createTime").Exists(), 0.05)
	s.add(anyModel(content, "gemini", "bard"), 0.1)
	return s.value()
}

func (p *GeminiParser) Keywords() []string {
	return []string{"gemini.google.com", "Gemini", "Bard"}
}

func (p *GeminiParser) Parse(content []byte) ([]domain.IntermediateMessage, error) {
	obj, err := decodeObject(domain.PlatformGemini, content)
	if err != nil {
		return nil, err
	}
	raw, err := requireArray(domain.PlatformGemini, -1, obj, "contents")
	if err != nil {
		return nil, err
	}

	convMeta := metadataExcept(obj, "contents")

	messages := make([]domain.IntermediateMessage, 0, len(raw))
	for i, entry := range raw {
		m, err := requireObject(domain.PlatformGemini, i, entry)
		if err != nil {
			return nil, err
		}
		role, err := requireString(domain.PlatformGemini, i, m, "role")
		if err != nil {
			return nil, err
		}
		parts, err := requireArray(domain.PlatformGemini, i, m, "parts")
		if err != nil {
			return nil, err
		}

		var texts []string
		var other []any
		for _, part := range parts {
			po, ok := part.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := po["text"].(string); ok {
				texts = append(texts, text)
			} else {
				other = append(other, po)
			}
		}
		if len(texts) == 0 {
			return nil, &domain.ParseError{Platform: domain.PlatformGemini, Seq: i, Field: "parts", Reason: "no text part"}
		}

		meta := metadataExcept(m, "role", "parts", "createTime", "create_time")
		if len(other) > 0 {
			meta["non_text_parts"] = other
		}

		messages = append(messages, domain.IntermediateMessage{
			Seq:       i,
			Role:      role,
			Content:   strings.Join(texts, "\n"),
			Timestamp: firstPresent(m, "createTime", "create_time"),
			Metadata:  withConversation(meta, convMeta),
		})
	}
	return messages, nil
}
