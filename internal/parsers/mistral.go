package parsers

import (
	"github.com/tidwall/gjson"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
)

var (
	_ driven.Parser        = (*MistralParser)(nil)
	_ driven.Fingerprinter = (*MistralParser)(nil)
)

// MistralParser handles Le Chat exports: {"conversation":{"messages":[{"from","text","timestamp"}]}}
type MistralParser struct{}

func (p *MistralParser) Validate(content []byte) bool {
	if !gjson.ValidBytes(content) {
		return false
	}
	doc := gjson.ParseBytes(content)
	msgs := doc.Get("conversation.messages")
	if !doc.IsObject() || !msgs.IsArray() {
		return false
	}
	first := msgs.Get("0")
	return !first.Exists() || (first.Get("from").Exists() && first.Get("text").Exists())
}

func (p *MistralParser) Fingerprint(content []byte) float64 {
	doc := gjson.ParseBytes(content)
	var s score

	msgs := doc.Get("conversation.messages")
	s.add(doc.Get("conversation").IsObject(), 0.2)
	s.add(msgs.IsArray(), 0.2)
	s.add(msgs.Get("0.from").Exists(), 0.2)
	s.add(msgs.Get(`#(from=="from_ai")`).Exists(), 0.1)
	s.add(anyModel(content, "mistral", "mixtral", "codestral"), 0.1)
	return s.value()
}

func (p *MistralParser) Keywords() []string {
	return []string{"chat.mistral.ai", "Le Chat", "Mistral"}
}

func (p *MistralParser) Parse(content []byte) ([]domain.IntermediateMessage, error) {
	obj, err := decodeObject(domain.PlatformMistral, content)
	if err != nil {
		return nil, err
	}
	conv, ok := obj["conversation"].(map[string]any)
	if !ok {
		return nil, &domain.ParseError{Platform: domain.PlatformMistral, Seq: -1, Field: "conversation", Reason: "missing required field"}
	}
	raw, err := requireArray(domain.PlatformMistral, -1, conv, "messages")
	if err != nil {
		return nil, err
	}

	convMeta := metadataExcept(conv, "messages")
	exportMeta := metadataExcept(obj, "conversation")

	messages := make([]domain.IntermediateMessage, 0, len(raw))
	for i, entry := range raw {
		m, err := requireObject(domain.PlatformMistral, i, entry)
		if err != nil {
			return nil, err
		}
		from, err := requireString(domain.PlatformMistral, i, m, "from")
		if err != nil {
			return nil, err
		}
		text, ok := m["text"].(string)
		if !ok {
			return nil, &domain.ParseError{Platform: domain.PlatformMistral, Seq: i, Field: "text", Reason: "missing required field"}
		}

		meta := withConversation(metadataExcept(m, "from", "text", "timestamp"), convMeta)
		if len(exportMeta) > 0 {
			meta["export"] = exportMeta
		}

		messages = append(messages, domain.IntermediateMessage{
			Seq:       i,
			Role:      from,
			Content:   text,
			Timestamp: m["timestamp"],
			Metadata:  meta,
		})
	}
	return messages, nil
}
