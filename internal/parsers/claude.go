package parsers

import (
	"github.com/tidwall/gjson"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
)

var (
	_ driven.Parser        = (*ClaudeParser)(nil)
	_ driven.Fingerprinter = (*ClaudeParser)(nil)
)

// ClaudeParser handles claude.ai conversation exports:
// {"uuid","name","chat_messages":[{"uuid","sender","text","created_at","attachments","files"}]}
type ClaudeParser struct{}

func (p *ClaudeParser) Validate(content []byte) bool {
	if !gjson.ValidBytes(content) {
		return false
	}
	doc := gjson.ParseBytes(content)
	msgs := doc.Get("chat_messages")
	if !doc.IsObject() || !msgs.IsArray() {
		return false
	}
	first := msgs.Get("0")
	return !first.Exists() || (first.Get("sender").Exists() && first.Get("text").Exists())
}

func (p *ClaudeParser) Fingerprint(content []byte) float64 {
	doc := gjson.ParseBytes(content)
	var s score

	msgs := doc.Get("chat_messages")
	s.add(msgs.IsArray(), 0.4)
	s.add(doc.Get("uuid").Exists(), 0.1)
	s.add(doc.Get("name").Exists(), 0.05)
	s.add(msgs.Get("0.sender").Exists(), 0.2)
	s.add(msgs.Get("0.sender").String() == "human", 0.1)
	s.add(anyModel(content, "claude"), 0.1)
	return s.value()
}

func (p *ClaudeParser) Keywords() []string {
	return []string{"claude.ai", "Claude", "Anthropic"}
}

func (p *ClaudeParser) Parse(content []byte) ([]domain.IntermediateMessage, error) {
	obj, err := decodeObject(domain.PlatformClaude, content)
	if err != nil {
		return nil, err
	}
	raw, err := requireArray(domain.PlatformClaude, -1, obj, "chat_messages")
	if err != nil {
		return nil, err
	}

	convMeta := metadataExcept(obj, "chat_messages")

	messages := make([]domain.IntermediateMessage, 0, len(raw))
	for i, entry := range raw {
		m, err := requireObject(domain.PlatformClaude, i, entry)
		if err != nil {
			return nil, err
		}
		sender, err := requireString(domain.PlatformClaude, i, m, "sender")
		if err != nil {
			return nil, err
		}
		text, ok := m["text"].(string)
		if !ok {
			return nil, &domain.ParseError{Platform: domain.PlatformClaude, Seq: i, Field: "text", Reason: "missing required field"}
		}

		meta := metadataExcept(m, "sender", "text", "created_at")
		if id, ok := obj["uuid"]; ok {
			meta["conversation_uuid"] = id
		}
		if name, ok := obj["name"].(string); ok {
			meta["conversation_name"] = name
		}

		messages = append(messages, domain.IntermediateMessage{
			Seq:       i,
			Role:      sender,
			Content:   text,
			Timestamp: m["created_at"],
			Metadata:  withConversation(meta, convMeta),
		})
	}
	return messages, nil
}
