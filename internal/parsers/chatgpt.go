package parsers

import (
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
)

var (
	_ driven.Parser        = (*ChatGPTParser)(nil)
	_ driven.Fingerprinter = (*ChatGPTParser)(nil)
)

// ChatGPTParser handles ChatGPT exports in two shapes:
// the simple {"messages":[{"role","content"}]} form and the
// conversations export with a "mapping" node tree.
type ChatGPTParser struct{}

func (p *ChatGPTParser) Validate(content []byte) bool {
	if !gjson.ValidBytes(content) {
		return false
	}
	doc := gjson.ParseBytes(content)
	if !doc.IsObject() {
		return false
	}

	if mapping := doc.Get("mapping"); mapping.IsObject() {
		return true
	}

	msgs := doc.Get("messages")
	if !msgs.IsArray() {
		return false
	}
	first := msgs.Get("0")
	return !first.Exists() || (first.IsObject() && first.Get("role").Exists() && first.Get("content").Exists())
}

func (p *ChatGPTParser) Fingerprint(content []byte) float64 {
	doc := gjson.ParseBytes(content)
	var s score

	if mapping := doc.Get("mapping"); mapping.IsObject() {
		s.add(true, 0.4)
		s.add(doc.Get("current_node").Exists(), 0.2)
		s.add(doc.Get("title").Exists(), 0.1)
		hasAuthor := false
		mapping.ForEach(func(_, node gjson.Result) bool {
			if node.Get("message.author.role").Exists() {
				hasAuthor = true
				return false
			}
			return true
		})
		s.add(hasAuthor, 0.2)
	} else if msgs := doc.Get("messages"); msgs.IsArray() {
		first := msgs.Get("0")
		s.add(first.Get("role").Exists() && first.Get("content").Exists(), 0.4)
		s.add(first.Get("from").Exists(), -0.2)
	}

	s.add(anyModel(content, "gpt-", "chatgpt"), 0.1)
	return s.value()
}

func (p *ChatGPTParser) Keywords() []string {
	return []string{"chat.openai.com", "chatgpt.com", "ChatGPT", "OpenAI"}
}

func (p *ChatGPTParser) Parse(content []byte) ([]domain.IntermediateMessage, error) {
	obj, err := decodeObject(domain.PlatformChatGPT, content)
	if err != nil {
		return nil, err
	}

	if mapping, ok := obj["mapping"].(map[string]any); ok {
		return p.parseMapping(obj, mapping)
	}

	raw, err := requireArray(domain.PlatformChatGPT, -1, obj, "messages")
	if err != nil {
		return nil, err
	}

	convMeta := metadataExcept(obj, "messages")

	messages := make([]domain.IntermediateMessage, 0, len(raw))
	for i, entry := range raw {
		m, err := requireObject(domain.PlatformChatGPT, i, entry)
		if err != nil {
			return nil, err
		}
		role, err := requireString(domain.PlatformChatGPT, i, m, "role")
		if err != nil {
			return nil, err
		}
		text, ok := chatgptContent(m["content"])
		if !ok {
			return nil, &domain.ParseError{Platform: domain.PlatformChatGPT, Seq: i, Field: "content", Reason: "missing required field"}
		}

		messages = append(messages, domain.IntermediateMessage{
			Seq:       i,
			Role:      role,
			Content:   text,
			Timestamp: firstPresent(m, "create_time", "timestamp", "created_at"),
			Metadata:  withConversation(metadataExcept(m, "role", "content", "create_time", "timestamp", "created_at"), convMeta),
		})
	}
	return messages, nil
}

// parseMapping walks the conversation tree from the current node to the root
// and returns the active branch in chronological order.
func (p *ChatGPTParser) parseMapping(conv map[string]any, mapping map[string]any) ([]domain.IntermediateMessage, error) {
	leaf, _ := conv["current_node"].(string)
	if leaf == "" {
		leaf = latestLeaf(mapping)
	}

	var branch []string
	visited := make(map[string]bool)
	for id := leaf; id != ""; {
		if visited[id] {
			return nil, &domain.ParseError{Platform: domain.PlatformChatGPT, Seq: -1, Field: "mapping", Reason: "parent cycle at node " + id}
		}
		visited[id] = true

		node, ok := mapping[id].(map[string]any)
		if !ok {
			return nil, &domain.ParseError{Platform: domain.PlatformChatGPT, Seq: -1, Field: "mapping", Reason: "missing node " + id}
		}
		branch = append(branch, id)
		id, _ = node["parent"].(string)
	}

	convMeta := metadataExcept(conv, "mapping", "current_node")

	messages := make([]domain.IntermediateMessage, 0, len(branch))
	seq := 0
	for i := len(branch) - 1; i >= 0; i-- {
		id := branch[i]
		node := mapping[id].(map[string]any)
		msg, ok := node["message"].(map[string]any)
		if !ok {
			// Structural node without a message
			continue
		}

		author, _ := msg["author"].(map[string]any)
		if author == nil {
			return nil, &domain.ParseError{Platform: domain.PlatformChatGPT, Seq: seq, Field: "author.role", Reason: "missing required field"}
		}
		role, err := requireString(domain.PlatformChatGPT, seq, author, "role")
		if err != nil {
			pe := err.(*domain.ParseError)
			pe.Field = "author.role"
			return nil, pe
		}
		text, ok := chatgptContent(msg["content"])
		if !ok {
			return nil, &domain.ParseError{Platform: domain.PlatformChatGPT, Seq: seq, Field: "content", Reason: "missing required field"}
		}

		meta := metadataExcept(msg, "author", "content", "create_time")
		meta["node_id"] = id
		if parent, ok := node["parent"].(string); ok {
			meta["parent_id"] = parent
		}
		if name, ok := author["name"]; ok && name != nil {
			meta["author_name"] = name
		}
		if extra := nonTextParts(msg["content"]); len(extra) > 0 {
			meta["non_text_parts"] = extra
		}
		if title, ok := conv["title"].(string); ok {
			meta["conversation_title"] = title
		}

		messages = append(messages, domain.IntermediateMessage{
			Seq:       seq,
			Role:      role,
			Content:   text,
			Timestamp: msg["create_time"],
			Metadata:  withConversation(meta, convMeta),
		})
		seq++
	}
	return messages, nil
}

// chatgptContent flattens a content value: a plain string or a
// {"content_type","parts":[...]} object whose string parts are joined.
func chatgptContent(v any) (string, bool) {
	switch c := v.(type) {
	case string:
		return c, true
	case map[string]any:
		if text, ok := c["text"].(string); ok {
			return text, true
		}
		parts, ok := c["parts"].([]any)
		if !ok {
			return "", false
		}
		texts := make([]string, 0, len(parts))
		for _, part := range parts {
			if s, ok := part.(string); ok {
				texts = append(texts, s)
			}
		}
		return strings.Join(texts, "\n"), true
	}
	return "", false
}

func nonTextParts(v any) []any {
	c, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	parts, _ := c["parts"].([]any)
	var out []any
	for _, part := range parts {
		if _, ok := part.(string); !ok {
			out = append(out, part)
		}
	}
	return out
}

// latestLeaf picks the childless node with the latest create_time.
// Ties resolve to the lexically smallest node ID.
func latestLeaf(mapping map[string]any) string {
	ids := make([]string, 0, len(mapping))
	for id := range mapping {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	best := ""
	bestTime := -1.0
	for _, id := range ids {
		node, ok := mapping[id].(map[string]any)
		if !ok {
			continue
		}
		if children, _ := node["children"].([]any); len(children) > 0 {
			continue
		}
		t := 0.0
		if msg, ok := node["message"].(map[string]any); ok {
			t = numberValue(msg["create_time"])
		}
		if t > bestTime {
			best, bestTime = id, t
		}
	}
	return best
}
