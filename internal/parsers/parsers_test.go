package parsers

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func TestChatGPTParser_Mapping(t *testing.T) {
	p := &ChatGPTParser{}
	content := readFixture(t, "chatgpt_mapping.json")

	require.True(t, p.Validate(content))
	msgs, err := p.Parse(content)
	require.NoError(t, err)

	// Active branch only: n1 -> n2 -> n3, the abandoned n2b is not included
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "Plan a trip to Lisbon?", msgs[0].Content)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, "Day one: Alfama.\nDay two: Belem.", msgs[1].Content)
	assert.Equal(t, "tool", msgs[2].Role)

	for i, m := range msgs {
		assert.Equal(t, i, m.Seq)
	}
	assert.Equal(t, "n2", msgs[1].Metadata["node_id"])
	assert.Equal(t, "n1", msgs[1].Metadata["parent_id"])
	assert.Equal(t, "Trip planning", msgs[0].Metadata["conversation_title"])
	assert.Equal(t, "browser", msgs[2].Metadata["author_name"])
	assert.NotNil(t, msgs[0].Timestamp)
	assert.Contains(t, msgs[1].Metadata, "metadata")
}

func TestChatGPTParser_MappingWithoutCurrentNode(t *testing.T) {
	content := []byte(`{"mapping":{
		"a":{"message":null,"parent":null,"children":["b"]},
		"b":{"message":{"author":{"role":"user"},"content":{"parts":["hi"]},"create_time":1},"parent":"a","children":["c","d"]},
		"c":{"message":{"author":{"role":"assistant"},"content":{"parts":["old"]},"create_time":2},"parent":"b","children":[]},
		"d":{"message":{"author":{"role":"assistant"},"content":{"parts":["new"]},"create_time":3},"parent":"b","children":[]}
	}}`)

	msgs, err := (&ChatGPTParser{}).Parse(content)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "new", msgs[1].Content)
}

func TestChatGPTParser_MappingCycle(t *testing.T) {
	content := []byte(`{"current_node":"a","mapping":{
		"a":{"message":null,"parent":"b","children":[]},
		"b":{"message":null,"parent":"a","children":[]}
	}}`)

	_, err := (&ChatGPTParser{}).Parse(content)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestChatGPTParser_SimpleForm(t *testing.T) {
	content := []byte(`{"messages":[
		{"role":"system","content":"Be brief."},
		{"role":"user","content":"Hello","timestamp":1700000000,"id":"u1"},
		{"role":"assistant","content":"Hi!"}
	]}`)

	p := &ChatGPTParser{}
	require.True(t, p.Validate(content))
	msgs, err := p.Parse(content)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "u1", msgs[1].Metadata["id"])
	assert.NotNil(t, msgs[1].Timestamp)
}

func TestChatGPTParser_MissingFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
		seq     int
	}{
		{"missing role", `{"messages":[{"role":"user","content":"a"},{"content":"b"}]}`, "role", 1},
		{"missing content", `{"messages":[{"role":"user"}]}`, "content", 0},
		{"empty role", `{"messages":[{"role":" ","content":"a"}]}`, "role", 0},
		{"mapping missing author", `{"current_node":"x","mapping":{"x":{"message":{"content":{"parts":["a"]}},"parent":null}}}`, "author.role", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&ChatGPTParser{}).Parse([]byte(tt.content))
			var pe *domain.ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.field, pe.Field)
			assert.Equal(t, tt.seq, pe.Seq)
			assert.Equal(t, domain.PlatformChatGPT, pe.Platform)
		})
	}
}

func TestClaudeParser(t *testing.T) {
	p := &ClaudeParser{}
	content := readFixture(t, "claude.json")

	require.True(t, p.Validate(content))
	msgs, err := p.Parse(content)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "human", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, "2024-03-01T10:00:05.123Z", msgs[1].Timestamp)
	assert.Equal(t, "m2", msgs[1].Metadata["uuid"])
	assert.Equal(t, "conv-1", msgs[1].Metadata["conversation_uuid"])
	assert.Equal(t, "Refactoring help", msgs[0].Metadata["conversation_name"])
	assert.Contains(t, msgs[1].Metadata, "files")
}

func TestClaudeParser_MissingSender(t *testing.T) {
	_, err := (&ClaudeParser{}).Parse([]byte(`{"chat_messages":[{"text":"hello"}]}`))
	var pe *domain.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "sender", pe.Field)
}

func TestGeminiParser(t *testing.T) {
	p := &GeminiParser{}
	content := readFixture(t, "gemini.json")

	require.True(t, p.Validate(content))
	msgs, err := p.Parse(content)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "Summarise this\nplease", msgs[0].Content)
	assert.Equal(t, "model", msgs[1].Role)
	assert.Equal(t, "2024-05-02T08:00:03Z", msgs[1].Timestamp)
	assert.Len(t, msgs[1].Metadata["non_text_parts"], 1)
}

func TestGeminiParser_NoTextPart(t *testing.T) {
	_, err := (&GeminiParser{}).Parse([]byte(`{"contents":[{"role":"user","parts":[{"inlineData":{}}]}]}`))
	var pe *domain.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "parts", pe.Field)
	assert.Equal(t, 0, pe.Seq)
}

func TestMistralParser(t *testing.T) {
	p := &MistralParser{}
	content := readFixture(t, "mistral.json")

	require.True(t, p.Validate(content))
	msgs, err := p.Parse(content)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "human", msgs[0].Role)
	assert.Equal(t, "from_ai", msgs[1].Role)
	assert.Equal(t, "mistral-large", msgs[1].Metadata["model"])
	conv, ok := msgs[0].Metadata["conversation"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "lc-42", conv["id"])
}

func TestMistralParser_MissingText(t *testing.T) {
	_, err := (&MistralParser{}).Parse([]byte(`{"conversation":{"messages":[{"from":"human"}]}}`))
	var pe *domain.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "text", pe.Field)
}

func TestValidate_RejectsOtherSchemas(t *testing.T) {
	fixtures := map[domain.Platform]string{
		domain.PlatformChatGPT: "chatgpt_mapping.json",
		domain.PlatformClaude:  "claude.json",
		domain.PlatformGemini:  "gemini.json",
		domain.PlatformMistral: "mistral.json",
	}
	registry := BuildRegistry()

	for owner, file := range fixtures {
		content := readFixture(t, file)
		for _, platform := range registry.Platforms() {
			parser, err := registry.Resolve(platform)
			require.NoError(t, err)
			assert.Equal(t, platform == owner, parser.Validate(content), "%s validating %s", platform, file)
		}
	}

	for _, platform := range registry.Platforms() {
		parser, _ := registry.Resolve(platform)
		assert.False(t, parser.Validate([]byte("not json")), platform)
		assert.False(t, parser.Validate([]byte(`[1,2,3]`)), platform)
	}
}

func TestFingerprint_OwnerScoresHighest(t *testing.T) {
	fixtures := map[domain.Platform]string{
		domain.PlatformChatGPT: "chatgpt_mapping.json",
		domain.PlatformClaude:  "claude.json",
		domain.PlatformGemini:  "gemini.json",
		domain.PlatformMistral: "mistral.json",
	}
	registry := BuildRegistry()

	for owner, file := range fixtures {
		content := readFixture(t, file)
		ownerParser, _ := registry.Resolve(owner)
		ownerScore := ownerParser.(interface{ Fingerprint([]byte) float64 }).Fingerprint(content)
		assert.GreaterOrEqual(t, ownerScore, 0.5, owner)
		assert.LessOrEqual(t, ownerScore, 1.0, owner)

		for _, platform := range registry.Platforms() {
			if platform == owner {
				continue
			}
			other, _ := registry.Resolve(platform)
			otherScore := other.(interface{ Fingerprint([]byte) float64 }).Fingerprint(content)
			assert.Less(t, otherScore, ownerScore, "%s vs %s on %s", platform, owner, file)
		}
	}
}

type messageParser interface {
	Parse(content []byte) ([]domain.IntermediateMessage, error)
}

func TestParsers_KeepExportLevelFields(t *testing.T) {
	tests := []struct {
		name    string
		parser  messageParser
		content string
		key     string
		want    map[string]any
	}{
		{
			name:    "chatgpt simple",
			parser:  &ChatGPTParser{},
			content: `{"title":"Greeting","model":"gpt-4o","id":"c1","messages":[{"role":"user","content":"hi"}]}`,
			key:     "conversation",
			want:    map[string]any{"title": "Greeting", "model": "gpt-4o", "id": "c1"},
		},
		{
			name:   "chatgpt mapping",
			parser: &ChatGPTParser{},
			content: `{"title":"T","conversation_id":"conv-9","create_time":1700000000.5,"current_node":"b","mapping":{
				"a":{"message":null,"parent":null},
				"b":{"message":{"author":{"role":"user"},"content":{"parts":["hi"]}},"parent":"a"}}}`,
			key:  "conversation",
			want: map[string]any{"title": "T", "conversation_id": "conv-9"},
		},
		{
			name:    "gemini",
			parser:  &GeminiParser{},
			content: `{"model":"gemini-1.5-pro","title":"Notes","contents":[{"role":"user","parts":[{"text":"hi"}]}]}`,
			key:     "conversation",
			want:    map[string]any{"model": "gemini-1.5-pro", "title": "Notes"},
		},
		{
			name:    "claude",
			parser:  &ClaudeParser{},
			content: `{"uuid":"u","name":"n","created_at":"2024-03-01T10:00:00Z","account":{"uuid":"acc"},"chat_messages":[{"sender":"human","text":"hi"}]}`,
			key:     "conversation",
			want:    map[string]any{"uuid": "u", "name": "n", "created_at": "2024-03-01T10:00:00Z", "account": map[string]any{"uuid": "acc"}},
		},
		{
			name:    "mistral",
			parser:  &MistralParser{},
			content: `{"export_version":"2","conversation":{"messages":[{"from":"human","text":"hi"}]}}`,
			key:     "export",
			want:    map[string]any{"export_version": "2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := tt.parser.Parse([]byte(tt.content))
			require.NoError(t, err)
			require.NotEmpty(t, msgs)

			got, ok := msgs[0].Metadata[tt.key].(map[string]any)
			require.True(t, ok, "metadata: %v", msgs[0].Metadata)
			for k, v := range tt.want {
				assert.Equal(t, v, got[k], k)
			}
		})
	}
}

func TestChatGPTParser_MappingKeepsCreateTime(t *testing.T) {
	content := []byte(`{"create_time":1700000000.5,"mapping":{
		"a":{"message":{"author":{"role":"user"},"content":{"parts":["hi"]}},"parent":null}}}`)

	msgs, err := (&ChatGPTParser{}).Parse(content)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	conv := msgs[0].Metadata["conversation"].(map[string]any)
	assert.Equal(t, 1700000000.5, numberValue(conv["create_time"]))
	assert.NotContains(t, conv, "mapping")
}

func TestParsers_EmptyMessageArray(t *testing.T) {
	empty := map[domain.Platform]string{
		domain.PlatformChatGPT: `{"messages":[]}`,
		domain.PlatformClaude:  `{"chat_messages":[]}`,
		domain.PlatformGemini:  `{"contents":[]}`,
		domain.PlatformMistral: `{"conversation":{"messages":[]}}`,
	}
	registry := BuildRegistry()

	for platform, content := range empty {
		parser, err := registry.Resolve(platform)
		require.NoError(t, err)
		assert.True(t, parser.Validate([]byte(content)), platform)

		msgs, err := parser.Parse([]byte(content))
		require.NoError(t, err, platform)
		assert.Empty(t, msgs, platform)
	}
}
