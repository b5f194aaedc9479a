package media

import (
	"regexp"
	"strings"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
)

// dialogueMarker matches speaker labels such as "User:", "ChatGPT:" or "Q:".
// Single-letter and short labels are case-sensitive to limit false positives.
var dialogueMarker = regexp.MustCompile(`(?:^|\s)((?i:user|human|assistant|chatgpt|claude|gemini|bard|mistral|le chat|question|answer)|AI|Me|You|Q|A)\s*:`)

var userLabels = map[string]bool{
	"user":     true,
	"human":    true,
	"me":       true,
	"q":        true,
	"question": true,
	"you":      true,
}

// SpeakerRole maps a speaker label to a canonical role.
// Anything that is not a user label is treated as the assistant.
func SpeakerRole(label string) domain.Role {
	l := strings.ToLower(strings.TrimSpace(label))
	switch {
	case userLabels[l]:
		return domain.RoleUser
	case l == "system":
		return domain.RoleSystem
	}
	return domain.RoleAssistant
}

// Turn is a span of text attributed to one speaker
type Turn struct {
	Speaker string
	Text    string
}

// ExtractTurns splits text on dialogue markers. Text before the first
// marker is returned as preamble. Returns nil turns when no marker is found.
func ExtractTurns(text string) (turns []Turn, preamble string) {
	matches := dialogueMarker.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil, strings.TrimSpace(text)
	}

	preamble = strings.TrimSpace(text[:matches[0][0]])
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		body := strings.TrimSpace(text[m[1]:end])
		if body == "" {
			continue
		}
		turns = append(turns, Turn{Speaker: text[m[2]:m[3]], Text: body})
	}
	return turns, preamble
}

// DialogueMessages converts text with dialogue markers into chat turns.
// Returns nil when the text has no markers.
func DialogueMessages(text string) []domain.CanonicalMessage {
	turns, _ := ExtractTurns(text)
	if len(turns) == 0 {
		return nil
	}

	msgs := make([]domain.CanonicalMessage, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, domain.CanonicalMessage{
			Role:    SpeakerRole(t.Speaker),
			Content: t.Text,
			SourceMetadata: map[string]any{
				"speaker_label": t.Speaker,
				"source":        "dialogue_marker",
			},
		})
	}
	return msgs
}
