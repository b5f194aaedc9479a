package domain

import (
	"strings"
	"time"
)

// Role is the canonical speaker role of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the three canonical roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// IntermediateMessage is a message as a platform parser sees it:
// raw role vocabulary, raw timestamp value, and every field the
// parser did not map kept in Metadata.
type IntermediateMessage struct {
	// Seq is the position in the source export (0-based)
	Seq int `json:"seq"`

	// Role is the platform's own role label (e.g. "human", "model")
	Role string `json:"role"`

	Content string `json:"content"`

	// Timestamp is the raw value: string, float64, int64, json.Number or nil
	Timestamp any `json:"timestamp,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// CanonicalMessage is the platform-independent representation of one chat turn
type CanonicalMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Timestamp is UTC, or nil when the source carried no time information
	Timestamp *time.Time `json:"timestamp,omitempty"`

	SourceMetadata map[string]any `json:"source_metadata,omitempty"`
}

// MessageAnalysis holds cheap lexical statistics for a message
type MessageAnalysis struct {
	WordCount   int  `json:"word_count"`
	CharCount   int  `json:"char_count"`
	HasQuestion bool `json:"has_question"`
}

// Analyze computes lexical statistics for content.
func Analyze(content string) MessageAnalysis {
	return MessageAnalysis{
		WordCount:   len(strings.Fields(content)),
		CharCount:   len([]rune(content)),
		HasQuestion: strings.Contains(content, "?"),
	}
}
