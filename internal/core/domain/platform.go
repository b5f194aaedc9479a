package domain

import "strings"

// Platform identifies the AI chat service an export came from
type Platform string

const (
	PlatformChatGPT Platform = "chatgpt"
	PlatformClaude  Platform = "claude"
	PlatformGemini  Platform = "gemini"
	PlatformMistral Platform = "mistral"
	PlatformUnknown Platform = "unknown"
)

// ParsePlatform converts user input into a Platform.
// Empty input yields an empty Platform (not declared).
func ParsePlatform(s string) Platform {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	return Platform(s)
}

// IsDeclared reports whether the platform carries a usable value.
func (p Platform) IsDeclared() bool {
	return p != "" && p != PlatformUnknown
}

func (p Platform) String() string {
	return string(p)
}

// DetectionMethod records how a DetectionResult was produced
type DetectionMethod string

const (
	DetectionDeclared   DetectionMethod = "declared"
	DetectionStructural DetectionMethod = "structural"
	DetectionText       DetectionMethod = "text"
	DetectionNone       DetectionMethod = "none"
)

// DetectionResult is the outcome of format detection.
// It is never persisted; it only routes content to a parser.
type DetectionResult struct {
	Platform   Platform        `json:"platform"`
	Confidence float64         `json:"confidence"`
	Method     DetectionMethod `json:"method"`

	// Suggested is the best below-threshold guess, if any.
	// Platform stays unknown when only a suggestion exists.
	Suggested Platform `json:"suggested,omitempty"`

	// SuggestedConfidence is the score of Suggested
	SuggestedConfidence float64 `json:"suggested_confidence,omitempty"`
}

// Unknown returns a result for content no platform matched.
func Unknown() DetectionResult {
	return DetectionResult{Platform: PlatformUnknown, Confidence: 0, Method: DetectionNone}
}

// Matched reports whether detection routed the content to a platform.
func (r DetectionResult) Matched() bool {
	return r.Platform.IsDeclared()
}
