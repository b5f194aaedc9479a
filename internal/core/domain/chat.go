package domain

import "time"

// ChatRecord is the canonical, versioned record of one imported conversation.
// A stored (ID, VersionNumber) pair is never overwritten.
type ChatRecord struct {
	ID       string   `json:"id"`
	UserID   string   `json:"user_id"`
	Platform Platform `json:"platform"`

	// Messages are in source sequence order
	Messages    []CanonicalMessage `json:"messages"`
	Attachments []MediaAttachment  `json:"attachments,omitempty"`

	Fingerprint   string    `json:"fingerprint"`
	VersionNumber int       `json:"version_number"`
	ImportedAt    time.Time `json:"imported_at"`

	// Warnings carry isolated media failures
	Warnings []ImportWarning `json:"warnings,omitempty"`
}

// ImportWarning surfaces a non-fatal failure on the returned record
type ImportWarning struct {
	AttachmentID string    `json:"attachment_id"`
	Kind         ErrorKind `json:"kind"`
	Message      string    `json:"message"`
}

// ChatSummary is a lightweight listing entry
type ChatSummary struct {
	ID            string    `json:"id"`
	Platform      Platform  `json:"platform"`
	VersionNumber int       `json:"version_number"`
	MessageCount  int       `json:"message_count"`
	Preview       string    `json:"preview"`
	ImportedAt    time.Time `json:"imported_at"`
}

// Summarize builds a listing entry from a record.
func (r *ChatRecord) Summarize() ChatSummary {
	preview := ""
	if len(r.Messages) > 0 {
		preview = r.Messages[0].Content
		if runes := []rune(preview); len(runes) > 80 {
			preview = string(runes[:80]) + "..."
		}
	}
	return ChatSummary{
		ID:            r.ID,
		Platform:      r.Platform,
		VersionNumber: r.VersionNumber,
		MessageCount:  len(r.Messages),
		Preview:       preview,
		ImportedAt:    r.ImportedAt,
	}
}

// ListOptions filters and paginates a user's records
type ListOptions struct {
	Platform Platform `json:"platform,omitempty"`
	Page     int      `json:"page"`
	PerPage  int      `json:"per_page"`
}

// Normalize applies pagination defaults.
func (o ListOptions) Normalize() ListOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PerPage < 1 {
		o.PerPage = 10
	}
	if o.PerPage > 100 {
		o.PerPage = 100
	}
	return o
}

// Offset returns the number of rows to skip.
func (o ListOptions) Offset() int {
	return (o.Page - 1) * o.PerPage
}

// ChatPage is one page of a user's records
type ChatPage struct {
	Chats      []ChatSummary `json:"chats"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	PerPage    int           `json:"per_page"`
	TotalPages int           `json:"total_pages"`
}

// MessageHit is a keyword search match
type MessageHit struct {
	ChatID   string           `json:"chat_id"`
	Platform Platform         `json:"platform"`
	Index    int              `json:"index"`
	Message  CanonicalMessage `json:"message"`
}

// ConversationStats aggregates a user's latest record versions
type ConversationStats struct {
	RecordCount    int                 `json:"record_count"`
	MessageCount   int                 `json:"message_count"`
	RoleCounts     map[Role]int        `json:"role_counts"`
	PlatformCounts map[Platform]int    `json:"platform_counts"`
	QuestionCount  int                 `json:"question_count"`
	AvgWordCount   float64             `json:"avg_word_count"`
	MediaStatuses  map[MediaStatus]int `json:"media_statuses,omitempty"`
}
