package services

import (
	"context"
	"strings"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driving"
)

// Ensure chatService implements ChatService
var _ driving.ChatService = (*chatService)(nil)

// DefaultSearchLimit caps search hits when the caller passes no limit
const DefaultSearchLimit = 50

// statsPageSize is the page size used to walk a user's records for Stats
const statsPageSize = 100

// chatService implements the ChatService interface
type chatService struct {
	store driven.ChatRecordStore
}

// NewChatService creates a new ChatService
func NewChatService(store driven.ChatRecordStore) driving.ChatService {
	return &chatService{store: store}
}

// Get returns the latest version of a record
func (s *chatService) Get(ctx context.Context, id string) (*domain.ChatRecord, error) {
	return s.store.Get(ctx, id)
}

// History returns every version of a record, oldest first
func (s *chatService) History(ctx context.Context, id string) ([]*domain.ChatRecord, error) {
	versions, err := s.store.ListVersions(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, domain.ErrNotFound
	}
	return versions, nil
}

// List returns one page of a user's records, newest import first
func (s *chatService) List(ctx context.Context, userID string, opts domain.ListOptions) (*domain.ChatPage, error) {
	opts = opts.Normalize()
	records, total, err := s.store.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, err
	}

	chats := make([]domain.ChatSummary, 0, len(records))
	for _, r := range records {
		chats = append(chats, r.Summarize())
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + opts.PerPage - 1) / opts.PerPage
	}

	return &domain.ChatPage{
		Chats:      chats,
		Total:      total,
		Page:       opts.Page,
		PerPage:    opts.PerPage,
		TotalPages: totalPages,
	}, nil
}

// Search finds messages containing keyword, case-insensitively
func (s *chatService) Search(ctx context.Context, userID, keyword string, limit int) ([]domain.MessageHit, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, domain.ErrInvalidInput
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	records, err := s.store.SearchMessages(ctx, userID, keyword, limit)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(keyword)
	hits := make([]domain.MessageHit, 0)
	for _, r := range records {
		for i, msg := range r.Messages {
			if !strings.Contains(strings.ToLower(msg.Content), needle) {
				continue
			}
			hits = append(hits, domain.MessageHit{
				ChatID:   r.ID,
				Platform: r.Platform,
				Index:    i,
				Message:  msg,
			})
			if len(hits) >= limit {
				return hits, nil
			}
		}
	}
	return hits, nil
}

// Stats aggregates statistics over the latest version of each record
func (s *chatService) Stats(ctx context.Context, userID string) (*domain.ConversationStats, error) {
	stats := &domain.ConversationStats{
		RoleCounts:     make(map[domain.Role]int),
		PlatformCounts: make(map[domain.Platform]int),
		MediaStatuses:  make(map[domain.MediaStatus]int),
	}

	words := 0
	for page := 1; ; page++ {
		records, total, err := s.store.ListByUser(ctx, userID, domain.ListOptions{Page: page, PerPage: statsPageSize})
		if err != nil {
			return nil, err
		}

		for _, r := range records {
			stats.RecordCount++
			stats.PlatformCounts[r.Platform]++
			for _, msg := range r.Messages {
				stats.MessageCount++
				stats.RoleCounts[msg.Role]++

				analysis := domain.Analyze(msg.Content)
				words += analysis.WordCount
				if analysis.HasQuestion {
					stats.QuestionCount++
				}
			}
			for _, a := range r.Attachments {
				if a.ProcessedContent != nil {
					stats.MediaStatuses[a.ProcessedContent.Status]++
				}
			}
		}

		if len(records) == 0 || page*statsPageSize >= total {
			break
		}
	}

	if stats.MessageCount > 0 {
		stats.AvgWordCount = float64(words) / float64(stats.MessageCount)
	}
	return stats, nil
}
