package driving

import (
	"context"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
)

// ChatService handles queries over imported chat records
type ChatService interface {
	// Get returns the latest version of a record
	Get(ctx context.Context, id string) (*domain.ChatRecord, error)

	// History returns every stored version of a record, oldest first
	History(ctx context.Context, id string) ([]*domain.ChatRecord, error)

	// List returns one page of a user's records
	List(ctx context.Context, userID string, opts domain.ListOptions) (*domain.ChatPage, error)

	// Search finds messages containing a keyword (case-insensitive)
	Search(ctx context.Context, userID, keyword string, limit int) ([]domain.MessageHit, error)

	// Stats aggregates statistics over a user's records
	Stats(ctx context.Context, userID string) (*domain.ConversationStats, error)
}
