package driven

import "context"

// ImportQuota is the hook for guest/billing quota enforcement.
// Returning an error rejects the import before any work starts.
type ImportQuota interface {
	Allow(ctx context.Context, userID string) error
}
