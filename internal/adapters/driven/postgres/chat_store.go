package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ChatRecordStore = (*ChatRecordStore)(nil)

// uniqueViolation is the SQLSTATE for a duplicate key
const uniqueViolation = "23505"

const recordColumns = `id, version_number, user_id, platform, fingerprint, messages, attachments, warnings, imported_at`

// latestVersions selects the newest version of every record of user $1,
// optionally restricted to platform $2
const latestVersions = `
	SELECT DISTINCT ON (id) ` + recordColumns + `
	FROM chat_records
	WHERE user_id = $1 AND ($2 = '' OR platform = $2)
	ORDER BY id, version_number DESC
`

// ChatRecordStore implements driven.ChatRecordStore using PostgreSQL.
// Versions are append-only rows keyed by (id, version_number).
type ChatRecordStore struct {
	db *DB
}

// NewChatRecordStore creates a new ChatRecordStore
func NewChatRecordStore(db *DB) *ChatRecordStore {
	return &ChatRecordStore{db: db}
}

// Save appends a record version
func (s *ChatRecordStore) Save(ctx context.Context, record *domain.ChatRecord) error {
	messages, attachments, warnings, err := encodeRecord(record)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chat_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		record.ID,
		record.VersionNumber,
		record.UserID,
		string(record.Platform),
		record.Fingerprint,
		messages,
		attachments,
		warnings,
		record.ImportedAt,
	)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: version %d of %s already stored", domain.ErrStorage, record.VersionNumber, record.ID)
	}
	if err != nil {
		return fmt.Errorf("save chat record: %w", err)
	}
	return nil
}

// FindByFingerprint returns the latest version for a fingerprint
func (s *ChatRecordStore) FindByFingerprint(ctx context.Context, fingerprint string) (*domain.ChatRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM chat_records
		WHERE fingerprint = $1
		ORDER BY version_number DESC
		LIMIT 1
	`, fingerprint)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return record, err
}

// Get returns the latest version of a record
func (s *ChatRecordStore) Get(ctx context.Context, id string) (*domain.ChatRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM chat_records
		WHERE id = $1
		ORDER BY version_number DESC
		LIMIT 1
	`, id)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return record, err
}

// ListVersions returns every version of a record, oldest first
func (s *ChatRecordStore) ListVersions(ctx context.Context, id string) ([]*domain.ChatRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM chat_records
		WHERE id = $1
		ORDER BY version_number ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListByUser returns one page of a user's latest versions, newest import first
func (s *ChatRecordStore) ListByUser(ctx context.Context, userID string, opts domain.ListOptions) ([]*domain.ChatRecord, int, error) {
	opts = opts.Normalize()
	platform := string(opts.Platform)

	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM (`+latestVersions+`) latest`, userID, platform).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count chat records: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM (`+latestVersions+`) latest
		ORDER BY imported_at DESC, id
		LIMIT $3 OFFSET $4
	`, userID, platform, opts.PerPage, opts.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list chat records: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// SearchMessages returns latest versions with a message containing keyword
func (s *ChatRecordStore) SearchMessages(ctx context.Context, userID, keyword string, limit int) ([]*domain.ChatRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM (`+latestVersions+`) latest
		WHERE EXISTS (
			SELECT 1 FROM jsonb_array_elements(latest.messages) AS m
			WHERE m->>'content' ILIKE $3 ESCAPE '\'
		)
		ORDER BY imported_at DESC, id
		LIMIT $4
	`, userID, "", "%"+escapeLike(keyword)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search chat records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Ping checks if the database is reachable
func (s *ChatRecordStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*domain.ChatRecord, error) {
	var (
		record                          domain.ChatRecord
		platform                        string
		messages, attachments, warnings []byte
	)
	err := row.Scan(
		&record.ID,
		&record.VersionNumber,
		&record.UserID,
		&platform,
		&record.Fingerprint,
		&messages,
		&attachments,
		&warnings,
		&record.ImportedAt,
	)
	if err != nil {
		return nil, err
	}
	record.Platform = domain.Platform(platform)
	record.ImportedAt = record.ImportedAt.UTC()

	if err := json.Unmarshal(messages, &record.Messages); err != nil {
		return nil, fmt.Errorf("decode messages of %s: %w", record.ID, err)
	}
	if err := json.Unmarshal(attachments, &record.Attachments); err != nil {
		return nil, fmt.Errorf("decode attachments of %s: %w", record.ID, err)
	}
	if err := json.Unmarshal(warnings, &record.Warnings); err != nil {
		return nil, fmt.Errorf("decode warnings of %s: %w", record.ID, err)
	}
	return &record, nil
}

func scanRecords(rows *sql.Rows) ([]*domain.ChatRecord, error) {
	var records []*domain.ChatRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func encodeRecord(record *domain.ChatRecord) (messages, attachments, warnings []byte, err error) {
	if messages, err = json.Marshal(nonNil(record.Messages)); err != nil {
		return nil, nil, nil, fmt.Errorf("encode messages: %w", err)
	}
	if attachments, err = json.Marshal(nonNil(record.Attachments)); err != nil {
		return nil, nil, nil, fmt.Errorf("encode attachments: %w", err)
	}
	if warnings, err = json.Marshal(nonNil(record.Warnings)); err != nil {
		return nil, nil, nil, fmt.Errorf("encode warnings: %w", err)
	}
	return messages, attachments, warnings, nil
}

// nonNil keeps JSON columns as arrays instead of null
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
