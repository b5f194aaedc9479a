// Package sqlite stores chat records in a local SQLite file, for single-user
// installs that run without PostgreSQL.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	sqlitedrv "modernc.org/sqlite"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ChatRecordStore = (*Store)(nil)

// SQLite's lower() only folds ASCII. fold applies the same Unicode folding
// the chat service uses when it filters search hits.
func init() {
	sqlitedrv.MustRegisterDeterministicScalarFunction("fold", 1, func(_ *sqlitedrv.FunctionContext, args []driver.Value) (driver.Value, error) {
		switch v := args[0].(type) {
		case string:
			return strings.ToLower(v), nil
		case []byte:
			return strings.ToLower(string(v)), nil
		default:
			return v, nil
		}
	})
}

const schema = `
	CREATE TABLE IF NOT EXISTS chat_records (
		id             TEXT    NOT NULL,
		version_number INTEGER NOT NULL,
		user_id        TEXT    NOT NULL,
		platform       TEXT    NOT NULL,
		fingerprint    TEXT    NOT NULL,
		attachments    TEXT    NOT NULL DEFAULT '[]',
		warnings       TEXT    NOT NULL DEFAULT '[]',
		imported_at    REAL    NOT NULL,
		PRIMARY KEY (id, version_number)
	);

	CREATE INDEX IF NOT EXISTS idx_chat_records_fingerprint ON chat_records (fingerprint, version_number);
	CREATE INDEX IF NOT EXISTS idx_chat_records_user ON chat_records (user_id, imported_at);

	CREATE TABLE IF NOT EXISTS chat_messages (
		record_id       TEXT    NOT NULL,
		version_number  INTEGER NOT NULL,
		seq             INTEGER NOT NULL,
		role            TEXT    NOT NULL,
		content         TEXT    NOT NULL,
		timestamp       REAL,
		source_metadata TEXT    NOT NULL DEFAULT '{}',
		PRIMARY KEY (record_id, version_number, seq),
		FOREIGN KEY (record_id, version_number) REFERENCES chat_records (id, version_number) ON DELETE CASCADE
	);
`

const recordColumns = `id, version_number, user_id, platform, fingerprint, attachments, warnings, imported_at`

// latestVersions keeps the newest version of each record of user ?1,
// optionally restricted to platform ?2
const latestVersions = `
	SELECT ` + recordColumns + `
	FROM chat_records r
	WHERE user_id = ?1 AND (?2 = '' OR platform = ?2)
	  AND version_number = (SELECT MAX(version_number) FROM chat_records WHERE id = r.id)
`

// Store implements driven.ChatRecordStore on SQLite
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; an in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save appends a record version and its messages in one transaction.
func (s *Store) Save(ctx context.Context, record *domain.ChatRecord) error {
	attachments, err := json.Marshal(nonNil(record.Attachments))
	if err != nil {
		return fmt.Errorf("encode attachments: %w", err)
	}
	warnings, err := json.Marshal(nonNil(record.Warnings))
	if err != nil {
		return fmt.Errorf("encode warnings: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO chat_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id, version_number) DO NOTHING
	`, record.ID, record.VersionNumber, record.UserID, string(record.Platform), record.Fingerprint,
		string(attachments), string(warnings), toUnix(record.ImportedAt))
	if err != nil {
		return fmt.Errorf("save chat record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: version %d of %s already stored", domain.ErrStorage, record.VersionNumber, record.ID)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chat_messages (record_id, version_number, seq, role, content, timestamp, source_metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare messages: %w", err)
	}
	defer stmt.Close()

	for i, msg := range record.Messages {
		meta, err := json.Marshal(msg.SourceMetadata)
		if err != nil {
			return fmt.Errorf("encode metadata of message %d: %w", i, err)
		}
		var ts sql.NullFloat64
		if msg.Timestamp != nil {
			ts = sql.NullFloat64{Float64: toUnix(*msg.Timestamp), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, record.ID, record.VersionNumber, i, string(msg.Role), msg.Content, ts, string(meta)); err != nil {
			return fmt.Errorf("save message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chat record: %w", err)
	}
	return nil
}

// FindByFingerprint returns the latest version for a fingerprint
func (s *Store) FindByFingerprint(ctx context.Context, fingerprint string) (*domain.ChatRecord, error) {
	records, err := s.query(ctx, `
		SELECT `+recordColumns+` FROM chat_records
		WHERE fingerprint = ?
		ORDER BY version_number DESC
		LIMIT 1
	`, fingerprint)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

// Get returns the latest version of a record
func (s *Store) Get(ctx context.Context, id string) (*domain.ChatRecord, error) {
	records, err := s.query(ctx, `
		SELECT `+recordColumns+` FROM chat_records
		WHERE id = ?
		ORDER BY version_number DESC
		LIMIT 1
	`, id)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domain.ErrNotFound
	}
	return records[0], nil
}

// ListVersions returns every version of a record, oldest first
func (s *Store) ListVersions(ctx context.Context, id string) ([]*domain.ChatRecord, error) {
	return s.query(ctx, `
		SELECT `+recordColumns+` FROM chat_records
		WHERE id = ?
		ORDER BY version_number ASC
	`, id)
}

// ListByUser returns one page of a user's latest versions, newest import first
func (s *Store) ListByUser(ctx context.Context, userID string, opts domain.ListOptions) ([]*domain.ChatRecord, int, error) {
	opts = opts.Normalize()
	platform := string(opts.Platform)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM (`+latestVersions+`)`, userID, platform).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count chat records: %w", err)
	}

	records, err := s.query(ctx, latestVersions+`
		ORDER BY imported_at DESC, id
		LIMIT ?3 OFFSET ?4
	`, userID, platform, opts.PerPage, opts.Offset())
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// SearchMessages returns latest versions with a message containing keyword
func (s *Store) SearchMessages(ctx context.Context, userID, keyword string, limit int) ([]*domain.ChatRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.query(ctx, latestVersions+`
		AND EXISTS (
			SELECT 1 FROM chat_messages m
			WHERE m.record_id = r.id AND m.version_number = r.version_number
			  AND instr(fold(m.content), fold(?3)) > 0
		)
		ORDER BY imported_at DESC, id
		LIMIT ?4
	`, userID, "", keyword, limit)
}

// Ping checks if the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// query loads records and then their messages.
func (s *Store) query(ctx context.Context, query string, args ...any) ([]*domain.ChatRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chat records: %w", err)
	}

	var records []*domain.ChatRecord
	for rows.Next() {
		var (
			r                     domain.ChatRecord
			platform              string
			attachments, warnings string
			importedAt            float64
		)
		if err := rows.Scan(&r.ID, &r.VersionNumber, &r.UserID, &platform, &r.Fingerprint, &attachments, &warnings, &importedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan chat record: %w", err)
		}
		r.Platform = domain.Platform(platform)
		r.ImportedAt = fromUnix(importedAt)
		if err := json.Unmarshal([]byte(attachments), &r.Attachments); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode attachments of %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(warnings), &r.Warnings); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode warnings of %s: %w", r.ID, err)
		}
		records = append(records, &r)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	// Messages are read after the cursor is closed; the pool has one connection.
	for _, r := range records {
		if err := s.loadMessages(ctx, r); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *Store) loadMessages(ctx context.Context, r *domain.ChatRecord) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, timestamp, source_metadata
		FROM chat_messages
		WHERE record_id = ? AND version_number = ?
		ORDER BY seq
	`, r.ID, r.VersionNumber)
	if err != nil {
		return fmt.Errorf("query messages of %s: %w", r.ID, err)
	}
	defer rows.Close()

	r.Messages = []domain.CanonicalMessage{}
	for rows.Next() {
		var (
			msg  domain.CanonicalMessage
			role string
			ts   sql.NullFloat64
			meta string
		)
		if err := rows.Scan(&role, &msg.Content, &ts, &meta); err != nil {
			return fmt.Errorf("scan message of %s: %w", r.ID, err)
		}
		msg.Role = domain.Role(role)
		if ts.Valid {
			t := fromUnix(ts.Float64)
			msg.Timestamp = &t
		}
		if err := json.Unmarshal([]byte(meta), &msg.SourceMetadata); err != nil {
			return fmt.Errorf("decode metadata of %s: %w", r.ID, err)
		}
		r.Messages = append(r.Messages, msg)
	}
	return rows.Err()
}

// Times are stored as fractional unix seconds, microsecond precision.
func toUnix(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

func fromUnix(f float64) time.Time {
	return time.UnixMicro(int64(math.Round(f * 1e6))).UTC()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
