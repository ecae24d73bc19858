package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/caseflow/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Objects ---

func (s *LibSQLStore) PutObject(ctx context.Context, obj *Object) error {
	metadata, err := nullableJSON(obj.Metadata)
	if err != nil {
		return fmt.Errorf("marshal object metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO objects (namespace, key, body, content_type, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(namespace, key) DO UPDATE SET
		   body=excluded.body, content_type=excluded.content_type, metadata=excluded.metadata`,
		obj.Namespace, obj.Key, obj.Body, nullStr(obj.ContentType), metadata, timeOrNow(obj.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) ObjectExists(ctx context.Context, namespace, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM objects WHERE namespace = ? AND key = ?`, namespace, key,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *LibSQLStore) GetObject(ctx context.Context, namespace, key string) (*Object, error) {
	obj := &Object{}
	var contentType, metadata sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT namespace, key, body, content_type, metadata, created_at
		 FROM objects WHERE namespace = ? AND key = ?`, namespace, key,
	).Scan(&obj.Namespace, &obj.Key, &obj.Body, &contentType, &metadata, &obj.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("object", namespace+"/"+key)
	}
	if err != nil {
		return nil, err
	}
	obj.ContentType = contentType.String
	if metadata.Valid && metadata.String != "" {
		_ = json.Unmarshal([]byte(metadata.String), &obj.Metadata)
	}
	return obj, nil
}

// --- Dead letters ---

func (s *LibSQLStore) EnqueueDeadLetter(ctx context.Context, dl *DeadLetter) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dead_letters (id, bucket, form, business_key, process_instance_id, process_definition_id, execution_id, attempts, last_error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		dl.ID, dl.Bucket, dl.Form, dl.BusinessKey,
		dl.ProcessInstanceID, nullStr(dl.ProcessDefinitionID), nullStr(dl.ExecutionID),
		dl.Attempts, nullStr(dl.LastError), timeOrNow(dl.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) ListDeadLetters(ctx context.Context, limit int) ([]*DeadLetter, error) {
	query := `SELECT id, bucket, form, business_key, process_instance_id, process_definition_id, execution_id, attempts, last_error, created_at, last_attempt_at
	 FROM dead_letters ORDER BY created_at ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var letters []*DeadLetter
	for rows.Next() {
		dl := &DeadLetter{}
		var defID, execID, lastError sql.NullString
		var lastAttempt sql.NullTime
		if err := rows.Scan(&dl.ID, &dl.Bucket, &dl.Form, &dl.BusinessKey,
			&dl.ProcessInstanceID, &defID, &execID, &dl.Attempts, &lastError,
			&dl.CreatedAt, &lastAttempt); err != nil {
			return nil, err
		}
		dl.ProcessDefinitionID = defID.String
		dl.ExecutionID = execID.String
		dl.LastError = lastError.String
		if lastAttempt.Valid {
			dl.LastAttemptAt = &lastAttempt.Time
		}
		letters = append(letters, dl)
	}
	return letters, rows.Err()
}

func (s *LibSQLStore) MarkDeadLetterAttempt(ctx context.Context, id string, lastError string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dead_letters SET attempts = attempts + 1, last_error = ?, last_attempt_at = CURRENT_TIMESTAMP
		 WHERE id = ?`, nullStr(lastError), id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "dead_letter", id)
}

func (s *LibSQLStore) DeleteDeadLetter(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dead_letters WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "dead_letter", id)
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableJSON(m map[string]string) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}
