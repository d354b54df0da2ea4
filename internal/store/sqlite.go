package store

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the two durable collections:
// help requests and knowledge base entries.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "helpline.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// QuestionKey normalizes a question for case-insensitive exact matching.
func QuestionKey(question string) string {
	return strings.ToLower(strings.TrimSpace(question))
}

// --- Help Requests ---

// CreateHelpRequest inserts a new pending help request and returns it.
// The row id is generated here; createdAt is the supplied time.
func (s *Store) CreateHelpRequest(callID, callerID, question string, now time.Time) (HelpRequest, error) {
	req := HelpRequest{
		ID:        uuid.New().String(),
		CallID:    callID,
		CallerID:  callerID,
		Question:  question,
		Status:    StatusPending,
		CreatedAt: now.UTC(),
	}
	_, err := s.db.Exec(`
		INSERT INTO help_requests (id, call_id, caller_id, question, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		req.ID, req.CallID, req.CallerID, req.Question, string(req.Status),
		req.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return HelpRequest{}, err
	}
	return req, nil
}

// GetHelpRequest returns the help request with the given id.
func (s *Store) GetHelpRequest(id string) (HelpRequest, error) {
	row := s.db.QueryRow(`
		SELECT id, call_id, caller_id, question, status, created_at, resolved_at, supervisor_answer
		FROM help_requests WHERE id = ?`, id,
	)
	return scanHelpRequest(row)
}

// ListHelpRequests returns help requests ordered by created_at descending.
// An empty status returns all requests; otherwise the list is filtered by
// exact status match.
func (s *Store) ListHelpRequests(status Status) ([]HelpRequest, error) {
	query := `SELECT id, call_id, caller_id, question, status, created_at, resolved_at, supervisor_answer
		FROM help_requests`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []HelpRequest
	for rows.Next() {
		req, err := scanHelpRequest(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, req)
	}
	return results, rows.Err()
}

// ResolveHelpRequest transitions a pending request to resolved, setting the
// supervisor answer and resolution time in the same statement. The WHERE
// clause guards the transition: if the request is missing or no longer
// pending nothing is written and ErrNotPending is returned. Concurrent
// resolve attempts for the same id therefore produce exactly one winner.
func (s *Store) ResolveHelpRequest(id, answer string, now time.Time) (HelpRequest, error) {
	res, err := s.db.Exec(`
		UPDATE help_requests
		SET status = ?, supervisor_answer = ?, resolved_at = ?
		WHERE id = ? AND status = ?`,
		string(StatusResolved), answer, now.UTC().Format(time.RFC3339),
		id, string(StatusPending),
	)
	if err != nil {
		return HelpRequest{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return HelpRequest{}, err
	}
	if n == 0 {
		return HelpRequest{}, ErrNotPending
	}
	return s.GetHelpRequest(id)
}

// ExpireHelpRequests demotes pending requests created strictly before
// cutoff to unresolved, returning how many rows changed. The status guard
// makes the sweep idempotent and keeps it from ever touching a request
// that a concurrent resolve already won.
func (s *Store) ExpireHelpRequests(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`
		UPDATE help_requests
		SET status = ?
		WHERE status = ? AND created_at < ?`,
		string(StatusUnresolved), string(StatusPending),
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHelpRequest(row rowScanner) (HelpRequest, error) {
	var req HelpRequest
	var status, createdAt string
	var resolvedAt, answer sql.NullString
	err := row.Scan(&req.ID, &req.CallID, &req.CallerID, &req.Question, &status, &createdAt, &resolvedAt, &answer)
	if err == sql.ErrNoRows {
		return HelpRequest{}, ErrNotFound
	}
	if err != nil {
		return HelpRequest{}, err
	}
	req.Status = Status(status)
	if req.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return HelpRequest{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if resolvedAt.Valid {
		if req.ResolvedAt, err = time.Parse(time.RFC3339, resolvedAt.String); err != nil {
			return HelpRequest{}, fmt.Errorf("parsing resolved_at: %w", err)
		}
	}
	req.SupervisorAnswer = answer.String
	return req, nil
}

// --- Knowledge Base ---

// UpsertKnowledgeBaseEntry writes the answer for a question, creating the
// entry on first insert and overwriting answer/updated_at on conflict.
// The unique question_key constraint resolves the write in a single
// statement, so two concurrent upserts for the same new question converge
// on one row. The stored question keeps the first writer's casing;
// created_at and id are never changed by later writes.
func (s *Store) UpsertKnowledgeBaseEntry(question, answer string, now time.Time) (KnowledgeBaseEntry, error) {
	key := QuestionKey(question)
	ts := now.UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`
		INSERT INTO knowledge_base (id, question_key, question, answer, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(question_key) DO UPDATE SET answer = excluded.answer, updated_at = excluded.updated_at`,
		uuid.New().String(), key, strings.TrimSpace(question), answer, ts, ts,
	)
	if err != nil {
		return KnowledgeBaseEntry{}, err
	}
	return s.getKnowledgeBaseEntry(key)
}

// LookupAnswer returns the stored answer for a question, matched
// case-insensitively. Returns ErrNotFound on a miss.
func (s *Store) LookupAnswer(question string) (string, error) {
	var answer string
	err := s.db.QueryRow(`SELECT answer FROM knowledge_base WHERE question_key = ?`,
		QuestionKey(question)).Scan(&answer)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return answer, err
}

// ListKnowledgeBaseEntries returns all entries ordered by updated_at descending.
func (s *Store) ListKnowledgeBaseEntries() ([]KnowledgeBaseEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, question, answer, created_at, updated_at
		FROM knowledge_base ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []KnowledgeBaseEntry
	for rows.Next() {
		entry, err := scanKnowledgeBaseEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, entry)
	}
	return results, rows.Err()
}

func (s *Store) getKnowledgeBaseEntry(key string) (KnowledgeBaseEntry, error) {
	row := s.db.QueryRow(`
		SELECT id, question, answer, created_at, updated_at
		FROM knowledge_base WHERE question_key = ?`, key,
	)
	return scanKnowledgeBaseEntry(row)
}

func scanKnowledgeBaseEntry(row rowScanner) (KnowledgeBaseEntry, error) {
	var entry KnowledgeBaseEntry
	var createdAt, updatedAt string
	err := row.Scan(&entry.ID, &entry.Question, &entry.Answer, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return KnowledgeBaseEntry{}, ErrNotFound
	}
	if err != nil {
		return KnowledgeBaseEntry{}, err
	}
	if entry.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return KnowledgeBaseEntry{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if entry.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return KnowledgeBaseEntry{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return entry, nil
}
