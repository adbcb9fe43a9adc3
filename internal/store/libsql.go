package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/nexus/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/nexus.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows, so QueryRow is used for all of them.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	_, err := runMigrations(ctx, s.db)
	return err
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Events ---

func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	if event.RunID == "" || event.Topic == "" || event.Type == "" {
		return schema.NewError(schema.ErrCodeValidation, "event requires run_id, topic and type")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// insertEvent assigns the next per-run sequence and inserts the row.
func insertEvent(ctx context.Context, tx *sql.Tx, event *Event) error {
	var seq int64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE run_id = ?`, event.RunID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq
	event.Timestamp = timeOrNow(event.Timestamp)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (run_id, topic, event_type, node_id, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.RunID, event.Topic, event.Type, nullStr(event.NodeID), nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

const eventColumns = `id, run_id, topic, event_type, node_id, payload, timestamp, sequence`

func (s *LibSQLStore) GetEvents(ctx context.Context, runID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE run_id = ? AND sequence > ? ORDER BY sequence ASC`,
		runID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListEvents returns events matching filter, newest first.
func (s *LibSQLStore) ListEvents(ctx context.Context, filter EventFilter) ([]*Event, error) {
	var where []string
	var args []any

	if filter.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if filter.Topic != "" {
		where = append(where, "topic = ?")
		args = append(args, filter.Topic)
	}
	if filter.Type != "" {
		where = append(where, "event_type = ?")
		args = append(args, filter.Type)
	}
	if filter.NodeID != "" {
		where = append(where, "node_id = ?")
		args = append(args, filter.NodeID)
	}
	if filter.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, *filter.Since)
	}
	if filter.AfterID > 0 {
		where = append(where, "id > ?")
		args = append(args, filter.AfterID)
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// PruneEvents deletes events older than before and returns the number removed.
func (s *LibSQLStore) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE timestamp < ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e := &Event{}
		var nodeID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.Topic, &e.Type, &nodeID, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.NodeID = nodeID.String
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Insights ---

func (s *LibSQLStore) SaveInsight(ctx context.Context, in *schema.Insight) error {
	if in.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "insight id is required")
	}
	in.CreatedAt = timeOrNow(in.CreatedAt)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO insights (id, snapshot, summary, lang, fallback, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.Snapshot, in.Summary, string(langOrDefault(in.Lang)), in.Fallback, in.Source, in.CreatedAt,
	)
	if isUniqueViolation(err) {
		return schema.NewErrorf(schema.ErrCodeConflict, "insight %q already exists", in.ID)
	}
	return err
}

// ListInsights returns insights newest first.
func (s *LibSQLStore) ListInsights(ctx context.Context, filter InsightFilter) ([]*schema.Insight, error) {
	var where []string
	var args []any
	if filter.Lang != "" {
		where = append(where, "lang = ?")
		args = append(args, string(filter.Lang))
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, snapshot, summary, lang, fallback, source, created_at FROM insights`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*schema.Insight
	for rows.Next() {
		in := &schema.Insight{}
		var lang string
		if err := rows.Scan(&in.ID, &in.Snapshot, &in.Summary, &lang, &in.Fallback, &in.Source, &in.CreatedAt); err != nil {
			return nil, err
		}
		in.Lang = schema.Lang(lang)
		out = append(out, in)
	}
	return out, rows.Err()
}

// --- Agent configs ---

func (s *LibSQLStore) SaveAgentConfig(ctx context.Context, cfg *schema.StoredAgentConfig) error {
	if cfg.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "agent config id is required")
	}
	body, err := json.Marshal(cfg.Config)
	if err != nil {
		return fmt.Errorf("marshal agent config: %w", err)
	}
	cfg.CreatedAt = timeOrNow(cfg.CreatedAt)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_configs (id, name, description, lang, config, mock, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID, cfg.Config.Name, cfg.Description, string(langOrDefault(cfg.Lang)), string(body), cfg.Mock, cfg.CreatedAt,
	)
	if isUniqueViolation(err) {
		return schema.NewErrorf(schema.ErrCodeConflict, "agent config %q already exists", cfg.ID)
	}
	return err
}

func (s *LibSQLStore) GetAgentConfig(ctx context.Context, id string) (*schema.StoredAgentConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, description, lang, config, mock, created_at FROM agent_configs WHERE id = ?`, id)
	cfg, err := scanAgentConfig(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("agent config", id)
	}
	return cfg, err
}

// ListAgentConfigs returns stored configs newest first.
func (s *LibSQLStore) ListAgentConfigs(ctx context.Context, filter AgentConfigFilter) ([]*schema.StoredAgentConfig, error) {
	var where []string
	var args []any
	if filter.Name != "" {
		where = append(where, "name = ?")
		args = append(args, filter.Name)
	}
	if filter.Mock != nil {
		where = append(where, "mock = ?")
		args = append(args, *filter.Mock)
	}

	query := `SELECT id, description, lang, config, mock, created_at FROM agent_configs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*schema.StoredAgentConfig
	for rows.Next() {
		cfg, err := scanAgentConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgentConfig(r rowScanner) (*schema.StoredAgentConfig, error) {
	cfg := &schema.StoredAgentConfig{}
	var lang, body string
	if err := r.Scan(&cfg.ID, &cfg.Description, &lang, &body, &cfg.Mock, &cfg.CreatedAt); err != nil {
		return nil, err
	}
	cfg.Lang = schema.Lang(lang)
	if err := json.Unmarshal([]byte(body), &cfg.Config); err != nil {
		return nil, fmt.Errorf("unmarshal agent config %s: %w", cfg.ID, err)
	}
	return cfg, nil
}

// --- Secrets ---

func (s *LibSQLStore) StoreSecret(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO secrets (key, value, created_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, rotated_at=CURRENT_TIMESTAMP`,
		key, value,
	)
	return err
}

func (s *LibSQLStore) GetSecret(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM secrets WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("secret", key)
	}
	return value, err
}

func (s *LibSQLStore) DeleteSecret(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE key = ?`, key)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "secret", key)
}

func (s *LibSQLStore) ListSecrets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM secrets ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.NexusError {
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

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func langOrDefault(l schema.Lang) schema.Lang {
	if l == "" {
		return schema.LangEN
	}
	return l
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

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}
