package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/outreach-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS entities (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	display_name TEXT NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS aliases (
	alias_type   TEXT NOT NULL,
	alias_value  TEXT NOT NULL,
	canonical_id TEXT NOT NULL REFERENCES entities(id),
	source       TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (alias_type, alias_value)
);

CREATE TABLE IF NOT EXISTS provider_records (
	id           TEXT PRIMARY KEY,
	canonical_id TEXT NOT NULL,
	provider_id  TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'ok',
	payload      TEXT NOT NULL,
	fetched_at   DATETIME NOT NULL,
	expires_at   DATETIME
);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	identity     TEXT NOT NULL,
	canonical_id TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'queued',
	summary      TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(kind);
CREATE INDEX IF NOT EXISTS idx_aliases_canonical ON aliases(canonical_id);
CREATE INDEX IF NOT EXISTS idx_records_key ON provider_records(canonical_id, provider_id);
CREATE INDEX IF NOT EXISTS idx_records_expires ON provider_records(expires_at);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_canonical ON runs(canonical_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateEntity(ctx context.Context, kind model.EntityKind, displayName string) (*model.CanonicalEntity, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entities (id, kind, display_name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(kind), displayName, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert entity")
	}

	return &model.CanonicalEntity{
		ID:          id,
		Kind:        kind,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (s *SQLiteStore) GetEntity(ctx context.Context, id string) (*model.CanonicalEntity, error) {
	var e model.CanonicalEntity
	err := s.db.QueryRowContext(ctx,
		`SELECT id, kind, display_name, created_at, updated_at FROM entities WHERE id = ?`,
		id,
	).Scan(&e.ID, &e.Kind, &e.DisplayName, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get entity %s", id)
	}
	return &e, nil
}

func (s *SQLiteStore) ListEntities(ctx context.Context, filter EntityFilter) ([]model.CanonicalEntity, error) {
	query := `SELECT id, kind, display_name, created_at, updated_at FROM entities WHERE 1=1`
	var args []any

	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entities")
	}
	defer rows.Close()

	var entities []model.CanonicalEntity
	for rows.Next() {
		var e model.CanonicalEntity
		if err := rows.Scan(&e.ID, &e.Kind, &e.DisplayName, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity")
		}
		entities = append(entities, e)
	}
	return entities, eris.Wrap(rows.Err(), "sqlite: list entities iterate")
}

func (s *SQLiteStore) RegisterAlias(ctx context.Context, alias model.Alias) error {
	existing, err := s.ResolveAlias(ctx, alias.Type, alias.Value)
	if err != nil {
		return err
	}
	if existing == alias.CanonicalID {
		return nil // already registered, idempotent
	}
	if existing != "" {
		return ErrAliasConflict
	}

	createdAt := alias.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO aliases (alias_type, alias_value, canonical_id, source, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(alias.Type), alias.Value, alias.CanonicalID, alias.Source, createdAt,
	)
	return eris.Wrapf(err, "sqlite: register alias %s/%s", alias.Type, alias.Value)
}

func (s *SQLiteStore) ResolveAlias(ctx context.Context, aliasType model.AliasType, value string) (string, error) {
	var canonicalID string
	err := s.db.QueryRowContext(ctx,
		`SELECT canonical_id FROM aliases WHERE alias_type = ? AND alias_value = ?`,
		string(aliasType), value,
	).Scan(&canonicalID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: resolve alias %s/%s", aliasType, value)
	}
	return canonicalID, nil
}

func (s *SQLiteStore) ListAliases(ctx context.Context, canonicalID string) ([]model.Alias, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT alias_type, alias_value, canonical_id, source, created_at FROM aliases
		 WHERE canonical_id = ? ORDER BY created_at`,
		canonicalID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list aliases")
	}
	defer rows.Close()

	var aliases []model.Alias
	for rows.Next() {
		var a model.Alias
		var source sql.NullString
		if err := rows.Scan(&a.Type, &a.Value, &a.CanonicalID, &source, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alias")
		}
		a.Source = source.String
		aliases = append(aliases, a)
	}
	return aliases, eris.Wrap(rows.Err(), "sqlite: list aliases iterate")
}

func (s *SQLiteStore) GetRecord(ctx context.Context, canonicalID, providerID string) (*model.CachedRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT canonical_id, provider_id, status, payload, fetched_at, expires_at FROM provider_records
		 WHERE canonical_id = ? AND provider_id = ?
		 ORDER BY fetched_at DESC LIMIT 1`,
		canonicalID, providerID,
	)

	var rec model.CachedRecord
	var payload string
	var expiresAt sql.NullTime
	err := row.Scan(&rec.CanonicalID, &rec.ProviderID, &rec.Status, &payload, &rec.FetchedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get record %s/%s", canonicalID, providerID)
	}
	rec.Payload = json.RawMessage(payload)
	if expiresAt.Valid {
		t := expiresAt.Time
		rec.ExpiresAt = &t
	}
	return &rec, nil
}

func (s *SQLiteStore) PutRecord(ctx context.Context, rec model.CachedRecord) error {
	id := uuid.New().String()
	var expiresAt any
	if rec.ExpiresAt != nil {
		expiresAt = *rec.ExpiresAt
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO provider_records (id, canonical_id, provider_id, status, payload, fetched_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, rec.CanonicalID, rec.ProviderID, string(rec.Status), string(rec.Payload), rec.FetchedAt, expiresAt,
	)
	return eris.Wrapf(err, "sqlite: put record %s/%s", rec.CanonicalID, rec.ProviderID)
}

func (s *SQLiteStore) DeleteExpiredRecords(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM provider_records WHERE expires_at IS NULL OR expires_at <= datetime('now')`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired records")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, identity model.Identity, canonicalID string) (*model.ResearchRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	identityJSON, err := json.Marshal(identity)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal identity")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, identity, canonical_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(identityJSON), canonicalID, string(model.RunQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.ResearchRun{
		ID:          id,
		Identity:    identity,
		CanonicalID: canonicalID,
		Status:      model.RunQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, summary = ?, updated_at = ? WHERE id = ?`,
		string(status), string(summaryJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.ResearchRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, identity, canonical_id, status, summary, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.ResearchRun, error) {
	query := `SELECT id, identity, canonical_id, status, summary, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.CanonicalID != "" {
		query += ` AND canonical_id = ?`
		args = append(args, filter.CanonicalID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.ResearchRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.ResearchRun, error) {
	var r model.ResearchRun
	var identityJSON string
	var summaryJSON sql.NullString

	err := row.Scan(&r.ID, &identityJSON, &r.CanonicalID, &r.Status, &summaryJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(identityJSON), &r.Identity); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal identity")
	}
	if summaryJSON.Valid {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), r.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	return &r, nil
}
