package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/db"
	"github.com/sells-group/outreach-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"resolve_alias":  `SELECT canonical_id FROM aliases WHERE alias_type = $1 AND alias_value = $2`,
	"register_alias": `INSERT INTO aliases (alias_type, alias_value, canonical_id, source, created_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (alias_type, alias_value) DO NOTHING`,
	"get_record":     `SELECT canonical_id, provider_id, status, payload, fetched_at, expires_at FROM provider_records WHERE canonical_id = $1 AND provider_id = $2 ORDER BY fetched_at DESC LIMIT 1`,
	"put_record":     `INSERT INTO provider_records (id, canonical_id, provider_id, status, payload, fetched_at, expires_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"get_run":        `SELECT id, identity, canonical_id, status, summary, created_at, updated_at FROM runs WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// SeedRecords bulk-inserts cache records over COPY. Same append-only
// contract as PutRecord without a round trip per row; the vendor feed
// loader reaches it through Cache.PutBatch.
func (s *PostgresStore) SeedRecords(ctx context.Context, recs []model.CachedRecord) (int64, error) {
	rows := make([][]any, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, []any{
			uuid.New().String(), rec.CanonicalID, rec.ProviderID,
			string(rec.Status), []byte(rec.Payload), rec.FetchedAt, rec.ExpiresAt,
		})
	}
	n, err := db.CopyInto(ctx, s.pool, "provider_records",
		[]string{"id", "canonical_id", "provider_id", "status", "payload", "fetched_at", "expires_at"}, rows)
	return n, eris.Wrap(err, "postgres: seed records")
}

// SeedAliases bulk-registers aliases, first writer wins. A value already
// mapped to another entity is left untouched rather than failing the
// batch; RegisterAlias stays the strict single-row path.
func (s *PostgresStore) SeedAliases(ctx context.Context, aliases []model.Alias) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(aliases))
	for _, a := range aliases {
		createdAt := a.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		rows = append(rows, []any{string(a.Type), a.Value, a.CanonicalID, a.Source, createdAt})
	}
	n, err := db.Upsert(ctx, s.pool, db.UpsertSpec{
		Table:     "aliases",
		Columns:   []string{"alias_type", "alias_value", "canonical_id", "source", "created_at"},
		Keys:      []string{"alias_type", "alias_value"},
		DoNothing: true,
	}, rows)
	return n, eris.Wrap(err, "postgres: seed aliases")
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS entities (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	display_name TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS aliases (
	alias_type   TEXT NOT NULL,
	alias_value  TEXT NOT NULL,
	canonical_id TEXT NOT NULL REFERENCES entities(id),
	source       TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (alias_type, alias_value)
);

CREATE TABLE IF NOT EXISTS provider_records (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	canonical_id TEXT NOT NULL,
	provider_id  TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'ok',
	payload      JSONB NOT NULL,
	fetched_at   TIMESTAMPTZ NOT NULL,
	expires_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	identity     JSONB NOT NULL,
	canonical_id TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'queued',
	summary      JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(kind);
CREATE INDEX IF NOT EXISTS idx_aliases_canonical ON aliases(canonical_id);
CREATE INDEX IF NOT EXISTS idx_records_key ON provider_records(canonical_id, provider_id, fetched_at DESC);
CREATE INDEX IF NOT EXISTS idx_records_expires ON provider_records(expires_at);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_canonical ON runs(canonical_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateEntity(ctx context.Context, kind model.EntityKind, displayName string) (*model.CanonicalEntity, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO entities (id, kind, display_name, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, string(kind), displayName, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert entity")
	}

	return &model.CanonicalEntity{
		ID:          id,
		Kind:        kind,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (s *PostgresStore) GetEntity(ctx context.Context, id string) (*model.CanonicalEntity, error) {
	var e model.CanonicalEntity
	err := s.pool.QueryRow(ctx,
		`SELECT id, kind, display_name, created_at, updated_at FROM entities WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Kind, &e.DisplayName, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get entity %s", id)
	}
	return &e, nil
}

func (s *PostgresStore) ListEntities(ctx context.Context, filter EntityFilter) ([]model.CanonicalEntity, error) {
	query := `SELECT id, kind, display_name, created_at, updated_at FROM entities WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Kind != "" {
		query += fmt.Sprintf(` AND kind = $%d`, argIdx)
		args = append(args, string(filter.Kind))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entities")
	}
	defer rows.Close()

	var entities []model.CanonicalEntity
	for rows.Next() {
		var e model.CanonicalEntity
		if err := rows.Scan(&e.ID, &e.Kind, &e.DisplayName, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity")
		}
		entities = append(entities, e)
	}
	return entities, eris.Wrap(rows.Err(), "postgres: list entities iterate")
}

func (s *PostgresStore) RegisterAlias(ctx context.Context, alias model.Alias) error {
	createdAt := alias.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO aliases (alias_type, alias_value, canonical_id, source, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (alias_type, alias_value) DO NOTHING`,
		string(alias.Type), alias.Value, alias.CanonicalID, alias.Source, createdAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: register alias %s/%s", alias.Type, alias.Value)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Row already existed; accept only if it points at the same entity.
	existing, err := s.ResolveAlias(ctx, alias.Type, alias.Value)
	if err != nil {
		return err
	}
	if existing != alias.CanonicalID {
		return ErrAliasConflict
	}
	return nil
}

func (s *PostgresStore) ResolveAlias(ctx context.Context, aliasType model.AliasType, value string) (string, error) {
	var canonicalID string
	err := s.pool.QueryRow(ctx,
		`SELECT canonical_id FROM aliases WHERE alias_type = $1 AND alias_value = $2`,
		string(aliasType), value,
	).Scan(&canonicalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", eris.Wrapf(err, "postgres: resolve alias %s/%s", aliasType, value)
	}
	return canonicalID, nil
}

func (s *PostgresStore) ListAliases(ctx context.Context, canonicalID string) ([]model.Alias, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT alias_type, alias_value, canonical_id, source, created_at FROM aliases
		 WHERE canonical_id = $1 ORDER BY created_at`,
		canonicalID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list aliases")
	}
	defer rows.Close()

	var aliases []model.Alias
	for rows.Next() {
		var a model.Alias
		var source *string
		if err := rows.Scan(&a.Type, &a.Value, &a.CanonicalID, &source, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan alias")
		}
		if source != nil {
			a.Source = *source
		}
		aliases = append(aliases, a)
	}
	return aliases, eris.Wrap(rows.Err(), "postgres: list aliases iterate")
}

func (s *PostgresStore) GetRecord(ctx context.Context, canonicalID, providerID string) (*model.CachedRecord, error) {
	var rec model.CachedRecord
	var payload []byte
	var expiresAt *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT canonical_id, provider_id, status, payload, fetched_at, expires_at FROM provider_records
		 WHERE canonical_id = $1 AND provider_id = $2
		 ORDER BY fetched_at DESC LIMIT 1`,
		canonicalID, providerID,
	).Scan(&rec.CanonicalID, &rec.ProviderID, &rec.Status, &payload, &rec.FetchedAt, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get record %s/%s", canonicalID, providerID)
	}
	rec.Payload = json.RawMessage(payload)
	rec.ExpiresAt = expiresAt
	return &rec, nil
}

func (s *PostgresStore) PutRecord(ctx context.Context, rec model.CachedRecord) error {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO provider_records (id, canonical_id, provider_id, status, payload, fetched_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, rec.CanonicalID, rec.ProviderID, string(rec.Status), []byte(rec.Payload), rec.FetchedAt, rec.ExpiresAt,
	)
	return eris.Wrapf(err, "postgres: put record %s/%s", rec.CanonicalID, rec.ProviderID)
}

func (s *PostgresStore) DeleteExpiredRecords(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM provider_records WHERE expires_at IS NULL OR expires_at <= now()`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired records")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, identity model.Identity, canonicalID string) (*model.ResearchRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	identityJSON, err := json.Marshal(identity)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal identity")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, identity, canonical_id, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, identityJSON, canonicalID, string(model.RunQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
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

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, summary = $2, updated_at = $3 WHERE id = $4`,
		string(status), summaryJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.ResearchRun, error) {
	var r model.ResearchRun
	var identityJSON []byte
	var summaryJSON *[]byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, identity, canonical_id, status, summary, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &identityJSON, &r.CanonicalID, &r.Status, &summaryJSON, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if err := json.Unmarshal(identityJSON, &r.Identity); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal identity")
	}
	if summaryJSON != nil {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal(*summaryJSON, r.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.ResearchRun, error) {
	query := `SELECT id, identity, canonical_id, status, summary, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.CanonicalID != "" {
		query += fmt.Sprintf(` AND canonical_id = $%d`, argIdx)
		args = append(args, filter.CanonicalID)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.ResearchRun
	for rows.Next() {
		var r model.ResearchRun
		var identityJSON []byte
		var summaryJSON *[]byte

		if err := rows.Scan(&r.ID, &identityJSON, &r.CanonicalID, &r.Status, &summaryJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if err := json.Unmarshal(identityJSON, &r.Identity); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal identity")
		}
		if summaryJSON != nil {
			r.Summary = &model.RunSummary{}
			if err := json.Unmarshal(*summaryJSON, r.Summary); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal summary")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}
