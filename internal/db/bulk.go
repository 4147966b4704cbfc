package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyInto streams rows into table over the COPY protocol, the fast path
// for seeding thousands of cache records from a vendor snapshot. The table
// name may be schema-qualified. Returns the number of rows written.
func CopyInto(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := pool.CopyFrom(ctx, tableIdent(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: copy into %s", table)
	}
	return n, nil
}

// UpsertSpec describes a staged bulk upsert.
type UpsertSpec struct {
	Table     string   // target table, optionally schema-qualified
	Columns   []string // columns present in every row, in row order
	Keys      []string // unique-constraint columns matched ON CONFLICT
	Update    []string // columns rewritten on conflict; nil means every non-key column
	DoNothing bool     // keep the existing row on conflict instead of rewriting it
}

// Upsert stages rows in a temp table over COPY, then folds them into the
// target with a single INSERT ... ON CONFLICT. Everything runs in one
// transaction and the temp table drops on commit. The count reflects rows
// the final INSERT touched, so with DoNothing it excludes rows that
// already existed.
func Upsert(ctx context.Context, pool Pool, spec UpsertSpec, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(spec.Columns) == 0 {
		return 0, eris.New("db: upsert: spec names no columns")
	}
	if len(spec.Keys) == 0 {
		return 0, eris.New("db: upsert: spec names no conflict keys")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stage := "_stage_" + strings.ReplaceAll(spec.Table, ".", "_")
	create := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{stage}.Sanitize(), tableIdent(spec.Table).Sanitize(),
	)
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: stage table", spec.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{stage}, spec.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: stage rows", spec.Table)
	}

	tag, err := tx.Exec(ctx, spec.mergeSQL(stage))
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: merge", spec.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit")
	}
	return tag.RowsAffected(), nil
}

// mergeSQL renders the INSERT ... ON CONFLICT statement folding the stage
// table into the target. A spec whose columns are all keys has nothing to
// rewrite and degrades to DO NOTHING.
func (s UpsertSpec) mergeSQL(stage string) string {
	cols := identList(s.Columns)

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) ",
		tableIdent(s.Table).Sanitize(), cols, cols,
		pgx.Identifier{stage}.Sanitize(), identList(s.Keys),
	)

	update := s.Update
	if update == nil && !s.DoNothing {
		keys := make(map[string]bool, len(s.Keys))
		for _, k := range s.Keys {
			keys[k] = true
		}
		for _, c := range s.Columns {
			if !keys[c] {
				update = append(update, c)
			}
		}
	}
	if s.DoNothing || len(update) == 0 {
		b.WriteString("DO NOTHING")
		return b.String()
	}

	b.WriteString("DO UPDATE SET ")
	for i, col := range update {
		if i > 0 {
			b.WriteString(", ")
		}
		q := pgx.Identifier{col}.Sanitize()
		fmt.Fprintf(&b, "%s = EXCLUDED.%s", q, q)
	}
	return b.String()
}

// tableIdent turns an optionally schema-qualified name into a pgx
// identifier so quoting covers both halves.
func tableIdent(table string) pgx.Identifier {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}
	}
	return pgx.Identifier{table}
}

func identList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
