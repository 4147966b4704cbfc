package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

// ErrAliasConflict is returned when an alias value is already bound to a
// different canonical id. The registry is append-only: the original mapping
// always survives the attempt.
var ErrAliasConflict = eris.New("alias already bound to a different canonical id")

// EntityFilter specifies criteria for listing entities.
type EntityFilter struct {
	Kind   model.EntityKind `json:"kind,omitempty"`
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status      model.RunStatus `json:"status,omitempty"`
	CanonicalID string          `json:"canonical_id,omitempty"`
	Limit       int             `json:"limit,omitempty"`
	Offset      int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the outreach pipeline.
// Lookup methods return (nil, nil) / ("", nil) for absent rows; an error
// always means the query itself failed.
type Store interface {
	// Entities
	CreateEntity(ctx context.Context, kind model.EntityKind, displayName string) (*model.CanonicalEntity, error)
	GetEntity(ctx context.Context, id string) (*model.CanonicalEntity, error)
	ListEntities(ctx context.Context, filter EntityFilter) ([]model.CanonicalEntity, error)

	// Alias registry
	RegisterAlias(ctx context.Context, alias model.Alias) error
	ResolveAlias(ctx context.Context, aliasType model.AliasType, value string) (string, error)
	ListAliases(ctx context.Context, canonicalID string) ([]model.Alias, error)

	// Provider snapshots. PutRecord always inserts; GetRecord returns the
	// newest record for the key regardless of expiry, and the caller
	// decides freshness.
	GetRecord(ctx context.Context, canonicalID, providerID string) (*model.CachedRecord, error)
	PutRecord(ctx context.Context, rec model.CachedRecord) error
	DeleteExpiredRecords(ctx context.Context) (int, error)

	// Runs
	CreateRun(ctx context.Context, identity model.Identity, canonicalID string) (*model.ResearchRun, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error
	GetRun(ctx context.Context, runID string) (*model.ResearchRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.ResearchRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
