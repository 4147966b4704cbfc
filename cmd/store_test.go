package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
)

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = &config.Config{}
	cfg.Store.Driver = "oracle"

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestOpenStore_SQLite(t *testing.T) {
	cfg = &config.Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = filepath.Join(t.TempDir(), "outreach.db")

	ctx := context.Background()
	st, err := openStore(ctx)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	// Migrations ran, so a round trip works immediately.
	ent, err := st.CreateEntity(ctx, model.EntityCompany, "Acme Corp")
	require.NoError(t, err)
	got, err := st.GetEntity(ctx, ent.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Acme Corp", got.DisplayName)
}

func TestInitSalesforce_MissingClientID(t *testing.T) {
	cfg = &config.Config{}

	_, err := initSalesforce()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client ID is required")
}
