package vendorimport

import (
	"archive/zip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/entity"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/provider"
	"github.com/sells-group/outreach-cli/internal/store"
)

var testNow = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

func newTestImporter(t *testing.T, cfg config.VendorConfig) (*Importer, *entity.Resolver, *entity.Cache) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "import_test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	resolver := entity.NewResolver(st)
	cache := entity.NewCache(st, config.CacheConfig{DefaultTTLHours: 24, TTLHours: map[string]int{"peopledata": 720}})
	im := New(resolver, cache, cfg).WithNow(func() time.Time { return testNow })
	return im, resolver, cache
}

func writeFeed(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const sampleFeed = `Company Name,Website,Contact Name,Job Title,Industry,Employees,HQ City,HQ State,Latitude,Longitude,As Of
Acme Fabrication,acmefab.com,Jane Moore,COO,Manufacturing,240,Dayton,OH,39.7589,-84.1916,2026-08-20
Beta Works,betaworks.io,,,Logistics,80,Columbus,OH,39.9612,-82.9988,2026-08-18
`

func cachedPayload(t *testing.T, cache *entity.Cache, resolver *entity.Resolver, identity model.Identity) *provider.Payload {
	t.Helper()

	ctx := context.Background()
	ent, err := resolver.Lookup(ctx, identity)
	require.NoError(t, err)
	require.NotNil(t, ent, "company should be registered after import")

	rec, err := cache.Fresh(ctx, ent.ID, "peopledata")
	require.NoError(t, err)
	require.NotNil(t, rec, "import should leave a fresh vendor record")

	var payload provider.Payload
	require.NoError(t, json.Unmarshal(rec.Payload, &payload))
	return &payload
}

func TestImportSeedsCacheFromCSV(t *testing.T) {
	t.Parallel()

	im, resolver, cache := newTestImporter(t, config.VendorConfig{})
	path := writeFeed(t, "feed.csv", sampleFeed)

	report, err := im.Run(context.Background(), path, false)
	require.NoError(t, err)

	assert.Equal(t, 2, report.RowsRead)
	assert.Equal(t, 0, report.RowsSkipped)
	assert.Equal(t, 2, report.Companies)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 0, report.Merged)
	assert.Equal(t, 4, report.AliasesSeeded, "domain and name alias per company")
	assert.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), report.NewestAsOf)

	payload := cachedPayload(t, cache, resolver, model.Identity{Company: "Acme Fabrication", Domain: "acmefab.com"})
	assert.Equal(t, "peopledata", payload.Provider)
	assert.Equal(t, model.SourceVendorData, payload.SourceType)
	assert.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), payload.FetchedAt, "fetched_at carries the snapshot as-of date")
	require.NotNil(t, payload.Company)
	assert.Equal(t, "Acme Fabrication", payload.Company.Name)
	assert.Equal(t, "acmefab.com", payload.Company.Domain)
	assert.Equal(t, "Manufacturing", payload.Company.Industry)
	assert.Equal(t, 240, payload.Company.Employees)
	assert.Equal(t, "Dayton", payload.Company.City)
	assert.InDelta(t, 39.7589, payload.Company.Latitude, 1e-6)
	require.NotNil(t, payload.Contact)
	assert.Equal(t, "Jane Moore", payload.Contact.Name)
	assert.Equal(t, "COO", payload.Contact.Title)

	// The contact-less row still seeds a company-only record.
	beta := cachedPayload(t, cache, resolver, model.Identity{Company: "Beta Works", Domain: "betaworks.io"})
	assert.Nil(t, beta.Contact)
	assert.Equal(t, time.Date(2026, 8, 18, 0, 0, 0, 0, time.UTC), beta.FetchedAt)
}

func TestImportDryRunWritesNothing(t *testing.T) {
	t.Parallel()

	im, resolver, _ := newTestImporter(t, config.VendorConfig{})
	path := writeFeed(t, "feed.csv", sampleFeed)
	ctx := context.Background()

	report, err := im.Run(ctx, path, true)
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 2, report.Companies)
	assert.Equal(t, 2, report.Created, "both companies would be created")

	ent, err := resolver.Lookup(ctx, model.Identity{Company: "Acme Fabrication", Domain: "acmefab.com"})
	require.NoError(t, err)
	assert.Nil(t, ent, "dry run must not register anything")
}

func TestImportMergesDuplicateCompanyRows(t *testing.T) {
	t.Parallel()

	im, resolver, cache := newTestImporter(t, config.VendorConfig{})
	path := writeFeed(t, "feed.csv", `company,domain,contact,title
Acme Fabrication,acmefab.com,,
Acme Fabrication Inc,https://www.acmefab.com,Jane Moore,COO
Acme,acmefab.com,Raj Patel,CFO
`)

	report, err := im.Run(context.Background(), path, false)
	require.NoError(t, err)

	assert.Equal(t, 3, report.RowsRead)
	assert.Equal(t, 1, report.Companies, "all three rows normalize onto one domain")
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 2, report.Merged)
	assert.Equal(t, 3, report.AliasesSeeded, "one domain plus two name spellings")

	payload := cachedPayload(t, cache, resolver, model.Identity{Company: "Acme Fabrication", Domain: "acmefab.com"})
	assert.Equal(t, "Acme Fabrication", payload.Company.Name, "first row supplies the profile")
	require.NotNil(t, payload.Contact)
	assert.Equal(t, "Jane Moore", payload.Contact.Name, "first row with a contact wins")
	require.Len(t, payload.Items, 1)
	assert.Contains(t, payload.Items[0].Text, "3 times")
	assert.Equal(t, testNow, payload.FetchedAt, "no as-of column falls back to the clock")

	// Every spelling in the feed now resolves to the merged entity.
	ctx := context.Background()
	canonical, err := resolver.Lookup(ctx, model.Identity{Domain: "acmefab.com"})
	require.NoError(t, err)
	require.NotNil(t, canonical)
	byShortName, err := resolver.Lookup(ctx, model.Identity{Company: "Acme"})
	require.NoError(t, err)
	require.NotNil(t, byShortName, "short spelling registered during import")
	assert.Equal(t, canonical.ID, byShortName.ID)
}

func TestImportBackfillsAliasesForExistingCompany(t *testing.T) {
	t.Parallel()

	im, resolver, _ := newTestImporter(t, config.VendorConfig{})
	ctx := context.Background()

	// Known by name only, the way a one-off research run leaves it.
	existing, created, err := resolver.ResolveCompany(ctx, model.Identity{Company: "Acme Fabrication"})
	require.NoError(t, err)
	require.True(t, created)

	path := writeFeed(t, "feed.csv", "company,domain\nAcme Fabrication,acmefab.com\n")
	report, err := im.Run(ctx, path, false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Companies)
	assert.Equal(t, 0, report.Created, "matched the existing entity by name")
	assert.Equal(t, 2, report.AliasesSeeded)

	byDomain, err := resolver.Lookup(ctx, model.Identity{Domain: "acmefab.com"})
	require.NoError(t, err)
	require.NotNil(t, byDomain, "feed domain registered against the existing entity")
	assert.Equal(t, existing.ID, byDomain.ID)
}

func TestImportSkipsRowsWithoutIdentity(t *testing.T) {
	t.Parallel()

	im, _, _ := newTestImporter(t, config.VendorConfig{})
	path := writeFeed(t, "feed.csv", `company,domain,contact
Acme,acme.com,Jane Moore
,,Bob Ray
`)

	report, err := im.Run(context.Background(), path, false)
	require.NoError(t, err)

	assert.Equal(t, 2, report.RowsRead)
	assert.Equal(t, 1, report.RowsSkipped)
	assert.Equal(t, 1, report.Companies)
}

func TestImportReadsZIPArchive(t *testing.T) {
	t.Parallel()

	im, _, _ := newTestImporter(t, config.VendorConfig{})

	zipPath := filepath.Join(t.TempDir(), "snapshot.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	member, err := zw.Create("snapshot.csv")
	require.NoError(t, err)
	_, err = member.Write([]byte(sampleFeed))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	report, err := im.Run(context.Background(), zipPath, false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Companies)
}

func TestImportReadsXLSX(t *testing.T) {
	t.Parallel()

	im, resolver, cache := newTestImporter(t, config.VendorConfig{})

	wb := xlsx.NewFile()
	sheet, err := wb.AddSheet("Export")
	require.NoError(t, err)
	for _, rowData := range [][]string{
		{"Company", "Domain", "Contact", "Title"},
		{"Gamma Logistics", "gammalog.com", "Gus Orr", "VP Ops"},
	} {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "snapshot.xlsx")
	require.NoError(t, wb.Save(path))

	report, err := im.Run(context.Background(), path, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Companies)

	payload := cachedPayload(t, cache, resolver, model.Identity{Company: "Gamma Logistics", Domain: "gammalog.com"})
	assert.Equal(t, "Gus Orr", payload.Contact.Name)
}

func TestImportRejectsUnsupportedFormat(t *testing.T) {
	t.Parallel()

	im, _, _ := newTestImporter(t, config.VendorConfig{})
	path := writeFeed(t, "feed.txt", "not a feed")

	_, err := im.Run(context.Background(), path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported feed format")
}

func TestImportRequiresCompanyColumn(t *testing.T) {
	t.Parallel()

	im, _, _ := newTestImporter(t, config.VendorConfig{})
	path := writeFeed(t, "feed.csv", "email,phone\na@example.com,555-0100\n")

	_, err := im.Run(context.Background(), path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no company or domain column")
}

func TestImportReusesUnchangedHTTPFeed(t *testing.T) {
	t.Parallel()

	var fullServes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"snap-1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		fullServes.Add(1)
		w.Header().Set("ETag", `"snap-1"`)
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	tempDir := t.TempDir()
	im, _, _ := newTestImporter(t, config.VendorConfig{TempDir: tempDir})
	ctx := context.Background()

	first, err := im.Run(ctx, srv.URL+"/snapshot.csv", false)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Companies)
	assert.Equal(t, 2, first.Created)

	tag, err := os.ReadFile(filepath.Join(tempDir, "snapshot.csv.etag"))
	require.NoError(t, err)
	assert.Equal(t, `"snap-1"`, string(tag))

	second, err := im.Run(ctx, srv.URL+"/snapshot.csv", false)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Companies)
	assert.Equal(t, 0, second.Created, "rerun matches the registered companies")
	assert.Equal(t, int32(1), fullServes.Load(), "second pull rides the cached download")
}

func TestImportNoSourceConfigured(t *testing.T) {
	t.Parallel()

	im, _, _ := newTestImporter(t, config.VendorConfig{})

	_, err := im.Run(context.Background(), "", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no feed source configured")
}

func TestFeedURLFromConfig(t *testing.T) {
	t.Parallel()

	im := New(nil, nil, config.VendorConfig{FTPHost: "feeds.example.com", FeedPath: "exports/latest.zip"})
	assert.Equal(t, "ftp://feeds.example.com/exports/latest.zip", im.feedURL())

	im = New(nil, nil, config.VendorConfig{FTPHost: "feeds.example.com", FeedPath: "/exports/latest.zip"})
	assert.Equal(t, "ftp://feeds.example.com/exports/latest.zip", im.feedURL())
}
