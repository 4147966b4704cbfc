// Package vendorimport seeds the research cache from the contact vendor's
// bulk snapshot export, so batch runs start warm instead of paying one
// enrichment call per prospect. Snapshots arrive as CSV (optionally inside
// ZIP) or XLSX, over FTP, HTTPS, or from a local file.
package vendorimport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/entity"
	"github.com/sells-group/outreach-cli/internal/fetcher"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/provider"
)

// stackProvider is the cache slot seeded records land in. Research runs read
// them under the enrichment adapter's name, skipping the live API call while
// the record is fresh.
const stackProvider = "peopledata"

// Importer parses a vendor snapshot and writes vendor_data cache records,
// registering aliases for any company the registry has not seen.
type Importer struct {
	resolver *entity.Resolver
	cache    *entity.Cache
	cfg      config.VendorConfig
	nowFunc  func() time.Time
}

// New creates an importer over the given resolver and cache.
func New(resolver *entity.Resolver, cache *entity.Cache, cfg config.VendorConfig) *Importer {
	return &Importer{
		resolver: resolver,
		cache:    cache,
		cfg:      cfg,
		nowFunc:  time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (im *Importer) WithNow(fn func() time.Time) *Importer {
	im.nowFunc = fn
	return im
}

// Report is what an import did, or in a dry run, would have done.
type Report struct {
	Source        string    `json:"source"`
	DryRun        bool      `json:"dry_run"`
	RowsRead      int       `json:"rows_read"`
	RowsSkipped   int       `json:"rows_skipped"`
	Companies     int       `json:"companies"`
	Created       int       `json:"created"`
	Merged        int       `json:"merged"`
	AliasesSeeded int       `json:"aliases_seeded"`
	NewestAsOf    time.Time `json:"newest_as_of"`
}

// feedRow is one parsed snapshot line.
type feedRow struct {
	company   string
	domain    string
	contact   string
	title     string
	industry  string
	employees int
	city      string
	state     string
	lat       float64
	lon       float64
	asOf      *time.Time
}

// Run imports the snapshot at source. An empty source falls back to the
// configured FTP feed. Dry runs parse and report without touching the
// registry or the cache.
func (im *Importer) Run(ctx context.Context, source string, dryRun bool) (*Report, error) {
	if source == "" {
		source = im.feedURL()
	}
	if source == "" {
		return nil, eris.New("vendorimport: no feed source configured")
	}
	log := zap.L().With(
		zap.String("component", "vendorimport"),
		zap.String("source", source),
		zap.Bool("dry_run", dryRun),
	)

	local, err := im.materialize(ctx, source)
	if err != nil {
		return nil, err
	}

	rows, skipped, err := im.parseFeed(ctx, local)
	if err != nil {
		return nil, err
	}

	report := &Report{Source: source, DryRun: dryRun, RowsRead: len(rows) + skipped, RowsSkipped: skipped}
	for _, r := range rows {
		if r.asOf != nil && r.asOf.After(report.NewestAsOf) {
			report.NewestAsOf = *r.asOf
		}
	}

	var seeds []entity.SeedEntry
	var aliasBatch []model.Alias

	order, groups := groupByCompany(rows)
	for _, key := range order {
		if ctx.Err() != nil {
			return report, eris.Wrap(ctx.Err(), "vendorimport: cancelled")
		}
		group := groups[key]
		first := group[0]
		identity := model.Identity{
			Company: first.company,
			Domain:  first.domain,
			Contact: first.contact,
			Title:   first.title,
		}

		if dryRun {
			ent, lookErr := im.resolver.Lookup(ctx, identity)
			if lookErr != nil {
				log.Warn("vendorimport: lookup failed, skipping company",
					zap.String("company", first.company), zap.Error(lookErr))
				report.RowsSkipped += len(group)
				continue
			}
			if ent == nil {
				report.Created++
			}
			report.Companies++
			report.Merged += len(group) - 1
			continue
		}

		ent, created, resErr := im.resolver.ResolveCompany(ctx, identity)
		if resErr != nil {
			log.Warn("vendorimport: resolve failed, skipping company",
				zap.String("company", first.company), zap.Error(resErr))
			report.RowsSkipped += len(group)
			continue
		}
		if created {
			report.Created++
		}

		payload := vendorPayload(group, im.nowFunc())
		raw, mErr := json.Marshal(payload)
		if mErr != nil {
			return report, eris.Wrapf(mErr, "vendorimport: encode payload for %s", first.company)
		}
		seeds = append(seeds, entity.SeedEntry{CanonicalID: ent.ID, ProviderID: stackProvider, Payload: raw})
		aliasBatch = append(aliasBatch, groupAliases(group, ent.ID)...)
		report.Companies++
		report.Merged += len(group) - 1
	}

	// Registry first so the aliases exist before anything reads the records.
	if len(aliasBatch) > 0 {
		n, regErr := im.resolver.RegisterBatch(ctx, aliasBatch)
		if regErr != nil {
			return report, eris.Wrap(regErr, "vendorimport: seed aliases")
		}
		report.AliasesSeeded = n
	}
	if _, putErr := im.cache.PutBatch(ctx, seeds); putErr != nil {
		return report, eris.Wrap(putErr, "vendorimport: seed cache")
	}

	log.Info("vendorimport: feed processed",
		zap.Int("rows", report.RowsRead),
		zap.Int("companies", report.Companies),
		zap.Int("created", report.Created),
		zap.Int("aliases", report.AliasesSeeded),
		zap.Int("skipped", report.RowsSkipped),
	)
	return report, nil
}

// groupAliases returns the identifier aliases the group's rows carry: the
// shared domain plus every distinct spelling of the company name. Merged
// rows often restate the name differently; registering each spelling lets
// a future name-only lookup converge on this entity.
func groupAliases(group []feedRow, canonicalID string) []model.Alias {
	var aliases []model.Alias
	if d := entity.NormalizeDomain(group[0].domain); d != "" {
		aliases = append(aliases, model.Alias{
			Type:        model.AliasDomain,
			Value:       d,
			CanonicalID: canonicalID,
			Source:      "vendor-feed",
		})
	}
	seen := make(map[string]bool, len(group))
	for _, r := range group {
		n := entity.NormalizeName(r.company)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		aliases = append(aliases, model.Alias{
			Type:        model.AliasName,
			Value:       n,
			CanonicalID: canonicalID,
			Source:      "vendor-feed",
		})
	}
	return aliases
}

func (im *Importer) feedURL() string {
	if im.cfg.FTPHost == "" || im.cfg.FeedPath == "" {
		return ""
	}
	path := im.cfg.FeedPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "ftp://" + im.cfg.FTPHost + path
}

// materialize makes the feed available as a local file, downloading over
// FTP or HTTP when the source is a URL.
func (im *Importer) materialize(ctx context.Context, source string) (string, error) {
	switch {
	case strings.HasPrefix(source, "ftp://"):
		dest, err := im.tempPath(source)
		if err != nil {
			return "", err
		}
		f := fetcher.NewFTPFetcher(fetcher.FTPOptions{User: im.cfg.FTPUser, Pass: im.cfg.FTPPass})
		if _, err := f.DownloadToFile(ctx, source, dest); err != nil {
			return "", eris.Wrapf(err, "vendorimport: download %s", source)
		}
		return dest, nil

	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return im.fetchHTTP(ctx, source)

	default:
		if _, err := os.Stat(source); err != nil {
			return "", eris.Wrapf(err, "vendorimport: feed file %s", source)
		}
		return source, nil
	}
}

func (im *Importer) tempPath(source string) (string, error) {
	dir := im.cfg.TempDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "outreach-vendor")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "vendorimport: temp dir %s", dir)
	}
	return filepath.Join(dir, filepath.Base(source)), nil
}

// fetchHTTP downloads the feed with a conditional request. The ETag from the
// previous pull lives in a sidecar next to the download; while the server
// still serves that tag the cached copy is reused instead of transferring
// the whole snapshot again.
func (im *Importer) fetchHTTP(ctx context.Context, source string) (string, error) {
	dest, err := im.tempPath(source)
	if err != nil {
		return "", err
	}
	sidecar := dest + ".etag"

	var etag string
	if _, statErr := os.Stat(dest); statErr == nil {
		if tag, readErr := os.ReadFile(sidecar); readErr == nil {
			etag = strings.TrimSpace(string(tag))
		}
	}

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})
	body, newTag, changed, err := f.DownloadIfChanged(ctx, source, etag)
	if err != nil {
		return "", eris.Wrapf(err, "vendorimport: download %s", source)
	}
	if !changed {
		zap.L().Info("vendorimport: feed unchanged, reusing cached download",
			zap.String("source", source), zap.String("etag", etag))
		return dest, nil
	}
	defer func() { _ = body.Close() }()

	out, err := os.Create(dest)
	if err != nil {
		return "", eris.Wrapf(err, "vendorimport: create %s", dest)
	}
	_, err = io.Copy(out, body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", eris.Wrapf(err, "vendorimport: write %s", dest)
	}

	if newTag == "" {
		_ = os.Remove(sidecar)
	} else if err := os.WriteFile(sidecar, []byte(newTag), 0o644); err != nil {
		return "", eris.Wrapf(err, "vendorimport: write %s", sidecar)
	}
	return dest, nil
}

// parseFeed dispatches on the file extension. ZIP archives are extracted
// next to the feed and the first CSV or XLSX member is parsed.
func (im *Importer) parseFeed(ctx context.Context, path string) ([]feedRow, int, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		destDir := strings.TrimSuffix(path, filepath.Ext(path)) + "-extracted"
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return nil, 0, eris.Wrapf(err, "vendorimport: extract dir %s", destDir)
		}
		files, err := fetcher.ExtractZIP(path, destDir)
		if err != nil {
			return nil, 0, eris.Wrapf(err, "vendorimport: extract %s", path)
		}
		sort.Strings(files)
		for _, f := range files {
			switch strings.ToLower(filepath.Ext(f)) {
			case ".csv", ".xlsx":
				return im.parseFeed(ctx, f)
			}
		}
		return nil, 0, eris.Errorf("vendorimport: archive %s holds no CSV or XLSX member", path)

	case ".csv":
		return parseCSV(ctx, path)

	case ".xlsx":
		return parseXLSX(path)

	default:
		return nil, 0, eris.Errorf("vendorimport: unsupported feed format %s", filepath.Ext(path))
	}
}

func parseCSV(ctx context.Context, path string) ([]feedRow, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "vendorimport: open %s", path)
	}
	defer func() { _ = f.Close() }()

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	var records [][]string
	for row := range rowCh {
		records = append(records, row)
	}
	if err := <-errCh; err != nil {
		return nil, 0, eris.Wrapf(err, "vendorimport: read %s", path)
	}

	var header []string
	select {
	case header = <-headerCh:
	default:
		return nil, 0, eris.Errorf("vendorimport: feed %s has no header row", path)
	}

	return convertRecords(header, records)
}

func parseXLSX(path string) ([]feedRow, int, error) {
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
	if err != nil {
		return nil, 0, eris.Wrapf(err, "vendorimport: read %s", path)
	}
	if len(rows) == 0 {
		return nil, 0, eris.Errorf("vendorimport: feed %s has no header row", path)
	}
	return convertRecords(rows[0], rows[1:])
}

// columnAliases maps each feed field to the header names vendors have used
// for it. Matching is case-insensitive with spaces as underscores.
var columnAliases = map[string][]string{
	"company":   {"company", "company_name", "account_name", "organization"},
	"domain":    {"domain", "website", "company_domain"},
	"contact":   {"contact", "contact_name", "full_name"},
	"title":     {"title", "job_title"},
	"industry":  {"industry"},
	"employees": {"employees", "employee_count", "headcount"},
	"city":      {"city", "hq_city"},
	"state":     {"state", "hq_state"},
	"latitude":  {"latitude", "lat", "hq_latitude"},
	"longitude": {"longitude", "lon", "lng", "hq_longitude"},
	"as_of":     {"as_of", "as_of_date", "snapshot_date", "updated_at"},
}

type columnMap map[string]int

func mapColumns(header []string) (columnMap, error) {
	index := make(map[string]int, len(header))
	for i, cell := range header {
		name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(cell)), " ", "_")
		if _, seen := index[name]; !seen {
			index[name] = i
		}
	}

	cols := make(columnMap, len(columnAliases))
	for field, aliases := range columnAliases {
		cols[field] = -1
		for _, alias := range aliases {
			if i, ok := index[alias]; ok {
				cols[field] = i
				break
			}
		}
	}
	if cols["company"] < 0 && cols["domain"] < 0 {
		return nil, eris.Errorf("vendorimport: feed header names no company or domain column: %s", strings.Join(header, ", "))
	}
	return cols, nil
}

func (m columnMap) get(record []string, field string) string {
	i := m[field]
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

var asOfLayouts = []string{"2006-01-02", time.RFC3339, "01/02/2006"}

func convertRecords(header []string, records [][]string) ([]feedRow, int, error) {
	cols, err := mapColumns(header)
	if err != nil {
		return nil, 0, err
	}

	var rows []feedRow
	var skipped int
	for _, record := range records {
		r := feedRow{
			company:  cols.get(record, "company"),
			domain:   cols.get(record, "domain"),
			contact:  cols.get(record, "contact"),
			title:    cols.get(record, "title"),
			industry: cols.get(record, "industry"),
			city:     cols.get(record, "city"),
			state:    cols.get(record, "state"),
		}
		if r.company == "" && r.domain == "" {
			skipped++
			continue
		}
		if v := cols.get(record, "employees"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				r.employees = n
			}
		}
		if v := cols.get(record, "latitude"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				r.lat = f
			}
		}
		if v := cols.get(record, "longitude"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				r.lon = f
			}
		}
		if v := cols.get(record, "as_of"); v != "" {
			for _, layout := range asOfLayouts {
				if ts, err := time.Parse(layout, v); err == nil {
					ts = ts.UTC()
					r.asOf = &ts
					break
				}
			}
		}
		rows = append(rows, r)
	}
	return rows, skipped, nil
}

// groupByCompany folds rows onto one group per company, keyed by normalized
// domain else normalized name, preserving feed order.
func groupByCompany(rows []feedRow) ([]string, map[string][]feedRow) {
	var order []string
	groups := make(map[string][]feedRow)
	for _, r := range rows {
		key := entity.NormalizeDomain(r.domain)
		if key == "" {
			key = entity.NormalizeName(r.company)
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}
	return order, groups
}

// vendorPayload builds the cached provider payload for one company group.
// The first row supplies the profile; the first row with a contact supplies
// the contact. FetchedAt carries the snapshot as-of date when present so
// signal recency reflects the data, not the download.
func vendorPayload(group []feedRow, now time.Time) *provider.Payload {
	first := group[0]
	fetched := now
	if first.asOf != nil {
		fetched = *first.asOf
	}

	p := &provider.Payload{
		Provider:   stackProvider,
		SourceType: model.SourceVendorData,
		FetchedAt:  fetched.UTC(),
		Company: &provider.CompanyData{
			Name:      first.company,
			Domain:    entity.NormalizeDomain(first.domain),
			Industry:  first.industry,
			Employees: first.employees,
			City:      first.city,
			State:     first.state,
			Latitude:  first.lat,
			Longitude: first.lon,
		},
	}
	for _, r := range group {
		if r.contact != "" {
			p.Contact = &provider.ContactData{Name: r.contact, Title: r.title}
			break
		}
	}
	if len(group) > 1 {
		p.Items = append(p.Items, provider.Item{
			Title: "Vendor snapshot coverage",
			Text:  fmt.Sprintf("%s appears %d times in the vendor snapshot.", first.company, len(group)),
		})
	}
	return p
}
