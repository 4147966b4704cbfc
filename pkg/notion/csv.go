package notion

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// ImportCSV seeds the queue database from a CSV file, one page per unique
// row. Rows are deduplicated on the URL or Domain column when the sheet has
// one; rows whose key is empty are dropped. Target lists (Domain + Contact
// headers) get queue-shaped properties with Status = Queued, anything else
// imports as generic title/url/rich-text columns. Returns the number of
// pages created.
func ImportCSV(ctx context.Context, c Client, dbID string, csvPath string) (int, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return 0, eris.Wrap(err, fmt.Sprintf("notion: open csv %s", csvPath))
	}
	defer f.Close() //nolint:errcheck

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return 0, eris.Wrap(err, "notion: read csv")
	}
	if len(records) < 2 {
		return 0, nil
	}

	headers := records[0]
	build := buildPageProperties
	if isTargetListCSV(headers) {
		build = buildTargetListProperties
	}

	created := 0
	for _, row := range uniqueRows(headers, records[1:]) {
		if ctx.Err() != nil {
			return created, eris.Wrap(ctx.Err(), "notion: import csv cancelled")
		}

		req := &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(dbID),
			},
			Properties: build(row),
		}
		if _, err := c.CreatePage(ctx, req); err != nil {
			return created, eris.Wrap(err, "notion: create page from csv row")
		}
		created++
	}
	return created, nil
}

// isTargetListCSV reports whether the headers look like an outreach target
// list, which carries both a Domain and a Contact column.
func isTargetListCSV(headers []string) bool {
	hasDomain, hasContact := false, false
	for _, h := range headers {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "domain":
			hasDomain = true
		case "contact":
			hasContact = true
		}
	}
	return hasDomain && hasContact
}

// mapRow pairs each header with its value; short rows pad with empty strings.
func mapRow(headers []string, row []string) map[string]string {
	m := make(map[string]string, len(headers))
	for i, h := range headers {
		var v string
		if i < len(row) {
			v = row[i]
		}
		m[h] = v
	}
	return m
}

// uniqueRows maps each data row by header and drops duplicates, keyed on the
// first URL or Domain column. Sheets without such a column import every row.
func uniqueRows(headers []string, rows [][]string) []map[string]string {
	keyIdx := -1
	for i, h := range headers {
		lower := strings.ToLower(strings.TrimSpace(h))
		if lower == "url" || lower == "domain" {
			keyIdx = i
			break
		}
	}

	seen := make(map[string]struct{})
	var out []map[string]string
	for _, row := range rows {
		if keyIdx >= 0 {
			key := ""
			if keyIdx < len(row) {
				key = strings.TrimSpace(row[keyIdx])
			}
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, mapRow(headers, row))
	}
	return out
}

// buildPageProperties converts a generic CSV row to page properties: Name
// becomes the title, URL a url property, everything else rich_text.
func buildPageProperties(row map[string]string) notionapi.Properties {
	props := make(notionapi.Properties)
	for k, v := range row {
		switch {
		case strings.EqualFold(k, "Name"):
			props[k] = titleProperty(v)
		case strings.EqualFold(k, "URL"):
			props[k] = notionapi.URLProperty{Type: notionapi.PropertyTypeURL, URL: v}
		default:
			props[k] = richText(v)
		}
	}
	return props
}

// buildTargetListProperties shapes a target-list row for the queue database:
// Domain becomes the URL (scheme added if missing), City and State collapse
// into one Location value, Status is always Queued, and the remaining
// non-empty columns (Contact, Title, ...) pass through as rich_text.
func buildTargetListProperties(row map[string]string) notionapi.Properties {
	props := make(notionapi.Properties)
	var city, state string

	for k, v := range row {
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "name":
			name := strings.Trim(strings.TrimSpace(v), "\"")
			props["Name"] = titleProperty(name)
		case "domain":
			props["URL"] = notionapi.URLProperty{Type: notionapi.PropertyTypeURL, URL: normalizeURL(v)}
		case "city":
			city = strings.TrimSpace(v)
		case "state":
			state = strings.TrimSpace(v)
		default:
			if v != "" {
				props[k] = richText(v)
			}
		}
	}

	if loc := joinLocation(city, state); loc != "" {
		props["Location"] = richText(loc)
	}
	props["Status"] = notionapi.StatusProperty{
		Status: notionapi.Status{Name: "Queued"},
	}
	return props
}

// joinLocation renders "City, ST" tolerating either part being empty.
func joinLocation(city, state string) string {
	switch {
	case city != "" && state != "":
		return city + ", " + state
	case city != "":
		return city
	default:
		return state
	}
}

// normalizeURL ensures a domain has an https:// scheme prefix.
func normalizeURL(domain string) string {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return ""
	}
	if !strings.Contains(domain, "://") {
		return "https://" + domain
	}
	return domain
}
