// Package fetcher downloads vendor feeds and public filing data over HTTP
// and FTP, and parses the CSV, XLSX, XML, and ZIP formats those feeds
// arrive in. Parsers stream rows over channels so large feeds never have to
// fit in memory at once.
package fetcher

import (
	"context"
	"io"
)

// Fetcher is the transport-agnostic surface shared by the HTTP and FTP
// fetchers. Conditional downloads are HTTP-only and live on HTTPFetcher.
type Fetcher interface {
	// Download fetches the URL and returns the response body. The caller
	// owns the returned reader and must close it.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL into the file at path. Returns bytes
	// written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
