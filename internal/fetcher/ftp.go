package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/resilience"
)

// FTPOptions configures the FTP fetcher. Empty credentials fall back to
// anonymous login.
type FTPOptions struct {
	Timeout    time.Duration
	User       string
	Pass       string
	MaxRetries int
}

// FTPFetcher downloads feed files over FTP. Vendors still publish bulk
// snapshots on plain FTP drops, so dial failures are retried before an
// import gives up.
type FTPFetcher struct {
	opts  FTPOptions
	retry resilience.RetryConfig
}

var _ Fetcher = (*FTPFetcher)(nil)

// NewFTPFetcher creates an FTPFetcher with the given options.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User = "anonymous"
		opts.Pass = "anonymous@"
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	return &FTPFetcher{
		opts: opts,
		retry: resilience.RetryConfig{
			MaxAttempts:    opts.MaxRetries,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     30 * time.Second,
		},
	}
}

// splitFTPURL returns the dial address (host with port, 21 when omitted)
// and the remote path.
func splitFTPURL(rawURL string) (addr, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrapf(err, "fetcher: parse ftp url %s", rawURL)
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("fetcher: expected ftp scheme, got %q", u.Scheme)
	}
	addr = u.Host
	if _, _, splitErr := net.SplitHostPort(addr); splitErr != nil {
		addr = net.JoinHostPort(addr, "21")
	}
	if u.Path == "" {
		return "", "", eris.Errorf("fetcher: ftp url %s has no path", rawURL)
	}
	return addr, u.Path, nil
}

// connect dials and logs in, retrying transient network failures. Login
// rejections are permanent and fail on the first attempt.
func (f *FTPFetcher) connect(ctx context.Context, addr string) (*ftp.ServerConn, error) {
	cfg := f.retry
	cfg.OnRetry = resilience.RetryLogger("fetcher", addr)

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*ftp.ServerConn, error) {
		conn, err := ftp.Dial(addr, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: ftp dial %s", addr)
		}
		if err := conn.Login(f.opts.User, f.opts.Pass); err != nil {
			_ = conn.Quit()
			return nil, eris.Wrapf(err, "fetcher: ftp login %s", addr)
		}
		return conn, nil
	})
}

// ftpBody keeps the control connection alive while the caller drains the
// transfer; Close releases both.
type ftpBody struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (b *ftpBody) Read(p []byte) (int, error) { return b.resp.Read(p) }

func (b *ftpBody) Close() error {
	err := b.resp.Close()
	if quitErr := b.conn.Quit(); err == nil {
		err = quitErr
	}
	return eris.Wrap(err, "fetcher: close ftp transfer")
}

// Download retrieves ftpURL and returns the body. Closing it releases the
// data connection and the session.
func (f *FTPFetcher) Download(ctx context.Context, ftpURL string) (io.ReadCloser, error) {
	addr, path, err := splitFTPURL(ftpURL)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("fetcher: ftp transfer", zap.String("addr", addr), zap.String("path", path))

	conn, err := f.connect(ctx, addr)
	if err != nil {
		return nil, err
	}
	resp, err := conn.Retr(path)
	if err != nil {
		_ = conn.Quit()
		return nil, eris.Wrapf(err, "fetcher: ftp retrieve %s", path)
	}
	return &ftpBody{resp: resp, conn: conn}, nil
}

// DownloadToFile streams ftpURL into path, returning the bytes written.
func (f *FTPFetcher) DownloadToFile(ctx context.Context, ftpURL, path string) (int64, error) {
	body, err := f.Download(ctx, ftpURL)
	if err != nil {
		return 0, err
	}
	defer func() { _ = body.Close() }()

	out, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrapf(err, "fetcher: create %s", path)
	}

	n, err := io.Copy(out, body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, eris.Wrapf(err, "fetcher: write %s", path)
	}
	return n, nil
}
