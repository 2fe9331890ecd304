package cctv

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"

	"github.com/lox/pmforecast/internal/httputil"
	"github.com/lox/pmforecast/internal/metrics"
)

const (
	maxSnapshotBytes = 10 << 20
	ftpTimeout       = 30 * time.Second
	defaultFTPPort   = "21"
)

// Fetcher downloads snapshot bytes over http(s) or ftp.
type Fetcher struct {
	client         *http.Client
	maxElapsedTime time.Duration
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		client:         httputil.NewClient(),
		maxElapsedTime: time.Minute,
	}
}

// Fetch retrieves the snapshot at rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot url: %w", err)
	}

	var data []byte
	switch u.Scheme {
	case "http", "https":
		data, err = f.fetchHTTP(ctx, u.String())
	case "ftp":
		data, err = f.fetchFTP(ctx, u)
	default:
		return nil, fmt.Errorf("unsupported snapshot scheme %q", u.Scheme)
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.SnapshotFetches.WithLabelValues(u.Scheme, status).Inc()
	return data, err
}

func (f *Fetcher) fetchHTTP(ctx context.Context, target string) ([]byte, error) {
	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return fmt.Errorf("fetch snapshot: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("fetch snapshot: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("fetch snapshot: status %d", resp.StatusCode))
		}

		body, err = readLimited(resp.Body)
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = f.maxElapsedTime
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) fetchFTP(ctx context.Context, u *url.URL) ([]byte, error) {
	host := u.Host
	if u.Port() == "" {
		host = u.Hostname() + ":" + defaultFTPPort
	}

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(ftpTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return nil, fmt.Errorf("ftp retr: %w", err)
	}
	defer resp.Close()

	return readLimited(resp)
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxSnapshotBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) > maxSnapshotBytes {
		return nil, fmt.Errorf("snapshot exceeds %d bytes", maxSnapshotBytes)
	}
	return data, nil
}
