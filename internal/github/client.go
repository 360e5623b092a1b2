package github

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/oshokin/release-mirror/internal/domain/release"
	"github.com/oshokin/release-mirror/internal/retry"
	"github.com/oshokin/release-mirror/internal/version"
)

var (
	// ErrBadHTTPStatus is returned for unexpected upstream responses.
	ErrBadHTTPStatus = errors.New("unexpected http status")
	// errNoCertificates is returned when a CA bundle holds no PEM certificates.
	errNoCertificates = errors.New("no certificates found")
)

// Options configure the client at construction time.
type Options struct {
	// BaseURL is the API root, e.g. https://api.github.com.
	BaseURL string
	// MaxConns caps connections per host; it should match the pass concurrency.
	MaxConns int
	// Timeout limits a single request. Zero means no client-side timeout.
	Timeout time.Duration
	// CAFile replaces the system trust store with a PEM bundle.
	CAFile string
	// UserAgent is sent with every request.
	UserAgent string
}

// Client talks to the release API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	userAgent  string
	now        func() time.Time
}

// NewClient builds a client with its own connection pool.
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // Standard library guarantees the type.
	if opts.MaxConns > 0 {
		transport.MaxConnsPerHost = opts.MaxConns
		transport.MaxIdleConnsPerHost = opts.MaxConns
	}

	if opts.CAFile != "" {
		pool, err := loadCertPool(opts.CAFile)
		if err != nil {
			return nil, err
		}

		transport.TLSClientConfig = &tls.Config{
			RootCAs:    pool,
			MinVersion: tls.VersionTLS12,
		}
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent()
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		userAgent: userAgent,
		now:       time.Now,
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// apiRelease is the subset of the release payload the mirror needs.
type apiRelease struct {
	TagName    string `json:"tag_name"`
	AssetsURL  string `json:"assets_url"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// apiAsset is the subset of the asset payload the mirror needs.
type apiAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// ListReleases returns the first page of releases of repo. Drafts are skipped.
func (c *Client) ListReleases(ctx context.Context, repo string) ([]release.Release, error) {
	endpoint := c.baseURL.JoinPath("repos", repo, "releases")

	var payload []apiRelease
	if err := c.getJSON(ctx, endpoint.String(), &payload); err != nil {
		return nil, fmt.Errorf("list releases of %s: %w", repo, err)
	}

	releases := make([]release.Release, 0, len(payload))

	for _, r := range payload {
		if r.Draft {
			continue
		}

		releases = append(releases, release.Release{
			Tag:        r.TagName,
			AssetsURL:  r.AssetsURL,
			Prerelease: r.Prerelease,
		})
	}

	return releases, nil
}

// ListAssets returns the assets behind a release's assets URL.
func (c *Client) ListAssets(ctx context.Context, assetsURL string) ([]release.Asset, error) {
	var payload []apiAsset
	if err := c.getJSON(ctx, assetsURL, &payload); err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}

	assets := make([]release.Asset, 0, len(payload))

	for _, a := range payload {
		asset, err := release.NewAsset(a.BrowserDownloadURL, a.Name)
		if err != nil {
			return nil, retry.Permanent(err)
		}

		assets = append(assets, asset)
	}

	return assets, nil
}

// Download streams the file at downloadURL into w.
func (c *Client) Download(ctx context.Context, downloadURL string, w io.Writer) error {
	resp, err := c.do(ctx, downloadURL, "application/octet-stream")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err = io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("download %s: %w", downloadURL, err)
	}

	return nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	resp, err := c.do(ctx, endpoint, "application/vnd.github+json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}

	return nil
}

// do performs one GET and returns a classified error for anything but 200.
func (c *Client) do(ctx context.Context, endpoint, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", endpoint, err)
	}

	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}

	// Drain a little so the connection can be reused.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	_ = resp.Body.Close()

	if rateLimited := c.rateLimit(resp); rateLimited != nil {
		return nil, rateLimited
	}

	err = fmt.Errorf("get %s: %s %s: %w", endpoint, resp.Status, strings.TrimSpace(string(body)), ErrBadHTTPStatus)
	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError {
		return nil, retry.Permanent(err)
	}

	return nil, err
}

// rateLimit recognises primary (X-RateLimit-*) and secondary (Retry-After) limits.
func (c *Client) rateLimit(resp *http.Response) *retry.RateLimitError {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusTooManyRequests {
		return nil
	}

	if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
		return &retry.RateLimitError{
			Reset:  c.now().Add(time.Duration(seconds) * time.Second),
			Status: resp.StatusCode,
		}
	}

	reset := resp.Header.Get("X-RateLimit-Reset")
	if reset == "" {
		if resp.StatusCode == http.StatusTooManyRequests {
			return &retry.RateLimitError{Reset: c.now().Add(time.Minute), Status: resp.StatusCode}
		}

		return nil
	}

	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" && remaining != "0" {
		return nil
	}

	epoch, err := strconv.ParseInt(reset, 10, 64)
	if err != nil {
		return nil
	}

	return &retry.RateLimitError{
		Reset:  time.Unix(epoch, 0),
		Status: resp.StatusCode,
	}
}

func loadCertPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read CA bundle: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%s: %w", path, errNoCertificates)
	}

	return pool, nil
}
