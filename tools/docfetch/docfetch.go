// Package docfetch retrieves documentation pages and converts them to
// markdown for hands-on guide generation. Fetches are locked down against
// SSRF: HTTPS only, private addresses blocked at validation and again at
// dial time, redirects re-validated, bodies capped.
package docfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultMaxBodyBytes     = 2 * 1024 * 1024
	defaultMaxMarkdownChars = 50000
	defaultTimeout          = 15 * time.Second
	defaultUserAgent        = "planforge-docfetch/1.0"
	maxRedirects            = 5
)

// ErrNotHTML is returned when the response is not an HTML document.
// Callers treat it as a permanent failure for that URL.
var ErrNotHTML = errors.New("content is not HTML")

// Options configures the fetch tool.
type Options struct {
	// AllowHosts are glob patterns for permitted hosts; patterns with a
	// slash match host/path. Empty allows all.
	AllowHosts []string
	// DenyHosts are glob patterns for blocked hosts, checked before allow.
	DenyHosts []string
	// MaxBodyBytes caps the response body size.
	MaxBodyBytes int64
	// MaxMarkdownChars truncates converted markdown beyond this length.
	MaxMarkdownChars int
	// Timeout is the per-fetch HTTP timeout.
	Timeout time.Duration
	// UserAgent is sent with every request.
	UserAgent string
	// Logger receives fetch diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Document is a fetched page converted to markdown.
type Document struct {
	URL             string
	Title           string
	Description     string
	ContentMarkdown string
	Domain          string
	IsTruncated     bool
	FetchedAt       time.Time
}

// Tool fetches and converts documentation pages.
type Tool struct {
	client      *http.Client
	converter   *converter
	allowHosts  []string
	denyHosts   []string
	maxBody     int64
	maxMarkdown int
	userAgent   string
	logger      *slog.Logger
}

// New creates a fetch tool from options.
func New(opts Options) *Tool {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	maxMarkdown := opts.MaxMarkdownChars
	if maxMarkdown <= 0 {
		maxMarkdown = defaultMaxMarkdownChars
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := &Tool{
		converter:   newConverter(),
		allowHosts:  opts.AllowHosts,
		denyHosts:   opts.DenyHosts,
		maxBody:     maxBody,
		maxMarkdown: maxMarkdown,
		userAgent:   userAgent,
		logger:      logger,
	}
	t.client = newHTTPClient(timeout, t.checkURL)
	return t
}

// checkURL runs the full pre-connect policy for one URL.
func (t *Tool) checkURL(rawURL string) error {
	if err := validateURL(rawURL); err != nil {
		return err
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if !urlPermitted(parsed.Hostname(), parsed.Path, t.allowHosts, t.denyHosts) {
		return fmt.Errorf("host %q is not permitted", parsed.Hostname())
	}
	return nil
}

// newHTTPClient builds a client whose dialer re-resolves DNS and refuses
// private IPs, and whose redirect handler re-runs URL policy on every hop.
func newHTTPClient(timeout time.Duration, checkURL func(string) error) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	safeDialContext := func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid address: %w", err)
		}

		ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("DNS lookup failed: %w", err)
		}
		for _, ipAddr := range ips {
			if isPrivateIP(ipAddr.IP) {
				return nil, fmt.Errorf("connection to private IP %s is not allowed", ipAddr.IP)
			}
		}

		for _, ipAddr := range ips {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ipAddr.IP.String(), port))
			if err == nil {
				return conn, nil
			}
		}
		return nil, fmt.Errorf("failed to connect to any resolved IP")
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:           safeDialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("too many redirects (max %d)", maxRedirects)
			}
			if err := checkURL(req.URL.String()); err != nil {
				return fmt.Errorf("redirect blocked: %w", err)
			}
			return nil
		},
	}
}

// Fetch retrieves one page and converts it to markdown.
func (t *Tool) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	if err := t.checkURL(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if ct := resp.Header.Get("Content-Type"); !isHTMLContentType(ct) {
		return nil, fmt.Errorf("%w: %q", ErrNotHTML, ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > t.maxBody {
		return nil, fmt.Errorf("content too large (exceeds %d bytes)", t.maxBody)
	}

	page, err := t.converter.convert(body, resp.Request.URL)
	if err != nil {
		return nil, fmt.Errorf("convert HTML: %w", err)
	}

	markdown, truncated := truncateMarkdown(page.Markdown, t.maxMarkdown)
	title := page.Title
	if title == "" {
		title = resp.Request.URL.Hostname()
	}

	t.logger.Debug("Fetched documentation page",
		"url", rawURL,
		"title", title,
		"markdown_chars", len(markdown),
		"truncated", truncated)

	return &Document{
		URL:             rawURL,
		Title:           title,
		Description:     page.Description,
		ContentMarkdown: markdown,
		Domain:          resp.Request.URL.Hostname(),
		IsTruncated:     truncated,
		FetchedAt:       time.Now().UTC(),
	}, nil
}

// isHTMLContentType accepts HTML-ish content types; an absent header is
// given the benefit of the doubt.
func isHTMLContentType(ct string) bool {
	if ct == "" {
		return true
	}
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") ||
		strings.Contains(ct, "application/xhtml+xml") ||
		strings.Contains(ct, "application/xml")
}
