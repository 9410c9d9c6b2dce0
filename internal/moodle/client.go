// Package moodle talks to a Moodle site with an authenticated browser-like
// session: login, course crawl, resource and quiz downloads.
package moodle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/maelgoujon/moodle-resource-downloader/pkg/ratelimit"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"
)

// ClientConfig configures the HTTP session.
type ClientConfig struct {
	Timeout           time.Duration
	DownloadTimeout   time.Duration
	RequestsPerSecond float64
	Burst             int
	UserAgent         string
}

// DefaultClientConfig returns the settings used when none are configured.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:           20 * time.Second,
		DownloadTimeout:   120 * time.Second,
		RequestsPerSecond: 4,
		Burst:             4,
		UserAgent:         "Mozilla/5.0 (X11; Linux x86_64; rv:144.0) Gecko/20100101 Firefox/144.0",
	}
}

// Client is a cookie-keeping Moodle session paced per host. It is safe for
// concurrent use.
type Client struct {
	http            *http.Client
	limiter         *ratelimit.HostLimiter
	userAgent       string
	timeout         time.Duration
	downloadTimeout time.Duration
}

// NewClient creates a session with an empty cookie jar.
func NewClient(cfg ClientConfig) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	defaults := DefaultClientConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = defaults.DownloadTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}

	return &Client{
		http: &http.Client{
			Jar: jar,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		limiter:         ratelimit.NewHostLimiter(cfg.RequestsPerSecond, cfg.Burst),
		userAgent:       cfg.UserAgent,
		timeout:         cfg.Timeout,
		downloadTimeout: cfg.DownloadTimeout,
	}, nil
}

// Page is a fully read HTTP response.
type Page struct {
	URL    *url.URL // final URL after redirects
	Status int
	Header http.Header
	Body   []byte

	doc *goquery.Document
}

// ContentType returns the media type without parameters, lower-cased.
func (p *Page) ContentType() string {
	return mediaType(p.Header.Get("Content-Type"))
}

// IsHTML reports whether the response carries an HTML document.
func (p *Page) IsHTML() bool {
	ct := p.ContentType()
	if ct == "" {
		return bytes.Contains(bytes.ToLower(p.Body[:min(len(p.Body), 512)]), []byte("<html"))
	}
	return ct == "text/html" || ct == "application/xhtml+xml"
}

// Document parses the body as HTML. The result is cached.
func (p *Page) Document() (*goquery.Document, error) {
	if p.doc != nil {
		return p.doc, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", p.URL, err)
	}
	doc.Url = p.URL
	p.doc = doc
	return doc, nil
}

// Title returns the trimmed document title, or "".
func (p *Page) Title() string {
	doc, err := p.Document()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// Resolve makes ref absolute against the page URL.
func (p *Page) Resolve(ref string) string {
	return resolveRef(p.URL, ref)
}

// Get fetches rawURL and reads the whole body.
func (c *Client) Get(ctx context.Context, rawURL string) (*Page, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	return c.fetch(ctx, req)
}

// PostForm submits values as application/x-www-form-urlencoded.
func (c *Client) PostForm(ctx context.Context, rawURL string, values url.Values) (*Page, error) {
	req, err := http.NewRequest(http.MethodPost, rawURL, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.fetch(ctx, req)
}

func (c *Client) fetch(ctx context.Context, req *http.Request) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", req.URL, err)
	}

	log.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("final_url", resp.Request.URL.String()).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Msg("Moodle request completed")

	return &Page{
		URL:    resp.Request.URL,
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   body,
	}, nil
}

// Open starts a streaming GET bounded by the download timeout. The caller
// must close the returned body.
func (c *Client) Open(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.downloadTimeout)
	resp, err := c.do(ctx, req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// HostStats reports request and error counts per host.
func (c *Client) HostStats() map[string]ratelimit.HostStats {
	return c.limiter.Stats()
}

func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	host := req.URL.Host
	if err := c.limiter.Wait(ctx, host); err != nil {
		return nil, err
	}

	req = req.WithContext(ctx)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "fr-FR,fr;q=0.9,en-US;q=0.8,en;q=0.5")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			c.limiter.RecordError(host)
		}
		return nil, fmt.Errorf("request to %s failed: %w", req.URL, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		c.limiter.RecordError(host)
	} else {
		c.limiter.RecordSuccess(host)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, req.URL, resp.StatusCode)
	}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func resolveRef(base *url.URL, ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}

// parseURL returns nil for unparsable input.
func parseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	return u
}
