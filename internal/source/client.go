// Package source fetches the put-call-ratio page and flattens it to text.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/irfndi/pcr-tracker-go/internal/telemetry"
	"github.com/irfndi/pcr-tracker-go/internal/utils"
)

const (
	DefaultURL       = "https://www.niftyinvest.com/put-call-ratio/CRUDEOILM"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultTimeout   = 10 * time.Second

	maxBodyBytes = 8 << 20
)

// Config describes the page to fetch.
type Config struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
	Headers   map[string]string
}

// Client fetches the source page over HTTP.
type Client struct {
	HTTPClient *http.Client
	cfg        Config
}

// NewClient creates a client with cfg, filling defaults for empty fields.
func NewClient(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
	}
}

// URL returns the configured page address.
func (c *Client) URL() string {
	return c.cfg.URL
}

// Fetch downloads the configured page and returns its visible text.
func (c *Client) Fetch(ctx context.Context) (string, error) {
	return c.FetchURL(ctx, c.cfg.URL)
}

// FetchURL downloads url and returns its visible text.
func (c *Client) FetchURL(ctx context.Context, url string) (text string, err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.GetSourceTracer(), "source.fetch")
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()
	telemetry.SetSpanAttributes(span, telemetry.StringAttribute("http.url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", &utils.NetworkError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return "", &utils.HTTPStatusError{URL: url, StatusCode: resp.StatusCode}
	}
	telemetry.SetSpanAttributes(span, telemetry.Int64Attribute("http.status_code", int64(resp.StatusCode)))

	text, err = PageText(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", &utils.NetworkError{URL: url, Err: err}
	}
	return text, nil
}

// PageText parses an HTML document and returns its text nodes, one per
// line, with script and style content removed.
func PageText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse page: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()

	var lines []string
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, node *goquery.Selection) {
			if goquery.NodeName(node) == "#text" {
				if t := strings.TrimSpace(node.Text()); t != "" {
					lines = append(lines, t)
				}
				return
			}
			walk(node)
		})
	}
	walk(doc.Selection)
	return strings.Join(lines, "\n"), nil
}
