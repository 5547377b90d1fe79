// Package catalog is an HTTP client for the ArkhamDB public API.
//
// Every fetch is a plain GET. Callers holding a Last-Modified token pass it
// back through Conditional so the server can answer 304, which surfaces as
// ErrNotModified. The client never retries; that policy belongs to callers.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/schema"
)

// DefaultHost is the production API host.
const DefaultHost = "arkhamdb.com"

// DefaultTimeout bounds a single request, body included.
const DefaultTimeout = 30 * time.Second

// ErrNotModified is returned when the server answers 304 to a conditional request.
var ErrNotModified = errors.New("not modified")

// StatusError is returned for any non-2xx, non-304 response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog: GET %s: HTTP %d", e.URL, e.StatusCode)
}

// Conditional carries the cache validator for a request. A zero value sends
// an unconditional request.
type Conditional struct {
	IfModifiedSince string
}

// Client fetches card, taboo, pack and FAQ feeds.
type Client struct {
	scheme     string
	host       string
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHost overrides the API host; localized feeds still get a language prefix.
func WithHost(host string) Option {
	return func(c *Client) {
		if host != "" {
			c.host = host
		}
	}
}

// WithBaseURL pins every request to a fixed scheme and host, e.g. a mirror or
// a test server. No language prefix is applied.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(base, "/") }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger sets the logger for request outcomes.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for arkhamdb.com.
func New(opts ...Option) *Client {
	c := &Client{
		scheme:     "https",
		host:       DefaultHost,
		userAgent:  "ahdb/1.0",
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     log.New(os.Stderr, "[catalog] ", log.LstdFlags),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// CardsResponse is the card feed. Records are left undecoded so one
// malformed record can be skipped without losing the rest; see
// normalize.DecodeBatch.
type CardsResponse struct {
	Cards        []json.RawMessage
	LastModified string
}

// TaboosResponse is the decoded taboo feed. Each taboo's Cards field is
// still JSON-encoded; see schema.TabooJSON.ParseCards.
type TaboosResponse struct {
	Taboos       []schema.TabooJSON
	LastModified string
}

// FaqResponse is the decoded FAQ feed of one card. Entries is empty when the
// card has no FAQ.
type FaqResponse struct {
	Entries      []schema.FaqJSON
	LastModified string
}

// FetchCards fetches every card, encounter cards included.
func (c *Client) FetchCards(ctx context.Context, lang string, cond Conditional) (*CardsResponse, error) {
	var out CardsResponse
	lm, err := c.getJSON(ctx, c.endpoint(lang, "/api/public/cards/", "encounter=1"), cond, &out.Cards)
	if err != nil {
		return nil, err
	}
	out.LastModified = lm
	return &out, nil
}

// FetchTaboos fetches every taboo list revision.
func (c *Client) FetchTaboos(ctx context.Context, lang string, cond Conditional) (*TaboosResponse, error) {
	var out TaboosResponse
	lm, err := c.getJSON(ctx, c.endpoint(lang, "/api/public/taboos/", ""), cond, &out.Taboos)
	if err != nil {
		return nil, err
	}
	out.LastModified = lm
	return &out, nil
}

// FetchPacks fetches the pack list used to resolve pack and cycle names.
func (c *Client) FetchPacks(ctx context.Context, lang string) ([]schema.Pack, error) {
	var packs []schema.Pack
	if _, err := c.getJSON(ctx, c.endpoint(lang, "/api/public/packs/", ""), Conditional{}, &packs); err != nil {
		return nil, err
	}
	return packs, nil
}

// FetchFaq fetches the FAQ of one card. The FAQ endpoint is never localized.
func (c *Client) FetchFaq(ctx context.Context, code string, cond Conditional) (*FaqResponse, error) {
	var out FaqResponse
	path := "/api/public/faq/" + code + ".json"
	lm, err := c.getJSON(ctx, c.endpoint("", path, ""), cond, &out.Entries)
	if err != nil {
		return nil, err
	}
	out.LastModified = lm
	return &out, nil
}

// endpoint builds the URL for path. Languages other than English are served
// from a "<lang>." subdomain.
func (c *Client) endpoint(lang, path, query string) string {
	u := url.URL{Scheme: c.scheme, Host: c.host, Path: path, RawQuery: query}
	if c.baseURL != "" {
		return c.baseURL + u.RequestURI()
	}
	if prefix := LangPrefix(lang); prefix != "" {
		u.Host = prefix + c.host
	}
	return u.String()
}

// LangPrefix returns the host prefix of a language, "" for English.
func LangPrefix(lang string) string {
	if lang == "" || lang == "en" {
		return ""
	}
	return lang + "."
}

func (c *Client) getJSON(ctx context.Context, rawURL string, cond Conditional, out any) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("catalog: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if cond.IfModifiedSince != "" {
		req.Header.Set("If-Modified-Since", cond.IfModifiedSince)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("catalog: GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		c.logger.Printf("GET %s: not modified (%v)", rawURL, time.Since(start).Round(time.Millisecond))
		return "", ErrNotModified
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return "", fmt.Errorf("catalog: GET %s: decode: %w", rawURL, err)
	}
	c.logger.Printf("GET %s: %d (%v)", rawURL, resp.StatusCode, time.Since(start).Round(time.Millisecond))
	return resp.Header.Get("Last-Modified"), nil
}
