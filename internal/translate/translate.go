// Package translate turns text into another language through the web
// translator's mobile page.
package translate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"dhe/internal/logging"
)

const (
	DefaultEndpoint = "https://translate.google.com/m"
	DefaultTimeout  = 10 * time.Second

	resultClass  = "result-container"
	maxBodyBytes = 4 << 20
	userAgent    = "Mozilla/5.0 (X11; Linux x86_64) dhe"
)

var (
	// ErrRequest wraps transport failures and non-2xx responses.
	ErrRequest = errors.New("translate: request failed")
	// ErrNotFound is returned when the response carries no translation.
	ErrNotFound = errors.New("translate: translation not found as a result of the query")
	// ErrEmptyText is returned for blank input.
	ErrEmptyText = errors.New("translate: empty text")
)

// Translator translates text between languages.
type Translator interface {
	Translate(ctx context.Context, text string, from, to Language) (string, error)
}

// Config configures a Client.
type Config struct {
	Endpoint string
	Timeout  time.Duration
	// HTTPClient overrides the default client; Timeout is ignored then.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client queries the translator endpoint over HTTP.
type Client struct {
	endpoint   *url.URL
	httpClient *http.Client
	log        *slog.Logger
}

// New creates a Client, filling unset fields from the defaults.
func New(cfg Config) (*Client, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("translate: parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("translate: unsupported endpoint scheme %q", u.Scheme)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	log := cfg.Logger
	if log == nil {
		log = logging.Default().WithComponent("translate").Logger
	}

	return &Client{endpoint: u, httpClient: hc, log: log}, nil
}

// Translate sends text to the endpoint as sl/tl/q query parameters and
// returns the text of the first result-container element.
func (c *Client) Translate(ctx context.Context, text string, from, to Language) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}

	u := *c.endpoint
	q := u.Query()
	q.Set("sl", from.String())
	q.Set("tl", to.String())
	q.Set("q", text)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRequest, err)
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d", ErrRequest, resp.StatusCode)
	}

	result, err := extractResult(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}

	c.log.Debug("translated",
		"from", from,
		"to", to,
		"chars", len([]rune(text)),
		"duration", time.Since(start),
	)
	return result, nil
}

// extractResult finds the first element whose class list contains
// result-container and returns its text content.
func extractResult(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("translate: parse response: %w", err)
	}
	node := findByClass(doc, resultClass)
	if node == nil {
		return "", ErrNotFound
	}
	var sb strings.Builder
	collectText(node, &sb)
	return strings.TrimSpace(sb.String()), nil
}

func findByClass(n *html.Node, class string) *html.Node {
	if n.Type == html.ElementNode && hasClass(n, class) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByClass(c, class); found != nil {
			return found
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, f := range strings.Fields(attr.Val) {
			if f == class {
				return true
			}
		}
	}
	return false
}

func collectText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
	case html.ElementNode:
		if n.Data == "br" {
			sb.WriteByte('\n')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}
