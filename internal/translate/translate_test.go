package translate

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mobilePage = `<!DOCTYPE html><html><head><title>Translate</title></head>
<body><div class="header">menu</div>
<div class="result-container">Привет, &amp; мир</div>
<div class="result-container">second</div></body></html>`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{Endpoint: srv.URL + "/m", Logger: quietLogger()})
	require.NoError(t, err)
	return c
}

func TestTranslateSendsQuery(t *testing.T) {
	var got http.Header
	var query map[string][]string
	var path string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		query = r.URL.Query()
		path = r.URL.Path
		_, _ = io.WriteString(w, mobilePage)
	})

	out, err := c.Translate(context.Background(), "Hello, & world", English, Russian)
	require.NoError(t, err)
	assert.Equal(t, "Привет, & мир", out)

	assert.Equal(t, "/m", path)
	assert.Equal(t, []string{"en"}, query["sl"])
	assert.Equal(t, []string{"ru"}, query["tl"])
	assert.Equal(t, []string{"Hello, & world"}, query["q"])
	assert.NotEmpty(t, got.Get("User-Agent"))
}

func TestTranslateNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html><body><p>rate limited</p></body></html>")
	})
	_, err := c.Translate(context.Background(), "text", English, Russian)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTranslateHTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTooManyRequests)
	})
	_, err := c.Translate(context.Background(), "text", English, Russian)
	require.ErrorIs(t, err, ErrRequest)
	assert.Contains(t, err.Error(), "429")
}

func TestTranslateContextCancel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Translate(ctx, "text", English, Russian)
	require.ErrorIs(t, err, ErrRequest)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTranslateEmptyText(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := c.Translate(context.Background(), "  \n", English, Russian)
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestNewRejectsBadEndpoint(t *testing.T) {
	_, err := New(Config{Endpoint: "ftp://example.com"})
	assert.Error(t, err)

	c, err := New(Config{Logger: quietLogger()})
	require.NoError(t, err)
	assert.Equal(t, DefaultEndpoint, c.endpoint.String())
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
}

func TestExtractResultText(t *testing.T) {
	out, err := extractResult(strings.NewReader(
		`<div class="wrap result-container"><span>line one</span><br>line two</div>`))
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", out)
}

func TestDetect(t *testing.T) {
	d := NewDetector()
	tests := []struct {
		text string
		want Language
	}{
		{"hello world", English},
		{"привет мир", Russian},
		{"привет, John", Russian},
		{"Go is a язык", English},
		{"ёжик", Russian},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := d.Detect(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := d.Detect("12345 !?")
	assert.ErrorIs(t, err, ErrUnknownLanguage)
}

func TestDirection(t *testing.T) {
	from, to := Direction(English, Russian, English)
	assert.Equal(t, English, from)
	assert.Equal(t, Russian, to)

	from, to = Direction(Russian, Russian, English)
	assert.Equal(t, Russian, from)
	assert.Equal(t, English, to)
}
