package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgast/canarygate/pkg/spec"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, auth spec.AuthConfig) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewHTTPClient(Options{BaseURL: srv.URL + "/", Auth: auth, VerifySSL: true})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRequestDecodesJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/query", r.URL.Path)
		assert.Equal(t, "rate(errors[5m])", r.URL.Query().Get("query"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"result":[{"value":[1700000000,"0.5"]}]}}`))
	}, spec.AuthConfig{})

	doc, err := c.Request(context.Background(), spec.Query{
		Endpoint: "/api/v1/query",
		Method:   "GET",
		Params:   map[string]any{"query": "rate(errors[5m])"},
		Timeout:  5,
	})
	require.NoError(t, err)
	m, ok := doc.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, m, "data")
}

func TestRequestRepeatedParams(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, []string{"a", "b"}, r.URL.Query()["tag"])
		assert.Equal(t, "1", r.URL.Query().Get("keep"))
		w.Write([]byte(`{}`))
	}, spec.AuthConfig{})

	_, err := c.Request(context.Background(), spec.Query{
		Endpoint: "search?keep=1",
		Params:   map[string]any{"tag": []any{"a", "b"}},
		Timeout:  5,
	})
	require.NoError(t, err)
}

func TestRequestAuthHeaders(t *testing.T) {
	tests := []struct {
		name   string
		auth   spec.AuthConfig
		header string
		want   string
	}{
		{"bearer", spec.AuthConfig{Method: spec.AuthBearer, Token: "tok"}, "Authorization", "Bearer tok"},
		{"api key", spec.AuthConfig{Method: spec.AuthAPIKey, Token: "k", HeaderName: "X-API-Key"}, "X-API-Key", "k"},
		{"header", spec.AuthConfig{Method: spec.AuthHeader, Token: "v", HeaderName: "X-Custom"}, "X-Custom", "v"},
		{"basic", spec.AuthConfig{Method: spec.AuthBasic, Username: "u", Password: "p"}, "Authorization", "Basic dTpw"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.want, r.Header.Get(tt.header))
				w.Write([]byte(`{}`))
			}, tt.auth)
			_, err := c.Request(context.Background(), spec.Query{Endpoint: "x", Timeout: 5})
			require.NoError(t, err)
		})
	}
}

func TestRequestHeadersOverrideAuth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer override", r.Header.Get("Authorization"))
		w.Write([]byte(`{}`))
	}, spec.AuthConfig{Method: spec.AuthBearer, Token: "tok"})

	_, err := c.Request(context.Background(), spec.Query{
		Endpoint: "x",
		Headers:  map[string]string{"Authorization": "Bearer override"},
		Timeout:  5,
	})
	require.NoError(t, err)
}

func TestRequestBodies(t *testing.T) {
	t.Run("json map", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "errors", body["metric"])
			w.Write([]byte(`{"ok":true}`))
		}, spec.AuthConfig{})
		_, err := c.Request(context.Background(), spec.Query{
			Endpoint: "q", Method: "POST", Body: map[string]any{"metric": "errors"}, Timeout: 5,
		})
		require.NoError(t, err)
	})

	t.Run("raw string", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
			data, _ := io.ReadAll(r.Body)
			assert.Equal(t, "query=up", string(data))
			w.Write([]byte(`{}`))
		}, spec.AuthConfig{})
		_, err := c.Request(context.Background(), spec.Query{
			Endpoint: "q", Method: "POST", Body: "query=up", Timeout: 5,
		})
		require.NoError(t, err)
	})
}

func TestRequestErrorStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("upstream down"))
	}, spec.AuthConfig{})

	_, err := c.Request(context.Background(), spec.Query{Endpoint: "x", Timeout: 5})
	require.Error(t, err)
	var te *Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	assert.Contains(t, err.Error(), "HTTP 503")
	assert.Contains(t, err.Error(), "upstream down")
}

func TestRequestNonJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>hello</html>"))
	}, spec.AuthConfig{})

	_, err := c.Request(context.Background(), spec.Query{Endpoint: "x", Timeout: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected JSON response but got: <html>")
}

func TestRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, spec.AuthConfig{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Request(ctx, spec.Query{Endpoint: "slow", Timeout: 30})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestCABundleMissing(t *testing.T) {
	_, err := NewHTTPClient(Options{
		BaseURL:  "https://example.com",
		CABundle: filepath.Join(t.TempDir(), "missing.pem"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CA bundle file not found")
}

func TestCABundleNoCerts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a cert"), 0644))
	_, err := NewHTTPClient(Options{BaseURL: "https://example.com", CABundle: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no PEM certificates")
}

func TestOptionsFromConfig(t *testing.T) {
	off := false
	cfg := spec.DefaultConfig()
	cfg.APIEndpoint = "https://prom.example.com"
	cfg.VerifySSL = &off
	cfg.RateLimit = 2.5

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, "https://prom.example.com", opts.BaseURL)
	assert.False(t, opts.VerifySSL)
	assert.Equal(t, 2.5, opts.RateLimit)
}
