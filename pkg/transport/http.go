package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/cgast/canarygate/pkg/spec"
)

const (
	maxBodyBytes   = 10 * 1024 * 1024 // 10MB limit
	errorBodyBytes = 200
)

// Options configures an HTTPClient.
type Options struct {
	BaseURL   string
	Auth      spec.AuthConfig
	VerifySSL bool
	CABundle  string  // PEM file; overrides VerifySSL when set
	RateLimit float64 // requests per second across all checks, 0 = unlimited
}

// OptionsFromConfig extracts transport options from a verification config.
func OptionsFromConfig(cfg spec.VerificationConfig) Options {
	return Options{
		BaseURL:   cfg.APIEndpoint,
		Auth:      cfg.Auth,
		VerifySSL: cfg.SSLVerification(),
		CABundle:  cfg.CABundle,
		RateLimit: cfg.RateLimit,
	}
}

// HTTPClient is the production Transport. One client (and its connection
// pool) is shared by every check of a run.
type HTTPClient struct {
	baseURL    string
	auth       spec.AuthConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPClient builds a client. A missing or unreadable CA bundle is a
// configuration error reported here, before any polling starts.
func NewHTTPClient(opts Options) (*HTTPClient, error) {
	tlsConfig, err := buildTLSConfig(opts)
	if err != nil {
		return nil, err
	}

	c := &HTTPClient{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		auth:    opts.Auth,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				TLSClientConfig:     tlsConfig,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after 5 redirects")
				}
				return nil
			},
		},
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return c, nil
}

func buildTLSConfig(opts Options) (*tls.Config, error) {
	if opts.CABundle != "" {
		pem, err := os.ReadFile(opts.CABundle)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("CA bundle file not found: %s", opts.CABundle)
			}
			return nil, fmt.Errorf("read CA bundle %s: %w", opts.CABundle, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("CA bundle %s contains no PEM certificates", opts.CABundle)
		}
		return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
	}
	if !opts.VerifySSL {
		return &tls.Config{InsecureSkipVerify: true}, nil //nolint:gosec // opt-in for dev/test endpoints
	}
	return nil, nil
}

// Request issues q and decodes the JSON response body.
func (c *HTTPClient) Request(ctx context.Context, q spec.Query) (any, error) {
	method := strings.ToUpper(q.Method)
	if method == "" {
		method = http.MethodGet
	}

	rawURL, err := c.buildURL(q)
	if err != nil {
		return nil, &Error{Method: method, URL: q.Endpoint, Err: err}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Method: method, URL: rawURL, Err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	if timeout := q.TimeoutDuration(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body, contentType, err := encodeBody(q.Body)
	if err != nil {
		return nil, &Error{Method: method, URL: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, &Error{Method: method, URL: rawURL, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.authHeaders() {
		req.Header.Set(k, v)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range q.Headers {
		req.Header.Set(k, v)
	}
	if c.auth.Method == spec.AuthBasic {
		req.SetBasicAuth(c.auth.Username, c.auth.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Method: method, URL: rawURL, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{Method: method, URL: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Method: method, URL: rawURL, StatusCode: resp.StatusCode, Body: truncate(string(data), errorBodyBytes)}
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &Error{
			Method:     method,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("expected JSON response but got: %s", truncate(string(data), errorBodyBytes)),
		}
	}
	return doc, nil
}

// Close releases pooled connections.
func (c *HTTPClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) authHeaders() map[string]string {
	headers := make(map[string]string)
	switch c.auth.Method {
	case spec.AuthBearer:
		if c.auth.Token != "" {
			headers["Authorization"] = "Bearer " + c.auth.Token
		}
	case spec.AuthAPIKey, spec.AuthHeader:
		if c.auth.HeaderName != "" && c.auth.Token != "" {
			headers[c.auth.HeaderName] = c.auth.Token
		}
	}
	return headers
}

// buildURL joins the base URL and endpoint and merges query params.
func (c *HTTPClient) buildURL(q spec.Query) (string, error) {
	u, err := url.Parse(c.baseURL + "/" + strings.TrimLeft(q.Endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if len(q.Params) > 0 {
		values := u.Query()
		for k, v := range encodeParams(q.Params) {
			values[k] = append(values[k], v...)
		}
		u.RawQuery = values.Encode()
	}
	return u.String(), nil
}

// encodeParams turns config params into query values; lists become
// repeated keys.
func encodeParams(params map[string]any) url.Values {
	values := url.Values{}
	for k, v := range params {
		switch tv := v.(type) {
		case []any:
			for _, item := range tv {
				values.Add(k, fmt.Sprint(item))
			}
		case []string:
			for _, item := range tv {
				values.Add(k, item)
			}
		case nil:
			values.Add(k, "")
		default:
			values.Add(k, fmt.Sprint(tv))
		}
	}
	return values
}

// encodeBody returns the request body and its default content type: JSON
// for structured bodies, form encoding for raw strings.
func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		if b == "" {
			return nil, "", nil
		}
		return strings.NewReader(b), "application/x-www-form-urlencoded", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("encode JSON body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}
}
