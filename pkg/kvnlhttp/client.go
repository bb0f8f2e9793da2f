package kvnlhttp

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

	"github.com/epithet-ssh/kvnl/pkg/kvnl"
	"golang.org/x/oauth2"
)

// TLSConfig holds TLS options for HTTP clients.
type TLSConfig struct {
	// Insecure disables TLS certificate verification and allows http:// URLs.
	// NOT RECOMMENDED FOR PRODUCTION USE.
	Insecure bool

	// CACertFile is path to a PEM file containing trusted CA certificates.
	// If empty, system CA certificates are used.
	CACertFile string
}

// DefaultTimeout is the default timeout for HTTP clients.
const DefaultTimeout = 30 * time.Second

// NewHTTPClient creates an http.Client with the TLS options and DefaultTimeout.
func NewHTTPClient(cfg TLSConfig) (*http.Client, error) {
	tlsCfg := &tls.Config{InsecureSkipVerify: cfg.Insecure}

	if cfg.CACertFile != "" {
		caCert, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate file %q: %w", cfg.CACertFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate file %q: no valid certificates found", cfg.CACertFile)
		}
		tlsCfg.RootCAs = pool
	}

	return &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsCfg},
		Timeout:   DefaultTimeout,
	}, nil
}

// ValidateURL returns an error for http:// URLs unless Insecure is set.
func (c TLSConfig) ValidateURL(u string) error {
	if strings.HasPrefix(u, "http://") && !c.Insecure {
		return fmt.Errorf("URL %q uses insecure http:// protocol; use https:// or pass --insecure flag to allow insecure connections", u)
	}
	return nil
}

// Client talks to a kvnl server, or fetches KVNL documents from any URL.
type Client struct {
	base string
	http *http.Client
	tls  TLSConfig
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client built from the TLS options.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithTokenSource sends an OAuth2 bearer token with every request.
func WithTokenSource(ts oauth2.TokenSource) ClientOption {
	return func(cl *Client) {
		base := cl.http.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		cl.http = &http.Client{
			Transport: &oauth2.Transport{Source: ts, Base: base},
			Timeout:   cl.http.Timeout,
		}
	}
}

// NewClient creates a client for the server at baseURL. baseURL may be empty
// when the client is only used for Fetch.
func NewClient(baseURL string, tlsCfg TLSConfig, opts ...ClientOption) (*Client, error) {
	if baseURL != "" {
		if err := tlsCfg.ValidateURL(baseURL); err != nil {
			return nil, err
		}
	}
	httpClient, err := NewHTTPClient(tlsCfg)
	if err != nil {
		return nil, err
	}

	c := &Client{base: strings.TrimSuffix(baseURL, "/"), http: httpClient, tls: tlsCfg}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Fetch downloads a KVNL stream from rawURL and decodes every block with the
// given options.
func (c *Client) Fetch(ctx context.Context, rawURL string, opts ...kvnl.Option) ([][]kvnl.Line, error) {
	if err := c.tls.ValidateURL(rawURL); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", ContentType)

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	in, err := kvnl.NewLoadStream(resp.Body, opts...)
	if err != nil {
		return nil, err
	}
	var blocks [][]kvnl.Line
	for {
		lines, err := in.Load()
		if err == io.EOF {
			return blocks, nil
		}
		if err != nil {
			return blocks, fmt.Errorf("%s: block %d: %w", rawURL, len(blocks), err)
		}
		blocks = append(blocks, lines)
	}
}

// Decode sends a KVNL stream to the server and returns the decoded blocks.
func (c *Client) Decode(ctx context.Context, body io.Reader, algorithm string, includeHash bool) (*DecodeResponse, error) {
	q := url.Values{}
	if algorithm != "" {
		q.Set("hash", algorithm)
	}
	if includeHash {
		q.Set("include_hash", "true")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v1/decode", q), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", ContentType)

	var out DecodeResponse
	if err := c.doJSON(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Encode asks the server to encode blocks and returns the KVNL stream.
func (c *Client) Encode(ctx context.Context, enc EncodeRequest, sizing kvnl.Sizing) ([]byte, error) {
	body, err := json.Marshal(enc)
	if err != nil {
		return nil, err
	}
	q := url.Values{"sizing": {sizing.String()}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v1/encode", q), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// Hashes lists the algorithms the server supports.
func (c *Client) Hashes(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/v1/hashes", nil), nil)
	if err != nil {
		return nil, err
	}
	var out HashesResponse
	if err := c.doJSON(req, &out); err != nil {
		return nil, err
	}
	return out.Algorithms, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("unable to parse response: %w", err)
	}
	return nil
}
