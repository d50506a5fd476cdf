package client

import (
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	"github.com/ytget/biliurl/internal/logger"
)

const (
	defaultTimeout = 15 * time.Second

	userAgentValue    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	acceptEncodingAll = "gzip, deflate, br"
	refererValue      = "https://www.bilibili.com/"
	headerUserAgent   = "User-Agent"
	headerReferer     = "Referer"
	headerAcceptEnc   = "Accept-Encoding"
	headerContentEnc  = "Content-Encoding"
	maxBodyBytes      = 8 << 20
	limiterBurst      = 1
)

// defaultTransport is a tuned HTTP transport reused across clients.
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ResponseHeaderTimeout: 10 * time.Second,
	ForceAttemptHTTP2:     true,
	// Bodies are decoded by DecodeBody so brotli is handled too.
	DisableCompression: true,
	DialContext: (&net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// Config holds optional client parameters. Zero values use defaults.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	ProxyURL  string
	// RateLimit caps outbound requests per second. Zero disables limiting.
	RateLimit float64
}

// Client wraps http.Client with default headers, per-call timeouts and an
// optional outbound rate limiter. It performs no retries.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	Timeout    time.Duration

	limiter *rate.Limiter
}

// New creates a new Client with a tuned Transport and default timeout.
func New() *Client {
	return &Client{
		HTTPClient: &http.Client{Transport: defaultTransport},
		UserAgent:  userAgentValue,
		Timeout:    defaultTimeout,
	}
}

// NewWith creates a new client with provided config. Zero values use defaults.
func NewWith(cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = userAgentValue
	}

	tr := defaultTransport.Clone()
	if cfg.ProxyURL != "" {
		proxyFunc, err := proxyFromURLString(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		tr.Proxy = proxyFunc
	}

	c := &Client{
		HTTPClient: &http.Client{Transport: tr},
		UserAgent:  ua,
		Timeout:    timeout,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), limiterBurst)
	}
	return c, nil
}

// WithHTTPClient returns a Client that sends requests through hc and keeps
// the remaining settings of c.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	cp := *c
	if hc != nil {
		cp.HTTPClient = hc
	}
	return &cp
}

// NoRedirect returns a copy of c whose requests never follow redirects,
// so 3xx responses are handed back to the caller untouched.
func (c *Client) NoRedirect() *Client {
	cp := *c
	hc := *c.httpClient()
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	cp.HTTPClient = &hc
	return &cp
}

// Get performs a single GET with the client's default headers plus header.
// The returned cancel func must be called once the body has been consumed;
// it releases the per-call timeout.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (*http.Response, context.CancelFunc, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get(headerUserAgent) == "" {
		ua := c.UserAgent
		if ua == "" {
			ua = userAgentValue
		}
		req.Header.Set(headerUserAgent, ua)
	}
	if req.Header.Get(headerReferer) == "" {
		req.Header.Set(headerReferer, refererValue)
	}
	req.Header.Set(headerAcceptEnc, acceptEncodingAll)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			cancel()
			return nil, nil, err
		}
	}

	start := time.Now()
	resp, err := c.httpClient().Do(req)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	logger.WithComponent(logger.ComponentClient).Trace("http response", map[string]interface{}{
		"host":        req.URL.Host,
		"path":        req.URL.Path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return resp, cancel, nil
}

// ReadBody reads and decodes resp's body according to its Content-Encoding.
func ReadBody(resp *http.Response) ([]byte, error) {
	r, err := DecodeBody(resp.Header.Get(headerContentEnc), resp.Body)
	if err != nil {
		return nil, err
	}
	if rc, ok := r.(io.Closer); ok && r != io.Reader(resp.Body) {
		defer func() { _ = rc.Close() }()
	}
	return io.ReadAll(io.LimitReader(r, maxBodyBytes))
}

// DecodeBody wraps body in a decompressor matching encoding.
func DecodeBody(encoding string, body io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, nil
	case "gzip":
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		return gz, nil
	case "br":
		return brotli.NewReader(body), nil
	case "deflate":
		zr, err := zlib.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("create deflate reader: %w", err)
		}
		return zr, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

// IsTimeout reports whether err is a deadline expiry from Get.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return &http.Client{Transport: defaultTransport}
	}
	return c.HTTPClient
}

// proxyFromURLString parses a proxy URL and returns a Proxy function.
func proxyFromURLString(raw string) (func(*http.Request) (*url.URL, error), error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("proxy url %q must include scheme and host", raw)
	}
	return http.ProxyURL(u), nil
}
