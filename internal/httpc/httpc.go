// Package httpc performs single HTTP exchanges against a HyperCore cluster.
//
// A Client owns the cluster credentials, computes the basic-auth header once and
// normalizes every exchange into a Response. Non-2xx statuses are returned to the
// caller unchanged, except 401 which is always an authentication failure.
package httpc

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/loykin/hypercore/internal/common"
	"github.com/loykin/hypercore/internal/errs"
	"github.com/loykin/hypercore/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

// Credentials identify one HyperCore cluster instance. Use NewCredentials to
// construct a validated value.
type Credentials struct {
	Host     string
	Username string
	Password string
}

// NewCredentials validates host and returns immutable credentials.
// Host must start with http:// or https://; no network access is attempted.
func NewCredentials(host, username, password string) (Credentials, error) {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		return Credentials{}, &errs.ConfigurationError{
			Field:  "host",
			Value:  host,
			Reason: "Host URL must include the protocol (http:// or https://)",
		}
	}
	return Credentials{
		Host:     strings.TrimRight(host, "/"),
		Username: username,
		Password: password,
	}, nil
}

// Request describes one exchange. JSON and Binary are mutually exclusive.
type Request struct {
	Method string
	// URL is absolute; build it with Client.URL.
	URL     string
	JSON    any
	Binary  io.Reader
	Size    int64
	Headers map[string]string
	// Timeout overrides the client default when non-zero.
	Timeout time.Duration
}

// Client performs exchanges with a single cluster.
type Client struct {
	creds     Credentials
	rc        *resty.Client
	timeout   time.Duration
	userAgent string
	logger    *common.Logger

	authOnce   sync.Once
	authHeader string
}

// New creates a Client for creds. Credentials built by hand are validated again here.
func New(creds Credentials, opts ...Option) (*Client, error) {
	validated, err := NewCredentials(creds.Host, creds.Username, creds.Password)
	if err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	var rc *resty.Client
	if o.httpClient != nil {
		rc = resty.NewWithClient(o.httpClient)
	} else {
		rc = resty.New()
	}
	if tlsCfg := o.tlsConfig(); tlsCfg != nil {
		rc.SetTLSClientConfig(tlsCfg)
	}
	rc.SetPreRequestHook(applyContentLength)

	logger := o.logger
	if logger == nil {
		logger = common.GetLogger()
	}

	return &Client{
		creds:     validated,
		rc:        rc,
		timeout:   o.timeout,
		userAgent: o.userAgent,
		logger:    logger.WithComponent("transport"),
	}, nil
}

// Host returns the validated cluster base URL without a trailing slash.
func (c *Client) Host() string {
	return c.creds.Host
}

// URL joins the cluster host with an already encoded path and query.
func (c *Client) URL(pathAndQuery string) string {
	if !strings.HasPrefix(pathAndQuery, "/") {
		pathAndQuery = "/" + pathAndQuery
	}
	return c.creds.Host + pathAndQuery
}

// AuthHeader returns the basic-auth header value, computing it on first use.
func (c *Client) AuthHeader() string {
	c.authOnce.Do(func() {
		raw := c.creds.Username + ":" + c.creds.Password
		c.authHeader = "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
	})
	return c.authHeader
}

type contentLengthKey struct{}

// applyContentLength sets the declared size on streamed bodies so uploads are not
// sent chunked.
func applyContentLength(_ *resty.Client, hr *http.Request) error {
	if n, ok := hr.Context().Value(contentLengthKey{}).(int64); ok && n >= 0 {
		hr.ContentLength = n
	}
	return nil
}

// Do performs one exchange and returns the normalized response.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.JSON != nil && req.Binary != nil {
		return nil, errs.ErrAmbiguousPayload
	}
	if ctx == nil {
		ctx = context.Background()
	}
	method := strings.ToUpper(req.Method)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := observability.StartSpan(ctx, "hypercore.http "+method,
		attribute.String("http.method", method),
		attribute.String("http.url", req.URL),
	)

	r := c.rc.R().SetContext(ctx)
	r.SetHeader("Accept", "application/json")
	if c.userAgent != "" {
		r.SetHeader("User-Agent", c.userAgent)
	}
	for k, v := range req.Headers {
		r.SetHeader(k, v)
	}
	r.SetHeader("Authorization", c.AuthHeader())

	switch {
	case req.JSON != nil:
		body, err := json.Marshal(req.JSON)
		if err != nil {
			observability.EndSpan(span, err)
			return nil, fmt.Errorf("encode request body for %s %s: %w", method, req.URL, err)
		}
		r.SetHeader("Content-Type", "application/json")
		r.SetBody(body)
	case req.Binary != nil:
		if req.Size >= 0 {
			ctx = context.WithValue(ctx, contentLengthKey{}, req.Size)
			r.SetContext(ctx)
		}
		r.SetHeader("Content-Type", "application/octet-stream")
		r.SetBody(req.Binary)
	}

	start := time.Now()
	resp, err := r.Execute(method, req.URL)
	elapsed := time.Since(start)
	log := c.logger.WithRequest(method, req.URL)

	if err != nil {
		observability.RecordRequest(method, 0, elapsed)
		log.Debug("http exchange failed", "error", err, "elapsed", elapsed)
		cerr := &errs.ConnectivityError{Method: method, URL: req.URL, Err: unwrapURLError(err)}
		observability.EndSpan(span, cerr)
		return nil, cerr
	}

	status := resp.StatusCode()
	observability.RecordRequest(method, status, elapsed)
	span.SetAttributes(attribute.Int("http.status_code", status))
	log.Debug("http exchange", "status", status, "bytes", len(resp.Body()), "elapsed", elapsed)

	if status == http.StatusUnauthorized {
		aerr := &errs.AuthenticationError{
			Method: method,
			URL:    req.URL,
			Status: status,
			Reason: http.StatusText(status),
		}
		observability.EndSpan(span, aerr)
		return nil, aerr
	}

	observability.EndSpan(span, nil)
	return NewResponse(status, resp.Body(), resp.Header()), nil
}

// unwrapURLError keeps the underlying reason text without repeating method and URL.
func unwrapURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Err != nil {
		return uerr.Err
	}
	return err
}

// NewTLSConfig returns the TLS settings used for a cluster connection.
func NewTLSConfig(insecure bool, minVersion string) *tls.Config {
	cfg := &tls.Config{InsecureSkipVerify: insecure} // #nosec G402 -- opt-in for self-signed cluster certificates
	if v := ParseTLSVersion(minVersion); v != 0 {
		cfg.MinVersion = v
	} else {
		cfg.MinVersion = tls.VersionTLS12
	}
	return cfg
}

// ParseTLSVersion maps "1.2", "tls1.3", "TLS13" and similar onto a tls version constant.
// Unknown input returns 0.
func ParseTLSVersion(s string) uint16 {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "tls")
	v = strings.TrimPrefix(v, "v")
	v = strings.ReplaceAll(v, "_", ".")
	switch v {
	case "1.0", "10":
		return tls.VersionTLS10
	case "1.1", "11":
		return tls.VersionTLS11
	case "1.2", "12":
		return tls.VersionTLS12
	case "1.3", "13":
		return tls.VersionTLS13
	default:
		return 0
	}
}
