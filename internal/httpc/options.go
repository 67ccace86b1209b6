package httpc

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/loykin/hypercore/internal/common"
	"github.com/loykin/hypercore/internal/constants"
)

type options struct {
	timeout    time.Duration
	insecure   bool
	tls        *tls.Config
	userAgent  string
	logger     *common.Logger
	httpClient *http.Client
}

func defaultOptions() *options {
	return &options{
		timeout:   constants.DefaultRequestTimeout,
		userAgent: constants.DefaultUserAgent,
	}
}

// tlsConfig returns nil when no TLS customisation was requested.
func (o *options) tlsConfig() *tls.Config {
	if o.tls != nil {
		cfg := o.tls.Clone()
		if o.insecure {
			cfg.InsecureSkipVerify = true // #nosec G402
		}
		if cfg.MinVersion == 0 {
			cfg.MinVersion = tls.VersionTLS12
		}
		return cfg
	}
	if o.insecure {
		return NewTLSConfig(true, "")
	}
	return nil
}

// Option configures a Client.
type Option func(*options)

// WithTimeout sets the default per-request timeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithInsecureSkipVerify disables certificate verification, for clusters using
// self-signed certificates.
func WithInsecureSkipVerify(insecure bool) Option {
	return func(o *options) {
		o.insecure = insecure
	}
}

// WithTLSConfig sets the TLS configuration. MinVersion defaults to TLS 1.2.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *options) {
		o.tls = cfg
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		o.userAgent = ua
	}
}

// WithLogger sets the logger used for exchange logs.
func WithLogger(l *common.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithHTTPClient uses hc as the underlying client instead of a fresh one.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}
