// Package hypercore talks to the REST API of a HyperCore cluster.
//
// It layers a record client and a task poller over an authenticated
// transport, and offers reconciliation runners (DNS configuration, VM node
// affinity, virtual disks) built on them. Every mutating call accepts a check
// flag; in check mode nothing is sent and a nil *TaskTag is returned.
package hypercore

import (
	"context"

	"github.com/loykin/hypercore/internal/common"
	"github.com/loykin/hypercore/internal/errs"
	"github.com/loykin/hypercore/internal/httpc"
	"github.com/loykin/hypercore/internal/module"
	"github.com/loykin/hypercore/internal/resource"
	"github.com/loykin/hypercore/internal/rest"
	"github.com/loykin/hypercore/internal/source"
	"github.com/loykin/hypercore/internal/task"
)

// Re-export commonly used types for public API

// Credentials are a validated cluster address plus basic-auth user.
type Credentials = httpc.Credentials

// Transport performs authenticated exchanges with one cluster.
type Transport = httpc.Client

// TransportOption configures a Transport.
type TransportOption = httpc.Option

// Response is a transport response with lower-cased headers.
type Response = httpc.Response

// Client is the record client.
type Client = rest.Client

type (
	Record  = rest.Record
	Filter  = rest.Filter
	TaskTag = rest.TaskTag
)

type (
	TaskState  = task.State
	TaskStatus = task.Status
	PollConfig = task.PollConfig
	Poller     = task.Poller
)

// Transport options.
var (
	WithTimeout            = httpc.WithTimeout
	WithInsecureSkipVerify = httpc.WithInsecureSkipVerify
	WithTLSConfig          = httpc.WithTLSConfig
	WithUserAgent          = httpc.WithUserAgent
	WithLogger             = httpc.WithLogger
	WithHTTPClient         = httpc.WithHTTPClient
)

// NewCredentials validates host, which must include http:// or https://.
func NewCredentials(host, username, password string) (Credentials, error) {
	return httpc.NewCredentials(host, username, password)
}

// NewTransport creates a Transport for creds.
func NewTransport(creds Credentials, opts ...TransportOption) (*Transport, error) {
	return httpc.New(creds, opts...)
}

// NewClient returns a record client using t.
func NewClient(t *Transport) *Client {
	return rest.New(t)
}

// Connect is shorthand for NewCredentials, NewTransport and NewClient.
func Connect(host, username, password string, opts ...TransportOption) (*Client, error) {
	creds, err := NewCredentials(host, username, password)
	if err != nil {
		return nil, err
	}
	t, err := NewTransport(creds, opts...)
	if err != nil {
		return nil, err
	}
	return NewClient(t), nil
}

// DefaultPollConfig polls every second for at most ten minutes.
func DefaultPollConfig() PollConfig { return task.DefaultPollConfig() }

// WaitTasks blocks until every tag completes. Nil tags are ignored.
func WaitTasks(ctx context.Context, c *Client, cfg PollConfig, tags ...*TaskTag) ([]TaskStatus, error) {
	return task.Wait(ctx, c, cfg, tags...)
}

// Resource mappings

type (
	Node             = resource.Node
	NodeSelector     = resource.NodeSelector
	VM               = resource.VM
	AffinityStrategy = resource.AffinityStrategy
	VirtualDisk      = resource.VirtualDisk
	DNSConfig        = resource.DNSConfig
)

// Reconciliation runners

type (
	Runtime            = module.Runtime
	Result             = module.Result
	Diff               = module.Diff
	DNSConfigParams    = module.DNSConfigParams
	NodeAffinityParams = module.NodeAffinityParams
	VirtualDiskParams  = module.VirtualDiskParams
	EntryState         = module.EntryState
	S3Config           = source.S3Config
)

const (
	EntrySet    = module.EntrySet
	EntryBefore = module.EntryBefore
	EntryAfter  = module.EntryAfter
	DiskPresent = module.DiskPresent
	DiskAbsent  = module.DiskAbsent
)

// NewImageResolver opens disk images from local paths or s3://bucket/key.
func NewImageResolver(cfg S3Config) *source.Resolver { return source.NewResolver(cfg) }

func RunDNSConfig(ctx context.Context, rt *Runtime, p DNSConfigParams) (*Result, error) {
	return module.RunDNSConfig(ctx, rt, p)
}

func RunNodeAffinity(ctx context.Context, rt *Runtime, p NodeAffinityParams) (*Result, error) {
	return module.RunNodeAffinity(ctx, rt, p)
}

func RunVirtualDisk(ctx context.Context, rt *Runtime, p VirtualDiskParams) (*Result, error) {
	return module.RunVirtualDisk(ctx, rt, p)
}

func RunVirtualDiskInfo(ctx context.Context, rt *Runtime, name string) (*Result, error) {
	return module.RunVirtualDiskInfo(ctx, rt, name)
}

func RunTaskWait(ctx context.Context, rt *Runtime, ids ...string) (*Result, error) {
	return module.RunTaskWait(ctx, rt, ids...)
}

// Error taxonomy

type (
	ErrorKind               = errs.Kind
	ConfigurationError      = errs.ConfigurationError
	AuthenticationError     = errs.AuthenticationError
	ConnectivityError       = errs.ConnectivityError
	MalformedResponseError  = errs.MalformedResponseError
	UnexpectedResponseError = errs.UnexpectedResponseError
	ConsistencyError        = errs.ConsistencyError
	TaskFailureError        = errs.TaskFailureError
	TaskTimeoutError        = errs.TaskTimeoutError
	MissingFieldError       = errs.MissingFieldError
)

// ErrAmbiguousPayload is returned for a request with both JSON and binary payloads.
var ErrAmbiguousPayload = errs.ErrAmbiguousPayload

// KindOf classifies err.
func KindOf(err error) ErrorKind { return errs.KindOf(err) }

// Retryable reports whether replaying the invocation later may succeed.
func Retryable(err error) bool { return errs.Retryable(err) }

// Logging

type (
	Logger   = common.Logger
	LogLevel = common.LogLevel
)

const (
	LogLevelError = common.LogLevelError
	LogLevelWarn  = common.LogLevelWarn
	LogLevelInfo  = common.LogLevelInfo
	LogLevelDebug = common.LogLevelDebug
)

// NewLogger creates a text logger with the specified level
func NewLogger(level LogLevel) *Logger { return common.NewLogger(level) }

// NewJSONLogger creates a structured logger with JSON output
func NewJSONLogger(level LogLevel) *Logger { return common.NewJSONLogger(level) }

// NewColorLogger creates a logger with ANSI colors when stderr is a terminal
func NewColorLogger(level LogLevel) *Logger { return common.NewColorLogger(level) }

// SetDefaultLogger sets the logger used by components created afterwards.
func SetDefaultLogger(l *Logger) { common.SetDefaultLogger(l) }

// EnableMasking toggles redaction of credentials in log output.
func EnableMasking(enabled bool) { common.EnableMasking(enabled) }
