// Package task turns HyperCore task tags into blocking waits.
//
// A Poller fetches /rest/v1/TaskTag/<id> until every tracked task completes.
// A task that fails, or whose status cannot be read, aborts the wait with a
// TaskFailureError; exceeding the configured bound yields a TaskTimeoutError.
// Tasks are never polled again once they reach a terminal state, and the
// server-side task is never cancelled.
package task

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/loykin/hypercore/internal/common"
	"github.com/loykin/hypercore/internal/constants"
	"github.com/loykin/hypercore/internal/errs"
	"github.com/loykin/hypercore/internal/httpc"
	"github.com/loykin/hypercore/internal/observability"
	"github.com/loykin/hypercore/internal/rest"
	"github.com/loykin/hypercore/internal/retry"
	"go.opentelemetry.io/otel/attribute"
)

var errTaskNotFound = errors.New("task tag not found")

// PollConfig bounds a wait.
type PollConfig struct {
	Interval    time.Duration `mapstructure:"interval" yaml:"interval"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// DefaultPollConfig polls every second for at most ten minutes.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval: constants.DefaultPollInterval,
		Timeout:  constants.DefaultPollTimeout,
	}
}

func (c PollConfig) normalized() PollConfig {
	if c.Interval <= 0 {
		c.Interval = constants.DefaultPollInterval
	}
	if c.Interval < constants.MinPollInterval {
		c.Interval = constants.MinPollInterval
	}
	if c.Timeout < 0 {
		c.Timeout = 0
	}
	if c.MaxAttempts < 0 {
		c.MaxAttempts = 0
	}
	return c
}

// Getter issues GET requests with record-client status classification.
// *rest.Client implements it.
type Getter interface {
	Get(ctx context.Context, path string, query url.Values) (*httpc.Response, error)
}

// Poller waits for tasks through a Getter.
type Poller struct {
	client Getter
	cfg    PollConfig
	clock  retry.Clock
	logger *common.Logger
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock replaces the wall clock, for deterministic tests.
func WithClock(c retry.Clock) Option {
	return func(p *Poller) {
		p.clock = c
	}
}

// WithLogger sets the poller's logger.
func WithLogger(l *common.Logger) Option {
	return func(p *Poller) {
		p.logger = l
	}
}

// NewPoller returns a Poller using cfg, with unset fields taking defaults.
func NewPoller(client Getter, cfg PollConfig, opts ...Option) *Poller {
	p := &Poller{
		client: client,
		cfg:    cfg.normalized(),
		clock:  retry.RealClock,
		logger: common.GetLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.WithComponent("task-poller")
	return p
}

// Wait is shorthand for NewPoller(client, cfg).Wait(ctx, tags...).
func Wait(ctx context.Context, client Getter, cfg PollConfig, tags ...*rest.TaskTag) ([]Status, error) {
	return NewPoller(client, cfg).Wait(ctx, tags...)
}

// Fetch reads the current status of one task.
func (p *Poller) Fetch(ctx context.Context, id string) (Status, error) {
	resp, err := p.client.Get(ctx, rest.Join(constants.TaskTagPath, id), nil)
	if err != nil {
		if k := errs.KindOf(err); k == errs.KindUnexpectedResponse || k == errs.KindMalformedResponse {
			return Status{TaskTag: id}, &errs.TaskFailureError{TaskTag: id, Err: err}
		}
		return Status{TaskTag: id}, err
	}
	if resp.Status == http.StatusNotFound {
		return Status{TaskTag: id}, &errs.TaskFailureError{TaskTag: id, Payload: string(resp.Data), Err: errTaskNotFound}
	}

	path := rest.Join(constants.TaskTagPath, id)
	doc, err := resp.JSON()
	if err != nil {
		return Status{TaskTag: id}, &errs.TaskFailureError{TaskTag: id, Err: errs.AttachRequest(err, http.MethodGet, path)}
	}
	if doc.IsArray() {
		if len(doc.Array()) == 0 {
			return Status{TaskTag: id}, &errs.TaskFailureError{TaskTag: id, Payload: doc.Raw, Err: errTaskNotFound}
		}
		doc = doc.Get("0")
	}
	if !doc.IsObject() {
		return Status{TaskTag: id}, &errs.TaskFailureError{
			TaskTag: id,
			Err:     errs.AttachRequest(errs.NewMalformedResponse(resp.Data, "task status is not an object"), http.MethodGet, path),
		}
	}

	record := rest.NewRecord([]byte(doc.Raw))
	return Status{
		TaskTag:  id,
		State:    ParseState(record.Get("state").String()),
		Progress: int(record.Get("progressPercent").Int()),
		Record:   record,
	}, nil
}

// Wait blocks until every tag completes. Nil tags and tags with an empty ID are
// ignored, so the result of a check-mode mutation can be passed straight through.
// Each round polls the remaining tags sequentially. The returned statuses follow
// the order of the distinct tag IDs.
func (p *Poller) Wait(ctx context.Context, tags ...*rest.TaskTag) ([]Status, error) {
	ids := distinctIDs(tags)
	if len(ids) == 0 {
		return nil, nil
	}

	ctx, span := observability.StartSpan(ctx, "hypercore.task.wait",
		attribute.StringSlice("hypercore.task_tags", ids))

	last := make(map[string]Status, len(ids))
	pending := ids
	start := p.clock.Now()

	rc := &retry.Config{
		InitialDelay:  p.cfg.Interval,
		BackoffFactor: 1,
		Timeout:       p.cfg.Timeout,
		MaxAttempts:   p.cfg.MaxAttempts,
	}

	err := retry.Until(ctx, rc, p.clock, func(ctx context.Context, attempt int) (bool, error) {
		remaining := make([]string, 0, len(pending))
		for _, id := range pending {
			st, err := p.Fetch(ctx, id)
			if err != nil {
				return false, err
			}
			last[id] = st
			observability.RecordTaskPoll(string(st.State))

			log := p.logger.WithTask(id)
			switch {
			case st.State.Complete():
				log.Info("task complete", "polls", attempt)
			case st.State.Failed():
				log.Warn("task failed", "state", st.State)
				return false, &errs.TaskFailureError{TaskTag: id, State: string(st.State), Payload: string(st.Record.Raw())}
			case st.State.Pending():
				log.Debug("task pending", "state", st.State, "progress", st.Progress, "attempt", attempt)
				remaining = append(remaining, id)
			default:
				// Not terminal either; the timeout bound decides.
				log.Warn("task in unrecognized state", "state", st.Record.Get("state").String(), "attempt", attempt)
				remaining = append(remaining, id)
			}
		}
		pending = remaining
		return len(pending) == 0, nil
	})

	elapsed := p.clock.Now().Sub(start)
	err = p.classify(ctx, err, pending, last, elapsed)
	observability.EndSpan(span, err)

	switch errs.KindOf(err) {
	case errs.KindUnknown:
		if err == nil {
			observability.RecordTaskWait("complete", elapsed)
		} else {
			observability.RecordTaskWait("cancelled", elapsed)
		}
	case errs.KindTaskTimeout:
		observability.RecordTaskWait("timeout", elapsed)
	default:
		observability.RecordTaskWait("failed", elapsed)
	}
	if err != nil {
		return nil, err
	}

	out := make([]Status, 0, len(ids))
	for _, id := range ids {
		out = append(out, last[id])
	}
	return out, nil
}

func (p *Poller) classify(ctx context.Context, err error, pending []string, last map[string]Status, elapsed time.Duration) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, retry.ErrExhausted) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		id := ""
		if len(pending) > 0 {
			id = pending[0]
		}
		state := string(last[id].State)
		if state == string(StateUnknown) {
			if raw := last[id].Record.Get("state").String(); raw != "" {
				state = raw
			}
		}
		if state == "" {
			state = string(StateUnknown)
		}
		p.logger.WithTask(id).Warn("gave up waiting for task", "elapsed", elapsed, "last_state", state)
		return &errs.TaskTimeoutError{TaskTag: id, Elapsed: elapsed, LastState: state}
	}
	return err
}

func distinctIDs(tags []*rest.TaskTag) []string {
	seen := make(map[string]struct{}, len(tags))
	ids := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == nil || t.ID == "" {
			continue
		}
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		ids = append(ids, t.ID)
	}
	return ids
}
