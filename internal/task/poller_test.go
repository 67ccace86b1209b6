package task

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loykin/hypercore/internal/errs"
	"github.com/loykin/hypercore/internal/httpc"
	"github.com/loykin/hypercore/internal/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

// taskAPI serves scripted task states; the last state repeats once the script runs out.
type taskAPI struct {
	mu      sync.Mutex
	scripts map[string][]string
	polls   map[string]int
	order   []string
	status  int
}

func newTaskAPI(scripts map[string][]string) *taskAPI {
	return &taskAPI{scripts: scripts, polls: map[string]int{}}
}

func (a *taskAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := strings.TrimPrefix(r.URL.Path, "/rest/v1/TaskTag/")
	a.order = append(a.order, id)
	if a.status != 0 {
		w.WriteHeader(a.status)
		_, _ = w.Write([]byte(`internal error`))
		return
	}
	script, ok := a.scripts[id]
	if !ok {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[]`))
		return
	}
	n := a.polls[id]
	a.polls[id] = n + 1
	if n >= len(script) {
		n = len(script) - 1
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, `[{"taskTag":%q,"state":%q,"progressPercent":%d,"nodeUUIDs":["n1"]}]`, id, script[n], 10*(n+1))
}

func (a *taskAPI) pollCount(id string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.polls[id]
}

func newPoller(t *testing.T, api http.Handler, cfg PollConfig) (*Poller, *fakeClock) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	creds, err := httpc.NewCredentials(srv.URL, "admin", "admin")
	require.NoError(t, err)
	tr, err := httpc.New(creds)
	require.NoError(t, err)

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	return NewPoller(rest.New(tr), cfg, WithClock(clock)), clock
}

func TestParseState(t *testing.T) {
	assert.Equal(t, StateComplete, ParseState("complete"))
	assert.Equal(t, StateRunning, ParseState(" RUNNING "))
	assert.Equal(t, StateUnknown, ParseState("PAUSED"))
	assert.Equal(t, StateUnknown, ParseState(""))

	assert.True(t, StateQueued.Pending())
	assert.True(t, StateError.Failed())
	assert.True(t, StateUninitialized.Terminal())
	assert.False(t, StateRunning.Terminal())
	assert.False(t, StateUnknown.Terminal())
}

func TestWait_CompletesOnThirdPoll(t *testing.T) {
	api := newTaskAPI(map[string][]string{"7": {"QUEUED", "RUNNING", "COMPLETE"}})
	p, clock := newPoller(t, api, PollConfig{Interval: time.Second, Timeout: time.Minute})
	start := clock.Now()

	statuses, err := p.Wait(context.Background(), &rest.TaskTag{ID: "7"})
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, StateComplete, statuses[0].State)
	assert.Equal(t, 30, statuses[0].Progress)
	assert.Equal(t, 3, api.pollCount("7"))
	assert.Equal(t, 2*time.Second, clock.Now().Sub(start))
}

func TestWait_FailureStopsPolling(t *testing.T) {
	api := newTaskAPI(map[string][]string{"8": {"RUNNING", "ERROR", "COMPLETE"}})
	p, _ := newPoller(t, api, PollConfig{Interval: time.Second})

	_, err := p.Wait(context.Background(), &rest.TaskTag{ID: "8"})
	var ferr *errs.TaskFailureError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, "8", ferr.TaskTag)
	assert.Equal(t, "ERROR", ferr.State)
	assert.Contains(t, ferr.Payload, `"state":"ERROR"`)
	assert.Equal(t, 2, api.pollCount("8"))
}

func TestWait_UninitializedIsFailure(t *testing.T) {
	api := newTaskAPI(map[string][]string{"9": {"UNINITIALIZED"}})
	p, _ := newPoller(t, api, PollConfig{Interval: time.Second})

	_, err := p.Wait(context.Background(), &rest.TaskTag{ID: "9"})
	assert.Equal(t, errs.KindTaskFailure, errs.KindOf(err))
	assert.Equal(t, 1, api.pollCount("9"))
}

func TestWait_UnknownStateKeepsPolling(t *testing.T) {
	api := newTaskAPI(map[string][]string{"10": {"PAUSED", "PAUSED", "COMPLETE"}})
	p, _ := newPoller(t, api, PollConfig{Interval: time.Second, Timeout: 10 * time.Second})

	statuses, err := p.Wait(context.Background(), &rest.TaskTag{ID: "10"})
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, StateComplete, statuses[0].State)
	assert.Equal(t, 3, api.pollCount("10"))
}

func TestWait_UnknownStateTimesOut(t *testing.T) {
	api := newTaskAPI(map[string][]string{"10": {"PAUSED"}})
	p, _ := newPoller(t, api, PollConfig{Interval: time.Second, Timeout: 3 * time.Second})

	_, err := p.Wait(context.Background(), &rest.TaskTag{ID: "10"})
	var terr *errs.TaskTimeoutError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "PAUSED", terr.LastState)
	assert.False(t, errors.As(err, new(*errs.TaskFailureError)))
}

func TestWait_Timeout(t *testing.T) {
	api := newTaskAPI(map[string][]string{"11": {"RUNNING"}})
	p, _ := newPoller(t, api, PollConfig{Interval: time.Second, Timeout: 3 * time.Second})

	_, err := p.Wait(context.Background(), &rest.TaskTag{ID: "11"})
	var terr *errs.TaskTimeoutError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "11", terr.TaskTag)
	assert.Equal(t, "RUNNING", terr.LastState)
	assert.Equal(t, 3*time.Second, terr.Elapsed)
	assert.True(t, errs.Retryable(err))
	assert.Equal(t, 4, api.pollCount("11"))
}

func TestWait_MaxAttempts(t *testing.T) {
	api := newTaskAPI(map[string][]string{"12": {"QUEUED"}})
	p, _ := newPoller(t, api, PollConfig{Interval: time.Second, MaxAttempts: 2})

	_, err := p.Wait(context.Background(), &rest.TaskTag{ID: "12"})
	assert.Equal(t, errs.KindTaskTimeout, errs.KindOf(err))
	assert.Equal(t, 2, api.pollCount("12"))
}

func TestWait_MultipleTags(t *testing.T) {
	api := newTaskAPI(map[string][]string{
		"a": {"RUNNING", "COMPLETE"},
		"b": {"RUNNING", "RUNNING", "RUNNING", "COMPLETE"},
	})
	p, _ := newPoller(t, api, PollConfig{Interval: time.Second})

	statuses, err := p.Wait(context.Background(),
		&rest.TaskTag{ID: "a"}, nil, &rest.TaskTag{ID: "b"}, &rest.TaskTag{ID: "a"}, &rest.TaskTag{})
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "a", statuses[0].TaskTag)
	assert.Equal(t, "b", statuses[1].TaskTag)

	// "a" is not polled after it completes
	assert.Equal(t, 2, api.pollCount("a"))
	assert.Equal(t, 4, api.pollCount("b"))
	assert.Equal(t, []string{"a", "b", "a", "b", "b", "b"}, api.order)
}

func TestWait_NoTags(t *testing.T) {
	api := newTaskAPI(nil)
	p, _ := newPoller(t, api, PollConfig{})

	statuses, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Nil(t, statuses)

	statuses, err = p.Wait(context.Background(), nil, &rest.TaskTag{ID: ""})
	require.NoError(t, err)
	assert.Nil(t, statuses)
	assert.Empty(t, api.order)
}

func TestWait_StatusFetchFailures(t *testing.T) {
	t.Run("unknown tag", func(t *testing.T) {
		api := newTaskAPI(map[string][]string{})
		p, _ := newPoller(t, api, PollConfig{Interval: time.Second})
		_, err := p.Wait(context.Background(), &rest.TaskTag{ID: "404"})
		assert.Equal(t, errs.KindTaskFailure, errs.KindOf(err))
	})

	t.Run("server error", func(t *testing.T) {
		api := newTaskAPI(map[string][]string{"1": {"RUNNING"}})
		api.status = http.StatusInternalServerError
		p, _ := newPoller(t, api, PollConfig{Interval: time.Second})
		_, err := p.Wait(context.Background(), &rest.TaskTag{ID: "1"})
		var ferr *errs.TaskFailureError
		require.True(t, errors.As(err, &ferr))
		var uerr *errs.UnexpectedResponseError
		assert.True(t, errors.As(err, &uerr))
	})

	t.Run("not found status", func(t *testing.T) {
		p, _ := newPoller(t, http.NotFoundHandler(), PollConfig{Interval: time.Second})
		_, err := p.Wait(context.Background(), &rest.TaskTag{ID: "1"})
		assert.Equal(t, errs.KindTaskFailure, errs.KindOf(err))
	})

	t.Run("malformed", func(t *testing.T) {
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"state":`))
		})
		p, _ := newPoller(t, h, PollConfig{Interval: time.Second})
		_, err := p.Wait(context.Background(), &rest.TaskTag{ID: "1"})
		var merr *errs.MalformedResponseError
		assert.True(t, errors.As(err, &merr))
		assert.Equal(t, errs.KindTaskFailure, errs.KindOf(err))
	})
}

func TestWait_ContextCancelled(t *testing.T) {
	api := newTaskAPI(map[string][]string{"c": {"RUNNING"}})
	p, _ := newPoller(t, api, PollConfig{Interval: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Wait(ctx, &rest.TaskTag{ID: "c"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPollConfig_Normalized(t *testing.T) {
	cfg := PollConfig{Interval: time.Nanosecond, Timeout: -1, MaxAttempts: -3}.normalized()
	assert.Equal(t, 10*time.Millisecond, cfg.Interval)
	assert.Zero(t, cfg.Timeout)
	assert.Zero(t, cfg.MaxAttempts)

	assert.Equal(t, time.Second, PollConfig{}.normalized().Interval)
	assert.Equal(t, 10*time.Minute, DefaultPollConfig().Timeout)
}
