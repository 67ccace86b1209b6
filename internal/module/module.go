// Package module reconciles desired state against a HyperCore cluster.
//
// Every runner follows the same sequence: read the current state, decide
// whether a change is needed, issue at most one mutation, wait for its task,
// then re-read the state to report the outcome. In check mode the mutation is
// skipped and the after-state is computed from the desired values.
package module

import (
	"context"

	"github.com/loykin/hypercore/internal/common"
	"github.com/loykin/hypercore/internal/rest"
	"github.com/loykin/hypercore/internal/source"
	"github.com/loykin/hypercore/internal/task"
)

// Diff is the before and after state of a reconciled object.
type Diff struct {
	Before any `json:"before" yaml:"before"`
	After  any `json:"after" yaml:"after"`
}

// Result is the outcome of one runner invocation.
type Result struct {
	Changed  bool             `json:"changed" yaml:"changed"`
	Msg      string           `json:"msg,omitempty" yaml:"msg,omitempty"`
	Diff     *Diff            `json:"diff,omitempty" yaml:"diff,omitempty"`
	Records  []map[string]any `json:"records,omitempty" yaml:"records,omitempty"`
	NewState any              `json:"new_state,omitempty" yaml:"new_state,omitempty"`
}

// Runtime carries what every runner needs.
type Runtime struct {
	Client *rest.Client
	Poll   task.PollConfig
	// Check skips mutating calls.
	Check bool
	// Sources opens disk images for upload. Defaults to a local-file resolver.
	Sources       source.Opener
	Logger        *common.Logger
	PollerOptions []task.Option
}

func (rt *Runtime) logger(name string) *common.Logger {
	l := rt.Logger
	if l == nil {
		l = common.GetLogger()
	}
	return l.WithComponent("module." + name)
}

func (rt *Runtime) sources() source.Opener {
	if rt.Sources == nil {
		return source.NewResolver(source.S3Config{})
	}
	return rt.Sources
}

// wait blocks until tag completes. A nil tag, as returned in check mode, is a no-op.
func (rt *Runtime) wait(ctx context.Context, tags ...*rest.TaskTag) ([]task.Status, error) {
	opts := append([]task.Option{}, rt.PollerOptions...)
	if rt.Logger != nil {
		opts = append([]task.Option{task.WithLogger(rt.Logger)}, opts...)
	}
	return task.NewPoller(rt.Client, rt.Poll, opts...).Wait(ctx, tags...)
}
