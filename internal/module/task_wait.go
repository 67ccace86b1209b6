package module

import (
	"context"

	"github.com/loykin/hypercore/internal/errs"
	"github.com/loykin/hypercore/internal/rest"
)

// RunTaskWait waits for the given task tags and reports their final states.
func RunTaskWait(ctx context.Context, rt *Runtime, ids ...string) (*Result, error) {
	tags := make([]*rest.TaskTag, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		tags = append(tags, &rest.TaskTag{ID: id})
	}
	if len(tags) == 0 {
		return nil, &errs.ConfigurationError{Field: "task_tag", Reason: "At least one task tag is required"}
	}

	statuses, err := rt.wait(ctx, tags...)
	if err != nil {
		return nil, err
	}
	records := make([]map[string]any, 0, len(statuses))
	for _, st := range statuses {
		records = append(records, map[string]any{
			"task_tag": st.TaskTag,
			"state":    string(st.State),
			"progress": st.Progress,
		})
	}
	rt.logger("task_wait").Info("tasks complete", "count", len(records))
	return &Result{Msg: "All tasks complete.", Records: records}, nil
}
