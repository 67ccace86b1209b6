package rest

import (
	"strings"

	"github.com/loykin/hypercore/internal/errs"
	"github.com/tidwall/gjson"
)

// TaskTag identifies an asynchronous server-side operation started by a mutating call.
// A nil *TaskTag means no task was created (check mode, or a response without a tag).
type TaskTag struct {
	ID string `json:"taskTag"`
	// CreatedUUID is the UUID of the record the task creates, when the call creates one.
	CreatedUUID string `json:"createdUUID,omitempty"`
}

// ParseTaskTag extracts the task tag from a mutation response body.
// An empty body, or one without a taskTag, yields nil.
func ParseTaskTag(body []byte) (*TaskTag, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(body) {
		return nil, errs.NewMalformedResponse(body, "")
	}
	doc := gjson.ParseBytes(body)
	if doc.IsArray() {
		doc = doc.Get("0")
	}
	id := doc.Get("taskTag")
	if !id.Exists() || id.String() == "" {
		return nil, nil
	}
	return &TaskTag{ID: id.String(), CreatedUUID: doc.Get("createdUUID").String()}, nil
}
