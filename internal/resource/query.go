// Package resource maps HyperCore API objects onto typed Go values and back.
//
// Each type offers FromAPI (decode a record, reporting MissingFieldError for
// absent required fields), ToAPI (the fields the API accepts as input) and
// Output (the snake_case document printed for operators).
package resource

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/loykin/hypercore/internal/errs"
	"github.com/loykin/hypercore/internal/rest"
)

// Payload is a typed request body validated before it is serialized.
type Payload interface {
	Validate() error
}

// BuildFilter maps user-facing keys of input onto API keys, skipping unset values.
// Only keys listed in mapping are considered. At least one value must be set.
func BuildFilter(input map[string]any, mapping map[string]string) (rest.Filter, error) {
	filter := rest.Filter{}
	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v, ok := input[k]
		if !ok || isUnset(v) {
			continue
		}
		filter[mapping[k]] = v
	}
	if len(filter) == 0 {
		return nil, &errs.ConfigurationError{
			Field:  "query",
			Value:  "",
			Reason: fmt.Sprintf("At least one of %s must be set", strings.Join(keys, ", ")),
		}
	}
	return filter, nil
}

func isUnset(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case *string:
		return t == nil
	case *int:
		return t == nil
	default:
		return false
	}
}

func requireFields(r rest.Record, resource string, fields ...string) error {
	for _, f := range fields {
		if _, err := r.Require(resource, f); err != nil {
			return err
		}
	}
	return nil
}

// ValidatedUpdate validates p and issues a PATCH with it.
func ValidatedUpdate(ctx context.Context, rc *rest.Client, path string, p Payload, check bool) (*rest.TaskTag, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return rc.Update(ctx, path, nil, p, check)
}

// ValidatedCreate validates p and issues a POST with it.
func ValidatedCreate(ctx context.Context, rc *rest.Client, path string, p Payload, check bool) (*rest.TaskTag, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return rc.Create(ctx, path, nil, p, check)
}
