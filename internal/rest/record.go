package rest

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"

	"github.com/loykin/hypercore/internal/errs"
	"github.com/tidwall/gjson"
)

// Record is one API-managed JSON object.
type Record struct {
	doc gjson.Result
}

// NewRecord wraps a raw JSON object.
func NewRecord(raw []byte) Record {
	return Record{doc: gjson.ParseBytes(raw)}
}

// Get returns the value at a gjson path.
func (r Record) Get(path string) gjson.Result {
	return r.doc.Get(path)
}

// Raw returns the record's JSON text.
func (r Record) Raw() json.RawMessage {
	return json.RawMessage(r.doc.Raw)
}

// UUID returns the record identifier, or an empty string.
func (r Record) UUID() string {
	return r.doc.Get("uuid").String()
}

// Require returns the field at path or a MissingFieldError naming resource.
func (r Record) Require(resource, path string) (gjson.Result, error) {
	v := r.doc.Get(path)
	if !v.Exists() {
		return v, &errs.MissingFieldError{Resource: resource, ID: r.UUID(), Field: path}
	}
	return v, nil
}

// Decode unmarshals the record into v.
func (r Record) Decode(v any) error {
	if err := json.Unmarshal([]byte(r.doc.Raw), v); err != nil {
		return errs.NewMalformedResponse([]byte(r.doc.Raw), err.Error())
	}
	return nil
}

// Map returns the record as a generic map for output documents.
func (r Record) Map() map[string]any {
	m, _ := r.doc.Value().(map[string]any)
	return m
}

// Filter is an attribute-equality query over records. Keys are gjson paths;
// values are compared after JSON normalisation, so 1 matches 1.0 and a []string
// matches the equivalent JSON array.
type Filter map[string]any

// Matches reports whether every filter entry equals the record's value.
// A nil filter value matches an absent or null field.
func (f Filter) Matches(r Record) bool {
	for key, want := range f {
		got := r.doc.Get(key)
		if want == nil {
			if got.Exists() && got.Type != gjson.Null {
				return false
			}
			continue
		}
		if !got.Exists() {
			return false
		}
		if !reflect.DeepEqual(got.Value(), normalize(want)) {
			return false
		}
	}
	return true
}

// String renders the filter deterministically for error messages.
func (f Filter) String() string {
	if len(f) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		b, _ := json.Marshal(f[k])
		parts = append(parts, k+"="+string(b))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Apply returns the records matching f, preserving order.
func (f Filter) Apply(records []Record) []Record {
	if len(f) == 0 {
		return records
	}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

func normalize(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	return gjson.ParseBytes(b).Value()
}

// parseRecords accepts a JSON array of objects or a single object.
func parseRecords(body []byte) ([]Record, error) {
	if !gjson.ValidBytes(body) {
		return nil, errs.NewMalformedResponse(body, "")
	}
	doc := gjson.ParseBytes(body)
	switch {
	case doc.IsArray():
		items := doc.Array()
		out := make([]Record, 0, len(items))
		for _, it := range items {
			if !it.IsObject() {
				return nil, errs.NewMalformedResponse(body, "list element is not an object")
			}
			out = append(out, Record{doc: it})
		}
		return out, nil
	case doc.IsObject():
		return []Record{{doc: doc}}, nil
	default:
		return nil, errs.NewMalformedResponse(body, "expected a list of records")
	}
}
