package httpc

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/loykin/hypercore/internal/errs"
	"github.com/tidwall/gjson"
)

// Response is one normalized exchange result.
type Response struct {
	Status int
	Data   []byte
	// Headers holds lower-cased keys; the last value wins on duplicates.
	Headers map[string]string

	jsonOnce sync.Once
	json     gjson.Result
	jsonErr  error
}

// NewResponse builds a Response, normalizing header keys.
func NewResponse(status int, data []byte, header http.Header) *Response {
	headers := make(map[string]string, len(header))
	for k, vs := range header {
		if len(vs) == 0 {
			continue
		}
		headers[strings.ToLower(k)] = vs[len(vs)-1]
	}
	return &Response{Status: status, Data: data, Headers: headers}
}

// JSON returns the parsed body. The body is validated once; later calls reuse the result.
func (r *Response) JSON() (gjson.Result, error) {
	r.jsonOnce.Do(func() {
		if !gjson.ValidBytes(r.Data) {
			r.jsonErr = errs.NewMalformedResponse(r.Data, "")
			return
		}
		r.json = gjson.ParseBytes(r.Data)
	})
	return r.json, r.jsonErr
}

// Decode unmarshals the body into v, reporting a MalformedResponseError on failure.
func (r *Response) Decode(v any) error {
	if _, err := r.JSON(); err != nil {
		return err
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return errs.NewMalformedResponse(r.Data, err.Error())
	}
	return nil
}

// Header returns the value of a header by case-insensitive name.
func (r *Response) Header(name string) string {
	return r.Headers[strings.ToLower(name)]
}
