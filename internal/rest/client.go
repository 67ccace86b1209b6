// Package rest is the resource-agnostic record client layered on the transport.
//
// It maps HTTP status codes onto outcomes, resolves records through the
// uniqueness idiom and turns mutation responses into task tags. Every mutating
// operation accepts a check flag; when set, no mutating request is sent and a
// nil *TaskTag is returned.
package rest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/loykin/hypercore/internal/common"
	"github.com/loykin/hypercore/internal/constants"
	"github.com/loykin/hypercore/internal/errs"
	"github.com/loykin/hypercore/internal/httpc"
)

// Transport performs one HTTP exchange. *httpc.Client implements it.
type Transport interface {
	Do(ctx context.Context, req httpc.Request) (*httpc.Response, error)
	URL(pathAndQuery string) string
}

// Client issues record operations through a Transport.
type Client struct {
	t             Transport
	logger        *common.Logger
	uploadTimeout time.Duration
}

// New returns a record client using t.
func New(t Transport) *Client {
	return &Client{
		t:             t,
		logger:        common.GetLogger().WithComponent("rest"),
		uploadTimeout: constants.UploadRequestTimeout,
	}
}

// WithLogger returns a copy of c logging through l.
func (c *Client) WithLogger(l *common.Logger) *Client {
	cp := *c
	cp.logger = l.WithComponent("rest")
	return &cp
}

// WithUploadTimeout returns a copy of c using d for uploads.
func (c *Client) WithUploadTimeout(d time.Duration) *Client {
	cp := *c
	if d > 0 {
		cp.uploadTimeout = d
	}
	return &cp
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, req httpc.Request) (*httpc.Response, error) {
	req.Method = method
	req.URL = c.t.URL(BuildPath(path, query))
	return c.t.Do(ctx, req)
}

func accept(method, path string, resp *httpc.Response, codes ...int) error {
	for _, code := range codes {
		if resp.Status == code {
			return nil
		}
	}
	return errs.NewUnexpectedResponse(method, path, resp.Status, resp.Data)
}

// Get issues a GET. Both 200 and 404 are returned as responses.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*httpc.Response, error) {
	resp, err := c.do(ctx, http.MethodGet, path, query, httpc.Request{})
	if err != nil {
		return nil, err
	}
	if err := accept(http.MethodGet, path, resp, http.StatusOK, http.StatusNotFound); err != nil {
		return nil, err
	}
	return resp, nil
}

// List issues a GET and returns the records in the body. A 404 is an empty list.
func (c *Client) List(ctx context.Context, path string, query url.Values) ([]Record, error) {
	resp, err := c.Get(ctx, path, query)
	if err != nil {
		return nil, err
	}
	if resp.Status == http.StatusNotFound {
		return []Record{}, nil
	}
	records, err := parseRecords(resp.Data)
	if err != nil {
		return nil, errs.AttachRequest(err, http.MethodGet, BuildPath(path, query))
	}
	return records, nil
}

// ListRecords lists path and keeps the records matching filter.
func (c *Client) ListRecords(ctx context.Context, path string, filter Filter) ([]Record, error) {
	records, err := c.List(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	return filter.Apply(records), nil
}

// GetRecord resolves the single record at path matching filter.
// Zero matches report found=false, or a ConsistencyError with count 0 when
// mustExist is set. More than one match is always a ConsistencyError.
func (c *Client) GetRecord(ctx context.Context, path string, filter Filter, mustExist bool) (Record, bool, error) {
	records, err := c.ListRecords(ctx, path, filter)
	if err != nil {
		return Record{}, false, err
	}
	switch len(records) {
	case 0:
		if mustExist {
			return Record{}, false, &errs.ConsistencyError{Path: path, Query: filter.String(), Count: 0}
		}
		return Record{}, false, nil
	case 1:
		return records[0], true, nil
	default:
		return Record{}, false, &errs.ConsistencyError{Path: path, Query: filter.String(), Count: len(records)}
	}
}

func (c *Client) mutate(ctx context.Context, method, path string, query url.Values, req httpc.Request, check bool, codes ...int) (*TaskTag, error) {
	log := c.logger.With("method", method, "path", path)
	if check {
		log.Debug("check mode, skipping request")
		return nil, nil
	}
	resp, err := c.do(ctx, method, path, query, req)
	if err != nil {
		return nil, err
	}
	if err := accept(method, path, resp, codes...); err != nil {
		return nil, err
	}
	tag, err := ParseTaskTag(resp.Data)
	if err != nil {
		return nil, errs.AttachRequest(err, method, BuildPath(path, query))
	}
	if tag != nil {
		log.Debug("task created", "task_tag", tag.ID, "created_uuid", tag.CreatedUUID)
	}
	return tag, nil
}

// Create issues a POST; only 201 is accepted.
func (c *Client) Create(ctx context.Context, path string, query url.Values, payload any, check bool) (*TaskTag, error) {
	return c.mutate(ctx, http.MethodPost, path, query, httpc.Request{JSON: payload}, check, http.StatusCreated)
}

// Update issues a PATCH; only 200 is accepted.
func (c *Client) Update(ctx context.Context, path string, query url.Values, payload any, check bool) (*TaskTag, error) {
	return c.mutate(ctx, http.MethodPatch, path, query, httpc.Request{JSON: payload}, check, http.StatusOK)
}

// Replace issues a PUT; only 200 is accepted.
func (c *Client) Replace(ctx context.Context, path string, query url.Values, payload any, check bool) (*TaskTag, error) {
	return c.mutate(ctx, http.MethodPut, path, query, httpc.Request{JSON: payload}, check, http.StatusOK)
}

// Delete issues a DELETE; only 204 is accepted, so deleting a missing record is an error.
func (c *Client) Delete(ctx context.Context, path string, query url.Values, check bool) (*TaskTag, error) {
	return c.mutate(ctx, http.MethodDelete, path, query, httpc.Request{}, check, http.StatusNoContent)
}

// Upload streams size bytes from body with a PUT using the extended upload timeout.
// filename and filesize are added to query. As with Replace, only 200 is accepted.
func (c *Client) Upload(ctx context.Context, path string, filename string, body io.Reader, size int64, query url.Values, check bool) (*TaskTag, error) {
	if body == nil || filename == "" || size < 0 {
		return nil, fmt.Errorf("upload %s: filename, body and a non-negative size are required", path)
	}
	q := url.Values{}
	for k, vs := range query {
		q[k] = append([]string(nil), vs...)
	}
	q.Set("filename", filename)
	q.Set("filesize", fmt.Sprint(size))

	req := httpc.Request{
		Binary:  body,
		Size:    size,
		Timeout: c.uploadTimeout,
	}
	return c.mutate(ctx, http.MethodPut, path, q, req, check, http.StatusOK)
}
