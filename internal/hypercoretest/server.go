// Package hypercoretest runs an in-memory HyperCore REST API for tests.
//
// The server keeps records per collection, answers mutations with task tags
// whose states follow a configurable script, and journals every request so
// tests can assert call order and that check mode sent no mutation.
package hypercoretest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	Username = "admin"
	Password = "admin"
)

// Call is one journaled request.
type Call struct {
	Method string
	Path   string
	Query  string
	Body   []byte
}

// String renders the call as "METHOD /path".
func (c Call) String() string {
	return c.Method + " " + c.Path
}

type failure struct {
	status int
	body   string
}

type taskScript struct {
	states []string
	polls  int
}

// Server is a fake HyperCore cluster.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	collections map[string][]map[string]any
	tasks       map[string]*taskScript
	journal     []Call
	nextTag     int
	taskStates  []string
	failures    map[string][]failure
	uploads     map[string][]byte
}

// New starts a Server and stops it when the test ends. New tasks complete on
// the first poll unless SetTaskStates says otherwise.
func New(t testing.TB) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{
		collections: map[string][]map[string]any{},
		tasks:       map[string]*taskScript{},
		taskStates:  []string{"COMPLETE"},
		failures:    map[string][]failure{},
		uploads:     map[string][]byte{},
		nextTag:     100,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.record)
	api := engine.Group("/rest/v1", gin.BasicAuth(gin.Accounts{Username: Password}))
	api.Use(s.injectFailures)
	api.GET("/:collection", s.list)
	api.GET("/:collection/:id", s.get)
	api.POST("/:collection", s.create)
	api.POST("/:collection/:id", s.overwrite)
	api.PATCH("/:collection/:id", s.patch)
	api.PUT("/:collection/:id", s.put)
	api.DELETE("/:collection/:id", s.delete)

	s.Server = httptest.NewServer(engine)
	t.Cleanup(s.Close)
	return s
}

// Seed adds records to a collection. Records without a uuid get one.
func (s *Server) Seed(collection string, records ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		cp := clone(r)
		if _, ok := cp["uuid"]; !ok {
			cp["uuid"] = uuid.NewString()
		}
		s.collections[collection] = append(s.collections[collection], cp)
	}
}

// Records returns a copy of a collection.
func (s *Server) Records(collection string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.collections[collection]))
	for _, r := range s.collections[collection] {
		out = append(out, clone(r))
	}
	return out
}

// Journal returns every request received so far.
func (s *Server) Journal() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.journal...)
}

// Mutations returns the journaled non-GET requests.
func (s *Server) Mutations() []Call {
	var out []Call
	for _, c := range s.Journal() {
		if c.Method != http.MethodGet {
			out = append(out, c)
		}
	}
	return out
}

// Calls returns the journal rendered as "METHOD /path" strings.
func (s *Server) Calls() []string {
	journal := s.Journal()
	out := make([]string, 0, len(journal))
	for _, c := range journal {
		out = append(out, c.String())
	}
	return out
}

// ResetJournal clears the request journal.
func (s *Server) ResetJournal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = nil
}

// SetTaskStates sets the state sequence reported for tasks created from now on.
// The last state repeats once the sequence is exhausted.
func (s *Server) SetTaskStates(states ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taskStates = append([]string(nil), states...)
}

// AddTask registers a task with a scripted state sequence.
func (s *Server) AddTask(tag string, states ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[tag] = &taskScript{states: append([]string(nil), states...)}
}

// TaskPolls returns how often a task was polled.
func (s *Server) TaskPolls(tag string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[tag]; ok {
		return t.polls
	}
	return 0
}

// FailNext makes the next request matching method and path answer with status and body.
func (s *Server) FailNext(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.failures[key] = append(s.failures[key], failure{status: status, body: body})
}

// Uploaded returns the bytes received for an uploaded file name.
func (s *Server) Uploaded(filename string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads[filename]
}

func (s *Server) record(c *gin.Context) {
	var body []byte
	if c.Request.Body != nil && !(c.Request.Method == http.MethodPut && strings.HasSuffix(c.Request.URL.Path, "/upload")) {
		body, _ = io.ReadAll(c.Request.Body)
		c.Request.Body = io.NopCloser(strings.NewReader(string(body)))
	}
	s.mu.Lock()
	s.journal = append(s.journal, Call{
		Method: c.Request.Method,
		Path:   c.Request.URL.Path,
		Query:  c.Request.URL.RawQuery,
		Body:   body,
	})
	s.mu.Unlock()
	c.Next()
}

func (s *Server) injectFailures(c *gin.Context) {
	s.mu.Lock()
	key := c.Request.Method + " " + c.Request.URL.Path
	queue := s.failures[key]
	var f *failure
	if len(queue) > 0 {
		f = &queue[0]
		s.failures[key] = queue[1:]
	}
	s.mu.Unlock()
	if f != nil {
		c.Data(f.status, "application/json", []byte(f.body))
		c.Abort()
		return
	}
	c.Next()
}

// newTask registers a task using the current script. Callers hold s.mu.
func (s *Server) newTask(objectUUID string) gin.H {
	s.nextTag++
	tag := strconv.Itoa(s.nextTag)
	s.tasks[tag] = &taskScript{states: append([]string(nil), s.taskStates...)}
	return gin.H{"taskTag": tag, "createdUUID": objectUUID}
}

func (s *Server) find(collection, id string) (int, map[string]any) {
	for i, r := range s.collections[collection] {
		if r["uuid"] == id {
			return i, r
		}
	}
	return -1, nil
}

func (s *Server) list(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, ok := s.collections[c.Param("collection")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown resource"})
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) get(c *gin.Context) {
	if c.Param("collection") == "TaskTag" {
		s.taskStatus(c)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, r := s.find(c.Param("collection"), c.Param("id"))
	if r == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, []map[string]any{r})
}

func (s *Server) taskStatus(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tag := c.Param("id")
	t, ok := s.tasks[tag]
	if !ok || len(t.states) == 0 {
		c.JSON(http.StatusOK, []any{})
		return
	}
	i := t.polls
	if i >= len(t.states) {
		i = len(t.states) - 1
	}
	t.polls++
	state := t.states[i]
	progress := 0
	if state == "COMPLETE" {
		progress = 100
	}
	c.JSON(http.StatusOK, []gin.H{{
		"taskTag":         tag,
		"state":           state,
		"progressPercent": progress,
		"nodeUUIDs":       []string{},
		"modified":        time.Now().Unix(),
	}})
}

func (s *Server) decode(c *gin.Context) (map[string]any, bool) {
	var payload map[string]any
	if err := json.NewDecoder(c.Request.Body).Decode(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return payload, true
}

func (s *Server) create(c *gin.Context) {
	payload, ok := s.decode(c)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	payload["uuid"] = id
	collection := c.Param("collection")
	s.collections[collection] = append(s.collections[collection], payload)
	c.JSON(http.StatusCreated, s.newTask(id))
}

// overwrite replaces the given fields of an existing record, answering 201 like
// HyperCore's action endpoints.
func (s *Server) overwrite(c *gin.Context) {
	s.update(c, http.StatusCreated, false)
}

func (s *Server) patch(c *gin.Context) {
	s.update(c, http.StatusOK, false)
}

func (s *Server) put(c *gin.Context) {
	if c.Param("collection") == "VirtualDisk" && c.Param("id") == "upload" {
		s.upload(c)
		return
	}
	s.update(c, http.StatusOK, true)
}

func (s *Server) update(c *gin.Context, status int, replace bool) {
	payload, ok := s.decode(c)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	collection, id := c.Param("collection"), c.Param("id")
	i, r := s.find(collection, id)
	if r == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if replace {
		r = map[string]any{"uuid": id}
	}
	for k, v := range payload {
		if nested, ok := v.(map[string]any); ok {
			if cur, ok := r[k].(map[string]any); ok && !replace {
				for nk, nv := range nested {
					cur[nk] = nv
				}
				continue
			}
		}
		r[k] = v
	}
	s.collections[collection][i] = r
	c.JSON(status, s.newTask(id))
}

func (s *Server) delete(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	collection, id := c.Param("collection"), c.Param("id")
	i, r := s.find(collection, id)
	if r == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	s.collections[collection] = append(s.collections[collection][:i], s.collections[collection][i+1:]...)
	c.Status(http.StatusNoContent)
}

func (s *Server) upload(c *gin.Context) {
	filename := c.Query("filename")
	size, err := strconv.ParseInt(c.Query("filesize"), 10, 64)
	if filename == "" || err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "filename and filesize are required"})
		return
	}
	if c.ContentType() != "application/octet-stream" || c.Request.ContentLength != size {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected octet-stream body of filesize bytes"})
		return
	}
	data, err := io.ReadAll(c.Request.Body)
	if err != nil || int64(len(data)) != size {
		c.JSON(http.StatusBadRequest, gin.H{"error": "short body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.uploads[filename] = data
	s.collections["VirtualDisk"] = append(s.collections["VirtualDisk"], map[string]any{
		"uuid":              id,
		"name":              filename,
		"blockSize":         1048576,
		"capacityBytes":     size,
		"replicationFactor": 2,
	})
	c.JSON(http.StatusOK, s.newTask(id))
}

func clone(m map[string]any) map[string]any {
	b, _ := json.Marshal(m)
	var out map[string]any
	_ = json.Unmarshal(b, &out)
	return out
}
