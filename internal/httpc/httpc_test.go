package httpc

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loykin/hypercore/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, host string, opts ...Option) *Client {
	t.Helper()
	creds, err := NewCredentials(host, "admin", "admin")
	require.NoError(t, err)
	c, err := New(creds, opts...)
	require.NoError(t, err)
	return c
}

func TestNewCredentials_RequiresScheme(t *testing.T) {
	tests := []struct {
		host string
		ok   bool
	}{
		{"https://10.0.0.1", true},
		{"http://cluster.local/", true},
		{"10.0.0.1", false},
		{"ftp://cluster", false},
		{"", false},
		{"HTTPS//cluster", false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			creds, err := NewCredentials(tt.host, "u", "p")
			if tt.ok {
				require.NoError(t, err)
				assert.False(t, strings.HasSuffix(creds.Host, "/"))
				return
			}
			require.Error(t, err)
			var cerr *errs.ConfigurationError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tt.host, cerr.Value)
			assert.Equal(t, errs.KindConfiguration, errs.KindOf(err))
		})
	}
}

func TestNew_RejectsUnvalidatedCredentials(t *testing.T) {
	_, err := New(Credentials{Host: "cluster.local"})
	assert.Equal(t, errs.KindConfiguration, errs.KindOf(err))
}

func TestAuthHeader_ComputedOnce(t *testing.T) {
	c := newTestClient(t, "https://cluster")

	var wg sync.WaitGroup
	got := make([]string, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = c.AuthHeader()
		}(i)
	}
	wg.Wait()

	for _, h := range got {
		assert.Equal(t, "Basic YWRtaW46YWRtaW4=", h)
	}
}

func TestDo_JSONRequest(t *testing.T) {
	var seen *http.Request
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r
		body, _ = io.ReadAll(r.Body)
		w.Header().Add("X-Trace", "one")
		w.Header().Add("X-Trace", "two")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"taskTag":"12","createdUUID":"abc"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	resp, err := c.Do(context.Background(), Request{
		Method:  http.MethodPost,
		URL:     c.URL("/rest/v1/VirDomain"),
		JSON:    map[string]any{"name": "vm", "tags": []string{"a", "b"}},
		Headers: map[string]string{"Authorization": "Bearer override", "X-Extra": "1"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, "two", resp.Header("x-trace"))
	assert.Equal(t, "two", resp.Headers["x-trace"])

	assert.Equal(t, "Basic YWRtaW46YWRtaW4=", seen.Header.Get("Authorization"))
	assert.Equal(t, "1", seen.Header.Get("X-Extra"))
	assert.Equal(t, "application/json", seen.Header.Get("Content-Type"))
	assert.Equal(t, "application/json", seen.Header.Get("Accept"))
	assert.Equal(t, `{"name":"vm","tags":["a","b"]}`, string(body))

	doc, err := resp.JSON()
	require.NoError(t, err)
	assert.Equal(t, "12", doc.Get("taskTag").String())
}

func TestDo_NonSuccessPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`not found`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: c.URL("rest/v1/Node/x")})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, "not found", string(resp.Data))

	_, err = resp.JSON()
	var merr *errs.MalformedResponseError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, "not found", merr.Body)

	// memoized: same error instance
	_, err2 := resp.JSON()
	assert.Same(t, err, err2)
}

func TestDo_UnauthorizedIsAuthenticationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: c.URL("/rest/v1/Node")})

	var aerr *errs.AuthenticationError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, http.StatusUnauthorized, aerr.Status)
	assert.Equal(t, "Unauthorized", aerr.Reason)
	assert.False(t, errs.Retryable(err))
}

func TestDo_ConnectivityError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url)
	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: c.URL("/rest/v1/Node")})

	var cerr *errs.ConnectivityError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, http.MethodGet, cerr.Method)
	assert.True(t, errs.Retryable(err))
}

func TestDo_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithTimeout(50*time.Millisecond))
	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: c.URL("/rest/v1/Node")})
	assert.Equal(t, errs.KindConnectivity, errs.KindOf(err))
}

func TestDo_AmbiguousPayload(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	_, err := c.Do(context.Background(), Request{
		Method: http.MethodPut,
		URL:    c.URL("/rest/v1/VirtualDisk/upload"),
		JSON:   map[string]string{"a": "b"},
		Binary: bytes.NewReader([]byte{1, 2, 3}),
	})
	assert.ErrorIs(t, err, errs.ErrAmbiguousPayload)
}

func TestDo_BinaryUploadSetsContentLength(t *testing.T) {
	var contentLength int64
	var contentType string
	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentLength = r.ContentLength
		contentType = r.Header.Get("Content-Type")
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"taskTag":"7"}`))
	}))
	defer srv.Close()

	payload := []byte("qcow2-image-bytes")
	c := newTestClient(t, srv.URL)
	// io.MultiReader hides the length from net/http; only the declared size is available.
	resp, err := c.Do(context.Background(), Request{
		Method: http.MethodPut,
		URL:    c.URL("/rest/v1/VirtualDisk/upload?filename=a.qcow2&filesize=17"),
		Binary: io.MultiReader(bytes.NewReader(payload)),
		Size:   int64(len(payload)),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, int64(len(payload)), contentLength)
	assert.Equal(t, "application/octet-stream", contentType)
	assert.Equal(t, payload, received)
}

func TestDo_InsecureAllowsSelfSigned(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	strict := newTestClient(t, srv.URL)
	_, err := strict.Do(context.Background(), Request{Method: http.MethodGet, URL: strict.URL("/")})
	assert.Equal(t, errs.KindConnectivity, errs.KindOf(err))

	insecure := newTestClient(t, srv.URL, WithInsecureSkipVerify(true))
	resp, err := insecure.Do(context.Background(), Request{Method: http.MethodGet, URL: insecure.URL("/")})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestOptions_TLSConfig(t *testing.T) {
	o := defaultOptions()
	assert.Nil(t, o.tlsConfig())

	WithInsecureSkipVerify(true)(o)
	cfg := o.tlsConfig()
	require.NotNil(t, cfg)
	assert.True(t, cfg.InsecureSkipVerify)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)

	o = defaultOptions()
	WithTLSConfig(&tls.Config{MinVersion: tls.VersionTLS13})(o)
	cfg = o.tlsConfig()
	assert.False(t, cfg.InsecureSkipVerify)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)
}

func TestParseTLSVersion(t *testing.T) {
	tests := map[string]uint16{
		"1.2":    tls.VersionTLS12,
		"tls1.3": tls.VersionTLS13,
		"TLS13":  tls.VersionTLS13,
		"v1.1":   tls.VersionTLS11,
		"":       0,
		"weird":  0,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseTLSVersion(in), in)
	}
}

func FuzzParseTLSVersion(f *testing.F) {
	f.Add("")
	f.Add("1.2")
	f.Add("tls1.3")
	f.Add("TLS13")
	f.Add("weird-input!!")

	f.Fuzz(func(t *testing.T, s string) {
		v := ParseTLSVersion(s)
		if v != 0 && v != tls.VersionTLS10 && v != tls.VersionTLS11 && v != tls.VersionTLS12 && v != tls.VersionTLS13 {
			t.Fatalf("unexpected tls version: %v", v)
		}
	})
}

func TestResponse_Decode(t *testing.T) {
	resp := NewResponse(200, []byte(`{"uuid":"n1","lanIP":"10.0.0.1"}`), http.Header{"Content-Type": {"application/json"}})
	var out struct {
		UUID  string `json:"uuid"`
		LanIP string `json:"lanIP"`
	}
	require.NoError(t, resp.Decode(&out))
	assert.Equal(t, "n1", out.UUID)
	assert.Equal(t, "application/json", resp.Header("CONTENT-TYPE"))

	bad := NewResponse(200, []byte(`{`), nil)
	assert.Equal(t, errs.KindMalformedResponse, errs.KindOf(bad.Decode(&out)))
}
