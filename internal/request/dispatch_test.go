package request

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestDoEndToEnd(t *testing.T) {
	var gotPath, gotQuery, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	resp, err := Do(context.Background(), &Descriptor{
		Method:         "GET",
		URLTemplate:    server.URL + "/items/{id}",
		Params:         map[string]any{"id": "42", "tags": []string{"a", "b"}},
		RequiredParams: []string{"id"},
		PathParams:     []string{"id"},
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if gotPath != "/items/42" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery != "tags=a&tags=b" {
		t.Errorf("query = %q, want tags=a&tags=b", gotQuery)
	}
	if !strings.HasPrefix(gotUA, "upcall/") {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestDoFailsFastOnMissingParams(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	_, err := Do(context.Background(), &Descriptor{
		URLTemplate:    server.URL,
		RequiredParams: []string{"id"},
	})
	if !IsMissingParameters(err) {
		t.Fatalf("error = %v, want missing parameters", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Error("network activity happened before the required-parameter check failed")
	}
}

func TestDoAPIKeyQuery(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
	}))
	defer server.Close()

	resp, err := Do(context.Background(), &Descriptor{
		URLTemplate: server.URL,
		Params:      map[string]any{"auth": APIKey("sekrit")},
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	_ = resp.Body.Close()
	if gotKey != "sekrit" {
		t.Errorf("key = %q", gotKey)
	}
}

type recordingCapability struct {
	CapabilityMarker
	gotURL string
	resp   *http.Response
}

func (c *recordingCapability) AuthorizeAndDo(_ context.Context, opts *Options) (*http.Response, error) {
	c.gotURL = opts.URL
	return c.resp, nil
}

func TestDispatchRoutesToCapability(t *testing.T) {
	cap := &recordingCapability{resp: &http.Response{StatusCode: 200, Body: http.NoBody}}
	resp, err := Dispatch(context.Background(), cap, &Options{URL: "https://api.example.com/x"}, nil)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if resp != cap.resp {
		t.Error("capability response not returned")
	}
	if cap.gotURL != "https://api.example.com/x" {
		t.Errorf("capability got URL %q", cap.gotURL)
	}
}

func TestDispatchCapabilityWinsViaDo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("default executor used despite capability credential")
	}))
	defer server.Close()

	cap := &recordingCapability{resp: &http.Response{StatusCode: 200, Body: http.NoBody}}
	resp, err := Do(context.Background(), &Descriptor{
		URLTemplate: server.URL,
		Params:      map[string]any{"auth": cap},
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	_ = resp.Body.Close()
}

func TestExecutorJSONBody(t *testing.T) {
	var gotBody, gotCT string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		gotCT = r.Header.Get("Content-Type")
	}))
	defer server.Close()

	exec := &HTTPExecutor{}
	resp, err := exec.Execute(context.Background(), &Options{
		URL:    server.URL,
		Method: http.MethodPost,
		Body:   map[string]any{"name": "n"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	_ = resp.Body.Close()
	if gotBody != `{"name":"n"}` {
		t.Errorf("body = %q", gotBody)
	}
	if gotCT != "application/json" {
		t.Errorf("Content-Type = %q", gotCT)
	}
}

func TestExecutorStreamBody(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
	}))
	defer server.Close()

	exec := &HTTPExecutor{}
	resp, err := exec.Execute(context.Background(), &Options{
		URL:    server.URL,
		Method: http.MethodPost,
		Body:   strings.NewReader("streamed"),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	_ = resp.Body.Close()
	if gotBody != "streamed" {
		t.Errorf("body = %q", gotBody)
	}
}

func TestExecutorStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"gone"}`))
	}))
	defer server.Close()

	exec := &HTTPExecutor{}
	_, err := exec.Execute(context.Background(), &Options{URL: server.URL})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != 404 {
		t.Errorf("StatusCode = %d", statusErr.StatusCode)
	}
	if !strings.Contains(statusErr.Body, "gone") {
		t.Errorf("Body = %q", statusErr.Body)
	}
	if !IsNotFoundError(err) {
		t.Error("IsNotFoundError() = false")
	}
}

func TestExecutorNotModifiedAccepted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	exec := &HTTPExecutor{}
	resp, err := exec.Execute(context.Background(), &Options{URL: server.URL})
	if err != nil {
		t.Fatalf("Execute() error = %v, want 304 accepted", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotModified {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestExecutorRetriesIdempotent(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	exec := &HTTPExecutor{RetryDelay: time.Millisecond}
	resp, err := exec.Execute(context.Background(), &Options{URL: server.URL, Method: http.MethodGet})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	_ = resp.Body.Close()
	if atomic.LoadInt32(&hits) != 2 {
		t.Errorf("hits = %d, want 2", hits)
	}
}

func TestExecutorNoRetryWhenDisabled(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	exec := &HTTPExecutor{RetryDelay: time.Millisecond}
	_, err := exec.Execute(context.Background(), &Options{
		URL:     server.URL,
		Method:  http.MethodGet,
		NoRetry: true,
	})
	if !IsStatusError(err) {
		t.Fatalf("error = %v, want status error", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}
}

func TestExecutorNoRetryForPost(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	exec := &HTTPExecutor{RetryDelay: time.Millisecond}
	_, err := exec.Execute(context.Background(), &Options{
		URL:    server.URL,
		Method: http.MethodPost,
		Body:   "data",
	})
	if !IsStatusError(err) {
		t.Fatalf("error = %v, want status error", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{
			name: "no query",
			opts: Options{URL: "https://x.test/a"},
			want: "https://x.test/a",
		},
		{
			name: "query appended",
			opts: Options{URL: "https://x.test/a", Query: map[string][]string{"k": {"v"}}},
			want: "https://x.test/a?k=v",
		},
		{
			name: "existing query extended",
			opts: Options{URL: "https://x.test/a?x=1", Query: map[string][]string{"k": {"v"}}},
			want: "https://x.test/a?x=1&k=v",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildURL(&tt.opts); got != tt.want {
				t.Errorf("buildURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMultipartUploadEndToEnd(t *testing.T) {
	var gotCT, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCT = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
	}))
	defer server.Close()

	var lastProgress int64
	resp, err := Do(context.Background(), &Descriptor{
		Method:           "POST",
		URLTemplate:      server.URL + "/items",
		MediaURLTemplate: server.URL + "/upload/items",
		Params: map[string]any{
			"requestBody": map[string]any{"title": "t"},
			"media":       Media{Body: strings.NewReader("hello"), MimeType: "text/plain"},
		},
		Options: Options{OnUploadProgress: func(n int64) { lastProgress = n }},
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	_ = resp.Body.Close()

	if !strings.HasPrefix(gotCT, "multipart/related; boundary=") {
		t.Fatalf("Content-Type = %q", gotCT)
	}
	if !strings.Contains(gotBody, `{"title":"t"}`) || !strings.Contains(gotBody, "hello") {
		t.Errorf("multipart body missing parts:\n%s", gotBody)
	}
	if lastProgress != int64(len("hello")) {
		t.Errorf("final progress = %d, want %d", lastProgress, len("hello"))
	}
}
