package router

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func text(body string) HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) { io.WriteString(w, body) }
}

func TestRouting(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := New(zap.New(core))
	r.GET("/api/v1/runs", text("list"))
	r.GET("/api/v1/runs/*", text("one"))
	r.GET("/api/v1/runs/*/chunks", text("chunks"))
	r.Handle(http.MethodGet, "/swagger/*", http.HandlerFunc(text("docs")))

	tests := []struct {
		method, path string
		status       int
		body         string
	}{
		{http.MethodGet, "/api/v1/runs", 200, "list"},
		{http.MethodGet, "/api/v1/runs/abc", 200, "one"},
		{http.MethodGet, "/api/v1/runs/abc/chunks", 200, "chunks"},
		{http.MethodGet, "/swagger/index.html", 200, "docs"},
		{http.MethodGet, "/swagger/a/b/c", 200, "docs"},
		{http.MethodPost, "/api/v1/runs", 405, ""},
		{http.MethodGet, "/api/v1/missing", 404, ""},
		{http.MethodGet, "/api/v2/runs/abc", 404, ""},
		{http.MethodGet, "/swagger/", 404, ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}

	require.Equal(t, len(tests), logs.Len())
	assert.Equal(t, "http request", logs.All()[0].Message)
	assert.Equal(t, []string{
		"GET:/api/v1/runs",
		"GET:/api/v1/runs/*",
		"GET:/api/v1/runs/*/chunks",
		"GET:/swagger/*",
	}, r.Routes())
}

func TestSegment(t *testing.T) {
	assert.Equal(t, "abc", Segment("/api/v1/runs/abc/chunks", 3))
	assert.Equal(t, "", Segment("/api/v1", 5))
}

func TestServeShutsDown(t *testing.T) {
	r := New(nil)
	r.GET("/ping", text("pong"))
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx, l) }()

	resp, err := http.Get("http://" + l.Addr().String() + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	cancel()
	require.NoError(t, <-done)
	http.DefaultClient.CloseIdleConnections()
}
