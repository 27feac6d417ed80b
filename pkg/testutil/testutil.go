// Package testutil provides testing utilities for conduit
package testutil

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// ObservedLogger returns a logger recording entries at level and above,
// for asserting on log keys.
func ObservedLogger(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// AssertEventually asserts that a condition becomes true within the specified timeout.
// It checks the condition every 5ms until it succeeds or the timeout expires.
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// CSV builds a CSV document with an id,email header and n rows.
func CSV(n int) string {
	var b strings.Builder
	b.WriteString("id,email\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "%d,user%d@example.com\n", i, i)
	}
	return b.String()
}

// JSONArray builds a JSON array of n objects with id and email fields.
func JSONArray(n int) string {
	var b strings.Builder
	b.WriteByte('[')
	for i := 1; i <= n; i++ {
		if i > 1 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, `{"id":%d,"email":"user%d@example.com"}`, i, i)
	}
	b.WriteByte(']')
	return b.String()
}

// ResourceServer serves a fixed body and counts requests.
type ResourceServer struct {
	*httptest.Server
	hits atomic.Int64
}

// NewResourceServer starts a server answering every request with status,
// headers and body. It is closed when the test completes.
func NewResourceServer(t *testing.T, status int, header http.Header, body []byte) *ResourceServer {
	t.Helper()

	rs := &ResourceServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		rs.hits.Add(1)
		for k, vs := range header {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(rs.Close)
	return rs
}

// Hits returns the number of requests served
func (rs *ResourceServer) Hits() int64 {
	return rs.hits.Load()
}
