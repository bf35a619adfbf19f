package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithSessionAddsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	ctx := WithSession(context.Background(), 42, "abc")
	WithContext(ctx).Info("opened")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["workspace_id"] != int64(42) {
		t.Errorf("workspace_id = %v", fields["workspace_id"])
	}
	if fields["session"] != "abc" {
		t.Errorf("session = %v", fields["session"])
	}
}

func TestRoundTripperLogsStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer ts.Close()

	client := &http.Client{Transport: NewRoundTripper(nil)}
	resp, err := client.Get(ts.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	completed := logs.FilterMessage("request completed").All()
	if len(completed) != 1 {
		t.Fatalf("expected 1 completion entry, got %d", len(completed))
	}
	if completed[0].ContextMap()["status"] != int64(http.StatusTeapot) {
		t.Errorf("status = %v", completed[0].ContextMap()["status"])
	}
}

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rc2.log")
	if err := Init(Config{Level: "WARN", Format: "json", OutputPath: path}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer SetLogger(nil)

	Info("hidden")
	Warn("shown", FileID(7), TransID("t-1"))
	Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if strings.Contains(out, "hidden") {
		t.Error("info entry written at warn level")
	}
	if !strings.Contains(out, `"file_id":7`) || !strings.Contains(out, `"trans_id":"t-1"`) {
		t.Errorf("missing fields in %q", out)
	}
}

func TestSetLevelUnknownIsInfo(t *testing.T) {
	SetLevel("debug")
	if !globalLevel.Enabled(zapcore.DebugLevel) {
		t.Fatal("debug not enabled")
	}
	SetLevel("chatty")
	if globalLevel.Enabled(zapcore.DebugLevel) || !globalLevel.Enabled(zapcore.InfoLevel) {
		t.Errorf("level = %v, want info", globalLevel.Level())
	}
}
