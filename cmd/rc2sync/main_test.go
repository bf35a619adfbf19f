package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mlilback/rc2SwiftClient-sub000/internal/connection"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/progress"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/session"
	"github.com/mlilback/rc2SwiftClient-sub000/pkg/models"
	"github.com/mlilback/rc2SwiftClient-sub000/pkg/protocol"
	"github.com/mlilback/rc2SwiftClient-sub000/pkg/rest"
)

const bulkJSON = `{
  "user": {"id": 42, "login": "local"},
  "projects": [{"id": 1, "userId": 42, "name": "thesis", "version": 1}],
  "workspaces": {"1": [{"id": 10, "projectId": 1, "uniqueId": "ws10", "name": "analysis", "version": 1}]},
  "files": {"10": [{"id": 100, "wspaceId": 10, "name": "model.R", "version": 2, "fileSize": 7}]}
}`

func testToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 42,
		"login":   "local",
		"exp":     exp.Unix(),
	})
	s, err := tok.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

type fakeServer struct {
	*httptest.Server
	fileFetches atomic.Int32
	deleted     atomic.Int32
}

func newFakeServer(t *testing.T, token string) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, bulkJSON)
	})
	mux.HandleFunc("/file/100", func(w http.ResponseWriter, r *http.Request) {
		fs.fileFetches.Add(1)
		io.WriteString(w, "x <- 1\n")
	})
	mux.HandleFunc("/proj/1/wspace", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Rc2-WorkspaceName") != "scratch" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"wspaceId": 11, "bulkInfo": %s}`, bulkJSON)
	})
	mux.HandleFunc("/proj/1/wspace/10", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			fs.deleted.Add(1)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

// writeConfig points a config file at srv and returns its path.
func writeConfig(t *testing.T, srv *httptest.Server, token string) string {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	cfg := fmt.Sprintf(`server:
  host: %s
  port: %s
auth:
  token: %s
cache:
  dir: %s
logging:
  level: error
retry:
  max_attempts: 1
`, u.Hostname(), u.Port(), token, filepath.Join(dir, "cache"))
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestInfoCommand(t *testing.T) {
	token := testToken(t, time.Now().Add(time.Hour))
	srv := newFakeServer(t, token)
	cfg := writeConfig(t, srv.Server, token)

	out, err := run(t, "", "--config", cfg, "info", "--files")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	for _, want := range []string{
		"local (user 42)",
		"project 1: thesis",
		"workspace 10: analysis (1 files)",
		"100 model.R v2 7 bytes",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	token := testToken(t, time.Now().Add(-time.Hour))
	srv := newFakeServer(t, token)
	cfg := writeConfig(t, srv.Server, token)

	if _, err := run(t, "", "--config", cfg, "info"); err == nil || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("info with expired token = %v", err)
	}
}

func TestTokenFlagOverridesConfig(t *testing.T) {
	token := testToken(t, time.Now().Add(time.Hour))
	srv := newFakeServer(t, token)
	cfg := writeConfig(t, srv.Server, "stale")

	if _, err := run(t, "", "--config", cfg, "--token", token, "info"); err != nil {
		t.Fatalf("info: %v", err)
	}
}

func TestCacheSyncAndList(t *testing.T) {
	token := testToken(t, time.Now().Add(time.Hour))
	srv := newFakeServer(t, token)
	cfg := writeConfig(t, srv.Server, token)

	out, err := run(t, "", "--config", cfg, "cache", "list", "-w", "10")
	if err != nil {
		t.Fatalf("cache list: %v", err)
	}
	if !strings.Contains(out, "missing") {
		t.Errorf("expected missing file before sync:\n%s", out)
	}

	if _, err := run(t, "", "--config", cfg, "cache", "sync", "-w", "10"); err != nil {
		t.Fatalf("cache sync: %v", err)
	}
	if srv.fileFetches.Load() != 1 {
		t.Errorf("file fetches = %d, want 1", srv.fileFetches.Load())
	}

	out, err = run(t, "", "--config", cfg, "cache", "list", "-w", "10")
	if err != nil {
		t.Fatalf("cache list: %v", err)
	}
	if !strings.Contains(out, "current") {
		t.Errorf("expected current file after sync:\n%s", out)
	}
}

func TestCacheUnknownWorkspace(t *testing.T) {
	token := testToken(t, time.Now().Add(time.Hour))
	srv := newFakeServer(t, token)
	cfg := writeConfig(t, srv.Server, token)

	if _, err := run(t, "", "--config", cfg, "cache", "list", "-w", "99"); err == nil {
		t.Fatal("expected error for unknown workspace")
	}
	if _, err := run(t, "", "--config", cfg, "cache", "list"); err == nil {
		t.Fatal("expected error without --workspace")
	}
}

func TestWorkspaceCreateAndDelete(t *testing.T) {
	token := testToken(t, time.Now().Add(time.Hour))
	srv := newFakeServer(t, token)
	cfg := writeConfig(t, srv.Server, token)

	out, err := run(t, "", "--config", cfg, "workspace", "create", "-p", "1", "scratch")
	if err != nil {
		t.Fatalf("workspace create: %v", err)
	}
	if !strings.Contains(out, "created workspace 11") {
		t.Errorf("output = %q", out)
	}

	if _, err := run(t, "", "--config", cfg, "workspace", "delete", "-w", "10"); err != nil {
		t.Fatalf("workspace delete: %v", err)
	}
	if srv.deleted.Load() != 1 {
		t.Error("server delete not called")
	}
}

func TestTokenCommandReadsStdin(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	out, err := run(t, testToken(t, exp)+"\n", "token")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if !strings.Contains(out, "login:   local") || !strings.Contains(out, "user id: 42") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "(valid)") {
		t.Errorf("expected valid token: %q", out)
	}

	if _, err := run(t, "", "token"); err == nil {
		t.Error("expected error for empty input")
	}
	if _, err := run(t, "garbage\n", "token"); err == nil {
		t.Error("expected error for malformed token")
	}
}

func TestPrintTokenInfo(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printTokenInfo(&buf, rest.TokenInfo{UserID: 1, Login: "x", ExpiresAt: now.Add(-time.Minute)}, now)
	if !strings.Contains(buf.String(), "2024-03-01T11:59:00Z (expired)") {
		t.Errorf("output = %q", buf.String())
	}

	buf.Reset()
	printTokenInfo(&buf, rest.TokenInfo{Login: "x"}, now)
	if !strings.Contains(buf.String(), "expires: never") {
		t.Errorf("output = %q", buf.String())
	}
}

// nopTransport is never dialed; engines built on it stay Uninitialized.
type nopTransport struct{}

func (nopTransport) Dial(context.Context) error    { return nil }
func (nopTransport) Read() (protocol.Frame, error) { return protocol.Frame{}, io.EOF }
func (nopTransport) Write(protocol.Frame) error    { return nil }
func (nopTransport) Close() error                  { return nil }

func newIdleEngine(t *testing.T, history []string) *session.Engine {
	t.Helper()
	state := models.NewSessionState()
	state.OutputState.CommandHistory = history
	e, err := session.New(session.Config{
		WorkspaceID: 10,
		Transport:   nopTransport{},
		Model:       connection.NewModel(1),
		State:       state,
	})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestRunLine(t *testing.T) {
	e := newIdleEngine(t, []string{"x <- 1", "summary(x)"})
	var out bytes.Buffer

	if done, err := runLine(e, &out, ":history"); done || err != nil {
		t.Fatalf(":history = %v, %v", done, err)
	}
	if !strings.Contains(out.String(), "   2  summary(x)") {
		t.Errorf("history output = %q", out.String())
	}

	if done, _ := runLine(e, &out, ":quit"); !done {
		t.Error(":quit should end the loop")
	}
	if _, err := runLine(e, &out, ":bogus"); err == nil {
		t.Error("unknown command should fail")
	}
	if _, err := runLine(e, &out, ":rm"); err == nil {
		t.Error(":rm without a name should fail")
	}
	if _, err := runLine(e, &out, "print(1)"); err == nil {
		t.Error("executing without a connection should fail")
	}
	if done, err := runLine(e, &out, "   "); done || err != nil {
		t.Error("blank lines are ignored")
	}
}

func TestConsoleDelegate(t *testing.T) {
	var buf bytes.Buffer
	d := &consoleDelegate{out: &buf, closed: make(chan struct{})}

	d.SessionMessageReceived(&protocol.ResultsResponse{Text: "[1] 2"})
	d.SessionMessageReceived(&protocol.VariablesResponse{Variables: map[string]protocol.Variable{
		"b": {Name: "b", ClassName: "numeric", Summary: "2"},
		"a": {Name: "a", ClassName: "character", Summary: `"x"`},
	}})
	d.SessionMessageReceived(&protocol.ExecCompleteResponse{Images: []models.SessionImage{{ID: 3, BatchID: 7, Name: "plot.png"}}})
	d.RespondToHelp("print")

	want := "[1] 2\n" +
		"a <character> \"x\"\n" +
		"b <numeric> 2\n" +
		"[image 3 batch 7: plot.png]\n" +
		"help: print\n"
	if buf.String() != want {
		t.Errorf("output =\n%s\nwant\n%s", buf.String(), want)
	}

	d.SessionClosed()
	d.SessionClosed()
	select {
	case <-d.closed:
	default:
		t.Error("closed channel not closed")
	}
}

func TestShowProgressEndsAtFull(t *testing.T) {
	tr := progress.New()
	tr.Report(0.25)
	tr.Finish(nil)

	var buf bytes.Buffer
	if err := showProgress(context.Background(), &buf, "caching", tr); err != nil {
		t.Fatalf("showProgress: %v", err)
	}
	if got := buf.String(); got != "\rcaching 100%\n" {
		t.Errorf("output = %q", got)
	}

	buf.Reset()
	failed := progress.Failed(errors.New("boom"))
	if err := showProgress(context.Background(), &buf, "caching", failed); err == nil || err.Error() != "boom" {
		t.Errorf("showProgress = %v, want boom", err)
	}
	if buf.String() != "\n" {
		t.Errorf("failed output = %q", buf.String())
	}
}
