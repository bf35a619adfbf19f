package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mlilback/rc2SwiftClient-sub000/internal/logging"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/progress"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/session"
	"github.com/mlilback/rc2SwiftClient-sub000/pkg/protocol"
)

func newOpenCmd() *cobra.Command {
	var wsID int
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open an interactive session on a workspace",
		Long: `Open connects to the workspace session, caches every file and then reads
R commands from stdin. Lines starting with ':' are session commands:

  :vars      watch the variable listing
  :clear     remove every variable
  :rm NAME   remove one variable
  :history   print the command history
  :quit      close the session`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpen(cmd, wsID)
		},
	}
	cmd.Flags().IntVarP(&wsID, "workspace", "w", 0, "workspace id")
	return cmd
}

func runOpen(cmd *cobra.Command, wsID int) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	defer a.startMetrics()()

	ws, err := a.workspace(wsID)
	if err != nil {
		return err
	}
	store, err := a.stateStore()
	if err != nil {
		return err
	}
	defer store.Close()

	saved, err := store.Load(ws.ID)
	if err != nil {
		return err
	}
	files, err := a.fileCache(ws)
	if err != nil {
		return err
	}
	images, err := a.imageCache(ws, saved)
	if err != nil {
		return err
	}

	settings := a.cfg.TransportSettings()
	out := &consoleDelegate{out: cmd.OutOrStdout(), closed: make(chan struct{})}
	engine, err := session.New(session.Config{
		WorkspaceID:       ws.ID,
		Transport:         session.NewWebSocketTransport(a.info.WebSocketURL(ws.ID), a.info.Token, settings),
		Model:             a.model,
		Files:             files,
		Images:            images,
		Delegate:          out,
		State:             saved,
		HeartbeatInterval: a.cfg.Session.HeartbeatInterval,
	})
	if err != nil {
		return err
	}

	defer func() {
		engine.Close()
		if err := store.Save(ws.ID, engine.State(saved)); err != nil {
			logging.Error("failed to save session state", logging.Err(err))
		}
	}()

	tracker, err := engine.Open(ctx)
	if err != nil {
		return err
	}
	if err := showProgress(ctx, cmd.ErrOrStderr(), "caching "+ws.Name, tracker); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "session open on %s (%d files)\n", ws.Name, len(a.model.Files(ws.ID)))

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(cmd.ErrOrStderr(), "\nshutting down")
			return nil
		case <-out.closed:
			return engine.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			done, err := runLine(engine, cmd.OutOrStdout(), line)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			}
			if done {
				return nil
			}
		}
	}
}

// runLine executes one line of input. It reports true when the user asked to quit.
func runLine(engine *session.Engine, out io.Writer, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, ":") {
		return false, engine.ExecuteScript(line)
	}

	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return false, nil
	}
	switch fields[0] {
	case "quit", "q":
		return true, nil
	case "vars":
		return false, engine.WatchVariables(true)
	case "clear":
		return false, engine.ClearVariables()
	case "rm":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: :rm NAME")
		}
		return false, engine.DeleteVariable(fields[1])
	case "history":
		for i, c := range engine.History() {
			fmt.Fprintf(out, "%4d  %s\n", i+1, c)
		}
		return false, nil
	default:
		return false, fmt.Errorf("unknown command :%s", fields[0])
	}
}

// showProgress prints tracker updates on one line until it finishes. The
// tracker closes Updates after its last value, so the final 100% is always drained.
func showProgress(ctx context.Context, w io.Writer, label string, t *progress.Tracker) error {
	updates := t.Updates()
	for {
		select {
		case f, ok := <-updates:
			if !ok {
				fmt.Fprintln(w)
				return t.Err()
			}
			fmt.Fprintf(w, "\r%s %3.0f%%", label, f*100)
		case <-ctx.Done():
			fmt.Fprintln(w)
			return ctx.Err()
		}
	}
}

// consoleDelegate prints session output.
type consoleDelegate struct {
	mu     sync.Mutex
	out    io.Writer
	once   sync.Once
	closed chan struct{}
}

func (d *consoleDelegate) printf(format string, args ...interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, format, args...)
}

func (d *consoleDelegate) SessionMessageReceived(resp protocol.Response) {
	switch r := resp.(type) {
	case *protocol.ResultsResponse:
		d.printf("%s", r.Text)
		if !strings.HasSuffix(r.Text, "\n") {
			d.printf("\n")
		}
	case *protocol.EchoResponse:
		d.printf("> %s\n", r.Query)
	case *protocol.ExecCompleteResponse:
		for _, img := range r.Images {
			d.printf("[image %d batch %d: %s]\n", img.ID, img.BatchID, img.Name)
		}
	case *protocol.ShowOutputResponse:
		if r.File != nil {
			d.printf("[output %s]\n", r.File.Name)
		}
	case *protocol.VariablesResponse:
		d.printVariables(r)
	default:
		logging.Debug("unhandled session message", logging.String("msg", resp.Message()))
	}
}

func (d *consoleDelegate) printVariables(r *protocol.VariablesResponse) {
	vars := r.Variables
	if r.Delta {
		vars = r.Assigned
		for _, name := range r.Removed {
			d.printf("- %s\n", name)
		}
	}
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := vars[name]
		d.printf("%s <%s> %s\n", name, v.ClassName, v.Summary)
	}
}

func (d *consoleDelegate) SessionErrorReceived(err error) {
	d.printf("error: %v\n", err)
}

func (d *consoleDelegate) RespondToHelp(topic string) {
	d.printf("help: %s\n", topic)
}

func (d *consoleDelegate) SessionClosed() {
	d.once.Do(func() { close(d.closed) })
}

var _ session.Delegate = (*consoleDelegate)(nil)
