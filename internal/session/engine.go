// Package session drives one workspace session over a websocket: it opens
// the connection, brings the file cache up to date, sends requests and
// applies or forwards everything the server pushes.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mlilback/rc2SwiftClient-sub000/internal/connection"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/events"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/filecache"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/imagecache"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/logging"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/metrics"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/progress"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/reconcile"
	"github.com/mlilback/rc2SwiftClient-sub000/pkg/models"
	"github.com/mlilback/rc2SwiftClient-sub000/pkg/protocol"
)

// DefaultHeartbeatInterval is how often a keepAlive message is sent.
const DefaultHeartbeatInterval = 30 * time.Second

// Delegate receives what the engine does not handle itself. Methods are
// called from the engine's read goroutine and should not block.
type Delegate interface {
	SessionMessageReceived(resp protocol.Response)
	SessionErrorReceived(err error)
	RespondToHelp(topic string)
	SessionClosed()
}

type Config struct {
	WorkspaceID int
	Transport   Transport
	Model       *connection.Model
	Files       *filecache.Cache
	Images      *imagecache.Cache
	Delegate    Delegate

	// State seeds the command history and the image batch counter.
	State             models.SessionState
	HeartbeatInterval time.Duration
	StatusBuffer      int
}

// Engine is one session. It cannot be reopened once closed.
type Engine struct {
	workspaceID int
	transport   Transport
	model       *connection.Model
	files       *filecache.Cache
	images      *imagecache.Cache
	delegate    Delegate
	heartbeat   time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	status      Status
	err         error
	watching    bool
	history     []string
	nextBatchID int

	pending *pendingTransactions
	changes *events.Broadcaster[Status]
}

// New creates an engine in the Uninitialized state. When cfg.Files is set,
// the engine becomes its Pusher so saves go over the socket.
func New(cfg Config) (*Engine, error) {
	if cfg.Transport == nil {
		return nil, errors.New("session requires a transport")
	}
	if cfg.Model == nil {
		return nil, errors.New("session requires a connection model")
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.StatusBuffer <= 0 {
		cfg.StatusBuffer = 8
	}
	state := cfg.State
	if state.NextBatchID == 0 && state.OutputState.CommandHistory == nil {
		state = models.NewSessionState()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		workspaceID: cfg.WorkspaceID,
		transport:   cfg.Transport,
		model:       cfg.Model,
		files:       cfg.Files,
		images:      cfg.Images,
		delegate:    cfg.Delegate,
		heartbeat:   cfg.HeartbeatInterval,
		ctx:         logging.WithSession(ctx, cfg.WorkspaceID, uuid.NewString()),
		cancel:      cancel,
		history:     append([]string(nil), state.OutputState.CommandHistory...),
		nextBatchID: max(state.NextBatchID, 1),
		pending:     newPendingTransactions(),
		changes:     events.NewBroadcaster[Status](cfg.StatusBuffer),
	}
	if e.files != nil {
		e.files.SetPusher(e)
	}
	metrics.SetSessionStatus(Uninitialized.String())
	return e, nil
}

func (e *Engine) log() *zap.Logger {
	return logging.WithContext(e.ctx)
}

// Status returns the current lifecycle state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Err returns the error that moved the engine to Failed.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// StatusChanges publishes every status transition.
func (e *Engine) StatusChanges() *events.Broadcaster[Status] {
	return e.changes
}

// setStatusLocked moves to s unless the current status is terminal.
func (e *Engine) setStatusLocked(s Status) bool {
	if e.status.Terminal() {
		return false
	}
	e.status = s
	metrics.SetSessionStatus(s.String())
	e.changes.Publish(s)
	return true
}

// Open connects the transport and then caches every workspace file. The
// returned tracker carries the cache progress and finishes when the session
// is ready. If caching fails the session fails with it.
func (e *Engine) Open(ctx context.Context) (*progress.Tracker, error) {
	e.mu.Lock()
	switch e.status {
	case Connecting:
		e.mu.Unlock()
		return nil, ErrOpenAlreadyInProgress
	case Connected:
		e.mu.Unlock()
		return nil, ErrAlreadyOpen
	case Closed, Failed:
		e.mu.Unlock()
		return nil, ErrSessionClosed
	}
	e.setStatusLocked(Connecting)
	e.mu.Unlock()

	tracker := progress.New()
	go e.open(ctx, tracker)
	return tracker, nil
}

func (e *Engine) open(ctx context.Context, tracker *progress.Tracker) {
	if err := e.transport.Dial(ctx); err != nil {
		terr := &TransportError{Op: "dial", Err: err}
		e.finish(terr)
		tracker.Finish(terr)
		return
	}

	e.mu.Lock()
	if !e.setStatusLocked(Connected) {
		e.mu.Unlock()
		e.transport.Close()
		tracker.Finish(ErrSessionClosed)
		return
	}
	e.mu.Unlock()
	e.log().Info("session connected")

	go e.readLoop()
	go e.keepAlive()

	if e.files == nil {
		tracker.Finish(nil)
		return
	}
	all, err := e.files.CacheAll(ctx)
	if err == nil {
		err = tracker.Forward(all)
	}
	if err != nil {
		e.log().Error("initial file cache failed", logging.Err(err))
		e.finish(fmt.Errorf("cache workspace files: %w", err))
		tracker.Finish(err)
		return
	}
	if e.Status().Terminal() {
		if err := e.Err(); err != nil {
			tracker.Finish(err)
		} else {
			tracker.Finish(ErrSessionClosed)
		}
		return
	}
	tracker.Finish(nil)
}

// Close stops the heartbeat and closes the transport. Closing an engine that
// never connected moves it straight to Closed. Closing a Closed or Failed
// engine does nothing.
func (e *Engine) Close() error {
	e.finish(nil)
	return nil
}

// finish moves to Closed (err == nil) or Failed and tears everything down.
// Only the first call has any effect.
func (e *Engine) finish(err error) {
	e.mu.Lock()
	next := Closed
	if err != nil {
		next = Failed
	}
	if !e.setStatusLocked(next) {
		e.mu.Unlock()
		return
	}
	e.err = err
	e.mu.Unlock()

	e.cancel()
	e.pending.failAll(ErrConnectionLost)
	if cerr := e.transport.Close(); cerr != nil {
		e.log().Debug("transport close", logging.Err(cerr))
	}
	if err != nil {
		e.log().Warn("session failed", logging.Err(err))
	} else {
		e.log().Info("session closed")
	}
	if e.delegate != nil {
		e.delegate.SessionClosed()
	}
}

func (e *Engine) readLoop() {
	for {
		frame, err := e.transport.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				e.finish(nil)
			} else {
				e.finish(&TransportError{Op: "read", Err: err})
			}
			return
		}
		if e.Status().Terminal() {
			return
		}
		e.handleFrame(frame)
	}
}

func (e *Engine) keepAlive() {
	ticker := time.NewTicker(e.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			if err := e.send("keepAlive", protocol.KeepAliveRequest{}); err != nil {
				e.log().Debug("keepAlive not sent", logging.Err(err))
			}
		}
	}
}

func (e *Engine) send(name string, req protocol.Request) error {
	if s := e.Status(); s != Connected {
		return fmt.Errorf("%w: %s", ErrNotConnected, s)
	}
	frame, err := req.Frame()
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := e.transport.Write(frame); err != nil {
		terr := &TransportError{Op: "write", Err: err}
		e.finish(terr)
		return terr
	}
	metrics.RecordFrameSent(name)
	return nil
}

// transact sends req under a fresh transaction id and waits for the
// correlated response.
func (e *Engine) transact(ctx context.Context, name string, build func(transID string) protocol.Request) (protocol.Transactional, error) {
	id := uuid.NewString()
	ch := e.pending.add(id)
	if err := e.send(name, build(id)); err != nil {
		e.pending.remove(id)
		return nil, err
	}
	return e.pending.wait(ctx, id, ch)
}

// ExecuteScript runs code. A help request is routed to the delegate and
// removed from the script; nothing is sent if no code remains.
func (e *Engine) ExecuteScript(code string) error {
	if code == "" {
		return nil
	}
	if topic, rest, ok := parseHelp(code); ok {
		if e.delegate != nil {
			e.delegate.RespondToHelp(topic)
		}
		if rest == "" {
			return nil
		}
		code = rest
	}
	e.mu.Lock()
	h := models.SessionState{OutputState: models.OutputState{CommandHistory: e.history}}
	h.AddCommand(code)
	e.history = h.OutputState.CommandHistory
	e.mu.Unlock()
	return e.send("execute", protocol.ExecuteRequest{Code: code, TransID: uuid.NewString(), UserInitiated: true})
}

// ExecuteFile runs a workspace file. With echo the server echoes each
// expression as it is evaluated.
func (e *Engine) ExecuteFile(file *models.File, echo bool) error {
	return e.send("executeFile", protocol.ExecuteFileRequest{
		FileID:      file.ID,
		FileVersion: file.Version,
		TransID:     uuid.NewString(),
		Echo:        echo,
	})
}

// ClearVariables removes every variable from the global environment.
func (e *Engine) ClearVariables() error {
	return e.send("execute", protocol.ExecuteRequest{Code: "rm(list=ls())", TransID: uuid.NewString()})
}

func (e *Engine) DeleteVariable(name string) error {
	return e.send("execute", protocol.ExecuteRequest{Code: fmt.Sprintf("rm(%s)", name), TransID: uuid.NewString()})
}

// WatchVariables turns variable deltas on or off. Repeating the current
// setting sends nothing.
func (e *Engine) WatchVariables(watch bool) error {
	e.mu.Lock()
	if e.watching == watch {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()
	if err := e.send("watchVariables", protocol.WatchVariablesRequest{Watch: watch}); err != nil {
		return err
	}
	e.mu.Lock()
	e.watching = watch
	e.mu.Unlock()
	return nil
}

// ForceVariableRefresh asks for a full variable listing.
func (e *Engine) ForceVariableRefresh() error {
	return e.send("watchVariables", protocol.WatchVariablesRequest{Watch: true})
}

func (e *Engine) fileOp(ctx context.Context, op protocol.FileOperation, file *models.File, newName string) (*protocol.FileOpResponse, error) {
	resp, err := e.transact(ctx, "fileop", func(id string) protocol.Request {
		return protocol.FileOpRequest{
			Operation:   op,
			FileID:      file.ID,
			FileVersion: file.Version,
			NewName:     newName,
			TransID:     id,
		}
	})
	if err != nil {
		return nil, err
	}
	r, ok := resp.(*protocol.FileOpResponse)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedResponse, resp.Message())
	}
	if r.Error != nil {
		return nil, r.Error
	}
	if !r.Success {
		return nil, &protocol.RemoteError{Code: protocol.ErrorUnknown, Message: string(op) + " failed"}
	}
	return r, nil
}

// RemoveFile deletes a file. The model is updated by the filechanged push
// that follows.
func (e *Engine) RemoveFile(ctx context.Context, file *models.File) error {
	_, err := e.fileOp(ctx, protocol.FileOpRemove, file, "")
	return err
}

func (e *Engine) RenameFile(ctx context.Context, file *models.File, newName string) error {
	_, err := e.fileOp(ctx, protocol.FileOpRename, file, newName)
	return err
}

// DuplicateFile copies a file on the server and seeds the cache for the
// copy from the original's cached contents.
func (e *Engine) DuplicateFile(ctx context.Context, file *models.File, newName string) (*models.File, error) {
	r, err := e.fileOp(ctx, protocol.FileOpDuplicate, file, newName)
	if err != nil {
		return nil, err
	}
	if r.File == nil {
		return nil, &protocol.RemoteError{Code: protocol.ErrorUnknown, Message: "duplicate response without file"}
	}
	if e.files != nil && e.files.IsCached(file) {
		if err := e.files.Copy(file, r.File); err != nil {
			e.log().Warn("failed to cache duplicated file", logging.FileID(r.File.ID), logging.Err(err))
		}
	}
	return r.File, nil
}

// PushFile sends new contents as a binary save request and applies the
// acknowledged version to the model. It implements filecache.Pusher.
func (e *Engine) PushFile(ctx context.Context, file *models.File, contents []byte) (*models.File, error) {
	resp, err := e.transact(ctx, "save", func(id string) protocol.Request {
		return protocol.SaveRequest{FileID: file.ID, FileVersion: file.Version, TransID: id, Content: contents}
	})
	if err != nil {
		return nil, err
	}
	r, ok := resp.(*protocol.SaveResponse)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedResponse, resp.Message())
	}
	if r.Error != nil {
		if e.delegate != nil {
			e.delegate.SessionErrorReceived(r.Error)
		}
		return nil, r.Error
	}
	if r.File == nil {
		return nil, &protocol.RemoteError{Code: protocol.ErrorUnknown, Message: "save response without file"}
	}
	if _, err := e.model.UpdateFile(e.workspaceID, reconcile.Update, r.File.Clone()); err != nil {
		e.log().Error("saved file missing from model", logging.FileID(r.File.ID), logging.Err(err))
	}
	return r.File, nil
}

// SaveFile saves contents and rewrites the cached copy at the new version.
func (e *Engine) SaveFile(ctx context.Context, file *models.File, contents []byte) (*models.File, error) {
	if e.files == nil {
		return e.PushFile(ctx, file, contents)
	}
	return e.files.Save(ctx, file, contents)
}

// History returns the executed command history, oldest first.
func (e *Engine) History() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.history...)
}

// NextBatchID returns the batch id the next image batch will get.
func (e *Engine) NextBatchID() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextBatchID
}

// State captures what should survive to the next session into base.
func (e *Engine) State(base models.SessionState) models.SessionState {
	e.mu.Lock()
	base.OutputState.CommandHistory = append([]string(nil), e.history...)
	base.NextBatchID = e.nextBatchID
	e.mu.Unlock()
	if e.images != nil {
		base.ImageCacheState = e.images.State()
	}
	return base
}
