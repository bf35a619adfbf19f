package session

import (
	"github.com/mlilback/rc2SwiftClient-sub000/internal/logging"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/metrics"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/reconcile"
	"github.com/mlilback/rc2SwiftClient-sub000/pkg/models"
	"github.com/mlilback/rc2SwiftClient-sub000/pkg/protocol"
)

// handleFrame decodes one inbound frame and dispatches it. Control messages
// are applied here and not forwarded.
func (e *Engine) handleFrame(frame protocol.Frame) {
	resp, err := protocol.Decode(frame)
	if err != nil {
		e.log().Warn("dropping undecodable frame",
			logging.Int("bytes", len(frame.Data)),
			logging.Any("binary", frame.Binary),
			logging.Err(err))
		metrics.RecordFrameReceived("malformed")
		return
	}
	metrics.RecordFrameReceived(resp.Message())

	switch r := resp.(type) {
	case *protocol.FileChangedResponse:
		e.handleFileChanged(r)
		return
	case *protocol.SaveResponse:
		e.resolve(r)
		return
	case *protocol.FileOpResponse:
		e.resolve(r)
		return
	case *protocol.InfoResponse:
		if _, err := e.model.UpdateWorkspace(r.Workspace, r.Files); err != nil {
			e.log().Warn("session info rejected", logging.Err(err))
		}
		return
	case *protocol.ErrorResponse:
		if e.delegate != nil {
			e.delegate.SessionErrorReceived(r.RemoteError())
		}
		return
	case *protocol.ShowOutputResponse:
		e.handleShowOutput(r)
	case *protocol.ExecCompleteResponse:
		e.handleExecComplete(r)
	}
	e.forward(resp)
}

func (e *Engine) forward(resp protocol.Response) {
	if e.delegate != nil {
		e.delegate.SessionMessageReceived(resp)
	}
}

func (e *Engine) resolve(resp protocol.Transactional) {
	if !e.pending.resolve(resp) {
		e.log().Debug("dropping response for unknown transaction",
			logging.String("msg", resp.Message()),
			logging.TransID(resp.TransactionID()))
	}
}

// handleFileChanged applies a pushed change to the disk mirror and then to
// the model. A delete carries no file, so the model's copy is used. An
// insert or update without a file is dropped.
func (e *Engine) handleFileChanged(r *protocol.FileChangedResponse) {
	change, err := reconcile.ParseChangeType(r.Type)
	if err != nil {
		e.log().Warn("ignoring file change", logging.Err(err))
		return
	}
	file := r.File
	if change != reconcile.Delete && file == nil {
		e.log().Warn("ignoring file change without a file",
			logging.String("change", r.Type), logging.FileID(r.FileID))
		return
	}
	if change == reconcile.Delete {
		file = e.model.File(e.workspaceID, r.FileID)
		if file == nil {
			file = &models.File{ID: r.FileID, WorkspaceID: e.workspaceID}
		}
	}

	if e.files != nil && file.Name != "" {
		if err := e.files.HandleChange(e.ctx, change, file); err != nil {
			e.log().Warn("file cache rejected change", logging.FileID(file.ID), logging.Err(err))
		}
	}
	if _, err := e.model.UpdateFile(e.workspaceID, change, file.Clone()); err != nil {
		e.log().Warn("model rejected change", logging.FileID(file.ID), logging.Err(err))
	}
}

// handleShowOutput refreshes the model and the cached copy of the file to be
// shown. Inline data is stored directly; otherwise the file is downloaded
// before the response is forwarded.
func (e *Engine) handleShowOutput(r *protocol.ShowOutputResponse) {
	if e.model.File(e.workspaceID, r.File.ID) == nil {
		e.log().Warn("showOutput for unknown file", logging.FileID(r.File.ID))
		return
	}
	if _, err := e.model.UpdateFile(e.workspaceID, reconcile.Update, r.File.Clone()); err != nil {
		e.log().Warn("model rejected showOutput file", logging.Err(err))
	}
	if e.files == nil {
		return
	}
	if r.FileData != nil {
		if err := e.files.Store(r.File, r.FileData); err != nil {
			e.log().Warn("failed to cache showOutput data", logging.Err(err))
		}
		return
	}
	if err := e.files.Recache(e.ctx, r.File).Wait(e.ctx); err != nil {
		e.log().Warn("failed to download showOutput file", logging.FileID(r.File.ID), logging.Err(err))
	}
}

// handleExecComplete numbers the batch with the engine's counter, which is
// unique across sessions, and caches the images.
func (e *Engine) handleExecComplete(r *protocol.ExecCompleteResponse) {
	if len(r.Images) == 0 {
		return
	}
	e.mu.Lock()
	batch := e.nextBatchID
	e.nextBatchID++
	e.mu.Unlock()

	r.BatchID = batch
	for i := range r.Images {
		r.Images[i].BatchID = batch
	}
	if e.images != nil {
		if err := e.images.Cache(r.Images); err != nil {
			e.log().Warn("failed to cache images", logging.Int("batch_id", batch), logging.Err(err))
		}
	}
}
