package protocol

import "github.com/mlilback/rc2SwiftClient-sub000/pkg/models"

// Message types sent by the session server.
const (
	MsgResults        = "results"
	MsgExecComplete   = "execComplete"
	MsgShowOutput     = "showOutput"
	MsgError          = "error"
	MsgEcho           = "echo"
	MsgFileChanged    = "filechanged"
	MsgVariables      = "variables"
	MsgSaveResponse   = "saveResponse"
	MsgFileOpResponse = "fileOpResponse"
	MsgInfo           = "info"
)

// Response is a decoded server message.
type Response interface {
	// Message returns the wire message type.
	Message() string
}

// Transactional is implemented by responses that complete a client request.
type Transactional interface {
	Response
	TransactionID() string
}

// ResultsResponse is textual output from an execution.
type ResultsResponse struct {
	QueryID int    `json:"queryId"`
	FileID  int    `json:"fileId"`
	Text    string `json:"string"`
}

func (*ResultsResponse) Message() string { return MsgResults }

// ExecCompleteResponse ends an execution and carries any images it produced.
// BatchID is the server's per-session batch id; images are renumbered by the
// engine into a batch unique across sessions.
type ExecCompleteResponse struct {
	QueryID int                   `json:"queryId"`
	BatchID int                   `json:"imageBatchId"`
	Images  []models.SessionImage `json:"images"`
}

func (*ExecCompleteResponse) Message() string { return MsgExecComplete }

// ShowOutputResponse asks the client to display a file. FileData is nil when
// the file was too large to send inline.
type ShowOutputResponse struct {
	QueryID  int          `json:"queryId"`
	File     *models.File `json:"file"`
	FileData []byte       `json:"fileData"`
}

func (*ShowOutputResponse) Message() string { return MsgShowOutput }

// ErrorResponse reports a failed query. Code is ErrorUnknown when the server
// sent none.
type ErrorResponse struct {
	QueryID int       `json:"queryId"`
	Code    ErrorCode `json:"errorCode"`
	Error   string    `json:"error"`
}

func (*ErrorResponse) Message() string { return MsgError }

// RemoteError converts the response into an error value.
func (r *ErrorResponse) RemoteError() *RemoteError {
	return &RemoteError{Code: ErrorCodeFrom(int(r.Code)), Message: r.Error}
}

type EchoResponse struct {
	QueryID int    `json:"queryId"`
	FileID  int    `json:"fileId"`
	Query   string `json:"query"`
}

func (*EchoResponse) Message() string { return MsgEcho }

// FileChangedResponse is a single-file push. Type is Insert/Update/Delete and
// File is nil for deletes.
type FileChangedResponse struct {
	Type   string       `json:"type"`
	FileID int          `json:"fileId"`
	File   *models.File `json:"file"`
}

func (*FileChangedResponse) Message() string { return MsgFileChanged }

// Variable is one R environment variable as described by the server.
type Variable struct {
	Name      string      `json:"name"`
	ClassName string      `json:"class"`
	Type      string      `json:"type"`
	Primitive bool        `json:"primitive"`
	Summary   string      `json:"summary"`
	Length    int         `json:"length"`
	Value     interface{} `json:"value"`
}

// VariablesResponse is either a full listing or, when Delta is set, the
// assigned and removed variables since the last message.
type VariablesResponse struct {
	Single    bool                `json:"single"`
	Delta     bool                `json:"delta"`
	Variables map[string]Variable `json:"-"`
	Assigned  map[string]Variable `json:"-"`
	Removed   []string            `json:"-"`
}

func (*VariablesResponse) Message() string { return MsgVariables }

// SaveResponse acknowledges a save request.
type SaveResponse struct {
	TransID string       `json:"transId"`
	Success bool         `json:"success"`
	File    *models.File `json:"file"`
	Error   *RemoteError `json:"error"`
}

func (*SaveResponse) Message() string         { return MsgSaveResponse }
func (r *SaveResponse) TransactionID() string { return r.TransID }

// FileOperation is a remote file operation.
type FileOperation string

const (
	FileOpRemove    FileOperation = "rm"
	FileOpRename    FileOperation = "rename"
	FileOpDuplicate FileOperation = "duplicate"
)

// FileOpResponse acknowledges a remove, rename or duplicate request.
type FileOpResponse struct {
	TransID   string        `json:"transId"`
	Operation FileOperation `json:"operation"`
	Success   bool          `json:"success"`
	File      *models.File  `json:"file"`
	Error     *RemoteError  `json:"error"`
}

func (*FileOpResponse) Message() string         { return MsgFileOpResponse }
func (r *FileOpResponse) TransactionID() string { return r.TransID }

// InfoResponse is a session info push for the session's workspace.
type InfoResponse struct {
	Workspace *models.Workspace `json:"workspace"`
	Files     []*models.File    `json:"files"`
}

func (*InfoResponse) Message() string { return MsgInfo }

// UnknownResponse is any message type this package does not model. It is
// forwarded unchanged.
type UnknownResponse struct {
	Msg    string
	Fields map[string]interface{}
}

func (r *UnknownResponse) Message() string { return r.Msg }
