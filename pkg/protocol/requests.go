package protocol

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Request is a client message ready to be framed.
type Request interface {
	Frame() (Frame, error)
}

func textFrame(v interface{}) (Frame, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Data: data}, nil
}

// ExecuteRequest runs R code in the session.
type ExecuteRequest struct {
	Code          string
	TransID       string
	UserInitiated bool
}

func (r ExecuteRequest) Frame() (Frame, error) {
	return textFrame(struct {
		Msg           string `json:"msg"`
		Code          string `json:"code"`
		TransID       string `json:"transId"`
		UserInitiated bool   `json:"userInitiated"`
	}{"execute", r.Code, r.TransID, r.UserInitiated})
}

// ExecuteFileRequest runs a workspace file. Echo asks the server to echo the
// source as it is evaluated.
type ExecuteFileRequest struct {
	FileID      int
	FileVersion int
	TransID     string
	Echo        bool
}

func (r ExecuteFileRequest) Frame() (Frame, error) {
	return textFrame(struct {
		Msg         string `json:"msg"`
		FileID      int    `json:"fileId"`
		FileVersion int    `json:"fileVersion"`
		TransID     string `json:"transId"`
		Echo        bool   `json:"echo"`
	}{"executeFile", r.FileID, r.FileVersion, r.TransID, r.Echo})
}

// FileOpRequest removes, renames or duplicates a file.
type FileOpRequest struct {
	Operation   FileOperation
	FileID      int
	FileVersion int
	NewName     string
	TransID     string
}

func (r FileOpRequest) Frame() (Frame, error) {
	return textFrame(struct {
		Msg         string        `json:"msg"`
		Operation   FileOperation `json:"operation"`
		FileID      int           `json:"fileId"`
		FileVersion int           `json:"fileVersion"`
		NewName     string        `json:"newName,omitempty"`
		TransID     string        `json:"transId"`
	}{"fileop", r.Operation, r.FileID, r.FileVersion, r.NewName, r.TransID})
}

// WatchVariablesRequest turns variable delta messages on or off.
type WatchVariablesRequest struct {
	Watch bool
}

func (r WatchVariablesRequest) Frame() (Frame, error) {
	return textFrame(struct {
		Msg   string `json:"msg"`
		Watch bool   `json:"watch"`
	}{"watchVariables", r.Watch})
}

// KeepAliveRequest is the application-level heartbeat.
type KeepAliveRequest struct{}

var keepAliveFrame = []byte(`{"msg":"keepAlive"}`)

func (KeepAliveRequest) Frame() (Frame, error) {
	return Frame{Data: keepAliveFrame}, nil
}

// SaveRequest replaces a file's contents. It is sent as a binary frame so the
// content travels as raw bytes.
type SaveRequest struct {
	FileID      int
	FileVersion int
	TransID     string
	Content     []byte
}

type saveWire struct {
	Msg         string `msgpack:"msg"`
	FileID      int    `msgpack:"fileId"`
	FileVersion int    `msgpack:"fileVersion"`
	TransID     string `msgpack:"transId"`
	Content     []byte `msgpack:"content"`
}

func (r SaveRequest) Frame() (Frame, error) {
	data, err := msgpack.Marshal(&saveWire{"save", r.FileID, r.FileVersion, r.TransID, r.Content})
	if err != nil {
		return Frame{}, err
	}
	return Frame{Binary: true, Data: data}, nil
}
