package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func text(s string) Frame { return Frame{Data: []byte(s)} }

func TestDecodeResults(t *testing.T) {
	resp, err := Decode(text(`{"msg":"results","queryId":4,"string":"[1] 2"}`))
	require.NoError(t, err)

	r, ok := resp.(*ResultsResponse)
	require.True(t, ok, "got %T", resp)
	assert.Equal(t, 4, r.QueryID)
	assert.Equal(t, "[1] 2", r.Text)
}

func TestDecodeExecCompleteWithImages(t *testing.T) {
	frame := text(`{"msg":"execComplete","queryId":2,"imageBatchId":7,"images":[
		{"id":11,"batchId":7,"name":"plot.png","dateCreated":"2017-03-01","imageData":"iVBORw=="},
		{"id":12,"batchId":7,"name":"plot2.png","dateCreated":"2017-03-01T10:00:00Z"}]}`)
	resp, err := Decode(frame)
	require.NoError(t, err)

	r, ok := resp.(*ExecCompleteResponse)
	require.True(t, ok, "got %T", resp)
	assert.Equal(t, 7, r.BatchID)
	require.Len(t, r.Images, 2)
	assert.Equal(t, 11, r.Images[0].ID)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, r.Images[0].Data)
	assert.Equal(t, "2017-03-01", r.Images[1].CreatedAt.String())
	assert.Nil(t, r.Images[1].Data)
}

func TestDecodeResultsWithImagesKey(t *testing.T) {
	resp, err := Decode(text(`{"msg":"results","images":[]}`))
	require.NoError(t, err)
	r, ok := resp.(*ExecCompleteResponse)
	require.True(t, ok)
	assert.Equal(t, -1, r.BatchID)
}

func TestDecodeShowOutput(t *testing.T) {
	resp, err := Decode(text(`{"msg":"showOutput","queryId":1,
		"file":{"id":3,"wspaceId":2,"name":"out.html","version":5,"fileSize":10,"lastModified":1488326400000},
		"fileData":"PGgxPmhpPC9oMT4="}`))
	require.NoError(t, err)

	r := resp.(*ShowOutputResponse)
	require.NotNil(t, r.File)
	assert.Equal(t, 5, r.File.Version)
	assert.Equal(t, int64(1488326400000), r.File.ModifiedAt.UnixMilli())
	assert.Equal(t, "<h1>hi</h1>", string(r.FileData))

	_, err = Decode(text(`{"msg":"showOutput","queryId":1}`))
	assert.True(t, errors.Is(err, ErrMalformedMessage))
}

func TestDecodeErrorAndEcho(t *testing.T) {
	resp, err := Decode(text(`{"msg":"error","queryId":9}`))
	require.NoError(t, err)
	assert.Equal(t, "unknown error", resp.(*ErrorResponse).Error)

	resp, err = Decode(text(`{"msg":"error","queryId":9,"errorCode":1005,"error":"no compute"}`))
	require.NoError(t, err)
	remote := resp.(*ErrorResponse).RemoteError()
	assert.Equal(t, ErrorComputeEngineUnavailable, remote.Code)
	assert.Equal(t, "no compute", remote.Message)

	resp, err = Decode(text(`{"msg":"echo","queryId":9,"fileId":3,"query":"x <- 1"}`))
	require.NoError(t, err)
	echo := resp.(*EchoResponse)
	assert.Equal(t, 3, echo.FileID)
	assert.Equal(t, "x <- 1", echo.Query)

	_, err = Decode(text(`{"msg":"echo","queryId":9}`))
	assert.True(t, errors.Is(err, ErrMalformedMessage))
}

func TestDecodeFileChanged(t *testing.T) {
	resp, err := Decode(text(`{"msg":"filechanged","type":"Delete","fileId":8}`))
	require.NoError(t, err)
	r := resp.(*FileChangedResponse)
	assert.Equal(t, "Delete", r.Type)
	assert.Equal(t, 8, r.FileID)
	assert.Nil(t, r.File)
}

func TestDecodeVariables(t *testing.T) {
	resp, err := Decode(text(`{"msg":"variables","single":false,
		"variables":{"x":{"name":"x","primitive":true,"type":"d","value":[1.5],"length":1}}}`))
	require.NoError(t, err)
	r := resp.(*VariablesResponse)
	require.Contains(t, r.Variables, "x")
	assert.True(t, r.Variables["x"].Primitive)
	assert.Equal(t, "d", r.Variables["x"].Type)

	resp, err = Decode(text(`{"msg":"variables","delta":true,
		"variables":{"assigned":{"y":{"name":"y","class":"data.frame"}},"removed":["x"]}}`))
	require.NoError(t, err)
	r = resp.(*VariablesResponse)
	assert.Equal(t, "data.frame", r.Assigned["y"].ClassName)
	assert.Equal(t, []string{"x"}, r.Removed)
}

func TestDecodeFileOpResponse(t *testing.T) {
	resp, err := Decode(text(`{"msg":"fileOpResponse","transId":"t1","operation":"rm","success":false,
		"error":{"errorCode":1001,"errorMessage":"no such file"}}`))
	require.NoError(t, err)
	r := resp.(*FileOpResponse)
	assert.Equal(t, "t1", r.TransactionID())
	assert.Equal(t, FileOpRemove, r.Operation)
	require.NotNil(t, r.Error)
	assert.Equal(t, ErrorNoSuchFile, r.Error.Code)
	assert.True(t, errors.Is(r.Error, &RemoteError{Code: ErrorNoSuchFile}))

	_, err = Decode(text(`{"msg":"fileOpResponse","transId":"t1","operation":"chmod","success":true}`))
	assert.True(t, errors.Is(err, ErrMalformedMessage))
}

func TestDecodeBinarySaveResponse(t *testing.T) {
	data, err := msgpack.Marshal(map[string]interface{}{
		"msg":     "saveResponse",
		"transId": "abc",
		"success": true,
		"file": map[string]interface{}{
			"id": 3, "wspaceId": 2, "name": "a.R", "version": 6, "fileSize": 12,
			"lastModified": int64(1488326400000),
		},
	})
	require.NoError(t, err)

	resp, err := Decode(Frame{Binary: true, Data: data})
	require.NoError(t, err)
	r := resp.(*SaveResponse)
	assert.Equal(t, "abc", r.TransactionID())
	assert.True(t, r.Success)
	require.NotNil(t, r.File)
	assert.Equal(t, 6, r.File.Version)
	assert.Equal(t, int64(12), r.File.SizeBytes)
	assert.Equal(t, int64(1488326400000), r.File.ModifiedAt.UnixMilli())
}

func TestDecodeInfo(t *testing.T) {
	resp, err := Decode(text(`{"msg":"info","workspace":{"id":2,"projectId":1,"uniqueId":"u","name":"w","version":3},
		"files":[{"id":3,"wspaceId":2,"name":"a.R","version":1}]}`))
	require.NoError(t, err)
	r := resp.(*InfoResponse)
	assert.Equal(t, 3, r.Workspace.Version)
	require.Len(t, r.Files, 1)
	assert.Equal(t, "a.R", r.Files[0].Name)
}

func TestDecodeUnknownAndMalformed(t *testing.T) {
	resp, err := Decode(text(`{"msg":"userid","userId":4}`))
	require.NoError(t, err)
	u, ok := resp.(*UnknownResponse)
	require.True(t, ok)
	assert.Equal(t, "userid", u.Message())

	for _, bad := range []Frame{
		text(`not json`),
		text(`{"queryId":1}`),
		text(`null`),
		{Binary: true, Data: []byte{0xc1}},
	} {
		_, err := Decode(bad)
		assert.True(t, errors.Is(err, ErrMalformedMessage), "frame %q: %v", bad.Data, err)
	}
}

func TestRequestFrames(t *testing.T) {
	f, err := ExecuteRequest{Code: "x <- 1", TransID: "t", UserInitiated: true}.Frame()
	require.NoError(t, err)
	assert.False(t, f.Binary)
	assert.JSONEq(t, `{"msg":"execute","code":"x <- 1","transId":"t","userInitiated":true}`, string(f.Data))

	f, err = FileOpRequest{Operation: FileOpRename, FileID: 3, FileVersion: 2, NewName: "b.R", TransID: "t"}.Frame()
	require.NoError(t, err)
	assert.JSONEq(t, `{"msg":"fileop","operation":"rename","fileId":3,"fileVersion":2,"newName":"b.R","transId":"t"}`, string(f.Data))

	f, err = KeepAliveRequest{}.Frame()
	require.NoError(t, err)
	var m map[string]string
	require.NoError(t, json.Unmarshal(f.Data, &m))
	assert.Equal(t, "keepAlive", m["msg"])

	f, err = SaveRequest{FileID: 3, FileVersion: 2, TransID: "s", Content: []byte("abc")}.Frame()
	require.NoError(t, err)
	assert.True(t, f.Binary)
	var save map[string]interface{}
	require.NoError(t, msgpack.Unmarshal(f.Data, &save))
	assert.Equal(t, "save", save["msg"])
	assert.Equal(t, []byte("abc"), save["content"])
}

func TestErrorCodeFrom(t *testing.T) {
	assert.Equal(t, ErrorComputeError, ErrorCodeFrom(1007))
	assert.Equal(t, ErrorUnknown, ErrorCodeFrom(1004))
	assert.Equal(t, "compute engine unavailable", ErrorComputeEngineUnavailable.String())
}
