// Package protocol encodes and decodes session websocket frames. Text frames
// carry JSON; binary frames carry the same envelope as a MessagePack map.
// Either way the "msg" key selects the response type.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mlilback/rc2SwiftClient-sub000/pkg/models"
)

// Frame is one websocket message.
type Frame struct {
	Binary bool
	Data   []byte
}

// Decode parses a frame of either format into a typed response.
func Decode(f Frame) (Response, error) {
	raw, err := decodeEnvelope(f)
	if err != nil {
		return nil, err
	}
	return DecodeMap(raw)
}

func decodeEnvelope(f Frame) (map[string]interface{}, error) {
	var raw map[string]interface{}
	var err error
	if f.Binary {
		err = msgpack.Unmarshal(f.Data, &raw)
	} else {
		err = json.Unmarshal(f.Data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: empty frame", ErrMalformedMessage)
	}
	return raw, nil
}

// DecodeMap converts an already-parsed envelope into a typed response.
func DecodeMap(raw map[string]interface{}) (Response, error) {
	msg, _ := raw["msg"].(string)
	if msg == "" {
		return nil, fmt.Errorf("%w: missing msg", ErrMalformedMessage)
	}

	switch msg {
	case MsgResults, MsgExecComplete:
		// the server sends images under either name
		if _, ok := raw["images"]; ok {
			return decodeInto(raw, &ExecCompleteResponse{BatchID: -1})
		}
		return decodeInto(raw, &ResultsResponse{})
	case MsgShowOutput:
		r := &ShowOutputResponse{}
		if _, err := decodeInto(raw, r); err != nil {
			return nil, err
		}
		if r.File == nil {
			return nil, fmt.Errorf("%w: showOutput without file", ErrMalformedMessage)
		}
		return r, nil
	case MsgError:
		r := &ErrorResponse{}
		if _, err := decodeInto(raw, r); err != nil {
			return nil, err
		}
		if r.Error == "" {
			r.Error = "unknown error"
		}
		return r, nil
	case MsgEcho:
		if raw["fileId"] == nil || raw["query"] == nil {
			return nil, fmt.Errorf("%w: echo without fileId or query", ErrMalformedMessage)
		}
		return decodeInto(raw, &EchoResponse{})
	case MsgFileChanged:
		if raw["type"] == nil || raw["fileId"] == nil {
			return nil, fmt.Errorf("%w: filechanged without type or fileId", ErrMalformedMessage)
		}
		return decodeInto(raw, &FileChangedResponse{})
	case MsgVariables:
		return decodeVariables(raw)
	case MsgSaveResponse:
		return decodeInto(raw, &SaveResponse{})
	case MsgFileOpResponse:
		r := &FileOpResponse{}
		if _, err := decodeInto(raw, r); err != nil {
			return nil, err
		}
		if r.TransID == "" {
			return nil, fmt.Errorf("%w: fileOpResponse without transId", ErrMalformedMessage)
		}
		switch r.Operation {
		case FileOpRemove, FileOpRename, FileOpDuplicate:
		default:
			return nil, fmt.Errorf("%w: unknown file operation %q", ErrMalformedMessage, r.Operation)
		}
		return r, nil
	case MsgInfo:
		r := &InfoResponse{}
		if _, err := decodeInto(raw, r); err != nil {
			return nil, err
		}
		if r.Workspace == nil {
			return nil, fmt.Errorf("%w: info without workspace", ErrMalformedMessage)
		}
		return r, nil
	default:
		return &UnknownResponse{Msg: msg, Fields: raw}, nil
	}
}

func decodeVariables(raw map[string]interface{}) (Response, error) {
	r := &VariablesResponse{}
	if _, err := decodeInto(raw, r); err != nil {
		return nil, err
	}
	vars, _ := raw["variables"].(map[string]interface{})
	if !r.Delta {
		r.Variables = map[string]Variable{}
		if err := decode(vars, &r.Variables); err != nil {
			return nil, err
		}
		return r, nil
	}
	r.Assigned = map[string]Variable{}
	if err := decode(vars["assigned"], &r.Assigned); err != nil {
		return nil, err
	}
	if err := decode(vars["removed"], &r.Removed); err != nil {
		return nil, err
	}
	return r, nil
}

func decodeInto(raw map[string]interface{}, out Response) (Response, error) {
	if err := decode(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

func decode(in, out interface{}) error {
	if in == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			millisHook,
			dayHook,
			bytesHook,
		),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return nil
}

var (
	millisType = reflect.TypeOf(models.Millis{})
	dayType    = reflect.TypeOf(models.Day{})
	bytesType  = reflect.TypeOf([]byte(nil))
)

// millisHook accepts a millisecond count of any numeric kind.
func millisHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != millisType {
		return data, nil
	}
	v := reflect.ValueOf(data)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return models.MillisFromNumber(float64(v.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return models.MillisFromNumber(float64(v.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return models.MillisFromNumber(v.Float()), nil
	}
	return data, nil
}

func dayHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != dayType || from.Kind() != reflect.String {
		return data, nil
	}
	return models.ParseDay(data.(string))
}

// bytesHook decodes base64 text into []byte; binary frames already carry raw bytes.
func bytesHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != bytesType || from.Kind() != reflect.String {
		return data, nil
	}
	return base64.StdEncoding.DecodeString(data.(string))
}
