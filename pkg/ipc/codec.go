package ipc

import (
	"encoding/json"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec defines the serialization contract for frames.
type Codec interface {
	Encode(frame *Frame) ([]byte, error)
	Decode(data []byte) (*Frame, error)

	// Name returns the codec identifier used in format negotiation.
	Name() string
	// MessageType is the websocket message type frames are sent as.
	MessageType() int
}

// Codec names for the ?format= query parameter.
const (
	CodecNameJSON    = "json"
	CodecNameMsgpack = "msgpack"
)

// GetCodec returns a codec by name. Unknown names get JSON.
func GetCodec(name string) Codec {
	if name == CodecNameMsgpack {
		return MsgpackCodec{}
	}
	return JSONCodec{}
}

// JSONCodec encodes frames as JSON text messages.
type JSONCodec struct{}

func (JSONCodec) Encode(frame *Frame) ([]byte, error) { return json.Marshal(frame) }

func (JSONCodec) Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (JSONCodec) Name() string     { return CodecNameJSON }
func (JSONCodec) MessageType() int { return websocket.TextMessage }

// MsgpackCodec encodes frames as MessagePack binary messages.
type MsgpackCodec struct{}

func (MsgpackCodec) Encode(frame *Frame) ([]byte, error) { return msgpack.Marshal(frame) }

func (MsgpackCodec) Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (MsgpackCodec) Name() string     { return CodecNameMsgpack }
func (MsgpackCodec) MessageType() int { return websocket.BinaryMessage }
