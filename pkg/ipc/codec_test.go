package ipc

import (
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/discord-router/pkg/router"
)

func TestCodecsPreserveFrames(t *testing.T) {
	ev, err := NewEventFrame("l1", router.EventRoleUpdate, router.RoleUpdatePayload{
		Old: &router.Role{ID: "r1", Name: "mods"},
		New: &router.Role{ID: "r1", Name: "moderators"},
	})
	require.NoError(t, err)

	frames := []*Frame{
		ev,
		NewErrorFrame("req-1", ErrCodeMethodNotFound, "unknown method: x"),
		newControlFrame(FramePong, "ping-1"),
	}

	for _, codec := range []Codec{JSONCodec{}, MsgpackCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			for _, f := range frames {
				data, err := codec.Encode(f)
				require.NoError(t, err)

				got, err := codec.Decode(data)
				require.NoError(t, err)
				assert.Equal(t, f.ID, got.ID)
				assert.Equal(t, f.Type, got.Type)
				assert.Equal(t, f.Method, got.Method)
				assert.Equal(t, f.CorrelID, got.CorrelID)
				assert.Equal(t, f.Channel, got.Channel)
				assert.Equal(t, f.Error, got.Error)
				assert.True(t, f.Timestamp.Equal(got.Timestamp))
				if len(f.Data) > 0 {
					assert.JSONEq(t, string(f.Data), string(got.Data))
				}
			}
		})
	}
}

func TestGetCodec(t *testing.T) {
	assert.Equal(t, CodecNameMsgpack, GetCodec("msgpack").Name())
	assert.Equal(t, websocket.BinaryMessage, GetCodec("msgpack").MessageType())
	assert.Equal(t, CodecNameJSON, GetCodec("").Name())
	assert.Equal(t, CodecNameJSON, GetCodec("protobuf").Name())
	assert.Equal(t, websocket.TextMessage, GetCodec("json").MessageType())
}

func TestMalformedCodecInput(t *testing.T) {
	_, err := JSONCodec{}.Decode([]byte("{not json"))
	assert.Error(t, err)
	_, err = MsgpackCodec{}.Decode([]byte{0xc1})
	assert.Error(t, err)
}
