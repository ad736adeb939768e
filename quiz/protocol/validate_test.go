package protocol

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInbound(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"type":"chat-msg","ack":3,"data":{"tag":"message","body":"hi"}}`))
	require.NoError(t, err)
	assert.Equal(t, EventChat, msg.Type)
	require.NotNil(t, msg.Ack)
	assert.Equal(t, uint64(3), *msg.Ack)

	_, err = DecodeInbound([]byte(`{"ack":3}`))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = DecodeInbound([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestDecodeChat(t *testing.T) {
	tests := []struct {
		name string
		data string
		ok   bool
	}{
		{"message", `{"tag":"message","body":"こんにちは"}`, true},
		{"whitespace only", `{"tag":"message","body":" \t\n"}`, false},
		{"ideographic space only", `{"tag":"message","body":"　"}`, false},
		{"join tag from client", `{"tag":"join","body":"x"}`, false},
		{"missing body", `{"tag":"message"}`, false},
		{"wrong type", `{"tag":"message","body":1}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req ChatRequest
			err := Decode(json.RawMessage(tt.data), &req)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalid)
			}
		})
	}
}

func TestDecodeAuth(t *testing.T) {
	uid := "6f1c1f5e-3b8a-4f1e-9d55-0a2b7c3d4e5f"
	room := "0c9d2a4b-7e6f-4a3b-8c1d-2e3f4a5b6c7d"

	var req AuthRequest
	assert.NoError(t, Decode(json.RawMessage(`{"uid":"`+uid+`","password":"p","roomid":"`+room+`"}`), &req))

	req = AuthRequest{}
	assert.NoError(t, Decode(json.RawMessage(`{"session":"`+uid+`"}`), &req))

	req = AuthRequest{}
	assert.ErrorIs(t, Decode(json.RawMessage(`{"uid":"`+uid+`","roomid":"`+room+`"}`), &req), ErrInvalid)

	req = AuthRequest{}
	assert.ErrorIs(t, Decode(json.RawMessage(`{"uid":"nope","password":"p","roomid":"`+room+`"}`), &req), ErrInvalid)

	req = AuthRequest{}
	assert.ErrorIs(t, Decode(nil, &req), ErrInvalid)
}

func TestDecodeAnswer(t *testing.T) {
	var req AnswerRequest
	require.NoError(t, Decode(json.RawMessage(`{"time":3.2,"answer":"Tokyo"}`), &req))
	require.NotNil(t, req.Answer)
	assert.Equal(t, "Tokyo", *req.Answer)
	assert.InDelta(t, 3.2, req.Time, 1e-9)

	req = AnswerRequest{}
	require.NoError(t, Decode(json.RawMessage(`{"time":1,"answer":null}`), &req))
	assert.Nil(t, req.Answer)

	req = AnswerRequest{}
	assert.ErrorIs(t, Decode(json.RawMessage(`{"time":-1,"answer":"x"}`), &req), ErrInvalid)
}

func TestDecodeQuizMusic(t *testing.T) {
	var req QuizMusic
	require.NoError(t, Decode(json.RawMessage(`{"buf":"AQID","stoppable":true}`), &req))
	assert.Equal(t, []byte{1, 2, 3}, req.Buf)
	assert.True(t, req.Stoppable)

	req = QuizMusic{}
	assert.ErrorIs(t, Decode(json.RawMessage(`{"buf":""}`), &req), ErrInvalid)
}

func TestDecodeQuizResult(t *testing.T) {
	var req QuizResult
	data := `{"answer":"Tokyo","answers":{"u1":{"answer":"Tokyo","time":3.2,"judge":true},"u2":{"answer":null,"time":5}}}`
	require.NoError(t, Decode(json.RawMessage(data), &req))
	require.Len(t, req.Answers, 2)
	require.NotNil(t, req.Answers["u1"].Judge)
	assert.True(t, *req.Answers["u1"].Judge)
	assert.Nil(t, req.Answers["u2"].Judge)

	req = QuizResult{}
	bad := `{"answer":"Tokyo","answers":{"u1":{"time":-3}}}`
	assert.ErrorIs(t, Decode(json.RawMessage(bad), &req), ErrInvalid)
}

func TestDecodeEmptyPayload(t *testing.T) {
	var stop StopMusic
	assert.NoError(t, Decode(nil, &stop))

	var reset QuizReset
	assert.NoError(t, Decode(json.RawMessage(`null`), &reset))
	assert.Nil(t, reset.Message)
}

func TestValidateCreateRoom(t *testing.T) {
	assert.NoError(t, Validate(&CreateRoomRequest{MasterName: "master", CorrectPoints: 10, WrongPoints: -5}))
	assert.ErrorIs(t, Validate(&CreateRoomRequest{MasterName: "  ", CorrectPoints: 10}), ErrInvalid)
	assert.ErrorIs(t, Validate(&CreateRoomRequest{MasterName: "m", CorrectPoints: 1000000}), ErrInvalid)
}

func TestPrintableValidation(t *testing.T) {
	var v *validator.Validate
	require.NotPanics(t, func() { v = newValidator() })

	assert.NoError(t, v.Var("Mio", "printable"))
	for _, s := range []string{"", "   ", "　\t"} {
		assert.Error(t, v.Var(s, "printable"), "%q", s)
	}
}
