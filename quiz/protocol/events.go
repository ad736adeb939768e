package protocol

import "encoding/json"

// イベント名
const (
	EventAuth            = "auth"
	EventAuthResult      = "auth-result"
	EventCreateRoom      = "create-room"
	EventRoomExists      = "room-exists"
	EventIssueUID        = "issue-uid"
	EventUsers           = "users"
	EventQuizInfo        = "quiz-info"
	EventChat            = "chat-msg"
	EventQuizMusic       = "quiz-music"
	EventQuizStopMusic   = "quiz-stop-music"
	EventQuizAnswer      = "quiz-answer"
	EventQuizResult      = "quiz-result"
	EventQuizReset       = "quiz-reset"
	EventChangeScore     = "change-score"
	EventChangeAllotment = "change-allotment"
	EventAck             = "ack"
)

// チャットのタグ
const (
	TagMessage = "message"
	TagJoin    = "join"
	TagLeave   = "leave"
)

const (
	StatusOK = "ok"
	StatusNG = "ng"
)

// Inbound はクライアントから届くフレーム。Ack があれば処理結果を ack で返す
type Inbound struct {
	Type string          `json:"type" validate:"required"`
	Ack  *uint64         `json:"ack,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Outbound はサーバから送るフレーム
type Outbound struct {
	Type  string      `json:"type"`
	Ack   *uint64     `json:"ack,omitempty"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// ErrorInternal is the only error string surfaced to clients.
const ErrorInternal = "internal"
