package protocol

// 部屋作成・参加

type CreateRoomRequest struct {
	MasterName    string `json:"masterName" validate:"required,printable,max=32"`
	CorrectPoints int    `json:"correctPoints" validate:"gte=-100000,lte=100000"`
	WrongPoints   int    `json:"wrongPoints" validate:"gte=-100000,lte=100000"`
}

type CreateRoomResponse struct {
	UID      string `json:"uid"`
	Password string `json:"password"`
	RoomID   string `json:"roomid"`
}

type RoomExistsRequest struct {
	RoomID string `json:"roomid" validate:"required,max=64"`
}

type RoomExistsResponse struct {
	Exists bool `json:"exists"`
}

type IssueUIDRequest struct {
	RoomID string `json:"roomid" validate:"required,max=64"`
	Name   string `json:"name" validate:"required,printable,max=32"`
}

// IssueUIDResponse は部屋が無い場合、両方 null になる
type IssueUIDResponse struct {
	UID      *string `json:"uid"`
	Password *string `json:"password"`
}

// 認証

// AuthRequest は uid/password/roomid の組か、再接続用の session のどちらかを持つ
type AuthRequest struct {
	UID      string `json:"uid" validate:"required_without=Session,omitempty,uuid"`
	Password string `json:"password" validate:"required_without=Session,max=2048"`
	RoomID   string `json:"roomid" validate:"required_without=Session,omitempty,uuid"`
	Session  string `json:"session,omitempty" validate:"omitempty,uuid"`
}

type AuthResult struct {
	Status             string `json:"status"`
	ShouldWaitForReset bool   `json:"shouldWaitForReset"`
	Recovered          bool   `json:"recovered"`
	Session            string `json:"session,omitempty"`
}

// 状態同期

type Member struct {
	UID          string `json:"uid"`
	Name         string `json:"name"`
	Online       bool   `json:"online"`
	Master       bool   `json:"master"`
	CorrectCount int    `json:"correctCount"`
	WrongCount   int    `json:"wrongCount"`
	Points       int    `json:"points"`
}

type QuizInfo struct {
	Round         int `json:"round"`
	CorrectPoints int `json:"correctPoints"`
	WrongPoints   int `json:"wrongPoints"`
}

type ChatRequest struct {
	Tag  string `json:"tag" validate:"required,eq=message"`
	Body string `json:"body" validate:"required,printable,max=1000"`
}

type ChatMessage struct {
	MID  string `json:"mid"`
	UID  string `json:"uid"`
	Name string `json:"name"`
	Body string `json:"body,omitempty"`
	Tag  string `json:"tag"`
}

// 出題・解答・判定

// QuizMusic は出題者から届き、そのまま他の参加者へ転送される
type QuizMusic struct {
	Buf       []byte `json:"buf" validate:"required,min=1"`
	Stoppable bool   `json:"stoppable"`
}

type StopMusic struct{}

// AnswerRequest の Answer が null の場合は「スルー」
type AnswerRequest struct {
	Time   float64 `json:"time" validate:"gte=0"`
	Answer *string `json:"answer" validate:"omitempty,max=200"`
}

// QuizAnswer は出題者だけに転送される解答
type QuizAnswer struct {
	UID    string  `json:"uid"`
	Time   float64 `json:"time"`
	Answer *string `json:"answer"`
}

type Judgement struct {
	Answer *string `json:"answer" validate:"omitempty,max=200"`
	Time   float64 `json:"time" validate:"gte=0"`
	Judge  *bool   `json:"judge"`
}

type QuizResult struct {
	Answer  string               `json:"answer" validate:"max=200"`
	Answers map[string]Judgement `json:"answers" validate:"max=1000,dive,keys,required,max=64,endkeys"`
}

type QuizReset struct {
	Message *string `json:"message,omitempty" validate:"omitempty,max=200"`
}

// 得点操作

// ChangeScoreRequest の各値は現在値への加算量
type ChangeScoreRequest struct {
	UID     string `json:"uid" validate:"required,max=64"`
	Correct int    `json:"correct" validate:"gte=-100000,lte=100000"`
	Wrong   int    `json:"wrong" validate:"gte=-100000,lte=100000"`
	Points  int    `json:"points" validate:"gte=-100000,lte=100000"`
}

type ChangeAllotmentRequest struct {
	CorrectPoints int `json:"correctPoints" validate:"gte=-100000,lte=100000"`
	WrongPoints   int `json:"wrongPoints" validate:"gte=-100000,lte=100000"`
}
