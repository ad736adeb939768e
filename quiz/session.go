package quiz

import (
	"context"
	"errors"

	"mioserver/auth"
	"mioserver/models"
	"mioserver/quiz/protocol"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecoveryMessage は出題者の再接続で進行中の問題を打ち切ったときに参加者へ送る
const RecoveryMessage = "出題者との通信が途絶えたため、行われていた問題はリセットされました。"

// CreateRoom creates a room in WAITING_MUSIC at round 1 together with its master.
func (c *Coordinator) CreateRoom(ctx context.Context, req protocol.CreateRoomRequest) (protocol.CreateRoomResponse, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	roomID, userID := uuid.NewString(), uuid.NewString()
	credential, err := c.creds.Issue(userID, roomID)
	if err != nil {
		return protocol.CreateRoomResponse{}, err
	}

	room := &models.Room{
		ID:        roomID,
		MasterID:  userID,
		Stage:     models.StageWaitingMusic,
		Round:     1,
		Allotment: models.Allotment{CorrectPoints: req.CorrectPoints, WrongPoints: req.WrongPoints},
	}
	master := &models.User{ID: userID, RoomID: roomID, Name: req.MasterName, Credential: credential}
	if err := c.store.CreateRoom(ctx, room, master); err != nil {
		return protocol.CreateRoomResponse{}, err
	}

	c.logger.Info("Room created", zap.String("roomID", roomID), zap.String("masterID", userID))
	return protocol.CreateRoomResponse{UID: userID, Password: credential, RoomID: roomID}, nil
}

func (c *Coordinator) RoomExists(ctx context.Context, roomID string) (protocol.RoomExistsResponse, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	_, err := c.store.GetRoom(ctx, roomID)
	if errors.Is(err, models.ErrRoomNotFound) {
		return protocol.RoomExistsResponse{Exists: false}, nil
	}
	if err != nil {
		return protocol.RoomExistsResponse{}, err
	}
	return protocol.RoomExistsResponse{Exists: true}, nil
}

// IssueUID adds a participant to the room. Both fields are nil when the room does not exist.
func (c *Coordinator) IssueUID(ctx context.Context, req protocol.IssueUIDRequest) (protocol.IssueUIDResponse, error) {
	var resp protocol.IssueUIDResponse
	err := c.inRoom(ctx, req.RoomID, func(ctx context.Context) error {
		userID := uuid.NewString()
		credential, err := c.creds.Issue(userID, req.RoomID)
		if err != nil {
			return err
		}
		user := &models.User{ID: userID, RoomID: req.RoomID, Name: req.Name, Credential: credential}
		err = c.store.CreateUser(ctx, user)
		if errors.Is(err, models.ErrRoomNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		resp = protocol.IssueUIDResponse{UID: &userID, Password: &credential}
		c.logger.Info("User issued", zap.String("roomID", req.RoomID), zap.String("userID", userID))
		return nil
	})
	return resp, err
}

// Authenticate binds sock to the user named by req. A failed attempt answers
// auth-result "ng" and changes nothing.
func (c *Coordinator) Authenticate(ctx context.Context, sock Socket, req protocol.AuthRequest) (protocol.AuthResult, error) {
	userID, roomID, secret := req.UID, req.RoomID, req.Password
	bySession := req.Session != ""

	if bySession {
		if c.sessions == nil {
			return c.authFailed(sock, "", "sessions disabled"), nil
		}
		var err error
		// ここでは読むだけ。使い切るのは部屋のキュー上で束縛する直前
		userID, roomID, err = c.sessions.Lookup(ctx, req.Session)
		if err != nil {
			return protocol.AuthResult{}, err
		}
		if userID == "" {
			return c.authFailed(sock, "", "unknown session"), nil
		}
		secret = req.Session
	} else if err := c.creds.Verify(req.Password, userID, roomID); err != nil {
		return c.authFailed(sock, userID, err.Error()), nil
	}

	var result protocol.AuthResult
	err := c.inRoom(ctx, roomID, func(ctx context.Context) error {
		var err error
		result, err = c.authenticate(ctx, sock, userID, roomID, secret, bySession)
		return err
	})
	return result, err
}

func (c *Coordinator) authFailed(sock Socket, userID, reason string) protocol.AuthResult {
	c.logger.Info("Authentication failed",
		zap.String("socketID", sock.ID()), zap.String("userID", userID), zap.String("reason", reason))
	ng := protocol.AuthResult{Status: protocol.StatusNG}
	c.send(sock, protocol.EventAuthResult, ng)
	return ng
}

// 部屋のキュー上で実行される認証本体。secret は bySession ならセッション ID、それ以外は認証情報
func (c *Coordinator) authenticate(ctx context.Context, sock Socket, userID, roomID, secret string, bySession bool) (protocol.AuthResult, error) {
	if _, ok := c.hub.socket(sock.ID()); !ok {
		return c.authFailed(sock, userID, "socket closed"), nil
	}
	if b, ok := c.hub.binding(sock.ID()); ok && b.UserID != userID {
		return c.authFailed(sock, userID, "socket bound to another user"), nil
	}

	user, err := c.store.GetUser(ctx, userID)
	if errors.Is(err, models.ErrUserNotFound) {
		return c.authFailed(sock, userID, "unknown user"), nil
	}
	if err != nil {
		return protocol.AuthResult{}, err
	}
	if user.RoomID != roomID {
		return c.authFailed(sock, userID, "room mismatch"), nil
	}
	if !bySession && !auth.Equal(user.Credential, secret) {
		return c.authFailed(sock, userID, "credential mismatch"), nil
	}
	room, err := c.store.GetRoom(ctx, roomID)
	if errors.Is(err, models.ErrRoomNotFound) {
		return c.authFailed(sock, userID, "unknown room"), nil
	}
	if err != nil {
		return protocol.AuthResult{}, err
	}

	// 失敗し得る確認が全て済んでからセッションを使い切る
	if bySession {
		sessionUser, sessionRoom, err := c.sessions.Resolve(ctx, secret)
		if err != nil {
			return protocol.AuthResult{}, err
		}
		if sessionUser != userID || sessionRoom != roomID {
			return c.authFailed(sock, userID, "session already used"), nil
		}
	}

	// 同じユーザーの古いソケットは置き換える
	if user.SocketID != nil && *user.SocketID != sock.ID() {
		c.supersede(*user.SocketID)
	}
	if err := c.store.SetSocket(ctx, userID, sock.ID()); err != nil {
		return protocol.AuthResult{}, err
	}
	c.hub.bind(sock.ID(), binding{UserID: userID, RoomID: roomID})

	master := room.IsMaster(userID)
	recovered := false
	if master && room.Stage != models.StageWaitingMusic {
		if err := c.recoverRoom(ctx, room); err != nil {
			return protocol.AuthResult{}, err
		}
		recovered = true
	}

	result := protocol.AuthResult{
		Status:             protocol.StatusOK,
		ShouldWaitForReset: !master && room.Stage != models.StageWaitingMusic,
		Recovered:          recovered,
	}
	if c.sessions != nil {
		token, err := c.sessions.Issue(ctx, userID, roomID)
		if err != nil {
			c.logger.Warn("Failed to issue session", zap.String("userID", userID), zap.Error(err))
		} else {
			result.Session = token
		}
	}
	c.send(sock, protocol.EventAuthResult, result)

	users, err := c.store.ListUsers(ctx, roomID)
	if err != nil {
		return protocol.AuthResult{}, err
	}
	if recovered {
		message := RecoveryMessage
		c.broadcastQuizInfo(room, users)
		c.emitRoom(users, userID, protocol.EventQuizReset, protocol.QuizReset{Message: &message})
	} else {
		c.send(sock, protocol.EventQuizInfo, quizInfo(room))
	}
	c.broadcastUsers(room, users)
	c.emitRoom(users, "", protocol.EventChat, protocol.ChatMessage{
		MID:  uuid.NewString(),
		UID:  userID,
		Name: user.Name,
		Tag:  protocol.TagJoin,
	})

	c.logger.Info("Authenticated",
		zap.String("roomID", roomID), zap.String("userID", userID),
		zap.String("socketID", sock.ID()), zap.Bool("recovered", recovered))
	return result, nil
}

// supersede は古いソケットの対応を外して閉じる。閉じた側の切断処理は何もしない
func (c *Coordinator) supersede(socketID string) {
	old, ok := c.hub.socket(socketID)
	c.hub.remove(socketID)
	if ok {
		c.logger.Info("Superseded socket", zap.String("socketID", socketID))
		old.Close()
	}
}

// recoverRoom は出題者の再接続時に部屋を WAITING_MUSIC へ戻す。round はそのまま
func (c *Coordinator) recoverRoom(ctx context.Context, room *models.Room) error {
	ok, err := c.store.UpdateStage(ctx, room.ID, models.StageWaitingMusic,
		models.StageWaitingAnswer, models.StageWaitingStop, models.StageWaitingReset)
	if err != nil {
		return err
	}
	if ok {
		room.Stage = models.StageWaitingMusic
	}
	c.answers.reset(room.ID)
	c.logger.Info("Room recovered after master reconnect",
		zap.String("roomID", room.ID), zap.Int("round", room.Round))
	return nil
}
