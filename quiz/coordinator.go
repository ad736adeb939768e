package quiz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mioserver/models"
	"mioserver/quiz/protocol"

	"go.uber.org/zap"
)

// ErrRejected は権限やステージの不一致で破棄されたイベント。クライアントには何も返さない
var ErrRejected = errors.New("event rejected")

func rejectf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrRejected, fmt.Sprintf(format, args...))
}

// CredentialIssuer issues and verifies the bearer credential handed to each user.
type CredentialIssuer interface {
	Issue(userID, roomID string) (string, error)
	Verify(token, userID, roomID string) error
}

// SessionCache stores short-lived resume sessions. Lookup reads a session, Resolve
// consumes it. Both return empty ids when it is unknown or expired.
type SessionCache interface {
	Issue(ctx context.Context, userID, roomID string) (string, error)
	Lookup(ctx context.Context, sessionID string) (userID, roomID string, err error)
	Resolve(ctx context.Context, sessionID string) (userID, roomID string, err error)
}

// Coordinator owns every room's state machine. All mutations of one room run on
// that room's serialized queue.
type Coordinator struct {
	store        Store
	creds        CredentialIssuer
	sessions     SessionCache
	logger       *zap.Logger
	queues       *Serializer
	hub          *hub
	answers      *pendingAnswers
	eventTimeout time.Duration
}

type Option func(*Coordinator)

// WithSessions は再接続用セッションを有効にする
func WithSessions(s SessionCache) Option {
	return func(c *Coordinator) { c.sessions = s }
}

func WithEventTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.eventTimeout = d
		}
	}
}

func New(store Store, creds CredentialIssuer, logger *zap.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:        store,
		creds:        creds,
		logger:       logger,
		queues:       NewSerializer(logger),
		hub:          newHub(),
		answers:      newPendingAnswers(),
		eventTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect registers a freshly opened socket and challenges it to authenticate.
func (c *Coordinator) Connect(sock Socket) {
	c.hub.add(sock)
	c.send(sock, protocol.EventAuth, nil)
}

// Handle decodes one frame from sock, applies it and acknowledges it when asked to.
// Rejected and malformed events are logged and dropped without an ack.
func (c *Coordinator) Handle(ctx context.Context, sock Socket, raw []byte) {
	msg, err := protocol.DecodeInbound(raw)
	if err != nil {
		c.logger.Info("Dropped malformed frame", zap.String("socketID", sock.ID()), zap.Error(err))
		return
	}

	result, err := c.dispatch(ctx, sock, msg)
	switch {
	case err == nil:
		c.ack(sock, msg.Ack, result, "")
	case errors.Is(err, ErrRejected), errors.Is(err, protocol.ErrInvalid):
		c.logger.Info("Dropped event",
			zap.String("type", msg.Type), zap.String("socketID", sock.ID()), zap.Error(err))
	default:
		c.logger.Error("Failed to handle event",
			zap.String("type", msg.Type), zap.String("socketID", sock.ID()), zap.Error(err))
		c.ack(sock, msg.Ack, nil, protocol.ErrorInternal)
	}
}

// msg.Type によるイベントの振り分け
func (c *Coordinator) dispatch(ctx context.Context, sock Socket, msg protocol.Inbound) (interface{}, error) {
	switch msg.Type {
	case protocol.EventCreateRoom:
		var req protocol.CreateRoomRequest
		if err := protocol.Decode(msg.Data, &req); err != nil {
			return nil, err
		}
		return c.CreateRoom(ctx, req)

	case protocol.EventRoomExists:
		var req protocol.RoomExistsRequest
		if err := protocol.Decode(msg.Data, &req); err != nil {
			return nil, err
		}
		return c.RoomExists(ctx, req.RoomID)

	case protocol.EventIssueUID:
		var req protocol.IssueUIDRequest
		if err := protocol.Decode(msg.Data, &req); err != nil {
			return nil, err
		}
		return c.IssueUID(ctx, req)

	case protocol.EventAuth:
		var req protocol.AuthRequest
		if err := protocol.Decode(msg.Data, &req); err != nil {
			return nil, err
		}
		return c.Authenticate(ctx, sock, req)

	case protocol.EventChat:
		var req protocol.ChatRequest
		if err := protocol.Decode(msg.Data, &req); err != nil {
			return nil, err
		}
		return nil, c.Chat(ctx, sock, req)

	case protocol.EventQuizMusic:
		var req protocol.QuizMusic
		if err := protocol.Decode(msg.Data, &req); err != nil {
			return nil, err
		}
		return nil, c.PoseQuestion(ctx, sock, req)

	case protocol.EventQuizStopMusic:
		var req protocol.StopMusic
		if err := protocol.Decode(msg.Data, &req); err != nil {
			return nil, err
		}
		return nil, c.StopPlayback(ctx, sock)

	case protocol.EventQuizAnswer:
		var req protocol.AnswerRequest
		if err := protocol.Decode(msg.Data, &req); err != nil {
			return nil, err
		}
		return nil, c.SubmitAnswer(ctx, sock, req)

	case protocol.EventQuizResult:
		var req protocol.QuizResult
		if err := protocol.Decode(msg.Data, &req); err != nil {
			return nil, err
		}
		return nil, c.SubmitResult(ctx, sock, req)

	case protocol.EventQuizReset:
		var req protocol.QuizReset
		if err := protocol.Decode(msg.Data, &req); err != nil {
			return nil, err
		}
		return nil, c.ResetGame(ctx, sock, req)

	case protocol.EventChangeScore:
		var req protocol.ChangeScoreRequest
		if err := protocol.Decode(msg.Data, &req); err != nil {
			return nil, err
		}
		return nil, c.ChangeScore(ctx, sock, req)

	case protocol.EventChangeAllotment:
		var req protocol.ChangeAllotmentRequest
		if err := protocol.Decode(msg.Data, &req); err != nil {
			return nil, err
		}
		return nil, c.ChangeAllotment(ctx, sock, req)
	}
	return nil, fmt.Errorf("%w: unknown event %q", protocol.ErrInvalid, msg.Type)
}

// inRoom は部屋のキューで fn を実行する。ストア呼び出しには eventTimeout がかかる
func (c *Coordinator) inRoom(ctx context.Context, roomID string, fn func(ctx context.Context) error) error {
	return c.queues.Do(ctx, roomID, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, c.eventTimeout)
		defer cancel()
		return fn(ctx)
	})
}

// caller は認証済みソケットの送り主と、その時点の部屋
type caller struct {
	socket Socket
	userID string
	room   *models.Room
}

func (cl caller) isMaster() bool {
	return cl.room.IsMaster(cl.userID)
}

// withCaller runs fn on the caller's room queue. Unauthenticated sockets and
// bindings that changed while queued are rejected.
func (c *Coordinator) withCaller(ctx context.Context, sock Socket, fn func(ctx context.Context, cl caller) error) error {
	b, ok := c.hub.binding(sock.ID())
	if !ok {
		return rejectf("socket %s is not authenticated", sock.ID())
	}
	return c.inRoom(ctx, b.RoomID, func(ctx context.Context) error {
		if cur, ok := c.hub.binding(sock.ID()); !ok || cur != b {
			return rejectf("socket %s was unbound", sock.ID())
		}
		room, err := c.store.GetRoom(ctx, b.RoomID)
		if errors.Is(err, models.ErrRoomNotFound) {
			return rejectf("room %s is gone", b.RoomID)
		}
		if err != nil {
			return err
		}
		return fn(ctx, caller{socket: sock, userID: b.UserID, room: room})
	})
}

func (c *Coordinator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.eventTimeout)
}
