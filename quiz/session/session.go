package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const keyPrefix = "session:"

// redisClient は Store が使う go-redis のコマンドだけを切り出したもの
type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
}

type sessionInfo struct {
	UserID string `json:"userID"`
	RoomID string `json:"roomID"`
}

// Store keeps one-shot resume sessions in Redis. A session id can be redeemed
// exactly once and expires after ttl.
type Store struct {
	rdb    redisClient
	ttl    time.Duration
	logger *zap.Logger
}

func NewStore(rdb redisClient, ttl time.Duration, logger *zap.Logger) *Store {
	return &Store{rdb: rdb, ttl: ttl, logger: logger}
}

// Issue はユーザーと部屋の組に新しいセッション ID を発行する
func (s *Store) Issue(ctx context.Context, userID, roomID string) (string, error) {
	sessionID := uuid.NewString()

	infoJSON, err := json.Marshal(sessionInfo{UserID: userID, RoomID: roomID})
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+sessionID, infoJSON, s.ttl).Err(); err != nil {
		s.logger.Error("Error storing session info in Redis", zap.Error(err))
		return "", err
	}
	return sessionID, nil
}

// Lookup reads sessionID without consuming it. Unknown or expired sessions yield empty ids.
func (s *Store) Lookup(ctx context.Context, sessionID string) (string, string, error) {
	return s.read(sessionID, s.rdb.Get(ctx, keyPrefix+sessionID))
}

// Resolve consumes sessionID. Unknown or expired sessions yield empty ids.
func (s *Store) Resolve(ctx context.Context, sessionID string) (string, string, error) {
	return s.read(sessionID, s.rdb.GetDel(ctx, keyPrefix+sessionID))
}

func (s *Store) read(sessionID string, cmd *redis.StringCmd) (string, string, error) {
	infoJSON, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return "", "", nil
	}
	if err != nil {
		s.logger.Error("Failed to retrieve session info", zap.Error(err))
		return "", "", err
	}

	var info sessionInfo
	if err := json.Unmarshal([]byte(infoJSON), &info); err != nil {
		// 壊れたセッションは無いものとして扱う
		s.logger.Warn("Failed to decode session info", zap.String("sessionID", sessionID), zap.Error(err))
		return "", "", nil
	}
	if info.UserID == "" || info.RoomID == "" {
		return "", "", nil
	}
	return info.UserID, info.RoomID, nil
}
