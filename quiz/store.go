package quiz

import (
	"context"
	"time"

	"mioserver/models"
)

// Store is the persistent record of rooms and users.
// Lookups of missing records return models.ErrRoomNotFound or models.ErrUserNotFound.
type Store interface {
	CreateRoom(ctx context.Context, room *models.Room, master *models.User) error
	CreateUser(ctx context.Context, user *models.User) error
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	// ListUsers は参加順 (CreatedAt 昇順) で返す
	ListUsers(ctx context.Context, roomID string) ([]models.User, error)

	// UpdateStage sets the stage to `to` only if the current stage is one of `from`.
	// It reports whether the row was updated.
	UpdateStage(ctx context.Context, roomID string, to models.Stage, from ...models.Stage) (bool, error)
	// StartRound は stage が from のときだけ to へ進め、同時に round を1つ増やす。
	// ok が false なら何も書き込まない
	StartRound(ctx context.Context, roomID string, to, from models.Stage) (round int, ok bool, err error)
	// JudgeRound moves the room to WAITING_RESET if its stage is one of `from` and adds
	// every delta, keyed by user id, as a single unit. Nothing is written when the stage
	// does not match or a user is not in the room (models.ErrUserNotFound).
	JudgeRound(ctx context.Context, roomID string, deltas map[string]models.ScoreDelta, from ...models.Stage) (bool, error)
	UpdateAllotment(ctx context.Context, roomID string, allotment models.Allotment) error
	AddScore(ctx context.Context, userID string, delta models.ScoreDelta) error

	SetSocket(ctx context.Context, userID, socketID string) error
	// ClearSocket はソケットが socketID のままの場合だけ外す
	ClearSocket(ctx context.Context, userID, socketID string) (bool, error)
	AnyoneOnline(ctx context.Context, roomID string) (bool, error)

	// DeleteRoom removes the room and all of its users. Deleting a missing room is not an error.
	DeleteRoom(ctx context.Context, roomID string) error
	// ResetAll は起動時に全部屋を WAITING_MUSIC に戻し、全ソケットを外す
	ResetAll(ctx context.Context) error
	// AbandonedRooms lists rooms untouched since before that have nobody online.
	AbandonedRooms(ctx context.Context, before time.Time) ([]string, error)
}
