package database

import (
	"context"
	"errors"
	"sort"
	"time"

	"mioserver/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresStore は gorm 経由で部屋と参加者を永続化する
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateRoom(ctx context.Context, room *models.Room, master *models.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Users").Create(room).Error; err != nil {
			return err
		}
		master.RoomID = room.ID
		return tx.Create(master).Error
	})
}

// uuid 型の列に不正な文字列を渡すとエラーになるので、先に弾いて未存在扱いにする
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	if !validID(user.RoomID) {
		return models.ErrRoomNotFound
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 部屋の削除と競合しないよう行ロックを取る
		var room models.Room
		err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
			Select("id").Where("id = ?", user.RoomID).Take(&room).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		return tx.Create(user).Error
	})
}

func (s *PostgresStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	if !validID(roomID) {
		return nil, models.ErrRoomNotFound
	}
	var room models.Room
	err := s.db.WithContext(ctx).Where("id = ?", roomID).Take(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	if !validID(userID) {
		return nil, models.ErrUserNotFound
	}
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context, roomID string) ([]models.User, error) {
	users := []models.User{}
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC").Order("id ASC").
		Find(&users).Error
	return users, err
}

func (s *PostgresStore) UpdateStage(ctx context.Context, roomID string, to models.Stage, from ...models.Stage) (bool, error) {
	if len(from) == 0 || !validID(roomID) {
		return false, nil
	}
	result := s.db.WithContext(ctx).Model(&models.Room{}).
		Where("id = ? AND stage IN ?", roomID, from).
		Update("stage", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *PostgresStore) StartRound(ctx context.Context, roomID string, to, from models.Stage) (int, bool, error) {
	if !validID(roomID) {
		return 0, false, nil
	}
	var round int
	started := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Room{}).Where("id = ? AND stage = ?", roomID, from).
			Updates(map[string]interface{}{
				"stage": to,
				"round": gorm.Expr("round + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		var room models.Room
		if err := tx.Select("round").Where("id = ?", roomID).Take(&room).Error; err != nil {
			return err
		}
		round, started = room.Round, true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return round, started, nil
}

// JudgeRound は段階の更新と全員の加算を1つのトランザクションで行う
func (s *PostgresStore) JudgeRound(ctx context.Context, roomID string, deltas map[string]models.ScoreDelta, from ...models.Stage) (bool, error) {
	if len(from) == 0 || !validID(roomID) {
		return false, nil
	}
	// ロック順を揃えるため ID 順に更新する
	ids := make([]string, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	judged := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Room{}).
			Where("id = ? AND stage IN ?", roomID, from).
			Update("stage", models.StageWaitingReset)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		for _, userID := range ids {
			if !validID(userID) {
				return models.ErrUserNotFound
			}
			result := tx.Model(&models.User{}).
				Where("id = ? AND room_id = ?", userID, roomID).
				Updates(scoreUpdates(deltas[userID]))
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return models.ErrUserNotFound
			}
		}
		judged = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return judged, nil
}

func (s *PostgresStore) UpdateAllotment(ctx context.Context, roomID string, allotment models.Allotment) error {
	result := s.db.WithContext(ctx).Model(&models.Room{}).Where("id = ?", roomID).
		Updates(map[string]interface{}{
			"correct_points": allotment.CorrectPoints,
			"wrong_points":   allotment.WrongPoints,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrRoomNotFound
	}
	return nil
}

// scoreUpdates は読み込まずに加算するので同時更新でも失われない
func scoreUpdates(delta models.ScoreDelta) map[string]interface{} {
	return map[string]interface{}{
		"correct_count": gorm.Expr("correct_count + ?", delta.Correct),
		"wrong_count":   gorm.Expr("wrong_count + ?", delta.Wrong),
		"score":         gorm.Expr("score + ?", delta.Score),
		"manual_score":  gorm.Expr("manual_score + ?", delta.Manual),
	}
}

func (s *PostgresStore) AddScore(ctx context.Context, userID string, delta models.ScoreDelta) error {
	if !validID(userID) {
		return models.ErrUserNotFound
	}
	result := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Updates(scoreUpdates(delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) SetSocket(ctx context.Context, userID, socketID string) error {
	result := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Update("socket_id", socketID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) ClearSocket(ctx context.Context, userID, socketID string) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND socket_id = ?", userID, socketID).
		Update("socket_id", nil)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *PostgresStore) AnyoneOnline(ctx context.Context, roomID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("room_id = ? AND socket_id IS NOT NULL", roomID).
		Count(&count).Error
	return count > 0, err
}

func (s *PostgresStore) DeleteRoom(ctx context.Context, roomID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", roomID).Delete(&models.User{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", roomID).Delete(&models.Room{}).Error
	})
}

func (s *PostgresStore) ResetAll(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Room{}).Where("stage <> ?", models.StageWaitingMusic).
			Update("stage", models.StageWaitingMusic).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("socket_id IS NOT NULL").
			Update("socket_id", nil).Error
	})
}

func (s *PostgresStore) AbandonedRooms(ctx context.Context, before time.Time) ([]string, error) {
	ids := []string{}
	err := s.db.WithContext(ctx).Model(&models.Room{}).
		Where("updated_at < ?", before).
		Where("NOT EXISTS (SELECT 1 FROM users WHERE users.room_id = rooms.id AND users.socket_id IS NOT NULL)").
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}
