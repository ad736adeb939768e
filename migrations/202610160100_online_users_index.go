package migrations

import (
	"gorm.io/gorm"
)

// 在室確認 (AnyoneOnline) と放置部屋の検索用
func onlineUsersIndex(db *gorm.DB) error {
	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_users_room_online
		ON users (room_id) WHERE socket_id IS NOT NULL`).Error
}
