package migrations

import (
	"mioserver/models"

	"gorm.io/gorm"
)

// rooms と users を作成。users は rooms 削除時にまとめて消える
func createQuizTables(db *gorm.DB) error {
	return db.AutoMigrate(&models.Room{}, &models.User{})
}
