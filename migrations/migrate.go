package migrations

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type migration struct {
	name string
	run  func(db *gorm.DB) error
}

// 起動のたびに先頭から全て流すので、各マイグレーションは冪等に書くこと
var migrations = []migration{
	{name: "202610160000_create_quiz_tables", run: createQuizTables},
	{name: "202610160100_online_users_index", run: onlineUsersIndex},
}

// Run はテーブルとインデックスを最新の形にそろえる
func Run(db *gorm.DB, logger *zap.Logger) error {
	for _, m := range migrations {
		if err := m.run(db); err != nil {
			logger.Error("マイグレーションに失敗しました", zap.String("migration", m.name), zap.Error(err))
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		logger.Info("マイグレーション完了", zap.String("migration", m.name))
	}
	return nil
}
