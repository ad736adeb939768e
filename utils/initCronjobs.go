package utils

import (
	"context"
	"time"

	"mioserver/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper は放置された部屋を片付ける
type Sweeper interface {
	SweepAbandoned(ctx context.Context, before time.Time) (int, error)
}

// CronCleaner schedules the abandoned-room sweep. The caller starts and stops the
// returned scheduler.
func CronCleaner(s Sweeper, config models.SweeperConfig, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New()

	// 誰も接続しておらず MaxIdle 以上更新のない部屋を削除する
	_, err := c.AddFunc(config.Schedule, func() {
		logger.Info("放置された部屋の削除を開始")
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		deleted, err := s.SweepAbandoned(ctx, time.Now().Add(-config.MaxIdle))
		if err != nil {
			logger.Error("放置された部屋の削除に失敗しました", zap.Error(err))
			return
		}
		logger.Info("放置された部屋の削除完了", zap.Int("rooms_deleted", deleted))
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
