package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"mioserver/models"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// 全てのキーに既定値を入れておく。viper は既定値のないキーを環境変数から拾えない
func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8000)
	v.SetDefault("allow_origins", []string{"http://localhost:8080"})

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "mio")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "mio")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_retries", 3)
	v.SetDefault("database.retry_interval", 5*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.session_ttl", 24*time.Hour)

	v.SetDefault("auth.secret", "")

	v.SetDefault("websocket.read_limit", 500000)
	v.SetDefault("websocket.write_wait", 10*time.Second)
	v.SetDefault("websocket.pong_wait", 60*time.Second)
	v.SetDefault("websocket.ping_period", 10*time.Second)
	v.SetDefault("websocket.send_buffer", 64)
	v.SetDefault("websocket.messages_per_second", 20.0)
	v.SetDefault("websocket.burst", 40)

	v.SetDefault("quiz.event_timeout", 5*time.Second)

	v.SetDefault("sweeper.schedule", "@every 1h")
	v.SetDefault("sweeper.max_idle", 24*time.Hour)

	v.SetDefault("rest.requests_per_second", 5.0)
	v.SetDefault("rest.burst", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// LoadConfig loads the configuration from filename, then applies MIO_* environment overrides.
// A missing file is not an error; defaults are used instead.
func LoadConfig(filename string) (models.Config, error) {
	var config models.Config

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(filename)
	v.SetConfigType("json")
	v.SetEnvPrefix("MIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// ファイルが無ければ既定値と環境変数だけで起動する
	if _, err := os.Stat(filename); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return config, fmt.Errorf("read config %s: %w", filename, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return config, fmt.Errorf("stat config %s: %w", filename, err)
	}

	if err := v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("decode config: %w", err)
	}
	return config, nil
}

func InitPostgreSQL(config models.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s password=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Name, config.Password, config.SSLMode)

	var err error
	for i := 0; i <= config.MaxRetries; i++ {
		var gormDB *gorm.DB
		gormDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err == nil {
			logger.Info("Connected to PostgreSQL", zap.String("host", config.Host), zap.String("db", config.Name))
			return gormDB, nil
		}
		logger.Error("データベース接続のリトライ", zap.Int("retry", i), zap.Error(err))
		if i < config.MaxRetries {
			time.Sleep(config.RetryInterval)
		}
	}
	return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
}

func InitRedis(config models.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	// Redisへの接続テスト
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logger.Error("Failed to connect to Redis", zap.Error(err))
		_ = rdb.Close()
		return nil, err
	}

	logger.Info("Connected to Redis", zap.String("addr", config.Addr))
	return rdb, nil
}
