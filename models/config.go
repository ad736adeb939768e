package models

import "time"

// Config はサーバ全体の設定。config.json と MIO_ 接頭辞の環境変数から読み込む
type Config struct {
	Mode         string          `mapstructure:"mode"` // gin のモード (debug / release / test)
	Port         int             `mapstructure:"port"`
	AllowOrigins []string        `mapstructure:"allow_origins"`
	Database     DatabaseConfig  `mapstructure:"database"`
	Redis        RedisConfig     `mapstructure:"redis"`
	Auth         AuthConfig      `mapstructure:"auth"`
	WebSocket    WebSocketConfig `mapstructure:"websocket"`
	Quiz         QuizConfig      `mapstructure:"quiz"`
	Sweeper      SweeperConfig   `mapstructure:"sweeper"`
	Rest         RestConfig      `mapstructure:"rest"`
	Log          LogConfig       `mapstructure:"log"`
}

// DatabaseConfig はデータベース接続の設定情報を保持します。
// Driver が "memory" の場合はプロセス内ストアを使う
type DatabaseConfig struct {
	Driver        string        `mapstructure:"driver"`
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	Name          string        `mapstructure:"name"`
	SSLMode       string        `mapstructure:"sslmode"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

type RedisConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

type AuthConfig struct {
	Secret string `mapstructure:"secret"`
}

type WebSocketConfig struct {
	ReadLimit         int64         `mapstructure:"read_limit"`
	WriteWait         time.Duration `mapstructure:"write_wait"`
	PongWait          time.Duration `mapstructure:"pong_wait"`
	PingPeriod        time.Duration `mapstructure:"ping_period"`
	SendBuffer        int           `mapstructure:"send_buffer"`
	MessagesPerSecond float64       `mapstructure:"messages_per_second"`
	Burst             int           `mapstructure:"burst"`
}

type QuizConfig struct {
	EventTimeout time.Duration `mapstructure:"event_timeout"`
}

type SweeperConfig struct {
	Schedule string        `mapstructure:"schedule"`
	MaxIdle  time.Duration `mapstructure:"max_idle"`
}

type RestConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}
