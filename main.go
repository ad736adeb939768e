package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mioserver/auth"            //参加者の認証情報
	"mioserver/database"        //設定、PostgreSQLとRedisの初期化、ストア実装
	"mioserver/middlewares"     //レート制限
	"mioserver/migrations"      //テーブル作成
	"mioserver/models"          //モデル定義
	"mioserver/quiz"            //部屋の状態管理とイベント処理
	"mioserver/quiz/connection" //WebSocket接続
	"mioserver/quiz/session"    //再接続用セッション
	"mioserver/screens"         //部屋の作成や参加に関連するHTTPリクエストの処理
	"mioserver/utils"           //ロガーの初期化とCronジョブ(放置された部屋の削除)

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	configFile := os.Getenv("MIO_CONFIG")
	if configFile == "" {
		configFile = "config.json"
	}
	config, err := database.LoadConfig(configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "設定ファイルの読み込みに失敗しました:", err)
		os.Exit(1)
	}

	logger, err := utils.InitLogger(config.Log) // ロガーの初期化
	if err != nil {
		panic(err) // 失敗した場合はプログラム停止
	}
	defer logger.Sync() // ロガーのクリーンアップ

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, config models.Config, logger *zap.Logger) error {
	store, err := newStore(config.Database, logger)
	if err != nil {
		return err
	}

	// 前回のプロセスのソケットは全て無効なので、全員オフライン・全部屋 WAITING_MUSIC に戻す
	if err := store.ResetAll(ctx); err != nil {
		return fmt.Errorf("reset rooms: %w", err)
	}

	issuer, err := auth.NewIssuer(config.Auth.Secret)
	if err != nil {
		return err
	}
	if config.Auth.Secret == "" {
		logger.Warn("auth.secret is empty; credentials will not survive a restart")
	}

	opts := []quiz.Option{quiz.WithEventTimeout(config.Quiz.EventTimeout)}
	if config.Redis.Enabled {
		rdb, err := database.InitRedis(config.Redis, logger)
		if err != nil {
			return err
		}
		defer rdb.Close()
		opts = append(opts, quiz.WithSessions(session.NewStore(rdb, config.Redis.SessionTTL, logger)))
	}
	coord := quiz.New(store, issuer, logger, opts...)

	// クーロンスケジューラのセットアップと呼び出し
	cleaner, err := utils.CronCleaner(coord, config.Sweeper, logger)
	if err != nil {
		return fmt.Errorf("schedule sweeper: %w", err)
	}
	cleaner.Start()
	defer cleaner.Stop()

	gin.SetMode(config.Mode)
	router := newRouter(ctx, config, coord, logger)

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(config.Port),
		Handler: router,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server started", zap.Int("port", config.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newStore(config models.DatabaseConfig, logger *zap.Logger) (quiz.Store, error) {
	if config.Driver == "memory" {
		logger.Info("Using in-memory store")
		return database.NewMemoryStore(), nil
	}
	db, err := database.InitPostgreSQL(config, logger)
	if err != nil {
		return nil, err
	}
	if err := migrations.Run(db, logger); err != nil {
		return nil, err
	}
	return database.NewPostgresStore(db), nil
}

func newRouter(ctx context.Context, config models.Config, coord *quiz.Coordinator, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	//リクエストロガーを起動
	router.Use(gin.Recovery(), utils.RequestLogger(logger))

	//CORS（Cross-Origin Resource Sharing）ポリシーを設定
	router.Use(cors.New(cors.Config{
		AllowOrigins:     config.AllowOrigins,
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	//各HTTPリクエストのルーティング
	rooms := router.Group("/rooms", middlewares.RateLimit(config.Rest.RequestsPerSecond, config.Rest.Burst, logger))
	rooms.POST("", func(c *gin.Context) {
		screens.RoomCreate(c, coord, logger)
	})
	rooms.GET("/:roomID", func(c *gin.Context) {
		screens.RoomExists(c, coord, logger)
	})
	rooms.POST("/:roomID/users", func(c *gin.Context) {
		screens.IssueUID(c, coord, logger)
	})

	upgrader := connection.NewUpgrader(config.AllowOrigins)
	router.GET("/ws", func(c *gin.Context) {
		connection.HandleConnections(ctx, c.Writer, c.Request, coord, upgrader, config.WebSocket, logger)
	})
	return router
}
