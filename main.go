package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"wikirace/database"   //設定の読み込みとPostgreSQL・Redisの初期化
	"wikirace/gamedata"   //スタートページと目的地のデータ
	"wikirace/migrations" //rankingsテーブルのマイグレーション
	"wikirace/models"     //モデル定義
	"wikirace/race"       //部屋とレースの調停
	"wikirace/ranking"    //ランキングの集計
	"wikirace/screens"    //HTTPとWebSocketのハンドラー
	"wikirace/store"      //共有ストア
	"wikirace/utils"      //ロガーの初期化とCronジョブ(放置された部屋の掃除)

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

func main() {
	configPath := flag.String("config", "config.json", "設定ファイル（.json / .yaml）")
	flag.Parse()

	config, err := database.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "設定ファイルの読み込みに失敗しました:", err)
		os.Exit(1)
	}

	logger, err := utils.InitLogger(config.Log.Development) // ロガーの初期化
	if err != nil {
		panic(err) // 失敗した場合はプログラム停止
	}
	defer logger.Sync() // ロガーのクリーンアップ

	// 非同期でPostgreSQLとRedisの初期化（使う設定のものだけ）
	var db *gorm.DB
	var rdb *redis.Client
	done := make(chan bool)

	go func() {
		defer func() { done <- true }()
		if config.Ranking.Backend != "postgres" {
			return
		}
		var err error
		db, err = database.InitPostgreSQL(config.Postgres, logger)
		if err != nil {
			logger.Fatal("PostgreSQLの初期化に失敗しました", zap.Error(err))
		}
		if err := migrations.Migrate(db, logger); err != nil {
			logger.Fatal("マイグレーションに失敗しました", zap.Error(err))
		}
	}()

	go func() {
		defer func() { done <- true }()
		if config.Store.Backend != "redis" {
			return
		}
		var err error
		rdb, err = database.InitRedis(config.Redis, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Redis", zap.Error(err))
		}
	}()

	// 2つの初期化が完了するのを待つ
	<-done
	<-done

	st, err := newStore(config, rdb, logger)
	if err != nil {
		logger.Fatal("共有ストアの初期化に失敗しました", zap.Error(err))
	}
	source, err := newGameDataSource(config.GameData)
	if err != nil {
		logger.Fatal("ゲームデータの設定が不正です", zap.Error(err))
	}
	data := gamedata.NewCache(source, logger)

	var repo ranking.Repository
	if db != nil {
		repo = ranking.NewPostgresRepository(db)
	} else {
		repo = ranking.NewStoreRepository(st, logger)
	}
	agg := ranking.NewAggregator(repo, config.Ranking.DefaultLimit, logger)

	coord := race.NewCoordinator(st, data, logger,
		race.WithRanking(agg),
		race.WithMinWinTime(config.Race.MinWinTime.Std()),
	)

	// クーロンスケジューラのセットアップと呼び出し
	reaper := race.NewReaper(st, config.Race.InactivityTimeout.Std(), logger)
	scheduler, err := utils.StartReaper(reaper, config.Race.ReaperInterval.Std(), logger)
	if err != nil {
		logger.Fatal("Reaperの起動に失敗しました", zap.Error(err))
	}
	defer scheduler.Stop()

	if !config.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	//リクエストロガーを起動
	router.Use(gin.Recovery(), utils.RequestLogger(logger))

	//CORS（Cross-Origin Resource Sharing）ポリシーを設定
	router.Use(cors.New(corsConfig(config.Server)))

	//各HTTPリクエストのルーティング
	screens.RegisterRoutes(router, coord, agg, st, screens.NewUpgrader(), logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Server.Port),
		Handler: router,
	}
	go func() {
		logger.Info("サーバーを起動します", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to run HTTP server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("サーバーを停止します")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("サーバーの停止に失敗しました", zap.Error(err))
	}
	if rdb != nil {
		rdb.Close()
	}
}

// newStore は設定に応じて共有ストアを選びます。memory は単一プロセスでの開発用
func newStore(config models.Config, rdb *redis.Client, logger *zap.Logger) (store.Store, error) {
	switch config.Store.Backend {
	case "redis":
		return store.NewRedisStore(rdb, config.Redis.KeyPrefix, logger), nil
	case "memory":
		logger.Warn("インメモリストアを使用します。複数のサーバー間で部屋は共有されません")
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", config.Store.Backend)
	}
}

func newGameDataSource(config models.GameDataConfig) (gamedata.Source, error) {
	switch {
	case config.URL != "":
		return gamedata.NewHTTPSource(config.URL, config.Timeout.Std()), nil
	case config.File != "":
		return gamedata.FileSource{Path: config.File}, nil
	default:
		return nil, errors.New("gameData.url か gameData.file のどちらかを指定してください")
	}
}

func corsConfig(server models.ServerConfig) cors.Config {
	config := cors.Config{
		AllowMethods:  []string{"GET", "POST"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(server.AllowOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = server.AllowOrigins
		config.AllowCredentials = true
	}
	return config
}
