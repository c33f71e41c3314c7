package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"wikirace/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// LoadConfig は設定ファイルを読み込み、既定値と環境変数で補います。
// 拡張子が .yaml / .yml ならYAML、それ以外はJSONとして読みます。
// ファイルが存在しない場合は既定値と環境変数だけで設定を作ります。
func LoadConfig(filename string) (models.Config, error) {
	config := models.DefaultConfig()

	configFile, err := os.Open(filename)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return config, err
	default:
		defer configFile.Close()
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".yaml", ".yml":
			err = yaml.NewDecoder(configFile).Decode(&config)
		default:
			err = json.NewDecoder(configFile).Decode(&config)
		}
		if err != nil {
			return config, fmt.Errorf("設定ファイルの解析に失敗しました %s: %w", filename, err)
		}
	}

	applyEnv(&config)
	return config, nil
}

// applyEnv は環境変数で設定を上書きします（本番環境ではこちらを使う）
func applyEnv(config *models.Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		config.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		config.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			config.Redis.DB = db
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		config.Postgres.URL = v
	}
	if v := os.Getenv("WIKIRACE_DATA_URL"); v != "" {
		config.GameData.URL = v
	}
	if v := os.Getenv("WIKIRACE_STORE"); v != "" {
		config.Store.Backend = v
	}
	if v := os.Getenv("WIKIRACE_RANKING"); v != "" {
		config.Ranking.Backend = v
	}
}

// PostgresDSN は接続文字列を組み立てます
func PostgresDSN(config models.PostgresConfig) string {
	if config.URL != "" {
		return config.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s password=%s sslmode=%s",
		config.DBHost, config.DBPort, config.DBUser, config.DBName, config.DBPassword, config.DBSSLMode)
}

func InitPostgreSQL(config models.PostgresConfig, logger *zap.Logger) (*gorm.DB, error) {
	dsn := PostgresDSN(config)

	const maxRetries = 3
	const retryInterval = 5 * time.Second
	var err error
	for i := 0; i <= maxRetries; i++ {
		var gormDB *gorm.DB
		gormDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err == nil {
			return gormDB, nil
		}
		logger.Error("データベース接続のリトライ", zap.Int("retry", i), zap.Error(err))
		if i < maxRetries {
			time.Sleep(retryInterval)
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
		logger.Error("Failed to connect to Redis", zap.String("addr", config.Addr), zap.Error(err))
		rdb.Close()
		return nil, err
	}

	logger.Info("Connected to Redis", zap.String("addr", config.Addr))
	return rdb, nil
}
