// Package testutil はRedisとPostgreSQLのテスト用コンテナを起動します。
// Dockerが必要なので WIKIRACE_INTEGRATION=1 のときだけ使われます。
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"wikirace/migrations"

	"github.com/go-redis/redis/v8"
	tc "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SkipUnlessIntegration は統合テストが有効でなければテストをスキップします
func SkipUnlessIntegration(t testing.TB) {
	t.Helper()
	if os.Getenv("WIKIRACE_INTEGRATION") != "1" {
		t.Skip("WIKIRACE_INTEGRATION=1 を指定すると実行されます")
	}
}

// StartRedis はRedisコンテナを起動し、接続済みのクライアントを返します。
// コンテナとクライアントはテスト終了時に片付けられます。
func StartRedis(t testing.TB) *redis.Client {
	t.Helper()
	SkipUnlessIntegration(t)
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         endpoint,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		t.Fatalf("failed to ping redis: %v", err)
	}
	return rdb
}

// StartPostgres はPostgreSQLコンテナを起動し、マイグレーション済みの接続を返します
func StartPostgres(t testing.TB) *gorm.DB {
	t.Helper()
	SkipUnlessIntegration(t)
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("wikirace"),
		tcpostgres.WithUsername("wikirace"),
		tcpostgres.WithPassword("wikirace"),
		tc.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open postgres: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if err := migrations.Migrate(db, zap.NewNop()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}
