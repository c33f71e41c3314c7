package utils

import (
	"context"
	"fmt"
	"time"

	"wikirace/race"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper は放置された部屋を掃除するジョブです（race.Reaper が実装）
type Sweeper interface {
	Sweep(ctx context.Context) (race.SweepResult, error)
}

// StartReaper は interval ごとに部屋の掃除を行うクーロンを起動します。
// 1回の掃除は interval を超えて走らないようにタイムアウトを付けます。
func StartReaper(sweeper Sweeper, interval time.Duration, logger *zap.Logger) (*cron.Cron, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("reaper interval must be positive: %s", interval)
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()

		result, err := sweeper.Sweep(ctx)
		if err != nil {
			logger.Error("部屋の掃除に失敗しました", zap.Error(err))
			return
		}
		if result.Removed > 0 || result.Failed > 0 {
			logger.Info("部屋の掃除完了",
				zap.Int("scanned", result.Scanned),
				zap.Int("removed", result.Removed),
				zap.Int("failed", result.Failed),
			)
		}
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	return c, nil
}
