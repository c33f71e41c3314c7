package race

import (
	"context"
	"errors"
	"time"

	"wikirace/store"

	"go.uber.org/zap"
)

// Reaper は放置された部屋を回収します。
// 空の部屋は即座に、最後の操作から timeout 以上経った部屋はその時点で削除します。
// 一つの部屋の失敗で走査全体を止めることはありません。
type Reaper struct {
	store   store.Store
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

func NewReaper(st store.Store, timeout time.Duration, logger *zap.Logger) *Reaper {
	return &Reaper{store: st, timeout: timeout, logger: logger, now: time.Now}
}

// SweepResult は一回の走査の集計です
type SweepResult struct {
	Scanned int
	Removed int
	Failed  int
}

// Sweep は全ての部屋を一度だけ走査します。エラーを返すのは部屋の一覧を取れなかった場合だけです。
// 削除は読んだ時点の lastActivityAt（空の部屋はメンバー構成）を条件にするので、
// 走査の途中で操作された部屋は残ります。
func (r *Reaper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	paths, err := r.store.List(ctx, RoomsNamespace)
	if err != nil {
		return result, storeError(err)
	}

	now := r.now().UnixMilli()
	for _, path := range paths {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Scanned++

		removed, err := r.sweepRoom(ctx, path, now)
		switch {
		case err != nil:
			result.Failed++
			r.logger.Warn("Failed to sweep room", zap.String("path", path), zap.Error(err))
		case removed:
			result.Removed++
		}
	}

	return result, nil
}

func (r *Reaper) sweepRoom(ctx context.Context, path string, now int64) (bool, error) {
	raw, err := r.store.Get(ctx, path)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	room, doc, err := decodeRoom(raw)
	if err != nil {
		return false, err
	}

	var guard store.Guard
	var reason string
	switch {
	case len(room.Players) == 0:
		guard = store.Guard{"players": doc["players"]}
		reason = "empty"
	default:
		last := room.LastActivityAt
		if last == 0 {
			last = room.CreatedAt
		}
		if now-last <= r.timeout.Milliseconds() {
			return false, nil
		}
		guard = store.Guard{"lastActivityAt": doc["lastActivityAt"]}
		reason = "inactive"
	}

	err = r.store.RemoveIf(ctx, path, guard)
	if errors.Is(err, store.ErrConditionFailed) {
		// 走査中に操作された
		return false, nil
	}
	if err != nil {
		return false, err
	}
	r.logger.Info("Room reaped", zap.String("path", path), zap.String("reason", reason))
	return true, nil
}
