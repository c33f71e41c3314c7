package ranking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"wikirace/models"
	"wikirace/store"

	"go.uber.org/zap"
)

// Namespace は共有ストア上のランキングの置き場所です
const Namespace = "rankings"

// StoreRepository は共有ストアの rankings/<key> に記録を保存します。
// 作成は「存在しないこと」、更新は「totalGames が読んだ値のまま」を条件に書き込み、
// 条件が崩れたら読み直して再試行するので、並行な記録でも加算が失われません。
type StoreRepository struct {
	store       store.Store
	maxAttempts int
	logger      *zap.Logger
}

func NewStoreRepository(st store.Store, logger *zap.Logger) *StoreRepository {
	return &StoreRepository{store: st, maxAttempts: 16, logger: logger}
}

func (r *StoreRepository) Record(ctx context.Context, result Result) (models.RankingEntry, error) {
	path := store.Join(Namespace, SanitizeNick(result.Nick))

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		raw, err := r.store.Get(ctx, path)
		var entry models.RankingEntry
		switch {
		case errors.Is(err, store.ErrNotFound):
			entry = Merge(nil, result)
			err = r.store.SetIf(ctx, path, store.Guard{"": nil}, entry)
		case err != nil:
			return models.RankingEntry{}, err
		default:
			var existing models.RankingEntry
			if err := json.Unmarshal(raw, &existing); err != nil {
				return models.RankingEntry{}, fmt.Errorf("%w: %s: %w", store.ErrCorrupt, path, err)
			}
			existing.NickKey = store.Key(path)
			entry = Merge(&existing, result)
			err = r.store.UpdateIf(ctx, path, store.Guard{"totalGames": existing.TotalGames}, mergedFields(entry))
		}
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, store.ErrConditionFailed) && !errors.Is(err, store.ErrNotFound) {
			return models.RankingEntry{}, err
		}
		r.logger.Debug("Ranking write raced, retrying", zap.String("path", path), zap.Int("attempt", attempt))
	}
	return models.RankingEntry{}, fmt.Errorf("%w: %s", ErrContention, path)
}

// mergedFields はマージで変わりうるフィールドだけを返します。記録は作成後に丸ごと置き換えません
func mergedFields(entry models.RankingEntry) map[string]any {
	return map[string]any{
		"nick":          entry.Nick,
		"bestTimeMs":    entry.BestTimeMs,
		"bestTimeStr":   entry.BestTimeStr,
		"fewestClicks":  entry.FewestClicks,
		"bestGameTheme": entry.BestGameTheme,
		"totalWins":     entry.TotalWins,
		"totalGames":    entry.TotalGames,
		"firstSeen":     entry.FirstSeen,
		"lastUpdate":    entry.LastUpdate,
	}
}

func (r *StoreRepository) Top(ctx context.Context, limit int) ([]models.RankingEntry, error) {
	paths, err := r.store.List(ctx, Namespace)
	if err != nil {
		return nil, err
	}

	entries := make([]models.RankingEntry, 0, len(paths))
	for _, path := range paths {
		raw, err := r.store.Get(ctx, path)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var entry models.RankingEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			// 壊れた記録は一覧から外す
			r.logger.Warn("Skipping unreadable ranking entry", zap.String("path", path), zap.Error(err))
			continue
		}
		entry.NickKey = store.Key(path)
		entries = append(entries, entry)
	}

	SortEntries(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
