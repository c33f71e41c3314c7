package gamedata

import (
	"context"
	"sync"

	"wikirace/models"

	"go.uber.org/zap"
)

// Cache は最初に取得できた一覧をプロセスの生存中保持します。
// 取得に失敗した場合は保持せず、次の呼び出しで再取得します。
type Cache struct {
	source Source
	logger *zap.Logger

	mu   sync.Mutex
	data *models.WikiData
}

func NewCache(source Source, logger *zap.Logger) *Cache {
	return &Cache{source: source, logger: logger}
}

// Snapshot は一覧を返します。失敗時は ErrDataUnavailable を包んだエラーです
func (c *Cache) Snapshot(ctx context.Context) (*models.WikiData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data != nil {
		return c.data, nil
	}
	data, err := c.source.Fetch(ctx)
	if err != nil {
		c.logger.Warn("Failed to load game data", zap.Error(err))
		return nil, err
	}
	c.logger.Info("Game data loaded",
		zap.Int("startPages", len(data.StartPages)),
		zap.Int("themes", len(data.Themes)))
	c.data = data
	return data, nil
}
