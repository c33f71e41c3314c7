package ranking

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"wikirace/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPostgresRepositoryIntegration(t *testing.T) {
	db := testutil.StartPostgres(t)
	ctx := context.Background()
	repo := NewPostgresRepository(db)
	agg := NewAggregator(repo, 30, zap.NewNop())

	entry, err := agg.RecordResult(ctx, "Ana.B", 60000, 10, true, "Lua")
	require.NoError(t, err)
	assert.Equal(t, "Ana_B", entry.NickKey)
	assert.Equal(t, 1, entry.TotalWins)

	entry, err = agg.RecordResult(ctx, "Ana.B", 45000, 12, false, "Sol")
	require.NoError(t, err)
	assert.Equal(t, int64(45000), entry.BestTimeMs)
	assert.Equal(t, "00:45", entry.BestTimeStr)
	assert.Equal(t, "Sol", entry.BestGameTheme)
	assert.Equal(t, 10, entry.FewestClicks)
	assert.Equal(t, 1, entry.TotalWins)
	assert.Equal(t, 2, entry.TotalGames)

	// 最良タイムを更新しない結果ではテーマも変わらない
	entry, err = agg.RecordResult(ctx, "Ana.B", 90000, 30, true, "Mar")
	require.NoError(t, err)
	assert.Equal(t, "Sol", entry.BestGameTheme)
	assert.Equal(t, 2, entry.TotalWins)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := agg.RecordResult(ctx, "racer", int64(10000+i*1000), 5+i, i%4 == 0, fmt.Sprintf("theme-%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	top, err := agg.FetchTopRankings(ctx, 0)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "racer", top[0].NickKey)
	assert.Equal(t, writers, top[0].TotalGames)
	assert.Equal(t, 5, top[0].TotalWins)
	assert.Equal(t, int64(10000), top[0].BestTimeMs)
	assert.Equal(t, "theme-0", top[0].BestGameTheme)
	assert.Equal(t, "Ana_B", top[1].NickKey)

	top, err = agg.FetchTopRankings(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}
