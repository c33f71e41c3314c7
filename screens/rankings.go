package screens

import (
	"net/http"
	"strconv"

	"wikirace/ranking"
	"wikirace/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ランキング上位を返すハンドラー。limit を省略すると既定の件数
func RankingsHandler(c *gin.Context, agg *ranking.Aggregator, logger *zap.Logger) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"status": "invalid_limit", "error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	entries, err := agg.FetchTopRankings(c.Request.Context(), limit)
	if err != nil {
		logger.Error("Failed to fetch rankings", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "ranking_unavailable", "error": err.Error(), "retry": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "rankings": entries})
}

// 共有ストアへの疎通確認
func HealthHandler(c *gin.Context, st store.Store, logger *zap.Logger) {
	if err := st.Ping(c.Request.Context()); err != nil {
		logger.Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
