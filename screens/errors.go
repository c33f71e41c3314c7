package screens

import (
	"errors"
	"net/http"

	"wikirace/race"
	"wikirace/ranking"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// errorStatus はエラーの種類ごとのHTTPステータスとクライアント向けの status 文字列です
var errorStatus = []struct {
	err    error
	code   int
	status string
	retry  bool
}{
	{race.ErrRoomNotFound, http.StatusNotFound, "room_not_found", false},
	{race.ErrPlayerNotFound, http.StatusNotFound, "player_not_found", false},
	{race.ErrRoomFull, http.StatusConflict, "room_full", false},
	{race.ErrGameAlreadyStarted, http.StatusConflict, "game_already_started", false},
	{race.ErrGameNotInProgress, http.StatusConflict, "game_not_in_progress", false},
	{race.ErrImplausibleResult, http.StatusUnprocessableEntity, "implausible_result", false},
	{race.ErrInvalidConfig, http.StatusUnprocessableEntity, "invalid_config", false},
	{race.ErrInvalidNick, http.StatusUnprocessableEntity, "invalid_nickname", false},
	{ranking.ErrInvalidResult, http.StatusUnprocessableEntity, "implausible_result", false},
	// 一時的な失敗。クライアントには再試行を促す
	{race.ErrStoreUnavailable, http.StatusServiceUnavailable, "store_unavailable", true},
	{race.ErrDataUnavailable, http.StatusServiceUnavailable, "data_unavailable", true},
	{race.ErrContention, http.StatusServiceUnavailable, "contention", true},
	{ranking.ErrContention, http.StatusServiceUnavailable, "contention", true},
}

// respondError はエラーをステータスに変換して返します
func respondError(c *gin.Context, err error, logger *zap.Logger) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			if e.code >= http.StatusInternalServerError {
				logger.Warn("Transient failure", zap.String("path", c.FullPath()), zap.Error(err))
			}
			body := gin.H{"status": e.status, "error": err.Error()}
			if e.retry {
				body["retry"] = true
			}
			c.JSON(e.code, body)
			return
		}
	}
	logger.Error("Unhandled error", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"status": "internal_error", "error": "内部エラーが発生しました"})
}

func bindError(c *gin.Context, err error, logger *zap.Logger) {
	logger.Info("Request bind error", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{
		"status":  "request_binding_error",
		"message": err.Error(),
	})
}
