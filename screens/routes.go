package screens

import (
	"wikirace/race"
	"wikirace/ranking"
	"wikirace/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// RegisterRoutes は各HTTPリクエストのルーティングを登録します
func RegisterRoutes(router gin.IRouter, coord *race.Coordinator, agg *ranking.Aggregator, st store.Store, upgrader websocket.Upgrader, logger *zap.Logger) {
	router.POST("/rooms", func(c *gin.Context) {
		CreateRoomHandler(c, coord, logger)
	})
	router.GET("/rooms", func(c *gin.Context) {
		ListRoomsHandler(c, coord, logger)
	})
	router.GET("/rooms/:code", func(c *gin.Context) {
		GetRoomHandler(c, coord, logger)
	})
	router.POST("/rooms/:code/join", func(c *gin.Context) {
		JoinRoomHandler(c, coord, logger)
	})
	router.POST("/rooms/:code/leave", func(c *gin.Context) {
		LeaveRoomHandler(c, coord, logger)
	})
	router.POST("/rooms/:code/start", func(c *gin.Context) {
		StartGameHandler(c, coord, logger)
	})
	router.POST("/rooms/:code/progress", func(c *gin.Context) {
		ProgressHandler(c, coord, logger)
	})
	router.POST("/rooms/:code/win", func(c *gin.Context) {
		WinHandler(c, coord, logger)
	})
	router.POST("/rooms/:code/heartbeat", func(c *gin.Context) {
		HeartbeatHandler(c, coord, logger)
	})
	router.GET("/rooms/:code/watch", func(c *gin.Context) {
		WatchRoomHandler(c, st, upgrader, logger)
	})
	router.GET("/rankings", func(c *gin.Context) {
		RankingsHandler(c, agg, logger)
	})
	router.GET("/healthz", func(c *gin.Context) {
		HealthHandler(c, st, logger)
	})
}
