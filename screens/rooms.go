package screens

import (
	"net/http"

	"wikirace/models"
	"wikirace/race"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 部屋を作成し、作成者のプレイヤーIDを返すハンドラー
func CreateRoomHandler(c *gin.Context, coord *race.Coordinator, logger *zap.Logger) {
	var request models.RoomCreateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		bindError(c, err, logger)
		return
	}

	code, playerID, err := coord.CreateRoom(c.Request.Context(), request.RoomConfig, request.Nickname)
	if err != nil {
		respondError(c, err, logger)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"status":   "success",
		"code":     code,
		"playerId": playerID,
	})
}

// 公開ロビーに表示する部屋の一覧
func ListRoomsHandler(c *gin.Context, coord *race.Coordinator, logger *zap.Logger) {
	rooms, err := coord.ListPublicRooms(c.Request.Context())
	if err != nil {
		respondError(c, err, logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "rooms": rooms})
}

func GetRoomHandler(c *gin.Context, coord *race.Coordinator, logger *zap.Logger) {
	room, err := coord.GetRoom(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err, logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "room": room})
}

func JoinRoomHandler(c *gin.Context, coord *race.Coordinator, logger *zap.Logger) {
	var request models.JoinRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		bindError(c, err, logger)
		return
	}
	code := c.Param("code")
	playerID, err := coord.JoinRoom(c.Request.Context(), code, request.Nickname)
	if err != nil {
		respondError(c, err, logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "code": code, "playerId": playerID})
}

func LeaveRoomHandler(c *gin.Context, coord *race.Coordinator, logger *zap.Logger) {
	var request models.PlayerRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		bindError(c, err, logger)
		return
	}
	if err := coord.LeaveRoom(c.Request.Context(), c.Param("code"), request.PlayerID); err != nil {
		respondError(c, err, logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// ゲーム開始。リクエストしたプレイヤーが読み込んだ時点の ownerId と一致する場合だけ開始します。
// プレイヤーIDは認証されていないので、これは信頼境界ではなく誤操作の防止です。
func StartGameHandler(c *gin.Context, coord *race.Coordinator, logger *zap.Logger) {
	var request models.PlayerRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		bindError(c, err, logger)
		return
	}
	code := c.Param("code")
	room, err := coord.GetRoom(c.Request.Context(), code)
	if err != nil {
		respondError(c, err, logger)
		return
	}
	if room.OwnerID != request.PlayerID {
		c.JSON(http.StatusForbidden, gin.H{
			"status": "not_owner",
			"error":  "ゲームを開始できるのはオーナーだけです",
		})
		return
	}
	if err := coord.StartGame(c.Request.Context(), code); err != nil {
		respondError(c, err, logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func ProgressHandler(c *gin.Context, coord *race.Coordinator, logger *zap.Logger) {
	var request models.ProgressRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		bindError(c, err, logger)
		return
	}
	if err := coord.ReportProgress(c.Request.Context(), c.Param("code"), request.PlayerID, request.Clicks); err != nil {
		respondError(c, err, logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func WinHandler(c *gin.Context, coord *race.Coordinator, logger *zap.Logger) {
	var request models.WinRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		bindError(c, err, logger)
		return
	}
	code := c.Param("code")
	err := coord.ReportWin(c.Request.Context(), code, request.PlayerID, request.Nickname, request.TimeMs, request.Clicks, request.StopOnFirstWin)
	if err != nil {
		respondError(c, err, logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func HeartbeatHandler(c *gin.Context, coord *race.Coordinator, logger *zap.Logger) {
	if err := coord.Heartbeat(c.Request.Context(), c.Param("code")); err != nil {
		respondError(c, err, logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
