package models

// RoomCreateRequest は部屋作成リクエストのボディです。
// 作成者は最初のプレイヤー兼オーナーになります。
type RoomCreateRequest struct {
	Nickname string `json:"nickname" binding:"required"` // 作成者のニックネーム
	RoomConfig
}

// JoinRequest は入室リクエストのボディです
type JoinRequest struct {
	Nickname string `json:"nickname" binding:"required"`
}

// PlayerRequest はプレイヤーIDだけを持つリクエスト（退室・開始）です
type PlayerRequest struct {
	PlayerID string `json:"playerId" binding:"required"`
}

// ProgressRequest はクリック数の同期リクエストです
type ProgressRequest struct {
	PlayerID string `json:"playerId" binding:"required"`
	Clicks   int    `json:"clicks"`
}

// WinRequest はゴール報告のリクエストです
type WinRequest struct {
	PlayerID       string `json:"playerId" binding:"required"`
	Nickname       string `json:"nickname"`
	TimeMs         int64  `json:"timeMs"`
	Clicks         int    `json:"clicks"`
	StopOnFirstWin bool   `json:"stopOnFirstWin"`
}
