package models

// RankingEntry はニックネームごとの通算成績です。
// 共有ストアでは rankings/<key> に、PostgreSQLでは rankings テーブルに保存されます。
// BestTimeMs / FewestClicks は減少のみ、TotalWins / TotalGames は増加のみ。
type RankingEntry struct {
	ID            uint   `gorm:"primaryKey" json:"-"`
	NickKey       string `gorm:"uniqueIndex;not null" json:"nickKey"` // サニタイズ済みのキー
	Nick          string `gorm:"not null" json:"nick"`                // 最初に記録された表記
	BestTimeMs    int64  `gorm:"not null" json:"bestTimeMs"`
	BestTimeStr   string `json:"bestTimeStr"`
	FewestClicks  int    `gorm:"not null" json:"fewestClicks"`
	BestGameTheme string `json:"bestGameTheme"`
	TotalWins     int    `gorm:"not null;default:0;index" json:"totalWins"`
	TotalGames    int    `gorm:"not null;default:0" json:"totalGames"`
	FirstSeen     int64  `gorm:"not null" json:"firstSeen"`
	LastUpdate    int64  `gorm:"not null" json:"lastUpdate"`
}

// TableName はgormのテーブル名を rankings に固定します
func (RankingEntry) TableName() string {
	return "rankings"
}
