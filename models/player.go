package models

// Player は部屋の参加者です。rooms/<code>/players/<id> に保存されます
type Player struct {
	ID       string `json:"id"` // 参加時に生成、部屋の中で再利用されない
	Nick     string `json:"nick"`
	IsOwner  bool   `json:"isOwner"`
	JoinedAt int64  `json:"joinedAt"`
	Clicks   int    `json:"clicks"` // playing中は単調増加

	// ゴールした時だけ設定される
	FinishedAt int64  `json:"finishedAt,omitempty"`
	TimeMs     int64  `json:"timeMs,omitempty"`
	TimeStr    string `json:"timeStr,omitempty"`
	Ranked     bool   `json:"ranked,omitempty"` // ランキングへの記録が済んだ

	// perPlayerThemes の部屋でのみ設定される個別の目的地
	TargetTitle string `json:"targetTitle,omitempty"`
	TargetSlug  string `json:"targetSlug,omitempty"`
}

// Finished はゴール済みかどうかです
func (p *Player) Finished() bool {
	return p.FinishedAt > 0
}
