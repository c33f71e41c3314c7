package models

// Phase は部屋の進行段階です。waiting → playing → finished の順にしか進みません
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhasePlaying  Phase = "playing"
	PhaseFinished Phase = "finished"
)

// Visibility は公開ロビーに部屋を表示するかどうかです
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// WinCriterion は勝敗の基準（時間 or クリック数）です
type WinCriterion string

const (
	WinByTime   WinCriterion = "time"
	WinByClicks WinCriterion = "clicks"
)

// RoomConfig は部屋の作成時設定です。作成後は変更されません
type RoomConfig struct {
	Name            string       `json:"name"`            // 部屋名（空なら自動）
	Visibility      Visibility   `json:"visibility"`      // public / private
	MaxPlayers      int          `json:"maxPlayers"`      // 2〜10
	WinCriterion    WinCriterion `json:"winCriterion"`    // time / clicks
	StopOnFirstWin  bool         `json:"stopOnFirstWin"`  // 最初の勝者で終了するか
	PerPlayerThemes bool         `json:"perPlayerThemes"` // プレイヤーごとに目的地を変えるか
}

// Room は共有ストアの rooms/<code> に保存されるレースの部屋ドキュメントです。
type Room struct {
	Code string `json:"code"`
	RoomConfig

	OwnerID     string `json:"ownerId"`
	Phase       Phase  `json:"phase"`
	StartPage   string `json:"startPage"`
	TargetTitle string `json:"targetTitle"`
	TargetSlug  string `json:"targetSlug"`

	StartedAt      int64   `json:"startedAt,omitempty"` // playing に入った時刻（ミリ秒）
	Winner         *Winner `json:"winner,omitempty"`    // 最初の勝者。一度設定されたら上書きしない
	CreatedAt      int64   `json:"createdAt"`
	LastActivityAt int64   `json:"lastActivityAt"` // Reaperが参照する最終操作時刻

	Players map[string]*Player `json:"players"`
}

// Winner は部屋単位の最初の勝者の記録です
type Winner struct {
	PlayerID  string `json:"playerId"`
	Nick      string `json:"nick"`
	TimeMs    int64  `json:"timeMs"`
	TimeStr   string `json:"timeStr"`
	Clicks    int    `json:"clicks"`
	Timestamp int64  `json:"timestamp"`
}

// Target はプレイヤーの目的地（個別テーマがあればそちら）を返します
func (r *Room) Target(playerID string) Theme {
	if p, ok := r.Players[playerID]; ok && p.TargetSlug != "" {
		return Theme{Title: p.TargetTitle, Slug: p.TargetSlug}
	}
	return Theme{Title: r.TargetTitle, Slug: r.TargetSlug}
}

// IsFull は定員に達しているかどうかです
func (r *Room) IsFull() bool {
	return len(r.Players) >= r.MaxPlayers
}
