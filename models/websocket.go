package models

// WatchMessage はWebSocketで購読者に送るメッセージです。
// Type が "room" のときは部屋の全体値、"closed" のときは部屋が無くなったことを表します。
type WatchMessage struct {
	Type string `json:"type"`
	Room *Room  `json:"room,omitempty"`
}

const (
	WatchTypeRoom   = "room"
	WatchTypeClosed = "closed"
	WatchTypeError  = "error"
)
