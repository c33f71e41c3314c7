// Package session はプレイヤー側の進行（部屋の購読、クリック数の間引き、ハートビート、ゴール判定）です。
package session

import (
	"bytes"
	"context"
	"encoding/json"

	"wikirace/models"
	"wikirace/race"
	"wikirace/store"

	"go.uber.org/zap"
)

type EventKind int

const (
	// Updated は部屋の最新の全体値です
	Updated EventKind = iota
	// Closed は部屋が無くなったことを表す終端イベントです
	Closed
)

func (k EventKind) String() string {
	if k == Closed {
		return "closed"
	}
	return "updated"
}

// Event は購読者に届く部屋の状態です。Closed の場合 Room は nil です
type Event struct {
	Kind EventKind
	Room *models.Room
}

// WatchRoom は rooms/<code> を購読し、変更のたびに部屋の全体値を届けます。
// 同じ内容の通知が続いた場合は一度だけ届けます。
// 部屋が削除されるか空になった時点で Closed を一度届けてチャネルを閉じます。
func WatchRoom(ctx context.Context, st store.Store, code string, logger *zap.Logger) (<-chan Event, error) {
	ctx, cancel := context.WithCancel(ctx)
	snapshots, err := st.Watch(ctx, store.Join(race.RoomsNamespace, code))
	if err != nil {
		cancel()
		return nil, err
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		defer cancel()

		var last []byte
		for snap := range snapshots {
			if !snap.Exists {
				send(ctx, events, Event{Kind: Closed})
				return
			}
			if bytes.Equal(snap.Value, last) {
				continue
			}
			last = snap.Value

			var room models.Room
			if err := json.Unmarshal(snap.Value, &room); err != nil {
				logger.Warn("Ignoring unreadable room snapshot", zap.String("code", code), zap.Error(err))
				continue
			}
			room.Code = code
			if len(room.Players) == 0 {
				send(ctx, events, Event{Kind: Closed})
				return
			}
			if !send(ctx, events, Event{Kind: Updated, Room: &room}) {
				return
			}
		}
	}()
	return events, nil
}

func send(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
