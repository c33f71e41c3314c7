package race

import (
	"context"
	"errors"
	"sort"

	"wikirace/models"
	"wikirace/store"

	"go.uber.org/zap"
)

// ListPublicRooms は公開ロビーに表示する部屋を作成順に返します。
// 公開・待機中・空でない・満員でない部屋だけです。読めない部屋は飛ばします。
func (c *Coordinator) ListPublicRooms(ctx context.Context) ([]*models.Room, error) {
	paths, err := c.store.List(ctx, RoomsNamespace)
	if err != nil {
		return nil, storeError(err)
	}

	rooms := make([]*models.Room, 0, len(paths))
	for _, path := range paths {
		raw, err := c.store.Get(ctx, path)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, storeError(err)
		}
		room, _, err := decodeRoom(raw)
		if err != nil {
			c.logger.Warn("Skipping unreadable room", zap.String("path", path), zap.Error(err))
			continue
		}
		room.Code = store.Key(path)
		if listable(room) {
			rooms = append(rooms, room)
		}
	}

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt != rooms[j].CreatedAt {
			return rooms[i].CreatedAt < rooms[j].CreatedAt
		}
		return rooms[i].Code < rooms[j].Code
	})
	return rooms, nil
}

func listable(room *models.Room) bool {
	return room.Visibility == models.VisibilityPublic &&
		room.Phase == models.PhaseWaiting &&
		len(room.Players) > 0 &&
		!room.IsFull()
}
