package race

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"wikirace/gamedata"
	"wikirace/models"
	"wikirace/store"

	"go.uber.org/zap"
)

const (
	minPlayers        = 2
	maxPlayers        = 10
	defaultMaxPlayers = 5
)

// normalizeConfig は作成時設定の既定値を埋め、範囲外の値を丸めます
func normalizeConfig(cfg models.RoomConfig, nick string) (models.RoomConfig, error) {
	cfg.Name = strings.TrimSpace(cfg.Name)
	if cfg.Name == "" {
		cfg.Name = nick + "'s room"
	}

	switch cfg.Visibility {
	case "":
		cfg.Visibility = models.VisibilityPublic
	case models.VisibilityPublic, models.VisibilityPrivate:
	default:
		return cfg, fmt.Errorf("%w: visibility %q", ErrInvalidConfig, cfg.Visibility)
	}

	switch cfg.WinCriterion {
	case "":
		cfg.WinCriterion = models.WinByTime
	case models.WinByTime, models.WinByClicks:
	default:
		return cfg, fmt.Errorf("%w: win criterion %q", ErrInvalidConfig, cfg.WinCriterion)
	}

	switch {
	case cfg.MaxPlayers == 0:
		cfg.MaxPlayers = defaultMaxPlayers
	case cfg.MaxPlayers < minPlayers:
		cfg.MaxPlayers = minPlayers
	case cfg.MaxPlayers > maxPlayers:
		cfg.MaxPlayers = maxPlayers
	}
	return cfg, nil
}

func (c *Coordinator) snapshot(ctx context.Context) (*models.WikiData, error) {
	data, err := c.data.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataUnavailable, err)
	}
	return data, nil
}

// CreateRoom は新しい部屋を作り、作成者をただ一人のプレイヤー兼オーナーとして登録します。
// コードが既存の部屋と衝突した場合は別のコードで作り直します。
func (c *Coordinator) CreateRoom(ctx context.Context, cfg models.RoomConfig, nick string) (code, playerID string, err error) {
	nick = strings.TrimSpace(nick)
	if nick == "" {
		return "", "", ErrInvalidNick
	}
	cfg, err = normalizeConfig(cfg, nick)
	if err != nil {
		return "", "", err
	}
	data, err := c.snapshot(ctx)
	if err != nil {
		return "", "", err
	}

	now := c.nowMs()
	playerID = newPlayerID()
	player := &models.Player{ID: playerID, Nick: nick, IsOwner: true, JoinedAt: now}
	room := models.Room{
		RoomConfig:     cfg,
		OwnerID:        playerID,
		Phase:          models.PhaseWaiting,
		CreatedAt:      now,
		LastActivityAt: now,
		Players:        map[string]*models.Player{playerID: player},
	}
	c.withRand(func(rng *rand.Rand) {
		room.StartPage = gamedata.PickStartPage(rng, data)
		theme := gamedata.PickTheme(rng, data)
		room.TargetTitle, room.TargetSlug = theme.Title, theme.Slug
		if cfg.PerPlayerThemes {
			player.TargetTitle, player.TargetSlug = theme.Title, theme.Slug
		}
	})

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		room.Code = c.newCode()
		err := c.store.SetIf(ctx, roomPath(room.Code), store.Guard{"": nil}, room)
		if err == nil {
			c.logger.Info("Room created",
				zap.String("code", room.Code),
				zap.String("playerId", playerID),
				zap.String("visibility", string(cfg.Visibility)),
				zap.Int("maxPlayers", cfg.MaxPlayers))
			return room.Code, playerID, nil
		}
		if !errors.Is(err, store.ErrConditionFailed) {
			return "", "", storeError(err)
		}
		c.logger.Debug("Room code collision", zap.String("code", room.Code))
	}
	return "", "", fmt.Errorf("%w: no free room code", ErrContention)
}

// JoinRoom は待機中の部屋に新しいプレイヤーを追加します。
// 書き込みは新しいプレイヤーのサブツリーと lastActivityAt だけで、読んだ時点のメンバー構成を
// 条件にするため、同時の入室は片方が読み直して再試行し、両方とも定員の範囲で成功します。
func (c *Coordinator) JoinRoom(ctx context.Context, code, nick string) (string, error) {
	nick = strings.TrimSpace(nick)
	if nick == "" {
		return "", ErrInvalidNick
	}
	playerID := newPlayerID()
	var theme *models.Theme

	err := c.retry(ctx, "join", code, func() error {
		room, doc, err := c.load(ctx, code)
		if err != nil {
			return err
		}
		if room.Phase != models.PhaseWaiting {
			return fmt.Errorf("%w: room %s is %s", ErrGameAlreadyStarted, code, room.Phase)
		}
		if room.IsFull() {
			return fmt.Errorf("%w: room %s has %d/%d players", ErrRoomFull, code, len(room.Players), room.MaxPlayers)
		}

		player := &models.Player{ID: playerID, Nick: nick, JoinedAt: c.nowMs()}
		if room.PerPlayerThemes {
			if theme == nil {
				data, err := c.snapshot(ctx)
				if err != nil {
					return err
				}
				c.withRand(func(rng *rand.Rand) {
					picked := gamedata.PickTheme(rng, data)
					theme = &picked
				})
			}
			player.TargetTitle, player.TargetSlug = theme.Title, theme.Slug
		}

		guard := store.Guard{
			"phase":   string(models.PhaseWaiting),
			"players": doc["players"],
		}
		fields := map[string]any{
			"players/" + playerID: player,
			"lastActivityAt":      player.JoinedAt,
		}
		return writeError(c.store.UpdateIf(ctx, roomPath(code), guard, fields), code)
	})
	if err != nil {
		return "", err
	}
	c.logger.Info("Player joined", zap.String("code", code), zap.String("playerId", playerID))
	return playerID, nil
}

// Successor は departing を除いたメンバーから次のオーナーを選びます。
// 参加が最も早いプレイヤー、同時刻ならIDの小さい方です。残りがいなければ nil
func Successor(players map[string]*models.Player, departing string) *models.Player {
	candidates := make([]*models.Player, 0, len(players))
	for id, p := range players {
		if id != departing && p != nil {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].JoinedAt != candidates[j].JoinedAt {
			return candidates[i].JoinedAt < candidates[j].JoinedAt
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0]
}

// LeaveRoom はプレイヤーを部屋から外します。
// 最後の一人なら部屋を削除します。オーナーが抜ける場合は、離脱と後継者の指名
// （isOwner と ownerId）を同じ一回の書き込みで行うので、オーナー不在や二重オーナーの状態は観測されません。
// 既に部屋やプレイヤーが存在しない場合は何もしません。
func (c *Coordinator) LeaveRoom(ctx context.Context, code, playerID string) error {
	var successor string
	err := c.retry(ctx, "leave", code, func() error {
		successor = ""
		room, doc, err := c.load(ctx, code)
		if err != nil {
			return err
		}
		if _, ok := room.Players[playerID]; !ok {
			return nil
		}

		if len(room.Players) == 1 {
			err := c.store.RemoveIf(ctx, roomPath(code), store.Guard{"players": doc["players"]})
			if err == nil {
				c.logger.Info("Last player left, room removed", zap.String("code", code))
			}
			return writeError(err, code)
		}

		guard := store.Guard{
			"players/" + playerID + "/id": playerID,
			"ownerId":                     room.OwnerID,
		}
		fields := map[string]any{
			"players/" + playerID: nil,
			"lastActivityAt":      c.nowMs(),
		}
		if _, ownerPresent := room.Players[room.OwnerID]; room.OwnerID == playerID || !ownerPresent {
			next := Successor(room.Players, playerID)
			guard["players/"+next.ID+"/id"] = next.ID
			fields["ownerId"] = next.ID
			fields["players/"+next.ID+"/isOwner"] = true
			successor = next.ID
		}
		return writeError(c.store.UpdateIf(ctx, roomPath(code), guard, fields), code)
	})
	if errors.Is(err, ErrRoomNotFound) {
		return nil
	}
	if err == nil && successor != "" {
		c.logger.Info("Ownership handed over",
			zap.String("code", code), zap.String("from", playerID), zap.String("to", successor))
	}
	return err
}
