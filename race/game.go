package race

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wikirace/models"
	"wikirace/store"

	"go.uber.org/zap"
)

// StartGame は待機中の部屋を playing にします。
// オーナーかどうかの確認は呼び出し側（読み込んだ ownerId との比較）の責任です。
// phase が waiting であることを条件に書き込むので、終わった部屋が playing に戻ることはありません。
func (c *Coordinator) StartGame(ctx context.Context, code string) error {
	var startedAt int64
	err := c.retry(ctx, "start", code, func() error {
		room, _, err := c.load(ctx, code)
		if err != nil {
			return err
		}
		if room.Phase != models.PhaseWaiting {
			return fmt.Errorf("%w: room %s is %s", ErrGameAlreadyStarted, code, room.Phase)
		}
		startedAt = c.nowMs()
		guard := store.Guard{"phase": string(models.PhaseWaiting)}
		fields := map[string]any{
			"phase":          string(models.PhasePlaying),
			"startedAt":      startedAt,
			"lastActivityAt": startedAt,
		}
		return writeError(c.store.UpdateIf(ctx, roomPath(code), guard, fields), code)
	})
	if err != nil {
		return err
	}
	c.logger.Info("Game started", zap.String("code", code), zap.Int64("startedAt", startedAt))
	return nil
}

// ReportProgress はプレイヤーのクリック数を同期します。
// クリック数は減らないので、遅れて届いた小さい値は無視します。ゴール済みのプレイヤーの値は変えません。
func (c *Coordinator) ReportProgress(ctx context.Context, code, playerID string, clicks int) error {
	if clicks < 0 {
		return fmt.Errorf("%w: clicks=%d", ErrImplausibleResult, clicks)
	}
	return c.retry(ctx, "progress", code, func() error {
		room, _, err := c.load(ctx, code)
		if err != nil {
			return err
		}
		if room.Phase != models.PhasePlaying {
			return fmt.Errorf("%w: room %s is %s", ErrGameNotInProgress, code, room.Phase)
		}
		player, ok := room.Players[playerID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
		}
		if player.Finished() || clicks <= player.Clicks {
			return nil
		}

		prefix := "players/" + playerID + "/"
		guard := store.Guard{
			prefix + "clicks":     player.Clicks,
			prefix + "finishedAt": nil,
		}
		fields := map[string]any{
			prefix + "clicks": clicks,
			"lastActivityAt":  c.nowMs(),
		}
		return writeError(c.store.UpdateIf(ctx, roomPath(code), guard, fields), code)
	})
}

// ReportWin はプレイヤーのゴールを記録し、部屋の最初の勝者を決めます。
//
// winner が未設定の間は「winner が存在しないこと」を条件に winner と本人の結果を一度に書き込みます。
// 同時にゴールした他のプレイヤーが先に winner を取った場合、条件が崩れるので読み直し、
// 本人の結果（finishedAt / timeMs / clicks）だけを記録します。winner は一度設定されたら上書きされません。
// 最初の勝者で終了する部屋では、勝者の書き込みと同時に phase を finished にします。
// 部屋の更新の後、結果をランキングに渡し、成功したら players/<id>/ranked を立てます。
// ゴール済みのプレイヤーからの再報告は、ranked が無ければ記録済みの結果でランキングだけをやり直します。
func (c *Coordinator) ReportWin(ctx context.Context, code, playerID, nick string, timeMs int64, clicks int, stopOnFirstWin bool) error {
	if timeMs < c.minWinTime.Milliseconds() || clicks < 0 {
		return fmt.Errorf("%w: time=%dms clicks=%d", ErrImplausibleResult, timeMs, clicks)
	}

	var (
		won             bool
		alreadyFinished bool
		ranked          bool
		displayNick     string
		theme           string
		resultTime      int64
		resultClicks    int
	)
	err := c.retry(ctx, "win", code, func() error {
		won, alreadyFinished, ranked = false, false, false
		room, _, err := c.load(ctx, code)
		if err != nil {
			return err
		}
		if room.Phase == models.PhaseWaiting {
			return fmt.Errorf("%w: room %s is waiting", ErrGameNotInProgress, code)
		}
		player, ok := room.Players[playerID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
		}

		displayNick = strings.TrimSpace(nick)
		if displayNick == "" {
			displayNick = player.Nick
		}
		theme = room.Target(playerID).Title

		if player.Finished() {
			// 記録済みの結果を使う。今回の報告の値では上書きしない
			alreadyFinished, ranked = true, player.Ranked
			won = room.Winner != nil && room.Winner.PlayerID == playerID
			if won {
				displayNick = room.Winner.Nick
			}
			resultTime, resultClicks = player.TimeMs, player.Clicks
			return nil
		}

		// クリック数は減らない
		resultTime, resultClicks = timeMs, max(clicks, player.Clicks)

		now := c.nowMs()
		prefix := "players/" + playerID + "/"
		guard := store.Guard{
			prefix + "id":         playerID,
			prefix + "clicks":     player.Clicks,
			prefix + "finishedAt": nil,
		}
		fields := map[string]any{
			prefix + "finishedAt": now,
			prefix + "timeMs":     resultTime,
			prefix + "timeStr":    models.FormatTime(resultTime),
			prefix + "clicks":     resultClicks,
			"lastActivityAt":      now,
		}

		if room.Winner == nil {
			guard["winner"] = nil
			fields["winner"] = &models.Winner{
				PlayerID:  playerID,
				Nick:      displayNick,
				TimeMs:    resultTime,
				TimeStr:   models.FormatTime(resultTime),
				Clicks:    resultClicks,
				Timestamp: now,
			}
			if (stopOnFirstWin || room.StopOnFirstWin) && room.Phase == models.PhasePlaying {
				fields["phase"] = string(models.PhaseFinished)
			}
			won = true
		}
		return writeError(c.store.UpdateIf(ctx, roomPath(code), guard, fields), code)
	})
	if err != nil {
		return err
	}

	if alreadyFinished {
		if ranked || c.ranking == nil {
			c.logger.Debug("Duplicate win report ignored", zap.String("code", code), zap.String("playerId", playerID))
			return nil
		}
		c.logger.Info("Retrying ranking for finished player", zap.String("code", code), zap.String("playerId", playerID))
	} else {
		c.logger.Info("Player finished",
			zap.String("code", code),
			zap.String("playerId", playerID),
			zap.Int64("timeMs", resultTime),
			zap.Int("clicks", resultClicks),
			zap.Bool("winner", won))
	}

	if c.ranking == nil {
		return nil
	}
	if _, err := c.ranking.RecordResult(ctx, displayNick, resultTime, resultClicks, won, theme); err != nil {
		// 部屋の更新は確定済み。ranked が立たないので再報告でやり直せる
		return fmt.Errorf("record ranking: %w", storeError(err))
	}
	c.markRanked(ctx, code, playerID)
	return nil
}

// markRanked はランキングへの記録が済んだことを残します。
// 失敗しても結果は記録済みなので、ログだけ残して呼び出し側には返しません。
func (c *Coordinator) markRanked(ctx context.Context, code, playerID string) {
	prefix := "players/" + playerID + "/"
	guard := store.Guard{prefix + "id": playerID, prefix + "ranked": nil}
	err := c.store.UpdateIf(ctx, roomPath(code), guard, map[string]any{prefix + "ranked": true})
	switch {
	case err == nil, errors.Is(err, store.ErrConditionFailed), errors.Is(err, store.ErrNotFound):
		// 既に記録済み、または部屋が片付けられた
	default:
		c.logger.Warn("Failed to mark ranking as recorded",
			zap.String("code", code), zap.String("playerId", playerID), zap.Error(err))
	}
}

// Heartbeat は lastActivityAt だけを更新し、プレイ中の部屋が Reaper に回収されないようにします
func (c *Coordinator) Heartbeat(ctx context.Context, code string) error {
	if !ValidCode(code) {
		return fmt.Errorf("%w: %q", ErrRoomNotFound, code)
	}
	err := c.store.Update(ctx, roomPath(code), map[string]any{"lastActivityAt": c.nowMs()})
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	return storeError(err)
}
