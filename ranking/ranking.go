// Package ranking はニックネームごとの通算成績（グローバルランキング）を集計します。
//
// 結果のマージは最小値・加算だけからなる単調な結合なので、
// 遅れて届いた結果を後から適用しても最良記録が後退することはありません。
package ranking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"wikirace/models"

	"go.uber.org/zap"
)

var (
	// ErrInvalidResult は記録できない結果（時間が0以下、クリック数が負）です
	ErrInvalidResult = errors.New("ranking: invalid result")
	// ErrContention は同じニックネームへの書き込みが競合し続けた場合に返されます
	ErrContention = errors.New("ranking: too many concurrent updates")
)

const (
	anonymousNick = "anonymous"
	maxLimit      = 100
)

// Result は一回のゲームの結果です
type Result struct {
	Nick   string
	TimeMs int64
	Clicks int
	IsWin  bool
	Theme  string
	At     int64 // 記録時刻（ミリ秒）
}

// Repository はランキングの保存先です
type Repository interface {
	// Record は結果を既存の記録にアトミックにマージし、マージ後の記録を返します
	Record(ctx context.Context, result Result) (models.RankingEntry, error)
	// Top は並び順を適用した上位 limit 件を返します
	Top(ctx context.Context, limit int) ([]models.RankingEntry, error)
}

// SanitizeNick はニックネームをストアのキーとして安全な形にします。
// . # $ [ ] / と制御文字は _ に置き換え、前後の空白を除きます。
func SanitizeNick(nick string) string {
	key := strings.Map(func(r rune) rune {
		switch {
		case strings.ContainsRune(".#$[]/", r), unicode.IsControl(r):
			return '_'
		}
		return r
	}, nick)
	key = strings.TrimSpace(key)
	if key == "" {
		return anonymousNick
	}
	return key
}

// Merge は result を既存の記録に結合した新しい記録を返します。existing が nil なら初回の記録です。
// 表示名は最初に記録された表記を保ち、最良テーマは時間が更新された時だけ書き換えます。
func Merge(existing *models.RankingEntry, result Result) models.RankingEntry {
	if existing == nil {
		entry := models.RankingEntry{
			NickKey:       SanitizeNick(result.Nick),
			Nick:          result.Nick,
			BestTimeMs:    result.TimeMs,
			BestTimeStr:   models.FormatTime(result.TimeMs),
			FewestClicks:  result.Clicks,
			BestGameTheme: result.Theme,
			TotalGames:    1,
			FirstSeen:     result.At,
			LastUpdate:    result.At,
		}
		if result.IsWin {
			entry.TotalWins = 1
		}
		return entry
	}

	entry := *existing
	if entry.Nick == "" {
		entry.Nick = result.Nick
	}
	if entry.BestTimeMs == 0 || result.TimeMs < entry.BestTimeMs {
		entry.BestTimeMs = result.TimeMs
		entry.BestTimeStr = models.FormatTime(result.TimeMs)
		entry.BestGameTheme = result.Theme
	}
	if result.Clicks < entry.FewestClicks {
		entry.FewestClicks = result.Clicks
	}
	entry.TotalGames++
	if result.IsWin {
		entry.TotalWins++
	}
	if result.At > entry.LastUpdate {
		entry.LastUpdate = result.At
	}
	if entry.FirstSeen == 0 || (result.At > 0 && result.At < entry.FirstSeen) {
		entry.FirstSeen = result.At
	}
	return entry
}

// SortEntries は勝利数の多い順、次に最良タイムの短い順（記録なしは最後）、次に初登場順に並べます
func SortEntries(entries []models.RankingEntry) {
	bestTime := func(e models.RankingEntry) int64 {
		if e.BestTimeMs <= 0 {
			return 9e12
		}
		return e.BestTimeMs
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.TotalWins != b.TotalWins {
			return a.TotalWins > b.TotalWins
		}
		if bestTime(a) != bestTime(b) {
			return bestTime(a) < bestTime(b)
		}
		if a.FirstSeen != b.FirstSeen {
			return a.FirstSeen < b.FirstSeen
		}
		return a.NickKey < b.NickKey
	})
}

// Aggregator はランキングの公開APIです
type Aggregator struct {
	repo         Repository
	defaultLimit int
	logger       *zap.Logger
	now          func() time.Time
}

func NewAggregator(repo Repository, defaultLimit int, logger *zap.Logger) *Aggregator {
	if defaultLimit <= 0 {
		defaultLimit = 30
	}
	return &Aggregator{repo: repo, defaultLimit: defaultLimit, logger: logger, now: time.Now}
}

// RecordResult は一回のゲーム結果をニックネームの通算成績に結合します
func (a *Aggregator) RecordResult(ctx context.Context, nick string, timeMs int64, clicks int, isWin bool, theme string) (models.RankingEntry, error) {
	if timeMs <= 0 || clicks < 0 {
		return models.RankingEntry{}, fmt.Errorf("%w: time=%d clicks=%d", ErrInvalidResult, timeMs, clicks)
	}
	result := Result{
		Nick:   nick,
		TimeMs: timeMs,
		Clicks: clicks,
		IsWin:  isWin,
		Theme:  theme,
		At:     a.now().UnixMilli(),
	}
	entry, err := a.repo.Record(ctx, result)
	if err != nil {
		a.logger.Error("Failed to record ranking",
			zap.String("nick", nick), zap.Bool("win", isWin), zap.Error(err))
		return models.RankingEntry{}, err
	}
	a.logger.Info("Ranking updated",
		zap.String("nickKey", entry.NickKey),
		zap.Int("totalWins", entry.TotalWins),
		zap.Int("totalGames", entry.TotalGames),
		zap.Int64("bestTimeMs", entry.BestTimeMs))
	return entry, nil
}

// FetchTopRankings は上位 limit 件を返します。limit が0以下なら既定の件数です
func (a *Aggregator) FetchTopRankings(ctx context.Context, limit int) ([]models.RankingEntry, error) {
	if limit <= 0 {
		limit = a.defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return a.repo.Top(ctx, limit)
}
