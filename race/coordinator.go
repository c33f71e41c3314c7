// Package race はレースの部屋の進行（入退室、オーナーの引き継ぎ、ゲームの開始、勝者の判定）を扱います。
//
// 中央のプロセスは部屋を所有しません。全ての操作は共有ストア上の部屋ドキュメントへの
// 部分更新として適用され、不変条件は各更新の形（と条件付き書き込みの Guard）で守られます。
package race

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"wikirace/models"
	"wikirace/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RoomsNamespace は共有ストア上の部屋の置き場所です
const RoomsNamespace = "rooms"

// DataSource は開始ページとテーマの一覧を返します（gamedata.Cache）
type DataSource interface {
	Snapshot(ctx context.Context) (*models.WikiData, error)
}

// ResultRecorder はゲーム結果をランキングに渡します（ranking.Aggregator）
type ResultRecorder interface {
	RecordResult(ctx context.Context, nick string, timeMs int64, clicks int, isWin bool, theme string) (models.RankingEntry, error)
}

// Coordinator は部屋の操作を提供します。状態は全て共有ストアにあり、
// 複数のプロセスが同じストアに対して同時に動いても構いません。
type Coordinator struct {
	store   store.Store
	data    DataSource
	ranking ResultRecorder
	logger  *zap.Logger

	minWinTime  time.Duration
	maxAttempts int
	now         func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Coordinator)

// WithRanking はゴール時に結果を記録する先を設定します
func WithRanking(r ResultRecorder) Option {
	return func(c *Coordinator) { c.ranking = r }
}

// WithMinWinTime はゴール報告として認める最短時間です
func WithMinWinTime(d time.Duration) Option {
	return func(c *Coordinator) { c.minWinTime = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func WithRand(rng *rand.Rand) Option {
	return func(c *Coordinator) { c.rng = rng }
}

// WithMaxAttempts は条件付き書き込みが競合した時の再試行回数の上限です
func WithMaxAttempts(n int) Option {
	return func(c *Coordinator) { c.maxAttempts = n }
}

func NewCoordinator(st store.Store, data DataSource, logger *zap.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       st,
		data:        data,
		logger:      logger,
		minWinTime:  time.Second,
		maxAttempts: 32,
		now:         time.Now,
		rng:         createLocalRandGenerator(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// 部屋コードの生成に使う乱数生成器。*rand.Rand は並行に使えないので mu で守る
func createLocalRandGenerator() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

func (c *Coordinator) nowMs() int64 {
	return c.now().UnixMilli()
}

// newCode は 10000〜99999 の5桁のコードを返します
func (c *Coordinator) newCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprint(10000 + c.rng.Intn(90000))
}

func (c *Coordinator) withRand(fn func(rng *rand.Rand)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.rng)
}

func newPlayerID() string {
	return "p_" + uuid.NewString()
}

func roomPath(code string) string {
	return store.Join(RoomsNamespace, code)
}

// ValidCode はコードが5桁の数字かどうかです。それ以外はストアのパスとして使いません
func ValidCode(code string) bool {
	if len(code) != 5 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// decodeRoom は部屋ドキュメントを構造体と、Guard に使う生の値の両方に読み込みます
func decodeRoom(raw []byte) (*models.Room, map[string]any, error) {
	var room models.Room
	if err := json.Unmarshal(raw, &room); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", store.ErrCorrupt, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", store.ErrCorrupt, err)
	}
	if room.Players == nil {
		room.Players = map[string]*models.Player{}
	}
	return &room, doc, nil
}

func (c *Coordinator) load(ctx context.Context, code string) (*models.Room, map[string]any, error) {
	if !ValidCode(code) {
		return nil, nil, fmt.Errorf("%w: %q", ErrRoomNotFound, code)
	}
	raw, err := c.store.Get(ctx, roomPath(code))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	if err != nil {
		return nil, nil, storeError(err)
	}
	room, doc, err := decodeRoom(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("room %s: %w", code, err)
	}
	room.Code = code
	return room, doc, nil
}

// retry は fn が ErrConditionFailed を返す間、読み直しから再試行します
func (c *Coordinator) retry(ctx context.Context, op, code string, fn func() error) error {
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		err := fn()
		if !errors.Is(err, store.ErrConditionFailed) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Debug("Conditional write raced, retrying",
			zap.String("op", op), zap.String("code", code), zap.Int("attempt", attempt))
	}
	c.logger.Warn("Gave up after repeated contention", zap.String("op", op), zap.String("code", code))
	return fmt.Errorf("%w: %s room %s", ErrContention, op, code)
}

// GetRoom は部屋の現在の状態を返します
func (c *Coordinator) GetRoom(ctx context.Context, code string) (*models.Room, error) {
	room, _, err := c.load(ctx, code)
	return room, err
}
