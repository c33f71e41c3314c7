package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"wikirace/gamedata"
	"wikirace/models"
	"wikirace/race"

	"go.uber.org/zap"
)

var (
	// ErrRoomClosed は購読中の部屋が無くなったことです
	ErrRoomClosed = errors.New("session: room closed")
	// ErrNotOwner はオーナーではないプレイヤーがゲームを開始しようとした場合です
	ErrNotOwner = errors.New("session: only the owner can start the game")
	// ErrNoRoomState は部屋の状態をまだ一度も受け取っていない場合です
	ErrNoRoomState = errors.New("session: room state not received yet")
)

// Coordinator はセッションが使う部屋の操作です（race.Coordinator）
type Coordinator interface {
	StartGame(ctx context.Context, code string) error
	ReportProgress(ctx context.Context, code, playerID string, clicks int) error
	ReportWin(ctx context.Context, code, playerID, nick string, timeMs int64, clicks int, stopOnFirstWin bool) error
	Heartbeat(ctx context.Context, code string) error
	LeaveRoom(ctx context.Context, code, playerID string) error
}

type Options struct {
	HeartbeatInterval time.Duration
	ProgressDebounce  time.Duration
	RequestTimeout    time.Duration
}

func DefaultOptions() Options {
	return Options{
		HeartbeatInterval: 5 * time.Second,
		ProgressDebounce:  500 * time.Millisecond,
		RequestTimeout:    5 * time.Second,
	}
}

// Session は部屋に参加している一人のプレイヤーです。
// 部屋の最新の状態は Run に渡したイベントから受け取り、操作は Coordinator に送ります。
type Session struct {
	coord    Coordinator
	code     string
	playerID string
	nick     string
	opts     Options
	logger   *zap.Logger
	now      func() time.Time

	progress *Debouncer

	mu       sync.Mutex
	room     *models.Room
	page     string
	clicks   int
	finished bool
}

func New(coord Coordinator, code, playerID, nick string, opts Options, logger *zap.Logger) *Session {
	s := &Session{
		coord:    coord,
		code:     code,
		playerID: playerID,
		nick:     nick,
		opts:     opts,
		logger:   logger.With(zap.String("code", code), zap.String("playerId", playerID)),
		now:      time.Now,
	}
	s.progress = NewDebouncer(opts.ProgressDebounce, s.sendProgress)
	return s
}

func (s *Session) sendProgress(clicks int) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	defer cancel()
	if err := s.coord.ReportProgress(ctx, s.code, s.playerID, clicks); err != nil {
		s.logger.Warn("Failed to sync clicks", zap.Int("clicks", clicks), zap.Error(err))
	}
}

// Room は最後に受け取った部屋の状態です
func (s *Session) Room() *models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Clicks は手元で数えたクリック数です
func (s *Session) Clicks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clicks
}

func (s *Session) apply(room *models.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.room
	s.room = room
	if room.Phase == models.PhasePlaying && (prev == nil || prev.Phase != models.PhasePlaying) {
		s.page = room.StartPage
		s.clicks = 0
	}
}

func (s *Session) playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room != nil && s.room.Phase == models.PhasePlaying && !s.finished
}

// Run は部屋のイベントを受け取り続け、プレイ中は一定間隔でハートビートを送ります。
// 部屋が閉じたら ErrRoomClosed、ctx が終わったら ctx.Err() を返します。
func (s *Session) Run(ctx context.Context, events <-chan Event) error {
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrRoomClosed
			}
			if ev.Kind == Closed {
				s.progress.Stop()
				s.logger.Info("Room closed")
				return ErrRoomClosed
			}
			s.apply(ev.Room)
		case <-ticker.C:
			if !s.playing() {
				continue
			}
			if err := s.coord.Heartbeat(ctx, s.code); err != nil {
				s.logger.Warn("Heartbeat failed", zap.Error(err))
			}
		}
	}
}

// Start はゲームを開始します。手元で見えている ownerId が自分でなければ送信しません
func (s *Session) Start(ctx context.Context) error {
	room := s.Room()
	if room == nil {
		return ErrNoRoomState
	}
	if room.OwnerID != s.playerID {
		return ErrNotOwner
	}
	return s.coord.StartGame(ctx, s.code)
}

// Navigate はページの移動を一回のクリックとして数えます。
// 移動先が自分の目的地ならゴールとして報告し true を返します。
func (s *Session) Navigate(ctx context.Context, slug string) (bool, error) {
	s.mu.Lock()
	room := s.room
	if room == nil || room.Phase == models.PhaseWaiting {
		s.mu.Unlock()
		return false, race.ErrGameNotInProgress
	}
	if s.finished {
		s.mu.Unlock()
		return true, nil
	}
	s.clicks++
	s.page = slug
	clicks := s.clicks
	target := room.Target(s.playerID)
	reached := gamedata.SameTitle(slug, target.Slug) || gamedata.SameTitle(slug, target.Title)
	if reached {
		s.finished = true
	}
	s.mu.Unlock()

	if !reached {
		s.progress.Push(clicks)
		return false, nil
	}

	s.progress.Stop()
	elapsed := s.now().UnixMilli() - room.StartedAt
	err := s.coord.ReportWin(ctx, s.code, s.playerID, s.nick, elapsed, clicks, room.StopOnFirstWin)
	if err != nil {
		s.logger.Error("Failed to report win", zap.Int64("timeMs", elapsed), zap.Error(err))
		return true, err
	}
	s.logger.Info("Target reached", zap.Int64("timeMs", elapsed), zap.Int("clicks", clicks))
	return true, nil
}

// Leave は保留中のクリック数を送ってから部屋を出ます
func (s *Session) Leave(ctx context.Context) error {
	s.progress.Flush()
	s.progress.Stop()
	return s.coord.LeaveRoom(ctx, s.code, s.playerID)
}
