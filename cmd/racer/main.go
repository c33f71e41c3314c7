// racer は端末から部屋に参加するプレイヤー側のクライアントです。
// サーバーと同じ共有ストア（Redis）に直接つなぎ、標準入力の各行をページの移動として扱います。
//
//	racer -config config.json -nick ana            部屋を作る
//	racer -config config.json -nick bia -room 12345 部屋に入る
//
// 入力: "start" でゲーム開始、"leave" で退室、それ以外は移動先のページ名
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"wikirace/database"
	"wikirace/gamedata"
	"wikirace/models"
	"wikirace/race"
	"wikirace/ranking"
	"wikirace/session"
	"wikirace/store"
	"wikirace/utils"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.json", "設定ファイル（.json / .yaml）")
	nick := flag.String("nick", "", "ニックネーム")
	code := flag.String("room", "", "参加する部屋のコード（省略すると新しく作る）")
	private := flag.Bool("private", false, "作る部屋をロビーに表示しない")
	flag.Parse()

	config, err := database.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "設定ファイルの読み込みに失敗しました:", err)
		os.Exit(1)
	}
	logger, err := utils.InitLogger(config.Log.Development)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(config, *nick, *code, *private, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("racer stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(config models.Config, nick, code string, private bool, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := database.InitRedis(config.Redis, logger)
	if err != nil {
		return err
	}
	defer rdb.Close()
	st := store.NewRedisStore(rdb, config.Redis.KeyPrefix, logger)

	var source gamedata.Source = gamedata.FileSource{Path: config.GameData.File}
	if config.GameData.URL != "" {
		source = gamedata.NewHTTPSource(config.GameData.URL, config.GameData.Timeout.Std())
	}
	opts := []race.Option{race.WithMinWinTime(config.Race.MinWinTime.Std())}
	// Postgres を使う構成ではサーバー側と同じ表に書けないので、ランキングは共有ストアの時だけ記録する
	if config.Ranking.Backend == "store" {
		agg := ranking.NewAggregator(ranking.NewStoreRepository(st, logger), config.Ranking.DefaultLimit, logger)
		opts = append(opts, race.WithRanking(agg))
	}
	coord := race.NewCoordinator(st, gamedata.NewCache(source, logger), logger, opts...)

	var playerID string
	if code == "" {
		cfg := models.RoomConfig{Visibility: models.VisibilityPublic}
		if private {
			cfg.Visibility = models.VisibilityPrivate
		}
		code, playerID, err = coord.CreateRoom(ctx, cfg, nick)
	} else {
		playerID, err = coord.JoinRoom(ctx, code, nick)
	}
	if err != nil {
		return err
	}
	fmt.Printf("room %s (player %s)\n", code, playerID)

	events, err := session.WatchRoom(ctx, st, code, logger)
	if err != nil {
		return err
	}
	sess := session.New(coord, code, playerID, nick, session.Options{
		HeartbeatInterval: config.Race.HeartbeatInterval.Std(),
		ProgressDebounce:  config.Race.ProgressDebounce.Std(),
		RequestTimeout:    session.DefaultOptions().RequestTimeout,
	}, logger)

	// 部屋の変化を画面に出しつつセッションに渡す
	view := make(chan session.Event)
	go func() {
		defer close(view)
		for ev := range events {
			printEvent(ev, playerID)
			select {
			case view <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(ctx, view) }()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	for {
		select {
		case err := <-runErr:
			return err
		case line, ok := <-lines:
			if !ok || line == "leave" {
				return sess.Leave(context.Background())
			}
			if err := handleLine(ctx, sess, line); err != nil {
				fmt.Println("error:", err)
			}
		}
	}
}

func handleLine(ctx context.Context, sess *session.Session, line string) error {
	switch line {
	case "":
		return nil
	case "start":
		return sess.Start(ctx)
	}
	reached, err := sess.Navigate(ctx, line)
	if err != nil {
		return err
	}
	if reached {
		fmt.Printf("goal! %d clicks\n", sess.Clicks())
	}
	return nil
}

func printEvent(ev session.Event, playerID string) {
	if ev.Kind == session.Closed {
		fmt.Println("room closed")
		return
	}
	room := ev.Room
	target := room.Target(playerID)
	fmt.Printf("[%s] %d/%d players, owner %s, %s -> %s\n",
		room.Phase, len(room.Players), room.MaxPlayers, room.OwnerID, room.StartPage, target.Title)
	if room.Winner != nil {
		fmt.Printf("winner: %s %s (%d clicks)\n", room.Winner.Nick, room.Winner.TimeStr, room.Winner.Clicks)
	}
}
