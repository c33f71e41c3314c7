package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const defaultTxRetries = 16

// RedisStore はRedis上の Store の実装です。
// 各ドキュメントはJSON文字列として <prefix><path> に保存されます。
// 部分更新と条件付き書き込みは WATCH/MULTI の楽観的トランザクションで行い、
// 変更通知は同じトランザクション内で <prefix>watch:<path> にPUBLISHします。
type RedisStore struct {
	rdb       *redis.Client
	prefix    string
	txRetries int
	logger    *zap.Logger
}

// NewRedisStore はRedisクライアントから RedisStore を作成します
func NewRedisStore(rdb *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		rdb:       rdb,
		prefix:    prefix,
		txRetries: defaultTxRetries,
		logger:    logger,
	}
}

func (s *RedisStore) key(path string) string     { return s.prefix + path }
func (s *RedisStore) channel(path string) string { return s.prefix + "watch:" + path }

func (s *RedisStore) Get(ctx context.Context, path string) ([]byte, error) {
	value, err := s.rdb.Get(ctx, s.key(path)).Bytes()
	if err != nil {
		return nil, classify(err)
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, path string, value any) error {
	return s.SetIf(ctx, path, nil, value)
}

func (s *RedisStore) SetIf(ctx context.Context, path string, guard Guard, value any) error {
	return s.transact(ctx, path, func(cur []byte, exists bool) (mutation, error) {
		return planSet(cur, exists, guard, value)
	})
}

func (s *RedisStore) Update(ctx context.Context, path string, fields map[string]any) error {
	return s.UpdateIf(ctx, path, nil, fields)
}

func (s *RedisStore) UpdateIf(ctx context.Context, path string, guard Guard, fields map[string]any) error {
	return s.transact(ctx, path, func(cur []byte, exists bool) (mutation, error) {
		return planUpdate(cur, exists, guard, fields)
	})
}

func (s *RedisStore) Remove(ctx context.Context, path string) error {
	return s.RemoveIf(ctx, path, nil)
}

func (s *RedisStore) RemoveIf(ctx context.Context, path string, guard Guard) error {
	return s.transact(ctx, path, func(cur []byte, exists bool) (mutation, error) {
		return planRemove(cur, exists, guard)
	})
}

func (s *RedisStore) List(ctx context.Context, namespace string) ([]string, error) {
	prefix := s.key(strings.TrimSuffix(namespace, "/") + "/")
	var paths []string
	iter := s.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		rest := strings.TrimPrefix(iter.Val(), prefix)
		if rest == "" || strings.Contains(rest, "/") {
			continue
		}
		paths = append(paths, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, classify(err)
	}
	return paths, nil
}

// Watch は購読を先に確立してから現在値を読むため、その間の変更を取りこぼしません。
// 同じ値が二度届くことはありますが、購読者は冪等に扱う前提です。
func (s *RedisStore) Watch(ctx context.Context, path string) (<-chan Snapshot, error) {
	pubsub := s.rdb.Subscribe(ctx, s.channel(path))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, classify(err)
	}

	box := newMailbox()
	value, err := s.Get(ctx, path)
	switch {
	case errors.Is(err, ErrNotFound):
		box.offer(snapshotOf(path, nil, false))
	case err != nil:
		pubsub.Close()
		return nil, err
	default:
		box.offer(snapshotOf(path, value, true))
	}

	out := make(chan Snapshot)
	go box.run(ctx, out)
	go func() {
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				if msg.Payload == "" {
					box.offer(snapshotOf(path, nil, false))
				} else {
					box.offer(snapshotOf(path, []byte(msg.Payload), true))
				}
			}
		}
	}()
	return out, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return classify(s.rdb.Ping(ctx).Err())
}

// transact は WATCH で現在値を読み、plan の結果を MULTI/EXEC で書き込みます。
// 他のクライアントが間に書き込んだ場合は読み直して再試行します。
func (s *RedisStore) transact(ctx context.Context, path string, plan func(cur []byte, exists bool) (mutation, error)) error {
	key := s.key(path)
	channel := s.channel(path)

	for attempt := 0; attempt < s.txRetries; attempt++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := tx.Get(ctx, key).Bytes()
			exists := true
			if err == redis.Nil {
				exists = false
				cur = nil
			} else if err != nil {
				return err
			}

			mut, err := plan(cur, exists)
			if err != nil {
				return err
			}
			if mut.noop {
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if mut.remove {
					pipe.Del(ctx, key)
					pipe.Publish(ctx, channel, "")
				} else {
					pipe.Set(ctx, key, mut.value, 0)
					pipe.Publish(ctx, channel, mut.value)
				}
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			s.logger.Debug("Redisトランザクションの競合、再試行します", zap.String("path", path), zap.Int("attempt", attempt+1))
			continue
		}
		return classify(err)
	}
	return fmt.Errorf("%w: %s", ErrConflict, path)
}

// classify はRedisのエラーをストアのエラーに変換します
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case err == redis.Nil:
		return ErrNotFound
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConditionFailed), errors.Is(err, ErrCorrupt):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		// サーバーがコマンドを拒否した場合（WRONGTYPEなど）
		return fmt.Errorf("redis: %w", err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
