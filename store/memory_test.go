package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	return doc
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("get missing document", func(t *testing.T) {
		s := NewMemoryStore()
		_, err := s.Get(ctx, "rooms/12345")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("set and get", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Set(ctx, "rooms/12345", map[string]any{"code": "12345", "maxPlayers": 4}))

		raw, err := s.Get(ctx, "rooms/12345")
		require.NoError(t, err)
		doc := decode(t, raw)
		assert.Equal(t, "12345", doc["code"])
		assert.Equal(t, float64(4), doc["maxPlayers"])
	})

	t.Run("update touches only listed fields", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Set(ctx, "rooms/1", map[string]any{
			"name":    "a",
			"players": map[string]any{"p1": map[string]any{"id": "p1", "clicks": 0}},
		}))

		require.NoError(t, s.Update(ctx, "rooms/1", map[string]any{
			"players/p1/clicks": 3,
			"players/p2":        map[string]any{"id": "p2"},
		}))

		raw, err := s.Get(ctx, "rooms/1")
		require.NoError(t, err)
		doc := decode(t, raw)
		assert.Equal(t, "a", doc["name"])
		players := doc["players"].(map[string]any)
		assert.Equal(t, float64(3), players["p1"].(map[string]any)["clicks"])
		assert.Equal(t, "p2", players["p2"].(map[string]any)["id"])
	})

	t.Run("nil value deletes field", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Set(ctx, "rooms/1", map[string]any{
			"players": map[string]any{"p1": map[string]any{"id": "p1"}, "p2": map[string]any{"id": "p2"}},
		}))
		require.NoError(t, s.Update(ctx, "rooms/1", map[string]any{"players/p1": nil}))

		raw, _ := s.Get(ctx, "rooms/1")
		players := decode(t, raw)["players"].(map[string]any)
		assert.NotContains(t, players, "p1")
		assert.Contains(t, players, "p2")
	})

	t.Run("update never creates a document", func(t *testing.T) {
		s := NewMemoryStore()
		err := s.Update(ctx, "rooms/1", map[string]any{"lastActivityAt": 1})
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.Get(ctx, "rooms/1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Set(ctx, "rooms/1", map[string]any{"a": 1}))
		require.NoError(t, s.Remove(ctx, "rooms/1"))
		require.NoError(t, s.Remove(ctx, "rooms/1"))
		_, err := s.Get(ctx, "rooms/1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list returns direct children only", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Set(ctx, "rooms/1", 1))
		require.NoError(t, s.Set(ctx, "rooms/2", 2))
		require.NoError(t, s.Set(ctx, "rankings/bob", 3))

		paths, err := s.List(ctx, "rooms")
		require.NoError(t, err)
		sort.Strings(paths)
		assert.Equal(t, []string{"rooms/1", "rooms/2"}, paths)
	})
}

func TestMemoryStoreGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("set if absent", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.SetIf(ctx, "rooms/1", Guard{"": nil}, map[string]any{"v": 1}))
		err := s.SetIf(ctx, "rooms/1", Guard{"": nil}, map[string]any{"v": 2})
		assert.ErrorIs(t, err, ErrConditionFailed)

		raw, _ := s.Get(ctx, "rooms/1")
		assert.Equal(t, float64(1), decode(t, raw)["v"])
	})

	t.Run("update if field absent", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Set(ctx, "rooms/1", map[string]any{"phase": "playing"}))

		require.NoError(t, s.UpdateIf(ctx, "rooms/1", Guard{"winner": nil}, map[string]any{"winner": map[string]any{"nick": "a"}}))
		err := s.UpdateIf(ctx, "rooms/1", Guard{"winner": nil}, map[string]any{"winner": map[string]any{"nick": "b"}})
		assert.ErrorIs(t, err, ErrConditionFailed)

		raw, _ := s.Get(ctx, "rooms/1")
		assert.Equal(t, "a", decode(t, raw)["winner"].(map[string]any)["nick"])
	})

	t.Run("guard compares numbers after json normalization", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Set(ctx, "rankings/a", map[string]any{"totalGames": int64(3)}))
		require.NoError(t, s.UpdateIf(ctx, "rankings/a", Guard{"totalGames": 3}, map[string]any{"totalGames": 4}))
		err := s.UpdateIf(ctx, "rankings/a", Guard{"totalGames": 3}, map[string]any{"totalGames": 5})
		assert.ErrorIs(t, err, ErrConditionFailed)
	})

	t.Run("guard on nested map", func(t *testing.T) {
		s := NewMemoryStore()
		players := map[string]any{"p1": map[string]any{"id": "p1"}}
		require.NoError(t, s.Set(ctx, "rooms/1", map[string]any{"players": players}))
		require.NoError(t, s.Update(ctx, "rooms/1", map[string]any{"players/p2": map[string]any{"id": "p2"}}))

		err := s.RemoveIf(ctx, "rooms/1", Guard{"players": players})
		assert.ErrorIs(t, err, ErrConditionFailed)
		_, err = s.Get(ctx, "rooms/1")
		assert.NoError(t, err)
	})

	t.Run("remove if guard holds", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Set(ctx, "rooms/1", map[string]any{"lastActivityAt": 100}))
		require.NoError(t, s.RemoveIf(ctx, "rooms/1", Guard{"lastActivityAt": 100}))
		_, err := s.Get(ctx, "rooms/1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("corrupt document", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Set(ctx, "rooms/1", "not an object"))
		err := s.Update(ctx, "rooms/1", map[string]any{"a": 1})
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}

func TestMemoryStoreConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "rooms/1", map[string]any{"players": map[string]any{}}))

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("p%d", i)
			assert.NoError(t, s.Update(ctx, "rooms/1", map[string]any{"players/" + id: map[string]any{"id": id}}))
		}(i)
	}
	wg.Wait()

	raw, err := s.Get(ctx, "rooms/1")
	require.NoError(t, err)
	assert.Len(t, decode(t, raw)["players"], writers)
}

func TestMemoryStoreWatch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "rooms/1", map[string]any{"phase": "waiting"}))

	ch, err := s.Watch(ctx, "rooms/1")
	require.NoError(t, err)

	first := <-ch
	assert.True(t, first.Exists)
	assert.Equal(t, "waiting", decode(t, first.Value)["phase"])

	require.NoError(t, s.Update(ctx, "rooms/1", map[string]any{"phase": "playing"}))
	second := <-ch
	assert.Equal(t, "playing", decode(t, second.Value)["phase"])

	require.NoError(t, s.Remove(ctx, "rooms/1"))
	last := <-ch
	assert.False(t, last.Exists)
	assert.Equal(t, "rooms/1", last.Path)
}

func TestMemoryStoreWatchMissingDocument(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewMemoryStore()

	ch, err := s.Watch(ctx, "rooms/404")
	require.NoError(t, err)
	snap := <-ch
	assert.False(t, snap.Exists)

	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "12345", Key("rooms/12345"))
	assert.Equal(t, "rooms/12345", Join("rooms", "12345"))
	assert.Equal(t, "plain", Key("plain"))
}
