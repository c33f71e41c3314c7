package store

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore はプロセス内で完結する Store の実装です。
// テストと単一プロセスでの開発用。全ての書き込みは一つのミューテックスで直列化されます。
type MemoryStore struct {
	mu       sync.Mutex
	data     map[string][]byte
	watchers map[string]map[*mailbox]struct{}
}

// NewMemoryStore は空の MemoryStore を作成します
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:     make(map[string][]byte),
		watchers: make(map[string]map[*mailbox]struct{}),
	}
}

func (m *MemoryStore) Get(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok := m.data[path]
	if !ok {
		return nil, ErrNotFound
	}
	// 呼び出し側による変更を防ぐためコピーを返す
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (m *MemoryStore) Set(ctx context.Context, path string, value any) error {
	return m.SetIf(ctx, path, nil, value)
}

func (m *MemoryStore) SetIf(ctx context.Context, path string, guard Guard, value any) error {
	return m.commit(path, func(cur []byte, exists bool) (mutation, error) {
		return planSet(cur, exists, guard, value)
	})
}

func (m *MemoryStore) Update(ctx context.Context, path string, fields map[string]any) error {
	return m.UpdateIf(ctx, path, nil, fields)
}

func (m *MemoryStore) UpdateIf(ctx context.Context, path string, guard Guard, fields map[string]any) error {
	return m.commit(path, func(cur []byte, exists bool) (mutation, error) {
		return planUpdate(cur, exists, guard, fields)
	})
}

func (m *MemoryStore) Remove(ctx context.Context, path string) error {
	return m.RemoveIf(ctx, path, nil)
}

func (m *MemoryStore) RemoveIf(ctx context.Context, path string, guard Guard) error {
	return m.commit(path, func(cur []byte, exists bool) (mutation, error) {
		return planRemove(cur, exists, guard)
	})
}

func (m *MemoryStore) List(ctx context.Context, namespace string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := strings.TrimSuffix(namespace, "/") + "/"
	paths := make([]string, 0)
	for path := range m.data {
		rest, ok := strings.CutPrefix(path, prefix)
		if ok && rest != "" && !strings.Contains(rest, "/") {
			paths = append(paths, path)
		}
	}
	return paths, nil
}

func (m *MemoryStore) Watch(ctx context.Context, path string) (<-chan Snapshot, error) {
	box := newMailbox()
	out := make(chan Snapshot)

	m.mu.Lock()
	if m.watchers[path] == nil {
		m.watchers[path] = make(map[*mailbox]struct{})
	}
	m.watchers[path][box] = struct{}{}
	value, exists := m.data[path]
	box.offer(snapshotOf(path, value, exists))
	m.mu.Unlock()

	go box.run(ctx, out)
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.watchers[path], box)
		if len(m.watchers[path]) == 0 {
			delete(m.watchers, path)
		}
		m.mu.Unlock()
	}()
	return out, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// commit は現在値を読み、plan の結果を書き込み、購読者に通知するまでをロック内で行います
func (m *MemoryStore) commit(path string, plan func(cur []byte, exists bool) (mutation, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, exists := m.data[path]
	mut, err := plan(cur, exists)
	if err != nil {
		return err
	}

	switch {
	case mut.noop:
		return nil
	case mut.remove:
		delete(m.data, path)
		m.notifyLocked(path, nil, false)
	default:
		m.data[path] = mut.value
		m.notifyLocked(path, mut.value, true)
	}
	return nil
}

func (m *MemoryStore) notifyLocked(path string, value []byte, exists bool) {
	for box := range m.watchers[path] {
		box.offer(snapshotOf(path, value, exists))
	}
}
