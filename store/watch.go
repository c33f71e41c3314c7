package store

import (
	"context"
	"sync"
)

// mailbox は一つのWatch購読者への配信口です。
// 書き込み側をブロックしないよう、未配信の通知は最新のものだけを保持します。
// 購読者は全ての通知を「現在の全体値」として扱うため、途中の状態を飛ばしても問題ありません。
type mailbox struct {
	mu      sync.Mutex
	pending *Snapshot
	notify  chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (m *mailbox) offer(s Snapshot) {
	m.mu.Lock()
	m.pending = &s
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// run は ctx がキャンセルされるまで通知を out に転送し、最後に out を閉じます
func (m *mailbox) run(ctx context.Context, out chan<- Snapshot) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.notify:
			m.mu.Lock()
			s := m.pending
			m.pending = nil
			m.mu.Unlock()
			if s == nil {
				continue
			}
			select {
			case out <- *s:
			case <-ctx.Done():
				return
			}
		}
	}
}

func snapshotOf(path string, value []byte, exists bool) Snapshot {
	if !exists {
		return Snapshot{Path: path}
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	return Snapshot{Path: path, Value: cp, Exists: true}
}
