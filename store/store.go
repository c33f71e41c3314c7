// Package store は部屋とランキングのドキュメントを保持する共有ストアです。
//
// どのクライアントも同じドキュメントに独立して書き込むため、並行制御は
// ドキュメント単位のアトミックな部分更新と条件付き書き込みだけで行います。
package store

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound はドキュメントが存在しない場合に返されます
	ErrNotFound = errors.New("store: document not found")
	// ErrConditionFailed は Guard の条件がコミット時点で満たされなかった場合に返されます
	ErrConditionFailed = errors.New("store: condition failed")
	// ErrUnavailable はストアへの接続が一時的に失敗した場合に返されます
	ErrUnavailable = errors.New("store: unavailable")
	// ErrCorrupt はドキュメントや書き込む値がJSONとして扱えない場合に返されます
	ErrCorrupt = errors.New("store: corrupt document")
	// ErrConflict は楽観的トランザクションが再試行の上限まで競合し続けた場合に返されます
	ErrConflict = errors.New("store: too many concurrent writers")
)

// Guard はフィールドパスと、そのフィールドが現在持っているべき値の組です。
// 値が nil の場合はフィールドが存在しないことを要求します。
// 空のパス "" はドキュメント全体を指します。
type Guard map[string]any

// Snapshot はWatchで配信されるドキュメントの最新状態です。
// Exists が false の通知は「ドキュメントが削除された」ことを表す終端イベントです。
type Snapshot struct {
	Path   string
	Value  []byte
	Exists bool
}

// Store は共有ストアの契約です。全てのメソッドは並行に呼び出して安全です。
type Store interface {
	// Get は path のドキュメントをJSONで返します。存在しない場合は ErrNotFound
	Get(ctx context.Context, path string) ([]byte, error)
	// Set はドキュメント全体を value で置き換えます
	Set(ctx context.Context, path string, value any) error
	// Update は fields に含まれるフィールドだけをアトミックに書き換えます。
	// nil の値はフィールドの削除です。ドキュメントが存在しない場合は ErrNotFound
	Update(ctx context.Context, path string, fields map[string]any) error
	// Remove はドキュメントを削除します。存在しなくてもエラーにはなりません
	Remove(ctx context.Context, path string) error
	// List は namespace 直下のドキュメントパスを返します。順序は保証されません
	List(ctx context.Context, namespace string) ([]string, error)
	// Watch は現在値を即座に一度、その後は変更のたびに最新の全体値を配信します
	Watch(ctx context.Context, path string) (<-chan Snapshot, error)

	// UpdateIf は guard が成立している場合に限り Update を行います
	UpdateIf(ctx context.Context, path string, guard Guard, fields map[string]any) error
	// SetIf は guard が成立している場合に限り Set を行います
	SetIf(ctx context.Context, path string, guard Guard, value any) error
	// RemoveIf は guard が成立している場合に限り Remove を行います
	RemoveIf(ctx context.Context, path string, guard Guard) error

	// Ping はストアへの疎通を確認します
	Ping(ctx context.Context) error
}

// Join はパスの要素をスラッシュで連結します
func Join(parts ...string) string {
	return strings.Join(parts, "/")
}

// Key はパスの最後の要素を返します（例: "rooms/12345" → "12345"）
func Key(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
