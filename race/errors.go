package race

import (
	"errors"
	"fmt"

	"wikirace/store"
)

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomFull           = errors.New("room is full")
	ErrGameAlreadyStarted = errors.New("game already started")
	ErrGameNotInProgress  = errors.New("game not in progress")
	ErrPlayerNotFound     = errors.New("player not found in room")
	ErrImplausibleResult  = errors.New("implausible result")
	ErrInvalidConfig      = errors.New("invalid room config")
	ErrInvalidNick        = errors.New("nickname required")
	// ErrDataUnavailable は開始ページ・テーマの一覧を取得できなかった場合です
	ErrDataUnavailable = errors.New("game data unavailable")
	// ErrStoreUnavailable は共有ストアへの一時的な接続失敗です。部屋が無いこととは区別します
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrContention は条件付き書き込みが再試行の上限まで競合し続けた場合です
	ErrContention = errors.New("too many concurrent updates")
)

// storeError はストアのエラーを呼び出し側に見せる種類に変換します
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrUnavailable):
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: %w", ErrContention, err)
	}
	return err
}

// writeError は部屋への書き込みのエラーを変換します。
// ErrConditionFailed はそのまま返し、呼び出し側が読み直して再試行します。
func writeError(err error, code string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrConditionFailed):
		return err
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	return storeError(err)
}
