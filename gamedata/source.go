// Package gamedata は開始ページとテーマの候補一覧（WikiData）を取得・保持します。
// 一覧はプロセスの生存中は不変のスナップショットとして扱い、再起動時にのみ更新されます。
package gamedata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"wikirace/models"
)

// ErrDataUnavailable は候補一覧を取得できなかった場合に返されます
var ErrDataUnavailable = errors.New("gamedata: data unavailable")

// Source は候補一覧の取得元です
type Source interface {
	Fetch(ctx context.Context) (*models.WikiData, error)
}

// HTTPSource はURLからJSONを取得します
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{URL: url, Client: &http.Client{Timeout: timeout}}
}

func (s *HTTPSource) Fetch(ctx context.Context) (*models.WikiData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataUnavailable, err)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", ErrDataUnavailable, s.URL, resp.StatusCode)
	}

	var data models.WikiData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrDataUnavailable, s.URL, err)
	}
	return validate(&data)
}

// FileSource はローカルのJSONファイルを読みます（開発・オフライン用）
type FileSource struct {
	Path string
}

func (s FileSource) Fetch(ctx context.Context) (*models.WikiData, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataUnavailable, err)
	}
	var data models.WikiData
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrDataUnavailable, s.Path, err)
	}
	return validate(&data)
}

// Static は固定の一覧を返します。テストで使います
type Static struct {
	Data models.WikiData
}

func (s Static) Fetch(ctx context.Context) (*models.WikiData, error) {
	data := s.Data
	return validate(&data)
}

// validate は候補が一つも無い一覧を取得失敗として扱います
func validate(data *models.WikiData) (*models.WikiData, error) {
	if len(data.StartPages) == 0 {
		return nil, fmt.Errorf("%w: no start pages", ErrDataUnavailable)
	}
	if len(data.Themes) == 0 {
		return nil, fmt.Errorf("%w: no themes", ErrDataUnavailable)
	}
	return data, nil
}
