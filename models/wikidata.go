package models

import (
	"encoding/json"
	"fmt"
)

// Theme は目的地のページ（表示タイトルとスラッグ）です
type Theme struct {
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

// MarshalJSON は元データと同じ [title, slug] 形式で書き出します
func (t Theme) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{t.Title, t.Slug})
}

// UnmarshalJSON は [title, slug] の配列を読み込みます
func (t *Theme) UnmarshalJSON(b []byte) error {
	var pair []string
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) < 2 {
		return fmt.Errorf("theme must be a [title, slug] pair, got %d elements", len(pair))
	}
	t.Title, t.Slug = pair[0], pair[1]
	return nil
}

// WikiData は開始ページ候補とテーマ候補の一覧です。プロセスの生存中は不変として扱います
type WikiData struct {
	StartPages []string `json:"startPages"`
	Themes     []Theme  `json:"themes"`
}

// UnmarshalJSON は startPages の他に旧形式の startUrls も受け付けます
func (w *WikiData) UnmarshalJSON(b []byte) error {
	var raw struct {
		StartPages []string `json:"startPages"`
		StartURLs  []string `json:"startUrls"`
		Themes     []Theme  `json:"themes"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	w.StartPages = raw.StartPages
	if len(w.StartPages) == 0 {
		w.StartPages = raw.StartURLs
	}
	w.Themes = raw.Themes
	return nil
}
