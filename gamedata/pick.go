package gamedata

import (
	"math/rand"
	"net/url"
	"strings"
	"unicode"

	"wikirace/models"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// PickStartPage は開始ページを一つ選びます。data は検証済みで空でないこと
func PickStartPage(rng *rand.Rand, data *models.WikiData) string {
	return data.StartPages[rng.Intn(len(data.StartPages))]
}

// PickTheme は目的地のテーマを一つ選びます
func PickTheme(rng *rand.Rand, data *models.WikiData) models.Theme {
	return data.Themes[rng.Intn(len(data.Themes))]
}

// NormalizeTitle はページタイトルやスラッグを比較用の形に揃えます。
// URLデコード、アンダースコアを空白に、アクセント記号の除去、小文字化。
func NormalizeTitle(s string) string {
	if decoded, err := url.PathUnescape(s); err == nil {
		s = decoded
	}
	s = strings.ReplaceAll(s, "_", " ")
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if stripped, _, err := transform.String(t, s); err == nil {
		s = stripped
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// SameTitle は二つのタイトルが同じページを指すかどうかです
func SameTitle(a, b string) bool {
	return NormalizeTitle(a) == NormalizeTitle(b)
}
