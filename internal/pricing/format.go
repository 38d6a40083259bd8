package pricing

import (
	"strings"

	"github.com/dustin/go-humanize"
)

// CurrencySuffix は表示価格の通貨表記。
const CurrencySuffix = " so'm"

// FormatPrice は金額を3桁区切り（空白）の表示用文字列に変換する。
// 例: 17500000 -> "17 500 000 so'm"
func FormatPrice(amount int64) string {
	return strings.ReplaceAll(humanize.Comma(amount), ",", " ") + CurrencySuffix
}
