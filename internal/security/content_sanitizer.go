package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は利用者・管理者が入力したテキストを無害化する。
// 商品名・説明、カテゴリ、プロフィール、インポートしたカタログに適用する。
type ContentSanitizerService interface {
	// Sanitize は全てのHTMLタグを除去したプレーンテキストを返す。
	// 前後の空白は取り除く。同一入力に対して常に同一出力を返す。
	Sanitize(text string) string
}

// contentSanitizer はbluemondayのStrictPolicyを保持する。Policyはスレッドセーフ。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はタグを一切許可しないサニタイザを生成する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{policy: bluemonday.StrictPolicy()}
}

// maxSanitizePasses は実体参照の多重エンコードを展開する上限回数。
const maxSanitizePasses = 5

// Sanitize はタグを除去し、bluemondayがエスケープした実体参照を元に戻す。
// 出力はJSONで返すため、"&" などをエスケープしたまま保存しない。
// 戻した結果にタグが現れる場合があるので、変化がなくなるまで繰り返す。
// 上限までに収束しない入力は破棄する。
func (s *contentSanitizer) Sanitize(text string) string {
	if text == "" {
		return ""
	}
	cur := text
	for range maxSanitizePasses {
		next := html.UnescapeString(s.policy.Sanitize(cur))
		if next == cur {
			return strings.TrimSpace(cur)
		}
		cur = next
	}
	return ""
}
