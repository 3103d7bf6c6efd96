// Package security は外部から受け取った表示用テキストの無害化を提供する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はカタログや利用者から受け取った表示名を無害化するインターフェース。
type TextSanitizer interface {
	Sanitize(raw string) string
}

// textSanitizer はbluemondayのStrictPolicyでタグをすべて除去し、プレーンテキストを返す。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はtextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// maxSanitizePasses は実体参照の多重エンコードを展開する上限回数。
const maxSanitizePasses = 4

// markupBrackets は上限回数で収束しなかった場合に残る山括弧を除去する。
var markupBrackets = strings.NewReplacer("<", "", ">", "")

// Sanitize はタグを除去し、連続する空白を1つにまとめて返す。
// StrictPolicyがエスケープした実体参照は元の文字に戻す（"Scarlet & Violet" 等）。
// 実体参照で渡されたタグ（"&lt;img&gt;"）も展開後に除去されるよう、出力が変化しなくなるまで繰り返す。
func (s *textSanitizer) Sanitize(raw string) string {
	text := raw
	converged := false
	for i := 0; i < maxSanitizePasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(text))
		if next == text {
			converged = true
			break
		}
		text = next
	}
	if !converged && strings.ContainsAny(text, "<>") {
		text = markupBrackets.Replace(text)
	}
	return strings.Join(strings.Fields(text), " ")
}

// compile-time interface check
var _ TextSanitizer = (*textSanitizer)(nil)
