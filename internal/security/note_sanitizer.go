// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NoteSanitizerService はライドの備考欄をサニタイズし、
// XSS攻撃などのセキュリティリスクから閲覧者を保護する。
// 備考はプレーンテキストとして扱うため、bluemondayのStrictPolicyで
// すべてのHTMLタグを除去する。
package security

import "github.com/microcosm-cc/bluemonday"

// NoteSanitizerService は備考テキストのサニタイズ機能のインターフェースを定義する。
// ライドの保存前に使用される。
type NoteSanitizerService interface {
	// Sanitize は備考からすべてのHTMLタグを除去したテキストを返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// noteSanitizer はNoteSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type noteSanitizer struct {
	policy *bluemonday.Policy
}

// NewNoteSanitizer はNoteSanitizerServiceの新しいインスタンスを生成する。
// 備考にHTMLは不要のため、タグを一切許可しないStrictPolicyを使用する。
func NewNoteSanitizer() *noteSanitizer {
	return &noteSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は備考からすべてのHTMLタグを除去したテキストを返す。
func (s *noteSanitizer) Sanitize(raw string) string {
	return s.policy.Sanitize(raw)
}
