// Package model はドメインモデルを定義する。
package model

import "time"

// User は認証済みプリンシパル（学内メールで検証されたメンバー）を表す。
// EmailVerified はメール内の検証リンクのクリックによって一度だけfalse→trueに遷移する。
type User struct {
	ID                string
	Email             string // 小文字正規化済み
	PasswordHash      string
	EmailVerified     bool
	VerificationToken string // 未検証の間のみ有効なワンタイムトークン
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Session はユーザーのログインセッションを表す。
// rememberMe はセッションの有効期間とCookieの永続化方法を切り替える
// 設定スイッチであり、データモデルのフィールドではない。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
