// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/rideboard/internal/model"
)

// ErrDuplicateEmail は既に登録済みのメールアドレスでの作成を表す。
var ErrDuplicateEmail = errors.New("email already registered")

// ErrQuotaExceeded はアクティブライド数の上限超過を表す。
var ErrQuotaExceeded = errors.New("active ride quota exceeded")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。メール重複の場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail は正規化済みメールアドレスでユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByVerificationToken は検証トークンで未検証ユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByVerificationToken(ctx context.Context, token string) (*model.User, error)

	// MarkVerified はユーザーを検証済みにし、トークンを無効化する。
	MarkVerified(ctx context.Context, id string) error

	// UpdateVerificationToken は検証トークンを再発行する。
	UpdateVerificationToken(ctx context.Context, id, token string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// RideRepository はライドデータの永続化インターフェース。
type RideRepository interface {
	// CreateWithQuota は所有者のアクティブライド数がmaxActive未満であることを
	// 同一トランザクション内で確認してからライドを作成する。
	// 所有者のusers行をFOR UPDATEでロックするため、同一所有者からの
	// 並行作成でも上限を超えない。上限到達時はErrQuotaExceededを返す。
	CreateWithQuota(ctx context.Context, ride *model.Ride, maxActive int, now time.Time) error

	// FindByID は指定IDのライドを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Ride, error)

	// ListActive はdeparture_timeがnowより後のライドを出発時刻昇順で返す。
	// ownerUIDが空でない場合はその所有者のライドのみに絞り込む。
	// 該当なしの場合は空スライスを返す。
	ListActive(ctx context.Context, ownerUID string, now time.Time) ([]*model.Ride, error)

	// Update はライドの可変フィールドを上書き更新する。
	Update(ctx context.Context, ride *model.Ride) error

	// DeleteByID は指定IDのライドを削除する。
	DeleteByID(ctx context.Context, id string) error

	// ListExpiredIDs はdeparture_timeがnow以前のライドのIDを返す。
	ListExpiredIDs(ctx context.Context, now time.Time) ([]string, error)
}
