package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/rideboard/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// Create はユーザーを作成する。メール重複の場合はErrDuplicateEmailを返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, email_verified, verification_token, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Email, user.PasswordHash, user.EmailVerified,
		user.VerificationToken, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx,
		`SELECT id, email, password_hash, email_verified, verification_token, created_at, updated_at
		 FROM users WHERE id = $1`, id)
}

// FindByEmail は正規化済みメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx,
		`SELECT id, email, password_hash, email_verified, verification_token, created_at, updated_at
		 FROM users WHERE email = $1`, email)
}

// FindByVerificationToken は検証トークンで未検証ユーザーを検索する。
// 検証済みユーザーのトークンは空文字列にクリアされるため一致しない。
func (r *PostgresUserRepo) FindByVerificationToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, nil
	}
	return r.findOne(ctx,
		`SELECT id, email, password_hash, email_verified, verification_token, created_at, updated_at
		 FROM users WHERE verification_token = $1 AND email_verified = FALSE`, token)
}

// MarkVerified はユーザーを検証済みにし、トークンを無効化する。
func (r *PostgresUserRepo) MarkVerified(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET email_verified = TRUE, verification_token = '', updated_at = now()
		 WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark user verified: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// UpdateVerificationToken は検証トークンを再発行する。
func (r *PostgresUserRepo) UpdateVerificationToken(ctx context.Context, id, token string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET verification_token = $2, updated_at = now() WHERE id = $1`,
		id, token,
	)
	if err != nil {
		return fmt.Errorf("failed to update verification token: %w", err)
	}
	return nil
}

// findOne は単一ユーザーを取得する共通処理。見つからない場合はnilを返す。
func (r *PostgresUserRepo) findOne(ctx context.Context, query string, arg any) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.EmailVerified,
		&user.VerificationToken, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
