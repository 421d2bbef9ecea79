// Package auth は学内ドメイン制限つきのメール/パスワード認証と
// セッション管理、メール検証ゲートを提供する。
//
// セッション状態は SignedOut → PendingVerification → Active と遷移する。
// PendingVerification はサインアップ直後（検証を強制するためセッションを
// 発行しない）と、未検証ユーザーのログイン試行後に入る。
// Active はログイン成功かつメール検証済みかつドメイン検査合格のときのみ。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/rideboard/internal/model"
	"github.com/hitoshi/rideboard/internal/repository"
)

// campusEmailPattern は許可される学内メールアドレスのパターン。
// メールは小文字正規化してから照合するため、実質的に大文字小文字を区別しない。
var campusEmailPattern = regexp.MustCompile(`^[a-z0-9._%+-]+@uwaterloo\.ca$`)

// IsCampusEmail はメールアドレスが許可ドメインに属するかを返す。
// 照合前に正規化するため、大文字小文字を区別しない。
func IsCampusEmail(email string) bool {
	return campusEmailPattern.MatchString(normalizeEmail(email))
}

// AttemptLimiter は認証試行のレート制限インターフェース。
// ratelimit.AttemptLimiterの部分集合として定義する。
type AttemptLimiter interface {
	Allow(key string, maxAttempts int, window time.Duration) bool
	Reset(key string)
}

// VerificationMailer は検証メール送信のインターフェース。
type VerificationMailer interface {
	SendVerificationEmail(to, verifyURL string) error
}

// MetricsRecorder は認証メトリクスの記録インターフェース。
type MetricsRecorder interface {
	RecordSignup(outcome string)
	RecordLogin(outcome string)
	RecordRateLimited(class string)
}

// RateLimitPolicy は1操作あたりの試行上限とウィンドウ長を表す。
type RateLimitPolicy struct {
	MaxAttempts int
	Window      time.Duration
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	// BaseURL は検証リンクの生成に使用するサービスの公開URL。
	BaseURL string
	// SessionTTL はrememberMe=false時のセッション有効期間。
	SessionTTL time.Duration
	// PersistentSessionTTL はrememberMe=true時のセッション有効期間。
	PersistentSessionTTL time.Duration
	// SignupPolicy / LoginPolicy / ResendPolicy は各操作のレート制限ポリシー。
	SignupPolicy RateLimitPolicy
	LoginPolicy  RateLimitPolicy
	ResendPolicy RateLimitPolicy
}

// DefaultConfig は参照実装のレート制限ポリシーを持つServiceConfigを返す。
// サインアップ/ログイン: 5回/15分、検証メール再送: 3回/60分。
func DefaultConfig(baseURL string) ServiceConfig {
	return ServiceConfig{
		BaseURL:              baseURL,
		SessionTTL:           24 * time.Hour,
		PersistentSessionTTL: 30 * 24 * time.Hour,
		SignupPolicy:         RateLimitPolicy{MaxAttempts: 5, Window: 15 * time.Minute},
		LoginPolicy:          RateLimitPolicy{MaxAttempts: 5, Window: 15 * time.Minute},
		ResendPolicy:         RateLimitPolicy{MaxAttempts: 3, Window: 60 * time.Minute},
	}
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	limiter     AttemptLimiter
	mailer      VerificationMailer
	metrics     MetricsRecorder
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。metricsはnilを許容する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	limiter AttemptLimiter,
	mailer VerificationMailer,
	metrics MetricsRecorder,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		limiter:     limiter,
		mailer:      mailer,
		metrics:     metrics,
		config:      config,
		now:         time.Now,
	}
}

// SetClock は現在時刻の取得関数を差し替える。テスト用。
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Signup は新規アカウントを作成し、検証メールを送信する。
// 成功してもセッションは発行しない（メール検証を強制するため、
// 検証が完了するまでPendingVerificationに留める）。
func (s *Service) Signup(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)

	if !s.limiter.Allow("signup_"+email, s.config.SignupPolicy.MaxAttempts, s.config.SignupPolicy.Window) {
		s.recordRateLimited("signup")
		s.recordSignup("rate_limited")
		return model.NewRateLimitedError()
	}

	if !campusEmailPattern.MatchString(email) {
		s.recordSignup("invalid_domain")
		return model.NewInvalidDomainError()
	}

	if apiErr := validatePassword(password); apiErr != nil {
		s.recordSignup("weak_password")
		return apiErr
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return model.NewBackendUnavailableError(fmt.Errorf("failed to hash password: %w", err))
	}

	token, err := generateToken()
	if err != nil {
		return model.NewBackendUnavailableError(fmt.Errorf("failed to generate verification token: %w", err))
	}

	now := s.now()
	user := &model.User{
		ID:                uuid.New().String(),
		Email:             email,
		PasswordHash:      string(hash),
		EmailVerified:     false,
		VerificationToken: token,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if err == repository.ErrDuplicateEmail {
			s.recordSignup("email_in_use")
			return model.NewEmailInUseError()
		}
		return model.NewBackendUnavailableError(err)
	}

	// 検証メールの送信失敗はサインアップ自体を失敗にしない。
	// アカウントは作成済みのため、再送エンドポイントから回復できる。
	if err := s.mailer.SendVerificationEmail(email, s.verifyURL(token)); err != nil {
		slog.Error("failed to send verification email",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.limiter.Reset("signup_" + email)
	s.recordSignup("success")

	slog.Info("new user signed up",
		slog.String("user_id", user.ID),
		slog.String("email", email),
	)

	return nil
}

// Login はメール/パスワードを検証し、セッションを発行する。
// メール未検証のユーザーはセッションを発行せずUnverifiedEmailで失敗する。
// rememberMeはセッション有効期間を切り替える（永続Cookieの設定はハンドラー側）。
// ドメイン検査は保存済みメールに対しても再実行する。認証ストアは
// ドメインを関知しないため、検査を信頼境界の両側で行う。
func (s *Service) Login(ctx context.Context, email, password string, rememberMe bool) (*model.Session, error) {
	email = normalizeEmail(email)

	if !s.limiter.Allow("login_"+email, s.config.LoginPolicy.MaxAttempts, s.config.LoginPolicy.Window) {
		s.recordRateLimited("login")
		s.recordLogin("rate_limited")
		return nil, model.NewRateLimitedError()
	}

	if email == "" || password == "" {
		s.recordLogin("missing_credentials")
		return nil, model.NewMissingCredentialsError()
	}

	if !campusEmailPattern.MatchString(email) {
		s.recordLogin("invalid_domain")
		return nil, model.NewInvalidDomainError()
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, model.NewBackendUnavailableError(err)
	}
	if user == nil {
		s.recordLogin("invalid_credentials")
		return nil, model.NewInvalidCredentialsError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.recordLogin("invalid_credentials")
		return nil, model.NewInvalidCredentialsError()
	}

	// 検証フラグは認証後にストアから再読込した値を使用する
	if !user.EmailVerified {
		s.recordLogin("unverified")
		return nil, model.NewUnverifiedEmailError()
	}

	if !campusEmailPattern.MatchString(user.Email) {
		s.recordLogin("invalid_domain")
		return nil, model.NewInvalidDomainError()
	}

	session, err := s.createSession(ctx, user.ID, rememberMe)
	if err != nil {
		return nil, model.NewBackendUnavailableError(err)
	}

	s.limiter.Reset("login_" + email)
	s.recordLogin("success")

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.Bool("remember_me", rememberMe),
	)

	return session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return model.NewBackendUnavailableError(err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// CurrentUser はセッションから現在のユーザーを取得する。
// セッションが無効・期限切れの場合はNotAuthenticatedを返す。
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, model.NewNotAuthenticatedError()
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, model.NewBackendUnavailableError(err)
	}
	if session == nil {
		return nil, model.NewNotAuthenticatedError()
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, model.NewBackendUnavailableError(err)
	}
	if user == nil {
		return nil, model.NewNotAuthenticatedError()
	}

	return user, nil
}

// CheckVerification はユーザーの検証フラグをストアから再読込して返す。
// 検証はメール内リンクのクリックで帯域外に完了するため、
// クライアントは固定間隔（参照実装: 5秒）でこの操作をポーリングする。
func (s *Service) CheckVerification(ctx context.Context, userID string) (bool, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return false, model.NewBackendUnavailableError(err)
	}
	if user == nil {
		return false, model.NewNotAuthenticatedError()
	}
	return user.EmailVerified, nil
}

// CheckVerificationByEmail はメールアドレスで指定したユーザーの検証状態を返す。
// サインアップ直後のユーザーはセッションを持たないため、検証待ち画面の
// ポーリングはメールアドレスで問い合わせる。未登録メールはNotAuthenticated。
func (s *Service) CheckVerificationByEmail(ctx context.Context, email string) (bool, error) {
	user, err := s.userRepo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return false, model.NewBackendUnavailableError(err)
	}
	if user == nil {
		return false, model.NewNotAuthenticatedError()
	}
	return user.EmailVerified, nil
}

// VerifyEmail は検証リンクのトークンを消費し、ユーザーを検証済みにする。
// トークンはワンタイム。検証フラグはfalse→trueに一度だけ遷移する。
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	user, err := s.userRepo.FindByVerificationToken(ctx, token)
	if err != nil {
		return model.NewBackendUnavailableError(err)
	}
	if user == nil {
		return model.NewInvalidTokenError()
	}

	if err := s.userRepo.MarkVerified(ctx, user.ID); err != nil {
		return model.NewBackendUnavailableError(err)
	}

	slog.Info("email verified", slog.String("user_id", user.ID))
	return nil
}

// ResendVerification は検証メールを再送する。
// 未登録メールにはNotAuthenticatedを返す（PendingVerificationの
// ユーザーはセッションを持たないため、本人性はメールアドレスで指定する）。
// 再送はサインアップより厳しいポリシーでレート制限する。
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return model.NewBackendUnavailableError(err)
	}
	if user == nil {
		return model.NewNotAuthenticatedError()
	}
	if user.EmailVerified {
		// 検証済みユーザーへの再送は不要。冪等に成功として扱う。
		return nil
	}

	if !s.limiter.Allow("resend_"+email, s.config.ResendPolicy.MaxAttempts, s.config.ResendPolicy.Window) {
		s.recordRateLimited("resend")
		return model.NewRateLimitedError()
	}

	token, err := generateToken()
	if err != nil {
		return model.NewBackendUnavailableError(fmt.Errorf("failed to generate verification token: %w", err))
	}

	if err := s.userRepo.UpdateVerificationToken(ctx, user.ID, token); err != nil {
		return model.NewBackendUnavailableError(err)
	}

	if err := s.mailer.SendVerificationEmail(email, s.verifyURL(token)); err != nil {
		return model.NewBackendUnavailableError(err)
	}

	slog.Info("verification email resent", slog.String("user_id", user.ID))
	return nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string, rememberMe bool) (*model.Session, error) {
	sessionID, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	ttl := s.config.SessionTTL
	if rememberMe {
		ttl = s.config.PersistentSessionTTL
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// verifyURL はトークンから検証リンクを組み立てる。
func (s *Service) verifyURL(token string) string {
	return strings.TrimSuffix(s.config.BaseURL, "/") + "/auth/verify?token=" + token
}

func (s *Service) recordSignup(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordSignup(outcome)
	}
}

func (s *Service) recordLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordLogin(outcome)
	}
}

func (s *Service) recordRateLimited(class string) {
	if s.metrics != nil {
		s.metrics.RecordRateLimited(class)
	}
}

// normalizeEmail はメールアドレスを正規化する（前後空白除去と小文字化）。
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validatePassword はパスワードポリシーを検査する。
// 8文字以上で、小文字・大文字・数字を各1文字以上含むこと。
func validatePassword(password string) *model.APIError {
	if len(password) < 8 {
		return model.NewWeakPasswordError("Password must be at least 8 characters long.")
	}

	var hasLower, hasUpper, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if !hasLower {
		return model.NewWeakPasswordError("Password must contain at least one lowercase letter.")
	}
	if !hasUpper {
		return model.NewWeakPasswordError("Password must contain at least one uppercase letter.")
	}
	if !hasDigit {
		return model.NewWeakPasswordError("Password must contain at least one number.")
	}

	return nil
}

// generateToken は暗号的に安全なランダムトークンを生成する。
// セッションIDと検証トークンの両方に使用する。
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
