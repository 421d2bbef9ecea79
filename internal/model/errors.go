package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, ride, system
	Action   string // ユーザー向け対処方法
	cause    error  // 診断用に保持する元エラー（バックエンド障害のみ）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は元エラーを返す。errors.Is / errors.As 連携用。
func (e *APIError) Unwrap() error {
	return e.cause
}

// 定義済みエラーコード
const (
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInvalidDomain      = "INVALID_DOMAIN"
	ErrCodeWeakPassword       = "WEAK_PASSWORD"
	ErrCodeMissingCredentials = "MISSING_CREDENTIALS"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeEmailInUse         = "EMAIL_IN_USE"
	ErrCodeUnverifiedEmail    = "UNVERIFIED_EMAIL"
	ErrCodeNotAuthenticated   = "NOT_AUTHENTICATED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeQuotaExceeded      = "QUOTA_EXCEEDED"
	ErrCodeInvalidDeparture   = "INVALID_DEPARTURE"
	ErrCodeInvalidField       = "INVALID_FIELD"
	ErrCodeRideNotFound       = "RIDE_NOT_FOUND"
	ErrCodeInvalidToken       = "INVALID_TOKEN"
	ErrCodeBackendUnavailable = "BACKEND_UNAVAILABLE"
)

// NewRateLimitedError は試行回数超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many attempts. Please try again later.",
		Category: "auth",
		Action:   "Wait a while before retrying.",
	}
}

// NewInvalidDomainError は学内ドメイン外メールのエラーを生成する。
func NewInvalidDomainError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDomain,
		Message:  "Only @uwaterloo.ca email addresses are allowed.",
		Category: "auth",
		Action:   "Use your UWaterloo email address.",
	}
}

// NewWeakPasswordError はパスワードポリシー違反エラーを生成する。
func NewWeakPasswordError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  reason,
		Category: "validation",
		Action:   "Choose a password with at least 8 characters including upper case, lower case and a digit.",
	}
}

// NewMissingCredentialsError はメールまたはパスワード未入力のエラーを生成する。
func NewMissingCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingCredentials,
		Message:  "Email and password are required.",
		Category: "validation",
		Action:   "Fill in both fields and try again.",
	}
}

// NewInvalidCredentialsError は認証情報不一致のエラーを生成する。
// アカウントの有無を漏らさないよう、存在しないメールと誤パスワードで同一メッセージを返す。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Incorrect email or password.",
		Category: "auth",
		Action:   "Check your credentials and try again.",
	}
}

// NewEmailInUseError はメール重複登録のエラーを生成する。
func NewEmailInUseError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailInUse,
		Message:  "This email is already registered. Please sign in instead.",
		Category: "auth",
		Action:   "Use the login form, or reset your password.",
	}
}

// NewUnverifiedEmailError はメール未検証のエラーを生成する。
func NewUnverifiedEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeUnverifiedEmail,
		Message:  "Please verify your email before logging in.",
		Category: "auth",
		Action:   "Check your inbox for the verification link, or request a new one.",
	}
}

// NewNotAuthenticatedError は未認証エラーを生成する。
func NewNotAuthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthenticated,
		Message:  "Authentication required.",
		Category: "auth",
		Action:   "Log in and try again.",
	}
}

// NewForbiddenError は所有者以外による操作のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "You can only modify your own rides.",
		Category: "ride",
		Action:   "Check that you are acting on a ride you posted.",
	}
}

// NewQuotaExceededError はアクティブライド上限超過のエラーを生成する。
func NewQuotaExceededError(max int) *APIError {
	return &APIError{
		Code:     ErrCodeQuotaExceeded,
		Message:  fmt.Sprintf("Maximum of %d active rides allowed.", max),
		Category: "ride",
		Action:   "Delete an existing ride or wait until one departs.",
	}
}

// NewInvalidDepartureError は出発時刻の検証エラーを生成する。
func NewInvalidDepartureError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDeparture,
		Message:  "Departure time must be more than one hour in the future.",
		Category: "validation",
		Action:   "Pick a departure time at least one hour from now.",
	}
}

// NewInvalidFieldError は入力フィールドの検証エラーを生成する。
func NewInvalidFieldError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidField,
		Message:  fmt.Sprintf("%s: %s", field, reason),
		Category: "validation",
		Action:   "Correct the highlighted field and try again.",
	}
}

// NewRideNotFoundError はライド未検出のエラーを生成する。
func NewRideNotFoundError(rideID string) *APIError {
	return &APIError{
		Code:     ErrCodeRideNotFound,
		Message:  fmt.Sprintf("Ride not found: %s", rideID),
		Category: "ride",
		Action:   "Reload the ride list.",
	}
}

// NewInvalidTokenError は検証トークン不正のエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "The verification link is invalid or has already been used.",
		Category: "auth",
		Action:   "Request a new verification email.",
	}
}

// NewBackendUnavailableError はストア/認証基盤の障害エラーを生成する。
// 元エラーは診断用にラップして保持する。
func NewBackendUnavailableError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeBackendUnavailable,
		Message:  "The service is temporarily unavailable.",
		Category: "system",
		Action:   "Please wait and retry.",
		cause:    cause,
	}
}
