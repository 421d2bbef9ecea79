// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/rideboard/internal/middleware"
	"github.com/hitoshi/rideboard/internal/model"
)

// validate はリクエストボディの構造検証に使用する共有バリデータ。
var validate = validator.New()

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Signup(ctx context.Context, email, password string) error
	Login(ctx context.Context, email, password string, rememberMe bool) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	CurrentUser(ctx context.Context, sessionID string) (*model.User, error)
	CheckVerification(ctx context.Context, userID string) (bool, error)
	CheckVerificationByEmail(ctx context.Context, email string) (bool, error)
	VerifyEmail(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL      string
	CookieDomain string
	CookieSecure bool
	// PersistentMaxAge はrememberMe=true時のCookie有効期間（秒）。
	// rememberMe=falseの場合はMaxAgeを設定せず、ブラウザ終了で消える
	// セッションCookieにする。
	PersistentMaxAge int
}

// AuthHandler はメール/パスワード認証とメール検証のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// signupRequest はサインアップリクエストのボディ。
type signupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

// emailRequest はメールアドレスのみを受け取るリクエストのボディ。
// 検証メール再送と検証状態の問い合わせで使用する。
type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// Signup は新規アカウントを作成する。
// POST /auth/signup
// 成功時はセッションを発行せず、検証待ち状態を返す。
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewInvalidFieldError("body", "invalid JSON"))
		return
	}
	if err := validate.Struct(req); err != nil {
		middleware.WriteError(w, model.NewMissingCredentialsError())
		return
	}

	if err := h.service.Signup(r.Context(), req.Email, req.Password); err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"status": "pending_verification",
	})
}

// Login は認証情報を検証し、セッションCookieを設定する。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewInvalidFieldError("body", "invalid JSON"))
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password, req.RememberMe)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	cookie := &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if req.RememberMe {
		cookie.MaxAge = h.config.PersistentMaxAge
	}
	http.SetCookie(w, cookie)

	writeJSON(w, http.StatusOK, map[string]string{
		"userId": session.UserID,
	})
}

// Logout はセッションを破棄し、Cookieをクリアする。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err != nil || cookie.Value == "" {
		middleware.WriteError(w, model.NewNotAuthenticatedError())
		return
	}

	user, err := h.service.CurrentUser(r.Context(), cookie.Value)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":            user.ID,
		"email":         user.Email,
		"emailVerified": user.EmailVerified,
	})
}

// Verification はメールアドレスの検証状態を返す。
// GET /auth/verification?email=xxx
// サインアップ直後のユーザーはセッションを持たないため、
// 問い合わせ対象はメールアドレスで指定する。クライアントは検証が
// 完了するまでこのエンドポイントを固定間隔でポーリングする。
func (h *AuthHandler) Verification(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	req := emailRequest{Email: email}
	if err := validate.Struct(req); err != nil {
		middleware.WriteError(w, model.NewInvalidFieldError("email", "a valid email address is required"))
		return
	}

	verified, err := h.service.CheckVerificationByEmail(r.Context(), email)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{
		"verified": verified,
	})
}

// Verify は検証メール内リンクのトークンを消費する。
// GET /auth/verify?token=xxx
// メールクライアントのブラウザから直接開かれるため、プレーンテキストで応答する。
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		middleware.WriteError(w, model.NewInvalidTokenError())
		return
	}

	if err := h.service.VerifyEmail(r.Context(), token); err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Your email has been verified. You can return to the ride board and log in.\n"))
}

// ResendVerification は検証メールを再送する。
// POST /auth/resend-verification
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewInvalidFieldError("body", "invalid JSON"))
		return
	}
	if err := validate.Struct(req); err != nil {
		middleware.WriteError(w, model.NewInvalidFieldError("email", "a valid email address is required"))
		return
	}

	if err := h.service.ResendVerification(r.Context(), req.Email); err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "sent",
	})
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
