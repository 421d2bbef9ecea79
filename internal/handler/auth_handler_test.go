package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/rideboard/internal/middleware"
	"github.com/hitoshi/rideboard/internal/model"
)

// --- モック ---

type mockAuthService struct {
	signupFn                   func(ctx context.Context, email, password string) error
	loginFn                    func(ctx context.Context, email, password string, rememberMe bool) (*model.Session, error)
	logoutFn                   func(ctx context.Context, sessionID string) error
	currentUserFn              func(ctx context.Context, sessionID string) (*model.User, error)
	checkVerificationFn        func(ctx context.Context, userID string) (bool, error)
	checkVerificationByEmailFn func(ctx context.Context, email string) (bool, error)
	verifyEmailFn              func(ctx context.Context, token string) error
	resendVerificationFn       func(ctx context.Context, email string) error
}

func (m *mockAuthService) Signup(ctx context.Context, email, password string) error {
	if m.signupFn != nil {
		return m.signupFn(ctx, email, password)
	}
	return nil
}
func (m *mockAuthService) Login(ctx context.Context, email, password string, rememberMe bool) (*model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password, rememberMe)
	}
	return &model.Session{ID: "sess-1", UserID: "user-1"}, nil
}
func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}
func (m *mockAuthService) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, sessionID)
	}
	return nil, model.NewNotAuthenticatedError()
}
func (m *mockAuthService) CheckVerification(ctx context.Context, userID string) (bool, error) {
	if m.checkVerificationFn != nil {
		return m.checkVerificationFn(ctx, userID)
	}
	return false, nil
}
func (m *mockAuthService) CheckVerificationByEmail(ctx context.Context, email string) (bool, error) {
	if m.checkVerificationByEmailFn != nil {
		return m.checkVerificationByEmailFn(ctx, email)
	}
	return false, nil
}
func (m *mockAuthService) VerifyEmail(ctx context.Context, token string) error {
	if m.verifyEmailFn != nil {
		return m.verifyEmailFn(ctx, token)
	}
	return nil
}
func (m *mockAuthService) ResendVerification(ctx context.Context, email string) error {
	if m.resendVerificationFn != nil {
		return m.resendVerificationFn(ctx, email)
	}
	return nil
}

func testAuthHandler(svc *mockAuthService) *AuthHandler {
	return NewAuthHandler(svc, AuthHandlerConfig{
		BaseURL:          "https://rideboard.example",
		CookieSecure:     true,
		PersistentMaxAge: 30 * 24 * 60 * 60,
	})
}

func decodeErrorBody(t *testing.T, resp *http.Response) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}

// --- Signup ---

// TestSignupHandler_Success はサインアップ成功で201と検証待ち状態が
// 返り、セッションCookieが設定されないことを検証する。
func TestSignupHandler_Success(t *testing.T) {
	var gotEmail, gotPassword string
	svc := &mockAuthService{
		signupFn: func(ctx context.Context, email, password string) error {
			gotEmail, gotPassword = email, password
			return nil
		},
	}
	h := testAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/signup",
		strings.NewReader(`{"email":"alice@uwaterloo.ca","password":"Passw0rd"}`))
	w := httptest.NewRecorder()
	h.Signup(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if gotEmail != "alice@uwaterloo.ca" || gotPassword != "Passw0rd" {
		t.Errorf("service called with %q/%q", gotEmail, gotPassword)
	}

	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "pending_verification" {
		t.Errorf("status body = %q, want pending_verification", body["status"])
	}
	for _, c := range resp.Cookies() {
		if c.Name == middleware.SessionCookieName {
			t.Error("signup must not set a session cookie")
		}
	}
}

// TestSignupHandler_InvalidDomain はサービス層のドメイン拒否が
// 403とINVALID_DOMAINで返ることを検証する。
func TestSignupHandler_InvalidDomain(t *testing.T) {
	svc := &mockAuthService{
		signupFn: func(ctx context.Context, email, password string) error {
			return model.NewInvalidDomainError()
		},
	}
	h := testAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/signup",
		strings.NewReader(`{"email":"alice@gmail.com","password":"Passw0rd"}`))
	w := httptest.NewRecorder()
	h.Signup(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	if body := decodeErrorBody(t, resp); body.Code != model.ErrCodeInvalidDomain {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidDomain)
	}
}

// TestSignupHandler_MalformedBody は不正なJSONが400になることを検証する。
func TestSignupHandler_MalformedBody(t *testing.T) {
	h := testAuthHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(`{not json`))
	w := httptest.NewRecorder()
	h.Signup(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Result().StatusCode)
	}
}

// --- Login ---

// TestLoginHandler_SetsSessionCookie はログイン成功でHTTP Onlyの
// セッションCookieが設定されることを検証する。
func TestLoginHandler_SetsSessionCookie(t *testing.T) {
	h := testAuthHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"alice@uwaterloo.ca","password":"Passw0rd"}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var sessionCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == middleware.SessionCookieName {
			sessionCookie = c
		}
	}
	if sessionCookie == nil {
		t.Fatal("session cookie must be set")
	}
	if sessionCookie.Value != "sess-1" {
		t.Errorf("cookie value = %q, want sess-1", sessionCookie.Value)
	}
	if !sessionCookie.HttpOnly {
		t.Error("session cookie must be HTTP only")
	}
	// rememberMeなしはブラウザ終了で消えるセッションCookie
	if sessionCookie.MaxAge != 0 {
		t.Errorf("MaxAge = %d, want 0 (session-scoped)", sessionCookie.MaxAge)
	}
}

// TestLoginHandler_RememberMe はrememberMe=trueで永続Cookieに
// なることを検証する。
func TestLoginHandler_RememberMe(t *testing.T) {
	var gotRememberMe bool
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string, rememberMe bool) (*model.Session, error) {
			gotRememberMe = rememberMe
			return &model.Session{ID: "sess-1", UserID: "user-1"}, nil
		},
	}
	h := testAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"alice@uwaterloo.ca","password":"Passw0rd","rememberMe":true}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	if !gotRememberMe {
		t.Error("rememberMe must be passed through to the service")
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookieName && c.MaxAge != 30*24*60*60 {
			t.Errorf("MaxAge = %d, want 30 days in seconds", c.MaxAge)
		}
	}
}

// TestLoginHandler_Unverified は未検証ユーザーのログインが403と
// UNVERIFIED_EMAILで返り、Cookieが設定されないことを検証する。
func TestLoginHandler_Unverified(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string, rememberMe bool) (*model.Session, error) {
			return nil, model.NewUnverifiedEmailError()
		},
	}
	h := testAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"alice@uwaterloo.ca","password":"Passw0rd"}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	if len(resp.Cookies()) != 0 {
		t.Error("no cookie must be set for a failed login")
	}
}

// TestLoginHandler_RateLimited はレート制限が429で返ることを検証する。
func TestLoginHandler_RateLimited(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string, rememberMe bool) (*model.Session, error) {
			return nil, model.NewRateLimitedError()
		},
	}
	h := testAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"alice@uwaterloo.ca","password":"Passw0rd"}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Result().StatusCode)
	}
}

// --- Logout ---

// TestLogoutHandler_ClearsCookie はログアウトでセッションが破棄され、
// Cookieがクリアされることを検証する。
func TestLogoutHandler_ClearsCookie(t *testing.T) {
	var deletedSession string
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			deletedSession = sessionID
			return nil
		},
	}
	h := testAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "sess-1"})
	w := httptest.NewRecorder()
	h.Logout(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Result().StatusCode)
	}
	if deletedSession != "sess-1" {
		t.Errorf("deleted session = %q, want sess-1", deletedSession)
	}

	var cleared bool
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("session cookie must be cleared")
	}
}

// --- Me ---

// TestMeHandler_ReturnsUser はセッションCookieから現在ユーザーを返すことを検証する。
func TestMeHandler_ReturnsUser(t *testing.T) {
	svc := &mockAuthService{
		currentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: "alice@uwaterloo.ca", EmailVerified: true}, nil
		},
	}
	h := testAuthHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "sess-1"})
	w := httptest.NewRecorder()
	h.Me(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&body)
	if body["email"] != "alice@uwaterloo.ca" {
		t.Errorf("email = %v, want alice@uwaterloo.ca", body["email"])
	}
	if body["emailVerified"] != true {
		t.Errorf("emailVerified = %v, want true", body["emailVerified"])
	}
}

// TestMeHandler_NoCookie はCookieなしが401になることを検証する。
func TestMeHandler_NoCookie(t *testing.T) {
	h := testAuthHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	w := httptest.NewRecorder()
	h.Me(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Result().StatusCode)
	}
}

// --- メール検証 ---

// TestVerifyHandler_Success は有効なトークンで200が返ることを検証する。
func TestVerifyHandler_Success(t *testing.T) {
	var gotToken string
	svc := &mockAuthService{
		verifyEmailFn: func(ctx context.Context, token string) error {
			gotToken = token
			return nil
		},
	}
	h := testAuthHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/auth/verify?token=tok-1", nil)
	w := httptest.NewRecorder()
	h.Verify(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Result().StatusCode)
	}
	if gotToken != "tok-1" {
		t.Errorf("token = %q, want tok-1", gotToken)
	}
}

// TestVerifyHandler_InvalidToken は無効トークンが400と
// INVALID_TOKENで返ることを検証する。
func TestVerifyHandler_InvalidToken(t *testing.T) {
	svc := &mockAuthService{
		verifyEmailFn: func(ctx context.Context, token string) error {
			return model.NewInvalidTokenError()
		},
	}
	h := testAuthHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/auth/verify?token=used", nil)
	w := httptest.NewRecorder()
	h.Verify(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body := decodeErrorBody(t, resp); body.Code != model.ErrCodeInvalidToken {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidToken)
	}
}

// TestVerificationHandler_Polling は検証状態の問い合わせを検証する。
func TestVerificationHandler_Polling(t *testing.T) {
	svc := &mockAuthService{
		checkVerificationByEmailFn: func(ctx context.Context, email string) (bool, error) {
			return email == "verified@uwaterloo.ca", nil
		},
	}
	h := testAuthHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/auth/verification?email=verified@uwaterloo.ca", nil)
	w := httptest.NewRecorder()
	h.Verification(w, req)

	var body map[string]bool
	json.NewDecoder(w.Result().Body).Decode(&body)
	if !body["verified"] {
		t.Error("verified = false, want true")
	}

	req = httptest.NewRequest(http.MethodGet, "/auth/verification?email=pending@uwaterloo.ca", nil)
	w = httptest.NewRecorder()
	h.Verification(w, req)

	json.NewDecoder(w.Result().Body).Decode(&body)
	if body["verified"] {
		t.Error("verified = true, want false")
	}
}

// TestResendVerificationHandler は再送リクエストが202で受理されることを検証する。
func TestResendVerificationHandler(t *testing.T) {
	var gotEmail string
	svc := &mockAuthService{
		resendVerificationFn: func(ctx context.Context, email string) error {
			gotEmail = email
			return nil
		},
	}
	h := testAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/resend-verification",
		strings.NewReader(`{"email":"alice@uwaterloo.ca"}`))
	w := httptest.NewRecorder()
	h.ResendVerification(w, req)

	if w.Result().StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Result().StatusCode)
	}
	if gotEmail != "alice@uwaterloo.ca" {
		t.Errorf("email = %q, want alice@uwaterloo.ca", gotEmail)
	}
}
