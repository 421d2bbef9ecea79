package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rideboard/internal/middleware"
	"github.com/hitoshi/rideboard/internal/model"
	"github.com/hitoshi/rideboard/internal/ride"
)

// --- モック ---

type mockRideService struct {
	createFn func(ctx context.Context, userID string, input ride.CreateInput) (*model.Ride, error)
	listFn   func(ctx context.Context, userID string, ownerOnly bool) ([]*model.Ride, error)
	updateFn func(ctx context.Context, userID, rideID string, input ride.UpdateInput) (*model.Ride, error)
	deleteFn func(ctx context.Context, userID, rideID string) error
}

func (m *mockRideService) Create(ctx context.Context, userID string, input ride.CreateInput) (*model.Ride, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, input)
	}
	return sampleRide(), nil
}
func (m *mockRideService) List(ctx context.Context, userID string, ownerOnly bool) ([]*model.Ride, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, ownerOnly)
	}
	return []*model.Ride{}, nil
}
func (m *mockRideService) Update(ctx context.Context, userID, rideID string, input ride.UpdateInput) (*model.Ride, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, rideID, input)
	}
	return sampleRide(), nil
}
func (m *mockRideService) Delete(ctx context.Context, userID, rideID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, rideID)
	}
	return nil
}

func sampleRide() *model.Ride {
	departure := time.Date(2025, 9, 2, 17, 0, 0, 0, time.UTC)
	return &model.Ride{
		ID:            "ride-1",
		OwnerUID:      "user-1",
		OwnerEmail:    "alice@uwaterloo.ca",
		DepartureTime: departure,
		StartLocation: "SLC",
		Destination:   "Toronto",
		Notes:         "2 seats",
		CreatedAt:     departure.Add(-24 * time.Hour),
		UpdatedAt:     departure.Add(-24 * time.Hour),
	}
}

// rideRouter はライドルートのみを構成したテスト用ルーター。
// セッションコンテキストはリクエストごとに注入する。
func rideRouter(svc *mockRideService) chi.Router {
	h := NewRideHandler(svc)
	r := chi.NewRouter()
	r.Route("/api/rides", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Route("/{id}", func(r chi.Router) {
			r.Patch("/", h.Update)
			r.Delete("/", h.Delete)
		})
	})
	return r
}

func authedRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return req.WithContext(middleware.ContextWithSession(req.Context(), "user-1", "sess-1"))
}

// --- Create ---

// TestRideCreateHandler_Success はライド作成が201とレスポンスボディで
// 返ることを検証する。
func TestRideCreateHandler_Success(t *testing.T) {
	var gotUserID string
	var gotInput ride.CreateInput
	svc := &mockRideService{
		createFn: func(ctx context.Context, userID string, input ride.CreateInput) (*model.Ride, error) {
			gotUserID, gotInput = userID, input
			return sampleRide(), nil
		},
	}

	body := `{"departureTime":"2025-09-02T17:00:00Z","startLocation":"SLC","destination":"Toronto","notes":"2 seats"}`
	w := httptest.NewRecorder()
	rideRouter(svc).ServeHTTP(w, authedRequest(http.MethodPost, "/api/rides", body))

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if gotUserID != "user-1" {
		t.Errorf("userID = %q, want user-1", gotUserID)
	}
	if gotInput.StartLocation != "SLC" || gotInput.Destination != "Toronto" {
		t.Errorf("input = %+v", gotInput)
	}

	var got rideResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.ID != "ride-1" || got.OwnerEmail != "alice@uwaterloo.ca" {
		t.Errorf("response = %+v", got)
	}
}

// TestRideCreateHandler_MissingFields は必須フィールド欠落が400に
// なり、サービスに到達しないことを検証する。
func TestRideCreateHandler_MissingFields(t *testing.T) {
	svc := &mockRideService{
		createFn: func(ctx context.Context, userID string, input ride.CreateInput) (*model.Ride, error) {
			t.Error("service must not be called")
			return nil, nil
		},
	}

	body := `{"startLocation":"SLC"}`
	w := httptest.NewRecorder()
	rideRouter(svc).ServeHTTP(w, authedRequest(http.MethodPost, "/api/rides", body))

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Result().StatusCode)
	}
}

// TestRideCreateHandler_QuotaExceeded は上限超過が409で返ることを検証する。
func TestRideCreateHandler_QuotaExceeded(t *testing.T) {
	svc := &mockRideService{
		createFn: func(ctx context.Context, userID string, input ride.CreateInput) (*model.Ride, error) {
			return nil, model.NewQuotaExceededError(3)
		},
	}

	body := `{"departureTime":"2025-09-02T17:00:00Z","startLocation":"SLC","destination":"Toronto"}`
	w := httptest.NewRecorder()
	rideRouter(svc).ServeHTTP(w, authedRequest(http.MethodPost, "/api/rides", body))

	resp := w.Result()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	if body := decodeErrorBody(t, resp); body.Code != model.ErrCodeQuotaExceeded {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeQuotaExceeded)
	}
}

// TestRideCreateHandler_NoSession はセッションコンテキストなしが
// 401になることを検証する。
func TestRideCreateHandler_NoSession(t *testing.T) {
	body := `{"departureTime":"2025-09-02T17:00:00Z","startLocation":"SLC","destination":"Toronto"}`
	req := httptest.NewRequest(http.MethodPost, "/api/rides", strings.NewReader(body))
	w := httptest.NewRecorder()
	rideRouter(&mockRideService{}).ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Result().StatusCode)
	}
}

// --- List ---

// TestRideListHandler はライド一覧がJSON配列で返り、mine=trueが
// サービスに伝播することを検証する。
func TestRideListHandler(t *testing.T) {
	var gotOwnerOnly bool
	svc := &mockRideService{
		listFn: func(ctx context.Context, userID string, ownerOnly bool) ([]*model.Ride, error) {
			gotOwnerOnly = ownerOnly
			return []*model.Ride{sampleRide()}, nil
		},
	}

	w := httptest.NewRecorder()
	rideRouter(svc).ServeHTTP(w, authedRequest(http.MethodGet, "/api/rides?mine=true", ""))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !gotOwnerOnly {
		t.Error("mine=true must be passed through as ownerOnly")
	}

	var got []rideResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(got) != 1 || got[0].ID != "ride-1" {
		t.Errorf("response = %+v", got)
	}
}

// TestRideListHandler_EmptyBoard は空の掲示板で空配列（nullでない）が
// 返ることを検証する。
func TestRideListHandler_EmptyBoard(t *testing.T) {
	w := httptest.NewRecorder()
	rideRouter(&mockRideService{}).ServeHTTP(w, authedRequest(http.MethodGet, "/api/rides", ""))

	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

// --- Update ---

// TestRideUpdateHandler_PartialBody は部分更新のフィールドが
// ポインタとしてサービスに渡ることを検証する。
func TestRideUpdateHandler_PartialBody(t *testing.T) {
	var gotInput ride.UpdateInput
	svc := &mockRideService{
		updateFn: func(ctx context.Context, userID, rideID string, input ride.UpdateInput) (*model.Ride, error) {
			gotInput = input
			return sampleRide(), nil
		},
	}

	w := httptest.NewRecorder()
	rideRouter(svc).ServeHTTP(w, authedRequest(http.MethodPatch, "/api/rides/ride-1", `{"notes":"3 seats now"}`))

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Result().StatusCode)
	}
	if gotInput.Notes == nil || *gotInput.Notes != "3 seats now" {
		t.Errorf("notes = %v, want pointer to updated value", gotInput.Notes)
	}
	if gotInput.DepartureTime != nil || gotInput.StartLocation != nil || gotInput.Destination != nil {
		t.Error("omitted fields must stay nil")
	}
}

// TestRideUpdateHandler_Forbidden は所有者以外の更新が403で返ることを検証する。
func TestRideUpdateHandler_Forbidden(t *testing.T) {
	svc := &mockRideService{
		updateFn: func(ctx context.Context, userID, rideID string, input ride.UpdateInput) (*model.Ride, error) {
			return nil, model.NewForbiddenError()
		},
	}

	w := httptest.NewRecorder()
	rideRouter(svc).ServeHTTP(w, authedRequest(http.MethodPatch, "/api/rides/ride-1", `{"notes":"x"}`))

	if w.Result().StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Result().StatusCode)
	}
}

// --- Delete ---

// TestRideDeleteHandler_Success は削除成功が204で返ることを検証する。
func TestRideDeleteHandler_Success(t *testing.T) {
	var gotRideID string
	svc := &mockRideService{
		deleteFn: func(ctx context.Context, userID, rideID string) error {
			gotRideID = rideID
			return nil
		},
	}

	w := httptest.NewRecorder()
	rideRouter(svc).ServeHTTP(w, authedRequest(http.MethodDelete, "/api/rides/ride-1", ""))

	if w.Result().StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Result().StatusCode)
	}
	if gotRideID != "ride-1" {
		t.Errorf("rideID = %q, want ride-1", gotRideID)
	}
}

// TestRideDeleteHandler_NotFound は存在しないライドが404で返ることを検証する。
func TestRideDeleteHandler_NotFound(t *testing.T) {
	svc := &mockRideService{
		deleteFn: func(ctx context.Context, userID, rideID string) error {
			return model.NewRideNotFoundError(rideID)
		},
	}

	w := httptest.NewRecorder()
	rideRouter(svc).ServeHTTP(w, authedRequest(http.MethodDelete, "/api/rides/no-such-ride", ""))

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Result().StatusCode)
	}
}
