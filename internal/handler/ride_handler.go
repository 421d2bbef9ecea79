package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rideboard/internal/middleware"
	"github.com/hitoshi/rideboard/internal/model"
	"github.com/hitoshi/rideboard/internal/ride"
)

// RideServiceInterface はライドハンドラーが必要とするサービスインターフェース。
type RideServiceInterface interface {
	Create(ctx context.Context, userID string, input ride.CreateInput) (*model.Ride, error)
	List(ctx context.Context, userID string, ownerOnly bool) ([]*model.Ride, error)
	Update(ctx context.Context, userID, rideID string, input ride.UpdateInput) (*model.Ride, error)
	Delete(ctx context.Context, userID, rideID string) error
}

// RideHandler はライド掲示板のHTTPハンドラー。
type RideHandler struct {
	service RideServiceInterface
}

// NewRideHandler はRideHandlerを生成する。
func NewRideHandler(service RideServiceInterface) *RideHandler {
	return &RideHandler{service: service}
}

// createRideRequest はライド作成リクエストのボディ。
type createRideRequest struct {
	DepartureTime time.Time `json:"departureTime" validate:"required"`
	StartLocation string    `json:"startLocation" validate:"required"`
	Destination   string    `json:"destination" validate:"required"`
	Notes         string    `json:"notes"`
}

// updateRideRequest はライド部分更新リクエストのボディ。
// 省略されたフィールドは変更しない。
type updateRideRequest struct {
	DepartureTime *time.Time `json:"departureTime"`
	StartLocation *string    `json:"startLocation"`
	Destination   *string    `json:"destination"`
	Notes         *string    `json:"notes"`
}

// rideResponse はライド情報のAPIレスポンス。
type rideResponse struct {
	ID            string    `json:"id"`
	OwnerUID      string    `json:"ownerUid"`
	OwnerEmail    string    `json:"ownerEmail"`
	DepartureTime time.Time `json:"departureTime"`
	StartLocation string    `json:"startLocation"`
	Destination   string    `json:"destination"`
	Notes         string    `json:"notes"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func toRideResponse(r *model.Ride) rideResponse {
	return rideResponse{
		ID:            r.ID,
		OwnerUID:      r.OwnerUID,
		OwnerEmail:    r.OwnerEmail,
		DepartureTime: r.DepartureTime,
		StartLocation: r.StartLocation,
		Destination:   r.Destination,
		Notes:         r.Notes,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// Create はライドを掲示する。
// POST /api/rides
func (h *RideHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewNotAuthenticatedError())
		return
	}

	var req createRideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewInvalidFieldError("body", "invalid JSON"))
		return
	}
	if err := validate.Struct(req); err != nil {
		middleware.WriteError(w, model.NewInvalidFieldError("body", "departureTime, startLocation and destination are required"))
		return
	}

	created, err := h.service.Create(r.Context(), userID, ride.CreateInput{
		DepartureTime: req.DepartureTime,
		StartLocation: req.StartLocation,
		Destination:   req.Destination,
		Notes:         req.Notes,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toRideResponse(created))
}

// List はアクティブなライド一覧を出発時刻昇順で返す。
// GET /api/rides?mine=true
func (h *RideHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewNotAuthenticatedError())
		return
	}

	ownerOnly := r.URL.Query().Get("mine") == "true"

	rides, err := h.service.List(r.Context(), userID, ownerOnly)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	responses := make([]rideResponse, len(rides))
	for i, item := range rides {
		responses[i] = toRideResponse(item)
	}
	writeJSON(w, http.StatusOK, responses)
}

// Update はライドを部分更新する。
// PATCH /api/rides/{id}
func (h *RideHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewNotAuthenticatedError())
		return
	}

	rideID := chi.URLParam(r, "id")

	var req updateRideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewInvalidFieldError("body", "invalid JSON"))
		return
	}

	updated, err := h.service.Update(r.Context(), userID, rideID, ride.UpdateInput{
		DepartureTime: req.DepartureTime,
		StartLocation: req.StartLocation,
		Destination:   req.Destination,
		Notes:         req.Notes,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRideResponse(updated))
}

// Delete はライドを削除する。
// DELETE /api/rides/{id}
func (h *RideHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewNotAuthenticatedError())
		return
	}

	rideID := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), userID, rideID); err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
