// Package ride はライド掲示板のドメインロジックを提供する。
//
// すべての操作は認可前置き（セッションユーザーの再読込、メール検証、
// 学内ドメイン検査）を通過してから実行される。掲示板は学内限定のため、
// ドメイン検査はセッション発行後も毎回行う。
package ride

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/rideboard/internal/auth"
	"github.com/hitoshi/rideboard/internal/model"
	"github.com/hitoshi/rideboard/internal/repository"
	"github.com/hitoshi/rideboard/internal/security"
)

const (
	// DefaultMaxActiveRides は1ユーザーが同時に掲示できるアクティブライド数の上限。
	DefaultMaxActiveRides = 3

	// MinDepartureLead は出発時刻に要求される最小リードタイム。
	// 出発時刻は現在時刻+リードタイムより厳密に後でなければならない。
	MinDepartureLead = time.Hour

	// MinLocationLen は出発地・目的地のトリム後の最小文字数。
	MinLocationLen = 3

	// MaxNotesLen は備考のサニタイズ後の最大文字数。
	MaxNotesLen = 500
)

// MetricsRecorder はライド操作メトリクスの記録インターフェース。
type MetricsRecorder interface {
	RecordRideCreated()
	RecordRideUpdated()
	RecordRideDeleted()
}

// CreateInput はライド作成の入力。
type CreateInput struct {
	DepartureTime time.Time
	StartLocation string
	Destination   string
	Notes         string
}

// UpdateInput はライド部分更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	DepartureTime *time.Time
	StartLocation *string
	Destination   *string
	Notes         *string
}

// Service はライド掲示板のサービス層。
type Service struct {
	rideRepo  repository.RideRepository
	userRepo  repository.UserRepository
	sanitizer security.NoteSanitizerService
	metrics   MetricsRecorder
	maxActive int
	now       func() time.Time
}

// NewService はServiceを生成する。metricsはnilを許容する。
// maxActiveが0以下の場合はDefaultMaxActiveRidesを使用する。
func NewService(
	rideRepo repository.RideRepository,
	userRepo repository.UserRepository,
	sanitizer security.NoteSanitizerService,
	metrics MetricsRecorder,
	maxActive int,
) *Service {
	if maxActive <= 0 {
		maxActive = DefaultMaxActiveRides
	}
	return &Service{
		rideRepo:  rideRepo,
		userRepo:  userRepo,
		sanitizer: sanitizer,
		metrics:   metrics,
		maxActive: maxActive,
		now:       time.Now,
	}
}

// SetClock は現在時刻の取得関数を差し替える。テスト用。
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// MaxActiveRides はアクティブライド数の上限を返す。
func (s *Service) MaxActiveRides() int {
	return s.maxActive
}

// Create は新しいライドを掲示する。
// 所有者のアクティブライド数が上限に達している場合はQUOTA_EXCEEDEDを返す。
// 上限の確認と挿入は永続化層で同一トランザクション内に行うため、
// 並行作成でも上限を超えない。
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (*model.Ride, error) {
	user, err := s.authorize(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.validateDeparture(input.DepartureTime, now); err != nil {
		return nil, err
	}
	start, err := validateLocation("startLocation", input.StartLocation)
	if err != nil {
		return nil, err
	}
	dest, err := validateLocation("destination", input.Destination)
	if err != nil {
		return nil, err
	}
	notes, err := s.sanitizeNotes(input.Notes)
	if err != nil {
		return nil, err
	}

	ride := &model.Ride{
		ID:            uuid.New().String(),
		OwnerUID:      user.ID,
		OwnerEmail:    user.Email,
		DepartureTime: input.DepartureTime,
		StartLocation: start,
		Destination:   dest,
		Notes:         notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.rideRepo.CreateWithQuota(ctx, ride, s.maxActive, now); err != nil {
		if errors.Is(err, repository.ErrQuotaExceeded) {
			return nil, model.NewQuotaExceededError(s.maxActive)
		}
		return nil, model.NewBackendUnavailableError(fmt.Errorf("ライドの作成に失敗しました: %w", err))
	}

	if s.metrics != nil {
		s.metrics.RecordRideCreated()
	}
	slog.Info("ride created",
		slog.String("ride_id", ride.ID),
		slog.String("owner_uid", ride.OwnerUID),
		slog.Time("departure_time", ride.DepartureTime),
	)

	return ride, nil
}

// List はアクティブなライドを出発時刻昇順で返す。
// ownerOnlyがtrueの場合は自分のライドのみに絞り込む。
// 出発済みのライドは結果に含まれない。
func (s *Service) List(ctx context.Context, userID string, ownerOnly bool) ([]*model.Ride, error) {
	user, err := s.authorize(ctx, userID)
	if err != nil {
		return nil, err
	}

	ownerUID := ""
	if ownerOnly {
		ownerUID = user.ID
	}

	rides, err := s.rideRepo.ListActive(ctx, ownerUID, s.now())
	if err != nil {
		return nil, model.NewBackendUnavailableError(fmt.Errorf("ライド一覧の取得に失敗しました: %w", err))
	}
	return rides, nil
}

// Update はライドを部分更新する。所有者以外による更新はFORBIDDEN。
// 更新されたフィールドのみ再検証し、出発時刻は作成時と同じリードタイム
// 規則を満たす必要がある。
func (s *Service) Update(ctx context.Context, userID, rideID string, input UpdateInput) (*model.Ride, error) {
	user, err := s.authorize(ctx, userID)
	if err != nil {
		return nil, err
	}

	ride, err := s.findOwned(ctx, user, rideID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if input.DepartureTime != nil {
		if err := s.validateDeparture(*input.DepartureTime, now); err != nil {
			return nil, err
		}
		ride.DepartureTime = *input.DepartureTime
	}
	if input.StartLocation != nil {
		start, err := validateLocation("startLocation", *input.StartLocation)
		if err != nil {
			return nil, err
		}
		ride.StartLocation = start
	}
	if input.Destination != nil {
		dest, err := validateLocation("destination", *input.Destination)
		if err != nil {
			return nil, err
		}
		ride.Destination = dest
	}
	if input.Notes != nil {
		notes, err := s.sanitizeNotes(*input.Notes)
		if err != nil {
			return nil, err
		}
		ride.Notes = notes
	}
	ride.UpdatedAt = now

	if err := s.rideRepo.Update(ctx, ride); err != nil {
		return nil, model.NewBackendUnavailableError(fmt.Errorf("ライドの更新に失敗しました: %w", err))
	}

	if s.metrics != nil {
		s.metrics.RecordRideUpdated()
	}
	slog.Info("ride updated",
		slog.String("ride_id", ride.ID),
		slog.String("owner_uid", ride.OwnerUID),
	)

	return ride, nil
}

// Delete はライドを削除する。所有者以外による削除はFORBIDDEN。
func (s *Service) Delete(ctx context.Context, userID, rideID string) error {
	user, err := s.authorize(ctx, userID)
	if err != nil {
		return err
	}

	ride, err := s.findOwned(ctx, user, rideID)
	if err != nil {
		return err
	}

	if err := s.rideRepo.DeleteByID(ctx, ride.ID); err != nil {
		return model.NewBackendUnavailableError(fmt.Errorf("ライドの削除に失敗しました: %w", err))
	}

	if s.metrics != nil {
		s.metrics.RecordRideDeleted()
	}
	slog.Info("ride deleted",
		slog.String("ride_id", ride.ID),
		slog.String("owner_uid", ride.OwnerUID),
	)

	return nil
}

// authorize はライド操作の認可前置き。ユーザーをストアから再読込し、
// メール検証済みかつ学内ドメインであることを確認する。
func (s *Service) authorize(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, model.NewNotAuthenticatedError()
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, model.NewBackendUnavailableError(fmt.Errorf("ユーザーの取得に失敗しました: %w", err))
	}
	if user == nil {
		return nil, model.NewNotAuthenticatedError()
	}
	if !user.EmailVerified {
		return nil, model.NewUnverifiedEmailError()
	}
	if !auth.IsCampusEmail(user.Email) {
		return nil, model.NewInvalidDomainError()
	}
	return user, nil
}

// findOwned はライドを取得し、所有者が操作ユーザーであることを確認する。
func (s *Service) findOwned(ctx context.Context, user *model.User, rideID string) (*model.Ride, error) {
	ride, err := s.rideRepo.FindByID(ctx, rideID)
	if err != nil {
		return nil, model.NewBackendUnavailableError(fmt.Errorf("ライドの取得に失敗しました: %w", err))
	}
	if ride == nil {
		return nil, model.NewRideNotFoundError(rideID)
	}
	if ride.OwnerUID != user.ID {
		return nil, model.NewForbiddenError()
	}
	return ride, nil
}

// validateDeparture は出発時刻がリードタイム規則を満たすか検査する。
// 境界値（ちょうど現在時刻+1時間）は拒否される。
func (s *Service) validateDeparture(departure, now time.Time) error {
	if !departure.After(now.Add(MinDepartureLead)) {
		return model.NewInvalidDepartureError()
	}
	return nil
}

// validateLocation は地名フィールドをトリムし、最小文字数を検査する。
func validateLocation(field, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if len([]rune(trimmed)) < MinLocationLen {
		return "", model.NewInvalidFieldError(field, fmt.Sprintf("must be at least %d characters", MinLocationLen))
	}
	return trimmed, nil
}

// sanitizeNotes は備考をサニタイズし、最大文字数を検査する。
func (s *Service) sanitizeNotes(notes string) (string, error) {
	cleaned := s.sanitizer.Sanitize(notes)
	if len([]rune(cleaned)) > MaxNotesLen {
		return "", model.NewInvalidFieldError("notes", fmt.Sprintf("must be at most %d characters", MaxNotesLen))
	}
	return cleaned, nil
}
