package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/rideboard/internal/model"
)

// PostgresRideRepo はPostgreSQLを使用したライドリポジトリ。
type PostgresRideRepo struct {
	db *sql.DB
}

// NewPostgresRideRepo はPostgresRideRepoを生成する。
func NewPostgresRideRepo(db *sql.DB) *PostgresRideRepo {
	return &PostgresRideRepo{db: db}
}

// CreateWithQuota は所有者のアクティブライド数の確認と挿入を
// 同一トランザクションで実行する。
// 所有者のusers行をFOR UPDATEでロックすることで、同一所有者からの
// 並行作成をトランザクション境界で直列化し、check-then-actの競合を防ぐ。
func (r *PostgresRideRepo) CreateWithQuota(ctx context.Context, ride *model.Ride, maxActive int, now time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 所有者行をロック（同一所有者の並行作成を直列化）
	var ownerID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM users WHERE id = $1 FOR UPDATE`,
		ride.OwnerUID,
	).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("ride owner not found: %s", ride.OwnerUID)
	}
	if err != nil {
		return fmt.Errorf("failed to lock owner row: %w", err)
	}

	var activeCount int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rides WHERE owner_uid = $1 AND departure_time > $2`,
		ride.OwnerUID, now,
	).Scan(&activeCount)
	if err != nil {
		return fmt.Errorf("failed to count active rides: %w", err)
	}

	if activeCount >= maxActive {
		return ErrQuotaExceeded
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO rides (id, owner_uid, owner_email, departure_time, start_location, destination, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ride.ID, ride.OwnerUID, ride.OwnerEmail, ride.DepartureTime,
		ride.StartLocation, ride.Destination, ride.Notes,
		ride.CreatedAt, ride.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ride: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// FindByID は指定IDのライドを取得する。見つからない場合はnilを返す。
func (r *PostgresRideRepo) FindByID(ctx context.Context, id string) (*model.Ride, error) {
	ride := &model.Ride{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_uid, owner_email, departure_time, start_location, destination, notes, created_at, updated_at
		 FROM rides WHERE id = $1`,
		id,
	).Scan(
		&ride.ID, &ride.OwnerUID, &ride.OwnerEmail, &ride.DepartureTime,
		&ride.StartLocation, &ride.Destination, &ride.Notes,
		&ride.CreatedAt, &ride.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find ride: %w", err)
	}
	return ride, nil
}

// ListActive はdeparture_timeがnowより後のライドを出発時刻昇順で返す。
// ownerUIDが空でない場合はその所有者のライドのみに絞り込む。
func (r *PostgresRideRepo) ListActive(ctx context.Context, ownerUID string, now time.Time) ([]*model.Ride, error) {
	query := `SELECT id, owner_uid, owner_email, departure_time, start_location, destination, notes, created_at, updated_at
	          FROM rides WHERE departure_time > $1`
	args := []any{now}

	if ownerUID != "" {
		query += ` AND owner_uid = $2`
		args = append(args, ownerUID)
	}
	query += ` ORDER BY departure_time ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rides: %w", err)
	}
	defer rows.Close()

	rides := []*model.Ride{}
	for rows.Next() {
		ride := &model.Ride{}
		if err := rows.Scan(
			&ride.ID, &ride.OwnerUID, &ride.OwnerEmail, &ride.DepartureTime,
			&ride.StartLocation, &ride.Destination, &ride.Notes,
			&ride.CreatedAt, &ride.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ride: %w", err)
		}
		rides = append(rides, ride)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rides: %w", err)
	}

	return rides, nil
}

// Update はライドの可変フィールドを上書き更新する。
// owner_uid / owner_email / created_at は作成時から不変のため更新しない。
func (r *PostgresRideRepo) Update(ctx context.Context, ride *model.Ride) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE rides
		 SET departure_time = $2, start_location = $3, destination = $4, notes = $5, updated_at = $6
		 WHERE id = $1`,
		ride.ID, ride.DepartureTime, ride.StartLocation, ride.Destination,
		ride.Notes, ride.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update ride: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("ride not found: %s", ride.ID)
	}
	return nil
}

// DeleteByID は指定IDのライドを削除する。
func (r *PostgresRideRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM rides WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete ride: %w", err)
	}
	return nil
}

// ListExpiredIDs はdeparture_timeがnow以前のライドのIDを返す。
func (r *PostgresRideRepo) ListExpiredIDs(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM rides WHERE departure_time <= $1`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired rides: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan ride id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ride ids: %w", err)
	}

	return ids, nil
}

// compile-time interface check
var _ RideRepository = (*PostgresRideRepo)(nil)
