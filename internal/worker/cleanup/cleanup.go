// Package cleanup は出発済みライドの自動削除ジョブを提供する。
// departure_timeが現在時刻以前になったライドを定期バッチで削除し、
// 掲示板にアクティブなライドのみが残るようにする。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/rideboard/internal/repository"
)

// MetricsRecorder はクリーンアップメトリクスの記録インターフェース。
type MetricsRecorder interface {
	RecordExpiredRidesRemoved(count int)
	RecordCleanupFailures(count int)
}

// Result は1回のクリーンアップ実行の結果。
type Result struct {
	// Removed は削除に成功したライド数。
	Removed int
	// FailedIDs は削除に失敗したライドのID。次回実行で再試行される。
	FailedIDs []string
}

// CleanupJob は出発済みライドの自動削除ジョブ。
// 定期実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
// 個別の削除失敗はバッチ全体を止めず、残りの対象の処理を続行する。
type CleanupJob struct {
	rideRepo repository.RideRepository
	logger   *slog.Logger
	metrics  MetricsRecorder
	now      func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。metricsはnilを許容する。
func NewCleanupJob(rideRepo repository.RideRepository, logger *slog.Logger, metrics MetricsRecorder) *CleanupJob {
	return &CleanupJob{
		rideRepo: rideRepo,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// SetClock は現在時刻の取得関数を差し替える。テスト用。
func (j *CleanupJob) SetClock(now func() time.Time) {
	j.now = now
}

// Run は出発時刻を過ぎたライドを削除する。
// 対象の列挙に失敗した場合のみエラーを返す。個別の削除失敗は
// Result.FailedIDsに記録し、処理を続行する。
// 冪等: 削除対象がない場合や、同じ対象への再実行でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	now := j.now()

	ids, err := j.rideRepo.ListExpiredIDs(ctx, now)
	if err != nil {
		j.logger.Error("出発済みライドの列挙に失敗しました",
			slog.String("error", err.Error()),
		)
		return Result{}, fmt.Errorf("出発済みライドの列挙に失敗: %w", err)
	}

	var result Result
	for _, id := range ids {
		if err := j.rideRepo.DeleteByID(ctx, id); err != nil {
			j.logger.Error("出発済みライドの削除に失敗しました",
				slog.String("ride_id", id),
				slog.String("error", err.Error()),
			)
			result.FailedIDs = append(result.FailedIDs, id)
			continue
		}
		result.Removed++
	}

	if j.metrics != nil {
		j.metrics.RecordExpiredRidesRemoved(result.Removed)
		if len(result.FailedIDs) > 0 {
			j.metrics.RecordCleanupFailures(len(result.FailedIDs))
		}
	}

	duration := time.Since(start)
	j.logger.Info("ライドクリーンアップジョブが完了しました",
		slog.Int("removed_count", result.Removed),
		slog.Int("failed_count", len(result.FailedIDs)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return result, nil
}
