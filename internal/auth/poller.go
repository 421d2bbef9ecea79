package auth

import (
	"context"
	"log/slog"
	"time"
)

// DefaultPollInterval は検証ポーリングの既定間隔。
const DefaultPollInterval = 5 * time.Second

// VerificationChecker は検証状態の問い合わせインターフェース。
// Service.CheckVerificationがこれを満たす。
type VerificationChecker interface {
	CheckVerification(ctx context.Context, userID string) (bool, error)
}

// VerificationPoller はPendingVerification中のユーザーの検証完了を
// 固定間隔でポーリングする。検証はメール内リンクのクリックで
// 帯域外に完了するため、サーバープッシュではなくポーリングで検出する。
type VerificationPoller struct {
	checker  VerificationChecker
	interval time.Duration
}

// NewVerificationPoller はVerificationPollerを生成する。
// intervalが0以下の場合はDefaultPollIntervalを使用する。
func NewVerificationPoller(checker VerificationChecker, interval time.Duration) *VerificationPoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &VerificationPoller{
		checker:  checker,
		interval: interval,
	}
}

// Wait は指定ユーザーの検証が完了するまでブロックし、完了時にnilを返す。
// 最初のチェックは即座に行い、以降はinterval間隔で繰り返す。
// 一時的なチェック失敗はログに記録してポーリングを継続する。
// ctxのキャンセルでctx.Err()を返して終了する。
func (p *VerificationPoller) Wait(ctx context.Context, userID string) error {
	verified, err := p.check(ctx, userID)
	if err == nil && verified {
		return nil
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			verified, err := p.check(ctx, userID)
			if err != nil {
				continue
			}
			if verified {
				return nil
			}
		}
	}
}

// check は1回分の検証チェックを行う。失敗はログに記録する。
func (p *VerificationPoller) check(ctx context.Context, userID string) (bool, error) {
	verified, err := p.checker.CheckVerification(ctx, userID)
	if err != nil {
		slog.Warn("verification check failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return false, err
	}
	return verified, nil
}
