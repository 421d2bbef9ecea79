// Package ratelimit は認証試行の固定ウィンドウ型レートリミッターを提供する。
// キーごとにウィンドウ内の試行回数を数え、上限超過を拒否する。
// インメモリ実装であり、プロセス再起動でリセットされる（悪用抑止が目的で
// ハードなセキュリティ境界ではないため許容する）。
package ratelimit

import (
	"sync"
	"time"
)

// record はキーごとの試行カウンタとウィンドウ開始時刻を保持する。
type record struct {
	count       int
	windowStart time.Time
}

// AttemptLimiter は固定ウィンドウ方式の試行回数リミッター。
// ウィンドウ境界でのバーストを許容する代わりに、メモリ使用量が有界で実装が単純。
type AttemptLimiter struct {
	mu      sync.Mutex
	records map[string]*record
	now     func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewAttemptLimiter は新しいAttemptLimiterを生成する。
// pruneIntervalが正の場合、古いエントリを定期削除するバックグラウンド
// ゴルーチンを起動する。テストでは0を渡してループを無効化できる。
func NewAttemptLimiter(pruneInterval time.Duration) *AttemptLimiter {
	l := &AttemptLimiter{
		records: make(map[string]*record),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	if pruneInterval > 0 {
		go l.pruneLoop(pruneInterval)
	}

	return l
}

// SetClock は現在時刻の取得関数を差し替える。テスト用。
func (l *AttemptLimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Allow はkeyに対する1回の試行を記録し、許可するかどうかを返す。
// レコードが存在しないか、ウィンドウ開始からwindowを超過している場合は
// count=1で新しいウィンドウを開始して許可する。
// countがmaxAttemptsに達している場合はレコードを変更せずに拒否する。
// それ以外はcountを加算して許可する。
func (l *AttemptLimiter) Allow(key string, maxAttempts int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	rec, ok := l.records[key]
	if !ok || now.Sub(rec.windowStart) > window {
		l.records[key] = &record{count: 1, windowStart: now}
		return true
	}

	if rec.count >= maxAttempts {
		return false
	}

	rec.count++
	return true
}

// Reset はkeyのレコードを無条件に破棄する。
// ログイン成功など、正当な操作の完了時に呼び出す。
func (l *AttemptLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, key)
}

// Len は現在保持しているレコード数を返す。テストおよびメトリクス用。
func (l *AttemptLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Stop はバックグラウンドの削除ゴルーチンを停止する。
func (l *AttemptLimiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
}

// pruneLoop はバックグラウンドで古いエントリを定期的に削除する。
func (l *AttemptLimiter) pruneLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.prune(interval)
		case <-l.stopCh:
			return
		}
	}
}

// prune はウィンドウ開始からttlの2倍を超えたエントリを削除する。
// 最長のウィンドウ（60分）より十分長い間隔で呼び出されることを想定する。
func (l *AttemptLimiter) prune(ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, rec := range l.records {
		if now.Sub(rec.windowStart) > ttl*2 {
			delete(l.records, key)
		}
	}
}
