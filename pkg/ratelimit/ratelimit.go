package ratelimit

import (
	"sync"
	"time"
)

// Decision は1リクエストに対する制限判定の結果を表す。
type Decision struct {
	// Allowed はリクエストを許可するかどうか。
	Allowed bool
	// Remaining は現在のウィンドウで残っている許可数。
	Remaining int
	// RetryAfter は拒否時に再試行まで待つべき時間。許可時は0。
	RetryAfter time.Duration
}

// window はクライアント1つ分の計数ウィンドウ。
type window struct {
	// start はウィンドウの開始時刻。
	start time.Time
	// count はウィンドウ内で観測したリクエスト数。
	count int
}

// Limiter は固定ウィンドウ方式のレートリミッター。
// クライアント識別子ごとに独立したウィンドウを持つ。
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	// length はウィンドウの長さ。
	length time.Duration
	// max はウィンドウあたりの最大許可リクエスト数。
	max int
	// now は現在時刻の取得関数。テストで差し替える。
	now func() time.Time
	// lastSweep は期限切れウィンドウを掃除した最終時刻。
	lastSweep time.Time
}

// New は新しいLimiterを生成する。
// lengthはウィンドウ長、maxはウィンドウあたりの最大リクエスト数。
func New(length time.Duration, max int) *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		length:  length,
		max:     max,
		now:     time.Now,
	}
}

// Allow はclientKeyのリクエスト1件を計数し、許可判定を返す。
// ウィンドウが存在しない、または経過済みの場合は新しいウィンドウを
// count=1で開始して許可する。ちょうど境界に到達したリクエストは
// 新しいウィンドウに属する（前ウィンドウの計数は引き継がない）。
func (l *Limiter) Allow(clientKey string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweepLocked(now)

	w, ok := l.windows[clientKey]
	if !ok || now.Sub(w.start) >= l.length {
		l.windows[clientKey] = &window{start: now, count: 1}
		return Decision{Allowed: true, Remaining: l.max - 1}
	}

	w.count++
	if w.count > l.max {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: l.length - now.Sub(w.start),
		}
	}
	return Decision{Allowed: true, Remaining: l.max - w.count}
}

// sweepLocked は期限切れウィンドウをまとめて削除する。
// 呼び出し頻度を抑えるためウィンドウ長ごとに1回だけ実行する。
func (l *Limiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.length {
		return
	}
	l.lastSweep = now
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.length {
			delete(l.windows, key)
		}
	}
}
