package ratelimit

import (
	"testing"
	"time"
)

// fakeClock はテスト用の手動時計。
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time {
	return c.current
}

func (c *fakeClock) advance(d time.Duration) {
	c.current = c.current.Add(d)
}

// newTestLimiter は手動時計を持つテスト用Limiterを生成する。
func newTestLimiter(t *testing.T, length time.Duration, max int) (*Limiter, *fakeClock) {
	t.Helper()

	clock := &fakeClock{current: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(length, max)
	l.now = clock.now
	return l, clock
}

// TestAllow は固定ウィンドウの計数と拒否を検証する。
func TestAllow(t *testing.T) {
	t.Parallel()

	t.Run("上限までは許可され101件目で拒否されること", func(t *testing.T) {
		t.Parallel()

		l, _ := newTestLimiter(t, time.Minute, 100)

		for i := 0; i < 100; i++ {
			if d := l.Allow("client-a"); !d.Allowed {
				t.Fatalf("%d件目が拒否された", i+1)
			}
		}

		d := l.Allow("client-a")
		if d.Allowed {
			t.Error("101件目が許可された")
		}
		if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
			t.Errorf("RetryAfter = %v, want 0より大きくウィンドウ長以下", d.RetryAfter)
		}
	})

	t.Run("ウィンドウ経過後の1件目は前の計数に関係なく許可されること", func(t *testing.T) {
		t.Parallel()

		l, clock := newTestLimiter(t, time.Minute, 2)

		l.Allow("client-a")
		l.Allow("client-a")
		if d := l.Allow("client-a"); d.Allowed {
			t.Fatal("上限超過のリクエストが許可された")
		}

		clock.advance(time.Minute)
		if d := l.Allow("client-a"); !d.Allowed {
			t.Error("新しいウィンドウの1件目が拒否された")
		}
	})

	t.Run("ちょうど境界のリクエストは新しいウィンドウに属すること", func(t *testing.T) {
		t.Parallel()

		l, clock := newTestLimiter(t, time.Minute, 1)

		if d := l.Allow("client-a"); !d.Allowed {
			t.Fatal("1件目が拒否された")
		}

		// ウィンドウ開始からちょうどウィンドウ長だけ経過した時刻
		clock.advance(time.Minute)
		d := l.Allow("client-a")
		if !d.Allowed {
			t.Error("境界ちょうどのリクエストが拒否された")
		}
		if d.Remaining != 0 {
			t.Errorf("Remaining = %d, want 0（新ウィンドウのcount=1）", d.Remaining)
		}
	})

	t.Run("クライアントごとに独立して計数されること", func(t *testing.T) {
		t.Parallel()

		l, _ := newTestLimiter(t, time.Minute, 1)

		if d := l.Allow("client-a"); !d.Allowed {
			t.Fatal("client-aの1件目が拒否された")
		}
		if d := l.Allow("client-a"); d.Allowed {
			t.Fatal("client-aの2件目が許可された")
		}
		if d := l.Allow("client-b"); !d.Allowed {
			t.Error("client-bの1件目が拒否された")
		}
	})

	t.Run("RetryAfterがウィンドウの残り時間になること", func(t *testing.T) {
		t.Parallel()

		l, clock := newTestLimiter(t, time.Minute, 1)

		l.Allow("client-a")
		clock.advance(20 * time.Second)

		d := l.Allow("client-a")
		if d.Allowed {
			t.Fatal("上限超過のリクエストが許可された")
		}
		if d.RetryAfter != 40*time.Second {
			t.Errorf("RetryAfter = %v, want %v", d.RetryAfter, 40*time.Second)
		}
	})
}

// TestSweep は期限切れウィンドウの掃除を検証する。
func TestSweep(t *testing.T) {
	t.Parallel()

	t.Run("ウィンドウ長経過後に期限切れエントリが削除されること", func(t *testing.T) {
		t.Parallel()

		l, clock := newTestLimiter(t, time.Minute, 10)

		l.Allow("client-a")
		l.Allow("client-b")

		clock.advance(2 * time.Minute)
		l.Allow("client-c")

		l.mu.Lock()
		defer l.mu.Unlock()
		if _, ok := l.windows["client-a"]; ok {
			t.Error("期限切れのclient-aウィンドウが残っている")
		}
		if _, ok := l.windows["client-c"]; !ok {
			t.Error("有効なclient-cウィンドウが消えている")
		}
	})
}
