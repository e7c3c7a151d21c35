package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// newFlakyServer は最初のfailures回は接続を切断し、その後は
// 指定ボディの200レスポンスを返すテストサーバーを生成する。
// 接続切断はクライアント側でトランスポートエラーとして観測される。
func newFlakyServer(t *testing.T, failures int32, body string) (*httptest.Server, *int32) {
	t.Helper()

	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= failures {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("テストサーバーがHijackerを実装していない")
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Fatalf("コネクションのハイジャックに失敗: %v", err)
			}
			conn.Close()
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(ts.Close)

	return ts, &calls
}

// newTestClient はバックオフ待機を記録だけして即座に進むクライアントを生成する。
func newTestClient(t *testing.T, endpoint Endpoint) (*Client, *[]time.Duration) {
	t.Helper()

	var delays []time.Duration
	c := New(endpoint, WithBackoffUnit(time.Millisecond))
	c.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return c, &delays
}

// TestDoRetry は接続失敗時のリトライとバックオフを検証する。
func TestDoRetry(t *testing.T) {
	t.Parallel()

	t.Run("2回失敗後の3回目で成功し、バックオフが単調増加すること", func(t *testing.T) {
		t.Parallel()

		ts, calls := newFlakyServer(t, 2, `{"ok":true}`)
		c, delays := newTestClient(t, Endpoint{
			Name:       "books",
			BaseURL:    ts.URL,
			Timeout:    time.Second,
			MaxRetries: 3,
		})

		resp, err := c.Do(context.Background(), http.MethodGet, "/books", nil)
		if err != nil {
			t.Fatalf("Do()でエラーが発生: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		if string(resp.Body) != `{"ok":true}` {
			t.Errorf("Body = %q, want %q", resp.Body, `{"ok":true}`)
		}
		if got := atomic.LoadInt32(calls); got != 3 {
			t.Errorf("試行回数 = %d, want 3", got)
		}

		if len(*delays) != 2 {
			t.Fatalf("バックオフ回数 = %d, want 2", len(*delays))
		}
		if (*delays)[0] >= (*delays)[1] {
			t.Errorf("バックオフが単調増加していない: %v", *delays)
		}
	})

	t.Run("常に失敗する場合は試行回数分でUnavailableErrorになること", func(t *testing.T) {
		t.Parallel()

		ts, calls := newFlakyServer(t, 1000, "")
		c, _ := newTestClient(t, Endpoint{
			Name:       "books",
			BaseURL:    ts.URL,
			Timeout:    time.Second,
			MaxRetries: 3,
		})

		_, err := c.Do(context.Background(), http.MethodGet, "/books", nil)
		var unavailable *UnavailableError
		if !errors.As(err, &unavailable) {
			t.Fatalf("err = %v, want *UnavailableError", err)
		}
		if unavailable.Service != "books" {
			t.Errorf("Service = %q, want %q", unavailable.Service, "books")
		}
		if unavailable.Attempts != 3 {
			t.Errorf("Attempts = %d, want 3", unavailable.Attempts)
		}
		if unavailable.Unwrap() == nil {
			t.Error("最後の試行のエラーが保持されていない")
		}
		if got := atomic.LoadInt32(calls); got != 3 {
			t.Errorf("試行回数 = %d, want 3", got)
		}
	})

	t.Run("エラーステータスのHTTPレスポンスはリトライせずそのまま返すこと", func(t *testing.T) {
		t.Parallel()

		var calls int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"not found"}`)
		}))
		t.Cleanup(ts.Close)

		c, delays := newTestClient(t, Endpoint{
			Name:       "books",
			BaseURL:    ts.URL,
			Timeout:    time.Second,
			MaxRetries: 3,
		})

		resp, err := c.Do(context.Background(), http.MethodGet, "/books/missing", nil)
		if err != nil {
			t.Fatalf("Do()でエラーが発生: %v", err)
		}
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusNotFound)
		}
		if string(resp.Body) != `{"error":"not found"}` {
			t.Errorf("Body = %q, want %q", resp.Body, `{"error":"not found"}`)
		}
		if got := atomic.LoadInt32(&calls); got != 1 {
			t.Errorf("試行回数 = %d, want 1（リトライなし）", got)
		}
		if len(*delays) != 0 {
			t.Errorf("バックオフが発生した: %v", *delays)
		}
	})

	t.Run("タイムアウトも失敗試行として数えられること", func(t *testing.T) {
		t.Parallel()

		var calls int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			time.Sleep(200 * time.Millisecond)
		}))
		t.Cleanup(ts.Close)

		c, _ := newTestClient(t, Endpoint{
			Name:       "books",
			BaseURL:    ts.URL,
			Timeout:    20 * time.Millisecond,
			MaxRetries: 2,
		})

		_, err := c.Do(context.Background(), http.MethodGet, "/books", nil)
		var unavailable *UnavailableError
		if !errors.As(err, &unavailable) {
			t.Fatalf("err = %v, want *UnavailableError", err)
		}
		if got := atomic.LoadInt32(&calls); got != 2 {
			t.Errorf("試行回数 = %d, want 2", got)
		}
	})

	t.Run("リトライフックに試行番号とバックオフが渡ること", func(t *testing.T) {
		t.Parallel()

		ts, _ := newFlakyServer(t, 1, `{}`)

		var gotAttempt int
		var gotBackoff time.Duration
		c := New(Endpoint{
			Name:       "books",
			BaseURL:    ts.URL,
			Timeout:    time.Second,
			MaxRetries: 2,
		}, WithBackoffUnit(time.Millisecond), WithOnRetry(func(attempt int, err error, backoff time.Duration) {
			gotAttempt = attempt
			gotBackoff = backoff
		}))
		c.sleep = func(context.Context, time.Duration) error { return nil }

		if _, err := c.Do(context.Background(), http.MethodGet, "/books", nil); err != nil {
			t.Fatalf("Do()でエラーが発生: %v", err)
		}
		if gotAttempt != 1 {
			t.Errorf("attempt = %d, want 1", gotAttempt)
		}
		if gotBackoff != 2*time.Millisecond {
			t.Errorf("backoff = %v, want %v", gotBackoff, 2*time.Millisecond)
		}
	})
}

// TestGetJSON はJSONデコード付きGETを検証する。
func TestGetJSON(t *testing.T) {
	t.Parallel()

	t.Run("2xxレスポンスをデシリアライズできること", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"totalBooks":{"count":42}}`)
		}))
		t.Cleanup(ts.Close)

		c := New(Endpoint{Name: "books", BaseURL: ts.URL, Timeout: time.Second, MaxRetries: 1})

		var result map[string]map[string]int
		if err := c.GetJSON(context.Background(), "/stats", &result); err != nil {
			t.Fatalf("GetJSON()でエラーが発生: %v", err)
		}
		if result["totalBooks"]["count"] != 42 {
			t.Errorf("count = %d, want 42", result["totalBooks"]["count"])
		}
	})

	t.Run("2xx以外のステータスはエラーになること", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		t.Cleanup(ts.Close)

		c := New(Endpoint{Name: "books", BaseURL: ts.URL, Timeout: time.Second, MaxRetries: 1})
		if err := c.GetJSON(context.Background(), "/stats", nil); err == nil {
			t.Error("エラーが返らなかった")
		}
	})
}

// TestBackoff はバックオフ計算を検証する。
func TestBackoff(t *testing.T) {
	t.Parallel()

	t.Run("単位時間の2のattempt乗になること", func(t *testing.T) {
		t.Parallel()

		c := New(Endpoint{Name: "books", BaseURL: "http://localhost", Timeout: time.Second, MaxRetries: 3},
			WithBackoffUnit(time.Second))

		want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
		for i, w := range want {
			if got := c.backoff(i + 1); got != w {
				t.Errorf("backoff(%d) = %v, want %v", i+1, got, w)
			}
		}
	})
}
