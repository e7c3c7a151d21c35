package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// Endpoint は下流サービス1つ分の静的な接続設定。起動後は変更しない。
type Endpoint struct {
	// Name はサービス名。ログとエラーメッセージに使用する。
	Name string
	// BaseURL は接続先サービスのベースURL。
	BaseURL string
	// Timeout は1回の試行あたりのタイムアウト。
	Timeout time.Duration
	// MaxRetries は最大試行回数（初回を含む）。
	MaxRetries int
}

// UnavailableError はリトライをすべて使い切っても下流サービスに
// 到達できなかったことを表す。最後に発生したエラーを保持する。
type UnavailableError struct {
	// Service は到達できなかったサービス名。
	Service string
	// Attempts は実行した試行回数。
	Attempts int
	// Err は最後の試行で発生したエラー。
	Err error
}

// Error はエラーメッセージを返す。
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("サービス%sに%d回の試行後も到達できません: %v", e.Service, e.Attempts, e.Err)
}

// Unwrap は最後の試行で発生したエラーを返す。
func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Response は下流サービスからのHTTPレスポンス。
// エラーステータスを含め、ボディはそのまま保持する。
type Response struct {
	// StatusCode はHTTPステータスコード。
	StatusCode int
	// ContentType はContent-Typeヘッダーの値。
	ContentType string
	// Body はレスポンスボディ全体。
	Body []byte
}

// Client は1つの下流サービスに対するHTTPクライアント。
type Client struct {
	// endpoint は接続先サービスの設定。
	endpoint Endpoint
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// backoffUnit はバックオフ時間の単位。attempt回目の失敗後に
	// backoffUnit * 2^attempt だけ待つ。
	backoffUnit time.Duration
	// sleep はバックオフ待機の実装。テストで差し替える。
	sleep func(ctx context.Context, d time.Duration) error
	// onRetry は各リトライ前に呼ばれるフック。nilの場合は何もしない。
	onRetry func(attempt int, err error, backoff time.Duration)
}

// Option はClientの設定を変更する関数。
type Option func(*Client)

// WithBackoffUnit はバックオフ時間の単位を設定する。デフォルトは1秒。
func WithBackoffUnit(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.backoffUnit = d
		}
	}
}

// WithOnRetry は各リトライ前に呼ばれるフックを設定する。
// gatewayがリトライをログとメトリクスに記録するために使用する。
func WithOnRetry(fn func(attempt int, err error, backoff time.Duration)) Option {
	return func(c *Client) {
		c.onRetry = fn
	}
}

// New は新しい下流サービス用クライアントを生成する。
// MaxRetriesが0以下の場合は1回（リトライなし）、Timeoutが0以下の場合は
// 5秒を使用する。
func New(endpoint Endpoint, opts ...Option) *Client {
	if endpoint.MaxRetries <= 0 {
		endpoint.MaxRetries = 1
	}
	if endpoint.Timeout <= 0 {
		endpoint.Timeout = 5 * time.Second
	}

	c := &Client{
		endpoint:    endpoint,
		httpClient:  &http.Client{},
		backoffUnit: time.Second,
		sleep: func(ctx context.Context, d time.Duration) error {
			select {
			case <-time.After(d):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do は下流サービスへHTTPリクエストを送信する。
// 接続失敗とタイムアウトは指数バックオフ付きでリトライし、すべての
// 試行が失敗した場合は*UnavailableErrorを返す。下流がHTTPレスポンスを
// 返した場合はステータスに関係なくリトライせずそのまま返す。
func (c *Client) Do(ctx context.Context, method, path string, body []byte) (*Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.endpoint.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := c.attempt(ctx, method, path, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt >= c.endpoint.MaxRetries {
			break
		}

		backoff := c.backoff(attempt)
		if c.onRetry != nil {
			c.onRetry(attempt, err, backoff)
		}
		if err := c.sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}

	return nil, &UnavailableError{
		Service:  c.endpoint.Name,
		Attempts: c.endpoint.MaxRetries,
		Err:      lastErr,
	}
}

// GetJSON は指定パスにGETリクエストを送信し、2xxレスポンスのボディを
// resultにデシリアライズする。2xx以外のステータスはエラーとして返す。
func (c *Client) GetJSON(ctx context.Context, path string, result any) error {
	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("サービス%sがエラーを返却: status=%d", c.endpoint.Name, resp.StatusCode)
	}
	if result != nil {
		if err := json.Unmarshal(resp.Body, result); err != nil {
			return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
		}
	}
	return nil
}

// attempt は1回の試行を実行する。タイムアウトは試行ごとに適用する。
func (c *Client) attempt(ctx context.Context, method, path string, body []byte) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.endpoint.Timeout)
	defer cancel()

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, c.endpoint.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗: %w", err)
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        respBody,
	}, nil
}

// backoff はattempt回目の失敗後に待つ時間を返す。
func (c *Client) backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * c.backoffUnit
}
