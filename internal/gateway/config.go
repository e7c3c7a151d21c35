package gateway

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config はGatewayサービスの設定。環境変数から読み込む。
type Config struct {
	// Port はサーバーのリッスンポート。
	Port string `env:"PORT" envDefault:"8080"`
	// BooksServiceURL はカタログサービスのベースURL。
	BooksServiceURL string `env:"BOOKS_SERVICE_URL" envDefault:"http://localhost:8081"`
	// BooksServiceTimeout はカタログサービスへの1試行あたりのタイムアウト。
	BooksServiceTimeout time.Duration `env:"BOOKS_SERVICE_TIMEOUT" envDefault:"5s"`
	// BooksServiceRetries はカタログサービスへの最大試行回数。
	BooksServiceRetries int `env:"BOOKS_SERVICE_RETRIES" envDefault:"3"`
	// JWTSecret はJWT署名用の秘密鍵。
	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-secret-key"`
	// TokenTTL は発行するJWTの有効期間。
	TokenTTL time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	// RedisAddr はRedisのアドレス。空の場合はインメモリキャッシュを使用する。
	RedisAddr string `env:"REDIS_ADDR"`
	// RateLimitWindow はレート制限の固定ウィンドウ長。
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"15m"`
	// RateLimitMax はウィンドウあたりの最大リクエスト数。
	RateLimitMax int `env:"RATE_LIMIT_MAX" envDefault:"100"`
	// DBPath はユーザーデータベースのファイルパス。
	DBPath string `env:"GATEWAY_DB_PATH" envDefault:"/data/gateway.db"`
	// FrontendURL はCORSで許可するフロントエンドのオリジン。
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
}

// LoadConfig は環境変数からGateway設定を読み込む。
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
	}
	return cfg, nil
}
