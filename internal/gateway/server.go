package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/nao1215/biblioteca/pkg/cache"
	"github.com/nao1215/biblioteca/pkg/httpclient"
	"github.com/nao1215/biblioteca/pkg/metrics"
	"github.com/nao1215/biblioteca/pkg/middleware"
	"github.com/nao1215/biblioteca/pkg/ratelimit"
	"github.com/nao1215/biblioteca/pkg/token"
)

// ルートごとのキャッシュ有効期間。
const (
	booksListTTL       = 5 * time.Minute
	bookDetailTTL      = 10 * time.Minute
	searchTTL          = 3 * time.Minute
	categoriesTTL      = time.Hour
	recommendationsTTL = 15 * time.Minute
	statsTTL           = 5 * time.Minute
)

// 変更操作の成功時に破棄するキャッシュキーのプレフィックス。
var (
	bookMutationPrefixes = []string{"/api/books", "/api/search", "/api/stats"}
	reviewPrefixes       = []string{"/api/books", "/api/recommendations", "/api/stats"}
)

// Server はAPI GatewayのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// db はユーザーデータベース接続。
	db *sql.DB
	// users はユーザーアカウントの永続化層。
	users UserRepository
	// tokens はJWTの発行・検証を行う。
	tokens *token.Authenticator
	// limiter は固定ウィンドウレート制限。
	limiter *ratelimit.Limiter
	// cache はレスポンスキャッシュのバックエンド。
	cache cache.Backend
	// books はカタログサービスへのリトライ付きHTTPクライアント。
	books *httpclient.Client
	// collector はPrometheusメトリクス収集器。
	collector *metrics.Collector
	// logger は構造化ロガー。
	logger *zap.Logger
}

// NewServer は新しいGatewayサーバーを生成する。
// Redisが設定されていて接続できない場合はインメモリキャッシュで縮退する。
func NewServer(cfg Config, logger *zap.Logger) (*Server, error) {
	sqlDB, err := sql.Open("sqlite",
		cfg.DBPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	users, err := NewSQLiteUserRepository(sqlDB)
	if err != nil {
		return nil, fmt.Errorf("ユーザーリポジトリの初期化に失敗: %w", err)
	}

	var backend cache.Backend
	if cfg.RedisAddr != "" {
		redisBackend, err := cache.NewRedis(context.Background(), cfg.RedisAddr)
		if err != nil {
			logger.Warn("Redisに接続できないためインメモリキャッシュで起動します",
				zap.String("addr", cfg.RedisAddr), zap.Error(err))
			backend = cache.NewMemory()
		} else {
			logger.Info("Redisキャッシュを使用します", zap.String("addr", cfg.RedisAddr))
			backend = redisBackend
		}
	} else {
		backend = cache.NewMemory()
	}

	collector := metrics.New("gateway")

	books := httpclient.New(httpclient.Endpoint{
		Name:       "catalog",
		BaseURL:    cfg.BooksServiceURL,
		Timeout:    cfg.BooksServiceTimeout,
		MaxRetries: cfg.BooksServiceRetries,
	}, httpclient.WithOnRetry(func(attempt int, err error, backoff time.Duration) {
		collector.UpstreamRetry("catalog")
		logger.Warn("カタログサービスへのリクエストを再試行します",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
	}))

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS([]string{cfg.FrontendURL}))
	router.Use(collector.Middleware())

	s := &Server{
		router:    router,
		port:      cfg.Port,
		db:        sqlDB,
		users:     users,
		tokens:    token.NewAuthenticator(cfg.JWTSecret, cfg.TokenTTL),
		limiter:   ratelimit.New(cfg.RateLimitWindow, cfg.RateLimitMax),
		cache:     backend,
		books:     books,
		collector: collector,
		logger:    logger,
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// Close はデータベースとキャッシュの接続を閉じる。
func (s *Server) Close() error {
	if err := s.cache.Close(); err != nil {
		s.logger.Warn("キャッシュのクローズに失敗しました", zap.Error(err))
	}
	return s.db.Close()
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api")

	// 認証エンドポイント。レート制限のみ適用する。
	auth := api.Group("/auth")
	{
		auth.POST("/register", s.guard(CapabilityNone), s.handleRegister())
		auth.POST("/login", s.guard(CapabilityNone), s.handleLogin())
		auth.GET("/me", s.guard(CapabilityAuthenticated), s.handleGetCurrentUser())
	}

	// 書籍（カタログサービスへのプロキシ）
	api.GET("/books", s.dispatch(route{
		capability: CapabilityNone,
		cacheTTL:   booksListTTL,
	}))
	api.GET("/books/:id", s.dispatch(route{
		capability: CapabilityNone,
		cacheTTL:   bookDetailTTL,
	}))
	api.POST("/books", s.dispatch(route{
		capability: CapabilityAdmin,
		invalidate: bookMutationPrefixes,
	}))
	api.PUT("/books/:id", s.dispatch(route{
		capability: CapabilityAdmin,
		invalidate: bookMutationPrefixes,
	}))
	api.DELETE("/books/:id", s.dispatch(route{
		capability: CapabilityAdmin,
		invalidate: bookMutationPrefixes,
	}))
	api.POST("/books/:id/reviews", s.dispatch(route{
		capability: CapabilityAuthenticated,
		invalidate: reviewPrefixes,
	}))

	// 検索・カテゴリ（公開）
	api.GET("/search", s.dispatch(route{
		capability: CapabilityNone,
		cacheTTL:   searchTTL,
	}))
	api.GET("/categories", s.dispatch(route{
		capability: CapabilityNone,
		cacheTTL:   categoriesTTL,
	}))

	// おすすめ・統計（要認証）。おすすめはユーザーごとにキャッシュする。
	api.GET("/recommendations", s.dispatch(route{
		capability: CapabilityAuthenticated,
		cacheTTL:   recommendationsTTL,
		rewriteQuery: func(st *requestState, query url.Values) {
			if st.principal != nil {
				query.Set("user", st.principal.Username)
			}
		},
	}))
	api.GET("/stats", s.dispatch(route{
		capability: CapabilityAuthenticated,
		cacheTTL:   statsTTL,
	}))

	// 管理者向けユーザー管理
	admin := api.Group("/admin", s.guard(CapabilityAdmin))
	{
		admin.GET("/users", s.handleListUsers())
		admin.PUT("/users/:username/role", s.handleUpdateUserRole())
		admin.DELETE("/users/:username", s.handleDeleteUser())
		admin.GET("/stats", s.handleAdminStats())
	}

	// ヘルスチェックとメトリクス
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
	s.router.GET("/metrics", gin.WrapH(s.collector.Handler()))

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "エンドポイントが見つかりません"})
	})
}
