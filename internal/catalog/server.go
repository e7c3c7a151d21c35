package catalog

import (
	"database/sql"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/nao1215/biblioteca/pkg/metrics"
	"github.com/nao1215/biblioteca/pkg/middleware"
)

// Server は蔵書カタログサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store はSQLiteデータアクセス層。
	store *Store
	// db はSQLiteデータベース接続。
	db *sql.DB
	// logger は構造化ロガー。
	logger *zap.Logger
	// collector はPrometheusメトリクス収集器。
	collector *metrics.Collector
}

// NewServer は新しいカタログサーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行い、設定に応じて
// デモ用データを投入する。
func NewServer(cfg Config, logger *zap.Logger) (*Server, error) {
	sqlDB, err := sql.Open("sqlite",
		cfg.DBPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	store := NewStore(sqlDB)
	if cfg.Seed {
		if err := seedBooks(sqlDB, store); err != nil {
			return nil, fmt.Errorf("デモ用データの投入に失敗: %w", err)
		}
		logger.Info("デモ用の書籍データを投入しました")
	}

	collector := metrics.New("catalog")

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))
	router.Use(collector.Middleware())

	s := &Server{
		router:    router,
		port:      cfg.Port,
		store:     store,
		db:        sqlDB,
		logger:    logger,
		collector: collector,
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// Close はデータベース接続を閉じる。
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	books := s.router.Group("/books")
	{
		// 書籍一覧（ページング・フィルタ付き）
		books.GET("", s.handleListBooks())
		// 書籍詳細（レビュー付き）
		books.GET("/:id", s.handleGetBook())
		// 書籍登録
		books.POST("", s.handleCreateBook())
		// 書籍更新
		books.PUT("/:id", s.handleUpdateBook())
		// 書籍削除
		books.DELETE("/:id", s.handleDeleteBook())
		// レビュー登録
		books.POST("/:id/reviews", s.handleAddReview())
	}

	// 検索・おすすめ・カテゴリ・統計
	s.router.GET("/search", s.handleSearch())
	s.router.GET("/recommendations", s.handleRecommendations())
	s.router.GET("/categories", s.handleListCategories())
	s.router.GET("/stats", s.handleStats())

	// ヘルスチェックとメトリクス
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "catalog"})
	})
	s.router.GET("/metrics", gin.WrapH(s.collector.Handler()))
}
