package catalog

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// handleListCategories はカテゴリ一覧のハンドラを返す。
func (s *Server) handleListCategories() gin.HandlerFunc {
	return func(c *gin.Context) {
		categories, err := s.store.ListCategories(c.Request.Context())
		if err != nil {
			s.logger.Error("カテゴリ一覧の取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "内部サーバーエラーが発生しました"})
			return
		}
		c.JSON(http.StatusOK, categories)
	}
}

// handleStats はカタログ統計のハンドラを返す。
func (s *Server) handleStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := s.store.GetStats(c.Request.Context())
		if err != nil {
			s.logger.Error("統計の集計に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "内部サーバーエラーが発生しました"})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}
