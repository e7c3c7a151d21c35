package catalog

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SearchResult は検索結果1件分。スコアは0より大きく1以下で、
// 一致したフィールドの重みの合計。
type SearchResult struct {
	Book
	// SearchScore は検索クエリとの一致度。
	SearchScore float64 `json:"search_score"`
}

// searchWeights はフィールドごとの一致スコアの重み。
var searchWeights = []struct {
	field  func(Book) string
	weight float64
}{
	{func(b Book) string { return b.Title }, 0.5},
	{func(b Book) string { return b.Author }, 0.3},
	{func(b Book) string { return b.Description }, 0.1},
	{func(b Book) string { return b.Category }, 0.1},
}

// scoreBook は書籍と検索クエリの一致度を返す。一致がない場合は0。
func scoreBook(b Book, query string) float64 {
	query = strings.ToLower(query)
	var score float64
	for _, w := range searchWeights {
		if strings.Contains(strings.ToLower(w.field(b)), query) {
			score += w.weight
		}
	}
	return score
}

// searchBooks はカテゴリ・著者で絞り込んだうえで、クエリ文字列との
// 一致度順に並べた検索結果を返す。クエリが空の場合は絞り込みのみ行う。
func searchBooks(books []Book, query, category, author string) []SearchResult {
	filtered := books[:0:0]
	for _, b := range books {
		if category != "" &&
			!strings.Contains(strings.ToLower(b.Category), strings.ToLower(category)) {
			continue
		}
		if author != "" &&
			!strings.Contains(strings.ToLower(b.Author), strings.ToLower(author)) {
			continue
		}
		filtered = append(filtered, b)
	}

	results := []SearchResult{}
	for _, b := range filtered {
		score := 1.0
		if query != "" {
			score = scoreBook(b, query)
			if score == 0 {
				continue
			}
		}
		results = append(results, SearchResult{Book: b, SearchScore: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].SearchScore > results[j].SearchScore
	})
	return results
}

// handleSearch は横断検索のハンドラを返す。
// q・category・authorの少なくとも1つの指定が必要。
func (s *Server) handleSearch() gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Query("q")
		category := c.Query("category")
		author := c.Query("author")

		if query == "" && category == "" && author == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "検索条件を少なくとも1つ指定してください"})
			return
		}

		books, err := s.store.ListAllBooks(c.Request.Context())
		if err != nil {
			s.logger.Error("検索用の書籍取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "内部サーバーエラーが発生しました"})
			return
		}

		results := searchBooks(books, query, category, author)
		s.logger.Info("検索を実行しました",
			zap.String("query", query), zap.Int("results", len(results)))
		c.JSON(http.StatusOK, gin.H{"results": results, "total": len(results)})
	}
}

// handleRecommendations はおすすめ書籍のハンドラを返す。
// 平均評価ベースの単純なアルゴリズムを使用する。
func (s *Server) handleRecommendations() gin.HandlerFunc {
	return func(c *gin.Context) {
		books, err := s.store.Recommendations(c.Request.Context())
		if err != nil {
			s.logger.Error("おすすめ書籍の取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "内部サーバーエラーが発生しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"recommendations": books,
			"algorithm":       "rating-based",
		})
	}
}
