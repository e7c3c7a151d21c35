package catalog

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// bookRequest は書籍の登録・更新リクエストのJSON構造。
type bookRequest struct {
	// Title はタイトル。
	Title string `json:"title" binding:"required"`
	// Author は著者。
	Author string `json:"author" binding:"required"`
	// ISBN はISBNコード。省略可能。
	ISBN string `json:"isbn"`
	// Category はカテゴリ名。
	Category string `json:"category" binding:"required"`
	// Description は概要。
	Description string `json:"description"`
	// PublishedYear は出版年。省略時は0。
	PublishedYear int `json:"published_year"`
	// Pages はページ数。省略時は0。
	Pages int `json:"pages"`
	// Language は言語コード。省略時はpt-BR。
	Language string `json:"language"`
	// TotalCopies は総在庫数。省略時は1。
	TotalCopies int `json:"total_copies"`
}

// validate はbinding後の値域チェックを行う。
// 問題がある場合はクライアント向けのメッセージを返す。
func (r *bookRequest) validate() string {
	if r.PublishedYear != 0 &&
		(r.PublishedYear < 1000 || r.PublishedYear > time.Now().Year()) {
		return "出版年が不正です"
	}
	if r.Pages < 0 {
		return "ページ数が不正です"
	}
	if r.TotalCopies < 0 {
		return "総在庫数が不正です"
	}
	return ""
}

// toBook はリクエストをBookに変換し、省略時のデフォルトを補う。
func (r *bookRequest) toBook() Book {
	language := r.Language
	if language == "" {
		language = "pt-BR"
	}
	totalCopies := r.TotalCopies
	if totalCopies == 0 {
		totalCopies = 1
	}
	return Book{
		Title:         r.Title,
		Author:        r.Author,
		ISBN:          r.ISBN,
		Category:      r.Category,
		Description:   r.Description,
		PublishedYear: r.PublishedYear,
		Pages:         r.Pages,
		Language:      language,
		TotalCopies:   totalCopies,
	}
}

// handleListBooks は書籍一覧を返すハンドラを返す。
// page・limit・category・author・availableクエリで絞り込める。
func (s *Server) handleListBooks() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
		if err != nil || page < 1 {
			page = 1
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
		if err != nil || limit < 1 {
			limit = 10
		}

		filter := ListFilter{
			Page:          page,
			Limit:         limit,
			Category:      c.Query("category"),
			Author:        c.Query("author"),
			AvailableOnly: c.Query("available") == "true",
		}

		books, total, err := s.store.ListBooks(c.Request.Context(), filter)
		if err != nil {
			s.logger.Error("書籍一覧の取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "内部サーバーエラーが発生しました"})
			return
		}

		pages := (total + limit - 1) / limit
		c.JSON(http.StatusOK, gin.H{
			"books": books,
			"pagination": gin.H{
				"page":  page,
				"limit": limit,
				"total": total,
				"pages": pages,
			},
		})
	}
}

// handleGetBook は書籍詳細をレビュー付きで返すハンドラを返す。
func (s *Server) handleGetBook() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		book, err := s.store.GetBook(c.Request.Context(), id)
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "書籍が見つかりません"})
			return
		}
		if err != nil {
			s.logger.Error("書籍の取得に失敗", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "内部サーバーエラーが発生しました"})
			return
		}

		reviews, err := s.store.ListReviews(c.Request.Context(), id)
		if err != nil {
			s.logger.Error("レビューの取得に失敗", zap.String("id", id), zap.Error(err))
			reviews = []Review{}
		}

		var avgRating float64
		for _, r := range reviews {
			avgRating += float64(r.Rating)
		}
		if len(reviews) > 0 {
			avgRating /= float64(len(reviews))
		}

		c.JSON(http.StatusOK, gin.H{
			"id":               book.ID,
			"title":            book.Title,
			"author":           book.Author,
			"isbn":             book.ISBN,
			"category":         book.Category,
			"description":      book.Description,
			"published_year":   book.PublishedYear,
			"pages":            book.Pages,
			"language":         book.Language,
			"available_copies": book.AvailableCopies,
			"total_copies":     book.TotalCopies,
			"rating":           book.Rating,
			"created_at":       book.CreatedAt,
			"updated_at":       book.UpdatedAt,
			"avg_rating":       avgRating,
			"review_count":     len(reviews),
			"reviews":          reviews,
		})
	}
}

// handleCreateBook は書籍を登録するハンドラを返す。
func (s *Server) handleCreateBook() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req bookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "タイトル・著者・カテゴリは必須です"})
			return
		}
		if msg := req.validate(); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}

		book, err := s.store.CreateBook(c.Request.Context(), req.toBook())
		if errors.Is(err, ErrDuplicateISBN) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ISBNが既に登録されています"})
			return
		}
		if err != nil {
			s.logger.Error("書籍の登録に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "内部サーバーエラーが発生しました"})
			return
		}

		s.logger.Info("書籍を登録しました",
			zap.String("id", book.ID), zap.String("title", book.Title))
		c.JSON(http.StatusCreated, book)
	}
}

// handleUpdateBook は書籍を更新するハンドラを返す。
func (s *Server) handleUpdateBook() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		var req bookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "タイトル・著者・カテゴリは必須です"})
			return
		}
		if msg := req.validate(); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}

		book, err := s.store.UpdateBook(c.Request.Context(), id, req.toBook())
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "書籍が見つかりません"})
			return
		}
		if errors.Is(err, ErrDuplicateISBN) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ISBNが既に登録されています"})
			return
		}
		if err != nil {
			s.logger.Error("書籍の更新に失敗", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "内部サーバーエラーが発生しました"})
			return
		}

		s.logger.Info("書籍を更新しました", zap.String("id", id))
		c.JSON(http.StatusOK, book)
	}
}

// handleDeleteBook は書籍を削除するハンドラを返す。
func (s *Server) handleDeleteBook() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		err := s.store.DeleteBook(c.Request.Context(), id)
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "書籍が見つかりません"})
			return
		}
		if err != nil {
			s.logger.Error("書籍の削除に失敗", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "内部サーバーエラーが発生しました"})
			return
		}

		s.logger.Info("書籍を削除しました", zap.String("id", id))
		c.Status(http.StatusNoContent)
	}
}

// reviewRequest はレビュー登録リクエストのJSON構造。
type reviewRequest struct {
	// UserID はレビューした利用者のID。
	UserID string `json:"user_id" binding:"required"`
	// Rating は評価（1〜5）。
	Rating int `json:"rating" binding:"required,min=1,max=5"`
	// Comment はコメント。
	Comment string `json:"comment"`
}

// handleAddReview はレビューを登録するハンドラを返す。
// 登録後に対象書籍の平均評価が再計算される。
func (s *Server) handleAddReview() gin.HandlerFunc {
	return func(c *gin.Context) {
		bookID := c.Param("id")

		var req reviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "利用者IDと1〜5の評価は必須です"})
			return
		}

		review, err := s.store.AddReview(c.Request.Context(), Review{
			BookID:  bookID,
			UserID:  req.UserID,
			Rating:  req.Rating,
			Comment: req.Comment,
		})
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "書籍が見つかりません"})
			return
		}
		if err != nil {
			s.logger.Error("レビューの登録に失敗", zap.String("book_id", bookID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "内部サーバーエラーが発生しました"})
			return
		}

		c.JSON(http.StatusCreated, review)
	}
}
