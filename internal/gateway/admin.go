package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// handleListUsers は全ユーザーの一覧を返す管理者向けハンドラを返す。
func (s *Server) handleListUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := s.users.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー一覧の取得に失敗しました"})
			s.logger.Error("ユーザー一覧の取得に失敗しました", zap.Error(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"users": users, "total": len(users)})
	}
}

// roleRequest はロール変更リクエストの本文。
type roleRequest struct {
	Role string `json:"role" binding:"required"`
}

// handleUpdateUserRole はユーザーのロールを変更する管理者向けハンドラを返す。
func (s *Server) handleUpdateUserRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req roleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ロールは必須です"})
			return
		}
		if req.Role != "user" && req.Role != "admin" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ロールはuserまたはadminを指定してください"})
			return
		}

		username := c.Param("username")
		if err := s.users.UpdateRole(c.Request.Context(), username, req.Role); err != nil {
			if errors.Is(err, ErrUserNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ロールの変更に失敗しました"})
			s.logger.Error("ロールの変更に失敗しました",
				zap.String("username", username), zap.Error(err))
			return
		}

		c.JSON(http.StatusOK, gin.H{"username": username, "role": req.Role})
	}
}

// handleDeleteUser はユーザーを削除する管理者向けハンドラを返す。
// 自分自身の削除は拒否する。
func (s *Server) handleDeleteUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.Param("username")

		if principal, ok := currentPrincipal(c); ok && principal.Username == username {
			c.JSON(http.StatusBadRequest, gin.H{"error": "自分自身は削除できません"})
			return
		}

		if err := s.users.Delete(c.Request.Context(), username); err != nil {
			if errors.Is(err, ErrUserNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの削除に失敗しました"})
			s.logger.Error("ユーザーの削除に失敗しました",
				zap.String("username", username), zap.Error(err))
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// handleAdminStats はユーザー統計とカタログ統計をまとめて返す
// 管理者向けハンドラを返す。カタログサービスが応答しない場合は
// ユーザー統計のみを返す。
func (s *Server) handleAdminStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := s.users.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "統計の取得に失敗しました"})
			s.logger.Error("ユーザー一覧の取得に失敗しました", zap.Error(err))
			return
		}

		admins := 0
		for _, u := range users {
			if u.Role == "admin" {
				admins++
			}
		}

		stats := gin.H{
			"users": gin.H{
				"total":  len(users),
				"admins": admins,
			},
		}

		var catalogStats map[string]any
		if err := s.books.GetJSON(c.Request.Context(), "/stats", &catalogStats); err != nil {
			s.logger.Warn("カタログ統計の取得に失敗しました", zap.Error(err))
			stats["catalog"] = gin.H{"available": false}
		} else {
			stats["catalog"] = catalogStats
		}

		c.JSON(http.StatusOK, stats)
	}
}
