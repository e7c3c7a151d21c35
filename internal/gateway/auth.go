package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// registerRequest はユーザー登録リクエストの本文。
type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Email    string `json:"email" binding:"required"`
	FullName string `json:"full_name"`
}

// validate は登録内容の制約を検証する。
func (r *registerRequest) validate() error {
	if len(r.Username) < 3 {
		return errors.New("ユーザー名は3文字以上にしてください")
	}
	if len(r.Password) < 6 {
		return errors.New("パスワードは6文字以上にしてください")
	}
	return nil
}

// loginRequest はログインリクエストの本文。
type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// userView はレスポンスに含めるユーザー情報。
func userView(u *User) gin.H {
	return gin.H{
		"username":  u.Username,
		"email":     u.Email,
		"full_name": u.FullName,
		"role":      u.Role,
	}
}

// handleRegister は新規ユーザー登録のハンドラを返す。
// 登録成功時はJWTを発行して即ログイン状態にする。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ユーザー名・パスワード・メールアドレスは必須です"})
			return
		}
		if err := req.validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if _, err := s.users.FindByUsernameOrEmail(c.Request.Context(), req.Username, req.Email); err == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "ユーザー名またはメールアドレスが既に使用されています"})
			return
		} else if !errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー登録に失敗しました"})
			s.logger.Error("重複確認に失敗しました", zap.Error(err))
			return
		}

		user := &User{
			Username:     req.Username,
			PasswordHash: HashPassword(req.Password),
			Email:        req.Email,
			FullName:     req.FullName,
			Role:         "user",
			CreatedAt:    time.Now(),
		}
		if err := s.users.Insert(c.Request.Context(), user); err != nil {
			if errors.Is(err, ErrUserExists) {
				c.JSON(http.StatusConflict, gin.H{"error": "ユーザー名またはメールアドレスが既に使用されています"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー登録に失敗しました"})
			s.logger.Error("ユーザー登録に失敗しました", zap.Error(err))
			return
		}

		tokenString, err := s.tokens.Generate(user.Username, user.Role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークンの発行に失敗しました"})
			s.logger.Error("JWTの発行に失敗しました", zap.Error(err))
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"token": tokenString,
			"user":  userView(user),
		})
	}
}

// handleLogin はログインのハンドラを返す。
// 認証失敗の理由（ユーザー不在かパスワード不一致か）は区別せずに返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ユーザー名とパスワードは必須です"})
			return
		}

		user, err := s.users.FindByUsername(c.Request.Context(), req.Username)
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザー名またはパスワードが正しくありません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ログインに失敗しました"})
			s.logger.Error("ユーザー取得に失敗しました", zap.Error(err))
			return
		}

		if user.PasswordHash != HashPassword(req.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザー名またはパスワードが正しくありません"})
			return
		}

		tokenString, err := s.tokens.Generate(user.Username, user.Role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークンの発行に失敗しました"})
			s.logger.Error("JWTの発行に失敗しました", zap.Error(err))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token": tokenString,
			"user":  userView(user),
		})
	}
}

// handleGetCurrentUser は認証済みユーザー自身の情報を返すハンドラを返す。
func (s *Server) handleGetCurrentUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := currentPrincipal(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "認証トークンが必要です"})
			return
		}

		user, err := s.users.FindByUsername(c.Request.Context(), principal.Username)
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー情報の取得に失敗しました"})
			s.logger.Error("ユーザー取得に失敗しました", zap.Error(err))
			return
		}

		c.JSON(http.StatusOK, userView(user))
	}
}
