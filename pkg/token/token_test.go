package token

import (
	"errors"
	"testing"
	"time"
)

// TestGenerateAndVerify はトークンの発行と検証のラウンドトリップを検証する。
func TestGenerateAndVerify(t *testing.T) {
	t.Parallel()

	t.Run("発行したトークンからPrincipalを復元できること", func(t *testing.T) {
		t.Parallel()

		auth := NewAuthenticator("test-secret", time.Hour)
		tokenString, err := auth.Generate("alice", "admin")
		if err != nil {
			t.Fatalf("Generate()でエラーが発生: %v", err)
		}

		principal, err := auth.Verify(tokenString)
		if err != nil {
			t.Fatalf("Verify()でエラーが発生: %v", err)
		}
		if principal.Username != "alice" {
			t.Errorf("Username = %q, want %q", principal.Username, "alice")
		}
		if principal.Role != "admin" {
			t.Errorf("Role = %q, want %q", principal.Role, "admin")
		}
		if !principal.IsAdmin() {
			t.Error("IsAdmin() = false, want true")
		}
	})

	t.Run("userロールはIsAdminがfalseになること", func(t *testing.T) {
		t.Parallel()

		auth := NewAuthenticator("test-secret", time.Hour)
		tokenString, err := auth.Generate("bob", "user")
		if err != nil {
			t.Fatalf("Generate()でエラーが発生: %v", err)
		}

		principal, err := auth.Verify(tokenString)
		if err != nil {
			t.Fatalf("Verify()でエラーが発生: %v", err)
		}
		if principal.IsAdmin() {
			t.Error("IsAdmin() = true, want false")
		}
	})
}

// TestVerifyFailure は検証失敗時のエラー分類を検証する。
func TestVerifyFailure(t *testing.T) {
	t.Parallel()

	t.Run("空文字列はErrMissingTokenになること", func(t *testing.T) {
		t.Parallel()

		auth := NewAuthenticator("test-secret", time.Hour)
		if _, err := auth.Verify(""); !errors.Is(err, ErrMissingToken) {
			t.Errorf("err = %v, want ErrMissingToken", err)
		}
	})

	t.Run("別の秘密鍵で署名されたトークンはErrInvalidTokenになること", func(t *testing.T) {
		t.Parallel()

		other := NewAuthenticator("other-secret", time.Hour)
		tokenString, err := other.Generate("alice", "user")
		if err != nil {
			t.Fatalf("Generate()でエラーが発生: %v", err)
		}

		auth := NewAuthenticator("test-secret", time.Hour)
		if _, err := auth.Verify(tokenString); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("err = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("期限切れトークンはErrInvalidTokenになること", func(t *testing.T) {
		t.Parallel()

		auth := NewAuthenticator("test-secret", -time.Minute)
		tokenString, err := auth.Generate("alice", "user")
		if err != nil {
			t.Fatalf("Generate()でエラーが発生: %v", err)
		}

		if _, err := auth.Verify(tokenString); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("err = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("不正な文字列はErrInvalidTokenになること", func(t *testing.T) {
		t.Parallel()

		auth := NewAuthenticator("test-secret", time.Hour)
		if _, err := auth.Verify("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("err = %v, want ErrInvalidToken", err)
		}
	})
}

// TestFromAuthorizationHeader はAuthorizationヘッダーのパースを検証する。
func TestFromAuthorizationHeader(t *testing.T) {
	t.Parallel()

	auth := NewAuthenticator("test-secret", time.Hour)
	tokenString, err := auth.Generate("alice", "user")
	if err != nil {
		t.Fatalf("Generate()でエラーが発生: %v", err)
	}

	t.Run("Bearer形式のヘッダーを検証できること", func(t *testing.T) {
		t.Parallel()

		principal, err := auth.FromAuthorizationHeader("Bearer " + tokenString)
		if err != nil {
			t.Fatalf("FromAuthorizationHeader()でエラーが発生: %v", err)
		}
		if principal.Username != "alice" {
			t.Errorf("Username = %q, want %q", principal.Username, "alice")
		}
	})

	t.Run("ヘッダーが空の場合はErrMissingTokenになること", func(t *testing.T) {
		t.Parallel()

		if _, err := auth.FromAuthorizationHeader(""); !errors.Is(err, ErrMissingToken) {
			t.Errorf("err = %v, want ErrMissingToken", err)
		}
	})

	t.Run("Bearerプレフィックスが無い場合はErrMissingTokenになること", func(t *testing.T) {
		t.Parallel()

		if _, err := auth.FromAuthorizationHeader(tokenString); !errors.Is(err, ErrMissingToken) {
			t.Errorf("err = %v, want ErrMissingToken", err)
		}
	})
}
