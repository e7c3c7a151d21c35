package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingToken はトークンが提示されなかったことを表す。
var ErrMissingToken = errors.New("認証トークンがありません")

// ErrInvalidToken はトークンの署名検証または有効期限検証に失敗したことを表す。
var ErrInvalidToken = errors.New("認証トークンが無効です")

// Principal は検証済みトークンから導出した認証済みの利用者を表す。
// 1リクエストの間だけ生存し、gatewayが永続化することはない。
type Principal struct {
	// Username は利用者の一意識別子。
	Username string
	// Role は利用者のロール（"user" または "admin"）。
	Role string
}

// IsAdmin は管理者ロールを持つかどうかを返す。
func (p Principal) IsAdmin() bool {
	return p.Role == "admin"
}

// Claims はJWTトークンのクレーム（ペイロード）を表す。
type Claims struct {
	jwt.RegisteredClaims
	// Username は利用者の一意識別子。
	Username string `json:"username"`
	// Role は利用者のロール。
	Role string `json:"role"`
}

// Authenticator は共有秘密鍵によるHS256トークンの発行と検証を行う。
type Authenticator struct {
	// secret はJWT署名用の共有秘密鍵。
	secret []byte
	// ttl は発行するトークンの有効期間。
	ttl time.Duration
}

// NewAuthenticator は新しいAuthenticatorを生成する。
// ttlが0以下の場合は24時間を使用する。
func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl}
}

// Generate は利用者情報からJWTトークンを生成する。
// gatewayサービスがログイン成功後に呼び出す。
func (a *Authenticator) Generate(username, role string) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "biblioteca-gateway",
		},
		Username: username,
		Role:     role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Verify はトークン文字列を検証してPrincipalを返す。
// 署名不正・期限切れの場合はErrInvalidTokenを返す。
func (a *Authenticator) Verify(tokenString string) (Principal, error) {
	if tokenString == "" {
		return Principal{}, ErrMissingToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("署名方式が不正: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Principal{}, ErrInvalidToken
	}

	return Principal{Username: claims.Username, Role: claims.Role}, nil
}

// FromAuthorizationHeader はAuthorizationヘッダーからBearerトークンを取り出して検証する。
// ヘッダーが無い、またはBearer形式でない場合はErrMissingTokenを返す。
func (a *Authenticator) FromAuthorizationHeader(header string) (Principal, error) {
	if header == "" {
		return Principal{}, ErrMissingToken
	}
	tokenString, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return Principal{}, ErrMissingToken
	}
	return a.Verify(tokenString)
}
