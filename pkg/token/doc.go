// Package token はBearerトークンの発行と検証を提供する。
//
// gatewayサービスがログイン時にJWTを発行し、以降のリクエストで
// トークンを検証してPrincipal（認証済みの利用者情報）を復元する。
// 検証はステートレスで、共有秘密鍵と現在時刻のみに依存する。
package token
