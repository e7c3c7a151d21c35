package gateway

import "github.com/nao1215/biblioteca/pkg/token"

// Capability はルートへのアクセスに必要な権限レベル。
type Capability int

const (
	// CapabilityNone は未認証でもアクセスできるルート。
	CapabilityNone Capability = iota
	// CapabilityAuthenticated は有効なJWTが必要なルート。
	CapabilityAuthenticated
	// CapabilityAdmin は管理者ロールが必要なルート。
	CapabilityAdmin
)

// allows は認証済みプリンシパルがこの権限レベルを満たすか判定する。
// principalがnilの場合は未認証を意味する。
func (c Capability) allows(principal *token.Principal) bool {
	switch c {
	case CapabilityNone:
		return true
	case CapabilityAuthenticated:
		return principal != nil
	case CapabilityAdmin:
		return principal != nil && principal.IsAdmin()
	default:
		return false
	}
}
