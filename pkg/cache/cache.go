package cache

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Backend はキャッシュの保存先を抽象化するインターフェース。
type Backend interface {
	// Get はキーに対応する値を返す。第2戻り値はヒットしたかどうか。
	// ヒットしてもエントリの有効期限は更新しない。
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set はキーに値をTTL付きで保存する。既存エントリは上書きする。
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete は完全一致するキーを1つ削除する。存在しなくてもエラーにしない。
	Delete(ctx context.Context, key string) error
	// DeletePrefix は指定プレフィックスで始まるすべてのキーを削除する。
	// カタログ更新後に一覧・検索のキャッシュをまとめて落とすために使用する。
	DeletePrefix(ctx context.Context, prefix string) error
	// Close はバックエンドの資源を解放する。
	Close() error
}

// Key はリクエストのパスとクエリから正規化キャッシュキーを生成する。
// クエリはキー順にソートして符号化するため、パラメータの出現順に
// 依存せず同一リクエストは同一キーになる。
func Key(path string, query url.Values) string {
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		path = "/"
	}
	if len(query) == 0 {
		return path
	}
	return path + "?" + query.Encode()
}
