package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix はRedisのキー空間を他用途と分けるためのプレフィックス。
const keyPrefix = "cache:"

// Redis はRedisに保持するキャッシュバックエンド。
// gatewayを再起動してもエントリ自体は残るが、設計上は揮発性の
// キャッシュとして扱い、消えても正しさに影響しない。
type Redis struct {
	// client はRedisクライアント。
	client *redis.Client
}

// NewRedis は指定アドレスのRedisに接続するバックエンドを生成する。
// 接続確認として起動時にPINGを1回送る。
func NewRedis(ctx context.Context, addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Redisへの接続に失敗: %w", err)
	}
	return &Redis{client: client}, nil
}

// Get はキーに対応する値を返す。TTLはRedis側で管理されるため
// 期限切れエントリは自然にミスになる。
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("キャッシュの取得に失敗: %w", err)
	}
	return value, true, nil
}

// Set はキーに値をTTL付きで保存する。
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュの保存に失敗: %w", err)
	}
	return nil
}

// Delete は完全一致するキーを削除する。
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("キャッシュの削除に失敗: %w", err)
	}
	return nil
}

// DeletePrefix は指定プレフィックスで始まるキーをSCANで列挙して削除する。
func (r *Redis) DeletePrefix(ctx context.Context, prefix string) error {
	iter := r.client.Scan(ctx, 0, keyPrefix+prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("キャッシュの削除に失敗: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("キャッシュキーの走査に失敗: %w", err)
	}
	return nil
}

// Close はRedisクライアントを閉じる。
func (r *Redis) Close() error {
	return r.client.Close()
}
