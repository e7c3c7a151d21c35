package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// entry はインメモリキャッシュの1エントリ。
type entry struct {
	// value はシリアライズ済みのレスポンスボディ。
	value []byte
	// expiresAt はエントリの有効期限。
	expiresAt time.Time
}

// sweepInterval は期限切れエントリをまとめて掃除する間隔。
const sweepInterval = time.Minute

// Memory はプロセス内メモリに保持するキャッシュバックエンド。
// Redisが設定されていない場合の既定のバックエンド。
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	// now は現在時刻の取得関数。テストで差し替える。
	now func() time.Time
	// lastSweep は期限切れエントリを掃除した最終時刻。
	lastSweep time.Time
}

// NewMemory は新しいインメモリバックエンドを生成する。
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get はキーに対応する値を返す。期限切れエントリはミス扱いで削除する。
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if m.now().After(e.expiresAt) {
		m.mu.Lock()
		// 他のリクエストが同キーを上書きしていない場合のみ削除する
		if cur, ok := m.entries[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set はキーに値をTTL付きで保存する。
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweepLocked(now)
	m.entries[key] = entry{value: value, expiresAt: now.Add(ttl)}
	return nil
}

// sweepLocked は期限切れエントリをまとめて削除する。
// 二度と読まれないキーが残留しないよう、Getの遅延削除を補完する。
// 呼び出し頻度を抑えるためsweepIntervalごとに1回だけ実行する。
func (m *Memory) sweepLocked(now time.Time) {
	if now.Sub(m.lastSweep) < sweepInterval {
		return
	}
	m.lastSweep = now
	for key, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, key)
		}
	}
}

// Delete は完全一致するキーを削除する。
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// DeletePrefix は指定プレフィックスで始まるキーをすべて削除する。
func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

// Close は何もしない。インターフェースを満たすための実装。
func (m *Memory) Close() error {
	return nil
}
