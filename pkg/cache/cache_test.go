package cache

import (
	"context"
	"net/url"
	"testing"
	"time"
)

// TestKey は正規化キャッシュキーの生成を検証する。
func TestKey(t *testing.T) {
	t.Parallel()

	t.Run("クエリが無い場合はパスのみになること", func(t *testing.T) {
		t.Parallel()

		if got := Key("/api/books", nil); got != "/api/books" {
			t.Errorf("Key() = %q, want %q", got, "/api/books")
		}
	})

	t.Run("クエリの出現順に依存せず同一キーになること", func(t *testing.T) {
		t.Parallel()

		q1, err := url.ParseQuery("category=Tecnologia&page=2")
		if err != nil {
			t.Fatalf("クエリのパースに失敗: %v", err)
		}
		q2, err := url.ParseQuery("page=2&category=Tecnologia")
		if err != nil {
			t.Fatalf("クエリのパースに失敗: %v", err)
		}

		if Key("/api/books", q1) != Key("/api/books", q2) {
			t.Errorf("キーが一致しない: %q != %q", Key("/api/books", q1), Key("/api/books", q2))
		}
	})

	t.Run("末尾スラッシュが正規化されること", func(t *testing.T) {
		t.Parallel()

		if Key("/api/books/", nil) != Key("/api/books", nil) {
			t.Error("末尾スラッシュの有無でキーが変わった")
		}
	})
}

// newTestMemory は手動時計を持つテスト用Memoryバックエンドを生成する。
func newTestMemory(t *testing.T) (*Memory, *time.Time) {
	t.Helper()

	current := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return current }
	return m, &current
}

// TestMemoryGetSet はインメモリバックエンドの基本操作を検証する。
func TestMemoryGetSet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("保存した値がそのまま取得できること", func(t *testing.T) {
		t.Parallel()

		m, _ := newTestMemory(t)
		if err := m.Set(ctx, "/api/books", []byte(`{"books":[]}`), time.Minute); err != nil {
			t.Fatalf("Set()でエラーが発生: %v", err)
		}

		value, ok, err := m.Get(ctx, "/api/books")
		if err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		if !ok {
			t.Fatal("ヒットするはずのキーがミスした")
		}
		if string(value) != `{"books":[]}` {
			t.Errorf("value = %q, want %q", value, `{"books":[]}`)
		}
	})

	t.Run("存在しないキーはミスになること", func(t *testing.T) {
		t.Parallel()

		m, _ := newTestMemory(t)
		_, ok, err := m.Get(ctx, "/api/books")
		if err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		if ok {
			t.Error("存在しないキーがヒットした")
		}
	})

	t.Run("TTL経過後はミスになること", func(t *testing.T) {
		t.Parallel()

		m, current := newTestMemory(t)
		if err := m.Set(ctx, "/api/books", []byte("v"), time.Minute); err != nil {
			t.Fatalf("Set()でエラーが発生: %v", err)
		}

		*current = current.Add(2 * time.Minute)
		_, ok, err := m.Get(ctx, "/api/books")
		if err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		if ok {
			t.Error("期限切れエントリがヒットした")
		}
	})

	t.Run("Getが有効期限を更新しないこと", func(t *testing.T) {
		t.Parallel()

		m, current := newTestMemory(t)
		if err := m.Set(ctx, "/api/books", []byte("v"), time.Minute); err != nil {
			t.Fatalf("Set()でエラーが発生: %v", err)
		}

		// 期限内に何度読んでも期限は延びない
		*current = current.Add(50 * time.Second)
		if _, ok, _ := m.Get(ctx, "/api/books"); !ok {
			t.Fatal("期限内のエントリがミスした")
		}

		*current = current.Add(20 * time.Second)
		if _, ok, _ := m.Get(ctx, "/api/books"); ok {
			t.Error("Getで有効期限が更新されている")
		}
	})

	t.Run("上書きで値とTTLが更新されること", func(t *testing.T) {
		t.Parallel()

		m, _ := newTestMemory(t)
		if err := m.Set(ctx, "k", []byte("old"), time.Minute); err != nil {
			t.Fatalf("Set()でエラーが発生: %v", err)
		}
		if err := m.Set(ctx, "k", []byte("new"), time.Minute); err != nil {
			t.Fatalf("Set()でエラーが発生: %v", err)
		}

		value, ok, _ := m.Get(ctx, "k")
		if !ok || string(value) != "new" {
			t.Errorf("value = %q, want %q", value, "new")
		}
	})
}

// TestMemorySweep は期限切れエントリの掃除を検証する。
// Getされないまま期限切れになったキーが残留しないこと。
func TestMemorySweep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("期限切れエントリがSetを契機に一括削除されること", func(t *testing.T) {
		t.Parallel()

		m, current := newTestMemory(t)
		m.Set(ctx, "/api/search?q=a", []byte("a"), time.Minute)
		m.Set(ctx, "/api/search?q=b", []byte("b"), time.Minute)
		m.Set(ctx, "/api/search?q=c", []byte("c"), time.Minute)

		// 一度も読まれないまま期限切れにする
		*current = current.Add(time.Hour)
		m.Set(ctx, "/api/books", []byte("list"), time.Minute)

		m.mu.RLock()
		remaining := len(m.entries)
		m.mu.RUnlock()
		if remaining != 1 {
			t.Errorf("掃除後のエントリ数 = %d, want 1", remaining)
		}
	})

	t.Run("掃除間隔の経過前は期限内エントリを走査しないこと", func(t *testing.T) {
		t.Parallel()

		m, current := newTestMemory(t)
		m.Set(ctx, "k1", []byte("v"), time.Hour)

		// 間隔未満の経過では掃除は走らず、期限内エントリはそのまま
		*current = current.Add(30 * time.Second)
		m.Set(ctx, "k2", []byte("v"), time.Hour)

		m.mu.RLock()
		remaining := len(m.entries)
		m.mu.RUnlock()
		if remaining != 2 {
			t.Errorf("エントリ数 = %d, want 2", remaining)
		}
	})

	t.Run("掃除後も期限内エントリは取得できること", func(t *testing.T) {
		t.Parallel()

		m, current := newTestMemory(t)
		m.Set(ctx, "expired", []byte("old"), time.Minute)

		*current = current.Add(time.Hour)
		m.Set(ctx, "alive", []byte("new"), time.Minute)

		if _, ok, _ := m.Get(ctx, "alive"); !ok {
			t.Error("期限内エントリが掃除で消えた")
		}
		if _, ok, _ := m.Get(ctx, "expired"); ok {
			t.Error("期限切れエントリがヒットした")
		}
	})
}

// TestMemoryInvalidate は削除操作を検証する。
func TestMemoryInvalidate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("Deleteで完全一致キーだけが消えること", func(t *testing.T) {
		t.Parallel()

		m, _ := newTestMemory(t)
		m.Set(ctx, "/api/books", []byte("list"), time.Minute)
		m.Set(ctx, "/api/books/1", []byte("item"), time.Minute)

		if err := m.Delete(ctx, "/api/books"); err != nil {
			t.Fatalf("Delete()でエラーが発生: %v", err)
		}

		if _, ok, _ := m.Get(ctx, "/api/books"); ok {
			t.Error("削除したキーがヒットした")
		}
		if _, ok, _ := m.Get(ctx, "/api/books/1"); !ok {
			t.Error("無関係なキーが消えた")
		}
	})

	t.Run("DeletePrefixで一覧・詳細・クエリ付きがまとめて消えること", func(t *testing.T) {
		t.Parallel()

		m, _ := newTestMemory(t)
		m.Set(ctx, "/api/books", []byte("list"), time.Minute)
		m.Set(ctx, "/api/books?page=2", []byte("page2"), time.Minute)
		m.Set(ctx, "/api/books/1", []byte("item"), time.Minute)
		m.Set(ctx, "/api/categories", []byte("cats"), time.Minute)

		if err := m.DeletePrefix(ctx, "/api/books"); err != nil {
			t.Fatalf("DeletePrefix()でエラーが発生: %v", err)
		}

		for _, key := range []string{"/api/books", "/api/books?page=2", "/api/books/1"} {
			if _, ok, _ := m.Get(ctx, key); ok {
				t.Errorf("プレフィックス一致の%qが残っている", key)
			}
		}
		if _, ok, _ := m.Get(ctx, "/api/categories"); !ok {
			t.Error("プレフィックス不一致の/api/categoriesが消えた")
		}
	})
}
