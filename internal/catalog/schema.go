package catalog

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// スキーマ定義。
const schema = `
CREATE TABLE IF NOT EXISTS books (
    -- 書籍の一意識別子
    id TEXT PRIMARY KEY,
    -- タイトル
    title TEXT NOT NULL,
    -- 著者
    author TEXT NOT NULL,
    -- ISBN。未登録を許すが登録時は一意
    isbn TEXT UNIQUE,
    -- カテゴリ名
    category TEXT,
    -- 概要
    description TEXT,
    -- 出版年
    published_year INTEGER,
    -- ページ数
    pages INTEGER,
    -- 言語コード
    language TEXT DEFAULT 'pt-BR',
    -- 貸出可能な在庫数
    available_copies INTEGER DEFAULT 1,
    -- 総在庫数
    total_copies INTEGER DEFAULT 1,
    -- レビューから算出した平均評価
    rating REAL DEFAULT 0.0,
    -- 作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    -- 更新日時
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS reviews (
    -- レビューの一意識別子
    id TEXT PRIMARY KEY,
    -- 対象書籍のID
    book_id TEXT NOT NULL,
    -- レビューした利用者のID
    user_id TEXT NOT NULL,
    -- 評価（1〜5）
    rating INTEGER CHECK(rating >= 1 AND rating <= 5),
    -- コメント
    comment TEXT,
    -- 作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    FOREIGN KEY(book_id) REFERENCES books(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS categories (
    -- カテゴリの一意識別子
    id TEXT PRIMARY KEY,
    -- カテゴリ名
    name TEXT UNIQUE NOT NULL,
    -- 説明
    description TEXT,
    -- 作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

-- 一覧のフィルタ検索を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_books_category
    ON books(category);

CREATE INDEX IF NOT EXISTS idx_books_author
    ON books(author);

-- 書籍ごとのレビュー取得を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_reviews_book_id
    ON reviews(book_id);
`

// defaultCategories は初期投入するカテゴリ。
var defaultCategories = []struct {
	name        string
	description string
}{
	{"Ficção", "文芸フィクション"},
	{"Tecnologia", "プログラミング・技術書"},
	{"Ciência", "科学・学術書"},
	{"História", "歴史書"},
	{"Biografia", "伝記・自伝"},
}

// initSchema はSQLiteデータベースにスキーマを適用し、初期カテゴリを投入する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}

	for _, c := range defaultCategories {
		if _, err := db.Exec(
			`INSERT OR IGNORE INTO categories (id, name, description) VALUES (?, ?, ?)`,
			uuid.New().String(), c.name, c.description,
		); err != nil {
			return fmt.Errorf("初期カテゴリの投入に失敗: %w", err)
		}
	}
	return nil
}
