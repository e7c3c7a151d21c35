package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// seedSamples はデモ環境向けの初期データ。
var seedSamples = []Book{
	{
		Title:         "Clean Code: A Handbook of Agile Software Craftsmanship",
		Author:        "Robert C. Martin",
		ISBN:          "9780132350884",
		Category:      "Tecnologia",
		Description:   "保守しやすいコードを書くための実践的なガイド。",
		PublishedYear: 2008,
		Pages:         464,
		Language:      "pt-BR",
		TotalCopies:   5,
	},
	{
		Title:         "O Hobbit",
		Author:        "J.R.R. Tolkien",
		ISBN:          "9788595084759",
		Category:      "Ficção",
		Description:   "ビルボ・バギンズの冒険を描いたファンタジーの古典。",
		PublishedYear: 1937,
		Pages:         336,
		Language:      "pt-BR",
		TotalCopies:   3,
	},
	{
		Title:         "Sapiens: Uma Breve História da Humanidade",
		Author:        "Yuval Noah Harari",
		ISBN:          "9788525432186",
		Category:      "História",
		Description:   "人類の歴史を俯瞰するベストセラー。",
		PublishedYear: 2011,
		Pages:         464,
		Language:      "pt-BR",
		TotalCopies:   4,
	},
	{
		Title:         "The Go Programming Language",
		Author:        "Alan A. A. Donovan, Brian W. Kernighan",
		ISBN:          "9780134190440",
		Category:      "Tecnologia",
		Description:   "Go言語の定番リファレンス。",
		PublishedYear: 2015,
		Pages:         380,
		Language:      "en",
		TotalCopies:   2,
	},
	{
		Title:         "Uma Breve História do Tempo",
		Author:        "Stephen Hawking",
		ISBN:          "9788580573466",
		Category:      "Ciência",
		Description:   "宇宙論の入門として広く読まれる一冊。",
		PublishedYear: 1988,
		Pages:         256,
		Language:      "pt-BR",
		TotalCopies:   2,
	},
}

// seedBooks はデモ用の書籍データを投入する。
// 既に同じISBNの書籍が存在する場合はスキップし、再実行しても安全。
func seedBooks(db *sql.DB, store *Store) error {
	ctx := context.Background()
	for _, b := range seedSamples {
		var count int
		if err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM books WHERE isbn = ?", b.ISBN,
		).Scan(&count); err != nil {
			return fmt.Errorf("既存書籍の確認に失敗: %w", err)
		}
		if count > 0 {
			continue
		}
		if _, err := store.CreateBook(ctx, b); err != nil {
			return fmt.Errorf("書籍%qの投入に失敗: %w", b.Title, err)
		}
	}
	return nil
}
