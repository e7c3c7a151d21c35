package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound は対象の書籍が存在しないことを表す。
var ErrNotFound = errors.New("書籍が見つかりません")

// ErrDuplicateISBN は同じISBNの書籍が既に登録されていることを表す。
var ErrDuplicateISBN = errors.New("ISBNが既に登録されています")

// Book は蔵書1冊を表す。
type Book struct {
	// ID は書籍の一意識別子（UUID）。
	ID string `json:"id"`
	// Title はタイトル。
	Title string `json:"title"`
	// Author は著者。
	Author string `json:"author"`
	// ISBN はISBNコード。未登録の場合は空文字列。
	ISBN string `json:"isbn"`
	// Category はカテゴリ名。
	Category string `json:"category"`
	// Description は概要。
	Description string `json:"description"`
	// PublishedYear は出版年。
	PublishedYear int `json:"published_year"`
	// Pages はページ数。
	Pages int `json:"pages"`
	// Language は言語コード。
	Language string `json:"language"`
	// AvailableCopies は貸出可能な在庫数。
	AvailableCopies int `json:"available_copies"`
	// TotalCopies は総在庫数。
	TotalCopies int `json:"total_copies"`
	// Rating はレビューから算出した平均評価。
	Rating float64 `json:"rating"`
	// CreatedAt は作成日時。
	CreatedAt string `json:"created_at"`
	// UpdatedAt は更新日時。
	UpdatedAt string `json:"updated_at"`
}

// Review は書籍1冊に対するレビューを表す。
type Review struct {
	// ID はレビューの一意識別子（UUID）。
	ID string `json:"id"`
	// BookID は対象書籍のID。
	BookID string `json:"book_id"`
	// UserID はレビューした利用者のID。
	UserID string `json:"user_id"`
	// Rating は評価（1〜5）。
	Rating int `json:"rating"`
	// Comment はコメント。
	Comment string `json:"comment"`
	// CreatedAt は作成日時。
	CreatedAt string `json:"created_at"`
}

// Category は書籍のカテゴリを表す。
type Category struct {
	// ID はカテゴリの一意識別子（UUID）。
	ID string `json:"id"`
	// Name はカテゴリ名。
	Name string `json:"name"`
	// Description は説明。
	Description string `json:"description"`
	// CreatedAt は作成日時。
	CreatedAt string `json:"created_at"`
}

// ListFilter は書籍一覧の絞り込み条件。
type ListFilter struct {
	// Page は1始まりのページ番号。
	Page int
	// Limit は1ページあたりの件数。
	Limit int
	// Category はカテゴリ名の部分一致条件。空の場合は無条件。
	Category string
	// Author は著者名の部分一致条件。空の場合は無条件。
	Author string
	// AvailableOnly はtrueの場合、在庫がある書籍に限定する。
	AvailableOnly bool
}

// Store はカタログのSQLiteデータアクセス層。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewStore は新しいStoreを生成する。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// bookColumns はbooksテーブルのSELECT句。Scanの順序と対応する。
const bookColumns = `id, title, author, COALESCE(isbn, ''), COALESCE(category, ''),
	COALESCE(description, ''), COALESCE(published_year, 0), COALESCE(pages, 0),
	COALESCE(language, 'pt-BR'), available_copies, total_copies, rating,
	created_at, updated_at`

// scanBook は1行をBookに読み込む。
func scanBook(row interface{ Scan(...any) error }) (Book, error) {
	var b Book
	err := row.Scan(
		&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Category,
		&b.Description, &b.PublishedYear, &b.Pages,
		&b.Language, &b.AvailableCopies, &b.TotalCopies, &b.Rating,
		&b.CreatedAt, &b.UpdatedAt,
	)
	return b, err
}

// ListBooks はフィルタ条件に一致する書籍をページ単位で返す。
// 第2戻り値は同条件での総件数。
func (s *Store) ListBooks(ctx context.Context, filter ListFilter) ([]Book, int, error) {
	where := "WHERE 1=1"
	var params []any

	if filter.Category != "" {
		where += " AND category LIKE ?"
		params = append(params, "%"+filter.Category+"%")
	}
	if filter.Author != "" {
		where += " AND author LIKE ?"
		params = append(params, "%"+filter.Author+"%")
	}
	if filter.AvailableOnly {
		where += " AND available_copies > 0"
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM books "+where, params...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("書籍数の取得に失敗: %w", err)
	}

	offset := (filter.Page - 1) * filter.Limit
	query := fmt.Sprintf(
		"SELECT %s FROM books %s ORDER BY created_at DESC LIMIT ? OFFSET ?",
		bookColumns, where,
	)
	rows, err := s.db.QueryContext(ctx, query, append(params, filter.Limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("書籍一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	books := []Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("書籍行の読み込みに失敗: %w", err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("書籍一覧の走査に失敗: %w", err)
	}
	return books, total, nil
}

// GetBook はIDで書籍1冊を取得する。存在しない場合はErrNotFoundを返す。
func (s *Store) GetBook(ctx context.Context, id string) (Book, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM books WHERE id = ?", bookColumns), id)
	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Book{}, ErrNotFound
	}
	if err != nil {
		return Book{}, fmt.Errorf("書籍の取得に失敗: %w", err)
	}
	return b, nil
}

// ListAllBooks は全書籍を返す。検索用。
func (s *Store) ListAllBooks(ctx context.Context) ([]Book, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM books", bookColumns))
	if err != nil {
		return nil, fmt.Errorf("書籍一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	books := []Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("書籍行の読み込みに失敗: %w", err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("書籍一覧の走査に失敗: %w", err)
	}
	return books, nil
}

// CreateBook は書籍を登録し、登録後の行を返す。
// available_copiesはtotal_copiesと同数で初期化する。
func (s *Store) CreateBook(ctx context.Context, b Book) (Book, error) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO books (
			id, title, author, isbn, category, description,
			published_year, pages, language, total_copies, available_copies
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Title, b.Author, nullIfEmpty(b.ISBN), b.Category, b.Description,
		b.PublishedYear, b.Pages, b.Language, b.TotalCopies, b.TotalCopies,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Book{}, ErrDuplicateISBN
		}
		return Book{}, fmt.Errorf("書籍の登録に失敗: %w", err)
	}
	return s.GetBook(ctx, b.ID)
}

// UpdateBook は書籍を更新し、更新後の行を返す。
// 存在しない場合はErrNotFoundを返す。
func (s *Store) UpdateBook(ctx context.Context, id string, b Book) (Book, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE books SET
			title = ?, author = ?, isbn = ?, category = ?, description = ?,
			published_year = ?, pages = ?, language = ?, total_copies = ?,
			updated_at = datetime('now')
		WHERE id = ?`,
		b.Title, b.Author, nullIfEmpty(b.ISBN), b.Category, b.Description,
		b.PublishedYear, b.Pages, b.Language, b.TotalCopies, id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Book{}, ErrDuplicateISBN
		}
		return Book{}, fmt.Errorf("書籍の更新に失敗: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return Book{}, fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if affected == 0 {
		return Book{}, ErrNotFound
	}
	return s.GetBook(ctx, id)
}

// DeleteBook は書籍を削除する。存在しない場合はErrNotFoundを返す。
func (s *Store) DeleteBook(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("書籍の削除に失敗: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListReviews は書籍1冊のレビューを新しい順で返す。
func (s *Store) ListReviews(ctx context.Context, bookID string) ([]Review, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, book_id, user_id, rating, COALESCE(comment, ''), created_at
		FROM reviews WHERE book_id = ? ORDER BY created_at DESC`, bookID)
	if err != nil {
		return nil, fmt.Errorf("レビュー一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	reviews := []Review{}
	for rows.Next() {
		var r Review
		if err := rows.Scan(&r.ID, &r.BookID, &r.UserID, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("レビュー行の読み込みに失敗: %w", err)
		}
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("レビュー一覧の走査に失敗: %w", err)
	}
	return reviews, nil
}

// AddReview はレビューを登録し、書籍の平均評価を再計算する。
// 対象書籍が存在しない場合はErrNotFoundを返す。
func (s *Store) AddReview(ctx context.Context, r Review) (Review, error) {
	if _, err := s.GetBook(ctx, r.BookID); err != nil {
		return Review{}, err
	}

	r.ID = uuid.New().String()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO reviews (id, book_id, user_id, rating, comment)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.BookID, r.UserID, r.Rating, r.Comment,
	); err != nil {
		return Review{}, fmt.Errorf("レビューの登録に失敗: %w", err)
	}

	// 平均評価を書籍行に反映する
	if _, err := s.db.ExecContext(ctx, `
		UPDATE books SET rating = (
			SELECT COALESCE(AVG(rating), 0) FROM reviews WHERE book_id = ?
		) WHERE id = ?`, r.BookID, r.BookID,
	); err != nil {
		return Review{}, fmt.Errorf("平均評価の更新に失敗: %w", err)
	}

	var created Review
	row := s.db.QueryRowContext(ctx, `
		SELECT id, book_id, user_id, rating, COALESCE(comment, ''), created_at
		FROM reviews WHERE id = ?`, r.ID)
	if err := row.Scan(&created.ID, &created.BookID, &created.UserID,
		&created.Rating, &created.Comment, &created.CreatedAt); err != nil {
		return Review{}, fmt.Errorf("登録したレビューの取得に失敗: %w", err)
	}
	return created, nil
}

// ListCategories は全カテゴリを名前順で返す。
func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description, ''), created_at
		FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	categories := []Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("カテゴリ行の読み込みに失敗: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("カテゴリ一覧の走査に失敗: %w", err)
	}
	return categories, nil
}

// RecommendedBook はおすすめ対象の書籍と評価情報。
type RecommendedBook struct {
	Book
	// AvgRating はレビューの平均評価。
	AvgRating float64 `json:"avg_rating"`
	// ReviewCount はレビュー件数。
	ReviewCount int `json:"review_count"`
}

// Recommendations は平均評価4.0以上かつレビュー1件以上の書籍を
// 評価の高い順に最大10件返す。
func (s *Store) Recommendations(ctx context.Context) ([]RecommendedBook, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.title, b.author, COALESCE(b.isbn, ''), COALESCE(b.category, ''),
		       COALESCE(b.description, ''), COALESCE(b.published_year, 0), COALESCE(b.pages, 0),
		       COALESCE(b.language, 'pt-BR'), b.available_copies, b.total_copies, b.rating,
		       b.created_at, b.updated_at,
		       AVG(r.rating) AS avg_rating, COUNT(r.id) AS review_count
		FROM books b LEFT JOIN reviews r ON b.id = r.book_id
		GROUP BY b.id
		HAVING avg_rating >= 4.0 AND review_count >= 1
		ORDER BY avg_rating DESC, review_count DESC
		LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("おすすめ書籍の取得に失敗: %w", err)
	}
	defer rows.Close()

	books := []RecommendedBook{}
	for rows.Next() {
		var b RecommendedBook
		if err := rows.Scan(
			&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Category,
			&b.Description, &b.PublishedYear, &b.Pages,
			&b.Language, &b.AvailableCopies, &b.TotalCopies, &b.Rating,
			&b.CreatedAt, &b.UpdatedAt, &b.AvgRating, &b.ReviewCount,
		); err != nil {
			return nil, fmt.Errorf("おすすめ行の読み込みに失敗: %w", err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("おすすめ書籍の走査に失敗: %w", err)
	}
	return books, nil
}

// CategoryCount はカテゴリごとの書籍数。
type CategoryCount struct {
	// Category はカテゴリ名。
	Category string `json:"category"`
	// Count は書籍数。
	Count int `json:"count"`
}

// Stats はカタログ全体の統計情報。
type Stats struct {
	// TotalBooks は総書籍数。
	TotalBooks int `json:"total_books"`
	// TotalCategories は総カテゴリ数。
	TotalCategories int `json:"total_categories"`
	// TotalReviews は総レビュー数。
	TotalReviews int `json:"total_reviews"`
	// AverageRating は評価がついた書籍の平均評価。
	AverageRating float64 `json:"average_rating"`
	// BooksByCategory はカテゴリごとの書籍数。
	BooksByCategory []CategoryCount `json:"books_by_category"`
}

// GetStats はカタログ全体の統計情報を集計する。
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats

	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM books", &stats.TotalBooks},
		{"SELECT COUNT(*) FROM categories", &stats.TotalCategories},
		{"SELECT COUNT(*) FROM reviews", &stats.TotalReviews},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return Stats{}, fmt.Errorf("統計の集計に失敗: %w", err)
		}
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(AVG(rating), 0) FROM books WHERE rating > 0",
	).Scan(&stats.AverageRating); err != nil {
		return Stats{}, fmt.Errorf("平均評価の集計に失敗: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(category, ''), COUNT(*) FROM books GROUP BY category`)
	if err != nil {
		return Stats{}, fmt.Errorf("カテゴリ別集計に失敗: %w", err)
	}
	defer rows.Close()

	stats.BooksByCategory = []CategoryCount{}
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return Stats{}, fmt.Errorf("カテゴリ別集計行の読み込みに失敗: %w", err)
		}
		stats.BooksByCategory = append(stats.BooksByCategory, c)
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("カテゴリ別集計の走査に失敗: %w", err)
	}
	return stats, nil
}

// nullIfEmpty は空文字列をNULLに変換する。ISBNのUNIQUE制約が
// 空文字列同士で衝突しないようにするため。
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// isUniqueViolation はSQLiteのUNIQUE制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
