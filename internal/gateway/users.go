package gateway

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// User はGatewayが管理する利用者アカウント。
type User struct {
	// Username はログインに使用する一意な名前。
	Username string `json:"username"`
	// PasswordHash はパスワードのSHA-256ハッシュ（16進表記）。
	PasswordHash string `json:"-"`
	// Email はメールアドレス。
	Email string `json:"email"`
	// FullName は表示用の氏名。
	FullName string `json:"full_name,omitempty"`
	// Role は権限ロール（user または admin）。
	Role string `json:"role"`
	// CreatedAt は登録日時。
	CreatedAt time.Time `json:"created_at"`
}

// ユーザーリポジトリが返すセンチネルエラー。
var (
	// ErrUserNotFound は指定されたユーザーが存在しないことを示す。
	ErrUserNotFound = errors.New("ユーザーが見つかりません")
	// ErrUserExists は同名またはメールアドレス重複のユーザーが既に存在することを示す。
	ErrUserExists = errors.New("ユーザーが既に存在します")
)

// UserRepository はユーザーアカウントの永続化層。
// テストではインメモリ実装に差し替える。
type UserRepository interface {
	// FindByUsername はユーザー名で1件取得する。
	FindByUsername(ctx context.Context, username string) (*User, error)
	// FindByUsernameOrEmail はユーザー名またはメールアドレスの重複を検出する。
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*User, error)
	// Insert は新しいユーザーを登録する。重複時はErrUserExistsを返す。
	Insert(ctx context.Context, user *User) error
	// UpdateRole はユーザーのロールを変更する。
	UpdateRole(ctx context.Context, username, role string) error
	// Delete はユーザーを削除する。
	Delete(ctx context.Context, username string) error
	// List は全ユーザーを登録日時順に返す。
	List(ctx context.Context) ([]User, error)
}

// HashPassword はパスワードをSHA-256でハッシュ化して16進文字列を返す。
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// SQLiteUserRepository はSQLiteを使ったUserRepositoryの実装。
type SQLiteUserRepository struct {
	db *sql.DB
}

var _ UserRepository = (*SQLiteUserRepository)(nil)

// NewSQLiteUserRepository はSQLiteユーザーリポジトリを生成し、
// 初期管理者アカウント（admin）が存在しなければ登録する。
func NewSQLiteUserRepository(db *sql.DB) (*SQLiteUserRepository, error) {
	r := &SQLiteUserRepository{db: db}

	// 初期管理者。パスワードは運用開始後に必ず変更すること。
	admin := &User{
		Username:     "admin",
		PasswordHash: HashPassword("admin123"),
		Email:        "admin@biblioteca.local",
		FullName:     "管理者",
		Role:         "admin",
	}
	if err := r.Insert(context.Background(), admin); err != nil && !errors.Is(err, ErrUserExists) {
		return nil, fmt.Errorf("初期管理者の登録に失敗: %w", err)
	}

	return r, nil
}

const userColumns = "username, password_hash, email, full_name, role, created_at"

// scanUser は1行をUserに読み取る。
func scanUser(row interface{ Scan(dest ...any) error }) (*User, error) {
	var u User
	if err := row.Scan(&u.Username, &u.PasswordHash, &u.Email, &u.FullName, &u.Role, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// FindByUsername はユーザー名で1件取得する。
func (r *SQLiteUserRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = ?", username)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	return u, nil
}

// FindByUsernameOrEmail はユーザー名またはメールアドレスで1件取得する。
func (r *SQLiteUserRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) (*User, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = ? OR (email != '' AND email = ?)",
		username, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	return u, nil
}

// Insert は新しいユーザーを登録する。
func (r *SQLiteUserRepository) Insert(ctx context.Context, user *User) error {
	if user.Role == "" {
		user.Role = "user"
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, email, full_name, role) VALUES (?, ?, ?, ?, ?)",
		user.Username, user.PasswordHash, user.Email, user.FullName, user.Role)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrUserExists
		}
		return fmt.Errorf("ユーザーの登録に失敗: %w", err)
	}
	return nil
}

// UpdateRole はユーザーのロールを変更する。
func (r *SQLiteUserRepository) UpdateRole(ctx context.Context, username, role string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE users SET role = ? WHERE username = ?", role, username)
	if err != nil {
		return fmt.Errorf("ロールの更新に失敗: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の確認に失敗: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete はユーザーを削除する。
func (r *SQLiteUserRepository) Delete(ctx context.Context, username string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM users WHERE username = ?", username)
	if err != nil {
		return fmt.Errorf("ユーザーの削除に失敗: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除結果の確認に失敗: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// List は全ユーザーを登録日時順に返す。
func (r *SQLiteUserRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY created_at, username")
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ユーザーの読み取りに失敗: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ユーザー一覧の走査に失敗: %w", err)
	}
	return users, nil
}
