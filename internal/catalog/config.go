package catalog

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config はカタログサービスの起動設定。環境変数から読み込む。
type Config struct {
	// Port はサーバーのリッスンポート。
	Port string `env:"PORT" envDefault:"8081"`
	// DBPath はSQLiteデータベースファイルのパス。
	DBPath string `env:"CATALOG_DB_PATH" envDefault:"/data/catalog.db"`
	// Seed はtrueの場合、起動時にデモ用の書籍データを投入する。
	Seed bool `env:"CATALOG_SEED" envDefault:"false"`
}

// LoadConfig は環境変数からConfigを読み込む。
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
	}
	return cfg, nil
}
