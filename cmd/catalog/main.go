// 蔵書カタログサービスのエントリポイント。
// 書籍・レビュー・カテゴリの管理と検索・おすすめ・統計を提供する。
// 内部ネットワーク専用であり、認証はGatewayで行われる前提。
package main

import (
	"log"

	"go.uber.org/zap"

	"github.com/nao1215/biblioteca/internal/catalog"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer logger.Sync()

	cfg, err := catalog.LoadConfig()
	if err != nil {
		logger.Fatal("設定の読み込みに失敗", zap.Error(err))
	}

	server, err := catalog.NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("カタログサーバーの初期化に失敗", zap.Error(err))
	}
	defer server.Close()

	logger.Info("カタログサービスを起動します", zap.String("port", cfg.Port))
	if err := server.Run(); err != nil {
		logger.Fatal("カタログサービスの起動に失敗", zap.Error(err))
	}
}
