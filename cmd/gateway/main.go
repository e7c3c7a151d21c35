// API Gatewayサービスのエントリポイント。
// 認証・認可・レート制限・レスポンスキャッシュを適用し、
// カタログサービスへリクエストを転送する。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線となる。
package main

import (
	"log"

	"go.uber.org/zap"

	"github.com/nao1215/biblioteca/internal/gateway"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer logger.Sync()

	cfg, err := gateway.LoadConfig()
	if err != nil {
		logger.Fatal("設定の読み込みに失敗", zap.Error(err))
	}

	server, err := gateway.NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("Gatewayサーバーの初期化に失敗", zap.Error(err))
	}
	defer server.Close()

	logger.Info("Gatewayサービスを起動します", zap.String("port", cfg.Port))
	if err := server.Run(); err != nil {
		logger.Fatal("Gatewayサービスの起動に失敗", zap.Error(err))
	}
}
