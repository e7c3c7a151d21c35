// Package gateway は蔵書管理システムのAPI Gatewayサービスを提供する。
//
// 外部からの全リクエストの入口であり、以下を担当する。
//   - JWTベースの認証とロールベースの認可
//   - クライアント単位の固定ウィンドウレート制限
//   - GETレスポンスのキャッシュ（Redisまたはインメモリ）
//   - カタログサービスへのリトライ付きプロキシ
//   - ユーザー登録・ログイン・管理者によるユーザー管理
//
// 各リクエストは認証→認可→レート制限→キャッシュ照会→プロキシの
// 順でパイプラインステージを通過する。
package gateway
