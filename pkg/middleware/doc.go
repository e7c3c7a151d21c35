// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// 構造化アクセスログ、パニックリカバリ、CORS設定など、
// gatewayとcatalogの両サービスで共通して使用するミドルウェアを含む。
// 認証はgatewayのパイプライン段階として実装するため、ここには含まない。
package middleware
