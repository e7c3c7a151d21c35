// Package cache はGETレスポンス用のリードスルーキャッシュを提供する。
//
// キーは正規化したリクエストパス＋クエリ文字列で、値はシリアライズ済みの
// レスポンスボディ。バックエンドはインメモリとRedisの2種類があり、
// gatewayは設定に応じて選択する。バックエンド障害は呼び出し側で
// ログに残して握りつぶし、リクエスト自体は失敗させない。
package cache
