// Package catalog は蔵書カタログサービスの内部実装を提供する。
//
// 書籍・レビュー・カテゴリをSQLiteで管理し、CRUD・検索・
// おすすめ・統計のAPIを提供する。gatewayからのみ呼び出される
// 内部サービスであり、認証はgateway側で完結している前提で動作する。
package catalog
