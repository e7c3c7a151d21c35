// Package metrics はPrometheus形式のメトリクス収集を提供する。
//
// リクエスト数と処理時間のほか、gateway固有のキャッシュヒット率・
// レート制限による拒否数・下流サービスへのリトライ数を収集する。
// 各サービスは/metricsエンドポイントで収集結果を公開する。
package metrics
