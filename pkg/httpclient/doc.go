// Package httpclient は下流サービスへのHTTP通信を行うクライアントを提供する。
//
// サービスごとに固定のタイムアウトとリトライ回数を持ち、接続失敗や
// タイムアウトに対しては指数バックオフ付きでリトライする。下流が
// HTTPレスポンスを返した場合はエラーステータスでもリトライせず、
// そのまま呼び出し側に渡す。
package httpclient
