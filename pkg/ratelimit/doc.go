// Package ratelimit は固定ウィンドウ方式のリクエスト数制限を提供する。
//
// クライアント識別子（認証済みならユーザー名、未認証ならIPアドレス）ごとに
// 固定長ウィンドウ内のリクエスト数を数え、上限超過時は残り時間を
// Retry-Afterヒントとして返す。状態はプロセス内メモリのみに保持し、
// 再起動をまたいで永続化しない。
package ratelimit
