package embedding

import "errors"

var (
	// ErrEmbeddingUnavailable はリング内の全プロバイダが失敗した場合のエラー
	ErrEmbeddingUnavailable = errors.New("all embedding providers failed")

	// ErrNoProvider は初期化時に利用可能なプロバイダが一つもない場合のエラー
	ErrNoProvider = errors.New("no embedding provider available")

	// ErrUnknownProvider は指定された名前のプロバイダが登録されていない場合のエラー
	ErrUnknownProvider = errors.New("unknown embedding provider")
)
