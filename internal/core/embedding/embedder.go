package embedding

import "context"

// Provider は単一の埋め込みバックエンドを表すインターフェース
// 各プロバイダは固有のモデルと次元を公開する（次元はプロバイダ間で一致しない）
type Provider interface {
	// Name はプロバイダ名（"googleai" / "ollama" / "openai"）を返す
	Name() string

	// ModelName はモデル名を返す
	ModelName() string

	// Dimension はベクトル次元数を返す
	Dimension() int

	// MaxBatchSize はバッチ処理の最大サイズを返す（0以下は無制限扱い）
	MaxBatchSize() int

	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)

	// BatchEmbed はバッチでEmbeddingを生成する
	// 戻り値のベクトル数は入力テキスト数と一致しなければならない
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
}

// ProviderFactory はプロバイダの遅延初期化を表す
// 初期化（接続確認・クライアント生成）は New 呼び出しまで行わない
type ProviderFactory struct {
	// Name はファクトリが生成するプロバイダ名
	Name string

	// New はプロバイダを初期化する。失敗したプロバイダは採用されない
	New func(ctx context.Context) (Provider, error)
}

// ProviderInfo は現在アクティブなプロバイダの情報を表す
type ProviderInfo struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
	Available bool   `json:"available"`
}
