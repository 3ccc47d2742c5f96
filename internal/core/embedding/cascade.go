package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// AutoProvider は優先順位順の自動選択を指定するプロバイダ名
const AutoProvider = "auto"

// defaultFallbacks はプロバイダごとの明示的なフォールバック順
// リング順は固定（推測ではなく定義）: googleai→ollama→openai→googleai
var defaultFallbacks = map[string][]string{
	"googleai": {"ollama", "openai"},
	"ollama":   {"openai", "googleai"},
	"openai":   {"ollama", "googleai"},
}

// Cascade は複数の埋め込みプロバイダを優先順位付きで束ね、
// 実行時障害に対してリング順のフェイルオーバーを提供する
type Cascade struct {
	factories map[string]ProviderFactory
	priority  []string
	fallbacks map[string][]string
	logger    *slog.Logger

	// アクティブプロバイダはプロセス内共有状態。フェイルオーバーのみが書き換える
	mu     sync.Mutex
	active Provider
}

type cascadeOptions struct {
	fallbacks map[string][]string
	logger    *slog.Logger
}

// CascadeOption は Cascade のオプション設定
type CascadeOption func(*cascadeOptions)

// WithFallbacks はプロバイダごとのフォールバック順を上書きする
func WithFallbacks(fallbacks map[string][]string) CascadeOption {
	return func(o *cascadeOptions) {
		o.fallbacks = fallbacks
	}
}

// WithCascadeLogger は Cascade にロガーを設定する
func WithCascadeLogger(logger *slog.Logger) CascadeOption {
	return func(o *cascadeOptions) {
		o.logger = logger
	}
}

// NewCascade はファクトリ一覧からカスケードを初期化する
//
// preferred が AutoProvider の場合は登録順（優先順位順）にプロバイダを試し、
// 最初に初期化に成功したものを採用する。名前指定の場合はそのプロバイダのみを
// 初期化し、失敗しても他への置き換えは行わない（置き換えは実行時障害時のみ）。
func NewCascade(ctx context.Context, factories []ProviderFactory, preferred string, opts ...CascadeOption) (*Cascade, error) {
	options := cascadeOptions{
		fallbacks: defaultFallbacks,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	c := &Cascade{
		factories: make(map[string]ProviderFactory, len(factories)),
		priority:  make([]string, 0, len(factories)),
		fallbacks: options.fallbacks,
		logger:    options.logger,
	}
	for _, f := range factories {
		c.factories[f.Name] = f
		c.priority = append(c.priority, f.Name)
	}

	if preferred == "" || preferred == AutoProvider {
		if err := c.initAuto(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}

	factory, ok := c.factories[preferred]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, preferred)
	}
	provider, err := factory.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize provider %s: %w", preferred, err)
	}
	c.active = provider

	c.logger.Info("埋め込みプロバイダを初期化",
		"provider", provider.Name(),
		"model", provider.ModelName(),
		"dimension", provider.Dimension(),
	)
	return c, nil
}

// initAuto は優先順位順にプロバイダを試し、最初に成功したものを採用する
func (c *Cascade) initAuto(ctx context.Context) error {
	for _, name := range c.priority {
		provider, err := c.factories[name].New(ctx)
		if err != nil {
			c.logger.Warn("プロバイダの初期化に失敗、次の候補を試行",
				"provider", name,
				"error", err,
			)
			continue
		}
		c.active = provider
		c.logger.Info("埋め込みプロバイダを初期化",
			"provider", provider.Name(),
			"model", provider.ModelName(),
			"dimension", provider.Dimension(),
		)
		return nil
	}
	return ErrNoProvider
}

// current は現在アクティブなプロバイダを返す
func (c *Cascade) current() Provider {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// failover は failed からリング順の次のプロバイダへ切り替える
//
// アクティブプロバイダが既に failed でない場合は他の呼び出し元が切り替え済み
// なので、そのまま現在のプロバイダを返す（再選択は冪等）。切り替えに成功した
// プロバイダだけを共有状態に公開し、初期化途中の状態は外部から見えない。
func (c *Cascade) failover(ctx context.Context, failed Provider) (Provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil && c.active != failed {
		return c.active, nil
	}

	for _, name := range c.candidatesLocked(failed.Name()) {
		factory, ok := c.factories[name]
		if !ok {
			continue
		}
		provider, err := factory.New(ctx)
		if err != nil {
			c.logger.Warn("フォールバック先の初期化に失敗",
				"provider", name,
				"error", err,
			)
			continue
		}
		c.active = provider
		c.logger.Info("埋め込みプロバイダを切り替え",
			"from", failed.Name(),
			"to", provider.Name(),
			"dimension", provider.Dimension(),
		)
		return provider, nil
	}

	return nil, ErrEmbeddingUnavailable
}

// candidatesLocked は name のフォールバック候補を明示マップから返す
// マップに無いプロバイダは優先順位順（自分以外）を候補とする
func (c *Cascade) candidatesLocked(name string) []string {
	if candidates, ok := c.fallbacks[name]; ok {
		return candidates
	}
	candidates := make([]string, 0, len(c.priority))
	for _, n := range c.priority {
		if n != name {
			candidates = append(candidates, n)
		}
	}
	return candidates
}

// Embed は単一テキストのEmbeddingを生成する
// 現在のプロバイダが失敗した場合、リング順の次のプロバイダで一度だけ再試行する
func (c *Cascade) Embed(ctx context.Context, text string) ([]float32, error) {
	provider := c.current()
	if provider == nil {
		return nil, ErrNoProvider
	}

	vector, err := provider.Embed(ctx, text)
	if err == nil {
		return vector, nil
	}

	c.logger.Error("埋め込み生成に失敗、フェイルオーバーを試行",
		"provider", provider.Name(),
		"error", err,
	)

	next, foErr := c.failover(ctx, provider)
	if foErr != nil {
		return nil, fmt.Errorf("%w: last error from %s: %v", ErrEmbeddingUnavailable, provider.Name(), err)
	}

	vector, err = next.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding failed after failover to %s: %w", next.Name(), err)
	}
	return vector, nil
}

// BatchEmbed はバッチでEmbeddingを生成する
//
// 全入力が単一プロバイダのベクトルを得るか、呼び出し全体が失敗するかの
// どちらかであり、部分的な結果は返さない。現在のプロバイダが失敗した場合は
// 一度だけフェイルオーバーし、バッチ全体を新しいプロバイダでやり直す。
func (c *Cascade) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}

	provider := c.current()
	if provider == nil {
		return nil, ErrNoProvider
	}

	vectors, err := c.batchWithProvider(ctx, provider, texts)
	if err == nil {
		return vectors, nil
	}

	c.logger.Error("バッチ埋め込み生成に失敗、フェイルオーバーを試行",
		"provider", provider.Name(),
		"batchSize", len(texts),
		"error", err,
	)

	next, foErr := c.failover(ctx, provider)
	if foErr != nil {
		return nil, fmt.Errorf("%w: last error from %s: %v", ErrEmbeddingUnavailable, provider.Name(), err)
	}

	vectors, err = c.batchWithProvider(ctx, next, texts)
	if err != nil {
		return nil, fmt.Errorf("batch embedding failed after failover to %s: %w", next.Name(), err)
	}
	return vectors, nil
}

// batchWithProvider は単一プロバイダでバッチ全体を処理する
// プロバイダのバッチ上限を超える入力は同一プロバイダへの逐次サブバッチに分ける
func (c *Cascade) batchWithProvider(ctx context.Context, provider Provider, texts []string) ([][]float32, error) {
	batchSize := provider.MaxBatchSize()
	if batchSize <= 0 || batchSize > len(texts) {
		batchSize = len(texts)
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))

		batch, err := provider.BatchEmbed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("provider %s returned %d vectors for %d texts", provider.Name(), len(batch), end-start)
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

// Info は現在アクティブなプロバイダの情報を返す
func (c *Cascade) Info() ProviderInfo {
	provider := c.current()
	if provider == nil {
		return ProviderInfo{Available: false}
	}
	return ProviderInfo{
		Provider:  provider.Name(),
		Model:     provider.ModelName(),
		Dimension: provider.Dimension(),
		Available: true,
	}
}

// Dimension は現在アクティブなプロバイダの次元数を返す（未初期化時は 0）
func (c *Cascade) Dimension() int {
	provider := c.current()
	if provider == nil {
		return 0
	}
	return provider.Dimension()
}

// インターフェース実装の確認
var _ Provider = (*Cascade)(nil)

// Name は Provider インターフェースを満たすための委譲
func (c *Cascade) Name() string {
	if p := c.current(); p != nil {
		return p.Name()
	}
	return ""
}

// ModelName は現在アクティブなプロバイダのモデル名を返す
func (c *Cascade) ModelName() string {
	if p := c.current(); p != nil {
		return p.ModelName()
	}
	return ""
}

// MaxBatchSize は現在アクティブなプロバイダのバッチ上限を返す
func (c *Cascade) MaxBatchSize() int {
	if p := c.current(); p != nil {
		return p.MaxBatchSize()
	}
	return 0
}
