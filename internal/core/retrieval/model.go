package retrieval

// Source は回答の根拠として引用されたファイルを表す
type Source struct {
	FileID string `json:"file_id"`
	Name   string `json:"name"`
}

// Result は検索と文脈組み立ての結果を表す
type Result struct {
	// ContextText は下流の生成コンポーネントへ渡す文脈文字列
	// 一致するパッセージがない場合は空文字列となる（エラーではない）
	ContextText string `json:"context_text"`
	// Sources は文脈に寄与したファイルの一覧（重複なし、スコア降順の初出順）
	Sources []Source `json:"sources"`
	// Passages はスコア降順のパッセージ一覧
	Passages []Passage `json:"passages"`
}

// Passage は検索にヒットした個々のパッセージを表す
type Passage struct {
	FileID     string  `json:"file_id"`
	FileName   string  `json:"file_name"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}
