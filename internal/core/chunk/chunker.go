package chunk

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// DefaultChunkSize はデフォルトのチャンクサイズ（文字数）
	DefaultChunkSize = 1000
	// DefaultOverlap はデフォルトのオーバーラップ（文字数）
	DefaultOverlap = 200
)

// Piece は分割済みのパッセージを表す
type Piece struct {
	Text   string // 正規化済みのチャンク本文
	Index  int    // ファイル内での 0 始まりの連番
	Tokens int    // cl100k_base でのトークン数
}

// Chunker はテキストをオーバーラップ付きの固定長ウィンドウで分割する
type Chunker struct {
	encoder   *tiktoken.Tiktoken
	chunkSize int
	overlap   int
}

type chunkerOptions struct {
	chunkSize int
	overlap   int
}

// ChunkerOption は Chunker のオプション設定
type ChunkerOption func(*chunkerOptions)

// WithChunkSize はチャンクサイズを上書きする
func WithChunkSize(size int) ChunkerOption {
	return func(o *chunkerOptions) {
		o.chunkSize = size
	}
}

// WithOverlap はオーバーラップ幅を上書きする
func WithOverlap(overlap int) ChunkerOption {
	return func(o *chunkerOptions) {
		o.overlap = overlap
	}
}

// NewChunker は新しい Chunker を作成する
// overlap が chunkSize 以上の場合はエラー（前進が保証できない）
func NewChunker(opts ...ChunkerOption) (*Chunker, error) {
	options := chunkerOptions{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultOverlap,
	}
	for _, opt := range opts {
		opt(&options)
	}

	if options.chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive: %d", options.chunkSize)
	}
	if options.overlap < 0 || options.overlap >= options.chunkSize {
		return nil, fmt.Errorf("overlap must be in [0, chunkSize): %d", options.overlap)
	}

	// cl100k_baseエンコーダを使用（text-embedding-3-smallと互換）
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoder: %w", err)
	}

	return &Chunker{
		encoder:   encoder,
		chunkSize: options.chunkSize,
		overlap:   options.overlap,
	}, nil
}

// controlChars は制御文字（タブ・改行を除く）の除去パターン
var controlChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F-\x{9F}]`)

// whitespaceRuns は連続する空白の圧縮パターン
var whitespaceRuns = regexp.MustCompile(`\s+`)

// normalize は連続空白を単一スペースに圧縮し、制御文字を除去する
func normalize(text string) string {
	text = whitespaceRuns.ReplaceAllString(text, " ")
	text = controlChars.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// Chunk はテキストを正規化し、オーバーラップ付きのチャンク列に分割する
// 空入力・空白のみの入力は空のスライスを返す
func (c *Chunker) Chunk(text string) []Piece {
	normalized := normalize(text)
	if normalized == "" {
		return []Piece{}
	}

	runes := []rune(normalized)
	if len(runes) <= c.chunkSize {
		return []Piece{c.newPiece(normalized, 0)}
	}

	var pieces []Piece
	start := 0
	index := 0

	for start < len(runes) {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}

		// 最終ウィンドウ以外は文境界で切り直す
		if end < len(runes) {
			breakPoint := lastSentenceBreak(runes[start:end])

			// 後半に見つかった場合のみ採用（チャンクが半分未満に縮むのを防ぐ）
			if breakPoint > c.chunkSize/2 {
				end = start + breakPoint + 1
			}
		}

		pieceText := strings.TrimSpace(string(runes[start:end]))
		if pieceText != "" {
			pieces = append(pieces, c.newPiece(pieceText, index))
			index++
		}

		// オーバーラップ分を残して前進する
		start = end - c.overlap

		// 残りがオーバーラップ未満なら終了（無限ループ防止）
		if start >= len(runes)-c.overlap {
			break
		}
	}

	if pieces == nil {
		return []Piece{}
	}
	return pieces
}

// lastSentenceBreak はウィンドウ内で最後の文終端（". " または改行）のルーン位置を返す
// 見つからない場合は -1
func lastSentenceBreak(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == '\n' {
			return i
		}
		if window[i] == '.' && i+1 < len(window) && window[i+1] == ' ' {
			return i
		}
	}
	return -1
}

// newPiece はトークン数を数えて Piece を作成する
func (c *Chunker) newPiece(text string, index int) Piece {
	return Piece{
		Text:   text,
		Index:  index,
		Tokens: len(c.encoder.Encode(text, nil, nil)),
	}
}

// ChunkSize は設定されたチャンクサイズを返す
func (c *Chunker) ChunkSize() int {
	return c.chunkSize
}

// Overlap は設定されたオーバーラップ幅を返す
func (c *Chunker) Overlap() int {
	return c.overlap
}

// CountTokens はテキストのトークン数をカウントする
func (c *Chunker) CountTokens(text string) int {
	return len(c.encoder.Encode(text, nil, nil))
}
