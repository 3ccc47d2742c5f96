package chunk

import (
	"regexp"
	"strings"
)

// defaultSectionHeaders はセクション見出しのデフォルト検出パターン
var defaultSectionHeaders = []*regexp.Regexp{
	regexp.MustCompile(`^#+\s+.+$`),     // Markdown見出し
	regexp.MustCompile(`^\d+\.\s+.+$`),  // 番号付きセクション
	regexp.MustCompile(`^[A-Z][A-Z\s]+$`), // 大文字のみの見出し
}

// ChunkBySections はテキストを見出し行を境界として自然なセクション単位に分割する
// chunkSize / overlap は参照しない。patterns が空の場合はデフォルトパターンを使用する
func (c *Chunker) ChunkBySections(text string, patterns []*regexp.Regexp) []Piece {
	if len(patterns) == 0 {
		patterns = defaultSectionHeaders
	}

	lines := strings.Split(text, "\n")

	var pieces []Piece
	var current []string
	index := 0

	flush := func() {
		blockText := strings.TrimSpace(strings.Join(current, "\n"))
		if blockText != "" {
			pieces = append(pieces, c.newPiece(blockText, index))
			index++
		}
		current = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		isHeader := false
		for _, pattern := range patterns {
			if pattern.MatchString(trimmed) {
				isHeader = true
				break
			}
		}

		// 見出しに到達したら、溜まっているブロックをチャンクとして確定する
		if isHeader && len(current) > 0 {
			flush()
		}

		current = append(current, line)
	}

	// 最終ブロック
	if len(current) > 0 {
		flush()
	}

	if pieces == nil {
		return []Piece{}
	}
	return pieces
}
