package retrieval

import (
	"fmt"
	"strings"
)

// BuildContext はパッセージ群から下流の生成コンポーネント向けの文脈文字列を構築する
//
// 各パッセージにはソース番号・ファイル名・スコアのラベルを付ける。
// パッセージはスコア降順で渡される前提とする。
func BuildContext(passages []Passage) string {
	if len(passages) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, p := range passages {
		name := p.FileName
		if name == "" {
			name = "Unknown"
		}
		sb.WriteString(fmt.Sprintf("[Source %d - %s (Score: %.2f)]:\n", i+1, name, p.Score))
		sb.WriteString(p.Text)
		sb.WriteString("\n\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}
