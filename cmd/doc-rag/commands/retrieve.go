package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/doc-rag/internal/core/vector"
)

// RetrieveAction は類似検索と文脈組み立てを実行するコマンドのアクション
func RetrieveAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	query := cmd.String("query")
	topK := int(cmd.Int("top-k"))

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	var filter *vector.Filter
	if fileID := cmd.String("file-id"); fileID != "" {
		filter = &vector.Filter{FileID: &fileID}
	}

	result, err := appCtx.Retrieval.Retrieve(ctx, query, topK, filter)
	if err != nil {
		return fmt.Errorf("検索に失敗: %w", err)
	}

	if len(result.Passages) == 0 {
		fmt.Println("一致するパッセージはありませんでした")
		return nil
	}

	fmt.Println(result.ContextText)
	fmt.Println()
	fmt.Println("ソース:")
	for _, src := range result.Sources {
		fmt.Printf("  %s (%s)\n", src.Name, src.FileID)
	}

	return nil
}
