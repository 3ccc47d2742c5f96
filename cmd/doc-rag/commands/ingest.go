package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jinford/doc-rag/internal/core/ingestion"
)

// IngestAction はファイルを取り込むコマンドのアクション
//
// 複数ファイルが指定された場合はワーカーパイプラインで並行処理する。
func IngestAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	uploadedBy := cmd.String("uploaded-by")
	description := cmd.String("description")
	workers := cmd.Int("workers")

	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("取り込むファイルを指定してください")
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	files := make([]ingestion.IngestParams, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("ファイルの読み込みに失敗: %w", err)
		}
		files = append(files, ingestion.IngestParams{
			Name:         filepath.Base(path),
			DeclaredType: declaredType(path),
			Content:      content,
			UploadedBy:   uploadedBy,
			Description:  description,
		})
	}

	if len(files) == 1 {
		result, err := appCtx.Ingestion.Ingest(ctx, files[0])
		if err != nil {
			return fmt.Errorf("取り込みに失敗: %w", err)
		}
		fmt.Printf("取り込み完了: fileID=%s chunks=%d\n", result.FileID, result.ChunkCount)
		return nil
	}

	pipelineCfg := ingestion.DefaultPipelineConfig()
	if workers > 0 {
		pipelineCfg.EmbedWorkerCount = int(workers)
	}

	pipeline := ingestion.NewPipeline(appCtx.Ingestion, pipelineCfg, appCtx.Logger)
	stats, err := pipeline.Run(ctx, files)
	if err != nil {
		return fmt.Errorf("バルク取り込みに失敗: %w", err)
	}

	fmt.Printf("取り込み完了: files=%d chunks=%d failed=%d\n",
		stats.ProcessedFiles, stats.TotalChunks, stats.FailedFiles)

	return nil
}

// declaredType は拡張子からファイル種別を決める
func declaredType(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "txt"
	}
	return ext
}
