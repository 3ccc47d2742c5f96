package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/doc-rag/internal/core/ingestion"
)

// FileListAction は取り込み済みファイル一覧を表示するコマンドのアクション
func FileListAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	limit := int(cmd.Int("limit"))
	offset := int(cmd.Int("offset"))

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	filter := ingestion.ListFilter{}
	if t := cmd.String("type"); t != "" {
		filter.DeclaredType = &t
	}
	if u := cmd.String("uploaded-by"); u != "" {
		filter.UploadedBy = &u
	}

	docs, total, err := appCtx.Ingestion.ListDocuments(ctx, filter, offset, limit)
	if err != nil {
		return fmt.Errorf("一覧の取得に失敗: %w", err)
	}

	fmt.Printf("%d件中 %d件を表示\n", total, len(docs))
	for _, doc := range docs {
		fmt.Printf("  %s  %-30s  type=%-5s chunks=%-4d indexed=%-5t uploaded=%s\n",
			doc.FileID, doc.Name, doc.DeclaredType, doc.ChunkCount, doc.Indexed,
			doc.UploadTime.Format("2006-01-02 15:04"))
	}

	return nil
}

// FileShowAction はファイル詳細を表示するコマンドのアクション
func FileShowAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	fileID := cmd.String("file-id")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	doc, err := appCtx.Ingestion.GetDocument(ctx, fileID)
	if err != nil {
		if errors.Is(err, ingestion.ErrDocumentNotFound) {
			return fmt.Errorf("ファイルが見つかりません: %s", fileID)
		}
		return fmt.Errorf("ファイルの取得に失敗: %w", err)
	}

	fmt.Printf("fileID:      %s\n", doc.FileID)
	fmt.Printf("name:        %s\n", doc.Name)
	fmt.Printf("type:        %s\n", doc.DeclaredType)
	fmt.Printf("size:        %d bytes\n", doc.SizeBytes)
	fmt.Printf("chunks:      %d\n", doc.ChunkCount)
	fmt.Printf("indexed:     %t\n", doc.Indexed)
	fmt.Printf("uploadedBy:  %s\n", doc.UploadedBy)
	fmt.Printf("uploadTime:  %s\n", doc.UploadTime.Format("2006-01-02 15:04:05"))
	if doc.Description != "" {
		fmt.Printf("description: %s\n", doc.Description)
	}

	return nil
}

// FileDeleteAction はファイルと全パッセージを削除するコマンドのアクション
func FileDeleteAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	fileID := cmd.String("file-id")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Ingestion.DeleteFile(ctx, fileID); err != nil {
		if errors.Is(err, ingestion.ErrDocumentNotFound) {
			return fmt.Errorf("ファイルが見つかりません: %s", fileID)
		}
		return fmt.Errorf("削除に失敗: %w", err)
	}

	fmt.Printf("削除しました: %s\n", fileID)
	return nil
}
