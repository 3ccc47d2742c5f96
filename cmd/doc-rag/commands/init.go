package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/doc-rag/internal/infra/postgres"
)

// InitAction はデータベーススキーマを初期化するコマンドのアクション
func InitAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	dimension := appCtx.Cascade.Dimension()
	if err := postgres.Init(ctx, appCtx.Database.Pool, dimension); err != nil {
		return fmt.Errorf("スキーマの初期化に失敗: %w", err)
	}

	info := appCtx.Cascade.Info()
	fmt.Printf("スキーマを初期化しました (provider=%s model=%s dimension=%d)\n",
		info.Provider, info.Model, info.Dimension)

	return nil
}
