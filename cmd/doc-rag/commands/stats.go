package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// StatsAction はベクトルストアの統計情報を表示するコマンドのアクション
func StatsAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	stats, err := appCtx.Store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("統計情報の取得に失敗: %w", err)
	}

	info := appCtx.Cascade.Info()
	fmt.Printf("totalVectors: %d\n", stats.TotalVectors)
	fmt.Printf("uniqueFiles:  %d\n", stats.UniqueFiles)
	fmt.Printf("dimension:    %d\n", stats.Dimension)
	fmt.Printf("provider:     %s (model=%s)\n", info.Provider, info.Model)

	return nil
}
