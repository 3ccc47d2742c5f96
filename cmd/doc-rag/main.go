package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/jinford/doc-rag/cmd/doc-rag/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envFlag := &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}

	app := &cli.Command{
		Name:  "doc-rag",
		Usage: "ドキュメント取り込みと類似検索によるRAG基盤",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "データベーススキーマを初期化",
				Flags:  []cli.Flag{envFlag},
				Action: commands.InitAction,
			},
			{
				Name:      "ingest",
				Usage:     "ファイルを取り込んでインデックス化",
				ArgsUsage: "<file> [file...]",
				Flags: []cli.Flag{
					envFlag,
					&cli.StringFlag{
						Name:  "uploaded-by",
						Usage: "アップロード者の識別子",
					},
					&cli.StringFlag{
						Name:  "description",
						Usage: "ファイルの説明",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "埋め込みワーカー数（複数ファイル時）",
					},
				},
				Action: commands.IngestAction,
			},
			{
				Name:  "file",
				Usage: "取り込み済みファイルの管理",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "ファイル一覧を表示",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:  "type",
								Usage: "ファイル種別で絞り込み",
							},
							&cli.StringFlag{
								Name:  "uploaded-by",
								Usage: "アップロード者で絞り込み",
							},
							&cli.IntFlag{
								Name:  "limit",
								Usage: "表示件数",
								Value: 20,
							},
							&cli.IntFlag{
								Name:  "offset",
								Usage: "表示開始位置",
							},
						},
						Action: commands.FileListAction,
					},
					{
						Name:  "show",
						Usage: "ファイル詳細を表示",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:     "file-id",
								Usage:    "ファイルID",
								Required: true,
							},
						},
						Action: commands.FileShowAction,
					},
					{
						Name:  "delete",
						Usage: "ファイルと全パッセージを削除",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:     "file-id",
								Usage:    "ファイルID",
								Required: true,
							},
						},
						Action: commands.FileDeleteAction,
					},
				},
			},
			{
				Name:  "retrieve",
				Usage: "類似検索と文脈組み立てを実行",
				Flags: []cli.Flag{
					envFlag,
					&cli.StringFlag{
						Name:     "query",
						Usage:    "検索クエリ",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "取得するパッセージ数",
						Value: 5,
					},
					&cli.StringFlag{
						Name:  "file-id",
						Usage: "ファイルIDで絞り込み",
					},
				},
				Action: commands.RetrieveAction,
			},
			{
				Name:   "stats",
				Usage:  "ベクトルストアの統計情報を表示",
				Flags:  []cli.Flag{envFlag},
				Action: commands.StatsAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
