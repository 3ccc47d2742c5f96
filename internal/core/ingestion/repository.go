package ingestion

import (
	"context"

	"github.com/samber/mo"
)

// DocumentRepository はドキュメントレコードのデータアクセスを統合するインターフェース
// テスト時のモック用に消費者側で定義
type DocumentRepository interface {
	// Create はドキュメントレコードを作成する
	Create(ctx context.Context, doc *Document) error

	// GetByFileID は fileID でドキュメントを取得する
	GetByFileID(ctx context.Context, fileID string) (mo.Option[*Document], error)

	// List はドキュメント一覧をアップロード日時の降順で返す
	List(ctx context.Context, filter ListFilter, offset, limit int) ([]*Document, int, error)

	// Delete はドキュメントレコードを削除する
	// 戻り値は削除が行われたかどうか（存在しない場合 false）
	Delete(ctx context.Context, fileID string) (bool, error)
}
