package vector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDimensionMismatch は埋め込み次元がストアの設定次元と一致しない場合のエラー
	// 切り詰めやパディングによる黙殺は行わず、upsert を失敗させる
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// chunkNamespace は ChunkID 生成用の固定名前空間
var chunkNamespace = uuid.MustParse("4b825dc6-42fb-4f19-9c27-1f5f3b3c62a0")

// ChunkID は (fileID, chunkIndex) から決定的なチャンクIDを生成する
// 同じ組からは常に同じIDが得られ、再インデックス時の upsert を冪等にする
func ChunkID(fileID string, chunkIndex int) uuid.UUID {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s_%d", fileID, chunkIndex)))
}

// Record は保存されるパッセージ1件を表す
type Record struct {
	ID         uuid.UUID      // ChunkID(fileID, chunkIndex)
	FileID     string         // 所属ドキュメントのID
	ChunkIndex int            // ファイル内での 0 始まりの連番
	Text       string         // パッセージ本文
	TextSize   int            // 本文の文字数
	Embedding  []float32      // 埋め込みベクトル（書き込み時のアクティブプロバイダ次元）
	Metadata   map[string]any // ファイル名・種別・アップロード者などの付帯情報
	CreatedAt  time.Time
}

// Hit は類似検索の結果1件を表す
type Hit struct {
	ID         uuid.UUID      `json:"id"`
	FileID     string         `json:"fileID"`
	ChunkIndex int            `json:"chunkIndex"`
	Text       string         `json:"text"`
	Score      float64        `json:"score"` // 1 - cosine_distance
	Metadata   map[string]any `json:"metadata"`
}

// Filter はメタデータの完全一致による検索候補の絞り込みを表す
type Filter struct {
	FileID       *string
	DeclaredType *string
	UploadedBy   *string
}

// Stats はストアの集計情報を表す
type Stats struct {
	TotalVectors int `json:"totalVectors"`
	UniqueFiles  int `json:"uniqueFiles"`
	Dimension    int `json:"dimension"`
}

// Store はパッセージベクトルの永続化と類似検索を提供するインターフェース
// 消費者側（ingestion / retrieval）が要求する契約をここで統合する
type Store interface {
	// Upsert は fileID のチャンク群を保存する。同じチャンクIDの既存行は
	// 削除してから挿入する（再インデックスは冪等）。1ファイル分の upsert は
	// 単一トランザクションで行い、部分的な書き込みを残さない。
	// 次元不一致は ErrDimensionMismatch を返し、何も書き込まない。
	Upsert(ctx context.Context, fileID string, records []*Record) error

	// Search は類似パッセージをスコア降順で返す。同スコアは chunk_index 昇順。
	// 一致が無い場合はエラーではなく空のスライスを返す
	Search(ctx context.Context, queryVector []float32, topK int, filter *Filter) ([]*Hit, error)

	// DeleteByFile はファイルの全パッセージを削除する。対象が無くても成功する
	DeleteByFile(ctx context.Context, fileID string) error

	// Stats は総ベクトル数・ユニークファイル数・設定次元を返す
	Stats(ctx context.Context) (*Stats, error)
}
