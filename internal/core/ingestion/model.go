package ingestion

import "time"

// Document は取り込み済みファイルのメタデータを表す
// ChunkCount と Indexed は全パッセージの保存が完了した後にのみ設定される
type Document struct {
	FileID       string    `json:"fileID"`
	Name         string    `json:"name"`
	DeclaredType string    `json:"declaredType"`
	SizeBytes    int64     `json:"sizeBytes"`
	ChunkCount   int       `json:"chunkCount"`
	UploadTime   time.Time `json:"uploadTime"`
	UploadedBy   string    `json:"uploadedBy"`
	Description  string    `json:"description"`
	Indexed      bool      `json:"indexed"`
}

// IngestParams は1ファイルの取り込みパラメータを表す
type IngestParams struct {
	FileID       string // 空の場合は新規採番
	Name         string // 元のファイル名
	DeclaredType string // 申告されたファイル種別（txt/json/csv/pdf/docx 等）
	Content      []byte // ファイルの生バイト列
	UploadedBy   string // アップロード者の識別子
	Description  string // 自由記述の説明
}

// IngestResult は取り込み結果を表す
type IngestResult struct {
	FileID     string `json:"fileID"`
	ChunkCount int    `json:"chunkCount"`
	Indexed    bool   `json:"indexed"`
}

// ListFilter はドキュメント一覧の絞り込み条件を表す
type ListFilter struct {
	DeclaredType *string
	UploadedBy   *string
}
