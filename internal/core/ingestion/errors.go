package ingestion

import "errors"

var (
	// ErrExtractionFailed はソースバイト列から利用可能なテキストを得られなかった場合のエラー
	// チャンク化・埋め込み・保存のいずれも実行される前に取り込みを中断する
	ErrExtractionFailed = errors.New("could not extract text from file")

	// ErrDocumentNotFound は対象のドキュメントレコードが存在しない場合のエラー
	ErrDocumentNotFound = errors.New("document not found")
)
