package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-enry/go-enry/v2"
)

// Extractor は生バイト列と申告種別からプレーンテキストを取り出すインターフェース
type Extractor interface {
	// Extract はテキストを抽出する。利用可能なテキストが得られない場合は
	// ErrExtractionFailed を返す
	Extract(ctx context.Context, content []byte, declaredType string) (string, error)
}

// DocumentConverter は pdf/docx 等のバイナリ形式をテキストへ変換する外部機能
// 本サブシステムは変換自体を実装せず、注入された実装に委譲する
type DocumentConverter interface {
	// Convert は対応形式のバイト列をプレーンテキストに変換する
	Convert(ctx context.Context, content []byte, declaredType string) (string, error)
}

// TextExtractor は申告種別に応じた標準のテキスト抽出を提供する
//
// txt/text/csv はそのまま、json は整形して通し、pdf/doc/docx は外部の
// DocumentConverter に委譲する。未知の種別はベストエフォートでデコードする。
type TextExtractor struct {
	converter DocumentConverter
}

// TextExtractorOption は TextExtractor のオプション設定
type TextExtractorOption func(*TextExtractor)

// WithConverter は pdf/docx 変換用の外部コンバータを設定する
func WithConverter(converter DocumentConverter) TextExtractorOption {
	return func(e *TextExtractor) {
		e.converter = converter
	}
}

// NewTextExtractor は新しい TextExtractor を作成する
func NewTextExtractor(opts ...TextExtractorOption) *TextExtractor {
	e := &TextExtractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// convertedTypes は外部コンバータが必要な申告種別
var convertedTypes = map[string]bool{
	"pdf":  true,
	"doc":  true,
	"docx": true,
}

// Extract は申告種別に応じてテキストを抽出する
func (e *TextExtractor) Extract(ctx context.Context, content []byte, declaredType string) (string, error) {
	text, err := e.extract(ctx, content, strings.ToLower(declaredType))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty text (type=%s)", ErrExtractionFailed, declaredType)
	}
	return text, nil
}

func (e *TextExtractor) extract(ctx context.Context, content []byte, declaredType string) (string, error) {
	switch {
	case declaredType == "txt" || declaredType == "text" || declaredType == "csv":
		return decodeText(content, declaredType)

	case declaredType == "json":
		var data any
		if err := json.Unmarshal(content, &data); err != nil {
			return "", fmt.Errorf("%w: invalid json: %v", ErrExtractionFailed, err)
		}
		var buf bytes.Buffer
		encoder := json.NewEncoder(&buf)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(data); err != nil {
			return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}
		return buf.String(), nil

	case convertedTypes[declaredType]:
		if e.converter == nil {
			return "", fmt.Errorf("%w: no converter configured for type %s", ErrExtractionFailed, declaredType)
		}
		text, err := e.converter.Convert(ctx, content, declaredType)
		if err != nil {
			return "", fmt.Errorf("%w: converter failed: %v", ErrExtractionFailed, err)
		}
		return text, nil

	default:
		// 未知の種別はテキストとしてのデコードを試みる
		return decodeText(content, declaredType)
	}
}

// decodeText はバイト列をベストエフォートでUTF-8テキストとして解釈する
// バイナリと判定された場合は ErrExtractionFailed を返す
func decodeText(content []byte, declaredType string) (string, error) {
	if enry.IsBinary(content) {
		return "", fmt.Errorf("%w: binary content (type=%s, %d bytes)", ErrExtractionFailed, declaredType, len(content))
	}
	if !utf8.Valid(content) {
		// 不正なバイトを置換文字に置き換えて通す
		return strings.ToValidUTF8(string(content), "�"), nil
	}
	return string(content), nil
}

// インターフェース実装の確認
var _ Extractor = (*TextExtractor)(nil)
