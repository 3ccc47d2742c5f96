package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/jinford/doc-rag/internal/core/chunk"
)

const (
	// DefaultChunkWorkerCount はデフォルトの抽出・分割ワーカー数（CPU バウンド）
	DefaultChunkWorkerCount = 4
	// DefaultEmbedWorkerCount はデフォルトの埋め込み・保存ワーカー数（I/O バウンド）
	DefaultEmbedWorkerCount = 2
)

// PipelineConfig はバルク取り込みの設定
type PipelineConfig struct {
	// ChunkWorkerCount は抽出・分割ワーカー数
	ChunkWorkerCount int
	// EmbedWorkerCount は埋め込み・保存ワーカー数
	EmbedWorkerCount int
	// FailFast は最初の失敗でパイプライン全体を停止するかどうか
	FailFast bool
}

// DefaultPipelineConfig はデフォルトのパイプライン設定を返す
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		ChunkWorkerCount: DefaultChunkWorkerCount,
		EmbedWorkerCount: DefaultEmbedWorkerCount,
		FailFast:         false,
	}
}

// PipelineStats はバルク取り込みの統計情報
type PipelineStats struct {
	ProcessedFiles int // 正常に取り込まれたファイル数
	TotalChunks    int // 保存されたチャンク数
	FailedFiles    int // 失敗したファイル数
}

// fileTask は分割済みファイルを埋め込みステージへ受け渡す単位
type fileTask struct {
	FileID string
	Params IngestParams
	Pieces []chunk.Piece
}

// fileResult はファイル処理の結果
type fileResult struct {
	Name       string
	ChunkCount int
	Err        error
}

// Pipeline は複数ファイルをステージ分割されたワーカー群で取り込む
//
// 抽出・分割（CPU バウンド）と埋め込み・保存（I/O バウンド）を別々の
// ワーカー数で並行実行する。ファイル単位の原子性は Service と同じで、
// 1ファイルの upsert は単一トランザクションに収まる。
type Pipeline struct {
	service *Service
	config  *PipelineConfig
	logger  *slog.Logger
}

// NewPipeline は新しいバルク取り込みパイプラインを作成する
func NewPipeline(service *Service, config *PipelineConfig, logger *slog.Logger) *Pipeline {
	if config == nil {
		config = DefaultPipelineConfig()
	}
	if config.ChunkWorkerCount <= 0 {
		config.ChunkWorkerCount = DefaultChunkWorkerCount
	}
	if config.EmbedWorkerCount <= 0 {
		config.EmbedWorkerCount = DefaultEmbedWorkerCount
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		service: service,
		config:  config,
		logger:  logger,
	}
}

// Run はファイル群をパイプライン処理で取り込み、統計を返す
//
// FailFast でない限り、個々のファイルの失敗は記録して処理を継続する。
// FailFast の場合は最初の失敗で残りをキャンセルし、そのエラーを返す。
func (p *Pipeline) Run(ctx context.Context, files []IngestParams) (*PipelineStats, error) {
	fileChan := make(chan IngestParams, len(files))
	taskChan := make(chan *fileTask, p.config.EmbedWorkerCount)
	resultChan := make(chan *fileResult, len(files))

	var pipelineErr atomic.Pointer[error]

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Stage 1: ファイルをチャネルに投入
	go func() {
		defer close(fileChan)
		for _, f := range files {
			select {
			case fileChan <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Stage 2: 抽出・分割ワーカー
	var chunkWg sync.WaitGroup
	chunkWg.Add(p.config.ChunkWorkerCount)
	for range p.config.ChunkWorkerCount {
		go func() {
			defer chunkWg.Done()
			p.chunkWorker(ctx, cancel, fileChan, taskChan, resultChan, &pipelineErr)
		}()
	}

	// 分割完了を待ってタスクチャネルを閉じる
	go func() {
		chunkWg.Wait()
		close(taskChan)
	}()

	// Stage 3: 埋め込み・保存ワーカー
	var embedWg sync.WaitGroup
	embedWg.Add(p.config.EmbedWorkerCount)
	for range p.config.EmbedWorkerCount {
		go func() {
			defer embedWg.Done()
			p.embedWorker(ctx, cancel, taskChan, resultChan, &pipelineErr)
		}()
	}

	// 全ワーカー完了を待って結果チャネルを閉じる
	go func() {
		embedWg.Wait()
		close(resultChan)
	}()

	// 結果集計
	stats := &PipelineStats{}
	for result := range resultChan {
		if result.Err != nil {
			p.logger.Warn("ファイルの取り込みに失敗",
				"name", result.Name,
				"error", result.Err,
			)
			stats.FailedFiles++
			continue
		}
		stats.ProcessedFiles++
		stats.TotalChunks += result.ChunkCount
	}

	if errp := pipelineErr.Load(); errp != nil {
		return stats, fmt.Errorf("pipeline aborted: %w", *errp)
	}

	if stats.FailedFiles > 0 {
		p.logger.Warn("バルク取り込み完了（一部失敗あり）",
			"processedFiles", stats.ProcessedFiles,
			"totalChunks", stats.TotalChunks,
			"failedFiles", stats.FailedFiles,
		)
	} else {
		p.logger.Info("バルク取り込み完了",
			"processedFiles", stats.ProcessedFiles,
			"totalChunks", stats.TotalChunks,
		)
	}

	return stats, nil
}

// chunkWorker はファイルのテキスト抽出とチャンク分割を行うワーカー
func (p *Pipeline) chunkWorker(
	ctx context.Context,
	cancel context.CancelFunc,
	fileChan <-chan IngestParams,
	taskChan chan<- *fileTask,
	resultChan chan<- *fileResult,
	pipelineErr *atomic.Pointer[error],
) {
	for params := range fileChan {
		select {
		case <-ctx.Done():
			return
		default:
		}

		text, err := p.service.extractor.Extract(ctx, params.Content, params.DeclaredType)
		if err != nil {
			p.fail(cancel, resultChan, pipelineErr, params.Name, err)
			continue
		}

		pieces := p.service.chunker.Chunk(text)
		if len(pieces) == 0 {
			p.fail(cancel, resultChan, pipelineErr, params.Name,
				fmt.Errorf("%w: no chunks produced", ErrExtractionFailed))
			continue
		}

		task := &fileTask{
			FileID: params.FileID,
			Params: params,
			Pieces: pieces,
		}
		select {
		case taskChan <- task:
		case <-ctx.Done():
			return
		}
	}
}

// embedWorker はファイル単位で埋め込み生成と保存を行うワーカー
func (p *Pipeline) embedWorker(
	ctx context.Context,
	cancel context.CancelFunc,
	taskChan <-chan *fileTask,
	resultChan chan<- *fileResult,
	pipelineErr *atomic.Pointer[error],
) {
	for task := range taskChan {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fileID := task.FileID
		if fileID == "" {
			fileID = uuid.NewString()
		}

		result, err := p.service.indexPieces(ctx, fileID, task.Params, task.Pieces)
		if err != nil {
			p.fail(cancel, resultChan, pipelineErr, task.Params.Name, err)
			continue
		}

		select {
		case resultChan <- &fileResult{Name: task.Params.Name, ChunkCount: result.ChunkCount}:
		case <-ctx.Done():
			return
		}
	}
}

// fail は失敗を記録し、FailFast 時はパイプラインをキャンセルする
func (p *Pipeline) fail(
	cancel context.CancelFunc,
	resultChan chan<- *fileResult,
	pipelineErr *atomic.Pointer[error],
	name string,
	err error,
) {
	if p.config.FailFast {
		pipelineErr.CompareAndSwap(nil, &err)
		cancel()
	}
	select {
	case resultChan <- &fileResult{Name: name, Err: err}:
	default:
	}
}
