package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shouni/go-educomic-kit/pkg/domain"
	"github.com/shouni/go-educomic-kit/pkg/storage"
)

// JobManager はチャプター生成をバックグラウンドで起動し、
// 同じチャプターの二重実行を防ぎます。進捗はチャプターの
// ステータス列を読むことで外部から観測できます。
type JobManager struct {
	pipeline *Pipeline
	chapters storage.ChapterStore

	mu      sync.Mutex
	wg      sync.WaitGroup
	running map[string]struct{}
}

// NewJobManager は JobManager を初期化します。
func NewJobManager(p *Pipeline, chapters storage.ChapterStore) (*JobManager, error) {
	if p == nil {
		return nil, fmt.Errorf("pipeline: パイプラインは必須です")
	}
	if chapters == nil {
		return nil, fmt.Errorf("pipeline: チャプターストアは必須です")
	}
	return &JobManager{
		pipeline: p,
		chapters: chapters,
		running:  make(map[string]struct{}),
	}, nil
}

// Start はチャプター生成を切り離されたゴルーチンで開始します。
// 戻ってきた時点で呼び出し元は「開始された」ことだけを知ります。
// 実際の成否はチャプターのステータスを観測して確かめるのだ。
func (m *JobManager) Start(ctx context.Context, chapterID string) error {
	m.mu.Lock()
	if _, ok := m.running[chapterID]; ok {
		m.mu.Unlock()
		return fmt.Errorf("pipeline: チャプター %s は既に生成中です", chapterID)
	}
	m.running[chapterID] = struct{}{}
	m.mu.Unlock()

	// 起動を観測可能にしてからゴルーチンを切り離すのだ
	if err := m.chapters.UpdateStatus(ctx, chapterID, domain.ChapterStatusGenerating); err != nil {
		m.mu.Lock()
		delete(m.running, chapterID)
		m.mu.Unlock()
		return err
	}

	m.wg.Add(1)
	go func() {
		defer m.finish(chapterID)
		// 呼び出し元のリクエストが終わっても生成は続くため、独立した文脈で走らせます
		if err := m.pipeline.Run(context.Background(), chapterID); err != nil {
			slog.Error("バックグラウンド生成が失敗しました", "chapter", chapterID, "error", err)
		}
	}()

	slog.Info("チャプター生成を開始しました", "chapter", chapterID)
	return nil
}

// Wait は進行中のジョブが全て終わるまでブロックします。CLIの終了処理で使います。
func (m *JobManager) Wait() {
	m.wg.Wait()
}

func (m *JobManager) finish(chapterID string) {
	m.mu.Lock()
	delete(m.running, chapterID)
	m.mu.Unlock()
	m.wg.Done()
}
