// Package controller は、1パネル分の生成と採点を繰り返すリトライ制御を提供します。
// 生成クライアントとレビュアーの間に立ち、合格点に達するか
// 試行回数を使い切るまでパネルの状態を進めるのだ。
package controller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shouni/go-educomic-kit/pkg/domain"
	"github.com/shouni/go-educomic-kit/pkg/flux"
	"github.com/shouni/go-educomic-kit/pkg/prompts"
	"github.com/shouni/go-educomic-kit/pkg/review"
)

// 試行結果の分類です。進捗イベントのOutcomeに使われます。
const (
	OutcomeAccepted  = "accepted"
	OutcomeRetry     = "retry"
	OutcomeExhausted = "exhausted"
	OutcomeFallback  = "fallback"
)

// GenerationClient は画像生成の投入と完了待ちを行う契約です。
type GenerationClient interface {
	SubmitAndWait(ctx context.Context, req flux.Request) (*flux.Result, error)
}

// Event はリトライ制御が発行する進捗イベントです。
type Event struct {
	PanelIndex int
	Attempt    int
	Score      float64
	Outcome    string
}

// ProgressSink は進捗イベントの通知先を差し替えるための契約です。
type ProgressSink interface {
	Publish(event Event)
}

// SlogSink は slog で進捗を記録する既定の ProgressSink です。
type SlogSink struct{}

func (SlogSink) Publish(event Event) {
	slog.Info("パネル生成の進捗",
		"panel", event.PanelIndex,
		"attempt", event.Attempt,
		"score", event.Score,
		"outcome", event.Outcome,
	)
}

// Config はリトライ制御の挙動を決めるパラメータ群です。
type Config struct {
	// MaxAttempts は1パネルあたりの最大試行回数です。
	MaxAttempts int
	// MinScore はこのスコア以上で即時合格となる閾値です。
	MinScore float64
	// ReviewEnabled が false の場合、採点を行わず最初の生成結果を採用します。
	ReviewEnabled bool
}

// Controller は1チャプター分のパネル生成を担うリトライ制御本体です。
type Controller struct {
	client           GenerationClient
	reviewer         review.Reviewer
	sink             ProgressSink
	cfg              Config
	classroomContext string
}

// New は依存関係を検証して Controller を初期化します。
// sink が nil の場合は slog 出力に落ちます。
func New(client GenerationClient, reviewer review.Reviewer, sink ProgressSink, cfg Config, classroomContext string) (*Controller, error) {
	if client == nil {
		return nil, fmt.Errorf("controller: 生成クライアントは必須です")
	}
	if cfg.ReviewEnabled && reviewer == nil {
		return nil, fmt.Errorf("controller: 採点が有効な場合はレビュアーが必須です")
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if sink == nil {
		sink = SlogSink{}
	}
	return &Controller{
		client:           client,
		reviewer:         reviewer,
		sink:             sink,
		cfg:              cfg,
		classroomContext: classroomContext,
	}, nil
}

// RunPanel は1パネル分の生成・採点・再試行を実行し、採用された結果を返します。
// 採点が無効な場合は最初の生成結果をそのまま採用します。
// 生成エラーは原則そのまま伝播しますが、採点済みの先行試行が存在する場合に限り、
// その中の最高スコアの試行に切り替えてパネルを成立させます。
func (c *Controller) RunPanel(ctx context.Context, rp prompts.RenderPrompt, panel domain.Panel, references []string) (*domain.AcceptedPanel, error) {
	var (
		best       *domain.Attempt
		lastReview *domain.ReviewResult
	)

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		prompt := rp.Prompt
		if attempt > 1 {
			prompt = prompts.Refine(rp.Prompt, attempt, lastReview)
		}

		result, err := c.client.SubmitAndWait(ctx, flux.Request{
			Prompt:     prompt,
			Width:      rp.Width,
			Height:     rp.Height,
			References: references,
		})
		if err != nil {
			// 先行試行が無ければパネルごと失敗させる。採点済みの試行が
			// 残っている場合のみ、その最良結果へ切り替えて成立させます。
			if best == nil {
				return nil, fmt.Errorf("controller: パネル%dの生成に失敗しました (試行%d): %w", panel.Index, attempt, err)
			}
			slog.Warn("生成に失敗したため先行試行の最良結果を採用します",
				"panel", panel.Index, "attempt", attempt, "fallback_attempt", best.Number, "error", err)
			c.sink.Publish(Event{PanelIndex: panel.Index, Attempt: attempt, Score: best.Score(), Outcome: OutcomeFallback})
			return c.accept(best, attempt-1), nil
		}

		current := &domain.Attempt{
			PanelIndex: panel.Index,
			Number:     attempt,
			Prompt:     prompt,
			ImageData:  result.Data,
			ImageURL:   result.SourceURL,
		}

		if !c.cfg.ReviewEnabled {
			c.sink.Publish(Event{PanelIndex: panel.Index, Attempt: attempt, Outcome: OutcomeAccepted})
			return c.accept(current, attempt), nil
		}

		rev, err := c.reviewer.Review(ctx, result.SourceURL, panel, c.classroomContext)
		if err != nil {
			// 採点の失敗は致命的ではない。スコア0として次へ進むのだ。
			slog.Warn("採点に失敗したためスコア0として扱います", "panel", panel.Index, "attempt", attempt, "error", err)
			rev = nil
		}
		current.Review = rev
		lastReview = rev

		if best == nil || current.Score() > best.Score() {
			best = current
		}

		if current.Score() >= c.cfg.MinScore {
			c.sink.Publish(Event{PanelIndex: panel.Index, Attempt: attempt, Score: current.Score(), Outcome: OutcomeAccepted})
			return c.accept(current, attempt), nil
		}

		c.sink.Publish(Event{PanelIndex: panel.Index, Attempt: attempt, Score: current.Score(), Outcome: OutcomeRetry})
	}

	// 試行回数を使い切った。最高スコア(同点なら先の試行)を採用するのだ。
	c.sink.Publish(Event{PanelIndex: panel.Index, Attempt: c.cfg.MaxAttempts, Score: best.Score(), Outcome: OutcomeExhausted})
	return c.accept(best, c.cfg.MaxAttempts), nil
}

func (c *Controller) accept(attempt *domain.Attempt, attemptsUsed int) *domain.AcceptedPanel {
	return &domain.AcceptedPanel{
		Index:     attempt.PanelIndex,
		ImageData: attempt.ImageData,
		SourceURL: attempt.ImageURL,
		Score:     attempt.Score(),
		Attempts:  attemptsUsed,
	}
}
