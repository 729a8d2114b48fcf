// Package pipeline は、チャプター1本分の生成工程全体を編成します。
// 台本の生成からパネルの逐次レンダリング、永続化、ステータス遷移までを
// 1つの論理的な作業単位として実行するのだ。
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/shouni/go-educomic-kit/pkg/continuity"
	"github.com/shouni/go-educomic-kit/pkg/controller"
	"github.com/shouni/go-educomic-kit/pkg/domain"
	"github.com/shouni/go-educomic-kit/pkg/prompts"
	"github.com/shouni/go-educomic-kit/pkg/script"
	"github.com/shouni/go-educomic-kit/pkg/storage"
)

// ScriptGenerator は台本生成ステップの契約です。
type ScriptGenerator interface {
	GenerateScript(ctx context.Context, classroom domain.Classroom, students []domain.Student, outline string, idea domain.StoryIdea) (*domain.ChapterScript, error)
}

// PanelRunner は1パネル分の生成・採点・再試行を実行する契約です。
type PanelRunner interface {
	RunPanel(ctx context.Context, rp prompts.RenderPrompt, panel domain.Panel, references []string) (*domain.AcceptedPanel, error)
}

// RunnerFactory はチャプターごとの文脈から PanelRunner を構築します。
type RunnerFactory func(classroomContext string) (PanelRunner, error)

// Deps はパイプラインが依存する協調コンポーネント群です。
type Deps struct {
	Chapters   storage.ChapterStore
	Classrooms storage.ClassroomStore
	Panels     storage.PanelStore
	Blobs      storage.BlobStore
	Scripts    ScriptGenerator
	NewRunner  RunnerFactory
	Downloader continuity.Downloader
	// AspectRatio はパネル画像の縦横比です。空なら既定値を使います。
	AspectRatio string
	// SubmitLimiter は画像生成の投入間隔を制御します。nil なら制限なしです。
	SubmitLimiter *rate.Limiter
}

// Pipeline はチャプター生成の編成本体です。
type Pipeline struct {
	deps Deps
}

// New は依存関係を検証して Pipeline を初期化します。
func New(deps Deps) (*Pipeline, error) {
	if deps.Chapters == nil || deps.Classrooms == nil || deps.Panels == nil || deps.Blobs == nil {
		return nil, fmt.Errorf("pipeline: 永続化アダプタは全て必須です")
	}
	if deps.Scripts == nil {
		return nil, fmt.Errorf("pipeline: 台本ジェネレータは必須です")
	}
	if deps.NewRunner == nil {
		return nil, fmt.Errorf("pipeline: パネルランナーのファクトリは必須です")
	}
	if deps.AspectRatio == "" {
		deps.AspectRatio = prompts.DefaultAspectRatio
	}
	return &Pipeline{deps: deps}, nil
}

// Run はチャプター1本を最初から最後まで生成します。
// 成功すればステータスは ready、途中で失敗すれば failed へ遷移します。
func (p *Pipeline) Run(ctx context.Context, chapterID string) error {
	if err := p.run(ctx, chapterID); err != nil {
		slog.Error("チャプター生成に失敗しました", "chapter", chapterID, "error", err)
		if statusErr := p.deps.Chapters.UpdateStatus(ctx, chapterID, domain.ChapterStatusFailed); statusErr != nil {
			slog.Error("失敗ステータスの保存にも失敗しました", "chapter", chapterID, "error", statusErr)
		}
		return err
	}
	return nil
}

func (p *Pipeline) run(ctx context.Context, chapterID string) error {
	chapter, err := p.deps.Chapters.GetChapter(ctx, chapterID)
	if err != nil {
		return err
	}

	state, err := chapter.ParseChapterState()
	if err != nil {
		return err
	}

	classroom, err := p.deps.Classrooms.GetClassroom(ctx, chapter.ClassroomID)
	if err != nil {
		return err
	}
	students, err := p.deps.Classrooms.GetStudents(ctx, chapter.ClassroomID)
	if err != nil {
		return err
	}

	idea, ok := state.FindIdea(state.ChosenIdeaID)
	if !ok {
		return fmt.Errorf("pipeline: チャプター %s に採用済みのストーリー案がありません", chapterID)
	}

	chapterScript, err := p.deps.Scripts.GenerateScript(ctx, classroom, students, state.TeacherOutline, idea)
	if err != nil {
		return err
	}
	slog.Info("台本を生成しました",
		"chapter", chapterID,
		"title", chapterScript.EpisodeTitle,
		"panels", len(chapterScript.Panels),
	)

	// 再生成に備えて既存のパネルを明示的に消してから始めるのだ
	if err := p.deps.Panels.ClearPanels(ctx, chapterID); err != nil {
		return err
	}

	roster := domain.BuildRoster(students)
	tracker := continuity.NewTracker(roster)
	if p.deps.Downloader != nil {
		continuity.WarmupAvatars(ctx, p.deps.Downloader, students)
	}

	builder := prompts.NewPanelPromptBuilder(classroom.DesignStyle, classroom.StoryTheme, p.deps.AspectRatio, roster)
	classroomContext := fmt.Sprintf("%s, %s", classroom.Subject, classroom.GradeLevel)

	runner, err := p.deps.NewRunner(classroomContext)
	if err != nil {
		return err
	}

	quality := make([]domain.PanelQuality, 0, len(chapterScript.Panels))

	for _, panel := range chapterScript.Panels {
		if p.deps.SubmitLimiter != nil {
			if err := p.deps.SubmitLimiter.Wait(ctx); err != nil {
				return fmt.Errorf("pipeline: 投入間隔の待機が中断されました: %w", err)
			}
		}

		rp := builder.Build(panel)
		references := tracker.References(panel)

		accepted, err := runner.RunPanel(ctx, rp, panel, references)
		if err != nil {
			return fmt.Errorf("pipeline: パネル%dで中断しました: %w", panel.Index, err)
		}

		accepted.ImageURL = p.persistImage(ctx, chapterID, accepted)

		if err := p.deps.Panels.CreatePanel(ctx, chapterID, accepted.Index, accepted.ImageURL); err != nil {
			return err
		}

		tracker.Advance(*accepted)
		quality = append(quality, domain.PanelQuality{
			Index:    accepted.Index,
			Score:    accepted.Score,
			Attempts: accepted.Attempts,
		})
	}

	state.Script = chapterScript
	state.PanelQuality = quality
	state.Status = domain.ChapterStatusReady
	if err := p.deps.Chapters.UpdateState(ctx, chapterID, state); err != nil {
		return err
	}

	slog.Info("チャプターが完成しました", "chapter", chapterID, "panels", len(quality))
	return nil
}

// persistImage はパネル画像を永続ストレージへ移します。
// アップロードに失敗しても、短命な取得元URLで代用してチャプターは完走させます。
func (p *Pipeline) persistImage(ctx context.Context, chapterID string, accepted *domain.AcceptedPanel) string {
	path := storage.PanelBlobPath(chapterID, accepted.Index)
	publicURL, err := p.deps.Blobs.Upload(ctx, accepted.ImageData, path, "image/png")
	if err != nil {
		slog.Warn("画像の永続化に失敗したため取得元URLで代用します",
			"chapter", chapterID, "panel", accepted.Index, "error", err)
		return accepted.SourceURL
	}
	return publicURL
}

// 型の適合確認です。
var _ PanelRunner = (*controller.Controller)(nil)
var _ ScriptGenerator = (*script.Generator)(nil)
