package cmd

import (
	"fmt"
	"log/slog"

	"github.com/shouni/go-educomic-kit/internal/builder"
	"github.com/shouni/go-educomic-kit/internal/config"
	"github.com/shouni/go-educomic-kit/pkg/domain"

	"github.com/spf13/cobra"
)

// generateCmd は、チャプター1本分のコミック生成を実行するのだ。
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "チャプターの台本とパネル画像を一括生成するのだ。",
	Long: `保存済みのチャプター状態（アウトラインと採用済みストーリー案）を読み込み、
台本の生成、パネル画像のレンダリング、採点と再試行、永続化までを一気に実行するのだ。
進捗はチャプターのステータス列で観測できるのだよ。`,
	Example: "  educomic-go generate --chapter 4f2c...",
	RunE:    generateCommand,
}

func init() {
}

func generateCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if opts.ChapterID == "" {
		return fmt.Errorf("生成対象のチャプター（--chapter）を指定してほしいのだ")
	}

	cfg := config.LoadConfig()
	cfg.Options = opts

	slog.Info("チャプター生成パイプラインを起動するのだ！",
		"chapter", opts.ChapterID,
		"script_model", cfg.ScriptModel,
		"review_model", cfg.ReviewModel,
		"max_attempts", opts.MaxAttempts,
		"min_score", opts.MinScore,
	)

	appCtx, err := builder.NewAppContext(ctx, cfg)
	if err != nil {
		return fmt.Errorf("アプリケーションの初期化に失敗したのだ: %w", err)
	}

	jobs, err := builder.BuildJobManager(appCtx)
	if err != nil {
		return fmt.Errorf("パイプラインの構築に失敗したのだ: %w", err)
	}

	if err := jobs.Start(ctx, opts.ChapterID); err != nil {
		return fmt.Errorf("生成の開始に失敗したのだ: %w", err)
	}

	// CLIではバックグラウンドに逃がす相手がいないので、完了まで待つのだ
	jobs.Wait()

	chapter, err := appCtx.Supabase.GetChapter(ctx, opts.ChapterID)
	if err != nil {
		return fmt.Errorf("完了後のステータス確認に失敗したのだ: %w", err)
	}
	if chapter.Status != domain.ChapterStatusReady {
		return fmt.Errorf("チャプター生成が %s で終わったのだ。ログを確認してほしいのだ", chapter.Status)
	}

	slog.Info("すべての生成工程が完了したのだ！", "chapter", opts.ChapterID)
	return nil
}
