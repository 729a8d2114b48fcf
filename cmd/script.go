package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/shouni/go-educomic-kit/internal/builder"
	"github.com/shouni/go-educomic-kit/internal/config"
	"github.com/shouni/go-educomic-kit/pkg/domain"

	"github.com/spf13/cobra"
)

// scriptCmd は、画像を生成せずに台本だけを生成するのだ。
var scriptCmd = &cobra.Command{
	Use:   "script",
	Short: "採用したストーリー案からチャプターの台本だけを生成するのだ。",
	Long: `教室と生徒の情報、アウトライン、採用したストーリー案を材料に
チャプターの台本JSONを生成して出力するのだ。画像のレンダリングは行わないので、
台本の質を確かめたいときに便利なのだよ。`,
	Example: `  educomic-go script --classroom 7b1d... --outline "てこの原理" --idea-title "Orbit Lab"`,
	RunE:    scriptCommand,
}

func init() {
}

func scriptCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if opts.ClassroomID == "" {
		return fmt.Errorf("対象の教室（--classroom）を指定してほしいのだ")
	}
	if opts.Outline == "" {
		return fmt.Errorf("授業アウトライン（--outline）を指定してほしいのだ")
	}

	cfg := config.LoadConfig()
	cfg.Options = opts

	appCtx, err := builder.NewAppContext(ctx, cfg)
	if err != nil {
		return fmt.Errorf("アプリケーションの初期化に失敗したのだ: %w", err)
	}
	gen, err := builder.BuildScriptGenerator(appCtx)
	if err != nil {
		return err
	}

	classroom, err := appCtx.Supabase.GetClassroom(ctx, opts.ClassroomID)
	if err != nil {
		return err
	}
	students, err := appCtx.Supabase.GetStudents(ctx, opts.ClassroomID)
	if err != nil {
		return err
	}

	idea := domain.StoryIdea{Title: opts.IdeaTitle, Summary: opts.IdeaSummary}
	chapterScript, err := gen.GenerateScript(ctx, classroom, students, opts.Outline, idea)
	if err != nil {
		return fmt.Errorf("台本の生成に失敗したのだ: %w", err)
	}

	slog.Info("台本を生成したのだ",
		"classroom", classroom.Name,
		"title", chapterScript.EpisodeTitle,
		"panels", len(chapterScript.Panels),
	)

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(chapterScript)
}
