package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/shouni/go-educomic-kit/internal/builder"
	"github.com/shouni/go-educomic-kit/internal/config"

	"github.com/spf13/cobra"
)

// ideasCmd は、先生に提示するストーリー案を3件生成するのだ。
var ideasCmd = &cobra.Command{
	Use:   "ideas",
	Short: "授業アウトラインからストーリー案を3件提案するのだ。",
	Long: `教室と生徒の情報、そして先生が書いたアウトラインを材料に、
次のチャプターのストーリー案をちょうど3件生成してJSONで出力するのだ。`,
	Example: `  educomic-go ideas --classroom 7b1d... --outline "てこの原理を学ぶ"`,
	RunE:    ideasCommand,
}

func init() {
}

func ideasCommand(cmd *cobra.Command, args []string) error {
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

	ideas, err := gen.GenerateIdeas(ctx, classroom, students, opts.Outline)
	if err != nil {
		return fmt.Errorf("ストーリー案の生成に失敗したのだ: %w", err)
	}

	slog.Info("ストーリー案を生成したのだ", "classroom", classroom.Name, "count", len(ideas))

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ideas)
}
