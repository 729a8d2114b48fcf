package cmd

import (
	"fmt"
	"os"

	"github.com/shouni/go-educomic-kit/internal/config"

	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"
)

// opts はコマンドラインフラグから組み立てられる実行時パラメータなのだ。
var opts config.GenerateOptions

// addAppFlags は、アプリケーション全般に適用されるグローバルフラグを定義するのだ。
func addAppFlags(rootCmd *cobra.Command) {
	// --- 対象指定 ---
	rootCmd.PersistentFlags().StringVarP(&opts.ChapterID, "chapter", "c", "", "生成対象のチャプターIDなのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.ClassroomID, "classroom", "", "対象の教室IDなのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.Outline, "outline", "", "先生が書いた今回の授業アウトラインなのだ。")

	// --- 生成挙動 ---
	rootCmd.PersistentFlags().StringVar(&opts.AspectRatio, "aspect-ratio", config.DefaultAspectRatio, "パネル画像の縦横比なのだ。")
	rootCmd.PersistentFlags().IntVar(&opts.MaxAttempts, "max-attempts", config.DefaultMaxAttempts, "1パネルあたりの最大試行回数なのだ。")
	rootCmd.PersistentFlags().Float64Var(&opts.MinScore, "min-score", config.DefaultMinScore, "このスコア以上で即時合格となる閾値なのだ。")
	rootCmd.PersistentFlags().BoolVar(&opts.ReviewEnabled, "review", true, "生成画像の採点と再試行を行うかなのだ。")

	// --- 実行制御 ---
	rootCmd.PersistentFlags().DurationVar(&opts.HTTPTimeout, "http-timeout", config.DefaultHTTPTimeout, "外部APIリクエストのタイムアウトなのだ。")

	// --- script サブコマンド固有 ---
	scriptCmd.Flags().StringVar(&opts.IdeaTitle, "idea-title", "", "採用するストーリー案のタイトルなのだ。")
	scriptCmd.Flags().StringVar(&opts.IdeaSummary, "idea-summary", "", "採用するストーリー案のあらすじなのだ。")
}

// preRunAppE は、コマンド実行前に環境変数などの必須チェックを行うのだ。
func preRunAppE(cmd *cobra.Command, args []string) error {
	// LLMと画像生成の両方を使うため、キーの存在チェックは欠かせないのだ！
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("エラー: 環境変数 GEMINI_API_KEY が設定されていません。台本生成と採点に必須なのだ")
	}
	if cmd.Name() == "generate" && os.Getenv("BFL_API_KEY") == "" {
		return fmt.Errorf("エラー: 環境変数 BFL_API_KEY が設定されていません。パネル画像の生成に必須なのだ")
	}
	return nil
}

// Execute は、アプリケーションのメインエントリポイントなのだ。
// main.go から呼び出されて、cobra のコマンドライン解析を開始するのだよ。
func Execute() {
	clibase.Execute(
		"educomic-go",
		addAppFlags,
		preRunAppE,
		generateCmd,
		ideasCmd,
		scriptCmd,
	)
}
