package config

import (
	"time"

	"github.com/shouni/go-utils/envutil"
)

// デフォルト値の定義なのだ
const (
	DefaultScriptModel    = "gemini-3-flash-preview"
	DefaultReviewModel    = "gemini-3-flash-preview"
	DefaultFluxBaseURL    = "https://api.bfl.ai"
	DefaultFluxEndpoint   = "flux-pro-1.1"
	DefaultHTTPTimeout    = 30 * time.Second
	DefaultPollInterval   = 750 * time.Millisecond
	DefaultPollTimeout    = 90 * time.Second
	DefaultAspectRatio    = "3:2"
	DefaultMaxAttempts    = 3
	DefaultMinScore       = 7.0
	DefaultSubmitInterval = 2 * time.Second
	DefaultPanelBucket    = "panels"
)

// Config はアプリケーション全体の環境設定（APIキーや接続先）を保持する構造体なのだ。
type Config struct {
	GeminiAPIKey       string
	BFLAPIKey          string
	SupabaseURL        string
	SupabaseServiceKey string
	PanelBucket        string

	ScriptModel string
	ReviewModel string

	FluxBaseURL  string
	FluxEndpoint string

	Options GenerateOptions
}

// LoadConfig は環境変数から設定を読み込み、構造体を返すのだ！
func LoadConfig() *Config {
	return &Config{
		GeminiAPIKey:       envutil.GetEnv("GEMINI_API_KEY", ""),
		BFLAPIKey:          envutil.GetEnv("BFL_API_KEY", ""),
		SupabaseURL:        envutil.GetEnv("SUPABASE_URL", ""),
		SupabaseServiceKey: envutil.GetEnv("SUPABASE_SERVICE_KEY", ""),
		PanelBucket:        envutil.GetEnv("PANEL_BUCKET", DefaultPanelBucket),
		ScriptModel:        envutil.GetEnv("SCRIPT_MODEL", DefaultScriptModel),
		ReviewModel:        envutil.GetEnv("REVIEW_MODEL", DefaultReviewModel),
		FluxBaseURL:        envutil.GetEnv("FLUX_BASE_URL", DefaultFluxBaseURL),
		FluxEndpoint:       envutil.GetEnv("FLUX_ENDPOINT", DefaultFluxEndpoint),
	}
}

// GenerateOptions は CLI フラグから渡される実行時のパラメータなのだ。
type GenerateOptions struct {
	// 対象指定
	ChapterID   string // --chapter
	ClassroomID string // --classroom
	Outline     string // --outline
	IdeaTitle   string // --idea-title
	IdeaSummary string // --idea-summary

	// 生成挙動
	AspectRatio   string  // --aspect-ratio
	MaxAttempts   int     // --max-attempts
	MinScore      float64 // --min-score
	ReviewEnabled bool    // --review

	// 実行制御
	HTTPTimeout time.Duration // --http-timeout
}
