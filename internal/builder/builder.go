// Package builder は、設定からアプリケーションの依存グラフを組み立てます。
package builder

import (
	"context"
	"fmt"
	"net/http"

	"github.com/patrickmn/go-cache"
	"github.com/shouni/go-gemini-client/gemini"
	"github.com/shouni/go-http-kit/httpkit"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/shouni/go-educomic-kit/internal/config"
	"github.com/shouni/go-educomic-kit/pkg/controller"
	"github.com/shouni/go-educomic-kit/pkg/flux"
	"github.com/shouni/go-educomic-kit/pkg/pipeline"
	"github.com/shouni/go-educomic-kit/pkg/review"
	"github.com/shouni/go-educomic-kit/pkg/script"
	"github.com/shouni/go-educomic-kit/pkg/storage"
)

const defaultGeminiTemperature = float32(0.2)

// AppContext は、アプリケーション実行に必要な共通コンテキストを保持します。
// これを各Build関数に渡すことで、依存関係の注入を簡素化します。
type AppContext struct {
	Config   *config.Config
	Supabase *storage.SupabaseClient

	aiClient   gemini.GenerativeModel
	httpClient httpkit.HTTPClient
}

// NewAppContext は共有クライアント群を初期化して AppContext を生成します。
func NewAppContext(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	timeout := cfg.Options.HTTPTimeout
	if timeout <= 0 {
		timeout = config.DefaultHTTPTimeout
	}
	httpClient := httpkit.New(timeout)

	aiClient, err := initializeAIClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return nil, err
	}

	supabase, err := storage.NewSupabaseClient(storage.SupabaseConfig{
		URL:        cfg.SupabaseURL,
		ServiceKey: cfg.SupabaseServiceKey,
		Bucket:     cfg.PanelBucket,
	}, httpClient, cache.New(storage.DefaultCacheTTL, 10*storage.DefaultCacheTTL))
	if err != nil {
		return nil, fmt.Errorf("Supabaseクライアントの初期化に失敗しました: %w", err)
	}

	return &AppContext{
		Config:     cfg,
		Supabase:   supabase,
		aiClient:   aiClient,
		httpClient: httpClient,
	}, nil
}

// BuildScriptGenerator は台本とストーリー案の生成器を構築します。
func BuildScriptGenerator(appCtx *AppContext) (*script.Generator, error) {
	gen, err := script.NewGenerator(appCtx.aiClient, appCtx.Config.ScriptModel)
	if err != nil {
		return nil, fmt.Errorf("台本ジェネレータの構築に失敗しました: %w", err)
	}
	return gen, nil
}

// BuildJobManager はチャプター生成パイプラインとそのジョブ管理を構築します。
func BuildJobManager(appCtx *AppContext) (*pipeline.JobManager, error) {
	scriptGen, err := BuildScriptGenerator(appCtx)
	if err != nil {
		return nil, err
	}

	fluxClient, err := flux.New(flux.Config{
		APIKey:   appCtx.Config.BFLAPIKey,
		BaseURL:  appCtx.Config.FluxBaseURL,
		Endpoint: appCtx.Config.FluxEndpoint,
	}, &http.Client{Timeout: config.DefaultHTTPTimeout}, appCtx.httpClient)
	if err != nil {
		return nil, fmt.Errorf("画像生成クライアントの構築に失敗しました: %w", err)
	}

	opts := appCtx.Config.Options
	p, err := pipeline.New(pipeline.Deps{
		Chapters:   appCtx.Supabase,
		Classrooms: appCtx.Supabase,
		Panels:     appCtx.Supabase,
		Blobs:      appCtx.Supabase,
		Scripts:    scriptGen,
		NewRunner: func(classroomContext string) (pipeline.PanelRunner, error) {
			return buildPanelRunner(appCtx, fluxClient, classroomContext)
		},
		Downloader:    appCtx.httpClient,
		AspectRatio:   opts.AspectRatio,
		SubmitLimiter: rate.NewLimiter(rate.Every(config.DefaultSubmitInterval), 1),
	})
	if err != nil {
		return nil, err
	}

	return pipeline.NewJobManager(p, appCtx.Supabase)
}

// buildPanelRunner は1チャプター分のリトライ制御を構築します。
func buildPanelRunner(appCtx *AppContext, fluxClient *flux.Client, classroomContext string) (pipeline.PanelRunner, error) {
	opts := appCtx.Config.Options

	var reviewer review.Reviewer
	if opts.ReviewEnabled {
		r, err := review.NewGeminiReviewer(appCtx.aiClient, appCtx.httpClient, appCtx.Config.ReviewModel)
		if err != nil {
			return nil, fmt.Errorf("レビュアーの構築に失敗しました: %w", err)
		}
		reviewer = r
	}

	return controller.New(fluxClient, reviewer, nil, controller.Config{
		MaxAttempts:   opts.MaxAttempts,
		MinScore:      opts.MinScore,
		ReviewEnabled: opts.ReviewEnabled,
	}, classroomContext)
}

// initializeAIClient は gemini クライアントを初期化します。
func initializeAIClient(ctx context.Context, apiKey string) (gemini.GenerativeModel, error) {
	clientConfig := gemini.Config{
		APIKey:      apiKey,
		Temperature: genai.Ptr(defaultGeminiTemperature),
	}
	aiClient, err := gemini.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}
	return aiClient, nil
}
