// Package review は、レンダリング済みパネル画像を台本の意図と突き合わせて採点する
// ビジョンモデル連携を提供します。リトライ制御からは Reviewer インターフェース越しに
// 利用され、このパッケージの失敗は決して致命的には扱われません。
package review

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/shouni/gemini-image-kit/imgutil"
	"github.com/shouni/go-gemini-client/gemini"
	"google.golang.org/genai"

	"github.com/shouni/go-educomic-kit/pkg/domain"
)

// Reviewer は画像URLとパネルの意図を受け取り、採点結果を返す契約です。
type Reviewer interface {
	Review(ctx context.Context, imageURL string, panel domain.Panel, classroomContext string) (*domain.ReviewResult, error)
}

// Downloader は採点対象の画像バイト列を取得する最小限の契約です。
type Downloader interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// 送信前の画像圧縮設定です。ビジョンモデルに原寸PNGを送る必要はないのだ。
const (
	useImageCompression     = true
	imageCompressionQuality = 75
)

var jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*\\S)\\s*```")

// GeminiReviewer は Gemini のマルチモーダル生成で採点を行う Reviewer 実装です。
type GeminiReviewer struct {
	aiClient   gemini.GenerativeModel
	downloader Downloader
	model      string
}

// NewGeminiReviewer は依存関係を注入して GeminiReviewer を初期化します。
func NewGeminiReviewer(aiClient gemini.GenerativeModel, downloader Downloader, model string) (*GeminiReviewer, error) {
	if aiClient == nil {
		return nil, fmt.Errorf("review: aiClient は必須です")
	}
	if downloader == nil {
		return nil, fmt.Errorf("review: downloader は必須です")
	}
	if model == "" {
		return nil, fmt.Errorf("review: モデル名は必須です")
	}
	return &GeminiReviewer{aiClient: aiClient, downloader: downloader, model: model}, nil
}

// Review は画像をダウンロードし、パネルの意図と共にビジョンモデルへ渡して採点します。
func (r *GeminiReviewer) Review(ctx context.Context, imageURL string, panel domain.Panel, classroomContext string) (*domain.ReviewResult, error) {
	data, err := r.downloader.FetchBytes(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("review: 採点対象画像の取得に失敗しました: %w", err)
	}

	finalData := data
	if useImageCompression {
		if compressed, err := imgutil.CompressToJPEG(bytes.NewReader(data), imageCompressionQuality); err == nil {
			finalData = compressed
		}
	}

	parts := []*genai.Part{
		{Text: buildReviewPrompt(panel, classroomContext)},
		{InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: finalData}},
	}

	resp, err := r.aiClient.GenerateWithParts(ctx, r.model, parts, gemini.GenerateOptions{})
	if err != nil {
		return nil, fmt.Errorf("review: ビジョンモデルの呼び出しに失敗しました: %w", err)
	}

	result, err := parseReviewResponse(resp.Text)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// buildReviewPrompt は採点用の指示文を組み立てます。
// 期待されるテキスト要素と登場キャラクターを列挙し、JSONでの応答を要求します。
func buildReviewPrompt(panel domain.Panel, classroomContext string) string {
	var sb strings.Builder

	sb.WriteString("You are a strict quality reviewer for educational comic panels.\n")
	sb.WriteString("Compare the attached image against the intended panel content below.\n\n")

	sb.WriteString(fmt.Sprintf("### INTENDED PANEL %d ###\n", panel.Index))
	sb.WriteString(fmt.Sprintf("- Setting: %s\n", panel.Setting))
	sb.WriteString(fmt.Sprintf("- Visual description: %s\n", panel.Description))
	if panel.Narration != "" {
		sb.WriteString(fmt.Sprintf("- Narration box text (must appear verbatim): %q\n", panel.Narration))
	}
	for _, line := range panel.Dialogue {
		sb.WriteString(fmt.Sprintf("- Speech bubble for %s (must appear verbatim): %q\n", line.Speaker, line.Text))
	}
	if len(panel.FeaturedStudents) > 0 {
		sb.WriteString(fmt.Sprintf("- Featured characters: %s\n", strings.Join(panel.FeaturedStudents, ", ")))
	}
	if classroomContext != "" {
		sb.WriteString(fmt.Sprintf("- Classroom context: %s\n", classroomContext))
	}

	sb.WriteString("\nRespond with ONLY a JSON object:\n")
	sb.WriteString(`{"score": 0.0-10.0, "issues": ["..."], "dimensions": {"text_accuracy": 0-10, "character_accuracy": 0-10, "composition": 0-10}, "suggested_fix_prompt": "one short corrective instruction or empty string"}`)
	sb.WriteString("\n")

	return sb.String()
}

// parseReviewResponse は、AIが返したテキストからコードブロック等を除去してJSONとしてパースします。
func parseReviewResponse(raw string) (*domain.ReviewResult, error) {
	raw = strings.TrimSpace(raw)
	var rawJSON string

	matches := jsonBlockRegex.FindStringSubmatch(raw)
	if len(matches) > 1 {
		rawJSON = matches[1]
	} else if first, last := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); first != -1 && last > first {
		rawJSON = raw[first : last+1]
	} else {
		rawJSON = raw
	}

	var result domain.ReviewResult
	if err := json.Unmarshal([]byte(rawJSON), &result); err != nil {
		return nil, fmt.Errorf("review: 採点応答JSONの解析に失敗しました: %w", err)
	}

	// スコアは [0, 10] に収めるのだ
	if result.Score < 0 {
		result.Score = 0
	}
	if result.Score > 10 {
		result.Score = 10
	}
	return &result, nil
}
