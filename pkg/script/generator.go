// Package script は、クラス情報と教師のアウトラインからチャプターの台本と
// ストーリー案を生成するLLM連携を提供します。生成結果のJSONを厳密に検証し、
// 台本が壊れている場合はチャプター全体を失敗として扱うのだ。
package script

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/shouni/go-gemini-client/gemini"

	"github.com/shouni/go-educomic-kit/pkg/domain"
)

// IdeaCount は1回の提案で教師に提示するストーリー案の数です。
const IdeaCount = 3

var jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*\\S)\\s*```")

// promptData は script.md / ideas.md テンプレートに渡すデータ構造です。
type promptData struct {
	ClassroomName string
	Subject       string
	GradeLevel    string
	StoryTheme    string
	Students      []domain.Student
	Outline       string
	IdeaTitle     string
	IdeaSummary   string
}

// Generator は台本とストーリー案の生成を行います。
type Generator struct {
	aiClient   gemini.GenerativeModel
	model      string
	scriptTmpl *template.Template
	ideasTmpl  *template.Template
}

// NewGenerator は埋め込みテンプレートを解析して Generator を初期化します。
func NewGenerator(aiClient gemini.GenerativeModel, model string) (*Generator, error) {
	if aiClient == nil {
		return nil, fmt.Errorf("script: aiClient は必須です")
	}
	if model == "" {
		return nil, fmt.Errorf("script: モデル名は必須です")
	}

	scriptTmpl, err := template.New("script").Parse(scriptPrompt)
	if err != nil {
		return nil, fmt.Errorf("script: 台本テンプレートの解析に失敗しました: %w", err)
	}
	ideasTmpl, err := template.New("ideas").Parse(ideasPrompt)
	if err != nil {
		return nil, fmt.Errorf("script: ストーリー案テンプレートの解析に失敗しました: %w", err)
	}

	return &Generator{
		aiClient:   aiClient,
		model:      model,
		scriptTmpl: scriptTmpl,
		ideasTmpl:  ideasTmpl,
	}, nil
}

// GenerateScript はクラス・生徒・アウトライン・採用されたストーリー案から
// チャプターの台本を生成します。応答JSONが壊れている場合や
// パネルが1つも無い場合はエラーを返します。
func (g *Generator) GenerateScript(ctx context.Context, classroom domain.Classroom, students []domain.Student, outline string, idea domain.StoryIdea) (*domain.ChapterScript, error) {
	prompt, err := g.render(g.scriptTmpl, classroom, students, outline, idea)
	if err != nil {
		return nil, err
	}

	resp, err := g.aiClient.GenerateContent(ctx, g.model, prompt)
	if err != nil {
		return nil, fmt.Errorf("script: 台本生成の呼び出しに失敗しました: %w", err)
	}

	var chapterScript domain.ChapterScript
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &chapterScript); err != nil {
		return nil, fmt.Errorf("script: 台本JSONの解析に失敗しました: %w", err)
	}
	if len(chapterScript.Panels) == 0 {
		return nil, fmt.Errorf("script: 台本にパネルが含まれていません")
	}

	chapterScript.Normalize()
	return &chapterScript, nil
}

// GenerateIdeas はストーリー案をちょうど IdeaCount 件生成します。
// 応答が少なければ空のプレースホルダで埋め、多ければ切り詰めます。
// ID は idea_1 から順に機械的に振るのだ。
func (g *Generator) GenerateIdeas(ctx context.Context, classroom domain.Classroom, students []domain.Student, outline string) ([]domain.StoryIdea, error) {
	prompt, err := g.render(g.ideasTmpl, classroom, students, outline, domain.StoryIdea{})
	if err != nil {
		return nil, err
	}

	resp, err := g.aiClient.GenerateContent(ctx, g.model, prompt)
	if err != nil {
		return nil, fmt.Errorf("script: ストーリー案生成の呼び出しに失敗しました: %w", err)
	}

	var parsed struct {
		Ideas []domain.StoryIdea `json:"ideas"`
	}
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &parsed); err != nil {
		return nil, fmt.Errorf("script: ストーリー案JSONの解析に失敗しました: %w", err)
	}

	ideas := parsed.Ideas
	if len(ideas) > IdeaCount {
		ideas = ideas[:IdeaCount]
	}
	for len(ideas) < IdeaCount {
		ideas = append(ideas, domain.StoryIdea{Title: "Untitled idea", Summary: ""})
	}
	for i := range ideas {
		ideas[i].ID = fmt.Sprintf("idea_%d", i+1)
	}
	return ideas, nil
}

func (g *Generator) render(tmpl *template.Template, classroom domain.Classroom, students []domain.Student, outline string, idea domain.StoryIdea) (string, error) {
	data := promptData{
		ClassroomName: classroom.Name,
		Subject:       classroom.Subject,
		GradeLevel:    classroom.GradeLevel,
		StoryTheme:    classroom.StoryTheme,
		Students:      students,
		Outline:       outline,
		IdeaTitle:     idea.Title,
		IdeaSummary:   idea.Summary,
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("script: プロンプトテンプレートの実行に失敗しました: %w", err)
	}
	return sb.String(), nil
}

// extractJSON は、AI応答からコードブロックや前後の説明文を取り除きます。
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if matches := jsonBlockRegex.FindStringSubmatch(raw); len(matches) > 1 {
		return matches[1]
	}
	if first, last := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); first != -1 && last > first {
		return raw[first : last+1]
	}
	return raw
}
