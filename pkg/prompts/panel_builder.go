package prompts

import (
	"fmt"
	"strings"

	"github.com/shouni/go-educomic-kit/pkg/domain"
)

const (
	// StyleManga は線画中心の白黒スタイル指定です。
	StyleManga = "manga"

	mangaStylePhrase = "in a clean black-and-white manga style, expressive characters, clear line art"
	comicStylePhrase = "in a colorful, kid-friendly comic style, clear line art, simple shading"

	// DefaultCastPhrase は登場人物が特定できない場合のフォールバック指示です。
	DefaultCastPhrase = "Show a small group of characters."
)

// PanelPromptBuilder は、台本のパネルと教室のスタイル設定からレンダリングプロンプトを構築します。
// 副作用を持たない純粋なコンパイラであり、同じ入力からは常に同じ文字列を生成します。
type PanelPromptBuilder struct {
	designStyle string
	theme       string
	aspectRatio string
	roster      domain.Roster
}

// NewPanelPromptBuilder は新しい PanelPromptBuilder を生成します。
func NewPanelPromptBuilder(designStyle, theme, aspectRatio string, roster domain.Roster) *PanelPromptBuilder {
	if aspectRatio == "" {
		aspectRatio = DefaultAspectRatio
	}
	return &PanelPromptBuilder{
		designStyle: designStyle,
		theme:       theme,
		aspectRatio: aspectRatio,
		roster:      roster,
	}
}

// Build は1パネル分のレンダリングプロンプトをコンパイルします。
// 台詞やナレーションは言い換えせず、一字一句そのまま埋め込むのだ。
func (pb *PanelPromptBuilder) Build(panel domain.Panel) RenderPrompt {
	var sb strings.Builder

	stylePhrase := comicStylePhrase
	if pb.designStyle == StyleManga {
		stylePhrase = mangaStylePhrase
	}

	sb.WriteString(fmt.Sprintf("A single comic panel %s. ", stylePhrase))
	sb.WriteString(fmt.Sprintf("Scene setting: %s. ", panel.Setting))
	sb.WriteString(fmt.Sprintf("Visual description: %s. ", panel.Description))
	sb.WriteString(pb.castPhrase(panel))
	sb.WriteString(" Keep the composition readable and leave clear room for the text elements below. ")
	sb.WriteString("Keep character designs and overall style consistent across panels and with any reference images provided.")
	if pb.theme != "" {
		sb.WriteString(fmt.Sprintf(" Match the ongoing story theme: %s.", pb.theme))
	}

	if section := buildTextElementsSection(panel); section != "" {
		sb.WriteString("\n\n")
		sb.WriteString(section)
	}

	width, height := DimensionsForAspect(pb.aspectRatio)
	return RenderPrompt{
		PanelIndex:  panel.Index,
		Prompt:      sb.String(),
		AspectRatio: pb.aspectRatio,
		Width:       width,
		Height:      height,
	}
}

// castPhrase は登場キャラクターの紹介句を組み立てます。
// featured_students が空の場合は汎用のフォールバック句に退化します。
func (pb *PanelPromptBuilder) castPhrase(panel domain.Panel) string {
	if len(panel.FeaturedStudents) == 0 {
		return DefaultCastPhrase
	}

	descriptors := make([]string, 0, len(panel.FeaturedStudents))
	for _, name := range panel.FeaturedStudents {
		descriptors = append(descriptors, pb.roster.Descriptor(name))
	}
	return fmt.Sprintf("Show the students: %s.", strings.Join(descriptors, "; "))
}

// buildTextElementsSection は画像内に描画すべきテキスト要素を列挙します。
// ナレーションは尻尾なしのナレーションボックス、台詞は話者に尻尾を向けた吹き出しとして、
// 本文を引用符付きでそのまま指示します。
func buildTextElementsSection(panel domain.Panel) string {
	hasNarration := strings.TrimSpace(panel.Narration) != ""
	if !hasNarration && len(panel.Dialogue) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("### TEXT ELEMENTS (render these texts exactly, letter by letter) ###\n")

	if hasNarration {
		sb.WriteString(fmt.Sprintf("- NARRATION BOX (top of panel, rectangular, no tail): %q\n", panel.Narration))
	}
	for _, line := range panel.Dialogue {
		sb.WriteString(fmt.Sprintf("- SPEECH BUBBLE anchored to %s (tail must point to %s): %q\n", line.Speaker, line.Speaker, line.Text))
	}
	return sb.String()
}
