package domain

import "strings"

// 台詞の話者として許可される特別な役割名です。
// 教室のキャラクター名簿に載っていなくても有効な話者として扱います。
const (
	SpeakerTeacher  = "Teacher"
	SpeakerNarrator = "Narrator"
)

// ChapterScript は AI モデルから返されるチャプター台本全体の構造です。
// パイプラインに渡した後は不変として扱います（panel_quality の付与のみ例外）。
type ChapterScript struct {
	EpisodeTitle       string   `json:"episode_title"`
	LearningObjectives []string `json:"learning_objectives"`
	Panels             Panels   `json:"panels"`
}

// Panels は台本内のパネル列です。正規化後は index が 1..N で連続します。
type Panels []Panel

// Panel は漫画の1コマの構成、ナレーション、台詞、登場人物を保持します。
type Panel struct {
	Index            int            `json:"index"`
	Setting          string         `json:"setting"`
	Description      string         `json:"description"`
	Narration        string         `json:"narration"`
	Dialogue         []DialogueLine `json:"dialogue"`
	FeaturedStudents []string       `json:"featured_students"`
}

// DialogueLine は吹き出し1つ分の台詞です。
// Speaker は名簿上の生徒名、または "Teacher" / "Narrator" のいずれかに解決される想定です。
type DialogueLine struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Normalize は台本を検証可能な形に整えます。
// パネルの index を 1..N の連番に振り直し、欠けているフィールドを空値で埋めるのだ。
// AI の応答に含まれがちな index の欠落・重複をここで一括して吸収します。
func (s *ChapterScript) Normalize() {
	if s.LearningObjectives == nil {
		s.LearningObjectives = []string{}
	}
	for i := range s.Panels {
		s.Panels[i].Index = i + 1
		if s.Panels[i].Dialogue == nil {
			s.Panels[i].Dialogue = []DialogueLine{}
		}
		if s.Panels[i].FeaturedStudents == nil {
			s.Panels[i].FeaturedStudents = []string{}
		}
	}
}

// MentionedNames は、このパネルで言及されるキャラクター名を返します。
// featured_students と台詞の話者の和集合を、発見順・重複なし（大文字小文字を無視）で保持します。
func (p Panel) MentionedNames() []string {
	seen := make(map[string]struct{})
	names := make([]string, 0, len(p.FeaturedStudents)+len(p.Dialogue))

	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}

	for _, name := range p.FeaturedStudents {
		add(name)
	}
	for _, line := range p.Dialogue {
		add(line.Speaker)
	}
	return names
}
