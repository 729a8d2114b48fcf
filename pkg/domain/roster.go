package domain

import (
	"fmt"
	"strings"
)

// Classroom は教室レコードの読み取り専用ビューです。
type Classroom struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Subject     string `json:"subject"`
	GradeLevel  string `json:"grade_level"`
	StoryTheme  string `json:"story_theme"`
	DesignStyle string `json:"design_style"`
	Duration    string `json:"duration"`
}

// Student は教室に所属する生徒のレコードです。
// AvatarURL は参照画像として画像生成に渡されます（未設定なら空文字）。
type Student struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Interests string `json:"interests"`
	AvatarURL string `json:"avatar_url"`
}

// Roster は小文字化した生徒名をキーとした検索用マップです。
// チャプター開始時に一度だけ構築され、パイプラインからは読み取り専用で扱います。
type Roster map[string]Student

// BuildRoster は生徒のスライスを検索効率の良いマップ形式に変換します。
func BuildRoster(students []Student) Roster {
	r := make(Roster, len(students))
	for _, s := range students {
		key := strings.ToLower(strings.TrimSpace(s.Name))
		if key == "" {
			continue
		}
		r[key] = s
	}
	return r
}

// Find は名前からキャラクターを特定します。大文字小文字と前後の空白は無視するのだ。
func (r Roster) Find(name string) (Student, bool) {
	s, ok := r[strings.ToLower(strings.TrimSpace(name))]
	return s, ok
}

// Descriptor は、プロンプトに埋め込む一行のキャラクター紹介文を返します。
// 名簿にいない名前はそのまま返します（Teacher / Narrator など）。
func (r Roster) Descriptor(name string) string {
	s, ok := r.Find(name)
	if !ok {
		return name
	}
	if s.Interests == "" {
		return fmt.Sprintf("%s, a student", s.Name)
	}
	return fmt.Sprintf("%s, a student who likes %s", s.Name, s.Interests)
}
