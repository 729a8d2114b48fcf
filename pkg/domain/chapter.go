package domain

import (
	"encoding/json"
	"fmt"
)

// チャプターの外部から観測可能なステータス値です。
// 生成パイプラインは generating から ready または failed のどちらかへ必ず遷移させます。
const (
	ChapterStatusOptions    = "options_generated"
	ChapterStatusIdeaChosen = "idea_chosen"
	ChapterStatusGenerating = "generating"
	ChapterStatusReady      = "ready"
	ChapterStatusFailed     = "failed"
)

// Chapter はチャプターレコードの読み取りビューです。
// OutlineJSON にはパイプラインの進行状態（ChapterState）が JSON 文字列として格納されます。
type Chapter struct {
	ID          string `json:"id"`
	ClassroomID string `json:"classroom_id"`
	Index       int    `json:"index"`
	Status      string `json:"status"`
	OutlineJSON string `json:"chapter_outline"`
}

// StoryIdea は教師に提示するストーリー案の1つです。
type StoryIdea struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Theme   string `json:"theme"`
}

// PanelQuality は完成したパネルごとの採点結果の記録です。
// 台本そのものは不変のまま、この付属情報だけを後から追加します。
type PanelQuality struct {
	Index    int     `json:"index"`
	Score    float64 `json:"score"`
	Attempts int     `json:"attempts"`
}

// ChapterState は chapters.chapter_outline に保存される進行状態です。
type ChapterState struct {
	Status         string         `json:"status"`
	TeacherOutline string         `json:"teacher_outline"`
	StoryIdeas     []StoryIdea    `json:"story_ideas"`
	ChosenIdeaID   string         `json:"chosen_idea_id,omitempty"`
	Script         *ChapterScript `json:"script,omitempty"`
	PanelQuality   []PanelQuality `json:"panel_quality,omitempty"`
}

// ParseChapterState は OutlineJSON から ChapterState を復元します。
// 状態が未初期化（不正な JSON）の場合はエラーを返すのだ。
func (c Chapter) ParseChapterState() (*ChapterState, error) {
	var state ChapterState
	if err := json.Unmarshal([]byte(c.OutlineJSON), &state); err != nil {
		return nil, fmt.Errorf("チャプター %s の状態JSONの解析に失敗しました: %w", c.ID, err)
	}
	return &state, nil
}

// FindIdea は保存済みのストーリー案から ID で1件を探します。
func (s *ChapterState) FindIdea(ideaID string) (StoryIdea, bool) {
	for _, idea := range s.StoryIdeas {
		if idea.ID == ideaID {
			return idea, true
		}
	}
	return StoryIdea{}, false
}
