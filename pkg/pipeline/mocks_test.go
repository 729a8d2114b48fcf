package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shouni/go-educomic-kit/pkg/domain"
	"github.com/shouni/go-educomic-kit/pkg/prompts"
)

// fakeStore は ChapterStore / ClassroomStore / PanelStore / BlobStore を
// まとめて担うテスト用のインメモリ実装です。
type fakeStore struct {
	mu sync.Mutex

	chapter   domain.Chapter
	classroom domain.Classroom
	students  []domain.Student

	statusHistory []string
	savedState    *domain.ChapterState
	panels        []panelRow
	cleared       int

	uploadErr error
	uploads   []string

	chapterErr error
	panelErr   error
}

type panelRow struct {
	chapterID string
	index     int
	imageURL  string
}

func (f *fakeStore) GetChapter(ctx context.Context, id string) (domain.Chapter, error) {
	if f.chapterErr != nil {
		return domain.Chapter{}, f.chapterErr
	}
	return f.chapter, nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, id string, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusHistory = append(f.statusHistory, status)
	return nil
}

func (f *fakeStore) UpdateState(ctx context.Context, id string, state *domain.ChapterState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savedState = state
	f.statusHistory = append(f.statusHistory, state.Status)
	return nil
}

func (f *fakeStore) GetClassroom(ctx context.Context, id string) (domain.Classroom, error) {
	return f.classroom, nil
}

func (f *fakeStore) GetStudents(ctx context.Context, classroomID string) ([]domain.Student, error) {
	return f.students, nil
}

func (f *fakeStore) CreatePanel(ctx context.Context, chapterID string, index int, imageURL string) error {
	if f.panelErr != nil {
		return f.panelErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panels = append(f.panels, panelRow{chapterID: chapterID, index: index, imageURL: imageURL})
	return nil
}

func (f *fakeStore) ClearPanels(ctx context.Context, chapterID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	f.panels = nil
	return nil
}

func (f *fakeStore) Upload(ctx context.Context, data []byte, path string, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads = append(f.uploads, path)
	return "https://cdn.example.com/" + path, nil
}

// fakeScriptGen は固定の台本を返す ScriptGenerator です。
type fakeScriptGen struct {
	script *domain.ChapterScript
	err    error
}

func (f *fakeScriptGen) GenerateScript(ctx context.Context, classroom domain.Classroom, students []domain.Student, outline string, idea domain.StoryIdea) (*domain.ChapterScript, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.script, nil
}

// fakeRunner は PanelRunner のテスト用実装です。failAt のパネルで失敗します。
type fakeRunner struct {
	failAt int
	calls  []int
	refs   [][]string
}

func (f *fakeRunner) RunPanel(ctx context.Context, rp prompts.RenderPrompt, panel domain.Panel, references []string) (*domain.AcceptedPanel, error) {
	f.calls = append(f.calls, panel.Index)
	f.refs = append(f.refs, references)
	if f.failAt != 0 && panel.Index == f.failAt {
		return nil, fmt.Errorf("render burst")
	}
	return &domain.AcceptedPanel{
		Index:     panel.Index,
		ImageData: []byte("png"),
		SourceURL: fmt.Sprintf("https://delivery.bfl.ai/panel_%d.png", panel.Index),
		Score:     8.0,
		Attempts:  1,
	}, nil
}

func testScript(panelCount int) *domain.ChapterScript {
	s := &domain.ChapterScript{EpisodeTitle: "Forces in Orbit"}
	for i := 1; i <= panelCount; i++ {
		s.Panels = append(s.Panels, domain.Panel{
			Index:            i,
			Setting:          "science lab",
			Description:      fmt.Sprintf("scene %d", i),
			FeaturedStudents: []string{"Ana"},
		})
	}
	return s
}

func testChapter(chapterID string) domain.Chapter {
	state := domain.ChapterState{
		Status:         domain.ChapterStatusIdeaChosen,
		TeacherOutline: "measuring forces",
		StoryIdeas:     []domain.StoryIdea{{ID: "idea_1", Title: "Orbit Lab"}},
		ChosenIdeaID:   "idea_1",
	}
	raw, _ := json.Marshal(state)
	return domain.Chapter{
		ID:          chapterID,
		ClassroomID: "c1",
		Status:      domain.ChapterStatusIdeaChosen,
		OutlineJSON: string(raw),
	}
}

func newFakeStore(chapterID string) *fakeStore {
	return &fakeStore{
		chapter: testChapter(chapterID),
		classroom: domain.Classroom{
			ID:          "c1",
			Name:        "Class 4-B",
			Subject:     "physics",
			GradeLevel:  "grade 4",
			StoryTheme:  "space exploration",
			DesignStyle: "manga",
		},
		students: []domain.Student{
			{ID: "s1", Name: "Ana", AvatarURL: "https://cdn.example.com/A.png"},
		},
	}
}
