package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-educomic-kit/pkg/domain"
)

func newTestPipeline(t *testing.T, store *fakeStore, gen ScriptGenerator, runner PanelRunner) *Pipeline {
	t.Helper()
	p, err := New(Deps{
		Chapters:   store,
		Classrooms: store,
		Panels:     store,
		Blobs:      store,
		Scripts:    gen,
		NewRunner: func(classroomContext string) (PanelRunner, error) {
			return runner, nil
		},
	})
	require.NoError(t, err)
	return p
}

func TestPipeline_Run(t *testing.T) {
	t.Run("パネルは1からNまで欠番なく保存されるのだ", func(t *testing.T) {
		store := newFakeStore("ch1")
		runner := &fakeRunner{}
		p := newTestPipeline(t, store, &fakeScriptGen{script: testScript(3)}, runner)

		require.NoError(t, p.Run(context.Background(), "ch1"))

		require.Len(t, store.panels, 3)
		for i, row := range store.panels {
			assert.Equal(t, i+1, row.index)
			assert.Equal(t, "ch1", row.chapterID)
		}
		assert.Equal(t, 1, store.cleared)
	})

	t.Run("2枚目以降の参照セットは直前パネルの画像が先頭なのだ", func(t *testing.T) {
		store := newFakeStore("ch1")
		runner := &fakeRunner{}
		p := newTestPipeline(t, store, &fakeScriptGen{script: testScript(2)}, runner)

		require.NoError(t, p.Run(context.Background(), "ch1"))

		require.Len(t, runner.refs, 2)
		// 1枚目はアバターのみ
		assert.Equal(t, []string{"https://cdn.example.com/A.png"}, runner.refs[0])
		// 2枚目は確定済みの1枚目の公開URLが先頭
		require.NotEmpty(t, runner.refs[1])
		assert.Equal(t, "https://cdn.example.com/chapters/ch1/panel_01.png", runner.refs[1][0])
	})

	t.Run("完走するとreadyになり採点の記録が残るのだ", func(t *testing.T) {
		store := newFakeStore("ch1")
		p := newTestPipeline(t, store, &fakeScriptGen{script: testScript(2)}, &fakeRunner{})

		require.NoError(t, p.Run(context.Background(), "ch1"))

		require.NotNil(t, store.savedState)
		assert.Equal(t, domain.ChapterStatusReady, store.savedState.Status)
		assert.Equal(t, "Forces in Orbit", store.savedState.Script.EpisodeTitle)
		require.Len(t, store.savedState.PanelQuality, 2)
		assert.InDelta(t, 8.0, store.savedState.PanelQuality[0].Score, 0.001)
	})

	t.Run("途中のパネルで失敗すると後続を生成せずfailedになるのだ", func(t *testing.T) {
		store := newFakeStore("ch1")
		runner := &fakeRunner{failAt: 2}
		p := newTestPipeline(t, store, &fakeScriptGen{script: testScript(4)}, runner)

		err := p.Run(context.Background(), "ch1")
		require.Error(t, err)

		assert.Equal(t, []int{1, 2}, runner.calls)
		require.Len(t, store.panels, 1)
		assert.Contains(t, store.statusHistory, domain.ChapterStatusFailed)
	})

	t.Run("台本生成の失敗はチャプター全体の失敗なのだ", func(t *testing.T) {
		store := newFakeStore("ch1")
		p := newTestPipeline(t, store, &fakeScriptGen{err: assert.AnError}, &fakeRunner{})

		err := p.Run(context.Background(), "ch1")
		require.Error(t, err)
		assert.Contains(t, store.statusHistory, domain.ChapterStatusFailed)
	})

	t.Run("アップロード失敗時は取得元URLで完走するのだ", func(t *testing.T) {
		store := newFakeStore("ch1")
		store.uploadErr = assert.AnError
		p := newTestPipeline(t, store, &fakeScriptGen{script: testScript(1)}, &fakeRunner{})

		require.NoError(t, p.Run(context.Background(), "ch1"))

		require.Len(t, store.panels, 1)
		assert.Equal(t, "https://delivery.bfl.ai/panel_1.png", store.panels[0].imageURL)
		assert.Equal(t, domain.ChapterStatusReady, store.savedState.Status)
	})
}

func TestJobManager(t *testing.T) {
	t.Run("開始するとgeneratingになり完了でreadyになるのだ", func(t *testing.T) {
		store := newFakeStore("ch1")
		p := newTestPipeline(t, store, &fakeScriptGen{script: testScript(1)}, &fakeRunner{})

		m, err := NewJobManager(p, store)
		require.NoError(t, err)

		require.NoError(t, m.Start(context.Background(), "ch1"))
		m.Wait()

		require.NotEmpty(t, store.statusHistory)
		assert.Equal(t, domain.ChapterStatusGenerating, store.statusHistory[0])
		assert.Equal(t, domain.ChapterStatusReady, store.statusHistory[len(store.statusHistory)-1])
	})

	t.Run("同じチャプターの二重起動は拒否されるのだ", func(t *testing.T) {
		store := newFakeStore("ch1")

		blocker := make(chan struct{})
		gen := &blockingScriptGen{release: blocker}
		p := newTestPipeline(t, store, gen, &fakeRunner{})

		m, err := NewJobManager(p, store)
		require.NoError(t, err)

		require.NoError(t, m.Start(context.Background(), "ch1"))
		err = m.Start(context.Background(), "ch1")
		assert.Error(t, err)

		close(blocker)
		m.Wait()
	})
}

// blockingScriptGen は release が閉じられるまで台本生成を止めます。
type blockingScriptGen struct {
	release chan struct{}
}

func (b *blockingScriptGen) GenerateScript(ctx context.Context, classroom domain.Classroom, students []domain.Student, outline string, idea domain.StoryIdea) (*domain.ChapterScript, error) {
	select {
	case <-b.release:
	case <-time.After(5 * time.Second):
	}
	return testScript(1), nil
}
