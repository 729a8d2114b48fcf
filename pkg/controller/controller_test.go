package controller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-educomic-kit/pkg/domain"
	"github.com/shouni/go-educomic-kit/pkg/prompts"
)

func testRenderPrompt() prompts.RenderPrompt {
	return prompts.RenderPrompt{
		PanelIndex:  1,
		Prompt:      "A manga panel of Ana in the science lab.",
		AspectRatio: "3:2",
		Width:       960,
		Height:      640,
	}
}

func testPanel() domain.Panel {
	return domain.Panel{
		Index:            1,
		Setting:          "science lab",
		Dialogue:         []domain.DialogueLine{{Speaker: "Ana", Text: "Let's measure the force!"}},
		FeaturedStudents: []string{"Ana"},
	}
}

func reviewWithScore(score float64) *domain.ReviewResult {
	return &domain.ReviewResult{Score: score}
}

func TestController_RunPanel(t *testing.T) {
	cfg := Config{MaxAttempts: 3, MinScore: 7.0, ReviewEnabled: true}

	t.Run("初回で合格点なら1回で採用されるのだ", func(t *testing.T) {
		client := &mockGenClient{}
		reviewer := &mockReviewer{reviews: []*domain.ReviewResult{reviewWithScore(8.5)}}
		sink := &recordingSink{}

		c, err := New(client, reviewer, sink, cfg, "grade 4 physics")
		require.NoError(t, err)

		accepted, err := c.RunPanel(context.Background(), testRenderPrompt(), testPanel(), nil)
		require.NoError(t, err)

		assert.Equal(t, 1, client.calls)
		assert.Equal(t, 1, reviewer.calls)
		assert.Equal(t, 1, accepted.Attempts)
		assert.InDelta(t, 8.5, accepted.Score, 0.001)
		require.Len(t, sink.events, 1)
		assert.Equal(t, OutcomeAccepted, sink.events[0].Outcome)
	})

	t.Run("合格点に届かない場合は最大回数まで試行し最高スコアを採用するのだ", func(t *testing.T) {
		client := &mockGenClient{}
		reviewer := &mockReviewer{reviews: []*domain.ReviewResult{
			reviewWithScore(3.0),
			reviewWithScore(5.5),
			reviewWithScore(4.0),
		}}
		sink := &recordingSink{}

		c, err := New(client, reviewer, sink, cfg, "")
		require.NoError(t, err)

		accepted, err := c.RunPanel(context.Background(), testRenderPrompt(), testPanel(), nil)
		require.NoError(t, err)

		assert.Equal(t, 3, client.calls)
		assert.Equal(t, 3, accepted.Attempts)
		assert.InDelta(t, 5.5, accepted.Score, 0.001)
		// 2回目の試行結果が採用されているはずなのだ
		assert.Equal(t, "https://delivery.bfl.ai/sample_2.png", accepted.SourceURL)

		last := sink.events[len(sink.events)-1]
		assert.Equal(t, OutcomeExhausted, last.Outcome)
	})

	t.Run("同点の場合は早い試行が勝つのだ", func(t *testing.T) {
		client := &mockGenClient{}
		reviewer := &mockReviewer{reviews: []*domain.ReviewResult{
			reviewWithScore(5.0),
			reviewWithScore(5.0),
			reviewWithScore(5.0),
		}}

		c, err := New(client, reviewer, nil, cfg, "")
		require.NoError(t, err)

		accepted, err := c.RunPanel(context.Background(), testRenderPrompt(), testPanel(), nil)
		require.NoError(t, err)
		assert.Equal(t, "https://delivery.bfl.ai/sample_1.png", accepted.SourceURL)
	})

	t.Run("採点が無効なら閾値に関係なく1回で採用されるのだ", func(t *testing.T) {
		client := &mockGenClient{}
		reviewer := &mockReviewer{}

		c, err := New(client, reviewer, nil, Config{MaxAttempts: 3, MinScore: 9.9, ReviewEnabled: false}, "")
		require.NoError(t, err)

		accepted, err := c.RunPanel(context.Background(), testRenderPrompt(), testPanel(), nil)
		require.NoError(t, err)

		assert.Equal(t, 1, client.calls)
		assert.Equal(t, 0, reviewer.calls)
		assert.Equal(t, 1, accepted.Attempts)
	})

	t.Run("採点エラーはスコア0として次の試行へ進むのだ", func(t *testing.T) {
		client := &mockGenClient{}
		reviewer := &mockReviewer{
			errs:    []error{assert.AnError, nil},
			reviews: []*domain.ReviewResult{nil, reviewWithScore(8.0)},
		}

		c, err := New(client, reviewer, nil, cfg, "")
		require.NoError(t, err)

		accepted, err := c.RunPanel(context.Background(), testRenderPrompt(), testPanel(), nil)
		require.NoError(t, err)

		assert.Equal(t, 2, client.calls)
		assert.InDelta(t, 8.0, accepted.Score, 0.001)
	})

	t.Run("2回目の指示には綴り検証の修正句が追加されるのだ", func(t *testing.T) {
		client := &mockGenClient{}
		reviewer := &mockReviewer{reviews: []*domain.ReviewResult{
			{Score: 4, Issues: []string{"misspelled word in bubble"}, Dimensions: map[string]float64{"text_accuracy": 3}},
			reviewWithScore(9.0),
		}}

		c, err := New(client, reviewer, nil, cfg, "")
		require.NoError(t, err)

		_, err = c.RunPanel(context.Background(), testRenderPrompt(), testPanel(), nil)
		require.NoError(t, err)

		require.Len(t, client.prompts, 2)
		assert.Contains(t, client.prompts[1], "character by character")
	})
}

func TestController_GenerationFailure(t *testing.T) {
	cfg := Config{MaxAttempts: 3, MinScore: 7.0, ReviewEnabled: true}

	t.Run("初回の生成エラーはそのまま伝播するのだ", func(t *testing.T) {
		client := &mockGenClient{errs: []error{assert.AnError}}
		reviewer := &mockReviewer{}

		c, err := New(client, reviewer, nil, cfg, "")
		require.NoError(t, err)

		_, err = c.RunPanel(context.Background(), testRenderPrompt(), testPanel(), nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("採点済みの試行がある場合はその最良結果へ切り替えるのだ", func(t *testing.T) {
		client := &mockGenClient{errs: []error{nil, assert.AnError}}
		reviewer := &mockReviewer{reviews: []*domain.ReviewResult{reviewWithScore(5.0)}}
		sink := &recordingSink{}

		c, err := New(client, reviewer, sink, cfg, "")
		require.NoError(t, err)

		accepted, err := c.RunPanel(context.Background(), testRenderPrompt(), testPanel(), nil)
		require.NoError(t, err)

		assert.InDelta(t, 5.0, accepted.Score, 0.001)
		assert.Equal(t, "https://delivery.bfl.ai/sample_1.png", accepted.SourceURL)

		last := sink.events[len(sink.events)-1]
		assert.Equal(t, OutcomeFallback, last.Outcome)
	})
}

func TestNew_Validation(t *testing.T) {
	t.Run("生成クライアントが無いと初期化できないのだ", func(t *testing.T) {
		_, err := New(nil, &mockReviewer{}, nil, Config{MaxAttempts: 1}, "")
		assert.Error(t, err)
	})

	t.Run("採点が有効なのにレビュアーが無いと初期化できないのだ", func(t *testing.T) {
		_, err := New(&mockGenClient{}, nil, nil, Config{MaxAttempts: 1, ReviewEnabled: true}, "")
		assert.Error(t, err)
	})
}
