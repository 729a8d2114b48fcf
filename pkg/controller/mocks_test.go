package controller

import (
	"context"
	"fmt"

	"github.com/shouni/go-educomic-kit/pkg/domain"
	"github.com/shouni/go-educomic-kit/pkg/flux"
)

// mockGenClient は GenerationClient のテスト用実装です。
// 呼び出しごとに scripted の結果を順番に返します。
type mockGenClient struct {
	results []*flux.Result
	errs    []error
	calls   int
	prompts []string
}

func (m *mockGenClient) SubmitAndWait(ctx context.Context, req flux.Request) (*flux.Result, error) {
	i := m.calls
	m.calls++
	m.prompts = append(m.prompts, req.Prompt)
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.results) && m.results[i] != nil {
		return m.results[i], nil
	}
	return &flux.Result{
		Data:      []byte("png"),
		SourceURL: fmt.Sprintf("https://delivery.bfl.ai/sample_%d.png", i+1),
	}, nil
}

// mockReviewer は review.Reviewer のテスト用実装です。
type mockReviewer struct {
	reviews []*domain.ReviewResult
	errs    []error
	calls   int
}

func (m *mockReviewer) Review(ctx context.Context, imageURL string, panel domain.Panel, classroomContext string) (*domain.ReviewResult, error) {
	i := m.calls
	m.calls++
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.reviews) {
		return m.reviews[i], nil
	}
	return &domain.ReviewResult{Score: 0}, nil
}

// recordingSink は発行された進捗イベントを記録します。
type recordingSink struct {
	events []Event
}

func (s *recordingSink) Publish(event Event) {
	s.events = append(s.events, event)
}
