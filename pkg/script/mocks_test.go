package script

import (
	"context"
	"io"

	"github.com/shouni/go-gemini-client/gemini"
	"google.golang.org/genai"
)

// mockAIClient は gemini.GenerativeModel のテスト用実装です。
type mockAIClient struct {
	responseText string
	generateErr  error
	lastPrompt   string
}

func (m *mockAIClient) GenerateContent(ctx context.Context, model string, prompt string) (*gemini.Response, error) {
	m.lastPrompt = prompt
	if m.generateErr != nil {
		return nil, m.generateErr
	}
	return &gemini.Response{Text: m.responseText}, nil
}

func (m *mockAIClient) GenerateWithParts(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error) {
	return nil, nil
}

func (m *mockAIClient) IsVertexAI() bool {
	return false
}

func (m *mockAIClient) UploadFile(ctx context.Context, r io.Reader, mimeType, displayName string) (string, string, error) {
	return "", "", nil
}

func (m *mockAIClient) DeleteFile(ctx context.Context, name string) error {
	return nil
}

func (m *mockAIClient) GetFile(ctx context.Context, name string) (*genai.File, error) {
	return nil, nil
}
