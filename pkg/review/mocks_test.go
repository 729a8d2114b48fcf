package review

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"

	"github.com/shouni/go-gemini-client/gemini"
	"google.golang.org/genai"
)

// mockAIClient は gemini.GenerativeModel のテスト用実装です。
type mockAIClient struct {
	responseText string
	generateErr  error
	lastModel    string
	lastParts    []*genai.Part
}

func (m *mockAIClient) GenerateContent(ctx context.Context, model string, prompt string) (*gemini.Response, error) {
	return nil, nil
}

func (m *mockAIClient) GenerateWithParts(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error) {
	m.lastModel = model
	m.lastParts = parts
	if m.generateErr != nil {
		return nil, m.generateErr
	}
	return &gemini.Response{Text: m.responseText}, nil
}

func (m *mockAIClient) IsVertexAI() bool {
	return false
}

func (m *mockAIClient) UploadFile(ctx context.Context, r io.Reader, mimeType, displayName string) (string, string, error) {
	return "https://gemini.api/files/mock-file", "files/mock-file", nil
}

func (m *mockAIClient) DeleteFile(ctx context.Context, name string) error {
	return nil
}

func (m *mockAIClient) GetFile(ctx context.Context, name string) (*genai.File, error) {
	return nil, nil
}

// mockDownloader は Downloader のテスト用実装です。
type mockDownloader struct {
	data    []byte
	err     error
	lastURL string
}

func (m *mockDownloader) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	m.lastURL = url
	if m.err != nil {
		return nil, m.err
	}
	return m.data, nil
}

// fakePNG はデコード可能な小さなPNG画像を生成します。圧縮処理を通すために必要なのだ。
func fakePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("テスト用PNGの生成に失敗: %v", err)
	}
	return buf.Bytes()
}
