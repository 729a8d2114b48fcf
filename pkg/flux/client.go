// Package flux は、非同期の投稿/ポーリング型プロトコルを持つ
// 画像生成サービス（Black Forest Labs 互換 API）へのクライアントです。
package flux

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// サービスが返すステータス値です。Ready / Error / Failed のみを終端として扱い、
// それ以外（Pending やモデレーション保留など）はポーリング継続と解釈します。
const (
	StatusReady  = "Ready"
	StatusError  = "Error"
	StatusFailed = "Failed"
)

// MaxReferenceImages は1リクエストに添付できる参照画像の上限です。
// 超過分は黙って切り捨てられます（エラーにはしない）。
const MaxReferenceImages = 8

var (
	// ErrMissingPollingURL は投稿応答にポーリングURLが無い場合のエラーです。
	// プロトコル/設定の問題であり、リトライしても回復しません。
	ErrMissingPollingURL = errors.New("flux: 投稿応答に polling_url が含まれていません")

	// ErrGenerationFailed はサービス側が Error / Failed を報告した場合のエラーです。
	ErrGenerationFailed = errors.New("flux: 画像生成がサービス側で失敗しました")

	// ErrPollTimeout は制限時間内に終端ステータスへ到達しなかった場合のエラーです。
	// サービス報告のエラー（ErrGenerationFailed）とは区別され、呼び出し側が
	// 再試行の判断に使えるようにしています。
	ErrPollTimeout = errors.New("flux: ポーリングが制限時間内に完了しませんでした")
)

// Downloader は結果画像のバイト列取得に使う最小限のHTTPクライアント契約です。
// go-http-kit の ClientInterface がそのまま適合します。
type Downloader interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// Config は Client の生成に必要な設定です。
type Config struct {
	APIKey       string
	BaseURL      string        // 例: https://api.bfl.ai
	Endpoint     string        // 例: flux-pro-1.1
	PollInterval time.Duration // 既定 750ms
	PollTimeout  time.Duration // 既定 90s
}

// Client は画像生成ジョブの投稿からポーリング、ダウンロードまでを担います。
type Client struct {
	cfg        Config
	httpClient *http.Client
	downloader Downloader
}

// New は依存関係を注入して Client を初期化します。
// APIキーの欠如は作業開始前に検出すべき設定エラーとして扱うのだ。
func New(cfg Config, httpClient *http.Client, downloader Downloader) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("flux: APIキーが設定されていません")
	}
	if httpClient == nil {
		return nil, fmt.Errorf("flux: httpClient は必須です")
	}
	if downloader == nil {
		return nil, fmt.Errorf("flux: downloader は必須です")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.bfl.ai"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "flux-pro-1.1"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 750 * time.Millisecond
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 90 * time.Second
	}
	return &Client{cfg: cfg, httpClient: httpClient, downloader: downloader}, nil
}

// Request は1回の画像生成ジョブの内容です。
type Request struct {
	Prompt     string
	Width      int
	Height     int
	References []string // 先頭は前パネル画像（あれば）、以降はキャラクターの参照画像
}

// Result は生成結果です。SourceURL はサービスが配信する短命のURLなので、
// 永続化には Data を使う必要があります。
type Result struct {
	Data      []byte
	SourceURL string
}

type submitResponse struct {
	ID         string `json:"id"`
	PollingURL string `json:"polling_url"`
}

type pollResponse struct {
	Status string          `json:"status"`
	Result pollResult      `json:"result"`
	Error  json.RawMessage `json:"error"`
}

type pollResult struct {
	Sample string `json:"sample"`
}

// SubmitAndWait はジョブを投稿し、終端ステータスに達するまでポーリングした後、
// 結果画像のバイト列と配信URLを返します。
func (c *Client) SubmitAndWait(ctx context.Context, req Request) (*Result, error) {
	pollingURL, err := c.submit(ctx, req)
	if err != nil {
		return nil, err
	}

	sampleURL, err := c.waitForResult(ctx, pollingURL)
	if err != nil {
		return nil, err
	}

	data, err := c.downloader.FetchBytes(ctx, sampleURL)
	if err != nil {
		return nil, fmt.Errorf("flux: 結果画像のダウンロードに失敗しました: %w", err)
	}

	return &Result{Data: data, SourceURL: sampleURL}, nil
}

// submit はジョブを投稿してポーリングURLを取り出します。
func (c *Client) submit(ctx context.Context, req Request) (string, error) {
	body := map[string]any{
		"prompt":           req.Prompt,
		"width":            req.Width,
		"height":           req.Height,
		"output_format":    "png",
		"safety_tolerance": 2,
	}

	// 参照画像は input_image, input_image_2 .. input_image_8 の位置キーで渡す。
	// 8枚を超えた分は切り捨てるのだ。
	refs := req.References
	if len(refs) > MaxReferenceImages {
		slog.Warn("参照画像が上限を超えたため切り捨てます", "given", len(refs), "max", MaxReferenceImages)
		refs = refs[:MaxReferenceImages]
	}
	for i, ref := range refs {
		key := "input_image"
		if i > 0 {
			key = fmt.Sprintf("input_image_%d", i+1)
		}
		body[key] = ref
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("flux: リクエストのエンコードに失敗しました: %w", err)
	}

	submitURL := fmt.Sprintf("%s/v1/%s", c.cfg.BaseURL, c.cfg.Endpoint)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, submitURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("flux: リクエストの作成に失敗しました: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("x-key", c.cfg.APIKey)

	var submitResp submitResponse
	if err := c.doJSON(httpReq, &submitResp); err != nil {
		return "", fmt.Errorf("flux: ジョブの投稿に失敗しました: %w", err)
	}

	if submitResp.PollingURL == "" {
		return "", fmt.Errorf("%w (job id: %q)", ErrMissingPollingURL, submitResp.ID)
	}
	return submitResp.PollingURL, nil
}

// waitForResult は固定間隔でポーリングし、結果画像のURLを返します。
// タイムアウトは呼び出し側の context とは独立に、このループ自身が管理します。
func (c *Client) waitForResult(ctx context.Context, pollingURL string) (string, error) {
	deadline := time.Now().Add(c.cfg.PollTimeout)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w (limit: %s)", ErrPollTimeout, c.cfg.PollTimeout)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		status, err := c.poll(ctx, pollingURL)
		if err != nil {
			return "", err
		}

		switch status.Status {
		case StatusReady:
			if status.Result.Sample == "" {
				return "", fmt.Errorf("flux: Ready応答に結果画像URLが含まれていません")
			}
			return status.Result.Sample, nil
		case StatusError, StatusFailed:
			return "", fmt.Errorf("%w: %s", ErrGenerationFailed, describeServiceError(status.Error))
		default:
			// Pending やモデレーション保留はそのまま次のポーリングへ
		}
	}
}

func (c *Client) poll(ctx context.Context, pollingURL string) (*pollResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, pollingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("flux: ポーリングリクエストの作成に失敗しました: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("x-key", c.cfg.APIKey)

	var resp pollResponse
	if err := c.doJSON(httpReq, &resp); err != nil {
		return nil, fmt.Errorf("flux: ポーリングに失敗しました: %w", err)
	}
	return &resp, nil
}

// doJSON はリクエストを実行し、2xx 応答のボディを out にデコードします。
func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの実行に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("APIがステータス %d を返しました: %s", resp.StatusCode, string(body))
	}
	if readErr != nil {
		return fmt.Errorf("応答ボディの読み取りに失敗しました: %w", readErr)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("応答JSONのデコードに失敗しました: %w", err)
	}
	return nil
}

// describeServiceError はサービスが返したエラーペイロードを表示用に整形します。
func describeServiceError(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "(詳細なし)"
	}
	return string(raw)
}
