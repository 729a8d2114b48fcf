package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shouni/go-http-kit/httpkit"

	"github.com/shouni/go-educomic-kit/pkg/domain"
)

// 名簿の読み取りキャッシュの既定の有効期間です。
const DefaultCacheTTL = 5 * time.Minute

// SupabaseConfig は Supabase 接続に必要な設定群です。
type SupabaseConfig struct {
	// URL はプロジェクトのベースURLです (例: https://xyz.supabase.co)。
	URL string
	// ServiceKey は service_role キーです。RLSを越えてバックエンドから書き込むのだ。
	ServiceKey string
	// Bucket はパネル画像を保存するストレージバケット名です。
	Bucket string
	// CacheTTL は教室と名簿の読み取りキャッシュの有効期間です。
	CacheTTL time.Duration
}

// SupabaseClient は ClassroomStore / ChapterStore / PanelStore / BlobStore の
// Supabase REST 実装です。
type SupabaseClient struct {
	cfg        SupabaseConfig
	httpClient httpkit.HTTPClient
	cache      Cacher
}

// NewSupabaseClient は設定を検証して SupabaseClient を初期化します。
// cache に nil を渡すとキャッシュなしで動作します。
func NewSupabaseClient(cfg SupabaseConfig, httpClient httpkit.HTTPClient, cache Cacher) (*SupabaseClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("storage: SupabaseのURLは必須です")
	}
	if cfg.ServiceKey == "" {
		return nil, fmt.Errorf("storage: Supabaseのサービスキーは必須です")
	}
	if httpClient == nil {
		return nil, fmt.Errorf("storage: HTTPクライアントは必須です")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "panels"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	return &SupabaseClient{
		cfg:        cfg,
		httpClient: httpClient,
		cache:      cache,
	}, nil
}

// GetClassroom は教室レコードを1件取得します。結果はTTL付きでキャッシュされます。
func (s *SupabaseClient) GetClassroom(ctx context.Context, id string) (domain.Classroom, error) {
	cacheKey := "classroom:" + id
	if s.cache != nil {
		if v, ok := s.cache.Get(cacheKey); ok {
			if classroom, ok := v.(domain.Classroom); ok {
				return classroom, nil
			}
		}
	}

	var rows []domain.Classroom
	if err := s.selectRows(ctx, "classrooms", "id=eq."+url.QueryEscape(id), &rows); err != nil {
		return domain.Classroom{}, err
	}
	if len(rows) == 0 {
		return domain.Classroom{}, fmt.Errorf("storage: 教室 %s が見つかりません", id)
	}

	if s.cache != nil {
		s.cache.Set(cacheKey, rows[0], s.cfg.CacheTTL)
	}
	return rows[0], nil
}

// GetStudents は教室に所属する生徒の一覧を名前順で取得します。
func (s *SupabaseClient) GetStudents(ctx context.Context, classroomID string) ([]domain.Student, error) {
	cacheKey := "students:" + classroomID
	if s.cache != nil {
		if v, ok := s.cache.Get(cacheKey); ok {
			if students, ok := v.([]domain.Student); ok {
				return students, nil
			}
		}
	}

	var rows []domain.Student
	query := "classroom_id=eq." + url.QueryEscape(classroomID) + "&order=name"
	if err := s.selectRows(ctx, "students", query, &rows); err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(cacheKey, rows, s.cfg.CacheTTL)
	}
	return rows, nil
}

// GetChapter はチャプターレコードを1件取得します。状態は都度読み直すためキャッシュしません。
func (s *SupabaseClient) GetChapter(ctx context.Context, id string) (domain.Chapter, error) {
	var rows []domain.Chapter
	if err := s.selectRows(ctx, "chapters", "id=eq."+url.QueryEscape(id), &rows); err != nil {
		return domain.Chapter{}, err
	}
	if len(rows) == 0 {
		return domain.Chapter{}, fmt.Errorf("storage: チャプター %s が見つかりません", id)
	}
	return rows[0], nil
}

// UpdateStatus はチャプターのステータス列のみを更新します。
func (s *SupabaseClient) UpdateStatus(ctx context.Context, id string, status string) error {
	return s.patchRow(ctx, "chapters", id, map[string]any{"status": status})
}

// UpdateState は進行状態JSONとステータスをまとめて保存します。
func (s *SupabaseClient) UpdateState(ctx context.Context, id string, state *domain.ChapterState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("storage: チャプター状態のJSON化に失敗しました: %w", err)
	}
	return s.patchRow(ctx, "chapters", id, map[string]any{
		"chapter_outline": string(stateJSON),
		"status":          state.Status,
	})
}

// CreatePanel はパネルレコードを1件追加します。
func (s *SupabaseClient) CreatePanel(ctx context.Context, chapterID string, index int, imageURL string) error {
	body, err := json.Marshal(map[string]any{
		"chapter_id":  chapterID,
		"panel_index": index,
		"image_url":   imageURL,
	})
	if err != nil {
		return fmt.Errorf("storage: パネルレコードのJSON化に失敗しました: %w", err)
	}

	req, err := s.newRequest(ctx, http.MethodPost, s.restURL("panels", ""), bytes.NewReader(body), "application/json")
	if err != nil {
		return err
	}
	req.Header.Set("Prefer", "return=minimal")

	if _, err := s.httpClient.DoRequest(req); err != nil {
		return fmt.Errorf("storage: パネル%dの保存に失敗しました: %w", index, err)
	}
	return nil
}

// ClearPanels はチャプターの既存パネルを全削除します。再生成の前提条件なのだ。
func (s *SupabaseClient) ClearPanels(ctx context.Context, chapterID string) error {
	target := s.restURL("panels", "chapter_id=eq."+url.QueryEscape(chapterID))
	req, err := s.newRequest(ctx, http.MethodDelete, target, nil, "")
	if err != nil {
		return err
	}
	if _, err := s.httpClient.DoRequest(req); err != nil {
		return fmt.Errorf("storage: チャプター %s のパネル削除に失敗しました: %w", chapterID, err)
	}
	return nil
}

// Upload は画像バイト列をストレージへ上書き保存し、公開URLを返します。
func (s *SupabaseClient) Upload(ctx context.Context, data []byte, path string, contentType string) (string, error) {
	target := fmt.Sprintf("%s/storage/v1/object/%s/%s", strings.TrimRight(s.cfg.URL, "/"), s.cfg.Bucket, path)

	req, err := s.newRequest(ctx, http.MethodPost, target, bytes.NewReader(data), contentType)
	if err != nil {
		return "", err
	}
	req.Header.Set("x-upsert", "true")

	if _, err := s.httpClient.DoRequest(req); err != nil {
		return "", fmt.Errorf("storage: %s のアップロードに失敗しました: %w", path, err)
	}

	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", strings.TrimRight(s.cfg.URL, "/"), s.cfg.Bucket, path), nil
}

// PanelBlobPath はパネル画像の保存パスの規約です (2桁ゼロ詰めの通し番号)。
func PanelBlobPath(chapterID string, index int) string {
	return fmt.Sprintf("chapters/%s/panel_%02d.png", chapterID, index)
}

func (s *SupabaseClient) selectRows(ctx context.Context, table, query string, out any) error {
	target := s.restURL(table, query+"&select=*")
	req, err := s.newRequest(ctx, http.MethodGet, target, nil, "")
	if err != nil {
		return err
	}

	body, err := s.httpClient.DoRequest(req)
	if err != nil {
		return fmt.Errorf("storage: %s の取得に失敗しました: %w", table, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("storage: %s の応答JSONの解析に失敗しました: %w", table, err)
	}
	return nil
}

func (s *SupabaseClient) patchRow(ctx context.Context, table, id string, fields map[string]any) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("storage: 更新内容のJSON化に失敗しました: %w", err)
	}

	target := s.restURL(table, "id=eq."+url.QueryEscape(id))
	req, err := s.newRequest(ctx, http.MethodPatch, target, bytes.NewReader(body), "application/json")
	if err != nil {
		return err
	}
	req.Header.Set("Prefer", "return=minimal")

	if _, err := s.httpClient.DoRequest(req); err != nil {
		return fmt.Errorf("storage: %s (id=%s) の更新に失敗しました: %w", table, id, err)
	}
	return nil
}

func (s *SupabaseClient) restURL(table, query string) string {
	base := fmt.Sprintf("%s/rest/v1/%s", strings.TrimRight(s.cfg.URL, "/"), table)
	if query == "" {
		return base
	}
	return base + "?" + query
}

func (s *SupabaseClient) newRequest(ctx context.Context, method, target string, body *bytes.Reader, contentType string) (*http.Request, error) {
	var req *http.Request
	var err error
	if body == nil {
		req, err = http.NewRequestWithContext(ctx, method, target, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, target, body)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: リクエストの生成に失敗しました: %w", err)
	}

	req.Header.Set("apikey", s.cfg.ServiceKey)
	req.Header.Set("Authorization", "Bearer "+s.cfg.ServiceKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}
