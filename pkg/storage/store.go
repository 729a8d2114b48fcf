// Package storage は、チャプター生成パイプラインが依存する永続化の契約と、
// その Supabase (PostgREST + Storage) 実装を提供します。
package storage

import (
	"context"
	"time"

	"github.com/shouni/go-educomic-kit/pkg/domain"
)

// ClassroomStore は教室と生徒の読み取り専用アクセスです。
type ClassroomStore interface {
	GetClassroom(ctx context.Context, id string) (domain.Classroom, error)
	GetStudents(ctx context.Context, classroomID string) ([]domain.Student, error)
}

// ChapterStore はチャプターレコードの読み書きアクセスです。
type ChapterStore interface {
	GetChapter(ctx context.Context, id string) (domain.Chapter, error)
	UpdateStatus(ctx context.Context, id string, status string) error
	UpdateState(ctx context.Context, id string, state *domain.ChapterState) error
}

// PanelStore はパネルレコードの作成と一括削除を行います。
// 再生成の前提として、既存パネルの削除が明示的に要求されます。
type PanelStore interface {
	CreatePanel(ctx context.Context, chapterID string, index int, imageURL string) error
	ClearPanels(ctx context.Context, chapterID string) error
}

// BlobStore は画像バイト列を永続化し、公開URLを返します。
type BlobStore interface {
	Upload(ctx context.Context, data []byte, path string, contentType string) (string, error)
}

// Cacher はキャッシュ機構の差し替えを可能にする契約です。
// patrickmn/go-cache の *cache.Cache がそのまま適合します。
type Cacher interface {
	Get(key string) (any, bool)
	Set(key string, value any, d time.Duration)
}
