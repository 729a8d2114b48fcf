// Package continuity は、パネル間のキャラクター一貫性を保つための
// 参照画像セットの構築を担当します。直前パネルの確定画像と、
// 言及された生徒のアバターURLをFLUXの参照枠に詰めるのだ。
package continuity

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/shouni/go-educomic-kit/pkg/domain"
	"github.com/shouni/go-educomic-kit/pkg/flux"
)

// Downloader は アバター画像の到達確認に使う最小限の契約です。
type Downloader interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// Tracker はチャプター1本分の参照画像の状態を保持します。
// パイプラインはパネルを直列に処理するため、このトラッカーに
// 並行アクセスされることはありません。
type Tracker struct {
	roster       domain.Roster
	prevPanelURL string
}

// NewTracker はクラスの名簿から参照画像トラッカーを初期化します。
func NewTracker(roster domain.Roster) *Tracker {
	return &Tracker{roster: roster}
}

// References はこのパネルに渡す参照画像URLの一覧を組み立てます。
// 直前パネルの画像を先頭に、言及されたキャラクターのアバターを
// 登場順で続け、重複を除いた上で上限枚数に切り詰めます。
func (t *Tracker) References(panel domain.Panel) []string {
	refs := make([]string, 0, flux.MaxReferenceImages)
	seen := make(map[string]struct{})

	add := func(url string) {
		if url == "" {
			return
		}
		if _, ok := seen[url]; ok {
			return
		}
		seen[url] = struct{}{}
		refs = append(refs, url)
	}

	add(t.prevPanelURL)

	for _, name := range panel.MentionedNames() {
		student, ok := t.roster.Find(name)
		if !ok {
			continue
		}
		add(student.AvatarURL)
	}

	if len(refs) > flux.MaxReferenceImages {
		refs = refs[:flux.MaxReferenceImages]
	}
	return refs
}

// Advance は確定したパネルを記録し、次のパネルの参照セットの
// 先頭に使われるようにします。
func (t *Tracker) Advance(accepted domain.AcceptedPanel) {
	url := accepted.ImageURL
	if url == "" {
		url = accepted.SourceURL
	}
	t.prevPanelURL = url
}

// WarmupAvatars は名簿にあるアバターURLの到達性を並行して確認します。
// 失敗しても警告ログに留め、チャプター生成は続行します。
func WarmupAvatars(ctx context.Context, downloader Downloader, students []domain.Student) {
	g, gctx := errgroup.WithContext(ctx)

	for _, s := range students {
		if strings.TrimSpace(s.AvatarURL) == "" {
			continue
		}
		student := s
		g.Go(func() error {
			if _, err := downloader.FetchBytes(gctx, student.AvatarURL); err != nil {
				slog.Warn("アバター画像に到達できません", "student", student.Name, "url", student.AvatarURL, "error", err)
			}
			return nil
		})
	}

	// エラーは常にnilを返すので待ち合わせのみなのだ
	_ = g.Wait()
}
