package domain

// ReviewResult は、レンダリング済み画像を意図した内容と突き合わせた採点結果です。
// Score は [0, 10] の範囲、Dimensions は text_accuracy 等の観点別サブスコアを保持します。
type ReviewResult struct {
	Score        float64            `json:"score"`
	Issues       []string           `json:"issues"`
	Dimensions   map[string]float64 `json:"dimensions"`
	SuggestedFix string             `json:"suggested_fix_prompt"`
}

// Attempt は1パネルに対する生成+採点の1サイクルの記録です。
// Review はレビューサービスが失敗した場合 nil になります（スコア0相当として扱う）。
type Attempt struct {
	PanelIndex int
	Number     int
	Prompt     string
	ImageData  []byte
	ImageURL   string
	Review     *ReviewResult
}

// Score はこの試行の実効スコアを返します。レビューが無い場合は 0 です。
func (a Attempt) Score() float64 {
	if a.Review == nil {
		return 0
	}
	return a.Review.Score
}

// AcceptedPanel は採用が確定したパネルの最終成果物です。
// 閾値到達で採用されるか、試行回数を使い切った際に最良の試行が昇格して生成されます。
// 次のパネルの参照画像（previous_panel_image）として継続性管理に引き渡され、以後は不変です。
type AcceptedPanel struct {
	Index     int
	ImageData []byte
	ImageURL  string
	SourceURL string
	Score     float64
	Attempts  int
}
