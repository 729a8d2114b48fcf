package prompts

import (
	"fmt"
	"strings"

	"github.com/shouni/go-educomic-kit/pkg/domain"
)

// 観点別サブスコアのキーと、弱点に対応する矯正指示です。
const (
	DimensionTextAccuracy      = "text_accuracy"
	DimensionCharacterAccuracy = "character_accuracy"

	// lowDimensionScore を下回ったサブスコアは弱点とみなし、矯正節を追加します。
	lowDimensionScore = 5.0

	textAccuracyClause      = "Verify the spelling of every text element character by character; the rendered words must match the script exactly."
	characterAccuracyClause = "All featured characters must be visible, complete, and clearly distinct from one another."

	secondAttemptPrefix = "Be more careful with every detail this time."
	finalAttemptPrefix  = "FINAL ATTEMPT: render with maximum precision, no mistakes allowed."
)

// Refine は、前回の採点結果を踏まえて次の試行用プロンプトを組み立てます。
// 採点結果に手がかり（指摘もサブスコアも修正案もない）が無い場合は、元のプロンプトを
// そのまま返して再試行します。
func Refine(base string, nextAttempt int, review *domain.ReviewResult) string {
	if review == nil {
		return base
	}
	corrections := correctiveClauses(review)
	if len(review.Issues) == 0 && review.SuggestedFix == "" && len(corrections) == 0 {
		return base
	}

	var sb strings.Builder

	// 試行を重ねるごとに切迫度を上げる前置きを付けるのだ
	switch {
	case nextAttempt >= 3:
		sb.WriteString(finalAttemptPrefix)
		sb.WriteString(" ")
	case nextAttempt == 2:
		sb.WriteString(secondAttemptPrefix)
		sb.WriteString(" ")
	}

	sb.WriteString(base)

	if review.SuggestedFix != "" {
		sb.WriteString("\n\n### FIX FROM REVIEW ###\n")
		sb.WriteString(review.SuggestedFix)
	}

	if len(corrections) > 0 {
		sb.WriteString("\n\n### CORRECTIONS ###\n")
		for _, clause := range corrections {
			sb.WriteString(fmt.Sprintf("- %s\n", clause))
		}
	}

	return sb.String()
}

// correctiveClauses は弱かったサブスコアに対応する矯正指示を返します。
// 走査順を固定するため、既知の観点をこの順で確認します。
func correctiveClauses(review *domain.ReviewResult) []string {
	var clauses []string
	if isLow(review, DimensionTextAccuracy) {
		clauses = append(clauses, textAccuracyClause)
	}
	if isLow(review, DimensionCharacterAccuracy) {
		clauses = append(clauses, characterAccuracyClause)
	}
	return clauses
}

func isLow(review *domain.ReviewResult, dimension string) bool {
	score, ok := review.Dimensions[dimension]
	return ok && score < lowDimensionScore
}
