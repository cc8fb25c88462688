// internal/game/answer.go

package game

import (
	"math"
	"sort"
	"strings"

	"github.com/JosueRDx/DotsGo-backend/internal/models"
)

const (
	// MinScore is the floor awarded to any correct answer, and the flat
	// award for correct auto-submitted answers.
	MinScore = 10
	// MaxScore is the award for an instant correct answer.
	MaxScore = 100
)

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalizeCode strips surrounding space and leading zeros so "0033" and
// "33" compare equal.
func normalizeCode(s string) string {
	s = normalizeText(s)
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" && s != "" {
		return "0"
	}
	return trimmed
}

// sameColorSet compares two color lists as case-insensitive multisets;
// order never matters.
func sameColorSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	an := make([]string, len(a))
	bn := make([]string, len(b))
	for i, c := range a {
		an[i] = normalizeText(c)
	}
	for i, c := range b {
		bn[i] = normalizeText(c)
	}
	sort.Strings(an)
	sort.Strings(bn)
	for i := range an {
		if an[i] != bn[i] {
			return false
		}
	}
	return true
}

// Correct checks a given answer against the question. Empty answers are
// always wrong without any comparison.
func Correct(ans models.GivenAnswer, q *models.Question) bool {
	if ans.IsEmpty() {
		return false
	}
	if normalizeText(ans.Pictogram) != normalizeText(q.Pictogram) {
		return false
	}
	if normalizeCode(ans.Code) != normalizeCode(q.Code) {
		return false
	}
	return sameColorSet(ans.Colors, q.Colors)
}

// Score computes the points for a correct answer. Normal submissions decay
// linearly with elapsed time, floored at MinScore; auto-submitted answers
// (client-side timeout flushes) always earn exactly MinScore.
func Score(responseTime float64, timeLimit int, autoSubmitted bool) int {
	if autoSubmitted {
		return MinScore
	}
	if timeLimit <= 0 {
		return MinScore
	}
	remaining := (float64(timeLimit) - responseTime) / float64(timeLimit)
	if remaining < 0 {
		remaining = 0
	}
	if remaining > 1 {
		remaining = 1
	}
	points := int(math.Floor(float64(MaxScore) * remaining))
	if points < MinScore {
		return MinScore
	}
	return points
}

// ClampResponseTime bounds the response time recorded in player aggregates.
// Auto-submissions report the full limit at most; every submission is
// non-negative.
func ClampResponseTime(responseTime float64, timeLimit int, autoSubmitted bool) float64 {
	if responseTime < 0 {
		return 0
	}
	if autoSubmitted && responseTime > float64(timeLimit) {
		return float64(timeLimit)
	}
	return responseTime
}
