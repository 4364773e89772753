package domain

import (
	"sort"
	"strings"
)

// Time bonus tiers: fraction of the question's time limit still remaining
// when a correct answer lands. Boundaries are inclusive.
const (
	bonusHighRatio = 0.70
	bonusMidRatio  = 0.50
	bonusLowRatio  = 0.30
)

// Score decides correctness and the awarded points for one submission.
// It is pure: identical inputs always produce identical outputs.
//
// Awarded includes the time bonus; an incorrect or timed-out submission
// awards nothing. Elapsed time beyond the question's limit is a timeout
// regardless of answer content.
func Score(q Question, answer SubmittedAnswer, elapsedSeconds float64) (correct bool, awarded, timeBonus int) {
	if elapsedSeconds < 0 {
		return false, 0, 0
	}
	if q.TimeLimitSeconds > 0 && elapsedSeconds > float64(q.TimeLimitSeconds) {
		return false, 0, 0
	}
	if !compareAnswer(q, answer) {
		return false, 0, 0
	}

	points := q.Points
	if points == 0 {
		points = 1
	}
	bonus := bonusFor(q.TimeLimitSeconds, elapsedSeconds)
	return true, points + bonus, bonus
}

// compareAnswer dispatches the correctness policy on the question kind.
func compareAnswer(q Question, answer SubmittedAnswer) bool {
	switch q.Kind {
	case KindMultiChoice:
		return sameOptionSet(answer.OptionIDs, correctOptionIDs(q))
	case KindShortAnswer:
		return normalizeText(answer.Text) != "" && normalizeText(answer.Text) == normalizeText(q.Answer)
	default:
		// Single choice and true/false: exactly one selected option, and it
		// must be the correct one.
		correctIDs := correctOptionIDs(q)
		return len(answer.OptionIDs) == 1 && len(correctIDs) == 1 && answer.OptionIDs[0] == correctIDs[0]
	}
}

func bonusFor(limitSeconds int, elapsedSeconds float64) int {
	if limitSeconds <= 0 {
		return 0
	}
	remaining := (float64(limitSeconds) - elapsedSeconds) / float64(limitSeconds)
	switch {
	case remaining >= bonusHighRatio:
		return 3
	case remaining >= bonusMidRatio:
		return 2
	case remaining >= bonusLowRatio:
		return 1
	default:
		return 0
	}
}

func correctOptionIDs(q Question) []string {
	ids := make([]string, 0, 1)
	for _, opt := range q.Options {
		if opt.Correct {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

func sameOptionSet(submitted, correct []string) bool {
	if len(submitted) == 0 || len(submitted) != len(correct) {
		return false
	}
	a := append([]string(nil), submitted...)
	b := append([]string(nil), correct...)
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// normalizeText lowercases and collapses whitespace for free-text comparison.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
