package domain

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestApplyAnswerActivatesAndAccumulates(t *testing.T) {
	p := NewParticipant("u1", 3, t0)

	if err := p.ApplyAnswer("q1", true, 4, t0); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if p.Status != ParticipantActive {
		t.Fatalf("expected active after first answer, got %s", p.Status)
	}
	if p.Score != 4 || p.CorrectCount != 1 || p.AnsweredCount != 1 {
		t.Fatalf("unexpected progress: %+v", p)
	}

	if err := p.ApplyAnswer("q2", false, 0, t0); err != nil {
		t.Fatalf("apply wrong: %v", err)
	}
	if p.Score != 4 || p.CorrectCount != 1 {
		t.Fatal("wrong answer must not change score or correct count")
	}
}

func TestApplyAnswerRejectsDuplicateQuestion(t *testing.T) {
	p := NewParticipant("u1", 3, t0)
	_ = p.ApplyAnswer("q1", true, 1, t0)
	if err := p.ApplyAnswer("q1", true, 1, t0); !errors.Is(err, ErrAlreadyAnswered) {
		t.Fatalf("expected ErrAlreadyAnswered, got %v", err)
	}
}

func TestAnsweringLastQuestionCompletes(t *testing.T) {
	p := NewParticipant("u1", 2, t0)
	_ = p.ApplyAnswer("q1", true, 1, t0)
	if err := p.ApplyAnswer("q2", true, 1, t0.Add(time.Second)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if p.Status != ParticipantCompleted {
		t.Fatalf("expected completed, got %s", p.Status)
	}
	if p.CompletedAt == nil || !p.CompletedAt.Equal(t0.Add(time.Second)) {
		t.Fatalf("expected completion stamp, got %v", p.CompletedAt)
	}
}

func TestTerminalParticipantIsFrozen(t *testing.T) {
	p := NewParticipant("u1", 5, t0)
	_ = p.ApplyAnswer("q1", true, 3, t0)
	if err := p.Complete(t0); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := p.ApplyAnswer("q2", true, 3, t0); !errors.Is(err, ErrInvalidParticipantState) {
		t.Fatalf("expected ErrInvalidParticipantState, got %v", err)
	}
	if err := p.Complete(t0); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
	if err := p.Forfeit(t0); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted on forfeit, got %v", err)
	}
	if p.Score != 3 {
		t.Fatal("score must stay frozen after completion")
	}
}

func TestTimeoutStreakForfeits(t *testing.T) {
	p := NewParticipant("u1", 5, t0)

	if _, err := p.ApplyTimeout("q1", 3, t0); err != nil {
		t.Fatalf("timeout: %v", err)
	}
	if _, err := p.ApplyTimeout("q2", 3, t0); err != nil {
		t.Fatalf("timeout: %v", err)
	}
	forfeited, err := p.ApplyTimeout("q3", 3, t0)
	if err != nil {
		t.Fatalf("timeout: %v", err)
	}
	if !forfeited || p.Status != ParticipantForfeited {
		t.Fatalf("expected forfeit after third consecutive timeout, got %s", p.Status)
	}
}

func TestAnswerResetsTimeoutStreak(t *testing.T) {
	p := NewParticipant("u1", 5, t0)
	_, _ = p.ApplyTimeout("q1", 3, t0)
	_, _ = p.ApplyTimeout("q2", 3, t0)
	_ = p.ApplyAnswer("q3", false, 0, t0)
	forfeited, err := p.ApplyTimeout("q4", 3, t0)
	if err != nil {
		t.Fatalf("timeout: %v", err)
	}
	if forfeited {
		t.Fatal("streak should have reset after an answered question")
	}
}
