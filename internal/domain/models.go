package domain

import "time"

// MatchStatus is the overall lifecycle state of a match.
// Transitions are monotonic: waiting -> in_progress -> completed,
// or waiting/in_progress -> cancelled. Terminal statuses accept no mutation.
type MatchStatus string

const (
	MatchWaiting    MatchStatus = "waiting"
	MatchInProgress MatchStatus = "in_progress"
	MatchCompleted  MatchStatus = "completed"
	MatchCancelled  MatchStatus = "cancelled"
)

// Terminal reports whether the status accepts no further transitions.
func (s MatchStatus) Terminal() bool {
	return s == MatchCompleted || s == MatchCancelled
}

// JoinMode selects how a match roster is seeded at creation.
type JoinMode string

const (
	// ModeOpenRoom seeds only the creator; others join while waiting and
	// must toggle ready before the match can start.
	ModeOpenRoom JoinMode = "open_room"
	// ModeDirectChallenge seeds challenger and opponent up front; both are
	// implicitly ready.
	ModeDirectChallenge JoinMode = "direct_challenge"
)

// ParticipantStatus is the per-participant lifecycle state within one match.
type ParticipantStatus string

const (
	ParticipantJoined    ParticipantStatus = "joined"
	ParticipantActive    ParticipantStatus = "active"
	ParticipantCompleted ParticipantStatus = "completed"
	ParticipantForfeited ParticipantStatus = "forfeited"
)

// Terminal reports whether the participant's progress is frozen.
func (s ParticipantStatus) Terminal() bool {
	return s == ParticipantCompleted || s == ParticipantForfeited
}

// Participant is a roster member's progress record within one match.
// Score and CorrectCount only grow while the participant is not terminal.
type Participant struct {
	ID             string
	Score          int
	CorrectCount   int
	AnsweredCount  int
	TotalQuestions int
	TimeoutStreak  int
	Ready          bool
	Status         ParticipantStatus
	JoinedAt       time.Time
	CompletedAt    *time.Time
	Answered       map[string]bool
}

// NewParticipant returns a joined participant with the answer sheet sized to
// the bound quiz. TotalQuestions always comes from the quiz question count.
func NewParticipant(id string, totalQuestions int, now time.Time) *Participant {
	return &Participant{
		ID:             id,
		Status:         ParticipantJoined,
		TotalQuestions: totalQuestions,
		JoinedAt:       now,
		Answered:       make(map[string]bool),
	}
}

// ApplyAnswer folds a scored submission into the participant. The first answer
// activates the participant; answering the last remaining question completes
// them automatically.
func (p *Participant) ApplyAnswer(questionID string, correct bool, points int, now time.Time) error {
	if p.Status.Terminal() {
		return ErrInvalidParticipantState
	}
	if p.Answered[questionID] {
		return ErrAlreadyAnswered
	}
	p.Status = ParticipantActive
	p.Answered[questionID] = true
	p.AnsweredCount++
	p.TimeoutStreak = 0
	if correct {
		p.Score += points
		p.CorrectCount++
	}
	if p.TotalQuestions > 0 && p.AnsweredCount >= p.TotalQuestions {
		return p.Complete(now)
	}
	return nil
}

// ApplyTimeout records a zero-score non-answer for an expired question and
// reports whether the participant crossed the consecutive-timeout threshold.
func (p *Participant) ApplyTimeout(questionID string, threshold int, now time.Time) (forfeited bool, err error) {
	if p.Status.Terminal() {
		return false, ErrInvalidParticipantState
	}
	if p.Answered[questionID] {
		return false, ErrAlreadyAnswered
	}
	p.Status = ParticipantActive
	p.Answered[questionID] = true
	p.AnsweredCount++
	p.TimeoutStreak++
	if threshold > 0 && p.TimeoutStreak >= threshold {
		return true, p.Forfeit(now)
	}
	if p.TotalQuestions > 0 && p.AnsweredCount >= p.TotalQuestions {
		return false, p.Complete(now)
	}
	return false, nil
}

// Complete stamps the completion time and freezes the participant.
func (p *Participant) Complete(now time.Time) error {
	if p.Status.Terminal() {
		return ErrAlreadyCompleted
	}
	t := now
	p.CompletedAt = &t
	p.Status = ParticipantCompleted
	return nil
}

// Forfeit freezes the participant without winner eligibility. Used for
// disconnects and timeout exhaustion; not an error state.
func (p *Participant) Forfeit(now time.Time) error {
	if p.Status.Terminal() {
		return ErrAlreadyCompleted
	}
	t := now
	p.CompletedAt = &t
	p.Status = ParticipantForfeited
	return nil
}

// QuestionKind selects the correctness comparison policy for a question.
type QuestionKind string

const (
	KindSingleChoice QuestionKind = "single_choice"
	KindMultiChoice  QuestionKind = "multi_choice"
	KindTrueFalse    QuestionKind = "true_false"
	KindShortAnswer  QuestionKind = "short_answer"
)

// Option represents a possible answer for a choice question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models one timed quiz question. Choice kinds use Options;
// short-answer kinds use Answer. Points defaults to 1 if zero.
type Question struct {
	ID               string       `json:"id"`
	Prompt           string       `json:"prompt"`
	Kind             QuestionKind `json:"kind"`
	Options          []Option     `json:"options,omitempty"`
	Answer           string       `json:"answer,omitempty"`
	Points           int          `json:"points"`
	TimeLimitSeconds int          `json:"timeLimitSeconds"`
}

// Quiz is the read-only question set a match is bound to.
type Quiz struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}

// SubmittedAnswer is the participant-provided answer value. Choice kinds fill
// OptionIDs; short-answer fills Text.
type SubmittedAnswer struct {
	OptionIDs []string `json:"optionIds,omitempty"`
	Text      string   `json:"text,omitempty"`
}

// AnswerSubmission is the transient per-question scoring signal. It is never
// persisted as an entity; its effect folds into the Participant.
type AnswerSubmission struct {
	QuestionID     string          `json:"questionId"`
	Answer         SubmittedAnswer `json:"answer"`
	ElapsedSeconds float64         `json:"elapsedSeconds"`
}

// AnswerResult summarizes the outcome of one submission.
type AnswerResult struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
	Awarded    int    `json:"awarded"`
	TimeBonus  int    `json:"timeBonus"`
	TotalScore int    `json:"totalScore"`
}

// Summary is the immutable post-match result record. WinnerID is nil when
// every participant forfeited.
type Summary struct {
	MatchID         string    `json:"matchId"`
	WinnerID        *string   `json:"winnerId"`
	LoserID         *string   `json:"loserId"`
	WinnerScore     int       `json:"winnerScore"`
	LoserScore      int       `json:"loserScore"`
	DurationSeconds int64     `json:"durationSeconds"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ParticipantView is a snapshot-friendly view of a roster member.
type ParticipantView struct {
	ID           string            `json:"id"`
	Score        int               `json:"score"`
	CorrectCount int               `json:"correctCount"`
	Ready        bool              `json:"ready"`
	Status       ParticipantStatus `json:"status"`
	CompletedAt  *time.Time        `json:"completedAt,omitempty"`
}

// MatchView is the external read view of a match.
type MatchView struct {
	ID               string            `json:"id"`
	QuizID           string            `json:"quizId"`
	Mode             JoinMode          `json:"mode"`
	Status           MatchStatus       `json:"status"`
	TimeLimitSeconds int               `json:"timeLimitSeconds"`
	TotalQuestions   int               `json:"totalQuestions"`
	Participants     []ParticipantView `json:"participants"`
	CreatedAt        time.Time         `json:"createdAt"`
	StartedAt        *time.Time        `json:"startedAt,omitempty"`
	EndedAt          *time.Time        `json:"endedAt,omitempty"`
}

// QuestionView is a question payload stripped of correctness information,
// safe to push to participants.
type QuestionView struct {
	ID               string       `json:"id"`
	Prompt           string       `json:"prompt"`
	Kind             QuestionKind `json:"kind"`
	Options          []OptionView `json:"options,omitempty"`
	Points           int          `json:"points"`
	TimeLimitSeconds int          `json:"timeLimitSeconds"`
}

// OptionView hides the correct flag from clients.
type OptionView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ViewOfQuestion builds the client-safe payload for a question.
func ViewOfQuestion(q Question) QuestionView {
	options := make([]OptionView, 0, len(q.Options))
	for _, opt := range q.Options {
		options = append(options, OptionView{ID: opt.ID, Text: opt.Text})
	}
	return QuestionView{
		ID:               q.ID,
		Prompt:           q.Prompt,
		Kind:             q.Kind,
		Options:          options,
		Points:           q.Points,
		TimeLimitSeconds: q.TimeLimitSeconds,
	}
}
