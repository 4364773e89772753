package app

import (
	"sort"
	"sync"
	"time"

	"quiz-battle-service/internal/domain"
)

// BattleConfig captures the create-time parameters of a match.
type BattleConfig struct {
	QuizID           string
	Mode             domain.JoinMode
	TimeLimitSeconds int
	MaxParticipants  int
}

// Battle is the authoritative state machine for one match. Every mutating
// method takes the battle mutex, so all operations on one match serialize
// while distinct matches proceed in parallel. The completion check always
// runs inside the same locked section as the transition that triggered it.
type Battle struct {
	id        string
	quiz      domain.Quiz
	cfg       BattleConfig
	now       func() time.Time
	createdAt time.Time

	mu          sync.RWMutex
	status      domain.MatchStatus
	roster      []*domain.Participant
	byID        map[string]*domain.Participant
	startedAt   *time.Time
	endedAt     *time.Time
	summary     *domain.Summary
	subscribers map[chan domain.MatchView]struct{}
}

// NewBattle is exported for infrastructure layers that need to seed matches.
func NewBattle(id string, quiz domain.Quiz, cfg BattleConfig) *Battle {
	return newBattleWithClock(id, quiz, cfg, time.Now)
}

// NewBattleWithClock is test-only for deterministic timestamps.
func NewBattleWithClock(id string, quiz domain.Quiz, cfg BattleConfig, now func() time.Time) *Battle {
	return newBattleWithClock(id, quiz, cfg, now)
}

func newBattleWithClock(id string, quiz domain.Quiz, cfg BattleConfig, now func() time.Time) *Battle {
	if cfg.MaxParticipants <= 0 {
		cfg.MaxParticipants = 2
	}
	return &Battle{
		id:          id,
		quiz:        quiz,
		cfg:         cfg,
		now:         now,
		createdAt:   now(),
		status:      domain.MatchWaiting,
		byID:        make(map[string]*domain.Participant),
		subscribers: make(map[chan domain.MatchView]struct{}),
	}
}

// ID returns the match identity.
func (b *Battle) ID() string { return b.id }

// Quiz returns the bound question set.
func (b *Battle) Quiz() domain.Quiz { return b.quiz }

// Seed appends participants at creation time. Direct-challenge rosters are
// seeded with both sides marked ready.
func (b *Battle) Seed(participantIDs ...string) domain.MatchView {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range participantIDs {
		if _, ok := b.byID[id]; ok {
			continue
		}
		p := domain.NewParticipant(id, len(b.quiz.Questions), b.now())
		p.Ready = b.cfg.Mode == domain.ModeDirectChallenge
		b.roster = append(b.roster, p)
		b.byID[id] = p
	}
	return b.broadcastLocked()
}

// Join appends a participant while the match is waiting.
func (b *Battle) Join(participantID string) (domain.MatchView, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != domain.MatchWaiting {
		return domain.MatchView{}, domain.ErrMatchNotJoinable
	}
	if _, ok := b.byID[participantID]; ok {
		return domain.MatchView{}, domain.ErrAlreadyJoined
	}
	if len(b.roster) >= b.cfg.MaxParticipants {
		return domain.MatchView{}, domain.ErrRoomFull
	}
	p := domain.NewParticipant(participantID, len(b.quiz.Questions), b.now())
	b.roster = append(b.roster, p)
	b.byID[participantID] = p
	return b.broadcastLocked(), nil
}

// SetReady flips a participant's readiness flag. Only meaningful for open
// rooms; direct challenges seed both sides ready.
func (b *Battle) SetReady(participantID string, ready bool) (domain.MatchView, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status.Terminal() {
		return domain.MatchView{}, domain.ErrAlreadyCompleted
	}
	p, ok := b.byID[participantID]
	if !ok {
		return domain.MatchView{}, domain.ErrParticipantNotFound
	}
	p.Ready = ready
	return b.broadcastLocked(), nil
}

// Leave removes a waiting participant, or forfeits an in-progress one.
// Closed reports that the roster emptied and the room was cancelled.
func (b *Battle) Leave(participantID string) (view domain.MatchView, summary *domain.Summary, closed bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.byID[participantID]
	if !ok {
		return domain.MatchView{}, nil, false, domain.ErrParticipantNotFound
	}
	if b.status.Terminal() {
		return domain.MatchView{}, nil, false, domain.ErrAlreadyCompleted
	}

	if b.status == domain.MatchInProgress {
		// A mid-match departure forfeits that participant, not the match.
		if !p.Status.Terminal() {
			if err := p.Forfeit(b.now()); err != nil {
				return domain.MatchView{}, nil, false, err
			}
		}
		summary = b.resolveCompletionLocked()
		return b.broadcastLocked(), summary, false, nil
	}

	delete(b.byID, participantID)
	for i, member := range b.roster {
		if member.ID == participantID {
			b.roster = append(b.roster[:i], b.roster[i+1:]...)
			break
		}
	}
	if len(b.roster) == 0 {
		// Last member out closes the room.
		b.status = domain.MatchCancelled
		t := b.now()
		b.endedAt = &t
		closed = true
	}
	return b.broadcastLocked(), nil, closed, nil
}

// Start moves the match to in_progress. Only a roster member may start, and
// an open room requires every participant to be ready.
func (b *Battle) Start(requesterID string) (domain.MatchView, domain.QuestionView, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.byID[requesterID]; !ok {
		return domain.MatchView{}, domain.QuestionView{}, domain.ErrUnauthorized
	}
	if b.status != domain.MatchWaiting {
		return domain.MatchView{}, domain.QuestionView{}, domain.ErrAlreadyStarted
	}
	if b.cfg.Mode == domain.ModeOpenRoom {
		for _, p := range b.roster {
			if !p.Ready {
				return domain.MatchView{}, domain.QuestionView{}, domain.ErrNotReady
			}
		}
	}

	b.status = domain.MatchInProgress
	t := b.now()
	b.startedAt = &t

	var first domain.QuestionView
	if len(b.quiz.Questions) > 0 {
		first = domain.ViewOfQuestion(b.quiz.Questions[0])
	}
	return b.broadcastLocked(), first, nil
}

// Cancel terminates the match before completion. Allowed from waiting or
// in_progress, by roster members only.
func (b *Battle) Cancel(requesterID string) (domain.MatchView, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.byID[requesterID]; !ok {
		return domain.MatchView{}, domain.ErrUnauthorized
	}
	if b.status.Terminal() {
		return domain.MatchView{}, domain.ErrAlreadyCompleted
	}
	b.status = domain.MatchCancelled
	t := b.now()
	b.endedAt = &t
	return b.broadcastLocked(), nil
}

// SubmitAnswer scores one submission and folds it into the participant.
// A non-nil summary means this submission completed the whole match.
func (b *Battle) SubmitAnswer(participantID string, sub domain.AnswerSubmission) (domain.AnswerResult, domain.MatchView, *domain.Summary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != domain.MatchInProgress {
		return domain.AnswerResult{}, domain.MatchView{}, nil, domain.ErrMatchNotRunning
	}
	p, ok := b.byID[participantID]
	if !ok {
		return domain.AnswerResult{}, domain.MatchView{}, nil, domain.ErrParticipantNotFound
	}
	question, ok := b.questionByID(sub.QuestionID)
	if !ok {
		return domain.AnswerResult{}, domain.MatchView{}, nil, domain.ErrQuestionNotFound
	}

	correct, awarded, bonus := domain.Score(question, sub.Answer, sub.ElapsedSeconds)
	if err := p.ApplyAnswer(sub.QuestionID, correct, awarded, b.now()); err != nil {
		return domain.AnswerResult{}, domain.MatchView{}, nil, err
	}

	summary := b.resolveCompletionLocked()
	result := domain.AnswerResult{
		QuestionID: sub.QuestionID,
		Correct:    correct,
		Awarded:    awarded,
		TimeBonus:  bonus,
		TotalScore: p.Score,
	}
	return result, b.broadcastLocked(), summary, nil
}

// CompleteParticipant finishes a participant explicitly. Pending reports that
// other roster members are still playing.
func (b *Battle) CompleteParticipant(participantID string) (view domain.MatchView, summary *domain.Summary, pending bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != domain.MatchInProgress {
		return domain.MatchView{}, nil, false, domain.ErrMatchNotRunning
	}
	p, ok := b.byID[participantID]
	if !ok {
		return domain.MatchView{}, nil, false, domain.ErrParticipantNotFound
	}
	if err := p.Complete(b.now()); err != nil {
		return domain.MatchView{}, nil, false, err
	}
	summary = b.resolveCompletionLocked()
	return b.broadcastLocked(), summary, summary == nil, nil
}

// ForfeitParticipant freezes a participant without winner eligibility, used
// for disconnects and timeout exhaustion.
func (b *Battle) ForfeitParticipant(participantID string) (domain.MatchView, *domain.Summary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != domain.MatchInProgress {
		return domain.MatchView{}, nil, domain.ErrMatchNotRunning
	}
	p, ok := b.byID[participantID]
	if !ok {
		return domain.MatchView{}, nil, domain.ErrParticipantNotFound
	}
	if err := p.Forfeit(b.now()); err != nil {
		return domain.MatchView{}, nil, err
	}
	summary := b.resolveCompletionLocked()
	return b.broadcastLocked(), summary, nil
}

// ExpireQuestion applies the deadline policy for one question: every
// participant who has not answered it receives a zero-score non-answer, and
// threshold consecutive timeouts forfeit the participant. Stale timers firing
// after a terminal transition are no-ops.
func (b *Battle) ExpireQuestion(questionID string, forfeitThreshold int) (view domain.MatchView, summary *domain.Summary, changed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != domain.MatchInProgress {
		return b.snapshotLocked(), nil, false
	}
	for _, p := range b.roster {
		if p.Status.Terminal() || p.Answered[questionID] {
			continue
		}
		if _, err := p.ApplyTimeout(questionID, forfeitThreshold, b.now()); err == nil {
			changed = true
		}
	}
	if !changed {
		return b.snapshotLocked(), nil, false
	}
	summary = b.resolveCompletionLocked()
	return b.broadcastLocked(), summary, true
}

// ExpireMatch forfeits every unfinished participant when the overall match
// time limit elapses.
func (b *Battle) ExpireMatch() (view domain.MatchView, summary *domain.Summary, changed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != domain.MatchInProgress {
		return b.snapshotLocked(), nil, false
	}
	for _, p := range b.roster {
		if p.Status.Terminal() {
			continue
		}
		if err := p.Forfeit(b.now()); err == nil {
			changed = true
		}
	}
	if !changed {
		return b.snapshotLocked(), nil, false
	}
	summary = b.resolveCompletionLocked()
	return b.broadcastLocked(), summary, true
}

// Status returns the current match status.
func (b *Battle) Status() domain.MatchStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// Snapshot returns the current match view.
func (b *Battle) Snapshot() domain.MatchView {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked()
}

// Summary returns the immutable result record once the match completed.
func (b *Battle) Summary() (domain.Summary, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.summary == nil {
		return domain.Summary{}, false
	}
	return *b.summary, true
}

// Subscribe returns a channel that receives match view updates.
// The caller must invoke the returned cancel function to avoid leaks.
func (b *Battle) Subscribe() (<-chan domain.MatchView, func()) {
	ch := make(chan domain.MatchView, 8)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	// Enqueued under the lock so the initial snapshot is ordered before any
	// later broadcast; the fresh buffered channel cannot block here.
	ch <- b.snapshotLocked()
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// resolveCompletionLocked is the completion and winner resolver. It runs after
// every terminal participant transition, inside the aggregate lock. Once the
// match is completed the resolution is idempotent: re-evaluation returns nil
// and never touches the existing summary.
func (b *Battle) resolveCompletionLocked() *domain.Summary {
	if b.status != domain.MatchInProgress || b.summary != nil {
		return nil
	}
	if len(b.roster) == 0 {
		return nil
	}
	for _, p := range b.roster {
		if !p.Status.Terminal() {
			return nil
		}
	}

	b.status = domain.MatchCompleted
	end := b.now()
	b.endedAt = &end

	ranked := b.rankLocked()
	summary := domain.Summary{
		MatchID:   b.id,
		CreatedAt: end,
	}
	if b.startedAt != nil {
		summary.DurationSeconds = int64(end.Sub(*b.startedAt) / time.Second)
	}

	top := ranked[0]
	summary.WinnerScore = top.Score
	if top.Status == domain.ParticipantCompleted {
		id := top.ID
		summary.WinnerID = &id
	}
	if len(ranked) > 1 {
		last := ranked[len(ranked)-1]
		summary.LoserScore = last.Score
		if summary.WinnerID != nil {
			id := last.ID
			summary.LoserID = &id
		}
	}

	b.summary = &summary
	return &summary
}

// rankLocked orders the roster for winner determination: completed
// participants before forfeited ones, then score descending, then earlier
// completion timestamp, then id for stability.
func (b *Battle) rankLocked() []*domain.Participant {
	ranked := append([]*domain.Participant(nil), b.roster...)
	sort.SliceStable(ranked, func(i, j int) bool {
		pi, pj := ranked[i], ranked[j]
		fi := pi.Status == domain.ParticipantForfeited
		fj := pj.Status == domain.ParticipantForfeited
		if fi != fj {
			return !fi
		}
		if pi.Score != pj.Score {
			return pi.Score > pj.Score
		}
		if pi.CompletedAt != nil && pj.CompletedAt != nil && !pi.CompletedAt.Equal(*pj.CompletedAt) {
			return pi.CompletedAt.Before(*pj.CompletedAt)
		}
		return pi.ID < pj.ID
	})
	return ranked
}

func (b *Battle) questionByID(id string) (domain.Question, bool) {
	for i := range b.quiz.Questions {
		if b.quiz.Questions[i].ID == id {
			return b.quiz.Questions[i], true
		}
	}
	return domain.Question{}, false
}

func (b *Battle) broadcastLocked() domain.MatchView {
	view := b.snapshotLocked()
	for ch := range b.subscribers {
		select {
		case ch <- view:
		default:
			// Drop the stale update so a slow consumer never blocks the match.
			select {
			case <-ch:
			default:
			}
			ch <- view
		}
	}
	return view
}

func (b *Battle) snapshotLocked() domain.MatchView {
	participants := make([]domain.ParticipantView, 0, len(b.roster))
	for _, p := range b.roster {
		participants = append(participants, domain.ParticipantView{
			ID:           p.ID,
			Score:        p.Score,
			CorrectCount: p.CorrectCount,
			Ready:        p.Ready,
			Status:       p.Status,
			CompletedAt:  p.CompletedAt,
		})
	}
	return domain.MatchView{
		ID:               b.id,
		QuizID:           b.cfg.QuizID,
		Mode:             b.cfg.Mode,
		Status:           b.status,
		TimeLimitSeconds: b.cfg.TimeLimitSeconds,
		TotalQuestions:   len(b.quiz.Questions),
		Participants:     participants,
		CreatedAt:        b.createdAt,
		StartedAt:        b.startedAt,
		EndedAt:          b.endedAt,
	}
}
