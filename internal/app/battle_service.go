package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"time"

	"quiz-battle-service/internal/domain"
)

// MatchRegistry abstracts how live match aggregates are stored (in-memory,
// Redis-backed, etc).
type MatchRegistry interface {
	Put(b *Battle)
	Get(matchID string) (*Battle, bool)
	Delete(matchID string)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// SummaryStore is the persistence sink for terminal match records. Writes are
// best-effort from the engine's perspective: the in-memory aggregate is the
// source of truth and persistence is expected to converge.
type SummaryStore interface {
	SaveSummary(ctx context.Context, summary domain.Summary) error
	SaveMatchSnapshot(ctx context.Context, view domain.MatchView) error
	LoadSummary(ctx context.Context, matchID string) (domain.Summary, error)
}

// EventSink accepts lifecycle events. A publish failure never rolls back the
// state transition it describes.
type EventSink interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Policy carries the tunable battle rules.
type Policy struct {
	// MaxParticipants caps open-room rosters when create does not specify one.
	MaxParticipants int
	// TimeoutForfeitThreshold is the number of consecutive question timeouts
	// that forfeits a participant.
	TimeoutForfeitThreshold int
}

// DefaultPolicy mirrors the two-player battles of the original product.
func DefaultPolicy() Policy {
	return Policy{MaxParticipants: 2, TimeoutForfeitThreshold: 3}
}

// BattleService contains the battle use cases: the room coordinator for the
// pre-match lifecycle and the orchestration around the match aggregate.
type BattleService struct {
	matches   MatchRegistry
	quizzes   QuizRepository
	summaries SummaryStore
	events    EventSink
	timers    *deadlineTimers
	policy    Policy
	now       func() time.Time
	newID     func() string
}

func NewBattleService(matches MatchRegistry, quizzes QuizRepository, summaries SummaryStore, events EventSink, policy Policy) *BattleService {
	if policy.MaxParticipants <= 0 {
		policy.MaxParticipants = 2
	}
	return &BattleService{
		matches:   matches,
		quizzes:   quizzes,
		summaries: summaries,
		events:    events,
		timers:    newDeadlineTimers(),
		policy:    policy,
		now:       time.Now,
		newID:     newMatchID,
	}
}

func newMatchID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "m-" + hex.EncodeToString([]byte(time.Now().Format("150405.000")))
	}
	return "m-" + hex.EncodeToString(buf)
}

// Create validates the configuration, binds the quiz and registers a waiting
// match. Direct challenges seed challenger and opponent; open rooms seed only
// the creator.
func (s *BattleService) Create(ctx context.Context, initiatorID, opponentID string, cfg BattleConfig) (domain.MatchView, error) {
	if initiatorID == "" || cfg.QuizID == "" || cfg.TimeLimitSeconds <= 0 {
		return domain.MatchView{}, domain.ErrInvalidMatchConfig
	}
	if cfg.Mode == "" {
		cfg.Mode = domain.ModeOpenRoom
	}
	switch cfg.Mode {
	case domain.ModeOpenRoom:
	case domain.ModeDirectChallenge:
		if opponentID == "" || opponentID == initiatorID {
			return domain.MatchView{}, domain.ErrInvalidMatchConfig
		}
	default:
		return domain.MatchView{}, domain.ErrInvalidMatchConfig
	}
	if cfg.MaxParticipants <= 0 {
		cfg.MaxParticipants = s.policy.MaxParticipants
	}

	quiz, err := s.quizzes.GetQuiz(ctx, cfg.QuizID)
	if err != nil {
		return domain.MatchView{}, err
	}
	if len(quiz.Questions) == 0 {
		return domain.MatchView{}, domain.ErrInvalidMatchConfig
	}

	battle := newBattleWithClock(s.newID(), quiz, cfg, s.now)
	if cfg.Mode == domain.ModeDirectChallenge {
		battle.Seed(initiatorID, opponentID)
	} else {
		battle.Seed(initiatorID)
	}
	s.matches.Put(battle)

	view := battle.Snapshot()
	s.persistSnapshot(ctx, view)
	s.publish(ctx, domain.EventOf(domain.EventMatchCreated, view, nil, s.now()))
	return view, nil
}

// Join adds a participant to a waiting match.
func (s *BattleService) Join(ctx context.Context, matchID, participantID string) (domain.MatchView, error) {
	battle, ok := s.matches.Get(matchID)
	if !ok {
		return domain.MatchView{}, domain.ErrMatchNotFound
	}
	view, err := battle.Join(participantID)
	if err != nil {
		return domain.MatchView{}, err
	}
	s.persistSnapshot(ctx, view)
	return view, nil
}

// SetReady flips a participant's readiness flag.
func (s *BattleService) SetReady(ctx context.Context, matchID, participantID string, ready bool) (domain.MatchView, error) {
	battle, ok := s.matches.Get(matchID)
	if !ok {
		return domain.MatchView{}, domain.ErrMatchNotFound
	}
	return battle.SetReady(participantID, ready)
}

// Leave removes a waiting participant or forfeits an in-progress one. An
// emptied waiting room is closed and dropped from the registry.
func (s *BattleService) Leave(ctx context.Context, matchID, participantID string) (domain.MatchView, error) {
	battle, ok := s.matches.Get(matchID)
	if !ok {
		return domain.MatchView{}, domain.ErrMatchNotFound
	}
	view, summary, closed, err := battle.Leave(participantID)
	if err != nil {
		return domain.MatchView{}, err
	}
	switch {
	case summary != nil:
		s.finalizeCompletion(ctx, view, *summary)
	case closed:
		s.timers.CancelMatch(matchID)
		s.persistSnapshot(ctx, view)
		s.publish(ctx, domain.EventOf(domain.EventMatchCancelled, view, nil, s.now()))
		s.matches.Delete(matchID)
	default:
		s.persistSnapshot(ctx, view)
	}
	return view, nil
}

// Start transitions the match to in_progress, arms the question deadline
// timers and returns the first question payload.
func (s *BattleService) Start(ctx context.Context, matchID, requesterID string) (domain.MatchView, domain.QuestionView, error) {
	battle, ok := s.matches.Get(matchID)
	if !ok {
		return domain.MatchView{}, domain.QuestionView{}, domain.ErrMatchNotFound
	}
	view, first, err := battle.Start(requesterID)
	if err != nil {
		return domain.MatchView{}, domain.QuestionView{}, err
	}
	s.armTimers(battle)
	s.persistSnapshot(ctx, view)
	s.publish(ctx, domain.EventOf(domain.EventMatchStarted, view, nil, s.now()))
	return view, first, nil
}

// armTimers schedules one deadline per question, cumulative from the start of
// the match (questions are presented in sequence), plus the overall match
// deadline keyed by an empty question id.
func (s *BattleService) armTimers(battle *Battle) {
	matchID := battle.ID()
	threshold := s.policy.TimeoutForfeitThreshold

	var offset time.Duration
	for _, q := range battle.Quiz().Questions {
		if q.TimeLimitSeconds <= 0 {
			continue
		}
		offset += time.Duration(q.TimeLimitSeconds) * time.Second
		questionID := q.ID
		s.timers.Arm(matchID, questionID, offset, func() {
			view, summary, changed := battle.ExpireQuestion(questionID, threshold)
			if !changed {
				return
			}
			ctx := context.Background()
			if summary != nil {
				s.finalizeCompletion(ctx, view, *summary)
				return
			}
			s.persistSnapshot(ctx, view)
		})
	}

	cfg := battle.cfg
	if cfg.TimeLimitSeconds > 0 {
		s.timers.Arm(matchID, "", time.Duration(cfg.TimeLimitSeconds)*time.Second, func() {
			view, summary, changed := battle.ExpireMatch()
			if !changed {
				return
			}
			ctx := context.Background()
			if summary != nil {
				s.finalizeCompletion(ctx, view, *summary)
				return
			}
			s.persistSnapshot(ctx, view)
		})
	}
}

// SubmitAnswer scores a submission and folds it into the participant.
func (s *BattleService) SubmitAnswer(ctx context.Context, matchID, participantID string, sub domain.AnswerSubmission) (domain.AnswerResult, domain.MatchView, error) {
	battle, ok := s.matches.Get(matchID)
	if !ok {
		return domain.AnswerResult{}, domain.MatchView{}, domain.ErrMatchNotFound
	}
	result, view, summary, err := battle.SubmitAnswer(participantID, sub)
	if err != nil {
		return domain.AnswerResult{}, domain.MatchView{}, err
	}
	if summary != nil {
		s.finalizeCompletion(ctx, view, *summary)
	}
	return result, view, nil
}

// Complete finishes a participant. Pending reports that the summary is not
// available yet because other roster members are still playing.
func (s *BattleService) Complete(ctx context.Context, matchID, participantID string) (domain.Summary, bool, domain.MatchView, error) {
	battle, ok := s.matches.Get(matchID)
	if !ok {
		return domain.Summary{}, false, domain.MatchView{}, domain.ErrMatchNotFound
	}
	view, summary, pending, err := battle.CompleteParticipant(participantID)
	if err != nil {
		return domain.Summary{}, false, domain.MatchView{}, err
	}
	if summary != nil {
		s.finalizeCompletion(ctx, view, *summary)
		return *summary, false, view, nil
	}
	s.persistSnapshot(ctx, view)
	return domain.Summary{}, pending, view, nil
}

// Cancel terminates the match from waiting or in_progress.
func (s *BattleService) Cancel(ctx context.Context, matchID, requesterID string) (domain.MatchView, error) {
	battle, ok := s.matches.Get(matchID)
	if !ok {
		return domain.MatchView{}, domain.ErrMatchNotFound
	}
	view, err := battle.Cancel(requesterID)
	if err != nil {
		return domain.MatchView{}, err
	}
	s.timers.CancelMatch(matchID)
	s.persistSnapshot(ctx, view)
	s.publish(ctx, domain.EventOf(domain.EventMatchCancelled, view, nil, s.now()))
	return view, nil
}

// GetMatch returns the current match view.
func (s *BattleService) GetMatch(_ context.Context, matchID string) (domain.MatchView, error) {
	battle, ok := s.matches.Get(matchID)
	if !ok {
		return domain.MatchView{}, domain.ErrMatchNotFound
	}
	return battle.Snapshot(), nil
}

// GetSummary returns the immutable result record of a completed match. The
// registry serves live matches; completed ones that were evicted after
// persistence come back from the summary store.
func (s *BattleService) GetSummary(ctx context.Context, matchID string) (domain.Summary, error) {
	if battle, ok := s.matches.Get(matchID); ok {
		summary, ok := battle.Summary()
		if !ok {
			return domain.Summary{}, domain.ErrSummaryNotFound
		}
		return summary, nil
	}
	if s.summaries != nil {
		return s.summaries.LoadSummary(ctx, matchID)
	}
	return domain.Summary{}, domain.ErrMatchNotFound
}

// Subscribe returns a channel that receives match view updates.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *BattleService) Subscribe(_ context.Context, matchID string) (<-chan domain.MatchView, func(), error) {
	battle, ok := s.matches.Get(matchID)
	if !ok {
		return nil, nil, domain.ErrMatchNotFound
	}
	ch, cancel := battle.Subscribe()
	return ch, cancel, nil
}

// finalizeCompletion runs the post-completion side effects: timer teardown,
// persistence and the completed event. All best-effort; the aggregate already
// holds the committed state.
func (s *BattleService) finalizeCompletion(ctx context.Context, view domain.MatchView, summary domain.Summary) {
	s.timers.CancelMatch(view.ID)
	s.persistSnapshot(ctx, view)
	if s.summaries != nil {
		if err := s.summaries.SaveSummary(ctx, summary); err != nil {
			log.Printf("save summary for match %s: %v", view.ID, err)
		} else {
			// The store holds the record now; drop the terminal aggregate so
			// long-lived processes do not accumulate finished matches.
			// Without a store the aggregate stays as the only copy.
			s.matches.Delete(view.ID)
		}
	}
	s.publish(ctx, domain.EventOf(domain.EventMatchCompleted, view, summary.WinnerID, s.now()))
}

func (s *BattleService) persistSnapshot(ctx context.Context, view domain.MatchView) {
	if s.summaries == nil {
		return
	}
	if err := s.summaries.SaveMatchSnapshot(ctx, view); err != nil {
		log.Printf("persist match %s snapshot: %v", view.ID, err)
	}
}

func (s *BattleService) publish(ctx context.Context, event domain.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		log.Printf("publish %s event for match %s: %v", event.Type, event.MatchID, err)
	}
}
