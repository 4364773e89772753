package domain

import "time"

// EventType identifies a match lifecycle transition.
type EventType string

const (
	EventMatchCreated   EventType = "battle.created"
	EventMatchStarted   EventType = "battle.started"
	EventMatchCompleted EventType = "battle.completed"
	EventMatchCancelled EventType = "battle.cancelled"
)

// EventParticipant is the id/score pair carried on lifecycle events.
type EventParticipant struct {
	ID    string `json:"id"`
	Score int    `json:"score"`
}

// Event is the envelope emitted once per lifecycle transition. Publication is
// best-effort: a failed publish never rolls back the transition it describes.
type Event struct {
	Type         EventType          `json:"type"`
	MatchID      string             `json:"matchId"`
	QuizID       string             `json:"quizId"`
	Participants []EventParticipant `json:"participants"`
	WinnerID     *string            `json:"winnerId,omitempty"`
	OccurredAt   time.Time          `json:"occurredAt"`
}

// EventOf builds a lifecycle event from a match snapshot.
func EventOf(typ EventType, view MatchView, winnerID *string, now time.Time) Event {
	participants := make([]EventParticipant, 0, len(view.Participants))
	for _, p := range view.Participants {
		participants = append(participants, EventParticipant{ID: p.ID, Score: p.Score})
	}
	return Event{
		Type:         typ,
		MatchID:      view.ID,
		QuizID:       view.QuizID,
		Participants: participants,
		WinnerID:     winnerID,
		OccurredAt:   now,
	}
}
