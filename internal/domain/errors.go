package domain

import "errors"

var (
	// ErrMatchNotFound is returned when a match ID is unknown to the registry.
	ErrMatchNotFound = errors.New("match not found")
	// ErrMatchNotJoinable is returned when the roster is closed to new members.
	ErrMatchNotJoinable = errors.New("match is not accepting participants")
	// ErrRoomFull is returned when the roster is at its configured capacity.
	ErrRoomFull = errors.New("match roster is full")
	// ErrAlreadyJoined is returned when a participant is already in the roster.
	ErrAlreadyJoined = errors.New("participant already joined")
	// ErrParticipantNotFound is returned when the actor is not in the roster.
	ErrParticipantNotFound = errors.New("participant not found in match")
	// ErrNotReady is returned when starting an open room before all participants toggled ready.
	ErrNotReady = errors.New("not all participants are ready")
	// ErrAlreadyStarted is returned when starting a match that left the waiting state.
	ErrAlreadyStarted = errors.New("match already started")
	// ErrAlreadyCompleted is returned on any mutation of a completed match or participant.
	ErrAlreadyCompleted = errors.New("already completed")
	// ErrMatchNotRunning is returned when a submission arrives outside in_progress.
	ErrMatchNotRunning = errors.New("match is not in progress")
	// ErrUnauthorized is returned when the requester is not a roster member.
	ErrUnauthorized = errors.New("requester is not a roster member")
	// ErrInvalidMatchConfig rejects a create with a bad time limit or quiz reference.
	ErrInvalidMatchConfig = errors.New("invalid match configuration")
	// ErrInvalidParticipantState rejects answers for a terminal participant.
	ErrInvalidParticipantState = errors.New("participant is no longer active")
	// ErrAlreadyAnswered rejects a second submission for the same question.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrSummaryNotFound is returned when reading a summary before the match completed.
	ErrSummaryNotFound = errors.New("summary not found")
)
