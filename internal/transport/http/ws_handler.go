package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// WSHandler wires websocket connections into the battle use cases. One
// connection serves one participant; every mutating operation arrives as a
// typed message.
type WSHandler struct {
	service  *app.BattleService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.BattleService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type createPayload struct {
	QuizID           string `json:"quizId"`
	OpponentID       string `json:"opponentId,omitempty"`
	Mode             string `json:"mode,omitempty"`
	TimeLimitSeconds int    `json:"timeLimitSeconds"`
	MaxParticipants  int    `json:"maxParticipants,omitempty"`
}

type matchRefPayload struct {
	MatchID string `json:"matchId"`
}

type readyPayload struct {
	MatchID string `json:"matchId"`
	Ready   bool   `json:"ready"`
}

type answerPayload struct {
	MatchID        string   `json:"matchId"`
	QuestionID     string   `json:"questionId"`
	OptionIDs      []string `json:"optionIds,omitempty"`
	Text           string   `json:"text,omitempty"`
	ElapsedSeconds float64  `json:"elapsedSeconds"`
}

type startedPayload struct {
	Match         domain.MatchView    `json:"match"`
	FirstQuestion domain.QuestionView `json:"firstQuestion"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the connection and runs the per-participant message loop.
// A leave is issued for the subscribed match when the connection drops
// mid-battle, so a disconnect forfeits the participant rather than stalling
// the match.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	participantID := r.URL.Query().Get("participantId")
	if participantID == "" {
		http.Error(w, "missing participantId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	session := &wsSession{
		handler:       h,
		conn:          conn,
		participantID: participantID,
		send:          make(chan outboundMessage[any], 16),
		done:          make(chan struct{}),
		// Answer submissions are throttled per connection; ten per second
		// with a small burst is far above honest play.
		answerLimiter: rate.NewLimiter(rate.Limit(10), 20),
	}
	session.run(r)
}

// wsSession holds the per-connection state: the writer pump, the active match
// subscription and the submission limiter.
type wsSession struct {
	handler       *WSHandler
	conn          *websocket.Conn
	participantID string
	send          chan outboundMessage[any]
	done          chan struct{}
	answerLimiter *rate.Limiter

	mu          sync.Mutex
	matchID     string
	unsubscribe func()
	pumpStop    chan struct{}
	pumpDone    chan struct{}
}

func (s *wsSession) run(r *http.Request) {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range s.send {
			if err := s.conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := s.conn.ReadJSON(&inbound); err != nil {
			break
		}
		s.dispatch(r, inbound)
	}

	close(s.done)
	// Join the subscription pump before closing the send channel: a buffered
	// view must never land on a closed channel.
	s.dropSubscription()
	// Disconnect mid-battle: the participant forfeits (or leaves a waiting
	// room) instead of blocking everyone else.
	s.mu.Lock()
	matchID := s.matchID
	s.mu.Unlock()
	if matchID != "" {
		_, err := s.handler.service.Leave(context.Background(), matchID, s.participantID)
		// Completed matches may already be resolved or evicted; only genuine
		// failures are worth logging.
		if err != nil && !errors.Is(err, domain.ErrAlreadyCompleted) && !errors.Is(err, domain.ErrMatchNotFound) {
			log.Printf("leave on disconnect for %s: %v", s.participantID, err)
		}
	}
	close(s.send)
	<-writerDone
}

func (s *wsSession) dispatch(r *http.Request, inbound inboundMessage) {
	ctx := r.Context()
	switch inbound.Type {
	case "create":
		var payload createPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			s.sendError("invalid create payload")
			return
		}
		view, err := s.handler.service.Create(ctx, s.participantID, payload.OpponentID, app.BattleConfig{
			QuizID:           payload.QuizID,
			Mode:             domain.JoinMode(payload.Mode),
			TimeLimitSeconds: payload.TimeLimitSeconds,
			MaxParticipants:  payload.MaxParticipants,
		})
		if err != nil {
			s.sendError(err.Error())
			return
		}
		s.subscribeTo(ctx, view.ID)
		s.reply("created", view)

	case "join":
		payload, ok := s.matchRef(inbound.Payload)
		if !ok {
			return
		}
		view, err := s.handler.service.Join(ctx, payload.MatchID, s.participantID)
		if err != nil {
			s.sendError(err.Error())
			return
		}
		s.subscribeTo(ctx, view.ID)
		s.reply("match", view)

	case "subscribe":
		payload, ok := s.matchRef(inbound.Payload)
		if !ok {
			return
		}
		view, err := s.handler.service.GetMatch(ctx, payload.MatchID)
		if err != nil {
			s.sendError(err.Error())
			return
		}
		s.subscribeTo(ctx, view.ID)
		s.reply("match", view)

	case "ready":
		var payload readyPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			s.sendError("invalid ready payload")
			return
		}
		view, err := s.handler.service.SetReady(ctx, payload.MatchID, s.participantID, payload.Ready)
		if err != nil {
			s.sendError(err.Error())
			return
		}
		s.reply("match", view)

	case "leave":
		payload, ok := s.matchRef(inbound.Payload)
		if !ok {
			return
		}
		view, err := s.handler.service.Leave(ctx, payload.MatchID, s.participantID)
		if err != nil {
			s.sendError(err.Error())
			return
		}
		s.dropSubscription()
		s.mu.Lock()
		s.matchID = ""
		s.mu.Unlock()
		s.reply("match", view)

	case "start":
		payload, ok := s.matchRef(inbound.Payload)
		if !ok {
			return
		}
		view, first, err := s.handler.service.Start(ctx, payload.MatchID, s.participantID)
		if err != nil {
			s.sendError(err.Error())
			return
		}
		s.reply("started", startedPayload{Match: view, FirstQuestion: first})

	case "answer":
		if !s.answerLimiter.Allow() {
			s.sendError("too many submissions")
			return
		}
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			s.sendError("invalid answer payload")
			return
		}
		result, _, err := s.handler.service.SubmitAnswer(ctx, payload.MatchID, s.participantID, domain.AnswerSubmission{
			QuestionID: payload.QuestionID,
			Answer: domain.SubmittedAnswer{
				OptionIDs: payload.OptionIDs,
				Text:      payload.Text,
			},
			ElapsedSeconds: payload.ElapsedSeconds,
		})
		if err != nil {
			s.sendError(err.Error())
			return
		}
		s.reply("answerResult", result)

	case "complete":
		payload, ok := s.matchRef(inbound.Payload)
		if !ok {
			return
		}
		summary, pending, view, err := s.handler.service.Complete(ctx, payload.MatchID, s.participantID)
		if err != nil {
			s.sendError(err.Error())
			return
		}
		if pending {
			s.reply("pending", view)
			return
		}
		s.reply("summary", summary)

	case "cancel":
		payload, ok := s.matchRef(inbound.Payload)
		if !ok {
			return
		}
		view, err := s.handler.service.Cancel(ctx, payload.MatchID, s.participantID)
		if err != nil {
			s.sendError(err.Error())
			return
		}
		s.reply("match", view)

	default:
		s.sendError("unsupported message type")
	}
}

func (s *wsSession) matchRef(raw json.RawMessage) (matchRefPayload, bool) {
	var payload matchRefPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.MatchID == "" {
		s.sendError("invalid payload: matchId required")
		return matchRefPayload{}, false
	}
	return payload, true
}

// subscribeTo replaces the active match subscription with one for matchID and
// pumps view updates into the writer.
func (s *wsSession) subscribeTo(ctx context.Context, matchID string) {
	updates, cancel, err := s.handler.service.Subscribe(ctx, matchID)
	if err != nil {
		s.sendError(err.Error())
		return
	}

	s.dropSubscription()

	stop := make(chan struct{})
	done := make(chan struct{})
	s.mu.Lock()
	s.matchID = matchID
	s.unsubscribe = cancel
	s.pumpStop = stop
	s.pumpDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case s.send <- outboundMessage[any]{Type: "match", Payload: update}:
				case <-stop:
					return
				case <-s.done:
					return
				}
			case <-stop:
				return
			case <-s.done:
				return
			}
		}
	}()
}

// dropSubscription cancels the active subscription and waits for its pump to
// exit, so no forwarder can touch s.send after the teardown closes it.
func (s *wsSession) dropSubscription() {
	s.mu.Lock()
	cancel := s.unsubscribe
	stop := s.pumpStop
	done := s.pumpDone
	s.unsubscribe = nil
	s.pumpStop = nil
	s.pumpDone = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if stop != nil {
		close(stop)
	}
	if done != nil {
		<-done
	}
}

func (s *wsSession) reply(typ string, payload any) {
	select {
	case s.send <- outboundMessage[any]{Type: typ, Payload: payload}:
	case <-s.done:
	}
}

func (s *wsSession) sendError(message string) {
	s.reply("error", errorPayload{Message: message})
}
