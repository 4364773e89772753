package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/infra/memory"
	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	registry := memory.NewMatchRegistry()
	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	service := app.NewBattleService(registry, quizRepo, nil, memory.NewEventSink(), app.DefaultPolicy())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", NewWSHandler(service).ServeWS)
	readHandler := NewReadHandler(service)
	mux.HandleFunc("/match", readHandler.GetMatch)
	mux.HandleFunc("/summary", readHandler.GetSummary)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, participantID string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?participantId=" + participantID
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", participantID, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": typ, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readUntil drains messages until one of the wanted type arrives. Match view
// pushes interleave with replies, so tests skip past them.
func readUntil(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for i := 0; i < 20; i++ {
		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read waiting for %s: %v", want, err)
		}
		if msg.Type == "error" && want != "error" {
			t.Fatalf("got error while waiting for %s: %s", want, msg.Payload)
		}
		if msg.Type == want {
			var payload map[string]any
			_ = json.Unmarshal(msg.Payload, &payload)
			return payload
		}
	}
	t.Fatalf("never saw message type %s", want)
	return nil
}

func TestWebSocketBattleFlow(t *testing.T) {
	server := newTestServer(t)

	alice := dial(t, server, "alice")
	bob := dial(t, server, "bob")

	send(t, alice, "create", map[string]any{
		"quizId":           "quiz-1",
		"timeLimitSeconds": 60,
	})
	created := readUntil(t, alice, "created")
	matchID, _ := created["id"].(string)
	if matchID == "" {
		t.Fatalf("created payload missing match id: %v", created)
	}

	send(t, bob, "join", map[string]any{"matchId": matchID})
	readUntil(t, bob, "match")

	send(t, alice, "ready", map[string]any{"matchId": matchID, "ready": true})
	send(t, bob, "ready", map[string]any{"matchId": matchID, "ready": true})
	readUntil(t, bob, "match")

	send(t, alice, "start", map[string]any{"matchId": matchID})
	started := readUntil(t, alice, "started")
	if _, ok := started["firstQuestion"]; !ok {
		t.Fatalf("started payload missing first question: %v", started)
	}

	send(t, alice, "answer", map[string]any{
		"matchId":        matchID,
		"questionId":     "q1",
		"optionIds":      []string{"o2"},
		"elapsedSeconds": 10,
	})
	result := readUntil(t, alice, "answerResult")
	if correct, _ := result["correct"].(bool); !correct {
		t.Fatalf("expected correct answer: %v", result)
	}
	if awarded, _ := result["awarded"].(float64); awarded != 3 {
		t.Fatalf("expected 3 points (1 base + 2 bonus), got %v", result["awarded"])
	}

	// Bob answers wrong, completes the roster, then asks for the summary.
	send(t, bob, "answer", map[string]any{
		"matchId":        matchID,
		"questionId":     "q1",
		"optionIds":      []string{"o1"},
		"elapsedSeconds": 12,
	})
	readUntil(t, bob, "answerResult")

	resp, err := http.Get(server.URL + "/summary?id=" + matchID)
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var summary domain.Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.WinnerID == nil || *summary.WinnerID != "alice" {
		t.Fatalf("expected alice to win: %+v", summary)
	}
}

func TestWebSocketRejectsMissingParticipant(t *testing.T) {
	server := newTestServer(t)

	u := "ws" + server.URL[len("http"):] + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatal("expected dial to fail without participantId")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %+v", resp)
	}
}

func TestAbruptDisconnectUnderBroadcastLoad(t *testing.T) {
	server := newTestServer(t)

	for i := 0; i < 150; i++ {
		u := "ws" + server.URL[len("http"):] + "/ws?participantId=alice"
		conn, _, err := websocket.DefaultDialer.Dial(u, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		send(t, conn, "create", map[string]any{"quizId": "quiz-1", "timeLimitSeconds": 60})
		created := readUntil(t, conn, "created")
		matchID, _ := created["id"].(string)

		// Flood the subscription with roster updates, then drop the
		// connection without reading any of them.
		for j := 0; j < 25; j++ {
			send(t, conn, "ready", map[string]any{"matchId": matchID, "ready": j%2 == 0})
		}
		conn.Close()
	}

	// Every teardown raced pending view pushes; the server must survive all
	// of them and keep answering.
	resp, err := http.Get(server.URL + "/match?id=missing")
	if err != nil {
		t.Fatalf("server did not survive disconnects: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestReadHandlerUnknownMatch(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/match?id=missing")
	if err != nil {
		t.Fatalf("get match: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID: "quiz-1",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Kind:   domain.KindSingleChoice,
					Options: []domain.Option{
						{ID: "o1", Text: "3", Correct: false},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5", Correct: false},
					},
					Points:           1,
					TimeLimitSeconds: 20,
				},
			},
		},
	}
}
