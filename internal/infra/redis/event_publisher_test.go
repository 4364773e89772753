package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"quiz-battle-service/internal/domain"
	miniredis "github.com/alicebob/miniredis/v2"
)

func TestEventPublisherPublishesOnChannel(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	publisher := NewEventPublisher(client, "battle:events")

	sub := client.Subscribe(context.Background(), "battle:events")
	defer sub.Close()
	if _, err := sub.Receive(context.Background()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	winner := "u1"
	event := domain.Event{
		Type:    domain.EventMatchCompleted,
		MatchID: "m1",
		QuizID:  "quiz-1",
		Participants: []domain.EventParticipant{
			{ID: "u1", Score: 3},
			{ID: "u2", Score: 0},
		},
		WinnerID:   &winner,
		OccurredAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := publisher.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var got domain.Event
		if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if got.Type != domain.EventMatchCompleted || got.MatchID != "m1" {
			t.Fatalf("unexpected event: %+v", got)
		}
		if got.WinnerID == nil || *got.WinnerID != "u1" {
			t.Fatalf("expected winner u1, got %+v", got.WinnerID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}
