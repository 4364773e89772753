package redis

import (
	"context"
	"testing"
	"time"

	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestQuizRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		QuizLoader: memory.NewStaticQuizLoader(map[string]domain.Quiz{
			"quiz-1": battleQuiz(),
		}),
	}
	repo := NewQuizRepository(client, loader, time.Minute)

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("battle:quiz:quiz-1") {
		t.Fatal("expected cached quiz document in redis")
	}

	// Second read comes from the cached JSON; the document must survive the
	// round trip with everything the engine needs to run a battle.
	quiz, err := repo.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get quiz from cache: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if quiz.Questions[0].Kind != domain.KindSingleChoice || quiz.Questions[0].TimeLimitSeconds != 20 {
		t.Fatalf("cached question lost kind or time limit: %+v", quiz.Questions[0])
	}
	if quiz.Questions[1].Answer != "len" || quiz.Questions[1].Points != 2 {
		t.Fatalf("cached short answer lost answer key or points: %+v", quiz.Questions[1])
	}
}

type countingLoader struct {
	memory.QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls++
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func battleQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{
			{
				ID:     "q1",
				Prompt: "Which planet is closest to the sun?",
				Kind:   domain.KindSingleChoice,
				Options: []domain.Option{
					{ID: "o1", Text: "Venus", Correct: false},
					{ID: "o2", Text: "Mercury", Correct: true},
				},
				Points:           1,
				TimeLimitSeconds: 20,
			},
			{
				ID:               "q2",
				Prompt:           "Name the Go builtin that returns a slice's length.",
				Kind:             domain.KindShortAnswer,
				Answer:           "len",
				Points:           2,
				TimeLimitSeconds: 15,
			},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
