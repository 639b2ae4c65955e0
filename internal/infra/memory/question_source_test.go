package memory

import (
	"context"
	"testing"
	"time"

	"brocode-session-service/internal/domain"
)

func TestQuestionSourceCaches(t *testing.T) {
	loader := &countingLoader{
		QuestionLoader: NewStaticQuestionLoader(sampleQuestions()),
	}
	source := NewQuestionSource(loader, time.Minute)

	if _, err := source.ListQuestions(context.Background()); err != nil {
		t.Fatalf("list questions: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	list, err := source.ListQuestions(context.Background())
	if err != nil {
		t.Fatalf("list questions 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(list))
	}
}

type countingLoader struct {
	QuestionLoader
	calls int
}

func (l *countingLoader) LoadQuestions(ctx context.Context) ([]domain.Question, error) {
	l.calls++
	return l.QuestionLoader.LoadQuestions(ctx)
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "1", Code: "E01", Title: "Sum of two numbers", Difficulty: "easy", Points: 10},
		{ID: "2", Code: "M01", Title: "Longest palindrome", Difficulty: "medium", Points: 20},
	}
}
