package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"brocode-session-service/internal/domain"
	"brocode-session-service/internal/infra/memory"
)

const questionsKey = "brocode:questions:public"

// QuestionSource caches the public question list in Redis as a JSON blob and
// falls back to a loader on cache miss, so every session start does not hit
// the backing store.
type QuestionSource struct {
	client *redis.Client
	loader memory.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionSource(client *redis.Client, loader memory.QuestionLoader, ttl time.Duration) *QuestionSource {
	return &QuestionSource{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *QuestionSource) ListQuestions(ctx context.Context) ([]domain.Question, error) {
	if list, ok := s.fromCache(ctx); ok {
		return list, nil
	}

	result, err, _ := s.sf.Do(questionsKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if list, ok := s.fromCache(ctx); ok {
			return list, nil
		}

		list, err := s.loader.LoadQuestions(ctx)
		if err != nil {
			return nil, err
		}

		if data, err := json.Marshal(list); err == nil {
			_ = s.client.Set(ctx, questionsKey, data, s.ttlWithJitter()).Err()
		}
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (s *QuestionSource) fromCache(ctx context.Context) ([]domain.Question, bool) {
	raw, err := s.client.Get(ctx, questionsKey).Bytes()
	if err != nil || len(raw) == 0 {
		return nil, false
	}
	var list []domain.Question
	if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
		return nil, false
	}
	return list, true
}

func (s *QuestionSource) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	jitterMax := int64(s.ttl) / 10
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}
