package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exam-runner/internal/config"
	"github.com/stemsi/exam-runner/internal/model"
)

// RedisStore persists session state in Redis under the config.CacheKey namespace.
// Answers live in a hash (question id -> answer) like the autosave buffer.
type RedisStore struct {
	rdb        *redis.Client
	sessionTTL time.Duration
	reviewTTL  time.Duration
}

// NewRedisStore creates a RedisStore. sessionTTL expires the keys of a
// session nobody resumes; every countdown write pushes it back. reviewTTL
// bounds how long a validation response stays available to the review page.
// Zero keeps keys forever.
func NewRedisStore(rdb *redis.Client, sessionTTL, reviewTTL time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, sessionTTL: sessionTTL, reviewTTL: reviewTTL}
}

func (s *RedisStore) Load(ctx context.Context, userID, examID int) (*model.PersistedSession, error) {
	keys := config.CacheKey

	pipe := s.rdb.Pipeline()
	metaCmd := pipe.Get(ctx, keys.SessionMetaKey(userID, examID))
	remCmd := pipe.Get(ctx, keys.RemainingKey(userID, examID))
	curCmd := pipe.Get(ctx, keys.CursorKey(userID, examID))
	ansCmd := pipe.HGetAll(ctx, keys.AnswersKey(userID, examID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load session: %w", err)
	}

	remStr, err := remCmd.Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("get remaining: %w", err)
	}

	ps := &model.PersistedSession{Answers: map[int]string{}}

	ps.RemainingSeconds, err = strconv.Atoi(remStr)
	if err != nil {
		return nil, fmt.Errorf("invalid remaining format in redis: %w", err)
	}

	if raw, err := metaCmd.Result(); err == nil {
		if err := json.Unmarshal([]byte(raw), &ps.Meta); err != nil {
			return nil, fmt.Errorf("decode meta: %w", err)
		}
	}

	if raw, err := curCmd.Result(); err == nil {
		// A corrupt cursor only costs the user their position.
		ps.CurrentIndex, _ = strconv.Atoi(raw)
	}

	answers, err := ansCmd.Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get answers: %w", err)
	}
	for qid, ans := range answers {
		id, err := strconv.Atoi(qid)
		if err != nil {
			continue
		}
		ps.Answers[id] = ans
	}

	return ps, nil
}

func (s *RedisStore) SaveMeta(ctx context.Context, userID, examID int, meta model.SessionMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	return s.rdb.Set(ctx, config.CacheKey.SessionMetaKey(userID, examID), raw, s.sessionTTL).Err()
}

func (s *RedisStore) SaveRemaining(ctx context.Context, userID, examID, seconds int) error {
	keys := config.CacheKey
	if s.sessionTTL <= 0 {
		return s.rdb.Set(ctx, keys.RemainingKey(userID, examID), seconds, 0).Err()
	}

	// The countdown is written every tick, so it also keeps the rest of the
	// session alive.
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, keys.RemainingKey(userID, examID), seconds, s.sessionTTL)
		for _, key := range keys.SessionKeys(userID, examID) {
			if key != keys.RemainingKey(userID, examID) {
				pipe.Expire(ctx, key, s.sessionTTL)
			}
		}
		return nil
	})
	return err
}

func (s *RedisStore) SaveCursor(ctx context.Context, userID, examID, index int) error {
	return s.rdb.Set(ctx, config.CacheKey.CursorKey(userID, examID), index, s.sessionTTL).Err()
}

func (s *RedisStore) SaveAnswers(ctx context.Context, userID, examID int, answers map[int]string) error {
	key := config.CacheKey.AnswersKey(userID, examID)

	fields := make(map[string]interface{}, len(answers))
	for qid, ans := range answers {
		fields[strconv.Itoa(qid)] = ans
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(fields) > 0 {
			pipe.HSet(ctx, key, fields)
			if s.sessionTTL > 0 {
				pipe.Expire(ctx, key, s.sessionTTL)
			}
		}
		return nil
	})
	return err
}

func (s *RedisStore) SavePaper(ctx context.Context, userID, examID int, paper *model.ExamPaper) error {
	raw, err := json.Marshal(paper)
	if err != nil {
		return fmt.Errorf("encode paper: %w", err)
	}
	return s.rdb.Set(ctx, config.CacheKey.PaperKey(userID, examID), raw, s.sessionTTL).Err()
}

func (s *RedisStore) LoadPaper(ctx context.Context, userID, examID int) (*model.ExamPaper, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.PaperKey(userID, examID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("get paper: %w", err)
	}

	var paper model.ExamPaper
	if err := json.Unmarshal(raw, &paper); err != nil {
		return nil, fmt.Errorf("decode paper: %w", err)
	}
	return &paper, nil
}

func (s *RedisStore) SaveReview(ctx context.Context, userID, examID int, result *model.ValidationResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode review: %w", err)
	}
	return s.rdb.Set(ctx, config.CacheKey.ReviewKey(userID, examID), raw, s.reviewTTL).Err()
}

func (s *RedisStore) LoadReview(ctx context.Context, userID, examID int) (*model.ValidationResult, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.ReviewKey(userID, examID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}

	var result model.ValidationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode review: %w", err)
	}
	return &result, nil
}

func (s *RedisStore) Clear(ctx context.Context, userID, examID int) error {
	return s.rdb.Del(ctx, config.CacheKey.SessionKeys(userID, examID)...).Err()
}
