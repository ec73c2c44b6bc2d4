package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"helpdesk-bot/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisSessions stores sessions and submitted forms as JSON values. A
// session key is replaced whole on every write; Complete writes the form
// and deletes the session in one MULTI/EXEC.
type RedisSessions struct {
	client *redis.Client
	ttl    time.Duration
	now    clock
}

// NewRedisSessions creates the store. ttl expires abandoned sessions; zero
// keeps them until dropped.
func NewRedisSessions(client *redis.Client, ttl time.Duration) *RedisSessions {
	return &RedisSessions{client: client, ttl: ttl, now: systemClock}
}

func (r *RedisSessions) Begin(ctx context.Context, applicantID int64, handle string, step models.Step) (*models.ApplicantSession, error) {
	s := &models.ApplicantSession{
		ApplicantID: applicantID,
		Handle:      models.NormalizeHandle(handle),
		Step:        step,
		Fields:      map[models.Field]string{},
		UpdatedAt:   r.now(),
	}
	if err := r.put(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *RedisSessions) Advance(ctx context.Context, applicantID int64, step models.Step, fields map[models.Field]string) error {
	s, err := r.Get(ctx, applicantID)
	if err != nil {
		return err
	}
	s.Step = step
	for k, v := range fields {
		s.Fields[k] = v
	}
	s.UpdatedAt = r.now()
	return r.put(ctx, s)
}

func (r *RedisSessions) Get(ctx context.Context, applicantID int64) (*models.ApplicantSession, error) {
	var s models.ApplicantSession
	if err := getJSON(ctx, r.client, sessionKey(applicantID), &s); err != nil {
		return nil, err
	}
	if s.Fields == nil {
		s.Fields = map[models.Field]string{}
	}
	return &s, nil
}

func (r *RedisSessions) Complete(ctx context.Context, applicantID int64) (*models.SubmittedForm, error) {
	s, err := r.Get(ctx, applicantID)
	if err != nil {
		return nil, err
	}
	form := models.FormFromSession(s, r.now())
	data, err := json.Marshal(form)
	if err != nil {
		return nil, fmt.Errorf("marshal form: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, formKey(applicantID), data, 0)
		pipe.Del(ctx, sessionKey(applicantID))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("complete session %d: %w", applicantID, err)
	}
	return form, nil
}

func (r *RedisSessions) GetForm(ctx context.Context, applicantID int64) (*models.SubmittedForm, error) {
	var f models.SubmittedForm
	if err := getJSON(ctx, r.client, formKey(applicantID), &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *RedisSessions) Drop(ctx context.Context, applicantID int64) error {
	if err := r.client.Del(ctx, sessionKey(applicantID)).Err(); err != nil {
		return fmt.Errorf("drop session %d: %w", applicantID, err)
	}
	return nil
}

func (r *RedisSessions) put(ctx context.Context, s *models.ApplicantSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(s.ApplicantID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save session %d: %w", s.ApplicantID, err)
	}
	return nil
}

// RedisEngagements keeps one engagement per applicant id.
type RedisEngagements struct {
	client *redis.Client
	now    clock
}

func NewRedisEngagements(client *redis.Client) *RedisEngagements {
	return &RedisEngagements{client: client, now: systemClock}
}

func (r *RedisEngagements) Save(ctx context.Context, e *models.Engagement) error {
	rec := *e
	rec.ResponderHandle = models.NormalizeHandle(rec.ResponderHandle)
	if rec.AcceptedAt.IsZero() {
		rec.AcceptedAt = r.now()
	}
	rec.UpdatedAt = r.now()
	return r.put(ctx, &rec)
}

func (r *RedisEngagements) Get(ctx context.Context, applicantID int64) (*models.Engagement, error) {
	var e models.Engagement
	if err := getJSON(ctx, r.client, engagementKey(applicantID), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *RedisEngagements) UpdateState(ctx context.Context, applicantID int64, state models.EngagementState) error {
	e, err := r.Get(ctx, applicantID)
	if err != nil {
		return err
	}
	e.State = state
	e.UpdatedAt = r.now()
	return r.put(ctx, e)
}

func (r *RedisEngagements) put(ctx context.Context, e *models.Engagement) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal engagement: %w", err)
	}
	if err := r.client.Set(ctx, engagementKey(e.ApplicantID), data, 0).Err(); err != nil {
		return fmt.Errorf("save engagement %d: %w", e.ApplicantID, err)
	}
	return nil
}

// RedisDirectory maps handle keys to chat ids.
type RedisDirectory struct {
	client *redis.Client
}

func NewRedisDirectory(client *redis.Client) *RedisDirectory {
	return &RedisDirectory{client: client}
}

func (r *RedisDirectory) Remember(ctx context.Context, handle string, chatID int64) error {
	key := models.HandleKey(handle)
	if key == "" {
		return nil
	}
	if err := r.client.Set(ctx, handleKey(key), chatID, 0).Err(); err != nil {
		return fmt.Errorf("remember handle %q: %w", key, err)
	}
	return nil
}

func (r *RedisDirectory) Resolve(ctx context.Context, handle string) (int64, error) {
	val, err := r.client.Get(ctx, handleKey(models.HandleKey(handle))).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("resolve handle %q: %w", handle, err)
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("resolve handle %q: bad chat id %q", handle, val)
	}
	return id, nil
}

func getJSON(ctx context.Context, client *redis.Client, key string, dst interface{}) error {
	val, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(val, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
