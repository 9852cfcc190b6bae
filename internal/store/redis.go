package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sentineleye/pkg/models"
	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 10

// RedisStore keeps the whole history as one JSON array under a fixed key and
// broadcasts changes on a pub/sub channel, so every process pointed at the
// same Redis sees one history and one notification stream.
type RedisStore struct {
	client  *redis.Client
	key     string
	channel string
	opts    Options
	origin  string
	notify  *notifier
}

// NewRedisStore creates a RedisStore from a Redis URL.
func NewRedisStore(redisURL, key string, opts Options) (*RedisStore, error) {
	ropts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return &RedisStore{
		client:  redis.NewClient(ropts),
		key:     key,
		channel: key + ":events",
		opts:    opts.withDefaults(),
		origin:  uuid.NewString(),
		notify:  newNotifier(),
	}, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Upsert runs an optimistic WATCH/MULTI transaction on the history key. When
// another writer changes the key first the transaction is retried against the
// fresh value.
func (s *RedisStore) Upsert(ctx context.Context, patch models.JobPatch) (models.Job, error) {
	if patch.ID == "" {
		return models.Job{}, ErrInvalidJobID
	}

	var merged models.Job
	txf := func(tx *redis.Tx) error {
		history, err := s.read(ctx, tx)
		if err != nil {
			return err
		}

		history, merged = upsertInto(history, patch, s.opts.Now(), s.opts.Cap)
		payload, err := json.Marshal(history)
		if err != nil {
			return fmt.Errorf("encode job history: %w", err)
		}
		ev, err := json.Marshal(models.ChangeEvent{
			Kind:   models.ChangeUpsert,
			JobID:  merged.ID,
			Origin: s.origin,
			At:     merged.UpdatedAt,
		})
		if err != nil {
			return fmt.Errorf("encode change event: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, payload, 0)
			pipe.Publish(ctx, s.channel, ev)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = s.client.Watch(ctx, txf, s.key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("upsert job %s: %w", patch.ID, err)
	}

	s.notify.publish(models.ChangeEvent{
		Kind:   models.ChangeUpsert,
		JobID:  merged.ID,
		Origin: s.origin,
		At:     merged.UpdatedAt,
	})
	return merged, nil
}

func (s *RedisStore) Get(ctx context.Context, jobID string) (models.Job, bool, error) {
	history, err := s.List(ctx)
	if err != nil {
		return models.Job{}, false, err
	}
	for _, j := range history {
		if j.ID == jobID {
			return j, true, nil
		}
	}
	return models.Job{}, false, nil
}

func (s *RedisStore) List(ctx context.Context) ([]models.Job, error) {
	history, err := s.read(ctx, s.client)
	if err != nil {
		return nil, err
	}
	SortNewest(history)
	return history, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	ev := models.ChangeEvent{Kind: models.ChangeClear, Origin: s.origin, At: s.opts.Now().UTC()}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		pipe.Publish(ctx, s.channel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear job history: %w", err)
	}

	s.notify.publish(ev)
	return nil
}

func (s *RedisStore) Subscribe(fn func(models.ChangeEvent)) func() {
	return s.notify.subscribe(fn)
}

// Listen subscribes to the change channel and relays events written by other
// processes to local subscribers. It returns when ctx is done.
func (s *RedisStore) Listen(ctx context.Context) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev models.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				slog.WarnContext(ctx, "dropping malformed change event", "channel", s.channel, "error", err)
				continue
			}
			if ev.Origin == s.origin {
				continue
			}
			s.notify.publish(ev)
		}
	}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) read(ctx context.Context, c getter) ([]models.Job, error) {
	raw, err := c.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read job history: %w", err)
	}

	var history []models.Job
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("decode job history: %w", err)
	}
	return history, nil
}

var (
	_ Store    = (*RedisStore)(nil)
	_ Listener = (*RedisStore)(nil)
)
