package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ytfetch/internal/domain/download"

	"github.com/redis/go-redis/v9"
)

const maxUpdateAttempts = 16

// Options configure the Redis-backed job store.
type Options struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// Store keeps one JSON document per job under <prefix><id>.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(client, opts.KeyPrefix, opts.TTL), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string, ttl time.Duration) *Store {
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

func (s *Store) Create(ctx context.Context, job download.Job) error {
	payload, err := encodeJob(job)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.key(job.ID), payload, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis create job: %w", err)
	}
	if !ok {
		return download.ErrJobExists
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (download.Job, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return download.Job{}, download.ErrJobNotFound
	}
	if err != nil {
		return download.Job{}, fmt.Errorf("redis get job: %w", err)
	}
	return decodeJob(data)
}

// Update performs an optimistic WATCH/MULTI read-modify-write and retries
// when another writer touched the key in between.
func (s *Store) Update(ctx context.Context, id string, mutate func(*download.Job) error) (download.Job, error) {
	key := s.key(id)
	var result download.Job

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return download.ErrJobNotFound
		}
		if err != nil {
			return err
		}
		job, err := decodeJob(data)
		if err != nil {
			return err
		}
		result = job
		if job.State.IsTerminal() {
			return download.ErrJobFinalized
		}
		if err := mutate(&job); err != nil {
			return err
		}
		payload, err := encodeJob(job)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, redis.KeepTTL)
			return nil
		})
		if err == nil {
			result = job
		}
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return result, err
	}
	return result, fmt.Errorf("redis update job %s: too much contention", id)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("redis delete job: %w", err)
	}
	if n == 0 {
		return download.ErrJobNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]download.Job, error) {
	jobs := make([]download.Job, 0)
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis list jobs: %w", err)
		}
		job, err := decodeJob(data)
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan jobs: %w", err)
	}
	return jobs, nil
}

func encodeJob(job download.Job) ([]byte, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}
	return payload, nil
}

func decodeJob(data []byte) (download.Job, error) {
	var job download.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return download.Job{}, fmt.Errorf("decode job: %w", err)
	}
	if job.ID == "" {
		return download.Job{}, errors.New("decode job: missing id")
	}
	return job, nil
}
