// redis.go
package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"image.gen/internal/models"
)

var _ Store = (*RedisStore)(nil)

const maxTxRetries = 3

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(options *redis.Options) (*RedisStore, error) {
	client := redis.NewClient(options)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Save(ctx context.Context, session *models.Session) error {
	data, err := encode(session)
	if err != nil {
		return err
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return ErrExpired
	}

	return r.client.Set(ctx, sessionKey(session.ID), data, ttl).Err()
}

func (r *RedisStore) Get(ctx context.Context, id string) (*models.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	session, err := decode(data)
	if err != nil {
		return nil, err
	}

	if session.Expired(time.Now()) {
		_ = r.Delete(ctx, id)
		return nil, ErrExpired
	}

	return session, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, sessionKey(id)).Err()
}

func (r *RedisStore) SetAuthenticated(ctx context.Context, id string, ok bool) error {
	key := sessionKey(id)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}

		session, err := decode(data)
		if err != nil {
			return err
		}

		if session.Expired(time.Now()) {
			return ErrExpired
		}

		session.Authenticated = ok

		newData, err := encode(session)
		if err != nil {
			return err
		}

		ttl := tx.TTL(ctx, key).Val()
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if ttl > 0 {
				pipe.Set(ctx, key, newData, ttl)
			} else {
				pipe.Set(ctx, key, newData, time.Until(session.ExpiresAt))
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrExpired) {
			_ = r.Delete(ctx, id)
		}
		return err
	}

	return redis.TxFailedErr
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Helpers

func sessionKey(id string) string {
	return "session:" + id
}

func encode(session *models.Session) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(session); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte) (*models.Session, error) {
	var session models.Session
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&session); err != nil {
		return nil, err
	}
	return &session, nil
}
