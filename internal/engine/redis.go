package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/celerix-dev/celerix-attendance/pkg/schema"
)

// ErrTxConflict is returned when a Redis transaction kept losing its
// optimistic lock.
var ErrTxConflict = errors.New("redis: too many concurrent updates")

const defaultKeyPrefix = "attendance:"

// DialRedis connects to Redis and checks the connection with a PING.
func DialRedis(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// RedisStore keeps sessions in Redis, one JSON value per user plus a list of
// users in first-seen order. Mutations are WATCH/MULTI transactions, so the
// state check and the write are atomic across processes.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	maxRetries int
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:     client,
		prefix:     defaultKeyPrefix,
		maxRetries: 16,
	}
}

func (r *RedisStore) sessionsKey(userID string) string {
	return r.prefix + "sessions:" + userID
}

func (r *RedisStore) usersKey() string {
	return r.prefix + "users"
}

func (r *RedisStore) Get(ctx context.Context, userID string) ([]schema.Session, error) {
	return r.load(ctx, r.client, userID)
}

func (r *RedisStore) AllUsers(ctx context.Context) ([]schema.UserSessions, error) {
	ids, err := r.client.LRange(ctx, r.usersKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]schema.UserSessions, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.sessionsKey(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		sessions, err := decodeSessions(ids[i], []byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, schema.UserSessions{UserID: ids[i], Sessions: sessions})
	}
	return out, nil
}

func (r *RedisStore) AppendOpenSession(ctx context.Context, userID string, startedAt time.Time, display string) (schema.Session, error) {
	return r.mutate(ctx, userID, func(current []schema.Session) ([]schema.Session, schema.Session, error) {
		return appendOpen(current, startedAt, display)
	})
}

func (r *RedisStore) CloseLastSession(ctx context.Context, userID string, endedAt time.Time, display string) (schema.Session, error) {
	return r.mutate(ctx, userID, func(current []schema.Session) ([]schema.Session, schema.Session, error) {
		return closeLast(current, endedAt, display)
	})
}

type transition func(current []schema.Session) ([]schema.Session, schema.Session, error)

func (r *RedisStore) mutate(ctx context.Context, userID string, fn transition) (schema.Session, error) {
	key := r.sessionsKey(userID)

	var result schema.Session
	txf := func(tx *redis.Tx) error {
		seen, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		current, err := r.load(ctx, tx, userID)
		if err != nil {
			return err
		}
		next, s, err := fn(current)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("sessions: failed to marshal: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			if seen == 0 {
				pipe.RPush(ctx, r.usersKey(), userID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = s
		return nil
	}

	for i := 0; i < r.maxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return schema.Session{}, err
		}
		return result, nil
	}
	return schema.Session{}, ErrTxConflict
}

func (r *RedisStore) load(ctx context.Context, c redis.Cmdable, userID string) ([]schema.Session, error) {
	b, err := c.Get(ctx, r.sessionsKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []schema.Session{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeSessions(userID, b)
}

func decodeSessions(userID string, b []byte) ([]schema.Session, error) {
	var sessions []schema.Session
	if err := json.Unmarshal(b, &sessions); err != nil {
		return nil, fmt.Errorf("%w: user %s: %v", ErrCorruptState, userID, err)
	}
	if err := CheckSessions(sessions); err != nil {
		return nil, fmt.Errorf("%w: user %s: %v", ErrCorruptState, userID, err)
	}
	return sessions, nil
}

// RedisDirectory keeps display names in a single Redis hash.
type RedisDirectory struct {
	client *redis.Client
	key    string
}

// NewRedisDirectory creates a Redis-backed user directory.
func NewRedisDirectory(client *redis.Client) *RedisDirectory {
	return &RedisDirectory{client: client, key: defaultKeyPrefix + "names"}
}

func (d *RedisDirectory) Name(ctx context.Context, userID string) (string, bool, error) {
	name, err := d.client.HGet(ctx, d.key, userID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return name, true, nil
}

// Remember uses HSETNX, so a name that is already stored is kept.
func (d *RedisDirectory) Remember(ctx context.Context, userID, name string) error {
	return d.client.HSetNX(ctx, d.key, userID, name).Err()
}

func (d *RedisDirectory) Names(ctx context.Context) (map[string]string, error) {
	return d.client.HGetAll(ctx, d.key).Result()
}
