package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fotofoto/filmreturn/internal/metrics"

	"github.com/go-redis/redis/v7"
	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const defaultKeyPrefix = "film_return"

// Deletes the lock only while it still holds the caller's token.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSessionRepo stores JSON-encoded sessions with a TTL matching their
// expiry, so several service instances can share them.
type RedisSessionRepo struct {
	RedisClient *redis.Client
	Clock       clock.Clock
	KeyPrefix   string
	LockTTL     time.Duration
}

func MakeRedisSessionRepo(client *redis.Client, clk clock.Clock, lockTTL time.Duration) *RedisSessionRepo {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &RedisSessionRepo{RedisClient: client, Clock: clk, KeyPrefix: defaultKeyPrefix, LockTTL: lockTTL}
}

func (r *RedisSessionRepo) sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", r.KeyPrefix, id)
}

func (r *RedisSessionRepo) lockKey(id string) string {
	return fmt.Sprintf("%s:session:%s:lock", r.KeyPrefix, id)
}

func (r *RedisSessionRepo) WriteSession(ctx context.Context, s Session) error {
	defer metrics.BenchmarkMethod(time.Now(), "session.write", nil)
	ttl := s.ExpiresAt.Sub(r.Clock.Now())
	if ttl <= 0 {
		return r.DeleteSession(ctx, s.ID)
	}
	b, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encode session")
	}
	return errors.Wrap(r.RedisClient.WithContext(ctx).Set(r.sessionKey(s.ID), b, ttl).Err(), "write session")
}

func (r *RedisSessionRepo) FetchSessionByID(ctx context.Context, id string) (Session, error) {
	defer metrics.BenchmarkMethod(time.Now(), "session.fetch", nil)
	b, err := r.RedisClient.WithContext(ctx).Get(r.sessionKey(id)).Bytes()
	if err == redis.Nil {
		return Session{}, notFound(id)
	}
	if err != nil {
		return Session{}, errors.Wrap(err, "fetch session")
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return Session{}, errors.Wrap(err, "decode session")
	}
	return s, nil
}

func (r *RedisSessionRepo) DeleteSession(ctx context.Context, id string) error {
	return errors.Wrap(
		r.RedisClient.WithContext(ctx).Del(r.sessionKey(id), r.lockKey(id)).Err(), "delete session",
	)
}

func (r *RedisSessionRepo) Lock(ctx context.Context, id string) (func(), error) {
	token := uuid.NewString()
	key := r.lockKey(id)
	ok, err := r.RedisClient.WithContext(ctx).SetNX(key, token, r.LockTTL).Result()
	if err != nil {
		return nil, errors.Wrap(err, "lock session")
	}
	if !ok {
		return nil, inFlight()
	}
	return func() {
		if err := releaseLockScript.Run(r.RedisClient, []string{key}, token).Err(); err != nil && err != redis.Nil {
			log.Warn().Err(err).Str("session_id", id).Msg("failed releasing session lock => lease will expire")
		}
	}, nil
}

func MakeRedisClient(redisAddr string) (*redis.Client, error) {
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	_, pingErr := redisClient.Ping().Result()
	return redisClient, pingErr
}
