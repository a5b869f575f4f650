package flowstate

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/jrsteele09/go-session-gate/internal/errors"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "flow:"

// RedisRepo shares flow states between instances. Expiry is left to Redis.
type RedisRepo struct {
	client    redis.UniversalClient
	keyPrefix string
}

var _ Repo = (*RedisRepo)(nil)

func NewRedisRepo(client redis.UniversalClient, keyPrefix string) *RedisRepo {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisRepo{client: client, keyPrefix: keyPrefix}
}

// NewRedisRepoFromURL connects with a redis:// or rediss:// URL and checks
// the connection.
func NewRedisRepoFromURL(ctx context.Context, redisURL string) (*RedisRepo, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, &apperrors.ConfigurationError{Setting: "REDIS_URL", Reason: err.Error()}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "[flowstate NewRedisRepoFromURL] ping")
	}
	return NewRedisRepo(client, DefaultKeyPrefix), nil
}

func (r *RedisRepo) Save(ctx context.Context, id string, state *FlowState, ttl time.Duration) error {
	if id == "" {
		return errors.New("[flowstate Save] id cannot be empty")
	}
	if state == nil {
		return errors.New("[flowstate Save] state cannot be nil")
	}
	if ttl <= 0 {
		return errors.Errorf("[flowstate Save] invalid ttl %s", ttl)
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "[flowstate Save] marshal")
	}
	if err := r.client.Set(ctx, r.key(id), payload, ttl).Err(); err != nil {
		return errors.Wrap(err, "[flowstate Save] persist")
	}
	return nil
}

func (r *RedisRepo) Take(ctx context.Context, id string) (*FlowState, error) {
	payload, err := r.client.GetDel(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.Wrapf(apperrors.ErrFlowStateNotFound, "[flowstate Take] %q", id)
		}
		return nil, errors.Wrap(err, "[flowstate Take] load")
	}

	var state FlowState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "[flowstate Take] decode")
	}
	return &state, nil
}

func (r *RedisRepo) Close() error {
	return r.client.Close()
}

func (r *RedisRepo) key(id string) string {
	return r.keyPrefix + id
}
