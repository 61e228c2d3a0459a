package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"campuspresence/internal/models"
)

// redisStore implements Store on Redis, for deployments that already run one
// for session state
type redisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed preference store
func NewRedisStore(addr string) Store {
	return &redisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func (s *redisStore) Preferences(ctx context.Context) (models.SharingPreference, error) {
	var p models.SharingPreference
	found, err := s.get(ctx, keySharing, &p)
	if err != nil || !found {
		return models.SharingPreference{}, err
	}
	return p, nil
}

func (s *redisStore) SetPreferences(ctx context.Context, p models.SharingPreference) error {
	return s.put(ctx, keySharing, p)
}

func (s *redisStore) Role(ctx context.Context) (models.Role, error) {
	var role models.Role
	found, err := s.get(ctx, keyRole, &role)
	if err != nil {
		return models.RoleObserver, err
	}
	if !found || !role.IsValid() {
		return models.RoleObserver, nil
	}
	return role, nil
}

func (s *redisStore) SetRole(ctx context.Context, role models.Role) error {
	return s.put(ctx, keyRole, role)
}

func (s *redisStore) Publishing(ctx context.Context) (bool, error) {
	var on bool
	found, err := s.get(ctx, keyPublishing, &on)
	if err != nil || !found {
		return false, err
	}
	return on, nil
}

func (s *redisStore) SetPublishing(ctx context.Context, on bool) error {
	return s.put(ctx, keyPublishing, on)
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

func (s *redisStore) get(ctx context.Context, key string, out any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (s *redisStore) put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}
