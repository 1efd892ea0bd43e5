// Package redis implements the advisory profile mirror kept in the
// low-latency key/value store. It is the fallback write target when the
// primary document store is unreachable; the copy is last-writer-wins
// and reconciled opportunistically by the next successful primary write.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/RUGU2211/beachguardians-verify/internal/profile"
	"github.com/RUGU2211/beachguardians-verify/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Redis implements a Redis-backed profile mirror.
type Redis struct {
	client *redis.Client
	conf   Conf
}

// Conf contains Redis configuration fields.
type Conf struct {
	Host      string        `json:"host"`
	Port      int           `json:"port"`
	Username  string        `json:"username"`
	Password  string        `json:"password"`
	DB        int           `json:"db"`
	Timeout   time.Duration `json:"timeout"`
	KeyPrefix string        `json:"key_prefix"`
}

// New returns a Redis profile mirror.
func New(c Conf) *Redis {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "VERIFY"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", c.Host, c.Port),
		Username:     c.Username,
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  c.Timeout,
		WriteTimeout: c.Timeout,
		ReadTimeout:  c.Timeout,
	})

	return &Redis{
		conf:   c,
		client: client,
	}
}

// Ping checks if the Redis server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Merge writes the given fields into the profile hash, leaving other
// fields untouched.
func (r *Redis) Merge(ctx context.Context, userID string, updates map[string]interface{}) error {
	args := make([]interface{}, 0, len(updates)*2)
	for k, v := range updates {
		args = append(args, k, fmt.Sprintf("%v", v))
	}
	return r.client.HMSet(ctx, r.makeKey(userID), args...).Err()
}

// Get retrieves the mirrored profile copy.
func (r *Redis) Get(ctx context.Context, userID string) (models.Profile, error) {
	out := models.Profile{UserID: userID}

	res, err := r.client.HGetAll(ctx, r.makeKey(userID)).Result()
	if err != nil {
		return out, err
	}
	if len(res) == 0 {
		return out, profile.ErrNotExist
	}

	out.Email = res["email"]
	out.Name = res["name"]
	out.Role = res["role"]
	out.IsVerified, _ = strconv.ParseBool(res["is_verified"])
	out.IsAdminVerified, _ = strconv.ParseBool(res["is_admin_verified"])
	return out, nil
}

// makeKey makes the Redis key for the profile mirror.
func (r *Redis) makeKey(userID string) string {
	return fmt.Sprintf("%s:profile:%s", r.conf.KeyPrefix, userID)
}
