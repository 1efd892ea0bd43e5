package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/RUGU2211/beachguardians-verify/internal/store"
	"github.com/RUGU2211/beachguardians-verify/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Redis implements a Redis Store.
type Redis struct {
	client *redis.Client
	conf   Conf
}

var (
	ctx = context.Background()
)

// retention is how long a challenge key lingers past its expiry. The
// key must outlive the expiry so that an expired submission can be
// distinguished from an absent one; the Redis TTL is only garbage
// collection for challenges that are never submitted again.
const retention = time.Hour

// Conf contains Redis configuration fields.
type Conf struct {
	Host      string        `json:"host"`
	Port      int           `json:"port"`
	Username  string        `json:"username"`
	Password  string        `json:"password"`
	DB        int           `json:"db"`
	MaxActive int           `json:"max_active"`
	MaxIdle   int           `json:"max_idle"`
	Timeout   time.Duration `json:"timeout"`
	KeyPrefix string        `json:"key_prefix"`
}

// New returns a Redis implementation of store.
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
func (r *Redis) Ping() error {
	return r.client.Ping(ctx).Err()
}

// Set writes a challenge against an ID, overwriting any prior challenge
// under the same key.
func (r *Redis) Set(namespace, id string, c models.Challenge) error {
	key := r.makeKey(namespace, id)

	// Create a transaction to execute commands atomically.
	txf := func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HMSet(ctx, key,
				"otp", c.OTP,
				"to", c.To,
				"name", c.Name,
				"created_at", c.CreatedAt.UnixMilli(),
				"expires_at", c.ExpiresAt.UnixMilli())
			pipe.PExpire(ctx, key, time.Until(c.ExpiresAt)+retention)
			return nil
		})
		return err
	}

	// Watch the key for changes. If the key is modified externally between
	// the time of watch and the transaction execution, the transaction is
	// aborted.
	return r.client.Watch(ctx, txf, key)
}

// Get retrieves the challenge saved against a given ID.
func (r *Redis) Get(namespace, id string) (models.Challenge, error) {
	var (
		key = r.makeKey(namespace, id)
		out = models.Challenge{
			Namespace: namespace,
			ID:        id,
		}
	)

	res, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return out, err
	}

	// Doesn't exist?
	if res["otp"] == "" {
		return out, store.ErrNotExist
	}

	out.OTP = res["otp"]
	out.To = res["to"]
	out.Name = res["name"]
	out.CreatedAt = parseMilli(res["created_at"])
	out.ExpiresAt = parseMilli(res["expires_at"])
	return out, nil
}

// Delete deletes the challenge saved against a given ID.
func (r *Redis) Delete(namespace, id string) error {
	if err := r.client.Del(ctx, r.makeKey(namespace, id)).Err(); err != nil {
		return err
	}
	return nil
}

// DeleteIfMatch deletes the challenge only if its stored code still
// equals otp. The WATCH guard ensures a concurrent re-issuance between
// the caller's read and this delete doesn't consume the newer
// challenge. In that case ErrNotExist is returned and the subject has
// to use the freshly issued code.
func (r *Redis) DeleteIfMatch(namespace, id, otp string) error {
	key := r.makeKey(namespace, id)

	txf := func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, key, "otp").Result()
		if err == redis.Nil {
			return store.ErrNotExist
		} else if err != nil {
			return err
		}
		if cur != otp {
			return store.ErrNotExist
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}

	err := r.client.Watch(ctx, txf, key)
	if err == redis.TxFailedErr {
		// The key changed under the watch: a re-issuance won the race.
		return store.ErrNotExist
	}
	return err
}

// makeKey makes the Redis key for the challenge.
func (r *Redis) makeKey(namespace, id string) string {
	return fmt.Sprintf("%s:%s:%s", r.conf.KeyPrefix, namespace, id)
}

func parseMilli(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
