package redis

import (
	"context"
	"fmt"
	"time"

	"staybook/internal/models"

	"github.com/go-redis/redis/v8"
)

// Redis holds one SetNX lock per night of a pending booking. The lock is a
// fast cross-process fence in front of the serializable transaction; it
// expires on its own so an abandoned checkout never wedges the calendar.
type Redis struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{Client: client, TTL: ttl}
}

func nightKey(night models.Date) string {
	return "night_lock:" + night.String()
}

// LockNight locks a single night for a reservation.
func (r *Redis) LockNight(night models.Date, reservationID string) (bool, error) {
	return r.Client.SetNX(context.Background(), nightKey(night), reservationID, r.TTL).Result()
}

// UnlockNight releases a night only if this reservation holds it.
func (r *Redis) UnlockNight(night models.Date, reservationID string) error {
	ctx := context.Background()
	key := nightKey(night)
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already unlocked
	}
	if err != nil {
		return err
	}
	if val == reservationID {
		_, err := r.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}

// LockNights locks every night of a stay, rolling back on the first night
// already held by another booking.
func (r *Redis) LockNights(nights []models.Date, reservationID string) (bool, error) {
	locked := []models.Date{}
	for _, night := range nights {
		ok, err := r.LockNight(night, reservationID)
		if err != nil {
			for _, l := range locked {
				_ = r.UnlockNight(l, reservationID)
			}
			return false, err
		}
		if !ok {
			for _, l := range locked {
				_ = r.UnlockNight(l, reservationID)
			}
			return false, nil
		}
		locked = append(locked, night)
	}
	return true, nil
}

// UnlockNights releases every night of a stay.
func (r *Redis) UnlockNights(nights []models.Date, reservationID string) error {
	var firstErr error
	for _, night := range nights {
		if err := r.UnlockNight(night, reservationID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// AcquireSourceLock serializes sync cycles per calendar source. Different
// sources may sync in parallel; two sweeps of the same source may not.
func (r *Redis) AcquireSourceLock(sourceID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("calendar_sync:%s", sourceID)
	return r.Client.SetNX(context.Background(), key, "1", ttl).Result()
}

// ReleaseSourceLock drops a sync lock.
func (r *Redis) ReleaseSourceLock(sourceID string) error {
	key := fmt.Sprintf("calendar_sync:%s", sourceID)
	_, err := r.Client.Del(context.Background(), key).Result()
	return err
}
