// Package redissync is a reference store.Sync implementation backed by
// Redis, using it as a pub/sub signal bus: FullSync publishes a
// "sync requested" event and waits for the corresponding "sync complete"
// acknowledgement, the way a real client nudges a background sync worker
// and waits for it to catch up before an authenticator ceremony proceeds.
package redissync

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	requestChannel = "fido2:sync:requested"
	ackChannel     = "fido2:sync:complete"
)

// Sync is a Redis-backed store.Sync.
type Sync struct {
	client  *redis.Client
	timeout time.Duration
}

// New wraps an existing *redis.Client. timeout bounds how long FullSync
// waits for an acknowledgement before giving up.
func New(client *redis.Client, timeout time.Duration) *Sync {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Sync{client: client, timeout: timeout}
}

// FullSync publishes a sync request and blocks until an acknowledgement
// arrives or timeout elapses. When force is true it always publishes;
// otherwise it first checks whether a sync has completed within the last
// minute and skips the round trip if so.
func (s *Sync) FullSync(ctx context.Context, force bool) error {
	if !force {
		recent, err := s.client.Get(ctx, ackChannel+":last").Result()
		if err == nil && recent != "" {
			return nil
		}
		if err != nil && err != redis.Nil {
			return errors.Wrap(err, "redissync: failed to check last sync time")
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sub := s.client.Subscribe(ctx, ackChannel)
	defer sub.Close()

	if err := s.client.Publish(ctx, requestChannel, "full").Err(); err != nil {
		return errors.Wrap(err, "redissync: failed to publish sync request")
	}

	ch := sub.Channel()
	select {
	case <-ch:
		if err := s.client.Set(ctx, ackChannel+":last", "1", time.Minute).Err(); err != nil {
			return errors.Wrap(err, "redissync: failed to record sync completion")
		}
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "redissync: timed out waiting for sync acknowledgement")
	}
}

// Acknowledge publishes a completion event, called by whatever background
// worker actually performs the sync.
func Acknowledge(ctx context.Context, client *redis.Client) error {
	return client.Publish(ctx, ackChannel, "done").Err()
}
