/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package leadership elects one scheduler instance through a Redis lease.
//
// The lease is a single key holding the leader's instance ID with a TTL.
// Followers try to create it with SET NX; the leader extends it on a
// shorter cadence and deletes it on shutdown. Only the holder may extend
// or delete the key.
package leadership

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/belfry/internal/telemetry"
)

const (
	defaultElectionKey     = "belfry:leader:scheduler"
	defaultLeaseDuration   = 15 * time.Second
	defaultRenewalInterval = 5 * time.Second
	defaultRetryInterval   = 2 * time.Second

	connectTimeout = 5 * time.Second
	releaseTimeout = 5 * time.Second
)

var (
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// ElectionConfig holds the Redis connection and lease timings. Zero values
// fall back to DefaultConfig.
type ElectionConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ElectionKey     string
	LeaseDuration   time.Duration
	RenewalInterval time.Duration // leader cadence, must be below LeaseDuration
	RetryInterval   time.Duration // follower cadence
	InstanceID      string
}

// DefaultConfig returns a local Redis with a fresh instance ID.
func DefaultConfig() ElectionConfig {
	return ElectionConfig{
		RedisAddr:       "localhost:6379",
		ElectionKey:     defaultElectionKey,
		LeaseDuration:   defaultLeaseDuration,
		RenewalInterval: defaultRenewalInterval,
		RetryInterval:   defaultRetryInterval,
		InstanceID:      uuid.New().String(),
	}
}

func (c ElectionConfig) withDefaults() ElectionConfig {
	def := DefaultConfig()
	if c.ElectionKey == "" {
		c.ElectionKey = def.ElectionKey
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = def.LeaseDuration
	}
	if c.RenewalInterval <= 0 || c.RenewalInterval >= c.LeaseDuration {
		c.RenewalInterval = c.LeaseDuration / 3
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = def.RetryInterval
	}
	if c.InstanceID == "" {
		c.InstanceID = def.InstanceID
	}
	return c
}

// Election campaigns for the scheduler lease and reports changes on
// LeaderCh.
type Election struct {
	client     *redis.Client
	logger     zerolog.Logger
	config     ElectionConfig
	instanceID string

	mu       sync.RWMutex
	isLeader bool
	cancel   context.CancelFunc
	done     chan struct{}

	stopOnce sync.Once
	leaderCh chan bool
}

// NewElection connects to Redis and returns an idle election. Call Start
// to begin campaigning.
func NewElection(config ElectionConfig, logger zerolog.Logger) (*Election, error) {
	config = config.withDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", config.RedisAddr, err)
	}

	e := &Election{
		client:     client,
		logger:     logger.With().Str("component", "leader_election").Str("instance_id", config.InstanceID).Logger(),
		config:     config,
		instanceID: config.InstanceID,
		leaderCh:   make(chan bool, 1),
	}
	e.logger.Info().Str("redis_addr", config.RedisAddr).Str("key", config.ElectionKey).Msg("leader election ready")
	return e, nil
}

// Start launches the campaign in the background.
func (e *Election) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return errors.New("election already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	e.logger.Info().Dur("lease", e.config.LeaseDuration).Msg("campaigning for leadership")
	go e.campaign(ctx, e.done)
	return nil
}

// Stop ends the campaign, gives up the lease if held and closes the Redis
// client. Later calls are no-ops.
func (e *Election) Stop() error {
	var err error
	e.stopOnce.Do(func() {
		e.mu.RLock()
		cancel, done := e.cancel, e.done
		e.mu.RUnlock()
		if cancel != nil {
			cancel()
			<-done
		}

		if e.IsLeader() {
			ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if relErr := e.release(ctx); relErr != nil {
				e.logger.Error().Err(relErr).Msg("failed to release leadership")
			}
			e.setLeader(false)
		}

		err = e.client.Close()
		e.logger.Info().Msg("leader election stopped")
	})
	return err
}

// IsLeader reports whether this instance holds the lease.
func (e *Election) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isLeader
}

// InstanceID returns the identity this instance campaigns with.
func (e *Election) InstanceID() string {
	return e.instanceID
}

// LeaderCh delivers leadership transitions. Only the latest unread
// transition is kept.
func (e *Election) LeaderCh() <-chan bool {
	return e.leaderCh
}

// GetLeader returns the instance ID holding the lease, or "" when the
// lease is free.
func (e *Election) GetLeader(ctx context.Context) (string, error) {
	id, err := e.client.Get(ctx, e.config.ElectionKey).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("get leader: %w", err)
	}
	return id, nil
}

func (e *Election) campaign(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		leader, err := e.tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Error().Err(err).Msg("leadership check failed")
		}
		e.setLeader(leader)

		next := e.config.RetryInterval
		if leader {
			next = e.config.RenewalInterval
		}
		timer.Reset(next)
	}
}

// tick renews the lease when held, otherwise tries to take it. Any error
// counts as not leading.
func (e *Election) tick(ctx context.Context) (bool, error) {
	if e.IsLeader() {
		renewed, err := e.renew(ctx)
		if err != nil || renewed {
			return renewed, err
		}
		// Lease expired or was taken; fall through to a fresh attempt.
	}
	return e.acquire(ctx)
}

func (e *Election) acquire(ctx context.Context) (bool, error) {
	ok, err := e.client.SetNX(ctx, e.config.ElectionKey, e.instanceID, e.config.LeaseDuration).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	return ok, nil
}

func (e *Election) renew(ctx context.Context) (bool, error) {
	n, err := renewScript.Run(ctx, e.client, []string{e.config.ElectionKey},
		e.instanceID, e.config.LeaseDuration.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	return n == 1, nil
}

func (e *Election) release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, e.client, []string{e.config.ElectionKey}, e.instanceID).Err(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	e.logger.Info().Msg("released leadership")
	return nil
}

// setLeader records the status and publishes it when it changed.
func (e *Election) setLeader(leader bool) {
	e.mu.Lock()
	changed := e.isLeader != leader
	e.isLeader = leader
	e.mu.Unlock()
	if !changed {
		return
	}

	transition := "lost"
	status := 0.0
	if leader {
		transition, status = "acquired", 1
		e.logger.Info().Msg("acquired leadership")
	} else {
		e.logger.Warn().Msg("lost leadership")
	}
	telemetry.LeaderElectionStatus.WithLabelValues(e.instanceID).Set(status)
	telemetry.LeaderElectionChanges.WithLabelValues(e.instanceID, transition).Inc()

	// Replace a stale unread value so readers see the latest state.
	select {
	case <-e.leaderCh:
	default:
	}
	select {
	case e.leaderCh <- leader:
	default:
	}
}
