// Package coordinator implements distributed leader election and
// split-brain protection over a shared Redis key plus a relational
// audit trail.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"arbitrage/internal/config"
	"arbitrage/internal/metrics"
	"arbitrage/internal/models"
	"arbitrage/internal/persistence"
	"arbitrage/pkg/utils"

	"github.com/redis/go-redis/v9"
)

const (
	leaderKeyPrefix    = "pm:leader"
	heartbeatKeyPrefix = "pm:heartbeat:"
)

// acquireScript performs an atomic set-if-absent with expiration; if the
// key already holds the local id, it is treated as a re-entrant success
// by extending the TTL. Returns 1 on success, 0 otherwise.
var acquireScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == false then
	redis.call("SET", KEYS[1], ARGV[1], "EX", ARGV[2])
	return 1
elseif current == ARGV[1] then
	redis.call("EXPIRE", KEYS[1], ARGV[2])
	return 1
else
	return 0
end
`)

// renewScript extends the TTL only if the key still holds the local id.
var renewScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == ARGV[1] then
	redis.call("EXPIRE", KEYS[1], ARGV[2])
	return 1
else
	return 0
end
`)

// releaseScript deletes the key only if it still holds the local id.
var releaseScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == ARGV[1] then
	redis.call("DEL", KEYS[1])
	return 1
else
	return 0
end
`)

// Coordinator owns the in-process is_leader flag and runs the background
// election/heartbeat loop.
type Coordinator struct {
	cfg        config.CoordinatorConfig
	instanceID string
	hostname   string

	redis *redis.Client
	store *persistence.Store
	log   *utils.Logger

	metrics *Metrics

	mu       sync.RWMutex
	isLeader bool

	heartbeatIter int

	stopCh chan struct{}
	doneCh chan struct{}

	// disabled is set when the in-memory store is unreachable at
	// startup or configured off; the coordinator then fails closed
	// into single-instance fallback mode.
	disabled bool

	notifier Notifier
}

// Notifier pushes a notify-only operator alert. Optional: nil skips
// the alert, only logs. See NotifierFromConfirm to adapt
// internal/confirm's Manager, whose Notify takes a confirm.Severity
// rather than a bare string.
type Notifier interface {
	Notify(ctx context.Context, message string, severity string)
}

// SetNotifier wires the operator alert channel used for split-brain
// self-demotion, which is otherwise only visible in logs.
func (c *Coordinator) SetNotifier(n Notifier) {
	c.notifier = n
}

// New constructs a Coordinator. It does not start the heartbeat loop;
// call Run for that. If redisClient is nil or cfg.Enabled is false, the
// coordinator starts in permanent fallback (leader=false) mode.
func New(cfg config.CoordinatorConfig, redisClient *redis.Client, store *persistence.Store, log *utils.Logger) (*Coordinator, error) {
	instanceID, err := newInstanceID(cfg.InstanceIDFile)
	if err != nil {
		return nil, err
	}
	hostname, _ := os.Hostname()

	c := &Coordinator{
		cfg:        cfg,
		instanceID: instanceID,
		hostname:   hostname,
		redis:      redisClient,
		store:      store,
		log:        log,
		metrics: NewMetrics(AlertConfig{
			DBSyncFailureWarningPct:   cfg.DBSyncFailureWarningPct,
			DBSyncFailureCriticalPct:  cfg.DBSyncFailureCriticalPct,
			LeaderChangeWarningPerHr:  cfg.LeaderChangeWarningPerHr,
			LeaderChangeCriticalPerHr: cfg.LeaderChangeCriticalPerHr,
			HeartbeatStaleWarningSec:  cfg.HeartbeatStaleWarningSec,
			HeartbeatStaleCriticalSec: cfg.HeartbeatStaleCriticalSec,
		}),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if !cfg.Enabled || redisClient == nil {
		c.disabled = true
		return c, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		c.disabled = true
		if log != nil {
			log.Error("redis unreachable at startup, coordinator fails closed", utils.Err(err))
		}
	}

	return c, nil
}

// InstanceID returns this process's UUID-PID composite identity.
func (c *Coordinator) InstanceID() string { return c.instanceID }

// IsLeader reports the local leader flag. Thread-safe.
func (c *Coordinator) IsLeader() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isLeader
}

// Metrics exposes the accumulator for HTTP/metrics surfaces.
func (c *Coordinator) Metrics() *Metrics { return c.metrics }

// RecentLeaderChanges reports how many leader transitions occurred in
// the last since, independent of the fixed one-hour alert window.
func (c *Coordinator) RecentLeaderChanges(since time.Duration) int {
	return c.metrics.CountSince(time.Now(), since)
}

func (c *Coordinator) leaderKey() string {
	return leaderKeyPrefix
}

func (c *Coordinator) heartbeatKey() string {
	return heartbeatKeyPrefix + c.instanceID
}

func (c *Coordinator) setLeader(v bool) {
	c.mu.Lock()
	changed := c.isLeader != v
	c.isLeader = v
	c.mu.Unlock()
	if changed {
		c.metrics.RecordLeaderChange(time.Now())
		metrics.LeaderChangesTotal.Inc()
	}
	if v {
		metrics.IsLeader.Set(1)
	} else {
		metrics.IsLeader.Set(0)
	}
}

// Run starts the background heartbeat/election loop. It blocks until
// ctx is cancelled or Stop is called, exiting within the join timeout.
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.doneCh)

	if c.disabled {
		if c.log != nil {
			c.log.Warn("coordinator running in fallback mode: leader=false permanently")
		}
		<-mergeStop(ctx, c.stopCh)
		return
	}

	ttl := time.Duration(c.cfg.LeaderTTLSeconds) * time.Second
	followerInterval := time.Duration(c.cfg.ElectionIntervalSeconds * float64(time.Second))
	leaderInterval := time.Duration(float64(ttl) * c.cfg.HeartbeatRenewalRatio)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case <-c.stopCh:
			c.shutdown()
			return
		case <-timer.C:
			next := followerInterval
			if c.IsLeader() {
				c.renewOrDemote(ctx, ttl)
				next = leaderInterval
			} else {
				c.tryAcquire(ctx, ttl)
				if c.IsLeader() {
					next = leaderInterval
				}
			}
			c.writeHeartbeat(ctx)
			timer.Reset(next)
		}
	}
}

func mergeStop(ctx context.Context, stop chan struct{}) <-chan struct{} {
	out := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		close(out)
	}()
	return out
}

// Stop signals the heartbeat loop to exit and waits up to 5s for it to
// finish.
func (c *Coordinator) Stop() {
	close(c.stopCh)
	select {
	case <-c.doneCh:
	case <-time.After(5 * time.Second):
	}
}

func (c *Coordinator) shutdown() {
	if c.IsLeader() {
		c.release(context.Background())
	}
}

func (c *Coordinator) tryAcquire(ctx context.Context, ttl time.Duration) {
	start := time.Now()
	res, err := acquireScript.Run(ctx, c.redis, []string{c.leaderKey()}, c.instanceID, int(ttl.Seconds())).Int()
	c.metrics.RecordSync(err == nil, float64(time.Since(start).Milliseconds()))
	if err != nil {
		if c.log != nil {
			c.log.Error("leader acquire failed", utils.Err(err))
		}
		return
	}
	if res == 1 {
		c.setLeader(true)
		c.recordTransition(ctx, true)
	}
}

func (c *Coordinator) renewOrDemote(ctx context.Context, ttl time.Duration) {
	start := time.Now()
	res, err := renewScript.Run(ctx, c.redis, []string{c.leaderKey()}, c.instanceID, int(ttl.Seconds())).Int()
	c.metrics.RecordSync(err == nil, float64(time.Since(start).Milliseconds()))
	if err != nil {
		if c.log != nil {
			c.log.Error("leader renewal failed", utils.Err(err))
		}
		return
	}
	if res != 1 {
		c.demote(ctx)
		return
	}

	c.heartbeatIter++
	if c.cfg.SplitBrainCheckEvery > 0 && c.heartbeatIter%c.cfg.SplitBrainCheckEvery == 0 {
		c.checkSplitBrain(ctx)
	}
}

// demote transitions the local process to follower without attempting a
// release script (the caller already knows the key's value diverged or
// has expired), and audits the transition.
func (c *Coordinator) demote(ctx context.Context) {
	c.setLeader(false)
	c.recordTransition(ctx, false)
}

func (c *Coordinator) release(ctx context.Context) {
	start := time.Now()
	_, err := releaseScript.Run(ctx, c.redis, []string{c.leaderKey()}, c.instanceID).Int()
	c.metrics.RecordSync(err == nil, float64(time.Since(start).Milliseconds()))
	c.setLeader(false)
	c.recordTransition(ctx, false)
}

func (c *Coordinator) recordTransition(ctx context.Context, becameLeader bool) {
	if c.store == nil {
		return
	}
	if err := c.store.RecordLeadershipTransition(ctx, c.instanceID, becameLeader, c.hostname); err != nil && c.log != nil {
		c.log.Error("failed to record leadership transition", utils.Err(err))
	}
}

func (c *Coordinator) writeHeartbeat(ctx context.Context) {
	now := time.Now()
	if c.redis != nil {
		ttl := time.Duration(c.cfg.HeartbeatStaleCriticalSec) * time.Second
		if err := c.redis.Set(ctx, c.heartbeatKey(), c.instanceID, ttl).Err(); err != nil && c.log != nil {
			c.log.Error("failed to write redis heartbeat", utils.Err(err))
		}
	}
	c.metrics.RecordHeartbeat(now)

	if c.store == nil {
		return
	}
	m := &models.InstanceMetadata{
		InstanceID:    c.instanceID,
		StartedAt:     now,
		LastHeartbeat: now,
		IsLeader:      c.IsLeader(),
		Status:        models.InstanceActive,
		Hostname:      c.hostname,
	}
	if c.IsLeader() {
		m.LeaderAcquiredAt = now
	}
	if err := c.store.UpsertInstanceMetadata(ctx, m); err != nil && c.log != nil {
		c.log.Error("failed to upsert instance metadata", utils.Err(err))
	}
}

// checkSplitBrain cross-checks the in-memory leader key against the
// relational store's freshest leader row and self-demotes immediately
// when the relational store names a different leader than this
// instance. This is the single most important safety invariant in the
// system.
func (c *Coordinator) checkSplitBrain(ctx context.Context) {
	if c.store == nil {
		return
	}

	memVal, err := c.redis.Get(ctx, c.leaderKey()).Result()
	if err == redis.Nil {
		memVal = ""
	} else if err != nil {
		if c.log != nil {
			c.log.Error("split-brain check: redis read failed", utils.Err(err))
		}
		return
	}

	relVal, err := c.store.GetCurrentLeader(ctx, true)
	if err != nil {
		if c.log != nil {
			c.log.Error("split-brain check: relational read failed", utils.Err(err))
		}
		return
	}

	if memVal == relVal {
		return
	}

	// Disagreement: (mem=X, rel=Y!=X), (mem=X, rel=""), (mem="", rel=Y).
	// Any divergence where the relational store holds a different fresh
	// leader than ours triggers immediate self-demotion.
	if relVal != "" && relVal != c.instanceID {
		if c.log != nil {
			c.log.Error("split-brain detected, self-demoting",
				utils.String("memory_leader", memVal), utils.String("relational_leader", relVal))
		}
		if c.notifier != nil {
			c.notifier.Notify(ctx, fmt.Sprintf("split-brain detected: memory leader %s, relational leader %s, self-demoting", memVal, relVal), "critical")
		}
		metrics.SplitBrainDetected.Inc()
		c.release(ctx)
	}
}
