package tcc

import (
	"errors"
	"net"
	"time"
)

// Defaults mirrored by DefaultRecoverConfig.
const (
	DefaultMaxRetryCount   = 30
	DefaultRecoverDuration = 120 * time.Second

	// DefaultCronExpression runs the recovery sweep once per minute. The
	// expression includes a seconds field.
	DefaultCronExpression = "0 */1 * * * *"

	DefaultAsyncPoolCoreSize  = 512
	DefaultAsyncPoolMaxSize   = 1024
	DefaultAsyncPoolQueueSize = 512
)

// DelayCancelPredicate classifies a try-phase failure as one that must not
// trigger an immediate cancel. It is evaluated against the failure and,
// through errors.Is/errors.As, its whole cause chain.
type DelayCancelPredicate func(err error) bool

// DefaultDelayCancel matches optimistic-lock collisions and network
// timeouts. A timed-out remote try may still be executing; cancelling it
// immediately risks compensating before the try has taken effect, so the
// transaction is left in TRYING for the recovery job to resolve.
func DefaultDelayCancel(err error) bool {
	if errors.Is(err, ErrOptimisticLock) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// RecoverConfig is the configuration surface consumed by the transaction
// manager and the recovery job.
type RecoverConfig struct {
	// MaxRetryCount bounds recovery attempts per transaction. A transaction
	// whose RetryCount exceeds it is never retried again and requires
	// operator intervention.
	MaxRetryCount int

	// RecoverDuration is the grace period a transaction must sit unmodified
	// before the sweep considers it stuck.
	RecoverDuration time.Duration

	// CronExpression schedules the sweep (six-field cron, seconds first).
	CronExpression string

	// BranchGraceDuration is how long a BRANCH transaction is left alone
	// after creation before recovery will reclaim it, so the sweep does not
	// race a still-in-flight remote try. Zero defaults to RecoverDuration.
	BranchGraceDuration time.Duration

	// DelayCancel classifies try failures that should be left to recovery
	// instead of cancelled immediately.
	DelayCancel DelayCancelPredicate

	// Async confirm/cancel worker pool sizing.
	AsyncPoolCoreSize  int
	AsyncPoolMaxSize   int
	AsyncPoolQueueSize int

	// Store cache sizing.
	CacheCapacity int
	CacheExpiry   time.Duration
}

// DefaultRecoverConfig returns the stock configuration: up to 30 recovery
// attempts, 120 s recover duration, a sweep every minute, and the default
// delay-cancel classification.
func DefaultRecoverConfig() *RecoverConfig {
	return &RecoverConfig{
		MaxRetryCount:       DefaultMaxRetryCount,
		RecoverDuration:     DefaultRecoverDuration,
		CronExpression:      DefaultCronExpression,
		BranchGraceDuration: DefaultRecoverDuration,
		DelayCancel:         DefaultDelayCancel,
		AsyncPoolCoreSize:   DefaultAsyncPoolCoreSize,
		AsyncPoolMaxSize:    DefaultAsyncPoolMaxSize,
		AsyncPoolQueueSize:  DefaultAsyncPoolQueueSize,
		CacheCapacity:       DefaultCacheCapacity,
		CacheExpiry:         DefaultCacheExpiry,
	}
}

// branchGrace resolves the effective branch grace window.
func (c *RecoverConfig) branchGrace() time.Duration {
	if c.BranchGraceDuration > 0 {
		return c.BranchGraceDuration
	}
	return c.RecoverDuration
}
