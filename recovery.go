package tcc

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// TransactionRecovery is the periodic sweep that finds transactions stuck
// past their grace period and drives them to completion, bounded by the
// configured maximum retry count.
//
// Concurrent sweeps across coordinator instances are safe without any
// distributed lock: each candidate is claimed by a version-matched update,
// and the instance that loses the race simply leaves the record for the next
// run.
type TransactionRecovery struct {
	store     TransactionStore
	resources *ResourceRegistry
	config    *RecoverConfig
	logger    *zap.Logger
}

// NewTransactionRecovery creates a recovery sweep over the given store and
// resource registry. A nil config uses DefaultRecoverConfig; a nil logger
// discards logs.
func NewTransactionRecovery(store TransactionStore, resources *ResourceRegistry, config *RecoverConfig, logger *zap.Logger) *TransactionRecovery {
	if config == nil {
		config = DefaultRecoverConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TransactionRecovery{
		store:     store,
		resources: resources,
		config:    config,
		logger:    logger,
	}
}

// Recover runs one sweep: it loads every transaction unmodified for longer
// than the recover duration and drives each candidate. Per-candidate
// failures are absorbed and left for the next run; only a failure to load
// the working set is returned.
func (r *TransactionRecovery) Recover(ctx context.Context) error {
	cutoff := time.Now().Add(-r.config.RecoverDuration)
	stale, err := r.store.FindAllUnmodifiedSince(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, tx := range stale {
		r.recoverTransaction(ctx, tx)
	}
	return nil
}

func (r *TransactionRecovery) recoverTransaction(ctx context.Context, tx *Transaction) {
	if tx.RetryCount > r.config.MaxRetryCount {
		// Out of attempts: never silently dropped, never retried past the
		// bound. Needs operator intervention.
		r.logger.Error("recover failed with max retry count, will not try again",
			zap.String("xid", tx.Xid.String()),
			zap.Stringer("status", tx.Status),
			zap.Int("retry_count", tx.RetryCount))
		return
	}

	if tx.Type == Branch && time.Since(tx.CreateTime) < r.config.branchGrace() {
		// Inside the branch grace window the remote try may still be in
		// flight; leave it for a later round.
		return
	}

	tx.AddRetryCount()

	var err error
	switch {
	case tx.Status == Confirming:
		err = r.drive(ctx, tx, func(ctx context.Context) error {
			return tx.Commit(ctx, r.resources)
		})
	case tx.Status == Cancelling || tx.Type == Root:
		// A ROOT left in TRYING (delay-cancel, or a crash before commit)
		// is reclaimed by cancelling it.
		tx.ChangeStatus(Cancelling)
		err = r.drive(ctx, tx, func(ctx context.Context) error {
			return tx.Rollback(ctx, r.resources)
		})
	default:
		// A BRANCH still in TRYING is the initiator's to resolve.
		return
	}

	if err == nil {
		return
	}
	if errors.Is(err, ErrOptimisticLock) {
		// Another coordinator instance claimed this record first.
		r.logger.Warn("optimistic lock collision while recovering, leaving for next run",
			zap.String("xid", tx.Xid.String()),
			zap.Stringer("status", tx.Status),
			zap.Int("retry_count", tx.RetryCount))
		return
	}
	r.logger.Error("recover failed, leaving for next run",
		zap.String("xid", tx.Xid.String()),
		zap.Stringer("status", tx.Status),
		zap.Int("retry_count", tx.RetryCount),
		zap.Error(err))
}

// drive persists the bumped retry count and status under the optimistic
// lock, applies the confirm or cancel loop, and deletes the record on
// success.
func (r *TransactionRecovery) drive(ctx context.Context, tx *Transaction, apply func(ctx context.Context) error) error {
	if _, err := r.store.Update(ctx, tx); err != nil {
		return err
	}
	if err := apply(ctx); err != nil {
		return err
	}
	_, err := r.store.Delete(ctx, tx)
	return err
}

// RecoveryScheduler runs a TransactionRecovery on the configured cron
// schedule.
type RecoveryScheduler struct {
	recovery *TransactionRecovery
	cron     *cron.Cron
	logger   *zap.Logger
}

// NewRecoveryScheduler creates a scheduler for the given sweep. A nil logger
// discards logs.
func NewRecoveryScheduler(recovery *TransactionRecovery, logger *zap.Logger) *RecoveryScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecoveryScheduler{
		recovery: recovery,
		cron:     cron.New(cron.WithSeconds()),
		logger:   logger,
	}
}

// Start registers the sweep under the configured cron expression and starts
// the scheduler.
func (s *RecoveryScheduler) Start() error {
	_, err := s.cron.AddFunc(s.recovery.config.CronExpression, func() {
		if err := s.recovery.Recover(context.Background()); err != nil {
			s.logger.Error("recovery sweep failed to load candidates", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *RecoveryScheduler) Stop() {
	<-s.cron.Stop().Done()
}
