package auditrelay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/secure-banking-ledger/internal/config"
	"github.com/secure-banking-ledger/internal/domain/auditevent"
)

// BatchRunner runs fn with an audit repository scoped to one batch
type BatchRunner interface {
	InBatch(ctx context.Context, fn func(events auditevent.Repository) error) error
}

// BatchResult counts what happened to one batch
type BatchResult struct {
	Forwarded int
	Failed    int
}

// Poller forwards pending audit events on a fixed interval
type Poller struct {
	store            BatchRunner
	forwarder        Forwarder
	logger           *slog.Logger
	pollInterval     time.Duration
	batchSize        int
	maxRetryAttempts int
}

func NewPoller(
	cfg *config.RelayConfig,
	store BatchRunner,
	forwarder Forwarder,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		store:            store,
		forwarder:        forwarder,
		logger:           logger,
		pollInterval:     cfg.PollingInterval,
		batchSize:        cfg.BatchSize,
		maxRetryAttempts: cfg.MaxRetryAttempts,
	}
}

// Start begins polling until context is canceled
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting audit relay",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
		"max_retry_attempts", p.maxRetryAttempts,
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Audit relay stopping due to context cancellation.")
			return
		case <-ticker.C:
			if _, err := p.ProcessPending(ctx); err != nil {
				p.logger.Error("Error during audit relay batch", "error", err)
			}
		}
	}
}

// ProcessPending forwards one batch. Delivery failures are recorded on the
// event and counted. A failed read or bookkeeping write abandons the batch
// and is returned: the batch's statements share one transaction, so nothing
// after a failed statement could be committed. Abandoned events stay
// pending and are delivered again on a later poll.
func (p *Poller) ProcessPending(ctx context.Context) (BatchResult, error) {
	var result BatchResult

	err := p.store.InBatch(ctx, func(events auditevent.Repository) error {
		pending, err := events.GetPending(ctx, p.batchSize, p.maxRetryAttempts)
		if err != nil {
			return fmt.Errorf("failed to get pending audit events: %w", err)
		}
		if len(pending) == 0 {
			p.logger.Debug("No pending audit events found.")
			return nil
		}
		p.logger.Info("Fetched pending audit events", "count", len(pending))

		for _, event := range pending {
			forwarded, err := p.settle(ctx, events, event)
			if err != nil {
				return err
			}
			if forwarded {
				result.Forwarded++
			} else {
				result.Failed++
			}
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}

	return result, nil
}

// settle forwards event and records the outcome. The error is non-nil only
// when the outcome could not be recorded.
func (p *Poller) settle(ctx context.Context, events auditevent.Repository, event *auditevent.Event) (bool, error) {
	logger := p.logger.With("event_id", event.ID.String())

	if err := p.forwarder.Forward(ctx, event); err != nil {
		logger.Error("Failed to forward audit event",
			"current_attempts", event.ForwardAttempts, "error", err,
		)
		if errRec := events.RecordForwardFailure(ctx, event.ID, err.Error()); errRec != nil {
			logger.Error("Failed to record audit forward failure", "error", errRec)
			return false, fmt.Errorf("failed to record forward failure for audit event %s: %w", event.ID, errRec)
		}
		if event.ForwardAttempts+1 >= p.maxRetryAttempts {
			logger.Warn("Max retry attempts reached for audit event, it will not be retried",
				"attempts_made", event.ForwardAttempts+1,
			)
		}
		return false, nil
	}

	if err := events.MarkForwarded(ctx, event.ID); err != nil {
		logger.Error("Failed to mark audit event forwarded", "error", err)
		return false, fmt.Errorf("failed to mark audit event %s forwarded: %w", event.ID, err)
	}

	logger.Debug("Audit event forwarded")
	return true, nil
}
