// Package audit records security-relevant outcomes. Recording is best
// effort: a failing sink is logged and reported in the Result, never
// returned to the caller as an error.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/secure-banking-ledger/internal/crypto"
	"github.com/secure-banking-ledger/internal/domain/auditevent"
)

// Sink receives finished audit events
type Sink interface {
	Name() string
	Write(ctx context.Context, event *auditevent.Event) error
}

// Entry is what callers hand to Record. Values are plaintext. The subject
// is masked before any sink sees it; the account number is kept whole so
// stored events stay attributable, and is masked only in the line log.
type Entry struct {
	AccountNumber string
	Subject       string
	Action        auditevent.Action
	Success       bool
}

// Result lists the sinks that could not take the event. Callers are free to
// ignore it.
type Result struct {
	Event  *auditevent.Event
	Failed []string
}

func (r Result) OK() bool {
	return len(r.Failed) == 0
}

// Logger fans events out to synchronous sinks in the calling goroutine and
// to asynchronous sinks on a worker pool.
type Logger struct {
	logger *slog.Logger
	pool   *ants.Pool
	sync   []Sink
	async  []Sink
	wg     sync.WaitGroup
}

// NewLogger creates a logger. With a nil pool, asynchronous sinks run inline.
func NewLogger(logger *slog.Logger, pool *ants.Pool) *Logger {
	return &Logger{
		logger: logger,
		pool:   pool,
	}
}

// AddSink registers a sink written before Record returns. Sinks must be
// registered before the first Record call.
func (l *Logger) AddSink(s Sink) *Logger {
	l.sync = append(l.sync, s)
	return l
}

// AddAsyncSink registers a sink written on the worker pool.
func (l *Logger) AddAsyncSink(s Sink) *Logger {
	l.async = append(l.async, s)
	return l
}

// Record masks the subject, stamps the entry and hands it to every sink.
func (l *Logger) Record(ctx context.Context, entry Entry) Result {
	event := auditevent.NewEvent(
		entry.AccountNumber,
		crypto.Mask(entry.Subject, crypto.MaskName),
		entry.Action,
		entry.Success,
	)
	result := Result{Event: event}

	for _, s := range l.sync {
		if err := l.write(ctx, s, event); err != nil {
			result.Failed = append(result.Failed, s.Name())
		}
	}

	detached := context.WithoutCancel(ctx)
	for _, s := range l.async {
		sink := s
		if l.pool == nil {
			if err := l.write(detached, sink, event); err != nil {
				result.Failed = append(result.Failed, sink.Name())
			}
			continue
		}

		l.wg.Add(1)
		err := l.pool.Submit(func() {
			defer l.wg.Done()
			_ = l.write(detached, sink, event)
		})
		if err != nil {
			l.wg.Done()
			l.logger.Warn("Failed to submit audit event to worker pool",
				"sink", sink.Name(),
				"action", string(event.Action),
				"error", err,
			)
			result.Failed = append(result.Failed, sink.Name())
		}
	}

	return result
}

// Flush waits for asynchronous writes already submitted.
func (l *Logger) Flush() {
	l.wg.Wait()
}

// write calls the sink, turning panics into errors. Failures are logged at
// WARN and go no further.
func (l *Logger) write(ctx context.Context, s Sink, event *auditevent.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
		if err != nil {
			l.logger.Warn("Audit sink failed",
				"sink", s.Name(),
				"event_id", event.ID.String(),
				"action", string(event.Action),
				"error", err,
			)
		}
	}()

	return s.Write(ctx, event)
}
