package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/procrastinando/telegrambot-anythingllm/internal/telegram"
)

// UpdateSource is the long-poll side of the Telegram client.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// UpdateHandler processes one update; it never returns an error
// because every remote failure already degrades into a reply or a log
// line inside the handler.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u telegram.Update)
}

type LoopOptions struct {
	Source      UpdateSource
	Handler     UpdateHandler
	PollTimeout time.Duration
	// RetryDelay is the fixed pause after a failed fetch. No backoff:
	// one human pressing buttons cannot thundering-herd anything.
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// Loop drives the bridge: fetch a batch, advance the cursor, dispatch
// each update in order. Strictly sequential; an update is fully
// handled before the next fetch.
type Loop struct {
	src         UpdateSource
	handler     UpdateHandler
	pollTimeout time.Duration
	retryDelay  time.Duration
	logger      *slog.Logger
	cursor      int64
}

func NewLoop(opts LoopOptions) (*Loop, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("update source is required")
	}
	if opts.Handler == nil {
		return nil, fmt.Errorf("update handler is required")
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 10 * time.Second
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		src:         opts.Source,
		handler:     opts.Handler,
		pollTimeout: pollTimeout,
		retryDelay:  retryDelay,
		logger:      logger,
	}, nil
}

// Cursor returns the highest update id processed so far.
func (l *Loop) Cursor() int64 {
	return l.cursor
}

// Run blocks until ctx is done. Poll timeouts retry immediately; any
// other fetch error waits the fixed retry delay first.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		updates, err := l.src.GetUpdates(ctx, l.cursor+1, l.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if telegram.IsPollTimeout(err) {
				continue
			}
			l.logger.Warn("telegram_get_updates_error", "error", err.Error())
			if err := sleepWithContext(ctx, l.retryDelay); err != nil {
				return err
			}
			continue
		}
		for _, u := range updates {
			// Advance before dispatch so a faulty update is never
			// fetched twice.
			if u.UpdateID > l.cursor {
				l.cursor = u.UpdateID
			}
			l.dispatch(ctx, u)
		}
	}
}

func (l *Loop) dispatch(ctx context.Context, u telegram.Update) {
	traceID := uuid.NewString()
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("handler_panic",
				"trace_id", traceID,
				"update_id", u.UpdateID,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	l.logger.Debug("update_dispatch", "trace_id", traceID, "update_id", u.UpdateID)
	l.handler.HandleUpdate(ctx, u)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
