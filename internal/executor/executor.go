package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultClickTimeout = 3 * time.Second
	DefaultFillTimeout  = 30 * time.Second
	DefaultSettle       = time.Second
)

// Element is a located page element
type Element interface {
	Fill(ctx context.Context, text string) error
	Click(ctx context.Context, timeout time.Duration) error
}

// Actuator locates elements on the live page.
// Both lookups return the first match or fail when ctx expires.
type Actuator interface {
	Locate(ctx context.Context, selector string) (Element, error)
	LocateText(ctx context.Context, text string) (Element, error)
}

// Options configures execution behavior
type Options struct {
	ClickTimeout time.Duration // bounded wait for click and click_text
	FillTimeout  time.Duration // bounded wait for type
	Settle       time.Duration // pause after every non-end action
}

func (o Options) withDefaults() Options {
	if o.ClickTimeout <= 0 {
		o.ClickTimeout = DefaultClickTimeout
	}
	if o.FillTimeout <= 0 {
		o.FillTimeout = DefaultFillTimeout
	}
	if o.Settle < 0 {
		o.Settle = 0
	}
	return o
}

// Result holds the result of executing a plan
type Result struct {
	Outcome  Outcome
	Executed int   // actions attempted, including the failing one
	Err      error // cause when Outcome is OutcomeFailed
}

// Executor runs plans against an Actuator
type Executor struct {
	opts   Options
	logger *zap.Logger
}

// New creates an Executor. A zero Settle disables the pause; use
// DefaultSettle for the normal one-second pause.
func New(opts Options, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		opts:   opts.withDefaults(),
		logger: logger.Named("executor"),
	}
}

// ErrEmptyPlan is reported when there is nothing to execute.
var ErrEmptyPlan = errors.New("empty plan")

// Execute runs the plan in order until end, the first failure, or the last action.
// Effects of actions that already ran are left in place.
func (e *Executor) Execute(ctx context.Context, act Actuator, plan Plan) Result {
	if plan.Empty() {
		e.logger.Warn("Received an empty or invalid plan, nothing to execute")
		return Result{Outcome: OutcomeFailed, Err: ErrEmptyPlan}
	}

	for i, action := range plan.Actions {
		if action.Kind == KindEnd {
			e.logger.Info("Plan signalled completion",
				zap.Int("step", i+1),
				zap.Int("discarded", plan.Len()-i-1))
			return Result{Outcome: OutcomeCompleted, Executed: i}
		}

		if err := e.apply(ctx, act, action); err != nil {
			e.logger.Warn("Action failed",
				zap.Int("step", i+1),
				zap.Stringer("action", action),
				zap.Error(err))
			return Result{Outcome: OutcomeFailed, Executed: i + 1, Err: err}
		}
		e.logger.Debug("Action done", zap.Int("step", i+1), zap.Stringer("action", action))

		if err := settle(ctx, e.opts.Settle); err != nil {
			return Result{Outcome: OutcomeFailed, Executed: i + 1, Err: err}
		}
	}

	e.logger.Info("Plan exhausted without end", zap.Int("steps", plan.Len()))
	return Result{Outcome: OutcomeExhausted, Executed: plan.Len()}
}

// apply performs one action. Unknown kinds are logged and skipped.
func (e *Executor) apply(ctx context.Context, act Actuator, action Action) error {
	switch action.Kind {
	case KindType:
		stepCtx, cancel := context.WithTimeout(ctx, e.opts.FillTimeout)
		defer cancel()
		el, err := act.Locate(stepCtx, action.Selector)
		if err != nil {
			return fmt.Errorf("element not found: %s: %w", action.Selector, err)
		}
		if err := el.Fill(stepCtx, action.Text); err != nil {
			return fmt.Errorf("fill %s: %w", action.Selector, err)
		}
		return nil
	case KindClick:
		stepCtx, cancel := context.WithTimeout(ctx, e.opts.ClickTimeout)
		defer cancel()
		el, err := act.Locate(stepCtx, action.Selector)
		if err != nil {
			return fmt.Errorf("element not found: %s: %w", action.Selector, err)
		}
		if err := el.Click(stepCtx, e.opts.ClickTimeout); err != nil {
			return fmt.Errorf("click %s: %w", action.Selector, err)
		}
		return nil
	case KindClickText:
		stepCtx, cancel := context.WithTimeout(ctx, e.opts.ClickTimeout)
		defer cancel()
		el, err := act.LocateText(stepCtx, action.Text)
		if err != nil {
			return fmt.Errorf("no element with text %q: %w", action.Text, err)
		}
		if err := el.Click(stepCtx, e.opts.ClickTimeout); err != nil {
			return fmt.Errorf("click text %q: %w", action.Text, err)
		}
		return nil
	default:
		e.logger.Warn("Unknown action, skipping", zap.String("action", string(action.Kind)))
		return nil
	}
}

// settle gives the page time to react to the last action
func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
