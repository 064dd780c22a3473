// Package agent drives the observe, plan, execute cycle against one page
// until the goal is reached or the run has to stop.
package agent

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/v0xg/pagepilot/internal/crawler"
	"github.com/v0xg/pagepilot/internal/executor"
)

// DefaultMaxRounds caps a run when no budget is configured.
const DefaultMaxRounds = 20

// ExitReason indicates why the loop stopped.
type ExitReason int

const (
	ExitReasonUnknown           ExitReason = iota
	ExitReasonSucceeded                    // Plan reported completion
	ExitReasonObservationAbsent            // Page could not be observed
	ExitReasonEmptyPlan                    // Model gave nothing usable
	ExitReasonRoundLimit                   // Hit round budget
	ExitReasonFault                        // Panic in a lower layer
	ExitReasonCanceled                     // Context canceled
)

// String returns a human-readable description of the exit reason.
func (r ExitReason) String() string {
	switch r {
	case ExitReasonSucceeded:
		return "succeeded"
	case ExitReasonObservationAbsent:
		return "observation absent"
	case ExitReasonEmptyPlan:
		return "empty plan"
	case ExitReasonRoundLimit:
		return "round limit"
	case ExitReasonFault:
		return "fault"
	case ExitReasonCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Result contains the outcome of a run.
type Result struct {
	Succeeded bool
	Reason    ExitReason
	Rounds    int
	Err       error
}

// Observer builds an Observation of the page.
type Observer interface {
	Build(ctx context.Context, src crawler.Source) (*crawler.Observation, error)
}

// Planner asks the model for the next batch of actions. An empty plan means
// nothing usable came back.
type Planner interface {
	Generate(ctx context.Context, credential, goal string, obs *crawler.Observation) executor.Plan
}

// Runner executes a plan against the page.
type Runner interface {
	Execute(ctx context.Context, act executor.Actuator, plan executor.Plan) executor.Result
}

// Page is the live page a run works on: readable for observation and
// drivable for execution.
type Page interface {
	crawler.Source
	executor.Actuator
}

// Round describes a finished execution round.
type Round struct {
	Number  int
	Actions int
	Outcome executor.Outcome
}

// Options configures the loop.
type Options struct {
	// MaxRounds bounds the number of rounds. Zero means no bound.
	MaxRounds int
	// OnRound, when set, is called after every executed plan.
	OnRound func(ctx context.Context, r Round)
}

// Agent runs the closed loop.
type Agent struct {
	observer Observer
	planner  Planner
	runner   Runner
	opts     Options
	logger   *zap.Logger
}

// New creates an Agent from its three collaborators.
func New(observer Observer, planner Planner, runner Runner, opts Options, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxRounds < 0 {
		opts.MaxRounds = 0
	}
	return &Agent{
		observer: observer,
		planner:  planner,
		runner:   runner,
		opts:     opts,
		logger:   logger.Named("agent"),
	}
}

// Run works toward goal on page. The credential is handed to the planner on
// every round and kept nowhere else.
//
// A missing observation or an empty plan ends the run at once. A failed or
// exhausted plan starts another round while the budget allows.
func (a *Agent) Run(ctx context.Context, goal, credential string, page Page) (res Result) {
	rounds := 0

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Agent run aborted by panic",
				zap.Int("round", rounds),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			res = Result{Reason: ExitReasonFault, Rounds: rounds, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	a.logger.Info("Agent run started", zap.String("goal", goal), zap.Int("max_rounds", a.opts.MaxRounds))

	for {
		if err := ctx.Err(); err != nil {
			return a.finish(Result{Reason: ExitReasonCanceled, Rounds: rounds, Err: err})
		}
		if a.opts.MaxRounds > 0 && rounds >= a.opts.MaxRounds {
			return a.finish(Result{Reason: ExitReasonRoundLimit, Rounds: rounds})
		}
		rounds++
		log := a.logger.With(zap.Int("round", rounds))

		log.Debug("Observing page")
		obs, err := a.observer.Build(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return a.finish(Result{Reason: ExitReasonCanceled, Rounds: rounds, Err: ctx.Err()})
			}
			log.Warn("No page context, stopping", zap.Error(err))
			return a.finish(Result{Reason: ExitReasonObservationAbsent, Rounds: rounds, Err: err})
		}

		log.Debug("Planning")
		plan := a.planner.Generate(ctx, credential, goal, obs)
		if plan.Empty() {
			if ctx.Err() != nil {
				return a.finish(Result{Reason: ExitReasonCanceled, Rounds: rounds, Err: ctx.Err()})
			}
			log.Warn("No usable plan, stopping")
			return a.finish(Result{Reason: ExitReasonEmptyPlan, Rounds: rounds, Err: executor.ErrEmptyPlan})
		}

		log.Debug("Executing", zap.Int("actions", plan.Len()))
		result := a.runner.Execute(ctx, page, plan)
		log.Info("Round finished",
			zap.Int("actions", plan.Len()),
			zap.Int("executed", result.Executed),
			zap.Stringer("outcome", result.Outcome))

		if a.opts.OnRound != nil {
			a.opts.OnRound(ctx, Round{Number: rounds, Actions: plan.Len(), Outcome: result.Outcome})
		}

		if result.Outcome == executor.OutcomeCompleted {
			return a.finish(Result{Succeeded: true, Reason: ExitReasonSucceeded, Rounds: rounds})
		}
		log.Info("Round did not reach the goal, observing again")
	}
}

func (a *Agent) finish(res Result) Result {
	fields := []zap.Field{
		zap.Bool("succeeded", res.Succeeded),
		zap.Stringer("reason", res.Reason),
		zap.Int("rounds", res.Rounds),
	}
	if res.Err != nil {
		fields = append(fields, zap.Error(res.Err))
	}
	if res.Succeeded {
		a.logger.Info("Agent finished", fields...)
	} else {
		a.logger.Warn("Agent finished", fields...)
	}
	return res
}
