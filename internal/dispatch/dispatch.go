// Package dispatch starts agent runs in the background, one browser session
// per run, under a concurrency cap.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/v0xg/pagepilot/internal/agent"
	"github.com/v0xg/pagepilot/internal/gifgen"
	"github.com/v0xg/pagepilot/internal/overlay"
)

var (
	// ErrBusy is returned when every run slot is taken.
	ErrBusy = errors.New("all run slots are busy")
	// ErrClosed is returned after Shutdown has been called.
	ErrClosed = errors.New("dispatcher is shut down")
	// ErrNoGoal is returned for a task without a goal.
	ErrNoGoal = errors.New("task has no goal")
)

// Task is one run request. Credential is passed through to the planner and
// never logged.
type Task struct {
	Goal       string
	Credential string
}

// Page is the page of a session: the agent's view of it plus screenshots for
// recordings.
type Page interface {
	agent.Page
	Screenshot(ctx context.Context) ([]byte, error)
}

// Session is a browser session owned by a single run.
type Session interface {
	Page() Page
	Close() error
}

// LaunchFunc opens a fresh session.
type LaunchFunc func(ctx context.Context) (Session, error)

// Report describes a finished run.
type Report struct {
	RunID     string
	Goal      string
	Result    agent.Result
	Recording string // path of the GIF, empty when not recorded
	Err       error  // session could not be opened
}

// Config wires a Dispatcher.
type Config struct {
	MaxConcurrentRuns int
	Launch            LaunchFunc
	Observer          agent.Observer
	Planner           agent.Planner
	Executor          agent.Runner
	Agent             agent.Options

	// RecordDir enables GIF recordings written to <RecordDir>/<run id>.gif.
	RecordDir string
	Record    gifgen.Options

	// OnDone, when set, receives every finished run.
	OnDone func(Report)
}

// Dispatcher starts and tracks runs.
type Dispatcher struct {
	cfg    Config
	sem    *semaphore.Weighted
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates a Dispatcher. MaxConcurrentRuns <= 0 allows one run at a time.
func New(cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrentRuns)),
		logger: logger.Named("dispatch"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Dispatch starts task on its own goroutine and returns its run id at once.
func (d *Dispatcher) Dispatch(task Task) (string, error) {
	if task.Goal == "" {
		return "", ErrNoGoal
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return "", ErrClosed
	}
	if !d.sem.TryAcquire(1) {
		d.logger.Warn("Rejecting run, no free slot", zap.Int("max_concurrent_runs", d.cfg.MaxConcurrentRuns))
		return "", ErrBusy
	}

	runID := uuid.NewString()
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		d.execute(d.ctx, runID, task)
	}()
	return runID, nil
}

// Run executes task in the foreground and returns its report. It ignores the
// concurrency cap.
func (d *Dispatcher) Run(ctx context.Context, task Task) Report {
	if task.Goal == "" {
		return Report{Err: ErrNoGoal}
	}
	return d.execute(ctx, uuid.NewString(), task)
}

// Wait blocks until every dispatched run has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown refuses new runs and waits for running ones to finish. When ctx
// ends first, the remaining runs are canceled and ctx's error is returned
// once they have stopped.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.logger.Warn("Shutdown deadline reached, canceling runs")
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) execute(ctx context.Context, runID string, task Task) (report Report) {
	log := d.logger.With(zap.String("run_id", runID))
	report = Report{RunID: runID, Goal: task.Goal}

	defer func() {
		if r := recover(); r != nil {
			log.Error("Run crashed", zap.Any("panic", r))
			report.Result = agent.Result{Reason: agent.ExitReasonFault, Err: fmt.Errorf("panic: %v", r)}
		}
		if d.cfg.OnDone != nil {
			d.cfg.OnDone(report)
		}
	}()

	log.Info("Run started", zap.String("goal", task.Goal))

	session, err := d.cfg.Launch(ctx)
	if err != nil {
		log.Error("Could not open browser session", zap.Error(err))
		report.Err = fmt.Errorf("launch browser: %w", err)
		return report
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn("Error closing browser session", zap.Error(err))
		}
	}()
	page := session.Page()

	opts := d.cfg.Agent
	var rec *gifgen.Recorder
	if d.cfg.RecordDir != "" {
		rec = gifgen.NewRecorder(d.cfg.Record)
		next := opts.OnRound
		opts.OnRound = func(ctx context.Context, r agent.Round) {
			captureFrame(ctx, log, page, rec, r)
			if next != nil {
				next(ctx, r)
			}
		}
	}

	a := agent.New(d.cfg.Observer, d.cfg.Planner, d.cfg.Executor, opts, log)
	report.Result = a.Run(ctx, task.Goal, task.Credential, page)

	if rec != nil && rec.Len() > 0 {
		path := filepath.Join(d.cfg.RecordDir, runID+".gif")
		size, err := rec.Save(path)
		if err != nil {
			log.Warn("Could not save recording", zap.Error(err))
		} else {
			report.Recording = path
			log.Info("Recording saved", zap.String("path", path), zap.Int64("bytes", size), zap.Int("frames", rec.Len()))
		}
	}

	log.Info("Run finished",
		zap.Bool("succeeded", report.Result.Succeeded),
		zap.Stringer("reason", report.Result.Reason),
		zap.Int("rounds", report.Result.Rounds))
	return report
}

// captureFrame adds a stamped screenshot of the page to rec. Failures only
// cost the frame.
func captureFrame(ctx context.Context, log *zap.Logger, page Page, rec *gifgen.Recorder, r agent.Round) {
	data, err := page.Screenshot(ctx)
	if err != nil {
		log.Debug("Screenshot failed", zap.Int("round", r.Number), zap.Error(err))
		return
	}
	img, err := gifgen.DecodeFrame(data)
	if err != nil {
		log.Debug("Screenshot unreadable", zap.Int("round", r.Number), zap.Error(err))
		return
	}
	rec.Add(overlay.StampOutcome(img, r.Number, r.Outcome))
}
