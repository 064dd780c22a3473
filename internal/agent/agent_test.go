package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/v0xg/pagepilot/internal/crawler"
	"github.com/v0xg/pagepilot/internal/executor"
)

// loginPage simulates the practice login form: typing fills the inputs and
// clicking submit swaps the page for the logged-in view.
type loginPage struct {
	mu       sync.Mutex
	values   map[string]string
	loggedIn bool
	clicks   []string
	snapErr  error
}

func newLoginPage() *loginPage {
	return &loginPage{values: map[string]string{}}
}

func (p *loginPage) Snapshot(context.Context) (*crawler.Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.snapErr != nil {
		return nil, p.snapErr
	}
	if p.loggedIn {
		return &crawler.Node{Role: "WebArea", Children: []*crawler.Node{
			{Role: "heading", Name: "Logged In Successfully"},
			{Role: "link", Name: "Log out"},
		}}, nil
	}
	return &crawler.Node{Role: "WebArea", Children: []*crawler.Node{
		{Role: "textbox", Name: "Username", Value: p.values["#username"]},
		{Role: "textbox", Name: "Password", Value: p.values["#password"]},
		{Role: "button", Name: "Submit"},
	}}, nil
}

func (p *loginPage) Content(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loggedIn {
		return `<h1>Logged In Successfully</h1><a href="/logout">Log out</a>`, nil
	}
	return `<input id="username"><input id="password"><button id="submit">Submit</button>`, nil
}

func (p *loginPage) Locate(ctx context.Context, selector string) (executor.Element, error) {
	p.mu.Lock()
	found := !p.loggedIn && (selector == "#username" || selector == "#password" || selector == "#submit")
	p.mu.Unlock()
	if found {
		return &loginElement{page: p, key: selector}, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (p *loginPage) LocateText(ctx context.Context, text string) (executor.Element, error) {
	p.mu.Lock()
	found := p.loggedIn && text == "Log out"
	p.mu.Unlock()
	if found {
		return &loginElement{page: p, key: "text=" + text}, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

type loginElement struct {
	page *loginPage
	key  string
}

func (e *loginElement) Fill(_ context.Context, text string) error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	e.page.values[e.key] = text
	return nil
}

func (e *loginElement) Click(context.Context, time.Duration) error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	e.page.clicks = append(e.page.clicks, e.key)
	if e.key == "#submit" && e.page.values["#username"] == "student" && e.page.values["#password"] == "Password123" {
		e.page.loggedIn = true
	}
	return nil
}

// scriptedPlanner returns its plans in order and the last one forever after.
type scriptedPlanner struct {
	plans       []executor.Plan
	calls       int
	credentials []string
	observed    []*crawler.Observation
	panicOn     int
}

func (s *scriptedPlanner) Generate(_ context.Context, credential, _ string, obs *crawler.Observation) executor.Plan {
	s.calls++
	s.credentials = append(s.credentials, credential)
	s.observed = append(s.observed, obs)
	if s.panicOn == s.calls {
		panic("model adapter blew up")
	}
	if len(s.plans) == 0 {
		return executor.Plan{}
	}
	i := s.calls - 1
	if i >= len(s.plans) {
		i = len(s.plans) - 1
	}
	return s.plans[i]
}

type stubRunner struct {
	outcomes []executor.Outcome
	calls    int
}

func (r *stubRunner) Execute(context.Context, executor.Actuator, executor.Plan) executor.Result {
	r.calls++
	i := r.calls - 1
	if i >= len(r.outcomes) {
		i = len(r.outcomes) - 1
	}
	return executor.Result{Outcome: r.outcomes[i]}
}

func fastExecutor() *executor.Executor {
	return executor.New(executor.Options{ClickTimeout: 50 * time.Millisecond, FillTimeout: 50 * time.Millisecond}, nil)
}

func TestRunLoginScenario(t *testing.T) {
	page := newLoginPage()
	planner := &scriptedPlanner{plans: []executor.Plan{
		executor.NewPlan(
			executor.Type("#username", "student"),
			executor.Type("#password", "Password123"),
			executor.Click("#submit"),
			executor.End(),
		),
	}}
	var rounds []Round
	a := New(crawler.NewBuilder(0, nil), planner, fastExecutor(), Options{
		MaxRounds: DefaultMaxRounds,
		OnRound:   func(_ context.Context, r Round) { rounds = append(rounds, r) },
	}, nil)

	res := a.Run(context.Background(), "Log in with username 'student' and password 'Password123'", "key-1", page)

	assert.True(t, res.Succeeded)
	assert.Equal(t, ExitReasonSucceeded, res.Reason)
	assert.Equal(t, 1, res.Rounds)
	assert.NoError(t, res.Err)
	assert.True(t, page.loggedIn)
	assert.Equal(t, []string{"#submit"}, page.clicks)
	assert.Equal(t, []string{"key-1"}, planner.credentials)
	assert.Equal(t, []Round{{Number: 1, Actions: 4, Outcome: executor.OutcomeCompleted}}, rounds)
}

func TestRunRetriesAfterExhaustedPlan(t *testing.T) {
	page := newLoginPage()
	planner := &scriptedPlanner{plans: []executor.Plan{
		executor.NewPlan(
			executor.Type("#username", "student"),
			executor.Type("#password", "Password123"),
			executor.Click("#submit"),
		),
		executor.NewPlan(executor.End()),
	}}
	a := New(crawler.NewBuilder(0, nil), planner, fastExecutor(), Options{MaxRounds: 5}, nil)

	res := a.Run(context.Background(), "log in", "k", page)

	assert.True(t, res.Succeeded)
	assert.Equal(t, 2, res.Rounds)
	require.Len(t, planner.observed, 2)
	assert.Contains(t, planner.observed[1].HTMLSnippet, "Logged In Successfully")
}

func TestRunRetriesAfterFailedAction(t *testing.T) {
	page := newLoginPage()
	planner := &scriptedPlanner{plans: []executor.Plan{
		executor.NewPlan(executor.Click("#login-button"), executor.End()),
		executor.NewPlan(
			executor.Type("#username", "student"),
			executor.Type("#password", "Password123"),
			executor.Click("#submit"),
		),
		executor.NewPlan(executor.ClickText("Log out"), executor.End()),
	}}
	a := New(crawler.NewBuilder(0, nil), planner, fastExecutor(), Options{MaxRounds: 5}, nil)

	res := a.Run(context.Background(), "log in then log out", "k", page)

	assert.True(t, res.Succeeded)
	assert.Equal(t, 3, res.Rounds)
	assert.Equal(t, []string{"#submit", "text=Log out"}, page.clicks)
}

func TestRunAbortsOnAbsentObservation(t *testing.T) {
	page := newLoginPage()
	page.snapErr = errors.New("target closed")
	planner := &scriptedPlanner{plans: []executor.Plan{executor.NewPlan(executor.End())}}
	runner := &stubRunner{outcomes: []executor.Outcome{executor.OutcomeCompleted}}
	a := New(crawler.NewBuilder(0, nil), planner, runner, Options{MaxRounds: 5}, nil)

	res := a.Run(context.Background(), "goal", "k", page)

	assert.False(t, res.Succeeded)
	assert.Equal(t, ExitReasonObservationAbsent, res.Reason)
	assert.Equal(t, 1, res.Rounds)
	assert.ErrorIs(t, res.Err, crawler.ErrObservationAbsent)
	assert.Zero(t, planner.calls)
	assert.Zero(t, runner.calls)
}

func TestRunAbortsOnEmptyPlan(t *testing.T) {
	planner := &scriptedPlanner{}
	runner := &stubRunner{outcomes: []executor.Outcome{executor.OutcomeCompleted}}
	a := New(crawler.NewBuilder(0, nil), planner, runner, Options{MaxRounds: 5}, nil)

	res := a.Run(context.Background(), "goal", "k", newLoginPage())

	assert.False(t, res.Succeeded)
	assert.Equal(t, ExitReasonEmptyPlan, res.Reason)
	assert.Equal(t, 1, res.Rounds)
	assert.Equal(t, 1, planner.calls)
	assert.Zero(t, runner.calls)
}

func TestRunStopsAtRoundLimit(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	planner := &scriptedPlanner{plans: []executor.Plan{executor.NewPlan(executor.Click("#nothing"))}}
	runner := &stubRunner{outcomes: []executor.Outcome{executor.OutcomeFailed, executor.OutcomeExhausted}}
	a := New(crawler.NewBuilder(0, nil), planner, runner, Options{MaxRounds: 3}, zap.New(core))

	res := a.Run(context.Background(), "goal", "k", newLoginPage())

	assert.False(t, res.Succeeded)
	assert.Equal(t, ExitReasonRoundLimit, res.Reason)
	assert.Equal(t, 3, res.Rounds)
	assert.Equal(t, 3, planner.calls)
	assert.Equal(t, 3, runner.calls)
	assert.Equal(t, 3, logs.FilterMessage("Round finished").Len())
}

func TestRunUnboundedUntilSuccess(t *testing.T) {
	outcomes := make([]executor.Outcome, 0, 40)
	for range 39 {
		outcomes = append(outcomes, executor.OutcomeExhausted)
	}
	outcomes = append(outcomes, executor.OutcomeCompleted)
	planner := &scriptedPlanner{plans: []executor.Plan{executor.NewPlan(executor.Click("#a"))}}
	a := New(crawler.NewBuilder(0, nil), planner, &stubRunner{outcomes: outcomes}, Options{}, nil)

	res := a.Run(context.Background(), "goal", "k", newLoginPage())

	assert.True(t, res.Succeeded)
	assert.Equal(t, 40, res.Rounds)
}

func TestRunRecoversPanic(t *testing.T) {
	planner := &scriptedPlanner{
		plans:   []executor.Plan{executor.NewPlan(executor.Click("#a"))},
		panicOn: 2,
	}
	runner := &stubRunner{outcomes: []executor.Outcome{executor.OutcomeFailed}}
	a := New(crawler.NewBuilder(0, nil), planner, runner, Options{MaxRounds: 5}, nil)

	var res Result
	require.NotPanics(t, func() {
		res = a.Run(context.Background(), "goal", "k", newLoginPage())
	})

	assert.False(t, res.Succeeded)
	assert.Equal(t, ExitReasonFault, res.Reason)
	assert.Equal(t, 2, res.Rounds)
	assert.ErrorContains(t, res.Err, "model adapter blew up")
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	planner := &scriptedPlanner{plans: []executor.Plan{executor.NewPlan(executor.End())}}
	a := New(crawler.NewBuilder(0, nil), planner, &stubRunner{outcomes: []executor.Outcome{executor.OutcomeCompleted}}, Options{}, nil)

	res := a.Run(ctx, "goal", "k", newLoginPage())

	assert.Equal(t, ExitReasonCanceled, res.Reason)
	assert.Zero(t, res.Rounds)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Zero(t, planner.calls)
}

func TestRunCanceledBetweenRounds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	planner := &scriptedPlanner{plans: []executor.Plan{executor.NewPlan(executor.Click("#a"))}}
	a := New(crawler.NewBuilder(0, nil), planner, &stubRunner{outcomes: []executor.Outcome{executor.OutcomeFailed}}, Options{
		OnRound: func(_ context.Context, r Round) {
			if r.Number == 2 {
				cancel()
			}
		},
	}, nil)

	res := a.Run(ctx, "goal", "k", newLoginPage())

	assert.Equal(t, ExitReasonCanceled, res.Reason)
	assert.Equal(t, 2, res.Rounds)
}

func TestNegativeMaxRoundsMeansUnbounded(t *testing.T) {
	a := New(nil, nil, nil, Options{MaxRounds: -1}, nil)
	assert.Zero(t, a.opts.MaxRounds)
}

func TestExitReasonString(t *testing.T) {
	cases := map[ExitReason]string{
		ExitReasonUnknown:           "unknown",
		ExitReasonSucceeded:         "succeeded",
		ExitReasonObservationAbsent: "observation absent",
		ExitReasonEmptyPlan:         "empty plan",
		ExitReasonRoundLimit:        "round limit",
		ExitReasonFault:             "fault",
		ExitReasonCanceled:          "canceled",
		ExitReason(99):              "unknown",
	}
	for reason, want := range cases {
		assert.Equal(t, want, reason.String(), fmt.Sprintf("reason %d", int(reason)))
	}
}
