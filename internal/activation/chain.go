// Package activation brings windows and browser tabs to the front.
//
// Application windows are activated by running an ordered list of strategies
// until one succeeds. Tabs are activated through the relay peer.
package activation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bryanchriswhite/TaskSwitcher/internal/logger"
	"github.com/bryanchriswhite/TaskSwitcher/internal/metrics"
)

var (
	// ErrNotApplicable lets a strategy decline a request it cannot handle
	ErrNotApplicable = errors.New("strategy not applicable")
	// ErrNoMatch means the strategy found no window matching the request
	ErrNoMatch = errors.New("no matching window")
	// ErrExhausted is returned by Chain.Run when no strategy succeeded
	ErrExhausted = errors.New("all activation strategies failed")
)

// Request identifies the window to activate. An empty TitlePattern means
// "bring the application to the front".
type Request struct {
	App          string
	TitlePattern string
}

// Strategy is one way of activating a window
type Strategy interface {
	Name() string
	Activate(ctx context.Context, req Request) error
}

// Failure records a strategy that was tried and failed
type Failure struct {
	Strategy string
	Err      error
}

// Outcome describes a chain run
type Outcome struct {
	// Strategy is the name of the strategy that succeeded, empty if none did
	Strategy string
	Skipped  []string
	Failures []Failure
	Duration time.Duration
}

// Chain tries strategies in order and stops at the first success
type Chain struct {
	strategies []Strategy
	metrics    *metrics.Metrics
}

// NewChain creates a chain over strategies
func NewChain(m *metrics.Metrics, strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies, metrics: m}
}

// Strategies returns the names of the strategies in order
func (c *Chain) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Run tries each strategy until one returns nil. It returns ErrExhausted,
// joined with the individual failures, when none does. A panicking strategy
// counts as a failure.
func (c *Chain) Run(ctx context.Context, req Request) (Outcome, error) {
	log := logger.WithComponent("activation")
	start := time.Now()
	var out Outcome

	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			out.Failures = append(out.Failures, Failure{Strategy: s.Name(), Err: err})
			break
		}

		err := runStrategy(ctx, s, req)
		switch {
		case err == nil:
			out.Strategy = s.Name()
			out.Duration = time.Since(start)
			c.metrics.Activation(s.Name(), "success")
			log.Debug().
				Str("strategy", s.Name()).
				Str("app", req.App).
				Str("title", req.TitlePattern).
				Dur("duration", out.Duration).
				Msg("Activation succeeded")
			return out, nil

		case errors.Is(err, ErrNotApplicable):
			out.Skipped = append(out.Skipped, s.Name())
			c.metrics.Activation(s.Name(), "skipped")

		default:
			out.Failures = append(out.Failures, Failure{Strategy: s.Name(), Err: err})
			c.metrics.Activation(s.Name(), "failure")
			log.Debug().
				Err(err).
				Str("strategy", s.Name()).
				Str("app", req.App).
				Msg("Activation strategy failed")
		}
	}

	out.Duration = time.Since(start)
	errs := []error{ErrExhausted}
	for _, f := range out.Failures {
		errs = append(errs, fmt.Errorf("%s: %w", f.Strategy, f.Err))
	}
	return out, errors.Join(errs...)
}

func runStrategy(ctx context.Context, s Strategy, req Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy panicked: %v", r)
		}
	}()
	return s.Activate(ctx, req)
}
