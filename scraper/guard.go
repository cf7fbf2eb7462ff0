package scraper

import (
	"context"
	"time"

	"vehicle-pricer/models"
	"vehicle-pricer/utils"
)

// Guarded bounds a source by a timeout and keeps its panics inside.
type Guarded struct {
	name    string
	inner   ListingSource
	timeout time.Duration
	logger  *utils.Logger
}

// Guard wraps inner so that Fetch always returns within timeout.
func Guard(name string, inner ListingSource, timeout time.Duration, logger *utils.Logger) *Guarded {
	return &Guarded{name: name, inner: inner, timeout: timeout, logger: logger}
}

type fetchOutcome struct {
	result   *models.ProviderResult
	err      error
	panicked any
}

// Fetch runs the inner source in its own goroutine. An overrun or a panic
// yields an empty transport-failure result; a timed-out call is left to
// observe its cancelled context and finish on its own.
func (g *Guarded) Fetch(ctx context.Context, q models.VehicleQuery) (*models.ProviderResult, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	done := make(chan fetchOutcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fetchOutcome{panicked: rec}
			}
		}()
		res, err := g.inner.Fetch(ctx, q)
		done <- fetchOutcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		switch {
		case out.panicked != nil:
			g.logger.Error("[%s] fetch panicked for %s: %v", g.name, q.Label(), out.panicked)
			return models.EmptyResult(g.name, "", models.FailureTransport), nil
		case out.err != nil:
			return nil, out.err
		case out.result == nil:
			return models.EmptyResult(g.name, "", models.FailureParse), nil
		}
		return out.result, nil
	case <-ctx.Done():
		g.logger.Warn("[%s] no answer for %s within %v", g.name, q.Label(), g.timeout)
		return models.EmptyResult(g.name, "", models.FailureTransport), nil
	}
}
