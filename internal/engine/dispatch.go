package engine

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gazefan/gazefan/distributor"
	enginerrors "github.com/gazefan/gazefan/internal/engine/errors"
	"github.com/gazefan/gazefan/internal/engine/ids"
	"github.com/gazefan/gazefan/internal/engine/logging"
)

// Outcome is the per-target result of one dispatch call.
type Outcome struct {
	Distributor string
	Success     bool
	Err         error
}

// Summary aggregates the outcomes of one dispatch call.
type Summary struct {
	Total      int
	Successful int
	Failed     int
}

// DistributionResult is returned synchronously from every dispatch call.
// Outcome order matches the resolved target order, so callers and tests can
// assert positionally. Results are never persisted.
type DistributionResult struct {
	DispatchID string
	Event      string
	Outcomes   []Outcome
	Summary    Summary
}

// dispatchTarget pairs a requested target name with the adapter resolved
// for it. A nil adapter marks an unknown distributor; it produces a failure
// outcome instead of aborting the call.
type dispatchTarget struct {
	name string
	dist distributor.Distributor
}

// DispatchEngine fans one event out to a resolved set of adapters
// concurrently and aggregates the outcomes. Fault isolation is per target:
// no target's failure affects another target's send, and the engine imposes
// no global timeout beyond what each adapter bounds itself with.
type DispatchEngine struct {
	logger logging.ServiceLogger
	tracer trace.Tracer
}

// NewDispatchEngine creates a dispatch engine. A nil logger disables
// logging.
func NewDispatchEngine(logger logging.ServiceLogger) *DispatchEngine {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &DispatchEngine{
		logger: logger,
		tracer: otel.Tracer("gazefan/engine"),
	}
}

// Distribute sends one event to every target concurrently. The call
// returns once every launched send has resolved: success, error, or the
// adapter's own timeout. There is no mid-flight cancellation of an
// individual send once dispatched.
func (e *DispatchEngine) Distribute(ctx context.Context, sessionID, event string, payload any, targets []dispatchTarget) DistributionResult {
	dispatchID := ids.CreateULID()
	started := time.Now()

	ctx, span := e.tracer.Start(ctx, "gazefan.distribute", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("event.name", event),
		attribute.String("dispatch.id", dispatchID),
		attribute.Int("targets.count", len(targets)),
	))
	defer span.End()

	dispatchCalls.WithLabelValues(sessionID, event).Inc()

	outcomes := make([]Outcome, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		if target.dist == nil {
			outcomes[i] = Outcome{
				Distributor: target.name,
				Err: &enginerrors.SendError{
					Distributor: target.name,
					Event:       event,
					Err:         enginerrors.ErrUnknownTarget,
				},
			}
			dispatchOutcomes.WithLabelValues(sessionID, target.name, outcomeUnknown).Inc()
			continue
		}

		wg.Add(1)
		go func(i int, target dispatchTarget) {
			defer wg.Done()
			err := target.dist.Send(ctx, event, payload)
			if err != nil {
				outcomes[i] = Outcome{
					Distributor: target.name,
					Err: &enginerrors.SendError{
						Distributor: target.name,
						Event:       event,
						Err:         err,
					},
				}
				dispatchOutcomes.WithLabelValues(sessionID, target.name, outcomeFailure).Inc()
				return
			}
			outcomes[i] = Outcome{Distributor: target.name, Success: true}
			dispatchOutcomes.WithLabelValues(sessionID, target.name, outcomeSuccess).Inc()
		}(i, target)
	}
	wg.Wait()

	result := DistributionResult{
		DispatchID: dispatchID,
		Event:      event,
		Outcomes:   outcomes,
	}
	for _, outcome := range outcomes {
		result.Summary.Total++
		if outcome.Success {
			result.Summary.Successful++
		} else {
			result.Summary.Failed++
		}
	}

	span.SetAttributes(
		attribute.Int("targets.successful", result.Summary.Successful),
		attribute.Int("targets.failed", result.Summary.Failed),
	)
	dispatchDuration.WithLabelValues(sessionID).Observe(time.Since(started).Seconds())

	if result.Summary.Failed > 0 {
		e.logger.Info("dispatch completed with failures", logging.LogFields{
			"session":    sessionID,
			"event":      event,
			"dispatch":   dispatchID,
			"successful": result.Summary.Successful,
			"failed":     result.Summary.Failed,
		})
	} else {
		e.logger.Trace("dispatch completed", logging.LogFields{
			"session":  sessionID,
			"event":    event,
			"dispatch": dispatchID,
			"targets":  result.Summary.Total,
		})
	}
	return result
}
