/*
Package recovery drives a degraded application back to a usable state.

# Overview

An Orchestrator receives fault records from the error-reporting side and
runs an ordered sequence of strategies against them until one succeeds or
asks for the process to reload or reset. Every run is:
  - Gated: only critical faults proceed (see apperror.IsCritical)
  - Exclusive: a run already in progress drops concurrent faults
  - Throttled: a cooldown window separates successive attempts
  - Total: HandleError always returns a Result and never panics

# Basic Usage

Build a single orchestrator in the composition root and hand it to every
fault source:

	orch := recovery.New(
	    recovery.WithLogger(logger),
	    recovery.WithCooldown(5*time.Second),
	)
	defer orch.Close()

	orch.RegisterStrategy(strategies.NewAutoSave(docs, kv))
	orch.RegisterStrategy(strategies.NewSoftReload(kv, proc))
	orch.SetContextProvider(func(ctx context.Context) (*recovery.RecoveryContext, error) {
	    return &recovery.RecoveryContext{ProjectID: project.ID, Design: editor.Snapshot()}, nil
	})

	result := orch.HandleError(ctx, apperror.FromError(err))
	if result.Next() == recovery.ActionReload {
	    return // control is leaving the process
	}

# Strategy Ordering

Strategies run in ascending Priority, ties broken by name. Names passed to
WithPreferredOrder run first, in that order, when they can handle the fault.
A strategy result stops the run when it is successful or when its
NextAction is ActionReload or ActionReset.

# Notifications

Subscribe registers a listener for started, progress, completed and failed
events. Listeners run on their own goroutine and never block a recovery.

# Observability

Runs are logged with log/slog, traced with OpenTelemetry spans
("recovery.handle" with one "recovery.strategy.<name>" child per strategy)
and counted through an observability.MetricsRecorder.
*/
package recovery
