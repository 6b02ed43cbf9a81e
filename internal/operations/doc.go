// Package operations implements the operation wizard: a guarded, ordered
// sequence of steps that configures a dive operation record.
//
// The steps are fixed:
//
//	operation → site → team → first-document → second-document → validation
//
// Each step's status is derived, never stored. DeriveStatuses is a pure
// function of the fetched record, the document readiness snapshot and
// whether the record identity exists. The validation step becomes active
// once every other step is completed.
//
// Core Components:
//
// Session: the controller for one editing session. It owns the record
// identity (created when the operation step completes), polls the record
// store and the readiness service on independent intervals, republishes
// derived state to subscribers, and auto-advances after a step completes.
//
// Navigator: the current step index with guarded moves. Forward moves need
// the target to be navigable; moving back is always allowed.
//
// AutoSaver: the debounced write channel for every step except operation.
// Rapid edits are merged and written once after a quiet period; failures
// are notified once and not retried.
//
// Deriver: memoizes DeriveStatuses on pointer-equal inputs.
//
// Example usage:
//
//	session, err := operations.NewSession(operations.SessionDeps{
//		Records:   store,
//		Readiness: store,
//		Notifier:  notifier,
//		Logger:    logger,
//	}, operations.DefaultSessionOptions())
//	if err != nil {
//		return err
//	}
//	defer session.Close()
//
//	cancel := session.Subscribe(func(s operations.Snapshot) {
//		render(s)
//	})
//	defer cancel()
//
//	if err := session.Start(ctx); err != nil {
//		return err
//	}
//	err = session.CompleteStep(ctx, operations.StepOperation, map[string]any{
//		"name": "Harbour inspection",
//	})
//
// Timers come from an injected Clock; tests drive them with the FakeClock
// in the testutil package.
package operations
