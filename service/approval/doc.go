// Package approval implements the human-in-the-loop orchestrator: it gates
// workflow steps behind approval requests, drives the request state machine
// (responses, timeouts, retries, escalation, cancellation) and closes the
// learning loop by feeding outcomes back to the confidence evaluator.
package approval
