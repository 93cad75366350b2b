// Package orchestrator runs the stack start sequence.
//
// The orchestrator is the single coordinator of a run. It owns the RunState
// and drives every other component in a strict blocking chain:
//
//  1. Tunnel: preflight, spawn the SSM session, wait for the local port (TCP)
//  2. Services in dependency order: launch, then wait for the health endpoint
//  3. Once every process is READY, all are marked RUNNING and handed to the
//     supervisor
//  4. Teardown through the cleanup coordinator, exactly once, on every exit path
//
// # Dependency Management
//
// Services declare dependsOn edges. StartOrder performs a topological sort
// that is stable with respect to configuration order, so the default stack
// always starts as tool server, search agent, expert agent, main agent. A
// service is never launched before every service it depends on is READY.
//
// # Failure Handling
//
// Any error before supervision begins is fatal for the run: no further
// process is launched and cleanup runs before Run returns. Cancellation of the
// context (interrupt or terminate) is treated as a normal shutdown.
package orchestrator
