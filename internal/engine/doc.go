// Package engine implements the workflow orchestrator
//
// Each workflow instance is driven by a single actor goroutine that owns
// every transition of the instance's task records. Transitions are
// persisted as timebox events, so an instance can be rebuilt and resumed
// from its event stream alone
package engine
