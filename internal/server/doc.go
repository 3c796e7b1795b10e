// Package server implements the HTTP API of the workflow engine
//
// This package provides REST endpoints for managing workflow definitions,
// instances, and approvals, plus health, metrics, and a WebSocket stream
// of transitions
package server
