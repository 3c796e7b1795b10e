// Package api defines the core data types shared by the workflow engine
//
// This package contains workflow and task definitions, the state of running
// workflow instances, approval requests, persisted events, transition
// notifications, and HTTP messages
package api
