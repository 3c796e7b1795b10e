// Package activity provides the runtime that performs ordinary workflow
// tasks. Each task names an activity kind, and the Registry dispatches the
// attempt to the implementation registered for that kind
package activity
