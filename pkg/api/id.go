package api

import (
	"regexp"
	"strings"
)

type (
	// WorkflowID identifies a registered workflow definition
	WorkflowID string

	// InstanceID uniquely identifies one execution of a workflow definition
	InstanceID string

	// TaskID identifies a task within a workflow definition
	TaskID string

	// ApprovalID uniquely identifies an approval request
	ApprovalID string

	// InstanceTask identifies a task record within a workflow instance
	InstanceTask struct {
		InstanceID InstanceID
		TaskID     TaskID
	}
)

// InvalidIDChars matches characters not permitted in workflow and task IDs.
// Valid characters are: letters, digits, underscore, dot, hyphen, plus, space
var InvalidIDChars = regexp.MustCompile(`[^a-zA-Z0-9_.\-+ ]`)

// SanitizeID lowercases an ID, removes invalid characters, replaces spaces
// with hyphens, and trims leading and trailing hyphens
func SanitizeID[T ~string](id T) T {
	lower := strings.ToLower(string(id))
	sanitized := InvalidIDChars.ReplaceAllString(lower, "")
	sanitized = strings.ReplaceAll(sanitized, " ", "-")
	return T(strings.Trim(sanitized, "-"))
}

func (it InstanceTask) String() string {
	return string(it.InstanceID) + "/" + string(it.TaskID)
}
