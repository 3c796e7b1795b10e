package api

import (
	"errors"
	"fmt"
	"slices"
)

type (
	// TaskKind distinguishes ordinary activities from human approvals
	TaskKind string

	// FailureMode controls how a task failure propagates to its siblings
	FailureMode string

	// WorkflowDefinition is an immutable, versioned description of a set of
	// tasks and the dependencies between them
	WorkflowDefinition struct {
		ID          WorkflowID        `json:"id" yaml:"id"`
		Name        string            `json:"name,omitempty" yaml:"name,omitempty"`
		Version     string            `json:"version,omitempty" yaml:"version,omitempty"`
		Description string            `json:"description,omitempty" yaml:"description,omitempty"`
		FailureMode FailureMode       `json:"failure_mode,omitempty" yaml:"failure_mode,omitempty"`
		Parameters  []*Parameter      `json:"parameters,omitempty" yaml:"parameters,omitempty"`
		Tasks       []*TaskDefinition `json:"tasks" yaml:"tasks"`
	}

	// Parameter declares a named input of a workflow
	Parameter struct {
		Default     any    `json:"default,omitempty" yaml:"default,omitempty"`
		Name        string `json:"name" yaml:"name"`
		Type        string `json:"type,omitempty" yaml:"type,omitempty"`
		Description string `json:"description,omitempty" yaml:"description,omitempty"`
		Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
	}

	// TaskDefinition describes a single unit of work within a workflow
	TaskDefinition struct {
		Config    Config       `json:"config,omitempty" yaml:"config,omitempty"`
		Retry     *RetryPolicy `json:"retry,omitempty" yaml:"retry,omitempty"`
		ID        TaskID       `json:"id" yaml:"id"`
		Name      string       `json:"name,omitempty" yaml:"name,omitempty"`
		Kind      TaskKind     `json:"kind" yaml:"kind"`
		Activity  string       `json:"activity,omitempty" yaml:"activity,omitempty"`
		DependsOn []TaskID     `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`

		// Timeout bounds the execution of a single attempt
		Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	}

	// RetryPolicy describes how many attempts a task gets and how long to
	// wait between them. Zero values are filled from engine defaults
	RetryPolicy struct {
		MaxAttempts         int      `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
		InitialBackoff      Duration `json:"initial_backoff,omitempty" yaml:"initial_backoff,omitempty"`
		MaxBackoff          Duration `json:"max_backoff,omitempty" yaml:"max_backoff,omitempty"`
		Multiplier          float64  `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
		NonRetryableTimeout bool     `json:"non_retryable_timeout,omitempty" yaml:"non_retryable_timeout,omitempty"`
	}
)

const (
	TaskActivity TaskKind = "activity"
	TaskApproval TaskKind = "approval"
)

const (
	FailFast   FailureMode = "fail_fast"
	BestEffort FailureMode = "best_effort"
)

var (
	ErrDefinition         = errors.New("invalid workflow definition")
	ErrDefinitionIDEmpty  = fmt.Errorf("%w: id empty", ErrDefinition)
	ErrNoTasks            = fmt.Errorf("%w: no tasks", ErrDefinition)
	ErrTaskIDEmpty        = fmt.Errorf("%w: task id empty", ErrDefinition)
	ErrInvalidTaskKind    = fmt.Errorf("%w: invalid task kind", ErrDefinition)
	ErrActivityRequired   = fmt.Errorf("%w: activity required", ErrDefinition)
	ErrInvalidFailureMode = fmt.Errorf("%w: invalid failure mode", ErrDefinition)
	ErrDuplicateParameter = fmt.Errorf("%w: duplicate parameter", ErrDefinition)
	ErrParameterNameEmpty = fmt.Errorf("%w: parameter name empty", ErrDefinition)
	ErrInvalidTimeout     = fmt.Errorf("%w: timeout must be positive", ErrDefinition)
	ErrInvalidMaxAttempts = fmt.Errorf("%w: max attempts must be >= 1", ErrDefinition)
	ErrInvalidMultiplier  = fmt.Errorf("%w: multiplier must be >= 1", ErrDefinition)
	ErrInvalidBackoff     = fmt.Errorf("%w: backoff must be positive", ErrDefinition)
	ErrMaxBackoffTooSmall = fmt.Errorf("%w: max backoff < initial", ErrDefinition)
	ErrRequiredParameter  = errors.New("required parameter missing")
	ErrUnknownParameter   = errors.New("unknown parameter")
)

// Validate checks the definition's fields. Dependency structure is checked
// separately when the definition's graph is built
func (d *WorkflowDefinition) Validate() error {
	if d.ID == "" {
		return ErrDefinitionIDEmpty
	}
	if len(d.Tasks) == 0 {
		return ErrNoTasks
	}
	switch d.FailureMode {
	case "", FailFast, BestEffort:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidFailureMode, d.FailureMode)
	}

	seen := map[string]bool{}
	for _, p := range d.Parameters {
		if p.Name == "" {
			return ErrParameterNameEmpty
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateParameter, p.Name)
		}
		seen[p.Name] = true
	}

	for _, t := range d.Tasks {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// GetTask returns the task with the given ID, or nil if not present
func (d *WorkflowDefinition) GetTask(id TaskID) *TaskDefinition {
	for _, t := range d.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// TaskIDs returns the task identifiers in declaration order
func (d *WorkflowDefinition) TaskIDs() []TaskID {
	res := make([]TaskID, len(d.Tasks))
	for i, t := range d.Tasks {
		res[i] = t.ID
	}
	return res
}

// EffectiveFailureMode returns the declared failure mode, or fallback when
// the definition leaves it unset
func (d *WorkflowDefinition) EffectiveFailureMode(
	fallback FailureMode,
) FailureMode {
	if d.FailureMode != "" {
		return d.FailureMode
	}
	if fallback != "" {
		return fallback
	}
	return FailFast
}

// BindParameters applies declared defaults to the supplied values and
// reports missing required or undeclared parameters
func (d *WorkflowDefinition) BindParameters(params Args) (Args, error) {
	res := Args{}
	declared := map[string]bool{}
	for _, p := range d.Parameters {
		declared[p.Name] = true
		if v, ok := params[p.Name]; ok {
			res[p.Name] = v
			continue
		}
		if p.Default != nil {
			res[p.Name] = p.Default
			continue
		}
		if p.Required {
			return nil, fmt.Errorf("%w: %s", ErrRequiredParameter, p.Name)
		}
	}
	for name, v := range params {
		if len(d.Parameters) > 0 && !declared[name] {
			return nil, fmt.Errorf("%w: %s", ErrUnknownParameter, name)
		}
		res[name] = v
	}
	return res, nil
}

// Equal reports whether two definitions describe the same workflow
func (d *WorkflowDefinition) Equal(other *WorkflowDefinition) bool {
	if d == nil || other == nil {
		return d == other
	}
	if d.ID != other.ID || d.Version != other.Version ||
		d.FailureMode != other.FailureMode ||
		len(d.Tasks) != len(other.Tasks) {
		return false
	}
	for i, t := range d.Tasks {
		o := other.Tasks[i]
		if t.ID != o.ID || t.Kind != o.Kind || t.Activity != o.Activity ||
			t.Timeout != o.Timeout || !slices.Equal(t.DependsOn, o.DependsOn) {
			return false
		}
	}
	return true
}

// Validate checks the task's own fields
func (t *TaskDefinition) Validate() error {
	if t.ID == "" {
		return ErrTaskIDEmpty
	}
	switch t.Kind {
	case "", TaskActivity:
		if t.Activity == "" {
			return fmt.Errorf("%w: %s", ErrActivityRequired, t.ID)
		}
	case TaskApproval:
	default:
		return fmt.Errorf("%w: %s (%q)", ErrInvalidTaskKind, t.ID, t.Kind)
	}
	if t.Timeout < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTimeout, t.ID)
	}
	if t.Retry != nil {
		if err := t.Retry.Validate(); err != nil {
			return fmt.Errorf("%w (task %s)", err, t.ID)
		}
	}
	return nil
}

// IsApproval reports whether the task waits for a human decision instead
// of invoking the activity runtime
func (t *TaskDefinition) IsApproval() bool {
	return t.Kind == TaskApproval
}

// DisplayName returns the task's name, falling back to its ID
func (t *TaskDefinition) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return string(t.ID)
}

// Validate checks the retry policy invariants. Zero-valued fields are
// permitted and mean "use the engine default"
func (p *RetryPolicy) Validate() error {
	if p.MaxAttempts < 0 {
		return ErrInvalidMaxAttempts
	}
	if p.Multiplier != 0 && p.Multiplier < 1 {
		return ErrInvalidMultiplier
	}
	if p.InitialBackoff < 0 || p.MaxBackoff < 0 {
		return ErrInvalidBackoff
	}
	if p.MaxBackoff > 0 && p.InitialBackoff > 0 &&
		p.MaxBackoff < p.InitialBackoff {
		return ErrMaxBackoffTooSmall
	}
	return nil
}
