package dsl

import (
	"gopkg.in/yaml.v3"

	"github.com/tessera-flow/tessera/engine/pkg/api"
)

type (
	// document mirrors the YAML layout, including the field names used by
	// older definitions
	document struct {
		ID          api.WorkflowID   `yaml:"id"`
		Name        string           `yaml:"name"`
		Version     scalar           `yaml:"version"`
		Description string           `yaml:"description"`
		FailureMode api.FailureMode  `yaml:"failure_mode"`
		Parameters  []*api.Parameter `yaml:"parameters"`
		Tasks       []*taskDocument  `yaml:"tasks"`
	}

	taskDocument struct {
		ID        api.TaskID     `yaml:"id"`
		Name      string         `yaml:"name"`
		Kind      api.TaskKind   `yaml:"kind"`
		Activity  string         `yaml:"activity"`
		Config    api.Config     `yaml:"config"`
		DependsOn []api.TaskID   `yaml:"depends_on"`
		Retry     *retryDocument `yaml:"retry"`
		Timeout   api.Duration   `yaml:"timeout"`

		// legacy
		Type         string `yaml:"type"`
		ActivityType string `yaml:"activity_type"`
	}

	retryDocument struct {
		MaxAttempts         int          `yaml:"max_attempts"`
		InitialBackoff      api.Duration `yaml:"initial_backoff"`
		MaxBackoff          api.Duration `yaml:"max_backoff"`
		Multiplier          float64      `yaml:"multiplier"`
		NonRetryableTimeout bool         `yaml:"non_retryable_timeout"`

		// legacy
		InitialInterval api.Duration `yaml:"initial_interval"`
		MaxInterval     api.Duration `yaml:"max_interval"`
	}

	// scalar keeps the literal text of a YAML scalar, so that a version
	// written as 1.0 stays "1.0" instead of becoming a float
	scalar string
)

const (
	legacyTaskTypeActivity = "activity"
	legacyApprovalActivity = "human_approval"
)

// UnmarshalYAML captures the node's literal value
func (s *scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		var v string
		return node.Decode(&v)
	}
	*s = scalar(node.Value)
	return nil
}

func (d *document) definition() *api.WorkflowDefinition {
	def := &api.WorkflowDefinition{
		ID:          d.ID,
		Name:        d.Name,
		Version:     string(d.Version),
		Description: d.Description,
		FailureMode: d.FailureMode,
		Parameters:  d.Parameters,
		Tasks:       make([]*api.TaskDefinition, len(d.Tasks)),
	}
	if def.ID == "" {
		def.ID = api.WorkflowID(d.Name)
	}
	for i, t := range d.Tasks {
		def.Tasks[i] = t.definition()
	}
	return def
}

func (t *taskDocument) definition() *api.TaskDefinition {
	res := &api.TaskDefinition{
		ID:        t.ID,
		Name:      t.Name,
		Kind:      t.kind(),
		Activity:  t.Activity,
		Config:    t.Config,
		DependsOn: t.DependsOn,
		Timeout:   t.Timeout,
	}
	if res.Activity == "" && !res.IsApproval() {
		res.Activity = t.ActivityType
	}
	if t.Retry != nil {
		res.Retry = t.Retry.policy()
	}
	return res
}

func (t *taskDocument) kind() api.TaskKind {
	switch {
	case t.Kind != "":
		return t.Kind
	case t.ActivityType == legacyApprovalActivity:
		return api.TaskApproval
	case t.Type != "" && t.Type != legacyTaskTypeActivity:
		return api.TaskKind(t.Type)
	default:
		return api.TaskActivity
	}
}

func (r *retryDocument) policy() *api.RetryPolicy {
	res := &api.RetryPolicy{
		MaxAttempts:         r.MaxAttempts,
		InitialBackoff:      r.InitialBackoff,
		MaxBackoff:          r.MaxBackoff,
		Multiplier:          r.Multiplier,
		NonRetryableTimeout: r.NonRetryableTimeout,
	}
	if res.InitialBackoff == 0 {
		res.InitialBackoff = r.InitialInterval
	}
	if res.MaxBackoff == 0 {
		res.MaxBackoff = r.MaxInterval
	}
	return res
}
