package api

type (
	// ActivityRequest is everything the activity runtime receives for one
	// attempt of an ordinary task
	ActivityRequest struct {
		Config     Config          `json:"config,omitempty"`
		Parameters Args            `json:"parameters,omitempty"`
		Inputs     map[TaskID]Args `json:"inputs,omitempty"`
		InstanceID InstanceID      `json:"instance_id"`
		TaskID     TaskID          `json:"task_id"`
		Activity   string          `json:"activity"`
		Attempt    int             `json:"attempt"`
	}
)

// InputArgs flattens dependency results into a single Args value keyed by
// dependency task ID
func (r *ActivityRequest) InputArgs() Args {
	res := make(Args, len(r.Inputs))
	for id, result := range r.Inputs {
		res[string(id)] = map[string]any(result)
	}
	return res
}
