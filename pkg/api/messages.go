package api

type (
	// StartInstanceRequest contains parameters for starting a workflow
	StartInstanceRequest struct {
		Parameters Args       `json:"parameters,omitempty"`
		WorkflowID WorkflowID `json:"workflow_id"`
		InstanceID InstanceID `json:"instance_id,omitempty"`
	}

	// InstanceStartedResponse is returned when an instance start succeeds
	InstanceStartedResponse struct {
		Message    string     `json:"message"`
		InstanceID InstanceID `json:"instance_id"`
	}

	// InstancesListResponse contains a list of instance summaries
	InstancesListResponse struct {
		Instances []*InstanceDigest `json:"instances"`
		Count     int               `json:"count"`
	}

	// DefinitionRegisteredResponse is returned when a definition is stored
	DefinitionRegisteredResponse struct {
		Definition *WorkflowDefinition `json:"definition"`
		Message    string              `json:"message"`
	}

	// DefinitionsListResponse contains the registered definitions
	DefinitionsListResponse struct {
		Definitions []*WorkflowDefinition `json:"definitions"`
		Count       int                   `json:"count"`
	}

	// ApprovalsListResponse contains a list of approval requests
	ApprovalsListResponse struct {
		Approvals []*ApprovalRequest `json:"approvals"`
		Count     int                `json:"count"`
	}

	// HealthResponse provides service health information
	HealthResponse struct {
		Service string `json:"service"`
		Version string `json:"version"`
		Status  string `json:"status"`
		Error   string `json:"error,omitempty"`
	}

	// MessageResponse contains a simple message string
	MessageResponse struct {
		Message string `json:"message"`
	}

	// ErrorResponse contains error details for failed requests
	ErrorResponse struct {
		Error  string `json:"error"`
		Status int    `json:"status,omitempty"`
	}
)
