package core

// WorkflowInstance identifies a single execution of a workflow instance. The
// instance id is stable across continue-as-new generations, the execution id
// is unique per generation.
type WorkflowInstance struct {
	InstanceID  string `json:"instance_id,omitempty"`
	ExecutionID string `json:"execution_id,omitempty"`
}

func NewWorkflowInstance(instanceID, executionID string) *WorkflowInstance {
	return &WorkflowInstance{
		InstanceID:  instanceID,
		ExecutionID: executionID,
	}
}
