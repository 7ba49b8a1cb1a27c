package core

import "github.com/enqbot/enqbot/backend/payload"

type WorkflowInstanceState int

const (
	WorkflowInstanceStateActive WorkflowInstanceState = iota
	WorkflowInstanceStateContinuedAsNew
	WorkflowInstanceStateFinished
)

func (s WorkflowInstanceState) String() string {
	switch s {
	case WorkflowInstanceStateActive:
		return "Active"
	case WorkflowInstanceStateContinuedAsNew:
		return "ContinuedAsNew"
	case WorkflowInstanceStateFinished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// WorkflowInstanceStatus is a point-in-time view of an instance as returned
// by status queries. CustomStatus holds the last value the workflow reported
// via SetCustomStatus, it survives continue-as-new.
type WorkflowInstanceStatus struct {
	Instance *WorkflowInstance

	State WorkflowInstanceState

	CustomStatus payload.Payload
}
