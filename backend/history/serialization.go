package history

import (
	"encoding/json"
	"fmt"
)

func (e *Event) UnmarshalJSON(data []byte) error {
	type Aevent Event
	a := &struct {
		// Defer unmarshaling the attributes, has to match the tag in Event
		Attributes json.RawMessage `json:"attr"`
		*Aevent
	}{
		Aevent: (*Aevent)(e),
	}

	if err := json.Unmarshal(data, a); err != nil {
		return err
	}

	attributes, err := DeserializeAttributes(e.Type, a.Attributes)
	if err != nil {
		return err
	}

	e.Attributes = attributes

	return nil
}

func SerializeAttributes(attributes any) ([]byte, error) {
	return json.Marshal(attributes)
}

func DeserializeAttributes(eventType EventType, attributes []byte) (attr any, err error) {
	switch eventType {
	case EventType_WorkflowExecutionStarted:
		attr = &ExecutionStartedAttributes{}
	case EventType_WorkflowExecutionFinished:
		attr = &ExecutionCompletedAttributes{}
	case EventType_WorkflowExecutionContinuedAsNew:
		attr = &ExecutionContinuedAsNewAttributes{}

	case EventType_WorkflowTaskStarted:
		attr = &WorkflowTaskStartedAttributes{}

	case EventType_ActivityScheduled:
		attr = &ActivityScheduledAttributes{}
	case EventType_ActivityCompleted:
		attr = &ActivityCompletedAttributes{}
	case EventType_ActivityFailed:
		attr = &ActivityFailedAttributes{}

	case EventType_SignalReceived:
		attr = &SignalReceivedAttributes{}

	default:
		return nil, fmt.Errorf("unknown event type %v when deserializing attributes", eventType)
	}

	err = json.Unmarshal(attributes, attr)
	return attr, err
}
