package payload

// Payload is the serialized representation of a value passed between
// workflows, activities, and the backend.
type Payload []byte
