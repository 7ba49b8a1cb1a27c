package sync

// Context carries values across workflow API boundaries. It intentionally
// mirrors a subset of context.Context: workflow executions cannot be canceled
// mid-step, the only cancellation primitive is purging the instance.
type Context interface {
	// Value returns the value associated with this context for key, or nil
	// if no value is associated with key.
	Value(key any) any
}

type emptyCtx int

func (*emptyCtx) Value(key any) any {
	return nil
}

var background = new(emptyCtx)

// Background returns a non-nil, empty Context.
func Background() Context {
	return background
}

// WithValue returns a copy of parent in which the value associated with key
// is val.
func WithValue(parent Context, key, val any) Context {
	if key == nil {
		panic("nil key")
	}

	return &valueCtx{parent, key, val}
}

type valueCtx struct {
	Context
	key, val any
}

func (c *valueCtx) Value(key any) any {
	if c.key == key {
		return c.val
	}

	return c.Context.Value(key)
}
