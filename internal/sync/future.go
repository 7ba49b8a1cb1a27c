package sync

// Future is a value that becomes available at some point in the future.
type Future[T any] interface {
	// Get returns the value if set, blocks otherwise
	Get(ctx Context) (T, error)
}

// SettableFuture is a Future whose value can be set once.
type SettableFuture[T any] interface {
	Future[T]

	// Set stores the value and error and unblocks any waiting consumers
	Set(v T, err error)

	// Ready returns true if the value has been set
	Ready() bool
}

func NewFuture[T any]() SettableFuture[T] {
	return &future[T]{}
}

type future[T any] struct {
	set bool
	v   T
	err error
}

func (f *future[T]) Set(v T, err error) {
	if f.set {
		panic("future already set")
	}

	f.v = v
	f.err = err
	f.set = true
}

func (f *future[T]) Ready() bool {
	return f.set
}

func (f *future[T]) Get(ctx Context) (T, error) {
	for {
		cr := getCoState(ctx)

		if f.set {
			cr.MadeProgress()

			return f.v, f.err
		}

		cr.Yield()
	}
}
