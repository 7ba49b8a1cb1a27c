package sync

// Channel is a deterministic replacement for Go channels inside workflow
// code. Blocking operations yield to the coroutine scheduler instead of
// blocking the OS thread.
type Channel[T any] interface {
	// Send delivers v, blocking until a receiver or buffer space is available
	Send(ctx Context, v T)

	// SendNonblocking delivers v if a receiver or buffer space is available
	SendNonblocking(v T) (ok bool)

	// Receive returns the next value. The second return value is false if the
	// channel is closed and drained
	Receive(ctx Context) (v T, ok bool)

	// ReceiveNonblocking returns the next value if one is available
	ReceiveNonblocking() (v T, ok bool)

	Close()

	// Len returns the number of buffered values
	Len() int
}

func NewChannel[T any]() Channel[T] {
	return &channel[T]{}
}

func NewBufferedChannel[T any](size int) Channel[T] {
	return &channel[T]{
		buf:  make([]T, 0, size),
		size: size,
	}
}

type channel[T any] struct {
	buf       []T
	receivers []func(T, bool)
	senders   []func() T
	closed    bool
	size      int
}

func (c *channel[T]) Close() {
	c.closed = true

	// Unblock all waiting receivers with the zero value
	for len(c.receivers) > 0 {
		r := c.receivers[0]
		c.receivers = c.receivers[1:]

		var zero T
		r(zero, false)
	}
}

func (c *channel[T]) Send(ctx Context, v T) {
	addedSender := false
	sentValue := false

	for {
		if c.trySend(v) {
			return
		}

		if !addedSender {
			addedSender = true

			c.senders = append(c.senders, func() T {
				sentValue = true
				return v
			})
		}

		cr := getCoState(ctx)
		cr.Yield()

		if sentValue {
			return
		}
	}
}

func (c *channel[T]) SendNonblocking(v T) bool {
	return c.trySend(v)
}

func (c *channel[T]) Receive(ctx Context) (T, bool) {
	cr := getCoState(ctx)

	var received T
	receivedOk := false
	receivedValue := false
	addedListener := false

	for {
		if v, ok := c.tryReceive(); ok {
			cr.MadeProgress()
			return v, true
		} else if c.closed {
			cr.MadeProgress()
			return v, false
		}

		if !addedListener {
			c.receivers = append(c.receivers, func(v T, ok bool) {
				received = v
				receivedOk = ok
				receivedValue = true
			})
			addedListener = true
		}

		cr.Yield()

		if receivedValue {
			cr.MadeProgress()
			return received, receivedOk
		}
	}
}

func (c *channel[T]) ReceiveNonblocking() (T, bool) {
	return c.tryReceive()
}

func (c *channel[T]) Len() int {
	return len(c.buf)
}

func (c *channel[T]) trySend(v T) bool {
	if c.closed {
		panic("send on closed channel")
	}

	// Unblock the first waiting receiver with the value
	if len(c.receivers) > 0 {
		r := c.receivers[0]
		c.receivers = c.receivers[1:]
		r(v, true)
		return true
	}

	// No waiting receiver, buffer the value if there is capacity
	if len(c.buf) < c.size {
		c.buf = append(c.buf, v)
		return true
	}

	return false
}

func (c *channel[T]) tryReceive() (T, bool) {
	if len(c.buf) > 0 {
		v := c.buf[0]
		c.buf = c.buf[1:]
		return v, true
	}

	if len(c.senders) > 0 {
		s := c.senders[0]
		c.senders = c.senders[1:]
		return s(), true
	}

	var zero T
	return zero, false
}
