package workflowstate

import (
	"github.com/enqbot/enqbot/backend/converter"
	"github.com/enqbot/enqbot/backend/payload"
	"github.com/enqbot/enqbot/internal/sync"
)

// ReceiveSignal delivers a raw signal payload to the workflow. If the
// workflow has not subscribed to the signal name yet, the payload is buffered
// until a channel is created.
func ReceiveSignal(wf *WfState, name string, arg payload.Payload) {
	sc, ok := wf.signalChannels[name]
	if ok {
		sc.receive(arg)
		return
	}

	wf.pendingSignals[name] = append(wf.pendingSignals[name], arg)
}

// GetSignalChannel returns the typed channel for the given signal name,
// creating it and draining any buffered signals on first use.
func GetSignalChannel[T any](ctx sync.Context, cv converter.Converter, wf *WfState, name string) sync.Channel[T] {
	if sc, ok := wf.signalChannels[name]; ok {
		return sc.channel.(sync.Channel[T])
	}

	c := sync.NewBufferedChannel[T](100)

	wf.signalChannels[name] = &signalChannel{
		receive: func(input payload.Payload) {
			var t T
			if err := cv.From(input, &t); err != nil {
				panic(err)
			}

			// Channel is buffered, so this does not yield
			c.SendNonblocking(t)
		},
		channel: c,
	}

	if pending, ok := wf.pendingSignals[name]; ok {
		for _, p := range pending {
			var t T
			if err := cv.From(p, &t); err != nil {
				panic(err)
			}

			c.SendNonblocking(t)
		}

		delete(wf.pendingSignals, name)
	}

	return c
}
