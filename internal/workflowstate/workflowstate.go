package workflowstate

import (
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/enqbot/enqbot/backend/converter"
	"github.com/enqbot/enqbot/backend/payload"
	"github.com/enqbot/enqbot/core"
	"github.com/enqbot/enqbot/internal/command"
	"github.com/enqbot/enqbot/internal/sync"
)

type key int

var workflowCtxKey key

// DecodingSettable resolves a pending future, decoding the given payload into
// the future's result type.
type DecodingSettable func(v payload.Payload, err error) error

// AsDecodingSettable adapts a typed future so the executor can resolve it
// from a serialized activity result.
func AsDecodingSettable[T any](cv converter.Converter, f sync.SettableFuture[T]) DecodingSettable {
	return func(v payload.Payload, err error) error {
		if err != nil {
			var zero T
			f.Set(zero, err)
			return nil
		}

		var t T
		if v != nil {
			if err := cv.From(v, &t); err != nil {
				return err
			}
		}

		f.Set(t, nil)
		return nil
	}
}

type signalChannel struct {
	receive func(payload.Payload)
	channel any
}

// WfState is the in-memory state of one workflow execution while it is being
// executed or replayed.
type WfState struct {
	instance        *core.WorkflowInstance
	scheduleEventID int64
	commands        []command.Command
	pendingFutures  map[int64]DecodingSettable
	futureNames     map[int64]string
	signalChannels  map[string]*signalChannel
	pendingSignals  map[string][]payload.Payload
	customStatus    payload.Payload
	replaying       bool

	clock  clock.Clock
	time   time.Time
	logger *slog.Logger
}

func NewWorkflowState(instance *core.WorkflowInstance, logger *slog.Logger, clock clock.Clock) *WfState {
	state := &WfState{
		instance:        instance,
		scheduleEventID: 1,
		commands:        []command.Command{},
		pendingFutures:  map[int64]DecodingSettable{},
		futureNames:     map[int64]string{},
		signalChannels:  map[string]*signalChannel{},
		pendingSignals:  map[string][]payload.Payload{},
		clock:           clock,
	}

	state.logger = NewReplayLogger(state, logger)

	return state
}

func WorkflowState(ctx sync.Context) *WfState {
	return ctx.Value(workflowCtxKey).(*WfState)
}

func WithWorkflowState(ctx sync.Context, wfState *WfState) sync.Context {
	return sync.WithValue(ctx, workflowCtxKey, wfState)
}

func (wf *WfState) GetNextScheduleEventID() int64 {
	scheduleEventID := wf.scheduleEventID
	wf.scheduleEventID++
	return scheduleEventID
}

func (wf *WfState) TrackFuture(scheduleEventID int64, f DecodingSettable, name string) {
	wf.pendingFutures[scheduleEventID] = f
	wf.futureNames[scheduleEventID] = name
}

func (wf *WfState) FutureByScheduleEventID(scheduleEventID int64) (DecodingSettable, bool) {
	f, ok := wf.pendingFutures[scheduleEventID]
	return f, ok
}

func (wf *WfState) RemoveFuture(scheduleEventID int64) {
	delete(wf.pendingFutures, scheduleEventID)
	delete(wf.futureNames, scheduleEventID)
}

func (wf *WfState) HasPendingFutures() bool {
	return len(wf.pendingFutures) > 0
}

func (wf *WfState) PendingFutureNames() map[int64]string {
	return wf.futureNames
}

func (wf *WfState) Commands() []command.Command {
	return wf.commands
}

func (wf *WfState) AddCommand(cmd command.Command) {
	wf.commands = append(wf.commands, cmd)
}

func (wf *WfState) CommandByScheduleEventID(scheduleEventID int64) command.Command {
	for _, c := range wf.commands {
		if c.ID() == scheduleEventID {
			return c
		}
	}

	return nil
}

// SetCustomStatus records the externally queryable status value. Durable once
// the current workflow task is checkpointed.
func (wf *WfState) SetCustomStatus(status payload.Payload) {
	wf.customStatus = status
}

func (wf *WfState) CustomStatus() payload.Payload {
	return wf.customStatus
}

func (wf *WfState) SetReplaying(replaying bool) {
	wf.replaying = replaying
}

func (wf *WfState) Replaying() bool {
	return wf.replaying
}

func (wf *WfState) SetTime(t time.Time) {
	wf.time = t
}

func (wf *WfState) Time() time.Time {
	return wf.time
}

func (wf *WfState) Instance() *core.WorkflowInstance {
	return wf.instance
}

func (wf *WfState) Logger() *slog.Logger {
	return wf.logger
}
