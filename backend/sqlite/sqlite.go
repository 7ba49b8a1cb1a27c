package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"github.com/enqbot/enqbot/backend"
	"github.com/enqbot/enqbot/backend/converter"
	"github.com/enqbot/enqbot/backend/history"
	"github.com/enqbot/enqbot/backend/metrics"
	"github.com/enqbot/enqbot/backend/payload"
	"github.com/enqbot/enqbot/core"
)

//go:embed schema.sql
var schema string

func NewInMemoryBackend(opts ...backend.BackendOption) *sqliteBackend {
	b := newSqliteBackend("file::memory:?mode=memory", opts...)

	b.db.SetMaxOpenConns(1)

	return b
}

func NewSqliteBackend(path string, opts ...backend.BackendOption) *sqliteBackend {
	return newSqliteBackend(fmt.Sprintf("file:%v?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path), opts...)
}

func newSqliteBackend(dsn string, opts ...backend.BackendOption) *sqliteBackend {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		panic(err)
	}

	if _, err := db.Exec(schema); err != nil {
		panic(fmt.Errorf("initializing database: %w", err))
	}

	options := backend.ApplyOptions(opts...)

	return &sqliteBackend{
		db:         db,
		workerName: fmt.Sprintf("worker-%v", uuid.NewString()),
		options:    options,
	}
}

type sqliteBackend struct {
	db         *sql.DB
	workerName string
	options    *backend.Options
}

var _ backend.Backend = (*sqliteBackend)(nil)

func (sb *sqliteBackend) Logger() *slog.Logger {
	return sb.options.Logger
}

func (sb *sqliteBackend) Tracer() trace.Tracer {
	return sb.options.TracerProvider.Tracer(backend.TracerName)
}

func (sb *sqliteBackend) Metrics() metrics.Client {
	return sb.options.Metrics
}

func (sb *sqliteBackend) Converter() converter.Converter {
	return sb.options.Converter
}

func (sb *sqliteBackend) Options() *backend.Options {
	return sb.options
}

func (sb *sqliteBackend) Close() error {
	return sb.db.Close()
}

func (sb *sqliteBackend) CreateWorkflowInstance(ctx context.Context, instance *core.WorkflowInstance, event *history.Event) error {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	// Reject if there already is an active execution for this instance id
	row := tx.QueryRowContext(
		ctx,
		"SELECT 1 FROM `instances` WHERE instance_id = ? AND state = ? LIMIT 1",
		instance.InstanceID,
		core.WorkflowInstanceStateActive,
	)

	var exists int
	if err := row.Scan(&exists); err == nil {
		return backend.ErrInstanceAlreadyExists
	} else if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checking for existing instance: %w", err)
	}

	if err := createInstance(ctx, tx, instance, nil); err != nil {
		return err
	}

	if err := insertPendingEvents(ctx, tx, instance.InstanceID, instance.ExecutionID, []*history.Event{event}); err != nil {
		return fmt.Errorf("inserting starting event: %w", err)
	}

	return tx.Commit()
}

func createInstance(ctx context.Context, tx *sql.Tx, wfi *core.WorkflowInstance, customStatus payload.Payload) error {
	_, err := tx.ExecContext(
		ctx,
		"INSERT INTO `instances` (instance_id, execution_id, state, custom_status, created_at) VALUES (?, ?, ?, ?, ?)",
		wfi.InstanceID,
		wfi.ExecutionID,
		core.WorkflowInstanceStateActive,
		[]byte(customStatus),
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("inserting workflow instance: %w", err)
	}

	return nil
}

func (sb *sqliteBackend) SignalWorkflow(ctx context.Context, instanceID string, event *history.Event) error {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Deliver to the active execution only
	row := tx.QueryRowContext(
		ctx,
		"SELECT execution_id FROM `instances` WHERE instance_id = ? AND state = ? LIMIT 1",
		instanceID,
		core.WorkflowInstanceStateActive,
	)

	var executionID string
	if err := row.Scan(&executionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return backend.ErrInstanceNotFound
		}

		return fmt.Errorf("getting active execution: %w", err)
	}

	if err := insertPendingEvents(ctx, tx, instanceID, executionID, []*history.Event{event}); err != nil {
		return fmt.Errorf("inserting signal event: %w", err)
	}

	return tx.Commit()
}

func (sb *sqliteBackend) GetWorkflowInstanceStatus(ctx context.Context, instanceID string) (*core.WorkflowInstanceStatus, error) {
	// Latest execution for the instance id
	row := sb.db.QueryRowContext(
		ctx,
		"SELECT execution_id, state, custom_status FROM `instances` WHERE instance_id = ? ORDER BY rowid DESC LIMIT 1",
		instanceID,
	)

	var executionID string
	var state core.WorkflowInstanceState
	var customStatus []byte
	if err := row.Scan(&executionID, &state, &customStatus); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, backend.ErrInstanceNotFound
		}

		return nil, fmt.Errorf("getting workflow instance status: %w", err)
	}

	return &core.WorkflowInstanceStatus{
		Instance:     core.NewWorkflowInstance(instanceID, executionID),
		State:        state,
		CustomStatus: payload.Payload(customStatus),
	}, nil
}

func (sb *sqliteBackend) RemoveWorkflowInstance(ctx context.Context, instanceID string) error {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Removing an unknown instance is not an error, callers purge
	// unconditionally before a fresh start
	for _, table := range []string{"instances", "pending_events", "history", "activities"} {
		if _, err := tx.ExecContext(
			ctx,
			fmt.Sprintf("DELETE FROM `%s` WHERE instance_id = ?", table),
			instanceID,
		); err != nil {
			return fmt.Errorf("removing instance state from %s: %w", table, err)
		}
	}

	return tx.Commit()
}

func (sb *sqliteBackend) GetWorkflowInstanceHistory(ctx context.Context, instance *core.WorkflowInstance, lastSequenceID *int64) ([]*history.Event, error) {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	h, err := getHistory(ctx, tx, instance.InstanceID, instance.ExecutionID, lastSequenceID)
	if err != nil {
		return nil, fmt.Errorf("getting workflow history: %w", err)
	}

	return h, nil
}

func (sb *sqliteBackend) GetWorkflowTask(ctx context.Context) (*backend.WorkflowTask, error) {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Lock the next active instance with pending events. The sub-query works
	// around missing LIMIT support for UPDATE statements.
	now := time.Now()
	row := tx.QueryRowContext(
		ctx,
		`UPDATE instances
			SET locked_until = ?, worker = ?
			WHERE rowid = (
				SELECT rowid FROM instances i
					WHERE
						(locked_until IS NULL OR locked_until < ?)
						AND state = ?
						AND EXISTS (
							SELECT 1 FROM pending_events
								WHERE instance_id = i.instance_id AND execution_id = i.execution_id
						)
					LIMIT 1
			) RETURNING instance_id, execution_id, state, custom_status`,
		now.Add(sb.options.WorkflowLockTimeout),
		sb.workerName,
		now,
		core.WorkflowInstanceStateActive,
	)

	var instanceID, executionID string
	var state core.WorkflowInstanceState
	var customStatus []byte
	if err := row.Scan(&instanceID, &executionID, &state, &customStatus); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("locking workflow task: %w", err)
	}

	wfi := core.NewWorkflowInstance(instanceID, executionID)

	pendingEvents, err := getPendingEvents(ctx, tx, instanceID, executionID)
	if err != nil {
		return nil, fmt.Errorf("getting pending events: %w", err)
	}

	if len(pendingEvents) == 0 {
		return nil, nil
	}

	t := &backend.WorkflowTask{
		ID:               wfi.InstanceID,
		WorkflowInstance: wfi,
		State:            state,
		CustomStatus:     payload.Payload(customStatus),
		NewEvents:        pendingEvents,
	}

	row = tx.QueryRowContext(
		ctx,
		"SELECT sequence_id FROM `history` WHERE instance_id = ? AND execution_id = ? ORDER BY sequence_id DESC LIMIT 1",
		instanceID,
		executionID,
	)
	if err := row.Scan(&t.LastSequenceID); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting most recent sequence id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return t, nil
}

func (sb *sqliteBackend) ExtendWorkflowTask(ctx context.Context, task *backend.WorkflowTask) error {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	until := time.Now().Add(sb.options.WorkflowLockTimeout)
	res, err := tx.ExecContext(
		ctx,
		"UPDATE `instances` SET locked_until = ? WHERE instance_id = ? AND execution_id = ? AND worker = ?",
		until,
		task.WorkflowInstance.InstanceID,
		task.WorkflowInstance.ExecutionID,
		sb.workerName,
	)
	if err != nil {
		return fmt.Errorf("extending workflow task lock: %w", err)
	}

	if rowsAffected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("checking for extended workflow task: %w", err)
	} else if rowsAffected == 0 {
		return errors.New("could not extend workflow task")
	}

	return tx.Commit()
}

func (sb *sqliteBackend) CompleteWorkflowTask(
	ctx context.Context,
	task *backend.WorkflowTask,
	state core.WorkflowInstanceState,
	customStatus payload.Payload,
	executedEvents, activityEvents []*history.Event,
	workflowEvents []*history.WorkflowEvent,
) error {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	instance := task.WorkflowInstance

	var completedAt *time.Time
	if state != core.WorkflowInstanceStateActive {
		t := time.Now()
		completedAt = &t
	}

	// Unlock the instance and checkpoint state and custom status in the same
	// transaction that makes scheduled activities visible
	if res, err := tx.ExecContext(
		ctx,
		"UPDATE `instances` SET locked_until = NULL, worker = NULL, state = ?, custom_status = ?, completed_at = ? WHERE instance_id = ? AND execution_id = ? AND worker = ?",
		state,
		[]byte(customStatus),
		completedAt,
		instance.InstanceID,
		instance.ExecutionID,
		sb.workerName,
	); err != nil {
		return fmt.Errorf("unlocking workflow instance: %w", err)
	} else if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("checking for unlocked workflow instance: %w", err)
	} else if n != 1 {
		return errors.New("could not find workflow instance to unlock")
	}

	// Remove consumed events
	if len(executedEvents) > 0 {
		args := make([]any, 0, len(executedEvents)+2)
		args = append(args, instance.InstanceID, instance.ExecutionID)
		for _, e := range executedEvents {
			args = append(args, e.ID)
		}

		if _, err := tx.ExecContext(
			ctx,
			fmt.Sprintf(
				"DELETE FROM `pending_events` WHERE instance_id = ? AND execution_id = ? AND id IN (?%v)",
				strings.Repeat(",?", len(executedEvents)-1),
			),
			args...,
		); err != nil {
			return fmt.Errorf("deleting handled events: %w", err)
		}
	}

	if err := insertHistoryEvents(ctx, tx, instance.InstanceID, instance.ExecutionID, executedEvents); err != nil {
		return fmt.Errorf("inserting history events: %w", err)
	}

	for _, event := range activityEvents {
		if err := scheduleActivity(ctx, tx, instance.InstanceID, instance.ExecutionID, event); err != nil {
			return fmt.Errorf("scheduling activity: %w", err)
		}
	}

	// Deliver events for other executions, creating continued executions as
	// needed
	groupedEvents := make(map[*core.WorkflowInstance][]*history.Event)
	for _, m := range workflowEvents {
		groupedEvents[m.WorkflowInstance] = append(groupedEvents[m.WorkflowInstance], m.HistoryEvent)
	}

	for targetInstance, events := range groupedEvents {
		if targetInstance.InstanceID == instance.InstanceID && targetInstance.ExecutionID != instance.ExecutionID {
			// Continued execution of this instance. The custom status carries
			// over to the new generation.
			if err := createInstance(ctx, tx, targetInstance, customStatus); err != nil {
				return err
			}

			// Events which arrived too late for the finished execution belong
			// to the new one
			if _, err := tx.ExecContext(
				ctx,
				"UPDATE `pending_events` SET execution_id = ? WHERE instance_id = ? AND execution_id = ?",
				targetInstance.ExecutionID,
				instance.InstanceID,
				instance.ExecutionID,
			); err != nil {
				return fmt.Errorf("redirecting leftover pending events: %w", err)
			}
		}

		if err := insertPendingEvents(ctx, tx, targetInstance.InstanceID, targetInstance.ExecutionID, events); err != nil {
			return fmt.Errorf("inserting workflow events: %w", err)
		}
	}

	return tx.Commit()
}

func (sb *sqliteBackend) GetActivityTask(ctx context.Context) (*backend.ActivityTask, error) {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now()
	row := tx.QueryRowContext(
		ctx,
		`UPDATE activities
			SET locked_until = ?, worker = ?
			WHERE rowid = (
				SELECT rowid FROM activities WHERE locked_until IS NULL OR locked_until < ? LIMIT 1
			) RETURNING id, instance_id, execution_id, event_type, timestamp, schedule_event_id, attributes`,
		now.Add(sb.options.ActivityLockTimeout),
		sb.workerName,
		now,
	)

	var instanceID, executionID string
	var attributes []byte
	event := &history.Event{}

	if err := row.Scan(&event.ID, &instanceID, &executionID, &event.Type, &event.Timestamp, &event.ScheduleEventID, &attributes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("locking activity task: %w", err)
	}

	a, err := history.DeserializeAttributes(event.Type, attributes)
	if err != nil {
		return nil, fmt.Errorf("deserializing attributes: %w", err)
	}

	event.Attributes = a

	t := &backend.ActivityTask{
		ID:               event.ID,
		WorkflowInstance: core.NewWorkflowInstance(instanceID, executionID),
		Event:            event,
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return t, nil
}

func (sb *sqliteBackend) ExtendActivityTask(ctx context.Context, task *backend.ActivityTask) error {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	until := time.Now().Add(sb.options.ActivityLockTimeout)
	res, err := tx.ExecContext(
		ctx,
		"UPDATE `activities` SET locked_until = ? WHERE id = ? AND worker = ?",
		until,
		task.ID,
		sb.workerName,
	)
	if err != nil {
		return fmt.Errorf("extending activity lock: %w", err)
	}

	if rowsAffected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("checking for extended activity: %w", err)
	} else if rowsAffected == 0 {
		return errors.New("could not extend activity")
	}

	return tx.Commit()
}

func (sb *sqliteBackend) CompleteActivityTask(ctx context.Context, task *backend.ActivityTask, result *history.Event) error {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if res, err := tx.ExecContext(
		ctx,
		"DELETE FROM `activities` WHERE instance_id = ? AND id = ? AND worker = ?",
		task.WorkflowInstance.InstanceID,
		task.ID,
		sb.workerName,
	); err != nil {
		return fmt.Errorf("deleting activity: %w", err)
	} else if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("checking for deleted activities: %w", err)
	} else if n != 1 {
		return errors.New("could not find activity to delete")
	}

	if err := insertPendingEvents(ctx, tx, task.WorkflowInstance.InstanceID, task.WorkflowInstance.ExecutionID, []*history.Event{result}); err != nil {
		return fmt.Errorf("inserting activity result event: %w", err)
	}

	return tx.Commit()
}
