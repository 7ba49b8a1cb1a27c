package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/enqbot/enqbot/backend/history"
)

func getPendingEvents(ctx context.Context, tx *sql.Tx, instanceID, executionID string) ([]*history.Event, error) {
	rows, err := tx.QueryContext(
		ctx,
		"SELECT id, event_type, timestamp, schedule_event_id, attributes FROM `pending_events` WHERE instance_id = ? AND execution_id = ? ORDER BY rowid",
		instanceID,
		executionID,
	)
	if err != nil {
		return nil, fmt.Errorf("getting pending events: %w", err)
	}
	defer rows.Close()

	pendingEvents := make([]*history.Event, 0)

	for rows.Next() {
		var attributes []byte

		event := &history.Event{}
		if err := rows.Scan(&event.ID, &event.Type, &event.Timestamp, &event.ScheduleEventID, &attributes); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}

		a, err := history.DeserializeAttributes(event.Type, attributes)
		if err != nil {
			return nil, fmt.Errorf("deserializing attributes: %w", err)
		}

		event.Attributes = a

		pendingEvents = append(pendingEvents, event)
	}

	return pendingEvents, rows.Err()
}

func getHistory(ctx context.Context, tx *sql.Tx, instanceID, executionID string, lastSequenceID *int64) ([]*history.Event, error) {
	var rows *sql.Rows
	var err error

	if lastSequenceID != nil {
		rows, err = tx.QueryContext(
			ctx,
			"SELECT id, sequence_id, event_type, timestamp, schedule_event_id, attributes FROM `history` WHERE instance_id = ? AND execution_id = ? AND sequence_id > ? ORDER BY sequence_id",
			instanceID,
			executionID,
			*lastSequenceID,
		)
	} else {
		rows, err = tx.QueryContext(
			ctx,
			"SELECT id, sequence_id, event_type, timestamp, schedule_event_id, attributes FROM `history` WHERE instance_id = ? AND execution_id = ? ORDER BY sequence_id",
			instanceID,
			executionID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("getting history: %w", err)
	}
	defer rows.Close()

	events := make([]*history.Event, 0)

	for rows.Next() {
		var attributes []byte

		event := &history.Event{}
		if err := rows.Scan(&event.ID, &event.SequenceID, &event.Type, &event.Timestamp, &event.ScheduleEventID, &attributes); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}

		a, err := history.DeserializeAttributes(event.Type, attributes)
		if err != nil {
			return nil, fmt.Errorf("deserializing attributes: %w", err)
		}

		event.Attributes = a

		events = append(events, event)
	}

	return events, rows.Err()
}

func insertPendingEvents(ctx context.Context, tx *sql.Tx, instanceID, executionID string, events []*history.Event) error {
	const batchSize = 20
	for batchStart := 0; batchStart < len(events); batchStart += batchSize {
		batchEnd := min(batchStart+batchSize, len(events))
		batch := events[batchStart:batchEnd]

		query := "INSERT INTO `pending_events` (id, instance_id, execution_id, event_type, timestamp, schedule_event_id, attributes) VALUES (?, ?, ?, ?, ?, ?, ?)" +
			strings.Repeat(", (?, ?, ?, ?, ?, ?, ?)", len(batch)-1)

		args := make([]any, 0, len(batch)*7)
		for _, event := range batch {
			a, err := history.SerializeAttributes(event.Attributes)
			if err != nil {
				return err
			}

			args = append(args, event.ID, instanceID, executionID, event.Type, event.Timestamp, event.ScheduleEventID, a)
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}

	return nil
}

func insertHistoryEvents(ctx context.Context, tx *sql.Tx, instanceID, executionID string, events []*history.Event) error {
	const batchSize = 20
	for batchStart := 0; batchStart < len(events); batchStart += batchSize {
		batchEnd := min(batchStart+batchSize, len(events))
		batch := events[batchStart:batchEnd]

		query := "INSERT INTO `history` (id, instance_id, execution_id, sequence_id, event_type, timestamp, schedule_event_id, attributes) VALUES (?, ?, ?, ?, ?, ?, ?, ?)" +
			strings.Repeat(", (?, ?, ?, ?, ?, ?, ?, ?)", len(batch)-1)

		args := make([]any, 0, len(batch)*8)
		for _, event := range batch {
			a, err := history.SerializeAttributes(event.Attributes)
			if err != nil {
				return err
			}

			args = append(args, event.ID, instanceID, executionID, event.SequenceID, event.Type, event.Timestamp, event.ScheduleEventID, a)
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}

	return nil
}

func scheduleActivity(ctx context.Context, tx *sql.Tx, instanceID, executionID string, event *history.Event) error {
	a, err := history.SerializeAttributes(event.Attributes)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(
		ctx,
		"INSERT INTO `activities` (id, instance_id, execution_id, event_type, timestamp, schedule_event_id, attributes) VALUES (?, ?, ?, ?, ?, ?, ?)",
		event.ID,
		instanceID,
		executionID,
		event.Type,
		event.Timestamp,
		event.ScheduleEventID,
		a,
	)

	return err
}
