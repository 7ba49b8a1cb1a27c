package survey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/enqbot/enqbot/backend"
	"github.com/enqbot/enqbot/backend/converter"
	"github.com/enqbot/enqbot/client"
	"github.com/enqbot/enqbot/core"
	"github.com/enqbot/enqbot/messaging"
)

// StartCommand restarts the survey from the first question
const StartCommand = "start survey"

const guidanceText = `Send "start survey" to begin.`

// Handler routes inbound webhook events: it starts, signals, and purges the
// survey workflow instance keyed by the participant's user id.
type Handler struct {
	client     *client.Client
	messenger  messaging.Client
	catalog    Catalog
	survey     *Survey
	locker     Locker
	cv         converter.Converter
	logger     *slog.Logger
}

func NewHandler(c *client.Client, messenger messaging.Client, catalog Catalog, survey *Survey, locker Locker, logger *slog.Logger) *Handler {
	return &Handler{
		client:    c,
		messenger: messenger,
		catalog:   catalog,
		survey:    survey,
		locker:    locker,
		cv:        converter.DefaultConverter,
		logger:    logger,
	}
}

// HandleEvents processes the events of one webhook call in order
func (h *Handler) HandleEvents(ctx context.Context, events []messaging.Event) error {
	for _, ev := range events {
		var err error

		switch e := ev.(type) {
		case *messaging.MessageEvent:
			err = h.handleMessage(ctx, e)
		case *messaging.PostbackEvent:
			err = h.handlePostback(ctx, e)
		case *messaging.UnknownEvent:
			err = h.replyGuidance(ctx, e.ReplyToken)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

func (h *Handler) handleMessage(ctx context.Context, ev *messaging.MessageEvent) error {
	unlock, err := h.locker.Lock(ctx, ev.UserID)
	if err != nil {
		return err
	}
	defer unlock()

	if ev.Text == StartCommand {
		return h.startSurvey(ctx, ev)
	}

	return h.handleAnswer(ctx, ev)
}

func (h *Handler) startSurvey(ctx context.Context, ev *messaging.MessageEvent) error {
	// A fresh start always purges prior state, the participant id becomes
	// available again
	if err := h.client.RemoveWorkflowInstance(ctx, ev.UserID); err != nil {
		return fmt.Errorf("purging previous instance: %w", err)
	}

	if _, err := h.client.CreateWorkflowInstance(ctx, client.WorkflowInstanceOptions{
		InstanceID: ev.UserID,
	}, h.survey.Run, []string{}); err != nil {
		return fmt.Errorf("starting survey instance: %w", err)
	}

	h.logger.Info("Survey started", "user_id", ev.UserID)

	// The first question is replied directly rather than through the
	// workflow, the participant should not wait for a worker to pick up the
	// new instance
	return h.replyQuestion(ctx, ev.ReplyToken, 0)
}

func (h *Handler) handleAnswer(ctx context.Context, ev *messaging.MessageEvent) error {
	status, err := h.client.GetWorkflowInstanceStatus(ctx, ev.UserID)
	if err != nil {
		if errors.Is(err, backend.ErrInstanceNotFound) {
			return h.replyGuidance(ctx, ev.ReplyToken)
		}

		return fmt.Errorf("getting instance status: %w", err)
	}

	nextIndex, err := h.nextIndex(status)
	if err != nil {
		return err
	}

	h.logger.Info("Handling answer", "user_id", ev.UserID, "next_index", nextIndex)

	if nextIndex == h.catalog.FinalIndex() {
		// The final, free-form answer. The sentinel tells the workflow that
		// no further prompt follows.
		return h.raiseAnswer(ctx, ev, AnswerEvent{
			Index:      FinalAnswerIndex,
			Text:       ev.Text,
			ReplyToken: ev.ReplyToken,
		})
	}

	if status.State != core.WorkflowInstanceStateActive {
		return h.replyGuidance(ctx, ev.ReplyToken)
	}

	return h.raiseAnswer(ctx, ev, AnswerEvent{
		Index:      nextIndex,
		Text:       ev.Text,
		ReplyToken: ev.ReplyToken,
	})
}

func (h *Handler) raiseAnswer(ctx context.Context, ev *messaging.MessageEvent, answer AnswerEvent) error {
	if err := h.client.SignalWorkflow(ctx, ev.UserID, AnswerSignal, answer); err != nil {
		if errors.Is(err, backend.ErrInstanceNotFound) {
			return h.replyGuidance(ctx, ev.ReplyToken)
		}

		return fmt.Errorf("raising answer event: %w", err)
	}

	return nil
}

// nextIndex derives the index the inbound text answers from the last
// acknowledged index in the instance's custom status.
func (h *Handler) nextIndex(status *core.WorkflowInstanceStatus) (int, error) {
	if status.CustomStatus == nil {
		return 0, nil
	}

	var answered int
	if err := h.cv.From(status.CustomStatus, &answered); err != nil {
		return 0, fmt.Errorf("decoding custom status: %w", err)
	}

	return answered + 1, nil
}

func (h *Handler) handlePostback(ctx context.Context, ev *messaging.PostbackEvent) error {
	switch ev.Data {
	case ActionSubmit:
		// Persisting the confirmed answers to long-term storage would happen
		// here
		h.logger.Info("Survey submitted", "user_id", ev.UserID)

		if err := h.messenger.Reply(ctx, ev.ReplyToken, messaging.TextMessage{
			Text: "Thank you for your answers!",
		}); err != nil {
			return err
		}

		return h.client.RemoveWorkflowInstance(ctx, ev.UserID)

	case ActionCancel:
		h.logger.Info("Survey cancelled", "user_id", ev.UserID)

		if err := h.messenger.Reply(ctx, ev.ReplyToken, messaging.TextMessage{
			Text: `Your answers have been discarded. Send "start survey" to try again.`,
		}); err != nil {
			return err
		}

		return h.client.RemoveWorkflowInstance(ctx, ev.UserID)
	}

	return nil
}

func (h *Handler) replyQuestion(ctx context.Context, replyToken string, index int) error {
	prompt := h.catalog[index]

	return h.messenger.Reply(ctx, replyToken, messaging.TextMessage{
		Text:         prompt.Text,
		QuickReplies: prompt.QuickReplies,
	})
}

func (h *Handler) replyGuidance(ctx context.Context, replyToken string) error {
	return h.messenger.Reply(ctx, replyToken, messaging.TextMessage{
		Text: guidanceText,
	})
}
