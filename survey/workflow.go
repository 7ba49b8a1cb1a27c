package survey

import (
	"fmt"

	"github.com/enqbot/enqbot/workflow"
)

// AnswerSignal is the signal name the handler raises for every inbound answer
const AnswerSignal = "answer"

// FinalAnswerIndex marks the final, free-form answer. No further prompt
// follows it.
const FinalAnswerIndex = -1

// AnswerEvent is the payload of an answer signal
type AnswerEvent struct {
	// Index is the zero-based index of the prompt this answers, or
	// FinalAnswerIndex for the free-form answer
	Index int `json:"index"`

	Text string `json:"text"`

	// ReplyToken authorizes one reply to the message carrying the answer
	ReplyToken string `json:"reply_token"`
}

// Survey is the durable workflow collecting answers. Each generation waits
// for exactly one answer, checkpoints its progress, triggers the reply
// activity, and continues as new with the grown answer list.
type Survey struct {
	activities *Activities
}

func NewSurvey(activities *Activities) *Survey {
	return &Survey{activities: activities}
}

// Run waits for one answer and either finishes with a summary or continues
// as new. The custom status update must precede the next-question activity:
// the status is committed in the same checkpoint that makes the activity
// visible, so a fast follow-up answer always sees the advanced index.
func (s *Survey) Run(ctx workflow.Context, answers []string) ([]string, error) {
	if answers == nil {
		answers = []string{}
	}

	logger := workflow.Logger(ctx)

	c := workflow.NewSignalChannel[AnswerEvent](ctx, AnswerSignal)

	event, ok := c.Receive(ctx)
	if !ok {
		return nil, fmt.Errorf("answer channel closed")
	}

	logger.Info("Received answer", "index", event.Index)

	answers = append(answers, event.Text)

	if event.Index == FinalAnswerIndex {
		if _, err := workflow.ExecuteActivity[any](
			ctx, workflow.DefaultActivityOptions, s.activities.SendSummary, event.ReplyToken, answers,
		).Get(ctx); err != nil {
			return nil, fmt.Errorf("sending summary: %w", err)
		}

		return answers, nil
	}

	if err := workflow.SetCustomStatus(ctx, event.Index); err != nil {
		return nil, fmt.Errorf("updating answered index: %w", err)
	}

	if _, err := workflow.ExecuteActivity[any](
		ctx, workflow.DefaultActivityOptions, s.activities.SendNextQuestion, event.ReplyToken, event.Index+1,
	).Get(ctx); err != nil {
		return nil, fmt.Errorf("sending next question: %w", err)
	}

	return nil, workflow.ContinueAsNew(ctx, answers)
}
