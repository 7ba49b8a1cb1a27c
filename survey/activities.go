package survey

import (
	"context"
	"fmt"

	"github.com/enqbot/enqbot/internal/activity"
	"github.com/enqbot/enqbot/messaging"
)

// Postback data values of the summary action buttons
const (
	ActionSubmit = "send"
	ActionCancel = "cancel"
)

// Activities performs the outbound messaging side effects. Kept outside the
// workflow body so replay never repeats a delivery.
type Activities struct {
	Client  messaging.Client
	Catalog Catalog
}

func NewActivities(client messaging.Client, catalog Catalog) *Activities {
	return &Activities{
		Client:  client,
		Catalog: catalog,
	}
}

// SendNextQuestion delivers the prompt at the given index, with quick replies
// if the prompt has suggestions.
func (a *Activities) SendNextQuestion(ctx context.Context, replyToken string, index int) error {
	if index < 0 || index >= len(a.Catalog) {
		return fmt.Errorf("no prompt at index %d", index)
	}

	prompt := a.Catalog[index]

	activity.Logger(ctx).Info("Sending question", "index", index)

	return a.Client.Reply(ctx, replyToken, messaging.TextMessage{
		Text:         prompt.Text,
		QuickReplies: prompt.QuickReplies,
	})
}

// SendSummary delivers the confirmation card pairing every prompt with its
// answer, with submit and restart actions.
func (a *Activities) SendSummary(ctx context.Context, replyToken string, answers []string) error {
	sections := make([]messaging.SummarySection, 0, len(answers))
	for i, answer := range answers {
		if i >= len(a.Catalog) {
			break
		}

		sections = append(sections, messaging.SummarySection{
			Label: a.Catalog[i].Text,
			Value: answer,
		})
	}

	activity.Logger(ctx).Info("Sending summary", "answers", len(answers))

	return a.Client.Reply(ctx, replyToken, messaging.SummaryMessage{
		Title:    "Please confirm your answers",
		Sections: sections,
		Actions: []messaging.SummaryAction{
			{Label: "Submit", ActionID: ActionSubmit},
			{Label: "Start over", ActionID: ActionCancel},
		},
	})
}
