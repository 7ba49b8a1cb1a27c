// Package messaging is the boundary to the messaging channel: delivering
// outbound messages with a reply token and parsing signed inbound webhook
// events.
package messaging

import (
	"context"
	"fmt"
)

// Message is an outbound message
type Message interface {
	message()
}

// TextMessage is a plain text message with optional quick-reply suggestions
type TextMessage struct {
	Text         string
	QuickReplies []string
}

func (TextMessage) message() {}

type SummarySection struct {
	Label string
	Value string
}

type SummaryAction struct {
	Label string
	// ActionID is returned as postback data when the participant taps the
	// action
	ActionID string
}

// SummaryMessage is a structured confirmation card with action buttons
type SummaryMessage struct {
	Title    string
	Sections []SummarySection
	Actions  []SummaryAction
}

func (SummaryMessage) message() {}

// Client delivers outbound messages in reply to an inbound event
type Client interface {
	Reply(ctx context.Context, replyToken string, messages ...Message) error
}

// DeliveryError indicates the channel rejected or failed a delivery
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("message delivery failed with status %d: %s", e.StatusCode, e.Body)
}
