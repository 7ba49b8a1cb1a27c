package messaging

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidSignature indicates the webhook body does not match its signature
// header. No event from such a request may be processed.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Event is an inbound webhook event
type Event interface {
	event()
}

// MessageEvent is an inbound text message
type MessageEvent struct {
	ReplyToken string
	UserID     string
	Text       string
}

func (*MessageEvent) event() {}

// PostbackEvent is raised when the participant taps an action button
type PostbackEvent struct {
	ReplyToken string
	UserID     string
	Data       string
}

func (*PostbackEvent) event() {}

// UnknownEvent is any event kind the bot does not handle, e.g. stickers or
// media messages. Carried so handlers can reply with guidance.
type UnknownEvent struct {
	ReplyToken string
	UserID     string
}

func (*UnknownEvent) event() {}

type webhookBody struct {
	Events []webhookEvent `json:"events"`
}

type webhookEvent struct {
	Type       string `json:"type"`
	ReplyToken string `json:"replyToken"`
	Source     struct {
		UserID string `json:"userId"`
	} `json:"source"`
	Message struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message"`
	Postback struct {
		Data string `json:"data"`
	} `json:"postback"`
}

// VerifySignature checks the HMAC-SHA256 signature of a webhook body against
// the channel secret.
func VerifySignature(channelSecret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)

	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// ParseWebhook verifies the signature and parses the webhook body into
// events. Returns ErrInvalidSignature before looking at the body when the
// signature does not match.
func ParseWebhook(channelSecret string, body []byte, signature string) ([]Event, error) {
	if !VerifySignature(channelSecret, body, signature) {
		return nil, ErrInvalidSignature
	}

	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return nil, fmt.Errorf("parsing webhook body: %w", err)
	}

	events := make([]Event, 0, len(wb.Events))
	for _, we := range wb.Events {
		switch {
		case we.Type == "message" && we.Message.Type == "text":
			events = append(events, &MessageEvent{
				ReplyToken: we.ReplyToken,
				UserID:     we.Source.UserID,
				Text:       we.Message.Text,
			})

		case we.Type == "postback":
			events = append(events, &PostbackEvent{
				ReplyToken: we.ReplyToken,
				UserID:     we.Source.UserID,
				Data:       we.Postback.Data,
			})

		default:
			events = append(events, &UnknownEvent{
				ReplyToken: we.ReplyToken,
				UserID:     we.Source.UserID,
			})
		}
	}

	return events, nil
}
