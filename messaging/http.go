package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const DefaultEndpoint = "https://api.line.me/v2/bot/message/reply"

// httpClient posts reply messages to a LINE-style reply endpoint,
// authenticated with a channel access token.
type httpClient struct {
	endpoint    string
	accessToken string
	client      *http.Client
}

type HTTPClientOption func(*httpClient)

func WithEndpoint(endpoint string) HTTPClientOption {
	return func(c *httpClient) {
		c.endpoint = endpoint
	}
}

func WithHTTPClient(client *http.Client) HTTPClientOption {
	return func(c *httpClient) {
		c.client = client
	}
}

func NewHTTPClient(accessToken string, opts ...HTTPClientOption) Client {
	c := &httpClient{
		endpoint:    DefaultEndpoint,
		accessToken: accessToken,
		client:      &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *httpClient) Reply(ctx context.Context, replyToken string, messages ...Message) error {
	wireMessages := make([]any, 0, len(messages))
	for _, m := range messages {
		wireMessages = append(wireMessages, toWire(m))
	}

	body, err := json.Marshal(map[string]any{
		"replyToken": replyToken,
		"messages":   wireMessages,
	})
	if err != nil {
		return fmt.Errorf("encoding reply: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating reply request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending reply: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &DeliveryError{
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	return nil
}

func toWire(m Message) any {
	switch msg := m.(type) {
	case TextMessage:
		wire := map[string]any{
			"type": "text",
			"text": msg.Text,
		}

		if len(msg.QuickReplies) > 0 {
			items := make([]any, 0, len(msg.QuickReplies))
			for _, qr := range msg.QuickReplies {
				items = append(items, map[string]any{
					"type": "action",
					"action": map[string]any{
						"type":  "message",
						"label": qr,
						"text":  qr,
					},
				})
			}

			wire["quickReply"] = map[string]any{"items": items}
		}

		return wire

	case SummaryMessage:
		sections := make([]any, 0, len(msg.Sections))
		for _, s := range msg.Sections {
			sections = append(sections, map[string]any{
				"type":   "box",
				"layout": "vertical",
				"contents": []any{
					map[string]any{"type": "text", "text": s.Label, "size": "xs", "weight": "bold"},
					map[string]any{"type": "text", "text": s.Value},
				},
			})
		}

		actions := make([]any, 0, len(msg.Actions))
		for _, a := range msg.Actions {
			actions = append(actions, map[string]any{
				"type": "button",
				"action": map[string]any{
					"type":  "postback",
					"label": a.Label,
					"data":  a.ActionID,
				},
			})
		}

		return map[string]any{
			"type":    "flex",
			"altText": msg.Title,
			"contents": map[string]any{
				"type": "bubble",
				"header": map[string]any{
					"type":   "box",
					"layout": "horizontal",
					"contents": []any{
						map[string]any{"type": "text", "text": msg.Title, "align": "center", "weight": "bold"},
					},
				},
				"body": map[string]any{
					"type":     "box",
					"layout":   "vertical",
					"contents": sections,
				},
				"footer": map[string]any{
					"type":     "box",
					"layout":   "horizontal",
					"contents": actions,
				},
			},
		}

	default:
		panic(fmt.Sprintf("unknown message type %T", m))
	}
}
