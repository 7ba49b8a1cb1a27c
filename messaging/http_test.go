package messaging

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPClient_Reply(t *testing.T) {
	var received struct {
		ReplyToken string           `json:"replyToken"`
		Messages   []map[string]any `json:"messages"`
	}
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &received))

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPClient("token-123", WithEndpoint(srv.URL))

	err := c.Reply(context.Background(), "t0",
		TextMessage{Text: "Q0", QuickReplies: []string{"yes"}},
		SummaryMessage{
			Title:    "Confirm",
			Sections: []SummarySection{{Label: "Q0", Value: "A0"}},
			Actions:  []SummaryAction{{Label: "Submit", ActionID: "send"}},
		},
	)
	require.NoError(t, err)

	require.Equal(t, "Bearer token-123", auth)
	require.Equal(t, "t0", received.ReplyToken)
	require.Len(t, received.Messages, 2)

	require.Equal(t, "text", received.Messages[0]["type"])
	require.Equal(t, "Q0", received.Messages[0]["text"])
	require.Contains(t, received.Messages[0], "quickReply")

	require.Equal(t, "flex", received.Messages[1]["type"])
	require.Equal(t, "Confirm", received.Messages[1]["altText"])
}

func TestHTTPClient_Reply_DeliveryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Invalid reply token"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient("token-123", WithEndpoint(srv.URL))

	err := c.Reply(context.Background(), "expired", TextMessage{Text: "Q0"})

	var derr *DeliveryError
	require.ErrorAs(t, err, &derr)
	require.Equal(t, http.StatusBadRequest, derr.StatusCode)
	require.Contains(t, derr.Body, "Invalid reply token")
}
