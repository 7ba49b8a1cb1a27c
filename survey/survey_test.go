package survey

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enqbot/enqbot/backend"
	"github.com/enqbot/enqbot/backend/sqlite"
	"github.com/enqbot/enqbot/client"
	"github.com/enqbot/enqbot/core"
	"github.com/enqbot/enqbot/messaging"
	"github.com/enqbot/enqbot/worker"
)

type recordedReply struct {
	ReplyToken string
	Messages   []messaging.Message
}

type fakeMessenger struct {
	mu      sync.Mutex
	replies []recordedReply
}

func (f *fakeMessenger) Reply(ctx context.Context, replyToken string, messages ...messaging.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.replies = append(f.replies, recordedReply{ReplyToken: replyToken, Messages: messages})

	return nil
}

func (f *fakeMessenger) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	texts := make([]string, 0, len(f.replies))
	for _, r := range f.replies {
		for _, m := range r.Messages {
			if tm, ok := m.(messaging.TextMessage); ok {
				texts = append(texts, tm.Text)
			}
		}
	}

	return texts
}

func (f *fakeMessenger) lastSummary() (messaging.SummaryMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.replies) - 1; i >= 0; i-- {
		for _, m := range f.replies[i].Messages {
			if sm, ok := m.(messaging.SummaryMessage); ok {
				return sm, true
			}
		}
	}

	return messaging.SummaryMessage{}, false
}

func (f *fakeMessenger) hasText(text string) bool {
	for _, t := range f.texts() {
		if t == text {
			return true
		}
	}

	return false
}

type testBot struct {
	handler   *Handler
	messenger *fakeMessenger
	client    *client.Client
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	b := sqlite.NewInMemoryBackend(backend.WithLogger(logger))

	catalog := Catalog{
		{Text: "Q0", QuickReplies: []string{"yes", "no"}},
		{Text: "Q1"},
	}

	messenger := &fakeMessenger{}
	activities := NewActivities(messenger, catalog)
	s := NewSurvey(activities)

	opts := worker.DefaultOptions
	opts.PollingInterval = 5 * time.Millisecond

	w := worker.New(b, &opts)
	require.NoError(t, w.RegisterWorkflow(s.Run))
	require.NoError(t, w.RegisterActivity(activities.SendNextQuestion))
	require.NoError(t, w.RegisterActivity(activities.SendSummary))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))

	t.Cleanup(func() {
		cancel()
		require.NoError(t, w.WaitForCompletion())
		require.NoError(t, b.Close())
	})

	c := client.New(b)

	return &testBot{
		handler:   NewHandler(c, messenger, catalog, s, NewKeyedMutex(), logger),
		messenger: messenger,
		client:    c,
	}
}

func message(userID, text, replyToken string) []messaging.Event {
	return []messaging.Event{
		&messaging.MessageEvent{UserID: userID, Text: text, ReplyToken: replyToken},
	}
}

func postback(userID, data, replyToken string) []messaging.Event {
	return []messaging.Event{
		&messaging.PostbackEvent{UserID: userID, Data: data, ReplyToken: replyToken},
	}
}

func TestSurvey_FullRun(t *testing.T) {
	bot := newTestBot(t)
	ctx := context.Background()

	// Start replies the first question directly
	require.NoError(t, bot.handler.HandleEvents(ctx, message("user-1", StartCommand, "t0")))
	require.True(t, bot.messenger.hasText("Q0"))

	// First answer advances the workflow, which sends the next question
	require.NoError(t, bot.handler.HandleEvents(ctx, message("user-1", "A0", "t1")))

	require.Eventually(t, func() bool {
		return bot.messenger.hasText("Q1")
	}, 5*time.Second, 10*time.Millisecond)

	// The custom status now holds the acknowledged index
	status, err := bot.client.GetWorkflowInstanceStatus(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, status.CustomStatus)

	// The final, free-form answer produces the summary
	require.NoError(t, bot.handler.HandleEvents(ctx, message("user-1", "A1", "t2")))

	require.Eventually(t, func() bool {
		_, ok := bot.messenger.lastSummary()
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	summary, _ := bot.messenger.lastSummary()
	require.Len(t, summary.Sections, 2)
	assert.Equal(t, "Q0", summary.Sections[0].Label)
	assert.Equal(t, "A0", summary.Sections[0].Value)
	assert.Equal(t, "Q1", summary.Sections[1].Label)
	assert.Equal(t, "A1", summary.Sections[1].Value)
	require.Len(t, summary.Actions, 2)
	assert.Equal(t, ActionSubmit, summary.Actions[0].ActionID)
	assert.Equal(t, ActionCancel, summary.Actions[1].ActionID)

	require.Eventually(t, func() bool {
		status, err := bot.client.GetWorkflowInstanceStatus(ctx, "user-1")
		return err == nil && status.State == core.WorkflowInstanceStateFinished
	}, 5*time.Second, 10*time.Millisecond)

	// Submitting purges the instance
	require.NoError(t, bot.handler.HandleEvents(ctx, postback("user-1", ActionSubmit, "t3")))
	require.True(t, bot.messenger.hasText("Thank you for your answers!"))

	_, err = bot.client.GetWorkflowInstanceStatus(ctx, "user-1")
	require.ErrorIs(t, err, backend.ErrInstanceNotFound)
}

func TestSurvey_AnswerWithoutInstanceRepliesGuidance(t *testing.T) {
	bot := newTestBot(t)
	ctx := context.Background()

	require.NoError(t, bot.handler.HandleEvents(ctx, message("user-1", "hello", "t0")))

	require.True(t, bot.messenger.hasText(guidanceText))

	_, err := bot.client.GetWorkflowInstanceStatus(ctx, "user-1")
	require.ErrorIs(t, err, backend.ErrInstanceNotFound)
}

func TestSurvey_StartCommandPurgesPriorRun(t *testing.T) {
	bot := newTestBot(t)
	ctx := context.Background()

	require.NoError(t, bot.handler.HandleEvents(ctx, message("user-1", StartCommand, "t0")))
	require.NoError(t, bot.handler.HandleEvents(ctx, message("user-1", "A0", "t1")))

	require.Eventually(t, func() bool {
		status, err := bot.client.GetWorkflowInstanceStatus(ctx, "user-1")
		return err == nil && status.CustomStatus != nil
	}, 5*time.Second, 10*time.Millisecond)

	// Restart: the prior progress is gone, the survey is back at question 0
	require.NoError(t, bot.handler.HandleEvents(ctx, message("user-1", StartCommand, "t2")))

	status, err := bot.client.GetWorkflowInstanceStatus(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, core.WorkflowInstanceStateActive, status.State)
	require.Nil(t, status.CustomStatus)
}

func TestSurvey_CancelPostbackPurges(t *testing.T) {
	bot := newTestBot(t)
	ctx := context.Background()

	require.NoError(t, bot.handler.HandleEvents(ctx, message("user-1", StartCommand, "t0")))

	require.NoError(t, bot.handler.HandleEvents(ctx, postback("user-1", ActionCancel, "t1")))

	_, err := bot.client.GetWorkflowInstanceStatus(ctx, "user-1")
	require.ErrorIs(t, err, backend.ErrInstanceNotFound)
}

func TestSurvey_UnknownEventRepliesGuidance(t *testing.T) {
	bot := newTestBot(t)
	ctx := context.Background()

	require.NoError(t, bot.handler.HandleEvents(ctx, []messaging.Event{
		&messaging.UnknownEvent{UserID: "user-1", ReplyToken: "t0"},
	}))

	require.True(t, bot.messenger.hasText(guidanceText))
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	locker := NewKeyedMutex()
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "user-1")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		unlock2, err := locker.Lock(ctx, "user-1")
		if err == nil {
			unlock2()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("lock acquired while held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock not acquired after release")
	}
}

func TestSurvey_ErrorsNeverReachParticipant(t *testing.T) {
	// Raising an answer for a purged instance must not leak internals, only
	// the guidance text
	bot := newTestBot(t)
	ctx := context.Background()

	require.NoError(t, bot.handler.HandleEvents(ctx, message("user-1", "A0", "t0")))

	for _, text := range bot.messenger.texts() {
		require.NotContains(t, text, "error")
		require.NotContains(t, text, "instance")
	}

	require.True(t, bot.messenger.hasText(guidanceText))
}
