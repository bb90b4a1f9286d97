// ABOUTME: Tests for the transcript reconciliation engine.
// ABOUTME: Covers optimistic convergence, dedup idempotence, failure visibility, ordering.

package transcript

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmart/chatcore/internal/chat"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	return New(chat.KindAssistant, Options{})
}

func TestAppendPending_ImmediatelyVisible(t *testing.T) {
	e := newEngine(t)

	msg := e.AppendPending("hello")

	assert.NotEmpty(t, msg.LocalKey)
	assert.Equal(t, chat.DeliveryPending, msg.Delivery)
	assert.Equal(t, chat.OriginLocalUser, msg.Origin)

	msgs := e.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Text)
}

func TestConfirm_ConvergesWithoutSecondEntry(t *testing.T) {
	e := newEngine(t)

	pending := e.AppendPending("order status?")
	serverTime := time.Now().Add(2 * time.Second)

	err := e.Confirm(pending.LocalKey, &chat.Message{
		ServerID:  "srv-1",
		Text:      "order status?",
		CreatedAt: serverTime,
	})
	require.NoError(t, err)

	msgs := e.Messages()
	require.Len(t, msgs, 1, "confirmation must not produce a second entry")
	assert.Equal(t, chat.DeliveryConfirmed, msgs[0].Delivery)
	assert.Equal(t, "srv-1", msgs[0].ServerID)
	assert.Equal(t, pending.LocalKey, msgs[0].LocalKey)
	assert.True(t, msgs[0].CreatedAt.Equal(serverTime), "server time overwrites client clock")
}

func TestConfirm_UnknownKey(t *testing.T) {
	e := newEngine(t)

	err := e.Confirm("no-such-key", &chat.Message{ServerID: "srv-1"})
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestFail_IsVisibleAndNeverRemoved(t *testing.T) {
	e := newEngine(t)

	pending := e.AppendPending("hi")
	require.NoError(t, e.Fail(pending.LocalKey))

	msgs := e.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, chat.DeliveryFailed, msgs[0].Delivery)
}

// Scenario from the offline-send flow: pending -> failed -> retry -> confirmed,
// same local key, same text, same transcript position throughout.
func TestRetry_KeepsPosition(t *testing.T) {
	e := newEngine(t)

	e.MergeRemote(chat.Message{ServerID: "srv-0", Text: "how can we help?", Origin: chat.OriginStaff, CreatedAt: time.Now()})
	pending := e.AppendPending("Xin chào")
	e.MergeRemote(chat.Message{ServerID: "srv-2", Text: "one moment", Origin: chat.OriginStaff, CreatedAt: time.Now().Add(10 * time.Second)})

	require.NoError(t, e.Fail(pending.LocalKey))
	require.NoError(t, e.Retry(pending.LocalKey))

	msgs := e.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, chat.DeliveryPending, msgs[1].Delivery)

	require.NoError(t, e.Confirm(pending.LocalKey, &chat.Message{ServerID: "srv-9"}))

	msgs = e.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "Xin chào", msgs[1].Text, "retried entry keeps its position")
	assert.Equal(t, chat.DeliveryConfirmed, msgs[1].Delivery)
	assert.Equal(t, "srv-9", msgs[1].ServerID)
}

func TestMergeRemote_AppendsNewMessage(t *testing.T) {
	e := newEngine(t)

	appended := e.MergeRemote(chat.Message{
		ServerID:         "srv-1",
		Text:             "Here are today's deals",
		Origin:           chat.OriginAssistant,
		CreatedAt:        time.Now(),
		SuggestedReplies: []string{"Show me", "Not now"},
	})

	assert.True(t, appended)
	msgs := e.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, chat.DeliveryConfirmed, msgs[0].Delivery)
	assert.Equal(t, []string{"Show me", "Not now"}, msgs[0].SuggestedReplies)
	assert.NotEmpty(t, msgs[0].LocalKey, "merged entries get a local key")
}

// Dedup idempotence: N deliveries of the same logical message leave one entry.
func TestMergeRemote_DuplicateServerID(t *testing.T) {
	e := newEngine(t)

	msg := chat.Message{ServerID: "srv-1", Text: "hello", Origin: chat.OriginAssistant, CreatedAt: time.Now()}
	for i := range 5 {
		appended := e.MergeRemote(msg)
		assert.Equal(t, i == 0, appended, "delivery %d", i)
	}

	assert.Equal(t, 1, e.Len())
}

func TestMergeRemote_ContentHeuristicCatchesIdlessEcho(t *testing.T) {
	e := newEngine(t)

	pending := e.AppendPending("is this in stock?")
	require.NoError(t, e.Confirm(pending.LocalKey, &chat.Message{ServerID: "srv-1"}))

	// Room broadcast echoes the send without a correlating id.
	appended := e.MergeRemote(chat.Message{
		Text:      "is this in stock?",
		Origin:    chat.OriginRemoteUser,
		CreatedAt: time.Now().Add(2 * time.Second),
	})

	assert.False(t, appended, "echo within the window is discarded")
	assert.Equal(t, 1, e.Len())
}

func TestMergeRemote_HeuristicIsNarrow(t *testing.T) {
	e := New(chat.KindStaff, Options{DedupWindow: 5 * time.Second})
	now := time.Now()

	e.MergeRemote(chat.Message{ServerID: "srv-1", Text: "ok", Origin: chat.OriginRemoteUser, CreatedAt: now})

	// Same text, opposite polarity: a genuine staff reply, never discarded.
	assert.True(t, e.MergeRemote(chat.Message{
		ServerID: "srv-2", Text: "ok", Origin: chat.OriginStaff, CreatedAt: now.Add(time.Second),
	}))

	// Same text, same polarity, but outside the window: user really said it twice.
	assert.True(t, e.MergeRemote(chat.Message{
		ServerID: "srv-3", Text: "ok", Origin: chat.OriginRemoteUser, CreatedAt: now.Add(time.Minute),
	}))

	// Different text entirely.
	assert.True(t, e.MergeRemote(chat.Message{
		ServerID: "srv-4", Text: "ok!", Origin: chat.OriginRemoteUser, CreatedAt: now,
	}))

	assert.Equal(t, 4, e.Len())
}

// A push echo may land before the gateway confirmation. The server id must
// still end up bound to exactly one local key, with the optimistic entry
// keeping its position.
func TestConfirm_CollapsesEarlierPushEcho(t *testing.T) {
	e := New(chat.KindStaff, Options{DedupWindow: time.Millisecond})

	pending := e.AppendPending("hello")

	// Echo arrives first, outside the heuristic window, so it appends.
	e.MergeRemote(chat.Message{
		ServerID:  "srv-1",
		Text:      "hello",
		Origin:    chat.OriginRemoteUser,
		CreatedAt: time.Now().Add(time.Minute),
	})
	require.Equal(t, 2, e.Len())

	require.NoError(t, e.Confirm(pending.LocalKey, &chat.Message{ServerID: "srv-1"}))

	msgs := e.Messages()
	require.Len(t, msgs, 1, "rival copy collapsed on confirmation")
	assert.Equal(t, pending.LocalKey, msgs[0].LocalKey)
	assert.Equal(t, "srv-1", msgs[0].ServerID)
}

func TestSeed_AssignsKeysAndCollapsesDuplicates(t *testing.T) {
	e := newEngine(t)

	e.Seed([]chat.Message{
		{ServerID: "srv-1", Text: "welcome", Origin: chat.OriginAssistant},
		{ServerID: "srv-2", Text: "hi", Origin: chat.OriginRemoteUser},
		{ServerID: "srv-1", Text: "welcome", Origin: chat.OriginAssistant},
	})

	msgs := e.Messages()
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.NotEmpty(t, m.LocalKey)
		assert.Equal(t, chat.DeliveryConfirmed, m.Delivery)
	}
}

func TestOrdering_AppendOrderNotTimestampOrder(t *testing.T) {
	e := newEngine(t)
	now := time.Now()

	// Arrival order deliberately disagrees with timestamps.
	e.MergeRemote(chat.Message{ServerID: "srv-1", Text: "later", Origin: chat.OriginStaff, CreatedAt: now.Add(time.Hour)})
	e.MergeRemote(chat.Message{ServerID: "srv-2", Text: "earlier", Origin: chat.OriginStaff, CreatedAt: now})

	msgs := e.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "later", msgs[0].Text, "transcript keeps arrival order")
	assert.Equal(t, "earlier", msgs[1].Text)
}

func TestOnChange_FiresPerMutation(t *testing.T) {
	var fired int
	e := New(chat.KindAssistant, Options{OnChange: func() { fired++ }})

	pending := e.AppendPending("hi")
	require.NoError(t, e.Confirm(pending.LocalKey, &chat.Message{ServerID: "srv-1"}))
	e.MergeRemote(chat.Message{ServerID: "srv-1", Text: "hi", Origin: chat.OriginRemoteUser, CreatedAt: time.Now()})

	assert.Equal(t, 2, fired, "suppressed duplicate does not notify")
}

func TestMessages_SnapshotIsolation(t *testing.T) {
	e := newEngine(t)
	e.AppendPending("one")

	snap := e.Messages()
	snap[0].Text = "mutated"

	assert.Equal(t, "one", e.Messages()[0].Text)
}

func TestMergeRemote_ManyDistinctMessages(t *testing.T) {
	e := newEngine(t)
	now := time.Now()

	for i := range 100 {
		appended := e.MergeRemote(chat.Message{
			ServerID:  fmt.Sprintf("srv-%d", i),
			Text:      fmt.Sprintf("message %d", i),
			Origin:    chat.OriginAssistant,
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		})
		require.True(t, appended)
	}

	assert.Equal(t, 100, e.Len())
}
