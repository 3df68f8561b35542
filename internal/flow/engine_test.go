package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helplane/support-widget/internal/model"
	"github.com/helplane/support-widget/internal/navstate"
	"github.com/helplane/support-widget/pkg/logger"
)

const testChatID = "chat-1"

type fakeMessages struct {
	mu        sync.Mutex
	history   map[string][]model.Message
	created   []model.Message
	createErr error
	listErr   error
	feed      *fakeFeed // when set, Create echoes through the feed
}

func (f *fakeMessages) Create(ctx context.Context, msg model.Message) (model.Message, error) {
	f.mu.Lock()
	if f.createErr != nil {
		err := f.createErr
		f.mu.Unlock()
		return model.Message{}, err
	}
	f.created = append(f.created, msg)
	feed := f.feed
	f.mu.Unlock()

	if feed != nil {
		feed.deliver(msg)
	}
	return msg, nil
}

func (f *fakeMessages) List(ctx context.Context, chatID string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Message(nil), f.history[chatID]...), nil
}

func (f *fakeMessages) createdBySender(sender model.SenderType) []model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Message
	for _, m := range f.created {
		if m.SenderType == sender {
			out = append(out, m)
		}
	}
	return out
}

type fakePresets struct {
	mu       sync.Mutex
	children map[string][]model.Preset // keyed by parent id, "" is root
	queried  []string
	err      error
}

func parentKey(parentID *string) string {
	if parentID == nil {
		return ""
	}
	return *parentID
}

func (f *fakePresets) ListChildren(ctx context.Context, parentID *string) ([]model.Preset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried = append(f.queried, parentKey(parentID))
	if f.err != nil {
		return nil, f.err
	}
	return f.children[parentKey(parentID)], nil
}

func (f *fakePresets) queriedParents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queried...)
}

type fakeFeed struct {
	mu         sync.Mutex
	subs       map[int]subscription
	nextSub    int
	subscribes int
	unsubs     int
	err        error
}

type subscription struct {
	chatID string
	fn     func(model.Message)
}

func (f *fakeFeed) SubscribeMessages(ctx context.Context, chatID string, fn func(model.Message)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.subs == nil {
		f.subs = make(map[int]subscription)
	}
	id := f.nextSub
	f.nextSub++
	f.subscribes++
	f.subs[id] = subscription{chatID: chatID, fn: fn}
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
		f.unsubs++
	}, nil
}

func (f *fakeFeed) deliver(msg model.Message) {
	f.mu.Lock()
	fns := make([]func(model.Message), 0, len(f.subs))
	for _, sub := range f.subs {
		if sub.chatID == msg.ChatID {
			fns = append(fns, sub.fn)
		}
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(msg)
	}
}

type staticTexts struct{}

func (staticTexts) AutoReplyText(ctx context.Context) string {
	return "Thanks for your message! One of our representatives will get back to you shortly."
}

func (staticTexts) HandoffText(ctx context.Context) string {
	return "Connecting you with a support agent. Please hold on."
}

func preset(id string, parentID *string, label string, escalate bool) model.Preset {
	return model.Preset{
		ID:              id,
		ParentID:        parentID,
		ButtonLabel:     label,
		IsActive:        true,
		EscalateToAgent: escalate,
	}
}

type testDeps struct {
	messages *fakeMessages
	presets  *fakePresets
	feed     *fakeFeed
	nav      navstate.Store
}

func newTestEngine(t *testing.T) (*Engine, *testDeps) {
	return newTestEngineWithDelay(t, 20*time.Millisecond)
}

func newTestEngineWithDelay(t *testing.T, delay time.Duration) (*Engine, *testDeps) {
	t.Helper()

	deps := &testDeps{
		messages: &fakeMessages{history: make(map[string][]model.Message)},
		presets: &fakePresets{children: map[string][]model.Preset{
			"": {
				preset("p-billing", nil, "Billing", false),
				preset("p-human", nil, "Talk to a human", true),
			},
			"p-billing": {
				preset("p-refund", ptr("p-billing"), "Refunds", false),
			},
		}},
		feed: &fakeFeed{},
		nav:  navstate.NewMemory(),
	}
	deps.messages.feed = deps.feed

	e := New(Options{
		Messages:   deps.messages,
		Presets:    deps.presets,
		Feed:       deps.feed,
		Nav:        deps.nav,
		Texts:      staticTexts{},
		ReplyDelay: delay,
		Logger:     &logger.Logger{Logger: zap.NewNop()},
	})
	return e, deps
}

func ptr(s string) *string { return &s }

func TestInitializeFreshShowsRootPresets(t *testing.T) {
	e, deps := newTestEngine(t)
	defer e.Teardown()

	deps.messages.history[testChatID] = []model.Message{
		{ID: "m1", ChatID: testChatID, SenderType: model.SenderBot, Content: "welcome"},
	}

	require.NoError(t, e.Initialize(context.Background(), testChatID))

	snap := e.Snapshot()
	assert.Equal(t, testChatID, snap.ChatID)
	require.Len(t, snap.Messages, 1)
	require.Len(t, snap.Options, 2)
	assert.Equal(t, "p-billing", snap.Options[0].ID)
	assert.True(t, snap.ShowPresets)
	assert.Empty(t, snap.Path)

	state := deps.nav.Restore(context.Background(), testChatID)
	require.NotNil(t, state, "fresh derivation should persist the root state")
	assert.Nil(t, state.CurrentPresetID)
}

func TestInitializeRestoresSavedPosition(t *testing.T) {
	e, deps := newTestEngine(t)
	defer e.Teardown()

	deps.nav.Save(context.Background(), testChatID, model.NavState{
		CurrentPresetID: ptr("p-billing"),
		ShowPresets:     true,
		Path:            []model.PathEntry{{ID: "p-billing", Label: "Billing"}},
	})

	require.NoError(t, e.Initialize(context.Background(), testChatID))

	snap := e.Snapshot()
	require.Len(t, snap.Options, 1)
	assert.Equal(t, "p-refund", snap.Options[0].ID)
	require.Len(t, snap.Path, 1)
	assert.Equal(t, "Billing", snap.Path[0].Label)
	assert.True(t, snap.ShowPresets)
}

func TestInitializeHealsStaleSavedPosition(t *testing.T) {
	e, deps := newTestEngine(t)
	defer e.Teardown()

	// Points at a node that was since deleted or deactivated.
	deps.nav.Save(context.Background(), testChatID, model.NavState{
		CurrentPresetID: ptr("p-gone"),
		ShowPresets:     true,
		Path:            []model.PathEntry{{ID: "p-gone", Label: "Gone"}},
	})

	require.NoError(t, e.Initialize(context.Background(), testChatID))

	snap := e.Snapshot()
	require.Len(t, snap.Options, 2)
	assert.Equal(t, "p-billing", snap.Options[0].ID)
	assert.Empty(t, snap.Path)
	assert.True(t, snap.ShowPresets)

	state := deps.nav.Restore(context.Background(), testChatID)
	require.NotNil(t, state)
	assert.Nil(t, state.CurrentPresetID, "healed root position should overwrite the stale record")
}

func TestInitializeSameChatIsNoop(t *testing.T) {
	e, deps := newTestEngine(t)
	defer e.Teardown()

	require.NoError(t, e.Initialize(context.Background(), testChatID))
	require.NoError(t, e.Initialize(context.Background(), testChatID))

	deps.feed.mu.Lock()
	defer deps.feed.mu.Unlock()
	assert.Equal(t, 1, deps.feed.subscribes)
}

func TestInitializeSwitchReleasesOldSubscription(t *testing.T) {
	e, deps := newTestEngine(t)
	defer e.Teardown()

	require.NoError(t, e.Initialize(context.Background(), testChatID))
	require.NoError(t, e.Initialize(context.Background(), "chat-2"))

	deps.feed.mu.Lock()
	defer deps.feed.mu.Unlock()
	assert.Equal(t, 2, deps.feed.subscribes)
	assert.Equal(t, 1, deps.feed.unsubs)
}

func TestInitializeSurvivesHistoryLoadFailure(t *testing.T) {
	e, deps := newTestEngine(t)
	defer e.Teardown()

	deps.messages.listErr = errors.New("storage down")

	require.NoError(t, e.Initialize(context.Background(), testChatID))

	snap := e.Snapshot()
	assert.Empty(t, snap.Messages)
	assert.True(t, snap.ShowPresets, "navigation still derives when history is unavailable")
}

func TestSendFreeTextShowsEchoAndTyping(t *testing.T) {
	e, _ := newTestEngine(t)
	defer e.Teardown()
	require.NoError(t, e.Initialize(context.Background(), testChatID))

	e.SendFreeText(context.Background(), "  where is my order?  ")

	snap := e.Snapshot()
	var echo *model.Message
	for i := range snap.Messages {
		if snap.Messages[i].SenderType == model.SenderCustomer {
			echo = &snap.Messages[i]
		}
	}
	require.NotNil(t, echo)
	assert.Equal(t, "where is my order?", echo.Content)
	assert.True(t, snap.Typing)
}

func TestSendFreeTextEmptyIsNoop(t *testing.T) {
	e, deps := newTestEngine(t)
	defer e.Teardown()
	require.NoError(t, e.Initialize(context.Background(), testChatID))

	e.SendFreeText(context.Background(), "   ")

	assert.Empty(t, deps.messages.created)
	assert.False(t, e.Snapshot().Typing)
}

func TestRapidSendsProduceOneAutoReply(t *testing.T) {
	e, deps := newTestEngineWithDelay(t, 100*time.Millisecond)
	defer e.Teardown()
	require.NoError(t, e.Initialize(context.Background(), testChatID))

	e.SendFreeText(context.Background(), "first")
	e.SendFreeText(context.Background(), "second")

	require.Eventually(t, func() bool {
		return len(deps.messages.createdBySender(model.SenderBot)) == 1
	}, time.Second, 5*time.Millisecond, "the burst should collapse to one auto-reply")

	// No second reply shows up later.
	time.Sleep(150 * time.Millisecond)
	assert.Len(t, deps.messages.createdBySender(model.SenderBot), 1)
	assert.False(t, e.Snapshot().Typing)
}

func TestAutoReplyResetsNavigationToRoot(t *testing.T) {
	e, deps := newTestEngine(t)
	defer e.Teardown()
	require.NoError(t, e.Initialize(context.Background(), testChatID))

	// Descend into the tree first.
	e.SelectPreset(context.Background(), preset("p-billing", nil, "Billing", false))
	require.Len(t, e.Snapshot().Path, 1)

	e.SendFreeText(context.Background(), "actually something else")

	require.Eventually(t, func() bool {
		snap := e.Snapshot()
		return !snap.Typing && len(snap.Path) == 0 && len(snap.Options) == 2
	}, time.Second, 5*time.Millisecond)

	state := deps.nav.Restore(context.Background(), testChatID)
	require.NotNil(t, state)
	assert.Nil(t, state.CurrentPresetID)
}

func TestSendFreeTextPersistFailureKeepsEcho(t *testing.T) {
	e, deps := newTestEngine(t)
	defer e.Teardown()
	require.NoError(t, e.Initialize(context.Background(), testChatID))

	deps.messages.createErr = errors.New("storage down")
	e.SendFreeText(context.Background(), "hello?")

	snap := e.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.True(t, snap.Messages[0].IsOptimistic())
}

func TestSelectPresetDescends(t *testing.T) {
	e, deps := newTestEngine(t)
	defer e.Teardown()
	require.NoError(t, e.Initialize(context.Background(), testChatID))

	node := preset("p-billing", nil, "Billing", false)
	node.AnswerText = "Billing questions, coming right up."
	e.SelectPreset(context.Background(), node)

	snap := e.Snapshot()
	require.Len(t, snap.Options, 1)
	assert.Equal(t, "p-refund", snap.Options[0].ID)
	require.Len(t, snap.Path, 1)
	assert.Equal(t, "Billing", snap.Path[0].Label)
	assert.True(t, snap.ShowPresets)

	// One customer echo and one bot answer were persisted.
	assert.Len(t, deps.messages.createdBySender(model.SenderCustomer), 1)
	bot := deps.messages.createdBySender(model.SenderBot)
	require.Len(t, bot, 1)
	assert.Equal(t, "Billing questions, coming right up.", bot[0].Content)

	state := deps.nav.Restore(context.Background(), testChatID)
	require.NotNil(t, state)
	require.NotNil(t, state.CurrentPresetID)
	assert.Equal(t, "p-billing", *state.CurrentPresetID)
}

func TestSelectPresetEscalationIsTerminal(t *testing.T) {
	e, deps := newTestEngine(t)
	defer e.Teardown()
	require.NoError(t, e.Initialize(context.Background(), testChatID))
	before := len(deps.presets.queriedParents())

	node := preset("p-human", nil, "Talk to a human", true)
	node.AnswerText = "never shown"
	e.SelectPreset(context.Background(), node)

	snap := e.Snapshot()
	assert.False(t, snap.ShowPresets)
	assert.Empty(t, snap.Options)

	// The hand-off text is persisted, never the node's own answer.
	bot := deps.messages.createdBySender(model.SenderBot)
	require.Len(t, bot, 1)
	assert.Equal(t, staticTexts{}.HandoffText(context.Background()), bot[0].Content)

	// Terminal: no child lookup for the escalation node.
	assert.Len(t, deps.presets.queriedParents(), before)

	state := deps.nav.Restore(context.Background(), testChatID)
	require.NotNil(t, state)
	assert.False(t, state.ShowPresets)
}

func TestSelectPresetDeadEndFallsBackToRoot(t *testing.T) {
	e, deps := newTestEngine(t)
	defer e.Teardown()
	require.NoError(t, e.Initialize(context.Background(), testChatID))

	// p-refund has no children and no escalate flag.
	e.SelectPreset(context.Background(), preset("p-refund", ptr("p-billing"), "Refunds", false))

	snap := e.Snapshot()
	require.Len(t, snap.Options, 2)
	assert.Equal(t, "p-billing", snap.Options[0].ID)
	assert.Empty(t, snap.Path)
	assert.True(t, snap.ShowPresets)

	state := deps.nav.Restore(context.Background(), testChatID)
	require.NotNil(t, state)
	assert.Nil(t, state.CurrentPresetID)
}

func TestIncomingReplacesOptimisticEcho(t *testing.T) {
	e, _ := newTestEngine(t)
	defer e.Teardown()
	require.NoError(t, e.Initialize(context.Background(), testChatID))

	// Create echoes through the feed, so the authoritative record arrives
	// right after the optimistic append.
	e.SendFreeText(context.Background(), "hello")

	snap := e.Snapshot()
	require.Len(t, snap.Messages, 1, "echo and authoritative record must not coexist")
	assert.False(t, snap.Messages[0].IsOptimistic())
	assert.Equal(t, "hello", snap.Messages[0].Content)
}

func TestIncomingAgentMessageNotifies(t *testing.T) {
	e, deps := newTestEngine(t)
	defer e.Teardown()
	require.NoError(t, e.Initialize(context.Background(), testChatID))

	events, cancel := e.Watch()
	defer cancel()

	agentMsg := model.NewTextMessage(testChatID, model.SenderAgent, "hi, how can I help?")
	deps.feed.deliver(agentMsg)

	var notified bool
	for !notified {
		select {
		case ev := <-events:
			if ev.Type == EventNotify {
				require.NotNil(t, ev.Message)
				assert.Equal(t, agentMsg.ID, ev.Message.ID)
				notified = true
			}
		case <-time.After(time.Second):
			t.Fatal("expected a notify event for the agent message")
		}
	}
}

func TestIncomingCustomerMessageDoesNotNotify(t *testing.T) {
	e, deps := newTestEngine(t)
	defer e.Teardown()
	require.NoError(t, e.Initialize(context.Background(), testChatID))

	events, cancel := e.Watch()
	defer cancel()

	deps.feed.deliver(model.NewTextMessage(testChatID, model.SenderCustomer, "typed elsewhere"))

	for {
		select {
		case ev := <-events:
			assert.NotEqual(t, EventNotify, ev.Type, "customer content never cues")
		default:
			return
		}
	}
}

func TestIncomingForOtherChatIgnored(t *testing.T) {
	e, deps := newTestEngine(t)
	defer e.Teardown()
	require.NoError(t, e.Initialize(context.Background(), testChatID))

	stray := model.NewTextMessage("chat-other", model.SenderAgent, "wrong room")
	// Bypass the per-chat filter to simulate a stale subscription.
	deps.feed.mu.Lock()
	fns := make([]func(model.Message), 0, len(deps.feed.subs))
	for _, sub := range deps.feed.subs {
		fns = append(fns, sub.fn)
	}
	deps.feed.mu.Unlock()
	for _, fn := range fns {
		fn(stray)
	}

	assert.Empty(t, e.Snapshot().Messages)
}

func TestTeardownCancelsPendingAutoReply(t *testing.T) {
	e, deps := newTestEngineWithDelay(t, 100*time.Millisecond)
	require.NoError(t, e.Initialize(context.Background(), testChatID))

	e.SendFreeText(context.Background(), "hello")
	e.Teardown()

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, deps.messages.createdBySender(model.SenderBot),
		"closing the conversation cancels the scheduled reply")

	deps.feed.mu.Lock()
	defer deps.feed.mu.Unlock()
	assert.Equal(t, deps.feed.subscribes, deps.feed.unsubs)
}
