package agent

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helplane/support-widget/internal/model"
	"github.com/helplane/support-widget/pkg/logger"
)

type fakeChats struct {
	mu       sync.Mutex
	assigned map[string]string
	resolved map[string]bool
	roster   []model.ChatSummary
}

func newFakeChats() *fakeChats {
	return &fakeChats{
		assigned: make(map[string]string),
		resolved: make(map[string]bool),
	}
}

func (f *fakeChats) CreateChat(ctx context.Context, name, email string) (model.Chat, error) {
	return model.Chat{}, nil
}

func (f *fakeChats) GetChat(ctx context.Context, chatID string) (model.Chat, error) {
	return model.Chat{ID: chatID, Status: model.StatusActive}, nil
}

func (f *fakeChats) ListOpenChats(ctx context.Context, agentID string) ([]model.ChatSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ChatSummary(nil), f.roster...), nil
}

func (f *fakeChats) AssignChat(ctx context.Context, chatID, agentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assigned[chatID] = agentID
	return nil
}

func (f *fakeChats) ResolveChat(ctx context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved[chatID] = true
	return nil
}

func (f *fakeChats) TouchChat(ctx context.Context, chatID string) error {
	return nil
}

type fakeTranscripts struct {
	mu      sync.Mutex
	history map[string][]model.Message
	created []model.Message
	read    []string
	feed    *fakeChannel
}

func (f *fakeTranscripts) Create(ctx context.Context, msg model.Message) (model.Message, error) {
	f.mu.Lock()
	f.created = append(f.created, msg)
	feed := f.feed
	f.mu.Unlock()
	if feed != nil {
		feed.deliver(msg)
	}
	return msg, nil
}

func (f *fakeTranscripts) List(ctx context.Context, chatID string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Message(nil), f.history[chatID]...), nil
}

func (f *fakeTranscripts) MarkRead(ctx context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read = append(f.read, chatID)
	return nil
}

type fakeChannel struct {
	mu      sync.Mutex
	msgSubs map[int]msgSub
	nextID  int
	unsubs  int
	events  []model.ChatEvent
}

type msgSub struct {
	chatID string
	fn     func(model.Message)
}

func (f *fakeChannel) SubscribeMessages(ctx context.Context, chatID string, fn func(model.Message)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.msgSubs == nil {
		f.msgSubs = make(map[int]msgSub)
	}
	id := f.nextID
	f.nextID++
	f.msgSubs[id] = msgSub{chatID: chatID, fn: fn}
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.msgSubs, id)
		f.unsubs++
	}, nil
}

func (f *fakeChannel) SubscribeChatEvents(ctx context.Context, fn func(model.ChatEvent)) (func(), error) {
	return func() {}, nil
}

func (f *fakeChannel) PublishChatEvent(ctx context.Context, event model.ChatEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeChannel) deliver(msg model.Message) {
	f.mu.Lock()
	fns := make([]func(model.Message), 0, len(f.msgSubs))
	for _, sub := range f.msgSubs {
		if sub.chatID == msg.ChatID {
			fns = append(fns, sub.fn)
		}
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(msg)
	}
}

func newTestMirror(t *testing.T) (*Mirror, *fakeChats, *fakeTranscripts, *fakeChannel) {
	t.Helper()
	chats := newFakeChats()
	channel := &fakeChannel{}
	transcripts := &fakeTranscripts{history: make(map[string][]model.Message), feed: channel}
	log := &logger.Logger{Logger: zap.NewNop()}
	return NewMirror("agent-1", chats, transcripts, channel, channel, log), chats, transcripts, channel
}

func TestAssignPublishesRosterEvent(t *testing.T) {
	m, chats, _, channel := newTestMirror(t)

	require.NoError(t, m.Assign(context.Background(), "chat-1"))

	assert.Equal(t, "agent-1", chats.assigned["chat-1"])
	require.Len(t, channel.events, 1)
	assert.Equal(t, model.ChatEventAssigned, channel.events[0].Type)
	assert.Equal(t, "agent-1", channel.events[0].AgentID)
}

func TestResolvePublishesRosterEvent(t *testing.T) {
	m, chats, _, channel := newTestMirror(t)

	require.NoError(t, m.Resolve(context.Background(), "chat-1"))

	assert.True(t, chats.resolved["chat-1"])
	require.Len(t, channel.events, 1)
	assert.Equal(t, model.ChatEventResolved, channel.events[0].Type)
}

func TestOpenLoadsTranscriptAndMarksRead(t *testing.T) {
	m, _, transcripts, _ := newTestMirror(t)
	defer m.Close()

	transcripts.history["chat-1"] = []model.Message{
		model.NewTextMessage("chat-1", model.SenderCustomer, "hi"),
	}

	require.NoError(t, m.Open(context.Background(), "chat-1"))

	assert.Len(t, m.Messages(), 1)
	assert.Equal(t, []string{"chat-1"}, transcripts.read)
}

func TestOpenSwitchReleasesPreviousSubscription(t *testing.T) {
	m, _, _, channel := newTestMirror(t)
	defer m.Close()

	require.NoError(t, m.Open(context.Background(), "chat-1"))
	require.NoError(t, m.Open(context.Background(), "chat-2"))

	channel.mu.Lock()
	defer channel.mu.Unlock()
	assert.Equal(t, 1, channel.unsubs)
	assert.Len(t, channel.msgSubs, 1)
}

func TestSendDedupesOwnEcho(t *testing.T) {
	m, _, transcripts, _ := newTestMirror(t)
	defer m.Close()
	require.NoError(t, m.Open(context.Background(), "chat-1"))

	// Create echoes through the feed, so the authoritative record arrives
	// while the optimistic entry is still pending.
	require.NoError(t, m.Send(context.Background(), "how can I help?"))

	msgs := m.Messages()
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].IsOptimistic())
	assert.Equal(t, model.SenderAgent, msgs[0].SenderType)
	assert.Equal(t, "agent-1", msgs[0].SenderID)

	require.Len(t, transcripts.created, 1)
}

func TestSendWithoutOpenChatIsNoop(t *testing.T) {
	m, _, transcripts, _ := newTestMirror(t)

	require.NoError(t, m.Send(context.Background(), "hello?"))

	assert.Empty(t, transcripts.created)
}

func TestIncomingCustomerMessageAppends(t *testing.T) {
	m, _, _, channel := newTestMirror(t)
	defer m.Close()
	require.NoError(t, m.Open(context.Background(), "chat-1"))

	channel.deliver(model.NewTextMessage("chat-1", model.SenderCustomer, "my order is late"))

	msgs := m.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, model.SenderCustomer, msgs[0].SenderType)
}

func TestIncomingForUnopenedChatIgnored(t *testing.T) {
	m, _, _, channel := newTestMirror(t)
	defer m.Close()
	require.NoError(t, m.Open(context.Background(), "chat-1"))

	// Deliver to the handler directly, simulating a late event from a
	// previously opened chat.
	channel.mu.Lock()
	var fns []func(model.Message)
	for _, sub := range channel.msgSubs {
		fns = append(fns, sub.fn)
	}
	channel.mu.Unlock()
	for _, fn := range fns {
		fn(model.NewTextMessage("chat-old", model.SenderCustomer, "stale"))
	}

	assert.Empty(t, m.Messages())
}

func TestCloseReleasesSubscription(t *testing.T) {
	m, _, _, channel := newTestMirror(t)
	require.NoError(t, m.Open(context.Background(), "chat-1"))

	m.Close()

	channel.mu.Lock()
	defer channel.mu.Unlock()
	assert.Empty(t, channel.msgSubs)
	assert.Empty(t, m.Messages())
}
