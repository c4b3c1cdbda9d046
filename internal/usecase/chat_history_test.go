package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/nextai-chat/internal/domain/entity"
	"github.com/yourusername/nextai-chat/internal/domain/repository"
	"github.com/yourusername/nextai-chat/internal/infrastructure/storage"
)

func newTestHistory(t *testing.T, clock *fakeClock) (*ChatHistory, repository.StateStore) {
	t.Helper()
	store := storage.NewMemoryStateStore()
	h, err := NewChatHistory(context.Background(), store, "user", clock.Now)
	require.NoError(t, err)
	return h, store
}

func TestChatHistory_AddChatUniqueIDs(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	h, _ := newTestHistory(t, clock)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id, err := h.AddChat(ctx, DefaultChatTitle)
		require.NoError(t, err)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, h.Chats(), 200)
}

func TestChatHistory_AddChatRetriesCollidingID(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(t, newFakeClock())

	ids := []string{"same", "same", "next"}
	h.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, err := h.AddChat(ctx, "a")
	require.NoError(t, err)
	second, err := h.AddChat(ctx, "b")
	require.NoError(t, err)

	assert.Equal(t, "same", first)
	assert.Equal(t, "next", second)
}

func TestChatHistory_NewChatDefaults(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(t, newFakeClock())

	id, err := h.AddChat(ctx, DefaultChatTitle)
	require.NoError(t, err)

	chat, ok := h.GetChat(id)
	require.True(t, ok)
	assert.Equal(t, DefaultChatTitle, chat.Title)
	assert.Empty(t, chat.Messages)
	assert.Zero(t, chat.QuestionCount)
}

func TestChatHistory_RenameDeleteMissingAreNoOps(t *testing.T) {
	ctx := context.Background()
	h, store := newTestHistory(t, newFakeClock())

	require.NoError(t, h.RenameChat(ctx, "missing", "x"))
	require.NoError(t, h.DeleteChat(ctx, "missing"))
	require.NoError(t, h.IncrementQuestionCount(ctx, "missing"))

	_, ok, err := store.Get(ctx, chatHistoryKey("user"))
	require.NoError(t, err)
	assert.False(t, ok, "no-ops must not write")

	id, err := h.AddChat(ctx, DefaultChatTitle)
	require.NoError(t, err)
	require.NoError(t, h.RenameChat(ctx, id, "Trip notes"))
	chat, _ := h.GetChat(id)
	assert.Equal(t, "Trip notes", chat.Title)

	require.NoError(t, h.DeleteChat(ctx, id))
	_, ok = h.GetChat(id)
	assert.False(t, ok)
}

func TestChatHistory_IncrementQuestionCount(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(t, newFakeClock())

	id, err := h.AddChat(ctx, DefaultChatTitle)
	require.NoError(t, err)
	require.NoError(t, h.IncrementQuestionCount(ctx, id))
	require.NoError(t, h.IncrementQuestionCount(ctx, id))

	chat, ok := h.GetChat(id)
	require.True(t, ok)
	assert.Equal(t, 2, chat.QuestionCount)
}

func TestGenerateTitle(t *testing.T) {
	tests := []struct {
		name     string
		messages []entity.Message
		want     string
	}{
		{"no messages", nil, DefaultChatTitle},
		{"first long word", []entity.Message{{Text: "The lazy fox jumps"}}, "🌿 lazy"},
		{"lowercased", []entity.Message{{Text: "Tell me about RAINFOREST"}}, "🌿 tell"},
		{"no qualifying word", []entity.Message{{Text: "a an the fox"}}, "🌿 Chat"},
		{"only first message counts", []entity.Message{{Text: "hi"}, {Text: "something long"}}, "🌿 Chat"},
		{"punctuation kept", []entity.Message{{Text: "why? frogs!"}}, "🌿 why?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateTitle(tt.messages))
		})
	}
}

func TestChatHistory_GetDailyChatCount(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	h, _ := newTestHistory(t, clock)

	_, err := h.AddChat(ctx, "a")
	require.NoError(t, err)
	clock.Advance(time.Hour)
	_, err = h.AddChat(ctx, "b")
	require.NoError(t, err)
	clock.Advance(24 * time.Hour)
	_, err = h.AddChat(ctx, "c")
	require.NoError(t, err)

	assert.Equal(t, 1, h.GetDailyChatCount(clock.Now()))
	assert.Equal(t, 2, h.GetDailyChatCount(clock.Now().Add(-24*time.Hour)))
	assert.Equal(t, 0, h.GetDailyChatCount(clock.Now().Add(48*time.Hour)))
	assert.Equal(t, 2, h.CountChatsSince(clock.Now().Add(-24*time.Hour)))
}

func TestChatHistory_AppendExchange(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(t, newFakeClock())
	id, err := h.AddChat(ctx, DefaultChatTitle)
	require.NoError(t, err)

	q := entity.Message{ID: 1, Text: "Where do jaguars live", Type: entity.MessageTypeUser}
	a := entity.Message{ID: 2, Text: "In forests", Type: entity.MessageTypeAI}
	require.NoError(t, h.AppendExchange(ctx, id, q, a))

	chat, _ := h.GetChat(id)
	assert.Len(t, chat.Messages, 2)
	assert.Equal(t, 1, chat.QuestionCount, "one exchange counts as one question")
	assert.Equal(t, "🌿 where", chat.Title)

	require.NoError(t, h.RenameChat(ctx, id, "Cats"))
	require.NoError(t, h.AppendExchange(ctx, id, q, a))
	chat, _ = h.GetChat(id)
	assert.Equal(t, "Cats", chat.Title, "only the first exchange names the chat")
	assert.Equal(t, 2, chat.QuestionCount)
}

func TestChatHistory_RoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := storage.NewMemoryStateStore()

	h, err := NewChatHistory(ctx, store, "user", clock.Now)
	require.NoError(t, err)

	first, err := h.AddChat(ctx, DefaultChatTitle)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := h.AddChat(ctx, DefaultChatTitle)
	require.NoError(t, err)

	tracker := NewContextTracker(clock.Now, nil)
	q := tracker.AddMessage("Tell me about the amazon river", entity.MessageTypeUser)
	a := tracker.AddMessage("The amazon river is long", entity.MessageTypeAI)
	require.NoError(t, h.AppendExchange(ctx, first, q, a))
	require.NoError(t, h.RenameChat(ctx, second, "Empty one"))

	reloaded, err := NewChatHistory(ctx, store, "user", clock.Now)
	require.NoError(t, err)

	want, got := h.Chats(), reloaded.Chats()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Title, got[i].Title)
		assert.Equal(t, want[i].QuestionCount, got[i].QuestionCount)
		assert.True(t, want[i].CreatedAt.Equal(got[i].CreatedAt))
		require.Len(t, got[i].Messages, len(want[i].Messages))
		for j := range want[i].Messages {
			wm, gm := want[i].Messages[j], got[i].Messages[j]
			assert.Equal(t, wm.ID, gm.ID)
			assert.Equal(t, wm.Text, gm.Text)
			assert.Equal(t, wm.Type, gm.Type)
			assert.Equal(t, wm.RelatedTo, gm.RelatedTo)
			assert.True(t, wm.Timestamp.Equal(gm.Timestamp))
		}
	}
}

func TestChatHistory_ChatsNewestFirstAndClear(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	h, _ := newTestHistory(t, clock)

	older, err := h.AddChat(ctx, "older")
	require.NoError(t, err)
	clock.Advance(time.Second)
	newer, err := h.AddChat(ctx, "newer")
	require.NoError(t, err)

	chats := h.Chats()
	require.Len(t, chats, 2)
	assert.Equal(t, newer, chats[0].ID)
	assert.Equal(t, older, chats[1].ID)

	require.NoError(t, h.ClearChats(ctx))
	assert.Empty(t, h.Chats())
}
