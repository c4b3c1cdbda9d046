package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/nextai-chat/internal/domain/entity"
)

func noticeTexts(r Reply) []string {
	var texts []string
	for _, n := range r.Notices {
		texts = append(texts, n.Text)
	}
	return texts
}

func TestChatApp_RequiresSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultQuotaConfig())

	_, err := env.app.Resume(ctx)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = env.app.StartNewChat(ctx)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = env.app.SendMessage(ctx, "hello there")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = env.app.LoadChat(ctx, "x")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.ErrorIs(t, env.app.RenameChat(ctx, "x", "y"), ErrNotAuthenticated)
	assert.ErrorIs(t, env.app.DeleteChat(ctx, "x"), ErrNotAuthenticated)
	_, err = env.app.Chats(ctx)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = env.app.Context(ctx)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	state, err := env.quota.State(ctx)
	require.NoError(t, err)
	assert.Zero(t, state.DailyChatCount)
	assert.Empty(t, env.ai.prompts)

	ok, err := env.app.Login(ctx, "user", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = env.app.Resume(ctx)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestChatApp_ResumeStartsChat(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultQuotaConfig())
	env.login(t)

	reply, err := env.app.Resume(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, reply.ChatID)
	assert.Equal(t, []string{newChatText}, noticeTexts(reply))
	assert.Equal(t, reply.ChatID, env.app.CurrentChatID())

	again, err := env.app.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, reply.ChatID, again.ChatID, "an open chat is kept")

	state, err := env.quota.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, state.DailyChatCount)
}

func TestChatApp_SendMessage(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultQuotaConfig())
	env.login(t)
	started, err := env.app.StartNewChat(ctx)
	require.NoError(t, err)

	env.ai.reply = "Lots of frogs"
	reply, err := env.app.SendMessage(ctx, "  Tell me about the rainforest  ")
	require.NoError(t, err)

	assert.Equal(t, []Notice{{Type: entity.MessageTypeAI, Text: "Lots of frogs"}}, reply.Notices)
	assert.True(t, reply.TopicRelated)
	assert.False(t, reply.PromptNewChat)
	assert.Equal(t,
		"Previous conversation:\nQ: Tell me about the rainforest\nCurrent question: Tell me about the rainforest\nFocus on rainforest-related information.",
		env.ai.lastPrompt())

	chats, err := env.app.Chats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, started.ChatID, chats[0].ID)
	assert.Equal(t, "🌿 tell", chats[0].Title)
	assert.Equal(t, 1, chats[0].QuestionCount)
	require.Len(t, chats[0].Messages, 2)
	assert.Equal(t, entity.MessageTypeUser, chats[0].Messages[0].Type)
	assert.Equal(t, entity.MessageTypeAI, chats[0].Messages[1].Type)

	env.ai.reply = "Jaguars"
	_, err = env.app.SendMessage(ctx, "Which cats?")
	require.NoError(t, err)
	assert.Equal(t,
		"Previous conversation:\nQ: Tell me about the rainforest\nA: Lots of frogs\nQ: Which cats?\nCurrent question: Which cats?\nFocus on rainforest-related information.",
		env.ai.lastPrompt())
}

func TestChatApp_SendMessageIgnoresEmptyAndNoChat(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultQuotaConfig())
	env.login(t)

	reply, err := env.app.SendMessage(ctx, "no chat yet")
	assert.ErrorIs(t, err, ErrNoChat)
	assert.Empty(t, reply.Notices)

	_, err = env.app.StartNewChat(ctx)
	require.NoError(t, err)
	reply, err = env.app.SendMessage(ctx, "   ")
	require.NoError(t, err)
	assert.Empty(t, reply.Notices)
	assert.Empty(t, env.ai.prompts)
}

func TestChatApp_QuestionLimit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultQuotaConfig())
	env.login(t)
	started, err := env.app.StartNewChat(ctx)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		reply, err := env.app.SendMessage(ctx, "question")
		require.NoError(t, err)
		assert.Equal(t, []string{"answer"}, noticeTexts(reply), "question %d", i+1)
		assert.False(t, reply.PromptNewChat)
	}

	last, err := env.app.SendMessage(ctx, "final question")
	require.NoError(t, err)
	assert.Equal(t, []string{lastQuestionMsg, "answer"}, noticeTexts(last))
	assert.Equal(t, entity.MessageTypeSystem, last.Notices[0].Type)
	assert.True(t, last.PromptNewChat)

	denied, err := env.app.SendMessage(ctx, "one more")
	require.NoError(t, err)
	assert.Equal(t, []string{"You've reached the limit of 5 questions for this chat. Start a new chat!"}, noticeTexts(denied))
	assert.True(t, denied.PromptNewChat)
	assert.Len(t, env.ai.prompts, 5)

	chats, err := env.app.Chats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, started.ChatID, chats[0].ID)
	assert.Equal(t, 5, chats[0].QuestionCount)
	assert.Len(t, chats[0].Messages, 10)
}

func TestChatApp_GenerateFailureKeepsChatIntact(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultQuotaConfig())
	env.login(t)
	_, err := env.app.StartNewChat(ctx)
	require.NoError(t, err)

	env.ai.err = errGenerate
	reply, err := env.app.SendMessage(ctx, "Is anybody there?")
	require.NoError(t, err)
	assert.Equal(t, []Notice{{Type: entity.MessageTypeAI, Text: apologyText}}, reply.Notices)

	chats, err := env.app.Chats(ctx)
	require.NoError(t, err)
	assert.Zero(t, chats[0].QuestionCount)
	assert.Empty(t, chats[0].Messages)

	snapshot, err := env.app.Context(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot.Messages, 1)
	assert.Equal(t, "Is anybody there?", snapshot.Messages[0].Text)
}

func TestChatApp_RejectsConcurrentSend(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultQuotaConfig())
	env.login(t)
	_, err := env.app.StartNewChat(ctx)
	require.NoError(t, err)

	env.ai.block = make(chan struct{})
	env.ai.entered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := env.app.SendMessage(ctx, "slow question")
		done <- err
	}()

	<-env.ai.entered

	// the bot reads the open chat and then sends, both while the reply is pending
	second := make(chan error, 1)
	go func() {
		if env.app.CurrentChatID() == "" {
			second <- ErrNoChat
			return
		}
		_, err := env.app.SendMessage(ctx, "impatient question")
		second <- err
	}()

	select {
	case err := <-second:
		assert.ErrorIs(t, err, ErrBusy)
	case <-time.After(2 * time.Second):
		close(env.ai.block)
		t.Fatal("second send waited for the pending reply instead of failing fast")
	}

	close(env.ai.block)
	require.NoError(t, <-done)

	chats, err := env.app.Chats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, chats[0].QuestionCount, "a rejected send must not use a question")
	assert.Len(t, env.ai.prompts, 1)

	env.ai.block = nil
	env.ai.entered = nil
	_, err = env.app.SendMessage(ctx, "next question")
	assert.NoError(t, err)
}

func TestChatApp_DailyChatLimit(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultQuotaConfig()
	cfg.MaxChatsPerDay = 2
	env := newTestEnv(t, cfg)
	env.login(t)

	first, err := env.app.StartNewChat(ctx)
	require.NoError(t, err)
	second, err := env.app.StartNewChat(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.ChatID, second.ChatID)

	denied, err := env.app.StartNewChat(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"You've reached the daily limit of 2 chat sessions. Please wait 1 hour to start a new chat!"}, noticeTexts(denied))
	assert.Equal(t, second.ChatID, env.app.CurrentChatID(), "a denial keeps the open chat")

	env.clock.Advance(5*time.Minute + 30*time.Second)
	cooling, err := env.app.StartNewChat(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"You've used all 2 chat sessions. Please wait 55 minutes before starting a new chat."}, noticeTexts(cooling))

	env.clock.Advance(time.Hour)
	renewed, err := env.app.StartNewChat(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{newChatText}, noticeTexts(renewed))

	chats, err := env.app.Chats(ctx)
	require.NoError(t, err)
	assert.Len(t, chats, 3)
}

func TestChatApp_LoadChat(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultQuotaConfig())
	env.login(t)

	first, err := env.app.StartNewChat(ctx)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := env.app.SendMessage(ctx, "jungle question")
		require.NoError(t, err)
	}
	_, err = env.app.StartNewChat(ctx)
	require.NoError(t, err)

	snapshot, err := env.app.Context(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot.Messages)

	loaded, err := env.app.LoadChat(ctx, first.ChatID)
	require.NoError(t, err)
	assert.Equal(t, first.ChatID, env.app.CurrentChatID())
	require.Len(t, loaded.Notices, 9)
	assert.Equal(t, oneLeftMsg, loaded.Notices[8].Text)
	assert.True(t, loaded.TopicRelated)
	assert.False(t, loaded.PromptNewChat)

	snapshot, err = env.app.Context(ctx)
	require.NoError(t, err)
	assert.Len(t, snapshot.Messages, 8)

	missing, err := env.app.LoadChat(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, missing.Notices)
	assert.Equal(t, first.ChatID, env.app.CurrentChatID())
}

func TestChatApp_RenameAndDelete(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultQuotaConfig())
	env.login(t)

	started, err := env.app.StartNewChat(ctx)
	require.NoError(t, err)

	_, err = env.app.SendMessage(ctx, "amazon parrots")
	require.NoError(t, err)

	require.NoError(t, env.app.RenameChat(ctx, started.ChatID, "   "))
	chats, err := env.app.Chats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "🌿 amazon", chats[0].Title)

	require.NoError(t, env.app.RenameChat(ctx, started.ChatID, "  Birds  "))
	chats, err = env.app.Chats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Birds", chats[0].Title)

	require.NoError(t, env.app.DeleteChat(ctx, "missing"))
	require.NoError(t, env.app.DeleteChat(ctx, started.ChatID))
	assert.Empty(t, env.app.CurrentChatID())

	snapshot, err := env.app.Context(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot.Messages)
	assert.False(t, snapshot.TopicRelated)

	reply, err := env.app.SendMessage(ctx, "anyone?")
	assert.ErrorIs(t, err, ErrNoChat)
	assert.Empty(t, reply.Notices)
	assert.Len(t, env.ai.prompts, 1)
}

func TestChatApp_LogoutClearsChats(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultQuotaConfig())
	env.login(t)

	_, err := env.app.StartNewChat(ctx)
	require.NoError(t, err)
	require.NoError(t, env.app.Logout(ctx))
	require.NoError(t, env.app.Logout(ctx))

	_, err = env.app.Chats(ctx)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	env.login(t)
	chats, err := env.app.Chats(ctx)
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestChatApp_LoginAsOtherUserDropsPreviousChats(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultQuotaConfig())
	env.login(t)

	_, err := env.app.StartNewChat(ctx)
	require.NoError(t, err)
	_, ok, err := env.durable.Get(ctx, chatHistoryKey("user"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = env.app.Login(ctx, "other", "pw")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = env.durable.Get(ctx, chatHistoryKey("user"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, env.app.CurrentChatID())
}

func TestChatApp_Theme(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultQuotaConfig())

	theme, err := env.app.Theme(ctx)
	require.NoError(t, err)
	assert.Equal(t, ThemeLight, theme)

	require.NoError(t, env.app.SetTheme(ctx, ThemeDark))
	theme, err = env.app.Theme(ctx)
	require.NoError(t, err)
	assert.Equal(t, ThemeDark, theme)

	assert.ErrorIs(t, env.app.SetTheme(ctx, "sepia"), ErrInvalidTheme)
}

func TestBuildPrompt(t *testing.T) {
	assert.Equal(t, "Hi", BuildPrompt(nil, "Hi", false, DefaultTopicFocus))
	assert.Equal(t, "Hi\nFocus on jungles.", BuildPrompt(nil, "Hi", true, "Focus on jungles."))

	msgs := []entity.Message{
		{Text: "one", Type: entity.MessageTypeUser},
		{Text: "two", Type: entity.MessageTypeAI},
	}
	assert.Equal(t, "Previous conversation:\nQ: one\nA: two\nCurrent question: three", BuildPrompt(msgs, "three", false, ""))
}

func TestWaitFormatting(t *testing.T) {
	assert.Equal(t, 0, ceilMinutes(0))
	assert.Equal(t, 1, ceilMinutes(time.Second))
	assert.Equal(t, 60, ceilMinutes(time.Hour))
	assert.Equal(t, "1 hour", formatWait(time.Hour))
	assert.Equal(t, "2 hours", formatWait(2*time.Hour))
	assert.Equal(t, "90 minutes", formatWait(90*time.Minute))
}

func TestChatApp_CurrentUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, DefaultQuotaConfig())

	_, err := env.app.CurrentUser(ctx)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	env.login(t)
	user, err := env.app.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user", user)
}
