package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/yourusername/nextai-chat/internal/domain/entity"
	"github.com/yourusername/nextai-chat/internal/domain/repository"
)

const (
	titleEmblem      = "🌿 "
	DefaultChatTitle = titleEmblem + "New Chat"
	fallbackKeyword  = "Chat"
)

// ChatHistory chat threads of one user, written through to the store on every change
type ChatHistory struct {
	store repository.StateStore
	user  string
	chats map[string]*entity.Chat
	now   Clock
	newID func() string
}

// NewChatHistory loads the chats of user from store
func NewChatHistory(ctx context.Context, store repository.StateStore, user string, now Clock) (*ChatHistory, error) {
	if now == nil {
		now = time.Now
	}
	h := &ChatHistory{
		store: store,
		user:  user,
		chats: make(map[string]*entity.Chat),
		now:   now,
		newID: uuid.NewString,
	}

	raw, ok, err := store.Get(ctx, chatHistoryKey(user))
	if err != nil {
		return nil, fmt.Errorf("failed to load chats of %s: %w", user, err)
	}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &h.chats); err != nil {
			return nil, fmt.Errorf("failed to decode chats of %s: %w", user, err)
		}
	}
	for id, chat := range h.chats {
		if chat == nil {
			delete(h.chats, id)
		}
	}

	return h, nil
}

// User owner of the history
func (h *ChatHistory) User() string {
	return h.user
}

// Save persists every chat
func (h *ChatHistory) Save(ctx context.Context) error {
	data, err := json.Marshal(h.chats)
	if err != nil {
		return fmt.Errorf("failed to encode chats: %w", err)
	}
	if err := h.store.Set(ctx, chatHistoryKey(h.user), string(data), 0); err != nil {
		return fmt.Errorf("failed to save chats of %s: %w", h.user, err)
	}
	return nil
}

// AddChat creates an empty chat and returns its id
func (h *ChatHistory) AddChat(ctx context.Context, title string) (string, error) {
	id := h.newID()
	for h.chats[id] != nil {
		id = h.newID()
	}

	h.chats[id] = &entity.Chat{
		ID:        id,
		Title:     title,
		Messages:  []entity.Message{},
		CreatedAt: h.now(),
	}
	if err := h.Save(ctx); err != nil {
		delete(h.chats, id)
		return "", err
	}
	return id, nil
}

// RenameChat sets a new title; unknown ids are ignored
func (h *ChatHistory) RenameChat(ctx context.Context, id, title string) error {
	chat, ok := h.chats[id]
	if !ok {
		return nil
	}
	chat.Title = title
	return h.Save(ctx)
}

// DeleteChat removes a chat; unknown ids are ignored
func (h *ChatHistory) DeleteChat(ctx context.Context, id string) error {
	if _, ok := h.chats[id]; !ok {
		return nil
	}
	delete(h.chats, id)
	return h.Save(ctx)
}

// GetChat returns a copy of the chat
func (h *ChatHistory) GetChat(id string) (entity.Chat, bool) {
	chat, ok := h.chats[id]
	if !ok {
		return entity.Chat{}, false
	}
	return cloneChat(chat), true
}

// Chats returns every chat, newest first
func (h *ChatHistory) Chats() []entity.Chat {
	chats := make([]entity.Chat, 0, len(h.chats))
	for _, chat := range h.chats {
		chats = append(chats, cloneChat(chat))
	}
	sort.Slice(chats, func(i, j int) bool {
		if chats[i].CreatedAt.Equal(chats[j].CreatedAt) {
			return chats[i].ID < chats[j].ID
		}
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})
	return chats
}

// GenerateTitle builds a title from the first keyword of the first message
func (h *ChatHistory) GenerateTitle(messages []entity.Message) string {
	return GenerateTitle(messages)
}

// GenerateTitle builds a title from the first keyword of the first message
func GenerateTitle(messages []entity.Message) string {
	if len(messages) == 0 {
		return DefaultChatTitle
	}
	for _, word := range strings.Split(strings.ToLower(messages[0].Text), " ") {
		if utf8.RuneCountInString(word) > 3 {
			return titleEmblem + word
		}
	}
	return titleEmblem + fallbackKeyword
}

// GetDailyChatCount number of chats created on the local calendar day of date
func (h *ChatHistory) GetDailyChatCount(date time.Time) int {
	day := dayKey(date)
	count := 0
	for _, chat := range h.chats {
		if dayKey(chat.CreatedAt) == day {
			count++
		}
	}
	return count
}

// CountChatsSince number of chats created at or after since
func (h *ChatHistory) CountChatsSince(since time.Time) int {
	count := 0
	for _, chat := range h.chats {
		if !chat.CreatedAt.Before(since) {
			count++
		}
	}
	return count
}

// IncrementQuestionCount adds one answered question; unknown ids are ignored
func (h *ChatHistory) IncrementQuestionCount(ctx context.Context, id string) error {
	chat, ok := h.chats[id]
	if !ok {
		return nil
	}
	chat.QuestionCount++
	return h.Save(ctx)
}

// AppendExchange records one question/answer pair and counts it as one question.
// The first exchange also names the chat.
func (h *ChatHistory) AppendExchange(ctx context.Context, id string, question, answer entity.Message) error {
	chat, ok := h.chats[id]
	if !ok {
		return nil
	}
	chat.Messages = append(chat.Messages, question, answer)
	chat.QuestionCount++
	if len(chat.Messages) == 2 {
		chat.Title = GenerateTitle(chat.Messages)
	}
	return h.Save(ctx)
}

// RetitleFromMessages renames the chat after its first message; unknown ids are ignored
func (h *ChatHistory) RetitleFromMessages(ctx context.Context, id string) error {
	chat, ok := h.chats[id]
	if !ok {
		return nil
	}
	chat.Title = GenerateTitle(chat.Messages)
	return h.Save(ctx)
}

// ClearChats removes every chat
func (h *ChatHistory) ClearChats(ctx context.Context) error {
	h.chats = make(map[string]*entity.Chat)
	return h.Save(ctx)
}

func cloneChat(chat *entity.Chat) entity.Chat {
	c := *chat
	c.Messages = make([]entity.Message, len(chat.Messages))
	for i, msg := range chat.Messages {
		msg.RelatedTo = append([]int64(nil), msg.RelatedTo...)
		c.Messages[i] = msg
	}
	return c
}
