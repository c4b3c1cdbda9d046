package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yourusername/nextai-chat/internal/domain/entity"
	"github.com/yourusername/nextai-chat/internal/domain/repository"
)

var (
	// ErrNotAuthenticated the action needs an active session
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrBusy a reply is still being generated
	ErrBusy = errors.New("a reply is already being generated")
	// ErrNoChat no chat is open to receive the question
	ErrNoChat = errors.New("no chat is open")
	// ErrInvalidTheme unknown theme name
	ErrInvalidTheme = errors.New("theme must be light or dark")
)

// Themes
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// DefaultTopicFocus instruction appended to prompts of topic related chats
const DefaultTopicFocus = "Focus on rainforest-related information."

const (
	apologyText     = "Oops! Something went wrong. Try again?"
	newChatText     = "New chat started. Ask me anything!"
	lastQuestionMsg = "Warning: This is your last question for this chat session. Only 1 question left!"
	oneLeftMsg      = "Warning: Only 1 question left in this chat session!"
)

// Notice message to show to the user
type Notice struct {
	Type entity.MessageType
	Text string
}

// Reply outcome of a user action
type Reply struct {
	Notices       []Notice
	ChatID        string
	TopicRelated  bool
	PromptNewChat bool
}

func (r *Reply) add(t entity.MessageType, text string) {
	r.Notices = append(r.Notices, Notice{Type: t, Text: text})
}

// ChatAppConfig optional behaviour of ChatApp
type ChatAppConfig struct {
	// TopicFocus line appended to the prompt once the topic flag is set
	TopicFocus string
}

// ChatApp per-client application context: session, chats, context and quota.
// Methods are safe for concurrent use; at most one reply is generated at a time.
type ChatApp struct {
	mu      sync.Mutex
	busy    atomic.Bool
	auth    AuthUseCase
	quota   QuotaUseCase
	ai      repository.AIRepository
	durable repository.StateStore
	tracker *ContextTracker
	history *ChatHistory
	current atomic.Value // string, readable without mu
	focus   string
	now     Clock
	logger  *slog.Logger
}

// NewChatApp wires the components. durable holds chat histories and the theme.
func NewChatApp(
	auth AuthUseCase,
	tracker *ContextTracker,
	quota QuotaUseCase,
	ai repository.AIRepository,
	durable repository.StateStore,
	cfg ChatAppConfig,
	now Clock,
	logger *slog.Logger,
) *ChatApp {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TopicFocus == "" {
		cfg.TopicFocus = DefaultTopicFocus
	}
	return &ChatApp{
		auth:    auth,
		quota:   quota,
		ai:      ai,
		durable: durable,
		tracker: tracker,
		focus:   cfg.TopicFocus,
		now:     now,
		logger:  logger,
	}
}

// requireAuth checks the session and makes sure the user's chats are loaded.
// Callers hold a.mu.
func (a *ChatApp) requireAuth(ctx context.Context) error {
	status, err := a.auth.Status(ctx)
	if err != nil {
		return err
	}
	if !status.Active() {
		return ErrNotAuthenticated
	}
	if a.history == nil || a.history.User() != status.CurrentUser {
		return a.openHistory(ctx, status.CurrentUser)
	}
	return nil
}

func (a *ChatApp) openHistory(ctx context.Context, user string) error {
	history, err := NewChatHistory(ctx, a.durable, user, a.now)
	if err != nil {
		return err
	}
	a.history = history
	a.setCurrent("")
	a.tracker.Reset()
	return nil
}

// Resume restores an authenticated session and opens a chat when none is open
func (a *ChatApp) Resume(ctx context.Context) (Reply, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireAuth(ctx); err != nil {
		return Reply{}, err
	}
	if a.currentID() != "" {
		return Reply{ChatID: a.currentID()}, nil
	}
	return a.startNewChat(ctx)
}

// Login opens a session. Logging in as another user drops the previous user's chats.
func (a *ChatApp) Login(ctx context.Context, username, password string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	previous, hadPrevious, err := a.auth.GetUser(ctx)
	if err != nil {
		return false, err
	}

	ok, err := a.auth.Login(ctx, username, password)
	if err != nil || !ok {
		return false, err
	}

	if hadPrevious && previous != username {
		if err := a.durable.Delete(ctx, chatHistoryKey(previous)); err != nil {
			return true, fmt.Errorf("failed to drop chats of %s: %w", previous, err)
		}
	}

	if err := a.openHistory(ctx, username); err != nil {
		return true, err
	}
	return true, nil
}

// Logout ends the session and clears the user's chats
func (a *ChatApp) Logout(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.history == nil {
		if user, ok, err := a.auth.GetUser(ctx); err == nil && ok {
			if history, err := NewChatHistory(ctx, a.durable, user, a.now); err == nil {
				a.history = history
			}
		}
	}
	if a.history != nil {
		if err := a.history.ClearChats(ctx); err != nil {
			return err
		}
	}
	a.history = nil
	a.setCurrent("")
	a.tracker.Reset()
	return a.auth.Logout(ctx)
}

// StartNewChat opens a new chat if the quota allows it
func (a *ChatApp) StartNewChat(ctx context.Context) (Reply, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireAuth(ctx); err != nil {
		return Reply{}, err
	}
	return a.startNewChat(ctx)
}

func (a *ChatApp) startNewChat(ctx context.Context) (Reply, error) {
	var reply Reply

	decision, err := a.quota.CanStartNewChat(ctx, a.history)
	if err != nil {
		return reply, err
	}
	if !decision.Allowed {
		reply.ChatID = a.currentID()
		reply.add(entity.MessageTypeSystem, a.denialText(decision))
		return reply, nil
	}

	if a.currentID() != "" && a.tracker.Len() > 0 {
		if err := a.history.RetitleFromMessages(ctx, a.currentID()); err != nil {
			return reply, err
		}
	}

	id, err := a.history.AddChat(ctx, DefaultChatTitle)
	if err != nil {
		return reply, err
	}
	a.setCurrent(id)
	a.tracker.Reset()

	if err := a.quota.RecordChatStarted(ctx); err != nil {
		return reply, err
	}

	a.logger.Info("chat started", "user", a.history.User(), "chat_id", id)
	reply.ChatID = id
	reply.add(entity.MessageTypeSystem, newChatText)
	return reply, nil
}

func (a *ChatApp) denialText(decision entity.ChatDecision) string {
	cfg := a.quota.Config()
	if decision.Reason == entity.ReasonCooldown {
		return fmt.Sprintf("You've used all %d chat sessions. Please wait %d minutes before starting a new chat.",
			cfg.MaxChatsPerDay, ceilMinutes(decision.Remaining))
	}
	return fmt.Sprintf("You've reached the daily limit of %d chat sessions. Please wait %s to start a new chat!",
		cfg.MaxChatsPerDay, formatWait(cfg.CooldownPeriod))
}

// SendMessage asks the current chat a question. It returns ErrBusy while
// another reply is pending and ErrNoChat when no chat is open.
func (a *ChatApp) SendMessage(ctx context.Context, text string) (Reply, error) {
	if !a.busy.CompareAndSwap(false, true) {
		return Reply{}, ErrBusy
	}
	defer a.busy.Store(false)

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireAuth(ctx); err != nil {
		return Reply{}, err
	}

	var reply Reply
	text = strings.TrimSpace(text)
	if text == "" {
		return reply, nil
	}
	if a.currentID() == "" {
		return reply, ErrNoChat
	}

	chat, ok := a.history.GetChat(a.currentID())
	if !ok {
		a.setCurrent("")
		a.tracker.Reset()
		return reply, ErrNoChat
	}
	reply.ChatID = chat.ID

	maxQuestions := a.quota.Config().MaxQuestionsPerChat
	decision := a.quota.CanAskQuestion(chat)
	if !decision.Allowed {
		reply.add(entity.MessageTypeAI, fmt.Sprintf(
			"You've reached the limit of %d questions for this chat. Start a new chat!", maxQuestions))
		reply.PromptNewChat = true
		return reply, nil
	}
	if decision.LastQuestion {
		reply.add(entity.MessageTypeSystem, lastQuestionMsg)
	}

	question := a.tracker.AddMessage(text, entity.MessageTypeUser)
	snapshot := a.tracker.GetContext()
	prompt := BuildPrompt(snapshot.Messages, text, snapshot.TopicRelated, a.focus)

	answerText, err := a.ai.GenerateContent(ctx, prompt)
	if err != nil {
		a.logger.Error("generate response failed", "chat_id", chat.ID, "error", err)
		reply.add(entity.MessageTypeAI, apologyText)
		return reply, nil
	}

	reply.TopicRelated = a.tracker.TopicRelated()
	answer := a.tracker.AddMessage(answerText, entity.MessageTypeAI)
	if err := a.history.AppendExchange(ctx, chat.ID, question, answer); err != nil {
		return reply, err
	}
	reply.add(entity.MessageTypeAI, answerText)

	if updated, ok := a.history.GetChat(chat.ID); ok && updated.QuestionCount >= maxQuestions {
		reply.PromptNewChat = true
	}
	return reply, nil
}

// BuildPrompt prompt from the tracked transcript and the current question
func BuildPrompt(messages []entity.Message, question string, topicRelated bool, focus string) string {
	prompt := question
	if len(messages) > 0 {
		lines := make([]string, 0, len(messages))
		for _, m := range messages {
			prefix := "A"
			if m.Type == entity.MessageTypeUser {
				prefix = "Q"
			}
			lines = append(lines, prefix+": "+m.Text)
		}
		prompt = "Previous conversation:\n" + strings.Join(lines, "\n") + "\nCurrent question: " + question
	}
	if topicRelated {
		prompt += "\n" + focus
	}
	return prompt
}

// LoadChat makes an existing chat current and replays it into the context
func (a *ChatApp) LoadChat(ctx context.Context, id string) (Reply, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireAuth(ctx); err != nil {
		return Reply{}, err
	}

	var reply Reply
	chat, ok := a.history.GetChat(id)
	if !ok {
		return reply, nil
	}

	a.setCurrent(id)
	a.tracker.Reset()
	for _, msg := range chat.Messages {
		a.tracker.AddMessage(msg.Text, msg.Type)
		reply.add(msg.Type, msg.Text)
	}
	reply.ChatID = id
	reply.TopicRelated = a.tracker.TopicRelated()

	maxQuestions := a.quota.Config().MaxQuestionsPerChat
	switch {
	case chat.QuestionCount >= maxQuestions:
		reply.PromptNewChat = true
	case chat.QuestionCount == maxQuestions-1:
		reply.add(entity.MessageTypeSystem, oneLeftMsg)
	}
	return reply, nil
}

// RenameChat renames a chat; blank titles are ignored
func (a *ChatApp) RenameChat(ctx context.Context, id, title string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireAuth(ctx); err != nil {
		return err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}
	return a.history.RenameChat(ctx, id, title)
}

// DeleteChat removes a chat and closes it if it was current
func (a *ChatApp) DeleteChat(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireAuth(ctx); err != nil {
		return err
	}
	if _, ok := a.history.GetChat(id); !ok {
		return nil
	}
	if err := a.history.DeleteChat(ctx, id); err != nil {
		return err
	}
	if a.currentID() == id {
		a.setCurrent("")
		a.tracker.Reset()
	}
	return nil
}

// Chats every chat of the user, newest first
func (a *ChatApp) Chats(ctx context.Context) ([]entity.Chat, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireAuth(ctx); err != nil {
		return nil, err
	}
	return a.history.Chats(), nil
}

// Context snapshot of the active conversation
func (a *ChatApp) Context(ctx context.Context) (entity.ContextSnapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireAuth(ctx); err != nil {
		return entity.ContextSnapshot{}, err
	}
	return a.tracker.GetContext(), nil
}

// CurrentUser user of the active session
func (a *ChatApp) CurrentUser(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireAuth(ctx); err != nil {
		return "", err
	}
	return a.history.User(), nil
}

// CurrentChatID id of the open chat, empty when none
func (a *ChatApp) CurrentChatID() string {
	return a.currentID()
}

func (a *ChatApp) currentID() string {
	id, _ := a.current.Load().(string)
	return id
}

func (a *ChatApp) setCurrent(id string) {
	a.current.Store(id)
}

// MaxQuestionsPerChat configured question limit
func (a *ChatApp) MaxQuestionsPerChat() int {
	return a.quota.Config().MaxQuestionsPerChat
}

// Theme stored theme preference, light by default
func (a *ChatApp) Theme(ctx context.Context) (string, error) {
	theme, ok, err := a.durable.Get(ctx, keyTheme)
	if err != nil {
		return "", err
	}
	if !ok || (theme != ThemeLight && theme != ThemeDark) {
		return ThemeLight, nil
	}
	return theme, nil
}

// SetTheme stores the theme preference
func (a *ChatApp) SetTheme(ctx context.Context, theme string) error {
	if theme != ThemeLight && theme != ThemeDark {
		return ErrInvalidTheme
	}
	return a.durable.Set(ctx, keyTheme, theme, 0)
}

func ceilMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}

func formatWait(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		if hours := int(d / time.Hour); hours > 1 {
			return fmt.Sprintf("%d hours", hours)
		}
		return "1 hour"
	}
	return fmt.Sprintf("%d minutes", ceilMinutes(d))
}
