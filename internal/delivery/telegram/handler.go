package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/yourusername/nextai-chat/internal/domain/entity"
	"github.com/yourusername/nextai-chat/internal/domain/repository"
	"github.com/yourusername/nextai-chat/internal/usecase"
)

// maxUploadSize largest accepted user table
const maxUploadSize = 5 * 1024 * 1024

// AppFactory builds the application context of one Telegram chat
type AppFactory func(chatID int64) (*usecase.ChatApp, error)

// UserImporter registers users read from an uploaded table
type UserImporter interface {
	ImportUsers(ctx context.Context, records []entity.UserRecord) (int, error)
}

// BotHandler Telegram bot handler
type BotHandler struct {
	bot         *tgbotapi.BotAPI
	newApp      AppFactory
	importer    UserImporter
	parser      repository.UserParser
	importAdmin string
	logger      *slog.Logger

	appsMu sync.Mutex
	apps   map[int64]*usecase.ChatApp

	// chats waiting for the password of a /login <user>
	passwordMu       sync.RWMutex
	awaitingPassword map[int64]string

	// chats waiting for a new chat title
	renameMu      sync.RWMutex
	pendingRename map[int64]string
}

// NewBotHandler creates the bot handler. Uploaded user tables are accepted
// only from the session of importAdmin.
func NewBotHandler(
	token string,
	newApp AppFactory,
	importer UserImporter,
	parser repository.UserParser,
	importAdmin string,
	logger *slog.Logger,
) (*BotHandler, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return newBotHandler(bot, newApp, importer, parser, importAdmin, logger), nil
}

func newBotHandler(
	bot *tgbotapi.BotAPI,
	newApp AppFactory,
	importer UserImporter,
	parser repository.UserParser,
	importAdmin string,
	logger *slog.Logger,
) *BotHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &BotHandler{
		bot:              bot,
		newApp:           newApp,
		importer:         importer,
		parser:           parser,
		importAdmin:      importAdmin,
		logger:           logger,
		apps:             make(map[int64]*usecase.ChatApp),
		awaitingPassword: make(map[int64]string),
		pendingRename:    make(map[int64]string),
	}
}

// Start polls updates until ctx is cancelled
func (h *BotHandler) Start(ctx context.Context) error {
	h.logger.Info("bot started", "username", h.bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := h.bot.GetUpdatesChan(u)
	defer h.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("bot stopping")
			return ctx.Err()
		case update := <-updates:
			if update.CallbackQuery != nil {
				go h.handleCallback(ctx, update.CallbackQuery)
				continue
			}

			if update.Message == nil {
				continue
			}

			go h.handleMessage(ctx, update.Message)
		}
	}
}

// app returns the application context of chatID, creating it on first use
func (h *BotHandler) app(chatID int64) (*usecase.ChatApp, error) {
	h.appsMu.Lock()
	defer h.appsMu.Unlock()

	if app, ok := h.apps[chatID]; ok {
		return app, nil
	}
	app, err := h.newApp(chatID)
	if err != nil {
		return nil, err
	}
	h.apps[chatID] = app
	return app, nil
}

// handleMessage routes an incoming message
func (h *BotHandler) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	app, err := h.app(chatID)
	if err != nil {
		h.logger.Error("failed to create chat app", "chat_id", chatID, "error", err)
		h.sendMessage(chatID, "❌ Something went wrong. Try again later.")
		return
	}

	if message.Document != nil {
		h.handleDocumentMessage(ctx, app, message)
		return
	}

	if message.IsCommand() {
		h.clearPendingRename(chatID)
		h.handleCommand(ctx, app, message)
		return
	}

	if username, ok := h.popAwaitingPassword(chatID); ok {
		h.deleteMessage(chatID, message.MessageID)
		h.login(ctx, app, chatID, username, message.Text)
		return
	}

	if id, ok := h.popPendingRename(chatID); ok {
		h.renameChat(ctx, app, chatID, id, message.Text)
		return
	}

	if message.Text != "" {
		h.handleTextMessage(ctx, app, chatID, message.Text)
	}
}

// handleCommand maps commands to chat app operations
func (h *BotHandler) handleCommand(ctx context.Context, app *usecase.ChatApp, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	args := message.CommandArguments()

	switch message.Command() {
	case "start":
		h.handleStartCommand(ctx, app, chatID)
	case "help":
		h.sendMessage(chatID, helpMessage)
	case "login":
		h.handleLoginCommand(ctx, app, message)
	case "logout":
		h.handleLogoutCommand(ctx, app, chatID)
	case "new":
		reply, err := app.StartNewChat(ctx)
		h.sendReply(chatID, reply, err)
	case "chats":
		h.sendChatList(ctx, app, chatID)
	case "load":
		h.loadChat(ctx, app, chatID, strings.TrimSpace(args))
	case "rename":
		id, title := parseRenameArgs(args)
		if id == "" || title == "" {
			h.sendMessage(chatID, "Usage: /rename <chat id> <new title>")
			return
		}
		h.renameChat(ctx, app, chatID, id, title)
	case "delete":
		h.deleteChat(ctx, app, chatID, strings.TrimSpace(args))
	case "context":
		h.handleContextCommand(ctx, app, chatID)
	case "theme":
		h.handleThemeCommand(ctx, app, chatID, strings.TrimSpace(args))
	default:
		h.sendMessage(chatID, "Unknown command. See /help.")
	}
}

// handleStartCommand greets and resumes a stored session
func (h *BotHandler) handleStartCommand(ctx context.Context, app *usecase.ChatApp, chatID int64) {
	h.sendMessage(chatID, welcomeMessage)

	reply, err := app.Resume(ctx)
	if errors.Is(err, usecase.ErrNotAuthenticated) {
		h.sendMessage(chatID, loginPrompt)
		return
	}
	h.sendReply(chatID, reply, err)
}

// handleLoginCommand handles /login <user> <password> and /login <user>
func (h *BotHandler) handleLoginCommand(ctx context.Context, app *usecase.ChatApp, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	username, password := parseLoginArgs(message.CommandArguments())

	if username == "" {
		h.sendMessage(chatID, "Usage: /login <username> <password>")
		return
	}

	if password == "" {
		h.setAwaitingPassword(chatID, username)
		h.sendMessage(chatID, "🔐 Enter the password:")
		return
	}

	// the password is part of the command text
	h.deleteMessage(chatID, message.MessageID)
	h.login(ctx, app, chatID, username, password)
}

func (h *BotHandler) login(ctx context.Context, app *usecase.ChatApp, chatID int64, username, password string) {
	ok, err := app.Login(ctx, username, strings.TrimSpace(password))
	if err != nil {
		h.logger.Error("login failed", "chat_id", chatID, "error", err)
		h.sendMessage(chatID, "❌ Login failed. Try again later.")
		return
	}
	if !ok {
		h.sendMessage(chatID, "❌ Invalid username or password.")
		return
	}

	h.sendMessage(chatID, fmt.Sprintf("✅ Welcome, %s! Start a chat with /new or open one from /chats.", username))
}

// handleLogoutCommand ends the session and clears the user's chats
func (h *BotHandler) handleLogoutCommand(ctx context.Context, app *usecase.ChatApp, chatID int64) {
	if err := app.Logout(ctx); err != nil {
		h.logger.Error("logout failed", "chat_id", chatID, "error", err)
		h.sendMessage(chatID, "❌ Logout failed.")
		return
	}
	h.sendMessage(chatID, "👋 Logged out. Your chats were cleared.")
}

// handleTextMessage asks the current chat. Nothing may take the app lock
// before SendMessage, or a pending reply would queue this one instead of
// rejecting it as busy.
func (h *BotHandler) handleTextMessage(ctx context.Context, app *usecase.ChatApp, chatID int64, text string) {
	typingAction := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	if _, err := h.bot.Request(typingAction); err != nil {
		h.logger.Debug("typing action failed", "chat_id", chatID, "error", err)
	}

	reply, err := app.SendMessage(ctx, text)
	h.sendReply(chatID, reply, err)
}

// sendChatList lists the chats with open/rename/delete buttons
func (h *BotHandler) sendChatList(ctx context.Context, app *usecase.ChatApp, chatID int64) {
	chats, err := app.Chats(ctx)
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	if len(chats) == 0 {
		h.sendMessage(chatID, "You have no chats yet. Start one with /new.")
		return
	}

	msg := tgbotapi.NewMessage(chatID, formatChatList(chats, app.CurrentChatID(), app.MaxQuestionsPerChat()))
	msg.ReplyMarkup = buildChatButtons(chats)
	if _, err := h.bot.Send(msg); err != nil {
		h.logger.Error("failed to send chat list", "chat_id", chatID, "error", err)
	}
}

func (h *BotHandler) loadChat(ctx context.Context, app *usecase.ChatApp, chatID int64, id string) {
	if id == "" {
		h.sendMessage(chatID, "Usage: /load <chat id>")
		return
	}
	reply, err := app.LoadChat(ctx, id)
	if err == nil && reply.ChatID == "" {
		h.sendMessage(chatID, "Chat not found.")
		return
	}
	h.sendReply(chatID, reply, err)
}

func (h *BotHandler) renameChat(ctx context.Context, app *usecase.ChatApp, chatID int64, id, title string) {
	if err := app.RenameChat(ctx, id, title); err != nil {
		h.sendError(chatID, err)
		return
	}
	if strings.TrimSpace(title) == "" {
		h.sendMessage(chatID, "Title unchanged.")
		return
	}
	h.sendMessage(chatID, "✏️ Chat renamed.")
}

func (h *BotHandler) deleteChat(ctx context.Context, app *usecase.ChatApp, chatID int64, id string) {
	if id == "" {
		h.sendMessage(chatID, "Usage: /delete <chat id>")
		return
	}
	wasCurrent := app.CurrentChatID() == id
	if err := app.DeleteChat(ctx, id); err != nil {
		h.sendError(chatID, err)
		return
	}
	if wasCurrent {
		h.sendMessage(chatID, "🗑 Chat deleted. Start a new one with /new.")
		return
	}
	h.sendMessage(chatID, "🗑 Chat deleted.")
}

func (h *BotHandler) handleContextCommand(ctx context.Context, app *usecase.ChatApp, chatID int64) {
	snapshot, err := app.Context(ctx)
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	h.sendMessage(chatID, formatContext(snapshot))
}

func (h *BotHandler) handleThemeCommand(ctx context.Context, app *usecase.ChatApp, chatID int64, theme string) {
	if theme == "" {
		current, err := app.Theme(ctx)
		if err != nil {
			h.sendError(chatID, err)
			return
		}
		h.sendMessage(chatID, fmt.Sprintf("🎨 Theme: %s", current))
		return
	}

	if err := app.SetTheme(ctx, strings.ToLower(theme)); err != nil {
		if errors.Is(err, usecase.ErrInvalidTheme) {
			h.sendMessage(chatID, "Usage: /theme light|dark")
			return
		}
		h.sendError(chatID, err)
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("🎨 Theme set to %s.", strings.ToLower(theme)))
}

// handleCallback handles chat list buttons
func (h *BotHandler) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.Message == nil {
		return
	}
	chatID := cq.Message.Chat.ID

	callback := tgbotapi.NewCallback(cq.ID, "")
	if _, err := h.bot.Request(callback); err != nil {
		h.logger.Warn("callback answer failed", "error", err)
	}

	app, err := h.app(chatID)
	if err != nil {
		h.logger.Error("failed to create chat app", "chat_id", chatID, "error", err)
		return
	}

	action, id := parseCallbackData(cq.Data)
	switch action {
	case callbackNew:
		reply, err := app.StartNewChat(ctx)
		h.sendReply(chatID, reply, err)
	case callbackLoad:
		h.loadChat(ctx, app, chatID, id)
	case callbackRename:
		h.setPendingRename(chatID, id)
		h.sendMessage(chatID, "✏️ Send the new title:")
	case callbackDelete:
		h.deleteChat(ctx, app, chatID, id)
	default:
		h.logger.Warn("unknown callback", "data", cq.Data)
	}
}

// handleDocumentMessage imports users from an uploaded Excel table
func (h *BotHandler) handleDocumentMessage(ctx context.Context, app *usecase.ChatApp, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	user, err := app.CurrentUser(ctx)
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	if h.importAdmin == "" || user != h.importAdmin {
		h.sendMessage(chatID, "❌ Only the administrator can upload user tables.")
		return
	}

	doc := message.Document
	if doc.FileSize > maxUploadSize {
		h.sendMessage(chatID, "❌ The file must not exceed 5MB.")
		return
	}
	if !strings.HasSuffix(strings.ToLower(doc.FileName), ".xlsx") {
		h.sendMessage(chatID, "❌ Only Excel files (.xlsx) are accepted.")
		return
	}

	data, err := h.downloadFile(ctx, doc.FileID)
	if err != nil {
		h.logger.Error("file download failed", "chat_id", chatID, "error", err)
		h.sendMessage(chatID, "❌ Could not download the file.")
		return
	}

	records, err := h.parser.ParseUsersFromBytes(ctx, data)
	if err != nil {
		h.sendMessage(chatID, fmt.Sprintf("❌ Could not read users: %v", err))
		return
	}

	added, err := h.importer.ImportUsers(ctx, records)
	if err != nil {
		h.logger.Error("user import failed", "chat_id", chatID, "error", err)
		h.sendMessage(chatID, "❌ Could not save the users.")
		return
	}

	h.logger.Info("users imported", "file", doc.FileName, "rows", len(records), "added", added)
	h.sendMessage(chatID, fmt.Sprintf("✅ %d of %d users added from %s.", added, len(records), doc.FileName))
}

// downloadFile fetches an uploaded file from Telegram
func (h *BotHandler) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := h.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(h.bot.Token), nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxUploadSize+1))
}

// sendReply renders a chat app reply or its error
func (h *BotHandler) sendReply(chatID int64, reply usecase.Reply, err error) {
	if err != nil {
		h.sendError(chatID, err)
		return
	}

	for _, text := range renderNotices(reply) {
		h.sendMessage(chatID, text)
	}

	if reply.PromptNewChat {
		msg := tgbotapi.NewMessage(chatID, "This chat is complete.")
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("🌿 Start a new chat", callbackNew),
			),
		)
		if _, err := h.bot.Send(msg); err != nil {
			h.logger.Error("failed to send message", "chat_id", chatID, "error", err)
		}
	}
}

// sendError maps chat app errors to user facing text
func (h *BotHandler) sendError(chatID int64, err error) {
	switch {
	case errors.Is(err, usecase.ErrNotAuthenticated):
		h.sendMessage(chatID, loginPrompt)
	case errors.Is(err, usecase.ErrNoChat):
		h.sendMessage(chatID, noChatMessage)
	case errors.Is(err, usecase.ErrBusy):
		h.sendMessage(chatID, busyMessage)
	default:
		h.logger.Error("request failed", "chat_id", chatID, "error", err)
		h.sendMessage(chatID, "❌ Something went wrong. Try again?")
	}
}

// sendMessage plain text message
func (h *BotHandler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, truncateString(text, maxMessageRunes))
	if _, err := h.bot.Send(msg); err != nil {
		h.logger.Error("failed to send message", "chat_id", chatID, "error", err)
	}
}

func (h *BotHandler) deleteMessage(chatID int64, messageID int) {
	if _, err := h.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		h.logger.Warn("failed to delete credentials message", "chat_id", chatID, "error", err)
	}
}

func (h *BotHandler) setAwaitingPassword(chatID int64, username string) {
	h.passwordMu.Lock()
	defer h.passwordMu.Unlock()
	h.awaitingPassword[chatID] = username
}

func (h *BotHandler) popAwaitingPassword(chatID int64) (string, bool) {
	h.passwordMu.Lock()
	defer h.passwordMu.Unlock()
	username, ok := h.awaitingPassword[chatID]
	delete(h.awaitingPassword, chatID)
	return username, ok
}

func (h *BotHandler) setPendingRename(chatID int64, id string) {
	h.renameMu.Lock()
	defer h.renameMu.Unlock()
	h.pendingRename[chatID] = id
}

func (h *BotHandler) popPendingRename(chatID int64) (string, bool) {
	h.renameMu.Lock()
	defer h.renameMu.Unlock()
	id, ok := h.pendingRename[chatID]
	delete(h.pendingRename, chatID)
	return id, ok
}

func (h *BotHandler) clearPendingRename(chatID int64) {
	h.renameMu.Lock()
	defer h.renameMu.Unlock()
	delete(h.pendingRename, chatID)
}

// GetBotUsername bot username
func (h *BotHandler) GetBotUsername() string {
	return h.bot.Self.UserName
}
