package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/yourusername/nextai-chat/internal/domain/entity"
	"github.com/yourusername/nextai-chat/internal/usecase"
)

// Telegram rejects longer messages
const maxMessageRunes = 4096

// maxListedChats keeps the chat keyboard under Telegram's button limit
const maxListedChats = 30

const (
	callbackNew    = "new"
	callbackLoad   = "load"
	callbackRename = "rename"
	callbackDelete = "delete"
)

const loginPrompt = "🔐 Please log in first: /login <username> <password>"

const busyMessage = "⏳ Still answering your previous question, please wait."

const noChatMessage = "No chat is open. Start one with /new or pick one from /chats."

const welcomeMessage = `Hello! 👋

I'm NextAI, your rainforest guide. Ask me anything about jungles,
the Amazon and the life inside them.

Log in with /login <username> <password> to start chatting.`

const helpMessage = `🤖 Commands:

/start - resume your session
/login <username> <password> - log in
/logout - log out and clear your chats
/new - start a new chat
/chats - list your chats
/load <id> - open a chat
/rename <id> <title> - rename a chat
/delete <id> - delete a chat
/context - show the conversation context
/theme [light|dark] - show or set the theme
/help - this message

Each chat takes a limited number of questions and only a few chats
can be started per day.`

// parseLoginArgs splits "<user> <password>"; the password may contain spaces
func parseLoginArgs(args string) (username, password string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return "", ""
	}
	username = fields[0]
	password = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(args), username))
	return username, password
}

// parseRenameArgs splits "<id> <title>"
func parseRenameArgs(args string) (id, title string) {
	args = strings.TrimSpace(args)
	id, title, _ = strings.Cut(args, " ")
	return id, strings.TrimSpace(title)
}

// parseCallbackData splits "action:id"
func parseCallbackData(data string) (action, id string) {
	action, id, _ = strings.Cut(data, ":")
	return action, id
}

func callbackData(action, id string) string {
	return action + ":" + id
}

// renderNotices one Telegram message per notice
func renderNotices(reply usecase.Reply) []string {
	texts := make([]string, 0, len(reply.Notices))
	for _, n := range reply.Notices {
		switch n.Type {
		case entity.MessageTypeSystem:
			texts = append(texts, "ℹ️ "+n.Text)
		case entity.MessageTypeUser:
			texts = append(texts, "🧑 "+n.Text)
		default:
			texts = append(texts, n.Text)
		}
	}
	return texts
}

// formatChatList chat list with the open chat marked
func formatChatList(chats []entity.Chat, current string, maxQuestions int) string {
	var sb strings.Builder
	sb.WriteString("🗂 Your chats:\n\n")

	for i, chat := range chats {
		if i == maxListedChats {
			sb.WriteString(fmt.Sprintf("…and %d more\n", len(chats)-maxListedChats))
			break
		}
		marker := "•"
		if chat.ID == current {
			marker = "▶️"
		}
		sb.WriteString(fmt.Sprintf("%s %s (%d/%d questions)\n   %s · %s\n",
			marker,
			truncateString(chat.Title, 60),
			chat.QuestionCount,
			maxQuestions,
			chat.CreatedAt.Local().Format("02 Jan 15:04"),
			chat.ID,
		))
	}
	return sb.String()
}

// buildChatButtons open/rename/delete buttons per chat
func buildChatButtons(chats []entity.Chat) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, chat := range chats {
		if i == maxListedChats {
			break
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(truncateString(chat.Title, 32), callbackData(callbackLoad, chat.ID)),
			tgbotapi.NewInlineKeyboardButtonData("✏️", callbackData(callbackRename, chat.ID)),
			tgbotapi.NewInlineKeyboardButtonData("🗑", callbackData(callbackDelete, chat.ID)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// formatContext message count, topic flag and related message links
func formatContext(snapshot entity.ContextSnapshot) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🧭 Context: %d messages\n", len(snapshot.Messages)))

	topic := "no"
	if snapshot.TopicRelated {
		topic = "yes"
	}
	sb.WriteString(fmt.Sprintf("🌿 Rainforest topic: %s\n", topic))

	if len(snapshot.Connections) == 0 {
		return sb.String()
	}

	sb.WriteString("\nConnections:\n")
	for _, conn := range snapshot.Connections {
		sb.WriteString("• " + conn.Current + "\n")
		for _, related := range conn.Related {
			sb.WriteString("   ↳ " + related + "\n")
		}
	}
	return sb.String()
}

// truncateString cuts s to max runes, marking the cut with "..."
func truncateString(s string, max int) string {
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
