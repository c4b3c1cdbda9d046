package usecase

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yourusername/nextai-chat/internal/domain/entity"
)

// DefaultTopicKeywords mark a conversation as rainforest related
var DefaultTopicKeywords = []string{"rainforest", "jungle", "amazon"}

const (
	minKeywordRunes = 4
	previewRunes    = 30
)

// ContextTracker messages of the active chat and the links between them.
// Not safe for concurrent use.
type ContextTracker struct {
	messages     []entity.Message
	topicRelated bool
	keywords     []string
	now          Clock
	lastID       int64
}

// NewContextTracker creates a tracker. Nil keywords select DefaultTopicKeywords.
func NewContextTracker(now Clock, keywords []string) *ContextTracker {
	if now == nil {
		now = time.Now
	}
	if keywords == nil {
		keywords = DefaultTopicKeywords
	}
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			lowered = append(lowered, kw)
		}
	}
	return &ContextTracker{now: now, keywords: lowered}
}

// AddMessage tracks a message and links it to earlier ones sharing a keyword
func (t *ContextTracker) AddMessage(text string, msgType entity.MessageType) entity.Message {
	now := t.now()
	msg := entity.Message{
		ID:        t.nextID(now),
		Text:      text,
		Type:      msgType,
		Timestamp: now,
		RelatedTo: t.findRelated(text),
	}
	t.messages = append(t.messages, msg)

	lower := strings.ToLower(text)
	for _, kw := range t.keywords {
		if strings.Contains(lower, kw) {
			t.topicRelated = true
			break
		}
	}

	return msg
}

// nextID millisecond timestamp, bumped past the previous id when needed
func (t *ContextTracker) nextID(now time.Time) int64 {
	id := now.UnixMilli()
	if id <= t.lastID {
		id = t.lastID + 1
	}
	t.lastID = id
	return id
}

// findRelated matches keywords of earlier messages anywhere inside text, not
// only on word boundaries.
func (t *ContextTracker) findRelated(text string) []int64 {
	lower := strings.ToLower(text)
	related := []int64{}
	for _, prev := range t.messages {
		for _, word := range strings.Split(strings.ToLower(prev.Text), " ") {
			if utf8.RuneCountInString(word) >= minKeywordRunes && strings.Contains(lower, word) {
				related = append(related, prev.ID)
				break
			}
		}
	}
	return related
}

// GetContext snapshot of tracked messages, topic flag and connections
func (t *ContextTracker) GetContext() entity.ContextSnapshot {
	messages := make([]entity.Message, len(t.messages))
	copy(messages, t.messages)
	return entity.ContextSnapshot{
		Messages:     messages,
		TopicRelated: t.topicRelated,
		Connections:  t.connections(),
	}
}

func (t *ContextTracker) connections() []entity.Connection {
	byID := make(map[int64]string, len(t.messages))
	for _, m := range t.messages {
		byID[m.ID] = m.Text
	}

	var conns []entity.Connection
	for _, m := range t.messages {
		if len(m.RelatedTo) == 0 {
			continue
		}
		conn := entity.Connection{Current: preview(m.Text)}
		for _, id := range m.RelatedTo {
			if text, ok := byID[id]; ok {
				conn.Related = append(conn.Related, preview(text))
			}
		}
		conns = append(conns, conn)
	}
	return conns
}

// TopicRelated reports the sticky topic flag
func (t *ContextTracker) TopicRelated() bool {
	return t.topicRelated
}

// Len number of tracked messages
func (t *ContextTracker) Len() int {
	return len(t.messages)
}

// Reset forgets every message and clears the topic flag
func (t *ContextTracker) Reset() {
	t.messages = nil
	t.topicRelated = false
}

func preview(text string) string {
	if utf8.RuneCountInString(text) > previewRunes {
		text = string([]rune(text)[:previewRunes])
	}
	return text + "..."
}
