package entity

import "time"

// QuotaState day-scoped chat creation counters
type QuotaState struct {
	LastChatDate   string
	DailyChatCount int
	CooldownStart  *time.Time
	// ResetAt when a served cooldown renewed the allowance, if it did today
	ResetAt *time.Time
}

// DenyReason why a new chat was refused
type DenyReason string

const (
	ReasonNone       DenyReason = ""
	ReasonCooldown   DenyReason = "cooldown active"
	ReasonDailyLimit DenyReason = "daily limit reached"
)

// ChatDecision outcome of a new chat attempt
type ChatDecision struct {
	Allowed   bool
	Reason    DenyReason
	Remaining time.Duration
}

// QuestionDecision outcome of a question attempt on a chat
type QuestionDecision struct {
	Allowed      bool
	LastQuestion bool
	Remaining    int
}
