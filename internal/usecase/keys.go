package usecase

import "time"

// Clock returns the current time
type Clock func() time.Time

// Persisted state keys
const (
	keyIsAuthenticated = "isAuthenticated"
	keyCurrentUser     = "currentUser"
	keyUsers           = "users"
	keyTheme           = "theme"
	keySessionActive   = "sessionActive"
	keyLastChatDate    = "lastChatDate"
	keyDailyChatCount  = "dailyChatCount"
	keyCooldownStart   = "cooldownStart"
	keyQuotaResetAt    = "quotaResetAt"
)

// untilNextDay lifetime of the quota counters written at t: they live until
// the next local midnight, whatever the length of the day.
func untilNextDay(t time.Time) time.Duration {
	return nextDayStart(t.Local()).Sub(t)
}

// nextDayStart midnight after t in t's location
func nextDayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

func chatHistoryKey(username string) string {
	return "chatHistory_" + username
}

// dayKey local calendar day of t
func dayKey(t time.Time) string {
	return t.Local().Format("2006-01-02")
}
