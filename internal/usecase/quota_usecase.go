package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/yourusername/nextai-chat/internal/domain/entity"
	"github.com/yourusername/nextai-chat/internal/domain/repository"
)

// QuotaConfig usage limits
type QuotaConfig struct {
	MaxChatsPerDay      int
	MaxQuestionsPerChat int
	CooldownPeriod      time.Duration
}

// DefaultQuotaConfig 5 chats a day, 5 questions a chat, one hour cooldown
func DefaultQuotaConfig() QuotaConfig {
	return QuotaConfig{
		MaxChatsPerDay:      5,
		MaxQuestionsPerChat: 5,
		CooldownPeriod:      time.Hour,
	}
}

// ChatCounter counts chats actually stored for the user
type ChatCounter interface {
	GetDailyChatCount(date time.Time) int
	CountChatsSince(since time.Time) int
}

// QuotaUseCase gates chat creation and questions
type QuotaUseCase interface {
	// CanStartNewChat decides whether a new chat may be created now.
	// A refusal for the daily limit arms the cooldown.
	CanStartNewChat(ctx context.Context, counter ChatCounter) (entity.ChatDecision, error)

	// RecordChatStarted counts a created chat
	RecordChatStarted(ctx context.Context) error

	// CanAskQuestion decides whether chat accepts another question
	CanAskQuestion(chat entity.Chat) entity.QuestionDecision

	// State current counters after day rollover
	State(ctx context.Context) (entity.QuotaState, error)

	// Config configured limits
	Config() QuotaConfig
}

type quotaUseCase struct {
	store  repository.StateStore
	cfg    QuotaConfig
	now    Clock
	logger *slog.Logger
}

// NewQuotaUseCase creates the quota controller over the day-scoped store
func NewQuotaUseCase(store repository.StateStore, cfg QuotaConfig, now Clock, logger *slog.Logger) QuotaUseCase {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &quotaUseCase{store: store, cfg: cfg, now: now, logger: logger}
}

// Config configured limits
func (u *quotaUseCase) Config() QuotaConfig {
	return u.cfg
}

// State current counters after day rollover
func (u *quotaUseCase) State(ctx context.Context) (entity.QuotaState, error) {
	return u.load(ctx, u.now())
}

// load reads the counters, resetting them when the stored day is not today
func (u *quotaUseCase) load(ctx context.Context, now time.Time) (entity.QuotaState, error) {
	today := dayKey(now)

	lastDate, _, err := u.store.Get(ctx, keyLastChatDate)
	if err != nil {
		return entity.QuotaState{}, fmt.Errorf("failed to read quota date: %w", err)
	}
	if lastDate != today {
		if err := u.resetDay(ctx, now); err != nil {
			return entity.QuotaState{}, err
		}
		u.logger.Debug("quota day rolled over", "previous", lastDate, "today", today)
		return entity.QuotaState{LastChatDate: today}, nil
	}

	state := entity.QuotaState{LastChatDate: today}

	rawCount, _, err := u.store.Get(ctx, keyDailyChatCount)
	if err != nil {
		return state, fmt.Errorf("failed to read chat count: %w", err)
	}
	if n, err := strconv.Atoi(rawCount); err == nil && n > 0 {
		state.DailyChatCount = n
	}

	if state.CooldownStart, err = u.readInstant(ctx, keyCooldownStart); err != nil {
		return state, err
	}
	if state.ResetAt, err = u.readInstant(ctx, keyQuotaResetAt); err != nil {
		return state, err
	}

	return state, nil
}

func (u *quotaUseCase) resetDay(ctx context.Context, now time.Time) error {
	ttl := untilNextDay(now)
	if err := u.store.Set(ctx, keyLastChatDate, dayKey(now), ttl); err != nil {
		return fmt.Errorf("failed to reset quota day: %w", err)
	}
	if err := u.store.Set(ctx, keyDailyChatCount, "0", ttl); err != nil {
		return fmt.Errorf("failed to reset chat count: %w", err)
	}
	if err := u.store.Delete(ctx, keyCooldownStart); err != nil {
		return fmt.Errorf("failed to clear cooldown: %w", err)
	}
	if err := u.store.Delete(ctx, keyQuotaResetAt); err != nil {
		return fmt.Errorf("failed to clear quota reset: %w", err)
	}
	return nil
}

func (u *quotaUseCase) readInstant(ctx context.Context, key string) (*time.Time, error) {
	raw, ok, err := u.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		u.logger.Warn("ignoring malformed quota instant", "key", key, "value", raw)
		return nil, nil
	}
	t := time.UnixMilli(ms)
	return &t, nil
}

func (u *quotaUseCase) writeInstant(ctx context.Context, key string, t time.Time) error {
	if err := u.store.Set(ctx, key, strconv.FormatInt(t.UnixMilli(), 10), untilNextDay(t)); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// CanStartNewChat decides whether a new chat may be created now
func (u *quotaUseCase) CanStartNewChat(ctx context.Context, counter ChatCounter) (entity.ChatDecision, error) {
	now := u.now()
	state, err := u.load(ctx, now)
	if err != nil {
		return entity.ChatDecision{}, err
	}

	if state.CooldownStart != nil {
		elapsed := now.Sub(*state.CooldownStart)
		if elapsed < u.cfg.CooldownPeriod {
			return entity.ChatDecision{
				Reason:    entity.ReasonCooldown,
				Remaining: u.cfg.CooldownPeriod - elapsed,
			}, nil
		}

		// cooldown served: the allowance starts over from now
		if err := u.finishCooldown(ctx, now); err != nil {
			return entity.ChatDecision{}, err
		}
		state.CooldownStart = nil
		state.DailyChatCount = 0
		state.ResetAt = &now
	}

	stored := counter.GetDailyChatCount(now)
	if state.ResetAt != nil {
		stored = counter.CountChatsSince(*state.ResetAt)
	}

	if state.DailyChatCount >= u.cfg.MaxChatsPerDay || stored >= u.cfg.MaxChatsPerDay {
		if err := u.writeInstant(ctx, keyCooldownStart, now); err != nil {
			return entity.ChatDecision{}, err
		}
		u.logger.Info("daily chat limit reached, cooldown armed",
			"counter", state.DailyChatCount, "stored", stored, "limit", u.cfg.MaxChatsPerDay)
		return entity.ChatDecision{
			Reason:    entity.ReasonDailyLimit,
			Remaining: u.cfg.CooldownPeriod,
		}, nil
	}

	return entity.ChatDecision{Allowed: true}, nil
}

func (u *quotaUseCase) finishCooldown(ctx context.Context, now time.Time) error {
	if err := u.store.Delete(ctx, keyCooldownStart); err != nil {
		return fmt.Errorf("failed to clear cooldown: %w", err)
	}
	if err := u.store.Set(ctx, keyDailyChatCount, "0", untilNextDay(now)); err != nil {
		return fmt.Errorf("failed to reset chat count: %w", err)
	}
	return u.writeInstant(ctx, keyQuotaResetAt, now)
}

// RecordChatStarted counts a created chat
func (u *quotaUseCase) RecordChatStarted(ctx context.Context) error {
	now := u.now()
	state, err := u.load(ctx, now)
	if err != nil {
		return err
	}
	count := strconv.Itoa(state.DailyChatCount + 1)
	if err := u.store.Set(ctx, keyDailyChatCount, count, untilNextDay(now)); err != nil {
		return fmt.Errorf("failed to write chat count: %w", err)
	}
	return nil
}

// CanAskQuestion decides whether chat accepts another question
func (u *quotaUseCase) CanAskQuestion(chat entity.Chat) entity.QuestionDecision {
	remaining := u.cfg.MaxQuestionsPerChat - chat.QuestionCount
	if remaining <= 0 {
		return entity.QuestionDecision{}
	}
	return entity.QuestionDecision{
		Allowed:      true,
		LastQuestion: remaining == 1,
		Remaining:    remaining,
	}
}
