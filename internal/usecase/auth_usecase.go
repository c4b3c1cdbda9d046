package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yourusername/nextai-chat/internal/domain/entity"
	"github.com/yourusername/nextai-chat/internal/domain/repository"
	"golang.org/x/crypto/bcrypt"
)

// passwordCost bcrypt cost for stored passwords
var passwordCost = bcrypt.DefaultCost

// UserDirectory registered user table stored under the "users" key
type UserDirectory struct {
	store repository.StateStore
	now   Clock
}

// NewUserDirectory creates a user directory over store
func NewUserDirectory(store repository.StateStore, now Clock) *UserDirectory {
	if now == nil {
		now = time.Now
	}
	return &UserDirectory{store: store, now: now}
}

func (d *UserDirectory) load(ctx context.Context) (map[string]entity.User, bool, error) {
	raw, ok, err := d.store.Get(ctx, keyUsers)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load users: %w", err)
	}
	users := make(map[string]entity.User)
	if !ok {
		return users, false, nil
	}
	if err := json.Unmarshal([]byte(raw), &users); err != nil {
		return nil, false, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, true, nil
}

func (d *UserDirectory) save(ctx context.Context, users map[string]entity.User) error {
	data, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("failed to encode users: %w", err)
	}
	return d.store.Set(ctx, keyUsers, string(data), 0)
}

// EnsureDefaultUser seeds the table with one user when no table exists yet
func (d *UserDirectory) EnsureDefaultUser(ctx context.Context, username, password string) (bool, error) {
	users, exists, err := d.load(ctx)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return false, fmt.Errorf("failed to hash password: %w", err)
	}
	users[username] = entity.User{Password: string(hash), CreatedAt: d.now()}
	if err := d.save(ctx, users); err != nil {
		return false, err
	}
	return true, nil
}

// ImportUsers adds users that are not registered yet and returns how many were added
func (d *UserDirectory) ImportUsers(ctx context.Context, records []entity.UserRecord) (int, error) {
	users, _, err := d.load(ctx)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, rec := range records {
		if rec.Username == "" || rec.Password == "" {
			continue
		}
		if _, exists := users[rec.Username]; exists {
			continue
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(rec.Password), passwordCost)
		if err != nil {
			return added, fmt.Errorf("failed to hash password for %s: %w", rec.Username, err)
		}
		users[rec.Username] = entity.User{Password: string(hash), CreatedAt: d.now()}
		added++
	}

	if added == 0 {
		return 0, nil
	}
	if err := d.save(ctx, users); err != nil {
		return 0, err
	}
	return added, nil
}

// Verify reports whether the username exists with that password
func (d *UserDirectory) Verify(ctx context.Context, username, password string) (bool, error) {
	users, _, err := d.load(ctx)
	if err != nil {
		return false, err
	}
	user, exists := users[username]
	if !exists {
		return false, nil
	}
	err = bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check password for %s: %w", username, err)
	}
	return true, nil
}

// AuthUseCase login state of one client
type AuthUseCase interface {
	// Login checks credentials and opens a session
	Login(ctx context.Context, username, password string) (bool, error)

	// Logout clears every session flag
	Logout(ctx context.Context) error

	// CheckAuth reports whether both session flags are set
	CheckAuth(ctx context.Context) (bool, error)

	// Status returns the two-flag session status
	Status(ctx context.Context) (entity.SessionStatus, error)

	// GetUser returns the logged in username
	GetUser(ctx context.Context) (string, bool, error)
}

type authUseCase struct {
	users     *UserDirectory
	durable   repository.StateStore
	transient repository.StateStore
	logger    *slog.Logger
}

// NewAuthUseCase creates the credential store. durable survives restarts;
// transient lives as long as the client session.
func NewAuthUseCase(users *UserDirectory, durable, transient repository.StateStore, logger *slog.Logger) AuthUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &authUseCase{
		users:     users,
		durable:   durable,
		transient: transient,
		logger:    logger,
	}
}

// Login checks credentials and opens a session
func (u *authUseCase) Login(ctx context.Context, username, password string) (bool, error) {
	ok, err := u.users.Verify(ctx, username, password)
	if err != nil {
		return false, err
	}
	if !ok {
		u.logger.Info("login rejected", "username", username)
		return false, nil
	}

	if err := u.durable.Set(ctx, keyIsAuthenticated, "true", 0); err != nil {
		return false, fmt.Errorf("failed to store session: %w", err)
	}
	if err := u.durable.Set(ctx, keyCurrentUser, username, 0); err != nil {
		return false, fmt.Errorf("failed to store session: %w", err)
	}
	if err := u.transient.Set(ctx, keySessionActive, "true", 0); err != nil {
		return false, fmt.Errorf("failed to store session: %w", err)
	}

	u.logger.Info("login succeeded", "username", username)
	return true, nil
}

// Logout clears every session flag
func (u *authUseCase) Logout(ctx context.Context) error {
	var errs []error
	errs = append(errs, u.durable.Delete(ctx, keyIsAuthenticated))
	errs = append(errs, u.durable.Delete(ctx, keyCurrentUser))
	errs = append(errs, u.transient.Delete(ctx, keySessionActive))
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// CheckAuth reports whether both session flags are set
func (u *authUseCase) CheckAuth(ctx context.Context) (bool, error) {
	status, err := u.Status(ctx)
	if err != nil {
		return false, err
	}
	return status.Active(), nil
}

// Status returns the two-flag session status
func (u *authUseCase) Status(ctx context.Context) (entity.SessionStatus, error) {
	var status entity.SessionStatus

	authVal, _, err := u.durable.Get(ctx, keyIsAuthenticated)
	if err != nil {
		return status, err
	}
	user, _, err := u.durable.Get(ctx, keyCurrentUser)
	if err != nil {
		return status, err
	}
	activeVal, _, err := u.transient.Get(ctx, keySessionActive)
	if err != nil {
		return status, err
	}

	status.Authenticated = authVal == "true"
	status.SessionActive = activeVal == "true"
	status.CurrentUser = user
	return status, nil
}

// GetUser returns the logged in username
func (u *authUseCase) GetUser(ctx context.Context) (string, bool, error) {
	user, ok, err := u.durable.Get(ctx, keyCurrentUser)
	if err != nil {
		return "", false, err
	}
	return user, ok && user != "", nil
}
