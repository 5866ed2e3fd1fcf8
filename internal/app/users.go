package app

import (
	"fmt"
	"strings"
	"time"

	"snaptale/internal/usertoken"
	"snaptale/internal/util"
	"snaptale/pkg/auth"
	"snaptale/pkg/domain"
)

// Signup registers a local account. The first account becomes admin.
func (a *App) Signup(email, password, displayName string) (domain.User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, fmt.Errorf("%w: valid email required", ErrValidation)
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	taken, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, fmt.Errorf("check email: %w", err)
	}
	if taken {
		return domain.User{}, ErrEmailTaken
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	role := domain.RoleUser
	if count, err := a.store.UserCount(); err == nil && count == 0 {
		role = domain.RoleAdmin
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// Login checks local-account credentials.
func (a *App) Login(email, password string) (domain.User, error) {
	user, ok, err := a.store.GetUserByEmail(normalizeEmail(email))
	if err != nil {
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !ok || user.PasswordHash == "" || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, ErrBadCredentials
	}
	return user, nil
}

// EnsureExternalUser resolves a verified external identity to an internal
// user, creating the record on first sign-in.
func (a *App) EnsureExternalUser(identity usertoken.Identity) (domain.User, error) {
	if identity.Subject == "" {
		return domain.User{}, fmt.Errorf("%w: identity subject required", ErrValidation)
	}
	user, ok, err := a.store.GetUserByExternalID(identity.Subject)
	if err != nil {
		return domain.User{}, fmt.Errorf("lookup external user: %w", err)
	}
	if ok {
		return user, nil
	}

	// Link by email when the same person already has a local account.
	if email := normalizeEmail(identity.Email); email != "" {
		existing, found, err := a.store.GetUserByEmail(email)
		if err != nil {
			return domain.User{}, fmt.Errorf("lookup user by email: %w", err)
		}
		if found {
			existing.ExternalID = identity.Subject
			existing.UpdatedAt = time.Now().UTC()
			if err := a.store.SaveUser(existing); err != nil {
				return domain.User{}, fmt.Errorf("link external identity: %w", err)
			}
			return existing, nil
		}
	}

	now := time.Now().UTC()
	user = domain.User{
		ID:          util.NewID(),
		ExternalID:  identity.Subject,
		Email:       normalizeEmail(identity.Email),
		DisplayName: strings.TrimSpace(identity.Name),
		Role:        domain.RoleUser,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("create external user: %w", err)
	}
	return user, nil
}

// GetUser fetches a user by internal ID.
func (a *App) GetUser(id string) (domain.User, bool, error) {
	return a.store.GetUserByID(id)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
