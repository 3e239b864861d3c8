package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	mailer "soniclibrary/pkg/mail"

	"soniclibrary/pkg/auth"
	"soniclibrary/pkg/domain"
	"soniclibrary/pkg/storage"
	"soniclibrary/pkg/store"
)

const presignExpiry = time.Hour

// SignUp registers a new account. The account starts inactive; an activation
// email is queued for delivery.
func (a *App) SignUp(ctx context.Context, name, email, password string) (domain.User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" {
		return domain.User{}, Validation("name required")
	}
	if err := validateEmail(email); err != nil {
		return domain.User{}, err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, Validation(err.Error())
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, ErrEmailAlreadyExists
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := a.store.CreateUser(domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.User{}, ErrEmailAlreadyExists
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	a.sendActivation(ctx, user)
	audit("user.signup", user.ID, "email", user.Email)
	return user, nil
}

// sendActivation queues the activation email. Queue failures are logged, not
// surfaced: the account exists and activation can be re-sent on next login
// attempt.
func (a *App) sendActivation(ctx context.Context, user domain.User) {
	if a.mail == nil {
		return
	}
	token, err := a.tokens.NewActivationToken(user.Email)
	if err != nil {
		slog.Error("mint activation token", "user_id", user.ID, "error", err)
		return
	}
	msg := mailer.NewActivationMessage(user.Email, user.Name, token)
	if err := a.mail.PublishActivation(ctx, msg); err != nil {
		slog.Error("queue activation email", "user_id", user.ID, "error", err)
	}
}

// Activate confirms an emailed activation token. Activating an already active
// account is a no-op.
func (a *App) Activate(_ context.Context, token string) (domain.User, error) {
	email, err := a.tokens.ParseActivationToken(token)
	if err != nil {
		return domain.User{}, ErrInvalidActivation
	}
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrInvalidActivation
	}
	if !user.IsActive {
		user.IsActive = true
		if err := a.store.UpdateUser(user); err != nil {
			return domain.User{}, fmt.Errorf("activate user: %w", err)
		}
		audit("user.activate", user.ID)
	}
	return user, nil
}

// Authenticate validates credentials and issues an access token. A correct
// login against an inactive account re-queues the activation email.
func (a *App) Authenticate(ctx context.Context, email, password string) (domain.User, string, error) {
	email = normalizeEmail(email)
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if !user.IsActive {
		a.sendActivation(ctx, user)
		return domain.User{}, "", ErrAccountInactive
	}
	token, err := a.tokens.NewAccessToken(user.Email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("mint access token: %w", err)
	}
	audit("user.login", user.ID)
	return user, token, nil
}

// UserFromToken resolves the account behind an access token. Tokens revoked
// by logout are refused; a revoker outage is treated as not revoked so a
// Redis blip does not log everyone out.
func (a *App) UserFromToken(token string) (domain.User, bool) {
	email, err := a.tokens.ParseAccessToken(token)
	if err != nil {
		return domain.User{}, false
	}
	revoked, err := a.revoker.IsRevoked(token)
	if err != nil {
		slog.Warn("revocation check failed", "error", err)
	} else if revoked {
		return domain.User{}, false
	}
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil || !ok || !user.IsActive {
		return domain.User{}, false
	}
	return user, true
}

// Logout blocklists the session token until it would have expired. Invalid
// tokens are ignored: logout is idempotent.
func (a *App) Logout(token string) {
	if _, err := a.tokens.ParseAccessToken(token); err != nil {
		return
	}
	if err := a.revoker.Revoke(token, a.tokens.AccessTTL()); err != nil {
		slog.Warn("revoke session token", "error", err)
	}
}

// GetUser fetches a user's public profile.
func (a *App) GetUser(id int64) (domain.User, error) {
	user, ok, err := a.store.GetUserByID(id)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, NotFound("user not found")
	}
	return user, nil
}

// ListUsers returns all registered users.
func (a *App) ListUsers() ([]domain.User, error) {
	users, err := a.store.ListUsers()
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UpdateProfile changes the caller's name and, after validation, email.
// Changing email does not deactivate the account.
func (a *App) UpdateProfile(user domain.User, name, email string) (domain.User, error) {
	name = strings.TrimSpace(name)
	if name != "" {
		user.Name = name
	}
	if email != "" {
		email = normalizeEmail(email)
		if err := validateEmail(email); err != nil {
			return domain.User{}, err
		}
		if email != user.Email {
			exists, err := a.store.HasUserEmail(email)
			if err != nil {
				return domain.User{}, fmt.Errorf("check email: %w", err)
			}
			if exists {
				return domain.User{}, ErrEmailAlreadyExists
			}
			user.Email = email
		}
	}
	if err := a.store.UpdateUser(user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.User{}, ErrEmailAlreadyExists
		}
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}
	audit("user.update", user.ID)
	return user, nil
}

// UploadProfilePicture stores a new avatar and removes the previous one.
func (a *App) UploadProfilePicture(ctx context.Context, user domain.User, r io.Reader, size int64, contentType string) (domain.User, error) {
	if a.objects == nil {
		return domain.User{}, Validation("profile pictures are not enabled")
	}
	if size <= 0 || size > a.maxUploadBytes {
		return domain.User{}, Validation("image size out of range")
	}
	key, err := storage.AvatarKey(contentType)
	if err != nil {
		return domain.User{}, Validation(err.Error())
	}
	if err := a.objects.Put(ctx, key, r, size, contentType); err != nil {
		return domain.User{}, fmt.Errorf("store avatar: %w", err)
	}
	previous := user.ProfilePicture
	user.ProfilePicture = key
	if err := a.store.UpdateUser(user); err != nil {
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}
	if previous != "" {
		if err := a.objects.Delete(ctx, previous); err != nil {
			slog.Warn("delete previous avatar", "user_id", user.ID, "key", previous, "error", err)
		}
	}
	audit("user.avatar", user.ID, "key", key)
	return user, nil
}

// ProfilePictureURL resolves a short-lived download URL for a stored avatar.
func (a *App) ProfilePictureURL(ctx context.Context, user domain.User) (string, error) {
	if a.objects == nil || user.ProfilePicture == "" {
		return "", nil
	}
	url, err := a.objects.PresignGet(ctx, user.ProfilePicture, presignExpiry)
	if err != nil {
		return "", fmt.Errorf("presign avatar: %w", err)
	}
	return url, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func validateEmail(email string) error {
	if email == "" {
		return Validation("email required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return Validation("invalid email address")
	}
	return nil
}
