// File: internal/auth/users.go
package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/graphedit/api/schemas"
	"github.com/xkilldash9x/graphedit/internal/apperr"
	"github.com/xkilldash9x/graphedit/internal/records"
)

// Users manages accounts and their roles.
type Users struct {
	store records.Store
	log   *zap.Logger
	now   func() time.Time
	newID func() string
}

func NewUsers(store records.Store, logger *zap.Logger) *Users {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Users{
		store: store,
		log:   logger.Named("users"),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Add creates an account. It is used by the CLI, which runs with the
// operator's authority, so no principal is checked.
func (u *Users) Add(ctx context.Context, email, name string, role schemas.Role) (*schemas.User, error) {
	const op = "users.add"
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return nil, apperr.Validation(op, "invalid email %q", email)
	}
	if !role.Valid() || role == schemas.RoleGuest {
		return nil, apperr.Validation(op, `role must be "user", "mod", or "admin"`)
	}
	user := &schemas.User{
		ID:        u.newID(),
		Email:     strings.ToLower(addr.Address),
		Name:      strings.TrimSpace(name),
		Role:      role,
		CreatedAt: u.now(),
	}
	if err := u.store.CreateUser(ctx, user); err != nil {
		return nil, records.Classify(op, err)
	}
	u.log.Info("User added", zap.String("user_id", user.ID), zap.String("role", string(role)))
	return user, nil
}

// Me returns the account behind actor. The API key principal has no
// stored account and is described synthetically.
func (u *Users) Me(ctx context.Context, actor schemas.Principal) (*schemas.User, error) {
	const op = "users.me"
	if err := actor.Require(op, schemas.RoleUser); err != nil {
		return nil, err
	}
	if actor.UserID == APIKeyPrincipal {
		return &schemas.User{ID: APIKeyPrincipal, Name: "API key", Role: actor.Role}, nil
	}
	user, err := u.store.GetUser(ctx, actor.UserID)
	if err != nil {
		return nil, records.Classify(op, err)
	}
	return user, nil
}

func (u *Users) List(ctx context.Context, actor schemas.Principal) ([]schemas.User, error) {
	if err := actor.Require("users.list", schemas.RoleAdmin); err != nil {
		return nil, err
	}
	return u.store.ListUsers(ctx)
}

// SetRole changes a user's role. Guests cannot be created this way.
func (u *Users) SetRole(ctx context.Context, actor schemas.Principal, id string, role schemas.Role) (*schemas.User, error) {
	const op = "users.role"
	if err := actor.Require(op, schemas.RoleAdmin); err != nil {
		return nil, err
	}
	if !role.Valid() || role == schemas.RoleGuest {
		return nil, apperr.Validation(op, `role must be "user", "mod", or "admin"`)
	}
	if err := u.store.SetUserRole(ctx, id, role); err != nil {
		return nil, records.Classify(op, err)
	}
	user, err := u.store.GetUser(ctx, id)
	if err != nil {
		return nil, records.Classify(op, err)
	}
	u.log.Info("User role changed",
		zap.String("user_id", id),
		zap.String("role", string(role)),
		zap.String("changed_by", actor.UserID))
	return user, nil
}
