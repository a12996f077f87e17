package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/store"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrAlreadyExists  = errors.New("user already exists")
	ErrInvalidAccount = errors.New("email, username and password are required")
)

// UserService covers the account operations run by operators: creating
// local accounts and forcing a user out of every session.
type UserService struct {
	store  store.Store
	hasher PasswordHasher
	logger *zap.SugaredLogger
}

func NewUserService(st store.Store, hasher PasswordHasher, logger *zap.SugaredLogger) *UserService {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	return &UserService{store: st, hasher: hasher, logger: logger}
}

// CreateLocalUser creates a password account. Local accounts never carry an sso source.
func (s *UserService) CreateLocalUser(ctx context.Context, email, username, password string, admin bool) (int64, error) {
	email = strings.TrimSpace(email)
	username = strings.TrimSpace(username)
	if email == "" || username == "" || password == "" {
		return 0, ErrInvalidAccount
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	u := &entity.User{
		Email:        email,
		Username:     username,
		Local:        true,
		Admin:        admin,
		PasswordHash: &hash,
	}
	var id int64
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		id, err = tx.Users().Create(ctx, u)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrAlreadyExists
			}
			return err
		}
		return tx.Audit().Record(ctx, store.AuditEntry{Message: "Local account created", TargetUserID: &id})
	})
	if err != nil {
		return 0, err
	}
	s.logger.Infow("local user created", "id", id, "email", email)
	return id, nil
}

// ForceLogout bumps the user's session version and deletes every session
// bound to them. Returns the new version and the number of sessions removed.
func (s *UserService) ForceLogout(ctx context.Context, userID int64) (int64, int64, error) {
	var version, removed int64
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		version, err = tx.Users().BumpSessionVersion(ctx, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		removed, err = tx.Sessions().DeleteByUser(ctx, userID)
		if err != nil {
			return err
		}
		return tx.Audit().Record(ctx, store.AuditEntry{Message: "All sessions invalidated", TargetUserID: &userID})
	})
	if err != nil {
		return 0, 0, err
	}
	s.logger.Infow("user force logged out", "id", userID, "version", version, "sessions", removed)
	return version, removed, nil
}
