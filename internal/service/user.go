package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/strawberry/sitebuilder-go/internal/config"
	apperrors "github.com/strawberry/sitebuilder-go/internal/errors"
	"github.com/strawberry/sitebuilder-go/internal/model"
	"github.com/strawberry/sitebuilder-go/internal/util"
)

const minPasswordLength = 8

var ErrInvalidCredentials = errors.New("invalid username or password")

type UserStore interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	Create(ctx context.Context, params model.CreateUserParams) (*model.User, error)
}

type WebSessionStore interface {
	Create(ctx context.Context, params model.CreateWebSessionParams) (*model.WebSession, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
}

type UserService struct {
	users         UserStore
	sessions      WebSessionStore
	sessionSecret string
	now           func() time.Time
}

func NewUserService(users UserStore, sessions WebSessionStore, sessionSecret string) *UserService {
	return &UserService{
		users:         users,
		sessions:      sessions,
		sessionSecret: sessionSecret,
		now:           time.Now,
	}
}

func (s *UserService) Signup(ctx context.Context, username, password string) (*model.User, error) {
	if !util.IsValidUsername(username) {
		return nil, apperrors.InvalidInput("username", "use 3 to 32 letters, digits, dots, dashes or underscores")
	}
	if len(password) < minPasswordLength {
		return nil, apperrors.InvalidInput("password", "must be at least 8 characters")
	}

	existing, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if existing != nil {
		return nil, apperrors.AlreadyExists("Username")
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to hash password", err)
	}
	user, err := s.users.Create(ctx, model.CreateUserParams{
		Username:     username,
		PasswordHash: hash,
		BalanceUSD:   decimal.Zero,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().Str("userId", user.ID).Str("username", user.Username).Msg("user signed up")
	return user, nil
}

// Login checks the password and opens a web session, returning the raw
// cookie token. Only its HMAC is stored.
func (s *UserService) Login(ctx context.Context, username, password string) (*model.User, string, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, "", apperrors.Database(err)
	}
	if user == nil || !util.CheckPasswordHash(password, user.PasswordHash) {
		return nil, "", ErrInvalidCredentials
	}

	token, err := util.GenerateToken()
	if err != nil {
		return nil, "", err
	}
	_, err = s.sessions.Create(ctx, model.CreateWebSessionParams{
		UserID:    user.ID,
		TokenHash: util.HmacSHA256(s.sessionSecret, token),
		ExpiresAt: s.now().Add(config.WebSessionTTL),
	})
	if err != nil {
		return nil, "", apperrors.Database(err)
	}
	return user, token, nil
}

func (s *UserService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.DeleteByTokenHash(ctx, util.HmacSHA256(s.sessionSecret, token))
}

func (s *UserService) FindByID(ctx context.Context, id string) (*model.User, error) {
	return s.users.FindByID(ctx, id)
}
