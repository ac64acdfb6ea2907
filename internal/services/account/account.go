package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/finledger/ledger-api/internal/domain/models"
	"github.com/finledger/ledger-api/internal/lib/jwt"
	"github.com/finledger/ledger-api/internal/lib/logger/sl"
	"github.com/finledger/ledger-api/internal/lib/validation"
	"github.com/finledger/ledger-api/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrIncorrectPassword = errors.New("incorrect password")
	ErrUnknownUser       = errors.New("user of the token no longer exists")
	ErrBadToken          = errors.New("bad token")
	ErrInvalidToken      = errors.New("token is invalid or expired")
	ErrTokenRevoked      = errors.New("token is blacklisted")
)

const (
	msgPasswordMismatch = "Password fields didn't match."
	msgWrongPassword    = "Current password is not correct."
	msgUsernameExists   = "A user with that username already exists."
	msgEmailExists      = "A user with that email already exists."
	msgRequired         = "This field is required."
)

type UserStorage interface {
	SaveUser(ctx context.Context, user models.User) (int64, error)
	User(ctx context.Context, username string) (models.User, error)
	UserByID(ctx context.Context, id int64) (models.User, error)
	UpdateUser(ctx context.Context, user models.User) error
	UpdatePassword(ctx context.Context, userID int64, passHash []byte) error
}

// TokenStorage is the refresh token revocation list.
type TokenStorage interface {
	RevokeToken(ctx context.Context, token models.RevokedToken) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type Service struct {
	log        *slog.Logger
	users      UserStorage
	tokens     TokenStorage
	validate   *validation.Validator
	jwtSecret  string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func New(
	log *slog.Logger,
	users UserStorage,
	tokens TokenStorage,
	validate *validation.Validator,
	jwtSecret string,
	accessTTL time.Duration,
	refreshTTL time.Duration,
) *Service {
	return &Service{
		log:        log,
		users:      users,
		tokens:     tokens,
		validate:   validate,
		jwtSecret:  jwtSecret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

type RegisterRequest struct {
	Username        string `json:"username" validate:"required,max=150,username"`
	Email           string `json:"email" validate:"required,max=254,email"`
	FirstName       string `json:"first_name" validate:"max=150"`
	LastName        string `json:"last_name" validate:"max=150"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UpdateProfileRequest carries the fields to change; nil fields are left as they are.
type UpdateProfileRequest struct {
	Username  *string `json:"username" validate:"omitempty,max=150,username"`
	Email     *string `json:"email" validate:"omitempty,max=254,email"`
	FirstName *string `json:"first_name" validate:"omitempty,max=150"`
	LastName  *string `json:"last_name" validate:"omitempty,max=150"`
}

type ChangePasswordRequest struct {
	CurrentPassword    string `json:"current_password" validate:"required"`
	NewPassword        string `json:"new_password" validate:"required"`
	ConfirmNewPassword string `json:"confirm_new_password" validate:"required"`
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (models.User, error) {
	const op = "account.Register"

	log := s.log.With(slog.String("op", op), slog.String("username", req.Username))

	errs := s.validate.Struct(req)
	if len(errs) == 0 && req.Password != req.ConfirmPassword {
		errs.Add("password", msgPasswordMismatch)
	}
	if err := errs.Err(); err != nil {
		return models.User{}, err
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to hash password", sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	user := models.User{
		Username:     req.Username,
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: passHash,
	}

	id, err := s.users.SaveUser(ctx, user)
	if err != nil {
		if verr := uniqueErrors(err); verr != nil {
			return models.User{}, verr
		}
		log.Error("failed to save user", sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}
	user.ID = id

	log.Info("user registered", slog.Int64("uid", id))

	return user, nil
}

// Login checks the credentials and issues a fresh token pair.
func (s *Service) Login(ctx context.Context, req LoginRequest) (models.User, jwt.Pair, error) {
	const op = "account.Login"

	log := s.log.With(slog.String("op", op), slog.String("username", req.Username))

	if err := s.validate.Struct(req).Err(); err != nil {
		return models.User{}, jwt.Pair{}, err
	}

	user, err := s.users.User(ctx, req.Username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Info("user not found")
			return models.User{}, jwt.Pair{}, ErrUserNotFound
		}
		log.Error("failed to get user", sl.Err(err))
		return models.User{}, jwt.Pair{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(req.Password)); err != nil {
		log.Info("incorrect password")
		return models.User{}, jwt.Pair{}, ErrIncorrectPassword
	}

	pair, err := jwt.NewPair(user, s.jwtSecret, s.accessTTL, s.refreshTTL)
	if err != nil {
		log.Error("failed to generate tokens", sl.Err(err))
		return models.User{}, jwt.Pair{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in", slog.Int64("uid", user.ID))

	return user, pair, nil
}

// Logout revokes the caller's refresh token. A token that is malformed, expired,
// issued to someone else or already revoked is reported as ErrBadToken.
func (s *Service) Logout(ctx context.Context, userID int64, refresh string) error {
	const op = "account.Logout"

	log := s.log.With(slog.String("op", op), slog.Int64("uid", userID))

	claims, err := jwt.ParseToken(refresh, s.jwtSecret, jwt.TypeRefresh)
	if err != nil {
		log.Info("rejected refresh token", sl.Err(err))
		return ErrBadToken
	}

	if claims.UserID != userID {
		log.Warn("refresh token belongs to another user")
		return ErrBadToken
	}

	err = s.tokens.RevokeToken(ctx, models.RevokedToken{
		ID:        claims.ID,
		UserID:    claims.UserID,
		ExpiresAt: claims.ExpiresAt.Time,
	})
	if err != nil {
		if errors.Is(err, storage.ErrTokenRevoked) {
			log.Info("refresh token already revoked")
			return ErrBadToken
		}
		log.Error("failed to revoke token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged out")

	return nil
}

// Refresh exchanges a refresh token that is not revoked for a new access token.
func (s *Service) Refresh(ctx context.Context, refresh string) (string, error) {
	const op = "account.Refresh"

	log := s.log.With(slog.String("op", op))

	claims, err := jwt.ParseToken(refresh, s.jwtSecret, jwt.TypeRefresh)
	if err != nil {
		return "", ErrInvalidToken
	}

	revoked, err := s.tokens.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		log.Error("failed to check revocation", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if revoked {
		log.Info("revoked refresh token used", slog.Int64("uid", claims.UserID))
		return "", ErrTokenRevoked
	}

	access, err := jwt.NewToken(models.User{ID: claims.UserID, Username: claims.Username}, jwt.TypeAccess, s.jwtSecret, s.accessTTL)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return access, nil
}

func (s *Service) Profile(ctx context.Context, userID int64) (models.User, error) {
	const op = "account.Profile"

	user, err := s.users.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.User{}, ErrUnknownUser
		}
		s.log.Error("failed to get user", slog.String("op", op), sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UpdateProfile applies req to the caller's profile. Unless partial is set,
// username is mandatory, matching a full replacement.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, req UpdateProfileRequest, partial bool) (models.User, error) {
	const op = "account.UpdateProfile"

	log := s.log.With(slog.String("op", op), slog.Int64("uid", userID))

	errs := s.validate.Struct(req)
	if (req.Username == nil && !partial) || (req.Username != nil && *req.Username == "") {
		errs.Add("username", msgRequired)
	}
	if req.Email != nil && *req.Email == "" {
		errs.Add("email", msgRequired)
	}
	if err := errs.Err(); err != nil {
		return models.User{}, err
	}

	user, err := s.Profile(ctx, userID)
	if err != nil {
		return models.User{}, err
	}

	if req.Username != nil {
		user.Username = *req.Username
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}

	if err := s.users.UpdateUser(ctx, user); err != nil {
		if verr := uniqueErrors(err); verr != nil {
			return models.User{}, verr
		}
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.User{}, ErrUnknownUser
		}
		log.Error("failed to update user", sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("profile updated")

	return user, nil
}

// ChangePassword replaces the stored hash. Tokens issued before the change stay valid.
func (s *Service) ChangePassword(ctx context.Context, userID int64, req ChangePasswordRequest) error {
	const op = "account.ChangePassword"

	log := s.log.With(slog.String("op", op), slog.Int64("uid", userID))

	errs := s.validate.Struct(req)
	if len(errs) == 0 && req.NewPassword != req.ConfirmNewPassword {
		errs.Add("new_password", msgPasswordMismatch)
	}
	if err := errs.Err(); err != nil {
		return err
	}

	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(req.CurrentPassword)); err != nil {
		errs.Add("current_password", msgWrongPassword)
		return errs
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to hash password", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.users.UpdatePassword(ctx, userID, passHash); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return ErrUnknownUser
		}
		log.Error("failed to update password", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("password changed")

	return nil
}

func uniqueErrors(err error) error {
	errs := validation.Errors{}
	switch {
	case errors.Is(err, storage.ErrUsernameExists):
		errs.Add("username", msgUsernameExists)
	case errors.Is(err, storage.ErrEmailExists):
		errs.Add("email", msgEmailExists)
	}
	return errs.Err()
}
