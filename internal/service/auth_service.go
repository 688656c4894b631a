package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notes-server/internal/domain"
	"notes-server/internal/repository"
	"notes-server/internal/tokenstore"
	"notes-server/pkg/hash"
	"notes-server/pkg/jwt"

	"github.com/google/uuid"
)

const invalidCredentialsMessage = "Invalid username or password"

type AuthService struct {
	userRepo          repository.UserRepository
	revoked           tokenstore.Store
	hasher            *hash.Hasher
	jwtSecret         string
	jwtExpiration     time.Duration
	refreshExpiration time.Duration
}

func NewAuthService(
	userRepo repository.UserRepository,
	revoked tokenstore.Store,
	hasher *hash.Hasher,
	jwtSecret string,
	jwtExp, refreshExp time.Duration,
) *AuthService {
	return &AuthService{
		userRepo:          userRepo,
		revoked:           revoked,
		hasher:            hasher,
		jwtSecret:         jwtSecret,
		jwtExpiration:     jwtExp,
		refreshExpiration: refreshExp,
	}
}

// Signup checks username before email so a request colliding on both reports the username.
func (s *AuthService) Signup(ctx context.Context, req *domain.SignupRequest) (*domain.User, error) {
	if req.Username == "" {
		return nil, validationError("Username field is required.")
	}
	if req.Email == "" {
		return nil, validationError("Email field is required.")
	}

	usernameExists, err := s.userRepo.UsernameExists(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username existence: %w", err)
	}
	if usernameExists {
		return nil, conflictError("A user with that username already exists.")
	}

	emailExists, err := s.userRepo.EmailExists(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email existence: %w", err)
	}
	if emailExists {
		return nil, conflictError("A user with that email already exists.")
	}

	hashedPassword, err := s.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, hash.ErrPasswordTooShort) || errors.Is(err, hash.ErrPasswordTooLong) {
			return nil, validationError(capitalize(err.Error()) + ".")
		}
		return nil, err
	}

	now := time.Now()
	user := &domain.User{
		ID:        uuid.New().String(),
		Username:  req.Username,
		Email:     req.Email,
		Password:  hashedPassword,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// A concurrent signup can still win the race after the checks above.
	if err := s.userRepo.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateUsername):
			return nil, conflictError("A user with that username already exists.")
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, conflictError("A user with that email already exists.")
		case errors.Is(err, repository.ErrDuplicateUser):
			return nil, conflictError("A user with that username or email already exists.")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	user, err := s.userRepo.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, credentialsError(invalidCredentialsMessage)
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if err := s.hasher.Compare(user.Password, req.Password); err != nil {
		return nil, credentialsError(invalidCredentialsMessage)
	}

	accessToken, err := jwt.GenerateToken(user.ID, s.jwtExpiration, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := jwt.GenerateRefreshToken(user.ID, s.refreshExpiration, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &domain.LoginResponse{
		Token:        accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtExpiration.Seconds()),
	}, nil
}

func (s *AuthService) RefreshToken(ctx context.Context, req *domain.RefreshTokenRequest) (*domain.TokenResponse, error) {
	claims, err := s.validate(ctx, req.RefreshToken, jwt.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	accessToken, err := jwt.GenerateToken(claims.UserID, s.jwtExpiration, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	return &domain.TokenResponse{
		Token:     accessToken,
		ExpiresIn: int64(s.jwtExpiration.Seconds()),
	}, nil
}

// ValidateAccessToken resolves a bearer token to its claims, rejecting refresh and revoked tokens.
func (s *AuthService) ValidateAccessToken(ctx context.Context, token string) (*jwt.Claims, error) {
	return s.validate(ctx, token, jwt.TokenTypeAccess)
}

// Logout revokes the access token and, when given, a refresh token belonging to the same user.
// A bad refresh token leaves both tokens valid.
func (s *AuthService) Logout(ctx context.Context, access *jwt.Claims, refreshToken string) error {
	var refresh *jwt.Claims
	if refreshToken != "" {
		claims, err := jwt.ValidateTokenType(refreshToken, s.jwtSecret, jwt.TokenTypeRefresh)
		if err != nil || claims.UserID != access.UserID {
			return credentialsError("Invalid refresh token")
		}
		refresh = claims
	}

	if err := s.revoked.Revoke(ctx, access.ID, access.TTL()); err != nil {
		return err
	}
	if refresh == nil {
		return nil
	}
	return s.revoked.Revoke(ctx, refresh.ID, refresh.TTL())
}

func (s *AuthService) validate(ctx context.Context, token string, tokenType jwt.TokenType) (*jwt.Claims, error) {
	claims, err := jwt.ValidateTokenType(token, s.jwtSecret, tokenType)
	if err != nil {
		return nil, credentialsError("Invalid or expired token")
	}

	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check token revocation: %w", err)
	}
	if revoked {
		return nil, credentialsError("Token has been revoked")
	}
	return claims, nil
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
