package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"notes-server/internal/domain"
	"notes-server/internal/repository"
	"notes-server/internal/repository/memory"
	"notes-server/internal/tokenstore"
	"notes-server/pkg/hash"
	"notes-server/pkg/jwt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

func newTestAuthService(t *testing.T) (*AuthService, *memory.Store) {
	t.Helper()
	store := memory.New()
	revoked := tokenstore.NewMemoryStore()
	t.Cleanup(func() { revoked.Close() })
	svc := NewAuthService(store.Users(), revoked, hash.NewHasher(bcrypt.MinCost), testSecret, 15*time.Minute, 7*24*time.Hour)
	return svc, store
}

func TestAuthService_Signup(t *testing.T) {
	tests := []struct {
		name    string
		req     *domain.SignupRequest
		setup   func(t *testing.T, svc *AuthService)
		wantErr error
		wantMsg string
	}{
		{
			name: "successful signup",
			req: &domain.SignupRequest{
				Username: "newuser",
				Email:    "new@example.com",
				Password: "Password123!",
			},
		},
		{
			name: "duplicate email",
			req: &domain.SignupRequest{
				Username: "anotheruser",
				Email:    "existing@example.com",
				Password: "Password123!",
			},
			setup: func(t *testing.T, svc *AuthService) {
				_, err := svc.Signup(context.Background(), &domain.SignupRequest{
					Username: "existinguser",
					Email:    "existing@example.com",
					Password: "ExistingPass123!",
				})
				require.NoError(t, err)
			},
			wantErr: ErrConflict,
			wantMsg: "A user with that email already exists.",
		},
		{
			name: "duplicate username",
			req: &domain.SignupRequest{
				Username: "duplicateuser",
				Email:    "unique@example.com",
				Password: "Password123!",
			},
			setup: func(t *testing.T, svc *AuthService) {
				_, err := svc.Signup(context.Background(), &domain.SignupRequest{
					Username: "duplicateuser",
					Email:    "other@example.com",
					Password: "Password123!",
				})
				require.NoError(t, err)
			},
			wantErr: ErrConflict,
			wantMsg: "A user with that username already exists.",
		},
		{
			name: "missing email",
			req: &domain.SignupRequest{
				Username: "noemail",
				Password: "Password123!",
			},
			wantErr: ErrValidation,
			wantMsg: "Email field is required.",
		},
		{
			name: "weak password",
			req: &domain.SignupRequest{
				Username: "testuser",
				Email:    "test@example.com",
				Password: "weak",
			},
			wantErr: ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTestAuthService(t)
			if tt.setup != nil {
				tt.setup(t, svc)
			}

			user, err := svc.Signup(context.Background(), tt.req)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				if tt.wantMsg != "" {
					assert.Equal(t, tt.wantMsg, err.Error())
				}
				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, user.ID)
			assert.NotEqual(t, tt.req.Password, user.Password)

			stored, err := store.Users().FindByUsername(context.Background(), tt.req.Username)
			require.NoError(t, err)
			assert.Equal(t, user.ID, stored.ID)
		})
	}
}

func TestAuthService_SignupDoesNotDuplicate(t *testing.T) {
	svc, store := newTestAuthService(t)
	ctx := context.Background()
	req := &domain.SignupRequest{Username: "alice", Email: "alice@example.com", Password: "Password123!"}

	first, err := svc.Signup(ctx, req)
	require.NoError(t, err)

	_, err = svc.Signup(ctx, req)
	require.ErrorIs(t, err, ErrConflict)

	found, err := store.Users().FindByUsernames(ctx, []string{"alice"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, first.ID, found["alice"].ID)
}

type racingUsers struct {
	repository.UserRepository
	createErr error
}

func (r *racingUsers) UsernameExists(ctx context.Context, username string) (bool, error) {
	return false, nil
}

func (r *racingUsers) EmailExists(ctx context.Context, email string) (bool, error) {
	return false, nil
}

func (r *racingUsers) Create(ctx context.Context, user *domain.User) error {
	return r.createErr
}

func TestAuthService_SignupMapsRepositoryDuplicates(t *testing.T) {
	tests := []struct {
		name    string
		repoErr error
		wantMsg string
	}{
		{"username", repository.ErrDuplicateUsername, "A user with that username already exists."},
		{"email", repository.ErrDuplicateEmail, "A user with that email already exists."},
		{"unknown constraint", repository.ErrDuplicateUser, "A user with that username or email already exists."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewAuthService(&racingUsers{createErr: tt.repoErr}, tokenstore.NewMemoryStore(),
				hash.NewHasher(bcrypt.MinCost), testSecret, time.Minute, time.Hour)

			_, err := svc.Signup(context.Background(), &domain.SignupRequest{
				Username: "bob", Email: "bob@example.com", Password: "Password123!",
			})
			require.ErrorIs(t, err, ErrConflict)
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}

	t.Run("storage failure is not a conflict", func(t *testing.T) {
		svc := NewAuthService(&racingUsers{createErr: errors.New("disk full")}, tokenstore.NewMemoryStore(),
			hash.NewHasher(bcrypt.MinCost), testSecret, time.Minute, time.Hour)

		_, err := svc.Signup(context.Background(), &domain.SignupRequest{
			Username: "bob", Email: "bob@example.com", Password: "Password123!",
		})
		require.Error(t, err)
		var svcErr *Error
		assert.False(t, errors.As(err, &svcErr))
	})
}

func TestAuthService_Login(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, &domain.SignupRequest{
		Username: "testuser",
		Email:    "test@example.com",
		Password: "Password123!",
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		req     *domain.LoginRequest
		wantErr bool
	}{
		{
			name:    "successful login",
			req:     &domain.LoginRequest{Username: "testuser", Password: "Password123!"},
			wantErr: false,
		},
		{
			name:    "wrong password",
			req:     &domain.LoginRequest{Username: "testuser", Password: "WrongPassword!"},
			wantErr: true,
		},
		{
			name:    "non-existent user",
			req:     &domain.LoginRequest{Username: "nobody", Password: "Password123!"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.Login(ctx, tt.req)

			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidCredentials)
				assert.Equal(t, "Invalid username or password", err.Error())
				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, resp.Token)
			assert.NotEmpty(t, resp.RefreshToken)
			assert.Equal(t, int64(900), resp.ExpiresIn)

			claims, err := svc.ValidateAccessToken(ctx, resp.Token)
			require.NoError(t, err)
			assert.NotEmpty(t, claims.UserID)
		})
	}
}

func TestAuthService_RefreshToken(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	user, err := svc.Signup(ctx, &domain.SignupRequest{Username: "testuser", Email: "test@example.com", Password: "Password123!"})
	require.NoError(t, err)
	login, err := svc.Login(ctx, &domain.LoginRequest{Username: "testuser", Password: "Password123!"})
	require.NoError(t, err)

	t.Run("valid refresh token", func(t *testing.T) {
		resp, err := svc.RefreshToken(ctx, &domain.RefreshTokenRequest{RefreshToken: login.RefreshToken})
		require.NoError(t, err)

		claims, err := svc.ValidateAccessToken(ctx, resp.Token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, claims.UserID)
	})

	t.Run("access token is not a refresh token", func(t *testing.T) {
		_, err := svc.RefreshToken(ctx, &domain.RefreshTokenRequest{RefreshToken: login.Token})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := svc.RefreshToken(ctx, &domain.RefreshTokenRequest{RefreshToken: "not-a-token"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestAuthService_ValidateAccessTokenRejectsRefreshTokens(t *testing.T) {
	svc, _ := newTestAuthService(t)

	refresh, err := jwt.GenerateRefreshToken("user-1", time.Hour, testSecret)
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(context.Background(), refresh)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_Logout(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, &domain.SignupRequest{Username: "testuser", Email: "test@example.com", Password: "Password123!"})
	require.NoError(t, err)
	login, err := svc.Login(ctx, &domain.LoginRequest{Username: "testuser", Password: "Password123!"})
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(ctx, login.Token)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, claims, login.RefreshToken))

	_, err = svc.ValidateAccessToken(ctx, login.Token)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, "Token has been revoked", err.Error())

	_, err = svc.RefreshToken(ctx, &domain.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_LogoutRejectsForeignRefreshToken(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	access, err := jwt.GenerateToken("user-1", time.Hour, testSecret)
	require.NoError(t, err)
	foreign, err := jwt.GenerateRefreshToken("user-2", time.Hour, testSecret)
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(ctx, access)
	require.NoError(t, err)

	for _, refresh := range []string{foreign, "not-a-token", access} {
		err = svc.Logout(ctx, claims, refresh)
		require.ErrorIs(t, err, ErrInvalidCredentials)
		assert.Equal(t, "Invalid refresh token", err.Error())
	}

	_, err = svc.ValidateAccessToken(ctx, access)
	assert.NoError(t, err, "a failed logout leaves the access token usable")

	_, err = svc.RefreshToken(ctx, &domain.RefreshTokenRequest{RefreshToken: foreign})
	assert.NoError(t, err)
}

func TestUserService_GetByID(t *testing.T) {
	authSvc, store := newTestAuthService(t)
	ctx := context.Background()
	svc := NewUserService(store.Users())

	created, err := authSvc.Signup(ctx, &domain.SignupRequest{Username: "testuser", Email: "test@example.com", Password: "Password123!"})
	require.NoError(t, err)

	user, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "testuser", user.Username)
	assert.Empty(t, user.Password)

	_, err = svc.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
