package jwt

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "notes-test-secret"

func signClaims(t *testing.T, method gojwt.SigningMethod, claims *Claims) string {
	t.Helper()
	signed, err := gojwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestGeneratedClaims(t *testing.T) {
	tests := []struct {
		name     string
		generate func(userID string, expiration time.Duration, secret string) (string, error)
		wantType TokenType
		lifetime time.Duration
	}{
		{name: "access token", generate: GenerateToken, wantType: TokenTypeAccess, lifetime: 15 * time.Minute},
		{name: "refresh token", generate: GenerateRefreshToken, wantType: TokenTypeRefresh, lifetime: 168 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := time.Now().Add(-time.Second)
			token, err := tt.generate("note-owner", tt.lifetime, testSecret)
			require.NoError(t, err)
			after := time.Now().Add(time.Second)

			claims, err := ValidateToken(token, testSecret)
			require.NoError(t, err)

			assert.Equal(t, "note-owner", claims.UserID)
			assert.Equal(t, "note-owner", claims.Subject)
			assert.Equal(t, tt.wantType, claims.TokenType)
			assert.NotEmpty(t, claims.ID, "every token carries a jti for revocation")

			assert.WithinRange(t, claims.IssuedAt.Time, before, after)
			assert.Equal(t, claims.IssuedAt.Time, claims.NotBefore.Time)
			assert.WithinRange(t, claims.ExpiresAt.Time, before.Add(tt.lifetime), after.Add(tt.lifetime))
		})
	}
}

func TestTokenIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		generate := GenerateToken
		if i%2 == 1 {
			generate = GenerateRefreshToken
		}
		token, err := generate("note-owner", time.Hour, testSecret)
		require.NoError(t, err)

		claims, err := ValidateToken(token, testSecret)
		require.NoError(t, err)
		require.False(t, seen[claims.ID], "duplicate jti %s", claims.ID)
		seen[claims.ID] = true
	}
}

func TestValidateTokenRejects(t *testing.T) {
	good, err := GenerateToken("note-owner", time.Hour, testSecret)
	require.NoError(t, err)
	expired, err := GenerateToken("note-owner", -time.Minute, testSecret)
	require.NoError(t, err)

	now := time.Now()
	registered := gojwt.RegisteredClaims{
		ID:        "jti-1",
		ExpiresAt: gojwt.NewNumericDate(now.Add(time.Hour)),
		IssuedAt:  gojwt.NewNumericDate(now),
	}

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{name: "signed with another secret", token: good, secret: "someone-else"},
		{name: "expired", token: expired, secret: testSecret},
		{name: "malformed", token: "a.b.c", secret: testSecret},
		{name: "empty", token: "", secret: testSecret},
		{
			name:   "unexpected signing method",
			token:  signClaims(t, gojwt.SigningMethodHS512, &Claims{UserID: "note-owner", TokenType: TokenTypeAccess, RegisteredClaims: registered}),
			secret: testSecret,
		},
		{
			name:   "no user id",
			token:  signClaims(t, gojwt.SigningMethodHS256, &Claims{TokenType: TokenTypeAccess, RegisteredClaims: registered}),
			secret: testSecret,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ValidateToken(tt.token, tt.secret)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

func TestValidateTokenType(t *testing.T) {
	access, err := GenerateToken("note-owner", time.Hour, testSecret)
	require.NoError(t, err)
	refresh, err := GenerateRefreshToken("note-owner", time.Hour, testSecret)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		want    TokenType
		wantErr error
	}{
		{name: "access accepted as access", token: access, want: TokenTypeAccess},
		{name: "refresh accepted as refresh", token: refresh, want: TokenTypeRefresh},
		{name: "refresh presented as access", token: refresh, want: TokenTypeAccess, wantErr: ErrWrongTokenType},
		{name: "access presented as refresh", token: access, want: TokenTypeRefresh, wantErr: ErrWrongTokenType},
		{name: "invalid token", token: "garbage", want: TokenTypeRefresh, wantErr: ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ValidateTokenType(tt.token, testSecret, tt.want)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, claims)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, claims.TokenType)
		})
	}
}

func TestClaimsTTL(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		claims  *Claims
		wantMin time.Duration
		wantMax time.Duration
	}{
		{name: "no expiry", claims: &Claims{}},
		{
			name:   "already expired",
			claims: &Claims{RegisteredClaims: gojwt.RegisteredClaims{ExpiresAt: gojwt.NewNumericDate(now.Add(-time.Minute))}},
		},
		{
			name:    "half an hour left",
			claims:  &Claims{RegisteredClaims: gojwt.RegisteredClaims{ExpiresAt: gojwt.NewNumericDate(now.Add(30 * time.Minute))}},
			wantMin: 29 * time.Minute,
			wantMax: 30 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ttl := tt.claims.TTL()
			assert.GreaterOrEqual(t, ttl, tt.wantMin)
			assert.LessOrEqual(t, ttl, tt.wantMax)
		})
	}
}

func BenchmarkValidateTokenType(b *testing.B) {
	token, err := GenerateToken("note-owner", 15*time.Minute, testSecret)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ValidateTokenType(token, testSecret, TokenTypeAccess); err != nil {
			b.Fatal(err)
		}
	}
}
