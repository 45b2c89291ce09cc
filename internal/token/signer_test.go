package token

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/authhub/authhub/internal/keys"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIssuer = "https://auth.example.com"

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	kc, err := keys.Load(filepath.Join(t.TempDir(), "signing.pem"))
	require.NoError(t, err)
	return NewSigner(kc, testIssuer)
}

func TestSignAndVerifyAccessToken(t *testing.T) {
	signer := newTestSigner(t)

	raw, err := signer.SignAccessToken(AccessTokenParams{
		Subject:  "user-123",
		ClientID: "client-abc",
		Scopes:   "openid profile email",
		Expiry:   time.Hour,
	})
	require.NoError(t, err)
	assert.True(t, LooksLikeJWT(raw))

	claims, err := signer.VerifyAccessToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.Subject)
	assert.Equal(t, "client-abc", claims.ClientID)
	assert.Equal(t, "openid profile email", claims.Scopes)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, 5*time.Second)
	assert.NotEmpty(t, claims.JTI)
}

func TestClientCredentialsSubject(t *testing.T) {
	signer := newTestSigner(t)

	raw, err := signer.SignAccessToken(AccessTokenParams{
		ClientID: "client-abc",
		Scopes:   "read",
		Expiry:   time.Hour,
	})
	require.NoError(t, err)

	claims, err := signer.VerifyAccessToken(raw)
	require.NoError(t, err)
	assert.Empty(t, claims.Subject)
	assert.Equal(t, "client-abc", claims.ClientID)
}

func TestVerifyExpiredAccessToken(t *testing.T) {
	signer := newTestSigner(t)

	raw, err := signer.SignAccessToken(AccessTokenParams{
		Subject:  "user-123",
		ClientID: "client-abc",
		Scopes:   "openid",
		Expiry:   -time.Minute,
	})
	require.NoError(t, err)

	_, err = signer.VerifyAccessToken(raw)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	signer := newTestSigner(t)
	other := newTestSigner(t)

	raw, err := other.SignAccessToken(AccessTokenParams{
		Subject:  "user-123",
		ClientID: "client-abc",
		Scopes:   "openid",
		Expiry:   time.Hour,
	})
	require.NoError(t, err)

	_, err = signer.VerifyAccessToken(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsIDToken(t *testing.T) {
	signer := newTestSigner(t)

	idToken, err := signer.GenerateIDToken(IDTokenParams{
		Subject:  "user-123",
		Audience: "client-abc",
		Expiry:   time.Hour,
		AuthTime: time.Now(),
	})
	require.NoError(t, err)

	// An ID token must not pass as a bearer access token
	_, err = signer.VerifyAccessToken(idToken)
	assert.ErrorIs(t, err, ErrNotAccessToken)
}

func TestGenerateIDTokenClaims(t *testing.T) {
	signer := newTestSigner(t)
	authTime := time.Now().Add(-2 * time.Minute)

	raw, err := signer.GenerateIDToken(IDTokenParams{
		Subject:           "user-123",
		Audience:          "client-abc",
		Expiry:            15 * time.Minute,
		AuthTime:          authTime,
		Nonce:             "n-0S6_WzA2Mj",
		AtHash:            ComputeAtHash("some-access-token"),
		Name:              "Alice Example",
		PreferredUsername: "alice",
		Email:             "alice@example.com",
		EmailVerified:     true,
	})
	require.NoError(t, err)

	// Decode without verification just to inspect claims
	parsed, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)

	assert.Equal(t, testIssuer, claims["iss"])
	assert.Equal(t, "user-123", claims["sub"])
	assert.Equal(t, "client-abc", claims["aud"])
	assert.Equal(t, "n-0S6_WzA2Mj", claims["nonce"])
	assert.Equal(t, ComputeAtHash("some-access-token"), claims["at_hash"])
	assert.Equal(t, "alice", claims["preferred_username"])
	assert.Equal(t, "alice@example.com", claims["email"])
	assert.Equal(t, true, claims["email_verified"])
	assert.EqualValues(t, authTime.Unix(), claims["auth_time"])
	assert.NotEmpty(t, parsed.Header["kid"])
}

func TestComputeAtHash(t *testing.T) {
	// Stable, deterministic, 128-bit output
	h1 := ComputeAtHash("token-a")
	h2 := ComputeAtHash("token-a")
	h3 := ComputeAtHash("token-b")
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 22) // 16 bytes base64url, unpadded
}

func TestScopeSet(t *testing.T) {
	set := ScopeSet("openid  profile email")
	assert.True(t, set["openid"])
	assert.True(t, set["profile"])
	assert.True(t, set["email"])
	assert.False(t, set["offline_access"])
	assert.Empty(t, ScopeSet(""))
}

func TestNewOpaque(t *testing.T) {
	plain, hash, err := NewOpaque()
	require.NoError(t, err)
	assert.Len(t, plain, 64)
	assert.Len(t, hash, 64)
	assert.False(t, LooksLikeJWT(plain))

	plain2, _, err := NewOpaque()
	require.NoError(t, err)
	assert.NotEqual(t, plain, plain2)
}
