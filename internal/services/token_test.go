package services

import (
	"context"
	"strings"
	"testing"

	"github.com/authhub/authhub/internal/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGrantType(t *testing.T) {
	for _, valid := range []string{"authorization_code", "client_credentials", "refresh_token"} {
		got, err := ParseGrantType(valid)
		require.NoError(t, err)
		assert.Equal(t, GrantType(valid), got)
	}

	for _, invalid := range []string{"", "password", "implicit", "device_code"} {
		_, err := ParseGrantType(invalid)
		assert.ErrorIs(t, err, ErrUnsupportedGrantType, invalid)
	}
}

func TestAuthenticateClient(t *testing.T) {
	env := newTestEnv(t)
	confidential, secret := env.createClient(t, true)
	public, _ := env.createClient(t, false)

	t.Run("ConfidentialWithSecret", func(t *testing.T) {
		got, err := env.tokens.AuthenticateClient(confidential.ClientID, secret)
		require.NoError(t, err)
		assert.Equal(t, confidential.ClientID, got.ClientID)
	})

	t.Run("ConfidentialWrongSecret", func(t *testing.T) {
		_, err := env.tokens.AuthenticateClient(confidential.ClientID, "wrong")
		assert.ErrorIs(t, err, ErrInvalidClient)
	})

	t.Run("ConfidentialMissingSecret", func(t *testing.T) {
		_, err := env.tokens.AuthenticateClient(confidential.ClientID, "")
		assert.ErrorIs(t, err, ErrInvalidClient)
	})

	t.Run("PublicWithoutSecret", func(t *testing.T) {
		got, err := env.tokens.AuthenticateClient(public.ClientID, "")
		require.NoError(t, err)
		assert.Equal(t, public.ClientID, got.ClientID)
	})

	t.Run("UnknownClient", func(t *testing.T) {
		_, err := env.tokens.AuthenticateClient("nope", "")
		assert.ErrorIs(t, err, ErrInvalidClient)
	})

	t.Run("InactiveClient", func(t *testing.T) {
		inactive, sec := env.createClient(t, true)
		inactive.IsActive = false
		require.NoError(t, env.store.UpdateClient(inactive))

		_, err := env.tokens.AuthenticateClient(inactive.ClientID, sec)
		assert.ErrorIs(t, err, ErrInvalidClient)
	})
}

func TestAuthorizationCodeGrant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client, secret := env.createClient(t, true)
	user := env.createUser(t, "alice", "password123")
	redirect := "https://app.example.com/callback"

	mint := func(t *testing.T, scopes, nonce string) string {
		t.Helper()
		plain, err := env.authSvc.CreateAuthorizationCode(
			ctx, client.ClientID, user.UUID, redirect, scopes, "", "", nonce)
		require.NoError(t, err)
		return plain
	}

	t.Run("OpenIDScopeYieldsSignedTokenAndIDToken", func(t *testing.T) {
		resp, err := env.tokens.Exchange(ctx, TokenRequest{
			GrantType:    "authorization_code",
			Code:         mint(t, "openid profile email", "nonce-xyz"),
			RedirectURI:  redirect,
			ClientID:     client.ClientID,
			ClientSecret: secret,
		})
		require.NoError(t, err)

		assert.True(t, token.LooksLikeJWT(resp.AccessToken))
		assert.Equal(t, "Bearer", resp.TokenType)
		assert.NotEmpty(t, resp.IDToken)
		assert.Empty(t, resp.RefreshToken) // no offline_access granted

		claims, err := env.signer.VerifyAccessToken(resp.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, user.UUID, claims.Subject)

		// Signed tokens are invisible to introspection
		result := env.tokens.Introspect(ctx, resp.AccessToken)
		assert.False(t, result.Active)
	})

	t.Run("PlainScopeYieldsOpaqueToken", func(t *testing.T) {
		resp, err := env.tokens.Exchange(ctx, TokenRequest{
			GrantType:    "authorization_code",
			Code:         mint(t, "read write", ""),
			RedirectURI:  redirect,
			ClientID:     client.ClientID,
			ClientSecret: secret,
		})
		require.NoError(t, err)

		assert.False(t, token.LooksLikeJWT(resp.AccessToken))
		assert.Empty(t, resp.IDToken)

		result := env.tokens.Introspect(ctx, resp.AccessToken)
		assert.True(t, result.Active)
		assert.Equal(t, "read write", result.Scope)
		assert.Equal(t, user.UUID, result.Sub)
		assert.Equal(t, "alice", result.Username)
	})

	t.Run("OfflineAccessYieldsRefreshToken", func(t *testing.T) {
		resp, err := env.tokens.Exchange(ctx, TokenRequest{
			GrantType:    "authorization_code",
			Code:         mint(t, "read offline_access", ""),
			RedirectURI:  redirect,
			ClientID:     client.ClientID,
			ClientSecret: secret,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.RefreshToken)
	})

	t.Run("UsedCodeFailsInvalidGrant", func(t *testing.T) {
		code := mint(t, "read", "")
		req := TokenRequest{
			GrantType:    "authorization_code",
			Code:         code,
			RedirectURI:  redirect,
			ClientID:     client.ClientID,
			ClientSecret: secret,
		}
		_, err := env.tokens.Exchange(ctx, req)
		require.NoError(t, err)

		_, err = env.tokens.Exchange(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("BadClientCredentialsRejected", func(t *testing.T) {
		_, err := env.tokens.Exchange(ctx, TokenRequest{
			GrantType:    "authorization_code",
			Code:         mint(t, "read", ""),
			RedirectURI:  redirect,
			ClientID:     client.ClientID,
			ClientSecret: "wrong",
		})
		assert.ErrorIs(t, err, ErrInvalidClient)
	})
}

func TestClientCredentialsGrant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	client, secret := env.createClient(t, true)
	client.Scopes = "profile email"
	require.NoError(t, env.store.UpdateClient(client))

	t.Run("SubsetScopeSucceedsWithoutUser", func(t *testing.T) {
		resp, err := env.tokens.Exchange(ctx, TokenRequest{
			GrantType:    "client_credentials",
			ClientID:     client.ClientID,
			ClientSecret: secret,
			Scope:        "profile",
		})
		require.NoError(t, err)
		assert.Equal(t, "profile", resp.Scope)
		assert.Empty(t, resp.RefreshToken)

		result := env.tokens.Introspect(ctx, resp.AccessToken)
		assert.True(t, result.Active)
		assert.Empty(t, result.Sub)
		assert.Empty(t, result.Username)
	})

	t.Run("ScopeOutsideAllowedFails", func(t *testing.T) {
		_, err := env.tokens.Exchange(ctx, TokenRequest{
			GrantType:    "client_credentials",
			ClientID:     client.ClientID,
			ClientSecret: secret,
			Scope:        "admin",
		})
		assert.ErrorIs(t, err, ErrInvalidAuthCodeScope)
	})

	t.Run("OpenIDScopeYieldsNoIDTokenWithoutUser", func(t *testing.T) {
		machine, sec := env.createClient(t, true)

		resp, err := env.tokens.Exchange(ctx, TokenRequest{
			GrantType:    "client_credentials",
			ClientID:     machine.ClientID,
			ClientSecret: sec,
			Scope:        "openid read",
		})
		require.NoError(t, err)

		// The access token is the signed representation, but there is no
		// user to assert in an ID token.
		assert.Contains(t, resp.AccessToken, ".")
		assert.Empty(t, resp.IDToken)
	})

	t.Run("GrantNotAllowedForClient", func(t *testing.T) {
		restricted, sec := env.createClient(t, true)
		restricted.GrantTypes = "authorization_code"
		require.NoError(t, env.store.UpdateClient(restricted))

		_, err := env.tokens.Exchange(ctx, TokenRequest{
			GrantType:    "client_credentials",
			ClientID:     restricted.ClientID,
			ClientSecret: sec,
		})
		assert.ErrorIs(t, err, ErrUnauthorizedClient)
	})
}

func TestRefreshTokenGrant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client, secret := env.createClient(t, true)
	user := env.createUser(t, "bob", "password123")
	redirect := "https://app.example.com/callback"

	issue := func(t *testing.T, scopes string) *TokenResponse {
		t.Helper()
		code, err := env.authSvc.CreateAuthorizationCode(
			ctx, client.ClientID, user.UUID, redirect, scopes, "", "", "")
		require.NoError(t, err)
		resp, err := env.tokens.Exchange(ctx, TokenRequest{
			GrantType:    "authorization_code",
			Code:         code,
			RedirectURI:  redirect,
			ClientID:     client.ClientID,
			ClientSecret: secret,
		})
		require.NoError(t, err)
		return resp
	}

	t.Run("RefreshKeepsScopesAndToken", func(t *testing.T) {
		initial := issue(t, "read offline_access")
		require.NotEmpty(t, initial.RefreshToken)

		refreshed, err := env.tokens.Exchange(ctx, TokenRequest{
			GrantType:    "refresh_token",
			RefreshToken: initial.RefreshToken,
			ClientID:     client.ClientID,
			ClientSecret: secret,
		})
		require.NoError(t, err)

		// No rotation and no scope drift
		assert.Equal(t, initial.RefreshToken, refreshed.RefreshToken)
		assert.Equal(t, "read offline_access", refreshed.Scope)
		assert.NotEqual(t, initial.AccessToken, refreshed.AccessToken)

		// The new access token must not carry anything beyond the original grant
		granted := token.ScopeSet(refreshed.Scope)
		for scope := range granted {
			assert.Contains(t, strings.Fields("read offline_access"), scope)
		}
	})

	t.Run("ScopeNarrowingHonored", func(t *testing.T) {
		initial := issue(t, "read write offline_access")
		require.NotEmpty(t, initial.RefreshToken)

		refreshed, err := env.tokens.Exchange(ctx, TokenRequest{
			GrantType:    "refresh_token",
			RefreshToken: initial.RefreshToken,
			ClientID:     client.ClientID,
			ClientSecret: secret,
			Scope:        "read",
		})
		require.NoError(t, err)
		assert.Equal(t, "read", refreshed.Scope)

		// Narrowing is per-exchange: the stored grant keeps its full set
		// and a later exchange without a scope parameter gets it back.
		full, err := env.tokens.Exchange(ctx, TokenRequest{
			GrantType:    "refresh_token",
			RefreshToken: initial.RefreshToken,
			ClientID:     client.ClientID,
			ClientSecret: secret,
		})
		require.NoError(t, err)
		assert.Equal(t, "read write offline_access", full.Scope)
	})

	t.Run("ScopeWideningRejected", func(t *testing.T) {
		initial := issue(t, "read offline_access")

		_, err := env.tokens.Exchange(ctx, TokenRequest{
			GrantType:    "refresh_token",
			RefreshToken: initial.RefreshToken,
			ClientID:     client.ClientID,
			ClientSecret: secret,
			Scope:        "read write",
		})
		assert.ErrorIs(t, err, ErrInvalidAuthCodeScope)
	})

	t.Run("ForeignClientRejected", func(t *testing.T) {
		initial := issue(t, "read offline_access")
		other, otherSecret := env.createClient(t, true)

		_, err := env.tokens.Exchange(ctx, TokenRequest{
			GrantType:    "refresh_token",
			RefreshToken: initial.RefreshToken,
			ClientID:     other.ClientID,
			ClientSecret: otherSecret,
		})
		assert.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("RevokedRefreshTokenRejected", func(t *testing.T) {
		initial := issue(t, "read offline_access")
		require.NoError(t, env.tokens.Revoke(ctx, initial.RefreshToken, "refresh_token"))

		_, err := env.tokens.Exchange(ctx, TokenRequest{
			GrantType:    "refresh_token",
			RefreshToken: initial.RefreshToken,
			ClientID:     client.ClientID,
			ClientSecret: secret,
		})
		assert.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("UnknownRefreshTokenRejected", func(t *testing.T) {
		_, err := env.tokens.Exchange(ctx, TokenRequest{
			GrantType:    "refresh_token",
			RefreshToken: "never-issued",
			ClientID:     client.ClientID,
			ClientSecret: secret,
		})
		assert.ErrorIs(t, err, ErrInvalidGrant)
	})
}

func TestIntrospectAndRevoke(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client, secret := env.createClient(t, true)
	user := env.createUser(t, "carol", "password123")
	redirect := "https://app.example.com/callback"

	code, err := env.authSvc.CreateAuthorizationCode(
		ctx, client.ClientID, user.UUID, redirect, "read offline_access", "", "", "")
	require.NoError(t, err)
	resp, err := env.tokens.Exchange(ctx, TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  redirect,
		ClientID:     client.ClientID,
		ClientSecret: secret,
	})
	require.NoError(t, err)

	t.Run("ActiveThenRevokedThenInactive", func(t *testing.T) {
		assert.True(t, env.tokens.Introspect(ctx, resp.AccessToken).Active)

		require.NoError(t, env.tokens.Revoke(ctx, resp.AccessToken, ""))
		assert.False(t, env.tokens.Introspect(ctx, resp.AccessToken).Active)

		// The refresh token minted alongside dies with it
		_, err := env.tokens.Exchange(ctx, TokenRequest{
			GrantType:    "refresh_token",
			RefreshToken: resp.RefreshToken,
			ClientID:     client.ClientID,
			ClientSecret: secret,
		})
		assert.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("UnknownTokenIntrospectionNeverErrors", func(t *testing.T) {
		assert.False(t, env.tokens.Introspect(ctx, "unknown-token").Active)
		assert.False(t, env.tokens.Introspect(ctx, "").Active)
	})

	t.Run("RefreshTokenInvisibleToIntrospection", func(t *testing.T) {
		code, err := env.authSvc.CreateAuthorizationCode(
			ctx, client.ClientID, user.UUID, redirect, "read offline_access", "", "", "")
		require.NoError(t, err)
		fresh, err := env.tokens.Exchange(ctx, TokenRequest{
			GrantType:    "authorization_code",
			Code:         code,
			RedirectURI:  redirect,
			ClientID:     client.ClientID,
			ClientSecret: secret,
		})
		require.NoError(t, err)

		assert.False(t, env.tokens.Introspect(ctx, fresh.RefreshToken).Active)
	})

	t.Run("RevokeUnknownTokenSucceeds", func(t *testing.T) {
		assert.NoError(t, env.tokens.Revoke(ctx, "never-issued", ""))
		assert.NoError(t, env.tokens.Revoke(ctx, "never-issued", "refresh_token"))
	})
}

func TestVerifyBearer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client, secret := env.createClient(t, true)
	user := env.createUser(t, "dave", "password123")
	redirect := "https://app.example.com/callback"

	exchange := func(t *testing.T, scopes string) *TokenResponse {
		t.Helper()
		code, err := env.authSvc.CreateAuthorizationCode(
			ctx, client.ClientID, user.UUID, redirect, scopes, "", "", "")
		require.NoError(t, err)
		resp, err := env.tokens.Exchange(ctx, TokenRequest{
			GrantType:    "authorization_code",
			Code:         code,
			RedirectURI:  redirect,
			ClientID:     client.ClientID,
			ClientSecret: secret,
		})
		require.NoError(t, err)
		return resp
	}

	t.Run("SignedBearer", func(t *testing.T) {
		resp := exchange(t, "openid email")
		userID, clientID, scopes, err := env.tokens.VerifyBearer(ctx, resp.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, user.UUID, userID)
		assert.Equal(t, client.ClientID, clientID)
		assert.Equal(t, "openid email", scopes)
	})

	t.Run("OpaqueBearer", func(t *testing.T) {
		resp := exchange(t, "read")
		userID, _, scopes, err := env.tokens.VerifyBearer(ctx, resp.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, user.UUID, userID)
		assert.Equal(t, "read", scopes)
	})

	t.Run("RevokedOpaqueBearerRejected", func(t *testing.T) {
		resp := exchange(t, "read")
		require.NoError(t, env.tokens.Revoke(ctx, resp.AccessToken, ""))
		_, _, _, err := env.tokens.VerifyBearer(ctx, resp.AccessToken)
		assert.Error(t, err)
	})
}
