package keys

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-jose/go-jose/v4"
)

const rsaKeyBits = 2048

// Keychain holds the server's RSA signing key. A single key signs both access
// tokens and ID tokens; its RFC 7638 thumbprint is the published kid.
type Keychain struct {
	key   *rsa.PrivateKey
	keyID string
}

// Load reads the PEM private key at path, generating and persisting a new
// one when the file does not exist. Persisting keeps the kid stable across
// restarts so cached JWKS documents stay valid.
func Load(path string) (*Keychain, error) {
	key, err := readPrivateKey(path)
	if errors.Is(err, os.ErrNotExist) {
		key, err = generatePrivateKey(path)
	}
	if err != nil {
		return nil, err
	}

	keyID, err := deriveKeyID(key)
	if err != nil {
		return nil, err
	}
	return &Keychain{key: key, keyID: keyID}, nil
}

func readPrivateKey(path string) (*rsa.PrivateKey, error) {
	keyPEM, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block from %s", path)
	}

	// Try PKCS1 first, then PKCS8
	if rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return rsaKey, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signing key is %T, want RSA", parsed)
	}
	return rsaKey, nil
}

func generatePrivateKey(path string) (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := os.WriteFile(path, keyPEM, 0o600); err != nil {
		return nil, fmt.Errorf("failed to persist signing key: %w", err)
	}
	log.Printf("[Keys] Generated new RSA signing key at %s", path)
	return key, nil
}

// deriveKeyID computes the RFC 7638 JWK thumbprint of the public key.
func deriveKeyID(key *rsa.PrivateKey) (string, error) {
	jwk := jose.JSONWebKey{Key: key.Public()}
	thumbprint, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to compute key thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(thumbprint), nil
}

// Private returns the signing key.
func (k *Keychain) Private() *rsa.PrivateKey {
	return k.key
}

// Public returns the verification key.
func (k *Keychain) Public() *rsa.PublicKey {
	return &k.key.PublicKey
}

// KeyID returns the published kid for the signing key.
func (k *Keychain) KeyID() string {
	return k.keyID
}

// PublicJWKS returns the JWK Set served at /.well-known/jwks.json. It carries
// public material only.
func (k *Keychain) PublicJWKS() jose.JSONWebKeySet {
	return jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       k.Public(),
				KeyID:     k.keyID,
				Algorithm: string(jose.RS256),
				Use:       "sig",
			},
		},
	}
}
