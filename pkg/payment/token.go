package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// ErrInvalidToken is returned when a presented L402 token's signature does
// not verify or is malformed.
var ErrInvalidToken = errors.New("invalid L402 token")

// ErrTokenExpired is returned when a presented token's caveat has lapsed.
var ErrTokenExpired = errors.New("L402 token expired")

// Claims are the caveats bound into a signed L402 token: the payment it is
// scoped to, the request it authorizes, and its expiry. Binding method and
// path prevents a token minted for one operation from authorizing another.
type Claims struct {
	PaymentHash string    `json:"payment_hash"`
	Method      string    `json:"method"`
	Path        string    `json:"path"`
	TenantID    uuid.UUID `json:"tenant_id"`
	AmountSats  int64     `json:"amount_sats"`
	Expiry      time.Time `json:"expiry"`
}

// TokenSigner mints and verifies L402 tokens: macaroons-lite, an
// HMAC-SHA256 MAC over the claims rather than a full caveat-chaining
// macaroon library, since no macaroon package appears anywhere in the
// example corpus. Signing keys are never stored; each is derived
// on demand from a master secret via HKDF, scoped per tenant so a leaked
// per-tenant key cannot forge tokens for another tenant.
type TokenSigner struct {
	masterSecret []byte
}

func NewTokenSigner(masterSecret string) *TokenSigner {
	return &TokenSigner{masterSecret: []byte(masterSecret)}
}

func (s *TokenSigner) deriveKey(tenantID uuid.UUID) ([]byte, error) {
	r := hkdf.New(sha256.New, s.masterSecret, nil, []byte("l402-token:"+tenantID.String()))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("deriving token signing key: %w", err)
	}
	return key, nil
}

// Sign produces a token of the form "<base64 claims>.<base64 hmac>", both
// parts unpadded URL-safe base64.
func (s *TokenSigner) Sign(c Claims) (string, error) {
	key, err := s.deriveKey(c.TenantID)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshaling token claims: %w", err)
	}
	encodedBody := base64.RawURLEncoding.EncodeToString(body)

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(encodedBody))
	sig := mac.Sum(nil)

	return encodedBody + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// Verify parses and checks a token's signature and expiry, returning its
// claims on success.
func (s *TokenSigner) Verify(token string) (Claims, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return Claims{}, ErrInvalidToken
	}
	encodedBody, encodedSig := parts[0], parts[1]

	body, err := base64.RawURLEncoding.DecodeString(encodedBody)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	var c Claims
	if err := json.Unmarshal(body, &c); err != nil {
		return Claims{}, ErrInvalidToken
	}

	key, err := s.deriveKey(c.TenantID)
	if err != nil {
		return Claims{}, err
	}

	gotSig, err := base64.RawURLEncoding.DecodeString(encodedSig)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(encodedBody))
	wantSig := mac.Sum(nil)

	if subtle.ConstantTimeCompare(gotSig, wantSig) != 1 {
		return Claims{}, ErrInvalidToken
	}

	if time.Now().After(c.Expiry) {
		return c, ErrTokenExpired
	}

	return c, nil
}

// SplitCredential splits a presented "L402 token:preimage" credential into
// its token and preimage parts.
func SplitCredential(credential string) (token, preimage string, err error) {
	parts := strings.SplitN(credential, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrInvalidToken
	}
	return parts[0], parts[1], nil
}
