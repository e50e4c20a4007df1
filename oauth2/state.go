package oauth2

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidState = errors.New("invalid oauth state")

// StateClaims is what travels through the provider in the state parameter.
// Nonce must also match the oauthstate cookie.
type StateClaims struct {
	jwt.RegisteredClaims
	Nonce       string `json:"nonce"`
	CallbackURL string `json:"cb,omitempty"`
}

// StateSigner signs and checks oauth state values.
type StateSigner struct {
	key      []byte
	Lifetime time.Duration
}

// NewStateSigner creates a signer with key. A nil key gets a random one,
// which only works while a single process serves both legs of the flow.
func NewStateSigner(key []byte) *StateSigner {
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(fmt.Sprintf("cannot generate state key: %v", err))
		}
	}
	return &StateSigner{key: key, Lifetime: 10 * time.Minute}
}

func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Sign returns the nonce for the cookie and the signed state for the provider.
func (s *StateSigner) Sign(callbackURL string) (nonce string, state string, err error) {
	nonce, err = newNonce()
	if err != nil {
		return "", "", err
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, StateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.Lifetime)),
		},
		Nonce:       nonce,
		CallbackURL: callbackURL,
	})
	state, err = token.SignedString(s.key)
	return nonce, state, err
}

// Verify checks the signature and expiry of state and that it was issued
// together with nonce.
func (s *StateSigner) Verify(state, nonce string) (*StateClaims, error) {
	claims := &StateClaims{}
	token, err := jwt.ParseWithClaims(state, claims, func(t *jwt.Token) (any, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if !token.Valid || nonce == "" || claims.Nonce != nonce {
		return nil, ErrInvalidState
	}
	return claims, nil
}
