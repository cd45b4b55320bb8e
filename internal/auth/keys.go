package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const keyLength = 32

// Key purposes are versioned so a key can be rotated without touching
// SESSION_SECRET.
const (
	purposeOAuthState = "ams-oauth-state-v1"
	purposeCSRF       = "ams-csrf-v1"
)

var ErrEmptySecret = errors.New("session secret is empty")

// Keys are the purpose-bound keys the server derives from SESSION_SECRET.
type Keys struct {
	OAuthState []byte
	CSRF       []byte
}

// DeriveKeys expands secret with HKDF-SHA256, once per purpose.
func DeriveKeys(secret []byte) (Keys, error) {
	if len(secret) == 0 {
		return Keys{}, ErrEmptySecret
	}
	var keys Keys
	for purpose, dst := range map[string]*[]byte{
		purposeOAuthState: &keys.OAuthState,
		purposeCSRF:       &keys.CSRF,
	} {
		key := make([]byte, keyLength)
		if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(purpose)), key); err != nil {
			return Keys{}, fmt.Errorf("derive %s key: %w", purpose, err)
		}
		*dst = key
	}
	return keys, nil
}
