package ids

import (
	"crypto/rand"
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	ulidRegex = regexp.MustCompile(`(?i)^[0-9A-HJKMNP-TV-Z]{26}$`)

	ErrInvalidULID = errors.New("invalid ULID")

	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewULID generates a new ULID string. IDs minted within the same
// millisecond sort in creation order.
func NewULID() (string, error) {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ValidateULID reports whether value is a canonical ULID string.
func ValidateULID(value string) error {
	if !ulidRegex.MatchString(value) {
		return ErrInvalidULID
	}
	if _, err := ulid.ParseStrict(value); err != nil {
		return ErrInvalidULID
	}
	return nil
}
