// Package modelstore persists trained model state keyed by series name.
//
// Blobs are opaque to the store: callers serialize and deserialize their own
// model envelopes. Loading an unknown key is the normal cold-start path and
// reports found=false with a nil error.
//
// The package also provides per-key locks so that a load → fit → save cycle
// for one series cannot interleave with another and lose an update.
package modelstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Store loads and saves model blobs.
type Store interface {
	// Load returns the blob saved under key. found is false, with a nil
	// error, when nothing has been saved yet.
	Load(ctx context.Context, key string) (blob []byte, found bool, err error)

	// Save overwrites the blob under key.
	Save(ctx context.Context, key string, blob []byte) error
}

// Locker grants exclusive access to a key. The returned unlock func must be
// called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// ErrInvalidKey is returned for keys that are empty or contain characters
// outside [a-zA-Z0-9_-].
var ErrInvalidKey = errors.New("invalid model key")

var keyRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]{0,251}[a-zA-Z0-9])?$`)

// ValidateKey checks that key is safe to use as a file name or Redis key
// suffix.
func ValidateKey(key string) error {
	if !keyRegex.MatchString(key) {
		return fmt.Errorf("%w: %q (must be alphanumeric with dash/underscore, 1-253 chars)", ErrInvalidKey, key)
	}
	return nil
}
