package placeholder

import (
	"fmt"

	"gitlab.com/tozd/go/errors"
)

var (
	// ErrTokenCollision means a token is not unique: two regions rendered to
	// the same token, or the document text already holds it under every
	// prefix tried.
	ErrTokenCollision = errors.Base("token collision")
	// ErrTokenTooWide means a token's minimal form does not fit in the configured width.
	ErrTokenTooWide = errors.Base("token exceeds max width")
	// ErrInvalidOptions is returned for options that cannot produce markup-safe tokens.
	ErrInvalidOptions = errors.Base("invalid placeholder options")
	// ErrRestoreMiss marks a token that could not be found at restore time.
	ErrRestoreMiss = errors.Base("token not found")
)

// MissError reports a token from the map that did not appear in the document
// handed to Restore. The original text of that region is lost.
type MissError struct {
	Miss Miss
}

func (e *MissError) Error() string {
	return fmt.Sprintf("%s: %q (original %d bytes)", ErrRestoreMiss.Error(), e.Miss.Token, len(e.Miss.Original))
}

func (e *MissError) Unwrap() error {
	return ErrRestoreMiss
}
