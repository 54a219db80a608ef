package applet

import (
	"errors"
	"fmt"
)

// ErrValidation is the umbrella for every payload or invariant failure.
// Specific failures below wrap it so callers can test either the broad
// kind or the precise cause with errors.Is.
var ErrValidation = errors.New("invalid applet payload")

var (
	// ErrAppletNotFound indicates the applet doesn't exist for the tenant.
	ErrAppletNotFound = errors.New("applet not found")
	// ErrVersionNotFound indicates the requested version has no history.
	ErrVersionNotFound = errors.New("applet version not found")
	// ErrStaleApplet indicates an optimistic-concurrency conflict: the
	// applet moved past the expected version. Retriable by the caller.
	ErrStaleApplet = errors.New("applet modified concurrently")
	// ErrConflict indicates an invariant violated at commit time.
	ErrConflict = errors.New("applet commit conflict")

	ErrEncryptionImmutable     = fmt.Errorf("%w: encryption cannot change after create", ErrValidation)
	ErrUnknownActivity         = fmt.Errorf("%w: unknown activity id", ErrValidation)
	ErrUnknownItem             = fmt.Errorf("%w: unknown item id", ErrValidation)
	ErrUnknownActivityKey      = fmt.Errorf("%w: flow references unknown activity key", ErrValidation)
	ErrDuplicateActivityKey    = fmt.Errorf("%w: duplicate activity key", ErrValidation)
	ErrDuplicateItemName       = fmt.Errorf("%w: duplicate item name", ErrValidation)
	ErrInvalidItemName         = fmt.Errorf("%w: invalid item name", ErrValidation)
	ErrInvalidResponseShape    = fmt.Errorf("%w: invalid response shape", ErrValidation)
	ErrFlowActivityOutOfApplet = fmt.Errorf("%w: flow references activity outside applet", ErrValidation)
	ErrUnknownConditionItem    = fmt.Errorf("%w: conditional logic references unknown item", ErrValidation)
	ErrMultipleReviewable      = fmt.Errorf("%w: applet allows one reviewer activity", ErrValidation)
	ErrReviewableInFlow        = fmt.Errorf("%w: reviewer activities cannot appear in flows", ErrValidation)
	ErrUnknownFlow             = fmt.Errorf("%w: unknown flow id", ErrValidation)
	ErrUnknownFlowItem         = fmt.Errorf("%w: unknown flow item id", ErrValidation)
)
