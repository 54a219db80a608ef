// Package version implements the composite identifiers and version
// numbering used by applet history. Every history row is addressed by an
// id_version string of the form "{uuid}_{version}", which downstream
// subsystems (answers, assignments, alerts) use as a foreign-key target.
package version

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ErrMalformedIdVersion indicates an id_version string that cannot be
// split into a UUID and a valid version.
var ErrMalformedIdVersion = errors.New("malformed id_version")

// versionPattern matches decimal-carry version strings. Underscores are
// not permitted, so decoding can split on the first underscore only.
var versionPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*$`)

// IdVersion is the composite identifier of one history row.
type IdVersion struct {
	ID      uuid.UUID
	Version string
}

// String renders the composite as "{uuid}_{version}".
func (iv IdVersion) String() string {
	return iv.ID.String() + "_" + iv.Version
}

// Encode builds the id_version string for an entity at a version.
func Encode(id uuid.UUID, version string) string {
	return IdVersion{ID: id, Version: version}.String()
}

// Decode splits an id_version string on its first underscore. The prefix
// must be a UUID and the remainder a valid version string.
func Decode(s string) (IdVersion, error) {
	idx := strings.Index(s, "_")
	if idx < 0 {
		return IdVersion{}, fmt.Errorf("%w: %q has no separator", ErrMalformedIdVersion, s)
	}

	id, err := uuid.Parse(s[:idx])
	if err != nil {
		return IdVersion{}, fmt.Errorf("%w: %q: %v", ErrMalformedIdVersion, s, err)
	}

	v := s[idx+1:]
	if !IsValid(v) {
		return IdVersion{}, fmt.Errorf("%w: %q has invalid version %q", ErrMalformedIdVersion, s, v)
	}

	return IdVersion{ID: id, Version: v}, nil
}

// IsValid reports whether v is a well-formed version string.
func IsValid(v string) bool {
	return versionPattern.MatchString(v)
}
