package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Initial is the version assigned on applet creation.
const Initial = "1.0.0"

// Next returns the version that follows v. Versions are interpreted by
// concatenating their digits and incrementing by one, so "1.0.1" follows
// "1.0.0" and "2.0.0" follows "1.9.9". This is deliberately not semver:
// there is no semantic distinction between the positions, only a total
// order on the concatenated number.
func Next(v string) (string, error) {
	n, err := toNumber(v)
	if err != nil {
		return "", err
	}
	return toVersion(n + 1), nil
}

// Previous returns the version that precedes v, or Initial when v is
// already the first version.
func Previous(v string) (string, error) {
	n, err := toNumber(v)
	if err != nil {
		return "", err
	}
	initial, _ := toNumber(Initial)
	if n <= initial {
		return Initial, nil
	}
	return toVersion(n - 1), nil
}

// Compare orders two version strings by their concatenated numeric value.
// It returns -1, 0 or 1.
func Compare(a, b string) (int, error) {
	na, err := toNumber(a)
	if err != nil {
		return 0, err
	}
	nb, err := toNumber(b)
	if err != nil {
		return 0, err
	}
	switch {
	case na < nb:
		return -1, nil
	case na > nb:
		return 1, nil
	default:
		return 0, nil
	}
}

func toNumber(v string) (int64, error) {
	if !IsValid(v) {
		return 0, fmt.Errorf("%w: invalid version %q", ErrMalformedIdVersion, v)
	}
	digits := strings.ReplaceAll(v, ".", "")
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid version %q", ErrMalformedIdVersion, v)
	}
	return n, nil
}

func toVersion(n int64) string {
	digits := strconv.FormatInt(n, 10)
	parts := make([]string, len(digits))
	for i, d := range digits {
		parts[i] = string(d)
	}
	return strings.Join(parts, ".")
}
